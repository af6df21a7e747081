package api

import (
	"encoding/base64"
	"time"

	"github.com/jkov/photark/internal/domain"
)

// Response DTOs. Field names are part of the client contract; times are
// RFC3339 in UTC via time.Time's default marshalling.

type userDTO struct {
	ID               string  `json:"id"`
	Email            string  `json:"email"`
	Name             string  `json:"name"`
	IsAdmin          bool    `json:"isAdmin"`
	ProfileImagePath string  `json:"profileImagePath"`
	StorageLabel     *string `json:"storageLabel"`
	QuotaSizeInBytes *int64  `json:"quotaSizeInBytes"`
	QuotaUsageBytes  int64   `json:"quotaUsageInBytes"`
	Status           string  `json:"status"`
}

func toUserDTO(u *domain.User) userDTO {
	return userDTO{
		ID:               u.ID,
		Email:            u.Email,
		Name:             u.Name,
		IsAdmin:          u.IsAdmin,
		ProfileImagePath: u.ProfileImagePath,
		StorageLabel:     u.StorageLabel,
		QuotaSizeInBytes: u.QuotaSizeBytes,
		QuotaUsageBytes:  u.QuotaUsageBytes,
		Status:           string(u.Status),
	}
}

type assetDTO struct {
	ID               string     `json:"id"`
	OwnerID          string     `json:"ownerId"`
	DeviceAssetID    string     `json:"deviceAssetId"`
	DeviceID         string     `json:"deviceId"`
	Type             string     `json:"type"`
	OriginalFileName string     `json:"originalFileName"`
	Checksum         string     `json:"checksum"`
	Thumbhash        *string    `json:"thumbhash"`
	Visibility       string     `json:"visibility"`
	IsFavorite       bool       `json:"isFavorite"`
	IsTrashed        bool       `json:"isTrashed"`
	FileCreatedAt    time.Time  `json:"fileCreatedAt"`
	FileModifiedAt   time.Time  `json:"fileModifiedAt"`
	LocalDateTime    time.Time  `json:"localDateTime"`
	Duration         *string    `json:"duration"`
	LivePhotoVideoID *string    `json:"livePhotoVideoId"`
	StackID          *string    `json:"stackId"`
	Width            *int64     `json:"width"`
	Height           *int64     `json:"height"`
	DeletedAt        *time.Time `json:"deletedAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

func toAssetDTO(a *domain.Asset) assetDTO {
	var th *string
	if len(a.Thumbhash) > 0 {
		v := base64.StdEncoding.EncodeToString(a.Thumbhash)
		th = &v
	}
	return assetDTO{
		ID:               a.ID,
		OwnerID:          a.OwnerID,
		DeviceAssetID:    a.DeviceAssetID,
		DeviceID:         a.DeviceID,
		Type:             string(a.Type),
		OriginalFileName: a.OriginalFileName,
		Checksum:         base64.StdEncoding.EncodeToString(a.Checksum),
		Thumbhash:        th,
		Visibility:       string(a.Visibility),
		IsFavorite:       a.IsFavorite,
		IsTrashed:        a.Trashed(),
		FileCreatedAt:    a.FileCreatedAt,
		FileModifiedAt:   a.FileModifiedAt,
		LocalDateTime:    a.LocalDateTime,
		Duration:         a.Duration,
		LivePhotoVideoID: a.LivePhotoVideoID,
		StackID:          a.StackID,
		Width:            a.Width,
		Height:           a.Height,
		DeletedAt:        a.DeletedAt,
		UpdatedAt:        a.UpdatedAt,
	}
}

func toAssetDTOs(assets []*domain.Asset) []assetDTO {
	out := make([]assetDTO, 0, len(assets))
	for _, a := range assets {
		out = append(out, toAssetDTO(a))
	}
	return out
}

type albumDTO struct {
	ID                string         `json:"id"`
	OwnerID           string         `json:"ownerId"`
	AlbumName         string         `json:"albumName"`
	Description       string         `json:"description"`
	ThumbnailAssetID  *string        `json:"albumThumbnailAssetId"`
	IsActivityEnabled bool           `json:"isActivityEnabled"`
	Order             string         `json:"order"`
	CreatedAt         time.Time      `json:"createdAt"`
	UpdatedAt         time.Time      `json:"updatedAt"`
	AssetCount        int            `json:"assetCount"`
	Users             []albumUserDTO `json:"albumUsers"`
}

type albumUserDTO struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

func toAlbumDTO(al *domain.Album, users []*domain.AlbumUser, assetCount int) albumDTO {
	us := make([]albumUserDTO, 0, len(users))
	for _, u := range users {
		us = append(us, albumUserDTO{UserID: u.UserID, Role: string(u.Role)})
	}
	return albumDTO{
		ID:                al.ID,
		OwnerID:           al.OwnerID,
		AlbumName:         al.Name,
		Description:       al.Description,
		ThumbnailAssetID:  al.ThumbnailAssetID,
		IsActivityEnabled: al.IsActivityEnabled,
		Order:             string(al.Order),
		CreatedAt:         al.CreatedAt,
		UpdatedAt:         al.UpdatedAt,
		AssetCount:        assetCount,
		Users:             us,
	}
}

type tagDTO struct {
	ID       string  `json:"id"`
	Value    string  `json:"value"`
	Color    *string `json:"color"`
	ParentID *string `json:"parentId"`
}

func toTagDTO(t *domain.Tag) tagDTO {
	return tagDTO{ID: t.ID, Value: t.Value, Color: t.Color, ParentID: t.ParentID}
}

type memoryDTO struct {
	ID       string     `json:"id"`
	OwnerID  string     `json:"ownerId"`
	Type     string     `json:"type"`
	Data     any        `json:"data"`
	IsSaved  bool       `json:"isSaved"`
	MemoryAt time.Time  `json:"memoryAt"`
	SeenAt   *time.Time `json:"seenAt"`
	AssetIDs []string   `json:"assetIds"`
}

type stackDTO struct {
	ID             string   `json:"id"`
	OwnerID        string   `json:"ownerId"`
	PrimaryAssetID string   `json:"primaryAssetId"`
	AssetIDs       []string `json:"assetIds"`
}

type partnerDTO struct {
	SharedByID   string `json:"sharedById"`
	SharedWithID string `json:"sharedWithId"`
	InTimeline   bool   `json:"inTimeline"`
}

func toPartnerDTO(p *domain.Partner) partnerDTO {
	return partnerDTO{SharedByID: p.SharedByID, SharedWithID: p.SharedWithID, InTimeline: p.InTimeline}
}

type sharedLinkDTO struct {
	ID            string     `json:"id"`
	UserID        string     `json:"userId"`
	Key           string     `json:"key"`
	Slug          *string    `json:"slug"`
	Type          string     `json:"type"`
	AlbumID       *string    `json:"albumId"`
	Description   *string    `json:"description"`
	ExpiresAt     *time.Time `json:"expiresAt"`
	AllowUpload   bool       `json:"allowUpload"`
	AllowDownload bool       `json:"allowDownload"`
	ShowExif      bool       `json:"showMetadata"`
	AssetIDs      []string   `json:"assetIds"`
}

func toSharedLinkDTO(l *domain.SharedLink, assetIDs []string) sharedLinkDTO {
	return sharedLinkDTO{
		ID:            l.ID,
		UserID:        l.UserID,
		Key:           base64.RawURLEncoding.EncodeToString(l.Key),
		Slug:          l.Slug,
		Type:          string(l.Type),
		AlbumID:       l.AlbumID,
		Description:   l.Description,
		ExpiresAt:     l.ExpiresAt,
		AllowUpload:   l.AllowUpload,
		AllowDownload: l.AllowDownload,
		ShowExif:      l.ShowExif,
		AssetIDs:      assetIDs,
	}
}

type sessionDTO struct {
	ID         string    `json:"id"`
	DeviceOS   string    `json:"deviceOS"`
	DeviceType string    `json:"deviceType"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
	Current    bool      `json:"current"`
}

type apiKeyDTO struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func toAPIKeyDTO(k *domain.APIKey) apiKeyDTO {
	return apiKeyDTO{ID: k.ID, Name: k.Name, Permissions: k.Permissions, CreatedAt: k.CreatedAt, UpdatedAt: k.UpdatedAt}
}

type activityDTO struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	AlbumID   string    `json:"albumId"`
	AssetID   *string   `json:"assetId"`
	Type      string    `json:"type"`
	Comment   *string   `json:"comment"`
	CreatedAt time.Time `json:"createdAt"`
}

func toActivityDTO(ac *domain.Activity) activityDTO {
	typ := "comment"
	if ac.IsLiked {
		typ = "like"
	}
	return activityDTO{
		ID:        ac.ID,
		UserID:    ac.UserID,
		AlbumID:   ac.AlbumID,
		AssetID:   ac.AssetID,
		Type:      typ,
		Comment:   ac.Comment,
		CreatedAt: ac.CreatedAt,
	}
}
