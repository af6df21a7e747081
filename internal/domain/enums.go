// Package domain holds the entity model shared by every service: typed enums,
// entity structs and the sync type vocabulary.
package domain

// AssetType classifies an original by its media kind.
type AssetType string

const (
	AssetTypeImage AssetType = "IMAGE"
	AssetTypeVideo AssetType = "VIDEO"
	AssetTypeAudio AssetType = "AUDIO"
	AssetTypeOther AssetType = "OTHER"
)

// AssetVisibility controls which views an asset appears in.
type AssetVisibility string

const (
	VisibilityTimeline AssetVisibility = "timeline"
	VisibilityArchive  AssetVisibility = "archive"
	VisibilityHidden   AssetVisibility = "hidden"
	VisibilityLocked   AssetVisibility = "locked"
)

// IsValid reports whether v is a known visibility value.
func (v AssetVisibility) IsValid() bool {
	switch v {
	case VisibilityTimeline, VisibilityArchive, VisibilityHidden, VisibilityLocked:
		return true
	}
	return false
}

// AssetStatus is the soft-delete lifecycle.
type AssetStatus string

const (
	AssetStatusActive  AssetStatus = "active"
	AssetStatusTrashed AssetStatus = "trashed"
	AssetStatusDeleted AssetStatus = "deleted"
)

// UserStatus is the user soft-delete lifecycle.
type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusRemoving UserStatus = "removing"
	UserStatusDeleted  UserStatus = "deleted"
)

// AssetFileType names a derivative attached to an asset.
type AssetFileType string

const (
	FileTypeFullsize  AssetFileType = "fullsize"
	FileTypePreview   AssetFileType = "preview"
	FileTypeThumbnail AssetFileType = "thumbnail"
	FileTypeSidecar   AssetFileType = "sidecar"
)

// AlbumUserRole is the delegated role on a shared album.
type AlbumUserRole string

const (
	RoleEditor AlbumUserRole = "editor"
	RoleViewer AlbumUserRole = "viewer"
)

// SharedLinkType distinguishes album links from ad-hoc asset lists.
type SharedLinkType string

const (
	LinkTypeAlbum      SharedLinkType = "album"
	LinkTypeIndividual SharedLinkType = "individual"
)

// SortOrder is the album display order.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// ThumbnailSize selects a derivative on the thumbnail endpoint.
type ThumbnailSize string

const (
	SizeThumbnail ThumbnailSize = "thumbnail"
	SizePreview   ThumbnailSize = "preview"
	SizeFullsize  ThumbnailSize = "fullsize"
)

// UploadStatus is the ingest outcome reported to clients.
type UploadStatus string

const (
	UploadCreated   UploadStatus = "created"
	UploadDuplicate UploadStatus = "duplicate"
	UploadReplaced  UploadStatus = "replaced"
)
