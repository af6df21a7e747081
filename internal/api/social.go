package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jkov/photark/internal/apperr"
	"github.com/jkov/photark/internal/auth"
	"github.com/jkov/photark/internal/domain"
	"github.com/jkov/photark/internal/id"
)

// --- partners ---

func (a *API) handleListPartners(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	var (
		partners []*domain.Partner
		err      error
	)
	switch r.URL.Query().Get("direction") {
	case "shared-by":
		partners, err = a.st.Partners.ListSharedBy(r.Context(), p.UserID())
	case "shared-with", "":
		partners, err = a.st.Partners.ListSharedWith(r.Context(), p.UserID())
	default:
		fail(w, r, apperr.BadRequestf("unknown direction"))
		return
	}
	if err != nil {
		fail(w, r, err)
		return
	}
	out := make([]partnerDTO, 0, len(partners))
	for _, pt := range partners {
		out = append(out, toPartnerDTO(pt))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleCreatePartner(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	withID := chi.URLParam(r, "id")
	if withID == p.UserID() {
		fail(w, r, apperr.BadRequestf("cannot partner with yourself"))
		return
	}
	if _, err := a.st.Users.GetByID(r.Context(), withID); err != nil {
		fail(w, r, err)
		return
	}
	partner, err := a.st.Partners.Create(r.Context(), p.UserID(), withID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPartnerDTO(partner))
}

func (a *API) handleUpdatePartner(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	sharedByID := chi.URLParam(r, "id")
	// Only the receiving side decides whether the partner shows up in
	// its timeline.
	if err := a.guard.Require(r.Context(), p, domain.PermPartnerUpdate, []string{sharedByID}); err != nil {
		fail(w, r, err)
		return
	}
	var req struct {
		InTimeline bool `json:"inTimeline"`
	}
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if err := a.st.Partners.SetInTimeline(r.Context(), sharedByID, p.UserID(), req.InTimeline); err != nil {
		fail(w, r, err)
		return
	}
	partner, err := a.st.Partners.Get(r.Context(), sharedByID, p.UserID())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPartnerDTO(partner))
}

func (a *API) handleDeletePartner(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	otherID := chi.URLParam(r, "id")
	// Either direction may sever the share.
	err := a.st.Partners.Delete(r.Context(), p.UserID(), otherID)
	if apperr.Is(err, apperr.ErrNotFound) {
		err = a.st.Partners.Delete(r.Context(), otherID, p.UserID())
	}
	if err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- shared links ---

func (a *API) handleCreateSharedLink(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	var req struct {
		Type          string   `json:"type"`
		AlbumID       *string  `json:"albumId"`
		AssetIDs      []string `json:"assetIds"`
		Slug          *string  `json:"slug"`
		Description   *string  `json:"description"`
		Password      *string  `json:"password"`
		ExpiresAt     *string  `json:"expiresAt"`
		AllowUpload   bool     `json:"allowUpload"`
		AllowDownload *bool    `json:"allowDownload"`
		ShowMetadata  *bool    `json:"showMetadata"`
	}
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}

	linkType := domain.SharedLinkType(req.Type)
	switch linkType {
	case domain.LinkTypeAlbum:
		if req.AlbumID == nil {
			fail(w, r, apperr.BadRequestf("albumId is required for album links"))
			return
		}
		if err := a.guard.Require(r.Context(), p, domain.PermAlbumShare, []string{*req.AlbumID}); err != nil {
			fail(w, r, err)
			return
		}
	case domain.LinkTypeIndividual:
		if len(req.AssetIDs) == 0 {
			fail(w, r, apperr.BadRequestf("assetIds is required for individual links"))
			return
		}
		if err := a.guard.Require(r.Context(), p, domain.PermAssetShare, req.AssetIDs); err != nil {
			fail(w, r, err)
			return
		}
	default:
		fail(w, r, apperr.BadRequestf("unknown link type %q", req.Type))
		return
	}

	key, err := auth.NewLinkKey()
	if err != nil {
		fail(w, r, err)
		return
	}
	link := &domain.SharedLink{
		ID:            id.New(),
		UserID:        p.UserID(),
		Key:           key,
		Slug:          req.Slug,
		Type:          linkType,
		AlbumID:       req.AlbumID,
		Description:   req.Description,
		Password:      req.Password,
		AllowUpload:   req.AllowUpload,
		AllowDownload: req.AllowDownload == nil || *req.AllowDownload,
		ShowExif:      req.ShowMetadata == nil || *req.ShowMetadata,
		CreatedAt:     time.Now().UTC(),
	}
	if req.ExpiresAt != nil {
		t, err := time.Parse(time.RFC3339Nano, *req.ExpiresAt)
		if err != nil {
			fail(w, r, apperr.BadRequestf("invalid expiresAt"))
			return
		}
		link.ExpiresAt = &t
	}
	if err := a.st.SharedLinks.Create(r.Context(), link, req.AssetIDs); err != nil {
		fail(w, r, err)
		return
	}
	a.writeSharedLink(w, r, link, http.StatusCreated)
}

func (a *API) writeSharedLink(w http.ResponseWriter, r *http.Request, link *domain.SharedLink, status int) {
	assetIDs, err := a.st.SharedLinks.AssetIDs(r.Context(), link.ID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, status, toSharedLinkDTO(link, assetIDs))
}

func (a *API) handleListSharedLinks(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	links, err := a.st.SharedLinks.ListByUser(r.Context(), p.UserID())
	if err != nil {
		fail(w, r, err)
		return
	}
	out := make([]sharedLinkDTO, 0, len(links))
	for _, link := range links {
		assetIDs, err := a.st.SharedLinks.AssetIDs(r.Context(), link.ID)
		if err != nil {
			fail(w, r, err)
			return
		}
		out = append(out, toSharedLinkDTO(link, assetIDs))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleMySharedLink describes the link the caller authenticated with.
func (a *API) handleMySharedLink(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	if !p.IsSharedLink() {
		fail(w, r, apperr.BadRequestf("not a shared-link credential"))
		return
	}
	link := p.SharedLink
	if link.Password != nil {
		supplied := r.URL.Query().Get("password")
		if supplied != *link.Password {
			fail(w, r, apperr.Unauthorizedf("link password required"))
			return
		}
	}
	a.writeSharedLink(w, r, link, http.StatusOK)
}

func (a *API) handleGetSharedLink(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	link, err := a.st.SharedLinks.GetByID(r.Context(), p.UserID(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	a.writeSharedLink(w, r, link, http.StatusOK)
}

func (a *API) handleDeleteSharedLink(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	if err := a.st.SharedLinks.Delete(r.Context(), p.UserID(), chi.URLParam(r, "id")); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleSharedLinkAddAssets(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	link, err := a.st.SharedLinks.GetByID(r.Context(), p.UserID(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	if link.Type != domain.LinkTypeIndividual {
		fail(w, r, apperr.BadRequestf("assets can only be attached to individual links"))
		return
	}
	var req bulkIDsRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if err := a.guard.Require(r.Context(), p, domain.PermAssetShare, req.IDs); err != nil {
		fail(w, r, err)
		return
	}
	if err := a.st.SharedLinks.AddAssets(r.Context(), link.ID, req.IDs); err != nil {
		fail(w, r, err)
		return
	}
	a.writeSharedLink(w, r, link, http.StatusOK)
}

// --- activities ---

func (a *API) handleCreateActivity(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	var req struct {
		AlbumID string  `json:"albumId"`
		AssetID *string `json:"assetId"`
		Type    string  `json:"type"`
		Comment *string `json:"comment"`
	}
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if req.AlbumID == "" {
		fail(w, r, apperr.BadRequestf("albumId is required"))
		return
	}
	if err := a.guard.Require(r.Context(), p, domain.PermActivityCreate, []string{req.AlbumID}); err != nil {
		fail(w, r, err)
		return
	}

	ac := &domain.Activity{
		ID:        id.New(),
		UserID:    p.UserID(),
		AlbumID:   req.AlbumID,
		AssetID:   req.AssetID,
		CreatedAt: time.Now().UTC(),
	}
	switch req.Type {
	case "like":
		ac.IsLiked = true
	case "comment":
		if req.Comment == nil || *req.Comment == "" {
			fail(w, r, apperr.BadRequestf("comment is required"))
			return
		}
		ac.Comment = req.Comment
	default:
		fail(w, r, apperr.BadRequestf("unknown activity type %q", req.Type))
		return
	}
	if err := a.st.Activities.Create(r.Context(), ac); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toActivityDTO(ac))
}

func (a *API) handleListActivities(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	albumID := r.URL.Query().Get("albumId")
	if albumID == "" {
		fail(w, r, apperr.BadRequestf("albumId is required"))
		return
	}
	if err := a.guard.Require(r.Context(), p, domain.PermAlbumRead, []string{albumID}); err != nil {
		fail(w, r, err)
		return
	}
	var assetID *string
	if v := r.URL.Query().Get("assetId"); v != "" {
		assetID = &v
	}
	activities, err := a.st.Activities.List(r.Context(), albumID, assetID)
	if err != nil {
		fail(w, r, err)
		return
	}
	out := make([]activityDTO, 0, len(activities))
	for _, ac := range activities {
		out = append(out, toActivityDTO(ac))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleActivityStatistics(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	albumID := r.URL.Query().Get("albumId")
	if albumID == "" {
		fail(w, r, apperr.BadRequestf("albumId is required"))
		return
	}
	if err := a.guard.Require(r.Context(), p, domain.PermAlbumRead, []string{albumID}); err != nil {
		fail(w, r, err)
		return
	}
	var assetID *string
	if v := r.URL.Query().Get("assetId"); v != "" {
		assetID = &v
	}
	count, err := a.st.Activities.CommentCount(r.Context(), albumID, assetID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"comments": count})
}

func (a *API) handleDeleteActivity(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	ac, err := a.st.Activities.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	// The author or the album owner may remove an activity.
	if ac.UserID != p.UserID() {
		album, err := a.st.Albums.GetByID(r.Context(), ac.AlbumID)
		if err != nil {
			fail(w, r, err)
			return
		}
		if album.OwnerID != p.UserID() {
			fail(w, r, apperr.Forbiddenf("not your activity"))
			return
		}
	}
	if err := a.st.Activities.Delete(r.Context(), ac.ID); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
