package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jkov/photark/internal/apperr"
	"github.com/jkov/photark/internal/domain"
	"github.com/jkov/photark/internal/id"
)

// --- albums ---

func (a *API) handleCreateAlbum(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	var req struct {
		AlbumName   string   `json:"albumName"`
		Description string   `json:"description"`
		AssetIDs    []string `json:"assetIds"`
	}
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if req.AlbumName == "" {
		fail(w, r, apperr.BadRequestf("albumName is required"))
		return
	}
	now := time.Now().UTC()
	album := &domain.Album{
		ID:                id.New(),
		OwnerID:           p.UserID(),
		Name:              req.AlbumName,
		Description:       req.Description,
		IsActivityEnabled: true,
		Order:             domain.SortDesc,
		CreatedAt:         now,
		UpdatedAt:         now,
		UpdateID:          id.New(),
	}
	if err := a.st.Albums.Create(r.Context(), album); err != nil {
		fail(w, r, err)
		return
	}
	if len(req.AssetIDs) > 0 {
		allowed, err := a.guard.Check(r.Context(), p, domain.PermAssetRead, req.AssetIDs)
		if err != nil {
			fail(w, r, err)
			return
		}
		if _, err := a.st.Albums.AddAssets(r.Context(), album.ID, allowed); err != nil {
			fail(w, r, err)
			return
		}
	}
	a.writeAlbum(w, r, album, http.StatusCreated)
}

func (a *API) writeAlbum(w http.ResponseWriter, r *http.Request, album *domain.Album, status int) {
	users, err := a.st.Albums.Users(r.Context(), album.ID)
	if err != nil {
		fail(w, r, err)
		return
	}
	assetIDs, err := a.st.Albums.AssetIDs(r.Context(), album.ID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, status, toAlbumDTO(album, users, len(assetIDs)))
}

func (a *API) handleListAlbums(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	albums, err := a.st.Albums.ListVisible(r.Context(), p.UserID())
	if err != nil {
		fail(w, r, err)
		return
	}
	out := make([]albumDTO, 0, len(albums))
	for _, album := range albums {
		users, err := a.st.Albums.Users(r.Context(), album.ID)
		if err != nil {
			fail(w, r, err)
			return
		}
		assetIDs, err := a.st.Albums.AssetIDs(r.Context(), album.ID)
		if err != nil {
			fail(w, r, err)
			return
		}
		out = append(out, toAlbumDTO(album, users, len(assetIDs)))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleGetAlbum(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	albumID := chi.URLParam(r, "id")
	if err := a.guard.Require(r.Context(), p, domain.PermAlbumRead, []string{albumID}); err != nil {
		fail(w, r, err)
		return
	}
	album, err := a.st.Albums.GetByID(r.Context(), albumID)
	if err != nil {
		fail(w, r, err)
		return
	}
	a.writeAlbum(w, r, album, http.StatusOK)
}

func (a *API) handleUpdateAlbum(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	albumID := chi.URLParam(r, "id")
	if err := a.guard.Require(r.Context(), p, domain.PermAlbumUpdate, []string{albumID}); err != nil {
		fail(w, r, err)
		return
	}
	var req struct {
		AlbumName         *string `json:"albumName"`
		Description       *string `json:"description"`
		ThumbnailAssetID  *string `json:"albumThumbnailAssetId"`
		IsActivityEnabled *bool   `json:"isActivityEnabled"`
		Order             *string `json:"order"`
	}
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	album, err := a.st.Albums.GetByID(r.Context(), albumID)
	if err != nil {
		fail(w, r, err)
		return
	}
	if req.AlbumName != nil {
		album.Name = *req.AlbumName
	}
	if req.Description != nil {
		album.Description = *req.Description
	}
	if req.ThumbnailAssetID != nil {
		// The thumbnail must point at a member of the album.
		ok, err := a.st.Albums.ContainsAsset(r.Context(), albumID, *req.ThumbnailAssetID)
		if err != nil {
			fail(w, r, err)
			return
		}
		if !ok {
			fail(w, r, apperr.BadRequestf("thumbnail asset is not in the album"))
			return
		}
		album.ThumbnailAssetID = req.ThumbnailAssetID
	}
	if req.IsActivityEnabled != nil {
		album.IsActivityEnabled = *req.IsActivityEnabled
	}
	if req.Order != nil {
		order := domain.SortOrder(*req.Order)
		if order != domain.SortAsc && order != domain.SortDesc {
			fail(w, r, apperr.BadRequestf("unknown order %q", *req.Order))
			return
		}
		album.Order = order
	}
	if err := a.st.Albums.Update(r.Context(), album); err != nil {
		fail(w, r, err)
		return
	}
	a.writeAlbum(w, r, album, http.StatusOK)
}

func (a *API) handleDeleteAlbum(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	albumID := chi.URLParam(r, "id")
	if err := a.guard.Require(r.Context(), p, domain.PermAlbumDelete, []string{albumID}); err != nil {
		fail(w, r, err)
		return
	}
	if err := a.st.Albums.Delete(r.Context(), p.UserID(), albumID); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type bulkIDsRequest struct {
	IDs []string `json:"ids"`
}

// bulkIDResult is the per-id outcome for membership edits.
type bulkIDResult struct {
	ID      string  `json:"id"`
	Success bool    `json:"success"`
	Error   *string `json:"error,omitempty"`
}

func bulkResults(requested, succeeded []string, reason string) []bulkIDResult {
	ok := make(map[string]bool, len(succeeded))
	for _, v := range succeeded {
		ok[v] = true
	}
	out := make([]bulkIDResult, 0, len(requested))
	for _, v := range requested {
		res := bulkIDResult{ID: v, Success: ok[v]}
		if !res.Success {
			r := reason
			res.Error = &r
		}
		out = append(out, res)
	}
	return out
}

func (a *API) handleAlbumAddAssets(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	albumID := chi.URLParam(r, "id")
	if err := a.guard.Require(r.Context(), p, domain.PermAlbumUpdate, []string{albumID}); err != nil {
		fail(w, r, err)
		return
	}
	var req bulkIDsRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	allowed, err := a.guard.Check(r.Context(), p, domain.PermAssetRead, req.IDs)
	if err != nil {
		fail(w, r, err)
		return
	}
	added, err := a.st.Albums.AddAssets(r.Context(), albumID, allowed)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bulkResults(req.IDs, added, "not added"))
}

func (a *API) handleAlbumRemoveAssets(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	albumID := chi.URLParam(r, "id")
	if err := a.guard.Require(r.Context(), p, domain.PermAlbumUpdate, []string{albumID}); err != nil {
		fail(w, r, err)
		return
	}
	var req bulkIDsRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	removed, err := a.st.Albums.RemoveAssets(r.Context(), albumID, req.IDs)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bulkResults(req.IDs, removed, "not in album"))
}

func (a *API) handleAlbumSetUser(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	albumID := chi.URLParam(r, "id")
	userID := chi.URLParam(r, "userId")
	if err := a.guard.Require(r.Context(), p, domain.PermAlbumShare, []string{albumID}); err != nil {
		fail(w, r, err)
		return
	}
	var req struct {
		Role string `json:"role"`
	}
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	role := domain.AlbumUserRole(req.Role)
	if role != domain.RoleEditor && role != domain.RoleViewer {
		fail(w, r, apperr.BadRequestf("unknown role %q", req.Role))
		return
	}
	if _, err := a.st.Users.GetByID(r.Context(), userID); err != nil {
		fail(w, r, err)
		return
	}
	if err := a.st.Albums.SetUser(r.Context(), albumID, userID, role); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (a *API) handleAlbumRemoveUser(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	albumID := chi.URLParam(r, "id")
	userID := chi.URLParam(r, "userId")
	if userID == "me" {
		userID = p.UserID()
	}
	// A member may always leave; removing anyone else needs share rights.
	if userID != p.UserID() {
		if err := a.guard.Require(r.Context(), p, domain.PermAlbumShare, []string{albumID}); err != nil {
			fail(w, r, err)
			return
		}
	}
	if err := a.st.Albums.RemoveUser(r.Context(), albumID, userID); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- tags ---

func (a *API) handleUpsertTag(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	var req struct {
		Name  string  `json:"name"`
		Color *string `json:"color"`
	}
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if req.Name == "" {
		fail(w, r, apperr.BadRequestf("name is required"))
		return
	}
	tag, err := a.st.Tags.Upsert(r.Context(), p.UserID(), req.Name, req.Color)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTagDTO(tag))
}

func (a *API) handleListTags(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	tags, err := a.st.Tags.ListByUser(r.Context(), p.UserID())
	if err != nil {
		fail(w, r, err)
		return
	}
	out := make([]tagDTO, 0, len(tags))
	for _, t := range tags {
		out = append(out, toTagDTO(t))
	}
	writeJSON(w, http.StatusOK, out)
}

// ownTag loads a tag and enforces ownership.
func (a *API) ownTag(r *http.Request) (*domain.Tag, error) {
	p := principalFrom(r.Context())
	tag, err := a.st.Tags.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return nil, err
	}
	if tag.UserID != p.UserID() {
		return nil, apperr.NotFoundf("tag %s", tag.ID)
	}
	return tag, nil
}

func (a *API) handleGetTag(w http.ResponseWriter, r *http.Request) {
	tag, err := a.ownTag(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTagDTO(tag))
}

func (a *API) handleUpdateTag(w http.ResponseWriter, r *http.Request) {
	tag, err := a.ownTag(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	var req struct {
		Color *string `json:"color"`
	}
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if err := a.st.Tags.Update(r.Context(), tag.ID, req.Color); err != nil {
		fail(w, r, err)
		return
	}
	tag.Color = req.Color
	writeJSON(w, http.StatusOK, toTagDTO(tag))
}

func (a *API) handleDeleteTag(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	tag, err := a.ownTag(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := a.st.Tags.Delete(r.Context(), p.UserID(), tag.ID); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleTagAssets(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	tag, err := a.ownTag(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	var req bulkIDsRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	allowed, err := a.guard.Check(r.Context(), p, domain.PermAssetRead, req.IDs)
	if err != nil {
		fail(w, r, err)
		return
	}
	added, err := a.st.Tags.TagAssets(r.Context(), tag.ID, allowed)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bulkResults(req.IDs, added, "not tagged"))
}

func (a *API) handleUntagAssets(w http.ResponseWriter, r *http.Request) {
	tag, err := a.ownTag(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	var req bulkIDsRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	for _, assetID := range req.IDs {
		if err := a.st.Tags.UntagAsset(r.Context(), tag.ID, assetID); err != nil {
			fail(w, r, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleBulkTagAssets(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	var req struct {
		TagIDs   []string `json:"tagIds"`
		AssetIDs []string `json:"assetIds"`
	}
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	for _, tagID := range req.TagIDs {
		tag, err := a.st.Tags.GetByID(r.Context(), tagID)
		if err != nil {
			fail(w, r, err)
			return
		}
		if tag.UserID != p.UserID() {
			fail(w, r, apperr.NotFoundf("tag %s", tagID))
			return
		}
	}
	allowed, err := a.guard.Check(r.Context(), p, domain.PermAssetRead, req.AssetIDs)
	if err != nil {
		fail(w, r, err)
		return
	}
	count := 0
	for _, tagID := range req.TagIDs {
		added, err := a.st.Tags.TagAssets(r.Context(), tagID, allowed)
		if err != nil {
			fail(w, r, err)
			return
		}
		count += len(added)
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

// --- memories ---

func (a *API) handleCreateMemory(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	var req struct {
		Type     string   `json:"type"`
		Data     any      `json:"data"`
		MemoryAt string   `json:"memoryAt"`
		IsSaved  bool     `json:"isSaved"`
		AssetIDs []string `json:"assetIds"`
	}
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	memoryAt, err := time.Parse(time.RFC3339Nano, req.MemoryAt)
	if err != nil {
		fail(w, r, apperr.BadRequestf("invalid memoryAt"))
		return
	}
	data, err := jsonString(req.Data)
	if err != nil {
		fail(w, r, err)
		return
	}
	allowed, err := a.guard.Check(r.Context(), p, domain.PermAssetRead, req.AssetIDs)
	if err != nil {
		fail(w, r, err)
		return
	}
	now := time.Now().UTC()
	m := &domain.Memory{
		ID:        id.New(),
		OwnerID:   p.UserID(),
		Type:      req.Type,
		Data:      data,
		IsSaved:   req.IsSaved,
		MemoryAt:  memoryAt,
		CreatedAt: now,
		UpdatedAt: now,
		UpdateID:  id.New(),
	}
	if err := a.st.Memories.Create(r.Context(), m, allowed); err != nil {
		fail(w, r, err)
		return
	}
	a.writeMemory(w, r, m, http.StatusCreated)
}

func (a *API) writeMemory(w http.ResponseWriter, r *http.Request, m *domain.Memory, status int) {
	assetIDs, err := a.st.Memories.AssetIDs(r.Context(), m.ID)
	if err != nil {
		fail(w, r, err)
		return
	}
	var data any
	if err := json.Unmarshal([]byte(m.Data), &data); err != nil {
		data = m.Data
	}
	writeJSON(w, status, memoryDTO{
		ID:       m.ID,
		OwnerID:  m.OwnerID,
		Type:     m.Type,
		Data:     data,
		IsSaved:  m.IsSaved,
		MemoryAt: m.MemoryAt,
		SeenAt:   m.SeenAt,
		AssetIDs: assetIDs,
	})
}

// ownMemory loads a memory and enforces ownership.
func (a *API) ownMemory(r *http.Request) (*domain.Memory, error) {
	p := principalFrom(r.Context())
	m, err := a.st.Memories.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return nil, err
	}
	if m.OwnerID != p.UserID() {
		return nil, apperr.NotFoundf("memory %s", m.ID)
	}
	return m, nil
}

func (a *API) handleListMemories(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	memories, err := a.st.Memories.ListByOwner(r.Context(), p.UserID())
	if err != nil {
		fail(w, r, err)
		return
	}
	out := make([]memoryDTO, 0, len(memories))
	for _, m := range memories {
		assetIDs, err := a.st.Memories.AssetIDs(r.Context(), m.ID)
		if err != nil {
			fail(w, r, err)
			return
		}
		var data any
		if err := json.Unmarshal([]byte(m.Data), &data); err != nil {
			data = m.Data
		}
		out = append(out, memoryDTO{
			ID: m.ID, OwnerID: m.OwnerID, Type: m.Type, Data: data,
			IsSaved: m.IsSaved, MemoryAt: m.MemoryAt, SeenAt: m.SeenAt, AssetIDs: assetIDs,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleGetMemory(w http.ResponseWriter, r *http.Request) {
	m, err := a.ownMemory(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	a.writeMemory(w, r, m, http.StatusOK)
}

func (a *API) handleUpdateMemory(w http.ResponseWriter, r *http.Request) {
	m, err := a.ownMemory(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	var req struct {
		IsSaved  *bool   `json:"isSaved"`
		MemoryAt *string `json:"memoryAt"`
		SeenAt   *string `json:"seenAt"`
	}
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if req.IsSaved != nil {
		m.IsSaved = *req.IsSaved
	}
	if req.MemoryAt != nil {
		t, err := time.Parse(time.RFC3339Nano, *req.MemoryAt)
		if err != nil {
			fail(w, r, apperr.BadRequestf("invalid memoryAt"))
			return
		}
		m.MemoryAt = t
	}
	if req.SeenAt != nil {
		t, err := time.Parse(time.RFC3339Nano, *req.SeenAt)
		if err != nil {
			fail(w, r, apperr.BadRequestf("invalid seenAt"))
			return
		}
		m.SeenAt = &t
	}
	if err := a.st.Memories.Update(r.Context(), m); err != nil {
		fail(w, r, err)
		return
	}
	a.writeMemory(w, r, m, http.StatusOK)
}

func (a *API) handleDeleteMemory(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	m, err := a.ownMemory(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := a.st.Memories.Delete(r.Context(), p.UserID(), m.ID); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleMemoryAddAssets(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	m, err := a.ownMemory(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	var req bulkIDsRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	allowed, err := a.guard.Check(r.Context(), p, domain.PermAssetRead, req.IDs)
	if err != nil {
		fail(w, r, err)
		return
	}
	added, err := a.st.Memories.AddAssets(r.Context(), m.ID, allowed)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bulkResults(req.IDs, added, "not added"))
}

func (a *API) handleMemoryRemoveAssets(w http.ResponseWriter, r *http.Request) {
	m, err := a.ownMemory(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	var req bulkIDsRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	removed, err := a.st.Memories.RemoveAssets(r.Context(), m.ID, req.IDs)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bulkResults(req.IDs, removed, "not in memory"))
}

// --- stacks ---

func (a *API) handleCreateStack(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	var req struct {
		AssetIDs []string `json:"assetIds"`
	}
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if err := a.guard.Require(r.Context(), p, domain.PermAssetUpdate, req.AssetIDs); err != nil {
		fail(w, r, err)
		return
	}
	stack, err := a.st.Stacks.Create(r.Context(), p.UserID(), req.AssetIDs)
	if err != nil {
		fail(w, r, err)
		return
	}
	a.writeStack(w, r, stack, http.StatusCreated)
}

func (a *API) writeStack(w http.ResponseWriter, r *http.Request, stack *domain.Stack, status int) {
	members, err := a.st.Stacks.MemberIDs(r.Context(), stack.ID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, status, stackDTO{
		ID:             stack.ID,
		OwnerID:        stack.OwnerID,
		PrimaryAssetID: stack.PrimaryAssetID,
		AssetIDs:       members,
	})
}

// ownStack loads a stack and enforces ownership.
func (a *API) ownStack(r *http.Request) (*domain.Stack, error) {
	p := principalFrom(r.Context())
	stack, err := a.st.Stacks.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return nil, err
	}
	if stack.OwnerID != p.UserID() {
		return nil, apperr.NotFoundf("stack %s", stack.ID)
	}
	return stack, nil
}

func (a *API) handleListStacks(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	stacks, err := a.st.Stacks.ListByOwner(r.Context(), p.UserID())
	if err != nil {
		fail(w, r, err)
		return
	}
	out := make([]stackDTO, 0, len(stacks))
	for _, stack := range stacks {
		members, err := a.st.Stacks.MemberIDs(r.Context(), stack.ID)
		if err != nil {
			fail(w, r, err)
			return
		}
		out = append(out, stackDTO{
			ID: stack.ID, OwnerID: stack.OwnerID,
			PrimaryAssetID: stack.PrimaryAssetID, AssetIDs: members,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleGetStack(w http.ResponseWriter, r *http.Request) {
	stack, err := a.ownStack(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	a.writeStack(w, r, stack, http.StatusOK)
}

func (a *API) handleUpdateStack(w http.ResponseWriter, r *http.Request) {
	stack, err := a.ownStack(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	var req struct {
		PrimaryAssetID string `json:"primaryAssetId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if err := a.st.Stacks.SetPrimary(r.Context(), stack.ID, req.PrimaryAssetID); err != nil {
		fail(w, r, err)
		return
	}
	stack.PrimaryAssetID = req.PrimaryAssetID
	a.writeStack(w, r, stack, http.StatusOK)
}

func (a *API) handleDeleteStack(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	stack, err := a.ownStack(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := a.st.Stacks.Delete(r.Context(), p.UserID(), stack.ID); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleStackRemoveAsset(w http.ResponseWriter, r *http.Request) {
	stack, err := a.ownStack(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := a.st.Stacks.RemoveAsset(r.Context(), stack.ID, chi.URLParam(r, "assetId")); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func jsonString(v any) (string, error) {
	if v == nil {
		return "{}", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", apperr.BadRequestf("invalid data payload")
	}
	return string(b), nil
}
