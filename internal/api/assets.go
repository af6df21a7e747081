package api

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jkov/photark/internal/apperr"
	"github.com/jkov/photark/internal/domain"
	"github.com/jkov/photark/internal/ingest"
	"github.com/jkov/photark/internal/retrieve"
)

// uploadFormMemory is the in-memory threshold for multipart parsing;
// larger parts spill to temp files.
const uploadFormMemory = 32 << 20

func (a *API) handleUploadAsset(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	if p.IsSharedLink() && !p.SharedLink.AllowUpload {
		fail(w, r, apperr.Forbiddenf("link does not allow uploads"))
		return
	}
	if p.APIKey != nil && !domain.KeyGrants(p.APIKey.Permissions, domain.PermAssetUpload) {
		fail(w, r, apperr.Forbiddenf("key lacks %s", domain.PermAssetUpload))
		return
	}

	if err := r.ParseMultipartForm(uploadFormMemory); err != nil {
		fail(w, r, apperr.BadRequestf("invalid multipart form: %v", err))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	in, file, err := a.uploadInput(r, p)
	if err != nil {
		fail(w, r, err)
		return
	}
	defer func() { _ = file.Close() }()
	in.Body = file

	res, err := a.ingest.Upload(r.Context(), in)
	if err != nil {
		fail(w, r, err)
		return
	}
	status := http.StatusCreated
	if res.Status == domain.UploadDuplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]string{"id": res.ID, "status": string(res.Status)})
}

// uploadInput pulls the typed fields out of the multipart form. Unknown
// fields are ignored here; the asset data part is mandatory.
func (a *API) uploadInput(r *http.Request, p *domain.Principal) (*ingest.UploadInput, multipart.File, error) {
	file, header, err := r.FormFile("assetData")
	if err != nil {
		return nil, nil, apperr.BadRequestf("missing assetData part")
	}

	form := func(key string) string { return r.FormValue(key) }
	in := &ingest.UploadInput{
		Owner:            p.User,
		ChecksumHint:     checksumHint(r),
		DeviceAssetID:    form("deviceAssetId"),
		DeviceID:         form("deviceId"),
		OriginalFileName: form("fileName"),
		ContentType:      header.Header.Get("Content-Type"),
	}
	if in.OriginalFileName == "" {
		in.OriginalFileName = header.Filename
	}
	if in.DeviceAssetID == "" || in.DeviceID == "" {
		_ = file.Close()
		return nil, nil, apperr.BadRequestf("deviceAssetId and deviceId are required")
	}

	if in.FileCreatedAt, err = parseFormTime(form("fileCreatedAt")); err != nil {
		_ = file.Close()
		return nil, nil, err
	}
	if in.FileModifiedAt, err = parseFormTime(form("fileModifiedAt")); err != nil {
		_ = file.Close()
		return nil, nil, err
	}
	if v := form("localDateTime"); v != "" {
		if in.LocalDateTime, err = parseFormTime(v); err != nil {
			_ = file.Close()
			return nil, nil, err
		}
	}
	if v := form("duration"); v != "" {
		in.Duration = &v
	}
	if v := form("visibility"); v != "" {
		vis := domain.AssetVisibility(v)
		if !vis.IsValid() {
			_ = file.Close()
			return nil, nil, apperr.BadRequestf("unknown visibility %q", v)
		}
		in.Visibility = vis
	}
	in.IsFavorite = form("isFavorite") == "true"
	if v := form("livePhotoVideoId"); v != "" {
		in.LivePhotoVideoID = &v
	}

	if sidecar, _, err := r.FormFile("sidecarData"); err == nil {
		data, err := io.ReadAll(io.LimitReader(sidecar, 1<<20))
		_ = sidecar.Close()
		if err == nil && len(data) > 0 {
			in.Sidecar = data
		}
	}
	return in, file, nil
}

func checksumHint(r *http.Request) []byte {
	raw := r.Header.Get("x-immich-checksum")
	if raw == "" {
		return nil
	}
	sum, err := ingest.DecodeChecksum(raw)
	if err != nil {
		return nil
	}
	return sum
}

func parseFormTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, apperr.BadRequestf("missing timestamp field")
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, apperr.BadRequestf("invalid timestamp %q", v)
	}
	return t, nil
}

func (a *API) handleReplaceAsset(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	assetID := chi.URLParam(r, "id")
	if err := a.guard.Require(r.Context(), p, domain.PermAssetReplace, []string{assetID}); err != nil {
		fail(w, r, err)
		return
	}
	if err := r.ParseMultipartForm(uploadFormMemory); err != nil {
		fail(w, r, apperr.BadRequestf("invalid multipart form: %v", err))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()
	in, file, err := a.uploadInput(r, p)
	if err != nil {
		fail(w, r, err)
		return
	}
	defer func() { _ = file.Close() }()
	in.Body = file

	res, err := a.ingest.Replace(r.Context(), p.User, assetID, in)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": res.ID, "status": string(res.Status)})
}

func (a *API) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	assetID := chi.URLParam(r, "id")
	if err := a.guard.Require(r.Context(), p, domain.PermAssetRead, []string{assetID}); err != nil {
		fail(w, r, err)
		return
	}
	asset, err := a.st.Assets.GetByID(r.Context(), assetID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAssetDTO(asset))
}

type updateAssetRequest struct {
	IsFavorite       *bool    `json:"isFavorite"`
	Visibility       *string  `json:"visibility"`
	LivePhotoVideoID *string  `json:"livePhotoVideoId"`
	DateTimeOriginal *string  `json:"dateTimeOriginal"`
	Latitude         *float64 `json:"latitude"`
	Longitude        *float64 `json:"longitude"`
	Rating           *int64   `json:"rating"`
	Description      *string  `json:"description"`
}

func (req *updateAssetRequest) toMetaUpdate() (*ingest.MetaUpdate, error) {
	up := &ingest.MetaUpdate{
		IsFavorite:       req.IsFavorite,
		LivePhotoVideoID: req.LivePhotoVideoID,
		Latitude:         req.Latitude,
		Longitude:        req.Longitude,
		Rating:           req.Rating,
		Description:      req.Description,
	}
	if req.Visibility != nil {
		vis := domain.AssetVisibility(*req.Visibility)
		if !vis.IsValid() {
			return nil, apperr.BadRequestf("unknown visibility %q", *req.Visibility)
		}
		up.Visibility = &vis
	}
	if req.DateTimeOriginal != nil {
		t, err := time.Parse(time.RFC3339Nano, *req.DateTimeOriginal)
		if err != nil {
			return nil, apperr.BadRequestf("invalid dateTimeOriginal")
		}
		up.DateTimeOriginal = &t
	}
	if req.Rating != nil && (*req.Rating < -1 || *req.Rating > 5) {
		return nil, apperr.BadRequestf("rating out of range")
	}
	return up, nil
}

func (a *API) handleUpdateAsset(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	assetID := chi.URLParam(r, "id")
	if err := a.guard.Require(r.Context(), p, domain.PermAssetUpdate, []string{assetID}); err != nil {
		fail(w, r, err)
		return
	}
	var req updateAssetRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	up, err := req.toMetaUpdate()
	if err != nil {
		fail(w, r, err)
		return
	}
	asset, err := a.ingest.UpdateAsset(r.Context(), assetID, up)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAssetDTO(asset))
}

func (a *API) handleBulkUpdateAssets(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	var req struct {
		IDs []string `json:"ids"`
		updateAssetRequest
		DateTimeRelative *int    `json:"dateTimeRelative"`
		TimeZone         *string `json:"timeZone"`
	}
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if len(req.IDs) == 0 {
		fail(w, r, apperr.BadRequestf("ids is required"))
		return
	}
	if err := a.guard.Require(r.Context(), p, domain.PermAssetUpdate, req.IDs); err != nil {
		fail(w, r, err)
		return
	}
	up, err := req.toMetaUpdate()
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := a.ingest.UpdateAssets(r.Context(), req.IDs, up, req.DateTimeRelative, req.TimeZone); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleDeleteAssets(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	var req struct {
		IDs   []string `json:"ids"`
		Force bool     `json:"force"`
	}
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if len(req.IDs) == 0 {
		fail(w, r, apperr.BadRequestf("ids is required"))
		return
	}
	if err := a.guard.Require(r.Context(), p, domain.PermAssetDelete, req.IDs); err != nil {
		fail(w, r, err)
		return
	}
	if err := a.trash.Delete(r.Context(), p.UserID(), req.IDs, req.Force); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleAssetsExist(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	var req struct {
		DeviceID       string   `json:"deviceId"`
		DeviceAssetIDs []string `json:"deviceAssetIds"`
	}
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	existing, err := a.ingest.Exists(r.Context(), p.UserID(), req.DeviceID, req.DeviceAssetIDs)
	if err != nil {
		fail(w, r, err)
		return
	}
	if existing == nil {
		existing = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"existingIds": existing})
}

func (a *API) handleBulkUploadCheck(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	var req struct {
		Assets []struct {
			ID       string `json:"id"`
			Checksum string `json:"checksum"`
		} `json:"assets"`
	}
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	checksums := make([]string, 0, len(req.Assets))
	for _, in := range req.Assets {
		checksums = append(checksums, in.Checksum)
	}
	results, err := a.ingest.BulkUploadCheck(r.Context(), p.UserID(), checksums)
	if err != nil {
		fail(w, r, err)
		return
	}

	type checkDTO struct {
		ID        string  `json:"id"`
		Action    string  `json:"action"`
		Reason    *string `json:"reason,omitempty"`
		AssetID   *string `json:"assetId,omitempty"`
		IsTrashed *bool   `json:"isTrashed,omitempty"`
	}
	out := make([]checkDTO, 0, len(results))
	for i, res := range results {
		d := checkDTO{ID: req.Assets[i].ID, Action: "accept"}
		if !res.Accept {
			reason := "duplicate"
			d.Action = "reject"
			d.Reason = &reason
			d.AssetID = &results[i].AssetID
			d.IsTrashed = &results[i].IsTrashed
		}
		out = append(out, d)
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": out})
}

func (a *API) handleAssetStatistics(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	q := r.URL.Query()
	var isFavorite *bool
	if v := q.Get("isFavorite"); v != "" {
		b := v == "true"
		isFavorite = &b
	}
	var visibility *domain.AssetVisibility
	if v := q.Get("visibility"); v != "" {
		vis := domain.AssetVisibility(v)
		if !vis.IsValid() {
			fail(w, r, apperr.BadRequestf("unknown visibility %q", v))
			return
		}
		visibility = &vis
	}
	stats, err := a.st.Assets.Stats(r.Context(), p.UserID(), isFavorite, visibility, q.Get("isTrashed") == "true")
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{
		"images": stats.Images,
		"videos": stats.Videos,
		"total":  stats.Total,
	})
}

func (a *API) handleRandomAssets(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	count := 1
	if v := r.URL.Query().Get("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			fail(w, r, apperr.BadRequestf("invalid count"))
			return
		}
		count = n
	}
	assets, err := a.view.Random(r.Context(), p.UserID(), count)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAssetDTOs(assets))
}

func (a *API) handleAssetsByDevice(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	ids, err := a.st.Assets.ListByDevice(r.Context(), p.UserID(), chi.URLParam(r, "deviceId"))
	if err != nil {
		fail(w, r, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, ids)
}

// --- binary serving ---

func (a *API) handleDownloadOriginal(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	assetID := chi.URLParam(r, "id")
	if err := a.guard.Require(r.Context(), p, domain.PermAssetDownload, []string{assetID}); err != nil {
		fail(w, r, err)
		return
	}
	edited := r.URL.Query().Get("edited") == "true" || p.IsSharedLink()
	c, err := a.retrieve.Original(r.Context(), assetID, edited)
	if err != nil {
		fail(w, r, err)
		return
	}
	defer func() { _ = c.Reader.Close() }()

	w.Header().Set("Content-Type", c.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(c.Size, 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", c.FileName))
	w.Header().Set("Cache-Control", "private, max-age=86400, immutable")
	_, _ = io.Copy(w, c.Reader)
}

func (a *API) handleThumbnail(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	assetID := chi.URLParam(r, "id")
	if err := a.guard.Require(r.Context(), p, domain.PermAssetView, []string{assetID}); err != nil {
		fail(w, r, err)
		return
	}

	size := domain.ThumbnailSize(r.URL.Query().Get("size"))
	if size == "" {
		size = domain.SizeThumbnail
	}
	if size == "original" {
		fail(w, r, apperr.BadRequestf("size=original is not served here"))
		return
	}
	edited := r.URL.Query().Get("edited") == "true"

	dec, err := a.retrieve.Thumbnail(r.Context(), assetID, size, edited)
	if err != nil {
		fail(w, r, err)
		return
	}
	switch {
	case dec.RedirectOriginal:
		q := r.URL.Query()
		q.Del("size")
		target := "/api/assets/" + assetID + "/original"
		if enc := q.Encode(); enc != "" {
			target += "?" + enc
		}
		http.Redirect(w, r, target, http.StatusFound)
	case dec.RedirectPreview:
		q := r.URL.Query()
		q.Set("size", string(domain.SizePreview))
		http.Redirect(w, r, r.URL.Path+"?"+q.Encode(), http.StatusFound)
	default:
		defer func() { _ = dec.Content.Reader.Close() }()
		w.Header().Set("Content-Type", dec.Content.ContentType)
		w.Header().Set("Content-Length", strconv.FormatInt(dec.Content.Size, 10))
		w.Header().Set("Cache-Control", "private, max-age=86400, immutable")
		_, _ = io.Copy(w, dec.Content.Reader)
	}
}

func (a *API) handleVideoPlayback(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	assetID := chi.URLParam(r, "id")
	if err := a.guard.Require(r.Context(), p, domain.PermAssetView, []string{assetID}); err != nil {
		fail(w, r, err)
		return
	}
	c, err := a.retrieve.Video(r.Context(), assetID)
	if err != nil {
		fail(w, r, err)
		return
	}
	defer func() { _ = c.Reader.Close() }()

	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", c.ContentType)

	header := r.Header.Get("Range")
	if header == "" {
		w.Header().Set("Content-Length", strconv.FormatInt(c.Size, 10))
		_, _ = io.Copy(w, c.Reader)
		return
	}

	rng, err := retrieve.ParseRange(header, c.Size)
	if err != nil {
		w.Header().Set("Content-Range", retrieve.UnsatisfiableContentRange(c.Size))
		problem(w, r, http.StatusRequestedRangeNotSatisfiable, "bad_range", err.Error())
		return
	}
	if _, err := c.Reader.Seek(rng.Start, io.SeekStart); err != nil {
		fail(w, r, err)
		return
	}
	w.Header().Set("Content-Range", rng.ContentRange())
	w.Header().Set("Content-Length", strconv.FormatInt(rng.Length(), 10))
	w.WriteHeader(http.StatusPartialContent)
	_, _ = io.CopyN(w, c.Reader, rng.Length())
}

// --- asset metadata ---

func (a *API) handleListAssetMetadata(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	assetID := chi.URLParam(r, "id")
	if err := a.guard.Require(r.Context(), p, domain.PermAssetRead, []string{assetID}); err != nil {
		fail(w, r, err)
		return
	}
	items, err := a.st.Metadata.ListAsset(r.Context(), assetID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *API) handlePutAssetMetadata(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	assetID := chi.URLParam(r, "id")
	if err := a.guard.Require(r.Context(), p, domain.PermAssetUpdate, []string{assetID}); err != nil {
		fail(w, r, err)
		return
	}
	var req struct {
		Items []struct {
			Key   string          `json:"key"`
			Value json.RawMessage `json:"value"`
		} `json:"items"`
	}
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	for _, item := range req.Items {
		if item.Key == "" {
			fail(w, r, apperr.BadRequestf("metadata key must not be empty"))
			return
		}
		if err := a.st.Metadata.UpsertAsset(r.Context(), assetID, item.Key, string(item.Value)); err != nil {
			fail(w, r, err)
			return
		}
	}
	items, err := a.st.Metadata.ListAsset(r.Context(), assetID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *API) handleGetAssetMetadata(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	assetID := chi.URLParam(r, "id")
	if err := a.guard.Require(r.Context(), p, domain.PermAssetRead, []string{assetID}); err != nil {
		fail(w, r, err)
		return
	}
	key := chi.URLParam(r, "key")
	value, err := a.st.Metadata.GetAsset(r.Context(), assetID, key)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"key": key, "value": json.RawMessage(value)})
}

func (a *API) handleDeleteAssetMetadata(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	assetID := chi.URLParam(r, "id")
	if err := a.guard.Require(r.Context(), p, domain.PermAssetUpdate, []string{assetID}); err != nil {
		fail(w, r, err)
		return
	}
	if err := a.st.Metadata.DeleteAsset(r.Context(), p.UserID(), assetID, chi.URLParam(r, "key")); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
