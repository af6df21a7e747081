package api

import (
	"net/http"
	"time"

	"github.com/jkov/photark/internal/apperr"
	"github.com/jkov/photark/internal/domain"
	"github.com/jkov/photark/internal/view"
)

// timelineOptions parses the shared bucket query parameters.
func (a *API) timelineOptions(r *http.Request) (view.TimelineOptions, error) {
	p := principalFrom(r.Context())
	q := r.URL.Query()

	opts := view.TimelineOptions{
		UserIDs: []string{p.UserID()},
		Order:   domain.SortDesc,
	}
	if q.Get("order") == "asc" {
		opts.Order = domain.SortAsc
	}
	if v := q.Get("isFavorite"); v != "" {
		b := v == "true"
		opts.IsFavorite = &b
	}
	opts.IsTrashed = q.Get("isTrashed") == "true"
	if v := q.Get("visibility"); v != "" {
		vis := domain.AssetVisibility(v)
		if !vis.IsValid() {
			return opts, apperr.BadRequestf("unknown visibility %q", v)
		}
		if vis == domain.VisibilityLocked && !p.Elevated(time.Now().UTC()) {
			return opts, apperr.Forbiddenf("locked view requires pin unlock")
		}
		opts.Visibility = vis
	}
	if v := q.Get("albumId"); v != "" {
		if err := a.guard.Require(r.Context(), p, domain.PermAlbumRead, []string{v}); err != nil {
			return opts, err
		}
		opts.AlbumID = &v
		// Album buckets span every member's assets.
		opts.UserIDs = nil
	}
	if v := q.Get("tagId"); v != "" {
		opts.TagID = &v
	}
	if q.Get("withPartners") == "true" {
		partners, err := a.st.Partners.ListSharedWith(r.Context(), p.UserID())
		if err != nil {
			return opts, err
		}
		for _, pt := range partners {
			if pt.InTimeline {
				opts.UserIDs = append(opts.UserIDs, pt.SharedByID)
			}
		}
	}
	return opts, nil
}

func (a *API) handleTimeBuckets(w http.ResponseWriter, r *http.Request) {
	opts, err := a.timelineOptions(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	buckets, err := a.view.Buckets(r.Context(), opts)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, buckets)
}

func (a *API) handleTimeBucket(w http.ResponseWriter, r *http.Request) {
	bucket := r.URL.Query().Get("timeBucket")
	if bucket == "" {
		fail(w, r, apperr.BadRequestf("timeBucket is required"))
		return
	}
	opts, err := a.timelineOptions(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	assets, err := a.view.Bucket(r.Context(), opts, bucket)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, assets)
}

func (a *API) handleUniquePaths(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	paths, err := a.view.UniqueOriginalPaths(r.Context(), p.UserID())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, paths)
}

func (a *API) handleFolderAssets(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	path := r.URL.Query().Get("path")
	if path == "" {
		fail(w, r, apperr.BadRequestf("path is required"))
		return
	}
	assets, err := a.view.AssetsByOriginalPath(r.Context(), p.UserID(), path)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAssetDTOs(assets))
}

// --- trash ---

func (a *API) handleEmptyTrash(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	count, err := a.trash.Empty(r.Context(), p.UserID())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": count})
}

func (a *API) handleRestoreTrash(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	count, err := a.trash.Restore(r.Context(), p.UserID(), nil)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": count})
}

func (a *API) handleRestoreAssets(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if len(req.IDs) == 0 {
		fail(w, r, apperr.BadRequestf("ids is required"))
		return
	}
	count, err := a.trash.Restore(r.Context(), p.UserID(), req.IDs)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": count})
}
