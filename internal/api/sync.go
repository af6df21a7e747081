package api

import (
	"net/http"
	"time"

	"github.com/jkov/photark/internal/apperr"
	"github.com/jkov/photark/internal/domain"
	"github.com/jkov/photark/internal/syncer"
)

func (a *API) handleSyncStream(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	if p.Session == nil {
		fail(w, r, apperr.BadRequestf("sync needs a session credential"))
		return
	}
	var req struct {
		Types []string `json:"types"`
		Reset bool     `json:"reset"`
	}
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	types := make([]domain.SyncRequestType, 0, len(req.Types))
	for _, t := range req.Types {
		rt := domain.SyncRequestType(t)
		if !rt.IsValid() {
			fail(w, r, apperr.BadRequestf("unknown sync type %q", t))
			return
		}
		types = append(types, rt)
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	if err := a.syncer.Stream(r.Context(), w, p.Session, types, req.Reset); err != nil {
		// Headers are gone; all we can do is log and drop the stream.
		a.log.Error().Err(err).Str("session", p.Session.ID).Msg("sync stream aborted")
	}
}

func (a *API) handleGetAcks(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	if p.Session == nil {
		fail(w, r, apperr.BadRequestf("sync needs a session credential"))
		return
	}
	cp, err := a.syncer.Checkpoints(r.Context(), p.Session.ID)
	if err != nil {
		fail(w, r, err)
		return
	}
	out := make([]syncer.Ack, 0, len(cp))
	for typ, ack := range cp {
		out = append(out, syncer.Ack{Type: typ, UpdateID: ack})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handlePostAcks(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	if p.Session == nil {
		fail(w, r, apperr.BadRequestf("sync needs a session credential"))
		return
	}
	var req struct {
		Acks []syncer.Ack `json:"acks"`
	}
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if err := a.syncer.Acknowledge(r.Context(), p.Session.ID, req.Acks); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleDeleteAcks(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	if p.Session == nil {
		fail(w, r, apperr.BadRequestf("sync needs a session credential"))
		return
	}
	if err := a.syncer.ClearCheckpoints(r.Context(), p.Session.ID); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleFullSync(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	var req syncer.FullSyncRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	// A foreign userId must be a partner of the caller.
	if req.UserID != nil && *req.UserID != p.UserID() {
		if _, err := a.st.Partners.Get(r.Context(), *req.UserID, p.UserID()); err != nil {
			fail(w, r, apperr.Forbiddenf("not a partner of %s", *req.UserID))
			return
		}
	}
	out, err := a.syncer.FullSync(r.Context(), p.UserID(), req)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleDeltaSync(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	var req struct {
		UserIDs      []string  `json:"userIds"`
		UpdatedAfter time.Time `json:"updatedAfter"`
	}
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	for _, uid := range req.UserIDs {
		if uid == p.UserID() {
			continue
		}
		if _, err := a.st.Partners.Get(r.Context(), uid, p.UserID()); err != nil {
			fail(w, r, apperr.Forbiddenf("not a partner of %s", uid))
			return
		}
	}
	out, err := a.syncer.DeltaSync(r.Context(), p.UserID(), req.UserIDs, req.UpdatedAfter)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
