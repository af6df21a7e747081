package syncer

import (
	"context"
	"time"

	"github.com/jkov/photark/internal/apperr"
	"github.com/jkov/photark/internal/store"
)

const (
	// deltaMaxAge is how far back a delta request may reach before the
	// client is told to run a full sync instead.
	deltaMaxAge = 100 * 24 * time.Hour
	// deltaLimit caps a delta page; a truncated page also forces a full
	// sync, since a partial delta cannot be applied consistently.
	deltaLimit = 10_000
)

// FullSyncRequest pages assets by primary key for the pre-streaming
// protocol.
type FullSyncRequest struct {
	LastID       *string   `json:"lastId"`
	Limit        int       `json:"limit"`
	UpdatedUntil time.Time `json:"updatedUntil"`
	UserID       *string   `json:"userId"`
}

// FullSync returns one page of the owner's assets ordered by id. The
// caller is responsible for having authorized UserID when it is not the
// session user.
func (s *Service) FullSync(ctx context.Context, selfID string, req FullSyncRequest) ([]store.SyncAssetV1, error) {
	if req.Limit <= 0 {
		return nil, apperr.BadRequestf("limit must be positive")
	}
	ownerID := selfID
	if req.UserID != nil {
		ownerID = *req.UserID
	}
	lastID := ""
	if req.LastID != nil {
		lastID = *req.LastID
	}
	out, err := s.st.Sync.LegacyFullSync(ctx, ownerID, lastID, req.UpdatedUntil, req.Limit)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []store.SyncAssetV1{}
	}
	return out, nil
}

// DeltaSyncResponse either carries the changes since updatedAfter or
// tells the client to fall back to a full sync.
type DeltaSyncResponse struct {
	NeedsFullSync bool                `json:"needsFullSync"`
	Upserted      []store.SyncAssetV1 `json:"upserted"`
	Deleted       []string            `json:"deleted"`
}

// DeltaSync computes asset changes across the given owners since
// updatedAfter. Too-old watermarks and oversized pages both degrade to
// needsFullSync.
func (s *Service) DeltaSync(ctx context.Context, selfID string, userIDs []string, updatedAfter time.Time) (*DeltaSyncResponse, error) {
	if len(userIDs) == 0 {
		userIDs = []string{selfID}
	}
	needsFull := &DeltaSyncResponse{
		NeedsFullSync: true,
		Upserted:      []store.SyncAssetV1{},
		Deleted:       []string{},
	}
	if time.Since(updatedAfter) > deltaMaxAge {
		return needsFull, nil
	}
	changed, err := s.st.Sync.LegacyDeltaChanged(ctx, selfID, userIDs, updatedAfter, deltaLimit)
	if err != nil {
		return nil, err
	}
	if len(changed) > deltaLimit {
		return needsFull, nil
	}
	deleted, err := s.st.Sync.LegacyDeltaDeleted(ctx, userIDs, updatedAfter)
	if err != nil {
		return nil, err
	}
	if changed == nil {
		changed = []store.SyncAssetV1{}
	}
	return &DeltaSyncResponse{Upserted: changed, Deleted: deleted}, nil
}
