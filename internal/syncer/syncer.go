// Package syncer drives the incremental replication stream for mobile
// clients: ordered per-type change scans, per-session ack checkpoints,
// and the reset protocol that forces a stale client to start over.
package syncer

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/jkov/photark/internal/apperr"
	"github.com/jkov/photark/internal/domain"
	"github.com/jkov/photark/internal/id"
	"github.com/jkov/photark/internal/log"
	"github.com/jkov/photark/internal/metrics"
	"github.com/jkov/photark/internal/store"
)

const (
	// page is the scan window; a type with more pending rows than this
	// loops until drained before the stream moves on.
	page = 1000
	// staleAfter forces a full reset when the last completed sync is
	// older than this.
	staleAfter = 30 * 24 * time.Hour
)

type Service struct {
	st  *store.Store
	log zerolog.Logger
}

func New(st *store.Store) *Service {
	return &Service{st: st, log: log.WithComponent("sync")}
}

// Line is one ndjson stream element. IDs holds the single watermark the
// client echoes back as its ack.
type Line struct {
	Type domain.SyncEntityType `json:"type"`
	IDs  []string              `json:"ids"`
	Data any                   `json:"data"`
}

type flusher interface{ Flush() }

// lineWriter emits one JSON object per line and flushes through to the
// client after each, so a slow scan still delivers progress.
type lineWriter struct {
	w   io.Writer
	buf *bufio.Writer
	fl  flusher
}

func newLineWriter(w io.Writer) *lineWriter {
	lw := &lineWriter{w: w, buf: bufio.NewWriter(w)}
	if f, ok := w.(flusher); ok {
		lw.fl = f
	}
	return lw
}

func (lw *lineWriter) write(typ domain.SyncEntityType, ack string, data any) error {
	b, err := json.Marshal(Line{Type: typ, IDs: []string{ack}, Data: data})
	if err != nil {
		return err
	}
	if _, err := lw.buf.Write(append(b, '\n')); err != nil {
		return err
	}
	if err := lw.buf.Flush(); err != nil {
		return err
	}
	if lw.fl != nil {
		lw.fl.Flush()
	}
	metrics.SyncLinesTotal.WithLabelValues(string(typ)).Inc()
	return nil
}

// Stream runs the change protocol for one session and writes ndjson to w.
//
// reset=true marks the session pending-reset first; a pending session
// receives exactly one SyncResetV1 line and nothing else until the
// client acknowledges it.
func (s *Service) Stream(ctx context.Context, w io.Writer, sess *domain.Session, types []domain.SyncRequestType, reset bool) error {
	metrics.SyncStreamsActive.Inc()
	defer metrics.SyncStreamsActive.Dec()

	lw := newLineWriter(w)

	if reset && !sess.PendingSyncReset {
		if err := s.st.Sessions.SetPendingSyncReset(ctx, sess.ID, true); err != nil {
			return err
		}
		if err := s.st.Checkpoints.DeleteBySession(ctx, sess.ID); err != nil {
			return err
		}
		sess.PendingSyncReset = true
	}
	if sess.PendingSyncReset {
		metrics.SyncResetsTotal.Inc()
		return lw.write(domain.SyncResetV1, "reset", struct{}{})
	}

	cp, err := s.st.Checkpoints.Map(ctx, sess.ID)
	if err != nil {
		return err
	}
	if stale(cp) {
		s.log.Info().Str("session", sess.ID).Msg("checkpoint stale, forcing reset")
		if err := s.st.Sessions.SetPendingSyncReset(ctx, sess.ID, true); err != nil {
			return err
		}
		metrics.SyncResetsTotal.Inc()
		return lw.write(domain.SyncResetV1, "reset", struct{}{})
	}

	nowID := id.New()
	userID := sess.UserID

	requested := map[domain.SyncRequestType]bool{}
	for _, t := range types {
		requested[t] = true
	}
	for _, t := range domain.SyncStreamOrder {
		if !requested[t] {
			continue
		}
		if err := s.streamType(ctx, lw, cp, userID, t); err != nil {
			return err
		}
	}
	return lw.write(domain.SyncCompleteV1, nowID, struct{}{})
}

// stale reports whether the last completed sync is too old to resume.
// The watermark's leading 48 bits are a unix-ms timestamp.
func stale(cp map[domain.SyncEntityType]string) bool {
	ack, ok := cp[domain.SyncCompleteV1]
	if !ok {
		return false
	}
	ts, err := id.TimeOf(ack)
	if err != nil {
		return false
	}
	return time.Since(ts) > staleAfter
}

type scanFn func(ctx context.Context, after string, limit int) ([]store.SyncItem, error)

// streamType emits one request type: its delete stream first, then its
// upsert stream, each drained in watermark order.
func (s *Service) streamType(ctx context.Context, lw *lineWriter, cp map[domain.SyncEntityType]string, userID string, t domain.SyncRequestType) error {
	sy := s.st.Sync
	self := func(f func(ctx context.Context, userID, after string, limit int) ([]store.SyncItem, error)) scanFn {
		return func(ctx context.Context, after string, limit int) ([]store.SyncItem, error) {
			return f(ctx, userID, after, limit)
		}
	}
	global := func(f func(ctx context.Context, after string, limit int) ([]store.SyncItem, error)) scanFn {
		return f
	}

	type stream struct {
		typ  domain.SyncEntityType
		scan scanFn
	}
	var streams []stream
	switch t {
	case domain.ReqAuthUsers:
		streams = []stream{{domain.SyncAuthUserV1, self(sy.ScanAuthUsers)}}
	case domain.ReqUsers:
		streams = []stream{
			{domain.SyncUserDeleteV1, global(sy.ScanUserDeletes)},
			{domain.SyncUserV1, global(sy.ScanUsers)},
		}
	case domain.ReqPartners:
		streams = []stream{
			{domain.SyncPartnerDeleteV1, self(sy.ScanPartnerDeletes)},
			{domain.SyncPartnerV1, self(sy.ScanPartners)},
		}
	case domain.ReqAssets:
		streams = []stream{
			{domain.SyncAssetDeleteV1, self(sy.ScanAssetDeletes)},
			{domain.SyncAssetV1, self(sy.ScanAssets)},
		}
	case domain.ReqStacks:
		streams = []stream{
			{domain.SyncStackDeleteV1, self(sy.ScanStackDeletes)},
			{domain.SyncStackV1, self(sy.ScanStacks)},
		}
	case domain.ReqAlbums:
		streams = []stream{
			{domain.SyncAlbumDeleteV1, global(sy.ScanAlbumDeletes)},
			{domain.SyncAlbumV1, self(sy.ScanAlbums)},
		}
	case domain.ReqAlbumUsers:
		streams = []stream{
			{domain.SyncAlbumUserDeleteV1, global(sy.ScanAlbumUserDeletes)},
			{domain.SyncAlbumUserV1, self(sy.ScanAlbumUsers)},
		}
	case domain.ReqAlbumToAssets:
		streams = []stream{
			{domain.SyncAlbumToAssetDeleteV1, global(sy.ScanAlbumToAssetDeletes)},
			{domain.SyncAlbumToAssetV1, self(sy.ScanAlbumToAssets)},
		}
	case domain.ReqAssetExifs:
		streams = []stream{{domain.SyncAssetExifV1, self(sy.ScanAssetExifs)}}
	case domain.ReqMemories:
		streams = []stream{
			{domain.SyncMemoryDeleteV1, self(sy.ScanMemoryDeletes)},
			{domain.SyncMemoryV1, self(sy.ScanMemories)},
		}
	case domain.ReqMemoryToAssets:
		streams = []stream{
			{domain.SyncMemoryToAssetDelV1, global(sy.ScanMemoryToAssetDeletes)},
			{domain.SyncMemoryToAssetV1, self(sy.ScanMemoryToAssets)},
		}
	case domain.ReqUserMetadata:
		streams = []stream{
			{domain.SyncUserMetadataDelV1, self(sy.ScanUserMetadataDeletes)},
			{domain.SyncUserMetadataV1, self(sy.ScanUserMetadata)},
		}
	case domain.ReqAssetMetadata:
		streams = []stream{
			{domain.SyncAssetMetadataDelV1, self(sy.ScanAssetMetadataDeletes)},
			{domain.SyncAssetMetadataV1, self(sy.ScanAssetMetadata)},
		}
	default:
		// PeopleV1, AssetFacesV1 and the Partner*/Album*Asset backfill
		// variants are inert: they hold their slot in the order but emit
		// nothing. The remaining types carry enough to rebuild client
		// state without them.
		return nil
	}

	for _, st := range streams {
		if err := s.drain(ctx, lw, st.typ, cp[st.typ], st.scan); err != nil {
			return err
		}
	}
	return nil
}

// drain pages one scan from the checkpoint to its end.
func (s *Service) drain(ctx context.Context, lw *lineWriter, typ domain.SyncEntityType, after string, scan scanFn) error {
	for {
		items, err := scan(ctx, after, page)
		if err != nil {
			return err
		}
		for _, it := range items {
			if err := lw.write(typ, it.Ack, it.Data); err != nil {
				return err
			}
		}
		if len(items) < page {
			return nil
		}
		after = items[len(items)-1].Ack
	}
}

// Ack is one checkpoint advance posted by the client.
type Ack struct {
	Type     domain.SyncEntityType `json:"type"`
	UpdateID string                `json:"updateId"`
}

// Acknowledge ingests a batch of acks. A SyncResetV1 ack means the
// client accepted the reset: the pending flag and all checkpoints are
// cleared and the rest of the batch is ignored. An unknown type fails
// the whole batch.
func (s *Service) Acknowledge(ctx context.Context, sessionID string, acks []Ack) error {
	for _, a := range acks {
		if !a.Type.IsValid() {
			return apperr.BadRequestf("unknown sync type %q", a.Type)
		}
	}
	for _, a := range acks {
		if a.Type == domain.SyncResetV1 {
			if err := s.st.Sessions.SetPendingSyncReset(ctx, sessionID, false); err != nil {
				return err
			}
			return s.st.Checkpoints.DeleteBySession(ctx, sessionID)
		}
	}
	// Last write wins per type within the batch.
	byType := map[domain.SyncEntityType]string{}
	for _, a := range acks {
		byType[a.Type] = a.UpdateID
	}
	if len(byType) == 0 {
		return nil
	}
	return s.st.Checkpoints.Upsert(ctx, sessionID, byType)
}

// Checkpoints lists the session's stored acks.
func (s *Service) Checkpoints(ctx context.Context, sessionID string) (map[domain.SyncEntityType]string, error) {
	return s.st.Checkpoints.Map(ctx, sessionID)
}

// ClearCheckpoints drops every checkpoint for the session.
func (s *Service) ClearCheckpoints(ctx context.Context, sessionID string) error {
	return s.st.Checkpoints.DeleteBySession(ctx, sessionID)
}
