package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/jkov/photark/internal/domain"
	"github.com/jkov/photark/internal/id"
)

// Checkpoints persists per-(session, sync type) ack watermarks. The ack is
// a UUIDv7 string, so "newer" is plain string comparison.
type Checkpoints struct {
	db *sql.DB
}

// Map returns all checkpoints of a session keyed by entity type.
func (s *Checkpoints) Map(ctx context.Context, sessionID string) (map[domain.SyncEntityType]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT type, ack FROM session_sync_checkpoints WHERE session_id = ?`, sessionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := make(map[domain.SyncEntityType]string)
	for rows.Next() {
		var typ, ack string
		if err := rows.Scan(&typ, &ack); err != nil {
			return nil, err
		}
		out[domain.SyncEntityType(typ)] = ack
	}
	return out, rows.Err()
}

// Upsert records acks for a session. An incoming ack older than the stored
// one is ignored, so retried batches cannot move a checkpoint backwards.
func (s *Checkpoints) Upsert(ctx context.Context, sessionID string, acks map[domain.SyncEntityType]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	now := fmtTime(time.Now())
	for typ, ack := range acks {
		if _, err := tx.ExecContext(ctx, `
		INSERT INTO session_sync_checkpoints (session_id, type, ack, update_id, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_id, type) DO UPDATE SET
			ack = excluded.ack,
			update_id = excluded.update_id,
			updated_at = excluded.updated_at
		WHERE excluded.ack > session_sync_checkpoints.ack`,
			sessionID, string(typ), ack, id.New(), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// DeleteBySession drops every checkpoint of a session. Used on sync reset
// and when the session itself is revoked.
func (s *Checkpoints) DeleteBySession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM session_sync_checkpoints WHERE session_id = ?`, sessionID)
	return err
}

// Oldest returns the smallest ack across the session's checkpoints, or ""
// when the session has none. Staleness detection reads the embedded
// UUIDv7 timestamp off this value.
func (s *Checkpoints) Oldest(ctx context.Context, sessionID string) (string, error) {
	var ack sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT MIN(ack) FROM session_sync_checkpoints WHERE session_id = ?`, sessionID).Scan(&ack)
	if err != nil {
		return "", err
	}
	if !ack.Valid {
		return "", nil
	}
	return ack.String, nil
}
