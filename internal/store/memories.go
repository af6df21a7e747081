package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jkov/photark/internal/apperr"
	"github.com/jkov/photark/internal/domain"
	"github.com/jkov/photark/internal/id"
)

// Memories persists date-anchored collections and their asset links.
// Deletes are soft and audited so sync clients see them go away.
type Memories struct {
	db *sql.DB
}

const memoryCols = `id, owner_id, type, data, is_saved, memory_at,
	seen_at, deleted_at, created_at, updated_at, update_id`

func scanMemory(row interface{ Scan(...any) error }) (*domain.Memory, error) {
	var m domain.Memory
	var memoryAt, createdAt, updatedAt string
	var seenAt, deletedAt sql.NullString
	err := row.Scan(&m.ID, &m.OwnerID, &m.Type, &m.Data, &m.IsSaved, &memoryAt,
		&seenAt, &deletedAt, &createdAt, &updatedAt, &m.UpdateID)
	if err != nil {
		return nil, err
	}
	m.MemoryAt = parseTime(memoryAt)
	m.SeenAt = parseTimePtr(seenAt)
	m.DeletedAt = parseTimePtr(deletedAt)
	m.CreatedAt = parseTime(createdAt)
	m.UpdatedAt = parseTime(updatedAt)
	return &m, nil
}

// Create inserts a memory and its initial asset links.
func (s *Memories) Create(ctx context.Context, m *domain.Memory, assetIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `
	INSERT INTO memories (`+memoryCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.OwnerID, m.Type, m.Data, m.IsSaved, fmtTime(m.MemoryAt),
		fmtTimePtr(m.SeenAt), fmtTimePtr(m.DeletedAt),
		fmtTime(m.CreatedAt), fmtTime(m.UpdatedAt), m.UpdateID); err != nil {
		return err
	}
	for _, assetID := range assetIDs {
		if _, err := tx.ExecContext(ctx, `
		INSERT INTO memory_assets (memory_id, asset_id, update_id) VALUES (?, ?, ?)
		ON CONFLICT(memory_id, asset_id) DO NOTHING`,
			m.ID, assetID, id.New()); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetByID fetches a live memory.
func (s *Memories) GetByID(ctx context.Context, memoryID string) (*domain.Memory, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+memoryCols+` FROM memories WHERE id = ? AND deleted_at IS NULL`, memoryID)
	m, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFoundf("memory %s", memoryID)
	}
	return m, err
}

// ListByOwner returns the owner's live memories newest-anchored first.
func (s *Memories) ListByOwner(ctx context.Context, ownerID string) ([]*domain.Memory, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT `+memoryCols+` FROM memories
	WHERE owner_id = ? AND deleted_at IS NULL
	ORDER BY memory_at DESC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*domain.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Update persists mutable memory fields.
func (s *Memories) Update(ctx context.Context, m *domain.Memory) error {
	m.UpdateID = id.New()
	m.UpdatedAt = time.Now()
	_, err := s.db.ExecContext(ctx, `
	UPDATE memories SET is_saved = ?, memory_at = ?, seen_at = ?, updated_at = ?, update_id = ?
	WHERE id = ?`,
		m.IsSaved, fmtTime(m.MemoryAt), fmtTimePtr(m.SeenAt),
		fmtTime(m.UpdatedAt), m.UpdateID, m.ID)
	return err
}

// Delete soft-deletes the memory and audits it.
func (s *Memories) Delete(ctx context.Context, ownerID, memoryID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	now := time.Now()
	res, err := tx.ExecContext(ctx, `
	UPDATE memories SET deleted_at = ?, updated_at = ?, update_id = ?
	WHERE id = ? AND owner_id = ? AND deleted_at IS NULL`,
		fmtTime(now), fmtTime(now), id.New(), memoryID, ownerID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFoundf("memory %s", memoryID)
	}
	if _, err := tx.ExecContext(ctx, `
	INSERT INTO memories_audit (id, memory_id, owner_id, deleted_at) VALUES (?, ?, ?, ?)`,
		id.New(), memoryID, ownerID, fmtTime(now)); err != nil {
		return err
	}
	return tx.Commit()
}

// AddAssets links assets, returning the ids newly linked.
func (s *Memories) AddAssets(ctx context.Context, memoryID string, assetIDs []string) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()
	var added []string
	for _, assetID := range assetIDs {
		res, err := tx.ExecContext(ctx, `
		INSERT INTO memory_assets (memory_id, asset_id, update_id) VALUES (?, ?, ?)
		ON CONFLICT(memory_id, asset_id) DO NOTHING`, memoryID, assetID, id.New())
		if err != nil {
			return nil, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added = append(added, assetID)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return added, nil
}

// RemoveAssets unlinks assets with audit rows, returning the ids removed.
func (s *Memories) RemoveAssets(ctx context.Context, memoryID string, assetIDs []string) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()
	now := fmtTime(time.Now())
	var removed []string
	for _, assetID := range assetIDs {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM memory_assets WHERE memory_id = ? AND asset_id = ?`, memoryID, assetID)
		if err != nil {
			return nil, err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			continue
		}
		removed = append(removed, assetID)
		if _, err := tx.ExecContext(ctx, `
		INSERT INTO memory_assets_audit (id, memory_id, asset_id, deleted_at)
		VALUES (?, ?, ?, ?)`, id.New(), memoryID, assetID, now); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return removed, nil
}

// AssetIDs lists the memory's active assets.
func (s *Memories) AssetIDs(ctx context.Context, memoryID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT ma.asset_id FROM memory_assets ma
	JOIN assets a ON a.id = ma.asset_id
	WHERE ma.memory_id = ? AND a.status = 'active'
	ORDER BY a.local_date_time`, memoryID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
