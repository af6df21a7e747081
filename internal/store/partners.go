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

// Partners persists directional timeline-visibility grants. The pair
// (shared_by, shared_with) is the key; each direction is its own row.
type Partners struct {
	db *sql.DB
}

const partnerCols = `shared_by_id, shared_with_id, in_timeline, created_at, updated_at, update_id`

func scanPartner(row interface{ Scan(...any) error }) (*domain.Partner, error) {
	var p domain.Partner
	var createdAt, updatedAt string
	err := row.Scan(&p.SharedByID, &p.SharedWithID, &p.InTimeline, &createdAt, &updatedAt, &p.UpdateID)
	if err != nil {
		return nil, err
	}
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

// Create grants sharedWith access to sharedBy's timeline.
func (s *Partners) Create(ctx context.Context, sharedByID, sharedWithID string) (*domain.Partner, error) {
	now := time.Now()
	p := &domain.Partner{
		SharedByID:   sharedByID,
		SharedWithID: sharedWithID,
		InTimeline:   true,
		CreatedAt:    now,
		UpdatedAt:    now,
		UpdateID:     id.New(),
	}
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO partners (`+partnerCols+`) VALUES (?, ?, ?, ?, ?, ?)`,
		p.SharedByID, p.SharedWithID, p.InTimeline,
		fmtTime(p.CreatedAt), fmtTime(p.UpdatedAt), p.UpdateID)
	if err != nil {
		return nil, mapConstraint(err)
	}
	return p, nil
}

// Get fetches one direction of a partnership.
func (s *Partners) Get(ctx context.Context, sharedByID, sharedWithID string) (*domain.Partner, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT `+partnerCols+` FROM partners WHERE shared_by_id = ? AND shared_with_id = ?`,
		sharedByID, sharedWithID)
	p, err := scanPartner(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFoundf("partner")
	}
	return p, err
}

// ListSharedWith returns partnerships where userID is the recipient.
func (s *Partners) ListSharedWith(ctx context.Context, userID string) ([]*domain.Partner, error) {
	return s.list(ctx, `shared_with_id = ?`, userID)
}

// ListSharedBy returns partnerships where userID is the sharer.
func (s *Partners) ListSharedBy(ctx context.Context, userID string) ([]*domain.Partner, error) {
	return s.list(ctx, `shared_by_id = ?`, userID)
}

func (s *Partners) list(ctx context.Context, where string, arg any) ([]*domain.Partner, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+partnerCols+` FROM partners WHERE `+where+` ORDER BY created_at`, arg)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*domain.Partner
	for rows.Next() {
		p, err := scanPartner(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SetInTimeline toggles whether the recipient folds the sharer's assets
// into their own timeline.
func (s *Partners) SetInTimeline(ctx context.Context, sharedByID, sharedWithID string, inTimeline bool) error {
	res, err := s.db.ExecContext(ctx, `
	UPDATE partners SET in_timeline = ?, updated_at = ?, update_id = ?
	WHERE shared_by_id = ? AND shared_with_id = ?`,
		inTimeline, fmtTime(time.Now()), id.New(), sharedByID, sharedWithID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFoundf("partner")
	}
	return nil
}

// Delete revokes one direction and audits the revocation.
func (s *Partners) Delete(ctx context.Context, sharedByID, sharedWithID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	res, err := tx.ExecContext(ctx,
		`DELETE FROM partners WHERE shared_by_id = ? AND shared_with_id = ?`,
		sharedByID, sharedWithID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFoundf("partner")
	}
	if _, err := tx.ExecContext(ctx, `
	INSERT INTO partners_audit (id, shared_by_id, shared_with_id, deleted_at)
	VALUES (?, ?, ?, ?)`,
		id.New(), sharedByID, sharedWithID, fmtTime(time.Now())); err != nil {
		return err
	}
	return tx.Commit()
}
