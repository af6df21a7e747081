package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jkov/photark/internal/apperr"
	"github.com/jkov/photark/internal/domain"
)

// Activities persists likes and comments on albums. A user can hold at
// most one like per (album, asset) pair; the partial unique index turns a
// double-like into ErrDuplicate.
type Activities struct {
	db *sql.DB
}

const activityCols = `id, user_id, album_id, asset_id, is_liked, comment, created_at`

func scanActivity(row interface{ Scan(...any) error }) (*domain.Activity, error) {
	var a domain.Activity
	var assetID, comment sql.NullString
	var createdAt string
	err := row.Scan(&a.ID, &a.UserID, &a.AlbumID, &assetID, &a.IsLiked, &comment, &createdAt)
	if err != nil {
		return nil, err
	}
	a.AssetID = strPtr(assetID)
	a.Comment = strPtr(comment)
	a.CreatedAt = parseTime(createdAt)
	return &a, nil
}

// Create inserts an activity row.
func (s *Activities) Create(ctx context.Context, a *domain.Activity) error {
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO activities (`+activityCols+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.AlbumID, a.AssetID, a.IsLiked, a.Comment, fmtTime(a.CreatedAt))
	return mapConstraint(err)
}

// GetByID fetches an activity.
func (s *Activities) GetByID(ctx context.Context, activityID string) (*domain.Activity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+activityCols+` FROM activities WHERE id = ?`, activityID)
	a, err := scanActivity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFoundf("activity %s", activityID)
	}
	return a, err
}

// List returns an album's activities oldest first, optionally narrowed to
// one asset.
func (s *Activities) List(ctx context.Context, albumID string, assetID *string) ([]*domain.Activity, error) {
	q := `SELECT ` + activityCols + ` FROM activities WHERE album_id = ?`
	args := []any{albumID}
	if assetID != nil {
		q += ` AND asset_id = ?`
		args = append(args, *assetID)
	}
	q += ` ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*domain.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CommentCount counts comments on an album, optionally for one asset.
func (s *Activities) CommentCount(ctx context.Context, albumID string, assetID *string) (int64, error) {
	q := `SELECT COUNT(*) FROM activities WHERE album_id = ? AND comment IS NOT NULL`
	args := []any{albumID}
	if assetID != nil {
		q += ` AND asset_id = ?`
		args = append(args, *assetID)
	}
	var n int64
	err := s.db.QueryRowContext(ctx, q, args...).Scan(&n)
	return n, err
}

// Delete removes one activity. Only the author or the album owner may
// delete; the service layer decides which, this narrows by id alone.
func (s *Activities) Delete(ctx context.Context, activityID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM activities WHERE id = ?`, activityID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFoundf("activity %s", activityID)
	}
	return nil
}

// Unlike removes a user's like on (album, asset).
func (s *Activities) Unlike(ctx context.Context, userID, albumID string, assetID *string) error {
	q := `DELETE FROM activities WHERE user_id = ? AND album_id = ? AND is_liked = 1`
	args := []any{userID, albumID}
	if assetID == nil {
		q += ` AND asset_id IS NULL`
	} else {
		q += ` AND asset_id = ?`
		args = append(args, *assetID)
	}
	_, err := s.db.ExecContext(ctx, q, args...)
	return err
}
