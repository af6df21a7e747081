package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jkov/photark/internal/apperr"
	"github.com/jkov/photark/internal/domain"
	"github.com/jkov/photark/internal/id"
)

// Tags persists user-scoped hierarchical labels. A tag value is its full
// path ("travel/2024/japan"); Upsert creates missing ancestors.
type Tags struct {
	db *sql.DB
}

const tagCols = `id, user_id, value, color, parent_id, created_at, updated_at`

func scanTag(row interface{ Scan(...any) error }) (*domain.Tag, error) {
	var t domain.Tag
	var color, parent sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&t.ID, &t.UserID, &t.Value, &color, &parent, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	t.Color = strPtr(color)
	t.ParentID = strPtr(parent)
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	return &t, nil
}

// Upsert ensures the tag at value exists, creating every missing ancestor
// along the path. The leaf tag is returned.
func (s *Tags) Upsert(ctx context.Context, userID, value string, color *string) (*domain.Tag, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	parts := strings.Split(value, "/")
	var parentID *string
	var leaf *domain.Tag
	for i := range parts {
		path := strings.Join(parts[:i+1], "/")
		t, err := tagByValueTx(ctx, tx, userID, path)
		if errors.Is(err, sql.ErrNoRows) {
			now := time.Now()
			t = &domain.Tag{
				ID:        id.New(),
				UserID:    userID,
				Value:     path,
				ParentID:  parentID,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if _, err := tx.ExecContext(ctx, `
			INSERT INTO tags (`+tagCols+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
				t.ID, t.UserID, t.Value, t.Color, t.ParentID,
				fmtTime(t.CreatedAt), fmtTime(t.UpdatedAt)); err != nil {
				return nil, err
			}
		} else if err != nil {
			return nil, err
		}
		parentID = &t.ID
		leaf = t
	}
	if leaf != nil && color != nil {
		leaf.Color = color
		leaf.UpdatedAt = time.Now()
		if _, err := tx.ExecContext(ctx,
			`UPDATE tags SET color = ?, updated_at = ? WHERE id = ?`,
			*color, fmtTime(leaf.UpdatedAt), leaf.ID); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return leaf, nil
}

func tagByValueTx(ctx context.Context, tx *sql.Tx, userID, value string) (*domain.Tag, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+tagCols+` FROM tags WHERE user_id = ? AND value = ?`, userID, value)
	return scanTag(row)
}

// GetByID fetches a tag.
func (s *Tags) GetByID(ctx context.Context, tagID string) (*domain.Tag, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+tagCols+` FROM tags WHERE id = ?`, tagID)
	t, err := scanTag(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFoundf("tag %s", tagID)
	}
	return t, err
}

// ListByUser returns all of the user's tags ordered by value.
func (s *Tags) ListByUser(ctx context.Context, userID string) ([]*domain.Tag, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+tagCols+` FROM tags WHERE user_id = ? ORDER BY value`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*domain.Tag
	for rows.Next() {
		t, err := scanTag(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Update changes the tag color.
func (s *Tags) Update(ctx context.Context, tagID string, color *string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tags SET color = ?, updated_at = ? WHERE id = ?`,
		color, fmtTime(time.Now()), tagID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFoundf("tag %s", tagID)
	}
	return nil
}

// Delete removes a tag. Children cascade through the parent_id FK.
func (s *Tags) Delete(ctx context.Context, userID, tagID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM tags WHERE id = ? AND user_id = ?`, tagID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFoundf("tag %s", tagID)
	}
	return nil
}

// TagAssets links assets to the tag, returning the ids newly linked.
func (s *Tags) TagAssets(ctx context.Context, tagID string, assetIDs []string) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()
	var added []string
	for _, assetID := range assetIDs {
		res, err := tx.ExecContext(ctx, `
		INSERT INTO tag_assets (tag_id, asset_id) VALUES (?, ?)
		ON CONFLICT(tag_id, asset_id) DO NOTHING`, tagID, assetID)
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

// UntagAsset unlinks one asset.
func (s *Tags) UntagAsset(ctx context.Context, tagID, assetID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM tag_assets WHERE tag_id = ? AND asset_id = ?`, tagID, assetID)
	return err
}

// AssetIDs lists active assets carrying the tag.
func (s *Tags) AssetIDs(ctx context.Context, tagID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT ta.asset_id FROM tag_assets ta
	JOIN assets a ON a.id = ta.asset_id
	WHERE ta.tag_id = ? AND a.status = 'active'
	ORDER BY a.local_date_time DESC`, tagID)
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

// ReplaceAssetTags rewrites the full tag set of one asset with the given
// (already upserted) tag ids.
func (s *Tags) ReplaceAssetTags(ctx context.Context, assetID string, tagIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM tag_assets WHERE asset_id = ?`, assetID); err != nil {
		return err
	}
	for _, tagID := range tagIDs {
		if _, err := tx.ExecContext(ctx, `
		INSERT INTO tag_assets (tag_id, asset_id) VALUES (?, ?)
		ON CONFLICT(tag_id, asset_id) DO NOTHING`, tagID, assetID); err != nil {
			return err
		}
	}
	return tx.Commit()
}
