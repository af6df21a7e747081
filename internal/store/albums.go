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

// Albums persists albums, their asset memberships and delegated users.
// Membership changes bump the album watermark too, so album lists stay
// fresh on sync clients.
type Albums struct {
	db *sql.DB
}

const albumCols = `id, owner_id, name, description, thumbnail_asset_id,
	is_activity_enabled, sort_order, created_at, updated_at, update_id`

func scanAlbum(row interface{ Scan(...any) error }) (*domain.Album, error) {
	var a domain.Album
	var thumb sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&a.ID, &a.OwnerID, &a.Name, &a.Description, &thumb,
		&a.IsActivityEnabled, &a.Order, &createdAt, &updatedAt, &a.UpdateID)
	if err != nil {
		return nil, err
	}
	a.ThumbnailAssetID = strPtr(thumb)
	a.CreatedAt = parseTime(createdAt)
	a.UpdatedAt = parseTime(updatedAt)
	return &a, nil
}

// Create inserts an album.
func (s *Albums) Create(ctx context.Context, a *domain.Album) error {
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO albums (`+albumCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.OwnerID, a.Name, a.Description, a.ThumbnailAssetID,
		a.IsActivityEnabled, a.Order, fmtTime(a.CreatedAt), fmtTime(a.UpdatedAt), a.UpdateID)
	return mapConstraint(err)
}

// GetByID fetches an album.
func (s *Albums) GetByID(ctx context.Context, albumID string) (*domain.Album, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+albumCols+` FROM albums WHERE id = ?`, albumID)
	a, err := scanAlbum(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFoundf("album %s", albumID)
	}
	return a, err
}

// ListVisible returns albums the user owns or is a member of.
func (s *Albums) ListVisible(ctx context.Context, userID string) ([]*domain.Album, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT `+albumCols+` FROM albums
	WHERE owner_id = ?
	   OR id IN (SELECT album_id FROM album_users WHERE user_id = ?)
	ORDER BY created_at DESC`, userID, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*domain.Album
	for rows.Next() {
		a, err := scanAlbum(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Update persists mutable album columns. A thumbnail not in the album is a
// contract violation the service layer screens before calling here.
func (s *Albums) Update(ctx context.Context, a *domain.Album) error {
	a.UpdateID = id.New()
	a.UpdatedAt = time.Now()
	_, err := s.db.ExecContext(ctx, `
	UPDATE albums SET name = ?, description = ?, thumbnail_asset_id = ?,
		is_activity_enabled = ?, sort_order = ?, updated_at = ?, update_id = ?
	WHERE id = ?`,
		a.Name, a.Description, a.ThumbnailAssetID, a.IsActivityEnabled,
		a.Order, fmtTime(a.UpdatedAt), a.UpdateID, a.ID)
	return err
}

// Delete removes an album and audits the deletion.
func (s *Albums) Delete(ctx context.Context, ownerID, albumID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	res, err := tx.ExecContext(ctx,
		`DELETE FROM albums WHERE id = ? AND owner_id = ?`, albumID, ownerID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFoundf("album %s", albumID)
	}
	if _, err := tx.ExecContext(ctx, `
	INSERT INTO albums_audit (id, album_id, user_id, deleted_at) VALUES (?, ?, ?, ?)`,
		id.New(), albumID, ownerID, fmtTime(time.Now())); err != nil {
		return err
	}
	return tx.Commit()
}

// AddAssets links assets into the album and returns the ids actually added.
func (s *Albums) AddAssets(ctx context.Context, albumID string, assetIDs []string) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()
	now := fmtTime(time.Now())
	var added []string
	for _, assetID := range assetIDs {
		res, err := tx.ExecContext(ctx, `
		INSERT INTO album_assets (album_id, asset_id, created_at, update_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(album_id, asset_id) DO NOTHING`,
			albumID, assetID, now, id.New())
		if err != nil {
			return nil, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added = append(added, assetID)
		}
	}
	if len(added) > 0 {
		if err := touchAlbum(ctx, tx, albumID); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return added, nil
}

// RemoveAssets unlinks assets, auditing each removed row. The album
// thumbnail is cleared when it pointed at a removed asset.
func (s *Albums) RemoveAssets(ctx context.Context, albumID string, assetIDs []string) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()
	now := fmtTime(time.Now())
	var removed []string
	for _, assetID := range assetIDs {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM album_assets WHERE album_id = ? AND asset_id = ?`, albumID, assetID)
		if err != nil {
			return nil, err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			continue
		}
		removed = append(removed, assetID)
		if _, err := tx.ExecContext(ctx, `
		INSERT INTO album_assets_audit (id, album_id, asset_id, deleted_at)
		VALUES (?, ?, ?, ?)`, id.New(), albumID, assetID, now); err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx, `
		UPDATE albums SET thumbnail_asset_id = NULL
		WHERE id = ? AND thumbnail_asset_id = ?`, albumID, assetID); err != nil {
			return nil, err
		}
	}
	if len(removed) > 0 {
		if err := touchAlbum(ctx, tx, albumID); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return removed, nil
}

// ContainsAsset reports whether assetID is in albumID.
func (s *Albums) ContainsAsset(ctx context.Context, albumID, assetID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM album_assets WHERE album_id = ? AND asset_id = ?`,
		albumID, assetID).Scan(&n)
	return n > 0, err
}

// AssetIDs lists the album's members ordered by capture time per the album
// sort order.
func (s *Albums) AssetIDs(ctx context.Context, albumID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT aa.asset_id FROM album_assets aa
	JOIN assets a ON a.id = aa.asset_id
	WHERE aa.album_id = ? AND a.status = 'active'
	ORDER BY a.local_date_time DESC`, albumID)
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

// SetUser grants or updates a delegated role.
func (s *Albums) SetUser(ctx context.Context, albumID, userID string, role domain.AlbumUserRole) error {
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO album_users (album_id, user_id, role, update_id) VALUES (?, ?, ?, ?)
	ON CONFLICT(album_id, user_id) DO UPDATE SET role = excluded.role, update_id = excluded.update_id`,
		albumID, userID, role, id.New())
	return err
}

// RemoveUser revokes a delegated role, auditing the removal.
func (s *Albums) RemoveUser(ctx context.Context, albumID, userID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	res, err := tx.ExecContext(ctx,
		`DELETE FROM album_users WHERE album_id = ? AND user_id = ?`, albumID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFoundf("album user")
	}
	if _, err := tx.ExecContext(ctx, `
	INSERT INTO album_users_audit (id, album_id, user_id, deleted_at) VALUES (?, ?, ?, ?)`,
		id.New(), albumID, userID, fmtTime(time.Now())); err != nil {
		return err
	}
	return tx.Commit()
}

// Users lists the delegated memberships of an album.
func (s *Albums) Users(ctx context.Context, albumID string) ([]*domain.AlbumUser, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT album_id, user_id, role, update_id FROM album_users WHERE album_id = ?`, albumID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*domain.AlbumUser
	for rows.Next() {
		var au domain.AlbumUser
		if err := rows.Scan(&au.AlbumID, &au.UserID, &au.Role, &au.UpdateID); err != nil {
			return nil, err
		}
		out = append(out, &au)
	}
	return out, rows.Err()
}

func touchAlbum(ctx context.Context, tx *sql.Tx, albumID string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE albums SET updated_at = ?, update_id = ? WHERE id = ?`,
		fmtTime(time.Now()), id.New(), albumID)
	return err
}
