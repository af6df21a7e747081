package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jkov/photark/internal/apperr"
	"github.com/jkov/photark/internal/domain"
)

// SharedLinks persists capability links and their asset lists.
type SharedLinks struct {
	db *sql.DB
}

const linkCols = `id, user_id, key, slug, type, album_id, description, password,
	expires_at, allow_upload, allow_download, show_exif, created_at`

func scanLink(row interface{ Scan(...any) error }) (*domain.SharedLink, error) {
	var l domain.SharedLink
	var slug, albumID, description, password, expiresAt sql.NullString
	var createdAt string
	err := row.Scan(&l.ID, &l.UserID, &l.Key, &slug, &l.Type, &albumID,
		&description, &password, &expiresAt, &l.AllowUpload, &l.AllowDownload,
		&l.ShowExif, &createdAt)
	if err != nil {
		return nil, err
	}
	l.Slug = strPtr(slug)
	l.AlbumID = strPtr(albumID)
	l.Description = strPtr(description)
	l.Password = strPtr(password)
	l.ExpiresAt = parseTimePtr(expiresAt)
	l.CreatedAt = parseTime(createdAt)
	return &l, nil
}

// Create inserts a link and, for individual links, its asset rows.
func (s *SharedLinks) Create(ctx context.Context, l *domain.SharedLink, assetIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	_, err = tx.ExecContext(ctx, `
	INSERT INTO shared_links (`+linkCols+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.UserID, l.Key, l.Slug, l.Type, l.AlbumID, l.Description,
		l.Password, fmtTimePtr(l.ExpiresAt), l.AllowUpload, l.AllowDownload,
		l.ShowExif, fmtTime(l.CreatedAt))
	if err != nil {
		return mapConstraint(err)
	}
	for _, assetID := range assetIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO shared_link_assets (link_id, asset_id) VALUES (?, ?)`,
			l.ID, assetID); err != nil {
			return mapConstraint(err)
		}
	}
	return tx.Commit()
}

// GetByKey resolves a link by its raw 50-byte key.
func (s *SharedLinks) GetByKey(ctx context.Context, key []byte) (*domain.SharedLink, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+linkCols+` FROM shared_links WHERE key = ?`, key)
	l, err := scanLink(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFoundf("shared link")
	}
	return l, err
}

// GetBySlug resolves a link by its vanity slug.
func (s *SharedLinks) GetBySlug(ctx context.Context, slug string) (*domain.SharedLink, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+linkCols+` FROM shared_links WHERE slug = ?`, slug)
	l, err := scanLink(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFoundf("shared link")
	}
	return l, err
}

// GetByID fetches a link owned by userID.
func (s *SharedLinks) GetByID(ctx context.Context, userID, linkID string) (*domain.SharedLink, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+linkCols+` FROM shared_links WHERE id = ? AND user_id = ?`, linkID, userID)
	l, err := scanLink(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFoundf("shared link %s", linkID)
	}
	return l, err
}

// ListByUser returns a user's links.
func (s *SharedLinks) ListByUser(ctx context.Context, userID string) ([]*domain.SharedLink, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+linkCols+` FROM shared_links WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*domain.SharedLink
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// AssetIDs returns the explicit asset list of an individual link.
func (s *SharedLinks) AssetIDs(ctx context.Context, linkID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT asset_id FROM shared_link_assets WHERE link_id = ?`, linkID)
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

// AddAssets attaches assets to an individual link (upload-over-link flow).
func (s *SharedLinks) AddAssets(ctx context.Context, linkID string, assetIDs []string) error {
	for _, assetID := range assetIDs {
		if _, err := s.db.ExecContext(ctx, `
		INSERT INTO shared_link_assets (link_id, asset_id) VALUES (?, ?)
		ON CONFLICT(link_id, asset_id) DO NOTHING`, linkID, assetID); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes a link owned by userID.
func (s *SharedLinks) Delete(ctx context.Context, userID, linkID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM shared_links WHERE id = ? AND user_id = ?`, linkID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFoundf("shared link %s", linkID)
	}
	return nil
}
