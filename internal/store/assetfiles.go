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

// AssetFiles persists derivative and sidecar paths.
type AssetFiles struct {
	db *sql.DB
}

// Upsert writes a derivative path, replacing the previous one of the same
// (asset, type, edited) slot.
func (s *AssetFiles) Upsert(ctx context.Context, f *domain.AssetFile) error {
	if f.ID == "" {
		f.ID = id.New()
	}
	now := fmtTime(time.Now())
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO asset_files (id, asset_id, type, path, is_edited, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(asset_id, type, is_edited) DO UPDATE SET
		path = excluded.path, updated_at = excluded.updated_at`,
		f.ID, f.AssetID, f.Type, f.Path, f.IsEdited, now, now)
	return err
}

// Get returns the derivative of the given slot, preferring the edited
// variant when edited is true.
func (s *AssetFiles) Get(ctx context.Context, assetID string, typ domain.AssetFileType, edited bool) (*domain.AssetFile, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT id, asset_id, type, path, is_edited FROM asset_files
	WHERE asset_id = ? AND type = ? AND is_edited = ?`, assetID, typ, edited)
	var f domain.AssetFile
	err := row.Scan(&f.ID, &f.AssetID, &f.Type, &f.Path, &f.IsEdited)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFoundf("%s file for asset %s", typ, assetID)
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// ListByAsset returns every derivative row of an asset.
func (s *AssetFiles) ListByAsset(ctx context.Context, assetID string) ([]*domain.AssetFile, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, asset_id, type, path, is_edited FROM asset_files WHERE asset_id = ?`, assetID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*domain.AssetFile
	for rows.Next() {
		var f domain.AssetFile
		if err := rows.Scan(&f.ID, &f.AssetID, &f.Type, &f.Path, &f.IsEdited); err != nil {
			return nil, err
		}
		out = append(out, &f)
	}
	return out, rows.Err()
}

// PathsForAssets returns all derivative paths of the given assets, used by
// trash purge to collect blob keys.
func (s *AssetFiles) PathsForAssets(ctx context.Context, assetIDs []string) ([]string, error) {
	var out []string
	for start := 0; start < len(assetIDs); start += 500 {
		end := min(start+500, len(assetIDs))
		chunk := assetIDs[start:end]
		rows, err := s.db.QueryContext(ctx,
			`SELECT path FROM asset_files WHERE asset_id IN (`+placeholders(len(chunk))+`)`,
			anySlice(chunk)...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var p string
			if err := rows.Scan(&p); err != nil {
				_ = rows.Close()
				return nil, err
			}
			out = append(out, p)
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return nil, err
		}
		_ = rows.Close()
	}
	return out, nil
}
