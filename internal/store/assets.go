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

// Assets persists originals and their lifecycle. Soft deletes write audit
// rows in the same transaction so the sync delete scans observe them.
type Assets struct {
	db *sql.DB
}

const assetCols = `id, owner_id, library_id, device_asset_id, device_id, checksum,
	original_path, original_file_name, encoded_video_path, type, visibility,
	is_favorite, file_created_at, file_modified_at, local_date_time, duration,
	live_photo_video_id, stack_id, status, deleted_at, file_size_bytes,
	width, height, thumbhash, created_at, updated_at, update_id`

func scanAsset(row interface{ Scan(...any) error }) (*domain.Asset, error) {
	var a domain.Asset
	var libraryID, encodedVideoPath, duration, livePhotoVideoID, stackID, deletedAt sql.NullString
	var width, height sql.NullInt64
	var fileCreatedAt, fileModifiedAt, localDateTime, createdAt, updatedAt string
	err := row.Scan(&a.ID, &a.OwnerID, &libraryID, &a.DeviceAssetID, &a.DeviceID,
		&a.Checksum, &a.OriginalPath, &a.OriginalFileName, &encodedVideoPath,
		&a.Type, &a.Visibility, &a.IsFavorite, &fileCreatedAt, &fileModifiedAt,
		&localDateTime, &duration, &livePhotoVideoID, &stackID, &a.Status,
		&deletedAt, &a.FileSizeBytes, &width, &height, &a.Thumbhash,
		&createdAt, &updatedAt, &a.UpdateID)
	if err != nil {
		return nil, err
	}
	a.LibraryID = strPtr(libraryID)
	a.EncodedVideoPath = strPtr(encodedVideoPath)
	a.Duration = strPtr(duration)
	a.LivePhotoVideoID = strPtr(livePhotoVideoID)
	a.StackID = strPtr(stackID)
	a.DeletedAt = parseTimePtr(deletedAt)
	a.Width = intPtr(width)
	a.Height = intPtr(height)
	a.FileCreatedAt = parseTime(fileCreatedAt)
	a.FileModifiedAt = parseTime(fileModifiedAt)
	a.LocalDateTime = parseTime(localDateTime)
	a.CreatedAt = parseTime(createdAt)
	a.UpdatedAt = parseTime(updatedAt)
	return &a, nil
}

// Insert writes a new asset row. A (owner, library, checksum) collision
// surfaces as ErrDuplicate so ingest can resolve the race.
func (s *Assets) Insert(ctx context.Context, a *domain.Asset) error {
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO assets (`+assetCols+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.OwnerID, a.LibraryID, a.DeviceAssetID, a.DeviceID, a.Checksum,
		a.OriginalPath, a.OriginalFileName, a.EncodedVideoPath, a.Type, a.Visibility,
		a.IsFavorite, fmtTime(a.FileCreatedAt), fmtTime(a.FileModifiedAt),
		fmtTime(a.LocalDateTime), a.Duration, a.LivePhotoVideoID, a.StackID,
		a.Status, fmtTimePtr(a.DeletedAt), a.FileSizeBytes, a.Width, a.Height,
		a.Thumbhash, fmtTime(a.CreatedAt), fmtTime(a.UpdatedAt), a.UpdateID)
	return mapConstraint(err)
}

// GetByID fetches an asset regardless of trash state (deleted rows excluded).
func (s *Assets) GetByID(ctx context.Context, assetID string) (*domain.Asset, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+assetCols+` FROM assets WHERE id = ? AND status != 'deleted'`, assetID)
	a, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFoundf("asset %s", assetID)
	}
	return a, err
}

// GetByIDs fetches a batch. Missing ids are silently absent from the result.
func (s *Assets) GetByIDs(ctx context.Context, assetIDs []string) ([]*domain.Asset, error) {
	if len(assetIDs) == 0 {
		return nil, nil
	}
	var out []*domain.Asset
	for start := 0; start < len(assetIDs); start += 500 {
		end := min(start+500, len(assetIDs))
		chunk := assetIDs[start:end]
		rows, err := s.db.QueryContext(ctx,
			`SELECT `+assetCols+` FROM assets WHERE status != 'deleted' AND id IN (`+placeholders(len(chunk))+`)`,
			anySlice(chunk)...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			a, err := scanAsset(rows)
			if err != nil {
				_ = rows.Close()
				return nil, err
			}
			out = append(out, a)
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return nil, err
		}
		_ = rows.Close()
	}
	return out, nil
}

// GetByChecksum finds the owner's non-deleted asset with this content.
func (s *Assets) GetByChecksum(ctx context.Context, ownerID string, libraryID *string, checksum []byte) (*domain.Asset, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT `+assetCols+` FROM assets
	WHERE owner_id = ? AND ifnull(library_id,'') = ifnull(?,'') AND checksum = ? AND status != 'deleted'`,
		ownerID, libraryID, checksum)
	a, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFoundf("asset by checksum")
	}
	return a, err
}

// ExistingDeviceAssetIDs returns the subset of deviceAssetIDs the owner
// already uploaded from deviceID.
func (s *Assets) ExistingDeviceAssetIDs(ctx context.Context, ownerID, deviceID string, deviceAssetIDs []string) ([]string, error) {
	var out []string
	for start := 0; start < len(deviceAssetIDs); start += 500 {
		end := min(start+500, len(deviceAssetIDs))
		chunk := deviceAssetIDs[start:end]
		args := append([]any{ownerID, deviceID}, anySlice(chunk)...)
		rows, err := s.db.QueryContext(ctx, `
		SELECT device_asset_id FROM assets
		WHERE owner_id = ? AND device_id = ? AND status != 'deleted'
		AND device_asset_id IN (`+placeholders(len(chunk))+`)`, args...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var v string
			if err := rows.Scan(&v); err != nil {
				_ = rows.Close()
				return nil, err
			}
			out = append(out, v)
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return nil, err
		}
		_ = rows.Close()
	}
	return out, nil
}

// ListByDevice returns asset ids the owner uploaded from deviceID.
func (s *Assets) ListByDevice(ctx context.Context, ownerID, deviceID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT id FROM assets
	WHERE owner_id = ? AND device_id = ? AND status = 'active'
	ORDER BY file_created_at DESC`, ownerID, deviceID)
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

// UpdateMeta persists the client-mutable columns and bumps the watermark.
func (s *Assets) UpdateMeta(ctx context.Context, a *domain.Asset) error {
	a.UpdateID = id.New()
	a.UpdatedAt = time.Now()
	_, err := s.db.ExecContext(ctx, `
	UPDATE assets SET visibility = ?, is_favorite = ?, file_created_at = ?,
		file_modified_at = ?, local_date_time = ?, live_photo_video_id = ?,
		stack_id = ?, duration = ?, width = ?, height = ?, thumbhash = ?,
		updated_at = ?, update_id = ?
	WHERE id = ?`,
		a.Visibility, a.IsFavorite, fmtTime(a.FileCreatedAt),
		fmtTime(a.FileModifiedAt), fmtTime(a.LocalDateTime), a.LivePhotoVideoID,
		a.StackID, a.Duration, a.Width, a.Height, a.Thumbhash,
		fmtTime(a.UpdatedAt), a.UpdateID, a.ID)
	return err
}

// ReplaceOriginal rewrites the content columns after a PUT .../original.
// Live-photo pairing is cleared by contract.
func (s *Assets) ReplaceOriginal(ctx context.Context, a *domain.Asset) error {
	a.UpdateID = id.New()
	a.UpdatedAt = time.Now()
	_, err := s.db.ExecContext(ctx, `
	UPDATE assets SET checksum = ?, original_path = ?, original_file_name = ?,
		type = ?, file_created_at = ?, file_modified_at = ?, local_date_time = ?,
		file_size_bytes = ?, live_photo_video_id = NULL, duration = ?,
		updated_at = ?, update_id = ?
	WHERE id = ?`,
		a.Checksum, a.OriginalPath, a.OriginalFileName, a.Type,
		fmtTime(a.FileCreatedAt), fmtTime(a.FileModifiedAt),
		fmtTime(a.LocalDateTime), a.FileSizeBytes, a.Duration,
		fmtTime(a.UpdatedAt), a.UpdateID, a.ID)
	return mapConstraint(err)
}

// SoftDelete moves the owner's assets to trash and emits audit rows.
// Returns the affected ids.
func (s *Assets) SoftDelete(ctx context.Context, ownerID string, assetIDs []string, now time.Time) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var affected []string
	for start := 0; start < len(assetIDs); start += 500 {
		end := min(start+500, len(assetIDs))
		chunk := assetIDs[start:end]
		args := append([]any{ownerID}, anySlice(chunk)...)
		rows, err := tx.QueryContext(ctx, `
		SELECT id FROM assets
		WHERE owner_id = ? AND status = 'active' AND id IN (`+placeholders(len(chunk))+`)`,
			args...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var v string
			if err := rows.Scan(&v); err != nil {
				_ = rows.Close()
				return nil, err
			}
			affected = append(affected, v)
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return nil, err
		}
		_ = rows.Close()
	}

	for _, assetID := range affected {
		if _, err := tx.ExecContext(ctx, `
		UPDATE assets SET status = 'trashed', deleted_at = ?, updated_at = ?, update_id = ?
		WHERE id = ?`, fmtTime(now), fmtTime(now), id.New(), assetID); err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx, `
		INSERT INTO assets_audit (id, asset_id, owner_id, deleted_at) VALUES (?, ?, ?, ?)`,
			id.New(), assetID, ownerID, fmtTime(now)); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return affected, nil
}

// Restore returns trashed assets to the active state. Empty ids means all.
// Each restored row gets its own watermark; batch-wide stamps would tie
// update_id and break checkpoint resume inside the tie.
func (s *Assets) Restore(ctx context.Context, ownerID string, assetIDs []string) (int64, error) {
	now := time.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var targets []string
	if len(assetIDs) == 0 {
		rows, err := tx.QueryContext(ctx,
			`SELECT id FROM assets WHERE owner_id = ? AND status = 'trashed'`, ownerID)
		if err != nil {
			return 0, err
		}
		for rows.Next() {
			var v string
			if err := rows.Scan(&v); err != nil {
				_ = rows.Close()
				return 0, err
			}
			targets = append(targets, v)
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return 0, err
		}
		_ = rows.Close()
	} else {
		targets = assetIDs
	}

	var total int64
	for _, assetID := range targets {
		res, err := tx.ExecContext(ctx, `
		UPDATE assets SET status = 'active', deleted_at = NULL, updated_at = ?, update_id = ?
		WHERE owner_id = ? AND status = 'trashed' AND id = ?`,
			fmtTime(now), id.New(), ownerID, assetID)
		if err != nil {
			return 0, err
		}
		n, _ := res.RowsAffected()
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return total, nil
}

// ListTrashed returns the owner's trashed assets.
func (s *Assets) ListTrashed(ctx context.Context, ownerID string) ([]*domain.Asset, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+assetCols+` FROM assets WHERE owner_id = ? AND status = 'trashed'`, ownerID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*domain.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// HardDelete removes asset rows for good. Child rows cascade via FKs;
// album/memory/tag/link memberships go with them.
func (s *Assets) HardDelete(ctx context.Context, assetIDs []string) error {
	for start := 0; start < len(assetIDs); start += 500 {
		end := min(start+500, len(assetIDs))
		chunk := assetIDs[start:end]
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM assets WHERE id IN (`+placeholders(len(chunk))+`)`,
			anySlice(chunk)...); err != nil {
			return err
		}
	}
	return nil
}

// Statistics counts the owner's assets by type.
type Statistics struct {
	Images int64
	Videos int64
	Total  int64
}

// Stats aggregates counts with the timeline filters.
func (s *Assets) Stats(ctx context.Context, ownerID string, isFavorite *bool, visibility *domain.AssetVisibility, trashed bool) (Statistics, error) {
	query := `
	SELECT
		COUNT(CASE WHEN type = 'IMAGE' THEN 1 END),
		COUNT(CASE WHEN type = 'VIDEO' THEN 1 END),
		COUNT(*)
	FROM assets WHERE owner_id = ?`
	args := []any{ownerID}
	if trashed {
		query += ` AND status = 'trashed'`
	} else {
		query += ` AND status = 'active'`
	}
	if isFavorite != nil {
		query += ` AND is_favorite = ?`
		args = append(args, *isFavorite)
	}
	if visibility != nil {
		query += ` AND visibility = ?`
		args = append(args, *visibility)
	}
	var st Statistics
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&st.Images, &st.Videos, &st.Total)
	return st, err
}
