package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jkov/photark/internal/apperr"
	"github.com/jkov/photark/internal/domain"
	"github.com/jkov/photark/internal/id"
)

// ExifStore persists the 1-1 metadata record. Writes are column maps so the
// two callers can express their different locking behaviors:
//
//   - extractor runs (upload, replace) must not overwrite locked columns;
//   - user edits write unconditionally and add the columns to the lock list.
type ExifStore struct {
	db *sql.DB
}

// exifColumns is the writable column whitelist. Dynamic SET clauses are only
// ever built from keys present here.
var exifColumns = map[string]struct{}{
	"make": {}, "model": {}, "exif_image_width": {}, "exif_image_height": {},
	"file_size_byte": {}, "orientation": {}, "date_time_original": {},
	"modify_date": {}, "time_zone": {}, "latitude": {}, "longitude": {},
	"projection_type": {}, "city": {}, "state": {}, "country": {},
	"description": {}, "fps": {}, "exposure_time": {}, "rating": {}, "iso": {},
	"f_number": {}, "focal_length": {}, "lens_model": {}, "live_photo_cid": {},
	"auto_stack_id": {}, "colorspace": {}, "bits_per_sample": {},
	"profile_description": {},
}

// Upsert writes cols for assetID. With appendLocks the written column names
// join locked_properties; without it, cols already in locked_properties are
// dropped before writing.
func (s *ExifStore) Upsert(ctx context.Context, assetID string, cols map[string]any, appendLocks bool) error {
	for col := range cols {
		if _, ok := exifColumns[col]; !ok {
			return fmt.Errorf("store: exif column %q not writable", col)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	locked := map[string]struct{}{}
	var lockedJSON string
	err = tx.QueryRowContext(ctx,
		`SELECT locked_properties FROM asset_exif WHERE asset_id = ?`, assetID).Scan(&lockedJSON)
	exists := err == nil
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	if exists {
		var list []string
		if json.Unmarshal([]byte(lockedJSON), &list) == nil {
			for _, c := range list {
				locked[c] = struct{}{}
			}
		}
	}

	if appendLocks {
		for col := range cols {
			locked[col] = struct{}{}
		}
	} else {
		for col := range locked {
			delete(cols, col)
		}
	}

	lockedList := make([]string, 0, len(locked))
	for c := range locked {
		lockedList = append(lockedList, c)
	}
	sort.Strings(lockedList)
	lockedOut, _ := json.Marshal(lockedList)

	now := fmtTime(time.Now())
	watermark := id.New()

	if !exists {
		names := []string{"asset_id", "locked_properties", "updated_at", "update_id"}
		args := []any{assetID, string(lockedOut), now, watermark}
		for col, v := range cols {
			names = append(names, col)
			args = append(args, v)
		}
		q := `INSERT INTO asset_exif (` + strings.Join(names, ", ") + `) VALUES (` + placeholders(len(args)) + `)`
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return err
		}
		return tx.Commit()
	}

	sets := []string{"locked_properties = ?", "updated_at = ?", "update_id = ?"}
	args := []any{string(lockedOut), now, watermark}
	for col, v := range cols {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	args = append(args, assetID)
	q := `UPDATE asset_exif SET ` + strings.Join(sets, ", ") + ` WHERE asset_id = ?`
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return err
	}
	return tx.Commit()
}

// GetByAssetID fetches the record.
func (s *ExifStore) GetByAssetID(ctx context.Context, assetID string) (*domain.Exif, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT asset_id, make, model, exif_image_width, exif_image_height,
		file_size_byte, orientation, date_time_original, modify_date, time_zone,
		latitude, longitude, projection_type, city, state, country, description,
		fps, exposure_time, rating, iso, f_number, focal_length, lens_model,
		live_photo_cid, auto_stack_id, colorspace, bits_per_sample,
		profile_description, locked_properties, updated_at, update_id
	FROM asset_exif WHERE asset_id = ?`, assetID)

	var e domain.Exif
	var mk, model, orientation, dto, modifyDate, tz, projection, city, state,
		country, exposure, lens, liveCID, autoStack, colorspace, profile sql.NullString
	var width, height, fileSize, rating, iso, bits sql.NullInt64
	var lat, lon, fps, fNumber, focal sql.NullFloat64
	var lockedJSON, updatedAt string
	err := row.Scan(&e.AssetID, &mk, &model, &width, &height, &fileSize,
		&orientation, &dto, &modifyDate, &tz, &lat, &lon, &projection, &city,
		&state, &country, &e.Description, &fps, &exposure, &rating, &iso,
		&fNumber, &focal, &lens, &liveCID, &autoStack, &colorspace, &bits,
		&profile, &lockedJSON, &updatedAt, &e.UpdateID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFoundf("exif for asset %s", assetID)
	}
	if err != nil {
		return nil, err
	}
	e.Make, e.Model = strPtr(mk), strPtr(model)
	e.ExifImageWidth, e.ExifImageHeight = intPtr(width), intPtr(height)
	e.FileSizeByte = intPtr(fileSize)
	e.Orientation = strPtr(orientation)
	e.DateTimeOriginal = parseTimePtr(dto)
	e.ModifyDate = parseTimePtr(modifyDate)
	e.TimeZone = strPtr(tz)
	e.Latitude, e.Longitude = floatPtr(lat), floatPtr(lon)
	e.ProjectionType = strPtr(projection)
	e.City, e.State, e.Country = strPtr(city), strPtr(state), strPtr(country)
	e.FPS = floatPtr(fps)
	e.ExposureTime = strPtr(exposure)
	e.Rating, e.ISO = intPtr(rating), intPtr(iso)
	e.FNumber, e.FocalLength = floatPtr(fNumber), floatPtr(focal)
	e.LensModel = strPtr(lens)
	e.LivePhotoCID, e.AutoStackID = strPtr(liveCID), strPtr(autoStack)
	e.Colorspace = strPtr(colorspace)
	e.BitsPerSample = intPtr(bits)
	e.ProfileDescription = strPtr(profile)
	_ = json.Unmarshal([]byte(lockedJSON), &e.LockedProperties)
	e.UpdatedAt = parseTime(updatedAt)
	return &e, nil
}

// ShiftDateTime applies a relative minute offset to date_time_original
// SQL-side and records the new time_zone, locking both columns.
func (s *ExifStore) ShiftDateTime(ctx context.Context, assetIDs []string, minutes int, timeZone *string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// One statement per asset so every shifted row carries a distinct
	// watermark; the sync scan cannot page through ties.
	for _, assetID := range assetIDs {
		args := []any{fmt.Sprintf("%+d minutes", minutes)}
		setTZ := ""
		if timeZone != nil {
			setTZ = ", time_zone = ?"
			args = append(args, *timeZone)
		}
		args = append(args, fmtTime(time.Now()), id.New(), assetID)
		_, err := tx.ExecContext(ctx, `
		UPDATE asset_exif SET
			date_time_original = strftime('%Y-%m-%dT%H:%M:%fZ', date_time_original, ?)`+setTZ+`,
			updated_at = ?, update_id = ?
		WHERE asset_id = ? AND date_time_original IS NOT NULL`,
			args...)
		if err != nil {
			return err
		}
	}

	// Lock the shifted columns row by row; the list is a JSON array.
	for _, assetID := range assetIDs {
		var lockedJSON string
		err := tx.QueryRowContext(ctx,
			`SELECT locked_properties FROM asset_exif WHERE asset_id = ?`, assetID).Scan(&lockedJSON)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return err
		}
		var list []string
		_ = json.Unmarshal([]byte(lockedJSON), &list)
		list = appendUnique(list, "date_time_original")
		if timeZone != nil {
			list = appendUnique(list, "time_zone")
		}
		sort.Strings(list)
		out, _ := json.Marshal(list)
		if _, err := tx.ExecContext(ctx,
			`UPDATE asset_exif SET locked_properties = ? WHERE asset_id = ?`,
			string(out), assetID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
