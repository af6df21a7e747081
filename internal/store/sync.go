package store

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"time"
)

// SyncStore runs the paged change scans behind the sync stream. Upsert
// scans page over update_id, delete scans over the audit-row id; both are
// UUIDv7 strings so `> ack ORDER BY ... LIMIT n` resumes exactly where the
// client acked.
type SyncStore struct {
	db *sql.DB
}

// SyncItem is one streamable change: the payload plus the watermark the
// client acks after applying it.
type SyncItem struct {
	Ack  string
	Data any
}

// Wire payloads. Field names are part of the client contract.

type SyncUserV1 struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	DeletedAt *time.Time `json:"deletedAt"`
}

type SyncUserDeleteV1 struct {
	UserID string `json:"userId"`
}

type SyncPartnerV1 struct {
	SharedByID   string `json:"sharedById"`
	SharedWithID string `json:"sharedWithId"`
	InTimeline   bool   `json:"inTimeline"`
}

type SyncPartnerDeleteV1 struct {
	SharedByID   string `json:"sharedById"`
	SharedWithID string `json:"sharedWithId"`
}

type SyncAssetV1 struct {
	ID               string     `json:"id"`
	OwnerID          string     `json:"ownerId"`
	LibraryID        *string    `json:"libraryId"`
	OriginalFileName string     `json:"originalFileName"`
	Checksum         string     `json:"checksum"`
	Thumbhash        *string    `json:"thumbhash"`
	FileCreatedAt    time.Time  `json:"fileCreatedAt"`
	FileModifiedAt   time.Time  `json:"fileModifiedAt"`
	LocalDateTime    time.Time  `json:"localDateTime"`
	Type             string     `json:"type"`
	Visibility       string     `json:"visibility"`
	IsFavorite       bool       `json:"isFavorite"`
	Duration         *string    `json:"duration"`
	StackID          *string    `json:"stackId"`
	LivePhotoVideoID *string    `json:"livePhotoVideoId"`
	Width            *int64     `json:"width"`
	Height           *int64     `json:"height"`
	IsEdited         bool       `json:"isEdited"`
	DeletedAt        *time.Time `json:"deletedAt"`
}

type SyncAssetDeleteV1 struct {
	AssetID string `json:"assetId"`
}

type SyncStackV1 struct {
	ID             string    `json:"id"`
	OwnerID        string    `json:"ownerId"`
	PrimaryAssetID string    `json:"primaryAssetId"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type SyncStackDeleteV1 struct {
	StackID string `json:"stackId"`
}

type SyncAlbumV1 struct {
	ID                string    `json:"id"`
	OwnerID           string    `json:"ownerId"`
	Name              string    `json:"name"`
	Description       string    `json:"description"`
	ThumbnailAssetID  *string   `json:"thumbnailAssetId"`
	IsActivityEnabled bool      `json:"isActivityEnabled"`
	Order             string    `json:"order"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

type SyncAlbumDeleteV1 struct {
	AlbumID string `json:"albumId"`
}

type SyncAlbumUserV1 struct {
	AlbumID string `json:"albumId"`
	UserID  string `json:"userId"`
	Role    string `json:"role"`
}

type SyncAlbumUserDeleteV1 struct {
	AlbumID string `json:"albumId"`
	UserID  string `json:"userId"`
}

type SyncAlbumToAssetV1 struct {
	AlbumID string `json:"albumId"`
	AssetID string `json:"assetId"`
}

type SyncAlbumToAssetDeleteV1 struct {
	AlbumID string `json:"albumId"`
	AssetID string `json:"assetId"`
}

type SyncAssetExifV1 struct {
	AssetID            string     `json:"assetId"`
	Make               *string    `json:"make"`
	Model              *string    `json:"model"`
	ExifImageWidth     *int64     `json:"exifImageWidth"`
	ExifImageHeight    *int64     `json:"exifImageHeight"`
	FileSizeInByte     *int64     `json:"fileSizeInByte"`
	Orientation        *string    `json:"orientation"`
	DateTimeOriginal   *time.Time `json:"dateTimeOriginal"`
	ModifyDate         *time.Time `json:"modifyDate"`
	TimeZone           *string    `json:"timeZone"`
	Latitude           *float64   `json:"latitude"`
	Longitude          *float64   `json:"longitude"`
	ProjectionType     *string    `json:"projectionType"`
	City               *string    `json:"city"`
	State              *string    `json:"state"`
	Country            *string    `json:"country"`
	Description        string     `json:"description"`
	FPS                *float64   `json:"fps"`
	ExposureTime       *string    `json:"exposureTime"`
	Rating             *int64     `json:"rating"`
	ISO                *int64     `json:"iso"`
	FNumber            *float64   `json:"fNumber"`
	FocalLength        *float64   `json:"focalLength"`
	LensModel          *string    `json:"lensModel"`
	LivePhotoCID       *string    `json:"livePhotoCID"`
	AutoStackID        *string    `json:"autoStackId"`
	Colorspace         *string    `json:"colorspace"`
	BitsPerSample      *int64     `json:"bitsPerSample"`
	ProfileDescription *string    `json:"profileDescription"`
	Tags               []string   `json:"tags"`
	LockedProperties   []string   `json:"lockedProperties"`
}

type SyncMemoryV1 struct {
	ID       string     `json:"id"`
	OwnerID  string     `json:"ownerId"`
	Type     string     `json:"type"`
	Data     string     `json:"data"`
	IsSaved  bool       `json:"isSaved"`
	MemoryAt time.Time  `json:"memoryAt"`
	SeenAt   *time.Time `json:"seenAt"`
}

type SyncMemoryDeleteV1 struct {
	MemoryID string `json:"memoryId"`
}

type SyncMemoryToAssetV1 struct {
	MemoryID string `json:"memoryId"`
	AssetID  string `json:"assetId"`
}

type SyncMemoryToAssetDeleteV1 struct {
	MemoryID string `json:"memoryId"`
	AssetID  string `json:"assetId"`
}

type SyncUserMetadataV1 struct {
	UserID string `json:"userId"`
	Key    string `json:"key"`
	Value  string `json:"value"`
}

type SyncUserMetadataDeleteV1 struct {
	UserID string `json:"userId"`
	Key    string `json:"key"`
}

type SyncAssetMetadataV1 struct {
	AssetID string `json:"assetId"`
	Key     string `json:"key"`
	Value   string `json:"value"`
}

type SyncAssetMetadataDeleteV1 struct {
	AssetID string `json:"assetId"`
	Key     string `json:"key"`
}

// albumScope matches albums the user owns or is a member of.
const albumScope = `(owner_id = ?1 OR id IN (SELECT album_id FROM album_users WHERE user_id = ?1))`

// ScanAuthUsers emits the caller's own user row when it changed.
func (s *SyncStore) ScanAuthUsers(ctx context.Context, userID, after string, limit int) ([]SyncItem, error) {
	return s.scanUsers(ctx, `id = ? AND update_id > ?`, []any{userID, after}, limit)
}

// ScanUsers emits every changed user row; the user directory is global.
func (s *SyncStore) ScanUsers(ctx context.Context, after string, limit int) ([]SyncItem, error) {
	return s.scanUsers(ctx, `update_id > ?`, []any{after}, limit)
}

func (s *SyncStore) scanUsers(ctx context.Context, where string, args []any, limit int) ([]SyncItem, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT update_id, id, email, name, deleted_at FROM users
	WHERE `+where+` ORDER BY update_id LIMIT ?`, append(args, limit)...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []SyncItem
	for rows.Next() {
		var ack string
		var u SyncUserV1
		var deletedAt sql.NullString
		if err := rows.Scan(&ack, &u.ID, &u.Email, &u.Name, &deletedAt); err != nil {
			return nil, err
		}
		u.DeletedAt = parseTimePtr(deletedAt)
		out = append(out, SyncItem{Ack: ack, Data: u})
	}
	return out, rows.Err()
}

// ScanUserDeletes emits removals from the user directory.
func (s *SyncStore) ScanUserDeletes(ctx context.Context, after string, limit int) ([]SyncItem, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, user_id FROM users_audit WHERE id > ? ORDER BY id LIMIT ?`, after, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []SyncItem
	for rows.Next() {
		var ack string
		var d SyncUserDeleteV1
		if err := rows.Scan(&ack, &d.UserID); err != nil {
			return nil, err
		}
		out = append(out, SyncItem{Ack: ack, Data: d})
	}
	return out, rows.Err()
}

// ScanPartners emits partnership rows touching the caller.
func (s *SyncStore) ScanPartners(ctx context.Context, userID, after string, limit int) ([]SyncItem, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT update_id, shared_by_id, shared_with_id, in_timeline FROM partners
	WHERE (shared_by_id = ?1 OR shared_with_id = ?1) AND update_id > ?2
	ORDER BY update_id LIMIT ?3`, userID, after, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []SyncItem
	for rows.Next() {
		var ack string
		var p SyncPartnerV1
		if err := rows.Scan(&ack, &p.SharedByID, &p.SharedWithID, &p.InTimeline); err != nil {
			return nil, err
		}
		out = append(out, SyncItem{Ack: ack, Data: p})
	}
	return out, rows.Err()
}

// ScanPartnerDeletes emits partnership revocations touching the caller.
func (s *SyncStore) ScanPartnerDeletes(ctx context.Context, userID, after string, limit int) ([]SyncItem, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, shared_by_id, shared_with_id FROM partners_audit
	WHERE (shared_by_id = ?1 OR shared_with_id = ?1) AND id > ?2
	ORDER BY id LIMIT ?3`, userID, after, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []SyncItem
	for rows.Next() {
		var ack string
		var d SyncPartnerDeleteV1
		if err := rows.Scan(&ack, &d.SharedByID, &d.SharedWithID); err != nil {
			return nil, err
		}
		out = append(out, SyncItem{Ack: ack, Data: d})
	}
	return out, rows.Err()
}

// ScanAssets emits the caller's changed active assets. Trashed and deleted
// assets travel as AssetDeleteV1 instead; restore bumps update_id so the
// asset reappears here.
func (s *SyncStore) ScanAssets(ctx context.Context, userID, after string, limit int) ([]SyncItem, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT update_id, id, owner_id, library_id, original_file_name, checksum, thumbhash,
		file_created_at, file_modified_at, local_date_time, type, visibility,
		is_favorite, duration, stack_id, live_photo_video_id, width, height,
		EXISTS (SELECT 1 FROM asset_files f WHERE f.asset_id = assets.id AND f.is_edited = 1),
		deleted_at
	FROM assets
	WHERE owner_id = ? AND status = 'active' AND update_id > ?
	ORDER BY update_id LIMIT ?`, userID, after, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []SyncItem
	for rows.Next() {
		item, err := scanSyncAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func scanSyncAsset(rows *sql.Rows) (SyncItem, error) {
	var ack string
	var a SyncAssetV1
	var checksum, thumbhash []byte
	var fileCreated, fileModified, localDT string
	var libraryID, duration, stackID, livePhoto, deletedAt sql.NullString
	var width, height sql.NullInt64
	err := rows.Scan(&ack, &a.ID, &a.OwnerID, &libraryID, &a.OriginalFileName, &checksum, &thumbhash,
		&fileCreated, &fileModified, &localDT, &a.Type, &a.Visibility,
		&a.IsFavorite, &duration, &stackID, &livePhoto, &width, &height,
		&a.IsEdited, &deletedAt)
	if err != nil {
		return SyncItem{}, err
	}
	a.LibraryID = strPtr(libraryID)
	a.Checksum = base64.StdEncoding.EncodeToString(checksum)
	if len(thumbhash) > 0 {
		th := base64.StdEncoding.EncodeToString(thumbhash)
		a.Thumbhash = &th
	}
	a.FileCreatedAt = parseTime(fileCreated)
	a.FileModifiedAt = parseTime(fileModified)
	a.LocalDateTime = parseTime(localDT)
	a.Duration = strPtr(duration)
	a.StackID = strPtr(stackID)
	a.LivePhotoVideoID = strPtr(livePhoto)
	a.Width = intPtr(width)
	a.Height = intPtr(height)
	a.DeletedAt = parseTimePtr(deletedAt)
	return SyncItem{Ack: ack, Data: a}, nil
}

// ScanAssetDeletes emits the caller's trashed and purged assets.
func (s *SyncStore) ScanAssetDeletes(ctx context.Context, userID, after string, limit int) ([]SyncItem, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, asset_id FROM assets_audit
	WHERE owner_id = ? AND id > ? ORDER BY id LIMIT ?`, userID, after, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []SyncItem
	for rows.Next() {
		var ack string
		var d SyncAssetDeleteV1
		if err := rows.Scan(&ack, &d.AssetID); err != nil {
			return nil, err
		}
		out = append(out, SyncItem{Ack: ack, Data: d})
	}
	return out, rows.Err()
}

// ScanStacks emits the caller's changed stacks.
func (s *SyncStore) ScanStacks(ctx context.Context, userID, after string, limit int) ([]SyncItem, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT update_id, id, owner_id, primary_asset_id, created_at, updated_at FROM stacks
	WHERE owner_id = ? AND update_id > ? ORDER BY update_id LIMIT ?`, userID, after, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []SyncItem
	for rows.Next() {
		var ack, createdAt, updatedAt string
		var st SyncStackV1
		if err := rows.Scan(&ack, &st.ID, &st.OwnerID, &st.PrimaryAssetID, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		st.CreatedAt = parseTime(createdAt)
		st.UpdatedAt = parseTime(updatedAt)
		out = append(out, SyncItem{Ack: ack, Data: st})
	}
	return out, rows.Err()
}

// ScanStackDeletes emits the caller's dissolved stacks.
func (s *SyncStore) ScanStackDeletes(ctx context.Context, userID, after string, limit int) ([]SyncItem, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, stack_id FROM stacks_audit
	WHERE owner_id = ? AND id > ? ORDER BY id LIMIT ?`, userID, after, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []SyncItem
	for rows.Next() {
		var ack string
		var d SyncStackDeleteV1
		if err := rows.Scan(&ack, &d.StackID); err != nil {
			return nil, err
		}
		out = append(out, SyncItem{Ack: ack, Data: d})
	}
	return out, rows.Err()
}

// ScanAlbums emits changed albums the caller owns or is a member of.
func (s *SyncStore) ScanAlbums(ctx context.Context, userID, after string, limit int) ([]SyncItem, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT update_id, id, owner_id, name, description, thumbnail_asset_id,
		is_activity_enabled, sort_order, created_at, updated_at
	FROM albums
	WHERE `+albumScope+` AND update_id > ?2
	ORDER BY update_id LIMIT ?3`, userID, after, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []SyncItem
	for rows.Next() {
		var ack, createdAt, updatedAt string
		var thumb sql.NullString
		var a SyncAlbumV1
		if err := rows.Scan(&ack, &a.ID, &a.OwnerID, &a.Name, &a.Description, &thumb,
			&a.IsActivityEnabled, &a.Order, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		a.ThumbnailAssetID = strPtr(thumb)
		a.CreatedAt = parseTime(createdAt)
		a.UpdatedAt = parseTime(updatedAt)
		out = append(out, SyncItem{Ack: ack, Data: a})
	}
	return out, rows.Err()
}

// ScanAlbumDeletes emits album deletions. Scoping deletes to past
// membership is not reconstructible from the audit row, so deletions are
// emitted globally; clients drop ids they never knew.
func (s *SyncStore) ScanAlbumDeletes(ctx context.Context, after string, limit int) ([]SyncItem, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, album_id FROM albums_audit WHERE id > ? ORDER BY id LIMIT ?`, after, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []SyncItem
	for rows.Next() {
		var ack string
		var d SyncAlbumDeleteV1
		if err := rows.Scan(&ack, &d.AlbumID); err != nil {
			return nil, err
		}
		out = append(out, SyncItem{Ack: ack, Data: d})
	}
	return out, rows.Err()
}

// ScanAlbumUsers emits membership rows of albums visible to the caller.
func (s *SyncStore) ScanAlbumUsers(ctx context.Context, userID, after string, limit int) ([]SyncItem, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT au.update_id, au.album_id, au.user_id, au.role FROM album_users au
	WHERE au.album_id IN (SELECT id FROM albums WHERE `+albumScope+`) AND au.update_id > ?2
	ORDER BY au.update_id LIMIT ?3`, userID, after, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []SyncItem
	for rows.Next() {
		var ack string
		var au SyncAlbumUserV1
		if err := rows.Scan(&ack, &au.AlbumID, &au.UserID, &au.Role); err != nil {
			return nil, err
		}
		out = append(out, SyncItem{Ack: ack, Data: au})
	}
	return out, rows.Err()
}

// ScanAlbumUserDeletes emits membership revocations, globally scoped for
// the same reason as album deletions.
func (s *SyncStore) ScanAlbumUserDeletes(ctx context.Context, after string, limit int) ([]SyncItem, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, album_id, user_id FROM album_users_audit WHERE id > ? ORDER BY id LIMIT ?`,
		after, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []SyncItem
	for rows.Next() {
		var ack string
		var d SyncAlbumUserDeleteV1
		if err := rows.Scan(&ack, &d.AlbumID, &d.UserID); err != nil {
			return nil, err
		}
		out = append(out, SyncItem{Ack: ack, Data: d})
	}
	return out, rows.Err()
}

// ScanAlbumToAssets emits membership edges of albums visible to the caller.
func (s *SyncStore) ScanAlbumToAssets(ctx context.Context, userID, after string, limit int) ([]SyncItem, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT aa.update_id, aa.album_id, aa.asset_id FROM album_assets aa
	WHERE aa.album_id IN (SELECT id FROM albums WHERE `+albumScope+`) AND aa.update_id > ?2
	ORDER BY aa.update_id LIMIT ?3`, userID, after, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []SyncItem
	for rows.Next() {
		var ack string
		var e SyncAlbumToAssetV1
		if err := rows.Scan(&ack, &e.AlbumID, &e.AssetID); err != nil {
			return nil, err
		}
		out = append(out, SyncItem{Ack: ack, Data: e})
	}
	return out, rows.Err()
}

// ScanAlbumToAssetDeletes emits removed membership edges, globally scoped.
func (s *SyncStore) ScanAlbumToAssetDeletes(ctx context.Context, after string, limit int) ([]SyncItem, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, album_id, asset_id FROM album_assets_audit WHERE id > ? ORDER BY id LIMIT ?`,
		after, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []SyncItem
	for rows.Next() {
		var ack string
		var d SyncAlbumToAssetDeleteV1
		if err := rows.Scan(&ack, &d.AlbumID, &d.AssetID); err != nil {
			return nil, err
		}
		out = append(out, SyncItem{Ack: ack, Data: d})
	}
	return out, rows.Err()
}

// ScanAssetExifs emits changed exif rows of the caller's active assets.
// Exif rows have no delete stream; the asset delete covers them.
func (s *SyncStore) ScanAssetExifs(ctx context.Context, userID, after string, limit int) ([]SyncItem, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT e.update_id, e.asset_id, e.make, e.model, e.exif_image_width, e.exif_image_height,
		e.file_size_byte, e.orientation, e.date_time_original, e.modify_date, e.time_zone,
		e.latitude, e.longitude, e.projection_type, e.city, e.state, e.country, e.description,
		e.fps, e.exposure_time, e.rating, e.iso, e.f_number, e.focal_length, e.lens_model,
		e.live_photo_cid, e.auto_stack_id, e.colorspace, e.bits_per_sample,
		e.profile_description, e.locked_properties,
		(SELECT json_group_array(t.value) FROM tag_assets ta
			JOIN tags t ON t.id = ta.tag_id WHERE ta.asset_id = e.asset_id)
	FROM asset_exif e
	JOIN assets a ON a.id = e.asset_id
	WHERE a.owner_id = ? AND a.status = 'active' AND e.update_id > ?
	ORDER BY e.update_id LIMIT ?`, userID, after, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []SyncItem
	for rows.Next() {
		var ack string
		var e SyncAssetExifV1
		var mk, model, orientation, dto, modDate, tz, proj, city, state, country sql.NullString
		var expTime, lens, liveCID, autoStack, colorspace, profileDesc sql.NullString
		var width, height, size, rating, iso, bps sql.NullInt64
		var lat, lng, fps, fnum, focal sql.NullFloat64
		var lockedJSON string
		var tagsJSON sql.NullString
		if err := rows.Scan(&ack, &e.AssetID, &mk, &model, &width, &height,
			&size, &orientation, &dto, &modDate, &tz,
			&lat, &lng, &proj, &city, &state, &country, &e.Description,
			&fps, &expTime, &rating, &iso, &fnum, &focal, &lens,
			&liveCID, &autoStack, &colorspace, &bps,
			&profileDesc, &lockedJSON, &tagsJSON); err != nil {
			return nil, err
		}
		e.Make = strPtr(mk)
		e.Model = strPtr(model)
		e.ExifImageWidth = intPtr(width)
		e.ExifImageHeight = intPtr(height)
		e.FileSizeInByte = intPtr(size)
		e.Orientation = strPtr(orientation)
		e.DateTimeOriginal = parseTimePtr(dto)
		e.ModifyDate = parseTimePtr(modDate)
		e.TimeZone = strPtr(tz)
		e.Latitude = floatPtr(lat)
		e.Longitude = floatPtr(lng)
		e.ProjectionType = strPtr(proj)
		e.City = strPtr(city)
		e.State = strPtr(state)
		e.Country = strPtr(country)
		e.FPS = floatPtr(fps)
		e.ExposureTime = strPtr(expTime)
		e.Rating = intPtr(rating)
		e.ISO = intPtr(iso)
		e.FNumber = floatPtr(fnum)
		e.FocalLength = floatPtr(focal)
		e.LensModel = strPtr(lens)
		e.LivePhotoCID = strPtr(liveCID)
		e.AutoStackID = strPtr(autoStack)
		e.Colorspace = strPtr(colorspace)
		e.BitsPerSample = intPtr(bps)
		e.ProfileDescription = strPtr(profileDesc)
		e.LockedProperties = decodeStringList(lockedJSON)
		if tagsJSON.Valid {
			e.Tags = decodeStringList(tagsJSON.String)
		}
		if e.Tags == nil {
			e.Tags = []string{}
		}
		out = append(out, SyncItem{Ack: ack, Data: e})
	}
	return out, rows.Err()
}

func decodeStringList(raw string) []string {
	var out []string
	if raw == "" {
		return []string{}
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil || out == nil {
		return []string{}
	}
	return out
}

// ScanMemories emits the caller's changed live memories.
func (s *SyncStore) ScanMemories(ctx context.Context, userID, after string, limit int) ([]SyncItem, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT update_id, id, owner_id, type, data, is_saved, memory_at, seen_at FROM memories
	WHERE owner_id = ? AND deleted_at IS NULL AND update_id > ?
	ORDER BY update_id LIMIT ?`, userID, after, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []SyncItem
	for rows.Next() {
		var ack, memoryAt string
		var seenAt sql.NullString
		var m SyncMemoryV1
		if err := rows.Scan(&ack, &m.ID, &m.OwnerID, &m.Type, &m.Data, &m.IsSaved, &memoryAt, &seenAt); err != nil {
			return nil, err
		}
		m.MemoryAt = parseTime(memoryAt)
		m.SeenAt = parseTimePtr(seenAt)
		out = append(out, SyncItem{Ack: ack, Data: m})
	}
	return out, rows.Err()
}

// ScanMemoryDeletes emits the caller's deleted memories.
func (s *SyncStore) ScanMemoryDeletes(ctx context.Context, userID, after string, limit int) ([]SyncItem, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, memory_id FROM memories_audit
	WHERE owner_id = ? AND id > ? ORDER BY id LIMIT ?`, userID, after, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []SyncItem
	for rows.Next() {
		var ack string
		var d SyncMemoryDeleteV1
		if err := rows.Scan(&ack, &d.MemoryID); err != nil {
			return nil, err
		}
		out = append(out, SyncItem{Ack: ack, Data: d})
	}
	return out, rows.Err()
}

// ScanMemoryToAssets emits membership edges of the caller's memories.
func (s *SyncStore) ScanMemoryToAssets(ctx context.Context, userID, after string, limit int) ([]SyncItem, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT ma.update_id, ma.memory_id, ma.asset_id FROM memory_assets ma
	JOIN memories m ON m.id = ma.memory_id
	WHERE m.owner_id = ? AND ma.update_id > ?
	ORDER BY ma.update_id LIMIT ?`, userID, after, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []SyncItem
	for rows.Next() {
		var ack string
		var e SyncMemoryToAssetV1
		if err := rows.Scan(&ack, &e.MemoryID, &e.AssetID); err != nil {
			return nil, err
		}
		out = append(out, SyncItem{Ack: ack, Data: e})
	}
	return out, rows.Err()
}

// ScanMemoryToAssetDeletes emits removed memory edges, globally scoped
// since the audit row carries no owner.
func (s *SyncStore) ScanMemoryToAssetDeletes(ctx context.Context, after string, limit int) ([]SyncItem, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, memory_id, asset_id FROM memory_assets_audit WHERE id > ? ORDER BY id LIMIT ?`,
		after, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []SyncItem
	for rows.Next() {
		var ack string
		var d SyncMemoryToAssetDeleteV1
		if err := rows.Scan(&ack, &d.MemoryID, &d.AssetID); err != nil {
			return nil, err
		}
		out = append(out, SyncItem{Ack: ack, Data: d})
	}
	return out, rows.Err()
}

// ScanUserMetadata emits the caller's changed preference rows.
func (s *SyncStore) ScanUserMetadata(ctx context.Context, userID, after string, limit int) ([]SyncItem, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT update_id, user_id, key, value FROM user_metadata
	WHERE user_id = ? AND update_id > ? ORDER BY update_id LIMIT ?`, userID, after, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []SyncItem
	for rows.Next() {
		var ack string
		var m SyncUserMetadataV1
		if err := rows.Scan(&ack, &m.UserID, &m.Key, &m.Value); err != nil {
			return nil, err
		}
		out = append(out, SyncItem{Ack: ack, Data: m})
	}
	return out, rows.Err()
}

// ScanUserMetadataDeletes emits the caller's removed preference keys.
func (s *SyncStore) ScanUserMetadataDeletes(ctx context.Context, userID, after string, limit int) ([]SyncItem, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, user_id, key FROM user_metadata_audit
	WHERE user_id = ? AND id > ? ORDER BY id LIMIT ?`, userID, after, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []SyncItem
	for rows.Next() {
		var ack string
		var d SyncUserMetadataDeleteV1
		if err := rows.Scan(&ack, &d.UserID, &d.Key); err != nil {
			return nil, err
		}
		out = append(out, SyncItem{Ack: ack, Data: d})
	}
	return out, rows.Err()
}

// ScanAssetMetadata emits changed per-asset metadata on the caller's assets.
func (s *SyncStore) ScanAssetMetadata(ctx context.Context, userID, after string, limit int) ([]SyncItem, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT am.update_id, am.asset_id, am.key, am.value FROM asset_metadata am
	JOIN assets a ON a.id = am.asset_id
	WHERE a.owner_id = ? AND am.update_id > ?
	ORDER BY am.update_id LIMIT ?`, userID, after, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []SyncItem
	for rows.Next() {
		var ack string
		var m SyncAssetMetadataV1
		if err := rows.Scan(&ack, &m.AssetID, &m.Key, &m.Value); err != nil {
			return nil, err
		}
		out = append(out, SyncItem{Ack: ack, Data: m})
	}
	return out, rows.Err()
}

// ScanAssetMetadataDeletes emits the caller's removed asset-metadata keys.
func (s *SyncStore) ScanAssetMetadataDeletes(ctx context.Context, userID, after string, limit int) ([]SyncItem, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, asset_id, key FROM asset_metadata_audit
	WHERE owner_id = ? AND id > ? ORDER BY id LIMIT ?`, userID, after, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []SyncItem
	for rows.Next() {
		var ack string
		var d SyncAssetMetadataDeleteV1
		if err := rows.Scan(&ack, &d.AssetID, &d.Key); err != nil {
			return nil, err
		}
		out = append(out, SyncItem{Ack: ack, Data: d})
	}
	return out, rows.Err()
}

const syncAssetCols = `id, owner_id, library_id, original_file_name, checksum, thumbhash,
	file_created_at, file_modified_at, local_date_time, type, visibility,
	is_favorite, duration, stack_id, live_photo_video_id, width, height,
	EXISTS (SELECT 1 FROM asset_files f WHERE f.asset_id = assets.id AND f.is_edited = 1),
	deleted_at`

// LegacyFullSync pages one owner's assets by primary key for the
// pre-streaming protocol.
func (s *SyncStore) LegacyFullSync(ctx context.Context, ownerID, lastID string, updatedUntil time.Time, limit int) ([]SyncAssetV1, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT update_id, `+syncAssetCols+`
	FROM assets
	WHERE owner_id = ? AND status != 'deleted' AND id > ? AND updated_at <= ?
	ORDER BY id LIMIT ?`, ownerID, lastID, fmtTime(updatedUntil), limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []SyncAssetV1
	for rows.Next() {
		item, err := scanSyncAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item.Data.(SyncAssetV1))
	}
	return out, rows.Err()
}

// LegacyDeltaChanged returns assets of the given owners changed since
// updatedAfter, up to limit+1 rows so the caller can detect truncation.
// Rows owned by someone other than selfID only qualify when on the
// timeline.
func (s *SyncStore) LegacyDeltaChanged(ctx context.Context, selfID string, ownerIDs []string, updatedAfter time.Time, limit int) ([]SyncAssetV1, error) {
	args := []any{}
	ph := placeholders(len(ownerIDs))
	args = append(args, anySlice(ownerIDs)...)
	args = append(args, fmtTime(updatedAfter), selfID, limit+1)
	rows, err := s.db.QueryContext(ctx, `
	SELECT update_id, `+syncAssetCols+`
	FROM assets
	WHERE owner_id IN (`+ph+`) AND status = 'active' AND updated_at > ?
		AND (owner_id = ? OR visibility = 'timeline')
	ORDER BY update_id LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []SyncAssetV1
	for rows.Next() {
		item, err := scanSyncAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item.Data.(SyncAssetV1))
	}
	return out, rows.Err()
}

// LegacyDeltaDeleted returns asset ids audited as deleted since
// updatedAfter for the given owners.
func (s *SyncStore) LegacyDeltaDeleted(ctx context.Context, ownerIDs []string, updatedAfter time.Time) ([]string, error) {
	args := append(anySlice(ownerIDs), fmtTime(updatedAfter))
	rows, err := s.db.QueryContext(ctx, `
	SELECT asset_id FROM assets_audit
	WHERE owner_id IN (`+placeholders(len(ownerIDs))+`) AND deleted_at > ?
	ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	ids := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		ids = append(ids, v)
	}
	return ids, rows.Err()
}
