// Package view serves the browse surfaces: month buckets for the
// timeline grid, a folder browser over original paths, and a random
// sampler.
package view

import (
	"context"
	"database/sql"
	"encoding/base64"
	"strings"
	"time"

	"github.com/jkov/photark/internal/domain"
	"github.com/jkov/photark/internal/store"
)

type Service struct {
	st *store.Store
	db *sql.DB
}

func New(st *store.Store) *Service {
	return &Service{st: st, db: st.DB()}
}

// TimelineOptions narrows bucket queries. UserIDs holds the requesting
// user plus any timeline partners the caller resolved.
type TimelineOptions struct {
	UserIDs    []string
	AlbumID    *string
	TagID      *string
	IsFavorite *bool
	Visibility domain.AssetVisibility
	IsTrashed  bool
	Order      domain.SortOrder
}

// TimeBucket is one month of the timeline.
type TimeBucket struct {
	TimeBucket string `json:"timeBucket"`
	Count      int64  `json:"count"`
}

// Buckets groups assets by month of localDateTime.
func (s *Service) Buckets(ctx context.Context, opts TimelineOptions) ([]TimeBucket, error) {
	where, args := bucketFilter(opts)
	dir := "DESC"
	if opts.Order == domain.SortAsc {
		dir = "ASC"
	}
	rows, err := s.db.QueryContext(ctx, `
	SELECT strftime('%Y-%m-01', a.local_date_time) AS bucket, COUNT(*)
	FROM assets a
	WHERE `+where+`
	GROUP BY bucket
	ORDER BY bucket `+dir, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := []TimeBucket{}
	for rows.Next() {
		var b TimeBucket
		if err := rows.Scan(&b.TimeBucket, &b.Count); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// BucketAssets is the columnar (struct-of-arrays) expansion of one
// bucket. Every slice has the same length; mobile clients render the
// grid incrementally from it.
type BucketAssets struct {
	ID               []string   `json:"id"`
	OwnerID          []string   `json:"ownerId"`
	Ratio            []float64  `json:"ratio"`
	IsFavorite       []bool     `json:"isFavorite"`
	Visibility       []string   `json:"visibility"`
	IsTrashed        []bool     `json:"isTrashed"`
	IsImage          []bool     `json:"isImage"`
	Thumbhash        []*string  `json:"thumbhash"`
	FileCreatedAt    []string   `json:"fileCreatedAt"`
	LocalOffsetHours []float64  `json:"localOffsetHours"`
	Duration         []*string  `json:"duration"`
	ProjectionType   []*string  `json:"projectionType"`
	LivePhotoVideoID []*string  `json:"livePhotoVideoId"`
	City             []*string  `json:"city"`
	Country          []*string  `json:"country"`
	Latitude         []*float64 `json:"latitude"`
	Longitude        []*float64 `json:"longitude"`
}

// Bucket expands one month into parallel arrays, ascending by
// localDateTime within the bucket for asc order and descending
// otherwise.
func (s *Service) Bucket(ctx context.Context, opts TimelineOptions, timeBucket string) (*BucketAssets, error) {
	where, args := bucketFilter(opts)
	where += ` AND strftime('%Y-%m-01', a.local_date_time) = ?`
	args = append(args, timeBucket)
	dir := "DESC"
	if opts.Order == domain.SortAsc {
		dir = "ASC"
	}
	rows, err := s.db.QueryContext(ctx, `
	SELECT a.id, a.owner_id, a.width, a.height, a.is_favorite, a.visibility,
		a.status, a.type, a.thumbhash, a.file_created_at, a.local_date_time,
		a.duration, a.live_photo_video_id,
		e.time_zone, e.projection_type, e.city, e.country, e.latitude, e.longitude
	FROM assets a
	LEFT JOIN asset_exif e ON e.asset_id = a.id
	WHERE `+where+`
	ORDER BY a.local_date_time `+dir, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := &BucketAssets{
		ID: []string{}, OwnerID: []string{}, Ratio: []float64{},
		IsFavorite: []bool{}, Visibility: []string{}, IsTrashed: []bool{},
		IsImage: []bool{}, Thumbhash: []*string{}, FileCreatedAt: []string{},
		LocalOffsetHours: []float64{}, Duration: []*string{}, ProjectionType: []*string{},
		LivePhotoVideoID: []*string{}, City: []*string{}, Country: []*string{},
		Latitude: []*float64{}, Longitude: []*float64{},
	}
	for rows.Next() {
		var (
			assetID, ownerID, visibility, status, typ string
			width, height                             sql.NullInt64
			isFavorite                                bool
			thumbhash                                 []byte
			fileCreatedAt, localDateTime              string
			duration, livePhotoVideoID                sql.NullString
			timeZone, projection, city, country       sql.NullString
			lat, lon                                  sql.NullFloat64
		)
		if err := rows.Scan(&assetID, &ownerID, &width, &height, &isFavorite,
			&visibility, &status, &typ, &thumbhash, &fileCreatedAt, &localDateTime,
			&duration, &livePhotoVideoID,
			&timeZone, &projection, &city, &country, &lat, &lon); err != nil {
			return nil, err
		}

		ratio := 1.0
		if width.Valid && height.Valid && height.Int64 > 0 {
			ratio = float64(width.Int64) / float64(height.Int64)
		}
		var th *string
		if len(thumbhash) > 0 {
			v := base64.StdEncoding.EncodeToString(thumbhash)
			th = &v
		}
		offset := 0.0
		if timeZone.Valid && timeZone.String != "" {
			offset = localOffsetHours(localDateTime, fileCreatedAt)
		}

		out.ID = append(out.ID, assetID)
		out.OwnerID = append(out.OwnerID, ownerID)
		out.Ratio = append(out.Ratio, ratio)
		out.IsFavorite = append(out.IsFavorite, isFavorite)
		out.Visibility = append(out.Visibility, visibility)
		out.IsTrashed = append(out.IsTrashed, status == string(domain.AssetStatusTrashed))
		out.IsImage = append(out.IsImage, typ == string(domain.AssetTypeImage))
		out.Thumbhash = append(out.Thumbhash, th)
		out.FileCreatedAt = append(out.FileCreatedAt, fileCreatedAt)
		out.LocalOffsetHours = append(out.LocalOffsetHours, offset)
		out.Duration = append(out.Duration, nullStr(duration))
		out.ProjectionType = append(out.ProjectionType, nullStr(projection))
		out.LivePhotoVideoID = append(out.LivePhotoVideoID, nullStr(livePhotoVideoID))
		out.City = append(out.City, nullStr(city))
		out.Country = append(out.Country, nullStr(country))
		out.Latitude = append(out.Latitude, nullFloat(lat))
		out.Longitude = append(out.Longitude, nullFloat(lon))
	}
	return out, rows.Err()
}

// bucketFilter builds the shared WHERE clause for bucket queries.
func bucketFilter(opts TimelineOptions) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if len(opts.UserIDs) > 0 {
		ph := make([]string, len(opts.UserIDs))
		for i, uid := range opts.UserIDs {
			ph[i] = "?"
			args = append(args, uid)
		}
		conds = append(conds, "a.owner_id IN ("+strings.Join(ph, ", ")+")")
	}
	if opts.IsTrashed {
		conds = append(conds, "a.status = 'trashed'")
	} else {
		conds = append(conds, "a.status = 'active'")
	}
	vis := opts.Visibility
	if vis == "" {
		vis = domain.VisibilityTimeline
	}
	conds = append(conds, "a.visibility = ?")
	args = append(args, string(vis))
	if opts.IsFavorite != nil {
		conds = append(conds, "a.is_favorite = ?")
		args = append(args, *opts.IsFavorite)
	}
	if opts.AlbumID != nil {
		conds = append(conds, "a.id IN (SELECT asset_id FROM album_assets WHERE album_id = ?)")
		args = append(args, *opts.AlbumID)
	}
	if opts.TagID != nil {
		conds = append(conds, "a.id IN (SELECT asset_id FROM tag_assets WHERE tag_id = ?)")
		args = append(args, *opts.TagID)
	}
	return strings.Join(conds, " AND "), args
}

// UniqueOriginalPaths lists the distinct directory parts of the user's
// original paths, up to and including the final slash.
func (s *Service) UniqueOriginalPaths(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT DISTINCT original_path FROM assets
	WHERE owner_id = ? AND status = 'active'`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	seen := map[string]struct{}{}
	out := []string{}
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		i := strings.LastIndexByte(p, '/')
		if i < 0 {
			continue
		}
		dir := p[:i+1]
		if _, ok := seen[dir]; ok {
			continue
		}
		seen[dir] = struct{}{}
		out = append(out, dir)
	}
	return out, rows.Err()
}

// AssetsByOriginalPath returns the direct children of one directory:
// assets whose path starts with the prefix and has no further slash
// after it. Newest first.
func (s *Service) AssetsByOriginalPath(ctx context.Context, userID, prefix string) ([]*domain.Asset, error) {
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	rows, err := s.db.QueryContext(ctx, `
	SELECT id FROM assets
	WHERE owner_id = ? AND status = 'active'
		AND substr(original_path, 1, ?) = ?
		AND instr(substr(original_path, ?), '/') = 0
	ORDER BY file_created_at DESC`,
		userID, len(prefix), prefix, len(prefix)+1)
	if err != nil {
		return nil, err
	}
	ids, err := collectIDs(rows)
	if err != nil {
		return nil, err
	}
	return s.assetsInOrder(ctx, ids)
}

// Random samples count non-hidden assets across the user and their
// timeline partners.
func (s *Service) Random(ctx context.Context, userID string, count int) ([]*domain.Asset, error) {
	if count <= 0 {
		count = 1
	}
	// Partners contribute timeline assets only; archive stays private
	// to its owner.
	rows, err := s.db.QueryContext(ctx, `
	SELECT id FROM assets
	WHERE status = 'active'
		AND ((owner_id = ?1 AND visibility IN ('timeline', 'archive'))
			OR (visibility = 'timeline' AND owner_id IN (
				SELECT shared_by_id FROM partners WHERE shared_with_id = ?1 AND in_timeline = 1)))
	ORDER BY RANDOM() LIMIT ?2`, userID, count)
	if err != nil {
		return nil, err
	}
	ids, err := collectIDs(rows)
	if err != nil {
		return nil, err
	}
	return s.assetsInOrder(ctx, ids)
}

// assetsInOrder hydrates ids preserving the query's ordering;
// GetByIDs returns rows in store order.
func (s *Service) assetsInOrder(ctx context.Context, ids []string) ([]*domain.Asset, error) {
	if len(ids) == 0 {
		return []*domain.Asset{}, nil
	}
	assets, err := s.st.Assets.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*domain.Asset, len(assets))
	for _, a := range assets {
		byID[a.ID] = a
	}
	out := make([]*domain.Asset, 0, len(ids))
	for _, id := range ids {
		if a, ok := byID[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func collectIDs(rows *sql.Rows) ([]string, error) {
	defer func() { _ = rows.Close() }()
	var ids []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		ids = append(ids, v)
	}
	return ids, rows.Err()
}

// localOffsetHours derives the recorded UTC offset from the distance
// between the wall-clock localDateTime and the UTC fileCreatedAt.
func localOffsetHours(localDateTime, fileCreatedAt string) float64 {
	local, err1 := time.Parse(time.RFC3339Nano, localDateTime)
	created, err2 := time.Parse(time.RFC3339Nano, fileCreatedAt)
	if err1 != nil || err2 != nil {
		return 0
	}
	return local.Sub(created).Hours()
}

func nullStr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
