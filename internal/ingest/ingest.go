// Package ingest owns the write path for originals: upload, replace,
// existence probes and metadata updates. Content addressing is SHA-1 over
// the full byte stream; (owner, library, checksum) uniqueness turns
// re-uploads into duplicate answers instead of new rows.
package ingest

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jkov/photark/internal/apperr"
	"github.com/jkov/photark/internal/blob"
	"github.com/jkov/photark/internal/crypt"
	"github.com/jkov/photark/internal/domain"
	"github.com/jkov/photark/internal/id"
	"github.com/jkov/photark/internal/log"
	"github.com/jkov/photark/internal/media/exifmeta"
	"github.com/jkov/photark/internal/media/variants"
	"github.com/jkov/photark/internal/metrics"
	"github.com/jkov/photark/internal/store"
)

type Service struct {
	st        *store.Store
	blobs     blob.Store
	maxUpload int64
	log       zerolog.Logger
}

func New(st *store.Store, blobs blob.Store, maxUpload int64) *Service {
	return &Service{
		st:        st,
		blobs:     blobs,
		maxUpload: maxUpload,
		log:       log.WithComponent("ingest"),
	}
}

// UploadInput carries one multipart upload after HTTP decoding.
type UploadInput struct {
	Owner            *domain.User
	Body             io.Reader
	ChecksumHint     []byte // optional, from the checksum header
	DeviceAssetID    string
	DeviceID         string
	OriginalFileName string
	ContentType      string
	FileCreatedAt    time.Time
	FileModifiedAt   time.Time
	LocalDateTime    time.Time
	Duration         *string
	Visibility       domain.AssetVisibility
	IsFavorite       bool
	LivePhotoVideoID *string
	Sidecar          []byte
}

// UploadResult is the upload answer; Status duplicate carries the id of
// the earlier winning row.
type UploadResult struct {
	ID     string
	Status domain.UploadStatus
}

// Upload runs the write path end to end. Exif extraction and derivative
// rendering are best-effort; blob or row failures abort.
func (s *Service) Upload(ctx context.Context, in *UploadInput) (*UploadResult, error) {
	owner := in.Owner

	// A checksum header lets us answer duplicate before reading the body.
	if len(in.ChecksumHint) == 20 {
		existing, err := s.st.Assets.GetByChecksum(ctx, owner.ID, nil, in.ChecksumHint)
		switch {
		case err == nil:
			return &UploadResult{ID: existing.ID, Status: domain.UploadDuplicate}, nil
		case !apperr.Is(err, apperr.ErrNotFound):
			return nil, err
		}
	}

	data, err := s.readBounded(in.Body)
	if err != nil {
		return nil, err
	}
	size := int64(len(data))
	checksum := crypt.SHA1(data)

	if owner.QuotaSizeBytes != nil && owner.QuotaUsageBytes+size > *owner.QuotaSizeBytes {
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: %d bytes over", apperr.ErrQuotaExceeded,
			owner.QuotaUsageBytes+size-*owner.QuotaSizeBytes)
	}

	existing, err := s.st.Assets.GetByChecksum(ctx, owner.ID, nil, checksum)
	switch {
	case err == nil:
		metrics.UploadsTotal.WithLabelValues("duplicate").Inc()
		return &UploadResult{ID: existing.ID, Status: domain.UploadDuplicate}, nil
	case !apperr.Is(err, apperr.ErrNotFound):
		return nil, err
	}

	assetID := id.New()
	ext := strings.ToLower(path.Ext(in.OriginalFileName))
	key := blob.OriginalKey(owner.ID, assetID, ext)
	if _, err := s.blobs.Put(ctx, key, bytes.NewReader(data)); err != nil {
		return nil, err
	}

	now := time.Now()
	localDT := in.LocalDateTime
	if localDT.IsZero() {
		if dt, ok := exifmeta.DateTimeOriginal(data); ok {
			localDT = dt
		} else {
			localDT = in.FileCreatedAt
		}
	}
	visibility := in.Visibility
	if visibility == "" {
		visibility = domain.VisibilityTimeline
	}

	asset := &domain.Asset{
		ID:               assetID,
		OwnerID:          owner.ID,
		DeviceAssetID:    in.DeviceAssetID,
		DeviceID:         in.DeviceID,
		Checksum:         checksum,
		OriginalPath:     key,
		OriginalFileName: in.OriginalFileName,
		Type:             typeFromMIME(in.ContentType),
		Visibility:       visibility,
		IsFavorite:       in.IsFavorite,
		FileCreatedAt:    in.FileCreatedAt,
		FileModifiedAt:   in.FileModifiedAt,
		LocalDateTime:    localDT,
		Duration:         in.Duration,
		LivePhotoVideoID: in.LivePhotoVideoID,
		Status:           domain.AssetStatusActive,
		FileSizeBytes:    size,
		CreatedAt:        now,
		UpdatedAt:        now,
		UpdateID:         id.New(),
	}

	if err := s.st.Assets.Insert(ctx, asset); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			// Lost the insert race; the blob we wrote is orphaned and
			// left to the purge janitor.
			if winner, qerr := s.st.Assets.GetByChecksum(ctx, owner.ID, nil, checksum); qerr == nil {
				metrics.UploadsTotal.WithLabelValues("duplicate").Inc()
				return &UploadResult{ID: winner.ID, Status: domain.UploadDuplicate}, nil
			}
		}
		return nil, err
	}

	s.enrich(ctx, asset, data)

	if len(in.Sidecar) > 0 {
		sidecarKey := blob.SidecarKey(owner.ID, assetID)
		if _, err := s.blobs.Put(ctx, sidecarKey, bytes.NewReader(in.Sidecar)); err == nil {
			_ = s.st.Files.Upsert(ctx, &domain.AssetFile{
				ID:      id.New(),
				AssetID: assetID,
				Type:    domain.FileTypeSidecar,
				Path:    sidecarKey,
			})
		} else {
			s.log.Warn().Err(err).Str("asset", assetID).Msg("sidecar store failed")
		}
	}

	if err := s.st.Users.AdjustQuota(ctx, owner.ID, size); err != nil {
		return nil, err
	}

	metrics.UploadsTotal.WithLabelValues("created").Inc()
	metrics.UploadBytes.Add(float64(size))
	return &UploadResult{ID: assetID, Status: domain.UploadCreated}, nil
}

// enrich extracts exif and renders derivatives. Failures log and degrade.
func (s *Service) enrich(ctx context.Context, asset *domain.Asset, data []byte) {
	cols := exifmeta.Extract(data)
	if err := s.st.Exif.Upsert(ctx, asset.ID, cols, false); err != nil {
		s.log.Warn().Err(err).Str("asset", asset.ID).Msg("exif upsert failed")
	}

	if asset.Type != domain.AssetTypeImage {
		return
	}

	if w, h, err := variants.Dimensions(data); err == nil {
		asset.Width, asset.Height = &w, &h
		if err := s.st.Assets.UpdateMeta(ctx, asset); err != nil {
			s.log.Warn().Err(err).Str("asset", asset.ID).Msg("dimension update failed")
		}
	}

	if thumb, err := variants.Thumbnail(data); err == nil {
		key := blob.ThumbnailKey(asset.OwnerID, asset.ID)
		if _, err := s.blobs.Put(ctx, key, bytes.NewReader(thumb)); err == nil {
			_ = s.st.Files.Upsert(ctx, &domain.AssetFile{
				ID: id.New(), AssetID: asset.ID, Type: domain.FileTypeThumbnail, Path: key,
			})
		}
	} else {
		s.log.Debug().Err(err).Str("asset", asset.ID).Msg("thumbnail render failed")
	}

	if preview, err := variants.Preview(data); err == nil {
		key := blob.PreviewKey(asset.OwnerID, asset.ID)
		if _, err := s.blobs.Put(ctx, key, bytes.NewReader(preview)); err == nil {
			_ = s.st.Files.Upsert(ctx, &domain.AssetFile{
				ID: id.New(), AssetID: asset.ID, Type: domain.FileTypePreview, Path: key,
			})
		}
	} else {
		s.log.Debug().Err(err).Str("asset", asset.ID).Msg("preview render failed")
	}
}

// Replace swaps an asset's original bytes. Quota grows by the new size;
// the old bytes are reclaimed by the purge pipeline, not here.
func (s *Service) Replace(ctx context.Context, owner *domain.User, assetID string, in *UploadInput) (*UploadResult, error) {
	asset, err := s.st.Assets.GetByID(ctx, assetID)
	if err != nil {
		return nil, err
	}

	data, err := s.readBounded(in.Body)
	if err != nil {
		return nil, err
	}
	size := int64(len(data))
	checksum := crypt.SHA1(data)

	if owner.QuotaSizeBytes != nil && owner.QuotaUsageBytes+size > *owner.QuotaSizeBytes {
		return nil, fmt.Errorf("%w", apperr.ErrQuotaExceeded)
	}
	if bytes.Equal(checksum, asset.Checksum) {
		return &UploadResult{ID: asset.ID, Status: domain.UploadDuplicate}, nil
	}

	ext := strings.ToLower(path.Ext(in.OriginalFileName))
	key := blob.OriginalKey(owner.ID, asset.ID, ext)
	if _, err := s.blobs.Put(ctx, key, bytes.NewReader(data)); err != nil {
		return nil, err
	}

	asset.Checksum = checksum
	asset.OriginalPath = key
	asset.OriginalFileName = in.OriginalFileName
	asset.Type = typeFromMIME(in.ContentType)
	asset.FileCreatedAt = in.FileCreatedAt
	asset.FileModifiedAt = in.FileModifiedAt
	asset.LocalDateTime = in.LocalDateTime
	asset.FileSizeBytes = size
	asset.Duration = in.Duration
	if err := s.st.Assets.ReplaceOriginal(ctx, asset); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			if winner, qerr := s.st.Assets.GetByChecksum(ctx, owner.ID, nil, checksum); qerr == nil {
				return &UploadResult{ID: winner.ID, Status: domain.UploadDuplicate}, nil
			}
		}
		return nil, err
	}

	s.enrich(ctx, asset, data)

	if err := s.st.Users.AdjustQuota(ctx, owner.ID, size); err != nil {
		return nil, err
	}
	metrics.UploadsTotal.WithLabelValues("replaced").Inc()
	return &UploadResult{ID: asset.ID, Status: domain.UploadReplaced}, nil
}

// Exists returns the deviceAssetIds already present for (owner, device).
func (s *Service) Exists(ctx context.Context, ownerID, deviceID string, deviceAssetIDs []string) ([]string, error) {
	return s.st.Assets.ExistingDeviceAssetIDs(ctx, ownerID, deviceID, deviceAssetIDs)
}

// CheckResult is one bulk-upload-check verdict.
type CheckResult struct {
	Checksum  string
	Accept    bool
	AssetID   string
	IsTrashed bool
}

// BulkUploadCheck resolves a list of client checksums (hex or base64)
// against existing content.
func (s *Service) BulkUploadCheck(ctx context.Context, ownerID string, checksums []string) ([]CheckResult, error) {
	out := make([]CheckResult, 0, len(checksums))
	for _, raw := range checksums {
		sum, err := DecodeChecksum(raw)
		if err != nil {
			return nil, apperr.BadRequestf("bad checksum %q", raw)
		}
		res := CheckResult{Checksum: raw, Accept: true}
		existing, err := s.st.Assets.GetByChecksum(ctx, ownerID, nil, sum)
		switch {
		case err == nil:
			res.Accept = false
			res.AssetID = existing.ID
			res.IsTrashed = existing.Trashed()
		case !apperr.Is(err, apperr.ErrNotFound):
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

// MetaUpdate is the mutable per-asset metadata set. Nil fields are left
// alone; set exif fields are written with their columns locked so a later
// extractor run cannot undo the user's edit.
type MetaUpdate struct {
	IsFavorite       *bool
	Visibility       *domain.AssetVisibility
	LivePhotoVideoID *string
	DateTimeOriginal *time.Time
	Latitude         *float64
	Longitude        *float64
	Rating           *int64
	Description      *string
}

// UpdateAsset applies a single-asset metadata update.
func (s *Service) UpdateAsset(ctx context.Context, assetID string, up *MetaUpdate) (*domain.Asset, error) {
	asset, err := s.st.Assets.GetByID(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if up.IsFavorite != nil {
		asset.IsFavorite = *up.IsFavorite
	}
	if up.Visibility != nil {
		if !up.Visibility.IsValid() {
			return nil, apperr.BadRequestf("invalid visibility %q", *up.Visibility)
		}
		asset.Visibility = *up.Visibility
	}
	if up.LivePhotoVideoID != nil {
		asset.LivePhotoVideoID = up.LivePhotoVideoID
	}
	if err := s.st.Assets.UpdateMeta(ctx, asset); err != nil {
		return nil, err
	}

	cols := map[string]any{}
	if up.DateTimeOriginal != nil {
		cols["date_time_original"] = up.DateTimeOriginal.UTC().Format(time.RFC3339Nano)
	}
	if up.Latitude != nil {
		cols["latitude"] = *up.Latitude
	}
	if up.Longitude != nil {
		cols["longitude"] = *up.Longitude
	}
	if up.Rating != nil {
		cols["rating"] = *up.Rating
	}
	if up.Description != nil {
		cols["description"] = *up.Description
	}
	if len(cols) > 0 {
		if err := s.st.Exif.Upsert(ctx, asset.ID, cols, true); err != nil {
			return nil, err
		}
	}
	return s.st.Assets.GetByID(ctx, assetID)
}

// UpdateAssets applies one MetaUpdate to many assets, plus an optional
// relative capture-time shift in minutes applied SQL-side.
func (s *Service) UpdateAssets(ctx context.Context, assetIDs []string, up *MetaUpdate, shiftMinutes *int, timeZone *string) error {
	for _, assetID := range assetIDs {
		if _, err := s.UpdateAsset(ctx, assetID, up); err != nil {
			return err
		}
	}
	if shiftMinutes != nil && *shiftMinutes != 0 {
		return s.st.Exif.ShiftDateTime(ctx, assetIDs, *shiftMinutes, timeZone)
	}
	return nil
}

func (s *Service) readBounded(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.maxUpload+1))
	if err != nil {
		return nil, fmt.Errorf("ingest: read body: %w", err)
	}
	if int64(len(data)) > s.maxUpload {
		return nil, apperr.BadRequestf("upload exceeds %d bytes", s.maxUpload)
	}
	if len(data) == 0 {
		return nil, apperr.BadRequestf("empty upload")
	}
	return data, nil
}

// DecodeChecksum accepts the two client encodings of a SHA-1: 40-char hex
// or base64 of 20 bytes.
func DecodeChecksum(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) == 40 {
		if sum, err := hex.DecodeString(raw); err == nil {
			return sum, nil
		}
	}
	if sum, err := base64.StdEncoding.DecodeString(raw); err == nil && len(sum) == 20 {
		return sum, nil
	}
	if sum, err := base64.URLEncoding.DecodeString(raw); err == nil && len(sum) == 20 {
		return sum, nil
	}
	return nil, fmt.Errorf("ingest: undecodable checksum %q", raw)
}

func typeFromMIME(contentType string) domain.AssetType {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return domain.AssetTypeImage
	case strings.HasPrefix(contentType, "video/"):
		return domain.AssetTypeVideo
	case strings.HasPrefix(contentType, "audio/"):
		return domain.AssetTypeAudio
	default:
		return domain.AssetTypeOther
	}
}
