package ingest_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jkov/photark/internal/apperr"
	"github.com/jkov/photark/internal/blob"
	"github.com/jkov/photark/internal/crypt"
	"github.com/jkov/photark/internal/domain"
	"github.com/jkov/photark/internal/id"
	"github.com/jkov/photark/internal/ingest"
	"github.com/jkov/photark/internal/persistence/sqlite"
	"github.com/jkov/photark/internal/store"
)

func setup(t *testing.T) (*ingest.Service, *store.Store, blob.Store) {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"), sqlite.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, sqlite.Migrate(db))
	st := store.New(db)
	blobs, err := blob.NewFS(t.TempDir())
	require.NoError(t, err)
	return ingest.New(st, blobs, 1<<20), st, blobs
}

func newOwner(t *testing.T, st *store.Store, quota *int64) *domain.User {
	t.Helper()
	now := time.Now().UTC()
	u := &domain.User{
		ID: id.New(), Email: id.New() + "@example.com", PasswordHash: "x",
		Name: "Owner", QuotaSizeBytes: quota,
		Status: domain.UserStatusActive, CreatedAt: now, UpdatedAt: now, UpdateID: id.New(),
	}
	require.NoError(t, st.Users.Create(context.Background(), u))
	return u
}

func input(owner *domain.User, name string, body []byte) *ingest.UploadInput {
	now := time.Now().UTC()
	return &ingest.UploadInput{
		Owner:            owner,
		Body:             bytes.NewReader(body),
		DeviceAssetID:    "device-" + name,
		DeviceID:         "test-device",
		OriginalFileName: name,
		ContentType:      "image/jpeg",
		FileCreatedAt:    now.Add(-time.Hour),
		FileModifiedAt:   now,
	}
}

func TestUploadCreatesAsset(t *testing.T) {
	svc, st, blobs := setup(t)
	ctx := context.Background()
	owner := newOwner(t, st, nil)

	body := []byte("not really a jpeg but stored all the same")
	res, err := svc.Upload(ctx, input(owner, "sunset.jpg", body))
	require.NoError(t, err)
	assert.Equal(t, domain.UploadCreated, res.Status)

	a, err := st.Assets.GetByID(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, "sunset.jpg", a.OriginalFileName)
	assert.Equal(t, crypt.SHA1(body), a.Checksum)
	assert.Equal(t, domain.AssetTypeImage, a.Type)
	assert.Equal(t, domain.VisibilityTimeline, a.Visibility)
	assert.Equal(t, int64(len(body)), a.FileSizeBytes)
	// LocalDateTime falls back to file creation time for exif-less bodies.
	assert.Equal(t, a.FileCreatedAt.Unix(), a.LocalDateTime.Unix())

	rc, size, err := blobs.Open(ctx, a.OriginalPath)
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, int64(len(body)), size)

	got, err := st.Users.GetByID(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(len(body)), got.QuotaUsageBytes)
}

func TestUploadDuplicateReturnsWinner(t *testing.T) {
	svc, st, _ := setup(t)
	ctx := context.Background()
	owner := newOwner(t, st, nil)

	body := []byte("same bytes twice")
	first, err := svc.Upload(ctx, input(owner, "a.jpg", body))
	require.NoError(t, err)

	second, err := svc.Upload(ctx, input(owner, "b.jpg", body))
	require.NoError(t, err)
	assert.Equal(t, domain.UploadDuplicate, second.Status)
	assert.Equal(t, first.ID, second.ID)

	// The duplicate must not count against quota again.
	got, err := st.Users.GetByID(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(len(body)), got.QuotaUsageBytes)
}

func TestUploadChecksumHintShortCircuits(t *testing.T) {
	svc, st, _ := setup(t)
	ctx := context.Background()
	owner := newOwner(t, st, nil)

	body := []byte("hinted content")
	first, err := svc.Upload(ctx, input(owner, "a.jpg", body))
	require.NoError(t, err)

	in := input(owner, "b.jpg", body)
	in.ChecksumHint = crypt.SHA1(body)
	in.Body = bytes.NewReader(nil) // body never read on a hint hit
	res, err := svc.Upload(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, domain.UploadDuplicate, res.Status)
	assert.Equal(t, first.ID, res.ID)
}

func TestUploadQuotaExceeded(t *testing.T) {
	svc, st, _ := setup(t)
	ctx := context.Background()
	quota := int64(10)
	owner := newOwner(t, st, &quota)

	_, err := svc.Upload(ctx, input(owner, "big.jpg", bytes.Repeat([]byte("x"), 11)))
	assert.ErrorIs(t, err, apperr.ErrQuotaExceeded)
}

func TestExists(t *testing.T) {
	svc, st, _ := setup(t)
	ctx := context.Background()
	owner := newOwner(t, st, nil)

	_, err := svc.Upload(ctx, input(owner, "known.jpg", []byte("known")))
	require.NoError(t, err)

	got, err := svc.Exists(ctx, owner.ID, "test-device", []string{"device-known.jpg", "device-missing.jpg"})
	require.NoError(t, err)
	assert.Equal(t, []string{"device-known.jpg"}, got)
}

func TestBulkUploadCheck(t *testing.T) {
	svc, st, _ := setup(t)
	ctx := context.Background()
	owner := newOwner(t, st, nil)

	body := []byte("checked content")
	res, err := svc.Upload(ctx, input(owner, "c.jpg", body))
	require.NoError(t, err)

	known := hex.EncodeToString(crypt.SHA1(body))
	fresh := hex.EncodeToString(crypt.SHA1([]byte("unseen")))
	out, err := svc.BulkUploadCheck(ctx, owner.ID, []string{known, fresh})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.False(t, out[0].Accept)
	assert.Equal(t, res.ID, out[0].AssetID)
	assert.False(t, out[0].IsTrashed)
	assert.True(t, out[1].Accept)

	_, err = svc.BulkUploadCheck(ctx, owner.ID, []string{"not-a-checksum"})
	assert.ErrorIs(t, err, apperr.ErrBadRequest)
}

func TestUpdateAssetMetadata(t *testing.T) {
	svc, st, _ := setup(t)
	ctx := context.Background()
	owner := newOwner(t, st, nil)

	res, err := svc.Upload(ctx, input(owner, "meta.jpg", []byte("meta body")))
	require.NoError(t, err)

	fav := true
	vis := domain.VisibilityArchive
	rating := int64(4)
	updated, err := svc.UpdateAsset(ctx, res.ID, &ingest.MetaUpdate{
		IsFavorite: &fav, Visibility: &vis, Rating: &rating,
	})
	require.NoError(t, err)
	assert.True(t, updated.IsFavorite)
	assert.Equal(t, domain.VisibilityArchive, updated.Visibility)

	exif, err := st.Exif.GetByAssetID(ctx, res.ID)
	require.NoError(t, err)
	require.NotNil(t, exif.Rating)
	assert.Equal(t, int64(4), *exif.Rating)
}

func TestReplaceSwapsOriginal(t *testing.T) {
	svc, st, _ := setup(t)
	ctx := context.Background()
	owner := newOwner(t, st, nil)

	res, err := svc.Upload(ctx, input(owner, "old.jpg", []byte("old body")))
	require.NoError(t, err)

	newBody := []byte("replacement body, longer than before")
	out, err := svc.Replace(ctx, owner, res.ID, input(owner, "new.jpg", newBody))
	require.NoError(t, err)
	assert.Equal(t, domain.UploadReplaced, out.Status)

	a, err := st.Assets.GetByID(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, "new.jpg", a.OriginalFileName)
	assert.Equal(t, crypt.SHA1(newBody), a.Checksum)
	assert.Equal(t, int64(len(newBody)), a.FileSizeBytes)
}

func TestDecodeChecksum(t *testing.T) {
	sum := crypt.SHA1([]byte("payload"))

	got, err := ingest.DecodeChecksum(hex.EncodeToString(sum))
	require.NoError(t, err)
	assert.Equal(t, sum, got)

	got, err = ingest.DecodeChecksum(base64.StdEncoding.EncodeToString(sum))
	require.NoError(t, err)
	assert.Equal(t, sum, got)

	_, err = ingest.DecodeChecksum("nope")
	assert.Error(t, err)
}

func TestBulkUploadCheckPropagatesStoreErrors(t *testing.T) {
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"), sqlite.DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, sqlite.Migrate(db))
	st := store.New(db)
	blobs, err := blob.NewFS(t.TempDir())
	require.NoError(t, err)
	svc := ingest.New(st, blobs, 1<<20)
	owner := id.New()

	// A failing duplicate lookup must surface, not read as "no duplicate".
	require.NoError(t, db.Close())
	sum := hex.EncodeToString(crypt.SHA1([]byte("x")))
	_, err = svc.BulkUploadCheck(context.Background(), owner, []string{sum})
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperr.ErrBadRequest)
}
