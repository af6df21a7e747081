package trash_test

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jkov/photark/internal/blob"
	"github.com/jkov/photark/internal/domain"
	"github.com/jkov/photark/internal/id"
	"github.com/jkov/photark/internal/ingest"
	"github.com/jkov/photark/internal/persistence/sqlite"
	"github.com/jkov/photark/internal/store"
	"github.com/jkov/photark/internal/trash"
)

func setup(t *testing.T) (*trash.Service, *store.Store, blob.Store, *ingest.Service) {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"), sqlite.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, sqlite.Migrate(db))
	st := store.New(db)
	blobs, err := blob.NewFS(t.TempDir())
	require.NoError(t, err)
	return trash.New(st, blobs), st, blobs, ingest.New(st, blobs, 1<<20)
}

func newOwner(t *testing.T, st *store.Store) *domain.User {
	t.Helper()
	now := time.Now().UTC()
	u := &domain.User{
		ID: id.New(), Email: "trash@example.com", PasswordHash: "x", Name: "T",
		Status: domain.UserStatusActive, CreatedAt: now, UpdatedAt: now, UpdateID: id.New(),
	}
	require.NoError(t, st.Users.Create(context.Background(), u))
	return u
}

func upload(t *testing.T, svc *ingest.Service, owner *domain.User, name string, body []byte) string {
	t.Helper()
	now := time.Now().UTC()
	res, err := svc.Upload(context.Background(), &ingest.UploadInput{
		Owner: owner, Body: bytes.NewReader(body),
		DeviceAssetID: "d-" + name, DeviceID: "dev",
		OriginalFileName: name, ContentType: "image/jpeg",
		FileCreatedAt: now, FileModifiedAt: now,
	})
	require.NoError(t, err)
	return res.ID
}

func TestDeleteMovesToTrash(t *testing.T) {
	svc, st, _, ing := setup(t)
	ctx := context.Background()
	owner := newOwner(t, st)
	assetID := upload(t, ing, owner, "a.jpg", []byte("body a"))

	require.NoError(t, svc.Delete(ctx, owner.ID, []string{assetID}, false))
	a, err := st.Assets.GetByID(ctx, assetID)
	require.NoError(t, err)
	assert.Equal(t, domain.AssetStatusTrashed, a.Status)
	require.NotNil(t, a.DeletedAt)
}

func TestForceDeletePurgesBlobAndQuota(t *testing.T) {
	svc, st, blobs, ing := setup(t)
	ctx := context.Background()
	owner := newOwner(t, st)
	body := []byte("purged content")
	assetID := upload(t, ing, owner, "gone.jpg", body)
	a, err := st.Assets.GetByID(ctx, assetID)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, owner.ID, []string{assetID}, true))

	_, err = st.Assets.GetByID(ctx, assetID)
	assert.Error(t, err)
	_, _, err = blobs.Open(ctx, a.OriginalPath)
	assert.Error(t, err)

	got, err := st.Users.GetByID(ctx, owner.ID)
	require.NoError(t, err)
	assert.Zero(t, got.QuotaUsageBytes)
}

func TestRestore(t *testing.T) {
	svc, st, _, ing := setup(t)
	ctx := context.Background()
	owner := newOwner(t, st)
	assetID := upload(t, ing, owner, "back.jpg", []byte("body"))

	require.NoError(t, svc.Delete(ctx, owner.ID, []string{assetID}, false))
	n, err := svc.Restore(ctx, owner.ID, []string{assetID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	a, err := st.Assets.GetByID(ctx, assetID)
	require.NoError(t, err)
	assert.Equal(t, domain.AssetStatusActive, a.Status)
}

func TestEmptyPurgesEverythingTrashed(t *testing.T) {
	svc, st, _, ing := setup(t)
	ctx := context.Background()
	owner := newOwner(t, st)
	first := upload(t, ing, owner, "one.jpg", []byte("one"))
	second := upload(t, ing, owner, "two.jpg", []byte("two"))
	kept := upload(t, ing, owner, "kept.jpg", []byte("kept"))

	require.NoError(t, svc.Delete(ctx, owner.ID, []string{first, second}, false))
	n, err := svc.Empty(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// The active asset survives.
	_, err = st.Assets.GetByID(ctx, kept)
	assert.NoError(t, err)

	// Emptying an empty trash is a zero-count no-op.
	n, err = svc.Empty(ctx, owner.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}
