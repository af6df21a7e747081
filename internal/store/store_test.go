package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jkov/photark/internal/apperr"
	"github.com/jkov/photark/internal/crypt"
	"github.com/jkov/photark/internal/domain"
	"github.com/jkov/photark/internal/id"
	"github.com/jkov/photark/internal/persistence/sqlite"
	"github.com/jkov/photark/internal/store"
)

func testStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"), sqlite.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, sqlite.Migrate(db))
	return store.New(db)
}

func newUser(t *testing.T, st *store.Store, email string) *domain.User {
	t.Helper()
	now := time.Now().UTC()
	u := &domain.User{
		ID:           id.New(),
		Email:        email,
		PasswordHash: "x",
		Name:         "Test User",
		Status:       domain.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
		UpdateID:     id.New(),
	}
	require.NoError(t, st.Users.Create(context.Background(), u))
	return u
}

func newAsset(t *testing.T, st *store.Store, ownerID, fileName string) *domain.Asset {
	t.Helper()
	now := time.Now().UTC()
	a := &domain.Asset{
		ID:               id.New(),
		OwnerID:          ownerID,
		DeviceAssetID:    "device-" + fileName,
		DeviceID:         "test-device",
		Checksum:         crypt.SHA1([]byte(fileName)),
		OriginalPath:     "upload/" + ownerID + "/" + fileName,
		OriginalFileName: fileName,
		Type:             domain.AssetTypeImage,
		Visibility:       domain.VisibilityTimeline,
		FileCreatedAt:    now,
		FileModifiedAt:   now,
		LocalDateTime:    now,
		Status:           domain.AssetStatusActive,
		FileSizeBytes:    100,
		CreatedAt:        now,
		UpdatedAt:        now,
		UpdateID:         id.New(),
	}
	require.NoError(t, st.Assets.Insert(context.Background(), a))
	return a
}

func TestAssetRoundTrip(t *testing.T) {
	st := testStore(t)
	u := newUser(t, st, "roundtrip@example.com")
	a := newAsset(t, st, u.ID, "full.jpg")

	got, err := st.Assets.GetByID(context.Background(), a.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(a, got, cmpopts.EquateApproxTime(time.Second)); diff != "" {
		t.Errorf("asset mismatch (-want +got):\n%s", diff)
	}
}

func TestUsersCreateAndLookup(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	u := newUser(t, st, "Admin@Example.com")

	got, err := st.Users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "admin@example.com", got.Email)
	assert.Equal(t, domain.UserStatusActive, got.Status)

	// Email lookup is case-insensitive on the stored lowercase value.
	got, err = st.Users.GetByEmail(ctx, "ADMIN@example.COM")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	n, err := st.Users.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUsersDuplicateEmail(t *testing.T) {
	st := testStore(t)
	newUser(t, st, "dup@example.com")

	now := time.Now().UTC()
	err := st.Users.Create(context.Background(), &domain.User{
		ID: id.New(), Email: "dup@example.com", PasswordHash: "x", Name: "other",
		Status: domain.UserStatusActive, CreatedAt: now, UpdatedAt: now, UpdateID: id.New(),
	})
	assert.ErrorIs(t, err, store.ErrDuplicate)
}

func TestUsersQuota(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	u := newUser(t, st, "quota@example.com")

	require.NoError(t, st.Users.AdjustQuota(ctx, u.ID, 500))
	require.NoError(t, st.Users.AdjustQuota(ctx, u.ID, -200))
	got, err := st.Users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(300), got.QuotaUsageBytes)

	// Recompute derives usage from surviving asset rows.
	newAsset(t, st, u.ID, "a.jpg")
	newAsset(t, st, u.ID, "b.jpg")
	usage, err := st.Users.RecomputeQuota(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(200), usage)
}

func TestAssetsChecksumLookup(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	u := newUser(t, st, "sum@example.com")
	a := newAsset(t, st, u.ID, "photo.jpg")

	got, err := st.Assets.GetByChecksum(ctx, u.ID, nil, a.Checksum)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	// Another owner with the same content does not collide.
	other := newUser(t, st, "other@example.com")
	_, err = st.Assets.GetByChecksum(ctx, other.ID, nil, a.Checksum)
	assert.Error(t, err)
}

func TestAssetsTrashLifecycle(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	u := newUser(t, st, "trash@example.com")
	a := newAsset(t, st, u.ID, "gone.jpg")
	b := newAsset(t, st, u.ID, "kept.jpg")

	affected, err := st.Assets.SoftDelete(ctx, u.ID, []string{a.ID}, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID}, affected)

	// Soft delete is idempotent: a trashed row is not affected again.
	affected, err = st.Assets.SoftDelete(ctx, u.ID, []string{a.ID, b.ID}, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, affected)

	trashed, err := st.Assets.ListTrashed(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, trashed, 2)

	n, err := st.Assets.Restore(ctx, u.ID, []string{b.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := st.Assets.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AssetStatusActive, got.Status)
	assert.Nil(t, got.DeletedAt)

	require.NoError(t, st.Assets.HardDelete(ctx, []string{a.ID}))
	_, err = st.Assets.GetByID(ctx, a.ID)
	assert.Error(t, err)
}

func TestAssetsSoftDeleteWrongOwner(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	owner := newUser(t, st, "owner@example.com")
	thief := newUser(t, st, "thief@example.com")
	a := newAsset(t, st, owner.ID, "mine.jpg")

	affected, err := st.Assets.SoftDelete(ctx, thief.ID, []string{a.ID}, time.Now().UTC())
	require.NoError(t, err)
	assert.Empty(t, affected)
}

func TestAssetsStats(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	u := newUser(t, st, "stats@example.com")
	newAsset(t, st, u.ID, "one.jpg")

	now := time.Now().UTC()
	clip := &domain.Asset{
		ID: id.New(), OwnerID: u.ID,
		DeviceAssetID: "device-clip", DeviceID: "test-device",
		Checksum:     crypt.SHA1([]byte("clip.mp4")),
		OriginalPath: "upload/" + u.ID + "/clip.mp4", OriginalFileName: "clip.mp4",
		Type: domain.AssetTypeVideo, Visibility: domain.VisibilityTimeline,
		FileCreatedAt: now, FileModifiedAt: now, LocalDateTime: now,
		Status: domain.AssetStatusActive, FileSizeBytes: 100,
		CreatedAt: now, UpdatedAt: now, UpdateID: id.New(),
	}
	require.NoError(t, st.Assets.Insert(ctx, clip))

	stats, err := st.Assets.Stats(ctx, u.ID, nil, nil, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Images)
	assert.Equal(t, int64(1), stats.Videos)
	assert.Equal(t, int64(2), stats.Total)
}

func TestSessionsRoundTrip(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	u := newUser(t, st, "sess@example.com")

	now := time.Now().UTC()
	sess := &domain.Session{
		ID:        id.New(),
		UserID:    u.ID,
		TokenHash: crypt.SHA256Hex([]byte("token")),
		DeviceOS:  "linux",
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, st.Sessions.Create(ctx, sess))

	got, err := st.Sessions.GetByTokenHash(ctx, sess.TokenHash)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
	assert.False(t, got.PendingSyncReset)

	require.NoError(t, st.Sessions.SetPendingSyncReset(ctx, sess.ID, true))
	got, err = st.Sessions.GetByID(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, got.PendingSyncReset)

	require.NoError(t, st.Sessions.Delete(ctx, sess.ID))
	_, err = st.Sessions.GetByID(ctx, sess.ID)
	assert.Error(t, err)
}

func TestSessionsDeleteByUserKeeps(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	u := newUser(t, st, "multi@example.com")

	now := time.Now().UTC()
	var ids []string
	for i := 0; i < 3; i++ {
		s := &domain.Session{
			ID: id.New(), UserID: u.ID,
			TokenHash: crypt.SHA256Hex([]byte{byte(i)}),
			CreatedAt: now, UpdatedAt: now,
		}
		require.NoError(t, st.Sessions.Create(ctx, s))
		ids = append(ids, s.ID)
	}

	require.NoError(t, st.Sessions.DeleteByUser(ctx, u.ID, ids[0]))
	remaining, err := st.Sessions.ListByUser(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, ids[0], remaining[0].ID)
}

func TestCheckpointsUpsert(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	u := newUser(t, st, "cp@example.com")
	now := time.Now().UTC()
	sess := &domain.Session{
		ID: id.New(), UserID: u.ID,
		TokenHash: crypt.SHA256Hex([]byte("cp")),
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, st.Sessions.Create(ctx, sess))

	first := id.New()
	require.NoError(t, st.Checkpoints.Upsert(ctx, sess.ID, map[domain.SyncEntityType]string{
		domain.SyncAssetV1: first,
	}))
	second := id.New()
	require.NoError(t, st.Checkpoints.Upsert(ctx, sess.ID, map[domain.SyncEntityType]string{
		domain.SyncAssetV1:    second,
		domain.SyncCompleteV1: second,
	}))

	cp, err := st.Checkpoints.Map(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, second, cp[domain.SyncAssetV1])
	assert.Equal(t, second, cp[domain.SyncCompleteV1])

	require.NoError(t, st.Checkpoints.DeleteBySession(ctx, sess.ID))
	cp, err = st.Checkpoints.Map(ctx, sess.ID)
	require.NoError(t, err)
	assert.Empty(t, cp)
}

func TestAlbumsAssetsAndUsers(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	owner := newUser(t, st, "albums@example.com")
	guest := newUser(t, st, "guest@example.com")
	a := newAsset(t, st, owner.ID, "in.jpg")
	b := newAsset(t, st, owner.ID, "also.jpg")

	now := time.Now().UTC()
	album := &domain.Album{
		ID: id.New(), OwnerID: owner.ID, Name: "Holiday",
		IsActivityEnabled: true, Order: domain.SortDesc,
		CreatedAt: now, UpdatedAt: now, UpdateID: id.New(),
	}
	require.NoError(t, st.Albums.Create(ctx, album))

	added, err := st.Albums.AddAssets(ctx, album.ID, []string{a.ID, b.ID})
	require.NoError(t, err)
	assert.Len(t, added, 2)

	// Re-adding is a no-op, not an error.
	added, err = st.Albums.AddAssets(ctx, album.ID, []string{a.ID})
	require.NoError(t, err)
	assert.Empty(t, added)

	ok, err := st.Albums.ContainsAsset(ctx, album.ID, a.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, st.Albums.SetUser(ctx, album.ID, guest.ID, domain.RoleViewer))
	visible, err := st.Albums.ListVisible(ctx, guest.ID)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, album.ID, visible[0].ID)

	removed, err := st.Albums.RemoveAssets(ctx, album.ID, []string{b.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, removed)

	require.NoError(t, st.Albums.RemoveUser(ctx, album.ID, guest.ID))
	visible, err = st.Albums.ListVisible(ctx, guest.ID)
	require.NoError(t, err)
	assert.Empty(t, visible)
}

func TestTagsUpsertIsIdempotent(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	u := newUser(t, st, "tags@example.com")

	first, err := st.Tags.Upsert(ctx, u.ID, "travel/asia", nil)
	require.NoError(t, err)
	second, err := st.Tags.Upsert(ctx, u.ID, "travel/asia", nil)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	a := newAsset(t, st, u.ID, "tagged.jpg")
	tagged, err := st.Tags.TagAssets(ctx, first.ID, []string{a.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID}, tagged)

	ids, err := st.Tags.AssetIDs(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID}, ids)

	require.NoError(t, st.Tags.UntagAsset(ctx, first.ID, a.ID))
	ids, err = st.Tags.AssetIDs(ctx, first.ID)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestPartnersLifecycle(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	alice := newUser(t, st, "alice@example.com")
	bob := newUser(t, st, "bob@example.com")

	_, err := st.Partners.Create(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	_, err = st.Partners.Create(ctx, alice.ID, bob.ID)
	assert.ErrorIs(t, err, store.ErrDuplicate)

	sharedWith, err := st.Partners.ListSharedWith(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, sharedWith, 1)
	assert.Equal(t, alice.ID, sharedWith[0].SharedByID)
	assert.True(t, sharedWith[0].InTimeline)

	require.NoError(t, st.Partners.SetInTimeline(ctx, alice.ID, bob.ID, false))
	p, err := st.Partners.Get(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.False(t, p.InTimeline)

	require.NoError(t, st.Partners.Delete(ctx, alice.ID, bob.ID))
	_, err = st.Partners.Get(ctx, alice.ID, bob.ID)
	assert.Error(t, err)
}

func TestRestoreStampsFreshWatermarkPerRow(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	u := newUser(t, st, "watermark@example.com")
	a := newAsset(t, st, u.ID, "a.jpg")
	b := newAsset(t, st, u.ID, "b.jpg")
	c := newAsset(t, st, u.ID, "c.jpg")

	_, err := st.Assets.SoftDelete(ctx, u.ID, []string{a.ID, b.ID, c.ID}, time.Now().UTC())
	require.NoError(t, err)

	n, err := st.Assets.Restore(ctx, u.ID, nil)
	require.NoError(t, err)
	require.Equal(t, int64(3), n)

	// Distinct update_ids per restored row, or checkpoint resume cannot
	// page through the batch.
	seen := map[string]bool{}
	for _, assetID := range []string{a.ID, b.ID, c.ID} {
		got, err := st.Assets.GetByID(ctx, assetID)
		require.NoError(t, err)
		assert.False(t, seen[got.UpdateID], "update_id %s reused", got.UpdateID)
		seen[got.UpdateID] = true
	}
}

func TestStacksPrimaryCannotBeRemoved(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	u := newUser(t, st, "stacker@example.com")
	a := newAsset(t, st, u.ID, "burst-1.jpg")
	b := newAsset(t, st, u.ID, "burst-2.jpg")
	c := newAsset(t, st, u.ID, "burst-3.jpg")

	stack, err := st.Stacks.Create(ctx, u.ID, []string{a.ID, b.ID, c.ID})
	require.NoError(t, err)
	require.Equal(t, a.ID, stack.PrimaryAssetID)

	err = st.Stacks.RemoveAsset(ctx, stack.ID, a.ID)
	require.ErrorIs(t, err, apperr.ErrBadRequest)

	// The stack is untouched after the rejected removal.
	got, err := st.Stacks.GetByID(ctx, stack.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.PrimaryAssetID)

	// Non-primary members still detach; below two the stack dissolves.
	require.NoError(t, st.Stacks.RemoveAsset(ctx, stack.ID, b.ID))
	require.NoError(t, st.Stacks.RemoveAsset(ctx, stack.ID, c.ID))
	_, err = st.Stacks.GetByID(ctx, stack.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
