package view_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jkov/photark/internal/crypt"
	"github.com/jkov/photark/internal/domain"
	"github.com/jkov/photark/internal/id"
	"github.com/jkov/photark/internal/persistence/sqlite"
	"github.com/jkov/photark/internal/store"
	"github.com/jkov/photark/internal/view"
)

func setup(t *testing.T) (*view.Service, *store.Store, *domain.User) {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"), sqlite.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, sqlite.Migrate(db))
	st := store.New(db)

	now := time.Now().UTC()
	u := &domain.User{
		ID: id.New(), Email: "view@example.com", PasswordHash: "x", Name: "View",
		Status: domain.UserStatusActive, CreatedAt: now, UpdatedAt: now, UpdateID: id.New(),
	}
	require.NoError(t, st.Users.Create(context.Background(), u))
	return view.New(st), st, u
}

func addAsset(t *testing.T, st *store.Store, ownerID, path string, localDT time.Time) *domain.Asset {
	t.Helper()
	now := time.Now().UTC()
	a := &domain.Asset{
		ID: id.New(), OwnerID: ownerID,
		DeviceAssetID: "d-" + path, DeviceID: "dev",
		Checksum:     crypt.SHA1([]byte(ownerID + path)),
		OriginalPath: path, OriginalFileName: filepath.Base(path),
		Type: domain.AssetTypeImage, Visibility: domain.VisibilityTimeline,
		FileCreatedAt: localDT, FileModifiedAt: localDT, LocalDateTime: localDT,
		Status: domain.AssetStatusActive, FileSizeBytes: 1,
		CreatedAt: now, UpdatedAt: now, UpdateID: id.New(),
	}
	require.NoError(t, st.Assets.Insert(context.Background(), a))
	return a
}

func TestBucketsGroupByMonth(t *testing.T) {
	svc, st, u := setup(t)
	ctx := context.Background()

	jan := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	addAsset(t, st, u.ID, "upload/jan-a.jpg", jan)
	addAsset(t, st, u.ID, "upload/jan-b.jpg", jan.Add(24*time.Hour))
	addAsset(t, st, u.ID, "upload/mar.jpg", time.Date(2025, 3, 2, 8, 0, 0, 0, time.UTC))

	buckets, err := svc.Buckets(ctx, view.TimelineOptions{UserIDs: []string{u.ID}})
	require.NoError(t, err)
	require.Len(t, buckets, 2)

	// Default order is newest month first.
	assert.Equal(t, "2025-03-01", buckets[0].TimeBucket)
	assert.Equal(t, int64(1), buckets[0].Count)
	assert.Equal(t, "2025-01-01", buckets[1].TimeBucket)
	assert.Equal(t, int64(2), buckets[1].Count)

	asc, err := svc.Buckets(ctx, view.TimelineOptions{
		UserIDs: []string{u.ID}, Order: domain.SortAsc,
	})
	require.NoError(t, err)
	assert.Equal(t, "2025-01-01", asc[0].TimeBucket)
}

func TestBucketsExcludeTrashAndOtherVisibility(t *testing.T) {
	svc, st, u := setup(t)
	ctx := context.Background()

	when := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	keep := addAsset(t, st, u.ID, "upload/keep.jpg", when)
	binned := addAsset(t, st, u.ID, "upload/binned.jpg", when)
	_, err := st.Assets.SoftDelete(ctx, u.ID, []string{binned.ID}, time.Now().UTC())
	require.NoError(t, err)

	buckets, err := svc.Buckets(ctx, view.TimelineOptions{UserIDs: []string{u.ID}})
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	assert.Equal(t, int64(1), buckets[0].Count)

	trashed, err := svc.Buckets(ctx, view.TimelineOptions{
		UserIDs: []string{u.ID}, IsTrashed: true,
	})
	require.NoError(t, err)
	require.Len(t, trashed, 1)
	assert.Equal(t, int64(1), trashed[0].Count)
	_ = keep
}

func TestBucketColumnsStayParallel(t *testing.T) {
	svc, st, u := setup(t)
	ctx := context.Background()

	when := time.Date(2025, 2, 10, 9, 0, 0, 0, time.UTC)
	a := addAsset(t, st, u.ID, "upload/wide.jpg", when)
	w, h := int64(4000), int64(2000)
	a.Width, a.Height = &w, &h
	a.UpdatedAt = time.Now().UTC()
	a.UpdateID = id.New()
	require.NoError(t, st.Assets.UpdateMeta(ctx, a))
	addAsset(t, st, u.ID, "upload/plain.jpg", when.Add(time.Hour))

	bucket, err := svc.Bucket(ctx, view.TimelineOptions{UserIDs: []string{u.ID}}, "2025-02-01")
	require.NoError(t, err)
	require.Len(t, bucket.ID, 2)
	assert.Len(t, bucket.Ratio, 2)
	assert.Len(t, bucket.Thumbhash, 2)
	assert.Len(t, bucket.LocalOffsetHours, 2)

	// Default (desc) puts the newer asset first.
	assert.Equal(t, a.ID, bucket.ID[1])
	assert.InDelta(t, 2.0, bucket.Ratio[1], 0.001)
	// Missing dimensions fall back to a square ratio.
	assert.InDelta(t, 1.0, bucket.Ratio[0], 0.001)
	// No recorded time zone means no offset.
	assert.Zero(t, bucket.LocalOffsetHours[0])
}

func TestUniqueOriginalPaths(t *testing.T) {
	svc, st, u := setup(t)
	ctx := context.Background()

	when := time.Now().UTC()
	addAsset(t, st, u.ID, "upload/2025/a.jpg", when)
	addAsset(t, st, u.ID, "upload/2025/b.jpg", when)
	addAsset(t, st, u.ID, "upload/2024/c.jpg", when)
	addAsset(t, st, u.ID, "upload/2025/trip/d.jpg", when)

	paths, err := svc.UniqueOriginalPaths(ctx, u.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"upload/2025/", "upload/2024/", "upload/2025/trip/"}, paths)
}

func TestAssetsByOriginalPathDirectChildrenOnly(t *testing.T) {
	svc, st, u := setup(t)
	ctx := context.Background()

	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	older := addAsset(t, st, u.ID, "upload/2025/a.jpg", base)
	newer := addAsset(t, st, u.ID, "upload/2025/b.jpg", base.Add(time.Hour))
	addAsset(t, st, u.ID, "upload/2025/trip/nested.jpg", base)
	addAsset(t, st, u.ID, "upload/2024/other.jpg", base)

	got, err := svc.AssetsByOriginalPath(ctx, u.ID, "upload/2025")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, newer.ID, got[0].ID)
	assert.Equal(t, older.ID, got[1].ID)
}

func TestRandomSpansTimelinePartners(t *testing.T) {
	svc, st, u := setup(t)
	ctx := context.Background()

	now := time.Now().UTC()
	partner := &domain.User{
		ID: id.New(), Email: "partner@example.com", PasswordHash: "x", Name: "P",
		Status: domain.UserStatusActive, CreatedAt: now, UpdatedAt: now, UpdateID: id.New(),
	}
	require.NoError(t, st.Users.Create(ctx, partner))
	_, err := st.Partners.Create(ctx, partner.ID, u.ID)
	require.NoError(t, err)

	mine := addAsset(t, st, u.ID, "upload/mine.jpg", now)
	theirs := addAsset(t, st, partner.ID, "upload/theirs.jpg", now)

	got, err := svc.Random(ctx, u.ID, 10)
	require.NoError(t, err)
	ids := make([]string, len(got))
	for i, a := range got {
		ids[i] = a.ID
	}
	assert.ElementsMatch(t, []string{mine.ID, theirs.ID}, ids)

	// Dropping the partner from the timeline hides their assets.
	require.NoError(t, st.Partners.SetInTimeline(ctx, partner.ID, u.ID, false))
	got, err = svc.Random(ctx, u.ID, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, mine.ID, got[0].ID)
}

func TestRandomKeepsPartnerArchivePrivate(t *testing.T) {
	svc, st, u := setup(t)
	ctx := context.Background()

	now := time.Now().UTC()
	partner := &domain.User{
		ID: id.New(), Email: "archiver@example.com", PasswordHash: "x", Name: "A",
		Status: domain.UserStatusActive, CreatedAt: now, UpdatedAt: now, UpdateID: id.New(),
	}
	require.NoError(t, st.Users.Create(ctx, partner))
	_, err := st.Partners.Create(ctx, partner.ID, u.ID)
	require.NoError(t, err)

	myArchived := addAsset(t, st, u.ID, "upload/my-archived.jpg", now)
	myArchived.Visibility = domain.VisibilityArchive
	require.NoError(t, st.Assets.UpdateMeta(ctx, myArchived))

	theirArchived := addAsset(t, st, partner.ID, "upload/their-archived.jpg", now)
	theirArchived.Visibility = domain.VisibilityArchive
	require.NoError(t, st.Assets.UpdateMeta(ctx, theirArchived))

	theirTimeline := addAsset(t, st, partner.ID, "upload/their-timeline.jpg", now)

	got, err := svc.Random(ctx, u.ID, 10)
	require.NoError(t, err)
	ids := make([]string, len(got))
	for i, a := range got {
		ids[i] = a.ID
	}
	// Own archive is sampled; a partner's archive never is.
	assert.ElementsMatch(t, []string{myArchived.ID, theirTimeline.ID}, ids)
}
