package access_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jkov/photark/internal/access"
	"github.com/jkov/photark/internal/apperr"
	"github.com/jkov/photark/internal/crypt"
	"github.com/jkov/photark/internal/domain"
	"github.com/jkov/photark/internal/id"
	"github.com/jkov/photark/internal/persistence/sqlite"
	"github.com/jkov/photark/internal/store"
)

type world struct {
	st    *store.Store
	guard *access.Guard
}

func setup(t *testing.T) *world {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"), sqlite.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, sqlite.Migrate(db))
	st := store.New(db)
	return &world{st: st, guard: access.NewGuard(st)}
}

func (w *world) user(t *testing.T, email string) *domain.User {
	t.Helper()
	now := time.Now().UTC()
	u := &domain.User{
		ID: id.New(), Email: email, PasswordHash: "x", Name: "u",
		Status: domain.UserStatusActive, CreatedAt: now, UpdatedAt: now, UpdateID: id.New(),
	}
	require.NoError(t, w.st.Users.Create(context.Background(), u))
	return u
}

func (w *world) asset(t *testing.T, ownerID, name string, vis domain.AssetVisibility) *domain.Asset {
	t.Helper()
	now := time.Now().UTC()
	a := &domain.Asset{
		ID: id.New(), OwnerID: ownerID,
		DeviceAssetID: "d-" + name, DeviceID: "dev",
		Checksum:     crypt.SHA1([]byte(ownerID + name)),
		OriginalPath: "upload/" + name, OriginalFileName: name,
		Type: domain.AssetTypeImage, Visibility: vis,
		FileCreatedAt: now, FileModifiedAt: now, LocalDateTime: now,
		Status: domain.AssetStatusActive, FileSizeBytes: 1,
		CreatedAt: now, UpdatedAt: now, UpdateID: id.New(),
	}
	require.NoError(t, w.st.Assets.Insert(context.Background(), a))
	return a
}

func principal(u *domain.User) *domain.Principal {
	return &domain.Principal{User: u}
}

func TestOwnerHoldsEveryAssetPerm(t *testing.T) {
	w := setup(t)
	ctx := context.Background()
	owner := w.user(t, "owner@example.com")
	a := w.asset(t, owner.ID, "own.jpg", domain.VisibilityTimeline)

	for _, perm := range []domain.Permission{
		domain.PermAssetRead, domain.PermAssetView, domain.PermAssetDownload,
		domain.PermAssetUpdate, domain.PermAssetDelete, domain.PermAssetShare,
	} {
		allowed, err := w.guard.Check(ctx, principal(owner), perm, []string{a.ID})
		require.NoError(t, err)
		assert.Equal(t, []string{a.ID}, allowed, perm)
	}
}

func TestStrangerHoldsNothing(t *testing.T) {
	w := setup(t)
	ctx := context.Background()
	owner := w.user(t, "owner@example.com")
	stranger := w.user(t, "stranger@example.com")
	a := w.asset(t, owner.ID, "own.jpg", domain.VisibilityTimeline)

	allowed, err := w.guard.Check(ctx, principal(stranger), domain.PermAssetRead, []string{a.ID})
	require.NoError(t, err)
	assert.Empty(t, allowed)

	err = w.guard.Require(ctx, principal(stranger), domain.PermAssetRead, []string{a.ID})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestPartnerSeesTimelineAssetsOnly(t *testing.T) {
	w := setup(t)
	ctx := context.Background()
	sharer := w.user(t, "sharer@example.com")
	viewer := w.user(t, "viewer@example.com")
	_, err := w.st.Partners.Create(ctx, sharer.ID, viewer.ID)
	require.NoError(t, err)

	visible := w.asset(t, sharer.ID, "vis.jpg", domain.VisibilityTimeline)
	archived := w.asset(t, sharer.ID, "arch.jpg", domain.VisibilityArchive)

	allowed, err := w.guard.Check(ctx, principal(viewer), domain.PermAssetRead,
		[]string{visible.ID, archived.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{visible.ID}, allowed)

	// A partnership grants read, never write.
	allowed, err = w.guard.Check(ctx, principal(viewer), domain.PermAssetUpdate, []string{visible.ID})
	require.NoError(t, err)
	assert.Empty(t, allowed)
}

func TestAlbumMembershipGrantsRead(t *testing.T) {
	w := setup(t)
	ctx := context.Background()
	owner := w.user(t, "owner@example.com")
	member := w.user(t, "member@example.com")
	a := w.asset(t, owner.ID, "shared.jpg", domain.VisibilityTimeline)

	now := time.Now().UTC()
	album := &domain.Album{
		ID: id.New(), OwnerID: owner.ID, Name: "Shared",
		IsActivityEnabled: true, Order: domain.SortDesc,
		CreatedAt: now, UpdatedAt: now, UpdateID: id.New(),
	}
	require.NoError(t, w.st.Albums.Create(ctx, album))
	_, err := w.st.Albums.AddAssets(ctx, album.ID, []string{a.ID})
	require.NoError(t, err)
	require.NoError(t, w.st.Albums.SetUser(ctx, album.ID, member.ID, domain.RoleViewer))

	allowed, err := w.guard.Check(ctx, principal(member), domain.PermAssetRead, []string{a.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID}, allowed)

	allowed, err = w.guard.Check(ctx, principal(member), domain.PermAlbumRead, []string{album.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{album.ID}, allowed)

	// Membership does not confer album ownership verbs.
	allowed, err = w.guard.Check(ctx, principal(member), domain.PermAlbumDelete, []string{album.ID})
	require.NoError(t, err)
	assert.Empty(t, allowed)
}

func TestTrashedAssetsSurviveReadOnlyForOwner(t *testing.T) {
	w := setup(t)
	ctx := context.Background()
	owner := w.user(t, "owner@example.com")
	a := w.asset(t, owner.ID, "binned.jpg", domain.VisibilityTimeline)
	_, err := w.st.Assets.SoftDelete(ctx, owner.ID, []string{a.ID}, time.Now().UTC())
	require.NoError(t, err)

	allowed, err := w.guard.Check(ctx, principal(owner), domain.PermAssetRead, []string{a.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID}, allowed)

	// View and download are active-only even for the owner.
	allowed, err = w.guard.Check(ctx, principal(owner), domain.PermAssetView, []string{a.ID})
	require.NoError(t, err)
	assert.Empty(t, allowed)
}

func TestLockedVisibilityNeedsElevation(t *testing.T) {
	w := setup(t)
	ctx := context.Background()
	owner := w.user(t, "owner@example.com")
	a := w.asset(t, owner.ID, "secret.jpg", domain.VisibilityLocked)

	plain := principal(owner)
	allowed, err := w.guard.Check(ctx, plain, domain.PermAssetRead, []string{a.ID})
	require.NoError(t, err)
	assert.Empty(t, allowed)

	pinUntil := time.Now().Add(5 * time.Minute)
	elevated := &domain.Principal{
		User:    owner,
		Session: &domain.Session{ID: id.New(), UserID: owner.ID, PinExpiresAt: &pinUntil},
	}
	allowed, err = w.guard.Check(ctx, elevated, domain.PermAssetRead, []string{a.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID}, allowed)
}

func TestSharedLinkScopedToItsAssets(t *testing.T) {
	w := setup(t)
	ctx := context.Background()
	owner := w.user(t, "owner@example.com")
	in := w.asset(t, owner.ID, "in.jpg", domain.VisibilityTimeline)
	out := w.asset(t, owner.ID, "out.jpg", domain.VisibilityTimeline)

	key, err := crypt.RandomBytes(50)
	require.NoError(t, err)
	link := &domain.SharedLink{
		ID: id.New(), UserID: owner.ID, Key: key,
		Type: domain.LinkTypeIndividual, AllowDownload: true,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, w.st.SharedLinks.Create(ctx, link, []string{in.ID}))

	p := &domain.Principal{User: owner, SharedLink: link}
	allowed, err := w.guard.Check(ctx, p, domain.PermAssetRead, []string{in.ID, out.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{in.ID}, allowed)

	// Links never reach ownership verbs, whatever they cover.
	allowed, err = w.guard.Check(ctx, p, domain.PermAssetDelete, []string{in.ID})
	require.NoError(t, err)
	assert.Empty(t, allowed)
}

func TestAPIKeyNeedsGrant(t *testing.T) {
	w := setup(t)
	ctx := context.Background()
	owner := w.user(t, "owner@example.com")
	a := w.asset(t, owner.ID, "keyed.jpg", domain.VisibilityTimeline)

	limited := &domain.Principal{
		User:   owner,
		APIKey: &domain.APIKey{ID: id.New(), UserID: owner.ID, Permissions: []string{"asset.read"}},
	}
	allowed, err := w.guard.Check(ctx, limited, domain.PermAssetRead, []string{a.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID}, allowed)

	allowed, err = w.guard.Check(ctx, limited, domain.PermAssetDelete, []string{a.ID})
	require.NoError(t, err)
	assert.Empty(t, allowed)

	all := &domain.Principal{
		User:   owner,
		APIKey: &domain.APIKey{ID: id.New(), UserID: owner.ID, Permissions: []string{"all"}},
	}
	allowed, err = w.guard.Check(ctx, all, domain.PermAssetDelete, []string{a.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID}, allowed)
}

func TestCheckPreservesRequestOrderAndDedupes(t *testing.T) {
	w := setup(t)
	ctx := context.Background()
	owner := w.user(t, "owner@example.com")
	a := w.asset(t, owner.ID, "a.jpg", domain.VisibilityTimeline)
	b := w.asset(t, owner.ID, "b.jpg", domain.VisibilityTimeline)

	allowed, err := w.guard.Check(ctx, principal(owner), domain.PermAssetRead,
		[]string{b.ID, a.ID, b.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID, a.ID}, allowed)
}
