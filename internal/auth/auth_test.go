package auth_test

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jkov/photark/internal/apperr"
	"github.com/jkov/photark/internal/auth"
	"github.com/jkov/photark/internal/domain"
	"github.com/jkov/photark/internal/id"
	"github.com/jkov/photark/internal/kv"
	"github.com/jkov/photark/internal/persistence/sqlite"
	"github.com/jkov/photark/internal/store"
)

func setup(t *testing.T) (*auth.Service, *store.Store) {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"), sqlite.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, sqlite.Migrate(db))
	st := store.New(db)
	cache, err := kv.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return auth.New(st, cache), st
}

func TestAdminSignUpOnlyOnEmptyInstance(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	admin, err := svc.AdminSignUp(ctx, "  Admin@Example.COM ", "hunter2hunter2", "Admin")
	require.NoError(t, err)
	assert.True(t, admin.IsAdmin)
	assert.Equal(t, "admin@example.com", admin.Email)

	_, err = svc.AdminSignUp(ctx, "second@example.com", "hunter2hunter2", "Nope")
	assert.ErrorIs(t, err, apperr.ErrBadRequest)
}

func TestLogin(t *testing.T) {
	svc, st := setup(t)
	ctx := context.Background()
	_, err := svc.AdminSignUp(ctx, "login@example.com", "correct horse", "L")
	require.NoError(t, err)

	res, err := svc.Login(ctx, "LOGIN@example.com", "correct horse", "linux", "web")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, res.User.ID, res.Session.UserID)

	// Only the hash lands in the database.
	sess, err := st.Sessions.GetByID(ctx, res.Session.ID)
	require.NoError(t, err)
	assert.NotEqual(t, res.Token, sess.TokenHash)

	_, err = svc.Login(ctx, "login@example.com", "wrong", "linux", "web")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	_, err = svc.Login(ctx, "nobody@example.com", "whatever", "linux", "web")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestResolveSessionToken(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()
	_, err := svc.AdminSignUp(ctx, "resolve@example.com", "correct horse", "R")
	require.NoError(t, err)
	res, err := svc.Login(ctx, "resolve@example.com", "correct horse", "linux", "web")
	require.NoError(t, err)

	for name, build := range map[string]func(*http.Request){
		"bearer": func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+res.Token) },
		"header": func(r *http.Request) { r.Header.Set("x-immich-user-token", res.Token) },
		"cookie": func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: auth.CookieAccessToken, Value: res.Token})
		},
	} {
		t.Run(name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/assets", nil)
			build(r)
			p, err := svc.Resolve(ctx, r)
			require.NoError(t, err)
			assert.Equal(t, res.User.ID, p.UserID())
			require.NotNil(t, p.Session)
			assert.Equal(t, res.Session.ID, p.Session.ID)
		})
	}

	r := httptest.NewRequest(http.MethodGet, "/api/assets", nil)
	r.Header.Set("Authorization", "Bearer deadbeef")
	_, err = svc.Resolve(ctx, r)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	r = httptest.NewRequest(http.MethodGet, "/api/assets", nil)
	_, err = svc.Resolve(ctx, r)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestResolveAPIKey(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()
	admin, err := svc.AdminSignUp(ctx, "keys@example.com", "correct horse", "K")
	require.NoError(t, err)

	secret, key, err := svc.CreateAPIKey(ctx, admin.ID, "CI", []string{"asset.read"})
	require.NoError(t, err)
	assert.NotEmpty(t, secret)
	assert.NotEqual(t, secret, key.KeyHash)

	r := httptest.NewRequest(http.MethodGet, "/api/assets", nil)
	r.Header.Set("x-api-key", secret)
	p, err := svc.Resolve(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, admin.ID, p.UserID())
	require.NotNil(t, p.APIKey)
	assert.Equal(t, []string{"asset.read"}, p.APIKey.Permissions)
}

func TestResolveShareKey(t *testing.T) {
	svc, st := setup(t)
	ctx := context.Background()
	owner, err := svc.AdminSignUp(ctx, "links@example.com", "correct horse", "O")
	require.NoError(t, err)

	key, err := auth.NewLinkKey()
	require.NoError(t, err)
	link := &domain.SharedLink{
		ID: id.New(), UserID: owner.ID, Key: key,
		Type: domain.LinkTypeIndividual, AllowDownload: true,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, st.SharedLinks.Create(ctx, link, nil))

	// Both client encodings of the raw key resolve.
	for name, encoded := range map[string]string{
		"hex":       hex.EncodeToString(key),
		"base64url": base64.RawURLEncoding.EncodeToString(key),
	} {
		t.Run(name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/assets?key="+encoded, nil)
			p, err := svc.Resolve(ctx, r)
			require.NoError(t, err)
			assert.True(t, p.IsSharedLink())
			assert.Equal(t, owner.ID, p.UserID())
		})
	}

	// The share key outranks a session token on the same request.
	res, err := svc.Login(ctx, "links@example.com", "correct horse", "linux", "web")
	require.NoError(t, err)
	r := httptest.NewRequest(http.MethodGet, "/api/assets?key="+hex.EncodeToString(key), nil)
	r.Header.Set("Authorization", "Bearer "+res.Token)
	p, err := svc.Resolve(ctx, r)
	require.NoError(t, err)
	assert.True(t, p.IsSharedLink())
}

func TestResolveExpiredShareKey(t *testing.T) {
	svc, st := setup(t)
	ctx := context.Background()
	owner, err := svc.AdminSignUp(ctx, "expired@example.com", "correct horse", "E")
	require.NoError(t, err)

	key, err := auth.NewLinkKey()
	require.NoError(t, err)
	past := time.Now().UTC().Add(-time.Hour)
	link := &domain.SharedLink{
		ID: id.New(), UserID: owner.ID, Key: key,
		Type: domain.LinkTypeIndividual, ExpiresAt: &past,
		CreatedAt: past.Add(-time.Hour),
	}
	require.NoError(t, st.SharedLinks.Create(ctx, link, nil))

	r := httptest.NewRequest(http.MethodGet, "/api/assets?key="+hex.EncodeToString(key), nil)
	_, err = svc.Resolve(ctx, r)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestLogoutInvalidatesToken(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()
	_, err := svc.AdminSignUp(ctx, "bye@example.com", "correct horse", "B")
	require.NoError(t, err)
	res, err := svc.Login(ctx, "bye@example.com", "correct horse", "linux", "web")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, res.Session))

	r := httptest.NewRequest(http.MethodGet, "/api/assets", nil)
	r.Header.Set("Authorization", "Bearer "+res.Token)
	_, err = svc.Resolve(ctx, r)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestPinLifecycle(t *testing.T) {
	svc, st := setup(t)
	ctx := context.Background()
	admin, err := svc.AdminSignUp(ctx, "pin@example.com", "correct horse", "P")
	require.NoError(t, err)
	res, err := svc.Login(ctx, "pin@example.com", "correct horse", "linux", "web")
	require.NoError(t, err)

	assert.ErrorIs(t, svc.SetupPin(ctx, admin, "12"), apperr.ErrBadRequest)
	require.NoError(t, svc.SetupPin(ctx, admin, "1234"))

	p := &domain.Principal{User: admin, Session: res.Session}
	assert.ErrorIs(t, svc.VerifyPin(ctx, p, "9999"), apperr.ErrUnauthorized)
	assert.False(t, p.Elevated(time.Now()))

	require.NoError(t, svc.VerifyPin(ctx, p, "1234"))
	assert.True(t, p.Elevated(time.Now()))

	sess, err := st.Sessions.GetByID(ctx, res.Session.ID)
	require.NoError(t, err)
	require.NotNil(t, sess.PinExpiresAt)

	require.NoError(t, svc.LockSession(ctx, res.Session))
	assert.False(t, p.Elevated(time.Now()))
}

func TestChangePasswordKeepsCurrentSession(t *testing.T) {
	svc, st := setup(t)
	ctx := context.Background()
	admin, err := svc.AdminSignUp(ctx, "rotate@example.com", "old password", "R")
	require.NoError(t, err)
	keep, err := svc.Login(ctx, "rotate@example.com", "old password", "linux", "web")
	require.NoError(t, err)
	other, err := svc.Login(ctx, "rotate@example.com", "old password", "ios", "mobile")
	require.NoError(t, err)

	assert.ErrorIs(t,
		svc.ChangePassword(ctx, admin, "not the password", "new password", keep.Session.ID),
		apperr.ErrUnauthorized)
	require.NoError(t, svc.ChangePassword(ctx, admin, "old password", "new password", keep.Session.ID))

	_, err = svc.Login(ctx, "rotate@example.com", "new password", "linux", "web")
	require.NoError(t, err)

	_, err = st.Sessions.GetByID(ctx, keep.Session.ID)
	assert.NoError(t, err)
	_, err = st.Sessions.GetByID(ctx, other.Session.ID)
	assert.Error(t, err)
}

func TestResolveShareSlug(t *testing.T) {
	svc, st := setup(t)
	ctx := context.Background()
	owner, err := svc.AdminSignUp(ctx, "slugs@example.com", "correct horse", "O")
	require.NoError(t, err)

	key, err := auth.NewLinkKey()
	require.NoError(t, err)
	slug := "summer-trip"
	link := &domain.SharedLink{
		ID: id.New(), UserID: owner.ID, Key: key, Slug: &slug,
		Type: domain.LinkTypeIndividual, AllowDownload: true,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, st.SharedLinks.Create(ctx, link, nil))

	// The slug travels either as a query parameter or a header.
	build := map[string]func() *http.Request{
		"query": func() *http.Request {
			return httptest.NewRequest(http.MethodGet, "/api/assets?slug="+slug, nil)
		},
		"header": func() *http.Request {
			r := httptest.NewRequest(http.MethodGet, "/api/assets", nil)
			r.Header.Set("x-immich-share-slug", slug)
			return r
		},
	}
	for name, mk := range build {
		t.Run(name, func(t *testing.T) {
			p, err := svc.Resolve(ctx, mk())
			require.NoError(t, err)
			assert.True(t, p.IsSharedLink())
			assert.Equal(t, owner.ID, p.UserID())
		})
	}

	r := httptest.NewRequest(http.MethodGet, "/api/assets", nil)
	r.Header.Set("x-immich-share-slug", "no-such-slug")
	_, err = svc.Resolve(ctx, r)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}
