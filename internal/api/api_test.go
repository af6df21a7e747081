package api_test

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jkov/photark/internal/access"
	"github.com/jkov/photark/internal/api"
	"github.com/jkov/photark/internal/auth"
	"github.com/jkov/photark/internal/blob"
	"github.com/jkov/photark/internal/ingest"
	"github.com/jkov/photark/internal/kv"
	"github.com/jkov/photark/internal/persistence/sqlite"
	"github.com/jkov/photark/internal/retrieve"
	"github.com/jkov/photark/internal/store"
	"github.com/jkov/photark/internal/syncer"
	"github.com/jkov/photark/internal/trash"
	"github.com/jkov/photark/internal/view"
)

type app struct {
	server *httptest.Server
	token  string
	userID string
}

func newApp(t *testing.T) *app {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"), sqlite.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, sqlite.Migrate(db))

	st := store.New(db)
	blobs, err := blob.NewFS(t.TempDir())
	require.NoError(t, err)
	cache, err := kv.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	handler := api.New(api.Deps{
		Store:     st,
		Auth:      auth.New(st, cache),
		Guard:     access.NewGuard(st),
		Ingest:    ingest.New(st, blobs, 1<<20),
		Retrieve:  retrieve.New(st, blobs),
		Syncer:    syncer.New(st),
		View:      view.New(st),
		Trash:     trash.New(st, blobs),
		Blobs:     blobs,
		MaxUpload: 1 << 20,
	}).Router()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	a := &app{server: srv}
	a.signUpAndLogin(t)
	return a
}

func (a *app) signUpAndLogin(t *testing.T) {
	t.Helper()
	resp := a.do(t, http.MethodPost, "/api/auth/admin-sign-up", map[string]any{
		"email": "admin@example.com", "password": "correct horse", "name": "Admin",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = a.do(t, http.MethodPost, "/api/auth/login", map[string]any{
		"email": "admin@example.com", "password": "correct horse",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var login struct {
		AccessToken string `json:"accessToken"`
		UserID      string `json:"userId"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&login))
	resp.Body.Close()
	require.NotEmpty(t, login.AccessToken)

	// Login also sets the cookie triple.
	var names []string
	for _, c := range resp.Cookies() {
		names = append(names, c.Name)
	}
	assert.Contains(t, names, "immich_access_token")
	assert.Contains(t, names, "immich_is_authenticated")

	a.token = login.AccessToken
	a.userID = login.UserID
}

func (a *app) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, a.server.URL+path, rd)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
	resp, err := a.server.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func (a *app) decode(t *testing.T, resp *http.Response, want int, out any) {
	t.Helper()
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, want, resp.StatusCode, string(raw))
	if out != nil {
		require.NoError(t, json.Unmarshal(raw, out))
	}
}

func (a *app) upload(t *testing.T, name string, content []byte) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	now := time.Now().UTC().Format(time.RFC3339Nano)
	require.NoError(t, mw.WriteField("deviceAssetId", "device-"+name))
	require.NoError(t, mw.WriteField("deviceId", "e2e-device"))
	require.NoError(t, mw.WriteField("fileCreatedAt", now))
	require.NoError(t, mw.WriteField("fileModifiedAt", now))
	part, err := mw.CreateFormFile("assetData", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, a.server.URL+"/api/assets", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+a.token)
	resp, err := a.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, []int{http.StatusCreated, http.StatusOK}, resp.StatusCode, string(raw))

	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestHealthAndMetrics(t *testing.T) {
	a := newApp(t)
	resp := a.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = a.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestUnauthenticatedRequestsAreRejected(t *testing.T) {
	a := newApp(t)
	a.token = ""
	resp := a.do(t, http.MethodGet, "/api/assets/statistics", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/problem+json")
}

func TestUploadThenFetchAsset(t *testing.T) {
	a := newApp(t)
	created := a.upload(t, "first.jpg", []byte("jpeg bytes here"))
	assert.Equal(t, "created", created["status"])
	assetID := created["id"].(string)

	var asset map[string]any
	a.decode(t, a.do(t, http.MethodGet, "/api/assets/"+assetID, nil), http.StatusOK, &asset)
	assert.Equal(t, "first.jpg", asset["originalFileName"])
	assert.Equal(t, a.userID, asset["ownerId"])
	assert.Equal(t, false, asset["isTrashed"])

	// Same bytes again: duplicate, answered with 200.
	dup := a.upload(t, "copy.jpg", []byte("jpeg bytes here"))
	assert.Equal(t, "duplicate", dup["status"])
	assert.Equal(t, assetID, dup["id"])
}

func TestDownloadOriginalRoundTrip(t *testing.T) {
	a := newApp(t)
	content := []byte("the original bytes")
	created := a.upload(t, "dl.jpg", content)
	assetID := created["id"].(string)

	resp := a.do(t, http.MethodGet, "/api/assets/"+assetID+"/original", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, content, got)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "dl.jpg")
}

func TestAssetStatistics(t *testing.T) {
	a := newApp(t)
	a.upload(t, "s1.jpg", []byte("stat one"))
	a.upload(t, "s2.jpg", []byte("stat two"))

	var stats struct {
		Images int64 `json:"images"`
		Videos int64 `json:"videos"`
		Total  int64 `json:"total"`
	}
	a.decode(t, a.do(t, http.MethodGet, "/api/assets/statistics", nil), http.StatusOK, &stats)
	assert.Equal(t, int64(2), stats.Images)
	assert.Equal(t, int64(2), stats.Total)
}

func TestTrashFlow(t *testing.T) {
	a := newApp(t)
	created := a.upload(t, "bin.jpg", []byte("binned"))
	assetID := created["id"].(string)

	resp := a.do(t, http.MethodDelete, "/api/assets", map[string]any{"ids": []string{assetID}})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	var asset map[string]any
	a.decode(t, a.do(t, http.MethodGet, "/api/assets/"+assetID, nil), http.StatusOK, &asset)
	assert.Equal(t, true, asset["isTrashed"])

	var restored struct {
		Count int64 `json:"count"`
	}
	a.decode(t, a.do(t, http.MethodPost, "/api/trash/restore", nil), http.StatusOK, &restored)
	assert.Equal(t, int64(1), restored.Count)

	a.decode(t, a.do(t, http.MethodGet, "/api/assets/"+assetID, nil), http.StatusOK, &asset)
	assert.Equal(t, false, asset["isTrashed"])
}

func TestTimelineBuckets(t *testing.T) {
	a := newApp(t)
	a.upload(t, "tl.jpg", []byte("timeline asset"))

	var buckets []struct {
		TimeBucket string `json:"timeBucket"`
		Count      int64  `json:"count"`
	}
	a.decode(t, a.do(t, http.MethodGet, "/api/timeline/buckets", nil), http.StatusOK, &buckets)
	require.Len(t, buckets, 1)
	assert.Equal(t, int64(1), buckets[0].Count)

	var bucket map[string]any
	a.decode(t, a.do(t, http.MethodGet,
		"/api/timeline/bucket?timeBucket="+buckets[0].TimeBucket, nil), http.StatusOK, &bucket)
	ids := bucket["id"].([]any)
	assert.Len(t, ids, 1)
}

func TestSyncStreamAndAck(t *testing.T) {
	a := newApp(t)
	created := a.upload(t, "sync.jpg", []byte("synced asset"))
	assetID := created["id"].(string)

	resp := a.do(t, http.MethodPost, "/api/sync/stream", map[string]any{
		"types": []string{"AssetsV1"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/x-ndjson")

	type line struct {
		Type string          `json:"type"`
		IDs  []string        `json:"ids"`
		Data json.RawMessage `json:"data"`
	}
	var lines []line
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		var l line
		require.NoError(t, json.Unmarshal(sc.Bytes(), &l))
		lines = append(lines, l)
	}
	resp.Body.Close()
	require.NoError(t, sc.Err())

	require.Len(t, lines, 2)
	assert.Equal(t, "AssetV1", lines[0].Type)
	assert.Equal(t, "SyncCompleteV1", lines[1].Type)
	assert.Contains(t, string(lines[0].Data), assetID)

	// Ack both watermarks, then the stream has nothing left.
	acks := []map[string]string{
		{"type": lines[0].Type, "updateId": lines[0].IDs[0]},
		{"type": lines[1].Type, "updateId": lines[1].IDs[0]},
	}
	resp = a.do(t, http.MethodPost, "/api/sync/ack", map[string]any{"acks": acks})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp = a.do(t, http.MethodPost, "/api/sync/stream", map[string]any{
		"types": []string{"AssetsV1"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	trimmed := strings.TrimSpace(string(body))
	assert.Equal(t, 1, strings.Count(trimmed, "\n")+1)
	assert.Contains(t, trimmed, "SyncCompleteV1")
}

func TestAlbumLifecycleOverHTTP(t *testing.T) {
	a := newApp(t)
	created := a.upload(t, "al.jpg", []byte("album asset"))
	assetID := created["id"].(string)

	var album map[string]any
	a.decode(t, a.do(t, http.MethodPost, "/api/albums", map[string]any{
		"albumName": "Trip", "assetIds": []string{assetID},
	}), http.StatusCreated, &album)
	albumID := album["id"].(string)
	assert.Equal(t, "Trip", album["albumName"])
	assert.Equal(t, float64(1), album["assetCount"])

	var albums []map[string]any
	a.decode(t, a.do(t, http.MethodGet, "/api/albums", nil), http.StatusOK, &albums)
	require.Len(t, albums, 1)

	// The thumbnail must be a member of the album.
	outsider := a.upload(t, "outside.jpg", []byte("not in album"))
	resp := a.do(t, http.MethodPatch, "/api/albums/"+albumID, map[string]any{
		"albumThumbnailAssetId": outsider["id"].(string),
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	var updated map[string]any
	a.decode(t, a.do(t, http.MethodPatch, "/api/albums/"+albumID, map[string]any{
		"albumThumbnailAssetId": assetID,
	}), http.StatusOK, &updated)
	assert.Equal(t, assetID, updated["albumThumbnailAssetId"])

	resp = a.do(t, http.MethodDelete, "/api/albums/"+albumID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	// The access check fails closed on the vanished id.
	resp = a.do(t, http.MethodGet, "/api/albums/"+albumID, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}

func TestProblemResponseShape(t *testing.T) {
	a := newApp(t)
	resp := a.do(t, http.MethodGet, fmt.Sprintf("/api/assets/%s", "00000000-0000-7000-8000-000000000000"), nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	var problem map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&problem))
	assert.NotEmpty(t, problem["title"])
	assert.NotEmpty(t, problem["requestId"])
	assert.Equal(t, float64(http.StatusForbidden), problem["status"])
}

func TestLicenseRoundTrip(t *testing.T) {
	a := newApp(t)

	resp := a.do(t, http.MethodGet, "/api/users/me/license", nil)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var set map[string]any
	a.decode(t, a.do(t, http.MethodPut, "/api/users/me/license",
		map[string]string{"licenseKey": "IMSV-0000", "activationKey": "act"}), http.StatusOK, &set)
	assert.Equal(t, "IMSV-0000", set["licenseKey"])
	assert.NotEmpty(t, set["activatedAt"])

	var got map[string]any
	a.decode(t, a.do(t, http.MethodGet, "/api/users/me/license", nil), http.StatusOK, &got)
	assert.Equal(t, "IMSV-0000", got["licenseKey"])

	resp = a.do(t, http.MethodDelete, "/api/users/me/license", nil)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = a.do(t, http.MethodGet, "/api/users/me/license", nil)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
