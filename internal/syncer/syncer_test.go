package syncer_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
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
	"github.com/jkov/photark/internal/syncer"
)

type fixture struct {
	st   *store.Store
	svc  *syncer.Service
	user *domain.User
	sess *domain.Session
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"), sqlite.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, sqlite.Migrate(db))
	st := store.New(db)

	ctx := context.Background()
	now := time.Now().UTC()
	user := &domain.User{
		ID: id.New(), Email: "sync@example.com", PasswordHash: "x", Name: "Sync",
		Status: domain.UserStatusActive, CreatedAt: now, UpdatedAt: now, UpdateID: id.New(),
	}
	require.NoError(t, st.Users.Create(ctx, user))
	sess := &domain.Session{
		ID: id.New(), UserID: user.ID,
		TokenHash: crypt.SHA256Hex([]byte("sync-test")),
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, st.Sessions.Create(ctx, sess))

	return &fixture{st: st, svc: syncer.New(st), user: user, sess: sess}
}

func (f *fixture) addAsset(t *testing.T, name string) *domain.Asset {
	t.Helper()
	now := time.Now().UTC()
	a := &domain.Asset{
		ID: id.New(), OwnerID: f.user.ID,
		DeviceAssetID: "d-" + name, DeviceID: "dev",
		Checksum:     crypt.SHA1([]byte(name)),
		OriginalPath: "upload/" + name, OriginalFileName: name,
		Type: domain.AssetTypeImage, Visibility: domain.VisibilityTimeline,
		FileCreatedAt: now, FileModifiedAt: now, LocalDateTime: now,
		Status: domain.AssetStatusActive, FileSizeBytes: 10,
		CreatedAt: now, UpdatedAt: now, UpdateID: id.New(),
	}
	require.NoError(t, f.st.Assets.Insert(context.Background(), a))
	return a
}

func (f *fixture) stream(t *testing.T, types []domain.SyncRequestType, reset bool) []syncer.Line {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, f.svc.Stream(context.Background(), &buf, f.sess, types, reset))
	var lines []syncer.Line
	sc := bufio.NewScanner(&buf)
	for sc.Scan() {
		var l syncer.Line
		require.NoError(t, json.Unmarshal(sc.Bytes(), &l))
		lines = append(lines, l)
	}
	require.NoError(t, sc.Err())
	return lines
}

func types(lines []syncer.Line) []domain.SyncEntityType {
	out := make([]domain.SyncEntityType, len(lines))
	for i, l := range lines {
		out[i] = l.Type
	}
	return out
}

func TestStreamEmptyEmitsCompleteOnly(t *testing.T) {
	f := setup(t)
	lines := f.stream(t, []domain.SyncRequestType{domain.ReqAssets}, false)
	require.Len(t, lines, 1)
	assert.Equal(t, domain.SyncCompleteV1, lines[0].Type)
	require.Len(t, lines[0].IDs, 1)
	_, err := id.TimeOf(lines[0].IDs[0])
	assert.NoError(t, err)
}

func TestStreamEmitsAssetsThenComplete(t *testing.T) {
	f := setup(t)
	a := f.addAsset(t, "one.jpg")
	b := f.addAsset(t, "two.jpg")

	lines := f.stream(t, []domain.SyncRequestType{domain.ReqAssets}, false)
	require.Len(t, lines, 3)
	assert.Equal(t, domain.SyncAssetV1, lines[0].Type)
	assert.Equal(t, domain.SyncAssetV1, lines[1].Type)
	assert.Equal(t, domain.SyncCompleteV1, lines[2].Type)

	// Rows arrive in watermark order.
	assert.Equal(t, []string{a.UpdateID}, lines[0].IDs)
	assert.Equal(t, []string{b.UpdateID}, lines[1].IDs)
}

func TestStreamResumesAfterAck(t *testing.T) {
	f := setup(t)
	f.addAsset(t, "first.jpg")

	lines := f.stream(t, []domain.SyncRequestType{domain.ReqAssets}, false)
	require.Len(t, lines, 3)

	// Ack everything seen so far.
	require.NoError(t, f.svc.Acknowledge(context.Background(), f.sess.ID, []syncer.Ack{
		{Type: domain.SyncAssetV1, UpdateID: lines[0].IDs[0]},
		{Type: domain.SyncCompleteV1, UpdateID: lines[2].IDs[0]},
	}))

	// Nothing new: only the completion marker.
	lines = f.stream(t, []domain.SyncRequestType{domain.ReqAssets}, false)
	require.Len(t, lines, 1)
	assert.Equal(t, domain.SyncCompleteV1, lines[0].Type)

	// A later change is picked up from the checkpoint.
	c := f.addAsset(t, "later.jpg")
	lines = f.stream(t, []domain.SyncRequestType{domain.ReqAssets}, false)
	require.Len(t, lines, 2)
	assert.Equal(t, domain.SyncAssetV1, lines[0].Type)
	assert.Equal(t, []string{c.UpdateID}, lines[0].IDs)
}

func TestStreamDeletesBeforeUpserts(t *testing.T) {
	f := setup(t)
	keep := f.addAsset(t, "keep.jpg")
	gone := f.addAsset(t, "gone.jpg")
	_, err := f.st.Assets.SoftDelete(context.Background(), f.user.ID, []string{gone.ID}, time.Now().UTC())
	require.NoError(t, err)

	// The trashed asset leaves the upsert stream and shows up as a
	// delete, ahead of surviving upserts.
	lines := f.stream(t, []domain.SyncRequestType{domain.ReqAssets}, false)
	got := types(lines)
	require.Len(t, got, 3)
	assert.Equal(t, domain.SyncAssetDeleteV1, got[0])
	assert.Equal(t, domain.SyncAssetV1, got[1])
	assert.Equal(t, domain.SyncCompleteV1, got[2])

	var del store.SyncAssetDeleteV1
	raw, err := json.Marshal(lines[0].Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &del))
	assert.Equal(t, gone.ID, del.AssetID)

	var up store.SyncAssetV1
	raw, err = json.Marshal(lines[1].Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &up))
	assert.Equal(t, keep.ID, up.ID)
}

func TestStreamResetProtocol(t *testing.T) {
	f := setup(t)
	f.addAsset(t, "any.jpg")

	// reset=true: one SyncResetV1 line, nothing else.
	lines := f.stream(t, []domain.SyncRequestType{domain.ReqAssets}, true)
	require.Len(t, lines, 1)
	assert.Equal(t, domain.SyncResetV1, lines[0].Type)
	assert.Equal(t, []string{"reset"}, lines[0].IDs)

	// The pending flag sticks across streams until acknowledged.
	sess, err := f.st.Sessions.GetByID(context.Background(), f.sess.ID)
	require.NoError(t, err)
	assert.True(t, sess.PendingSyncReset)
	f.sess = sess

	lines = f.stream(t, []domain.SyncRequestType{domain.ReqAssets}, false)
	require.Len(t, lines, 1)
	assert.Equal(t, domain.SyncResetV1, lines[0].Type)

	// Acking the reset clears the flag; remaining acks in the batch are
	// discarded.
	require.NoError(t, f.svc.Acknowledge(context.Background(), f.sess.ID, []syncer.Ack{
		{Type: domain.SyncResetV1, UpdateID: "reset"},
		{Type: domain.SyncAssetV1, UpdateID: id.New()},
	}))
	sess, err = f.st.Sessions.GetByID(context.Background(), f.sess.ID)
	require.NoError(t, err)
	assert.False(t, sess.PendingSyncReset)
	cp, err := f.svc.Checkpoints(context.Background(), f.sess.ID)
	require.NoError(t, err)
	assert.Empty(t, cp)

	// The next stream replays from scratch.
	f.sess = sess
	lines = f.stream(t, []domain.SyncRequestType{domain.ReqAssets}, false)
	assert.Len(t, lines, 2)
}

func TestStreamStaleCheckpointForcesReset(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	// Fabricate a completion watermark from 31 days ago.
	old := id.NewAt(time.Now().Add(-31 * 24 * time.Hour))
	require.NoError(t, f.st.Checkpoints.Upsert(ctx, f.sess.ID, map[domain.SyncEntityType]string{
		domain.SyncCompleteV1: old,
	}))

	lines := f.stream(t, []domain.SyncRequestType{domain.ReqAssets}, false)
	require.Len(t, lines, 1)
	assert.Equal(t, domain.SyncResetV1, lines[0].Type)
}

func TestAcknowledgeRejectsUnknownType(t *testing.T) {
	f := setup(t)
	err := f.svc.Acknowledge(context.Background(), f.sess.ID, []syncer.Ack{
		{Type: domain.SyncAssetV1, UpdateID: id.New()},
		{Type: "BogusV9", UpdateID: id.New()},
	})
	require.Error(t, err)

	// The whole batch fails: the valid ack was not applied either.
	cp, err := f.svc.Checkpoints(context.Background(), f.sess.ID)
	require.NoError(t, err)
	assert.Empty(t, cp)
}

func TestAcknowledgeLastWriteWinsPerType(t *testing.T) {
	f := setup(t)
	first := id.New()
	second := id.New()
	require.NoError(t, f.svc.Acknowledge(context.Background(), f.sess.ID, []syncer.Ack{
		{Type: domain.SyncAssetV1, UpdateID: first},
		{Type: domain.SyncAssetV1, UpdateID: second},
	}))
	cp, err := f.svc.Checkpoints(context.Background(), f.sess.ID)
	require.NoError(t, err)
	assert.Equal(t, second, cp[domain.SyncAssetV1])
}

func TestLegacyFullSyncPaginates(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.addAsset(t, "p1.jpg")
	b := f.addAsset(t, "p2.jpg")
	c := f.addAsset(t, "p3.jpg")

	until := time.Now().UTC().Add(time.Minute)
	pageOne, err := f.svc.FullSync(ctx, f.user.ID, syncer.FullSyncRequest{Limit: 2, UpdatedUntil: until})
	require.NoError(t, err)
	require.Len(t, pageOne, 2)
	assert.Equal(t, a.ID, pageOne[0].ID)
	assert.Equal(t, b.ID, pageOne[1].ID)

	pageTwo, err := f.svc.FullSync(ctx, f.user.ID, syncer.FullSyncRequest{
		Limit: 2, UpdatedUntil: until, LastID: &pageOne[1].ID,
	})
	require.NoError(t, err)
	require.Len(t, pageTwo, 1)
	assert.Equal(t, c.ID, pageTwo[0].ID)
}

func TestLegacyDeltaSync(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	mark := time.Now().UTC().Add(-time.Second)
	a := f.addAsset(t, "changed.jpg")
	gone := f.addAsset(t, "deleted.jpg")
	_, err := f.st.Assets.SoftDelete(ctx, f.user.ID, []string{gone.ID}, time.Now().UTC())
	require.NoError(t, err)

	resp, err := f.svc.DeltaSync(ctx, f.user.ID, nil, mark)
	require.NoError(t, err)
	assert.False(t, resp.NeedsFullSync)
	require.Len(t, resp.Upserted, 1)
	assert.Equal(t, a.ID, resp.Upserted[0].ID)
	assert.Equal(t, []string{gone.ID}, resp.Deleted)

	// A watermark older than the delta window demands a full sync.
	resp, err = f.svc.DeltaSync(ctx, f.user.ID, nil, time.Now().Add(-101*24*time.Hour))
	require.NoError(t, err)
	assert.True(t, resp.NeedsFullSync)
	assert.Empty(t, resp.Upserted)
}
