package form

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/symptom-checker-server/internal/domain"
)

type instantPreviewer struct{}

func (instantPreviewer) Preview(_ context.Context, img *domain.AcceptedImage) (string, error) {
	return "preview:" + img.Filename, nil
}

func newTestManager(t *testing.T, snapshots Snapshotter) *Manager {
	t.Helper()
	m := NewManager(domain.FormsConfig{MaxSessions: 10, SessionTTL: time.Minute}, ManagerDeps{
		Reducer:   newTestReducer(),
		Previewer: instantPreviewer{},
		Submitter: &blockingSubmitter{release: make(chan struct{})},
		Logger:    quietLogger(),
		Snapshots: snapshots,
	})
	return m
}

func newMiniRedisSnapshotter(t *testing.T) (*miniredis.Miniredis, *RedisSnapshotter) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, NewRedisSnapshotterFromClient(client, "test:form:", time.Minute)
}

func TestManager_MemoryTier(t *testing.T) {
	m := newTestManager(t, nil)
	defer m.Close()
	ctx := context.Background()

	sess, err := m.Create(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Len())

	got, err := m.Get(ctx, sess.ID())
	require.NoError(t, err)
	assert.Same(t, sess, got)

	_, err = m.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	require.NoError(t, m.Delete(ctx, sess.ID()))
	_, err = m.Get(ctx, sess.ID())
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestManager_EvictsLeastRecentlyUsed(t *testing.T) {
	m := NewManager(domain.FormsConfig{MaxSessions: 2, SessionTTL: time.Minute}, ManagerDeps{
		Reducer:   newTestReducer(),
		Previewer: instantPreviewer{},
		Submitter: &blockingSubmitter{},
		Logger:    quietLogger(),
	})
	defer m.Close()
	ctx := context.Background()

	first, err := m.Create(ctx)
	require.NoError(t, err)
	_, err = m.Create(ctx)
	require.NoError(t, err)
	_, err = m.Create(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, m.Len())
	_, err = m.Get(ctx, first.ID())
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestManager_RestoresFromRedis(t *testing.T) {
	mr, snapshots := newMiniRedisSnapshotter(t)
	ctx := context.Background()

	writer := newTestManager(t, snapshots)
	defer writer.Close()
	sess, err := writer.Create(ctx)
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:form:"+sess.ID()))

	fillSession(sess)
	sess.Dispatch(ImageSelected{File: pngImage("scan.png")})
	sess.Wait()
	require.Equal(t, "preview:scan.png", sess.Snapshot().Image.Preview)

	// A second manager sharing the store stands in for another instance.
	_, readerSnapshots := newMiniRedisSnapshotterFor(t, mr)
	reader := newTestManager(t, readerSnapshots)
	defer reader.Close()

	restored, err := reader.Get(ctx, sess.ID())
	require.NoError(t, err)
	restored.Wait()

	view := restored.Snapshot()
	assert.Equal(t, "Ada", view.Form.Name)
	assert.Equal(t, "Cough", view.Form.Symptoms[0].Name)
	assert.False(t, view.Submitting)
	require.NotNil(t, view.Image.Accepted)
	assert.Equal(t, "scan.png", view.Image.Accepted.Filename)
	assert.Equal(t, domain.MediaTypePNG, view.Image.Accepted.MediaType)
	assert.Equal(t, "preview:scan.png", view.Image.Preview)

	require.NoError(t, reader.Delete(ctx, sess.ID()))
	assert.False(t, mr.Exists("test:form:"+sess.ID()))
	assert.False(t, mr.Exists("test:form:"+sess.ID()+":image"))
}

func TestRedisSnapshotter_ImageWrittenOnlyWhenChanged(t *testing.T) {
	mr, snapshots := newMiniRedisSnapshotter(t)
	m := newTestManager(t, snapshots)
	defer m.Close()

	sess, err := m.Create(context.Background())
	require.NoError(t, err)
	stateKey := "test:form:" + sess.ID()
	imageKey := stateKey + ":image"
	assert.False(t, mr.Exists(imageKey))

	sess.Dispatch(ImageSelected{File: pngImage("scan.png")})
	sess.Wait()

	stored, err := mr.Get(imageKey)
	require.NoError(t, err)
	assert.Equal(t, "\x89PNG", stored)
	payload, err := mr.Get(stateKey)
	require.NoError(t, err)
	assert.Contains(t, payload, "scan.png")
	assert.NotContains(t, payload, "iVBORw")

	// Field edits leave the stored bytes alone and only extend their TTL.
	require.NoError(t, mr.Set(imageKey, "untouched"))
	sess.Dispatch(FieldChanged{Field: "name", Value: "Grace"})

	stored, err = mr.Get(imageKey)
	require.NoError(t, err)
	assert.Equal(t, "untouched", stored)
	assert.Equal(t, time.Minute, mr.TTL(imageKey))
	payload, err = mr.Get(stateKey)
	require.NoError(t, err)
	assert.Contains(t, payload, "Grace")

	sess.Dispatch(ImageSelected{File: pngImage("second.png")})
	sess.Wait()
	stored, err = mr.Get(imageKey)
	require.NoError(t, err)
	assert.Equal(t, "\x89PNG", stored)

	sess.Dispatch(ImageRemoved{})
	assert.False(t, mr.Exists(imageKey))
	assert.True(t, mr.Exists(stateKey))
}

func TestRedisSnapshotter_RewritesMissingImage(t *testing.T) {
	mr, snapshots := newMiniRedisSnapshotter(t)
	m := newTestManager(t, snapshots)
	defer m.Close()

	sess, err := m.Create(context.Background())
	require.NoError(t, err)
	imageKey := "test:form:" + sess.ID() + ":image"

	sess.Dispatch(ImageSelected{File: pngImage("scan.png")})
	sess.Wait()
	mr.Del(imageKey)

	sess.Dispatch(FieldChanged{Field: "name", Value: "Grace"})

	stored, err := mr.Get(imageKey)
	require.NoError(t, err)
	assert.Equal(t, "\x89PNG", stored)
}

func TestRedisSnapshotter_LoadWithoutImageBytes(t *testing.T) {
	mr, snapshots := newMiniRedisSnapshotter(t)
	ctx := context.Background()

	s := NewState()
	s.Form.Name = "Ada"
	s.Image.Accepted = domain.NewAcceptedImage("tok", domain.MediaTypePNG, pngImage("scan.png"))
	require.NoError(t, snapshots.Save(ctx, "gone", s))
	mr.Del("test:form:gone:image")

	_, fresh := newMiniRedisSnapshotterFor(t, mr)
	loaded, err := fresh.Load(ctx, "gone")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "Ada", loaded.Form.Name)
	assert.Nil(t, loaded.Image.Accepted)
}

func TestManager_SnapshotTTL(t *testing.T) {
	mr, snapshots := newMiniRedisSnapshotter(t)
	m := newTestManager(t, snapshots)
	defer m.Close()

	sess, err := m.Create(context.Background())
	require.NoError(t, err)

	assert.Equal(t, time.Minute, mr.TTL("test:form:"+sess.ID()))
}

func TestManager_CreateFailsWhenStoreIsDown(t *testing.T) {
	mr, snapshots := newMiniRedisSnapshotter(t)
	m := newTestManager(t, snapshots)
	defer m.Close()

	mr.Close()

	_, err := m.Create(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 0, m.Len())
}

func TestRedisSnapshotter_LoadMissing(t *testing.T) {
	_, snapshots := newMiniRedisSnapshotter(t)
	defer snapshots.Close()

	state, err := snapshots.Load(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, state)
}

func newMiniRedisSnapshotterFor(t *testing.T, mr *miniredis.Miniredis) (*redis.Client, *RedisSnapshotter) {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return client, NewRedisSnapshotterFromClient(client, "test:form:", time.Minute)
}
