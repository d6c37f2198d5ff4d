package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/pulsefm/pulsefm/internal/bus"
	"github.com/pulsefm/pulsefm/internal/ds"
	"github.com/pulsefm/pulsefm/internal/events"
	"github.com/pulsefm/pulsefm/internal/kv"
	"github.com/pulsefm/pulsefm/internal/ratelimit"
	"github.com/pulsefm/pulsefm/internal/statecache"
	"github.com/pulsefm/pulsefm/internal/streamhub"
)

func newTestStreamDeps(t *testing.T) (StreamDeps, *ds.Store, *kv.Client, bus.Bus) {
	t.Helper()

	store, err := ds.Open(filepath.Join(t.TempDir(), "ds"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Bootstrap(context.Background(), 150_000))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	kvc := kv.New(rdb)

	b := bus.NewMemoryBus()
	cache := statecache.New(store, kvc)
	hub := streamhub.New(b, cache, kvc, streamhub.Config{
		TallySnapshotInterval: time.Second,
		StreamInterval:        time.Second,
		HeartbeatInterval:     time.Second,
		OutboxSize:            10,
	})

	deps := StreamDeps{
		Hub:          hub,
		Cache:        cache,
		KV:           kvc,
		Bus:          b,
		Limiter:      ratelimit.New(ratelimit.DefaultConfig()),
		HeartbeatTTL: 30 * time.Second,
	}
	return deps, store, kvc, b
}

func TestHeartbeatRequiresSessionID(t *testing.T) {
	deps, _, _, _ := newTestStreamDeps(t)
	r := NewStreamRouter(deps, "streamd-test")

	req := httptest.NewRequest("POST", "/heartbeat", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, 400, rec.Code)
}

func TestHeartbeatTouchesSessionKey(t *testing.T) {
	deps, _, kvc, _ := newTestStreamDeps(t)
	r := NewStreamRouter(deps, "streamd-test")

	req := httptest.NewRequest("POST", "/heartbeat", nil)
	req.Header.Set("X-Session-Id", "sess-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)

	count, err := kvc.CountActiveSessions(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestStateReturnsCurrentSnapshot(t *testing.T) {
	deps, _, _, _ := newTestStreamDeps(t)
	r := NewStreamRouter(deps, "streamd-test")

	req := httptest.NewRequest("GET", "/state", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Contains(t, body, "currentSong")
	require.Contains(t, body, "listeners")
}

func TestEventsRouteRepublishesDecodedEventOntoLocalBus(t *testing.T) {
	deps, _, _, b := newTestStreamDeps(t)
	r := NewStreamRouter(deps, "streamd-test")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := b.Subscribe(ctx, events.TopicPlayback)
	require.NoError(t, err)
	defer func() { _ = sub.Close() }()

	payload, err := json.Marshal(events.Changeover{VoteID: "song-1", DurationMs: 1000, Version: 2})
	require.NoError(t, err)
	env, err := json.Marshal(map[string]any{"kind": events.KindChangeover, "payload": json.RawMessage(payload)})
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/events/"+events.TopicPlayback, bytes.NewReader(env))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)

	select {
	case msg := <-sub.C():
		ev, ok := msg.(events.Changeover)
		require.True(t, ok)
		require.Equal(t, "song-1", ev.VoteID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for republished event")
	}
}

func TestEventsRouteRejectsUnknownKind(t *testing.T) {
	deps, _, _, _ := newTestStreamDeps(t)
	r := NewStreamRouter(deps, "streamd-test")

	env, err := json.Marshal(map[string]any{"kind": "NOT-A-KIND", "payload": json.RawMessage(`{}`)})
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/events/"+events.TopicPlayback, bytes.NewReader(env))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, 400, rec.Code)
}
