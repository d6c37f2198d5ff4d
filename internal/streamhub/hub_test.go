package streamhub

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/pulsefm/pulsefm/internal/bus"
	"github.com/pulsefm/pulsefm/internal/ds"
	"github.com/pulsefm/pulsefm/internal/kv"
	"github.com/pulsefm/pulsefm/internal/statecache"
)

func newTestHub(t *testing.T) (*Hub, *ds.Store, *kv.Client, bus.Bus) {
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

	hub := New(b, cache, kvc, Config{
		TallySnapshotInterval: 30 * time.Millisecond,
		StreamInterval:        20 * time.Millisecond,
		HeartbeatInterval:     40 * time.Millisecond,
		OutboxSize:            10,
	})
	return hub, store, kvc, b
}

func TestServeSSEEmitsHelloAndTallySnapshotOnConnect(t *testing.T) {
	hub, _, _, _ := newTestHub(t)

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest("GET", "/stream", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	err := hub.ServeSSE(rec, req)
	require.NoError(t, err)

	body := rec.Body.String()
	require.Contains(t, body, "event: HELLO")
	require.Contains(t, body, "event: TALLY_SNAPSHOT")
	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
}

func TestServeSSEEmitsHeartbeatAndTallyDeltaOverTime(t *testing.T) {
	hub, _, _, _ := newTestHub(t)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest("GET", "/stream", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	require.NoError(t, hub.ServeSSE(rec, req))

	body := rec.Body.String()
	require.Contains(t, body, "event: HEARTBEAT")
	require.Contains(t, body, "event: TALLY_DELTA")
	require.True(t, strings.Count(body, "event: TALLY_SNAPSHOT") >= 1)
}
