package rotation

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/pulsefm/pulsefm/internal/bus"
	"github.com/pulsefm/pulsefm/internal/catalog"
	"github.com/pulsefm/pulsefm/internal/ds"
	"github.com/pulsefm/pulsefm/internal/events"
	"github.com/pulsefm/pulsefm/internal/kv"
	"github.com/pulsefm/pulsefm/internal/poll"
	"github.com/pulsefm/pulsefm/internal/tq"
)

type testFixture struct {
	engine  *Engine
	ds      *ds.Store
	kvc     *kv.Client
	tqStore *tq.Store
}

func newFixture(t *testing.T) *testFixture {
	t.Helper()
	ctx := context.Background()

	store, err := ds.Open(filepath.Join(t.TempDir(), "ds"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Bootstrap(ctx, 150_000))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	kvc := kv.New(rdb)

	tqStore, err := tq.Open(filepath.Join(t.TempDir(), "tq.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tqStore.Close() })

	cat, err := catalog.New([]catalog.Descriptor{
		{Key: "a", Label: "A"}, {Key: "b", Label: "B"},
		{Key: "c", Label: "C"}, {Key: "d", Label: "D"},
	})
	require.NoError(t, err)

	b := bus.NewMemoryBus()
	pollEngine := poll.New(store, kvc, cat, b, 4, time.Hour)
	engine := New(store, kvc, tqStore, b, pollEngine, 10, 60_000)

	return &testFixture{engine: engine, ds: store, kvc: kvc, tqStore: tqStore}
}

func putReadySong(t *testing.T, store *ds.Store, voteID string, durationMs int64, createdAt time.Time) {
	t.Helper()
	require.NoError(t, store.Update(context.Background(), func(tx *ds.Txn) error {
		return tx.PutSong(&ds.Song{VoteID: voteID, DurationMs: durationMs, Status: ds.SongReady, CreatedAt: createdAt})
	}))
}

func TestTickIsNoopOnStaleVersion(t *testing.T) {
	f := newFixture(t)
	outcome, err := f.engine.Tick(context.Background(), 0)
	require.NoError(t, err)
	require.False(t, outcome.IsCommitted())
	require.Equal(t, "stale_version", outcome.Reason())
}

func TestTickFallsBackToStubbedWhenNoReadySongs(t *testing.T) {
	f := newFixture(t)
	outcome, err := f.engine.Tick(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, outcome.IsCommitted())
	require.EqualValues(t, 1, outcome.Version())

	require.NoError(t, f.ds.View(context.Background(), func(tx *ds.Txn) error {
		rec, ok, err := tx.GetStationRecord()
		require.True(t, ok)
		require.Equal(t, ds.StubbedVoteID, rec.VoteID)
		require.Equal(t, ds.StubbedVoteID, rec.Next.VoteID)
		return err
	}))
}

func TestTickPrefersNewestReadySongOverStubbed(t *testing.T) {
	f := newFixture(t)
	now := time.Now().UTC()
	putReadySong(t, f.ds, "song-old", 120_000, now.Add(-time.Minute))
	putReadySong(t, f.ds, "song-new", 130_000, now)

	outcome, err := f.engine.Tick(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, outcome.IsCommitted())

	require.NoError(t, f.ds.View(context.Background(), func(tx *ds.Txn) error {
		rec, _, err := tx.GetStationRecord()
		require.Equal(t, "song-new", rec.Next.VoteID)
		return err
	}))
}

func TestTickWritesSnapshotAndOpensPoll(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Tick(context.Background(), 1)
	require.NoError(t, err)

	snap, ok, err := f.kvc.ReadSnapshot(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, ds.StubbedVoteID, snap.CurrentSong.VoteID)
	require.Equal(t, "OPEN", snap.Poll.Status)
	require.Len(t, snap.Poll.Options, 4)
}

func TestTickEnqueuesNextTickAndVoteClose(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Tick(context.Background(), 1)
	require.NoError(t, err)

	due, err := f.tqStore.Due(context.Background(), time.Now().UTC().Add(365*24*time.Hour), 10)
	require.NoError(t, err)

	var kinds []string
	for _, task := range due {
		kinds = append(kinds, string(task.Kind))
	}
	require.Contains(t, kinds, "tick")
	require.Contains(t, kinds, "vote-close")
}

func TestReplaceNextIfStubbedSwapsOnlyWhenStubbed(t *testing.T) {
	f := newFixture(t)
	putReadySong(t, f.ds, "song-x", 100_000, time.Now().UTC())

	outcome, err := f.engine.ReplaceNextIfStubbed(context.Background(), "song-x", 100_000)
	require.NoError(t, err)
	require.Equal(t, "updated", outcome.Kind())

	outcome, err = f.engine.ReplaceNextIfStubbed(context.Background(), "song-x", 100_000)
	require.NoError(t, err)
	require.Equal(t, "already_set", outcome.Kind())

	putReadySong(t, f.ds, "song-y", 100_000, time.Now().UTC())
	outcome, err = f.engine.ReplaceNextIfStubbed(context.Background(), "song-y", 100_000)
	require.NoError(t, err)
	require.Equal(t, "noop", outcome.Kind())
}

func TestReplaceNextIfStubbedPublishesAndRefreshesSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Tick(ctx, 1) // seeds the cached Snapshot
	require.NoError(t, err)

	sub, err := f.engine.bus.Subscribe(ctx, string(events.TopicPlayback))
	require.NoError(t, err)
	defer func() { _ = sub.Close() }()

	putReadySong(t, f.ds, "song-x", 100_000, time.Now().UTC())
	outcome, err := f.engine.ReplaceNextIfStubbed(ctx, "song-x", 100_000)
	require.NoError(t, err)
	require.Equal(t, "updated", outcome.Kind())

	select {
	case msg := <-sub.C():
		changed, ok := msg.(events.NextSongChanged)
		require.True(t, ok, "expected events.NextSongChanged, got %T", msg)
		require.Equal(t, "song-x", changed.VoteID)
		require.EqualValues(t, 100_000, changed.DurationMs)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for NEXT-SONG-CHANGED")
	}

	snap, ok, err := f.kvc.ReadSnapshot(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "song-x", snap.NextSong.VoteID)
	require.EqualValues(t, 100_000, snap.NextSong.DurationMs)
}
