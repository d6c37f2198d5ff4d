package statecache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/pulsefm/pulsefm/internal/ds"
	"github.com/pulsefm/pulsefm/internal/kv"
)

func newFixture(t *testing.T) (*Cache, *ds.Store, *kv.Client) {
	t.Helper()
	store, err := ds.Open(filepath.Join(t.TempDir(), "ds"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Bootstrap(context.Background(), 150_000))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	kvc := kv.New(rdb)

	return New(store, kvc), store, kvc
}

func TestGetSnapshotRebuildsFromDSOnMiss(t *testing.T) {
	cache, _, _ := newFixture(t)
	snap, err := cache.GetSnapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, ds.StubbedVoteID, snap.CurrentSong.VoteID)
}

func TestGetSnapshotServesCachedValueOnHit(t *testing.T) {
	cache, _, kvc := newFixture(t)
	ctx := context.Background()

	_, err := cache.GetSnapshot(ctx) // populates the cache
	require.NoError(t, err)

	require.NoError(t, kvc.WriteSnapshot(ctx, &kv.Snapshot{CurrentSong: kv.SnapshotSong{VoteID: "manually-cached"}}, time.Hour))

	snap, err := cache.GetSnapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, "manually-cached", snap.CurrentSong.VoteID)
}

func TestGetSnapshotRebuildPersistsExactPollAndSongFields(t *testing.T) {
	cache, store, _ := newFixture(t)
	ctx := context.Background()

	require.NoError(t, store.Update(ctx, func(txn *ds.Txn) error {
		return txn.PutPollState(&ds.PollState{
			VoteID:     "poll-1",
			Status:     ds.PollOpen,
			Options:    []string{"a", "b", "c"},
			Tallies:    map[string]int64{"a": 0, "b": 0, "c": 0},
			Version:    3,
			DurationMs: 45_000,
		})
	}))

	want := kv.SnapshotPoll{VoteID: "poll-1", Options: []string{"a", "b", "c"}, Version: 3, Status: string(ds.PollOpen)}

	snap, err := cache.GetSnapshot(ctx)
	require.NoError(t, err)
	got := kv.SnapshotPoll{VoteID: snap.Poll.VoteID, Options: snap.Poll.Options, Version: snap.Poll.Version, Status: snap.Poll.Status}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("rebuilt snapshot poll section mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, ds.StubbedVoteID, snap.CurrentSong.VoteID)
}

func TestSetPollStatusDelegatesToKV(t *testing.T) {
	cache, _, kvc := newFixture(t)
	ctx := context.Background()

	require.NoError(t, kvc.WriteSnapshot(ctx, &kv.Snapshot{Poll: kv.SnapshotPoll{VoteID: "v1", Status: "OPEN"}}, time.Hour))
	require.NoError(t, cache.SetPollStatus(ctx, "v1", "CLOSED"))

	snap, ok, err := kvc.ReadSnapshot(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "CLOSED", snap.Poll.Status)
}
