package ds

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestBootstrapSeedsStubbedOnce(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Bootstrap(ctx, 150_000))

	var rec *StationRecord
	require.NoError(t, store.View(ctx, func(t *Txn) error {
		var ok bool
		var err error
		rec, ok, err = t.GetStationRecord()
		require.True(t, ok)
		return err
	}))
	require.Equal(t, StubbedVoteID, rec.VoteID)
	require.EqualValues(t, 0, rec.Version)
	require.Equal(t, StubbedVoteID, rec.Next.VoteID)

	// Calling Bootstrap again must not reset version or overwrite state.
	require.NoError(t, store.Update(ctx, func(t *Txn) error {
		r, _, err := t.GetStationRecord()
		if err != nil {
			return err
		}
		r.Version = 5
		return t.PutStationRecord(r)
	}))
	require.NoError(t, store.Bootstrap(ctx, 150_000))
	require.NoError(t, store.View(ctx, func(t *Txn) error {
		r, _, err := t.GetStationRecord()
		require.EqualValues(t, 5, r.Version)
		return err
	}))
}

func TestScanReadyDescOrdersNewestFirstAndExcludesCurrent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	base := time.Now().UTC()
	songs := []*Song{
		{VoteID: "a", DurationMs: 1000, Status: SongReady, CreatedAt: base},
		{VoteID: "b", DurationMs: 1000, Status: SongReady, CreatedAt: base.Add(time.Second)},
		{VoteID: "c", DurationMs: 1000, Status: SongReady, CreatedAt: base.Add(2 * time.Second)},
	}
	require.NoError(t, store.Update(ctx, func(t *Txn) error {
		for _, s := range songs {
			if err := t.PutSong(s); err != nil {
				return err
			}
		}
		return nil
	}))

	var result []*Song
	require.NoError(t, store.View(ctx, func(t *Txn) error {
		var err error
		result, err = t.ScanReadyDesc("b", 10)
		return err
	}))

	require.Len(t, result, 2)
	require.Equal(t, "c", result[0].VoteID)
	require.Equal(t, "a", result[1].VoteID)
}

func TestPutSongRemovesReadyIndexOnStatusTransition(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	createdAt := time.Now().UTC()
	require.NoError(t, store.Update(ctx, func(t *Txn) error {
		return t.PutSong(&Song{VoteID: "x", DurationMs: 1000, Status: SongReady, CreatedAt: createdAt})
	}))

	require.NoError(t, store.Update(ctx, func(t *Txn) error {
		return t.PutSong(&Song{VoteID: "x", DurationMs: 1000, Status: SongQueued, CreatedAt: createdAt})
	}))

	var result []*Song
	require.NoError(t, store.View(ctx, func(t *Txn) error {
		var err error
		result, err = t.ScanReadyDesc("", 10)
		return err
	}))
	require.Empty(t, result)
}

func TestPollStateRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	state := &PollState{
		VoteID:     "v1",
		Status:     PollOpen,
		DurationMs: 90_000,
		Options:    []string{"a", "b", "c", "d"},
		Tallies:    map[string]int64{"a": 0, "b": 0, "c": 0, "d": 0},
		Version:    1,
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, store.Update(ctx, func(t *Txn) error {
		return t.PutPollState(state)
	}))

	var got *PollState
	require.NoError(t, store.View(ctx, func(t *Txn) error {
		var ok bool
		var err error
		got, ok, err = t.GetPollState()
		require.True(t, ok)
		return err
	}))
	require.Equal(t, state.VoteID, got.VoteID)
	require.Equal(t, state.Options, got.Options)
}
