package kv

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb)
}

func TestOpenPollResetsTallyAndVotedSet(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	snap := &Snapshot{Poll: SnapshotPoll{VoteID: "v1", Options: []string{"a", "b"}, Version: 1, Status: "open"}}
	require.NoError(t, c.OpenPoll(ctx, "v1", OpenPollArgs{
		Snapshot:    snap,
		SnapshotTTL: time.Minute,
		StateTTL:    time.Minute,
		Options:     []string{"a", "b"},
	}))

	tallies, err := c.Tallies(ctx, "v1")
	require.NoError(t, err)
	require.Equal(t, map[string]int64{"a": 0, "b": 0}, tallies)

	count, err := c.VotedCount(ctx, "v1")
	require.NoError(t, err)
	require.Zero(t, count)

	got, ok, err := c.ReadSnapshot(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v1", got.Poll.VoteID)
}

func TestVoteIsAtMostOncePerSession(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	require.NoError(t, c.OpenPoll(ctx, "v1", OpenPollArgs{
		Snapshot:    &Snapshot{Poll: SnapshotPoll{VoteID: "v1"}},
		SnapshotTTL: time.Minute,
		StateTTL:    time.Minute,
		Options:     []string{"a", "b"},
	}))

	accepted, err := c.Vote(ctx, "v1", "session-1", "a", time.Minute)
	require.NoError(t, err)
	require.True(t, accepted)

	accepted, err = c.Vote(ctx, "v1", "session-1", "b", time.Minute)
	require.NoError(t, err)
	require.False(t, accepted, "a session voting twice must be rejected on the second attempt")

	tallies, err := c.Tallies(ctx, "v1")
	require.NoError(t, err)
	require.EqualValues(t, 1, tallies["a"])
	require.EqualValues(t, 0, tallies["b"])

	votedCount, err := c.VotedCount(ctx, "v1")
	require.NoError(t, err)
	require.EqualValues(t, 1, votedCount)
}

func TestVoteFromDistinctSessionsAccumulates(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	require.NoError(t, c.OpenPoll(ctx, "v1", OpenPollArgs{
		Snapshot:    &Snapshot{Poll: SnapshotPoll{VoteID: "v1"}},
		SnapshotTTL: time.Minute,
		StateTTL:    time.Minute,
		Options:     []string{"a", "b"},
	}))

	for _, sid := range []string{"s1", "s2", "s3"} {
		accepted, err := c.Vote(ctx, "v1", sid, "a", time.Minute)
		require.NoError(t, err)
		require.True(t, accepted)
	}

	tallies, err := c.Tallies(ctx, "v1")
	require.NoError(t, err)
	require.EqualValues(t, 3, tallies["a"])
}

func TestSetPollStatusRejectsVoteIDMismatch(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	require.NoError(t, c.WriteSnapshot(ctx, &Snapshot{Poll: SnapshotPoll{VoteID: "v1"}}, time.Minute))
	err := c.SetPollStatus(ctx, "v2", "closed")
	require.Error(t, err)
}

func TestSetPollStatusUpdatesInPlace(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	require.NoError(t, c.WriteSnapshot(ctx, &Snapshot{Poll: SnapshotPoll{VoteID: "v1", Status: "open"}}, time.Minute))
	require.NoError(t, c.SetPollStatus(ctx, "v1", "closed"))

	got, ok, err := c.ReadSnapshot(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "closed", got.Poll.Status)
}

func TestHeartbeatTracksActiveSessions(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	require.NoError(t, c.Heartbeat(ctx, "s1", time.Minute))
	require.NoError(t, c.Heartbeat(ctx, "s2", time.Minute))

	n, err := c.CountActiveSessions(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestReadSnapshotMissIsNotAnError(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	_, ok, err := c.ReadSnapshot(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}
