package tq

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "tq.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestEnqueueDeduplicatesByID(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	task := Task{ID: TickID("v1", 1000, 2), Kind: KindTick, Payload: []byte(`{"version":2}`), RunAt: time.Now().UTC(), CreatedAt: time.Now().UTC()}

	ok, err := s.Enqueue(ctx, task)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.Enqueue(ctx, task)
	require.NoError(t, err)
	require.False(t, ok, "duplicate-delivered enqueue must be suppressed")
}

func TestDueReturnsOnlyPastTasksOrderedByRunAt(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	now := time.Now().UTC()
	past := Task{ID: "a", Kind: KindTick, Payload: []byte("{}"), RunAt: now.Add(-time.Minute), CreatedAt: now}
	future := Task{ID: "b", Kind: KindTick, Payload: []byte("{}"), RunAt: now.Add(time.Hour), CreatedAt: now}
	earlier := Task{ID: "c", Kind: KindTick, Payload: []byte("{}"), RunAt: now.Add(-2 * time.Minute), CreatedAt: now}

	for _, tk := range []Task{past, future, earlier} {
		_, err := s.Enqueue(ctx, tk)
		require.NoError(t, err)
	}

	due, err := s.Due(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	require.Equal(t, "c", due[0].ID)
	require.Equal(t, "a", due[1].ID)
}

func TestMarkDoneRemovesTaskFromDueSet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	now := time.Now().UTC()
	task := Task{ID: "a", Kind: KindVoteClose, Payload: []byte("{}"), RunAt: now.Add(-time.Second), CreatedAt: now}
	_, err := s.Enqueue(ctx, task)
	require.NoError(t, err)

	require.NoError(t, s.MarkDone(ctx, "a"))

	due, err := s.Due(ctx, now, 10)
	require.NoError(t, err)
	require.Empty(t, due)
}

func TestMarkRetryReschedulesRunAt(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	now := time.Now().UTC()
	task := Task{ID: "a", Kind: KindTick, Payload: []byte("{}"), RunAt: now.Add(-time.Second), CreatedAt: now}
	_, err := s.Enqueue(ctx, task)
	require.NoError(t, err)

	require.NoError(t, s.MarkRetry(ctx, "a", now.Add(time.Hour)))

	due, err := s.Due(ctx, now, 10)
	require.NoError(t, err)
	require.Empty(t, due, "task rescheduled into the future must not be due yet")

	due, err = s.Due(ctx, now.Add(2*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, 1, due[0].Attempts)
}
