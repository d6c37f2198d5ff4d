package tq

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/pulsefm/pulsefm/internal/resilience"
)

func TestDispatchOneMarksDoneOn2xx(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s, err := Open(filepath.Join(t.TempDir(), "tq.db"))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	d := NewDispatcher(s, srv.URL, "")
	task := Task{ID: "a", Kind: KindTick, Payload: []byte("{}"), RunAt: time.Now().UTC(), CreatedAt: time.Now().UTC()}
	_, err = s.Enqueue(ctx, task)
	require.NoError(t, err)

	d.dispatchOne(ctx, task)

	due, err := s.Due(ctx, time.Now().UTC(), 10)
	require.NoError(t, err)
	require.Empty(t, due, "a 2xx response must mark the task done")
}

func TestDispatchOneMarksDoneOn4xxAsNoop(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	s, err := Open(filepath.Join(t.TempDir(), "tq.db"))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	d := NewDispatcher(s, srv.URL, "")
	task := Task{ID: "a", Kind: KindVoteClose, Payload: []byte("{}"), RunAt: time.Now().UTC(), CreatedAt: time.Now().UTC()}
	_, err = s.Enqueue(ctx, task)
	require.NoError(t, err)

	d.dispatchOne(ctx, task)

	due, err := s.Due(ctx, time.Now().UTC(), 10)
	require.NoError(t, err)
	require.Empty(t, due, "a 4xx response is non-retryable and must also mark the task done")
}

func TestDispatchOneReschedulesOn5xx(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s, err := Open(filepath.Join(t.TempDir(), "tq.db"))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	d := NewDispatcher(s, srv.URL, "")
	task := Task{ID: "a", Kind: KindTick, Payload: []byte("{}"), RunAt: time.Now().UTC(), CreatedAt: time.Now().UTC()}
	_, err = s.Enqueue(ctx, task)
	require.NoError(t, err)

	d.dispatchOne(ctx, task)

	due, err := s.Due(ctx, time.Now().UTC(), 10)
	require.NoError(t, err, "5xx responses retry, not mark done")
	require.Empty(t, due, "the task was rescheduled into the future, so it is not due yet")

	due, err = s.Due(ctx, time.Now().UTC().Add(retryBackoff*2), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, 1, due[0].Attempts)
}

func TestDispatchOneTripsCircuitBreakerAfterRepeatedFailures(t *testing.T) {
	ctx := context.Background()
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s, err := Open(filepath.Join(t.TempDir(), "tq.db"))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	d := NewDispatcher(s, srv.URL, "")

	now := time.Now().UTC()
	for i := 0; i < 10; i++ {
		task := Task{
			ID:        TickID("v", int64(i), int64(i)),
			Kind:      KindTick,
			Payload:   []byte("{}"),
			RunAt:     now,
			CreatedAt: now,
		}
		d.dispatchOne(ctx, task)
	}

	require.Equal(t, resilience.StateOpen, d.cb.GetState(), "repeated technical failures within the scan window must trip the breaker open")

	beforeTrip := hits.Load()
	tailTask := Task{ID: "tail", Kind: KindTick, Payload: []byte("{}"), RunAt: now, CreatedAt: now}
	d.dispatchOne(ctx, tailTask)
	require.Equal(t, beforeTrip, hits.Load(), "an open breaker must short-circuit the HTTP call entirely")
}

func TestRunStopsPollingGoroutineOnContextCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s, err := Open(filepath.Join(t.TempDir(), "tq.db"))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	d := NewDispatcher(s, srv.URL, "")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
