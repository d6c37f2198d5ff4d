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
	"github.com/pulsefm/pulsefm/internal/catalog"
	"github.com/pulsefm/pulsefm/internal/ds"
	"github.com/pulsefm/pulsefm/internal/kv"
	"github.com/pulsefm/pulsefm/internal/poll"
	"github.com/pulsefm/pulsefm/internal/ratelimit"
	"github.com/pulsefm/pulsefm/internal/statecache"
)

func newTestVotingDeps(t *testing.T) (VotingDeps, *ds.Store, *kv.Client) {
	t.Helper()

	store, err := ds.Open(filepath.Join(t.TempDir(), "ds"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Bootstrap(context.Background(), 150_000))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	kvc := kv.New(rdb)

	cache := statecache.New(store, kvc)
	cat, err := catalog.New([]catalog.Descriptor{
		{Key: "song-a", Label: "Song A"},
		{Key: "song-b", Label: "Song B"},
		{Key: "song-c", Label: "Song C"},
	})
	require.NoError(t, err)
	pollEngine := poll.New(store, kvc, cat, bus.NewMemoryBus(), 2, time.Hour)

	deps := VotingDeps{
		Poll:    pollEngine,
		Cache:   cache,
		Limiter: ratelimit.New(ratelimit.DefaultConfig()),
	}
	return deps, store, kvc
}

func voteBody(voteID, option string) *bytes.Reader {
	data, _ := json.Marshal(map[string]string{"voteId": voteID, "option": option})
	return bytes.NewReader(data)
}

func TestVoteRejectsMissingSessionHeader(t *testing.T) {
	deps, _, _ := newTestVotingDeps(t)
	r := NewVotingRouter(deps, "voted-test")

	req := httptest.NewRequest("POST", "/vote", voteBody("v1", "song-a"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, 400, rec.Code)
}

func TestVoteAcceptsValidBallot(t *testing.T) {
	deps, store, _ := newTestVotingDeps(t)
	ctx := context.Background()

	poll, err := deps.Poll.OpenPoll(ctx, 30_000)
	require.NoError(t, err)
	_ = store

	r := NewVotingRouter(deps, "voted-test")
	req := httptest.NewRequest("POST", "/vote", voteBody(poll.VoteID, poll.Options[0]))
	req.Header.Set("X-Session-Id", "sess-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
}

func TestVoteRejectsDuplicateBallot(t *testing.T) {
	deps, _, _ := newTestVotingDeps(t)
	ctx := context.Background()

	poll, err := deps.Poll.OpenPoll(ctx, 30_000)
	require.NoError(t, err)

	r := NewVotingRouter(deps, "voted-test")

	first := httptest.NewRequest("POST", "/vote", voteBody(poll.VoteID, poll.Options[0]))
	first.Header.Set("X-Session-Id", "sess-1")
	rec1 := httptest.NewRecorder()
	r.ServeHTTP(rec1, first)
	require.Equal(t, 200, rec1.Code)

	second := httptest.NewRequest("POST", "/vote", voteBody(poll.VoteID, poll.Options[0]))
	second.Header.Set("X-Session-Id", "sess-1")
	rec2 := httptest.NewRecorder()
	r.ServeHTTP(rec2, second)
	require.Equal(t, 409, rec2.Code)
}

func TestVoteRejectsInvalidOption(t *testing.T) {
	deps, _, _ := newTestVotingDeps(t)
	ctx := context.Background()

	poll, err := deps.Poll.OpenPoll(ctx, 30_000)
	require.NoError(t, err)

	r := NewVotingRouter(deps, "voted-test")
	req := httptest.NewRequest("POST", "/vote", voteBody(poll.VoteID, "not-an-option"))
	req.Header.Set("X-Session-Id", "sess-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, 400, rec.Code)
}

func TestVoteRejectsStaleVoteID(t *testing.T) {
	deps, _, _ := newTestVotingDeps(t)
	ctx := context.Background()

	_, err := deps.Poll.OpenPoll(ctx, 30_000)
	require.NoError(t, err)

	r := NewVotingRouter(deps, "voted-test")
	req := httptest.NewRequest("POST", "/vote", voteBody("stale-vote-id", "song-a"))
	req.Header.Set("X-Session-Id", "sess-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, 409, rec.Code)
}
