package streamhub

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pulsefm/pulsefm/internal/kv"
)

const (
	tallyStaleness    = 500 * time.Millisecond
	listenerStaleness = time.Second
)

// tallyCache serves HGETALL-equivalent reads from a small per-process
// cache keyed by voteId, with a staleness window and an explicit dirty
// bit (spec.md §4.4 "Shared caches"). A singleflight group collapses
// concurrent refreshes from many subscribers into one KV round trip.
type tallyCache struct {
	kvc *kv.Client

	mu      sync.Mutex
	voteID  string
	tallies map[string]int64
	at      time.Time
	dirty   bool

	sf singleflight.Group
}

func newTallyCache(kvc *kv.Client) *tallyCache {
	return &tallyCache{kvc: kvc}
}

// MarkDirty forces the next Get for voteID to bypass the staleness window.
func (c *tallyCache) MarkDirty(voteID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.voteID == voteID {
		c.dirty = true
	}
}

func (c *tallyCache) Get(ctx context.Context, voteID string) (map[string]int64, error) {
	c.mu.Lock()
	fresh := c.voteID == voteID && !c.dirty && time.Since(c.at) < tallyStaleness
	if fresh {
		out := cloneTallies(c.tallies)
		c.mu.Unlock()
		return out, nil
	}
	c.mu.Unlock()

	v, err, _ := c.sf.Do(voteID, func() (any, error) {
		return c.kvc.Tallies(ctx, voteID)
	})
	if err != nil {
		return nil, err
	}
	tallies := v.(map[string]int64)

	c.mu.Lock()
	c.voteID = voteID
	c.tallies = tallies
	c.at = time.Now()
	c.dirty = false
	c.mu.Unlock()

	return cloneTallies(tallies), nil
}

func cloneTallies(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// listenerCache serves the approximate active-listener count with a 1 s
// staleness window, collapsed through singleflight.
type listenerCache struct {
	kvc *kv.Client

	mu    sync.Mutex
	count int
	at    time.Time

	sf singleflight.Group
}

func newListenerCache(kvc *kv.Client) *listenerCache {
	return &listenerCache{kvc: kvc}
}

func (c *listenerCache) Get(ctx context.Context) (int, error) {
	c.mu.Lock()
	if time.Since(c.at) < listenerStaleness {
		n := c.count
		c.mu.Unlock()
		return n, nil
	}
	c.mu.Unlock()

	v, err, _ := c.sf.Do("count", func() (any, error) {
		return c.kvc.CountActiveSessions(ctx)
	})
	if err != nil {
		return 0, err
	}
	n := v.(int)

	c.mu.Lock()
	c.count = n
	c.at = time.Now()
	c.mu.Unlock()

	return n, nil
}
