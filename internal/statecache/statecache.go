// Package statecache implements StateCache (spec.md §4.3): the read path
// that serves the cached playback Snapshot from KV, falling back to a
// rebuild from DS on a miss or a decode failure.
package statecache

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pulsefm/pulsefm/internal/ds"
	"github.com/pulsefm/pulsefm/internal/kv"
	"github.com/pulsefm/pulsefm/internal/metrics"
	"github.com/pulsefm/pulsefm/internal/xerrors"
)

const defaultTTL = time.Hour

const rebuildKey = "rebuild"

// Cache composes the cached-read-with-DS-rebuild path shared by the voting
// and stream services. A cache miss on a hot Snapshot key can fan out to
// many concurrent rebuild calls right after expiry; sf collapses them into
// one DS read + KV write, the same stampede guard streamhub's tallyCache
// and listenerCache use around their own KV round trips.
type Cache struct {
	ds  *ds.Store
	kvc *kv.Client

	sf singleflight.Group
}

func New(store *ds.Store, kvc *kv.Client) *Cache {
	return &Cache{ds: store, kvc: kvc}
}

// GetSnapshot returns the cached Snapshot on a KV hit, or rebuilds it from
// DS on a miss or decode failure (spec.md §4.3). The cache-coherence rule:
// KV is authoritative for "current + next" while a song plays; DS is
// authoritative for history and the vote ledger.
func (c *Cache) GetSnapshot(ctx context.Context) (*kv.Snapshot, error) {
	snap, ok, err := c.kvc.ReadSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		metrics.StateCacheLookupsTotal.WithLabelValues("hit").Inc()
		return snap, nil
	}
	metrics.StateCacheLookupsTotal.WithLabelValues("miss").Inc()
	v, err, _ := c.sf.Do(rebuildKey, func() (any, error) {
		return c.rebuild(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*kv.Snapshot), nil
}

func (c *Cache) rebuild(ctx context.Context) (*kv.Snapshot, error) {
	var record *ds.StationRecord
	var pollState *ds.PollState
	err := c.ds.View(ctx, func(t *ds.Txn) error {
		rec, ok, err := t.GetStationRecord()
		if err != nil {
			return err
		}
		if !ok {
			return xerrors.Corrupt("station_record_missing", nil)
		}
		record = rec

		ps, ok, err := t.GetPollState()
		if err != nil {
			return err
		}
		if ok {
			pollState = ps
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	snap := &kv.Snapshot{
		CurrentSong: kv.SnapshotSong{
			VoteID:     record.VoteID,
			StartAt:    record.StartAt,
			EndAt:      record.EndAt,
			DurationMs: record.DurationMs,
		},
		NextSong: kv.SnapshotSong{
			VoteID:     record.Next.VoteID,
			DurationMs: record.Next.DurationMs,
		},
	}
	if pollState != nil {
		snap.Poll = kv.SnapshotPoll{
			VoteID:  pollState.VoteID,
			Options: pollState.Options,
			Version: pollState.Version,
			Status:  string(pollState.Status),
			EndAt:   pollState.EndAt,
		}
	}

	ttl := time.Until(record.EndAt)
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if err := c.kvc.WriteSnapshot(ctx, snap, ttl); err != nil {
		return nil, err
	}
	metrics.StateCacheLookupsTotal.WithLabelValues("rebuilt").Inc()
	return snap, nil
}

// SetPollStatus mutates the cached Snapshot's poll.status in place,
// preserving the remaining TTL.
func (c *Cache) SetPollStatus(ctx context.Context, voteID, newStatus string) error {
	return c.kvc.SetPollStatus(ctx, voteID, newStatus)
}
