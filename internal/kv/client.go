package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pulsefm/pulsefm/internal/xerrors"
)

const (
	keySnapshot = "playback:current"
)

func tallyKey(voteID string) string { return fmt.Sprintf("poll:%s:tally", voteID) }
func votedKey(voteID string) string { return fmt.Sprintf("poll:%s:voted", voteID) }
func sessionKey(sessionID string) string { return "session:" + sessionID }

const activeKey = "active"

// scriptOpen implements KV-OPEN: SET snapshot EX; reset the tally hash to
// zero for every option; EXPIRE the tally; clear the voted set.
var scriptOpen = redis.NewScript(`
redis.call('SET', KEYS[1], ARGV[1], 'EX', ARGV[2])
redis.call('DEL', KEYS[2])
for i = 4, #ARGV, 2 do
  redis.call('HSET', KEYS[2], ARGV[i], ARGV[i+1])
end
redis.call('EXPIRE', KEYS[2], ARGV[3])
redis.call('DEL', KEYS[3])
return 1
`)

// scriptVote implements KV-VOTE: SADD the session into the voted set; if
// newly added, HINCRBY the tally for option and refresh the voted set's
// TTL. Returns 1 on a newly-accepted vote, 0 on a duplicate.
var scriptVote = redis.NewScript(`
local added = redis.call('SADD', KEYS[1], ARGV[1])
if added == 1 then
  redis.call('HINCRBY', KEYS[2], ARGV[2], 1)
  redis.call('EXPIRE', KEYS[1], ARGV[3])
  return 1
end
return 0
`)

// scriptHeartbeat implements KV-HEARTBEAT: touch a per-session key and a
// shared "active" canary, both with TTL.
var scriptHeartbeat = redis.NewScript(`
redis.call('SET', KEYS[1], '1', 'EX', ARGV[1])
redis.call('SET', KEYS[2], '1', 'EX', ARGV[1])
return 1
`)

// Client is the fast-KV adapter. It is built around redis.UniversalClient
// so the same code runs against a real Redis deployment or a miniredis
// instance in tests.
type Client struct {
	rdb redis.UniversalClient
}

// New wraps an already-constructed redis client.
func New(rdb redis.UniversalClient) *Client {
	return &Client{rdb: rdb}
}

// WriteSnapshot stores the Snapshot with a TTL tied to the current song's
// remaining playback time.
func (c *Client) WriteSnapshot(ctx context.Context, snap *Snapshot, ttl time.Duration) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return xerrors.Corrupt("kv_snapshot_encode_failed", err)
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	if err := c.rdb.Set(ctx, keySnapshot, data, ttl).Err(); err != nil {
		return xerrors.Unavailable("kv_snapshot_write_failed", err)
	}
	return nil
}

// ReadSnapshot returns the cached Snapshot. ok is false on a cache miss;
// a decode failure is treated the same as a miss so the caller falls back
// to rebuilding from DS (spec.md §4.3).
func (c *Client) ReadSnapshot(ctx context.Context) (snap *Snapshot, ok bool, err error) {
	data, err := c.rdb.Get(ctx, keySnapshot).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, xerrors.Unavailable("kv_snapshot_read_failed", err)
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, false, nil
	}
	return &s, true, nil
}

// SetPollStatus mutates the cached Snapshot's poll.status in place,
// preserving the remaining TTL. It fails if the cached Snapshot's
// poll.voteId does not match voteID.
func (c *Client) SetPollStatus(ctx context.Context, voteID, newStatus string) error {
	ttl, err := c.rdb.PTTL(ctx, keySnapshot).Result()
	if err != nil {
		return xerrors.Unavailable("kv_snapshot_pttl_failed", err)
	}
	snap, ok, err := c.ReadSnapshot(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return xerrors.Precondition("snapshot_missing", nil)
	}
	if snap.Poll.VoteID != voteID {
		return xerrors.Precondition("snapshot_voteid_mismatch", nil)
	}
	snap.Poll.Status = newStatus
	if ttl <= 0 {
		ttl = time.Hour
	}
	return c.WriteSnapshot(ctx, snap, ttl)
}

// SetNextSong mutates the cached Snapshot's nextSong in place, preserving
// the remaining TTL. It is the advisory counterpart to RotationEngine's own
// Snapshot writes: a "next-song refresh" path (spec.md §3 Ownership) may
// swap the stubbed fallback for a real song between ticks, and the cached
// Snapshot must reflect that without waiting for the next tick's full
// rewrite.
func (c *Client) SetNextSong(ctx context.Context, voteID string, durationMs int64) error {
	ttl, err := c.rdb.PTTL(ctx, keySnapshot).Result()
	if err != nil {
		return xerrors.Unavailable("kv_snapshot_pttl_failed", err)
	}
	snap, ok, err := c.ReadSnapshot(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return xerrors.Precondition("snapshot_missing", nil)
	}
	snap.NextSong = SnapshotSong{VoteID: voteID, DurationMs: durationMs}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return c.WriteSnapshot(ctx, snap, ttl)
}

// OpenPollArgs carries the arguments for the KV-OPEN atomic script.
type OpenPollArgs struct {
	Snapshot       *Snapshot
	SnapshotTTL    time.Duration
	StateTTL       time.Duration
	Options        []string
}

// OpenPoll executes KV-OPEN: writes the fresh Snapshot, resets the tally
// hash to zero for every option, and clears the voted set — all in one
// atomic script.
func (c *Client) OpenPoll(ctx context.Context, voteID string, args OpenPollArgs) error {
	data, err := json.Marshal(args.Snapshot)
	if err != nil {
		return xerrors.Corrupt("kv_snapshot_encode_failed", err)
	}

	argv := make([]any, 0, 3+2*len(args.Options))
	argv = append(argv, data, int64(args.SnapshotTTL.Seconds()), int64(args.StateTTL.Seconds()))
	for _, opt := range args.Options {
		argv = append(argv, opt, 0)
	}

	keys := []string{keySnapshot, tallyKey(voteID), votedKey(voteID)}
	if err := scriptOpen.Run(ctx, c.rdb, keys, argv...).Err(); err != nil {
		return xerrors.Unavailable("kv_open_failed", err)
	}
	return nil
}

// Vote executes KV-VOTE: at-most-once admission of one session's vote for
// one option. accepted is false exactly when the session had already
// voted in this poll.
func (c *Client) Vote(ctx context.Context, voteID, sessionID, option string, votedTTL time.Duration) (accepted bool, err error) {
	keys := []string{votedKey(voteID), tallyKey(voteID)}
	res, err := scriptVote.Run(ctx, c.rdb, keys, sessionID, option, int64(votedTTL.Seconds())).Int64()
	if err != nil {
		return false, xerrors.Unavailable("kv_vote_failed", err)
	}
	return res == 1, nil
}

// HasOption reports whether option is one of the fields currently tracked
// by the poll's tally hash.
func (c *Client) HasOption(ctx context.Context, voteID, option string) (bool, error) {
	ok, err := c.rdb.HExists(ctx, tallyKey(voteID), option).Result()
	if err != nil {
		return false, xerrors.Unavailable("kv_hexists_failed", err)
	}
	return ok, nil
}

// Tallies returns the current per-option vote counts for voteID.
func (c *Client) Tallies(ctx context.Context, voteID string) (map[string]int64, error) {
	raw, err := c.rdb.HGetAll(ctx, tallyKey(voteID)).Result()
	if err != nil {
		return nil, xerrors.Unavailable("kv_hgetall_failed", err)
	}
	out := make(map[string]int64, len(raw))
	for k, v := range raw {
		var n int64
		if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
			return nil, xerrors.Corrupt("kv_tally_decode_failed", err)
		}
		out[k] = n
	}
	return out, nil
}

// VotedCount returns the number of sessions that have voted in voteID's
// poll, used by testable-property checks (Σtallies ≤ |VotedSet|).
func (c *Client) VotedCount(ctx context.Context, voteID string) (int64, error) {
	n, err := c.rdb.SCard(ctx, votedKey(voteID)).Result()
	if err != nil {
		return 0, xerrors.Unavailable("kv_scard_failed", err)
	}
	return n, nil
}

// Heartbeat executes KV-HEARTBEAT: touches a per-session liveness key plus
// a shared "active" canary, both expiring after ttl.
func (c *Client) Heartbeat(ctx context.Context, sessionID string, ttl time.Duration) error {
	keys := []string{sessionKey(sessionID), activeKey}
	if err := scriptHeartbeat.Run(ctx, c.rdb, keys, int64(ttl.Seconds())).Err(); err != nil {
		return xerrors.Unavailable("kv_heartbeat_failed", err)
	}
	return nil
}

// CountActiveSessions approximates the current listener count by scanning
// live session:* keys. Spec.md §9: "precision and performance at scale are
// out of scope" — this trades exactness for a bounded SCAN cost.
func (c *Client) CountActiveSessions(ctx context.Context) (int, error) {
	var cursor uint64
	count := 0
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, "session:*", 200).Result()
		if err != nil {
			return 0, xerrors.Unavailable("kv_scan_failed", err)
		}
		count += len(keys)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return count, nil
}
