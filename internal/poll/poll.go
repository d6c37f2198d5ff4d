package poll

import (
	"context"
	"crypto/rand"
	"math/big"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/pulsefm/pulsefm/internal/bus"
	"github.com/pulsefm/pulsefm/internal/catalog"
	"github.com/pulsefm/pulsefm/internal/ds"
	"github.com/pulsefm/pulsefm/internal/events"
	"github.com/pulsefm/pulsefm/internal/kv"
	"github.com/pulsefm/pulsefm/internal/log"
	"github.com/pulsefm/pulsefm/internal/metrics"
	"github.com/pulsefm/pulsefm/internal/xerrors"
)

// Engine implements PollEngine (spec.md §4.2): opening, voting on, and
// closing the poll that runs alongside the current song.
type Engine struct {
	ds       *ds.Store
	kvc      *kv.Client
	catalog  *catalog.Catalog
	bus      bus.Bus
	optCount int
	votedTTL time.Duration
}

// New builds an Engine. optionCount is the number of distinct options
// sampled per poll; votedTTL bounds how long a session's vote-dedup entry
// lives in KV (must outlive the poll it is cast in).
func New(store *ds.Store, kvc *kv.Client, cat *catalog.Catalog, b bus.Bus, optionCount int, votedTTL time.Duration) *Engine {
	return &Engine{ds: store, kvc: kvc, catalog: cat, bus: b, optCount: optionCount, votedTTL: votedTTL}
}

// OpenPoll atomically writes a fresh PollState with status OPEN, a new
// voteId, and a version one greater than the previous poll's (0 if none
// exists yet). It returns the new DS document; the caller is responsible
// for the KV-OPEN script (rotation.Engine issues it as part of the single
// combined "KV snapshot + KV poll init" ordering step, spec.md §5).
func (e *Engine) OpenPoll(ctx context.Context, durationMs int64) (*ds.PollState, error) {
	options, err := e.catalog.SampleN(e.optCount)
	if err != nil {
		return nil, xerrors.Corrupt("poll_catalog_sample_failed", err)
	}

	now := time.Now().UTC()
	state := &ds.PollState{
		VoteID:     uuid.NewString(),
		Status:     ds.PollOpen,
		StartAt:    now,
		EndAt:      now.Add(time.Duration(durationMs) * time.Millisecond),
		DurationMs: durationMs,
		Options:    options,
		Tallies:    zeroTallies(options),
		CreatedAt:  now,
	}

	err = e.ds.Update(ctx, func(t *ds.Txn) error {
		prev, ok, err := t.GetPollState()
		if err != nil {
			return err
		}
		state.Version = 1
		if ok {
			state.Version = prev.Version + 1
		}
		return t.PutPollState(state)
	})
	if err != nil {
		return nil, err
	}

	metrics.PollClosesTotal.WithLabelValues("opened").Inc()

	if pubErr := e.bus.Publish(ctx, string(events.TopicPlayback), events.PollOpened{
		VoteID:  state.VoteID,
		EndAt:   state.EndAt,
		Version: state.Version,
		TS:      now,
	}); pubErr != nil {
		log.WithComponent("poll").Warn().Err(pubErr).Str("event", "poll.publish_open_failed").Str("vote_id", state.VoteID).Msg("failed to publish OPEN event")
	}

	return state, nil
}

// ForceClose closes whatever poll is currently OPEN, without requiring the
// caller to know its voteId/version. Used by RotationEngine's step 5,
// which must tolerate a lost closePoll TQ task (spec.md §4.1 "Failure
// semantics").
func (e *Engine) ForceClose(ctx context.Context) (CloseOutcome, error) {
	var current *ds.PollState
	err := e.ds.View(ctx, func(t *ds.Txn) error {
		s, ok, err := t.GetPollState()
		if err != nil {
			return err
		}
		if ok {
			current = s
		}
		return nil
	})
	if err != nil {
		return CloseOutcome{}, err
	}
	if current == nil || current.Status != ds.PollOpen {
		return Noop("not_open"), nil
	}
	return e.closeVoteID(ctx, current.VoteID, current.Version)
}

// ClosePoll performs the compare-and-act close described in spec.md §4.2:
// it is a no-op unless the current PollState still matches expectedVoteID
// and expectedVersion and is still OPEN.
func (e *Engine) ClosePoll(ctx context.Context, expectedVoteID string, expectedVersion int64) (CloseOutcome, error) {
	var current *ds.PollState
	err := e.ds.View(ctx, func(t *ds.Txn) error {
		s, ok, err := t.GetPollState()
		if err != nil {
			return err
		}
		if ok {
			current = s
		}
		return nil
	})
	if err != nil {
		return CloseOutcome{}, err
	}
	if current == nil || current.VoteID != expectedVoteID || current.Version != expectedVersion || current.Status != ds.PollOpen {
		return Noop("version_mismatch"), nil
	}
	return e.closeVoteID(ctx, current.VoteID, current.Version)
}

func (e *Engine) closeVoteID(ctx context.Context, voteID string, version int64) (CloseOutcome, error) {
	tallies, err := e.kvc.Tallies(ctx, voteID)
	if err != nil {
		return CloseOutcome{}, err
	}

	var state *ds.PollState
	var winner string
	err = e.ds.Update(ctx, func(t *ds.Txn) error {
		s, ok, err := t.GetPollState()
		if err != nil {
			return err
		}
		if !ok || s.VoteID != voteID || s.Version != version || s.Status != ds.PollOpen {
			return nil // raced closed between the read above and now; caller sees it via state == nil
		}
		winner, err = pickWinner(s.Options, tallies)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		s.Status = ds.PollClosed
		s.Tallies = tallies
		s.WinnerOption = winner
		s.ClosedAt = &now
		state = s
		return t.PutPollState(s)
	})
	if err != nil {
		return CloseOutcome{}, err
	}
	if state == nil {
		return Noop("version_mismatch"), nil
	}

	if err := e.kvc.SetPollStatus(ctx, voteID, string(ds.PollClosed)); err != nil {
		log.WithComponent("poll").Warn().Err(err).Str("event", "poll.snapshot_status_update_failed").Str("vote_id", voteID).Msg("failed to update cached snapshot poll status")
	}

	metrics.PollClosesTotal.WithLabelValues("closed").Inc()

	if pubErr := e.bus.Publish(ctx, string(events.TopicVoteEvents), events.PollClosed{
		VoteID:       voteID,
		WinnerOption: winner,
		Version:      version,
		TS:           time.Now().UTC(),
	}); pubErr != nil {
		log.WithComponent("poll").Warn().Err(pubErr).Str("event", "poll.publish_close_failed").Str("vote_id", voteID).Msg("failed to publish CLOSE event")
	}

	return Closed(winner), nil
}

// Vote validates option against snap (the caller's current Snapshot read)
// and, if valid, executes KV-VOTE. It never touches DS: the vote ledger
// lives entirely in KV while a poll is open.
func (e *Engine) Vote(ctx context.Context, snap *kv.Snapshot, voteID, sessionID, option string) (VoteOutcome, error) {
	if snap.Poll.VoteID != voteID {
		return VoteNotCurrent, nil
	}
	if snap.Poll.Status != string(ds.PollOpen) {
		return VoteNotOpen, nil
	}
	valid := false
	for _, o := range snap.Poll.Options {
		if o == option {
			valid = true
			break
		}
	}
	if !valid {
		return VoteInvalidOption, nil
	}

	accepted, err := e.kvc.Vote(ctx, voteID, sessionID, option, e.votedTTL)
	if err != nil {
		return "", err
	}
	if !accepted {
		metrics.PollVotesTotal.WithLabelValues("duplicate").Inc()
		return VoteDuplicate, nil
	}
	metrics.PollVotesTotal.WithLabelValues("ok").Inc()
	return VoteOK, nil
}

func zeroTallies(options []string) map[string]int64 {
	out := make(map[string]int64, len(options))
	for _, o := range options {
		out[o] = 0
	}
	return out
}

// pickWinner implements spec.md §4.2 "Winner selection": uniform among the
// options with the maximum tally, or uniform among all options if every
// tally is zero.
func pickWinner(options []string, tallies map[string]int64) (string, error) {
	if len(options) == 0 {
		return "", xerrors.Corrupt("poll_no_options", nil)
	}

	sorted := make([]string, len(options))
	copy(sorted, options)
	sort.Strings(sorted) // deterministic iteration order before random tie-break

	var max int64 = -1
	for _, o := range sorted {
		if c := tallies[o]; c > max {
			max = c
		}
	}

	var pool []string
	if max <= 0 {
		pool = sorted
	} else {
		for _, o := range sorted {
			if tallies[o] == max {
				pool = append(pool, o)
			}
		}
	}

	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(pool))))
	if err != nil {
		return "", xerrors.Unavailable("poll_rand_failed", err)
	}
	return pool[n.Int64()], nil
}
