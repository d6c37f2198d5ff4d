package rotation

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/pulsefm/pulsefm/internal/bus"
	"github.com/pulsefm/pulsefm/internal/ds"
	"github.com/pulsefm/pulsefm/internal/events"
	"github.com/pulsefm/pulsefm/internal/kv"
	"github.com/pulsefm/pulsefm/internal/log"
	"github.com/pulsefm/pulsefm/internal/metrics"
	"github.com/pulsefm/pulsefm/internal/poll"
	"github.com/pulsefm/pulsefm/internal/tq"
	"github.com/pulsefm/pulsefm/internal/xerrors"
)

// Engine implements RotationEngine. It owns the DS transaction that
// advances playback and, after that commits, drives the poll rotation, the
// KV snapshot refresh, the EventBus publications, and the two TQ
// schedulings described in spec.md §4.1.
type Engine struct {
	ds                 *ds.Store
	kvc                *kv.Client
	tqStore            *tq.Store
	bus                bus.Bus
	poll               *poll.Engine
	candidateScanLimit int
	pollOffsetMs       int64
	lastTickUnixNano   atomic.Int64
}

// New builds an Engine. candidateScanLimit bounds the ready-song scan
// (spec.md §4.1 step 3, default 10); pollOffsetMs is subtracted from the
// current song's duration to get the new poll's durationMs (default
// 60_000).
func New(store *ds.Store, kvc *kv.Client, tqStore *tq.Store, b bus.Bus, pollEngine *poll.Engine, candidateScanLimit int, pollOffsetMs int64) *Engine {
	return &Engine{
		ds:                 store,
		kvc:                kvc,
		tqStore:            tqStore,
		bus:                b,
		poll:               pollEngine,
		candidateScanLimit: candidateScanLimit,
		pollOffsetMs:       pollOffsetMs,
	}
}

type committedTick struct {
	currentVoteID     string
	currentDurationMs int64
	now               time.Time
	endAt             time.Time
	candidateVoteID   string
	candidateDuration int64
}

// Tick advances playback per spec.md §4.1. A stale or duplicate
// requestVersion is a no-op; a successful tick commits a new StationRecord,
// rotates the poll, refreshes the KV snapshot, publishes events, and
// schedules the next two TQ tasks.
func (e *Engine) Tick(ctx context.Context, requestVersion int64) (TickOutcome, error) {
	logger := log.WithComponent("rotation")

	var result *committedTick
	err := e.ds.Update(ctx, func(t *ds.Txn) error {
		record, ok, err := t.GetStationRecord()
		if err != nil {
			return err
		}
		if !ok {
			return xerrors.Corrupt("station_record_missing", nil)
		}
		if requestVersion <= record.Version {
			return nil // stale; result stays nil
		}
		if record.Next.VoteID == "" {
			return xerrors.Corrupt("station_next_missing_fields", nil)
		}

		now := time.Now().UTC()
		currentVoteID := record.Next.VoteID
		currentDurationMs := record.Next.DurationMs
		endAt := now.Add(time.Duration(currentDurationMs) * time.Millisecond)

		candidates, err := t.ScanReadyDesc(currentVoteID, e.candidateScanLimit)
		if err != nil {
			return err
		}

		var candidateVoteID string
		var candidateDurationMs int64
		var candidateStubbed bool
		if len(candidates) > 0 {
			candidateVoteID = candidates[0].VoteID
			candidateDurationMs = candidates[0].DurationMs
		} else {
			stubbed, ok, err := t.GetSong(ds.StubbedVoteID)
			if err != nil {
				return err
			}
			if !ok {
				return xerrors.NotFound("no_material", nil)
			}
			candidateVoteID = stubbed.VoteID
			candidateDurationMs = stubbed.DurationMs
			candidateStubbed = true
		}

		if currentVoteID != ds.StubbedVoteID {
			if song, ok, err := t.GetSong(currentVoteID); err != nil {
				return err
			} else if ok {
				song.Status = ds.SongPlayed
				if err := t.PutSong(song); err != nil {
					return err
				}
			}
		}
		if !candidateStubbed {
			if song, ok, err := t.GetSong(candidateVoteID); err != nil {
				return err
			} else if ok {
				song.Status = ds.SongQueued
				if err := t.PutSong(song); err != nil {
					return err
				}
			}
		}

		newRecord := &ds.StationRecord{
			VoteID:     currentVoteID,
			StartAt:    now,
			EndAt:      endAt,
			DurationMs: currentDurationMs,
			Version:    requestVersion,
			Next: ds.NextSong{
				VoteID:     candidateVoteID,
				DurationMs: candidateDurationMs,
			},
		}
		if err := t.PutStationRecord(newRecord); err != nil {
			return err
		}

		result = &committedTick{
			currentVoteID:     currentVoteID,
			currentDurationMs: currentDurationMs,
			now:               now,
			endAt:             endAt,
			candidateVoteID:   candidateVoteID,
			candidateDuration: candidateDurationMs,
		}
		return nil
	})
	if err != nil {
		return TickOutcome{}, err
	}
	if result == nil {
		metrics.RotationTicksTotal.WithLabelValues("stale").Inc()
		return TickNoop("stale_version"), nil
	}

	newPoll, err := e.rotatePoll(ctx, result.currentDurationMs)
	if err != nil {
		// The DS transaction already committed; the tick itself still
		// succeeded, but the snapshot/poll rotation is degraded until the
		// next cycle repairs it.
		logger.Error().Err(err).Str("event", "rotation.poll_rotation_failed").Msg("poll rotation failed after committed tick")
	}

	if newPoll != nil {
		if err := e.refreshSnapshot(ctx, result, newPoll); err != nil {
			logger.Error().Err(err).Str("event", "rotation.snapshot_refresh_failed").Msg("snapshot refresh failed after committed tick")
		}
	}

	e.publishEvents(ctx, result, requestVersion)
	e.scheduleNext(ctx, result, newPoll, requestVersion)

	metrics.RotationTicksTotal.WithLabelValues("committed").Inc()
	metrics.RotationVersion.Set(float64(requestVersion))
	e.lastTickUnixNano.Store(result.now.UnixNano())

	return Committed(requestVersion), nil
}

// LastTick returns the commit time of the most recent successful Tick. ok is
// false if no tick has committed since this Engine was constructed, used by
// health.NewRotationLivenessChecker to detect a stalled rotation loop.
func (e *Engine) LastTick() (t time.Time, ok bool) {
	nanos := e.lastTickUnixNano.Load()
	if nanos == 0 {
		return time.Time{}, false
	}
	return time.Unix(0, nanos).UTC(), true
}

func (e *Engine) rotatePoll(ctx context.Context, currentDurationMs int64) (*ds.PollState, error) {
	if _, err := e.poll.ForceClose(ctx); err != nil {
		return nil, err
	}
	pollDurationMs := currentDurationMs - e.pollOffsetMs
	if pollDurationMs < 0 {
		pollDurationMs = 0
	}
	return e.poll.OpenPoll(ctx, pollDurationMs)
}

func (e *Engine) refreshSnapshot(ctx context.Context, r *committedTick, newPoll *ds.PollState) error {
	snap := &kv.Snapshot{
		CurrentSong: kv.SnapshotSong{
			VoteID:     r.currentVoteID,
			StartAt:    r.now,
			EndAt:      r.endAt,
			DurationMs: r.currentDurationMs,
		},
		NextSong: kv.SnapshotSong{
			VoteID:     r.candidateVoteID,
			DurationMs: r.candidateDuration,
		},
		Poll: kv.SnapshotPoll{
			VoteID:  newPoll.VoteID,
			Options: newPoll.Options,
			Version: newPoll.Version,
			Status:  string(ds.PollOpen),
			EndAt:   newPoll.EndAt,
		},
	}
	ttl := time.Duration(r.currentDurationMs) * time.Millisecond
	return e.kvc.OpenPoll(ctx, newPoll.VoteID, kv.OpenPollArgs{
		Snapshot:    snap,
		SnapshotTTL: ttl,
		StateTTL:    ttl,
		Options:     newPoll.Options,
	})
}

func (e *Engine) publishEvents(ctx context.Context, r *committedTick, version int64) {
	logger := log.WithComponent("rotation")

	if err := e.bus.Publish(ctx, string(events.TopicPlayback), events.NextSongChanged{
		VoteID:     r.candidateVoteID,
		DurationMs: r.candidateDuration,
		Version:    version,
		TS:         r.now,
	}); err != nil {
		logger.Warn().Err(err).Str("event", "rotation.publish_next_song_failed").Msg("failed to publish NEXT-SONG-CHANGED")
	}

	if err := e.bus.Publish(ctx, string(events.TopicPlayback), events.Changeover{
		VoteID:     r.currentVoteID,
		DurationMs: r.currentDurationMs,
		Version:    version,
		TS:         r.now,
	}); err != nil {
		logger.Warn().Err(err).Str("event", "rotation.publish_changeover_failed").Msg("failed to publish CHANGEOVER")
	}
}

func (e *Engine) scheduleNext(ctx context.Context, r *committedTick, newPoll *ds.PollState, version int64) {
	logger := log.WithComponent("rotation")

	tickPayload, _ := json.Marshal(TickPayload{Version: version + 1})
	tickTask := tq.Task{
		ID:        tq.TickID(r.currentVoteID, r.endAt.UnixMilli(), version),
		Kind:      tq.KindTick,
		Payload:   tickPayload,
		RunAt:     r.endAt,
		CreatedAt: r.now,
	}
	if _, err := e.tqStore.Enqueue(ctx, tickTask); err != nil {
		logger.Error().Err(err).Str("event", "rotation.enqueue_tick_failed").Msg("failed to enqueue next tick")
	}
	metrics.TQTasksTotal.WithLabelValues(string(tq.KindTick), "enqueued").Inc()

	if newPoll == nil {
		return
	}
	closePayload, _ := json.Marshal(VoteClosePayload{VoteID: newPoll.VoteID, Version: newPoll.Version})
	closeTask := tq.Task{
		ID:        tq.VoteCloseID(newPoll.VoteID, newPoll.Version),
		Kind:      tq.KindVoteClose,
		Payload:   closePayload,
		RunAt:     newPoll.EndAt,
		CreatedAt: r.now,
	}
	if _, err := e.tqStore.Enqueue(ctx, closeTask); err != nil {
		logger.Error().Err(err).Str("event", "rotation.enqueue_vote_close_failed").Msg("failed to enqueue poll close")
	}
	metrics.TQTasksTotal.WithLabelValues(string(tq.KindVoteClose), "enqueued").Inc()
}

// ReplaceNextIfStubbed swaps StationRecord.next for voteId/durationMs if
// and only if next is currently the stubbed fallback (spec.md §4.1). It
// never changes version. On a successful swap it publishes NEXT-SONG-CHANGED
// and advisory-updates the cached Snapshot's nextSong (spec.md §3
// Ownership, §5 "S5"), mirroring Tick's commit-then-best-effort-side-effects
// pattern.
func (e *Engine) ReplaceNextIfStubbed(ctx context.Context, voteID string, durationMs int64) (ReplaceOutcome, error) {
	logger := log.WithComponent("rotation")

	var outcome ReplaceOutcome
	var committedVersion int64
	err := e.ds.Update(ctx, func(t *ds.Txn) error {
		record, ok, err := t.GetStationRecord()
		if err != nil {
			return err
		}
		if !ok {
			return xerrors.Corrupt("station_record_missing", nil)
		}
		if record.Next.VoteID == voteID {
			outcome = ReplaceAlreadySet()
			return nil
		}
		if record.Next.VoteID != ds.StubbedVoteID {
			outcome = ReplaceNoop()
			return nil
		}

		song, ok, err := t.GetSong(voteID)
		if err != nil {
			return err
		}
		if !ok {
			return xerrors.NotFound("song_not_found", nil)
		}
		song.Status = ds.SongQueued
		if err := t.PutSong(song); err != nil {
			return err
		}

		record.Next = ds.NextSong{VoteID: voteID, DurationMs: durationMs}
		if err := t.PutStationRecord(record); err != nil {
			return err
		}
		outcome = ReplaceUpdated()
		committedVersion = record.Version
		return nil
	})
	if err != nil {
		return ReplaceOutcome{}, err
	}

	if outcome.Kind() == "updated" {
		now := time.Now().UTC()
		if err := e.bus.Publish(ctx, string(events.TopicPlayback), events.NextSongChanged{
			VoteID:     voteID,
			DurationMs: durationMs,
			Version:    committedVersion,
			TS:         now,
		}); err != nil {
			logger.Warn().Err(err).Str("event", "rotation.publish_next_song_failed").Msg("failed to publish NEXT-SONG-CHANGED after next-song refresh")
		}
		if err := e.kvc.SetNextSong(ctx, voteID, durationMs); err != nil {
			logger.Warn().Err(err).Str("event", "rotation.snapshot_next_song_refresh_failed").Msg("failed to advisory-update snapshot nextSong")
		}
	}

	return outcome, nil
}
