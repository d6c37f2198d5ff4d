package streamhub

import (
	"context"
	"net/http"
	"time"

	"github.com/pulsefm/pulsefm/internal/bus"
	"github.com/pulsefm/pulsefm/internal/events"
	"github.com/pulsefm/pulsefm/internal/metrics"
)

// session holds one connection's protocol state: the hub itself is shared
// and stateless across connections (spec.md §4.4).
type session struct {
	w       http.ResponseWriter
	flusher http.Flusher
	hub     *Hub

	voteID  string
	version int64
	status  string

	baseline        map[string]int64
	lastSnapshotAt  time.Time
	lastStreamAt    time.Time
	lastHeartbeatAt time.Time
}

func (s *session) emitHello(now time.Time, heartbeat time.Duration) error {
	err := writeFrame(s.w, "HELLO", helloPayload{
		VoteID:       s.voteID,
		TS:           epochMs(now),
		Version:      s.version,
		HeartbeatSec: int64(heartbeat.Seconds()),
	})
	if err != nil {
		return err
	}
	s.flusher.Flush()
	metrics.StreamFramesTotal.WithLabelValues("HELLO").Inc()
	return nil
}

func (s *session) emitTallySnapshot(ctx context.Context, now time.Time) error {
	tallies, err := s.hub.tallies.Get(ctx, s.voteID)
	if err != nil {
		return err
	}
	s.baseline = cloneTallies(tallies)

	err = writeFrame(s.w, "TALLY_SNAPSHOT", tallySnapshotPayload{
		VoteID:  s.voteID,
		TS:      epochMs(now),
		Tallies: tallies,
		Status:  s.status,
	})
	if err != nil {
		return err
	}
	s.flusher.Flush()
	metrics.StreamFramesTotal.WithLabelValues("TALLY_SNAPSHOT").Inc()
	return nil
}

// drainMarkers applies spec.md §4.4's ordering guarantee: check for marker
// events first, emit at most one of each kind this iteration, and reset the
// tally baseline on SONG_CHANGED before any tally emission can occur later
// in the same iteration.
func (s *session) drainMarkers(ctx context.Context, outbox <-chan bus.Message) error {
	var sawSongChanged, sawVoteClosed, sawNextSongChanged bool

	for {
		select {
		case msg := <-outbox:
			switch m := msg.(type) {
			case events.Changeover:
				if m.Version < s.version || sawSongChanged {
					continue
				}
				sawSongChanged = true
				s.version = m.Version
				s.voteID = m.VoteID
				now := time.Now().UTC()
				if err := writeFrame(s.w, "SONG_CHANGED", songChangedPayload{VoteID: m.VoteID, TS: epochMs(now), Version: m.Version}); err != nil {
					return err
				}
				s.flusher.Flush()
				metrics.StreamFramesTotal.WithLabelValues("SONG_CHANGED").Inc()
				snap, err := s.hub.cache.GetSnapshot(ctx)
				if err == nil {
					s.status = snap.Poll.Status
					s.baseline = nil
				}
			case events.PollClosed:
				if m.Version < s.version || sawVoteClosed {
					continue
				}
				sawVoteClosed = true
				s.status = "CLOSED"
				s.hub.tallies.MarkDirty(m.VoteID)
				now := time.Now().UTC()
				if err := writeFrame(s.w, "VOTE_CLOSED", voteClosedPayload{VoteID: m.VoteID, WinnerOption: m.WinnerOption, TS: epochMs(now)}); err != nil {
					return err
				}
				s.flusher.Flush()
				metrics.StreamFramesTotal.WithLabelValues("VOTE_CLOSED").Inc()
			case events.NextSongChanged:
				if m.Version < s.version || sawNextSongChanged {
					continue
				}
				sawNextSongChanged = true
				now := time.Now().UTC()
				if err := writeFrame(s.w, "NEXT-SONG-CHANGED", nextSongChangedPayload{VoteID: m.VoteID, DurationMs: m.DurationMs, Version: m.Version, TS: epochMs(now)}); err != nil {
					return err
				}
				s.flusher.Flush()
				metrics.StreamFramesTotal.WithLabelValues("NEXT-SONG-CHANGED").Inc()
			}
		default:
			return nil
		}
	}
}

// tick checks the three periodic emission intervals.
func (s *session) tick(ctx context.Context, cfg Config) error {
	now := time.Now().UTC()

	if now.Sub(s.lastSnapshotAt) >= cfg.TallySnapshotInterval {
		if err := s.emitTallySnapshot(ctx, now); err != nil {
			return err
		}
		s.lastSnapshotAt = now
	}

	if now.Sub(s.lastStreamAt) >= cfg.StreamInterval {
		if err := s.emitTallyDelta(ctx, now); err != nil {
			return err
		}
		s.lastStreamAt = now
	}

	if now.Sub(s.lastHeartbeatAt) >= cfg.HeartbeatInterval {
		if err := writeFrame(s.w, "HEARTBEAT", heartbeatPayload{VoteID: s.voteID, TS: epochMs(now)}); err != nil {
			return err
		}
		s.flusher.Flush()
		metrics.StreamFramesTotal.WithLabelValues("HEARTBEAT").Inc()
		s.lastHeartbeatAt = now
	}

	return nil
}

func (s *session) emitTallyDelta(ctx context.Context, now time.Time) error {
	current, err := s.hub.tallies.Get(ctx, s.voteID)
	if err != nil {
		return err
	}

	delta := make(map[string]int64, len(current))
	for opt, count := range current {
		delta[opt] = count - s.baseline[opt]
	}
	for opt := range s.baseline {
		if _, present := current[opt]; !present {
			delta[opt] = 0
		}
	}
	s.baseline = cloneTallies(current)

	listeners, err := s.hub.listeners.Get(ctx)
	if err != nil {
		return err
	}

	if err := writeFrame(s.w, "TALLY_DELTA", tallyDeltaPayload{VoteID: s.voteID, TS: epochMs(now), Delta: delta, Listeners: listeners}); err != nil {
		return err
	}
	s.flusher.Flush()
	metrics.StreamFramesTotal.WithLabelValues("TALLY_DELTA").Inc()
	return nil
}
