// Package streamhub implements StreamHub (spec.md §4.4): the per-connection
// SSE protocol that fans playback and poll events out to listeners.
package streamhub

import (
	"context"
	"net/http"
	"time"

	"github.com/pulsefm/pulsefm/internal/bus"
	"github.com/pulsefm/pulsefm/internal/events"
	"github.com/pulsefm/pulsefm/internal/kv"
	"github.com/pulsefm/pulsefm/internal/log"
	"github.com/pulsefm/pulsefm/internal/metrics"
	"github.com/pulsefm/pulsefm/internal/statecache"
	"github.com/pulsefm/pulsefm/internal/xerrors"
)

const loopInterval = 50 * time.Millisecond

// Config tunes the three periodic emission intervals and the per-connection
// outbox size (spec.md §4.4, §5 "Backpressure").
type Config struct {
	TallySnapshotInterval time.Duration
	StreamInterval        time.Duration
	HeartbeatInterval     time.Duration
	OutboxSize            int
}

// Hub serves the SSE stream. One Hub is shared by every connection in a
// process; per-connection state lives on the stack of ServeSSE.
type Hub struct {
	bus      bus.Bus
	cache    *statecache.Cache
	kvc      *kv.Client
	cfg      Config
	tallies  *tallyCache
	listeners *listenerCache
}

func New(b bus.Bus, cache *statecache.Cache, kvc *kv.Client, cfg Config) *Hub {
	if cfg.OutboxSize <= 0 {
		cfg.OutboxSize = 10
	}
	return &Hub{
		bus:       b,
		cache:     cache,
		kvc:       kvc,
		cfg:       cfg,
		tallies:   newTallyCache(kvc),
		listeners: newListenerCache(kvc),
	}
}

// ServeSSE implements the GET /stream handler described in spec.md §6.
// It blocks until the client disconnects.
func (h *Hub) ServeSSE(w http.ResponseWriter, r *http.Request) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return xerrors.Unavailable("stream_unflushable", nil)
	}

	ctx := r.Context()
	logger := log.WithComponentFromContext(ctx, "streamhub")

	snap, err := h.cache.GetSnapshot(ctx)
	if err != nil {
		return err
	}

	playbackSub, err := h.bus.Subscribe(ctx, string(events.TopicPlayback))
	if err != nil {
		return xerrors.Unavailable("stream_subscribe_failed", err)
	}
	defer func() { _ = playbackSub.Close() }()

	voteSub, err := h.bus.Subscribe(ctx, string(events.TopicVoteEvents))
	if err != nil {
		return xerrors.Unavailable("stream_subscribe_failed", err)
	}
	defer func() { _ = voteSub.Close() }()

	outbox := make(chan bus.Message, h.cfg.OutboxSize)
	fwdCtx, cancelFwd := context.WithCancel(ctx)
	defer cancelFwd()
	go forward(fwdCtx, playbackSub.C(), outbox)
	go forward(fwdCtx, voteSub.C(), outbox)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	metrics.StreamSubscribersActive.Inc()
	defer metrics.StreamSubscribersActive.Dec()

	sess := &session{
		w:        w,
		flusher:  flusher,
		voteID:   snap.Poll.VoteID,
		version:  snap.Poll.Version,
		status:   snap.Poll.Status,
		hub:      h,
	}

	now := time.Now().UTC()
	if err := sess.emitHello(now, h.cfg.HeartbeatInterval); err != nil {
		return err
	}
	if err := sess.emitTallySnapshot(ctx, now); err != nil {
		return err
	}
	sess.lastSnapshotAt = now
	sess.lastStreamAt = now
	sess.lastHeartbeatAt = now

	ticker := time.NewTicker(loopInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := sess.drainMarkers(ctx, outbox); err != nil {
				logger.Warn().Err(err).Str("event", "streamhub.marker_emit_failed").Msg("failed to emit marker event")
				return nil
			}
			if err := sess.tick(ctx, h.cfg); err != nil {
				logger.Warn().Err(err).Str("event", "streamhub.periodic_emit_failed").Msg("failed to emit periodic frame")
				return nil
			}
		}
	}
}

// forward drains src into dst without blocking the publisher: on a full
// outbox the incoming message is dropped and counted as a
// "streamhub-outbox"/"overflow" bus drop. The subscriber stays connected;
// an overflow does not end the SSE session.
func forward(ctx context.Context, src <-chan bus.Message, dst chan<- bus.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-src:
			if !ok {
				return
			}
			select {
			case dst <- msg:
			default:
				metrics.IncBusDropReason("streamhub-outbox", "overflow")
			}
		}
	}
}
