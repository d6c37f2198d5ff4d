package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pulsefm/pulsefm/internal/bus"
	"github.com/pulsefm/pulsefm/internal/events"
	"github.com/pulsefm/pulsefm/internal/kv"
	"github.com/pulsefm/pulsefm/internal/log"
	"github.com/pulsefm/pulsefm/internal/ratelimit"
	"github.com/pulsefm/pulsefm/internal/statecache"
	"github.com/pulsefm/pulsefm/internal/streamhub"
)

var errUnknownEventKind = errors.New("httpapi: unknown event kind")

// StreamDeps are the components the stream service's HTTP surface
// dispatches into.
type StreamDeps struct {
	Hub          *streamhub.Hub
	Cache        *statecache.Cache
	KV           *kv.Client
	Bus          bus.Bus
	Limiter      *ratelimit.Limiter
	HeartbeatTTL time.Duration
}

// eventEnvelope mirrors internal/bus's forwarding envelope: a kind
// discriminator plus the raw payload, decoded back into the concrete
// event-variant struct the kind names.
type eventEnvelope struct {
	Kind    events.Kind     `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// NewStreamRouter builds the stream service router: GET /stream, GET
// /state, and POST /events/{topic} (spec.md §6). The /events/{topic}
// route exists because RotationEngine/PollEngine run in a separate
// process from StreamHub; they forward their local EventBus publications
// here so currently-connected SSE sessions observe them.
func NewStreamRouter(deps StreamDeps, serviceName string) http.Handler {
	r := baseRouter(serviceName)
	r.Handle("/metrics", promhttp.Handler())

	r.With(streamAcceptRateLimit, rateLimitMiddleware(deps.Limiter, "stream")).Get("/stream", func(w http.ResponseWriter, req *http.Request) {
		if err := deps.Hub.ServeSSE(w, req); err != nil {
			writeError(w, req, err)
		}
	})

	r.Post("/heartbeat", func(w http.ResponseWriter, req *http.Request) {
		sessionID := req.Header.Get("X-Session-Id")
		if sessionID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "validation", "reason": "missing_session_id"})
			return
		}
		ttl := deps.HeartbeatTTL
		if ttl <= 0 {
			ttl = 30 * time.Second
		}
		if err := deps.KV.Heartbeat(req.Context(), sessionID, ttl); err != nil {
			writeError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})

	r.Get("/state", func(w http.ResponseWriter, req *http.Request) {
		ctx := req.Context()
		snap, err := deps.Cache.GetSnapshot(ctx)
		if err != nil {
			writeError(w, req, err)
			return
		}
		body := map[string]any{
			"currentSong": snap.CurrentSong,
			"nextSong":    snap.NextSong,
			"poll":        snap.Poll,
		}
		if snap.Poll.VoteID != "" {
			tallies, err := deps.KV.Tallies(ctx, snap.Poll.VoteID)
			if err != nil {
				writeError(w, req, err)
				return
			}
			body["tallies"] = tallies
		}
		listeners, err := deps.KV.CountActiveSessions(ctx)
		if err != nil {
			writeError(w, req, err)
			return
		}
		body["listeners"] = listeners
		writeJSON(w, http.StatusOK, body)
	})

	r.Post("/events/{topic}", func(w http.ResponseWriter, req *http.Request) {
		topic := chi.URLParam(req, "topic")
		var env eventEnvelope
		if err := decodeJSON(req, &env); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "validation", "reason": "malformed_envelope"})
			return
		}

		msg, err := decodeEventByKind(env.Kind, env.Payload)
		if err != nil {
			log.FromContext(req.Context()).Warn().Err(err).Str("event", "httpapi.event_decode_failed").Str("kind", string(env.Kind)).Msg("failed to decode forwarded event")
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "validation", "reason": "unknown_kind"})
			return
		}

		if err := deps.Bus.Publish(req.Context(), topic, msg); err != nil {
			writeError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})

	return r
}

func decodeEventByKind(kind events.Kind, payload json.RawMessage) (bus.Message, error) {
	switch kind {
	case events.KindChangeover:
		var ev events.Changeover
		err := json.Unmarshal(payload, &ev)
		return ev, err
	case events.KindNextSongChanged:
		var ev events.NextSongChanged
		err := json.Unmarshal(payload, &ev)
		return ev, err
	case events.KindPollOpen:
		var ev events.PollOpened
		err := json.Unmarshal(payload, &ev)
		return ev, err
	case events.KindPollClose:
		var ev events.PollClosed
		err := json.Unmarshal(payload, &ev)
		return ev, err
	default:
		return nil, errUnknownEventKind
	}
}
