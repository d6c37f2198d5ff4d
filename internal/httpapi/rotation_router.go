package httpapi

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pulsefm/pulsefm/internal/health"
	"github.com/pulsefm/pulsefm/internal/poll"
	"github.com/pulsefm/pulsefm/internal/rotation"
	"github.com/pulsefm/pulsefm/internal/xerrors"
)

// RotationDeps are the components the rotation+poll service's HTTP surface
// dispatches into.
type RotationDeps struct {
	Rotation *rotation.Engine
	Poll     *poll.Engine
	Health   *health.Manager
}

// NewRotationRouter builds the rotation+poll service router: POST /tick,
// POST /vote/close, POST /next/refresh, GET /health (spec.md §6).
func NewRotationRouter(deps RotationDeps, serviceName string) http.Handler {
	r := baseRouter(serviceName)

	r.Get("/health", deps.Health.ServeHealth)
	r.Get("/ready", deps.Health.ServeReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/tick", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Version int64 `json:"version"`
		}
		if err := decodeJSON(req, &body); err != nil || body.Version < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "validation", "reason": "invalid_version"})
			return
		}
		outcome, err := deps.Rotation.Tick(req.Context(), body.Version)
		if err != nil {
			writeError(w, req, err)
			return
		}
		if !outcome.IsCommitted() {
			writeJSON(w, http.StatusOK, map[string]any{"noop": true, "version": body.Version, "reason": outcome.Reason()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "version": outcome.Version()})
	})

	closeVote := func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			VoteID  string `json:"voteId"`
			Version int64  `json:"version"`
		}
		if err := decodeJSON(req, &body); err != nil || body.VoteID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "validation", "reason": "missing_fields"})
			return
		}
		outcome, err := deps.Poll.ClosePoll(req.Context(), body.VoteID, body.Version)
		if err != nil {
			writeError(w, req, err)
			return
		}
		if outcome.IsClosed() {
			writeJSON(w, http.StatusOK, map[string]any{"ok": true, "action": "closed"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "action": "noop", "reason": outcome.Reason()})
	}
	r.Post("/vote/close", closeVote)
	// TQ self-dispatches vote-close tasks to "/"+kind ("vote-close"); alias
	// it to the same handler as the external /vote/close contract route.
	r.Post("/vote-close", closeVote)

	r.Post("/next/refresh", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			VoteID     string `json:"voteId"`
			DurationMs int64  `json:"durationMs"`
		}
		if err := decodeJSON(req, &body); err != nil || body.VoteID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "validation", "reason": "missing_fields"})
			return
		}
		outcome, err := deps.Rotation.ReplaceNextIfStubbed(req.Context(), body.VoteID, body.DurationMs)
		if err != nil {
			if xerrors.Is(err, xerrors.KindNotFound) {
				writeJSON(w, http.StatusOK, map[string]any{"ok": true, "action": "noop", "reason": "song_not_found"})
				return
			}
			writeError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "action": outcome.Kind()})
	})

	return r
}
