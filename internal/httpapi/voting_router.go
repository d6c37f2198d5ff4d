package httpapi

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pulsefm/pulsefm/internal/poll"
	"github.com/pulsefm/pulsefm/internal/ratelimit"
	"github.com/pulsefm/pulsefm/internal/statecache"
)

// VotingDeps are the components the voting service's HTTP surface
// dispatches into.
type VotingDeps struct {
	Poll    *poll.Engine
	Cache   *statecache.Cache
	Limiter *ratelimit.Limiter
}

// NewVotingRouter builds the voting service router: POST /vote (spec.md §6).
func NewVotingRouter(deps VotingDeps, serviceName string) http.Handler {
	r := baseRouter(serviceName)
	r.Handle("/metrics", promhttp.Handler())

	r.With(rateLimitMiddleware(deps.Limiter, "vote")).Post("/vote", func(w http.ResponseWriter, req *http.Request) {
		sessionID := req.Header.Get("X-Session-Id")
		var body struct {
			VoteID string `json:"voteId"`
			Option string `json:"option"`
		}
		if err := decodeJSON(req, &body); err != nil || sessionID == "" || body.VoteID == "" || body.Option == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "validation", "reason": "missing_fields"})
			return
		}

		snap, err := deps.Cache.GetSnapshot(req.Context())
		if err != nil {
			writeError(w, req, err)
			return
		}

		outcome, err := deps.Poll.Vote(req.Context(), snap, body.VoteID, sessionID, body.Option)
		if err != nil {
			writeError(w, req, err)
			return
		}

		switch outcome {
		case poll.VoteOK:
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		case poll.VoteInvalidOption:
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "validation", "reason": "invalid_option"})
		case poll.VoteDuplicate:
			writeJSON(w, http.StatusConflict, map[string]string{"error": "precondition_mismatch", "reason": "duplicate"})
		case poll.VoteNotOpen, poll.VoteNotCurrent:
			writeJSON(w, http.StatusConflict, map[string]string{"error": "precondition_mismatch", "reason": string(outcome)})
		default:
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal"})
		}
	})

	return r
}
