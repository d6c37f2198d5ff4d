// Package httpapi wires RotationEngine, PollEngine, StateCache, and
// StreamHub onto the three HTTP surfaces of spec.md §6: the rotation+poll
// service, the voting service, and the stream service.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"

	"github.com/pulsefm/pulsefm/internal/log"
	"github.com/pulsefm/pulsefm/internal/ratelimit"
)

// streamAcceptRateLimit guards how often a single IP may open a new SSE
// connection. This is a coarser, accept-time gate than ratelimit.Limiter's
// per-request token bucket: it bounds reconnect storms (a flapping client
// hammering GET /stream) rather than steady-state request volume.
var streamAcceptRateLimit = httprate.Limit(5, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP))

// baseRouter applies the middleware stack common to all three services:
// panic recovery, request-id propagation, structured request logging, and
// OpenTelemetry span creation.
func baseRouter(serviceName string) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(log.Middleware())
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, serviceName, otelhttp.WithTracerProvider(otel.GetTracerProvider()))
	})
	return r
}

// rateLimitMiddleware rejects requests the ratelimit.Limiter denies for
// mode (spec.md §6's two externally-facing hot paths, "vote" and "stream").
func rateLimitMiddleware(limiter *ratelimit.Limiter, mode string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter != nil {
				ip := ratelimit.GetClientIP(r)
				if !limiter.Allow(ip, mode) {
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusTooManyRequests)
					_, _ = w.Write([]byte(`{"error":"rate_limit_exceeded"}`))
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = writeJSONBody(w, body)
}
