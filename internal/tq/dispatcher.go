package tq

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/pulsefm/pulsefm/internal/log"
	"github.com/pulsefm/pulsefm/internal/metrics"
	"github.com/pulsefm/pulsefm/internal/resilience"
)

const (
	pollInterval    = 500 * time.Millisecond
	batchLimit      = 50
	maxAttempts     = 8
	retryBackoff    = 5 * time.Second
	dispatchTimeout = 10 * time.Second
)

// Dispatcher polls the Store for due tasks and POSTs each as JSON to the
// service's own URL, per spec.md §6 "TQ tasks": "JSON POST to the service's
// own URL ... Retryable errors are raised as 5xx; non-retryable are 2xx
// with {noop, reason}."
type Dispatcher struct {
	store     *Store
	baseURL   string
	authToken string
	client    *http.Client
	cb        *resilience.CircuitBreaker
}

// NewDispatcher constructs a Dispatcher targeting baseURL for self-invocation.
// A self-invocation loop that keeps retrying into a wedged or down HTTP
// listener only piles up latency and log noise, so dispatch calls run
// through a circuit breaker that opens after repeated transport failures
// or 5xx responses.
func NewDispatcher(store *Store, baseURL, authToken string) *Dispatcher {
	return &Dispatcher{
		store:     store,
		baseURL:   baseURL,
		authToken: authToken,
		client:    &http.Client{Timeout: dispatchTimeout},
		cb:        resilience.NewCircuitBreaker("tq_dispatch", 5, 10, 60*time.Second, 30*time.Second),
	}
}

// Run polls for due tasks until ctx is canceled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.dispatchDue(ctx)
		}
	}
}

func (d *Dispatcher) dispatchDue(ctx context.Context) {
	logger := log.WithComponent("tq")

	due, err := d.store.Due(ctx, time.Now().UTC(), batchLimit)
	if err != nil {
		logger.Error().Err(err).Str("event", "tq.due_query_failed").Msg("failed to query due tasks")
		return
	}

	for _, task := range due {
		d.dispatchOne(ctx, task)
	}
}

func (d *Dispatcher) dispatchOne(ctx context.Context, task Task) {
	logger := log.WithComponent("tq")

	if !d.cb.AllowRequest() {
		d.retryOrFail(ctx, task, "circuit_open")
		return
	}

	url := d.baseURL + "/" + string(task.Kind)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(task.Payload))
	if err != nil {
		logger.Error().Err(err).Str("event", "tq.build_request_failed").Str("task_id", task.ID).Msg("failed to build dispatch request")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if d.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+d.authToken)
	}

	d.cb.RecordAttempt()
	resp, err := d.client.Do(req)
	if err != nil {
		d.cb.RecordTechnicalFailure()
		d.retryOrFail(ctx, task, "transport_error")
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 500 {
		d.cb.RecordTechnicalFailure()
	} else {
		d.cb.RecordSuccess()
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if err := d.store.MarkDone(ctx, task.ID); err != nil {
			logger.Error().Err(err).Str("event", "tq.mark_done_failed").Str("task_id", task.ID).Msg("failed to mark task done")
		}
		metrics.TQTasksTotal.WithLabelValues(string(task.Kind), "done").Inc()
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		// Non-retryable: the referent state has already moved on.
		if err := d.store.MarkDone(ctx, task.ID); err != nil {
			logger.Error().Err(err).Str("event", "tq.mark_done_failed").Str("task_id", task.ID).Msg("failed to mark task done")
		}
		metrics.TQTasksTotal.WithLabelValues(string(task.Kind), "noop").Inc()
	default:
		d.retryOrFail(ctx, task, fmt.Sprintf("status_%d", resp.StatusCode))
	}
}

func (d *Dispatcher) retryOrFail(ctx context.Context, task Task, reason string) {
	logger := log.WithComponent("tq")

	if task.Attempts+1 >= maxAttempts {
		if err := d.store.MarkFailed(ctx, task.ID); err != nil {
			logger.Error().Err(err).Str("event", "tq.mark_failed_failed").Str("task_id", task.ID).Msg("failed to mark task failed")
		}
		metrics.TQTasksTotal.WithLabelValues(string(task.Kind), "failed").Inc()
		logger.Warn().Str("event", "tq.exhausted").Str("task_id", task.ID).Str("reason", reason).Msg("task exhausted retries")
		return
	}

	next := time.Now().UTC().Add(retryBackoff)
	if err := d.store.MarkRetry(ctx, task.ID, next); err != nil {
		logger.Error().Err(err).Str("event", "tq.mark_retry_failed").Str("task_id", task.ID).Msg("failed to reschedule retry")
	}
	metrics.TQTasksTotal.WithLabelValues(string(task.Kind), "retry").Inc()
}
