// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RotationTicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsefm_rotation_ticks_total",
		Help: "Total tick() calls by outcome (committed, stale, noop)",
	}, []string{"outcome"})

	RotationVersion = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pulsefm_rotation_version",
		Help: "Current StationRecord.version",
	})

	PollVotesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsefm_poll_votes_total",
		Help: "Total vote() calls by outcome",
	}, []string{"outcome"})

	PollClosesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsefm_poll_closes_total",
		Help: "Total closePoll() calls by outcome (closed, noop)",
	}, []string{"outcome"})

	StateCacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsefm_statecache_lookups_total",
		Help: "Snapshot lookups by result (hit, miss, rebuilt)",
	}, []string{"result"})

	StreamSubscribersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pulsefm_stream_subscribers_active",
		Help: "Currently connected SSE subscribers",
	})

	StreamFramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsefm_stream_frames_total",
		Help: "SSE frames emitted by event name",
	}, []string{"event"})

	TQTasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsefm_tq_tasks_total",
		Help: "Delayed tasks by kind and outcome",
	}, []string{"kind", "outcome"})
)
