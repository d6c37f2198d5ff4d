// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads PulseFM's runtime configuration with the same
// precedence the teacher uses: built-in defaults, then a strict YAML file,
// then environment overrides, then validation. A Holder wraps the
// result in an atomically-swappable snapshot with optional fsnotify-driven
// hot reload (spec.md §9 replaces ambient singletons with an explicit,
// constructed dependency container; config is the one piece of that
// container that legitimately changes at runtime).
package config

import (
	"fmt"
	"time"
)

// AppConfig is the fully-resolved configuration for any of the PulseFM
// binaries. Each binary only reads the sections relevant to it.
type AppConfig struct {
	Version string `yaml:"-"`

	Log struct {
		Level  string `yaml:"level"`
		Output string `yaml:"output"`
	} `yaml:"log"`

	HTTP struct {
		RotationAddr string `yaml:"rotationAddr"`
		VoteAddr     string `yaml:"voteAddr"`
		StreamAddr   string `yaml:"streamAddr"`
	} `yaml:"http"`

	DS struct {
		DataDir string `yaml:"dataDir"`
	} `yaml:"ds"`

	KV struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"kv"`

	TQ struct {
		DBPath      string `yaml:"dbPath"`
		SelfBaseURL string `yaml:"selfBaseUrl"`
		AuthToken   string `yaml:"authToken"`
	} `yaml:"tq"`

	Catalog struct {
		Path string `yaml:"path"`
	} `yaml:"catalog"`

	Rotation struct {
		StubbedDurationMs   int64 `yaml:"stubbedDurationMs"`
		PollOffsetMs        int64 `yaml:"pollOffsetMs"`
		PollOptionCount     int   `yaml:"pollOptionCount"`
		CandidateScanLimit  int   `yaml:"candidateScanLimit"`
		DefaultTickDelaySec int64 `yaml:"defaultTickDelaySec"`
	} `yaml:"rotation"`

	Stream struct {
		TallySnapshotIntervalSec int `yaml:"tallySnapshotIntervalSec"`
		StreamIntervalMs         int `yaml:"streamIntervalMs"`
		HeartbeatSec             int `yaml:"heartbeatSec"`
		LoopSleepMs              int `yaml:"loopSleepMs"`
		OutboxSize               int `yaml:"outboxSize"`
	} `yaml:"stream"`

	RateLimit struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"ratelimit"`

	Telemetry struct {
		OTLPEndpoint string `yaml:"otlpEndpoint"`
		ServiceName  string `yaml:"serviceName"`
	} `yaml:"telemetry"`

	Events struct {
		// ForwardURLs are stream-service base URLs the rotation+poll service
		// POSTs decoded EventBus payloads to at /events/{topic}, so StreamHub
		// instances running in a separate process observe them.
		ForwardURLs []string `yaml:"forwardUrls"`
	} `yaml:"events"`

	Vote struct {
		VotedTTLSec int64 `yaml:"votedTtlSec"`
	} `yaml:"vote"`
}

// FileConfig mirrors AppConfig for strict YAML decoding; kept as a distinct
// type so a malformed file never partially populates AppConfig directly.
type FileConfig = AppConfig

// Defaults returns the built-in configuration baseline, grounded on
// spec.md's literal scenario S1 (stubbed durationMs=150000, poll
// durationMs=90000 i.e. offset 60000ms, 4 poll options).
func Defaults() AppConfig {
	var cfg AppConfig
	cfg.Log.Level = "info"
	cfg.Log.Output = "stdout"

	cfg.HTTP.RotationAddr = ":8081"
	cfg.HTTP.VoteAddr = ":8082"
	cfg.HTTP.StreamAddr = ":8083"

	cfg.DS.DataDir = "./data/ds"

	cfg.KV.Addr = "127.0.0.1:6379"
	cfg.KV.DB = 0

	cfg.TQ.DBPath = "./data/tq.db"
	cfg.TQ.SelfBaseURL = "http://127.0.0.1:8081"

	cfg.Rotation.StubbedDurationMs = 150_000
	cfg.Rotation.PollOffsetMs = 60_000
	cfg.Rotation.PollOptionCount = 4
	cfg.Rotation.CandidateScanLimit = 10
	cfg.Rotation.DefaultTickDelaySec = 30

	cfg.Stream.TallySnapshotIntervalSec = 10
	cfg.Stream.StreamIntervalMs = 500
	cfg.Stream.HeartbeatSec = 15
	cfg.Stream.LoopSleepMs = 50
	cfg.Stream.OutboxSize = 10

	cfg.RateLimit.Enabled = true

	cfg.Telemetry.ServiceName = "pulsefm"

	cfg.Events.ForwardURLs = []string{"http://127.0.0.1:8083"}
	cfg.Vote.VotedTTLSec = 3600

	return cfg
}

// Validate rejects configurations that would make a component misbehave in
// a way that is hard to debug (e.g. a zero poll option count).
func Validate(cfg AppConfig) error {
	if cfg.Rotation.PollOptionCount <= 0 {
		return fmt.Errorf("rotation.pollOptionCount must be positive")
	}
	if cfg.Rotation.StubbedDurationMs <= 0 {
		return fmt.Errorf("rotation.stubbedDurationMs must be positive")
	}
	if cfg.Rotation.PollOffsetMs < 0 {
		return fmt.Errorf("rotation.pollOffsetMs must not be negative")
	}
	if cfg.Stream.StreamIntervalMs <= 0 {
		return fmt.Errorf("stream.streamIntervalMs must be positive")
	}
	if cfg.Stream.HeartbeatSec <= 0 {
		return fmt.Errorf("stream.heartbeatSec must be positive")
	}
	if cfg.DS.DataDir == "" {
		return fmt.Errorf("ds.dataDir must be set")
	}
	if cfg.KV.Addr == "" {
		return fmt.Errorf("kv.addr must be set")
	}
	return nil
}

func pollDurationMs(cfg AppConfig, currentDurationMs int64) int64 {
	d := currentDurationMs - cfg.Rotation.PollOffsetMs
	if d < 0 {
		return 0
	}
	return d
}

// PollDuration computes the poll window for a rotation whose current song
// lasts currentDuration, per spec.md §4.1 step 5.
func PollDuration(cfg AppConfig, currentDuration time.Duration) time.Duration {
	ms := pollDurationMs(cfg, currentDuration.Milliseconds())
	return time.Duration(ms) * time.Millisecond
}
