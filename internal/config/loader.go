// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Loader resolves configuration with precedence ENV > file > defaults.
type Loader struct {
	configPath string
	version    string
	lookupEnv  func(string) (string, bool)
}

// NewLoader creates a loader reading the OS environment.
func NewLoader(configPath, version string) *Loader {
	return &Loader{configPath: configPath, version: version, lookupEnv: os.LookupEnv}
}

// Load resolves defaults, an optional strict YAML file, then env overrides.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		fileCfg, err := l.loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		cfg = *fileCfg
	}

	l.applyEnv(&cfg)
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile decodes a strict YAML document into a copy of Defaults() so an
// omitted section still carries its default value.
func (l *Loader) loadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file path is provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	cfg := Defaults()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}
	return &cfg, nil
}

func (l *Loader) applyEnv(cfg *AppConfig) {
	str := func(key string, dst *string) {
		if v, ok := l.lookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	i64 := func(key string, dst *int64) {
		if v, ok := l.lookupEnv(key); ok && v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				*dst = n
			}
		}
	}
	i := func(key string, dst *int) {
		if v, ok := l.lookupEnv(key); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	b := func(key string, dst *bool) {
		if v, ok := l.lookupEnv(key); ok && v != "" {
			if n, err := strconv.ParseBool(v); err == nil {
				*dst = n
			}
		}
	}

	str("PULSEFM_LOG_LEVEL", &cfg.Log.Level)
	str("PULSEFM_HTTP_ROTATION_ADDR", &cfg.HTTP.RotationAddr)
	str("PULSEFM_HTTP_VOTE_ADDR", &cfg.HTTP.VoteAddr)
	str("PULSEFM_HTTP_STREAM_ADDR", &cfg.HTTP.StreamAddr)
	str("PULSEFM_DS_DATA_DIR", &cfg.DS.DataDir)
	str("PULSEFM_KV_ADDR", &cfg.KV.Addr)
	str("PULSEFM_KV_PASSWORD", &cfg.KV.Password)
	i("PULSEFM_KV_DB", &cfg.KV.DB)
	str("PULSEFM_TQ_DB_PATH", &cfg.TQ.DBPath)
	str("PULSEFM_TQ_SELF_BASE_URL", &cfg.TQ.SelfBaseURL)
	str("PULSEFM_TQ_AUTH_TOKEN", &cfg.TQ.AuthToken)
	str("PULSEFM_CATALOG_PATH", &cfg.Catalog.Path)
	i64("PULSEFM_ROTATION_STUBBED_DURATION_MS", &cfg.Rotation.StubbedDurationMs)
	i64("PULSEFM_ROTATION_POLL_OFFSET_MS", &cfg.Rotation.PollOffsetMs)
	i("PULSEFM_ROTATION_POLL_OPTION_COUNT", &cfg.Rotation.PollOptionCount)
	i("PULSEFM_STREAM_STREAM_INTERVAL_MS", &cfg.Stream.StreamIntervalMs)
	i("PULSEFM_STREAM_HEARTBEAT_SEC", &cfg.Stream.HeartbeatSec)
	b("PULSEFM_RATELIMIT_ENABLED", &cfg.RateLimit.Enabled)
	str("PULSEFM_TELEMETRY_OTLP_ENDPOINT", &cfg.Telemetry.OTLPEndpoint)
	i64("PULSEFM_VOTE_VOTED_TTL_SEC", &cfg.Vote.VotedTTLSec)

	if v, ok := l.lookupEnv("PULSEFM_EVENTS_FORWARD_URLS"); ok && v != "" {
		cfg.Events.ForwardURLs = strings.Split(v, ",")
	}
}
