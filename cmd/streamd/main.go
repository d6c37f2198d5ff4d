// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command streamd runs the stream service: StreamHub's SSE surface plus the
// GET /state read path and the POST /events/{topic} relay endpoint that
// receives forwarded EventBus publications from rotationd (spec.md §6).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pulsefm/pulsefm/internal/bus"
	"github.com/pulsefm/pulsefm/internal/config"
	"github.com/pulsefm/pulsefm/internal/ds"
	"github.com/pulsefm/pulsefm/internal/httpapi"
	"github.com/pulsefm/pulsefm/internal/kv"
	xglog "github.com/pulsefm/pulsefm/internal/log"
	"github.com/pulsefm/pulsefm/internal/ratelimit"
	"github.com/pulsefm/pulsefm/internal/statecache"
	"github.com/pulsefm/pulsefm/internal/streamhub"
	"github.com/pulsefm/pulsefm/internal/telemetry"
)

var (
	version   = "v0.1.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("streamd %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	xglog.Configure(xglog.Config{Level: "info", Service: "streamd", Version: version})
	logger := xglog.WithComponent("streamd")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.NewLoader(*configPath, version).Load()
	if err != nil {
		logger.Fatal().Err(err).Str("event", "config.load_failed").Msg("failed to load configuration")
	}
	xglog.Configure(xglog.Config{Level: cfg.Log.Level, Service: "streamd", Version: version})

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.OTLPEndpoint != "",
		ServiceName:    "streamd",
		ServiceVersion: version,
		Endpoint:       cfg.Telemetry.OTLPEndpoint,
		SamplingRate:   1.0,
	})
	if err != nil {
		logger.Fatal().Err(err).Str("event", "telemetry.init_failed").Msg("failed to init telemetry")
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	store, err := ds.Open(cfg.DS.DataDir)
	if err != nil {
		logger.Fatal().Err(err).Str("event", "ds.open_failed").Msg("failed to open document store")
	}
	defer func() { _ = store.Close() }()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.KV.Addr, Password: cfg.KV.Password, DB: cfg.KV.DB})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Str("event", "kv.connect_failed").Msg("failed to connect to KV store")
	}
	defer func() { _ = rdb.Close() }()
	kvc := kv.New(rdb)

	cache := statecache.New(store, kvc)

	// streamd's bus is local-only: its subscribers are this process's SSE
	// connections, fed either by the /events/{topic} relay (when rotationd
	// runs elsewhere) or, in a single-process deployment, the same bus
	// instance shared with rotationd.
	localBus := bus.NewMemoryBus()

	hub := streamhub.New(localBus, cache, kvc, streamhub.Config{
		TallySnapshotInterval: time.Duration(cfg.Stream.TallySnapshotIntervalSec) * time.Second,
		StreamInterval:        time.Duration(cfg.Stream.StreamIntervalMs) * time.Millisecond,
		HeartbeatInterval:     time.Duration(cfg.Stream.HeartbeatSec) * time.Second,
		OutboxSize:            cfg.Stream.OutboxSize,
	})

	limiter := ratelimit.New(ratelimit.DefaultConfig())

	handler := httpapi.NewStreamRouter(httpapi.StreamDeps{
		Hub:          hub,
		Cache:        cache,
		KV:           kvc,
		Bus:          localBus,
		Limiter:      limiter,
		HeartbeatTTL: 2 * time.Duration(cfg.Stream.HeartbeatSec) * time.Second,
	}, "streamd")

	srv := &http.Server{Addr: cfg.HTTP.StreamAddr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("event", "startup").Str("addr", cfg.HTTP.StreamAddr).Msg("streamd listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Str("event", "server.failed").Msg("streamd server failed")
	}
	logger.Info().Msg("streamd exiting")
}
