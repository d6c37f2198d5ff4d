// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command voted runs the voting service: the rate-limited POST /vote
// surface described in spec.md §6, backed by PollEngine and StateCache.
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
	"github.com/pulsefm/pulsefm/internal/catalog"
	"github.com/pulsefm/pulsefm/internal/config"
	"github.com/pulsefm/pulsefm/internal/ds"
	"github.com/pulsefm/pulsefm/internal/httpapi"
	"github.com/pulsefm/pulsefm/internal/kv"
	xglog "github.com/pulsefm/pulsefm/internal/log"
	"github.com/pulsefm/pulsefm/internal/poll"
	"github.com/pulsefm/pulsefm/internal/ratelimit"
	"github.com/pulsefm/pulsefm/internal/statecache"
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
		fmt.Printf("voted %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	xglog.Configure(xglog.Config{Level: "info", Service: "voted", Version: version})
	logger := xglog.WithComponent("voted")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.NewLoader(*configPath, version).Load()
	if err != nil {
		logger.Fatal().Err(err).Str("event", "config.load_failed").Msg("failed to load configuration")
	}
	xglog.Configure(xglog.Config{Level: cfg.Log.Level, Service: "voted", Version: version})

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.OTLPEndpoint != "",
		ServiceName:    "voted",
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
	cat := catalog.Default()

	// voted does not run RotationEngine, so its local bus is write-only
	// from PollEngine's perspective; forwarding is owned by rotationd.
	localBus := bus.NewMemoryBus()
	votedTTL := time.Duration(cfg.Vote.VotedTTLSec) * time.Second
	pollEngine := poll.New(store, kvc, cat, localBus, cfg.Rotation.PollOptionCount, votedTTL)

	limiter := ratelimit.New(ratelimit.DefaultConfig())

	handler := httpapi.NewVotingRouter(httpapi.VotingDeps{
		Poll:    pollEngine,
		Cache:   cache,
		Limiter: limiter,
	}, "voted")

	srv := &http.Server{Addr: cfg.HTTP.VoteAddr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("event", "startup").Str("addr", cfg.HTTP.VoteAddr).Msg("voted listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Str("event", "server.failed").Msg("voted server failed")
	}
	logger.Info().Msg("voted exiting")
}
