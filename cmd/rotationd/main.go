// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command rotationd runs the rotation+poll service: RotationEngine and
// PollEngine behind the HTTP surface described in spec.md §6 (POST /tick,
// POST /vote/close, POST /next/refresh, GET /health, GET /ready).
package main

import (
	"context"
	"encoding/json"
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
	"github.com/pulsefm/pulsefm/internal/health"
	"github.com/pulsefm/pulsefm/internal/httpapi"
	"github.com/pulsefm/pulsefm/internal/kv"
	xglog "github.com/pulsefm/pulsefm/internal/log"
	"github.com/pulsefm/pulsefm/internal/poll"
	"github.com/pulsefm/pulsefm/internal/rotation"
	"github.com/pulsefm/pulsefm/internal/telemetry"
	"github.com/pulsefm/pulsefm/internal/tq"
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
		fmt.Printf("rotationd %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	xglog.Configure(xglog.Config{Level: "info", Service: "rotationd", Version: version})
	logger := xglog.WithComponent("rotationd")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader(*configPath, version)
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().Err(err).Str("event", "config.load_failed").Msg("failed to load configuration")
	}
	xglog.Configure(xglog.Config{Level: cfg.Log.Level, Service: "rotationd", Version: version})

	cfgHolder := config.NewHolder(cfg, loader, *configPath)
	reloadCh := make(chan config.AppConfig, 1)
	cfgHolder.RegisterListener(reloadCh)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case newCfg := <-reloadCh:
				xglog.Configure(xglog.Config{Level: newCfg.Log.Level, Service: "rotationd", Version: version})
			}
		}
	}()
	if err := cfgHolder.StartWatcher(ctx); err != nil {
		logger.Warn().Err(err).Str("event", "config.watch_failed").Msg("hot reload disabled: failed to start config watcher")
	}
	defer cfgHolder.Stop()

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.OTLPEndpoint != "",
		ServiceName:    "rotationd",
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

	if err := store.Bootstrap(ctx, cfg.Rotation.StubbedDurationMs); err != nil {
		logger.Fatal().Err(err).Str("event", "ds.bootstrap_failed").Msg("failed to bootstrap station record")
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.KV.Addr, Password: cfg.KV.Password, DB: cfg.KV.DB})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Str("event", "kv.connect_failed").Msg("failed to connect to KV store")
	}
	defer func() { _ = rdb.Close() }()
	kvc := kv.New(rdb)

	tqStore, err := tq.Open(cfg.TQ.DBPath)
	if err != nil {
		logger.Fatal().Err(err).Str("event", "tq.open_failed").Msg("failed to open task queue store")
	}
	defer func() { _ = tqStore.Close() }()

	cat := catalog.Default()

	localBus := bus.NewMemoryBus()
	var eventBus bus.Bus = localBus
	if len(cfg.Events.ForwardURLs) > 0 {
		eventBus = bus.NewHTTPForwarder(localBus, cfg.Events.ForwardURLs)
	}

	votedTTL := time.Duration(cfg.Vote.VotedTTLSec) * time.Second
	pollEngine := poll.New(store, kvc, cat, eventBus, cfg.Rotation.PollOptionCount, votedTTL)
	rotationEngine := rotation.New(store, kvc, tqStore, eventBus, pollEngine, cfg.Rotation.CandidateScanLimit, cfg.Rotation.PollOffsetMs)

	dispatcher := tq.NewDispatcher(tqStore, cfg.TQ.SelfBaseURL, cfg.TQ.AuthToken)
	go dispatcher.Run(ctx)

	hm := health.NewManager(version)
	hm.RegisterChecker(health.NewDependencyChecker("ds", health.CheckReadiness, func(ctx context.Context) error {
		return store.View(ctx, func(*ds.Txn) error { return nil })
	}))
	hm.RegisterChecker(health.NewDependencyChecker("kv", health.CheckReadiness, func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}))
	hm.RegisterChecker(health.NewRotationLivenessChecker(5*time.Minute, func() (time.Time, error) {
		t, ok := rotationEngine.LastTick()
		if !ok {
			return time.Time{}, nil
		}
		return t, nil
	}))

	if err := bootstrapFirstTick(ctx, store, tqStore, cfg); err != nil {
		logger.Error().Err(err).Str("event", "rotation.bootstrap_tick_failed").Msg("failed to schedule startup tick")
	}

	handler := httpapi.NewRotationRouter(httpapi.RotationDeps{
		Rotation: rotationEngine,
		Poll:     pollEngine,
		Health:   hm,
	}, "rotationd")

	srv := &http.Server{Addr: cfg.HTTP.RotationAddr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("event", "startup").Str("addr", cfg.HTTP.RotationAddr).Msg("rotationd listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Str("event", "server.failed").Msg("rotationd server failed")
	}
	logger.Info().Msg("rotationd exiting")
}

// bootstrapFirstTick reads StationRecord on process start and enqueues a
// tick(version+1) TQ task at the offset remaining until endAt, or the
// configured default delay if endAt has already passed (spec.md §6
// "On process start").
func bootstrapFirstTick(ctx context.Context, store *ds.Store, tqStore *tq.Store, cfg config.AppConfig) error {
	var record *ds.StationRecord
	err := store.View(ctx, func(t *ds.Txn) error {
		rec, ok, err := t.GetStationRecord()
		if err != nil {
			return err
		}
		if ok {
			record = rec
		}
		return nil
	})
	if err != nil {
		return err
	}
	if record == nil {
		return nil
	}

	now := time.Now().UTC()
	runAt := record.EndAt
	if !runAt.After(now) {
		runAt = now.Add(time.Duration(cfg.Rotation.DefaultTickDelaySec) * time.Second)
	}

	nextVersion := record.Version + 1
	data, err := json.Marshal(rotation.TickPayload{Version: nextVersion})
	if err != nil {
		return err
	}

	_, err = tqStore.Enqueue(ctx, tq.Task{
		ID:        tq.TickID(record.Next.VoteID, record.EndAt.UnixMilli(), nextVersion),
		Kind:      tq.KindTick,
		Payload:   data,
		RunAt:     runAt,
		CreatedAt: now,
	})
	return err
}
