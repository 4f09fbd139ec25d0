// Shelfwise - Book Recommendation Scoring Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

// Command server runs the recommendation scoring service: HTTP API,
// rescore consumer, and periodic similarity refresh under one
// supervisor tree.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/dgraph-io/badger/v4"

	"github.com/shelfwise/shelfwise/internal/api"
	"github.com/shelfwise/shelfwise/internal/config"
	"github.com/shelfwise/shelfwise/internal/events"
	"github.com/shelfwise/shelfwise/internal/logging"
	"github.com/shelfwise/shelfwise/internal/recommend"
	"github.com/shelfwise/shelfwise/internal/recommend/ingest"
	"github.com/shelfwise/shelfwise/internal/recommend/profile"
	"github.com/shelfwise/shelfwise/internal/recommend/scoring"
	"github.com/shelfwise/shelfwise/internal/recommend/similarity"
	"github.com/shelfwise/shelfwise/internal/recommend/tags"
	"github.com/shelfwise/shelfwise/internal/services"
	"github.com/shelfwise/shelfwise/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "shelfwise: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logger := logging.Logger()
	logger.Info().Str("listen_addr", cfg.Server.ListenAddr()).Msg("starting shelfwise")

	db, err := store.New(cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	deduper, badgerDB, err := openDeduper(cfg.Dedup)
	if err != nil {
		return fmt.Errorf("open dedup cache: %w", err)
	}
	if badgerDB != nil {
		defer badgerDB.Close()
	}
	defer deduper.Close()

	extractor := tags.NewExtractor(tags.Config{Delimiter: cfg.Engine.TagDelimiter})
	aggregator := profile.NewAggregator(db, extractor, profile.Config{
		DecayHalfLife:       cfg.Engine.DecayHalfLife,
		EraMajorityFraction: cfg.Engine.EraMajorityFraction,
	}, logger)
	index := similarity.NewIndex(db, extractor, similarity.Config{
		Weights:          cfg.Similarity.FacetWeights,
		MinSimilarity:    cfg.Similarity.MinSimilarity,
		TopK:             cfg.Similarity.TopK,
		BatchSize:        cfg.Similarity.BatchSize,
		BatchesPerSecond: cfg.Similarity.BatchesPerSecond,
	}, logger)
	scorer := scoring.NewScorer(db, extractor, scoring.Config{
		Weights:        cfg.Similarity.FacetWeights,
		NoveltyCap:     cfg.Engine.NoveltyCap,
		NegativeWeight: cfg.Engine.NegativeWeight,
		MinMultiplier:  cfg.Engine.MinMultiplier,
		EraBonus:       cfg.Engine.EraBonus,
		MaxReasons:     cfg.Engine.MaxReasons,
	}, logger)

	bus := events.NewBus(events.Config{Buffer: cfg.Engine.EventBuffer}, logger)
	defer bus.Close()

	ingestor := ingest.NewIngestor(db, deduper, aggregator, bus, ingest.Config{
		DedupTTL: cfg.Engine.DedupTTL,
	}, logger)
	engine := recommend.NewEngine(db, ingestor, scorer, index, logger)

	handler := api.NewHandler(engine, db, logger)
	router := api.NewRouter(handler, api.RouterConfig{
		CORSOrigins: cfg.Server.CORSOrigins,
		RateLimit:   cfg.Server.RateLimit,
	})
	httpServer := &http.Server{
		Addr:         cfg.Server.ListenAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	tree := services.NewTree(supervisorLogger(cfg.Logging), services.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.AddAPIService(services.NewHTTPServerService(httpServer, cfg.Server.ShutdownTimeout))
	tree.AddWorkerService(services.NewRescoreConsumerService(bus, engine, logger))
	tree.AddWorkerService(services.NewSimilarityRefreshService(engine, cfg.Similarity.RefreshInterval, logger))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = tree.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor: %w", err)
	}
	logger.Info().Msg("shutdown complete")
	return nil
}

// openDeduper picks the idempotency cache: Badger when a path is
// configured, in-memory otherwise. The returned *badger.DB is nil for
// the in-memory case and owned by the caller otherwise.
func openDeduper(cfg config.DedupConfig) (ingest.Deduper, *badger.DB, error) {
	if cfg.Path == "" {
		return ingest.NewMemoryDeduper(), nil, nil
	}
	opts := badger.DefaultOptions(cfg.Path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, nil, err
	}
	return ingest.NewBadgerDeduper(db, "interaction"), db, nil
}

// supervisorLogger builds the slog logger sutureslog requires, kept at
// the same level and sink as the zerolog stack.
func supervisorLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "trace", "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "console" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
