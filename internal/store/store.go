// Shelfwise - Book Recommendation Scoring Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

// Package store is the DuckDB persistence layer. It owns the schema and
// exposes the narrow read/write surface the engine's subpackages
// declare: catalog reads, interaction appends, profile and score
// upserts, similarity neighbor lists, and rebuild checkpoints.
//
// Writes that the engine treats as idempotent (profiles, scores,
// similarity edges) are upserts against the schema's compound unique
// keys. Transient failures are retried with exponential backoff behind
// a circuit breaker.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/shelfwise/shelfwise/internal/metrics"
)

// Config contains database settings.
type Config struct {
	// Path is the database file; ":memory:" for an in-memory database.
	Path string `json:"path" koanf:"path"`

	// Threads caps DuckDB's worker threads; 0 uses all CPUs.
	Threads int `json:"threads" koanf:"threads"`

	// MaxMemory is DuckDB's memory limit, e.g. "1GB".
	MaxMemory string `json:"max_memory" koanf:"max_memory"`

	// MaxOpenConns caps the sql.DB pool. Default: 8.
	MaxOpenConns int `json:"max_open_conns" koanf:"max_open_conns"`

	// Retry controls transient-failure handling.
	Retry RetryConfig `json:"retry" koanf:"retry"`
}

func (c *Config) applyDefaults() {
	if c.Path == "" {
		c.Path = ":memory:"
	}
	if c.MaxMemory == "" {
		c.MaxMemory = "1GB"
	}
	if c.MaxOpenConns < 1 {
		c.MaxOpenConns = 8
	}
	c.Retry.applyDefaults()
}

// DB wraps the DuckDB connection.
type DB struct {
	conn    *sql.DB
	cfg     Config
	breaker *gobreaker.CircuitBreaker[any]
	logger  zerolog.Logger
}

// New opens (or creates) the database and applies the schema.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func New(cfg Config, logger zerolog.Logger) (*DB, error) {
	cfg.applyDefaults()

	if cfg.Path != ":memory:" {
		dbDir := filepath.Dir(cfg.Path)
		if dbDir != "" && dbDir != "." {
			if err := os.MkdirAll(dbDir, 0o750); err != nil {
				return nil, fmt.Errorf("create database directory %s: %w", dbDir, err)
			}
		}
	}

	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}

	connStr := fmt.Sprintf(
		"%s?access_mode=read_write&threads=%d&max_memory=%s&autoinstall_known_extensions=false&autoload_known_extensions=false",
		cfg.Path, threads, cfg.MaxMemory,
	)
	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	conn.SetMaxOpenConns(cfg.MaxOpenConns)

	db := &DB{
		conn:   conn,
		cfg:    cfg,
		logger: logger.With().Str("component", "store").Logger(),
	}
	db.breaker = newBreaker(cfg.Retry, db.logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := db.initSchema(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	db.logger.Info().Str("path", cfg.Path).Msg("database ready")
	return db, nil
}

// Ping checks liveness; used by the readiness probe.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// execRetried runs a write under retry/breaker protection and records
// metrics for the named operation.
func (db *DB) execRetried(ctx context.Context, operation, table, query string, args ...any) error {
	start := time.Now()
	err := db.withRetry(ctx, func() error {
		_, execErr := db.conn.ExecContext(ctx, query, args...)
		return execErr
	})
	metrics.RecordDBQuery(operation, table, time.Since(start), err)
	return err
}
