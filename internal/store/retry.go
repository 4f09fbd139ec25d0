// Shelfwise - Book Recommendation Scoring Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/shelfwise/shelfwise/internal/metrics"
)

// RetryConfig controls transient-failure handling.
type RetryConfig struct {
	// MaxAttempts includes the first try. Default: 3.
	MaxAttempts int `json:"max_attempts" koanf:"max_attempts"`

	// BaseDelay is the first backoff step; it doubles per attempt.
	// Default: 50ms.
	BaseDelay time.Duration `json:"base_delay" koanf:"base_delay"`

	// BreakerThreshold is the consecutive-failure count that opens the
	// circuit. Default: 5.
	BreakerThreshold uint32 `json:"breaker_threshold" koanf:"breaker_threshold"`

	// BreakerCooldown is how long the circuit stays open. Default: 10s.
	BreakerCooldown time.Duration `json:"breaker_cooldown" koanf:"breaker_cooldown"`
}

func (c *RetryConfig) applyDefaults() {
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 50 * time.Millisecond
	}
	if c.BreakerThreshold == 0 {
		c.BreakerThreshold = 5
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = 10 * time.Second
	}
}

//nolint:gocritic // hugeParam: logger passed by value is acceptable for zerolog
func newBreaker(cfg RetryConfig, logger zerolog.Logger) *gobreaker.CircuitBreaker[any] {
	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:    "store",
		Timeout: cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				metrics.BreakerState.Set(1)
			} else {
				metrics.BreakerState.Set(0)
			}
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("storage circuit breaker state change")
		},
		IsSuccessful: func(err error) bool {
			// Permanent application errors (duplicates, cancellations)
			// must not trip the breaker.
			return err == nil || !isTransient(err)
		},
	})
}

// withRetry runs op through the circuit breaker, retrying transient
// failures with exponential backoff. Permanent errors return
// immediately.
func (db *DB) withRetry(ctx context.Context, op func() error) error {
	var lastErr error
	delay := db.cfg.Retry.BaseDelay

	for attempt := 1; attempt <= db.cfg.Retry.MaxAttempts; attempt++ {
		_, err := db.breaker.Execute(func() (any, error) {
			return nil, op()
		})
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return err
		}
		lastErr = err
		metrics.StorageRetries.Inc()
		db.logger.Warn().
			Int("attempt", attempt).
			Err(err).
			Msg("transient storage failure")

		if attempt == db.cfg.Retry.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return fmt.Errorf("storage operation failed after %d attempts: %w", db.cfg.Retry.MaxAttempts, lastErr)
}
