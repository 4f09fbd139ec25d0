// Shelfwise - Book Recommendation Scoring Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

// Package config loads the server configuration in three layers with
// clear precedence: environment variables over an optional YAML file
// over built-in defaults. Environment variables use the SHELFWISE_
// prefix with underscores for nesting: SHELFWISE_SERVER_PORT=8080 maps
// to server.port.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/shelfwise/shelfwise/internal/recommend/similarity"
	"github.com/shelfwise/shelfwise/internal/store"
)

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "SHELFWISE_CONFIG"

// DefaultConfigPaths are searched in order when ConfigPathEnvVar is
// unset.
var DefaultConfigPaths = []string{
	"shelfwise.yaml",
	"config/shelfwise.yaml",
	"/etc/shelfwise/shelfwise.yaml",
}

// Config is the full server configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Database   store.Config     `koanf:"database"`
	Logging    LoggingConfig    `koanf:"logging"`
	Engine     EngineConfig     `koanf:"engine"`
	Dedup      DedupConfig      `koanf:"dedup"`
	Similarity SimilarityConfig `koanf:"similarity"`
}

// ServerConfig holds HTTP settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// RateLimit is requests per minute per client IP; 0 disables.
	RateLimit int `koanf:"rate_limit"`

	// CORSOrigins lists allowed origins; empty allows none.
	CORSOrigins []string `koanf:"cors_origins"`
}

// LoggingConfig holds log settings.
type LoggingConfig struct {
	// Level: trace, debug, info, warn, error.
	Level string `koanf:"level"`

	// Format: json or console.
	Format string `koanf:"format"`

	// Caller includes file:line in log events.
	Caller bool `koanf:"caller"`
}

// EngineConfig holds scoring and profile tuning.
type EngineConfig struct {
	// TagDelimiter separates tokens in the catalog's tag fields.
	TagDelimiter string `koanf:"tag_delimiter"`

	// DecayHalfLife controls preference recency weighting.
	DecayHalfLife time.Duration `koanf:"decay_half_life"`

	// NoveltyCap bounds the novelty bonus.
	NoveltyCap float64 `koanf:"novelty_cap"`

	// NegativeWeight scales the dislike penalty.
	NegativeWeight float64 `koanf:"negative_weight"`

	// MinMultiplier floors the negative multiplier above zero.
	MinMultiplier float64 `koanf:"min_multiplier"`

	// EraBonus is added to the content score on a preferred-era match.
	EraBonus float64 `koanf:"era_bonus"`

	// EraMajorityFraction is the share of era mass a decade must hold
	// before it becomes the preferred era.
	EraMajorityFraction float64 `koanf:"era_majority_fraction"`

	// MaxReasons caps a score's reasons list.
	MaxReasons int `koanf:"max_reasons"`

	// DedupTTL is how long interaction IDs stay in the idempotency cache.
	DedupTTL time.Duration `koanf:"dedup_ttl"`

	// EventBuffer is the rescore bus channel buffer.
	EventBuffer int64 `koanf:"event_buffer"`
}

// DedupConfig holds the idempotency cache settings.
type DedupConfig struct {
	// Path is the Badger directory; empty uses the in-memory cache.
	Path string `koanf:"path"`
}

// SimilarityConfig holds index rebuild settings. FacetWeights is shared
// with the scorer's content component.
type SimilarityConfig struct {
	FacetWeights     similarity.FacetWeights `koanf:"facet_weights"`
	MinSimilarity    float64                 `koanf:"min_similarity"`
	TopK             int                     `koanf:"top_k"`
	BatchSize        int                     `koanf:"batch_size"`
	BatchesPerSecond float64                 `koanf:"batches_per_second"`
	RefreshInterval  time.Duration           `koanf:"refresh_interval"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RateLimit:       300,
		},
		Database: store.Config{
			Path:      "data/shelfwise.db",
			MaxMemory: "1GB",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Engine: EngineConfig{
			TagDelimiter:        ";",
			DecayHalfLife:       30 * 24 * time.Hour,
			NoveltyCap:          0.15,
			NegativeWeight:      0.9,
			MinMultiplier:       0.05,
			EraBonus:            0.05,
			EraMajorityFraction: 0.4,
			MaxReasons:          5,
			DedupTTL:            24 * time.Hour,
			EventBuffer:         256,
		},
		Similarity: SimilarityConfig{
			FacetWeights:    similarity.DefaultFacetWeights(),
			MinSimilarity:   0.05,
			TopK:            50,
			BatchSize:       200,
			RefreshInterval: 6 * time.Hour,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file if one is
// found, then SHELFWISE_ environment variables.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider("SHELFWISE_", ".", envTransform)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration invalid: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransform maps SHELFWISE_SECTION_KEY to section.key. Section names
// never contain underscores, so only the first one splits.
func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, "SHELFWISE_"))
	return strings.Replace(key, "_", ".", 1)
}

// Validate checks cross-field constraints not expressible as types.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q unknown", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format %q must be json or console", c.Logging.Format)
	}
	if c.Engine.TagDelimiter == "" {
		return fmt.Errorf("engine.tag_delimiter is required")
	}
	if c.Engine.NoveltyCap < 0 || c.Engine.NoveltyCap > 1 {
		return fmt.Errorf("engine.novelty_cap %v out of [0, 1]", c.Engine.NoveltyCap)
	}
	if c.Engine.NegativeWeight < 0 || c.Engine.NegativeWeight > 1 {
		return fmt.Errorf("engine.negative_weight %v out of [0, 1]", c.Engine.NegativeWeight)
	}
	if c.Engine.MinMultiplier <= 0 || c.Engine.MinMultiplier > 1 {
		return fmt.Errorf("engine.min_multiplier %v out of (0, 1]", c.Engine.MinMultiplier)
	}
	if c.Engine.EraBonus < 0 || c.Engine.EraBonus > 1 {
		return fmt.Errorf("engine.era_bonus %v out of [0, 1]", c.Engine.EraBonus)
	}
	if c.Engine.EraMajorityFraction < 0 || c.Engine.EraMajorityFraction > 1 {
		return fmt.Errorf("engine.era_majority_fraction %v out of [0, 1]", c.Engine.EraMajorityFraction)
	}
	if c.Engine.MaxReasons < 1 {
		return fmt.Errorf("engine.max_reasons must be at least 1")
	}
	for name, w := range map[string]float64{
		"subject":  c.Similarity.FacetWeights.Subject,
		"place":    c.Similarity.FacetWeights.Place,
		"time":     c.Similarity.FacetWeights.Time,
		"people":   c.Similarity.FacetWeights.People,
		"language": c.Similarity.FacetWeights.Language,
		"author":   c.Similarity.FacetWeights.Author,
	} {
		if w < 0 {
			return fmt.Errorf("similarity.facet_weights.%s must not be negative", name)
		}
	}
	if c.Similarity.MinSimilarity < 0 || c.Similarity.MinSimilarity > 1 {
		return fmt.Errorf("similarity.min_similarity %v out of [0, 1]", c.Similarity.MinSimilarity)
	}
	if c.Similarity.TopK < 1 {
		return fmt.Errorf("similarity.top_k must be at least 1")
	}
	return nil
}

// ListenAddr returns the host:port the HTTP server binds.
func (c *ServerConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
