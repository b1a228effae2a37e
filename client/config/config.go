// Copyright 2024 The cqlmeta Authors. Licensed under Apache-2.0.

package config

import (
	"os"

	"github.com/caarlos0/env/v6"
	toml "github.com/pelletier/go-toml/v2"

	"github.com/zimnx/cqlmeta/pkg/log"
)

const (
	defaultPageSize         = 1000
	defaultFetchConcurrency = 8

	defaultRefreshLimit = 4
	defaultRefreshBurst = 8
)

// Config carries the knobs of the schema metadata engine. Values come from
// defaults, then an optional TOML file, then environment overrides, in that
// order.
type Config struct {
	Log log.Config `toml:"log" json:"log"`

	// SchemaQueriesPaged enables the paged full-schema fetch strategy on
	// catalog generations that support it.
	SchemaQueriesPaged bool `toml:"schema-queries-paged" json:"schema-queries-paged" env:"CQLMETA_SCHEMA_QUERIES_PAGED"`
	// PageSize is the fixed page size of paged catalog queries.
	PageSize int `toml:"page-size" json:"page-size" env:"CQLMETA_PAGE_SIZE"`
	// FetchConcurrency bounds the catalog queries dispatched in parallel
	// during the fetch phase of one refresh pass.
	FetchConcurrency int `toml:"fetch-concurrency" json:"fetch-concurrency" env:"CQLMETA_FETCH_CONCURRENCY"`

	RefreshLimiter LimiterConfig `toml:"refresh-limiter" json:"refresh-limiter"`
}

// LimiterConfig controls the refresh flow limiter that smooths schema-event
// storms.
type LimiterConfig struct {
	// Limit is the sustained number of refresh passes per second.
	Limit int `toml:"limit" json:"limit" env:"CQLMETA_REFRESH_LIMIT"`
	// Burst is the maximum number of buffered passes.
	Burst int `toml:"burst" json:"burst" env:"CQLMETA_REFRESH_BURST"`
	// Enable is used to control the switch of the limiter.
	Enable bool `toml:"enable" json:"enable" env:"CQLMETA_REFRESH_LIMITER_ENABLE"`
}

func Default() *Config {
	return &Config{
		Log: log.Config{
			Level: log.DefaultLogLevel,
			File:  log.DefaultLogFile,
		},
		SchemaQueriesPaged: true,
		PageSize:           defaultPageSize,
		FetchConcurrency:   defaultFetchConcurrency,
		RefreshLimiter: LimiterConfig{
			Limit:  defaultRefreshLimit,
			Burst:  defaultRefreshBurst,
			Enable: true,
		},
	}
}

// Load builds the config from defaults, the optional TOML file at path and
// the process environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if len(path) > 0 {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, ErrLoadConfig.WithCause(err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, ErrLoadConfig.WithCausef("parse toml, path:%s, err:%v", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, ErrLoadConfig.WithCausef("parse env, err:%v", err)
	}

	if err := cfg.ValidateAndAdjust(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ValidateAndAdjust validates the config fields and adjusts some fields which should be adjusted.
// Return error if any field is invalid.
func (c *Config) ValidateAndAdjust() error {
	if c.PageSize <= 0 {
		return ErrInvalidConfig.WithCausef("page-size must be positive, got:%d", c.PageSize)
	}
	if c.FetchConcurrency <= 0 {
		c.FetchConcurrency = defaultFetchConcurrency
	}
	if c.RefreshLimiter.Enable {
		if c.RefreshLimiter.Limit <= 0 {
			return ErrInvalidConfig.WithCausef("refresh-limiter limit must be positive, got:%d", c.RefreshLimiter.Limit)
		}
		if c.RefreshLimiter.Burst <= 0 {
			return ErrInvalidConfig.WithCausef("refresh-limiter burst must be positive, got:%d", c.RefreshLimiter.Burst)
		}
	}
	return nil
}
