package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/vk/workgraph/internal/tracing"
)

// Config holds everything an App instance needs.
type Config struct {
	CatalogPath string // directory of .hcl component manifests
	// DatabasePath selects the SQLite database. Empty keeps everything in
	// process memory without SQLite; ":memory:" is a private SQLite database.
	DatabasePath    string
	CatalogCacheTTL time.Duration

	LogFormat string
	LogLevel  string

	Tracing tracing.Config
}

func NewConfig(cfg Config) (*Config, error) {
	if cfg.CatalogPath == "" {
		return nil, errors.New("CatalogPath is a required configuration field and cannot be empty")
	}
	switch cfg.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("unknown log level %q: must be one of debug, info, warn, error", cfg.LogLevel)
	}
	switch cfg.LogFormat {
	case "", "text", "json":
	default:
		return nil, fmt.Errorf("unknown log format %q: must be text or json", cfg.LogFormat)
	}
	if cfg.CatalogCacheTTL < 0 {
		return nil, errors.New("CatalogCacheTTL must not be negative")
	}
	return &cfg, nil
}
