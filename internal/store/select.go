// Package store selects the checkpoint backend at startup. Backends are
// tried in the configured priority order; an unreachable backend demotes to
// the next one with a warning, and only when every backend fails is startup
// aborted.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/elvinasadov/agroflow/pkg/adapters/memory"
	"github.com/elvinasadov/agroflow/pkg/adapters/redis"
	"github.com/elvinasadov/agroflow/pkg/adapters/sqlite"
	"github.com/elvinasadov/agroflow/pkg/ports"
)

// Backend names accepted in the priority list.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config carries backend connection settings.
type Config struct {
	// Priority is the order in which backends are tried.
	Priority []string `yaml:"priority" mapstructure:"priority"`

	// SQLitePath is the checkpoint database file.
	SQLitePath string `yaml:"sqlite_path" mapstructure:"sqlite_path"`

	// RedisAddr is the host:port of the redis server.
	RedisAddr     string `yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisPassword string `yaml:"redis_password" mapstructure:"redis_password"`
	RedisDB       int    `yaml:"redis_db" mapstructure:"redis_db"`

	// EncryptionKeyEnv names an environment variable holding a base64-encoded
	// 32-byte key. When set, checkpoints are encrypted at rest.
	EncryptionKeyEnv string `yaml:"encryption_key_env" mapstructure:"encryption_key_env"`

	// PIIPatterns are regexes matched against tool-result keys; matching
	// values are masked before persistence.
	PIIPatterns []string `yaml:"pii_patterns" mapstructure:"pii_patterns"`
}

// DefaultConfig prefers durable local storage, then redis, then memory.
func DefaultConfig() Config {
	return Config{
		Priority:   []string{BackendSQLite, BackendRedis, BackendMemory},
		SQLitePath: "agroflow.db",
		RedisAddr:  "localhost:6379",
	}
}

// Selection is the outcome of backend selection.
type Selection struct {
	Store   ports.CheckpointStore
	Backend string

	// Degraded is true when a higher-priority backend was configured but
	// unreachable.
	Degraded bool
}

// Select opens the first reachable backend from cfg.Priority. Every failed
// candidate is logged as a warning; when the whole list fails the returned
// error is fatal for startup.
func Select(ctx context.Context, cfg Config, logger *slog.Logger) (*Selection, error) {
	if len(cfg.Priority) == 0 {
		cfg.Priority = DefaultConfig().Priority
	}

	degraded := false
	var failures []string

	for _, backend := range cfg.Priority {
		st, err := open(ctx, backend, cfg)
		if err != nil {
			degraded = true
			failures = append(failures, fmt.Sprintf("%s: %v", backend, err))
			logger.Warn("checkpoint backend unavailable, trying next",
				"backend", backend,
				"err", err,
			)
			continue
		}

		if degraded {
			logger.Warn("running on a lower-priority checkpoint backend",
				"backend", backend,
			)
		} else {
			logger.Info("checkpoint backend selected", "backend", backend)
		}

		return &Selection{Store: st, Backend: backend, Degraded: degraded}, nil
	}

	return nil, fmt.Errorf("no checkpoint backend available: %s", strings.Join(failures, "; "))
}

func open(ctx context.Context, backend string, cfg Config) (ports.CheckpointStore, error) {
	switch backend {
	case BackendSQLite:
		return sqlite.New(cfg.SQLitePath)

	case BackendRedis:
		st := redis.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := st.Ping(ctx); err != nil {
			_ = st.Close()
			return nil, err
		}
		return st, nil

	case BackendMemory:
		return memory.NewStore(), nil

	default:
		return nil, fmt.Errorf("unknown backend %q", backend)
	}
}

// Close releases backend resources when the selected store supports it.
func (s *Selection) Close() error {
	if c, ok := s.Store.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
