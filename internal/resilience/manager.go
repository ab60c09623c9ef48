// Package resilience wraps external tool providers in health probing with
// exponential-backoff retry and a process-wide health registry. Callers
// branch on the boolean readiness signal and degrade gracefully; the manager
// never raises on an unavailable provider.
package resilience

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/elvinasadov/agroflow/internal/logging"
	"github.com/elvinasadov/agroflow/internal/metrics"
	"github.com/elvinasadov/agroflow/pkg/domain"
	"github.com/elvinasadov/agroflow/pkg/ports"
)

// RetryConfig bounds the probe retry cycle.
type RetryConfig struct {
	MaxRetries    int           `yaml:"max_retries" mapstructure:"max_retries"`
	InitialDelay  time.Duration `yaml:"initial_delay" mapstructure:"initial_delay"`
	BackoffFactor float64       `yaml:"backoff_factor" mapstructure:"backoff_factor"`
	MaxDelay      time.Duration `yaml:"max_delay" mapstructure:"max_delay"`
}

// DefaultRetryConfig probes at ~0s, 1s, 2s, 4s before giving up.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		InitialDelay:  1 * time.Second,
		BackoffFactor: 2.0,
		MaxDelay:      10 * time.Second,
	}
}

// delay computes the backoff after the given zero-based attempt, capped at
// MaxDelay.
func (c RetryConfig) delay(attempt int) time.Duration {
	d := time.Duration(float64(c.InitialDelay) * math.Pow(c.BackoffFactor, float64(attempt)))
	if d > c.MaxDelay {
		return c.MaxDelay
	}
	return d
}

// Manager owns the per-provider ToolHealthRecord registry. Records are
// mutated only here, under the mutex; Status hands out copies.
type Manager struct {
	mu        sync.Mutex
	records   map[string]*domain.ToolHealthRecord
	lastCycle map[string]time.Time

	staleAfter time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
	now        func() time.Time
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// Option configures the Manager.
type Option func(*Manager)

// WithStaleAfter sets how long a cached "unavailable" verdict is trusted
// before a full retry cycle is re-run (default 60s).
func WithStaleAfter(ttl time.Duration) Option {
	return func(m *Manager) {
		m.staleAfter = ttl
	}
}

// WithLogger configures structured logging.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithMetrics wires Prometheus collectors.
func WithMetrics(mx *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mx
	}
}

// WithSleeper overrides the backoff sleeper. Tests inject a recorder here so
// the retry-bound property is checked without wall-clock waits.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(m *Manager) {
		m.sleep = sleep
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// New creates a resilience manager.
func New(opts ...Option) *Manager {
	m := &Manager{
		records:    make(map[string]*domain.ToolHealthRecord),
		lastCycle:  make(map[string]time.Time),
		staleAfter: 60 * time.Second,
		sleep:      sleepCtx,
		now:        time.Now,
		logger:     logging.NewNop(),
		metrics:    metrics.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// EnsureReady reports whether the provider is usable, probing with
// exponential backoff when necessary. It never returns an error: callers
// must branch on the boolean and fall back to degraded behavior.
//
// Re-entry is cheap: once a provider is marked unavailable, subsequent calls
// perform a single fast re-check and return the cached verdict. Only when
// the cached verdict is stale beyond the configured TTL is the full retry
// cycle re-run.
func (m *Manager) EnsureReady(ctx context.Context, provider ports.ToolProvider, cfg RetryConfig) bool {
	key := provider.URL()

	m.mu.Lock()
	rec, known := m.records[key]
	var cachedUnavailable, stale bool
	if known {
		cachedUnavailable = !rec.Available
		stale = m.now().Sub(m.lastCycle[key]) > m.staleAfter
	}
	m.mu.Unlock()

	if known && cachedUnavailable && !stale {
		// Fast re-check: one probe, no backoff, so per-request callers are
		// never blocked for the full retry cycle again.
		if err := provider.Health(ctx); err != nil {
			m.markFailure(key, err)
			return false
		}
		m.markSuccess(key)
		return true
	}

	return m.probeCycle(ctx, provider, cfg)
}

// probeCycle runs one initial probe plus up to cfg.MaxRetries retries with
// exponential backoff.
func (m *Manager) probeCycle(ctx context.Context, provider ports.ToolProvider, cfg RetryConfig) bool {
	key := provider.URL()

	m.mu.Lock()
	m.lastCycle[key] = m.now()
	m.mu.Unlock()

	for attempt := 0; ; attempt++ {
		err := provider.Health(ctx)
		if err == nil {
			m.markSuccess(key)
			return true
		}
		m.markFailure(key, err)

		if attempt >= cfg.MaxRetries {
			m.logger.Warn("tool provider unavailable after retries",
				"provider", key,
				"attempts", attempt+1,
				"err", err,
			)
			return false
		}

		d := cfg.delay(attempt)
		m.logger.Debug("tool probe failed, backing off",
			"provider", key,
			"attempt", attempt+1,
			"delay", d,
			"err", err,
		)
		m.metrics.ProbeRetries.Inc()
		if serr := m.sleep(ctx, d); serr != nil {
			// Context canceled mid-backoff; report unavailable without
			// consuming the remaining retries.
			return false
		}
	}
}

// Status returns a copy of the provider's health record. The second return
// is false when the provider has never been probed.
func (m *Manager) Status(providerURL string) (domain.ToolHealthRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[providerURL]
	if !ok {
		return domain.ToolHealthRecord{}, false
	}
	return *rec, true
}

// Available is a convenience wrapper over Status.
func (m *Manager) Available(providerURL string) bool {
	rec, ok := m.Status(providerURL)
	return ok && rec.Available
}

func (m *Manager) markSuccess(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[key] = &domain.ToolHealthRecord{
		Available:   true,
		LastChecked: m.now(),
	}
	m.metrics.ProvidersUnhealthy.Set(float64(m.unhealthyLocked()))
}

func (m *Manager) markFailure(key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[key]
	if !ok {
		rec = &domain.ToolHealthRecord{}
		m.records[key] = rec
	}
	rec.Available = false
	rec.LastChecked = m.now()
	rec.LastError = err.Error()
	rec.ConsecutiveFailures++
	m.metrics.ProvidersUnhealthy.Set(float64(m.unhealthyLocked()))
}

func (m *Manager) unhealthyLocked() int {
	n := 0
	for _, rec := range m.records {
		if !rec.Available {
			n++
		}
	}
	return n
}
