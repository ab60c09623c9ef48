// Package agroflow is the high-level entry point for the farm-advisory
// orchestration core. It assembles the execution graph, checkpoint storage,
// model adapters and tool resilience from configuration and exposes a small
// API surface: submit a turn, inspect a thread, list threads.
package agroflow

import (
	"context"
	"database/sql"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"os"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/elvinasadov/agroflow/internal/adapters/http"
	"github.com/elvinasadov/agroflow/internal/config"
	"github.com/elvinasadov/agroflow/internal/graph"
	"github.com/elvinasadov/agroflow/internal/intent"
	"github.com/elvinasadov/agroflow/internal/logging"
	"github.com/elvinasadov/agroflow/internal/metrics"
	"github.com/elvinasadov/agroflow/internal/resilience"
	"github.com/elvinasadov/agroflow/internal/store"
	"github.com/elvinasadov/agroflow/pkg/adapters/httptool"
	"github.com/elvinasadov/agroflow/pkg/domain"
	"github.com/elvinasadov/agroflow/pkg/model"
	"github.com/elvinasadov/agroflow/pkg/model/anthropic"
	"github.com/elvinasadov/agroflow/pkg/model/openai"
	"github.com/elvinasadov/agroflow/pkg/persistence/middleware"
	"github.com/elvinasadov/agroflow/pkg/ports"
	"github.com/elvinasadov/agroflow/pkg/thread"

	_ "modernc.org/sqlite"
)

// Version is the release version stamped into the binary.
const Version = "0.1.0"

// Orchestrator owns the assembled core. Safe for concurrent use.
type Orchestrator struct {
	executor  *graph.Executor
	checkpts  ports.CheckpointStore
	selection *store.Selection
	readiness *resilience.Manager
	provider  ports.ToolProvider
	registry  *prometheus.Registry
	logger    *slog.Logger
	closers   []io.Closer
}

// Option configures the Orchestrator assembly.
type Option func(*assembly)

type assembly struct {
	logger *slog.Logger
	model  model.Model
	store  ports.CheckpointStore
}

// WithLogger sets the structured logger (default: text logger at the
// configured level).
func WithLogger(logger *slog.Logger) Option {
	return func(a *assembly) {
		a.logger = logger
	}
}

// WithModel injects a model, bypassing provider selection from config. Tests
// use it to wire model.Mock.
func WithModel(m model.Model) Option {
	return func(a *assembly) {
		a.model = m
	}
}

// WithStore injects a checkpoint store, bypassing backend selection.
func WithStore(s ports.CheckpointStore) Option {
	return func(a *assembly) {
		a.store = s
	}
}

// NewFromConfig assembles the orchestrator: checkpoint backend by priority,
// model adapter by provider, intent classifier, tool resilience, processing
// nodes and the executor.
func NewFromConfig(ctx context.Context, cfg config.Config, opts ...Option) (*Orchestrator, error) {
	var asm assembly
	for _, opt := range opts {
		opt(&asm)
	}

	logger := asm.logger
	if logger == nil {
		logger = logging.New(logging.ParseLevel(cfg.LogLevel))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	mx := metrics.New(registry)

	o := &Orchestrator{
		registry: registry,
		logger:   logger,
	}

	if asm.store != nil {
		o.checkpts = asm.store
	} else {
		sel, err := store.Select(ctx, cfg.Store, logger)
		if err != nil {
			return nil, err
		}
		o.selection = sel
		o.checkpts = sel.Store
	}

	mws, err := persistenceMiddleware(cfg.Store)
	if err != nil {
		o.Close()
		return nil, err
	}
	o.checkpts = middleware.Chain(o.checkpts, mws...)

	m := asm.model
	if m == nil {
		var err error
		m, err = buildModel(cfg.Model)
		if err != nil {
			o.Close()
			return nil, err
		}
	}

	if cfg.Tools.BaseURL != "" {
		o.provider = httptool.New(cfg.Tools.BaseURL)
	}
	o.readiness = resilience.New(
		resilience.WithStaleAfter(cfg.Tools.StaleAfter),
		resilience.WithLogger(logger),
		resilience.WithMetrics(mx),
	)

	querier, err := openFarmDB(cfg.FarmDB.Path)
	if err != nil {
		o.Close()
		return nil, err
	}
	o.closers = append(o.closers, querier)

	classifier := intent.New(
		intent.WithFallbackModel(m),
		intent.WithLogger(logger),
	)

	nodes := []graph.Node{
		graph.NewSupervisor(classifier, logger),
		graph.NewAdvisory(m, o.provider, o.readiness, cfg.Tools.Retry, logger, mx),
		graph.NewNLToSQL(m, cfg.FarmDB.Schema, logger),
		graph.NewSQLExecutor(querier, 0, logger),
		graph.NewVision(m, logger),
		graph.NewValidator(logger),
	}

	executor, err := graph.NewExecutor(o.checkpts, thread.NewManager(thread.WithLogger(logger)), nodes,
		graph.WithLogger(logger),
		graph.WithMetrics(mx),
	)
	if err != nil {
		o.Close()
		return nil, err
	}
	o.executor = executor

	return o, nil
}

// SubmitTurn processes one conversation turn for the thread.
func (o *Orchestrator) SubmitTurn(ctx context.Context, threadID, input string, artifacts []string, overrides map[string]any) (*graph.TurnResult, error) {
	return o.executor.SubmitTurn(ctx, threadID, input, artifacts, overrides)
}

// LoadThread returns the thread's checkpointed state without running any
// node. Returns domain.ErrThreadNotFound for unknown threads.
func (o *Orchestrator) LoadThread(ctx context.Context, threadID string) (*domain.ExecutionState, error) {
	return o.checkpts.Load(ctx, threadID)
}

// Threads lists known thread IDs.
func (o *Orchestrator) Threads(ctx context.Context) ([]string, error) {
	return o.checkpts.List(ctx)
}

// Health reports the selected backend and the tool provider registry.
func (o *Orchestrator) Health(ctx context.Context) http.HealthReport {
	report := http.HealthReport{
		Status:  "ok",
		Backend: store.BackendMemory,
	}
	if o.selection != nil {
		report.Backend = o.selection.Backend
		if o.selection.Degraded {
			report.Status = "degraded"
		}
	}

	if o.provider != nil {
		report.Tools = map[string]http.ToolHealth{}
		if rec, ok := o.readiness.Status(o.provider.URL()); ok {
			report.Tools[o.provider.URL()] = http.ToolHealth{
				Available:           rec.Available,
				LastError:           rec.LastError,
				ConsecutiveFailures: rec.ConsecutiveFailures,
			}
		} else {
			// Never probed yet: assume reachable until a turn says otherwise.
			report.Tools[o.provider.URL()] = http.ToolHealth{Available: true}
		}
	}

	return report
}

// Registry exposes the metrics registry for the /metrics endpoint.
func (o *Orchestrator) Registry() *prometheus.Registry {
	return o.registry
}

// Logger returns the assembled logger.
func (o *Orchestrator) Logger() *slog.Logger {
	return o.logger
}

// Close releases the checkpoint backend and the farm database.
func (o *Orchestrator) Close() error {
	var first error
	for _, c := range o.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	if o.selection != nil {
		if err := o.selection.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func buildModel(cfg config.ModelConfig) (model.Model, error) {
	switch cfg.Provider {
	case "anthropic":
		return anthropic.NewModel(func(o *anthropic.Options) {
			o.Model = anthropicsdk.Model(cfg.Name)
			o.Temperature = cfg.Temperature
			o.MaxTokens = cfg.MaxTokens
			o.APIKey = cfg.APIKey()
		}), nil

	case "openai":
		return openai.NewModel(func(o *openai.Options) {
			o.Model = cfg.Name
			o.Temperature = cfg.Temperature
			o.MaxCompletionTokens = cfg.MaxTokens
			o.APIKey = cfg.APIKey()
		}), nil

	case "mock":
		return model.NewMock(cfg.Name), nil

	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}

// persistenceMiddleware builds the checkpoint middleware stack from config:
// PII masking first, encryption at rest second, so ciphertext is the only
// thing backends ever see.
func persistenceMiddleware(cfg store.Config) ([]middleware.Middleware, error) {
	var mws []middleware.Middleware

	if len(cfg.PIIPatterns) > 0 {
		mws = append(mws, middleware.NewPIIMiddleware(cfg.PIIPatterns))
	}

	if cfg.EncryptionKeyEnv != "" {
		raw := os.Getenv(cfg.EncryptionKeyEnv)
		if raw == "" {
			return nil, fmt.Errorf("encryption enabled but %s is not set", cfg.EncryptionKeyEnv)
		}
		key, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid encryption key in %s: %w", cfg.EncryptionKeyEnv, err)
		}
		if len(key) != 32 {
			return nil, fmt.Errorf("encryption key in %s must be 32 bytes, got %d", cfg.EncryptionKeyEnv, len(key))
		}
		mws = append(mws, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key}))
	}

	return mws, nil
}

// openFarmDB opens the farm database in read-only mode. The SQL guard in the
// graph is the first line of defense; the connection mode is the second.
func openFarmDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro&_pragma=busy_timeout(5000)", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open farm database: %w", err)
	}
	return db, nil
}
