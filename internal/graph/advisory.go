package graph

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/elvinasadov/agroflow/internal/metrics"
	"github.com/elvinasadov/agroflow/internal/resilience"
	"github.com/elvinasadov/agroflow/pkg/domain"
	"github.com/elvinasadov/agroflow/pkg/model"
	"github.com/elvinasadov/agroflow/pkg/ports"
)

const advisorySystemPrompt = `You are an agronomy advisor for farmers in Azerbaijan.
Answer practically and concisely, in the language the farmer writes in.
Topic of this question: %s.`

const advisoryDegradedNote = `

Note: the agronomy rules service is currently unavailable, so answer from
general knowledge and say that specific regional rules could not be consulted.`

// Advisory answers irrigation, fertilization, pest and weather questions.
// It consults the rules/tools provider through the resilience manager and
// degrades to a tools-free prompt when the provider is down.
type Advisory struct {
	model     model.Model
	provider  ports.ToolProvider
	readiness *resilience.Manager
	retry     resilience.RetryConfig
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewAdvisory creates the domain-advisory node. provider may be nil when no
// tool service is configured; the node then always runs degraded.
func NewAdvisory(m model.Model, provider ports.ToolProvider, readiness *resilience.Manager, retry resilience.RetryConfig, logger *slog.Logger, mx *metrics.Metrics) *Advisory {
	if mx == nil {
		mx = metrics.NewNop()
	}
	return &Advisory{
		model:     m,
		provider:  provider,
		readiness: readiness,
		retry:     retry,
		logger:    logger,
		metrics:   mx,
	}
}

// Name implements Node.
func (a *Advisory) Name() string { return NodeAdvisory }

// Run implements Node.
func (a *Advisory) Run(ctx context.Context, st *domain.ExecutionState, ov Overrides) (domain.Delta, error) {
	system := fmt.Sprintf(advisorySystemPrompt, st.Intent)
	results := map[string]any{}

	if a.toolsReady(ctx) {
		result, err := a.provider.Invoke(ctx, "agro_rules", map[string]any{
			"intent": string(st.Intent),
			"query":  st.CurrentInput,
		})
		if err != nil {
			// Recoverable-degraded: log and continue without rules.
			a.logger.Warn("rules lookup failed, continuing degraded",
				"thread_id", st.ThreadID,
				"err", err,
			)
			system += advisoryDegradedNote
			a.metrics.DegradedTurns.Inc()
		} else {
			callID := "agro_rules-" + uuid.NewString()
			results[callID] = result
			system += fmt.Sprintf("\n\nRegional agronomy rules to ground your answer:\n%v", result)
		}
	} else {
		system += advisoryDegradedNote
		a.metrics.DegradedTurns.Inc()
	}

	msgs := append(append([]domain.Message{}, st.Messages...),
		domain.Message{Role: domain.RoleUser, Content: st.CurrentInput})

	text, err := a.model.Generate(ctx, model.Request{
		System:      system,
		Messages:    msgs,
		Temperature: ov.Temperature,
		MaxTokens:   ov.MaxTokens,
	})
	if err != nil {
		return domain.Delta{}, fmt.Errorf("advisory generation failed: %w", err)
	}

	return domain.Delta{
		Response:    &text,
		ToolResults: results,
	}, nil
}

func (a *Advisory) toolsReady(ctx context.Context) bool {
	if a.provider == nil || a.readiness == nil {
		return false
	}
	return a.readiness.EnsureReady(ctx, a.provider, a.retry)
}
