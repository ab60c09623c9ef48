package graph

import (
	"context"
	"log/slog"

	"github.com/elvinasadov/agroflow/pkg/domain"
)

// IntentClassifier is the supervisor's view of the classifier.
type IntentClassifier interface {
	Classify(ctx context.Context, input string, artifacts []string, recent []domain.Message) domain.Intent
}

// Supervisor is the graph entry point. It classifies the turn's intent; the
// router then dispatches on it. It produces no response of its own.
type Supervisor struct {
	classifier IntentClassifier
	logger     *slog.Logger
}

// NewSupervisor creates the supervisor node.
func NewSupervisor(classifier IntentClassifier, logger *slog.Logger) *Supervisor {
	return &Supervisor{classifier: classifier, logger: logger}
}

// Name implements Node.
func (s *Supervisor) Name() string { return NodeSupervisor }

// Run implements Node.
func (s *Supervisor) Run(ctx context.Context, st *domain.ExecutionState, _ Overrides) (domain.Delta, error) {
	intent := s.classifier.Classify(ctx, st.CurrentInput, st.UploadedArtifacts, st.Messages)

	s.logger.Debug("intent classified",
		"thread_id", st.ThreadID,
		"intent", intent,
	)

	return domain.Delta{Intent: intent}, nil
}
