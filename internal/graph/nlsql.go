package graph

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/elvinasadov/agroflow/pkg/domain"
	"github.com/elvinasadov/agroflow/pkg/model"
)

// ToolResultSQLKey is the tool_results key carrying the generated query from
// the generation node to the execution node.
const ToolResultSQLKey = "generated_sql"

const nlToSQLSystemPrompt = `You translate a farmer's question into exactly one read-only SQL query.

Database schema:
%s

Rules:
- Emit a single SELECT statement, nothing else. No commentary.
- Never emit INSERT, UPDATE, DELETE, DDL or PRAGMA statements.
- If the question cannot be answered with a read-only query, respond with the single word REFUSE.`

// NLToSQL turns natural-language questions into a single read-only query
// string. It never emits a mutating statement; the execution node enforces
// the same contract again downstream.
type NLToSQL struct {
	model  model.Model
	schema string
	logger *slog.Logger
}

// NewNLToSQL creates the query generation node. schema is a plain-text
// description of the queryable tables.
func NewNLToSQL(m model.Model, schema string, logger *slog.Logger) *NLToSQL {
	return &NLToSQL{model: m, schema: schema, logger: logger}
}

// Name implements Node.
func (n *NLToSQL) Name() string { return NodeNLToSQL }

// Run implements Node.
func (n *NLToSQL) Run(ctx context.Context, st *domain.ExecutionState, ov Overrides) (domain.Delta, error) {
	out, err := n.model.Generate(ctx, model.Request{
		System: fmt.Sprintf(nlToSQLSystemPrompt, n.schema),
		Messages: []domain.Message{
			{Role: domain.RoleUser, Content: st.CurrentInput},
		},
		Temperature: ov.Temperature,
		MaxTokens:   ov.MaxTokens,
	})
	if err != nil {
		return domain.Delta{}, fmt.Errorf("query generation failed: %w", err)
	}

	query := stripSQLFences(out)
	if strings.EqualFold(strings.TrimSpace(query), "REFUSE") {
		return domain.Delta{}, fmt.Errorf("the question cannot be answered with a read-only query")
	}

	if err := guardReadOnly(query); err != nil {
		n.logger.Warn("generated query rejected",
			"thread_id", st.ThreadID,
			"reason", err,
		)
		return domain.Delta{}, fmt.Errorf("generated query rejected: %w", err)
	}

	return domain.Delta{
		ToolResults: map[string]any{ToolResultSQLKey: query},
	}, nil
}
