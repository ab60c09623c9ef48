package graph

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/elvinasadov/agroflow/pkg/domain"
	"github.com/elvinasadov/agroflow/pkg/ports"
)

// maxResultRows caps how many rows are rendered into the response.
const maxResultRows = 50

// SQLExecutor runs the generated query against a read-only connection and
// formats the result for display. It re-validates the query before touching
// the database; the generator is never trusted.
type SQLExecutor struct {
	querier ports.RowQuerier
	timeout time.Duration
	logger  *slog.Logger
}

// NewSQLExecutor creates the query execution node. The querier must be
// backed by a read-only connection; timeout defaults to 30s when zero.
func NewSQLExecutor(querier ports.RowQuerier, timeout time.Duration, logger *slog.Logger) *SQLExecutor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SQLExecutor{querier: querier, timeout: timeout, logger: logger}
}

// Name implements Node.
func (e *SQLExecutor) Name() string { return NodeSQLExecutor }

// Run implements Node.
func (e *SQLExecutor) Run(ctx context.Context, st *domain.ExecutionState, _ Overrides) (domain.Delta, error) {
	raw, ok := st.ToolResults[ToolResultSQLKey]
	if !ok {
		return domain.Delta{}, fmt.Errorf("no generated query to execute")
	}
	query, ok := raw.(string)
	if !ok {
		return domain.Delta{}, fmt.Errorf("generated query has unexpected type %T", raw)
	}

	if err := guardReadOnly(query); err != nil {
		return domain.Delta{}, fmt.Errorf("refusing to execute query: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	rows, err := e.querier.QueryContext(ctx, query)
	if err != nil {
		return domain.Delta{}, fmt.Errorf("query failed: %s", sanitizeDBError(err))
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return domain.Delta{}, fmt.Errorf("query failed: %s", sanitizeDBError(err))
	}

	var table [][]string
	truncated := false
	for rows.Next() {
		if len(table) >= maxResultRows {
			truncated = true
			break
		}

		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return domain.Delta{}, fmt.Errorf("query failed: %s", sanitizeDBError(err))
		}

		row := make([]string, len(columns))
		for i, v := range values {
			row[i] = renderValue(v)
		}
		table = append(table, row)
	}
	if err := rows.Err(); err != nil {
		return domain.Delta{}, fmt.Errorf("query failed: %s", sanitizeDBError(err))
	}

	e.logger.Debug("query executed",
		"thread_id", st.ThreadID,
		"rows", len(table),
	)

	response := formatTable(columns, table, truncated)
	return domain.Delta{
		Response: &response,
		ToolResults: map[string]any{
			"query_row_count": len(table),
		},
	}, nil
}

func renderValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(t)
	case time.Time:
		return t.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// formatTable renders a markdown table; the front-end displays it as-is.
func formatTable(columns []string, rows [][]string, truncated bool) string {
	if len(rows) == 0 {
		return "No matching records were found."
	}

	var sb strings.Builder
	sb.WriteString("| " + strings.Join(columns, " | ") + " |\n")

	seps := make([]string, len(columns))
	for i := range seps {
		seps[i] = "---"
	}
	sb.WriteString("| " + strings.Join(seps, " | ") + " |\n")

	for _, row := range rows {
		sb.WriteString("| " + strings.Join(row, " | ") + " |\n")
	}

	if truncated {
		sb.WriteString(fmt.Sprintf("\nShowing the first %d rows.", maxResultRows))
	}

	return sb.String()
}
