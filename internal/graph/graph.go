// Package graph is the execution graph of the orchestration core: a set of
// named processing nodes, a static intent-to-node routing table, and an
// executor that drives one conversation turn through the graph while
// checkpointing state after every node.
package graph

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/elvinasadov/agroflow/pkg/domain"
)

// Node names. The table in DefaultRoutes and the per-node successors in
// Executor.next refer to these.
const (
	NodeSupervisor  = "supervisor"
	NodeAdvisory    = "advisory"
	NodeNLToSQL     = "nl_to_sql"
	NodeSQLExecutor = "sql_executor"
	NodeVision      = "vision_to_action"
	NodeValidator   = "validator"
)

// Overrides are per-turn configuration overrides forwarded by the caller.
// They tune model selection, never routing.
type Overrides struct {
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int64   `mapstructure:"max_tokens"`
}

// DecodeOverrides converts the caller-supplied map into typed overrides.
// Unknown keys are rejected so typos fail loudly instead of silently
// changing nothing.
func DecodeOverrides(raw map[string]any) (Overrides, error) {
	var ov Overrides
	if len(raw) == 0 {
		return ov, nil
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &ov,
		ErrorUnused: true,
	})
	if err != nil {
		return ov, err
	}
	if err := dec.Decode(raw); err != nil {
		return ov, fmt.Errorf("invalid config overrides: %w", err)
	}
	return ov, nil
}

// Node is a single unit of processing logic. Run receives a read-only view
// of the state and returns a partial delta; it must not mutate the state.
//
// A non-nil error from a processing node is caught at the node boundary and
// converted into an error delta by the executor. A non-nil error from the
// validator is fatal for the turn.
type Node interface {
	Name() string
	Run(ctx context.Context, st *domain.ExecutionState, ov Overrides) (domain.Delta, error)
}

// RouteTable maps each intent to the first processing node for that intent.
// Greeting/off-topic/unknown route straight to the validator.
type RouteTable map[domain.Intent]string

// DefaultRoutes is the canonical intent→node table.
func DefaultRoutes() RouteTable {
	return RouteTable{
		domain.IntentIrrigation:     NodeAdvisory,
		domain.IntentFertilization:  NodeAdvisory,
		domain.IntentPest:           NodeAdvisory,
		domain.IntentWeather:        NodeAdvisory,
		domain.IntentDataQuery:      NodeNLToSQL,
		domain.IntentVisionAnalysis: NodeVision,
		domain.IntentGreeting:       NodeValidator,
		domain.IntentOffTopic:       NodeValidator,
		domain.IntentUnknown:        NodeValidator,
	}
}

// validate checks the table covers the whole closed intent set and only
// names registered nodes. Called at executor construction so an unmapped
// intent is a startup error, not a silent no-op at request time.
func (rt RouteTable) validate(nodes map[string]Node) error {
	for _, intent := range domain.Intents() {
		target, ok := rt[intent]
		if !ok {
			return fmt.Errorf("intent %s has no route", intent)
		}
		if _, ok := nodes[target]; !ok {
			return fmt.Errorf("intent %s routes to unregistered node %q", intent, target)
		}
	}
	return nil
}
