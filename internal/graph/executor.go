package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/elvinasadov/agroflow/internal/logging"
	"github.com/elvinasadov/agroflow/internal/metrics"
	"github.com/elvinasadov/agroflow/pkg/domain"
	"github.com/elvinasadov/agroflow/pkg/ports"
	"github.com/elvinasadov/agroflow/pkg/thread"
)

// TurnResult is the outcome of one conversation turn.
type TurnResult struct {
	ThreadID     string        `json:"thread_id"`
	Response     string        `json:"response"`
	Intent       domain.Intent `json:"intent"`
	NodesVisited []string      `json:"nodes_visited"`

	// Persisted is false when the turn completed but its final checkpoint
	// could not be saved; the response is valid, resumability is not
	// guaranteed.
	Persisted bool `json:"persisted"`
}

// Executor drives node execution for one turn at a time: strictly sequential
// within a turn, concurrent across threads. It persists a checkpoint after
// every node (never mid-node) and converts node errors into routable state.
type Executor struct {
	nodes   map[string]Node
	routes  RouteTable
	store   ports.CheckpointStore
	threads *thread.Manager
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// ExecutorOption configures the Executor.
type ExecutorOption func(*Executor)

// WithRoutes overrides the default intent→node table.
func WithRoutes(routes RouteTable) ExecutorOption {
	return func(e *Executor) {
		e.routes = routes
	}
}

// WithLogger configures structured logging.
func WithLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithMetrics wires Prometheus collectors.
func WithMetrics(mx *metrics.Metrics) ExecutorOption {
	return func(e *Executor) {
		e.metrics = mx
	}
}

// NewExecutor builds the executor and validates the routing table against
// the registered nodes, so an unmapped intent is a startup error.
func NewExecutor(store ports.CheckpointStore, threads *thread.Manager, nodes []Node, opts ...ExecutorOption) (*Executor, error) {
	e := &Executor{
		nodes:   make(map[string]Node, len(nodes)),
		routes:  DefaultRoutes(),
		store:   store,
		threads: threads,
		logger:  logging.NewNop(),
		metrics: metrics.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	for _, n := range nodes {
		if _, dup := e.nodes[n.Name()]; dup {
			return nil, fmt.Errorf("duplicate node %q", n.Name())
		}
		e.nodes[n.Name()] = n
	}

	for _, required := range []string{NodeSupervisor, NodeValidator} {
		if _, ok := e.nodes[required]; !ok {
			return nil, fmt.Errorf("required node %q not registered", required)
		}
	}

	if err := e.routes.validate(e.nodes); err != nil {
		return nil, err
	}

	return e, nil
}

// SubmitTurn runs one turn for the thread. Turns for the same thread are
// serialized in arrival order; the lock is held until the final checkpoint
// is recorded, so a second turn never races the first one's history.
//
// The returned error is non-nil only for fatal failures (validator failure,
// unusable store, invariant violations); turn-local node failures surface as
// a normal result carrying an apology.
func (e *Executor) SubmitTurn(ctx context.Context, threadID, input string, artifacts []string, overrides map[string]any) (*TurnResult, error) {
	ov, err := DecodeOverrides(overrides)
	if err != nil {
		return nil, err
	}

	var result *TurnResult
	lockErr := e.threads.WithLock(ctx, threadID, func(ctx context.Context) error {
		var runErr error
		result, runErr = e.runTurn(ctx, threadID, input, artifacts, ov)
		return runErr
	})
	if lockErr != nil {
		return nil, lockErr
	}
	return result, nil
}

func (e *Executor) runTurn(ctx context.Context, threadID, input string, artifacts []string, ov Overrides) (*TurnResult, error) {
	prior, err := e.store.Load(ctx, threadID)
	if err != nil && !errors.Is(err, domain.ErrThreadNotFound) {
		return nil, &domain.FatalError{Stage: "checkpoint load", Err: err}
	}

	var history []domain.Message
	if prior != nil {
		history = prior.Messages
	}
	state := domain.NewState(threadID, input, artifacts, history)

	persisted := true
	current := NodeSupervisor

	for current != "" {
		node, ok := e.nodes[current]
		if !ok {
			return nil, &domain.InvariantError{Node: current, Reason: "routed to unregistered node"}
		}
		if state.Visited(current) {
			return nil, &domain.InvariantError{Node: current, Reason: "non-reentrant node entered twice in one turn"}
		}

		delta, nodeErr := e.runNode(ctx, node, state, ov)
		if nodeErr != nil {
			if current == NodeValidator {
				// The convergence point itself failed: no best-effort
				// message, the caller must retry at the transport layer.
				return nil, &domain.FatalError{Stage: "validator", Err: nodeErr}
			}
			// Caught at the node boundary and converted into routable state.
			delta = domain.ErrorDelta(current, nodeErr.Error())
			e.logger.Warn("node failed, routing to validator",
				"thread_id", threadID,
				"node", current,
				"err", nodeErr,
			)
		}

		delta.NodesVisited = append(delta.NodesVisited, current)
		if applyErr := state.Apply(delta); applyErr != nil {
			return nil, &domain.InvariantError{Node: current, Reason: applyErr.Error()}
		}

		// Checkpoint only after the node fully returned, never mid-node, so
		// a canceled turn leaves the last completed node resumable.
		if saveErr := e.store.Save(ctx, threadID, state); saveErr != nil {
			persisted = false
			e.metrics.CheckpointFailures.Inc()
			e.logger.Warn("turn continuing without persistence",
				"thread_id", threadID,
				"node", current,
				"err", saveErr,
			)
		}

		next, routeErr := e.next(current, state)
		if routeErr != nil {
			return nil, routeErr
		}
		current = next
	}

	e.metrics.TurnsTotal.WithLabelValues(string(state.Intent)).Inc()

	return &TurnResult{
		ThreadID:     threadID,
		Response:     state.CurrentResponse,
		Intent:       state.Intent,
		NodesVisited: state.NodesVisited,
		Persisted:    persisted,
	}, nil
}

// runNode invokes the node with panic containment and latency metrics.
func (e *Executor) runNode(ctx context.Context, node Node, st *domain.ExecutionState, ov Overrides) (delta domain.Delta, err error) {
	start := time.Now()
	defer func() {
		e.metrics.NodeDuration.WithLabelValues(node.Name()).Observe(time.Since(start).Seconds())
		if r := recover(); r != nil {
			delta = domain.Delta{}
			err = fmt.Errorf("node panicked: %v", r)
		}
	}()

	return node.Run(ctx, st, ov)
}

// next computes the successor node. An error short-circuits every remaining
// processing step straight to the validator, so the user always receives
// some response.
func (e *Executor) next(current string, st *domain.ExecutionState) (string, error) {
	if current == NodeValidator {
		return "", nil
	}

	if st.Failed() {
		return NodeValidator, nil
	}

	switch current {
	case NodeSupervisor:
		if st.Intent == "" {
			return "", &domain.InvariantError{Node: current, Reason: "routing attempted before intent was set"}
		}
		return e.routes[st.Intent], nil
	case NodeNLToSQL:
		return NodeSQLExecutor, nil
	default:
		return NodeValidator, nil
	}
}
