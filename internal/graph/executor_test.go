package graph_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/elvinasadov/agroflow/internal/graph"
	"github.com/elvinasadov/agroflow/internal/intent"
	"github.com/elvinasadov/agroflow/internal/logging"
	"github.com/elvinasadov/agroflow/internal/resilience"
	"github.com/elvinasadov/agroflow/pkg/adapters/memory"
	"github.com/elvinasadov/agroflow/pkg/domain"
	"github.com/elvinasadov/agroflow/pkg/model"
	"github.com/elvinasadov/agroflow/pkg/ports"
	"github.com/elvinasadov/agroflow/pkg/thread"
)

const testSchema = "farms(id INTEGER, name TEXT, area_hectares REAL, crop TEXT)"

// fakeToolProvider scripts the rules service for advisory tests.
type fakeToolProvider struct {
	mu      sync.Mutex
	healthy bool
	result  any
	probes  int
}

func (f *fakeToolProvider) URL() string { return "http://rules.test" }

func (f *fakeToolProvider) Health(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes++
	if f.healthy {
		return nil
	}
	return errors.New("connection refused")
}

func (f *fakeToolProvider) Invoke(ctx context.Context, tool string, args map[string]any) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.result, nil
}

// countingQuerier records every query that reaches the data store.
type countingQuerier struct {
	db      *sql.DB
	mu      sync.Mutex
	queries []string
}

func (c *countingQuerier) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	c.mu.Lock()
	c.queries = append(c.queries, query)
	c.mu.Unlock()
	return c.db.QueryContext(ctx, query, args...)
}

func (c *countingQuerier) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queries)
}

// flakyStore wraps a store and fails saves on demand.
type flakyStore struct {
	ports.CheckpointStore
	mu       sync.Mutex
	failSave bool
	saves    int
}

func (f *flakyStore) Save(ctx context.Context, threadID string, state *domain.ExecutionState) error {
	f.mu.Lock()
	fail := f.failSave
	f.saves++
	f.mu.Unlock()
	if fail {
		return errors.New("backend unreachable")
	}
	return f.CheckpointStore.Save(ctx, threadID, state)
}

func newFarmDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "farms.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
		CREATE TABLE farms (id INTEGER PRIMARY KEY, name TEXT, area_hectares REAL, crop TEXT);
		INSERT INTO farms VALUES
			(1, 'Qax Aqro', 120.5, 'hazelnut'),
			(2, 'Şirvan Taxıl', 75.0, 'wheat'),
			(3, 'Lənkəran Çay', 12.0, 'tea');
	`)
	require.NoError(t, err)
	return db
}

type fixture struct {
	executor *graph.Executor
	store    *flakyStore
	querier  *countingQuerier
	mock     *model.Mock
	provider *fakeToolProvider
}

func newFixture(t *testing.T, healthyTools bool) *fixture {
	t.Helper()

	mock := model.NewMock("test-model").RespondDefault("general advice")
	provider := &fakeToolProvider{healthy: healthyTools, result: "rule: irrigate at dawn"}
	querier := &countingQuerier{db: newFarmDB(t)}
	store := &flakyStore{CheckpointStore: memory.NewStore()}
	logger := logging.NewNop()

	readiness := resilience.New(
		resilience.WithSleeper(func(context.Context, time.Duration) error { return nil }),
	)
	retry := resilience.DefaultRetryConfig()

	nodes := []graph.Node{
		graph.NewSupervisor(intent.New(), logger),
		graph.NewAdvisory(mock, provider, readiness, retry, logger, nil),
		graph.NewNLToSQL(mock, testSchema, logger),
		graph.NewSQLExecutor(querier, 0, logger),
		graph.NewVision(mock, logger),
		graph.NewValidator(logger),
	}

	executor, err := graph.NewExecutor(store, thread.NewManager(), nodes)
	require.NoError(t, err)

	return &fixture{
		executor: executor,
		store:    store,
		querier:  querier,
		mock:     mock,
		provider: provider,
	}
}

func TestSubmitTurn_DataQueryResumption(t *testing.T) {
	fx := newFixture(t, true)
	fx.mock.Respond("hektardan çox",
		"```sql\nSELECT name, area_hectares FROM farms WHERE area_hectares > 50;\n```")

	ctx := context.Background()
	input := "Sahəsi 50 hektardan çox olan fermləri göstər"

	result, err := fx.executor.SubmitTurn(ctx, "T1", input, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, domain.IntentDataQuery, result.Intent)
	assert.Equal(t, []string{"supervisor", "nl_to_sql", "sql_executor", "validator"}, result.NodesVisited)
	assert.True(t, result.Persisted)
	assert.Contains(t, result.Response, "Qax Aqro")
	assert.Contains(t, result.Response, "Şirvan Taxıl")
	assert.NotContains(t, result.Response, "Lənkəran Çay")

	// Resume: the checkpoint must contain both the input and the response.
	state, err := fx.store.Load(ctx, "T1")
	require.NoError(t, err)
	require.Len(t, state.Messages, 2)
	assert.Equal(t, domain.Message{Role: domain.RoleUser, Content: input}, state.Messages[0])
	assert.Equal(t, domain.RoleAssistant, state.Messages[1].Role)
	assert.Equal(t, result.Response, state.Messages[1].Content)
}

func TestSubmitTurn_RoutingDeterminism(t *testing.T) {
	fx := newFixture(t, true)
	fx.mock.Respond("hektardan çox", "SELECT name FROM farms")

	ctx := context.Background()
	var first *graph.TurnResult
	for i := 0; i < 5; i++ {
		result, err := fx.executor.SubmitTurn(ctx, fmt.Sprintf("T%d", i),
			"Sahəsi 50 hektardan çox olan fermləri göstər", nil, nil)
		require.NoError(t, err)
		if first == nil {
			first = result
			continue
		}
		assert.Equal(t, first.Intent, result.Intent)
		assert.Equal(t, first.NodesVisited, result.NodesVisited)
	}
}

func TestSubmitTurn_ValidatorExactlyOnce(t *testing.T) {
	fx := newFixture(t, true)
	fx.mock.Respond("göstər", "SELECT name FROM farms")

	ctx := context.Background()
	inputs := []string{
		"Salam!",
		"Pomidoru nə vaxt suvarmaq lazımdır?",
		"Fermləri göstər",
		"qwerty asdf",
	}

	for i, input := range inputs {
		result, err := fx.executor.SubmitTurn(ctx, fmt.Sprintf("T%d", i), input, nil, nil)
		require.NoError(t, err)

		seen := 0
		for _, n := range result.NodesVisited {
			if n == "validator" {
				seen++
			}
		}
		assert.Equal(t, 1, seen, "input %q: validator must run exactly once", input)
	}
}

func TestSubmitTurn_GreetingRoutesStraightToValidator(t *testing.T) {
	fx := newFixture(t, true)

	result, err := fx.executor.SubmitTurn(context.Background(), "T1", "Salam!", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, domain.IntentGreeting, result.Intent)
	assert.Equal(t, []string{"supervisor", "validator"}, result.NodesVisited)
	assert.NotEmpty(t, result.Response)
}

func TestSubmitTurn_GracefulDegradationWhenToolsDown(t *testing.T) {
	fx := newFixture(t, false)
	fx.mock.RespondDefault("Suvarma üçün ümumi tövsiyə: səhər tezdən suvarın.")

	result, err := fx.executor.SubmitTurn(context.Background(), "T1",
		"Pomidoru nə vaxt suvarmaq lazımdır?", nil, nil)
	require.NoError(t, err, "a failing tool provider must not fail the turn")

	assert.Equal(t, domain.IntentIrrigation, result.Intent)
	assert.NotEmpty(t, result.Response, "degraded, not empty")
	assert.Equal(t, []string{"supervisor", "advisory", "validator"}, result.NodesVisited)

	// The degraded limitation was noted in the prompt.
	reqs := fx.mock.Requests()
	require.NotEmpty(t, reqs)
	assert.Contains(t, reqs[len(reqs)-1].System, "unavailable")
}

func TestSubmitTurn_AdvisoryUsesRulesWhenHealthy(t *testing.T) {
	fx := newFixture(t, true)

	result, err := fx.executor.SubmitTurn(context.Background(), "T1",
		"Pomidoru nə vaxt suvarmaq lazımdır?", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"supervisor", "advisory", "validator"}, result.NodesVisited)

	reqs := fx.mock.Requests()
	require.NotEmpty(t, reqs)
	assert.Contains(t, reqs[len(reqs)-1].System, "irrigate at dawn")
}

func TestSubmitTurn_ReadOnlyEnforcement(t *testing.T) {
	fx := newFixture(t, true)
	fx.mock.Respond("fermləri sil", "DELETE FROM farms")

	result, err := fx.executor.SubmitTurn(context.Background(), "T1",
		"Bütün fermləri sil və siyahı göstər", nil, nil)
	require.NoError(t, err, "a mutating statement is a turn-local failure, not a fatal one")

	assert.Equal(t, domain.IntentDataQuery, result.Intent)
	assert.Equal(t, []string{"supervisor", "nl_to_sql", "validator"}, result.NodesVisited,
		"the rejected query must short-circuit past the executor node")
	assert.Contains(t, result.Response, "Üzr istəyirəm")
	assert.Zero(t, fx.querier.count(), "no mutating statement may ever reach the data store")
}

func TestSubmitTurn_QueryErrorIsTurnLocal(t *testing.T) {
	fx := newFixture(t, true)
	fx.mock.Respond("göstər", "SELECT nope FROM missing_table")

	result, err := fx.executor.SubmitTurn(context.Background(), "T1", "Fermləri göstər", nil, nil)
	require.NoError(t, err)

	assert.Contains(t, result.Response, "Üzr istəyirəm")
	assert.Equal(t, []string{"supervisor", "nl_to_sql", "sql_executor", "validator"}, result.NodesVisited)

	// The error was cleared by the validator after conversion to an apology.
	state, loadErr := fx.store.Load(context.Background(), "T1")
	require.NoError(t, loadErr)
	assert.Empty(t, state.Error)
	assert.Empty(t, state.ErrorNode)
}

func TestSubmitTurn_ModelFailureIsTurnLocal(t *testing.T) {
	fx := newFixture(t, true)
	fx.mock.Fail(errors.New("model timeout"))

	result, err := fx.executor.SubmitTurn(context.Background(), "T1",
		"Pomidoru nə vaxt suvarmaq lazımdır?", nil, nil)
	require.NoError(t, err)
	assert.Contains(t, result.Response, "Üzr istəyirəm")
}

func TestSubmitTurn_SaveFailureCompletesWithoutPersistence(t *testing.T) {
	fx := newFixture(t, true)
	fx.store.failSave = true

	result, err := fx.executor.SubmitTurn(context.Background(), "T1", "Salam!", nil, nil)
	require.NoError(t, err, "save failures must not become user-facing failures")

	assert.False(t, result.Persisted)
	assert.NotEmpty(t, result.Response)
}

func TestSubmitTurn_CheckpointAfterEveryNode(t *testing.T) {
	fx := newFixture(t, true)
	fx.mock.Respond("göstər", "SELECT name FROM farms")

	result, err := fx.executor.SubmitTurn(context.Background(), "T1", "Fermləri göstər", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, len(result.NodesVisited), fx.store.saves,
		"one checkpoint per node transition")
}

func TestSubmitTurn_ConversationHistoryAccumulates(t *testing.T) {
	fx := newFixture(t, true)

	ctx := context.Background()
	_, err := fx.executor.SubmitTurn(ctx, "T1", "Salam!", nil, nil)
	require.NoError(t, err)
	_, err = fx.executor.SubmitTurn(ctx, "T1", "Pomidoru nə vaxt suvarmaq lazımdır?", nil, nil)
	require.NoError(t, err)

	state, err := fx.store.Load(ctx, "T1")
	require.NoError(t, err)
	require.Len(t, state.Messages, 4)
	assert.Equal(t, "Salam!", state.Messages[0].Content)
	assert.Equal(t, "Pomidoru nə vaxt suvarmaq lazımdır?", state.Messages[2].Content)

	// nodes_visited is per-turn: only the last turn's trail is kept.
	assert.Equal(t, []string{"supervisor", "advisory", "validator"}, state.NodesVisited)
}

func TestSubmitTurn_VisionWithArtifacts(t *testing.T) {
	fx := newFixture(t, true)
	fx.mock.RespondDefault("Yarpaqlarda göbələk xəstəliyi görünür.")

	result, err := fx.executor.SubmitTurn(context.Background(), "T1",
		"Bu nədir?", []string{"/uploads/leaf.jpg"}, nil)
	require.NoError(t, err)

	assert.Equal(t, domain.IntentVisionAnalysis, result.Intent)
	assert.Equal(t, []string{"supervisor", "vision_to_action", "validator"}, result.NodesVisited)

	reqs := fx.mock.Requests()
	require.NotEmpty(t, reqs)
	assert.Equal(t, []string{"/uploads/leaf.jpg"}, reqs[len(reqs)-1].Images)
}

func TestSubmitTurn_InvalidOverridesRejected(t *testing.T) {
	fx := newFixture(t, true)

	_, err := fx.executor.SubmitTurn(context.Background(), "T1", "Salam!", nil,
		map[string]any{"modle": "typo"})
	assert.Error(t, err)
}

func TestSubmitTurn_OverridesReachTheModel(t *testing.T) {
	fx := newFixture(t, true)

	_, err := fx.executor.SubmitTurn(context.Background(), "T1",
		"Pomidoru nə vaxt suvarmaq lazımdır?", nil,
		map[string]any{"temperature": 0.2, "max_tokens": 512})
	require.NoError(t, err)

	reqs := fx.mock.Requests()
	require.NotEmpty(t, reqs)
	assert.InDelta(t, 0.2, reqs[len(reqs)-1].Temperature, 1e-9)
	assert.Equal(t, int64(512), reqs[len(reqs)-1].MaxTokens)
}

// panickyClassifier simulates a classifier crash inside the supervisor.
type panickyClassifier struct{}

func (panickyClassifier) Classify(context.Context, string, []string, []domain.Message) domain.Intent {
	panic("ruleset corrupted")
}

func TestSubmitTurn_SupervisorFailureStillApologizes(t *testing.T) {
	logger := logging.NewNop()
	mock := model.NewMock("m")
	nodes := []graph.Node{
		graph.NewSupervisor(panickyClassifier{}, logger),
		graph.NewAdvisory(mock, nil, nil, resilience.DefaultRetryConfig(), logger, nil),
		graph.NewNLToSQL(mock, testSchema, logger),
		graph.NewSQLExecutor(&countingQuerier{db: newFarmDB(t)}, 0, logger),
		graph.NewVision(mock, logger),
		graph.NewValidator(logger),
	}

	executor, err := graph.NewExecutor(memory.NewStore(), thread.NewManager(), nodes)
	require.NoError(t, err)

	result, err := executor.SubmitTurn(context.Background(), "T1", "Salam!", nil, nil)
	require.NoError(t, err, "a supervisor crash is turn-local, not fatal")

	assert.Equal(t, []string{"supervisor", "validator"}, result.NodesVisited)
	assert.Contains(t, result.Response, "Üzr istəyirəm")
	assert.Empty(t, result.Intent, "no intent was ever classified")
}

// rogueNode simulates a routing bug by claiming the validator already ran.
type rogueNode struct{}

func (rogueNode) Name() string { return "advisory" }

func (rogueNode) Run(context.Context, *domain.ExecutionState, graph.Overrides) (domain.Delta, error) {
	return domain.Delta{NodesVisited: []string{"validator"}}, nil
}

// fixedClassifier pins the supervisor's verdict.
type fixedClassifier struct{ intent domain.Intent }

func (f fixedClassifier) Classify(context.Context, string, []string, []domain.Message) domain.Intent {
	return f.intent
}

func TestSubmitTurn_LoopGuardRaisesInvariantError(t *testing.T) {
	logger := logging.NewNop()
	nodes := []graph.Node{
		graph.NewSupervisor(fixedClassifier{domain.IntentIrrigation}, logger),
		rogueNode{},
		graph.NewNLToSQL(model.NewMock("m"), testSchema, logger),
		graph.NewSQLExecutor(&countingQuerier{db: newFarmDB(t)}, 0, logger),
		graph.NewVision(model.NewMock("m"), logger),
		graph.NewValidator(logger),
	}

	executor, err := graph.NewExecutor(memory.NewStore(), thread.NewManager(), nodes)
	require.NoError(t, err)

	_, err = executor.SubmitTurn(context.Background(), "T1", "suvarma", nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvariant,
		"re-entering the validator is an internal invariant failure")
	assert.NotErrorIs(t, err, domain.ErrFatal)
}

// failingValidator breaks the convergence point.
type failingValidator struct{}

func (failingValidator) Name() string { return "validator" }

func (failingValidator) Run(context.Context, *domain.ExecutionState, graph.Overrides) (domain.Delta, error) {
	return domain.Delta{}, errors.New("formatter exploded")
}

func TestSubmitTurn_ValidatorFailureIsFatal(t *testing.T) {
	logger := logging.NewNop()
	mock := model.NewMock("m")
	nodes := []graph.Node{
		graph.NewSupervisor(intent.New(), logger),
		graph.NewAdvisory(mock, nil, nil, resilience.DefaultRetryConfig(), logger, nil),
		graph.NewNLToSQL(mock, testSchema, logger),
		graph.NewSQLExecutor(&countingQuerier{db: newFarmDB(t)}, 0, logger),
		graph.NewVision(mock, logger),
		failingValidator{},
	}

	executor, err := graph.NewExecutor(memory.NewStore(), thread.NewManager(), nodes)
	require.NoError(t, err)

	_, err = executor.SubmitTurn(context.Background(), "T1", "Salam!", nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrFatal)
}

func TestNewExecutor_UnmappedIntentFailsAtStartup(t *testing.T) {
	logger := logging.NewNop()
	routes := graph.DefaultRoutes()
	delete(routes, domain.IntentWeather)

	mock := model.NewMock("m")
	nodes := []graph.Node{
		graph.NewSupervisor(intent.New(), logger),
		graph.NewAdvisory(mock, nil, nil, resilience.DefaultRetryConfig(), logger, nil),
		graph.NewNLToSQL(mock, testSchema, logger),
		graph.NewSQLExecutor(&countingQuerier{db: newFarmDB(t)}, 0, logger),
		graph.NewVision(mock, logger),
		graph.NewValidator(logger),
	}

	_, err := graph.NewExecutor(memory.NewStore(), thread.NewManager(), nodes, graph.WithRoutes(routes))
	assert.Error(t, err)
}

func TestSubmitTurn_ConcurrentThreadsIndependent(t *testing.T) {
	fx := newFixture(t, true)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := fx.executor.SubmitTurn(context.Background(),
				fmt.Sprintf("T%d", i), "Salam!", nil, nil)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}
