package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elvinasadov/agroflow/internal/graph"
	"github.com/elvinasadov/agroflow/internal/logging"
	"github.com/elvinasadov/agroflow/pkg/domain"
)

type stubOrchestrator struct {
	result  *graph.TurnResult
	err     error
	state   *domain.ExecutionState
	threads []string
	health  HealthReport

	lastThreadID string
	lastInput    string
}

func (s *stubOrchestrator) SubmitTurn(ctx context.Context, threadID, input string, artifacts []string, overrides map[string]any) (*graph.TurnResult, error) {
	s.lastThreadID = threadID
	s.lastInput = input
	return s.result, s.err
}

func (s *stubOrchestrator) LoadThread(ctx context.Context, threadID string) (*domain.ExecutionState, error) {
	if s.state == nil {
		return nil, domain.ErrThreadNotFound
	}
	return s.state, nil
}

func (s *stubOrchestrator) Threads(ctx context.Context) ([]string, error) {
	return s.threads, nil
}

func (s *stubOrchestrator) Health(ctx context.Context) HealthReport {
	return s.health
}

func newTestServer(orch *stubOrchestrator) *httptest.Server {
	return httptest.NewServer(NewHandler(orch, nil, logging.NewNop()))
}

func TestSubmitTurn(t *testing.T) {
	orch := &stubOrchestrator{
		result: &graph.TurnResult{
			ThreadID:     "farmer-42",
			Response:     "Sabah yağış gözlənilir.",
			Intent:       domain.IntentWeather,
			NodesVisited: []string{"supervisor", "advisory", "validator"},
			Persisted:    true,
		},
	}
	srv := newTestServer(orch)
	defer srv.Close()

	body, _ := json.Marshal(TurnRequest{Input: "Sabah hava necə olacaq?"})
	resp, err := http.Post(srv.URL+"/v1/threads/farmer-42/turns", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "farmer-42", orch.lastThreadID)
	assert.Equal(t, "Sabah hava necə olacaq?", orch.lastInput)

	var result graph.TurnResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, "Sabah yağış gözlənilir.", result.Response)
	assert.Equal(t, domain.IntentWeather, result.Intent)
	assert.True(t, result.Persisted)
}

func TestSubmitTurn_EmptyInputRejected(t *testing.T) {
	srv := newTestServer(&stubOrchestrator{})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/threads/T1/turns", "application/json",
		bytes.NewReader([]byte(`{}`)))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSubmitTurn_FatalErrorHidesDetails(t *testing.T) {
	orch := &stubOrchestrator{
		err: &domain.FatalError{Stage: "validator", Err: errors.New("secret internals")},
	}
	srv := newTestServer(orch)
	defer srv.Close()

	body, _ := json.Marshal(TurnRequest{Input: "salam"})
	resp, err := http.Post(srv.URL+"/v1/threads/T1/turns", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var e errorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&e))
	assert.NotContains(t, e.Error, "secret internals")
}

func TestGetThread(t *testing.T) {
	orch := &stubOrchestrator{
		state: &domain.ExecutionState{
			ThreadID: "T1",
			Messages: []domain.Message{
				{Role: domain.RoleUser, Content: "salam"},
				{Role: domain.RoleAssistant, Content: "Salam!"},
			},
		},
	}
	srv := newTestServer(orch)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/threads/T1")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var state domain.ExecutionState
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&state))
	assert.Len(t, state.Messages, 2)
}

func TestGetThread_NotFound(t *testing.T) {
	srv := newTestServer(&stubOrchestrator{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/threads/missing")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListThreads_EmptyIsArray(t *testing.T) {
	srv := newTestServer(&stubOrchestrator{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/threads")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Threads []string `json:"threads"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.NotNil(t, payload.Threads)
	assert.Empty(t, payload.Threads)
}

func TestHealthz(t *testing.T) {
	orch := &stubOrchestrator{
		health: HealthReport{
			Status:  "ok",
			Backend: "sqlite",
			Tools: map[string]ToolHealth{
				"http://rules.internal": {Available: true},
			},
		},
	}
	srv := newTestServer(orch)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var report HealthReport
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	assert.Equal(t, "sqlite", report.Backend)
	assert.True(t, report.Tools["http://rules.internal"].Available)
}

func TestHealthz_DegradedIs503(t *testing.T) {
	orch := &stubOrchestrator{
		health: HealthReport{Status: "degraded", Backend: "memory"},
	}
	srv := newTestServer(orch)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
