// Package http exposes the orchestrator over a JSON API. Handlers are thin:
// decode, delegate, encode. All orchestration semantics live behind the
// Orchestrator interface.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/elvinasadov/agroflow/internal/graph"
	"github.com/elvinasadov/agroflow/pkg/domain"
)

// Orchestrator is the server's view of the core.
type Orchestrator interface {
	SubmitTurn(ctx context.Context, threadID, input string, artifacts []string, overrides map[string]any) (*graph.TurnResult, error)
	LoadThread(ctx context.Context, threadID string) (*domain.ExecutionState, error)
	Threads(ctx context.Context) ([]string, error)
	Health(ctx context.Context) HealthReport
}

// HealthReport is the /healthz payload.
type HealthReport struct {
	Status  string                `json:"status"`
	Backend string                `json:"backend"`
	Tools   map[string]ToolHealth `json:"tools,omitempty"`
}

// ToolHealth is the per-provider slice of the health report.
type ToolHealth struct {
	Available           bool   `json:"available"`
	LastError           string `json:"last_error,omitempty"`
	ConsecutiveFailures int    `json:"consecutive_failures,omitempty"`
}

// TurnRequest is the POST turn body.
type TurnRequest struct {
	Input     string         `json:"input"`
	Artifacts []string       `json:"artifacts,omitempty"`
	Overrides map[string]any `json:"config_overrides,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewHandler builds the router.
func NewHandler(orch Orchestrator, registry *prometheus.Registry, logger *slog.Logger) http.Handler {
	s := &server{orch: orch, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.health)
	if registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/threads", s.listThreads)
		r.Get("/threads/{threadID}", s.getThread)
		r.Post("/threads/{threadID}/turns", s.submitTurn)
	})

	return r
}

type server struct {
	orch   Orchestrator
	logger *slog.Logger
}

func (s *server) submitTurn(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")

	var req TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Input == "" && len(req.Artifacts) == 0 {
		s.writeError(w, http.StatusBadRequest, "input or artifacts required")
		return
	}

	result, err := s.orch.SubmitTurn(r.Context(), threadID, req.Input, req.Artifacts, req.Overrides)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvariant), errors.Is(err, domain.ErrFatal):
			s.logger.Error("turn failed",
				"thread_id", threadID,
				"err", err,
			)
			s.writeError(w, http.StatusInternalServerError, "turn processing failed")
		default:
			s.writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

func (s *server) getThread(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")

	state, err := s.orch.LoadThread(r.Context(), threadID)
	if err != nil {
		if errors.Is(err, domain.ErrThreadNotFound) {
			s.writeError(w, http.StatusNotFound, "thread not found")
			return
		}
		s.logger.Error("thread load failed", "thread_id", threadID, "err", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load thread")
		return
	}

	s.writeJSON(w, http.StatusOK, state)
}

func (s *server) listThreads(w http.ResponseWriter, r *http.Request) {
	threads, err := s.orch.Threads(r.Context())
	if err != nil {
		s.logger.Error("thread list failed", "err", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list threads")
		return
	}
	if threads == nil {
		threads = []string{}
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"threads": threads})
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	report := s.orch.Health(r.Context())

	status := http.StatusOK
	if report.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, report)
}

func (s *server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encoding failed", "err", err)
	}
}

func (s *server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}
