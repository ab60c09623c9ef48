// Package model abstracts language-model generation behind a single opaque
// call with a timeout. The orchestration core treats the model as a function
// from context to text; provider adapters live in subpackages.
package model

import (
	"context"
	"mime"
	"path/filepath"
	"strings"
	"sync"

	"github.com/elvinasadov/agroflow/pkg/domain"
)

// Request is the normalized model input produced by processing nodes.
type Request struct {
	// System is the instruction preamble.
	System string

	// Messages is the conversation so far, oldest first.
	Messages []domain.Message

	// Images are artifact references (local file paths) for multimodal
	// prompts. Ignored by providers without vision support.
	Images []string

	// Temperature and MaxTokens override the adapter defaults when non-zero.
	Temperature float64
	MaxTokens   int64
}

// Info describes a model implementation.
type Info struct {
	Name           string `json:"name"`
	Provider       string `json:"provider"`
	SupportsVision bool   `json:"supports_vision"`
}

// Model is the minimal interface nodes use to drive generation. Generate
// must honor ctx cancellation and never block indefinitely.
type Model interface {
	Generate(ctx context.Context, req Request) (string, error)
	Info() Info
}

// MimeForArtifact guesses the media type of an uploaded artifact reference.
// Defaults to image/jpeg when the extension is unknown.
func MimeForArtifact(path string) string {
	if mt := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); mt != "" {
		return mt
	}
	return "image/jpeg"
}

// Mock is an in-memory Model for tests. Responses are keyed on substrings of
// the last user message; unmatched prompts get the default response.
type Mock struct {
	mu        sync.Mutex
	info      Info
	responses map[string]string
	fallback  string
	err       error
	requests  []Request
}

// NewMock constructs a Mock with vision support enabled.
func NewMock(name string) *Mock {
	return &Mock{
		info: Info{
			Name:           name,
			Provider:       "mock",
			SupportsVision: true,
		},
		responses: make(map[string]string),
		fallback:  "mock response",
	}
}

// Respond registers a canned completion for prompts containing substr.
func (m *Mock) Respond(substr, response string) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[substr] = response
	return m
}

// RespondDefault sets the fallback completion.
func (m *Mock) RespondDefault(response string) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = response
	return m
}

// Fail makes every Generate call return err.
func (m *Mock) Fail(err error) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// Requests returns a copy of all requests seen so far.
func (m *Mock) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

// Generate implements Model.
func (m *Mock) Generate(ctx context.Context, req Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)

	if m.err != nil {
		return "", m.err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var lastUser string
	for _, msg := range req.Messages {
		if msg.Role == domain.RoleUser {
			lastUser = msg.Content
		}
	}

	for substr, response := range m.responses {
		if strings.Contains(lastUser, substr) || strings.Contains(req.System, substr) {
			return response, nil
		}
	}
	return m.fallback, nil
}

// Info implements Model.
func (m *Mock) Info() Info { return m.info }
