// Package httptool is an HTTP client for an external rules/tools service.
// It implements ports.ToolProvider; all callers reach it through the
// resilience manager, never directly.
package httptool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Provider talks to a tool service exposing GET /health and
// POST /tools/{name}.
type Provider struct {
	baseURL string
	client  *http.Client
}

// Option configures the provider.
type Option func(*Provider)

// WithHTTPClient overrides the default client (10s timeout).
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		p.client = client
	}
}

// New creates a provider for the service at baseURL.
func New(baseURL string, opts ...Option) *Provider {
	p := &Provider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// URL identifies the provider in the health registry.
func (p *Provider) URL() string {
	return p.baseURL
}

// Health performs a lightweight liveness probe against /health.
func (p *Provider) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("health probe failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health probe returned status %d", resp.StatusCode)
	}
	return nil
}

// Invoke calls POST /tools/{name} with JSON arguments and returns the decoded
// result payload.
func (p *Provider) Invoke(ctx context.Context, tool string, args map[string]any) (any, error) {
	body, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tool args: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/tools/"+tool, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tool %q invocation failed: %w", tool, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("tool %q returned status %d: %s", tool, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var payload struct {
		Result any `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode tool %q result: %w", tool, err)
	}

	return payload.Result, nil
}
