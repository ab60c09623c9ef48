package ports

import "context"

// ToolProvider is an external rules/tools service. Callers must not invoke it
// directly: the resilience manager's EnsureReady/Status gate every call, and
// every caller must have a degraded fallback for when the provider is down.
type ToolProvider interface {
	// URL identifies the provider; used as the key in the health registry.
	URL() string

	// Health performs a lightweight liveness probe.
	Health(ctx context.Context) error

	// Invoke calls a named tool with JSON-compatible arguments.
	Invoke(ctx context.Context, tool string, args map[string]any) (any, error)
}
