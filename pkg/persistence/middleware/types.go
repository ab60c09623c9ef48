// Package middleware wraps a CheckpointStore with cross-cutting persistence
// behavior: encryption at rest and PII masking. Middlewares compose, so a
// store can mask first and encrypt second.
package middleware

import "github.com/elvinasadov/agroflow/pkg/ports"

// Middleware allows wrapping a CheckpointStore to add behavior.
type Middleware func(ports.CheckpointStore) ports.CheckpointStore

// Chain applies middlewares left to right: the first listed is the outermost.
func Chain(store ports.CheckpointStore, mws ...Middleware) ports.CheckpointStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
