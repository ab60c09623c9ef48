package ports

import (
	"context"

	"github.com/elvinasadov/agroflow/pkg/domain"
)

// CheckpointStore persists ExecutionState snapshots between node transitions,
// enabling resume-after-reconnect. Implementations must be safe for
// concurrent callers; connection pooling is the store's responsibility, not
// the executor's.
//
// Save must be idempotent: saving the same state twice yields the same stored
// value. Load returns domain.ErrThreadNotFound for unknown threads.
type CheckpointStore interface {
	Save(ctx context.Context, threadID string, state *domain.ExecutionState) error
	Load(ctx context.Context, threadID string) (*domain.ExecutionState, error)

	// Delete is administrative only; the graph never calls it.
	Delete(ctx context.Context, threadID string) error

	// List returns the IDs of known threads.
	List(ctx context.Context) ([]string, error)
}
