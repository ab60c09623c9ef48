package domain

import (
	"errors"
	"fmt"
)

// ErrThreadNotFound is returned when a thread ID cannot be found in the store.
var ErrThreadNotFound = errors.New("thread not found")

// ErrInvariant marks internal invariant failures (programming errors), e.g.
// the router re-entering a non-reentrant node. Distinguishable from
// user-facing turn failures via errors.Is.
var ErrInvariant = errors.New("graph invariant violated")

// ErrFatal marks failures that halt the turn with no best-effort message:
// the validator itself failing, or every configured store backend being
// unreachable. Callers must retry at the transport layer.
var ErrFatal = errors.New("fatal orchestration failure")

// InvariantError carries detail about which node broke which invariant.
type InvariantError struct {
	Node   string
	Reason string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violated at node %q: %s", e.Node, e.Reason)
}

func (e *InvariantError) Unwrap() error { return ErrInvariant }

// FatalError wraps a fatal failure with the stage it occurred in.
type FatalError struct {
	Stage string
	Err   error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal failure in %s: %v", e.Stage, e.Err)
}

func (e *FatalError) Unwrap() error { return ErrFatal }
