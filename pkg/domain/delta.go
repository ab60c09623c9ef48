package domain

import "fmt"

// NodeError is a turn-local failure captured at the node boundary.
type NodeError struct {
	Node    string `json:"node"`
	Message string `json:"message"`
}

// Delta is a partial state update returned by a node. Zero-valued fields mean
// "no change". Merge semantics are explicit per field (see Apply): sequences
// append, scalars overwrite, tool results merge under unique keys.
type Delta struct {
	// Intent overwrites the turn's intent when non-empty.
	Intent Intent

	// Response overwrites CurrentResponse when non-nil. A pointer so nodes
	// can distinguish "no change" from "set to empty".
	Response *string

	// Err records a turn-local failure for this node.
	Err *NodeError

	// ClearError resets Error/ErrorNode. Only the validator emits this, after
	// converting the failure into a user-facing apology.
	ClearError bool

	// Messages are appended to the conversation history.
	Messages []Message

	// NodesVisited entries are appended to the visited trail.
	NodesVisited []string

	// ToolResults are merged into the state. A key collision within a turn is
	// a programming error surfaced by Apply.
	ToolResults map[string]any

	// Artifacts sets UploadedArtifacts when the state has none yet.
	Artifacts []string
}

// ResponseDelta is a convenience constructor for the common text-only case.
func ResponseDelta(text string) Delta {
	return Delta{Response: &text}
}

// ErrorDelta is a convenience constructor for a turn-local failure.
func ErrorDelta(node, message string) Delta {
	return Delta{Err: &NodeError{Node: node, Message: message}}
}

// Apply merges a delta into the state. This is the single reducer for all
// node outputs, so merge semantics are testable independently of node logic.
func (s *ExecutionState) Apply(d Delta) error {
	if d.Intent != "" {
		if !d.Intent.Valid() {
			return fmt.Errorf("delta carries intent %q outside the closed set", d.Intent)
		}
		s.Intent = d.Intent
	}

	if d.Response != nil {
		s.CurrentResponse = *d.Response
	}

	if d.Err != nil {
		s.Error = d.Err.Message
		s.ErrorNode = d.Err.Node
	}

	if d.ClearError {
		s.Error = ""
		s.ErrorNode = ""
	}

	s.Messages = append(s.Messages, d.Messages...)
	s.NodesVisited = append(s.NodesVisited, d.NodesVisited...)

	if len(d.ToolResults) > 0 {
		if s.ToolResults == nil {
			s.ToolResults = make(map[string]any, len(d.ToolResults))
		}
		for k, v := range d.ToolResults {
			if _, exists := s.ToolResults[k]; exists {
				return fmt.Errorf("tool result key %q already recorded this turn", k)
			}
			s.ToolResults[k] = v
		}
	}

	if len(d.Artifacts) > 0 {
		if len(s.UploadedArtifacts) > 0 {
			return fmt.Errorf("uploaded artifacts are immutable once set")
		}
		s.UploadedArtifacts = append([]string(nil), d.Artifacts...)
	}

	return nil
}
