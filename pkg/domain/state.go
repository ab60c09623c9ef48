package domain

// Message roles. The messages history only ever grows; it is never reordered.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one entry of the conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ExecutionState is the single mutable record threaded through the graph for
// one conversation turn. Nodes never mutate it directly; they return a Delta
// which the executor merges via Apply.
type ExecutionState struct {
	// ThreadID groups all turns of one conversation.
	ThreadID string `json:"thread_id"`

	// CurrentInput is the latest user-supplied text for this turn.
	CurrentInput string `json:"current_input"`

	// Messages holds prior turns. Append-only within a conversation.
	Messages []Message `json:"messages"`

	// Intent is set exactly once per turn by the supervisor.
	Intent Intent `json:"intent,omitempty"`

	// NodesVisited records node names executed this turn, in order.
	// Used for loop detection and diagnostics.
	NodesVisited []string `json:"nodes_visited"`

	// CurrentResponse is the node-produced output for this turn.
	CurrentResponse string `json:"current_response,omitempty"`

	// Error / ErrorNode are set when a node fails. A set Error short-circuits
	// normal routing; only the validator may clear it.
	Error     string `json:"error,omitempty"`
	ErrorNode string `json:"error_node,omitempty"`

	// ToolResults maps tool-call identifiers to result payloads.
	// Keys are unique per turn.
	ToolResults map[string]any `json:"tool_results,omitempty"`

	// UploadedArtifacts are opaque references (e.g. image paths) attached to
	// the current turn. Immutable once set.
	UploadedArtifacts []string `json:"uploaded_artifacts,omitempty"`
}

// NewState creates the state for a fresh conversation turn. The messages tail
// of the prior checkpoint (if any) is carried over; per-turn fields start
// clean.
func NewState(threadID, input string, artifacts []string, prior []Message) *ExecutionState {
	msgs := make([]Message, len(prior))
	copy(msgs, prior)

	arts := make([]string, len(artifacts))
	copy(arts, artifacts)

	return &ExecutionState{
		ThreadID:          threadID,
		CurrentInput:      input,
		Messages:          msgs,
		UploadedArtifacts: arts,
		ToolResults:       make(map[string]any),
	}
}

// Clone returns a deep copy so stores can hand out isolated snapshots.
func (s *ExecutionState) Clone() *ExecutionState {
	cp := *s

	cp.Messages = make([]Message, len(s.Messages))
	copy(cp.Messages, s.Messages)

	cp.NodesVisited = make([]string, len(s.NodesVisited))
	copy(cp.NodesVisited, s.NodesVisited)

	cp.UploadedArtifacts = make([]string, len(s.UploadedArtifacts))
	copy(cp.UploadedArtifacts, s.UploadedArtifacts)

	cp.ToolResults = make(map[string]any, len(s.ToolResults))
	for k, v := range s.ToolResults {
		cp.ToolResults[k] = v
	}

	return &cp
}

// Visited reports whether the named node already ran this turn.
func (s *ExecutionState) Visited(node string) bool {
	for _, n := range s.NodesVisited {
		if n == node {
			return true
		}
	}
	return false
}

// Failed reports whether a node recorded a turn-local failure.
func (s *ExecutionState) Failed() bool {
	return s.Error != ""
}
