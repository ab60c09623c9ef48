package domain

import "time"

// ToolHealthRecord is the per-provider health snapshot maintained by the
// resilience manager. It is mutated only there; everyone else receives
// copies, never the live record.
type ToolHealthRecord struct {
	Available           bool      `json:"available"`
	LastChecked         time.Time `json:"last_checked"`
	LastError           string    `json:"last_error,omitempty"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
}
