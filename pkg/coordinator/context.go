package coordinator

import (
	"time"

	"synapse/pkg/security"
)

// ProcessingContext is the per-request record threaded through the
// pipeline. The coordinator is its only mutator; it is discarded once the
// result is returned.
type ProcessingContext struct {
	RequestID       string
	Input           any
	Kind            security.InputKind
	UserContext     map[string]any
	Intent          string
	Confidence      float64
	Entities        map[string]any
	ModuleResponses map[string]map[string]any
	Response        map[string]any
	ProcessingTime  time.Duration
	Verdict         *security.Verdict
}

// Result is the caller-visible outcome of one request. The shape never
// varies between success and failure; on error Response still carries a
// human-readable text explanation.
type Result struct {
	RequestID      string         `json:"request_id"`
	Response       map[string]any `json:"response"`
	Intent         string         `json:"intent,omitempty"`
	ProcessingTime time.Duration  `json:"processing_time"`
	Status         string         `json:"status"`
	Error          string         `json:"error,omitempty"`
}

// SystemStatus is the answer to a status query against the running
// coordinator.
type SystemStatus struct {
	Running        bool           `json:"running"`
	ActiveRequests int            `json:"active_requests"`
	Components     map[string]any `json:"components"`
}

const (
	// StatusSuccess marks a request that completed the whole pipeline.
	StatusSuccess = "success"

	// StatusError marks a request answered with a best-effort error
	// response, including security denials.
	StatusError = "error"
)
