package run

import (
	"time"

	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/domain/model/stage"
)

// Outcome represents how one stage attempt ended
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeRejected Outcome = "rejected" // Blocked by the autonomy gate
	OutcomeFailed   Outcome = "failed"
)

// String returns the string representation of the outcome
func (o Outcome) String() string {
	return string(o)
}

// IsValid returns true if the outcome is a known value
func (o Outcome) IsValid() bool {
	switch o {
	case OutcomeSuccess, OutcomeRejected, OutcomeFailed:
		return true
	default:
		return false
	}
}

// SelectedModule records one reference module chosen for a stage attempt,
// with the relevance score it was chosen at.
type SelectedModule struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// ExecutionRecord is one attempt at one stage within a Run. Immutable once
// appended to the run history; superseded attempts remain for audit.
type ExecutionRecord struct {
	Stage         stage.ID         `json:"stage"`
	Attempt       int              `json:"attempt"`
	Modules       []SelectedModule `json:"modules"`
	ContextBytes  int              `json:"context_bytes"`
	Outcome       Outcome          `json:"outcome"`
	ErrorCategory string           `json:"error_category,omitempty"`
	ArtifactID    string           `json:"artifact_id,omitempty"`
	StartedAt     time.Time        `json:"started_at"`
	Duration      time.Duration    `json:"duration"`
}
