package escalation

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"time"

	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/domain/model/stage"
)

// Verdict is the escalation manager's answer to a stage failure
type Verdict string

const (
	VerdictRetry           Verdict = "retry"            // Re-run the same stage unchanged
	VerdictReassignRecover Verdict = "reassign_recover" // Hand off to the recovery stage, tighter change limit
	VerdictReassignPlan    Verdict = "reassign_plan"    // Hand off to planning for a strategy revision
	VerdictAbort           Verdict = "abort"            // Stop the run; circuit breaker trips
)

// String returns the string representation of the verdict
func (v Verdict) String() string {
	return string(v)
}

// Attempt records one (stage, strategy, outcome) escalation step
type Attempt struct {
	Stage    stage.ID `json:"stage"`
	Strategy Verdict  `json:"strategy"`
	Outcome  string   `json:"outcome"`
}

// State holds the per-error-signature counters. Counts are monotonically
// non-decreasing until an operator explicitly resets the signature.
type State struct {
	Signature string    `json:"signature"`
	Count     int       `json:"count"`
	Attempts  []Attempt `json:"attempts"`
	Tripped   bool      `json:"tripped"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewState creates a zeroed state for a signature
func NewState(signature string) *State {
	return &State{Signature: signature, UpdatedAt: time.Now().UTC()}
}

// RecordAttempt increments the occurrence count and appends the attempt
func (s *State) RecordAttempt(a Attempt) {
	s.Count++
	s.Attempts = append(s.Attempts, a)
	s.UpdatedAt = time.Now().UTC()
}

// Trip latches the circuit breaker for this signature
func (s *State) Trip() {
	s.Tripped = true
	s.UpdatedAt = time.Now().UTC()
}

var volatileTokens = regexp.MustCompile(`\b(0x[0-9a-fA-F]+|\d+)\b`)

// Signature reduces an error message to a stable signature hash. Numbers
// and addresses are masked first so the same fault at a different line or
// pointer still maps to one signature.
func Signature(errMsg string) string {
	normalized := strings.ToLower(strings.TrimSpace(errMsg))
	normalized = volatileTokens.ReplaceAllString(normalized, "#")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:8])
}
