package decision

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/domain/model/task"
)

// Verdict represents an autonomy-gate outcome
type Verdict string

const (
	VerdictApproved Verdict = "approved"
	VerdictRejected Verdict = "rejected"
)

// String returns the string representation of the verdict
func (v Verdict) String() string {
	return string(v)
}

// IsApproved returns true if the verdict permits the action
func (v Verdict) IsApproved() bool {
	return v == VerdictApproved
}

// ParseVerdict parses a string into a Verdict; unknown values reject
func ParseVerdict(s string) Verdict {
	if strings.EqualFold(strings.TrimSpace(s), string(VerdictApproved)) {
		return VerdictApproved
	}
	return VerdictRejected
}

// Record is one autonomy-gate verdict. Records are appended to an
// immutable audit log and never edited or deleted.
type Record struct {
	ID          string        `json:"id"`
	TS          time.Time     `json:"ts"`
	RunID       string        `json:"run_id,omitempty"`
	Category    task.Category `json:"category"`
	Confidence  float64       `json:"confidence"`
	Destructive bool          `json:"destructive"`
	Verdict     Verdict       `json:"verdict"`
	Reason      string        `json:"reason"`
}

// NewRecord creates a decision record stamped with the current time
func NewRecord(runID string, category task.Category, confidence float64, destructive bool, verdict Verdict, reason string) Record {
	now := time.Now().UTC()
	entropy := ulid.Monotonic(rand.Reader, 0)
	return Record{
		ID:          ulid.MustNew(ulid.Timestamp(now), entropy).String(),
		TS:          now,
		RunID:       runID,
		Category:    category,
		Confidence:  confidence,
		Destructive: destructive,
		Verdict:     verdict,
		Reason:      reason,
	}
}
