package run

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/domain/model/stage"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/domain/model/task"
)

// Status represents the overall state of a Run
type Status string

const (
	StatusPending          Status = "pending"
	StatusRunning          Status = "running"
	StatusAwaitingApproval Status = "awaiting_approval"
	StatusCompleted        Status = "completed"
	StatusAborted          Status = "aborted"
)

// String returns the string representation of the status
func (s Status) String() string {
	return string(s)
}

// IsValid returns true if the status is a known value
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusAwaitingApproval, StatusCompleted, StatusAborted:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if no further stage may execute
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusAborted
}

// CanTransitionTo checks if a status transition is allowed
func (s Status) CanTransitionTo(next Status) bool {
	if s.IsTerminal() {
		return false
	}
	switch s {
	case StatusPending:
		return next == StatusRunning || next == StatusAborted
	case StatusRunning:
		return next == StatusAwaitingApproval || next == StatusCompleted || next == StatusAborted
	case StatusAwaitingApproval:
		return next == StatusRunning || next == StatusAborted
	}
	return false
}

// Run is one end-to-end execution of a classified request through its
// stage pipeline. The Orchestrator owns it exclusively; everything here
// mutates in memory and is persisted by an explicit repository save.
type Run struct {
	ID        string
	Request   string
	Category  task.Category
	Pipeline  []stage.ID
	Cursor    int // Index of the next stage to execute; never decreases
	Status    Status
	History   []ExecutionRecord // Append-only, superseded attempts retained
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewRun creates a pending Run for a classified request
func NewRun(request string, category task.Category, pipeline []stage.ID) *Run {
	now := time.Now().UTC()
	entropy := ulid.Monotonic(rand.Reader, 0)
	return &Run{
		ID:        ulid.MustNew(ulid.Timestamp(now), entropy).String(),
		Request:   request,
		Category:  category,
		Pipeline:  pipeline,
		Cursor:    0,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// CurrentStage returns the stage the cursor points at, or false if the
// pipeline is exhausted.
func (r *Run) CurrentStage() (stage.ID, bool) {
	if r.Cursor < 0 || r.Cursor >= len(r.Pipeline) {
		return "", false
	}
	return r.Pipeline[r.Cursor], true
}

// Advance moves the phase cursor past the current stage. The cursor is
// monotonic: it only ever moves forward, one stage at a time.
func (r *Run) Advance() error {
	if r.Cursor >= len(r.Pipeline) {
		return fmt.Errorf("run %s: cursor already past end of pipeline", r.ID)
	}
	r.Cursor++
	r.touch()
	return nil
}

// InjectStage inserts a stage at the cursor position so it executes next,
// without moving the cursor backward. Used for escalation reassignment.
func (r *Run) InjectStage(id stage.ID) {
	rest := make([]stage.ID, 0, len(r.Pipeline)-r.Cursor+1)
	rest = append(rest, id)
	rest = append(rest, r.Pipeline[r.Cursor:]...)
	r.Pipeline = append(r.Pipeline[:r.Cursor:r.Cursor], rest...)
	r.touch()
}

// Transition changes the run status, enforcing the allowed transitions
func (r *Run) Transition(next Status) error {
	if !r.Status.CanTransitionTo(next) {
		return fmt.Errorf("run %s: cannot transition from %s to %s", r.ID, r.Status, next)
	}
	r.Status = next
	r.touch()
	return nil
}

// NextAttempt returns the attempt number the next execution of the given
// stage must carry. Attempt numbers are contiguous starting at 1.
func (r *Run) NextAttempt(id stage.ID) int {
	max := 0
	for _, rec := range r.History {
		if rec.Stage == id && rec.Attempt > max {
			max = rec.Attempt
		}
	}
	return max + 1
}

// AppendRecord appends a stage execution record to the run history.
// Records are immutable once appended; a non-contiguous attempt number
// is rejected so the audit trail stays gap-free.
func (r *Run) AppendRecord(rec ExecutionRecord) error {
	if want := r.NextAttempt(rec.Stage); rec.Attempt != want {
		return fmt.Errorf("run %s: stage %s attempt %d out of order (want %d)", r.ID, rec.Stage, rec.Attempt, want)
	}
	r.History = append(r.History, rec)
	r.touch()
	return nil
}

// FailureCount returns the total number of failed attempts across the run
func (r *Run) FailureCount() int {
	n := 0
	for _, rec := range r.History {
		if rec.Outcome == OutcomeFailed {
			n++
		}
	}
	return n
}

// StageRetries returns how many attempts the given stage has consumed
func (r *Run) StageRetries(id stage.ID) int {
	n := 0
	for _, rec := range r.History {
		if rec.Stage == id {
			n++
		}
	}
	return n
}

func (r *Run) touch() {
	r.UpdatedAt = time.Now().UTC()
}
