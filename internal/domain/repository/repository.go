// Package repository defines the persistence ports the application layer
// depends on. Implementations live under internal/infrastructure.
package repository

import (
	"context"
	"errors"

	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/domain/model/decision"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/domain/model/escalation"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/domain/model/run"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("not found")

// RunRepository persists Run state after every transition
type RunRepository interface {
	// Save writes the full run record, replacing any previous version
	Save(ctx context.Context, r *run.Run) error

	// Find loads a run and its stage history by id
	Find(ctx context.Context, id string) (*run.Run, error)

	// List returns all persisted runs, newest first
	List(ctx context.Context) ([]*run.Run, error)
}

// EscalationRepository persists per-signature escalation state
type EscalationRepository interface {
	// Find loads the state for a signature; ErrNotFound if never seen
	Find(ctx context.Context, signature string) (*escalation.State, error)

	// Save writes the state for a signature
	Save(ctx context.Context, s *escalation.State) error

	// Reset clears a signature's counters and breaker. Operator-only.
	Reset(ctx context.Context, signature string) error
}

// AuditLog is the append-only decision trail. Entries are never edited
// or deleted once appended.
type AuditLog interface {
	// Append writes one decision record at the end of the log
	Append(rec decision.Record) error

	// Read returns all records in append order
	Read() ([]decision.Record, error)
}
