package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/domain/model/escalation"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/domain/repository"
)

// EscalationRepositoryImpl implements repository.EscalationRepository with SQLite
type EscalationRepositoryImpl struct {
	db *sql.DB
}

// NewEscalationRepository creates a new SQLite-based escalation repository
func NewEscalationRepository(db *sql.DB) repository.EscalationRepository {
	return &EscalationRepositoryImpl{db: db}
}

// Find loads the state for a signature; ErrNotFound if never seen
func (r *EscalationRepositoryImpl) Find(ctx context.Context, signature string) (*escalation.State, error) {
	var (
		s            escalation.State
		attemptsJSON string
		tripped      int
		updatedAt    string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT signature, count, attempts, tripped, updated_at
		FROM escalations WHERE signature = ?
	`, signature).Scan(&s.Signature, &s.Count, &attemptsJSON, &tripped, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("signature %s: %w", signature, repository.ErrNotFound)
		}
		return nil, fmt.Errorf("query escalation: %w", err)
	}

	s.Tripped = tripped != 0
	if err := json.Unmarshal([]byte(attemptsJSON), &s.Attempts); err != nil {
		return nil, fmt.Errorf("unmarshal attempts: %w", err)
	}
	if s.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &s, nil
}

// Save writes the state for a signature
func (r *EscalationRepositoryImpl) Save(ctx context.Context, s *escalation.State) error {
	attemptsJSON, err := json.Marshal(s.Attempts)
	if err != nil {
		return fmt.Errorf("marshal attempts: %w", err)
	}
	if s.Attempts == nil {
		attemptsJSON = []byte("[]")
	}

	tripped := 0
	if s.Tripped {
		tripped = 1
	}

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO escalations (signature, count, attempts, tripped, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(signature) DO UPDATE SET
			count = excluded.count,
			attempts = excluded.attempts,
			tripped = excluded.tripped,
			updated_at = excluded.updated_at
	`, s.Signature, s.Count, string(attemptsJSON), tripped, s.UpdatedAt.Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("upsert escalation: %w", err)
	}
	return nil
}

// Reset clears a signature's counters and breaker
func (r *EscalationRepositoryImpl) Reset(ctx context.Context, signature string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM escalations WHERE signature = ?`, signature)
	if err != nil {
		return fmt.Errorf("delete escalation: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("signature %s: %w", signature, repository.ErrNotFound)
	}
	return nil
}
