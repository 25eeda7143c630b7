package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/domain/model/run"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/domain/model/stage"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/domain/model/task"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/domain/repository"
)

// RunRepositoryImpl implements repository.RunRepository with SQLite
type RunRepositoryImpl struct {
	db *sql.DB
}

// NewRunRepository creates a new SQLite-based run repository
func NewRunRepository(db *sql.DB) repository.RunRepository {
	return &RunRepositoryImpl{db: db}
}

// Save writes the run and its stage history in one transaction. Stage
// records are append-only: rows are inserted with OR IGNORE so an
// existing attempt is never rewritten.
func (r *RunRepositoryImpl) Save(ctx context.Context, rn *run.Run) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	pipelineJSON, err := json.Marshal(rn.Pipeline)
	if err != nil {
		return fmt.Errorf("marshal pipeline: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (id, request, category, pipeline, cursor, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			pipeline = excluded.pipeline,
			cursor = excluded.cursor,
			status = excluded.status,
			updated_at = excluded.updated_at
	`,
		rn.ID, rn.Request, rn.Category.String(), string(pipelineJSON),
		rn.Cursor, rn.Status.String(),
		rn.CreatedAt.Format(time.RFC3339Nano), rn.UpdatedAt.Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}

	for seq, rec := range rn.History {
		modulesJSON, err := json.Marshal(rec.Modules)
		if err != nil {
			return fmt.Errorf("marshal modules: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO stage_records
				(run_id, stage, attempt, seq, modules, context_bytes, outcome, error_category, artifact_id, started_at, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			rn.ID, rec.Stage.String(), rec.Attempt, seq, string(modulesJSON),
			rec.ContextBytes, rec.Outcome.String(), rec.ErrorCategory, rec.ArtifactID,
			rec.StartedAt.Format(time.RFC3339Nano), rec.Duration.Milliseconds(),
		); err != nil {
			return fmt.Errorf("insert stage record: %w", err)
		}
	}

	return tx.Commit()
}

// Find loads a run and its stage history by id
func (r *RunRepositoryImpl) Find(ctx context.Context, id string) (*run.Run, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, request, category, pipeline, cursor, status, created_at, updated_at
		FROM runs WHERE id = ?
	`, id)

	rn, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("run %s: %w", id, repository.ErrNotFound)
		}
		return nil, err
	}

	if err := r.loadHistory(ctx, rn); err != nil {
		return nil, err
	}
	return rn, nil
}

// List returns all persisted runs, newest first, without histories
func (r *RunRepositoryImpl) List(ctx context.Context) ([]*run.Run, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, request, category, pipeline, cursor, status, created_at, updated_at
		FROM runs ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*run.Run
	for rows.Next() {
		rn, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, rn)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*run.Run, error) {
	var (
		rn           run.Run
		category     string
		pipelineJSON string
		status       string
		createdAt    string
		updatedAt    string
	)
	if err := row.Scan(&rn.ID, &rn.Request, &category, &pipelineJSON, &rn.Cursor, &status, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	rn.Category = task.ParseCategory(category)
	rn.Status = run.Status(status)
	if !rn.Status.IsValid() {
		return nil, fmt.Errorf("run %s: invalid persisted status %q", rn.ID, status)
	}
	if err := json.Unmarshal([]byte(pipelineJSON), &rn.Pipeline); err != nil {
		return nil, fmt.Errorf("unmarshal pipeline: %w", err)
	}

	var err error
	if rn.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if rn.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &rn, nil
}

func (r *RunRepositoryImpl) loadHistory(ctx context.Context, rn *run.Run) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT stage, attempt, modules, context_bytes, outcome, error_category, artifact_id, started_at, duration_ms
		FROM stage_records WHERE run_id = ? ORDER BY seq ASC
	`, rn.ID)
	if err != nil {
		return fmt.Errorf("query stage records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rec         run.ExecutionRecord
			stageStr    string
			modulesJSON string
			outcome     string
			errCat      sql.NullString
			artifactID  sql.NullString
			startedAt   string
			durationMs  int64
		)
		if err := rows.Scan(&stageStr, &rec.Attempt, &modulesJSON, &rec.ContextBytes, &outcome, &errCat, &artifactID, &startedAt, &durationMs); err != nil {
			return fmt.Errorf("scan stage record: %w", err)
		}
		rec.Stage = stage.ID(stageStr)
		rec.Outcome = run.Outcome(outcome)
		rec.ErrorCategory = errCat.String
		rec.ArtifactID = artifactID.String
		rec.Duration = time.Duration(durationMs) * time.Millisecond
		if err := json.Unmarshal([]byte(modulesJSON), &rec.Modules); err != nil {
			return fmt.Errorf("unmarshal modules: %w", err)
		}
		if rec.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
			return fmt.Errorf("parse started_at: %w", err)
		}
		rn.History = append(rn.History, rec)
	}
	return rows.Err()
}
