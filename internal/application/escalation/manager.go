// Package escalation decides what happens after a stage failure: retry,
// reassign, or abort. A per-signature ladder and global caps together
// bound automated churn to a small constant no matter how many distinct
// error types occur.
package escalation

import (
	"context"
	"errors"
	"fmt"

	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/app"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/domain/model/escalation"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/domain/model/run"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/domain/model/stage"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/domain/repository"
)

// GlobalCaps are the run-wide breaker triggers. Whichever fires first
// forces abort regardless of the per-signature ladder level.
type GlobalCaps struct {
	SignatureRecurrence int // Same signature seen this many times
	RunFailures         int // Total failed attempts across the run
	StageRetries        int // Attempts consumed by a single stage
}

// DefaultGlobalCaps matches the shipped policy constants
func DefaultGlobalCaps() GlobalCaps {
	return GlobalCaps{SignatureRecurrence: 3, RunFailures: 5, StageRetries: 3}
}

// Verdict is the manager's answer, with the decisive reason attached
type Verdict struct {
	Action escalation.Verdict
	Reason string
}

// Manager runs the escalation state machine. Per-signature state is
// persisted so a tripped breaker survives the process; the global caps
// are computed from the run's own history.
type Manager struct {
	repo repository.EscalationRepository
	caps GlobalCaps
	log  app.Logger
}

// NewManager creates a Manager with the given caps
func NewManager(repo repository.EscalationRepository, caps GlobalCaps, log app.Logger) *Manager {
	if log == nil {
		log = app.GetLogger()
	}
	return &Manager{repo: repo, caps: caps, log: log}
}

// OnFailure records one stage failure and returns the verdict. The
// caller appends the failed execution record to the run history before
// consulting the manager, so the global caps see the current failure.
// The per-signature ladder: attempts 1-2 retry, 3 reassign to recovery,
// 4 reassign to planning, 5+ abort and trip the breaker.
func (m *Manager) OnFailure(ctx context.Context, r *run.Run, stageID stage.ID, errMsg string) (Verdict, error) {
	sig := escalation.Signature(errMsg)

	state, err := m.repo.Find(ctx, sig)
	if errors.Is(err, repository.ErrNotFound) {
		state = escalation.NewState(sig)
	} else if err != nil {
		return Verdict{}, fmt.Errorf("load escalation state: %w", err)
	}

	if state.Tripped {
		return Verdict{
			Action: escalation.VerdictAbort,
			Reason: fmt.Sprintf("circuit breaker already tripped for signature %s; operator reset required", sig),
		}, nil
	}

	// The ladder level comes from the persistent per-signature count;
	// the global caps are computed per run from its own history.
	v := m.ladderVerdict(state.Count + 1)
	if global, reason := m.globalTrip(r, stageID, sig); global {
		v = Verdict{Action: escalation.VerdictAbort, Reason: reason}
	}

	state.RecordAttempt(escalation.Attempt{Stage: stageID, Strategy: v.Action, Outcome: "failed"})
	if v.Action == escalation.VerdictAbort {
		state.Trip()
	}
	if err := m.repo.Save(ctx, state); err != nil {
		return Verdict{}, fmt.Errorf("save escalation state: %w", err)
	}

	m.log.Info("escalation: run=%s stage=%s signature=%s occurrence=%d -> %s",
		r.ID, stageID, sig, state.Count, v.Action)
	return v, nil
}

func (m *Manager) ladderVerdict(occurrence int) Verdict {
	switch {
	case occurrence <= 2:
		return Verdict{Action: escalation.VerdictRetry, Reason: fmt.Sprintf("attempt %d: retry same stage", occurrence)}
	case occurrence == 3:
		return Verdict{Action: escalation.VerdictReassignRecover, Reason: "attempt 3: reassign to recovery stage with tighter change limit"}
	case occurrence == 4:
		return Verdict{Action: escalation.VerdictReassignPlan, Reason: "attempt 4: reassign to planning for strategy revision"}
	default:
		return Verdict{Action: escalation.VerdictAbort, Reason: fmt.Sprintf("attempt %d: circuit breaker tripped", occurrence)}
	}
}

func (m *Manager) globalTrip(r *run.Run, stageID stage.ID, sig string) (bool, string) {
	sigInRun := 0
	for _, rec := range r.History {
		if rec.Outcome == run.OutcomeFailed && rec.ErrorCategory == sig {
			sigInRun++
		}
	}
	if sigInRun >= m.caps.SignatureRecurrence {
		return true, fmt.Sprintf("error signature recurred %d times in this run (cap %d)", sigInRun, m.caps.SignatureRecurrence)
	}
	if failures := r.FailureCount(); failures >= m.caps.RunFailures {
		return true, fmt.Sprintf("run accumulated %d failures (cap %d)", failures, m.caps.RunFailures)
	}
	if retries := r.StageRetries(stageID); retries >= m.caps.StageRetries {
		return true, fmt.Sprintf("stage %s retried %d times (cap %d)", stageID, retries, m.caps.StageRetries)
	}
	return false, ""
}

// Reset clears a signature's counters and breaker. This is the explicit
// operator acknowledgement path; nothing else un-trips a breaker.
func (m *Manager) Reset(ctx context.Context, signature string) error {
	if err := m.repo.Reset(ctx, signature); err != nil {
		return fmt.Errorf("reset escalation state: %w", err)
	}
	m.log.Info("escalation: signature %s reset by operator", signature)
	return nil
}
