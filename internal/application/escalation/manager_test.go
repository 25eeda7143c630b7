package escalation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/domain/model/escalation"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/domain/model/run"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/domain/model/stage"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/domain/model/task"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/domain/repository"
)

// memEscalationRepo keeps escalation state in a map
type memEscalationRepo struct {
	states map[string]*escalation.State
}

func newMemEscalationRepo() *memEscalationRepo {
	return &memEscalationRepo{states: make(map[string]*escalation.State)}
}

func (m *memEscalationRepo) Find(_ context.Context, sig string) (*escalation.State, error) {
	s, ok := m.states[sig]
	if !ok {
		return nil, fmt.Errorf("signature %s: %w", sig, repository.ErrNotFound)
	}
	cp := *s
	return &cp, nil
}

func (m *memEscalationRepo) Save(_ context.Context, s *escalation.State) error {
	cp := *s
	m.states[s.Signature] = &cp
	return nil
}

func (m *memEscalationRepo) Reset(_ context.Context, sig string) error {
	if _, ok := m.states[sig]; !ok {
		return repository.ErrNotFound
	}
	delete(m.states, sig)
	return nil
}

func newTestRun() *run.Run {
	return run.NewRun("fix the crash", task.CategoryFix, stage.Template(task.CategoryFix))
}

// appendFailure simulates what the orchestrator does before consulting
// the manager: the failed record is already in the run history.
func appendFailure(t *testing.T, r *run.Run, stageID stage.ID, sig string) {
	t.Helper()
	require.NoError(t, r.AppendRecord(run.ExecutionRecord{
		Stage:         stageID,
		Attempt:       r.NextAttempt(stageID),
		Outcome:       run.OutcomeFailed,
		ErrorCategory: sig,
		StartedAt:     time.Now().UTC(),
	}))
}

func TestOnFailure_LadderProgression(t *testing.T) {
	repo := newMemEscalationRepo()
	m := NewManager(repo, GlobalCaps{SignatureRecurrence: 100, RunFailures: 100, StageRetries: 100}, nil)
	ctx := context.Background()

	errMsg := "segfault in module loader"
	want := []escalation.Verdict{
		escalation.VerdictRetry,
		escalation.VerdictRetry,
		escalation.VerdictReassignRecover,
		escalation.VerdictReassignPlan,
		escalation.VerdictAbort,
	}

	for i, expected := range want {
		// Each failure happens in a fresh run; only the persistent
		// per-signature ladder carries across.
		r := newTestRun()
		v, err := m.OnFailure(ctx, r, stage.StageRecovery, errMsg)
		require.NoError(t, err)
		assert.Equal(t, expected, v.Action, "occurrence %d", i+1)
	}
}

// The 5th failure of one signature aborts and trips the breaker no
// matter which stage it occurred in.
func TestOnFailure_FifthFailureTripsBreakerAcrossStages(t *testing.T) {
	repo := newMemEscalationRepo()
	m := NewManager(repo, GlobalCaps{SignatureRecurrence: 100, RunFailures: 100, StageRetries: 100}, nil)
	ctx := context.Background()

	errMsg := "undefined reference to initialize"
	stages := []stage.ID{
		stage.StageImplementation, stage.StageRecovery, stage.StagePlanning,
		stage.StageVerification, stage.StageRelease,
	}

	var last Verdict
	for _, s := range stages {
		r := newTestRun()
		v, err := m.OnFailure(ctx, r, s, errMsg)
		require.NoError(t, err)
		last = v
	}

	assert.Equal(t, escalation.VerdictAbort, last.Action)

	state, err := repo.Find(ctx, escalation.Signature(errMsg))
	require.NoError(t, err)
	assert.True(t, state.Tripped)
}

func TestOnFailure_TrippedBreakerBlocksFurtherAttempts(t *testing.T) {
	repo := newMemEscalationRepo()
	m := NewManager(repo, DefaultGlobalCaps(), nil)
	ctx := context.Background()

	errMsg := "disk full"
	sig := escalation.Signature(errMsg)
	s := escalation.NewState(sig)
	s.Trip()
	require.NoError(t, repo.Save(ctx, s))

	v, err := m.OnFailure(ctx, newTestRun(), stage.StageRecovery, errMsg)
	require.NoError(t, err)
	assert.Equal(t, escalation.VerdictAbort, v.Action)
	assert.Contains(t, v.Reason, "operator reset required")
}

func TestOnFailure_GlobalSignatureRecurrenceCap(t *testing.T) {
	repo := newMemEscalationRepo()
	m := NewManager(repo, DefaultGlobalCaps(), nil)
	ctx := context.Background()

	errMsg := "connection refused on port 8080"
	sig := escalation.Signature(errMsg)

	r := newTestRun()
	var last Verdict
	for i := 0; i < 3; i++ {
		appendFailure(t, r, stage.StageRecovery, sig)
		v, err := m.OnFailure(ctx, r, stage.StageRecovery, errMsg)
		require.NoError(t, err)
		last = v
	}

	assert.Equal(t, escalation.VerdictAbort, last.Action)
	assert.Contains(t, last.Reason, "recurred")
}

func TestOnFailure_GlobalRunFailureCap(t *testing.T) {
	repo := newMemEscalationRepo()
	m := NewManager(repo, DefaultGlobalCaps(), nil)
	ctx := context.Background()

	// Five failures with distinct signatures: the ladder never leaves
	// retry, but the run-wide failure cap still aborts.
	r := newTestRun()
	var last Verdict
	for i := 0; i < 5; i++ {
		errMsg := fmt.Sprintf("distinct failure kind %c", 'a'+rune(i))
		stageID := stage.StageRecovery
		if i%2 == 1 {
			stageID = stage.StageVerification
		}
		appendFailure(t, r, stageID, escalation.Signature(errMsg))
		v, err := m.OnFailure(ctx, r, stageID, errMsg)
		require.NoError(t, err)
		last = v
	}

	assert.Equal(t, escalation.VerdictAbort, last.Action)
	assert.Contains(t, last.Reason, "failures")
}

func TestOnFailure_GlobalStageRetryCap(t *testing.T) {
	repo := newMemEscalationRepo()
	m := NewManager(repo, DefaultGlobalCaps(), nil)
	ctx := context.Background()

	r := newTestRun()
	var last Verdict
	for i := 0; i < 3; i++ {
		// Distinct signatures so neither the ladder nor the signature
		// cap interferes with the per-stage retry cap.
		errMsg := fmt.Sprintf("flaky check variant %c", 'a'+rune(i))
		appendFailure(t, r, stage.StageVerification, escalation.Signature(errMsg))
		v, err := m.OnFailure(ctx, r, stage.StageVerification, errMsg)
		require.NoError(t, err)
		last = v
	}

	assert.Equal(t, escalation.VerdictAbort, last.Action)
	assert.Contains(t, last.Reason, "retried")
}

func TestReset_ReopensTheLadder(t *testing.T) {
	repo := newMemEscalationRepo()
	m := NewManager(repo, GlobalCaps{SignatureRecurrence: 100, RunFailures: 100, StageRetries: 100}, nil)
	ctx := context.Background()

	errMsg := "timeout waiting for agent"
	for i := 0; i < 5; i++ {
		_, err := m.OnFailure(ctx, newTestRun(), stage.StageRecovery, errMsg)
		require.NoError(t, err)
	}

	require.NoError(t, m.Reset(ctx, escalation.Signature(errMsg)))

	v, err := m.OnFailure(ctx, newTestRun(), stage.StageRecovery, errMsg)
	require.NoError(t, err)
	assert.Equal(t, escalation.VerdictRetry, v.Action, "reset must restart the ladder")
}

func TestSignature_MasksVolatileTokens(t *testing.T) {
	a := escalation.Signature("panic at 0x7f3a21 in worker 17")
	b := escalation.Signature("panic at 0x99bb00 in worker 3")
	c := escalation.Signature("panic at 0x99bb00 in reader 3")

	assert.Equal(t, a, b, "addresses and counters must not split signatures")
	assert.NotEqual(t, a, c)
}
