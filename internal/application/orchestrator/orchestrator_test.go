package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	agentgateway "github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/adapter/gateway/agent"
	storagegateway "github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/adapter/gateway/storage"
	writergateway "github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/adapter/gateway/writer"
	appconfig "github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/app/config"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/application/analyzer"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/application/classifier"
	escmanager "github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/application/escalation"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/application/gate"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/application/port/output"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/application/selector"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/domain/model/decision"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/domain/model/escalation"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/domain/model/reference"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/domain/model/run"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/domain/model/stage"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/domain/model/task"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/domain/repository"
)

// memRunRepo keeps runs in a map, no copies: the orchestrator owns the
// run exclusively while executing.
type memRunRepo struct {
	mu   sync.Mutex
	runs map[string]*run.Run
}

func newMemRunRepo() *memRunRepo {
	return &memRunRepo{runs: make(map[string]*run.Run)}
}

func (m *memRunRepo) Save(_ context.Context, r *run.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[r.ID] = r
	return nil
}

func (m *memRunRepo) Find(_ context.Context, id string) (*run.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", id, repository.ErrNotFound)
	}
	return r, nil
}

func (m *memRunRepo) List(_ context.Context) ([]*run.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*run.Run, 0, len(m.runs))
	for _, r := range m.runs {
		out = append(out, r)
	}
	return out, nil
}

type memEscalationRepo struct {
	mu     sync.Mutex
	states map[string]*escalation.State
}

func newMemEscalationRepo() *memEscalationRepo {
	return &memEscalationRepo{states: make(map[string]*escalation.State)}
}

func (m *memEscalationRepo) Find(_ context.Context, sig string) (*escalation.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[sig]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memEscalationRepo) Save(_ context.Context, s *escalation.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.states[s.Signature] = &cp
	return nil
}

func (m *memEscalationRepo) Reset(_ context.Context, sig string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, sig)
	return nil
}

type memAuditLog struct {
	mu      sync.Mutex
	records []decision.Record
}

func (m *memAuditLog) Append(rec decision.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *memAuditLog) Read() ([]decision.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]decision.Record, len(m.records))
	copy(out, m.records)
	return out, nil
}

// stubRunner returns a scripted exit code
type stubRunner struct {
	exitCode int
	stderr   string
	calls    int
}

func (s *stubRunner) Execute(_ context.Context, _ output.Command) (*output.ExecResult, error) {
	s.calls++
	return &output.ExecResult{ExitCode: s.exitCode, Stderr: s.stderr}, nil
}

// harness bundles the orchestrator with its observable collaborators
type harness struct {
	orch    *Orchestrator
	gateway *agentgateway.MockGateway
	runs    *memRunRepo
	esc     *memEscalationRepo
	audit   *memAuditLog
	runner  *stubRunner
	fs      afero.Fs
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fs := afero.NewMemMapFs()

	cfg, err := appconfig.Load(fs, "/home/.vibecode", "")
	require.NoError(t, err)

	gateway := agentgateway.NewMockGateway()
	runs := newMemRunRepo()
	esc := newMemEscalationRepo()
	audit := &memAuditLog{}
	runner := &stubRunner{}

	storage, err := storagegateway.NewLocalStorageGateway(fs, "/home/.vibecode/var/artifacts")
	require.NoError(t, err)

	g := gate.New(audit, cfg.ConfidenceThreshold(), cfg.DestructiveFloor(), nil)
	manager := escmanager.NewManager(esc, escmanager.GlobalCaps{
		SignatureRecurrence: cfg.MaxSignatureRecurrence(),
		RunFailures:         cfg.MaxRunFailures(),
		StageRetries:        cfg.MaxStageRetries(),
	}, nil)

	orch := New(
		classifier.New(),
		selector.New(),
		analyzer.New(fs, nil),
		g,
		manager,
		gateway,
		storage,
		writergateway.New(fs, "/ws", 0),
		runner,
		runs,
		audit,
		reference.DefaultCorpus(),
		cfg,
		nil,
	)

	return &harness{orch: orch, gateway: gateway, runs: runs, esc: esc, audit: audit, runner: runner, fs: fs}
}

func TestStart_ReviewRunCompletes(t *testing.T) {
	h := newHarness(t)

	result, err := h.orch.Start(context.Background(), "review the public api surface", RunOptions{Workspace: "/ws"})
	require.NoError(t, err)

	assert.Equal(t, OutcomeCompleted, result.Outcome)
	assert.Equal(t, run.StatusCompleted, result.Run.Status)
	assert.Equal(t, task.CategoryReview, result.Run.Category)
	require.Len(t, result.Run.History, 1)
	assert.Equal(t, run.OutcomeSuccess, result.Run.History[0].Outcome)
	assert.Equal(t, 1, result.Run.History[0].Attempt)
	assert.NotEmpty(t, result.Run.History[0].ArtifactID, "stage output lands in artifact storage")
}

func TestStart_RecordsOneExecutionPerStage(t *testing.T) {
	h := newHarness(t)

	result, err := h.orch.Start(context.Background(), "review the naming", RunOptions{Workspace: "/ws"})
	require.NoError(t, err)
	assert.Equal(t, len(result.Run.Pipeline), len(result.Run.History))
	assert.Equal(t, len(result.Run.Pipeline), result.Run.Cursor)
}

// A destructive stage with low analysis confidence and no override must
// pause the run, leaving a rejected record and an audit entry. The
// draft-ahead generation is discarded unapplied.
func TestStart_DestructiveStagePausesWithoutApproval(t *testing.T) {
	h := newHarness(t)

	result, err := h.orch.Start(context.Background(), "create a greeting helper", RunOptions{Workspace: "/empty"})
	require.NoError(t, err)

	assert.Equal(t, OutcomePaused, result.Outcome)
	assert.Equal(t, run.StatusAwaitingApproval, result.Run.Status)
	assert.Contains(t, result.Reason, "low confidence")

	last := result.Run.History[len(result.Run.History)-1]
	assert.Equal(t, stage.StageImplementation, last.Stage)
	assert.Equal(t, run.OutcomeRejected, last.Outcome)

	// No change reached the workspace
	exists, _ := afero.DirExists(h.fs, "/ws")
	assert.False(t, exists)

	records, _ := h.audit.Read()
	require.NotEmpty(t, records)
	assert.Equal(t, decision.VerdictRejected, records[len(records)-1].Verdict)
}

func TestApprove_ResumesPausedRun(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	result, err := h.orch.Start(ctx, "create a greeting helper", RunOptions{Workspace: "/empty"})
	require.NoError(t, err)
	require.Equal(t, OutcomePaused, result.Outcome)

	resumed, err := h.orch.Approve(ctx, result.Run.ID, RunOptions{Workspace: "/empty"})
	require.NoError(t, err)

	assert.Equal(t, OutcomeCompleted, resumed.Outcome)
	assert.Equal(t, run.StatusCompleted, resumed.Run.Status)

	// The manual grant and the override-approved gate verdict are both
	// in the audit trail.
	records, _ := h.audit.Read()
	var manual, override bool
	for _, rec := range records {
		if rec.Reason == "manual approval granted" {
			manual = true
		}
		if rec.Reason == "explicit override" {
			override = true
		}
	}
	assert.True(t, manual)
	assert.True(t, override)

	// The implementation stage carries a rejected attempt 1 and a
	// successful attempt 2.
	attempts := []int{}
	for _, rec := range resumed.Run.History {
		if rec.Stage == stage.StageImplementation {
			attempts = append(attempts, rec.Attempt)
		}
	}
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestApprove_RejectsRunNotAwaitingApproval(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	result, err := h.orch.Start(ctx, "review the code", RunOptions{Workspace: "/ws"})
	require.NoError(t, err)
	require.Equal(t, OutcomeCompleted, result.Outcome)

	_, err = h.orch.Approve(ctx, result.Run.ID, RunOptions{})
	assert.Error(t, err)
}

func TestStart_OverrideGrantsOneDestructiveStage(t *testing.T) {
	h := newHarness(t)

	result, err := h.orch.Start(context.Background(), "create a greeting helper",
		RunOptions{Workspace: "/empty", Override: true})
	require.NoError(t, err)

	// Build pipeline has one destructive stage; the override covers it
	assert.Equal(t, OutcomeCompleted, result.Outcome)
}

func TestStart_AppliesProposedChangesThroughWriter(t *testing.T) {
	h := newHarness(t)
	h.gateway.Output = "plan note\n=== file: greeting.go\npackage greeting\n"

	result, err := h.orch.Start(context.Background(), "create a greeting helper",
		RunOptions{Workspace: "/ws", Override: true})
	require.NoError(t, err)
	require.Equal(t, OutcomeCompleted, result.Outcome)

	content, err := afero.ReadFile(h.fs, "/ws/greeting.go")
	require.NoError(t, err)
	assert.Equal(t, "package greeting\n", string(content))
}

func TestExecute_CancelledBetweenStages(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := h.orch.Start(ctx, "review everything", RunOptions{Workspace: "/ws"})
	require.NoError(t, err)

	assert.Equal(t, OutcomeAborted, result.Outcome)
	assert.Equal(t, run.StatusAborted, result.Run.Status)
	assert.Equal(t, "user-cancelled", result.Reason)

	records, _ := h.audit.Read()
	require.NotEmpty(t, records)
	assert.Equal(t, "user-cancelled", records[len(records)-1].Reason)
}

// Repeated failures of one stage hit the per-stage retry cap: the third
// attempt aborts the run and trips the signature's breaker.
func TestStart_RepeatedFailureAbortsAndTripsBreaker(t *testing.T) {
	h := newHarness(t)
	h.gateway.FailUntil = 100
	h.gateway.FailErr = fmt.Errorf("model backend unreachable")

	result, err := h.orch.Start(context.Background(), "review the config",
		RunOptions{Workspace: "/ws"})
	require.NoError(t, err)

	assert.Equal(t, OutcomeAborted, result.Outcome)
	assert.Equal(t, run.StatusAborted, result.Run.Status)

	failed := 0
	for _, rec := range result.Run.History {
		if rec.Outcome == run.OutcomeFailed {
			failed++
			assert.NotEmpty(t, rec.ErrorCategory)
		}
	}
	assert.Equal(t, 3, failed, "per-stage retry cap stops the churn")

	sig := escalation.Signature("generation service: model backend unreachable")
	state, err := h.esc.Find(context.Background(), sig)
	require.NoError(t, err)
	assert.True(t, state.Tripped)
}

func TestStart_FailedVerifyCommandEscalates(t *testing.T) {
	h := newHarness(t)
	h.runner.exitCode = 1
	h.runner.stderr = "test failed: TestX"

	result, err := h.orch.Start(context.Background(), "deploy the service",
		RunOptions{Workspace: "/ws", VerifyCommand: []string{"go", "test", "./..."}})
	require.NoError(t, err)

	// The verification stage keeps failing until the retry cap aborts
	assert.Equal(t, OutcomeAborted, result.Outcome)
	assert.GreaterOrEqual(t, h.runner.calls, 3)
}

func TestStart_SucceedingVerifyCommandCompletes(t *testing.T) {
	h := newHarness(t)

	result, err := h.orch.Start(context.Background(), "deploy the service",
		RunOptions{Workspace: "/ws", VerifyCommand: []string{"true"}, Override: true})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, result.Outcome)
	assert.Equal(t, 1, h.runner.calls)
}

func TestCancel_PausedRun(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	result, err := h.orch.Start(ctx, "create a helper", RunOptions{Workspace: "/empty"})
	require.NoError(t, err)
	require.Equal(t, OutcomePaused, result.Outcome)

	cancelled, err := h.orch.Cancel(ctx, result.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.StatusAborted, cancelled.Run.Status)
	assert.Equal(t, "user-cancelled", cancelled.Reason)
}

func TestStart_ConcurrentIndependentRuns(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	const n = 4
	results := make([]*RunResult, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = h.orch.Start(ctx, fmt.Sprintf("review module %d", i), RunOptions{Workspace: "/ws"})
		}()
	}
	wg.Wait()

	seen := map[string]bool{}
	for i, r := range results {
		require.NoError(t, errs[i])
		require.NotNil(t, r)
		assert.Equal(t, OutcomeCompleted, r.Outcome)
		assert.False(t, seen[r.Run.ID], "run ids must be unique")
		seen[r.Run.ID] = true
	}
}

func TestDraftAhead_DiscardedDraftStillCountsOneCall(t *testing.T) {
	h := newHarness(t)
	h.gateway.Delay = 10 * time.Millisecond

	result, err := h.orch.Start(context.Background(), "create a helper", RunOptions{Workspace: "/empty"})
	require.NoError(t, err)
	require.Equal(t, OutcomePaused, result.Outcome)

	// Planning generated once; the implementation draft ran concurrently
	// with the gate and was drained on rejection.
	assert.Equal(t, 2, h.gateway.Calls())
}
