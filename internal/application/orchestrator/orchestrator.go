// Package orchestrator executes a classified run through its stage
// pipeline: selecting reference material, assembling bounded context
// bundles, gating destructive actions, and containing failures through
// the escalation manager. Stage execution within one run is strictly
// sequential; independent runs may execute concurrently.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/app"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/app/config"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/application/analyzer"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/application/classifier"
	escmanager "github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/application/escalation"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/application/gate"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/application/selector"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/application/port/output"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/domain/model/decision"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/domain/model/escalation"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/domain/model/reference"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/domain/model/run"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/domain/model/stage"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/domain/repository"
)

// StageOutcome says what Advance did with one stage
type StageOutcome string

const (
	OutcomeContinued StageOutcome = "continued" // Stage done, cursor advanced
	OutcomeCompleted StageOutcome = "completed" // Pipeline exhausted
	OutcomePaused    StageOutcome = "paused"    // Awaiting manual approval
	OutcomeAborted   StageOutcome = "aborted"   // Escalation verdict or cancellation
)

// RunOptions are the per-invocation knobs from the CLI surface
type RunOptions struct {
	Workspace         string   // Project root the run operates on
	IsExistingProject bool     // Prepend a discovery stage when true
	Override          bool     // Explicit autonomy override (logged separately)
	VerifyCommand     []string // Command the verification stage executes, if any
}

// RunResult summarizes a finished or paused execution
type RunResult struct {
	Run     *run.Run
	Outcome StageOutcome
	Reason  string // Decisive reason, verbatim from the record that caused it
}

// Orchestrator composes the classifier, selector, analyzer, gate, and
// escalation manager around the external collaborators.
type Orchestrator struct {
	classifier *classifier.Classifier
	selector   *selector.Selector
	analyzer   *analyzer.Analyzer
	gate       *gate.Gate
	escalation *escmanager.Manager

	generation output.GenerationGateway
	storage    output.StorageGateway
	writer     output.ArtifactWriter
	runner     output.CommandRunner

	runs   repository.RunRepository
	audit  repository.AuditLog
	corpus reference.Corpus
	cfg    config.Config
	log    app.Logger

	mu       sync.Mutex
	active   map[string]bool             // run ids with a live execution
	analyses map[string]*analyzer.Result // per-run cached analysis
}

// New wires an Orchestrator. All collaborators are required except the
// command runner, which only the verification stage uses.
func New(
	cls *classifier.Classifier,
	sel *selector.Selector,
	ana *analyzer.Analyzer,
	g *gate.Gate,
	esc *escmanager.Manager,
	generation output.GenerationGateway,
	storage output.StorageGateway,
	writer output.ArtifactWriter,
	runner output.CommandRunner,
	runs repository.RunRepository,
	audit repository.AuditLog,
	corpus reference.Corpus,
	cfg config.Config,
	log app.Logger,
) *Orchestrator {
	if log == nil {
		log = app.GetLogger()
	}
	return &Orchestrator{
		classifier: cls,
		selector:   sel,
		analyzer:   ana,
		gate:       g,
		escalation: esc,
		generation: generation,
		storage:    storage,
		writer:     writer,
		runner:     runner,
		runs:       runs,
		audit:      audit,
		corpus:     corpus,
		cfg:        cfg,
		log:        log,
		active:     make(map[string]bool),
		analyses:   make(map[string]*analyzer.Result),
	}
}

// Start classifies a request, creates and persists a pending Run, and
// executes it to its first terminal or paused state.
func (o *Orchestrator) Start(ctx context.Context, request string, opts RunOptions) (*RunResult, error) {
	category, pipeline := o.classifier.Classify(request, opts.IsExistingProject)
	r := run.NewRun(request, category, pipeline)
	if err := o.runs.Save(ctx, r); err != nil {
		return nil, fmt.Errorf("persist new run: %w", err)
	}
	o.log.Info("run %s: category=%s pipeline=%v", r.ID, category, pipeline)
	return o.Execute(ctx, r, opts)
}

// Execute drives a run stage by stage until it completes, pauses, or
// aborts. Only one live execution per run id is allowed.
func (o *Orchestrator) Execute(ctx context.Context, r *run.Run, opts RunOptions) (*RunResult, error) {
	if err := o.acquire(r.ID); err != nil {
		return nil, err
	}
	defer o.release(r.ID)

	if r.Status == run.StatusPending {
		if err := r.Transition(run.StatusRunning); err != nil {
			return nil, err
		}
	}

	for {
		// Cancellation is honored between stages only, never mid-stage
		select {
		case <-ctx.Done():
			return o.cancel(r, "user-cancelled")
		default:
		}

		outcome, reason, err := o.Advance(ctx, r, &opts)
		if err != nil {
			return nil, err
		}
		if outcome != OutcomeContinued {
			return &RunResult{Run: r, Outcome: outcome, Reason: reason}, nil
		}
	}
}

// Advance executes exactly one stage attempt and persists the resulting
// state transition before returning.
func (o *Orchestrator) Advance(ctx context.Context, r *run.Run, opts *RunOptions) (StageOutcome, string, error) {
	stageID, ok := r.CurrentStage()
	if !ok {
		if err := r.Transition(run.StatusCompleted); err != nil {
			return "", "", err
		}
		return OutcomeCompleted, "", o.save(ctx, r)
	}

	profile, err := stage.GetProfile(stageID)
	if err != nil {
		return "", "", err
	}

	attempt := r.NextAttempt(stageID)
	started := time.Now().UTC()

	// (1) relevance-ranked reference selection
	query := r.Request + " " + profile.Role
	selected := o.selector.Select(query, stageID, o.corpus, o.cfg.SelectK())

	// (2) bounded context bundle
	bundle := assembleBundle(r, profile, selected, o.priorOutputs(ctx, r), o.cfg.BundleByteCap())
	rendered := bundle.Render()

	rec := run.ExecutionRecord{
		Stage:        stageID,
		Attempt:      attempt,
		Modules:      toSelectedModules(bundle.Modules),
		ContextBytes: len(rendered),
		StartedAt:    started,
	}

	// (3) autonomy gate for destructive stages, with the sanctioned
	// draft-ahead overlap: drafting has no observable side effect until
	// the explicit apply step, so it may run while the gate evaluates.
	var draft *draftResult
	if profile.Destructive {
		draftCtx, cancelDraft := context.WithCancel(ctx)
		draftCh := o.draftAhead(draftCtx, rendered)

		verdict := o.gate.Decide(gate.Request{
			RunID:       r.ID,
			Category:    r.Category,
			Confidence:  o.analysisFor(ctx, r, opts.Workspace).Confidence,
			Destructive: true,
			Override:    opts.Override || o.cfg.AutoApprove(),
		})
		if !verdict.Verdict.IsApproved() {
			cancelDraft()
			<-draftCh // drain; the draft is discarded unapplied
			rec.Outcome = run.OutcomeRejected
			rec.Duration = time.Since(started)
			if err := r.AppendRecord(rec); err != nil {
				return "", "", err
			}
			if err := r.Transition(run.StatusAwaitingApproval); err != nil {
				return "", "", err
			}
			o.log.Info("run %s: stage %s paused: %s", r.ID, stageID, verdict.Reason)
			return OutcomePaused, verdict.Reason, o.save(ctx, r)
		}
		draft = <-draftCh
		cancelDraft()
		// A manual override grants exactly one destructive attempt
		opts.Override = false
	}

	// (4) execute the stage
	out, execErr := o.executeStage(ctx, r, profile, rendered, draft, *opts)
	rec.Duration = time.Since(started)

	if execErr != nil {
		return o.handleFailure(ctx, r, rec, execErr)
	}

	// (5) persist the artifact and the execution record
	if meta, err := o.storage.SaveArtifact(ctx, output.SaveArtifactRequest{
		RunID:   r.ID,
		Stage:   stageID.String(),
		Attempt: attempt,
		Content: []byte(out),
		Metadata: map[string]string{
			"category": r.Category.String(),
		},
	}); err != nil {
		o.log.Warn("run %s: artifact save failed: %v", r.ID, err)
	} else {
		rec.ArtifactID = meta.ID
	}

	rec.Outcome = run.OutcomeSuccess
	if err := r.AppendRecord(rec); err != nil {
		return "", "", err
	}

	// (6) advance the phase cursor
	if err := r.Advance(); err != nil {
		return "", "", err
	}
	return OutcomeContinued, "", o.save(ctx, r)
}

// handleFailure appends the failed record, consults the escalation
// manager, and applies its verdict.
func (o *Orchestrator) handleFailure(ctx context.Context, r *run.Run, rec run.ExecutionRecord, execErr error) (StageOutcome, string, error) {
	sig := escalation.Signature(execErr.Error())
	rec.Outcome = run.OutcomeFailed
	rec.ErrorCategory = sig
	if err := r.AppendRecord(rec); err != nil {
		return "", "", err
	}
	o.log.Warn("run %s: stage %s attempt %d failed: %v", r.ID, rec.Stage, rec.Attempt, execErr)

	verdict, err := o.escalation.OnFailure(ctx, r, rec.Stage, execErr.Error())
	if err != nil {
		return "", "", err
	}

	switch verdict.Action {
	case escalation.VerdictRetry:
		// Cursor stays; the loop re-executes the same stage
	case escalation.VerdictReassignRecover:
		r.InjectStage(stage.StageRecovery)
	case escalation.VerdictReassignPlan:
		r.InjectStage(stage.StagePlanning)
	case escalation.VerdictAbort:
		return o.abort(ctx, r, verdict.Reason)
	}
	return OutcomeContinued, verdict.Reason, o.save(ctx, r)
}

// executeStage runs the stage body. Destructive stages apply their
// drafted change set through the artifact writer; the verification stage
// also runs the configured verify command.
func (o *Orchestrator) executeStage(ctx context.Context, r *run.Run, profile stage.Profile, rendered string, draft *draftResult, opts RunOptions) (string, error) {
	var out string

	if draft != nil && draft.err == nil && draft.output != "" {
		out = draft.output
	} else {
		res, err := o.generation.Generate(ctx, output.GenerateRequest{Bundle: rendered, Timeout: o.cfg.Timeout()})
		if err != nil {
			return "", fmt.Errorf("generation service: %w", err)
		}
		out = res.Output
	}

	if profile.Destructive {
		if err := o.applyChanges(ctx, r, profile, out); err != nil {
			return "", err
		}
	}

	if profile.ID == stage.StageVerification && len(opts.VerifyCommand) > 0 && o.runner != nil {
		res, err := o.runner.Execute(ctx, output.Command{
			Name:    opts.VerifyCommand[0],
			Args:    opts.VerifyCommand[1:],
			Dir:     opts.Workspace,
			Timeout: o.cfg.Timeout(),
		})
		if err != nil {
			return "", fmt.Errorf("verify command: %w", err)
		}
		if res.ExitCode != 0 {
			return "", fmt.Errorf("verify command exited %d: %s", res.ExitCode, firstLine(res.Stderr))
		}
		out += "\n\nverification: command passed\n"
	}

	return out, nil
}

// applyChanges hands the proposed change set to the designated writer,
// the sole authority for workspace mutation. A change set the writer
// refuses outright is a stage failure carrying the writer's reason.
func (o *Orchestrator) applyChanges(ctx context.Context, r *run.Run, profile stage.Profile, out string) error {
	blocks := parseChangeSet(out)
	if len(blocks) == 0 {
		return nil
	}

	cs := output.ChangeSet{RunID: r.ID, Stage: profile.ID.String()}
	total := 0
	for _, b := range blocks {
		total += len(b.Content)
		cs.Changes = append(cs.Changes, output.Change{Path: b.Path, Content: []byte(b.Content)})
	}
	if profile.ChangeSizeLimit > 0 && total > profile.ChangeSizeLimit {
		return fmt.Errorf("proposed change of %d bytes exceeds stage limit %d", total, profile.ChangeSizeLimit)
	}

	report, err := o.writer.Apply(ctx, cs)
	if err != nil {
		return fmt.Errorf("artifact writer: %w", err)
	}
	if len(report.Applied) == 0 && len(report.Rejected) > 0 {
		return fmt.Errorf("artifact writer rejected all changes: %s", report.Reason)
	}
	if len(report.Rejected) > 0 {
		o.log.Warn("run %s: writer rejected %d of %d changes: %s", r.ID, len(report.Rejected), len(cs.Changes), report.Reason)
	}
	return nil
}

type draftResult struct {
	output string
	err    error
}

// draftAhead starts a non-persistent generation draft. The draft has no
// observable side effect until applyChanges; cancelling it discards it.
func (o *Orchestrator) draftAhead(ctx context.Context, rendered string) <-chan *draftResult {
	ch := make(chan *draftResult, 1)
	go func() {
		res, err := o.generation.Generate(ctx, output.GenerateRequest{Bundle: rendered, Timeout: o.cfg.Timeout()})
		if err != nil {
			ch <- &draftResult{err: err}
			return
		}
		ch <- &draftResult{output: res.Output}
	}()
	return ch
}

// Approve resumes an awaiting_approval run with a logged manual grant.
// The granted stage executes with the override set for that one attempt.
func (o *Orchestrator) Approve(ctx context.Context, runID string, opts RunOptions) (*RunResult, error) {
	r, err := o.runs.Find(ctx, runID)
	if err != nil {
		return nil, err
	}
	if r.Status != run.StatusAwaitingApproval {
		return nil, fmt.Errorf("run %s is %s, not awaiting approval", runID, r.Status)
	}

	rec := decision.NewRecord(r.ID, r.Category, 0, true, decision.VerdictApproved, "manual approval granted")
	if err := o.audit.Append(rec); err != nil {
		o.log.Warn("audit append failed: %v", err)
	}

	if err := r.Transition(run.StatusRunning); err != nil {
		return nil, err
	}
	if err := o.save(ctx, r); err != nil {
		return nil, err
	}

	opts.Override = true
	return o.Execute(ctx, r, opts)
}

// Cancel aborts a run between stages with reason "user-cancelled"
func (o *Orchestrator) Cancel(ctx context.Context, runID string) (*RunResult, error) {
	r, err := o.runs.Find(ctx, runID)
	if err != nil {
		return nil, err
	}
	return o.cancel(r, "user-cancelled")
}

func (o *Orchestrator) cancel(r *run.Run, reason string) (*RunResult, error) {
	outcome, _, err := o.abort(context.Background(), r, reason)
	if err != nil {
		return nil, err
	}
	return &RunResult{Run: r, Outcome: outcome, Reason: reason}, nil
}

// abort terminates the run and surfaces the decisive reason through both
// the persisted state and the audit log.
func (o *Orchestrator) abort(ctx context.Context, r *run.Run, reason string) (StageOutcome, string, error) {
	if !r.Status.IsTerminal() {
		if err := r.Transition(run.StatusAborted); err != nil {
			return "", "", err
		}
	}
	rec := decision.NewRecord(r.ID, r.Category, 0, false, decision.VerdictRejected, reason)
	if err := o.audit.Append(rec); err != nil {
		o.log.Warn("audit append failed: %v", err)
	}
	return OutcomeAborted, reason, o.save(ctx, r)
}

// analysisFor returns the cached project analysis for the run, computing
// it on first use. The cache lives for the run's lifetime.
func (o *Orchestrator) analysisFor(ctx context.Context, r *run.Run, workspace string) *analyzer.Result {
	o.mu.Lock()
	if res, ok := o.analyses[r.ID]; ok {
		o.mu.Unlock()
		return res
	}
	o.mu.Unlock()

	res := o.analyzer.Analyze(ctx, workspace)
	for _, w := range res.Warnings {
		o.log.Warn("run %s: analysis: %s", r.ID, w)
	}

	o.mu.Lock()
	o.analyses[r.ID] = res
	o.mu.Unlock()
	return res
}

// Reanalyze drops the cached analysis so the next stage recomputes it
func (o *Orchestrator) Reanalyze(runID string) {
	o.mu.Lock()
	delete(o.analyses, runID)
	o.mu.Unlock()
}

// priorOutputs loads the artifacts of completed stages, oldest first
func (o *Orchestrator) priorOutputs(ctx context.Context, r *run.Run) []string {
	var prior []string
	for _, rec := range r.History {
		if rec.Outcome != run.OutcomeSuccess || rec.ArtifactID == "" {
			continue
		}
		a, err := o.storage.LoadArtifact(ctx, rec.ArtifactID)
		if err != nil {
			o.log.Debug("run %s: prior artifact %s unavailable: %v", r.ID, rec.ArtifactID, err)
			continue
		}
		prior = append(prior, fmt.Sprintf("[%s] %s", rec.Stage, string(a.Content)))
	}
	return prior
}

func (o *Orchestrator) save(ctx context.Context, r *run.Run) error {
	if err := o.runs.Save(ctx, r); err != nil {
		return fmt.Errorf("persist run %s: %w", r.ID, err)
	}
	return nil
}

func (o *Orchestrator) acquire(runID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active[runID] {
		return fmt.Errorf("run %s already executing", runID)
	}
	o.active[runID] = true
	return nil
}

func (o *Orchestrator) release(runID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.active, runID)
	delete(o.analyses, runID)
}

func toSelectedModules(ms []selector.RankedModule) []run.SelectedModule {
	out := make([]run.SelectedModule, len(ms))
	for i, m := range ms {
		out[i] = run.SelectedModule{Name: m.Module.Name, Score: m.Score}
	}
	return out
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
