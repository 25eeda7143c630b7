// Package gate decides whether a stage action may proceed without human
// confirmation. Every verdict, approved or not, lands in the audit log.
package gate

import (
	"fmt"

	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/app"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/domain/model/decision"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/domain/model/task"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/domain/repository"
)

// Gate evaluates the autonomy decision table. The ordering is what makes
// it fail-closed: no confidence value approves a destructive action below
// the floor except an explicit, separately logged override.
type Gate struct {
	audit            repository.AuditLog
	approveThreshold float64
	destructiveFloor float64
	log              app.Logger
}

// New creates a Gate with the given policy thresholds
func New(audit repository.AuditLog, approveThreshold, destructiveFloor float64, log app.Logger) *Gate {
	if log == nil {
		log = app.GetLogger()
	}
	return &Gate{
		audit:            audit,
		approveThreshold: approveThreshold,
		destructiveFloor: destructiveFloor,
		log:              log,
	}
}

// Request carries everything one autonomy decision needs
type Request struct {
	RunID       string
	Category    task.Category
	Confidence  float64
	Destructive bool
	Override    bool
}

// Decide evaluates the decision table in order and appends exactly one
// decision record, whatever the outcome:
//  1. confidence >= approve threshold: approve.
//  2. confidence < destructive floor AND destructive: reject. This rule
//     cannot be bypassed by confidence alone.
//  3. explicit override: approve.
//  4. otherwise: reject, pending manual confirmation.
func (g *Gate) Decide(req Request) decision.Record {
	verdict, reason := g.evaluate(req)

	rec := decision.NewRecord(req.RunID, req.Category, req.Confidence, req.Destructive, verdict, reason)
	if err := g.audit.Append(rec); err != nil {
		// The verdict stands; a failing audit sink must not change it
		g.log.Warn("audit append failed: %v", err)
	}
	g.log.Debug("gate: run=%s category=%s confidence=%.2f destructive=%v -> %s (%s)",
		req.RunID, req.Category, req.Confidence, req.Destructive, verdict, reason)
	return rec
}

func (g *Gate) evaluate(req Request) (decision.Verdict, string) {
	if req.Confidence >= g.approveThreshold {
		return decision.VerdictApproved, fmt.Sprintf("high confidence (>= %.2f)", g.approveThreshold)
	}
	// Confidence alone never clears the floor; only an explicit,
	// separately logged override can.
	if req.Destructive && req.Confidence < g.destructiveFloor && !req.Override {
		return decision.VerdictRejected, fmt.Sprintf("low confidence (< %.2f) + destructive action", g.destructiveFloor)
	}
	if req.Override {
		return decision.VerdictApproved, "explicit override"
	}
	return decision.VerdictRejected, "pending manual confirmation"
}
