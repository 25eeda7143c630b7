// Package approval lets an operator confirm or deny a paused run from
// outside the orchestrator process. A pending run waits for a marker
// file named after its id under the approvals directory; writing
// <run-id>.approved or <run-id>.rejected resolves the wait.
package approval

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/app"
)

// Decision is the operator's answer for a paused run
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

// pollInterval guards against fsnotify events lost between the existence
// check and watcher registration.
const pollInterval = 2 * time.Second

// Watcher blocks until an approval marker for a run appears
type Watcher struct {
	dir string
	log app.Logger
}

// NewWatcher creates a watcher over the given approvals directory
func NewWatcher(dir string, log app.Logger) *Watcher {
	if log == nil {
		log = app.GetLogger()
	}
	return &Watcher{dir: dir, log: log}
}

// Wait blocks until a marker file for runID appears or ctx is done. The
// consumed marker is removed so a later run with the same id (which
// cannot happen with ULIDs, but an operator retyping can) starts clean.
func (w *Watcher) Wait(ctx context.Context, runID string) (Decision, error) {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return "", fmt.Errorf("create approvals dir: %w", err)
	}

	// Marker may already exist from before we started watching
	if d, ok := w.consume(runID); ok {
		return d, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return "", fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return "", fmt.Errorf("watch %s: %w", w.dir, err)
	}

	w.log.Info("waiting for approval: run=%s dir=%s", runID, w.dir)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return "", fmt.Errorf("watcher closed")
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if d, match := classifyMarker(event.Name, runID); match {
				w.remove(event.Name)
				return d, nil
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return "", fmt.Errorf("watcher closed")
			}
			w.log.Warn("approval watcher error: %v", err)
		case <-ticker.C:
			if d, ok := w.consume(runID); ok {
				return d, nil
			}
		}
	}
}

// Grant writes the approval marker for a run
func Grant(dir, runID string) error {
	return writeMarker(dir, runID, DecisionApproved)
}

// Deny writes the rejection marker for a run
func Deny(dir, runID string) error {
	return writeMarker(dir, runID, DecisionRejected)
}

func writeMarker(dir, runID string, d Decision) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create approvals dir: %w", err)
	}
	path := filepath.Join(dir, runID+"."+string(d))
	if err := os.WriteFile(path, []byte(time.Now().UTC().Format(time.RFC3339)+"\n"), 0644); err != nil {
		return fmt.Errorf("write marker: %w", err)
	}
	return nil
}

// consume checks for an existing marker and removes it if found
func (w *Watcher) consume(runID string) (Decision, bool) {
	for _, d := range []Decision{DecisionApproved, DecisionRejected} {
		path := filepath.Join(w.dir, runID+"."+string(d))
		if _, err := os.Stat(path); err == nil {
			w.remove(path)
			return d, true
		}
	}
	return "", false
}

func (w *Watcher) remove(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		w.log.Warn("remove approval marker %s: %v", path, err)
	}
}

func classifyMarker(path, runID string) (Decision, bool) {
	switch filepath.Base(path) {
	case runID + "." + string(DecisionApproved):
		return DecisionApproved, true
	case runID + "." + string(DecisionRejected):
		return DecisionRejected, true
	}
	return "", false
}
