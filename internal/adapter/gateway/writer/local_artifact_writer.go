// Package writer is the designated artifact-writer collaborator: the
// single choke point every workspace mutation passes through.
package writer

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/application/port/output"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/infrastructure/persistence/file"
)

// DefaultMaxChangeBytes bounds a single change set
const DefaultMaxChangeBytes = 256 * 1024

// LocalArtifactWriter applies change sets to a workspace root. It
// enforces its own safety limits: no paths escaping the root, no
// oversized change sets. Writes are atomic per file.
type LocalArtifactWriter struct {
	fs       afero.Fs
	root     string
	maxBytes int
}

// New creates a writer rooted at the given workspace directory
func New(fs afero.Fs, root string, maxBytes int) *LocalArtifactWriter {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxChangeBytes
	}
	return &LocalArtifactWriter{fs: fs, root: root, maxBytes: maxBytes}
}

// Apply validates and writes each change, reporting what was accepted.
// Invalid paths are rejected individually; an oversized change set is
// rejected whole.
func (w *LocalArtifactWriter) Apply(ctx context.Context, cs output.ChangeSet) (*output.WriteReport, error) {
	report := &output.WriteReport{}

	total := 0
	for _, ch := range cs.Changes {
		total += len(ch.Content)
	}
	if total > w.maxBytes {
		for _, ch := range cs.Changes {
			report.Rejected = append(report.Rejected, ch.Path)
		}
		report.Reason = fmt.Sprintf("change set of %d bytes exceeds limit %d", total, w.maxBytes)
		return report, nil
	}

	for _, ch := range cs.Changes {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		target, err := w.resolve(ch.Path)
		if err != nil {
			report.Rejected = append(report.Rejected, ch.Path)
			report.Reason = err.Error()
			continue
		}

		if ch.Content == nil {
			if err := w.fs.Remove(target); err != nil {
				report.Rejected = append(report.Rejected, ch.Path)
				report.Reason = fmt.Sprintf("delete %s: %v", ch.Path, err)
				continue
			}
		} else if err := file.WriteFileAtomic(w.fs, target, ch.Content); err != nil {
			report.Rejected = append(report.Rejected, ch.Path)
			report.Reason = fmt.Sprintf("write %s: %v", ch.Path, err)
			continue
		}
		report.Applied = append(report.Applied, ch.Path)
	}
	return report, nil
}

// resolve maps a relative change path onto the workspace root and
// refuses anything that would escape it.
func (w *LocalArtifactWriter) resolve(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("empty change path")
	}
	if filepath.IsAbs(p) {
		return "", fmt.Errorf("absolute change path %s refused", p)
	}
	clean := filepath.Clean(p)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("change path %s escapes workspace", p)
	}
	return filepath.Join(w.root, clean), nil
}
