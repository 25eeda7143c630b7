package output

import "context"

// ArtifactWriter is the sole authority for applying file changes. The
// orchestrator never writes artifacts directly; every destructive
// mutation funnels through this one choke point.
type ArtifactWriter interface {
	// Apply persists a proposed change set and reports what was
	// accepted. The writer enforces its own size and safety limits.
	Apply(ctx context.Context, cs ChangeSet) (*WriteReport, error)
}

// Change is one proposed file mutation
type Change struct {
	Path    string // Target path, relative to the workspace
	Content []byte // Full new content; nil means delete
}

// ChangeSet is an ordered list of proposed mutations
type ChangeSet struct {
	RunID   string
	Stage   string
	Changes []Change
}

// WriteReport says what the writer accepted and why anything was refused
type WriteReport struct {
	Applied  []string // Paths written
	Rejected []string // Paths refused
	Reason   string   // Decisive reason for any rejection
}
