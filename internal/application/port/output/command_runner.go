package output

import (
	"context"
	"time"
)

// CommandRunner is the external process-launcher collaborator
type CommandRunner interface {
	// Execute runs a command and captures its output
	Execute(ctx context.Context, cmd Command) (*ExecResult, error)
}

// Command is one process invocation
type Command struct {
	Name    string
	Args    []string
	Dir     string        // Working directory; empty means inherit
	Timeout time.Duration // Zero means no deadline
}

// ExecResult captures a finished process
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}
