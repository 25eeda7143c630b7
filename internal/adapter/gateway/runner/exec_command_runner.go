// Package runner adapts the command-runner port onto os/exec.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/application/port/output"
)

// ExecCommandRunner implements CommandRunner with os/exec
type ExecCommandRunner struct{}

// New creates an ExecCommandRunner
func New() *ExecCommandRunner {
	return &ExecCommandRunner{}
}

// Execute runs the command and captures exit code and output. A non-zero
// exit is reported through ExitCode, not as an error; errors mean the
// process could not run at all.
func (r *ExecCommandRunner) Execute(ctx context.Context, cmd output.Command) (*output.ExecResult, error) {
	cctx := ctx
	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	start := time.Now()
	c := exec.CommandContext(cctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()
	res := &output.ExecResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		// A deadline kill also surfaces as an ExitError, so the
		// timeout check must come first.
		if cctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("command %s timed out after %s", cmd.Name, cmd.Timeout)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return nil, fmt.Errorf("run command %s: %w", cmd.Name, err)
	}
	return res, nil
}
