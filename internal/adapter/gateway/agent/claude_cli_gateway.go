// Package agent provides generation-service gateways. The core treats
// the service as an opaque collaborator; these adapters only move the
// bundle in and the output out.
package agent

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/application/port/output"
)

// ClaudeCLIGateway implements GenerationGateway by shelling out to the
// claude CLI with the bundle as the prompt.
type ClaudeCLIGateway struct {
	bin     string
	timeout time.Duration
}

// NewClaudeCLIGateway creates a gateway around the given binary
func NewClaudeCLIGateway(bin string, timeout time.Duration) *ClaudeCLIGateway {
	if bin == "" {
		bin = "claude"
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &ClaudeCLIGateway{bin: bin, timeout: timeout}
}

// Generate runs the CLI with the rendered bundle
func (g *ClaudeCLIGateway) Generate(ctx context.Context, req output.GenerateRequest) (*output.GenerateResult, error) {
	timeout := g.timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(cctx, g.bin, "-p", req.Bundle)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if cctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("generation timed out after %s", timeout)
		}
		return nil, fmt.Errorf("%s execution failed: %w: %s", g.bin, err, stderr.String())
	}

	return &output.GenerateResult{
		Output:   stdout.String(),
		Duration: time.Since(start),
		Backend:  g.bin,
	}, nil
}

// HealthCheck verifies the CLI binary is invocable
func (g *ClaudeCLIGateway) HealthCheck(ctx context.Context) error {
	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := exec.CommandContext(cctx, g.bin, "--version").Run(); err != nil {
		return fmt.Errorf("%s not available: %w", g.bin, err)
	}
	return nil
}
