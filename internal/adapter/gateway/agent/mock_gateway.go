package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/application/port/output"
)

// MockGateway is a deterministic GenerationGateway for tests and dry
// runs. It echoes a digest of the bundle and can be scripted to fail.
type MockGateway struct {
	mu        sync.Mutex
	calls     int
	FailUntil int    // Calls up to this count return FailErr
	FailErr   error  // Error returned while failing
	Output    string // Fixed output; empty means a generated digest
	Delay     time.Duration
}

// NewMockGateway creates a mock that always succeeds
func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

// Generate returns the scripted output or error
func (g *MockGateway) Generate(ctx context.Context, req output.GenerateRequest) (*output.GenerateResult, error) {
	g.mu.Lock()
	g.calls++
	n := g.calls
	g.mu.Unlock()

	if g.Delay > 0 {
		select {
		case <-time.After(g.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if n <= g.FailUntil && g.FailErr != nil {
		return nil, g.FailErr
	}

	out := g.Output
	if out == "" {
		head := req.Bundle
		if i := strings.IndexByte(head, '\n'); i >= 0 {
			head = head[:i]
		}
		out = fmt.Sprintf("mock output %d for %q (%d bytes in)", n, head, len(req.Bundle))
	}
	return &output.GenerateResult{Output: out, Backend: "mock"}, nil
}

// HealthCheck always succeeds
func (g *MockGateway) HealthCheck(ctx context.Context) error {
	return nil
}

// Calls returns how many times Generate has been invoked
func (g *MockGateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}
