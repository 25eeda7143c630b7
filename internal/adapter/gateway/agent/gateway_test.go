package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/application/port/output"
)

func TestMockGateway_EchoesBundleDigest(t *testing.T) {
	g := NewMockGateway()

	res, err := g.Generate(context.Background(), output.GenerateRequest{Bundle: "Role: planner\nrest of bundle"})
	require.NoError(t, err)
	assert.Contains(t, res.Output, "Role: planner")
	assert.Equal(t, "mock", res.Backend)
	assert.Equal(t, 1, g.Calls())
}

func TestMockGateway_ScriptedFailuresThenRecovery(t *testing.T) {
	g := NewMockGateway()
	g.FailUntil = 2
	g.FailErr = errors.New("model backend unreachable")

	for i := 0; i < 2; i++ {
		_, err := g.Generate(context.Background(), output.GenerateRequest{Bundle: "b"})
		require.Error(t, err)
	}
	res, err := g.Generate(context.Background(), output.GenerateRequest{Bundle: "b"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Output)
	assert.Equal(t, 3, g.Calls())
}

func TestMockGateway_FixedOutput(t *testing.T) {
	g := NewMockGateway()
	g.Output = "=== file: a.go\npackage a\n"

	res, err := g.Generate(context.Background(), output.GenerateRequest{Bundle: "anything"})
	require.NoError(t, err)
	assert.Equal(t, g.Output, res.Output)
}

func TestMockGateway_DelayHonoursContext(t *testing.T) {
	g := NewMockGateway()
	g.Delay = 5 * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := g.Generate(ctx, output.GenerateRequest{Bundle: "b"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClaudeCLIGateway_HealthCheckFailsForMissingBinary(t *testing.T) {
	g := NewClaudeCLIGateway("definitely-not-a-real-binary-4242", time.Minute)

	err := g.HealthCheck(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not available")
}

func TestClaudeCLIGateway_Defaults(t *testing.T) {
	g := NewClaudeCLIGateway("", 0)
	assert.Equal(t, "claude", g.bin)
	assert.Equal(t, 10*time.Minute, g.timeout)
}
