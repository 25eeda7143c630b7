package cli

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the command tree with the given args, capturing stdout
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRoot()
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "vibecode")
}

func TestRunCmd_CompletesAutonomouslyWithMockAgent(t *testing.T) {
	home := filepath.Join(t.TempDir(), ".vibecode")

	out, err := execute(t,
		"run", "review the parser internals",
		"--home", home,
		"--workspace", t.TempDir(),
		"--mock-agent",
		"--autonomous",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "Status   : completed")
	assert.Contains(t, out, "Category : review")
}

func TestRunCmd_StatusAndRunsSeeThePersistedRun(t *testing.T) {
	home := filepath.Join(t.TempDir(), ".vibecode")
	workspace := t.TempDir()

	out, err := execute(t,
		"run", "review the naming in this package",
		"--home", home, "--workspace", workspace,
		"--mock-agent", "--autonomous",
	)
	require.NoError(t, err)

	// Pull the run id out of the printed result
	var runID string
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "Run      : ") {
			runID = strings.TrimPrefix(line, "Run      : ")
			break
		}
	}
	require.NotEmpty(t, runID)

	statusOut, err := execute(t, "status", runID, "--home", home)
	require.NoError(t, err)
	assert.Contains(t, statusOut, "completed")

	listOut, err := execute(t, "runs", "--home", home)
	require.NoError(t, err)
	assert.Contains(t, listOut, runID)
}

func TestStatusCmd_UnknownRun(t *testing.T) {
	home := filepath.Join(t.TempDir(), ".vibecode")

	_, err := execute(t, "status", "01UNKNOWN", "--home", home)
	assert.Error(t, err)
}

func TestAuditCmd_ShowsGateDecisions(t *testing.T) {
	home := filepath.Join(t.TempDir(), ".vibecode")

	// A build run hits destructive stages, so the gate records verdicts
	_, err := execute(t,
		"run", "build a small json formatting helper",
		"--home", home, "--workspace", t.TempDir(),
		"--mock-agent", "--autonomous",
	)
	require.NoError(t, err)

	out, err := execute(t, "audit", "--home", home)
	require.NoError(t, err)
	assert.Contains(t, out, "VERDICT")
	assert.Contains(t, out, "approved")
}

func TestBreakerCmd_UnknownSignature(t *testing.T) {
	home := filepath.Join(t.TempDir(), ".vibecode")

	_, err := execute(t, "breaker", "reset", "deadbeef00000000", "--home", home)
	assert.Error(t, err)

	out, err := execute(t, "breaker", "show", "deadbeef00000000", "--home", home)
	require.NoError(t, err)
	assert.Contains(t, out, "never seen")
}
