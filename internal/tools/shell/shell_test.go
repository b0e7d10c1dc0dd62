package shell

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hearth/internal/tools"
)

func TestExecuteSimpleCommand(t *testing.T) {
	out, err := execute(context.Background(), tools.Input{"command": "echo hello"})
	require.NoError(t, err)
	assert.Contains(t, out, "exit code: 0")
	assert.Contains(t, out, "hello")
}

func TestExecuteNonZeroExit(t *testing.T) {
	out, err := execute(context.Background(), tools.Input{"command": "exit 3"})
	require.NoError(t, err)
	assert.Contains(t, out, "exit code: 3")
}

func TestExecuteCapturesStderr(t *testing.T) {
	out, err := execute(context.Background(), tools.Input{"command": "echo oops >&2"})
	require.NoError(t, err)
	assert.Contains(t, out, "stderr:")
	assert.Contains(t, out, "oops")
}

func TestExecuteEmptyCommand(t *testing.T) {
	_, err := execute(context.Background(), tools.Input{"command": "   "})
	require.Error(t, err)
}

func TestExecuteCommandTooLong(t *testing.T) {
	_, err := execute(context.Background(), tools.Input{
		"command": "echo " + strings.Repeat("x", maxCommandLen),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestExecuteTimeout(t *testing.T) {
	_, err := execute(context.Background(), tools.Input{
		"command":         "sleep 5",
		"timeout_seconds": 1,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
	// The registry maps timeouts by unwrapping to the deadline sentinel.
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExecuteNoOutput(t *testing.T) {
	out, err := execute(context.Background(), tools.Input{"command": "true"})
	require.NoError(t, err)
	assert.Contains(t, out, "(no output)")
}

func TestTimeoutClamped(t *testing.T) {
	// A timeout above the cap is clamped rather than rejected; the command
	// itself still finishes instantly.
	out, err := execute(context.Background(), tools.Input{
		"command":         "echo clamped",
		"timeout_seconds": 9999,
	})
	require.NoError(t, err)
	assert.Contains(t, out, "clamped")
}

func TestNewToolShape(t *testing.T) {
	tool := New()
	assert.Equal(t, "shell_execute", tool.Name)
	assert.Contains(t, tool.InputSchema.Required, "command")
	assert.NotNil(t, tool.Handler)
}
