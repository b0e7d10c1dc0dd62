// Package shell provides the shell_execute tool. Commands run under sh -c
// with a bounded timeout; classification happens in the registry before the
// handler is ever invoked.
package shell

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"hearth/internal/tools"
)

const (
	maxCommandLen = 500
	minTimeoutSec = 1
	maxTimeoutSec = 120
	defTimeoutSec = 30

	stdoutCap = 10_000
	stderrCap = 2_000
)

// New builds the shell_execute tool.
func New() *tools.Tool {
	return &tools.Tool{
		Name:        "shell_execute",
		Description: "Execute a shell command and return its output. Read-only commands run immediately; mutating commands require user confirmation.",
		InputSchema: tools.ObjectSchema(map[string]tools.Property{
			"command": {
				Type:        "string",
				Description: "The shell command to run",
				MaxLength:   maxCommandLen,
			},
			"timeout_seconds": {
				Type:        "integer",
				Description: "Timeout in seconds (1-120, default 30)",
				Default:     defTimeoutSec,
			},
		}, "command"),
		Handler: execute,
		Timeout: maxTimeoutSec * time.Second,
	}
}

func execute(ctx context.Context, input tools.Input) (string, error) {
	command := strings.TrimSpace(input.String("command"))
	if command == "" {
		return "", fmt.Errorf("command is required")
	}
	if len(command) > maxCommandLen {
		return "", fmt.Errorf("command exceeds %d characters", maxCommandLen)
	}

	timeout := input.Int("timeout_seconds", defTimeoutSec)
	if timeout < minTimeoutSec {
		timeout = minTimeoutSec
	}
	if timeout > maxTimeoutSec {
		timeout = maxTimeoutSec
	}

	cctx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	cmd := exec.CommandContext(cctx, "sh", "-c", command)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	if cctx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("command timed out after %ds: %w", timeout, context.DeadlineExceeded)
	}

	exitCode := 0
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return "", fmt.Errorf("command failed to start: %w", runErr)
		}
	}

	return formatResult(exitCode, elapsed, stdout.String(), stderr.String()), nil
}

func formatResult(exitCode int, elapsed time.Duration, stdout, stderr string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "exit code: %d (%.2fs)\n", exitCode, elapsed.Seconds())

	stdout = strings.TrimRight(stdout, "\n")
	stderr = strings.TrimRight(stderr, "\n")

	if stdout != "" {
		b.WriteString("stdout:\n")
		b.WriteString(truncate(stdout, stdoutCap))
		b.WriteString("\n")
	}
	if stderr != "" {
		b.WriteString("stderr:\n")
		b.WriteString(truncate(stderr, stderrCap))
		b.WriteString("\n")
	}
	if stdout == "" && stderr == "" {
		b.WriteString("(no output)\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "\n... [truncated]"
}
