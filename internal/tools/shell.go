package tools

import (
	"bytes"
	"context"
	"os/exec"
	"time"
)

const defaultShellTimeout = 30 * time.Second

// RunCommand runs name with args under a bound of timeout (defaultShellTimeout
// if timeout <= 0), replacing the child's environment with env entirely.
// Returns combined stdout+stderr, the process exit code (0 for a clean run),
// and a non-nil error only when the command could not be started or timed
// out — a nonzero exit from a command that did run is reported via
// exitCode, not err, so callers can distinguish the two.
func RunCommand(ctx context.Context, name string, args []string, env []string, timeout time.Duration) (output string, exitCode int, err error) {
	if timeout <= 0 {
		timeout = defaultShellTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = env

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	runErr := cmd.Run()
	output = buf.String()

	if runErr != nil && ctx.Err() != nil {
		return output, -1, ctx.Err()
	}
	if exitErr, ok := runErr.(*exec.ExitError); ok {
		return output, exitErr.ExitCode(), nil
	}
	if runErr != nil {
		return output, 0, runErr
	}
	return output, 0, nil
}
