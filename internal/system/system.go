// Package system collects facts about the host the agent runs on.
package system

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

func RunCommand(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return string(out), fmt.Errorf("%s failed: %w: %s", name, err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return string(out), fmt.Errorf("%s failed: %w", name, err)
	}
	return string(out), nil
}

// RunShell runs a fixed shell pipeline. Nothing read from the network
// is ever interpolated into one.
func RunShell(ctx context.Context, pipeline string) (string, error) {
	return RunCommand(ctx, "sh", "-c", pipeline)
}
