package extimpl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"time"
)

// Invocation is one subprocess call.
type Invocation struct {
	Argv  []string
	Env   map[string]string // merged onto the parent environment
	Dir   string
	Stdin []byte
}

// Output is what a finished subprocess produced.
type Output struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// CommandRunner abstracts subprocess execution so tests can substitute it.
// Run returns a non-nil error only when the process could not be started or
// waited for; a non-zero exit status is reported through Output.ExitCode.
type CommandRunner interface {
	Run(ctx context.Context, inv Invocation) (Output, error)
}

// OSRunner executes commands on the host.
type OSRunner struct {
	// WaitDelay bounds how long Run waits for output pipes to close after the
	// process is killed. Zero means one second.
	WaitDelay time.Duration
}

// Run executes inv, capturing stdout and stderr separately.
func (r OSRunner) Run(ctx context.Context, inv Invocation) (Output, error) {
	if len(inv.Argv) == 0 {
		return Output{}, fmt.Errorf("empty argv")
	}
	// #nosec G204 -- argv comes from the operator's runner configuration.
	cmd := exec.CommandContext(ctx, inv.Argv[0], inv.Argv[1:]...)
	cmd.Dir = inv.Dir
	cmd.WaitDelay = r.WaitDelay
	if cmd.WaitDelay == 0 {
		cmd.WaitDelay = time.Second
	}
	if len(inv.Env) != 0 {
		keys := make([]string, 0, len(inv.Env))
		for k := range inv.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		merged := cmd.Environ()
		for _, k := range keys {
			merged = append(merged, fmt.Sprintf("%s=%s", k, inv.Env[k]))
		}
		cmd.Env = merged
	}
	cmd.Stdin = bytes.NewReader(inv.Stdin)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := Output{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return out, nil
	case ctx.Err() != nil:
		return out, fmt.Errorf("run %q: %w", inv.Argv, ctx.Err())
	case errors.As(err, &exitErr):
		out.ExitCode = exitErr.ExitCode()
		return out, nil
	default:
		return out, fmt.Errorf("run %q: %w", inv.Argv, err)
	}
}
