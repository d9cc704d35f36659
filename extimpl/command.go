// Package extimpl runs fingerprint implementations as subprocesses.
//
// The subprocess receives the vector input as JSON, either on stdin or in a
// temporary file whose path is appended to its argv. It must print exactly
// one line holding the 64-character hex fingerprint and exit 0.
package extimpl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/lattice-substrate/canon-fingerprint/cfp"
	"github.com/lattice-substrate/canon-fingerprint/cfperr"
	"github.com/lattice-substrate/canon-fingerprint/cfphash"
	"github.com/lattice-substrate/canon-fingerprint/cfptoken"
)

// InputMode selects how the input reaches the subprocess.
type InputMode string

const (
	InputStdin InputMode = "stdin"
	InputFile  InputMode = "file"
)

// ParseInputMode resolves a mode name. The empty string selects InputStdin.
func ParseInputMode(s string) (InputMode, error) {
	switch m := InputMode(s); m {
	case "":
		return InputStdin, nil
	case InputStdin, InputFile:
		return m, nil
	default:
		return "", cfperr.Newf(cfperr.Config, "unknown input mode %q (want %s or %s)", s, InputStdin, InputFile)
	}
}

// maxStderr caps the stderr text carried in a failure.
const maxStderr = 512

// Command is an out-of-process implementation. It satisfies
// conformance.Implementation.
type Command struct {
	Argv   []string
	Env    map[string]string
	Input  InputMode
	Dir    string
	Runner CommandRunner // nil means OSRunner{}
}

// Compute serializes v, runs the command and returns the fingerprint it
// printed. A deadline hit is EXTERNAL_TIMEOUT; every other failure of the
// subprocess is EXTERNAL_FAILURE.
func (c *Command) Compute(ctx context.Context, v *cfptoken.Value) (string, error) {
	if len(c.Argv) == 0 {
		return "", cfperr.Newf(cfperr.Config, "command has no argv")
	}
	payload, err := cfp.Canonicalize(v)
	if err != nil {
		return "", err
	}

	inv := Invocation{
		Argv: append([]string(nil), c.Argv...),
		Env:  c.Env,
		Dir:  c.Dir,
	}
	switch c.Input {
	case "", InputStdin:
		inv.Stdin = payload
	case InputFile:
		path, cleanup, err := writeTemp(payload)
		if err != nil {
			return "", err
		}
		defer cleanup()
		inv.Argv = append(inv.Argv, path)
	default:
		return "", cfperr.Newf(cfperr.Config, "unknown input mode %q", string(c.Input))
	}

	runner := c.Runner
	if runner == nil {
		runner = OSRunner{}
	}
	out, err := runner.Run(ctx, inv)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", cfperr.Wrap(cfperr.ExternalTimeout, -1, fmt.Sprintf("command %q did not finish before its deadline", c.Argv[0]), ctx.Err())
	}
	if err != nil {
		return "", cfperr.Wrap(cfperr.ExternalFailure, -1, fmt.Sprintf("command %q", c.Argv[0]), err)
	}
	if out.ExitCode != 0 {
		return "", cfperr.Newf(cfperr.ExternalFailure, "command %q exited with status %d%s", c.Argv[0], out.ExitCode, stderrSuffix(out.Stderr))
	}
	return parseOutput(c.Argv[0], out)
}

func parseOutput(name string, out Output) (string, error) {
	text := strings.TrimSuffix(string(out.Stdout), "\n")
	text = strings.TrimSuffix(text, "\r")
	if strings.ContainsAny(text, "\r\n") {
		return "", cfperr.Newf(cfperr.ExternalFailure, "command %q wrote more than one line%s", name, stderrSuffix(out.Stderr))
	}
	if !cfphash.Valid(text) {
		return "", cfperr.Newf(cfperr.ExternalFailure, "command %q wrote %q, want a 64-character lowercase hex fingerprint%s", name, truncate(text), stderrSuffix(out.Stderr))
	}
	return text, nil
}

func writeTemp(payload []byte) (string, func(), error) {
	f, err := os.CreateTemp("", "cfp-input-*.json")
	if err != nil {
		return "", nil, cfperr.Wrap(cfperr.InternalIO, -1, "create input file", err)
	}
	cleanup := func() { _ = os.Remove(f.Name()) }
	if _, err := f.Write(payload); err != nil {
		_ = f.Close()
		cleanup()
		return "", nil, cfperr.Wrap(cfperr.InternalIO, -1, "write input file", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, cfperr.Wrap(cfperr.InternalIO, -1, "close input file", err)
	}
	return f.Name(), cleanup, nil
}

func stderrSuffix(stderr []byte) string {
	msg := string(bytes.TrimSpace(stderr))
	if msg == "" {
		return ""
	}
	return ": " + truncate(msg)
}

func truncate(s string) string {
	if len(s) <= maxStderr {
		return s
	}
	return s[:maxStderr] + "..."
}
