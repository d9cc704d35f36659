// Command cfp-gate runs the repository's release gates in order and stops at
// the first failure.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/lattice-substrate/canon-fingerprint/extimpl"
)

const defaultSuite = "vectors/testdata/suite.json"

type gateStep struct {
	label string
	argv  []string
}

func gateSteps(suite string) []gateStep {
	return []gateStep{
		{label: "go vet", argv: []string{"go", "vet", "./..."}},
		{label: "unit tests", argv: []string{"go", "test", "./...", "-count=1", "-timeout=20m"}},
		{label: "race tests", argv: []string{"go", "test", "./...", "-race", "-count=1", "-timeout=25m"}},
		{label: "cyberphone differential", argv: []string{"go", "test", "./cfpfloat", "./conformance", "-run", "Cyberphone|Engines", "-count=1", "-v"}},
		{label: "canonical fuzz smoke", argv: []string{"go", "test", "./cfp", "-run", "^$", "-fuzz", "FuzzCanonicalIdempotent", "-fuzztime", "15s"}},
		{label: "vector suite check", argv: []string{"go", "run", "./cmd/cfp-conform", "check-suite", "--suite", suite}},
		{label: "vector suite run", argv: []string{"go", "run", "./cmd/cfp-conform", "run", "--suite", suite, "--subset", "ts"}},
	}
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr, extimpl.OSRunner{}))
}

func run(args []string, stdout, stderr io.Writer, runner extimpl.CommandRunner) int {
	suite := defaultSuite
	for i := 0; i < len(args); i++ {
		switch arg := args[i]; {
		case arg == "--help" || arg == "-h":
			if err := writeUsage(stdout); err != nil {
				return 1
			}
			return 0
		case arg == "--suite" && i+1 < len(args):
			i++
			suite = args[i]
		case strings.HasPrefix(arg, "--suite="):
			suite = strings.TrimPrefix(arg, "--suite=")
		default:
			if err := writef(stderr, "error: unknown argument %q\n", arg); err != nil {
				return 1
			}
			if err := writeUsage(stderr); err != nil {
				return 1
			}
			return 2
		}
	}

	ctx := context.Background()
	steps := gateSteps(suite)
	for i, step := range steps {
		if err := writef(stdout, "[%d/%d] %s\n", i+1, len(steps), step.label); err != nil {
			return 1
		}
		out, err := runner.Run(ctx, extimpl.Invocation{Argv: step.argv})
		if _, werr := stdout.Write(out.Stdout); werr != nil {
			return 1
		}
		if _, werr := stderr.Write(out.Stderr); werr != nil {
			return 1
		}
		if err == nil && out.ExitCode != 0 {
			err = fmt.Errorf("%s exited with status %d", strings.Join(step.argv, " "), out.ExitCode)
		}
		if err != nil {
			if writeErr := writef(stderr, "gate failed: %s: %v\n", step.label, err); writeErr != nil {
				return 1
			}
			return 1
		}
	}

	if err := writef(stdout, "all gates passed\n"); err != nil {
		return 1
	}
	return 0
}

func writeUsage(w io.Writer) error {
	return writef(w, "usage: go run ./cmd/cfp-gate [--suite FILE] [--help]\n"+
		"runs: vet, tests, race, cyberphone differential, fuzz smoke, vector suite check and run\n"+
		"--suite defaults to %s\n", defaultSuite)
}

func writef(w io.Writer, format string, args ...any) error {
	if _, err := fmt.Fprintf(w, format, args...); err != nil {
		return fmt.Errorf("write stream: %w", err)
	}
	return nil
}
