// Command cfp-conform canonicalizes and fingerprints JSON values and checks
// fingerprint implementations against a shared vector suite.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/lattice-substrate/canon-fingerprint/cfperr"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// rootOptions holds the global flags.
type rootOptions struct {
	verbose bool
}

func (o *rootOptions) logger(stderr io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
}

// run executes the CLI and returns the process exit code.
func run(args []string, stdin io.Reader, stdout io.Writer, stderr io.Writer) int {
	root := newRootCommand()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(context.Background())
	if err == nil {
		return cfperr.ExitSuccess
	}
	return writeClassifiedError(stderr, err)
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "cfp-conform",
		Short:         "Deterministic JSON fingerprints and cross-implementation conformance",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cfperr.Newf(cfperr.CLIUsage, "no command given (see cfp-conform --help)")
		},
	}
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging on stderr")
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return cfperr.Wrap(cfperr.CLIUsage, -1, "invalid flags", err)
	})

	cmd.AddCommand(
		newRunCommand(opts),
		newCanonicalizeCommand(),
		newVerifyCommand(),
		newFingerprintCommand(),
		newCheckSuiteCommand(opts),
		newHistoryCommand(),
	)
	return cmd
}

// writeClassifiedError reports err on stderr and returns its exit code. Every
// error this command raises itself is classified; anything else came from
// argument handling in cobra and is a usage error.
func writeClassifiedError(stderr io.Writer, err error) int {
	if _, ok := cfperr.ClassOf(err); !ok {
		err = cfperr.Wrap(cfperr.CLIUsage, -1, "usage", err)
	}
	if _, werr := fmt.Fprintf(stderr, "error: %v\n", err); werr != nil {
		return cfperr.ExitInternal
	}
	return cfperr.ExitCodeOf(err)
}

// exactInputArgs accepts at most one positional input path.
func exactInputArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 1 {
		return cfperr.Newf(cfperr.CLIUsage, "multiple input files specified")
	}
	return nil
}
