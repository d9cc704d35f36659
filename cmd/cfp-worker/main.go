// Command cfp-worker is the reference out-of-process fingerprint
// implementation.
//
// It reads one JSON value from the file named by its last argument, or from
// stdin when the argument is absent or "-", and prints the value's 64-character
// hex fingerprint on a single line. Exit status is 0 on success, 2 when the
// input is not a fingerprintable value and 10 on internal failure.
//
//	cfp-worker [--hash sha256|blake3] [file|-]
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/lattice-substrate/canon-fingerprint/cfperr"
	"github.com/lattice-substrate/canon-fingerprint/cfphash"
	"github.com/lattice-substrate/canon-fingerprint/cfptoken"
)

const usage = "usage: cfp-worker [--hash sha256|blake3] [file|-]"

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout io.Writer, stderr io.Writer) int {
	opts, err := parseArgs(args)
	if err != nil {
		return fail(stderr, err)
	}
	if opts.help {
		if _, err := fmt.Fprintln(stderr, usage); err != nil {
			return cfperr.ExitInternal
		}
		return cfperr.ExitSuccess
	}

	input, err := readInput(opts.input, stdin)
	if err != nil {
		return fail(stderr, err)
	}
	v, err := cfptoken.Parse(input)
	if err != nil {
		return fail(stderr, err)
	}
	fp, err := cfphash.Compute(opts.alg, v)
	if err != nil {
		return fail(stderr, err)
	}
	if _, err := fmt.Fprintln(stdout, fp); err != nil {
		return fail(stderr, cfperr.Wrap(cfperr.InternalIO, -1, "writing fingerprint", err))
	}
	return cfperr.ExitSuccess
}

type workerOptions struct {
	alg   cfphash.Algorithm
	input string
	help  bool
}

func parseArgs(args []string) (workerOptions, error) {
	opts := workerOptions{alg: cfphash.Default}
	var positional []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--help" || arg == "-h":
			opts.help = true
		case arg == "--hash":
			if i+1 >= len(args) {
				return workerOptions{}, cfperr.Newf(cfperr.CLIUsage, "flag --hash requires a value")
			}
			i++
			if err := opts.setHash(args[i]); err != nil {
				return workerOptions{}, err
			}
		case strings.HasPrefix(arg, "--hash="):
			if err := opts.setHash(strings.TrimPrefix(arg, "--hash=")); err != nil {
				return workerOptions{}, err
			}
		case arg == "-":
			positional = append(positional, arg)
		case strings.HasPrefix(arg, "-"):
			return workerOptions{}, cfperr.Newf(cfperr.CLIUsage, "unknown option: %s", arg)
		default:
			positional = append(positional, arg)
		}
	}
	if len(positional) > 1 {
		return workerOptions{}, cfperr.Newf(cfperr.CLIUsage, "multiple input files specified")
	}
	if len(positional) == 1 {
		opts.input = positional[0]
	}
	return opts, nil
}

func (o *workerOptions) setHash(name string) error {
	alg, err := cfphash.ParseAlgorithm(name)
	if err != nil {
		return cfperr.Wrap(cfperr.CLIUsage, -1, "invalid --hash", err)
	}
	o.alg = alg
	return nil
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	r := stdin
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, cfperr.Wrap(cfperr.CLIUsage, -1, fmt.Sprintf("open %q", path), err)
		}
		defer func() {
			_ = f.Close()
		}()
		r = f
	}
	data, err := io.ReadAll(io.LimitReader(r, int64(cfptoken.DefaultMaxInputSize)+1))
	if err != nil {
		return nil, cfperr.Wrap(cfperr.InternalIO, -1, "read input", err)
	}
	if len(data) > cfptoken.DefaultMaxInputSize {
		return nil, cfperr.Newf(cfperr.BoundExceeded, "input exceeds maximum size %d bytes", cfptoken.DefaultMaxInputSize)
	}
	return data, nil
}

// fail writes err to stderr and maps it to the worker's exit codes: internal
// failures keep 10, every other classified failure means the input was
// rejected.
func fail(stderr io.Writer, err error) int {
	code := cfperr.ExitCodeOf(err)
	if code != cfperr.ExitInternal {
		code = cfperr.ExitInvalid
	}
	if _, werr := fmt.Fprintf(stderr, "error: %v\n", err); werr != nil {
		return cfperr.ExitInternal
	}
	return code
}
