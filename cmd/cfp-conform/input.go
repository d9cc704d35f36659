package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/lattice-substrate/canon-fingerprint/cfperr"
)

// readInput reads the single positional input, or stdin when it is absent or
// "-", refusing anything larger than maxInputSize.
func readInput(positional []string, stdin io.Reader, maxInputSize int) ([]byte, error) {
	if len(positional) == 0 || positional[0] == "-" {
		data, err := readBounded(stdin, maxInputSize)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return data, nil
	}

	f, err := os.Open(positional[0])
	if err != nil {
		return nil, cfperr.Wrap(cfperr.CLIUsage, -1, fmt.Sprintf("read file %q", positional[0]), err)
	}
	defer func() {
		_ = f.Close()
	}()

	data, err := readBounded(f, maxInputSize)
	if err != nil {
		return nil, fmt.Errorf("read file %q: %w", positional[0], err)
	}
	return data, nil
}

func readBounded(r io.Reader, maxInputSize int) ([]byte, error) {
	lr := io.LimitReader(r, int64(maxInputSize)+1)
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, cfperr.Wrap(cfperr.InternalIO, -1, "read input", err)
	}
	if len(data) > maxInputSize {
		return nil, cfperr.Newf(cfperr.BoundExceeded, "input exceeds maximum size %d bytes", maxInputSize)
	}
	return data, nil
}

func writeOutput(w io.Writer, data []byte) error {
	if _, err := w.Write(data); err != nil {
		return cfperr.Wrap(cfperr.InternalIO, -1, "writing output", err)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
