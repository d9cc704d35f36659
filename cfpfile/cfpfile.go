// Package cfpfile reads and writes canonical snapshot files.
//
// A snapshot file holds the canonical form of one value followed by exactly
// one LF byte:
//
//	file = canonical(value) || 0x0A
//
// File-level constraints (single trailing LF, no BOM, no CR, valid UTF-8) are
// checked before the body is parsed, so a damaged file is reported as such
// rather than as a JSON error.
package cfpfile

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/lattice-substrate/canon-fingerprint/cfp"
	"github.com/lattice-substrate/canon-fingerprint/cfperr"
	"github.com/lattice-substrate/canon-fingerprint/cfphash"
	"github.com/lattice-substrate/canon-fingerprint/cfptoken"
)

// Encode appends the trailing LF to canonical bytes.
func Encode(canonical []byte) []byte {
	out := make([]byte, len(canonical)+1)
	copy(out, canonical)
	out[len(canonical)] = '\n'
	return out
}

// Verify checks that data is a snapshot file and returns the parsed value.
// File-level violations and a body that differs from its canonical form are
// NOT_CANONICAL errors; parse failures keep their own class.
func Verify(data []byte) (*cfptoken.Value, error) {
	body, err := checkFile(data)
	if err != nil {
		return nil, err
	}
	v, err := cfptoken.Parse(body)
	if err != nil {
		return nil, err
	}
	canonical, err := cfp.Canonicalize(v)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(body, canonical) {
		return nil, cfperr.Newf(cfperr.NotCanonical, "snapshot body differs from its canonical form")
	}
	return v, nil
}

// VerifyReader reads all of r and verifies it as a snapshot file.
func VerifyReader(r io.Reader) (*cfptoken.Value, error) {
	data, err := io.ReadAll(io.LimitReader(r, int64(cfptoken.DefaultMaxInputSize)+2))
	if err != nil {
		return nil, cfperr.Wrap(cfperr.InternalIO, -1, "read snapshot", err)
	}
	return Verify(data)
}

// Read loads and verifies the snapshot at path and returns its value and the
// fingerprint of its canonical body.
func Read(path string, alg cfphash.Algorithm) (*cfptoken.Value, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", cfperr.Wrap(cfperr.InternalIO, -1, fmt.Sprintf("read snapshot %q", path), err)
	}
	v, err := Verify(data)
	if err != nil {
		return nil, "", err
	}
	fp, err := cfphash.Sum(alg, data[:len(data)-1])
	if err != nil {
		return nil, "", err
	}
	return v, fp, nil
}

// Write canonicalizes v and writes it to path as a snapshot file, returning
// the fingerprint of the canonical body.
func Write(path string, alg cfphash.Algorithm, v *cfptoken.Value) (string, error) {
	canonical, err := cfp.Canonicalize(v)
	if err != nil {
		return "", err
	}
	fp, err := cfphash.Sum(alg, canonical)
	if err != nil {
		return "", err
	}
	if err := WriteAtomic(path, Encode(canonical)); err != nil {
		return "", err
	}
	return fp, nil
}

// WriteAtomic writes data to path through a temp file in the same directory
// and a rename. On failure no file is left at path and the temp file is
// removed.
func WriteAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".cfp-*.tmp")
	if err != nil {
		return cfperr.Wrap(cfperr.InternalIO, -1, "create temp file", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return cfperr.Wrap(cfperr.InternalIO, -1, "write temp file", err)
	}
	if err = tmp.Sync(); err != nil {
		return cfperr.Wrap(cfperr.InternalIO, -1, "sync temp file", err)
	}
	if err = tmp.Close(); err != nil {
		return cfperr.Wrap(cfperr.InternalIO, -1, "close temp file", err)
	}
	if err = os.Rename(tmpPath, path); err != nil {
		return cfperr.Wrap(cfperr.InternalIO, -1, "rename temp file", err)
	}
	syncDir(dir)
	return nil
}

// syncDir fsyncs dir so the rename survives a crash. Failures are ignored.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

// checkFile enforces the file-level constraints and returns the body.
func checkFile(data []byte) ([]byte, error) {
	switch {
	case len(data) == 0:
		return nil, violation(0, "file is empty")
	case data[len(data)-1] != '\n':
		return nil, violation(len(data), "missing trailing LF")
	case len(data) >= 2 && data[len(data)-2] == '\n':
		return nil, violation(len(data)-1, "multiple trailing LFs")
	case len(data) == 1:
		return nil, violation(0, "empty body")
	}
	body := data[:len(data)-1]
	if bytes.HasPrefix(body, []byte{0xEF, 0xBB, 0xBF}) {
		return nil, violation(0, "UTF-8 BOM")
	}
	if i := bytes.IndexByte(data, '\r'); i >= 0 {
		return nil, violation(i, "CR byte")
	}
	if i := bytes.IndexByte(body, '\n'); i >= 0 {
		return nil, violation(i, "LF byte in body")
	}
	if !utf8.Valid(body) {
		return nil, violation(invalidUTF8Offset(body), "invalid UTF-8")
	}
	return body, nil
}

func violation(offset int, msg string) error {
	return cfperr.New(cfperr.NotCanonical, offset, "snapshot file: "+msg)
}

func invalidUTF8Offset(data []byte) int {
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size <= 1 {
			return i
		}
		i += size
	}
	return len(data)
}
