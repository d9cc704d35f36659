package cfpfile_test

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lattice-substrate/canon-fingerprint/cfperr"
	"github.com/lattice-substrate/canon-fingerprint/cfpfile"
	"github.com/lattice-substrate/canon-fingerprint/cfphash"
	"github.com/lattice-substrate/canon-fingerprint/cfptoken"
)

func TestEncodeAppendsLF(t *testing.T) {
	if got := cfpfile.Encode([]byte(`{"a":1}`)); string(got) != "{\"a\":1}\n" {
		t.Fatalf("got %q", got)
	}
}

func TestVerifyAccepts(t *testing.T) {
	for _, in := range []string{"{\"a\":1}\n", "42\n", "\"x\"\n", "[]\n"} {
		if _, err := cfpfile.Verify([]byte(in)); err != nil {
			t.Fatalf("Verify(%q): %v", in, err)
		}
	}
}

func TestVerifyFileViolations(t *testing.T) {
	cases := map[string][]byte{
		"empty":          {},
		"missing LF":     []byte("{}"),
		"two LFs":        []byte("{}\n\n"),
		"empty body":     []byte("\n"),
		"BOM":            {0xEF, 0xBB, 0xBF, '{', '}', '\n'},
		"CR":             []byte("{}\r\n"),
		"interior LF":    []byte("[1,\n2]\n"),
		"invalid UTF-8":  {'"', 0xFF, 0xFE, '"', '\n'},
		"BOM before dup": append([]byte{0xEF, 0xBB, 0xBF}, []byte("{\"a\":1,\"a\":2}\n")...),
	}
	for name, in := range cases {
		_, err := cfpfile.Verify(in)
		var ce *cfperr.Error
		if !errors.As(err, &ce) || ce.Class != cfperr.NotCanonical || !strings.Contains(ce.Message, "snapshot file") {
			t.Errorf("%s: expected file violation, got %v", name, err)
		}
	}
}

func TestVerifyBodyErrors(t *testing.T) {
	cases := []struct {
		in    string
		class cfperr.FailureClass
	}{
		{"{\"a\":1,\"a\":2}\n", cfperr.DuplicateKey},
		{"\"\\uD800\"\n", cfperr.InvalidUTF8},
		{"{\"b\":1,\"a\":2}\n", cfperr.NotCanonical},
		{"-0\n", cfperr.NotCanonical},
		{"1.0\n", cfperr.NotCanonical},
		{"{ }\n", cfperr.NotCanonical},
	}
	for _, tc := range cases {
		_, err := cfpfile.Verify([]byte(tc.in))
		if !cfperr.Is(err, tc.class) {
			t.Errorf("Verify(%q): want %s, got %v", tc.in, tc.class, err)
		}
	}
}

func TestWriteAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.json")
	v, err := cfptoken.Parse([]byte(`{"b":1,"a":2}`))
	if err != nil {
		t.Fatal(err)
	}

	fp, err := cfpfile.Write(path, cfphash.SHA256, v)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if fp != "d3626ac30a87e6f7a6428233b3c68299976865fa5508e4267c5415c76af7a772" {
		t.Fatalf("fingerprint %s", fp)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "{\"a\":2,\"b\":1}\n" {
		t.Fatalf("contents %q", data)
	}

	got, readFP, err := cfpfile.Read(path, cfphash.SHA256)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if readFP != fp || got.Kind != cfptoken.KindObject {
		t.Fatalf("Read returned %v %s", got.Kind, readFP)
	}
}

func TestWriteRejectsNonFinite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.json")
	v := cfptoken.Array(cfptoken.Number(1), cfptoken.Number(math.NaN()))
	if _, err := cfpfile.Write(path, cfphash.SHA256, &v); !cfperr.Is(err, cfperr.NonFiniteNumber) {
		t.Fatalf("expected NON_FINITE_NUMBER, got %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("no file should be written, stat err=%v", err)
	}
}

func TestWriteAtomicLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")
	if err := cfpfile.WriteAtomic(path, []byte("{}\n")); err != nil {
		t.Fatal(err)
	}
	if err := cfpfile.WriteAtomic(path, []byte("[]\n")); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "out.json" {
		t.Fatalf("unexpected directory contents: %v", entries)
	}
}

func TestWriteAtomicMissingDir(t *testing.T) {
	err := cfpfile.WriteAtomic(filepath.Join(t.TempDir(), "absent", "out.json"), []byte("{}\n"))
	if !cfperr.Is(err, cfperr.InternalIO) {
		t.Fatalf("expected INTERNAL_IO, got %v", err)
	}
}

func TestVerifyReader(t *testing.T) {
	if _, err := cfpfile.VerifyReader(strings.NewReader("{\"a\":1}\n")); err != nil {
		t.Fatalf("VerifyReader: %v", err)
	}
}
