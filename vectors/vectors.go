// Package vectors loads and validates conformance vector suites.
//
// A suite file is a JSON array of objects:
//
//	[
//	  {
//	    "name": "simple_object",
//	    "input": {"b": 1, "a": 2},
//	    "expected_ts_fingerprint": "<64 lowercase hex>",
//	    "expected_rust_fingerprint": null,
//	    "notes": "optional free text"
//	  }
//	]
//
// Each expected_<impl>_fingerprint member records what implementation impl
// must produce for input. A null expectation marks the implementation as
// pending for that vector. Every other member name is rejected.
package vectors

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/lattice-substrate/canon-fingerprint/cfp"
	"github.com/lattice-substrate/canon-fingerprint/cfphash"
	"github.com/lattice-substrate/canon-fingerprint/cfptoken"
)

const (
	expectedPrefix = "expected_"
	expectedSuffix = "_fingerprint"
)

// Options bounds suite parsing. The zero value applies the cfptoken defaults.
type Options struct {
	MaxDepth     int
	MaxInputSize int
}

func (o *Options) token() *cfptoken.Options {
	if o == nil {
		return nil
	}
	return &cfptoken.Options{MaxDepth: o.MaxDepth, MaxInputSize: o.MaxInputSize}
}

func (o *Options) maxInputSize() int {
	if o != nil && o.MaxInputSize > 0 {
		return o.MaxInputSize
	}
	return cfptoken.DefaultMaxInputSize
}

// Vector is one named test case.
type Vector struct {
	Index    int
	Name     string
	Input    cfptoken.Value
	Expected map[string]string // implementation name -> fingerprint
	Pending  []string          // implementations with a null expectation, sorted
	Notes    string
}

func (v Vector) clone() Vector {
	out := v
	out.Input = v.Input.Clone()
	out.Expected = make(map[string]string, len(v.Expected))
	for k, fp := range v.Expected {
		out.Expected[k] = fp
	}
	out.Pending = append([]string(nil), v.Pending...)
	return out
}

// ExpectedImplementations returns the names with a concrete expectation, sorted.
func (v Vector) ExpectedImplementations() []string {
	names := make([]string, 0, len(v.Expected))
	for k := range v.Expected {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Warning is an advisory finding that does not fail the load.
type Warning struct {
	Index   int
	Name    string
	Path    string
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("vector %d (%q) at %s: %s", w.Index, w.Name, w.Path, w.Message)
}

// Suite is an immutable, validated vector suite.
type Suite struct {
	source   string
	vectors  []Vector
	digest   string
	warnings []Warning
}

// Source returns the path the suite was loaded from, or "" for in-memory data.
func (s *Suite) Source() string { return s.source }

// Len returns the number of vectors.
func (s *Suite) Len() int { return len(s.vectors) }

// Vector returns a copy of the i-th vector.
func (s *Suite) Vector(i int) Vector { return s.vectors[i].clone() }

// Vectors returns copies of all vectors in suite order.
func (s *Suite) Vectors() []Vector {
	out := make([]Vector, len(s.vectors))
	for i := range s.vectors {
		out[i] = s.vectors[i].clone()
	}
	return out
}

// Digest is the SHA-256 fingerprint of the canonical form of the whole suite
// document. Reformatting the file or reordering object members leaves it
// unchanged.
func (s *Suite) Digest() string { return s.digest }

// Warnings returns the advisory findings collected during load.
func (s *Suite) Warnings() []Warning { return append([]Warning(nil), s.warnings...) }

// Implementations returns the sorted union of every implementation named by
// any vector, including pending ones.
func (s *Suite) Implementations() []string {
	set := map[string]struct{}{}
	for _, v := range s.vectors {
		for k := range v.Expected {
			set[k] = struct{}{}
		}
		for _, k := range v.Pending {
			set[k] = struct{}{}
		}
	}
	names := make([]string, 0, len(set))
	for k := range set {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// LoadFile reads and validates the suite at path.
func LoadFile(path string, opts *Options) (*Suite, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{Index: -1, Reason: fmt.Sprintf("open %s", path), Cause: err}
	}
	defer func() {
		_ = f.Close()
	}()
	s, err := Load(f, opts)
	if err != nil {
		return nil, err
	}
	s.source = path
	return s, nil
}

// Load reads a suite from r, bounded by the configured maximum input size.
func Load(r io.Reader, opts *Options) (*Suite, error) {
	limit := opts.maxInputSize()
	data, err := io.ReadAll(io.LimitReader(r, int64(limit)+1))
	if err != nil {
		return nil, &LoadError{Index: -1, Reason: "read suite", Cause: err}
	}
	if len(data) > limit {
		return nil, &LoadError{Index: -1, Reason: fmt.Sprintf("suite exceeds maximum size %d bytes", limit)}
	}
	return Parse(data, opts)
}

// Parse validates a suite held in memory.
func Parse(data []byte, opts *Options) (*Suite, error) {
	doc, err := cfptoken.ParseWithOptions(data, opts.token())
	if err != nil {
		return nil, &LoadError{Index: -1, Reason: "parse suite", Cause: err}
	}
	if doc.Kind != cfptoken.KindArray {
		return nil, &LoadError{Index: -1, Reason: fmt.Sprintf("suite must be a JSON array, got %s", doc.Kind)}
	}
	if len(doc.Elems) == 0 {
		return nil, &LoadError{Index: -1, Reason: "suite contains no vectors"}
	}

	canonical, err := cfp.CanonicalizeWithOptions(doc, &cfp.Options{MaxDepth: depthFor(opts)})
	if err != nil {
		return nil, &LoadError{Index: -1, Reason: "canonicalize suite", Cause: err}
	}

	s := &Suite{
		vectors: make([]Vector, 0, len(doc.Elems)),
		digest:  cfphash.Fingerprint(canonical),
	}
	names := make(map[string]int, len(doc.Elems))
	for i := range doc.Elems {
		v, err := parseVector(i, &doc.Elems[i])
		if err != nil {
			return nil, err
		}
		if first, dup := names[v.Name]; dup {
			return nil, &LoadError{Index: i, Name: v.Name, Reason: fmt.Sprintf("duplicate vector name (first at index %d)", first)}
		}
		names[v.Name] = i
		// The input must canonicalize on its own; structural problems surface
		// here instead of mid-run.
		if _, err := cfp.Canonicalize(&v.Input); err != nil {
			return nil, &LoadError{Index: i, Name: v.Name, Reason: "input does not canonicalize", Cause: err}
		}
		s.warnings = appendNFCWarnings(s.warnings, v, "input", &v.Input)
		s.vectors = append(s.vectors, v)
	}
	return s, nil
}

func depthFor(opts *Options) int {
	if opts != nil && opts.MaxDepth > 0 {
		return opts.MaxDepth
	}
	return cfp.DefaultMaxDepth
}

func parseVector(index int, elem *cfptoken.Value) (Vector, error) {
	if elem.Kind != cfptoken.KindObject {
		return Vector{}, &LoadError{Index: index, Reason: fmt.Sprintf("vector must be an object, got %s", elem.Kind)}
	}
	v := Vector{Index: index, Expected: map[string]string{}}
	var haveName, haveInput bool

	// Resolve the name first so every later error can cite it.
	for _, m := range elem.Members {
		if m.Key != "name" {
			continue
		}
		if m.Value.Kind != cfptoken.KindString || m.Value.Str == "" {
			return Vector{}, &LoadError{Index: index, Reason: "name must be a non-empty string"}
		}
		v.Name = m.Value.Str
		haveName = true
	}
	if !haveName {
		return Vector{}, &LoadError{Index: index, Reason: "missing name"}
	}

	for _, m := range elem.Members {
		switch {
		case m.Key == "name":
		case m.Key == "input":
			v.Input = m.Value.Clone()
			haveInput = true
		case m.Key == "notes" || m.Key == "description":
			if m.Value.Kind != cfptoken.KindString {
				return Vector{}, &LoadError{Index: index, Name: v.Name, Reason: fmt.Sprintf("%s must be a string", m.Key)}
			}
			if v.Notes != "" {
				v.Notes += "\n"
			}
			v.Notes += m.Value.Str
		case isExpectationKey(m.Key):
			impl := strings.TrimSuffix(strings.TrimPrefix(m.Key, expectedPrefix), expectedSuffix)
			if !ValidImplementationName(impl) {
				return Vector{}, &LoadError{Index: index, Name: v.Name, Reason: fmt.Sprintf("invalid implementation name in %q", m.Key)}
			}
			switch {
			case m.Value.Kind == cfptoken.KindNull:
				v.Pending = append(v.Pending, impl)
			case m.Value.Kind == cfptoken.KindString && cfphash.Valid(m.Value.Str):
				v.Expected[impl] = m.Value.Str
			default:
				return Vector{}, &LoadError{Index: index, Name: v.Name, Reason: fmt.Sprintf("%s must be a 64-character lowercase hex string or null", m.Key)}
			}
		default:
			return Vector{}, &LoadError{Index: index, Name: v.Name, Reason: fmt.Sprintf("unknown member %q", m.Key)}
		}
	}
	if !haveInput {
		return Vector{}, &LoadError{Index: index, Name: v.Name, Reason: "missing input"}
	}
	sort.Strings(v.Pending)
	return v, nil
}

// ValidImplementationName reports whether name can appear between
// "expected_" and "_fingerprint": one or more of [a-z0-9_-], starting with a
// letter or digit.
func ValidImplementationName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		case (c == '_' || c == '-') && i > 0:
		default:
			return false
		}
	}
	return true
}

func isExpectationKey(key string) bool {
	return len(key) > len(expectedPrefix)+len(expectedSuffix) &&
		strings.HasPrefix(key, expectedPrefix) && strings.HasSuffix(key, expectedSuffix)
}

// ExpectationKey returns the suite member name holding impl's fingerprint.
func ExpectationKey(impl string) string {
	return expectedPrefix + impl + expectedSuffix
}

func appendNFCWarnings(ws []Warning, vec Vector, path string, v *cfptoken.Value) []Warning {
	switch v.Kind {
	case cfptoken.KindString:
		if !norm.NFC.IsNormalString(v.Str) {
			ws = append(ws, Warning{Index: vec.Index, Name: vec.Name, Path: path, Message: "string is not NFC normalized"})
		}
	case cfptoken.KindArray:
		for i := range v.Elems {
			ws = appendNFCWarnings(ws, vec, fmt.Sprintf("%s[%d]", path, i), &v.Elems[i])
		}
	case cfptoken.KindObject:
		for i := range v.Members {
			m := &v.Members[i]
			p := fmt.Sprintf("%s.%q", path, m.Key)
			if !norm.NFC.IsNormalString(m.Key) {
				ws = append(ws, Warning{Index: vec.Index, Name: vec.Name, Path: p, Message: "key is not NFC normalized"})
			}
			ws = appendNFCWarnings(ws, vec, p, &m.Value)
		}
	}
	return ws
}
