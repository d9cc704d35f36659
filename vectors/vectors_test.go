package vectors_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-substrate/canon-fingerprint/cfperr"
	"github.com/lattice-substrate/canon-fingerprint/cfphash"
	"github.com/lattice-substrate/canon-fingerprint/cfptoken"
	"github.com/lattice-substrate/canon-fingerprint/vectors"
)

func TestLoadFile(t *testing.T) {
	s, err := vectors.LoadFile("testdata/suite.json", nil)
	require.NoError(t, err)

	require.Equal(t, 7, s.Len())
	assert.Equal(t, "testdata/suite.json", s.Source())
	assert.Equal(t, []string{"rust", "ts"}, s.Implementations())
	assert.True(t, cfphash.Valid(s.Digest()))
	assert.Empty(t, s.Warnings())

	names := make([]string, 0, s.Len())
	for _, v := range s.Vectors() {
		names = append(names, v.Name)
	}
	assert.Equal(t, []string{
		"key_order", "nested_objects", "empty_object", "mixed_array",
		"number_grammar", "integer_valued_double", "string_one",
	}, names)

	first := s.Vector(0)
	assert.Equal(t, 0, first.Index)
	assert.Equal(t, []string{"rust"}, first.Pending)
	assert.Equal(t, []string{"ts"}, first.ExpectedImplementations())
	assert.Equal(t, "members are sorted by key", first.Notes)

	second := s.Vector(1)
	assert.Equal(t, []string{"rust", "ts"}, second.ExpectedImplementations())
	assert.Empty(t, second.Pending)

	assert.Equal(t, "array order is preserved", s.Vector(3).Notes)
}

func TestExpectationsMatchLocalComputation(t *testing.T) {
	s, err := vectors.LoadFile("testdata/suite.json", nil)
	require.NoError(t, err)
	for _, v := range s.Vectors() {
		got, err := cfphash.Compute(cfphash.SHA256, &v.Input)
		require.NoError(t, err, v.Name)
		assert.Equal(t, v.Expected["ts"], got, v.Name)
	}
}

func TestSuiteIsImmutable(t *testing.T) {
	s, err := vectors.LoadFile("testdata/suite.json", nil)
	require.NoError(t, err)

	v := s.Vector(0)
	v.Name = "changed"
	v.Expected["ts"] = strings.Repeat("0", 64)
	v.Input.Members[0].Key = "changed"
	v.Pending[0] = "changed"

	again := s.Vector(0)
	assert.Equal(t, "key_order", again.Name)
	assert.Equal(t, "d3626ac30a87e6f7a6428233b3c68299976865fa5508e4267c5415c76af7a772", again.Expected["ts"])
	assert.Equal(t, "b", again.Input.Members[0].Key)
	assert.Equal(t, []string{"rust"}, again.Pending)
}

func TestDigestIgnoresFormatting(t *testing.T) {
	a, err := vectors.Parse([]byte(`[{"name":"a","input":{"x":1,"y":2}}]`), nil)
	require.NoError(t, err)
	b, err := vectors.Parse([]byte("[\n  { \"input\": {\"y\": 2, \"x\": 1.0},\n    \"name\": \"a\" }\n]\n"), nil)
	require.NoError(t, err)
	c, err := vectors.Parse([]byte(`[{"name":"a","input":{"x":1,"y":3}}]`), nil)
	require.NoError(t, err)

	assert.Equal(t, a.Digest(), b.Digest())
	assert.NotEqual(t, a.Digest(), c.Digest())
}

func TestParseErrors(t *testing.T) {
	fp := strings.Repeat("ab", 32)
	cases := []struct {
		name   string
		in     string
		index  int
		reason string
		class  cfperr.FailureClass
	}{
		{"not array", `{"name":"a"}`, -1, "must be a JSON array", ""},
		{"empty", `[]`, -1, "no vectors", ""},
		{"grammar", `[{"name":"a",}]`, -1, "parse suite", cfperr.InvalidGrammar},
		{"element kind", `[1]`, 0, "must be an object", ""},
		{"missing name", `[{"input":1}]`, 0, "missing name", ""},
		{"empty name", `[{"name":"","input":1}]`, 0, "non-empty string", ""},
		{"missing input", `[{"name":"a"}]`, 0, "missing input", ""},
		{"duplicate name", `[{"name":"a","input":1},{"name":"a","input":2}]`, 1, "duplicate vector name (first at index 0)", ""},
		{"unknown member", `[{"name":"a","input":1,"expected":"x"}]`, 0, `unknown member "expected"`, ""},
		{"bare expectation key", `[{"name":"a","input":1,"expected_fingerprint":"` + fp + `"}]`, 0, "unknown member", ""},
		{"uppercase fingerprint", `[{"name":"a","input":1,"expected_ts_fingerprint":"` + strings.ToUpper(fp) + `"}]`, 0, "64-character lowercase hex", ""},
		{"short fingerprint", `[{"name":"a","input":1,"expected_ts_fingerprint":"abc"}]`, 0, "64-character lowercase hex", ""},
		{"bad impl name", `[{"name":"a","input":1,"expected_T S_fingerprint":"` + fp + `"}]`, 0, "invalid implementation name", ""},
		{"notes kind", `[{"name":"a","input":1,"notes":3}]`, 0, "notes must be a string", ""},
		{"duplicate key in input", `[{"name":"a","input":{"k":1,"k":2}}]`, -1, "parse suite", cfperr.DuplicateKey},
		{"overflow", `[{"name":"a","input":1e400}]`, -1, "parse suite", cfperr.NumberOverflow},
		{"lone surrogate", `[{"name":"a","input":"\ud800"}]`, -1, "parse suite", cfperr.InvalidUTF8},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := vectors.Parse([]byte(tc.in), nil)
			require.Error(t, err)

			var le *vectors.LoadError
			require.True(t, errors.As(err, &le), "want *LoadError, got %T", err)
			assert.Equal(t, tc.index, le.Index)
			assert.Contains(t, le.Error(), tc.reason)

			class, ok := cfperr.ClassOf(err)
			require.True(t, ok)
			assert.Equal(t, cfperr.SuiteLoad, class)
			assert.Equal(t, cfperr.ExitInvalid, cfperr.ExitCodeOf(err))
			if tc.class != "" {
				assert.True(t, cfperr.Is(err, tc.class), "want %s in chain of %v", tc.class, err)
			}
		})
	}
}

func TestLoadErrorNamesVector(t *testing.T) {
	_, err := vectors.Parse([]byte(`[{"name":"ok","input":1},{"name":"broken","input":1,"extra":true}]`), nil)
	require.Error(t, err)
	assert.Equal(t, `vectors: vector 1 ("broken"): unknown member "extra"`, err.Error())
}

func TestDepthBound(t *testing.T) {
	in := `[{"name":"deep","input":[[[[1]]]]}]`
	_, err := vectors.Parse([]byte(in), &vectors.Options{MaxDepth: 4})
	require.Error(t, err)
	assert.True(t, cfperr.Is(err, cfperr.DepthExceeded))

	_, err = vectors.Parse([]byte(in), &vectors.Options{MaxDepth: 7})
	require.NoError(t, err)
}

func TestLoadSizeBound(t *testing.T) {
	in := `[{"name":"a","input":"` + strings.Repeat("x", 100) + `"}]`
	_, err := vectors.Load(strings.NewReader(in), &vectors.Options{MaxInputSize: 64})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds maximum size 64")
	assert.True(t, cfperr.Is(err, cfperr.SuiteLoad))

	s, err := vectors.Load(strings.NewReader(in), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())
}

func TestLoadFileMissing(t *testing.T) {
	_, err := vectors.LoadFile("testdata/does-not-exist.json", nil)
	require.Error(t, err)
	assert.True(t, cfperr.Is(err, cfperr.SuiteLoad))
}

func TestNFCWarnings(t *testing.T) {
	s, err := vectors.Parse([]byte(`[{"name":"nfd","input":{"cafe\u0301":["e\u0301","\u00e9"]}}]`), nil)
	require.NoError(t, err)

	ws := s.Warnings()
	require.Len(t, ws, 2)
	assert.Equal(t, "key is not NFC normalized", ws[0].Message)
	assert.Equal(t, "string is not NFC normalized", ws[1].Message)
	assert.Equal(t, "nfd", ws[1].Name)
	assert.Contains(t, ws[1].String(), "[0]")

	// Warnings never rewrite the input.
	v := s.Vector(0)
	assert.Equal(t, "cafe\u0301", v.Input.Members[0].Key)
	assert.Equal(t, cfptoken.KindArray, v.Input.Members[0].Value.Kind)
}

func TestValidImplementationName(t *testing.T) {
	for _, ok := range []string{"ts", "rust", "go-ref", "py_3", "2"} {
		assert.True(t, vectors.ValidImplementationName(ok), ok)
	}
	for _, bad := range []string{"", "TS", "-x", "_x", "a b", "a.b"} {
		assert.False(t, vectors.ValidImplementationName(bad), bad)
	}
	assert.Equal(t, "expected_ts_fingerprint", vectors.ExpectationKey("ts"))
}
