package cfpfloat_test

import (
	"math"
	"math/rand"
	"strconv"
	"testing"

	cyberphone "github.com/cyberphone/json-canonicalization/go/src/webpki.org/jsoncanonicalizer"

	"github.com/lattice-substrate/canon-fingerprint/cfpfloat"
)

// The cyberphone canonicalizer ships an independent ES6 number serializer.
// Both must agree on every finite non-zero double.
func TestFormatMatchesCyberphone(t *testing.T) {
	values := []float64{
		1, -1, 0.1, 0.5, 1e21, 1e20, 1e-6, 1e-7, 5e-324, math.MaxFloat64,
		0.1 + 0.2, 1.0 / 3.0, 123456789012345680000, 9007199254740993, 2.5e-8, 4.35,
	}
	rng := rand.New(rand.NewSource(20240611))
	for len(values) < 2000 {
		f := math.Float64frombits(rng.Uint64())
		if math.IsNaN(f) || math.IsInf(f, 0) || f == 0 {
			continue
		}
		values = append(values, f)
	}

	for _, f := range values {
		ours, err := cfpfloat.Format(f)
		if err != nil {
			t.Fatalf("Format(%v): %v", f, err)
		}
		in := []byte("[" + strconv.FormatFloat(f, 'g', -1, 64) + "]")
		theirs, err := cyberphone.Transform(in)
		if err != nil {
			t.Fatalf("cyberphone.Transform(%s): %v", in, err)
		}
		if want := "[" + ours + "]"; string(theirs) != want {
			t.Fatalf("bits=%016x: ours %q, cyberphone %q", math.Float64bits(f), want, theirs)
		}
	}
}
