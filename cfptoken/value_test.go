package cfptoken_test

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/lattice-substrate/canon-fingerprint/cfperr"
	"github.com/lattice-substrate/canon-fingerprint/cfptoken"
)

func TestObjectRejectsDuplicateKeys(t *testing.T) {
	_, err := cfptoken.Object(
		cfptoken.Member{Key: "a", Value: cfptoken.Number(1)},
		cfptoken.Member{Key: "a", Value: cfptoken.Number(2)},
	)
	if !cfperr.Is(err, cfperr.DuplicateKey) {
		t.Fatalf("expected DUPLICATE_KEY, got %v", err)
	}
}

func TestNumberConstructorAcceptsNonFinite(t *testing.T) {
	v := cfptoken.Number(math.NaN())
	if v.Kind != cfptoken.KindNumber || !math.IsNaN(v.Num) {
		t.Fatalf("got %+v", v)
	}
}

func TestFromGo(t *testing.T) {
	in := map[string]any{
		"z":    []any{int8(1), uint16(2), 3.5, json.Number("4e2")},
		"a":    nil,
		"flag": true,
		"s":    "x",
	}
	v, err := cfptoken.FromGo(in)
	if err != nil {
		t.Fatalf("FromGo: %v", err)
	}
	if v.Kind != cfptoken.KindObject || len(v.Members) != 4 {
		t.Fatalf("got %+v", v)
	}
	if v.Members[0].Key != "a" || v.Members[3].Key != "z" {
		t.Fatalf("members not sorted: %+v", v.Members)
	}
	z := v.Members[3].Value
	want := []float64{1, 2, 3.5, 400}
	for i, w := range want {
		if z.Elems[i].Num != w {
			t.Fatalf("elem %d = %v want %v", i, z.Elems[i].Num, w)
		}
	}
}

func TestFromGoUnsupportedType(t *testing.T) {
	_, err := cfptoken.FromGo(struct{}{})
	if err == nil {
		t.Fatal("expected error")
	}
	if !cfperr.Is(err, cfperr.InvalidGrammar) {
		t.Fatalf("unexpected class: %v", err)
	}
}

func TestKindString(t *testing.T) {
	if cfptoken.KindObject.String() != "object" || cfptoken.Kind(42).String() != "Kind(42)" {
		t.Fatal("unexpected kind names")
	}
}

func TestCloneSharesNothing(t *testing.T) {
	orig := cfptoken.MustObject(cfptoken.Member{Key: "a", Value: cfptoken.Array(cfptoken.Number(1))})
	c := orig.Clone()
	c.Members[0].Key = "b"
	c.Members[0].Value.Elems[0] = cfptoken.Null()
	if orig.Members[0].Key != "a" || orig.Members[0].Value.Elems[0].Kind != cfptoken.KindNumber {
		t.Fatalf("clone aliased original: %+v", orig)
	}
}
