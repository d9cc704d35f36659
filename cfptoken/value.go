package cfptoken

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"

	"github.com/lattice-substrate/canon-fingerprint/cfperr"
)

// Value is a node of a fingerprintable data tree.
//
// Only the field matching Kind is meaningful. Object member order is the order
// the members were supplied in and carries no meaning; canonicalization sorts
// it away.
type Value struct {
	Kind    Kind
	Bool    bool
	Str     string
	Num     float64
	Members []Member
	Elems   []Value
}

// Kind identifies the type of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

var kindNames = [...]string{"null", "bool", "number", "string", "array", "object"}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Member is a key-value pair in an object.
type Member struct {
	Key   string
	Value Value
}

// Null returns the null value.
func Null() Value { return Value{Kind: KindNull} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// Number returns a number value. Finiteness is not checked here; the
// canonicalizer rejects NaN and infinities.
func Number(f float64) Value { return Value{Kind: KindNumber, Num: f} }

// String returns a string value.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// Array returns an array value holding elems in order.
func Array(elems ...Value) Value {
	return Value{Kind: KindArray, Elems: append([]Value(nil), elems...)}
}

// Object returns an object value. Duplicate keys are a DUPLICATE_KEY error.
func Object(members ...Member) (Value, error) {
	seen := make(map[string]struct{}, len(members))
	for _, m := range members {
		if _, dup := seen[m.Key]; dup {
			return Value{}, cfperr.Newf(cfperr.DuplicateKey, "duplicate object key %q", m.Key)
		}
		seen[m.Key] = struct{}{}
	}
	return Value{Kind: KindObject, Members: append([]Member(nil), members...)}, nil
}

// MustObject is like Object but panics on duplicate keys.
// Use only in tests or with literal keys.
func MustObject(members ...Member) Value {
	v, err := Object(members...)
	if err != nil {
		panic(err)
	}
	return v
}

// FromGo converts decoded Go data into a Value.
//
// Accepted: nil, bool, string, json.Number, every integer and float kind,
// []any and map[string]any (recursively). Map members are emitted in sorted
// key order so the resulting tree is reproducible; the order is irrelevant to
// the fingerprint either way.
func FromGo(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case float64:
		return Number(t), nil
	case float32:
		return Number(float64(t)), nil
	case int:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil && !math.IsInf(f, 0) {
			return Value{}, cfperr.Wrap(cfperr.InvalidGrammar, -1, fmt.Sprintf("invalid number %q", t.String()), err)
		}
		return Number(f), nil
	case Value:
		return t, nil
	case []any:
		elems := make([]Value, len(t))
		for i, e := range t {
			v, err := FromGo(e)
			if err != nil {
				return Value{}, fmt.Errorf("index %d: %w", i, err)
			}
			elems[i] = v
		}
		return Value{Kind: KindArray, Elems: elems}, nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		members := make([]Member, len(keys))
		for i, k := range keys {
			v, err := FromGo(t[k])
			if err != nil {
				return Value{}, fmt.Errorf("key %q: %w", k, err)
			}
			members[i] = Member{Key: k, Value: v}
		}
		return Value{Kind: KindObject, Members: members}, nil
	}

	rv := reflect.ValueOf(x)
	switch rv.Kind() {
	case reflect.Int8, reflect.Int16, reflect.Int32:
		return Number(float64(rv.Int())), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return Number(float64(rv.Uint())), nil
	}
	return Value{}, cfperr.Newf(cfperr.InvalidGrammar, "unsupported Go type %T", x)
}

// Clone returns a deep copy of v sharing no slices with it.
func (v Value) Clone() Value {
	out := v
	if v.Elems != nil {
		out.Elems = make([]Value, len(v.Elems))
		for i := range v.Elems {
			out.Elems[i] = v.Elems[i].Clone()
		}
	}
	if v.Members != nil {
		out.Members = make([]Member, len(v.Members))
		for i, m := range v.Members {
			out.Members[i] = Member{Key: m.Key, Value: m.Value.Clone()}
		}
	}
	return out
}
