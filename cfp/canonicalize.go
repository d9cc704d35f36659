// Package cfp turns a Value tree into its canonical byte sequence.
//
// The canonical form is compact JSON with three pinned rules layered on top:
// object members are ordered by ascending Unicode code point of their keys,
// numbers use the cfpfloat grammar, and strings escape only the quotation
// mark, reverse solidus, and C0 controls. Two trees that are equal up to
// object member order always canonicalize to identical bytes.
package cfp

import (
	"fmt"
	"sort"
	"unicode/utf8"

	"github.com/lattice-substrate/canon-fingerprint/cfperr"
	"github.com/lattice-substrate/canon-fingerprint/cfpfloat"
	"github.com/lattice-substrate/canon-fingerprint/cfptoken"
)

// DefaultMaxDepth is the nesting ceiling applied when Options.MaxDepth is 0.
const DefaultMaxDepth = 1000

// Options controls canonicalization.
type Options struct {
	MaxDepth int // 0 means DefaultMaxDepth
}

func (o *Options) maxDepth() int {
	if o != nil && o.MaxDepth > 0 {
		return o.MaxDepth
	}
	return DefaultMaxDepth
}

type encoder struct {
	buf      []byte
	depth    int
	maxDepth int
}

// Canonicalize returns the canonical bytes of v with default options.
func Canonicalize(v *cfptoken.Value) ([]byte, error) {
	return CanonicalizeWithOptions(v, nil)
}

// CanonicalizeWithOptions returns the canonical bytes of v.
//
// Failures are classified: NON_FINITE_NUMBER for NaN or ±Inf anywhere in the
// tree, DEPTH_EXCEEDED past the nesting ceiling, INVALID_UTF8 for strings or
// keys that are not valid UTF-8, DUPLICATE_KEY for objects built without the
// cfptoken constructors.
func CanonicalizeWithOptions(v *cfptoken.Value, opts *Options) ([]byte, error) {
	if v == nil {
		return nil, cfperr.Newf(cfperr.InternalError, "nil value")
	}
	e := &encoder{maxDepth: opts.maxDepth()}
	if err := e.value(v); err != nil {
		return nil, err
	}
	return e.buf, nil
}

// CanonicalizeJSON parses JSON text with the strict parser and returns its
// canonical bytes.
func CanonicalizeJSON(data []byte) ([]byte, error) {
	v, err := cfptoken.Parse(data)
	if err != nil {
		return nil, err
	}
	return Canonicalize(v)
}

// CanonicalizeGo converts decoded Go data with cfptoken.FromGo and returns its
// canonical bytes.
func CanonicalizeGo(x any) ([]byte, error) {
	v, err := cfptoken.FromGo(x)
	if err != nil {
		return nil, err
	}
	return Canonicalize(&v)
}

func (e *encoder) value(v *cfptoken.Value) error {
	switch v.Kind {
	case cfptoken.KindNull:
		e.buf = append(e.buf, "null"...)
	case cfptoken.KindBool:
		if v.Bool {
			e.buf = append(e.buf, "true"...)
		} else {
			e.buf = append(e.buf, "false"...)
		}
	case cfptoken.KindNumber:
		out, err := cfpfloat.Append(e.buf, v.Num)
		if err != nil {
			return err
		}
		e.buf = out
	case cfptoken.KindString:
		return e.str(v.Str)
	case cfptoken.KindArray:
		return e.array(v)
	case cfptoken.KindObject:
		return e.object(v)
	default:
		return cfperr.Newf(cfperr.InternalError, "unknown value kind %d", int(v.Kind))
	}
	return nil
}

func (e *encoder) enter() error {
	e.depth++
	if e.depth > e.maxDepth {
		return cfperr.Newf(cfperr.DepthExceeded, "nesting depth %d exceeds maximum %d", e.depth, e.maxDepth)
	}
	return nil
}

func (e *encoder) array(v *cfptoken.Value) error {
	if err := e.enter(); err != nil {
		return err
	}
	e.buf = append(e.buf, '[')
	for i := range v.Elems {
		if i > 0 {
			e.buf = append(e.buf, ',')
		}
		if err := e.value(&v.Elems[i]); err != nil {
			return fmt.Errorf("index %d: %w", i, err)
		}
	}
	e.buf = append(e.buf, ']')
	e.depth--
	return nil
}

func (e *encoder) object(v *cfptoken.Value) error {
	if err := e.enter(); err != nil {
		return err
	}

	// Sort indices so the caller's member slice is never reordered. Bytewise
	// order of valid UTF-8 is code point order, and str rejects anything else.
	order := make([]int, len(v.Members))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return v.Members[order[a]].Key < v.Members[order[b]].Key
	})

	e.buf = append(e.buf, '{')
	for i, idx := range order {
		m := &v.Members[idx]
		if i > 0 {
			if m.Key == v.Members[order[i-1]].Key {
				return cfperr.Newf(cfperr.DuplicateKey, "duplicate object key %q", m.Key)
			}
			e.buf = append(e.buf, ',')
		}
		if err := e.str(m.Key); err != nil {
			return err
		}
		e.buf = append(e.buf, ':')
		if err := e.value(&m.Value); err != nil {
			return fmt.Errorf("member %q: %w", m.Key, err)
		}
	}
	e.buf = append(e.buf, '}')
	e.depth--
	return nil
}

// str writes s as a quoted string using a fixed escape table.
func (e *encoder) str(s string) error {
	if !utf8.ValidString(s) {
		return cfperr.Newf(cfperr.InvalidUTF8, "string %q is not valid UTF-8", s)
	}
	e.buf = append(e.buf, '"')
	for i := 0; i < len(s); i++ {
		b := s[i]
		if b >= 0x20 && b != '"' && b != '\\' {
			e.buf = append(e.buf, b)
			continue
		}
		if esc := escapes[b]; esc != 0 {
			e.buf = append(e.buf, '\\', esc)
			continue
		}
		e.buf = append(e.buf, '\\', 'u', '0', '0', hexDigits[b>>4], hexDigits[b&0x0F])
	}
	e.buf = append(e.buf, '"')
	return nil
}

const hexDigits = "0123456789abcdef"

// escapes maps the bytes with a two-character escape to their letter.
// Every other byte below 0x20 is written as \u00xx.
var escapes = [256]byte{
	'"':  '"',
	'\\': '\\',
	'\b': 'b',
	'\t': 't',
	'\n': 'n',
	'\f': 'f',
	'\r': 'r',
}
