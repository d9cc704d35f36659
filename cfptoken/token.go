// Package cfptoken holds the Value data model and a strict JSON parser that
// produces it.
//
// The parser accepts RFC 8259 JSON and rejects everything a fingerprint cannot
// represent faithfully: duplicate object keys, invalid UTF-8, lone surrogate
// escapes, and numeric tokens that overflow an IEEE 754 double. Nesting depth
// and input size are bounded.
package cfptoken

import (
	"fmt"
	"math"
	"strconv"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/lattice-substrate/canon-fingerprint/cfperr"
)

// Limits for denial-of-service protection.
const (
	// DefaultMaxDepth is the maximum nesting depth for objects and arrays.
	DefaultMaxDepth = 1000

	// DefaultMaxInputSize is the maximum input size in bytes (64 MiB).
	DefaultMaxInputSize = 64 * 1024 * 1024
)

// Options controls parser behavior.
type Options struct {
	MaxDepth     int // 0 means DefaultMaxDepth
	MaxInputSize int // 0 means DefaultMaxInputSize
}

func (o *Options) maxDepth() int {
	if o != nil && o.MaxDepth > 0 {
		return o.MaxDepth
	}
	return DefaultMaxDepth
}

func (o *Options) maxInputSize() int {
	if o != nil && o.MaxInputSize > 0 {
		return o.MaxInputSize
	}
	return DefaultMaxInputSize
}

type parser struct {
	data     []byte
	pos      int
	depth    int
	maxDepth int
}

// Parse parses one complete JSON text with default options.
func Parse(data []byte) (*Value, error) {
	return ParseWithOptions(data, nil)
}

// ParseWithOptions parses one complete JSON text. Errors are *cfperr.Error
// values carrying the byte offset of the violation.
func ParseWithOptions(data []byte, opts *Options) (*Value, error) {
	if limit := opts.maxInputSize(); len(data) > limit {
		return nil, cfperr.New(cfperr.BoundExceeded, 0,
			fmt.Sprintf("input size %d exceeds maximum %d", len(data), limit))
	}

	p := &parser{data: data, maxDepth: opts.maxDepth()}
	p.skipWhitespace()
	v, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	p.skipWhitespace()
	if p.pos != len(p.data) {
		return nil, p.fail(cfperr.InvalidGrammar, "trailing content after JSON value")
	}
	return &v, nil
}

func (p *parser) fail(class cfperr.FailureClass, format string, args ...any) *cfperr.Error {
	return cfperr.New(class, p.pos, fmt.Sprintf(format, args...))
}

func (p *parser) grammar(format string, args ...any) *cfperr.Error {
	return p.fail(cfperr.InvalidGrammar, format, args...)
}

func (p *parser) peek() (byte, bool) {
	if p.pos >= len(p.data) {
		return 0, false
	}
	return p.data[p.pos], true
}

func (p *parser) expect(b byte) error {
	if p.pos >= len(p.data) {
		return p.grammar("unexpected end of input, expected %q", string(b))
	}
	if c := p.data[p.pos]; c != b {
		return p.grammar("expected %q, got %q", string(b), string(c))
	}
	p.pos++
	return nil
}

func (p *parser) skipWhitespace() {
	for p.pos < len(p.data) {
		switch p.data[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *parser) enter() error {
	p.depth++
	if p.depth > p.maxDepth {
		return p.fail(cfperr.DepthExceeded, "nesting depth %d exceeds maximum %d", p.depth, p.maxDepth)
	}
	return nil
}

func (p *parser) leave() {
	p.depth--
}

func (p *parser) parseValue() (Value, error) {
	c, ok := p.peek()
	if !ok {
		return Value{}, p.grammar("unexpected end of input")
	}

	switch c {
	case '{':
		return p.parseObject()
	case '[':
		return p.parseArray()
	case '"':
		s, err := p.parseString()
		if err != nil {
			return Value{}, err
		}
		return String(s), nil
	case 't':
		return p.parseLiteral("true", Bool(true))
	case 'f':
		return p.parseLiteral("false", Bool(false))
	case 'n':
		return p.parseLiteral("null", Null())
	default:
		return p.parseNumber()
	}
}

func (p *parser) parseLiteral(word string, v Value) (Value, error) {
	end := p.pos + len(word)
	if end > len(p.data) || string(p.data[p.pos:end]) != word {
		return Value{}, p.grammar("invalid literal")
	}
	p.pos = end
	return v, nil
}

func (p *parser) parseObject() (Value, error) {
	if err := p.enter(); err != nil {
		return Value{}, err
	}
	defer p.leave()

	if err := p.expect('{'); err != nil {
		return Value{}, err
	}
	p.skipWhitespace()

	v := Value{Kind: KindObject}
	if c, ok := p.peek(); ok && c == '}' {
		p.pos++
		return v, nil
	}

	seen := make(map[string]int)
	for {
		p.skipWhitespace()
		keyStart := p.pos
		if c, ok := p.peek(); !ok || c != '"' {
			return Value{}, p.grammar("expected object key")
		}
		key, err := p.parseString()
		if err != nil {
			return Value{}, err
		}
		// Duplicates are compared after unescaping.
		if first, dup := seen[key]; dup {
			return Value{}, cfperr.New(cfperr.DuplicateKey, keyStart,
				fmt.Sprintf("duplicate object key %q (first at byte %d)", key, first))
		}
		seen[key] = keyStart

		p.skipWhitespace()
		if err := p.expect(':'); err != nil {
			return Value{}, err
		}
		p.skipWhitespace()

		val, err := p.parseValue()
		if err != nil {
			return Value{}, err
		}
		v.Members = append(v.Members, Member{Key: key, Value: val})

		p.skipWhitespace()
		c, ok := p.peek()
		switch {
		case !ok:
			return Value{}, p.grammar("unexpected end of input in object")
		case c == '}':
			p.pos++
			return v, nil
		case c == ',':
			p.pos++
		default:
			return Value{}, p.grammar("expected ',' or '}' in object, got %q", string(c))
		}
	}
}

func (p *parser) parseArray() (Value, error) {
	if err := p.enter(); err != nil {
		return Value{}, err
	}
	defer p.leave()

	if err := p.expect('['); err != nil {
		return Value{}, err
	}
	p.skipWhitespace()

	v := Value{Kind: KindArray}
	if c, ok := p.peek(); ok && c == ']' {
		p.pos++
		return v, nil
	}

	for {
		p.skipWhitespace()
		elem, err := p.parseValue()
		if err != nil {
			return Value{}, err
		}
		v.Elems = append(v.Elems, elem)

		p.skipWhitespace()
		c, ok := p.peek()
		switch {
		case !ok:
			return Value{}, p.grammar("unexpected end of input in array")
		case c == ']':
			p.pos++
			return v, nil
		case c == ',':
			p.pos++
		default:
			return Value{}, p.grammar("expected ',' or ']' in array, got %q", string(c))
		}
	}
}

// parseString decodes a JSON string. Escaped surrogate pairs are combined;
// a lone surrogate has no UTF-8 encoding and is rejected.
func (p *parser) parseString() (string, error) {
	if err := p.expect('"'); err != nil {
		return "", err
	}

	var buf []byte
	for {
		if p.pos >= len(p.data) {
			return "", p.grammar("unterminated string")
		}
		b := p.data[p.pos]
		switch {
		case b == '"':
			p.pos++
			return string(buf), nil
		case b == '\\':
			p.pos++
			r, err := p.parseEscape()
			if err != nil {
				return "", err
			}
			buf = utf8.AppendRune(buf, r)
		case b < 0x20:
			return "", p.grammar("unescaped control character 0x%02X in string", b)
		case b < utf8.RuneSelf:
			buf = append(buf, b)
			p.pos++
		default:
			r, size := utf8.DecodeRune(p.data[p.pos:])
			if r == utf8.RuneError && size <= 1 {
				return "", p.fail(cfperr.InvalidUTF8, "invalid UTF-8 byte 0x%02X in string", b)
			}
			buf = append(buf, p.data[p.pos:p.pos+size]...)
			p.pos += size
		}
	}
}

func (p *parser) parseEscape() (rune, error) {
	if p.pos >= len(p.data) {
		return 0, p.grammar("unterminated escape sequence")
	}
	b := p.data[p.pos]
	p.pos++

	switch b {
	case '"', '\\', '/':
		return rune(b), nil
	case 'b':
		return '\b', nil
	case 'f':
		return '\f', nil
	case 'n':
		return '\n', nil
	case 'r':
		return '\r', nil
	case 't':
		return '\t', nil
	case 'u':
		return p.parseUnicodeEscape()
	default:
		return 0, p.grammar("invalid escape character %q", string(b))
	}
}

func (p *parser) parseUnicodeEscape() (rune, error) {
	r1, err := p.readHex4()
	if err != nil {
		return 0, err
	}
	if !utf16.IsSurrogate(r1) {
		return r1, nil
	}
	if r1 >= 0xDC00 {
		return 0, p.fail(cfperr.InvalidUTF8, "lone low surrogate U+%04X", r1)
	}
	if p.pos+1 >= len(p.data) || p.data[p.pos] != '\\' || p.data[p.pos+1] != 'u' {
		return 0, p.fail(cfperr.InvalidUTF8, "lone high surrogate U+%04X", r1)
	}
	p.pos += 2
	r2, err := p.readHex4()
	if err != nil {
		return 0, err
	}
	if r2 < 0xDC00 || r2 > 0xDFFF {
		return 0, p.fail(cfperr.InvalidUTF8, "high surrogate U+%04X followed by U+%04X", r1, r2)
	}
	return utf16.DecodeRune(r1, r2), nil
}

func (p *parser) readHex4() (rune, error) {
	if p.pos+4 > len(p.data) {
		return 0, p.grammar("incomplete \\u escape")
	}
	hex := string(p.data[p.pos : p.pos+4])
	val, err := strconv.ParseUint(hex, 16, 16)
	if err != nil {
		return 0, p.grammar("invalid hex in \\u escape: %q", hex)
	}
	p.pos += 4
	return rune(val), nil
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func (p *parser) digits() {
	for p.pos < len(p.data) && isDigit(p.data[p.pos]) {
		p.pos++
	}
}

// parseNumber scans an RFC 8259 number token. A token that parses to -0 is
// kept as negative zero; canonicalization writes it as 0. Tokens that
// underflow become 0, matching IEEE 754 round-to-nearest.
func (p *parser) parseNumber() (Value, error) {
	start := p.pos

	if p.pos < len(p.data) && p.data[p.pos] == '-' {
		p.pos++
	}
	if p.pos >= len(p.data) {
		return Value{}, p.grammar("unexpected end of input in number")
	}

	switch c := p.data[p.pos]; {
	case c == '0':
		p.pos++
		if p.pos < len(p.data) && isDigit(p.data[p.pos]) {
			return Value{}, p.grammar("leading zero in number")
		}
	case c >= '1' && c <= '9':
		p.digits()
	default:
		return Value{}, p.grammar("invalid number character %q", string(c))
	}

	if p.pos < len(p.data) && p.data[p.pos] == '.' {
		p.pos++
		if p.pos >= len(p.data) || !isDigit(p.data[p.pos]) {
			return Value{}, p.grammar("expected digit after decimal point")
		}
		p.digits()
	}

	if p.pos < len(p.data) && (p.data[p.pos] == 'e' || p.data[p.pos] == 'E') {
		p.pos++
		if p.pos < len(p.data) && (p.data[p.pos] == '+' || p.data[p.pos] == '-') {
			p.pos++
		}
		if p.pos >= len(p.data) || !isDigit(p.data[p.pos]) {
			return Value{}, p.grammar("expected digit in exponent")
		}
		p.digits()
	}

	raw := string(p.data[start:p.pos])
	f, err := strconv.ParseFloat(raw, 64)
	if math.IsInf(f, 0) {
		return Value{}, cfperr.New(cfperr.NumberOverflow, start,
			fmt.Sprintf("number %s overflows IEEE 754 double", raw))
	}
	if err != nil {
		return Value{}, cfperr.Wrap(cfperr.InvalidGrammar, start, "invalid number", err)
	}
	return Number(f), nil
}
