// Package cfpfloat pins the textual form of numbers in canonical output.
//
// A finite double is written in two steps:
//
//  1. Significand digits: the shortest decimal digit string that parses back
//     to exactly the same double. When several strings of that length
//     round-trip, the one nearest the exact binary value is used, and an exact
//     tie picks the even final digit. This string is a pure function of the
//     IEEE 754 bit pattern.
//  2. Layout: the digits and their decimal exponent are arranged with the
//     ECMA-262 Number::toString (radix 10) rules, so output is byte-identical
//     to JavaScript's String(x) and JSON.stringify(x).
//
// Negative zero is written as "0". NaN and the infinities have no canonical
// form and are rejected.
package cfpfloat

import (
	"math"
	"strconv"

	"github.com/lattice-substrate/canon-fingerprint/cfperr"
)

// Format returns the canonical text of f.
func Format(f float64) (string, error) {
	buf, err := Append(nil, f)
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

// Append appends the canonical text of f to buf.
func Append(buf []byte, f float64) ([]byte, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return buf, cfperr.Newf(cfperr.NonFiniteNumber, "number %v is not finite", f)
	}
	if f == 0 {
		return append(buf, '0'), nil
	}
	if f < 0 {
		buf = append(buf, '-')
		f = -f
	}
	digits, n := Decompose(f)
	return layout(buf, digits, n), nil
}

// Decompose returns the shortest round-trip significand digits of a positive,
// finite, non-zero f and the decimal exponent n such that f = 0.digits × 10^n.
// The digit string never has leading or trailing zeros.
func Decompose(f float64) (string, int) {
	var scratch [32]byte
	// strconv's shortest mode yields d.ddddde±xx with the digit string
	// defined above; only the digits and exponent are used.
	sci := strconv.AppendFloat(scratch[:0], f, 'e', -1, 64)

	mant := make([]byte, 0, 17)
	i := 0
	for ; i < len(sci) && sci[i] != 'e'; i++ {
		if sci[i] != '.' {
			mant = append(mant, sci[i])
		}
	}
	exp := 0
	neg := false
	for i++; i < len(sci); i++ {
		switch c := sci[i]; c {
		case '-':
			neg = true
		case '+':
		default:
			exp = exp*10 + int(c-'0')
		}
	}
	if neg {
		exp = -exp
	}
	for len(mant) > 1 && mant[len(mant)-1] == '0' {
		mant = mant[:len(mant)-1]
	}
	return string(mant), exp + 1
}

// layout applies the Number::toString placement rules for k digits and
// exponent n.
func layout(buf []byte, digits string, n int) []byte {
	k := len(digits)
	switch {
	case k <= n && n <= 21:
		// Integer: digits then n-k zeros.
		buf = append(buf, digits...)
		for i := k; i < n; i++ {
			buf = append(buf, '0')
		}
	case 0 < n && n <= 21:
		// Decimal point inside the digits.
		buf = append(buf, digits[:n]...)
		buf = append(buf, '.')
		buf = append(buf, digits[n:]...)
	case -6 < n && n <= 0:
		// Leading "0." and -n zeros.
		buf = append(buf, '0', '.')
		for i := n; i < 0; i++ {
			buf = append(buf, '0')
		}
		buf = append(buf, digits...)
	default:
		// Exponential: d[.ddd]e±x.
		buf = append(buf, digits[0])
		if k > 1 {
			buf = append(buf, '.')
			buf = append(buf, digits[1:]...)
		}
		buf = append(buf, 'e')
		if n-1 >= 0 {
			buf = append(buf, '+')
		}
		buf = strconv.AppendInt(buf, int64(n-1), 10)
	}
	return buf
}
