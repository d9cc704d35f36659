// Package conformance checks fingerprint implementations against a vector
// suite.
//
// A run computes, for every vector and every implementation that vector
// expects, the implementation's fingerprint of the vector input and compares
// it with the stored expectation. Mismatches, timeouts and failed external
// calls are recorded per pair and never stop the run. Problems with the run's
// configuration, or with the value itself, abort it before a report exists.
package conformance

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	cyberphone "github.com/cyberphone/json-canonicalization/go/src/webpki.org/jsoncanonicalizer"

	"github.com/lattice-substrate/canon-fingerprint/cfp"
	"github.com/lattice-substrate/canon-fingerprint/cfperr"
	"github.com/lattice-substrate/canon-fingerprint/cfphash"
	"github.com/lattice-substrate/canon-fingerprint/cfptoken"
)

// Implementation computes the fingerprint of a value. Implementations must be
// safe for concurrent use; the runner calls Compute from several workers.
type Implementation interface {
	Compute(ctx context.Context, v *cfptoken.Value) (string, error)
}

// ComputeFunc adapts a function to Implementation.
type ComputeFunc func(ctx context.Context, v *cfptoken.Value) (string, error)

// Compute calls f(ctx, v).
func (f ComputeFunc) Compute(ctx context.Context, v *cfptoken.Value) (string, error) {
	return f(ctx, v)
}

// LocalEngine returns the in-process implementation: cfp canonicalization
// followed by the given digest.
func LocalEngine(alg cfphash.Algorithm) Implementation {
	return ComputeFunc(func(ctx context.Context, v *cfptoken.Value) (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return cfphash.Compute(alg, v)
	})
}

// CyberphoneEngine returns an implementation backed by the RFC 8785 reference
// canonicalizer, hashed with SHA-256. It agrees with LocalEngine(SHA256) on
// every value whose object keys sort the same in UTF-16 and code point order,
// which covers all keys outside the supplementary planes.
//
// The reference canonicalizer only accepts a top-level object or array, so a
// scalar is canonicalized as the single element of an array and unwrapped.
func CyberphoneEngine() Implementation {
	return ComputeFunc(func(ctx context.Context, v *cfptoken.Value) (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		// The reference canonicalizer takes JSON text; any valid serialization
		// will do, and ours is already at hand.
		text, err := cfp.Canonicalize(v)
		if err != nil {
			return "", err
		}
		scalar := v.Kind != cfptoken.KindObject && v.Kind != cfptoken.KindArray
		if scalar {
			text = append(append([]byte{'['}, text...), ']')
		}
		out, err := cyberphone.Transform(text)
		if err != nil {
			return "", cfperr.Wrap(cfperr.ExternalFailure, -1, "cyberphone transform", err)
		}
		if scalar {
			if len(out) < 2 || out[0] != '[' || out[len(out)-1] != ']' {
				return "", cfperr.Newf(cfperr.ExternalFailure, "cyberphone transform: unexpected scalar wrapper output %q", out)
			}
			out = out[1 : len(out)-1]
		}
		sum := sha256.Sum256(out)
		return hex.EncodeToString(sum[:]), nil
	})
}
