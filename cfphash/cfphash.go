// Package cfphash derives fingerprints from canonical bytes.
//
// A fingerprint is the lowercase hexadecimal digest of a value's canonical
// form: 64 characters for every supported algorithm. SHA-256 is the default
// and the algorithm every implementation in a conformance run must agree on
// unless the run is configured otherwise.
package cfphash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"lukechampine.com/blake3"

	"github.com/lattice-substrate/canon-fingerprint/cfp"
	"github.com/lattice-substrate/canon-fingerprint/cfperr"
	"github.com/lattice-substrate/canon-fingerprint/cfptoken"
)

// Algorithm names a digest function.
type Algorithm string

const (
	SHA256 Algorithm = "sha256"
	BLAKE3 Algorithm = "blake3"
)

// Default is the algorithm used when none is configured.
const Default = SHA256

// Size is the length of a fingerprint in hex characters.
const Size = 64

// Tag returns the versioned label for fingerprints produced by a, suitable for
// storing next to a fingerprint so a later change of canonical form or digest
// is detectable.
func (a Algorithm) Tag() string {
	return string(a) + "-cjson-v1"
}

// Valid reports whether a is a supported algorithm.
func (a Algorithm) Valid() bool {
	return a == SHA256 || a == BLAKE3
}

// ParseAlgorithm resolves a case-insensitive algorithm name. The empty string
// selects Default.
func ParseAlgorithm(name string) (Algorithm, error) {
	if name == "" {
		return Default, nil
	}
	a := Algorithm(strings.ToLower(strings.TrimSpace(name)))
	if !a.Valid() {
		return "", cfperr.Newf(cfperr.Config, "unknown hash algorithm %q (want %s or %s)", name, SHA256, BLAKE3)
	}
	return a, nil
}

// Fingerprint returns the lowercase hex SHA-256 digest of canonical.
func Fingerprint(canonical []byte) string {
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

// Sum returns the lowercase hex digest of canonical under a.
func Sum(a Algorithm, canonical []byte) (string, error) {
	switch a {
	case SHA256:
		return Fingerprint(canonical), nil
	case BLAKE3:
		sum := blake3.Sum256(canonical)
		return hex.EncodeToString(sum[:]), nil
	default:
		return "", cfperr.Newf(cfperr.Config, "unknown hash algorithm %q", string(a))
	}
}

// Compute canonicalizes v and hashes the result under a.
func Compute(a Algorithm, v *cfptoken.Value) (string, error) {
	canonical, err := cfp.Canonicalize(v)
	if err != nil {
		return "", err
	}
	return Sum(a, canonical)
}

// Valid reports whether fp has the shape of a fingerprint: exactly Size
// lowercase hex characters.
func Valid(fp string) bool {
	if len(fp) != Size {
		return false
	}
	for i := 0; i < len(fp); i++ {
		c := fp[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// VerifyDeterminism computes the fingerprint of v n times and fails with
// INTERNAL_ERROR if any trial disagrees with the first. It returns the agreed
// fingerprint.
func VerifyDeterminism(n int, a Algorithm, v *cfptoken.Value) (string, error) {
	if n < 1 {
		return "", cfperr.Newf(cfperr.CLIUsage, "trial count must be positive, got %d", n)
	}
	first, err := Compute(a, v)
	if err != nil {
		return "", err
	}
	for i := 1; i < n; i++ {
		got, err := Compute(a, v)
		if err != nil {
			return "", fmt.Errorf("trial %d: %w", i, err)
		}
		if got != first {
			return "", cfperr.Newf(cfperr.InternalError, "trial %d fingerprint %s differs from first %s", i, got, first)
		}
	}
	return first, nil
}
