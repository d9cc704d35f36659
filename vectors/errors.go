package vectors

import (
	"fmt"

	"github.com/lattice-substrate/canon-fingerprint/cfperr"
)

// LoadError reports a malformed or unreadable suite. Index is the offending
// vector's position, or -1 for document-level problems.
type LoadError struct {
	Index  int
	Name   string
	Reason string
	Cause  error
}

func (e *LoadError) Error() string {
	var msg string
	switch {
	case e.Index < 0:
		msg = "vectors: " + e.Reason
	case e.Name != "":
		msg = fmt.Sprintf("vectors: vector %d (%q): %s", e.Index, e.Name, e.Reason)
	default:
		msg = fmt.Sprintf("vectors: vector %d: %s", e.Index, e.Reason)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *LoadError) Unwrap() error { return e.Cause }

// FailureClass classifies every load failure as SUITE_LOAD.
func (e *LoadError) FailureClass() cfperr.FailureClass { return cfperr.SuiteLoad }
