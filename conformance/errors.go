package conformance

import (
	"fmt"

	"github.com/lattice-substrate/canon-fingerprint/cfperr"
)

// UnavailableError reports an implementation the run needs but the registry
// lacks. In strict mode Index and Vector name the first vector expecting it;
// in subset mode they are -1 and "" and the name came from the active list.
type UnavailableError struct {
	Implementation string
	Index          int
	Vector         string
}

func (e *UnavailableError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("conformance: active implementation %q is not registered", e.Implementation)
	}
	return fmt.Sprintf("conformance: implementation %q expected by vector %d (%q) is not registered",
		e.Implementation, e.Index, e.Vector)
}

// FailureClass reports IMPLEMENTATION_UNAVAILABLE.
func (e *UnavailableError) FailureClass() cfperr.FailureClass {
	return cfperr.ImplementationUnavailable
}

// AbortError is returned when a compute call fails for a reason that lies in
// the value rather than in the implementation. The run stops at the first one.
type AbortError struct {
	Index          int
	Vector         string
	Implementation string
	Err            error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("conformance: vector %d (%q) aborted run in %s: %v", e.Index, e.Vector, e.Implementation, e.Err)
}

func (e *AbortError) Unwrap() error { return e.Err }
