package conformance

import (
	"sort"

	"github.com/lattice-substrate/canon-fingerprint/cfperr"
	"github.com/lattice-substrate/canon-fingerprint/vectors"
)

// Registry maps implementation names to implementations. Names are the keys
// used in the suite's expected_<name>_fingerprint members.
type Registry struct {
	impls map[string]Implementation
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{impls: map[string]Implementation{}}
}

// Register adds impl under name. Invalid names, nil implementations and
// duplicate names are CONFIG errors.
func (r *Registry) Register(name string, impl Implementation) error {
	if !vectors.ValidImplementationName(name) {
		return cfperr.Newf(cfperr.Config, "invalid implementation name %q", name)
	}
	if impl == nil {
		return cfperr.Newf(cfperr.Config, "implementation %q is nil", name)
	}
	if _, dup := r.impls[name]; dup {
		return cfperr.Newf(cfperr.Config, "implementation %q already registered", name)
	}
	r.impls[name] = impl
	return nil
}

// Lookup returns the implementation registered under name.
func (r *Registry) Lookup(name string) (Implementation, bool) {
	impl, ok := r.impls[name]
	return impl, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.impls))
	for name := range r.impls {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
