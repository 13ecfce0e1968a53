package testtransport

import (
	"fmt"
	"sort"
	"sync"
)

// Registry keeps the transports created by a Factory, keyed by name. Test
// suites hold one registry and call ResetAll between test cases.
type Registry struct {
	mu         sync.RWMutex
	transports map[string]*Transport
}

func NewRegistry() *Registry {
	return &Registry{
		transports: make(map[string]*Transport),
	}
}

// Register adds t. Registering a second transport under the same name fails.
func (r *Registry) Register(t *Transport) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.transports[t.Name()]; ok {
		return fmt.Errorf("%w: %q", ErrTransportConflict, t.Name())
	}

	r.transports[t.Name()] = t
	return nil
}

func (r *Registry) Get(name string) (*Transport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.transports[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTransportNotFound, name)
	}

	return t, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.transports))
	for name := range r.transports {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// All returns the registered transports sorted by name.
func (r *Registry) All() []*Transport {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := make([]*Transport, 0, len(r.transports))
	for _, t := range r.transports {
		res = append(res, t)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name() < res[j].Name() })

	return res
}

// ResetAll clears every registered transport and drops them from the
// registry. Transports still referenced by the caller stay usable but
// empty.
func (r *Registry) ResetAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range r.transports {
		t.Reset()
	}
	r.transports = make(map[string]*Transport)
}
