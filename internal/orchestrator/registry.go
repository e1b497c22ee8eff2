package orchestrator

import (
	"fmt"
	"sort"
	"sync"
)

// RegistrationError reports a failed probe registration.
type RegistrationError struct {
	ProbeID string
	Message string
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("registration failed for probe %q: %s", e.ProbeID, e.Message)
}

// Registry holds the set of probes a diagnostic run can select from.
type Registry struct {
	probes map[string]Probe
	mu     sync.RWMutex
}

// NewRegistry creates an empty probe registry.
func NewRegistry() *Registry {
	return &Registry{
		probes: make(map[string]Probe),
	}
}

// Register adds a probe to the registry. Returns an error if a probe with
// the same id is already registered.
func (r *Registry) Register(p Probe) error {
	if p == nil {
		return &RegistrationError{Message: "probe cannot be nil"}
	}

	id := p.ID()
	if id == "" {
		return &RegistrationError{Message: "probe id cannot be empty"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.probes[id]; exists {
		return &RegistrationError{ProbeID: id, Message: "probe already registered"}
	}

	r.probes[id] = p
	return nil
}

// MustRegister adds a probe to the registry, panicking on error. Intended
// for use in init() functions registering built-in probes.
func (r *Registry) MustRegister(p Probe) {
	if err := r.Register(p); err != nil {
		panic(err)
	}
}

// Get retrieves a probe by id.
func (r *Registry) Get(id string) (Probe, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, exists := r.probes[id]
	return p, exists
}

// List returns every registered probe ordered by Ordinal, tie-broken by id
// so submission order is deterministic across runs.
func (r *Registry) List() []Probe {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Probe, 0, len(r.probes))
	for _, p := range r.probes {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Ordinal() != out[j].Ordinal() {
			return out[i].Ordinal() < out[j].Ordinal()
		}
		return out[i].ID() < out[j].ID()
	})
	return out
}

// Select returns the probes named in ids, in registry Ordinal order, or
// every registered probe (again in Ordinal order) when ids contains the
// sentinel "all". Unknown ids are reported as a slice of missing names.
func (r *Registry) Select(ids []string) (selected []Probe, missing []string) {
	if len(ids) == 1 && ids[0] == "all" {
		return r.List(), nil
	}

	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}

	for _, p := range r.List() {
		if _, ok := wanted[p.ID()]; ok {
			selected = append(selected, p)
			delete(wanted, p.ID())
		}
	}
	for id := range wanted {
		missing = append(missing, id)
	}
	sort.Strings(missing)
	return selected, missing
}

// Unregister removes a probe from the registry. Returns true if it was
// present.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.probes[id]; !exists {
		return false
	}
	delete(r.probes, id)
	return true
}

// Count returns the number of registered probes.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.probes)
}

// DefaultRegistry is the global registry built-in probes register into via
// init().
var DefaultRegistry = NewRegistry()

// Register adds a probe to the default registry.
func Register(p Probe) error {
	return DefaultRegistry.Register(p)
}

// MustRegister adds a probe to the default registry, panicking on error.
func MustRegister(p Probe) {
	DefaultRegistry.MustRegister(p)
}

// Get retrieves a probe from the default registry.
func Get(id string) (Probe, bool) {
	return DefaultRegistry.Get(id)
}

// List returns every probe in the default registry, in Ordinal order.
func List() []Probe {
	return DefaultRegistry.List()
}
