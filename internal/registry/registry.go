// Package registry holds the set of known dataset types and answers
// lookups by name, glob, tag and reverse dependency.
package registry

import (
	"path"
	"slices"
	"sync"

	"github.com/seeqbio/cabin/internal/dataset"
)

// Registry maps type names to types. The zero value is not usable; call New.
//
// Thread-safety: all methods are safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	types     map[string]*dataset.Type
	instances map[string]*dataset.Instance
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		types:     make(map[string]*dataset.Type),
		instances: make(map[string]*dataset.Instance),
	}
}

// Register adds types. A name already taken by a different type is a
// MALFORMED_TYPE error; registering the same type twice is a no-op.
// Nothing is registered if any type fails.
func (r *Registry) Register(types ...*dataset.Type) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pending := make(map[string]*dataset.Type, len(types))
	for _, t := range types {
		if err := t.Validate(); err != nil {
			return err
		}
		existing, ok := r.types[t.Name]
		if !ok {
			existing, ok = pending[t.Name]
		}
		if ok && existing != t {
			return dataset.NewMalformedError(t.Name, "duplicate dataset type name")
		}
		pending[t.Name] = t
	}
	for name, t := range pending {
		r.types[name] = t
	}
	clear(r.instances)
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(types ...*dataset.Type) {
	if err := r.Register(types...); err != nil {
		panic(err)
	}
}

// Len returns the number of registered types.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.types)
}

// Resolve returns the type with the given name.
func (r *Registry) Resolve(name string) (*dataset.Type, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[name]
	if !ok {
		return nil, dataset.NewUnknownTypeError(name)
	}
	return t, nil
}

// All returns every type sorted by name.
func (r *Registry) All() []*dataset.Type {
	return r.filter(func(*dataset.Type) bool { return true })
}

// Match returns the types whose names match the shell glob, sorted by name.
// A malformed glob matches nothing.
func (r *Registry) Match(glob string, tablesOnly bool) []*dataset.Type {
	return r.filter(func(t *dataset.Type) bool {
		if tablesOnly && !t.IsTable() {
			return false
		}
		ok, err := path.Match(glob, t.Name)
		return err == nil && ok
	})
}

// MatchAll returns the union of Match over globs, sorted by name. A glob
// that matches nothing is an UNKNOWN_TYPE error naming the glob.
func (r *Registry) MatchAll(globs []string, tablesOnly bool) ([]*dataset.Type, error) {
	seen := make(map[string]*dataset.Type)
	for _, g := range globs {
		matched := r.Match(g, tablesOnly)
		if len(matched) == 0 {
			return nil, dataset.NewUnknownTypeError(g)
		}
		for _, t := range matched {
			seen[t.Name] = t
		}
	}
	return sortedTypes(seen), nil
}

// Tagged returns the types carrying tag, sorted by name.
func (r *Registry) Tagged(tag string) []*dataset.Type {
	return r.filter(func(t *dataset.Type) bool { return t.HasTag(tag) })
}

// Dependents returns the registered types that list t as a direct
// dependency, sorted by name.
func (r *Registry) Dependents(t *dataset.Type) []*dataset.Type {
	return r.filter(func(other *dataset.Type) bool { return other.DependsOn(t) })
}

// Instance resolves name and instantiates it. Instances are cached until
// the next Register.
func (r *Registry) Instance(name string) (*dataset.Instance, error) {
	t, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	inst, ok := r.instances[name]
	r.mu.RUnlock()
	if ok {
		return inst, nil
	}

	inst, err = dataset.New(t)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.instances[name] = inst
	r.mu.Unlock()
	return inst, nil
}

func (r *Registry) filter(keep func(*dataset.Type) bool) []*dataset.Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*dataset.Type)
	for name, t := range r.types {
		if keep(t) {
			out[name] = t
		}
	}
	return sortedTypes(out)
}

func sortedTypes(m map[string]*dataset.Type) []*dataset.Type {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	slices.Sort(names)
	out := make([]*dataset.Type, len(names))
	for i, name := range names {
		out[i] = m[name]
	}
	return out
}
