package dataset

import (
	"context"
	"regexp"
	"slices"
	"strings"
)

// Kind classifies dataset types for listing and filtering.
type Kind string

const (
	// KindExternal is a dataset that lives outside cabin, e.g. a file at a
	// versioned URL. It has no dependencies and is never produced locally.
	KindExternal Kind = "external"
	// KindFile is a local copy of its single input.
	KindFile Kind = "file"
	// KindMirror is a copy of its single input in the mirror store.
	KindMirror Kind = "mirror"
	// KindTable is a table imported into the relational store.
	KindTable Kind = "table"
	// KindCustom is any other node implementation.
	KindCustom Kind = "custom"
)

// Node is the behaviour every dataset variant implements.
type Node interface {
	// Exists reports whether this exact instance (by signature) is already
	// realized. Must be cheap and safe to call repeatedly.
	Exists(ctx context.Context, env *Env, inst *Instance) (bool, error)

	// Produce realizes the instance. It may assume every input exists and
	// the instance itself does not.
	Produce(ctx context.Context, env *Env, inst *Instance) error
}

// Checker is implemented by nodes with a post-production consistency check.
// A failing check fails the build even though Produce succeeded.
type Checker interface {
	Check(ctx context.Context, env *Env, inst *Instance) error
}

// Cleaner is implemented by nodes that can remove a partially or fully
// produced instance. The build engine calls it after any failure so that a
// failed instance never reports Exists.
type Cleaner interface {
	Cleanup(ctx context.Context, env *Env, inst *Instance) error
}

// Locator is implemented by nodes whose instances can be read by dependents
// from a location: a URL, a local path or a mirror key.
type Locator interface {
	Location(env *Env, inst *Instance) (string, error)
}

// Dependency is one named input of a Type.
type Dependency struct {
	Key  string // defaults to Type.Name
	Type *Type
}

// DependencyKey returns d's key, defaulting to the dependency type's name.
func (d Dependency) DependencyKey() string {
	if d.Key != "" {
		return d.Key
	}
	if d.Type != nil {
		return d.Type.Name
	}
	return ""
}

// On declares a dependency on t under t's own name.
func On(t *Type) Dependency {
	return Dependency{Type: t}
}

// Type is a dataset type declaration: exactly one per concept, e.g. "the
// gene-info table". Version must be bumped whenever Node's production logic
// changes semantically.
type Type struct {
	Name    string
	Version string
	Depends []Dependency
	Tags    []string
	Kind    Kind
	Node    Node
}

var (
	namePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_.-]*$`)
)

// Validate checks the declaration itself (not its transitive closure).
func (t *Type) Validate() error {
	if t == nil {
		return NewMalformedError("", "nil type")
	}
	if !namePattern.MatchString(t.Name) {
		return NewMalformedError(t.Name, "invalid type name %q", t.Name)
	}
	if t.Version == "" {
		return NewMalformedError(t.Name, "missing version")
	}
	if strings.Contains(t.Version, "::") {
		return NewMalformedError(t.Name, "version %q must not contain \"::\"", t.Version)
	}
	if t.Node == nil {
		return NewMalformedError(t.Name, "missing node implementation")
	}

	seen := make(map[string]bool, len(t.Depends))
	for i, dep := range t.Depends {
		if dep.Type == nil {
			return NewMalformedError(t.Name, "dependency %d has no type", i)
		}
		if dep.Type == t || dep.Type.Name == t.Name {
			return NewMalformedError(t.Name, "type depends on itself")
		}
		key := dep.DependencyKey()
		if !namePattern.MatchString(key) {
			return NewMalformedError(t.Name, "invalid dependency key %q", key)
		}
		if seen[key] {
			return NewMalformedError(t.Name, "duplicate dependency key %q", key)
		}
		seen[key] = true
	}
	return nil
}

// DependsOn reports whether t lists other as a direct dependency.
func (t *Type) DependsOn(other *Type) bool {
	return slices.ContainsFunc(t.Depends, func(d Dependency) bool { return d.Type == other })
}

// HasTag reports whether t carries the tag.
func (t *Type) HasTag(tag string) bool {
	return slices.Contains(t.Tags, tag)
}

// IsTable reports whether t is an imported table.
func (t *Type) IsTable() bool {
	return t.Kind == KindTable
}

// DependencyKeys returns the dependency keys in declared order.
func (t *Type) DependencyKeys() []string {
	keys := make([]string, len(t.Depends))
	for i, d := range t.Depends {
		keys[i] = d.DependencyKey()
	}
	return keys
}

// DependencyNames returns the names of the dependency types in declared
// order.
func (t *Type) DependencyNames() []string {
	names := make([]string, len(t.Depends))
	for i, d := range t.Depends {
		names[i] = d.Type.Name
	}
	return names
}
