package dataset

import (
	"fmt"
	"slices"
	"strings"

	"github.com/seeqbio/cabin/internal/formula"
)

// Instance is a dataset type together with fully instantiated inputs.
// Instances are immutable once constructed.
type Instance struct {
	typ       *Type
	inputs    []*Instance // declared order
	keys      []string    // declared order, parallel to inputs
	formula   formula.Formula
	signature string
}

// New instantiates t: every declared dependency is instantiated first
// (recursively, in declared order), then the formula and signature are
// computed from the dependency formulas and t's own type and version.
//
// Malformed declarations, including dependency cycles, fail with a
// MALFORMED_TYPE error before anything is computed.
func New(t *Type) (*Instance, error) {
	return newInstance(t, nil, make(map[*Type]*Instance))
}

// MustNew is like New but panics on error.
// Use only in tests or for statically known types.
func MustNew(t *Type) *Instance {
	inst, err := New(t)
	if err != nil {
		panic(err)
	}
	return inst
}

func newInstance(t *Type, path []*Type, memo map[*Type]*Instance) (*Instance, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if slices.Contains(path, t) {
		names := make([]string, 0, len(path)+1)
		for _, p := range path {
			names = append(names, p.Name)
		}
		names = append(names, t.Name)
		return nil, NewMalformedError(t.Name, "dependency cycle: %s", strings.Join(names, " -> "))
	}
	if inst, ok := memo[t]; ok {
		return inst, nil
	}

	path = append(path, t)
	inst := &Instance{typ: t}
	f := formula.Formula{Type: t.Name, Version: t.Version}
	if len(t.Depends) > 0 {
		f.Inputs = make(map[string]formula.Formula, len(t.Depends))
	}
	for _, dep := range t.Depends {
		sub, err := newInstance(dep.Type, path, memo)
		if err != nil {
			return nil, err
		}
		key := dep.DependencyKey()
		inst.inputs = append(inst.inputs, sub)
		inst.keys = append(inst.keys, key)
		f.Inputs[key] = sub.formula
	}
	inst.formula = f
	inst.signature = formula.Signature(f)

	memo[t] = inst
	return inst, nil
}

// Type returns the instance's type.
func (i *Instance) Type() *Type { return i.typ }

// TypeName returns the instance's type name.
func (i *Instance) TypeName() string { return i.typ.Name }

// Version returns the type version this instance was built from.
func (i *Instance) Version() string { return i.typ.Version }

// Formula returns the instance's formula.
func (i *Instance) Formula() formula.Formula { return i.formula }

// FormulaJSON returns the canonical serialization of the formula.
func (i *Instance) FormulaJSON() string {
	return string(formula.MustMarshalCanonical(i.formula))
}

// Signature returns the formula signature.
func (i *Instance) Signature() string { return i.signature }

// Inputs returns the input instances in declared order.
func (i *Instance) Inputs() []*Instance {
	return append([]*Instance(nil), i.inputs...)
}

// InputKeys returns the input keys in declared order.
func (i *Instance) InputKeys() []string {
	return append([]string(nil), i.keys...)
}

// Input returns the input with the given dependency key.
func (i *Instance) Input(key string) (*Instance, bool) {
	idx := slices.Index(i.keys, key)
	if idx < 0 {
		return nil, false
	}
	return i.inputs[idx], true
}

// Sole returns the only input of an instance with exactly one dependency.
func (i *Instance) Sole() (*Instance, error) {
	if len(i.inputs) != 1 {
		return nil, fmt.Errorf("%s: expected exactly one input, have %d", i.typ.Name, len(i.inputs))
	}
	return i.inputs[0], nil
}

// IsRoot reports whether the instance has no inputs. Roots are typically
// external sources.
func (i *Instance) IsRoot() bool {
	return len(i.inputs) == 0
}

// RootVersions returns the versions of all root ancestors, inputs visited in
// key order. Duplicates are kept.
func (i *Instance) RootVersions() []string {
	if i.IsRoot() {
		return []string{i.typ.Version}
	}

	keys := i.InputKeys()
	slices.Sort(keys)
	var versions []string
	for _, key := range keys {
		in, _ := i.Input(key)
		versions = append(versions, in.RootVersions()...)
	}
	return versions
}

// Name is the instance's unique, legible identifier:
//
//	<type>::<root version>[::<root version>]::<signature>
//
// Only the signature matters for uniqueness; the type and the first two
// root versions are there for people reading table names.
func (i *Instance) Name() string {
	return FormatName(i.typ.Name, i.RootVersions(), i.signature)
}

// FormatName builds a dataset name from its parts.
func FormatName(typ string, roots []string, signature string) string {
	if len(roots) > 2 {
		roots = roots[:2]
	}
	parts := append([]string{typ}, roots...)
	parts = append(parts, signature)
	return strings.Join(parts, "::")
}

// Description is a human-readable summary used in logs.
func (i *Instance) Description() string {
	roots := slices.Compact(slices.Sorted(slices.Values(i.RootVersions())))
	return fmt.Sprintf("%s (sha %s, roots %s)", i.typ.Name, i.signature, strings.Join(roots, ", "))
}

// Walk visits the instance and all of its ancestors depth-first, inputs
// before the instance itself. Shared ancestors are visited once.
func (i *Instance) Walk(fn func(*Instance)) {
	seen := make(map[*Instance]bool)
	var visit func(*Instance)
	visit = func(n *Instance) {
		if seen[n] {
			return
		}
		seen[n] = true
		for _, in := range n.inputs {
			visit(in)
		}
		fn(n)
	}
	visit(i)
}

// Equal reports whether two instances have the same signature.
func (i *Instance) Equal(other *Instance) bool {
	return other != nil && i.signature == other.signature
}
