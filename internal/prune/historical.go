// Package prune finds ledger records that no longer match the current
// dataset declarations and removes them.
//
// A record is resurrected as a Historical dataset from its stored formula.
// It is latest when its type is still registered and instantiating that
// type today yields the same signature; every other record is stale and can
// be dropped without affecting any current build.
package prune

import (
	"fmt"
	"slices"

	"github.com/seeqbio/cabin/internal/dataset"
	"github.com/seeqbio/cabin/internal/formula"
	"github.com/seeqbio/cabin/internal/ledger"
	"github.com/seeqbio/cabin/internal/registry"
)

// Historical is a dataset instance as recorded in the past. Its inputs are
// Historical too, mirroring the nesting of formulas.
type Historical struct {
	formula   formula.Formula
	signature string
	name      string
	inputs    map[string]*Historical
}

// FromRecord resurrects a ledger record. A stored signature that does not
// match the stored formula is a LEDGER_INCONSISTENCY error.
func FromRecord(rec ledger.Record) (*Historical, error) {
	f, err := rec.ParseFormula()
	if err != nil {
		return nil, dataset.NewLedgerInconsistencyError(rec.Name, "unreadable formula: %v", err)
	}
	h := FromFormula(f)
	if h.signature != rec.Signature {
		return nil, dataset.NewLedgerInconsistencyError(rec.Name,
			"stored signature %s does not match formula signature %s", rec.Signature, h.signature)
	}
	h.name = rec.Name
	return h, nil
}

// FromFormula builds a Historical from a formula alone.
func FromFormula(f formula.Formula) *Historical {
	h := &Historical{formula: f, signature: formula.Signature(f)}
	if len(f.Inputs) > 0 {
		h.inputs = make(map[string]*Historical, len(f.Inputs))
		for key, sub := range f.Inputs {
			h.inputs[key] = FromFormula(sub)
		}
	}
	return h
}

// Type returns the recorded type name.
func (h *Historical) Type() string { return h.formula.Type }

// Version returns the recorded type version.
func (h *Historical) Version() string { return h.formula.Version }

// Signature returns the formula signature.
func (h *Historical) Signature() string { return h.signature }

// Formula returns the recorded formula.
func (h *Historical) Formula() formula.Formula { return h.formula }

// Inputs returns the recorded inputs by dependency key.
func (h *Historical) Inputs() map[string]*Historical { return h.inputs }

// IsRoot reports whether the recorded dataset had no inputs.
func (h *Historical) IsRoot() bool { return len(h.inputs) == 0 }

// RootVersions returns the versions of all root ancestors, inputs visited in
// key order.
func (h *Historical) RootVersions() []string {
	if h.IsRoot() {
		return []string{h.Version()}
	}
	var versions []string
	for _, key := range h.inputKeys() {
		versions = append(versions, h.inputs[key].RootVersions()...)
	}
	return versions
}

// Name returns the ledger name for records and the derived name for nested
// inputs.
func (h *Historical) Name() string {
	if h.name != "" {
		return h.name
	}
	return dataset.FormatName(h.Type(), h.RootVersions(), h.signature)
}

// IsLatest reports whether the type is still registered and currently
// instantiates to the same signature.
func (h *Historical) IsLatest(reg *registry.Registry) bool {
	inst, err := reg.Instance(h.Type())
	if err != nil {
		return false
	}
	return inst.Signature() == h.signature
}

// Explain lists why h is stale, one line per stale level, outermost first.
// A latest dataset has no reasons.
func (h *Historical) Explain(reg *registry.Registry) []string {
	var reasons []string
	h.explain(reg, &reasons)
	return reasons
}

func (h *Historical) explain(reg *registry.Registry, reasons *[]string) {
	inst, err := reg.Instance(h.Type())
	if err != nil {
		*reasons = append(*reasons, fmt.Sprintf("%s: unknown type", h.Type()))
		return
	}
	if inst.Signature() == h.signature {
		return
	}

	switch {
	case inst.Version() != h.Version():
		*reasons = append(*reasons, fmt.Sprintf("%s: version %s -> %s", h.Type(), h.Version(), inst.Version()))
	case !slices.Equal(inst.Formula().InputKeys(), h.formula.InputKeys()):
		*reasons = append(*reasons, fmt.Sprintf("%s: inputs changed", h.Type()))
		return
	default:
		*reasons = append(*reasons, fmt.Sprintf("%s: inputs changed", h.Type()))
	}
	for _, key := range h.inputKeys() {
		h.inputs[key].explain(reg, reasons)
	}
}

func (h *Historical) inputKeys() []string {
	return h.formula.InputKeys()
}
