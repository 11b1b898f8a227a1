package formula

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
)

// Formula is the recursive version fingerprint of a dataset instance.
//
// Inputs is keyed by dependency key. A leaf has no inputs; nil and empty
// Inputs serialize identically.
type Formula struct {
	Type    string
	Version string
	Inputs  map[string]Formula
}

// Leaf returns a formula without inputs.
func Leaf(typ, version string) Formula {
	return Formula{Type: typ, Version: version}
}

// IsLeaf reports whether the formula has no inputs.
func (f Formula) IsLeaf() bool {
	return len(f.Inputs) == 0
}

// InputKeys returns the input keys in canonical order.
func (f Formula) InputKeys() []string {
	keys := make([]string, 0, len(f.Inputs))
	for k := range f.Inputs {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// Signature returns the short content hash of the canonical formula.
func (f Formula) Signature() string {
	return Signature(f)
}

// Equal reports whether two formulas have identical canonical serializations.
func Equal(a, b Formula) bool {
	return bytes.Equal(MustMarshalCanonical(a), MustMarshalCanonical(b))
}

// MarshalJSON implements json.Marshaler using the canonical form, so a
// formula embedded in other JSON documents still reads back identically.
func (f Formula) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(f)
}

// UnmarshalJSON implements json.Unmarshaler via Parse.
func (f *Formula) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// wireFormula is the decoding shape of a stored formula.
type wireFormula struct {
	Type    *string                    `json:"type"`
	Version *string                    `json:"version"`
	Inputs  map[string]json.RawMessage `json:"inputs"`
}

// Parse decodes a formula previously produced by MarshalCanonical.
// Non-canonical (but equivalent) JSON is accepted; unknown fields, missing
// type/version and non-string leaves are rejected.
func Parse(data []byte) (Formula, error) {
	return parse(data, "formula")
}

func parse(data []byte, path string) (Formula, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var w wireFormula
	if err := dec.Decode(&w); err != nil {
		return Formula{}, fmt.Errorf("%s: %w", path, err)
	}
	if w.Type == nil || *w.Type == "" {
		return Formula{}, fmt.Errorf("%s: missing type", path)
	}
	if w.Version == nil || *w.Version == "" {
		return Formula{}, fmt.Errorf("%s: missing version", path)
	}

	f := Formula{Type: *w.Type, Version: *w.Version}
	if len(w.Inputs) > 0 {
		f.Inputs = make(map[string]Formula, len(w.Inputs))
		for key, raw := range w.Inputs {
			sub, err := parse(raw, path+".inputs."+key)
			if err != nil {
				return Formula{}, err
			}
			f.Inputs[key] = sub
		}
	}
	return f, nil
}
