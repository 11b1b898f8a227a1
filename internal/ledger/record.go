package ledger

import (
	"fmt"

	"github.com/seeqbio/cabin/internal/formula"
)

// StorageKind identifies what kind of object a ledger row's storage name
// refers to.
type StorageKind string

const (
	// StorageTable is a table in the relational store.
	StorageTable StorageKind = "table"
	// StorageFile is a file on the local filesystem.
	StorageFile StorageKind = "file"
	// StorageMirror is an object in the mirror store.
	StorageMirror StorageKind = "mirror"
)

// Record is one ledger row.
type Record struct {
	Signature   string      `json:"signature"`
	Type        string      `json:"type"`
	Name        string      `json:"name"`
	StorageName string      `json:"storage_name"`
	StorageKind StorageKind `json:"storage_kind"`
	Formula     string      `json:"formula"` // canonical JSON
	Producer    string      `json:"producer,omitempty"`
}

// Validate checks that every required column is set.
func (r Record) Validate() error {
	switch {
	case r.Signature == "":
		return fmt.Errorf("ledger record: missing signature")
	case r.Type == "":
		return fmt.Errorf("ledger record %s: missing type", r.Signature)
	case r.Name == "":
		return fmt.Errorf("ledger record %s: missing name", r.Signature)
	case r.StorageName == "":
		return fmt.Errorf("ledger record %s: missing storage name", r.Signature)
	case r.StorageKind == "":
		return fmt.Errorf("ledger record %s: missing storage kind", r.Signature)
	case r.Formula == "":
		return fmt.Errorf("ledger record %s: missing formula", r.Signature)
	}
	return nil
}

// ParseFormula decodes the record's stored formula.
func (r Record) ParseFormula() (formula.Formula, error) {
	f, err := formula.Parse([]byte(r.Formula))
	if err != nil {
		return formula.Formula{}, fmt.Errorf("ledger record %s: %w", r.Name, err)
	}
	return f, nil
}
