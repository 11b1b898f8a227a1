package testutil

import (
	"github.com/seeqbio/cabin/internal/dataset"
)

// Chain is a three-table lineage Leaf <- Mid <- Root used across packages:
// Leaf holds two static rows, Mid copies Leaf and Root copies Mid.
type Chain struct {
	Leaf, Mid, Root *dataset.Type
}

// LeafRows are the records imported into Leaf.
var LeafRows = dataset.StaticRecords{
	{"id": "1", "label": "alpha"},
	{"id": "2", "label": "beta"},
}

// NewChain declares the chain at the given versions.
func NewChain(leafVersion, midVersion, rootVersion string) Chain {
	leaf := &dataset.Type{
		Name:    "Leaf",
		Version: leafVersion,
		Kind:    dataset.KindTable,
		Node: dataset.Table{
			Schema: "CREATE TABLE {table} (id INTEGER, label TEXT)",
			Importer: dataset.RecordImporter{
				Columns: []string{"id", "label"},
				Reader:  LeafRows,
			},
		},
	}
	mid := &dataset.Type{
		Name:    "Mid",
		Version: midVersion,
		Kind:    dataset.KindTable,
		Depends: []dataset.Dependency{dataset.On(leaf)},
		Node: dataset.Table{
			Schema:   "CREATE TABLE {table} (id INTEGER, label TEXT)",
			Importer: dataset.SQLImporter{Query: "INSERT INTO {table} (id, label) SELECT id, label FROM {input:Leaf}"},
			MinRows:  1,
		},
	}
	root := &dataset.Type{
		Name:    "Root",
		Version: rootVersion,
		Kind:    dataset.KindTable,
		Depends: []dataset.Dependency{dataset.On(mid)},
		Node: dataset.Table{
			Schema:   "CREATE TABLE {table} (id INTEGER, label TEXT)",
			Importer: dataset.SQLImporter{Query: "INSERT INTO {table} (id, label) SELECT id, label FROM {input:Mid}"},
		},
	}
	return Chain{Leaf: leaf, Mid: mid, Root: root}
}

// Types returns the chain's types leaves first.
func (c Chain) Types() []*dataset.Type {
	return []*dataset.Type{c.Leaf, c.Mid, c.Root}
}
