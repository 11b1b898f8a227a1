// Package harness runs build scenarios described in YAML against a real
// ledger and store.
//
// # Scenario Format
//
//	name: leaf_mid_root
//	description: "What this scenario validates"
//	catalog: ../catalogs/leaf_mid_root   # CUE catalog directory
//	sources:                             # served by the in-memory fetcher
//	  "mem://genes/v1.tsv": "#id\tname\n1\tBRCA1\n"
//	flow:
//	  - action: import
//	    targets: [Root]
//	    expect:
//	      produced: [Leaf, Mid, Root]
//	  - action: bump
//	    versions: {Mid: M2}
//	  - action: prune
//	    expect:
//	      pruned: [Mid, Root]
//	assertions:
//	  - type: ledger_count
//	    dataset: Root
//	    count: 1
//
// Actions are import, bump, prune and drop. A bump changes the version of a
// catalog type for every later step; the catalog is recompiled with the
// bumped versions each time the registry is needed.
//
// # Assertion Types
//
//   - built: the current instance of a type is in the ledger
//   - missing: the current instance of a type is not in the ledger
//   - ledger_count: the ledger holds exactly count versions of a type
//   - row_count: the current table of a type holds exactly count rows
//   - trace_order: the given events appear in the trace in order
//
// Traces name types and versions but never signatures, so golden files stay
// readable and stable across formula changes.
package harness
