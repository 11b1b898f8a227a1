// Package dataset defines dataset types, their instances and the node
// variants that realize them.
//
// A Type is a static declaration: a name, a version and named
// dependencies on other types. Instantiating a Type with New walks its
// dependencies and computes the instance's formula and signature, which
// identify the exact artifact the instance stands for. Two instances with
// the same signature are interchangeable.
//
// The Node of a type decides how an instance is realized:
//
//   - External: a source outside cabin; only checked, never produced
//   - LocalFile and MirroredFile: downloads into the download directory
//   - Mirror: a copy kept in the mirror store
//   - Table: a table in the relational store, filled by an Importer
//
// Nodes receive an Env carrying the store, the ledger and the fetch and
// mirror collaborators. Every produced artifact gets a ledger row.
package dataset
