// Package formula provides the content-addressed identity of dataset
// instances.
//
// A Formula captures a dataset instance's type, version and the formulas of
// all of its inputs, recursively. Its canonical serialization is independent
// of the order in which inputs were declared, so the Signature of a formula is
// a pure function of its content.
//
// Key constraints:
//   - MarshalCanonical is the ONLY serialization used for signatures and for
//     the ledger's formula column
//   - Signatures are SHA-256 with domain separation, truncated to
//     SignatureLength hex characters
//   - This package imports nothing internal
package formula
