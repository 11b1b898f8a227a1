package formula

import (
	"crypto/sha256"
	"encoding/hex"
)

// DomainFormula is the domain prefix for formula signatures.
// The version suffix leaves room for a future algorithm migration.
const DomainFormula = "cabin/formula/v1"

// SignatureLength is the number of hex characters kept from the digest.
// Short signatures keep dataset and table names legible.
const SignatureLength = 8

// hashWithDomain computes SHA-256 with domain separation:
// SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Signature computes the formula signature: the first SignatureLength hex
// characters of the domain-separated SHA-256 of the canonical formula.
func Signature(f Formula) string {
	return hashWithDomain(DomainFormula, MustMarshalCanonical(f))[:SignatureLength]
}

// SignatureOf computes the signature of an already canonical formula
// serialization, e.g. the ledger's formula column.
func SignatureOf(canonical []byte) string {
	return hashWithDomain(DomainFormula, canonical)[:SignatureLength]
}
