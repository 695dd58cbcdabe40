package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainResult   = "brandquest/result/v1"
	DomainSnapshot = "brandquest/snapshot/v1"
)

// Fingerprint is a hex SHA-256 digest of canonical content.
type Fingerprint string

// Short returns the first 12 hex characters, for logs.
func (f Fingerprint) Short() string {
	if len(f) <= 12 {
		return string(f)
	}
	return string(f[:12])
}

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) Fingerprint {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return Fingerprint(hex.EncodeToString(h.Sum(nil)))
}

// Digest computes the domain-separated fingerprint of a value.
func Digest(domain string, v Value) (Fingerprint, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("digest %s: %w", domain, err)
	}
	return hashWithDomain(domain, canonical), nil
}

// MustDigest is like Digest but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustDigest(domain string, v Value) Fingerprint {
	fp, err := Digest(domain, v)
	if err != nil {
		panic(err)
	}
	return fp
}
