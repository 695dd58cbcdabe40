// Package ir provides the constrained value model used for content-addressed
// fingerprints of mission results.
//
// This package imports nothing internal. Every other package that needs a
// stable digest converts its data into ir values first.
//
// Key design constraints:
//   - NO float types anywhere; scores and indices are int64
//   - NO null; absent data is an absent key
//   - Object keys ordered by UTF-16 code units (RFC 8785)
//   - Wall-clock fields never enter a fingerprint
package ir
