package id

import "github.com/cespare/xxhash/v2"

// Fingerprint returns a fast, non-cryptographic 64-bit hash of data.
// It is deterministic across runs and processes, which is the only
// property the reconciler and the broker callback plane rely on: the
// same input identity always derives the same broker app name.
func Fingerprint(data []byte) uint64 {
	return xxhash.Sum64(data)
}

// FingerprintString is a convenience wrapper for UTF-8 input identities
// (pull source URLs, push names).
func FingerprintString(s string) uint64 {
	return xxhash.Sum64String(s)
}
