// Package digest derives the content fingerprints used for change detection
// and the anonymized per-account bucket identifiers.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
)

// bucketLen is the number of hex characters kept from the account hash.
const bucketLen = 24

// Sum returns the lowercase hex sha256 of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// String is Sum over the bytes of s.
func String(s string) string {
	return Sum([]byte(s))
}

// Bucket maps an account identifier to the opaque namespace used in every
// persisted key and file path, so the identifier itself is never stored.
func Bucket(account string) string {
	return String(account)[:bucketLen]
}
