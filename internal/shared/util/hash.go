package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// ContentHash returns the hex sha256 of data. Staged CSV inputs are keyed by
// it so re-enqueueing the same file reuses the stored object.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
