// Package assign maps visitors onto experiment variants.
//
// The mapping is a pure function of the experiment definition and the
// visitor id, so the client snippet in internal/snippets can reproduce it
// without calling the server.
package assign

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// BucketRange is the number of discrete buckets. Bucket values are
// (hash mod BucketRange) / 100, giving two decimals of resolution in [0,100).
const BucketRange = 10000

// Bucket returns the visitor's position in [0,100) for the experiment.
// It is SHA-256 over experimentID + ":" + visitorID, with the first 8 hex
// characters read as an unsigned 32-bit integer.
func Bucket(experimentID, visitorID string) float64 {
	sum := sha256.Sum256([]byte(experimentID + ":" + visitorID))
	prefix := hex.EncodeToString(sum[:4])

	// 8 hex chars always fit in 32 bits.
	n, _ := strconv.ParseUint(prefix, 16, 32)

	return float64(n%BucketRange) / 100
}
