package fix

import (
	"crypto/sha256"
	"fmt"
	"math"
)

// Fingerprint returns a content hash over the fields that survive
// coarsening. Two fixes with the same fingerprint produce the same coarse
// fix under the same obfuscation vector, regardless of their stripped
// metadata or object identity.
func (f Fix) Fingerprint() string {
	signature := fmt.Sprintf("%s|%d|%016x|%016x|%016x",
		f.Provider,
		f.Time.UnixNano(),
		math.Float64bits(f.Latitude),
		math.Float64bits(f.Longitude),
		math.Float64bits(f.Accuracy),
	)

	hash := sha256.Sum256([]byte(signature))
	return fmt.Sprintf("%x", hash)
}
