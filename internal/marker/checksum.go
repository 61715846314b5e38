package marker

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// checksum computes the marker checksum: blake3 truncated to 8 hex bytes
// fast, non-cryptographic blake3 hash, the same algorithm used for
// write and verify.
func checksum(body string) string {
	sum := blake3.Sum256([]byte(body))
	return hex.EncodeToString(sum[:8])
}
