package ledger

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Digest returns the hex BLAKE3 digest of a context slice. Recorded next to
// completion entries so a tree's inputs can be correlated after the fact,
// and reused to derive collision-free scratch file names.
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ShortDigest returns the first 12 hex characters of Digest, enough for
// file naming.
func ShortDigest(data []byte) string {
	return Digest(data)[:12]
}
