package object

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// HashBytes computes the BLAKE2b-256 hash of data and returns it as a
// lowercase hex-encoded Hash.
func HashBytes(data []byte) Hash {
	sum := blake2b.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// HashLines hashes a line sequence as the concatenation of its lines.
// Lines are expected to carry their own terminators.
func HashLines(lines [][]byte) Hash {
	h, _ := blake2b.New256(nil)
	for _, l := range lines {
		h.Write(l)
	}
	return Hash(hex.EncodeToString(h.Sum(nil)))
}
