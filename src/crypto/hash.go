package crypto

import (
	"crypto/sha256"
)

// SHA256 returns the SHA256 digest of data.
func SHA256(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// SimpleHashFromTwoHashes returns the SHA256 digest of left and right
// concatenated. It combines the digests of a transaction's type and payload
// into the single digest covered by the signature.
func SimpleHashFromTwoHashes(left, right []byte) []byte {
	hasher := sha256.New()
	hasher.Write(left)
	hasher.Write(right)
	return hasher.Sum(nil)
}
