// Package crypto holds the baker's key material and the digest primitives
// consensus messages are built on.
package crypto

import (
	"golang.org/x/crypto/blake2b"

	"github.com/tenderbake/tenderbake/common"
)

// Digest256 returns the 32-byte blake2b digest of data.
func Digest256(data []byte) common.Hash {
	return blake2b.Sum256(data)
}

// Digest160 returns the 20-byte blake2b digest used for public key hashes.
func Digest160(data []byte) common.PublicKeyHash {
	h, _ := blake2b.New(common.PKHLength, nil)
	h.Write(data)
	var out common.PublicKeyHash
	copy(out[:], h.Sum(nil))
	return out
}
