package baker

import "github.com/tenderbake/tenderbake/protocol"

// powSeed is the nonce the search starts from. Any starting point yields a
// valid stamp; a fixed one keeps runs reproducible.
var powSeed = [8]byte{0x79, 0x85, 0xfa, 0xfe, 0x1f, 0xb7, 0x03, 0x00}

// guessProofOfWork brute-forces the header's 8-byte nonce until the first 8
// bytes of the header digest, read big-endian, do not exceed threshold. The
// header's signature field is hashed as 64 zero bytes during the search.
// The search is single-threaded and deterministic given the seed.
func guessProofOfWork(header *protocol.BlockHeader, threshold uint64) [8]byte {
	nonce := powSeed
	for {
		header.ProofOfWorkNonce = nonce
		if header.PowDigest() <= threshold {
			return nonce
		}
		for i := len(nonce) - 1; i >= 0; i-- {
			nonce[i]++
			if nonce[i] != 0 {
				break
			}
		}
	}
}
