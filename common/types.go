// Package common contains the fixed-size value types shared across the baker:
// chain-level hashes, the chain identifier and validator key hashes, together
// with their base58check textual forms.
package common

import (
	"encoding/hex"
	"fmt"
)

const (
	// HashLength is the length in bytes of block, payload and operation hashes.
	HashLength = 32
	// ChainIDLength is the length in bytes of a chain identifier.
	ChainIDLength = 4
	// PKHLength is the length in bytes of a public key hash.
	PKHLength = 20
	// NonceLength is the length in bytes of a proof-of-work nonce.
	NonceLength = 8
)

// Hash represents a 32-byte block hash.
type Hash [HashLength]byte

// PayloadHash represents the 32-byte commitment to a block's payload.
type PayloadHash [HashLength]byte

// OperationHash represents the 32-byte hash of an injected operation.
type OperationHash [HashLength]byte

// OperationListListHash represents the merkle root over a block's operation lists.
type OperationListListHash [HashLength]byte

// NonceHash represents a 32-byte seed nonce commitment.
type NonceHash [HashLength]byte

// ChainID identifies the chain consensus messages are bound to.
type ChainID [ChainIDLength]byte

// PublicKeyHash identifies a validator (a tz1 address).
type PublicKeyHash [PKHLength]byte

// BytesToHash sets b to hash, left-padding if b is short and cropping from
// the left if it is long.
func BytesToHash(b []byte) Hash {
	var h Hash
	if len(b) > HashLength {
		b = b[len(b)-HashLength:]
	}
	copy(h[HashLength-len(b):], b)
	return h
}

// HexToHash parses a hex string, with or without 0x prefix, into a Hash.
func HexToHash(s string) Hash {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	b, _ := hex.DecodeString(s)
	return BytesToHash(b)
}

func (h Hash) Bytes() []byte { return h[:] }

// IsZero reports whether the hash is all zeroes.
func (h Hash) IsZero() bool { return h == Hash{} }

// String returns the b58check block hash form.
func (h Hash) String() string { return EncodeBase58Check(BlockHashPrefix, h[:]) }

func (p PayloadHash) Bytes() []byte { return p[:] }

// IsZero reports whether the payload hash is the "compute from contents" sentinel.
func (p PayloadHash) IsZero() bool { return p == PayloadHash{} }

// String returns the b58check payload hash form.
func (p PayloadHash) String() string { return EncodeBase58Check(PayloadHashPrefix, p[:]) }

func (o OperationHash) Bytes() []byte { return o[:] }

// String returns the b58check operation hash form.
func (o OperationHash) String() string { return EncodeBase58Check(OperationHashPrefix, o[:]) }

func (l OperationListListHash) Bytes() []byte { return l[:] }

// String returns the b58check operation list list hash form.
func (l OperationListListHash) String() string {
	return EncodeBase58Check(OperationListListHashPrefix, l[:])
}

func (n NonceHash) Bytes() []byte { return n[:] }

// String returns the b58check nonce hash form.
func (n NonceHash) String() string { return EncodeBase58Check(NonceHashPrefix, n[:]) }

func (c ChainID) Bytes() []byte { return c[:] }

// String returns the b58check chain id form.
func (c ChainID) String() string { return EncodeBase58Check(ChainIDPrefix, c[:]) }

func (p PublicKeyHash) Bytes() []byte { return p[:] }

// String returns the b58check tz1 address form.
func (p PublicKeyHash) String() string { return EncodeBase58Check(PKHPrefix, p[:]) }

// ParseHash parses a b58check block hash.
func ParseHash(s string) (Hash, error) {
	var h Hash
	b, err := DecodeBase58Check(BlockHashPrefix, s)
	if err != nil {
		return h, err
	}
	copy(h[:], b)
	return h, nil
}

// ParsePayloadHash parses a b58check payload hash.
func ParsePayloadHash(s string) (PayloadHash, error) {
	var h PayloadHash
	b, err := DecodeBase58Check(PayloadHashPrefix, s)
	if err != nil {
		return h, err
	}
	copy(h[:], b)
	return h, nil
}

// ParseOperationHash parses a b58check operation hash.
func ParseOperationHash(s string) (OperationHash, error) {
	var h OperationHash
	b, err := DecodeBase58Check(OperationHashPrefix, s)
	if err != nil {
		return h, err
	}
	copy(h[:], b)
	return h, nil
}

// ParseChainID parses a b58check chain id.
func ParseChainID(s string) (ChainID, error) {
	var c ChainID
	b, err := DecodeBase58Check(ChainIDPrefix, s)
	if err != nil {
		return c, err
	}
	copy(c[:], b)
	return c, nil
}

// ParsePublicKeyHash parses a b58check tz1 address.
func ParsePublicKeyHash(s string) (PublicKeyHash, error) {
	var p PublicKeyHash
	b, err := DecodeBase58Check(PKHPrefix, s)
	if err != nil {
		return p, err
	}
	copy(p[:], b)
	return p, nil
}

// Format implements fmt.Formatter so %v and %s print the b58check form and
// %x the raw bytes.
func (h Hash) Format(s fmt.State, c rune) {
	switch c {
	case 'x', 'X':
		fmt.Fprintf(s, "%"+string(c), h[:])
	default:
		fmt.Fprint(s, h.String())
	}
}
