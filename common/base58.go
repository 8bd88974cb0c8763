package common

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// Prefix is a base58check version prefix. The table below pins the textual
// form of every hash kind the baker handles; payload sizes are fixed per kind.
type Prefix struct {
	Tag     string
	Version []byte
	Length  int
}

var (
	ChainIDPrefix               = Prefix{"Net", []byte{87, 82, 0}, ChainIDLength}
	BlockHashPrefix             = Prefix{"B", []byte{1, 52}, HashLength}
	OperationHashPrefix         = Prefix{"o", []byte{5, 116}, HashLength}
	OperationListListHashPrefix = Prefix{"LLo", []byte{29, 159, 109}, HashLength}
	PayloadHashPrefix           = Prefix{"vh", []byte{1, 106, 242}, HashLength}
	ContextHashPrefix           = Prefix{"Co", []byte{79, 199}, HashLength}
	NonceHashPrefix             = Prefix{"nce", []byte{69, 220, 169}, HashLength}
	PKHPrefix                   = Prefix{"tz1", []byte{6, 161, 159}, PKHLength}
	SeedPrefix                  = Prefix{"edsk", []byte{13, 15, 58, 7}, 32}
	PublicKeyPrefix             = Prefix{"edpk", []byte{13, 15, 37, 217}, 32}
	SignaturePrefix             = Prefix{"edsig", []byte{9, 245, 205, 134, 18}, 64}
)

var (
	errBadChecksum = errors.New("base58check: bad checksum")
	errBadPrefix   = errors.New("base58check: version prefix mismatch")
)

// EncodeBase58Check returns the textual form of payload under the given
// prefix: base58(version ‖ payload ‖ sha256d-checksum[:4]).
func EncodeBase58Check(p Prefix, payload []byte) string {
	raw := make([]byte, 0, len(p.Version)+len(payload)+4)
	raw = append(raw, p.Version...)
	raw = append(raw, payload...)
	sum := checksum(raw)
	raw = append(raw, sum[:]...)
	return base58.Encode(raw)
}

// DecodeBase58Check parses s, verifies the checksum and the version prefix,
// and returns the raw payload of exactly p.Length bytes.
func DecodeBase58Check(p Prefix, s string) ([]byte, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return nil, err
	}
	if len(raw) != len(p.Version)+p.Length+4 {
		return nil, fmt.Errorf("base58check: %q is not a %s value", s, p.Tag)
	}
	body, sum := raw[:len(raw)-4], raw[len(raw)-4:]
	want := checksum(body)
	if !bytes.Equal(sum, want[:]) {
		return nil, errBadChecksum
	}
	if !bytes.Equal(body[:len(p.Version)], p.Version) {
		return nil, errBadPrefix
	}
	return body[len(p.Version):], nil
}

func checksum(b []byte) [4]byte {
	h := sha256.Sum256(b)
	h = sha256.Sum256(h[:])
	var out [4]byte
	copy(out[:], h[:4])
	return out
}
