package protocol

import (
	"encoding/binary"
	"encoding/hex"
	"errors"

	"github.com/tenderbake/tenderbake/common"
	"github.com/tenderbake/tenderbake/crypto"
)

var errShortFitness = errors.New("protocol: short fitness component")

// ProtocolHeader is the protocol-specific part of a block header, the piece
// the proposer fills in before preapply.
type ProtocolHeader struct {
	PayloadHash               common.PayloadHash
	PayloadRound              int32
	ProofOfWorkNonce          [common.NonceLength]byte
	SeedNonceHash             *common.NonceHash
	LiquidityBakingEscapeVote bool
	Signature                 []byte
}

// Encode returns the binary protocol part without the signature.
func (p *ProtocolHeader) Encode() []byte {
	out := make([]byte, 0, 2*common.HashLength+common.NonceLength+8)
	out = append(out, p.PayloadHash[:]...)
	out = binary.BigEndian.AppendUint32(out, uint32(p.PayloadRound))
	out = append(out, p.ProofOfWorkNonce[:]...)
	if p.SeedNonceHash != nil {
		out = append(out, 0xff)
		out = append(out, p.SeedNonceHash[:]...)
	} else {
		out = append(out, 0x00)
	}
	if p.LiquidityBakingEscapeVote {
		out = append(out, 0xff)
	} else {
		out = append(out, 0x00)
	}
	return out
}

// BlockHeader is a full header: the shell part finalized by preapply plus the
// protocol part.
type BlockHeader struct {
	Level          int32
	Proto          uint8
	Predecessor    common.Hash
	Timestamp      int64
	ValidationPass uint8
	OperationsHash common.OperationListListHash
	Fitness        [][]byte
	Context        common.Hash

	ProtocolHeader
}

// EncodeUnsigned returns the signing body: shell part followed by the
// protocol part, no signature.
func (h *BlockHeader) EncodeUnsigned() []byte {
	out := make([]byte, 0, 128)
	out = binary.BigEndian.AppendUint32(out, uint32(h.Level))
	out = append(out, h.Proto)
	out = append(out, h.Predecessor[:]...)
	out = binary.BigEndian.AppendUint64(out, uint64(h.Timestamp))
	out = append(out, h.ValidationPass)
	out = append(out, h.OperationsHash[:]...)
	fitness := make([]byte, 0, 32)
	for _, f := range h.Fitness {
		fitness = binary.BigEndian.AppendUint32(fitness, uint32(len(f)))
		fitness = append(fitness, f...)
	}
	out = binary.BigEndian.AppendUint32(out, uint32(len(fitness)))
	out = append(out, fitness...)
	out = append(out, h.Context[:]...)
	out = append(out, h.ProtocolHeader.Encode()...)
	return out
}

// Encode returns the header with its 64-byte signature appended. An unset
// signature encodes as zeroes, the form the proof-of-work search hashes.
func (h *BlockHeader) Encode() []byte {
	out := h.EncodeUnsigned()
	sig := h.Signature
	if len(sig) == 0 {
		sig = make([]byte, 64)
	}
	return append(out, sig...)
}

// PowDigest returns the big-endian reading of the first 8 bytes of the
// header's digest, the quantity compared against the proof-of-work threshold.
func (h *BlockHeader) PowDigest() uint64 {
	d := crypto.Digest256(h.Encode())
	return binary.BigEndian.Uint64(d[:8])
}

// RoundFromFitness extracts the round from a tenderbake fitness: the last
// component is the round as a big-endian signed 32-bit integer. An empty
// fitness (pre-tenderbake predecessors) reads as round 0.
func RoundFromFitness(fitness []string) (int32, error) {
	if len(fitness) == 0 {
		return 0, nil
	}
	b, err := hex.DecodeString(fitness[len(fitness)-1])
	if err != nil {
		return 0, err
	}
	if len(b) != 4 {
		return 0, errShortFitness
	}
	return int32(binary.BigEndian.Uint32(b)), nil
}

// ComputePayloadHash derives the payload commitment of a block:
// H(predecessor ‖ payload_round ‖ operation_list_hash).
func ComputePayloadHash(pred common.Hash, payloadRound int32, olh common.OperationListListHash) common.PayloadHash {
	buf := make([]byte, 0, 2*common.HashLength+4)
	buf = append(buf, pred[:]...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(payloadRound))
	buf = append(buf, olh[:]...)
	return common.PayloadHash(crypto.Digest256(buf))
}
