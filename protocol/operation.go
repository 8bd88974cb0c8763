// Package protocol implements the wire forms of the consensus protocol: the
// operation model with its four validation passes, the binary encodings of
// inlined consensus votes and block headers, and the payload commitment.
package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"

	"github.com/tenderbake/tenderbake/common"
)

// Pass is the validation pass an operation belongs to.
type Pass int

const (
	PassConsensus Pass = iota
	PassVotes
	PassAnonymous
	PassManagers
)

// NumPasses is the number of operation sublists in a block.
const NumPasses = 4

// Consensus operation content tags of the binary encoding.
const (
	TagPreendorsement = 20
	TagEndorsement    = 21
)

var errNoContents = errors.New("protocol: operation without contents")

// ConsensusContent is the parsed content of a preendorsement or endorsement.
type ConsensusContent struct {
	Kind        string
	Slot        uint16
	Level       int32
	Round       int32
	PayloadHash common.PayloadHash
}

// Operation is a mempool or block operation. The raw JSON form is retained
// verbatim so re-injection into a proposed block is byte-faithful; only the
// fields the baker dispatches on are parsed out.
type Operation struct {
	Hash      string
	Branch    string
	Signature string

	contents []operationContent
	raw      json.RawMessage
}

type operationContent struct {
	Kind             string `json:"kind"`
	Slot             uint16 `json:"slot"`
	Level            int32  `json:"level"`
	Round            int32  `json:"round"`
	BlockPayloadHash string `json:"block_payload_hash"`
}

type operationEnvelope struct {
	Hash      string             `json:"hash"`
	Branch    string             `json:"branch"`
	Contents  []operationContent `json:"contents"`
	Signature string             `json:"signature"`
}

// UnmarshalJSON keeps the raw bytes and extracts the dispatch fields.
func (op *Operation) UnmarshalJSON(data []byte) error {
	var env operationEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	op.Hash = env.Hash
	op.Branch = env.Branch
	op.Signature = env.Signature
	op.contents = env.Contents
	op.raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON emits the operation exactly as it was received.
func (op *Operation) MarshalJSON() ([]byte, error) {
	if op.raw != nil {
		return op.raw, nil
	}
	return json.Marshal(operationEnvelope{
		Hash:     op.Hash,
		Branch:   op.Branch,
		Contents: op.contents,
	})
}

// Pass classifies the operation into its validation pass. Mixed-content
// operations are classified by their first content, as batches are
// homogeneous per pass by construction.
func (op *Operation) Pass() (Pass, error) {
	if len(op.contents) == 0 {
		return 0, errNoContents
	}
	switch op.contents[0].Kind {
	case "preendorsement", "endorsement":
		return PassConsensus, nil
	case "proposals", "ballot":
		return PassVotes, nil
	case "seed_nonce_revelation", "activate_account",
		"double_preendorsement_evidence", "double_endorsement_evidence",
		"double_baking_evidence":
		return PassAnonymous, nil
	default:
		return PassManagers, nil
	}
}

// Consensus returns the parsed consensus content when the operation is a
// preendorsement or endorsement.
func (op *Operation) Consensus() (*ConsensusContent, bool) {
	if len(op.contents) == 0 {
		return nil, false
	}
	c := op.contents[0]
	if c.Kind != "preendorsement" && c.Kind != "endorsement" {
		return nil, false
	}
	ph, err := common.ParsePayloadHash(c.BlockPayloadHash)
	if err != nil {
		return nil, false
	}
	return &ConsensusContent{
		Kind:        c.Kind,
		Slot:        c.Slot,
		Level:       c.Level,
		Round:       c.Round,
		PayloadHash: ph,
	}, true
}

// HashBytes returns the operation's 32-byte hash.
func (op *Operation) HashBytes() (common.OperationHash, error) {
	return common.ParseOperationHash(op.Hash)
}

// EncodePreendorsement returns the binary form of an inlined preendorsement,
// without signature: branch ‖ tag ‖ slot ‖ level ‖ round ‖ payload hash.
func EncodePreendorsement(branch common.Hash, c *ConsensusContent) []byte {
	return encodeInlined(TagPreendorsement, branch, c)
}

// EncodeEndorsement returns the binary form of an inlined endorsement,
// without signature.
func EncodeEndorsement(branch common.Hash, c *ConsensusContent) []byte {
	return encodeInlined(TagEndorsement, branch, c)
}

func encodeInlined(tag byte, branch common.Hash, c *ConsensusContent) []byte {
	out := make([]byte, 0, common.HashLength+1+2+4+4+common.HashLength)
	out = append(out, branch[:]...)
	out = append(out, tag)
	out = binary.BigEndian.AppendUint16(out, c.Slot)
	out = binary.BigEndian.AppendUint32(out, uint32(c.Level))
	out = binary.BigEndian.AppendUint32(out, uint32(c.Round))
	out = append(out, c.PayloadHash[:]...)
	return out
}
