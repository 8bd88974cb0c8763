// Package rpc implements the HTTP client for the node the baker drives: boot
// queries, streaming head and mempool monitors, preapply and injection.
package rpc

import (
	"fmt"
	"strconv"
	"time"

	"github.com/tenderbake/tenderbake/common"
	"github.com/tenderbake/tenderbake/protocol"
)

// Constants is the subset of the protocol constants the baker consumes.
// Durations arrive as decimal-string seconds; the proof-of-work threshold as
// signed 64-bit text reinterpreted bit-for-bit as unsigned.
type Constants struct {
	ConsensusCommitteeSize uint32 `json:"consensus_committee_size"`
	MinimalBlockDelay      string `json:"minimal_block_delay"`
	DelayIncrementPerRound string `json:"delay_increment_per_round"`
	ProofOfWorkThreshold   string `json:"proof_of_work_threshold"`
	BlocksPerCommitment    int32  `json:"blocks_per_commitment"`
}

// MinimalDelay parses the round-0 duration.
func (c *Constants) MinimalDelay() (time.Duration, error) {
	return parseSeconds(c.MinimalBlockDelay)
}

// DelayIncrement parses the per-round increment.
func (c *Constants) DelayIncrement() (time.Duration, error) {
	return parseSeconds(c.DelayIncrementPerRound)
}

// PowThreshold parses the proof-of-work threshold, reinterpreting the signed
// wire value as unsigned.
func (c *Constants) PowThreshold() (uint64, error) {
	v, err := strconv.ParseInt(c.ProofOfWorkThreshold, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("rpc: proof of work threshold: %w", err)
	}
	return uint64(v), nil
}

func parseSeconds(s string) (time.Duration, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("rpc: duration %q: %w", s, err)
	}
	return time.Duration(v) * time.Second, nil
}

// Block is a fully resolved head: header fields plus the four operation
// sublists.
type Block struct {
	Hash         common.Hash
	Predecessor  common.Hash
	Level        int32
	Proto        uint8
	Timestamp    time.Time
	PayloadHash  common.PayloadHash
	PayloadRound int32
	Round        int32
	Operations   [][]*protocol.Operation
}

type headLine struct {
	Hash  string `json:"hash"`
	Level int32  `json:"level"`
}

type headerJSON struct {
	Hash         string   `json:"hash"`
	Level        int32    `json:"level"`
	Proto        uint8    `json:"proto"`
	Predecessor  string   `json:"predecessor"`
	Timestamp    string   `json:"timestamp"`
	Fitness      []string `json:"fitness"`
	PayloadHash  string   `json:"payload_hash"`
	PayloadRound int32    `json:"payload_round"`
}

// ValidatorSlots is one entry of the baking-rights listing: the delegate and
// the slots it holds at the level.
type ValidatorSlots struct {
	Level    int32    `json:"level"`
	Delegate string   `json:"delegate"`
	Slots    []uint16 `json:"slots"`
}

// ShellHeader is the finalized shell part preapply returns.
type ShellHeader struct {
	Level          int32    `json:"level"`
	Proto          uint8    `json:"proto"`
	Predecessor    string   `json:"predecessor"`
	Timestamp      string   `json:"timestamp"`
	ValidationPass uint8    `json:"validation_pass"`
	OperationsHash string   `json:"operations_hash"`
	Fitness        []string `json:"fitness"`
	Context        string   `json:"context"`
}

// PreapplyRequest is the body of the preapply call: the proposer-signed
// protocol header plus the four operation sublists.
type PreapplyRequest struct {
	ProtocolData PreapplyProtocolData    `json:"protocol_data"`
	Operations   [][]*protocol.Operation `json:"operations"`
}

// PreapplyProtocolData is the JSON form of the protocol header.
type PreapplyProtocolData struct {
	Protocol                  string `json:"protocol"`
	PayloadHash               string `json:"payload_hash"`
	PayloadRound              int32  `json:"payload_round"`
	ProofOfWorkNonce          string `json:"proof_of_work_nonce"`
	SeedNonceHash             string `json:"seed_nonce_hash,omitempty"`
	LiquidityBakingEscapeVote bool   `json:"liquidity_baking_escape_vote"`
	Signature                 string `json:"signature"`
}

// PreapplyResult carries the finalized shell header and the serialized
// operation lists ready for injection.
type PreapplyResult struct {
	ShellHeader ShellHeader           `json:"shell_header"`
	Operations  []PreapplyOperations  `json:"operations"`
}

// PreapplyOperations is one finalized sublist.
type PreapplyOperations struct {
	Applied []InjectOperation `json:"applied"`
}

// InjectOperation is the serialized form of one operation inside an injected
// block.
type InjectOperation struct {
	Hash   string `json:"hash,omitempty"`
	Branch string `json:"branch"`
	Data   string `json:"data"`
}

// HeadEvent is one observation of the heads monitor.
type HeadEvent struct {
	Block *Block
	Err   error
}

// OperationsEvent is one batch of the mempool monitor.
type OperationsEvent struct {
	Operations []*protocol.Operation
	Err        error
}
