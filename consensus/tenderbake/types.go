package tenderbake

import (
	"bytes"
	"time"

	"github.com/tenderbake/tenderbake/common"
	"github.com/tenderbake/tenderbake/protocol"
)

// BlockID identifies the consensus position of a block: its level and round
// together with the payload it carries and the round that payload was first
// proposed at.
type BlockID struct {
	Level        int32
	Round        int32
	PayloadHash  common.PayloadHash
	PayloadRound int32
}

// Validator is a weighted committee member. Power is the number of slots the
// member holds at the level.
type Validator struct {
	ID    common.PublicKeyHash
	Power uint32
}

// Prequorum is a threshold-reaching set of preendorsements, all sharing
// BlockID's (level, round, payload hash).
type Prequorum struct {
	BlockID BlockID
	Votes   *Votes
}

// Quorum is a set of endorsements for a block, identified by the hash the
// driver injects them under; no back-pointer to the block is kept. The
// machine records one when its endorsement tally reaches the threshold; the
// driver rebuilds one from a block's endorsements without checking power.
type Quorum struct {
	Votes *Votes
}

// BlockInfo is a proposal as the machine sees it: consensus position, timing,
// the witness sets reconstructed from its operations and its payload buckets.
type BlockInfo struct {
	PredHash   common.Hash
	Hash       common.Hash
	BlockID    BlockID
	Timestamp  time.Time
	Transition bool
	Prequorum  *Prequorum
	Quorum     *Quorum
	Payload    *protocol.Payload
}

// Phase is the machine's position inside a round.
type Phase int

const (
	PhaseNoProposal Phase = iota
	PhaseCollectingPreendorsements
	PhasePrevoted
	PhaseCollectingEndorsements
	PhaseDecided
)

func (p Phase) String() string {
	switch p {
	case PhaseNoProposal:
		return "no-proposal"
	case PhaseCollectingPreendorsements:
		return "collecting-preendorsements"
	case PhasePrevoted:
		return "prevoted"
	case PhaseCollectingEndorsements:
		return "collecting-endorsements"
	case PhaseDecided:
		return "decided"
	default:
		return "unknown"
	}
}

// SlotsView is the registry surface the machine consults: who proposes a
// round and whether we hold a slot at a level. Implemented by the driver's
// slots registry.
type SlotsView interface {
	// Self returns our validator identity.
	Self() common.PublicKeyHash
	// Own returns our canonical (first) slot at level, if any.
	Own(level int32) (uint16, bool)
	// Proposer returns the validator holding the proposer slot of a round.
	Proposer(level, round int32) (Validator, bool)
}

// dominates reports whether a strictly supersedes b by (round, payload hash).
func dominates(a, b BlockID) bool {
	if a.Round != b.Round {
		return a.Round > b.Round
	}
	return bytes.Compare(a.PayloadHash[:], b.PayloadHash[:]) > 0
}
