package tenderbake

import (
	"github.com/tenderbake/tenderbake/common"
	"github.com/tenderbake/tenderbake/protocol"
)

// Votes is a power-weighted vote tally keyed by validator. A validator's
// power contributes once however many operations it sends; the first
// accepted operation is the one retained for block inclusion. Insertion
// order is preserved so extraction is deterministic.
type Votes struct {
	order []common.PublicKeyHash
	ops   map[common.PublicKeyHash]*protocol.Operation
	power uint32
}

// NewVotes returns an empty tally.
func NewVotes() *Votes {
	return &Votes{ops: make(map[common.PublicKeyHash]*protocol.Operation)}
}

// Add records a vote. It reports whether the validator was new to the tally;
// duplicates leave the tally unchanged.
func (v *Votes) Add(val Validator, op *protocol.Operation) bool {
	if _, ok := v.ops[val.ID]; ok {
		return false
	}
	v.ops[val.ID] = op
	v.order = append(v.order, val.ID)
	v.power += val.Power
	return true
}

// Power returns the cumulative voting power of the tally.
func (v *Votes) Power() uint32 { return v.power }

// Len returns the number of distinct voters.
func (v *Votes) Len() int { return len(v.order) }

// Operations returns the retained operations in insertion order.
func (v *Votes) Operations() []*protocol.Operation {
	out := make([]*protocol.Operation, 0, len(v.order))
	for _, id := range v.order {
		out = append(out, v.ops[id])
	}
	return out
}

// PrequorumState is the outcome of assembling a prequorum from observed
// operations.
type PrequorumState int

const (
	// PrequorumNone: no usable preendorsements were seen.
	PrequorumNone PrequorumState = iota
	// PrequorumPartial: votes were seen but their power is below threshold.
	PrequorumPartial
	// PrequorumComplete: the witness set reaches the consensus threshold.
	PrequorumComplete
)

// PrequorumBuilder reconstructs a prequorum witness set from the
// preendorsement operations attached to a block. The first accepted vote
// pins the (level, round, payload hash); later votes disagreeing with it are
// dropped as byzantine input.
type PrequorumBuilder struct {
	threshold uint32
	id        *BlockID
	votes     *Votes
}

// NewPrequorumBuilder returns a builder for the given threshold.
func NewPrequorumBuilder(threshold uint32) *PrequorumBuilder {
	return &PrequorumBuilder{threshold: threshold, votes: NewVotes()}
}

// Add offers one resolved preendorsement to the builder. It reports whether
// the vote was accepted.
func (b *PrequorumBuilder) Add(val Validator, level, round int32, payloadHash common.PayloadHash, op *protocol.Operation) bool {
	if b.id == nil {
		b.id = &BlockID{
			Level:        level,
			Round:        round,
			PayloadHash:  payloadHash,
			PayloadRound: round,
		}
	} else if b.id.Level != level || b.id.Round != round || b.id.PayloadHash != payloadHash {
		return false
	}
	return b.votes.Add(val, op)
}

// Result returns the builder's state and, when complete, the prequorum.
func (b *PrequorumBuilder) Result() (PrequorumState, *Prequorum) {
	switch {
	case b.id == nil:
		return PrequorumNone, nil
	case b.votes.Power() < b.threshold:
		return PrequorumPartial, nil
	default:
		return PrequorumComplete, &Prequorum{BlockID: *b.id, Votes: b.votes}
	}
}
