package protocol

import (
	"github.com/tenderbake/tenderbake/common"
	"github.com/tenderbake/tenderbake/crypto"
)

// Payload accumulates the operations a proposed block carries, partitioned
// by validation pass with insertion order preserved inside each bucket.
type Payload struct {
	Consensus []*Operation
	Votes     []*Operation
	Anonymous []*Operation
	Managers  []*Operation
}

// Update dispatches op into its bucket. Unclassifiable operations are
// reported back to the caller and not stored.
func (p *Payload) Update(op *Operation) error {
	pass, err := op.Pass()
	if err != nil {
		return err
	}
	switch pass {
	case PassConsensus:
		p.Consensus = append(p.Consensus, op)
	case PassVotes:
		p.Votes = append(p.Votes, op)
	case PassAnonymous:
		p.Anonymous = append(p.Anonymous, op)
	case PassManagers:
		p.Managers = append(p.Managers, op)
	}
	return nil
}

// Len returns the total number of accumulated operations.
func (p *Payload) Len() int {
	return len(p.Consensus) + len(p.Votes) + len(p.Anonymous) + len(p.Managers)
}

// Copy returns a shallow copy with independent buckets. Operations are
// shared; they are immutable once received.
func (p *Payload) Copy() *Payload {
	return &Payload{
		Consensus: append([]*Operation(nil), p.Consensus...),
		Votes:     append([]*Operation(nil), p.Votes...),
		Anonymous: append([]*Operation(nil), p.Anonymous...),
		Managers:  append([]*Operation(nil), p.Managers...),
	}
}

// OperationListHash returns the merkle root over the accumulated operation
// hashes, buckets concatenated in pass order. This is the list commitment
// the payload hash is derived from.
func (p *Payload) OperationListHash() (common.OperationListListHash, error) {
	var leaves []common.Hash
	for _, bucket := range [][]*Operation{p.Consensus, p.Votes, p.Anonymous, p.Managers} {
		for _, op := range bucket {
			h, err := op.HashBytes()
			if err != nil {
				return common.OperationListListHash{}, err
			}
			leaves = append(leaves, common.Hash(h))
		}
	}
	return common.OperationListListHash(merkleRoot(leaves)), nil
}

// merkleRoot folds leaves pairwise, duplicating the last element of odd
// levels. The root of the empty list is the digest of the empty string.
func merkleRoot(leaves []common.Hash) common.Hash {
	if len(leaves) == 0 {
		return crypto.Digest256(nil)
	}
	level := append([]common.Hash(nil), leaves...)
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := level[:0]
		for i := 0; i < len(level); i += 2 {
			buf := make([]byte, 0, 2*common.HashLength)
			buf = append(buf, level[i][:]...)
			buf = append(buf, level[i+1][:]...)
			next = append(next, crypto.Digest256(buf))
		}
		level = next
	}
	return level[0]
}
