package tenderbake

import (
	"time"

	"github.com/tenderbake/tenderbake/protocol"
)

// Event is an input to the machine. Each event carries the single logical
// time the driver captured when it was dequeued.
type Event interface {
	event()
}

// ProposalEvent: a new head was observed.
type ProposalEvent struct {
	Block *BlockInfo
	Now   time.Time
}

// PreendorsementEvent: a validated preendorsement from the network, resolved
// to a weighted identity by the slots registry.
type PreendorsementEvent struct {
	Validator Validator
	Vote      BlockID
	Op        *protocol.Operation
	Now       time.Time
}

// EndorsementEvent: a validated endorsement from the network.
type EndorsementEvent struct {
	Validator Validator
	Vote      BlockID
	Op        *protocol.Operation
	Now       time.Time
}

// PayloadItemEvent: a non-consensus mempool operation to include if we
// propose.
type PayloadItemEvent struct {
	Op *protocol.Operation
}

// TimeoutEvent: a previously scheduled deadline elapsed.
type TimeoutEvent struct {
	Now time.Time
}

func (*ProposalEvent) event()       {}
func (*PreendorsementEvent) event() {}
func (*EndorsementEvent) event()    {}
func (*PayloadItemEvent) event()    {}
func (*TimeoutEvent) event()        {}
