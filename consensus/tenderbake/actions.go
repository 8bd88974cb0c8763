package tenderbake

import (
	"time"

	"github.com/tenderbake/tenderbake/common"
)

// Action is an output of the machine, executed by the driver in the order
// produced.
type Action interface {
	action()
}

// ScheduleTimeoutAction requests a future TimeoutEvent. It replaces any
// pending deadline.
type ScheduleTimeoutAction struct {
	Deadline time.Time
}

// PreendorseAction: sign and inject a preendorsement for BlockID.
type PreendorseAction struct {
	PredHash common.Hash
	BlockID  BlockID
}

// EndorseAction: sign and inject an endorsement for BlockID.
type EndorseAction struct {
	PredHash common.Hash
	BlockID  BlockID
}

// ProposeAction: assemble, preapply, proof-of-work-stamp, sign and inject a
// fresh block.
type ProposeAction struct {
	Block    *BlockInfo
	Proposer Validator
}

func (*ScheduleTimeoutAction) action() {}
func (*PreendorseAction) action()      {}
func (*EndorseAction) action()         {}
func (*ProposeAction) action()         {}
