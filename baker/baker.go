package baker

import (
	"context"
	"errors"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/ethereum/go-ethereum/log"

	"github.com/tenderbake/tenderbake/common"
	"github.com/tenderbake/tenderbake/consensus/tenderbake"
	"github.com/tenderbake/tenderbake/crypto"
	"github.com/tenderbake/tenderbake/protocol"
	"github.com/tenderbake/tenderbake/rpc"
)

// seenOperations bounds the dedup window for mempool operations; the monitor
// is restarted on every head and replays recent operations.
const seenOperations = 8192

var errHeadsClosed = errors.New("baker: heads monitor terminated")

// Baker is the baking service: it owns the consensus machine and the slots
// registry, multiplexes the node monitors and the timer onto one inbound
// channel, and executes the machine's actions through the RPC client.
//
// All machine and registry mutation happens on the Run goroutine; the
// monitors and the timer only push events.
type Baker struct {
	config Config
	log    log.Logger
	wallet *crypto.Wallet
	client *rpc.Client

	chainID             common.ChainID
	tbConfig            tenderbake.Config
	powThreshold        uint64
	blocksPerCommitment int32

	machine *tenderbake.Machine
	slots   *SlotsInfo
	timer   *Timer

	events    chan event
	seen      *lru.Cache
	lastProto uint8
	opsCancel context.CancelFunc
}

// event is one inbound item: exactly one of the fields is meaningful.
type event struct {
	err   error
	block *rpc.Block
	ops   []*protocol.Operation
	tick  bool
}

// New wires a baker from its configuration. It loads the signing key but
// performs no network I/O; Run does the boot sequence.
func New(config Config) (*Baker, error) {
	wallet, err := crypto.LoadWallet(config.BaseDir)
	if err != nil {
		return nil, err
	}
	client, err := rpc.NewClient(config.Endpoint)
	if err != nil {
		return nil, err
	}
	seen, err := lru.New(seenOperations)
	if err != nil {
		return nil, err
	}
	b := &Baker{
		config:  config,
		log:     log.New("module", "baker"),
		wallet:  wallet,
		client:  client,
		machine: tenderbake.NewMachine(),
		events:  make(chan event, 1024),
		seen:    seen,
	}
	b.timer = NewTimer(func() {
		b.events <- event{tick: true}
	})
	return b, nil
}

// Run boots against the node and drives the machine until ctx is cancelled
// or the heads monitor dies.
func (b *Baker) Run(ctx context.Context) error {
	defer b.timer.Stop()
	defer func() {
		if b.opsCancel != nil {
			b.opsCancel()
		}
	}()

	chainID, err := b.client.ChainID()
	if err != nil {
		return err
	}
	b.chainID = chainID
	b.log.Info("chain identified", "chain", chainID)

	if err := b.client.WaitBootstrapped(ctx); err != nil {
		return err
	}
	b.log.Info("node bootstrapped")

	constants, err := b.client.Constants()
	if err != nil {
		return err
	}
	minDelay, err := constants.MinimalDelay()
	if err != nil {
		return err
	}
	increment, err := constants.DelayIncrement()
	if err != nil {
		return err
	}
	b.powThreshold, err = constants.PowThreshold()
	if err != nil {
		return err
	}
	b.blocksPerCommitment = constants.BlocksPerCommitment
	b.tbConfig = tenderbake.Config{
		ConsensusThreshold:     tenderbake.Threshold(constants.ConsensusCommitteeSize),
		MinimalBlockDelay:      minDelay,
		DelayIncrementPerRound: increment,
	}
	b.slots = NewSlotsInfo(constants.ConsensusCommitteeSize, b.wallet.PublicKeyHash())
	b.log.Info("constants loaded",
		"committee", constants.ConsensusCommitteeSize,
		"threshold", b.tbConfig.ConsensusThreshold,
		"minDelay", minDelay, "increment", increment,
		"powThreshold", b.powThreshold)

	heads, err := b.client.MonitorHeads(ctx, chainID)
	if err != nil {
		return err
	}
	go func() {
		for ev := range heads {
			b.events <- event{err: ev.Err, block: ev.Block}
		}
		b.events <- event{err: errHeadsClosed}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-b.events:
			now := time.Now()
			switch {
			case ev.err != nil:
				if errors.Is(ev.err, errHeadsClosed) {
					return ev.err
				}
				b.log.Error("event stream error", "err", ev.err)
			case ev.block != nil:
				b.handleHead(ctx, ev.block, now)
			case ev.tick:
				b.perform(b.machine.Handle(&b.tbConfig, b.slots, &tenderbake.TimeoutEvent{Now: now}))
			case ev.ops != nil:
				b.handleOperations(ev.ops, now)
			}
		}
	}
}

// handleHead refreshes rights, rebuilds the proposal view of the new head,
// restarts the mempool monitor and feeds the machine.
func (b *Baker) handleHead(ctx context.Context, block *rpc.Block, now time.Time) {
	b.log.Info("new block", "level", block.Level, "round", block.Round, "hash", block.Hash)

	for _, level := range []int32{block.Level, block.Level + 1} {
		if b.slots.Has(level) {
			continue
		}
		rights, err := b.client.Validators(level)
		if err != nil {
			b.log.Error("fetching rights failed", "level", level, "err", err)
			continue
		}
		b.slots.Insert(level, rights)
	}

	transition := b.lastProto != 0 && block.Proto != b.lastProto
	b.lastProto = block.Proto

	info := b.blockInfo(block, transition)

	if b.opsCancel != nil {
		b.opsCancel()
	}
	opsCtx, cancel := context.WithCancel(ctx)
	b.opsCancel = cancel
	ops, err := b.client.MonitorOperations(opsCtx)
	if err != nil {
		b.log.Error("mempool monitor failed", "err", err)
	} else {
		go func() {
			for ev := range ops {
				if ev.Err != nil {
					b.log.Debug("mempool monitor ended", "err", ev.Err)
					continue
				}
				b.events <- event{ops: ev.Operations}
			}
		}()
	}

	b.perform(b.machine.Handle(&b.tbConfig, b.slots, &tenderbake.ProposalEvent{Block: info, Now: now}))
}

// blockInfo completes a monitored head into the machine's proposal view,
// reconstructing the prequorum and quorum witness sets from the consensus
// sublist.
func (b *Baker) blockInfo(block *rpc.Block, transition bool) *tenderbake.BlockInfo {
	info := &tenderbake.BlockInfo{
		PredHash: block.Predecessor,
		Hash:     block.Hash,
		BlockID: tenderbake.BlockID{
			Level:        block.Level,
			Round:        block.Round,
			PayloadHash:  block.PayloadHash,
			PayloadRound: block.PayloadRound,
		},
		Timestamp:  block.Timestamp,
		Transition: transition,
		Payload:    &protocol.Payload{},
	}

	prequorum := tenderbake.NewPrequorumBuilder(b.tbConfig.ConsensusThreshold)
	quorum := tenderbake.NewVotes()
	if len(block.Operations) > 0 {
		for _, op := range block.Operations[0] {
			c, ok := op.Consensus()
			if !ok {
				continue
			}
			switch c.Kind {
			case "preendorsement":
				v, ok := b.slots.Preendorsement(c)
				if !ok {
					continue
				}
				prequorum.Add(v, c.Level, c.Round, c.PayloadHash, op)
			case "endorsement":
				v, ok := b.slots.Endorsement(c)
				if !ok {
					continue
				}
				quorum.Add(v, op)
			}
		}
	}
	if state, pq := prequorum.Result(); state == tenderbake.PrequorumComplete {
		info.Prequorum = pq
	}
	if quorum.Len() > 0 {
		info.Quorum = &tenderbake.Quorum{Votes: quorum}
	}

	for _, pass := range block.Operations {
		for _, op := range pass {
			if err := info.Payload.Update(op); err != nil {
				b.log.Debug("skipping unclassified block operation", "err", err)
			}
		}
	}
	return info
}

// handleOperations classifies a mempool batch: consensus votes become
// machine events, the rest are payload items. Replayed operations are
// dropped through the seen window.
func (b *Baker) handleOperations(ops []*protocol.Operation, now time.Time) {
	for _, op := range ops {
		if op.Hash != "" {
			if b.seen.Contains(op.Hash) {
				continue
			}
			b.seen.Add(op.Hash, struct{}{})
		}
		if _, err := op.Pass(); err != nil {
			b.log.Error("unclassified operation", "hash", op.Hash, "err", err)
			continue
		}
		c, ok := op.Consensus()
		if !ok {
			b.perform(b.machine.Handle(&b.tbConfig, b.slots, &tenderbake.PayloadItemEvent{Op: op}))
			continue
		}
		vote := tenderbake.BlockID{
			Level:        c.Level,
			Round:        c.Round,
			PayloadHash:  c.PayloadHash,
			PayloadRound: c.Round,
		}
		switch c.Kind {
		case "preendorsement":
			v, ok := b.slots.Preendorsement(c)
			if !ok {
				continue
			}
			b.perform(b.machine.Handle(&b.tbConfig, b.slots, &tenderbake.PreendorsementEvent{
				Validator: v, Vote: vote, Op: op, Now: now,
			}))
		case "endorsement":
			v, ok := b.slots.Endorsement(c)
			if !ok {
				continue
			}
			b.perform(b.machine.Handle(&b.tbConfig, b.slots, &tenderbake.EndorsementEvent{
				Validator: v, Vote: vote, Op: op, Now: now,
			}))
		}
	}
}
