package tenderbake

import (
	"time"

	"github.com/tenderbake/tenderbake/common"
	"github.com/tenderbake/tenderbake/protocol"
)

// Machine is the Tenderbake state machine. All state is per level; a valid
// proposal at a higher level drops everything below it. The zero-value-like
// state before the first proposal accepts nothing but proposals.
//
// Handle is the only entry point and must be called from a single goroutine;
// the machine does no locking by design of the driver.
type Machine struct {
	level int32
	round int32
	phase Phase

	// proposal is the installed proposal. After a round timeout without a
	// new head it can lag behind round; votes only count against a matching
	// round.
	proposal   *BlockInfo
	roundStart time.Time
	deadline   time.Time

	// locked payload: set when we preendorse, round never decreases within
	// a level.
	locked      bool
	lockedRound int32
	lockedHash  common.PayloadHash

	// endorsable payload: the best (round, payload hash) seen with a
	// complete prequorum, with the payload buckets captured for re-proposal.
	endorsable *endorsablePayload

	preVotes  *Votes
	votes     *Votes
	prequorum *Prequorum
	quorum    *Quorum
	decided   bool

	preendorsed map[int32]bool
	endorsed    map[int32]bool

	// payload accumulates mempool items for the block we may propose next.
	payload *protocol.Payload
}

type endorsablePayload struct {
	prequorum *Prequorum
	payload   *protocol.Payload
}

// NewMachine returns an empty machine.
func NewMachine() *Machine {
	return &Machine{
		phase:       PhaseNoProposal,
		preVotes:    NewVotes(),
		votes:       NewVotes(),
		preendorsed: make(map[int32]bool),
		endorsed:    make(map[int32]bool),
		payload:     &protocol.Payload{},
	}
}

// Level returns the level the machine is currently on.
func (m *Machine) Level() int32 { return m.level }

// Round returns the current round.
func (m *Machine) Round() int32 { return m.round }

// Phase returns the current phase.
func (m *Machine) Phase() Phase { return m.phase }

// Handle consumes one event and returns the actions it triggers, in
// execution order. Malformed or stale inputs produce no actions.
func (m *Machine) Handle(cfg *Config, slots SlotsView, ev Event) []Action {
	switch e := ev.(type) {
	case *ProposalEvent:
		return m.handleProposal(cfg, slots, e)
	case *PreendorsementEvent:
		return m.handlePreendorsement(cfg, e)
	case *EndorsementEvent:
		return m.handleEndorsement(cfg, slots, e)
	case *PayloadItemEvent:
		m.handlePayloadItem(slots, e)
		return nil
	case *TimeoutEvent:
		return m.handleTimeout(cfg, slots, e)
	default:
		return nil
	}
}

func (m *Machine) handleProposal(cfg *Config, slots SlotsView, e *ProposalEvent) []Action {
	p := e.Block
	switch {
	case m.proposal == nil || p.BlockID.Level > m.level:
		m.resetLevel(p)
	case p.BlockID.Level < m.level:
		return nil
	case p.BlockID.Round < m.round:
		// stale round at the current level
		return nil
	case p.BlockID.Round == m.round && p.Hash == m.proposal.Hash:
		// duplicate announcement of the installed proposal: keep the live
		// tallies, refresh the deadline only
		return []Action{&ScheduleTimeoutAction{Deadline: m.deadline}}
	default:
		m.round = p.BlockID.Round
		m.proposal = p
		m.preVotes = NewVotes()
		m.votes = NewVotes()
		m.prequorum = nil
	}

	m.roundStart = p.Timestamp
	m.deadline = cfg.EndOfRound(p.Timestamp, p.BlockID.Round)
	if !m.decided {
		m.phase = PhaseCollectingPreendorsements
	}

	if pq := p.Prequorum; pq != nil && m.validPrequorum(cfg, p, pq) {
		m.adoptEndorsable(pq, p.Payload)
	}

	actions := []Action{&ScheduleTimeoutAction{Deadline: m.deadline}}

	if p.Transition {
		// migration blocks carry no payload to vote on
		return actions
	}
	if m.shouldPreendorse(cfg, p) && !m.preendorsed[m.round] {
		m.preendorsed[m.round] = true
		m.locked = true
		m.lockedRound = p.BlockID.Round
		m.lockedHash = p.BlockID.PayloadHash
		actions = append(actions, &PreendorseAction{PredHash: p.PredHash, BlockID: p.BlockID})
	}
	return actions
}

// resetLevel installs p as the first proposal of a new level, dropping all
// state for the old one.
func (m *Machine) resetLevel(p *BlockInfo) {
	m.level = p.BlockID.Level
	m.round = p.BlockID.Round
	m.proposal = p
	m.locked = false
	m.lockedRound = 0
	m.lockedHash = common.PayloadHash{}
	m.endorsable = nil
	m.preVotes = NewVotes()
	m.votes = NewVotes()
	m.prequorum = nil
	m.quorum = nil
	m.decided = false
	m.preendorsed = make(map[int32]bool)
	m.endorsed = make(map[int32]bool)
	m.payload = &protocol.Payload{}
}

// validPrequorum checks an attached prequorum: threshold power, same level,
// certifying the proposal's own payload at a round not above the proposal's.
func (m *Machine) validPrequorum(cfg *Config, p *BlockInfo, pq *Prequorum) bool {
	if pq.Votes == nil || pq.Votes.Power() < cfg.ConsensusThreshold {
		return false
	}
	if pq.BlockID.Level != p.BlockID.Level || pq.BlockID.Round > p.BlockID.Round {
		return false
	}
	return pq.BlockID.PayloadHash == p.BlockID.PayloadHash
}

// shouldPreendorse decides the vote intent for an installed proposal: vote
// when unlocked, when the proposal re-proposes our locked payload, or when
// it carries a prequorum at a round not below our lock.
func (m *Machine) shouldPreendorse(cfg *Config, p *BlockInfo) bool {
	if !m.locked {
		return true
	}
	if p.BlockID.PayloadHash == m.lockedHash {
		return true
	}
	if pq := p.Prequorum; pq != nil && m.validPrequorum(cfg, p, pq) && pq.BlockID.Round >= m.lockedRound {
		return true
	}
	return false
}

func (m *Machine) handlePreendorsement(cfg *Config, e *PreendorsementEvent) []Action {
	if !m.voteMatches(e.Vote) {
		return nil
	}
	if !m.preVotes.Add(e.Validator, e.Op) {
		return nil
	}
	if m.preVotes.Power() < cfg.ConsensusThreshold || m.prequorum != nil {
		return nil
	}
	m.prequorum = &Prequorum{
		BlockID: BlockID{
			Level:        m.level,
			Round:        m.round,
			PayloadHash:  m.proposal.BlockID.PayloadHash,
			PayloadRound: m.proposal.BlockID.PayloadRound,
		},
		Votes: m.preVotes,
	}
	m.adoptEndorsable(m.prequorum, m.proposal.Payload)
	m.phase = PhasePrevoted
	if m.endorsed[m.round] {
		return nil
	}
	m.endorsed[m.round] = true
	m.phase = PhaseCollectingEndorsements
	return []Action{&EndorseAction{PredHash: m.proposal.PredHash, BlockID: m.proposal.BlockID}}
}

func (m *Machine) handleEndorsement(cfg *Config, slots SlotsView, e *EndorsementEvent) []Action {
	if !m.voteMatches(e.Vote) {
		return nil
	}
	if !m.votes.Add(e.Validator, e.Op) {
		return nil
	}
	if m.votes.Power() < cfg.ConsensusThreshold || m.decided {
		return nil
	}
	m.decided = true
	m.quorum = &Quorum{Votes: m.votes}
	m.phase = PhaseDecided
	if v, ok := slots.Proposer(m.level+1, 0); ok && v.ID == slots.Self() && !e.Now.Before(m.deadline) {
		return m.proposeNextLevel(v)
	}
	// quorum reached early: the already-scheduled round timeout fires at the
	// next block's target timestamp
	return nil
}

func (m *Machine) handlePayloadItem(slots SlotsView, e *PayloadItemEvent) {
	if m.proposal == nil || !m.holdsUpcomingRights(slots) {
		return
	}
	_ = m.payload.Update(e.Op)
}

func (m *Machine) handleTimeout(cfg *Config, slots SlotsView, e *TimeoutEvent) []Action {
	if m.proposal == nil {
		return nil
	}
	if m.decided {
		if v, ok := slots.Proposer(m.level+1, 0); ok && v.ID == slots.Self() && !e.Now.Before(m.deadline) {
			return m.proposeNextLevel(v)
		}
		return nil
	}

	m.round++
	m.roundStart = m.deadline
	m.deadline = cfg.EndOfRound(m.roundStart, m.round)
	m.preVotes = NewVotes()
	m.votes = NewVotes()
	m.prequorum = nil
	m.phase = PhaseCollectingPreendorsements

	actions := []Action{&ScheduleTimeoutAction{Deadline: m.deadline}}
	if v, ok := slots.Proposer(m.level, m.round); ok && v.ID == slots.Self() {
		actions = append(actions, m.repropose(v))
	}
	return actions
}

// voteMatches reports whether an inbound vote targets the installed
// proposal's payload at the current round. A proposal left over from an
// earlier round counts no votes.
func (m *Machine) voteMatches(vote BlockID) bool {
	return m.proposal != nil &&
		m.proposal.BlockID.Round == m.round &&
		vote.Level == m.level &&
		vote.Round == m.round &&
		vote.PayloadHash == m.proposal.BlockID.PayloadHash
}

// adoptEndorsable installs pq as the level's endorsable payload when it
// strictly dominates the current one by (round, payload hash).
func (m *Machine) adoptEndorsable(pq *Prequorum, payload *protocol.Payload) {
	if m.endorsable != nil && !dominates(pq.BlockID, m.endorsable.prequorum.BlockID) {
		return
	}
	captured := &protocol.Payload{}
	if payload != nil {
		captured = payload.Copy()
	}
	m.endorsable = &endorsablePayload{prequorum: pq, payload: captured}
}

// proposeNextLevel assembles the fresh block at (level+1, 0): our payload
// buckets, a zero payload hash to be derived from contents, and the
// endorsement quorum as witnesses.
func (m *Machine) proposeNextLevel(proposer Validator) []Action {
	block := &BlockInfo{
		PredHash: m.proposal.Hash,
		BlockID: BlockID{
			Level: m.level + 1,
			Round: 0,
		},
		Timestamp: m.deadline,
		Quorum:    m.quorum,
		Payload:   m.payload.Copy(),
	}
	return []Action{&ProposeAction{Block: block, Proposer: proposer}}
}

// repropose assembles a block for a later round of the current level,
// re-proposing the endorsable payload when one exists and carrying the
// predecessor's quorum witnesses.
func (m *Machine) repropose(proposer Validator) *ProposeAction {
	block := &BlockInfo{
		PredHash:  m.proposal.PredHash,
		Timestamp: m.roundStart,
		Quorum:    m.proposal.Quorum,
	}
	if m.endorsable != nil {
		block.BlockID = BlockID{
			Level:        m.level,
			Round:        m.round,
			PayloadHash:  m.endorsable.prequorum.BlockID.PayloadHash,
			PayloadRound: m.endorsable.prequorum.BlockID.PayloadRound,
		}
		block.Prequorum = m.endorsable.prequorum
		block.Payload = m.endorsable.payload.Copy()
	} else {
		block.BlockID = BlockID{
			Level:        m.level,
			Round:        m.round,
			PayloadRound: m.round,
		}
		block.Payload = m.payload.Copy()
	}
	return &ProposeAction{Block: block, Proposer: proposer}
}

// holdsUpcomingRights reports whether we propose the next level's first
// round or the next round of the current level.
func (m *Machine) holdsUpcomingRights(slots SlotsView) bool {
	if v, ok := slots.Proposer(m.level+1, 0); ok && v.ID == slots.Self() {
		return true
	}
	if v, ok := slots.Proposer(m.level, m.round+1); ok && v.ID == slots.Self() {
		return true
	}
	return false
}
