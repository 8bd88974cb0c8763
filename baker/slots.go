package baker

import (
	"sort"

	"github.com/ethereum/go-ethereum/log"

	"github.com/tenderbake/tenderbake/common"
	"github.com/tenderbake/tenderbake/consensus/tenderbake"
	"github.com/tenderbake/tenderbake/protocol"
	"github.com/tenderbake/tenderbake/rpc"
)

// slotsRetention is how many levels of rights are kept; two levels cover the
// votes of the current head and its successor.
const slotsRetention = 2

// SlotsInfo maps (level, slot) to validator identities and back. It is
// mutated only by the driver while handling heads; the machine reads it
// through the tenderbake.SlotsView interface.
type SlotsInfo struct {
	committee uint32
	self      common.PublicKeyHash
	levels    map[int32]*levelSlots
	log       log.Logger
}

type levelSlots struct {
	owner  map[uint16]common.PublicKeyHash
	powers map[common.PublicKeyHash]uint32
	slots  map[common.PublicKeyHash][]uint16
}

// NewSlotsInfo returns an empty registry for the given committee size and
// our own identity.
func NewSlotsInfo(committee uint32, self common.PublicKeyHash) *SlotsInfo {
	return &SlotsInfo{
		committee: committee,
		self:      self,
		levels:    make(map[int32]*levelSlots),
		log:       log.New("module", "slots"),
	}
}

// Has reports whether rights for level are already seeded.
func (s *SlotsInfo) Has(level int32) bool {
	_, ok := s.levels[level]
	return ok
}

// Insert seeds the registry from a baking-rights listing and prunes levels
// that fell out of the retention window. Listings whose cumulative power
// exceeds the committee are byzantine input and dropped.
func (s *SlotsInfo) Insert(level int32, rights []rpc.ValidatorSlots) {
	ls := &levelSlots{
		owner:  make(map[uint16]common.PublicKeyHash),
		powers: make(map[common.PublicKeyHash]uint32),
		slots:  make(map[common.PublicKeyHash][]uint16),
	}
	var total uint32
	for _, r := range rights {
		pkh, err := common.ParsePublicKeyHash(r.Delegate)
		if err != nil {
			s.log.Warn("skipping unparseable delegate", "level", level, "delegate", r.Delegate, "err", err)
			continue
		}
		slots := append([]uint16(nil), r.Slots...)
		sort.Slice(slots, func(i, j int) bool { return slots[i] < slots[j] })
		for _, slot := range slots {
			ls.owner[slot] = pkh
		}
		ls.powers[pkh] = uint32(len(slots))
		ls.slots[pkh] = slots
		total += uint32(len(slots))
	}
	if total > s.committee {
		s.log.Warn("rights exceed committee size, dropping listing", "level", level, "power", total, "committee", s.committee)
		return
	}
	s.levels[level] = ls
	for l := range s.levels {
		if l <= level-slotsRetention {
			delete(s.levels, l)
		}
	}
}

// Validator resolves a registered slot to its weighted owner.
func (s *SlotsInfo) Validator(level int32, slot uint16) (tenderbake.Validator, bool) {
	ls, ok := s.levels[level]
	if !ok {
		return tenderbake.Validator{}, false
	}
	pkh, ok := ls.owner[slot]
	if !ok {
		return tenderbake.Validator{}, false
	}
	return tenderbake.Validator{ID: pkh, Power: ls.powers[pkh]}, true
}

// Slots returns a validator's sorted slot list at a level.
func (s *SlotsInfo) Slots(id common.PublicKeyHash, level int32) ([]uint16, bool) {
	ls, ok := s.levels[level]
	if !ok {
		return nil, false
	}
	slots, ok := ls.slots[id]
	return slots, ok
}

// Self implements tenderbake.SlotsView.
func (s *SlotsInfo) Self() common.PublicKeyHash { return s.self }

// Own returns our canonical signing slot at a level: the first of our slots.
func (s *SlotsInfo) Own(level int32) (uint16, bool) {
	slots, ok := s.Slots(s.self, level)
	if !ok || len(slots) == 0 {
		return 0, false
	}
	return slots[0], true
}

// Proposer returns the owner of a round's proposer slot.
func (s *SlotsInfo) Proposer(level, round int32) (tenderbake.Validator, bool) {
	if s.committee == 0 {
		return tenderbake.Validator{}, false
	}
	slot := uint16(uint32(round) % s.committee)
	return s.Validator(level, slot)
}

// Preendorsement canonicalizes an inbound preendorsement content to its
// weighted identity.
func (s *SlotsInfo) Preendorsement(c *protocol.ConsensusContent) (tenderbake.Validator, bool) {
	return s.Validator(c.Level, c.Slot)
}

// Endorsement canonicalizes an inbound endorsement content to its weighted
// identity.
func (s *SlotsInfo) Endorsement(c *protocol.ConsensusContent) (tenderbake.Validator, bool) {
	return s.Validator(c.Level, c.Slot)
}
