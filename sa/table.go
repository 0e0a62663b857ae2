package sa

import (
	"sync"

	"github.com/msgboxio/ikedemux/protocol"
)

// childKey identifies a CHILD SA awaiting a CREATE_CHILD_SA response:
// (parent serial, the msgid of the exchange that created it).
type childKey struct {
	parent uint64
	msgId  uint32
}

// Table is the process-wide SA store (§4.5, §5 "Shared resources"). It
// is intended to be touched only by the single event-loop task, but
// guards itself with a mutex so tests and the occasional admin-channel
// read don't have to be threaded through that loop.
type Table struct {
	mu sync.Mutex

	nextSerial uint64

	bySpi    map[spiKey]*IkeSa
	byInitI  map[string]*IkeSa // keyed on initiator SPI alone
	children map[childKey]*ChildSa

	halfOpen    int
	halfOpenSet map[*IkeSa]bool // tracks which SAs are currently counted in halfOpen
}

type spiKey [16]byte

func makeSpiKey(spiI, spiR protocol.Spi) spiKey {
	var k spiKey
	copy(k[0:8], spiI[:])
	copy(k[8:16], spiR[:])
	return k
}

func NewTable() *Table {
	return &Table{
		bySpi:       make(map[spiKey]*IkeSa),
		byInitI:     make(map[string]*IkeSa),
		children:    make(map[childKey]*ChildSa),
		halfOpenSet: make(map[*IkeSa]bool),
	}
}

// recalcHalfOpen reconciles the half-open counter against s's current
// state category, tracked per-SA so a state change alone (not just an
// index insert/remove) is reflected — notably the R0/I0 -> open
// transition a Rekey call makes when a responder's SpiR first becomes
// known (§4.7 step 2, §5 resource bounds).
func (t *Table) recalcHalfOpen(s *IkeSa) {
	wasTracked := t.halfOpenSet[s]
	isHalfOpen := s.HalfOpen()
	switch {
	case isHalfOpen && !wasTracked:
		t.halfOpenSet[s] = true
		t.halfOpen++
	case !isHalfOpen && wasTracked:
		delete(t.halfOpenSet, s)
		t.halfOpen--
	}
}

// NewSerial mints a fresh, unique SA serial number.
func (t *Table) NewSerial() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextSerial++
	return t.nextSerial
}

// Insert indexes sa by its current SPI pair and by initiator SPI alone
// (the index SA_INIT lookups use while the responder SPI is unknown).
func (t *Table) Insert(s *IkeSa) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.insertLocked(s)
}

func (t *Table) insertLocked(s *IkeSa) {
	t.bySpi[makeSpiKey(s.SpiI, s.SpiR)] = s
	t.byInitI[string(s.SpiI[:])] = s
	t.recalcHalfOpen(s)
}

// Rekey moves sa to a new SPI pair, as happens when a responder SPI
// becomes known after SA_INIT, or on emancipation (§4.8).
func (t *Table) Rekey(s *IkeSa, oldSpiI, oldSpiR protocol.Spi) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.bySpi, makeSpiKey(oldSpiI, oldSpiR))
	t.insertLocked(s)
}

// Emancipate retargets the SPI-pair and initiator-SPI indices from old
// to next after an IKE rekey (§4.8 "emancipate"). old and next share
// the same Serial and Children map (see IkeSa.Emancipate), so the
// (parent, msgid) child index needs no change — only the SPI indices
// move. Unlike Remove, this never touches t.children.
func (t *Table) Emancipate(old, next *IkeSa) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.halfOpenSet[old] {
		delete(t.halfOpenSet, old)
		t.halfOpen--
	}
	delete(t.bySpi, makeSpiKey(old.SpiI, old.SpiR))
	if cur, ok := t.byInitI[string(old.SpiI[:])]; ok && cur == old {
		delete(t.byInitI, string(old.SpiI[:]))
	}
	t.insertLocked(next)
}

// Remove drops sa and all of its children from every index.
func (t *Table) Remove(s *IkeSa) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.halfOpenSet[s] {
		delete(t.halfOpenSet, s)
		t.halfOpen--
	}
	delete(t.bySpi, makeSpiKey(s.SpiI, s.SpiR))
	if cur, ok := t.byInitI[string(s.SpiI[:])]; ok && cur == s {
		delete(t.byInitI, string(s.SpiI[:]))
	}
	for serial := range s.Children {
		delete(t.children, childKey{parent: s.Serial, msgId: t.findChildMsgId(s.Serial, serial)})
	}
}

func (t *Table) findChildMsgId(parent, childSerial uint64) uint32 {
	for k, c := range t.children {
		if k.parent == parent && c.Serial == childSerial {
			return k.msgId
		}
	}
	return 0
}

// BySpi looks up an SA by the full (initiator, responder) SPI pair —
// used by all post-INIT exchanges.
func (t *Table) BySpi(spiI, spiR protocol.Spi) (*IkeSa, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.bySpi[makeSpiKey(spiI, spiR)]
	return s, ok
}

// ByInitiatorSpi looks up an SA by initiator SPI alone — used for
// SA_INIT requests (responder SPI is zero) and SA_INIT responses
// (responder SPI not yet known to us).
func (t *Table) ByInitiatorSpi(spiI protocol.Spi) (*IkeSa, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.byInitI[string(spiI[:])]
	return s, ok
}

// HalfOpenCount reports the number of SAs currently in a half-open
// state, for the DoS gate (§4.7 step 2, §5 resource bounds).
func (t *Table) HalfOpenCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.halfOpen
}

// AddChild indexes a child under (parent serial, creating msgid) and
// attaches it to the parent's Children map.
func (t *Table) AddChild(parent *IkeSa, c *ChildSa) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.children[childKey{parent: parent.Serial, msgId: c.CreatedAtMsgId}] = c
	parent.Children[c.Serial] = c
}

// ChildByParentMsgId finds the CHILD SA awaiting a CREATE_CHILD_SA
// response on the given parent.
func (t *Table) ChildByParentMsgId(parentSerial uint64, msgId uint32) (*ChildSa, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.children[childKey{parent: parentSerial, msgId: msgId}]
	return c, ok
}

// RemoveChild drops c from both the child index and its parent.
func (t *Table) RemoveChild(parent *IkeSa, c *ChildSa) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.children, childKey{parent: parent.Serial, msgId: c.CreatedAtMsgId})
	delete(parent.Children, c.Serial)
}
