package sa

import (
	"fmt"
	"net"

	"github.com/msgboxio/ikedemux/crypto"
	"github.com/msgboxio/ikedemux/protocol"
)

// Role is the SA's role at creation. It never changes across a rekey:
// emancipation swaps SPIs and state, not role.
type Role int

const (
	Responder Role = iota
	Initiator
)

func (r Role) String() string {
	if r == Initiator {
		return "initiator"
	}
	return "responder"
}

// PendingRequest is one outbound request queued because the window
// was full (§4.4 "Window"): a raw, already-encoded packet and the
// msgid it will carry once sent. CREATE_CHILD_SA handlers queue here
// rather than sending directly, since at most one request may be in
// flight per direction.
type PendingRequest struct {
	MsgId uint32
	Data  []byte
}

// IkeSa is the long-lived control-plane association (§3). Exactly one
// goroutine — the dispatcher's event loop — ever touches a given IkeSa;
// there is no internal locking.
type IkeSa struct {
	Serial uint64 // stable identity across SPI changes (rekey/emancipation)

	SpiI, SpiR protocol.Spi
	Role       Role
	State      State

	Window *MsgIdWindow

	Suite *crypto.CipherSuite // nil until SKEYSEED is derived
	Keys  *KeyMaterial        // nil until SKEYSEED is derived

	Policy *Policy

	Frags *Reassembler

	// PeerFragmentationSupported is set once the peer's
	// IKEV2_FRAGMENTATION_SUPPORTED notify has been observed in an
	// IKE_SA_INIT exchange (§4.3's first SKF admission rule). Combined
	// with Policy.FragmentationAllowed, it gates whether SKF payloads
	// are accepted for this SA at all.
	PeerFragmentationSupported bool

	// LastSent is the most recently transmitted packet (or, if
	// fragmented, its fragment list) retained for re-sending when a
	// request is classified as a retransmit (§4.4).
	LastSent [][]byte

	PendingOut []PendingRequest

	RemoteAddr net.Addr
	LocalAddr  net.Addr

	busy bool

	// SuspendedMsg holds the dispatcher's opaque continuation while a
	// handler is suspended (§5 "Suspension points"); demux is the only
	// package that knows its concrete type.
	SuspendedMsg interface{}

	// Children are this IKE SA's CHILD SAs, keyed by their own serial.
	Children map[uint64]*ChildSa
}

// NewIkeSa constructs a fresh half-open SA. Serial must be unique and
// monotonically assigned by the caller (the SA table does this).
func NewIkeSa(serial uint64, role Role, policy *Policy) *IkeSa {
	state := R0
	if role == Initiator {
		state = I0
	}
	return &IkeSa{
		Serial:   serial,
		Role:     role,
		State:    state,
		Window:   NewMsgIdWindow(),
		Policy:   policy,
		Frags:    &Reassembler{},
		Children: make(map[uint64]*ChildSa),
	}
}

func (s *IkeSa) String() string {
	return fmt.Sprintf("ike[%d %#x<=>%#x %s %s]", s.Serial, s.SpiI, s.SpiR, s.Role, s.State)
}

// Busy reports whether a transition is in progress (invariant 2).
func (s *IkeSa) Busy() bool { return s.busy }

// SetBusy marks a transition as starting or finishing. The dispatcher
// must check Busy before starting any new state-mutating transition.
func (s *IkeSa) SetBusy(v bool) { s.busy = v }

// HalfOpen reports whether this SA still counts against the DoS
// half-open threshold (§4.7 step 2, §5 resource bounds).
func (s *IkeSa) HalfOpen() bool { return s.State.Category() == CategoryHalfOpenIke }

// Emancipate promotes a CHILD SA born from an IKE-rekey exchange into
// this SA's replacement: the new SPI pair and all existing children
// move across, the Message-ID window resets (scenario 6), and the
// caller is responsible for scheduling the old SA's deletion.
func (s *IkeSa) Emancipate(newSpiI, newSpiR protocol.Spi, newSuite *crypto.CipherSuite, newKeys *KeyMaterial) *IkeSa {
	next := &IkeSa{
		Serial:                     s.Serial,
		SpiI:                       newSpiI,
		SpiR:                       newSpiR,
		Role:                       s.Role,
		Window:                     NewMsgIdWindow(),
		Suite:                      newSuite,
		Keys:                       newKeys,
		Policy:                     s.Policy,
		Frags:                      &Reassembler{},
		Children:                   s.Children,
		RemoteAddr:                 s.RemoteAddr,
		LocalAddr:                  s.LocalAddr,
		PeerFragmentationSupported: s.PeerFragmentationSupported,
	}
	if s.Role == Initiator {
		next.State = I3
	} else {
		next.State = R2
	}
	for _, c := range next.Children {
		c.ParentSerial = next.Serial
	}
	return next
}
