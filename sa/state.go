// Package sa holds the IKE and CHILD security-association data model:
// state enumeration, Message-ID windows, the SA lookup table, and the
// fragment reassembly buffer. It is deliberately inert — it knows
// nothing about wire decoding or the transition table; demux drives it.
package sa

import "fmt"

// State is one node of the IKE SA finite state machine (§4.9). Values
// are assigned in a contiguous range so a future bitset over reachable
// states stays cheap; do not renumber without checking Category.
type State int

const (
	StateNone State = iota

	I0 // about to send SA_INIT
	I1 // SA_INIT sent, awaiting response
	I2 // AUTH sent, awaiting response
	I3 // established, initiator

	R0 // about to receive SA_INIT
	R1 // SA_INIT reply sent, awaiting AUTH
	R2 // established, responder

	RekeyChildI0 // about to send CREATE_CHILD_SA for a new/rekeyed child
	RekeyChildI  // sent, awaiting response
	IpsecI       // child established, initiator side of the rekey

	CreateR // responder processing CREATE_CHILD_SA
	IpsecR  // child established, responder side

	RekeyIkeI0 // about to send CREATE_CHILD_SA rekeying the IKE SA itself
	RekeyIkeI  // sent, awaiting response (emancipates into I3 on success)

	RekeyIkeR // responder processing an IKE rekey (emancipates into R2)

	IkesaDel   // INFORMATIONAL carrying a Delete(IKE) in flight
	ChildsaDel // INFORMATIONAL carrying a Delete(Child) in flight
)

var stateNames = map[State]string{
	StateNone:    "NONE",
	I0:           "I0",
	I1:           "I1",
	I2:           "I2",
	I3:           "I3",
	R0:           "R0",
	R1:           "R1",
	R2:           "R2",
	RekeyChildI0: "RekeyChildI0",
	RekeyChildI:  "RekeyChildI",
	IpsecI:       "IpsecI",
	CreateR:      "CreateR",
	IpsecR:       "IpsecR",
	RekeyIkeI0:   "RekeyIkeI0",
	RekeyIkeI:    "RekeyIkeI",
	RekeyIkeR:    "RekeyIkeR",
	IkesaDel:     "IkesaDel",
	ChildsaDel:   "ChildsaDel",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Category buckets a state for DoS accounting (§3, §5 resource bounds):
// half-open IKE SAs are the ones an attacker can cheaply multiply, so
// they get a dedicated threshold separate from everything else.
type Category int

const (
	CategoryIgnore Category = iota
	CategoryHalfOpenIke
	CategoryOpenIke
	CategoryEstablishedIke
	CategoryEstablishedChild
	CategoryInformational
)

func (s State) Category() Category {
	switch s {
	case StateNone:
		return CategoryIgnore
	case I0, R0:
		return CategoryHalfOpenIke
	case I1, R1:
		return CategoryOpenIke
	case I2:
		return CategoryOpenIke
	case I3, R2:
		return CategoryEstablishedIke
	case RekeyChildI0, RekeyChildI, IpsecI, CreateR, IpsecR,
		RekeyIkeI0, RekeyIkeI, RekeyIkeR:
		return CategoryEstablishedChild
	case IkesaDel, ChildsaDel:
		return CategoryInformational
	}
	return CategoryIgnore
}
