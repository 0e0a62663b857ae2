package demux

import (
	"github.com/msgboxio/ikedemux/protocol"
	"github.com/msgboxio/ikedemux/sa"
)

// FlagConstraint is a three-valued match against an IkeFlags bit:
// required set, required clear, or don't-care.
type FlagConstraint int

const (
	DontCare FlagConstraint = iota
	MustBeSet
	MustBeClear
)

func (c FlagConstraint) matches(set bool) bool {
	switch c {
	case MustBeSet:
		return set
	case MustBeClear:
		return !set
	}
	return true
}

// TimeoutEvent is scheduled by the Completion Path once a transition
// commits (§4.8).
type TimeoutEvent int

const (
	TimeoutNone TimeoutEvent = iota
	TimeoutRetransmit
	TimeoutSaReplace
	TimeoutDiscard
	TimeoutRetain
)

// Handler advances an SA given a qualified message (§6 "Handler
// interface"). Its body is out of scope for this module; only the
// contract is specified here.
type Handler func(s *sa.IkeSa, md *MessageDigest) TransitionResult

// Row is one admissible arc of the state machine (§3 "Transition Row
// (microcode)").
type Row struct {
	Name string // for logging/tests only, never matched on

	FromState sa.State
	NextState sa.State

	IkeInitiator FlagConstraint // the IKE_I bit of the *received* message
	MsgResponse  FlagConstraint // the MSG_R bit of the *received* message
	Send         bool           // emit a reply packet on Ok

	// NoSkeyseedRequired marks the pre-key-derivation responder path
	// (a CREATE_CHILD_SA/IKE_SA_INIT row usable before SKEYSEED exists).
	NoSkeyseedRequired bool

	RecvExchangeType protocol.IkeExchangeType

	MessagePayloads   ExpectedPayloads
	EncryptedPayloads ExpectedPayloads

	Handler Handler

	TimeoutEvent TimeoutEvent
}

// bypassFromState reports whether from_state matching is skipped for
// this row: true for CREATE_CHILD_SA, whose actual origin state is
// decided by the encrypted-payload signature instead (§4.6 rule 1).
func (r *Row) bypassFromState() bool {
	return r.RecvExchangeType == protocol.CREATE_CHILD_SA
}

// Table is an ordered set of Rows. Rows for the same FromState are
// tried in declaration order, so a more specific match (e.g. one
// requiring a particular notification) can be listed ahead of a
// generic fallback and win (§9 design note).
type Table struct {
	Rows []*Row
}

// Select implements the Transition Selector (§4.6). clearSummary must
// already be decoded (DecodeClear) before calling Select; Select
// itself never triggers decryption — step 6 of the dispatcher (this
// function) only resolves which row to run, and whether it *requires*
// decryption (Required.contains(SK)) is left for the caller to act on.
func (t *Table) Select(from sa.State, exch protocol.IkeExchangeType, flags protocol.IkeFlags, summary PayloadSummary, notifyChain *PayloadDigest) *Row {
	for _, row := range t.Rows {
		if row.RecvExchangeType != exch {
			continue
		}
		if !row.bypassFromState() && row.FromState != from {
			continue
		}
		if !row.IkeInitiator.matches(flags.IsInitiator()) {
			continue
		}
		if !row.MsgResponse.matches(flags.IsResponse()) {
			continue
		}
		if VerifyChain(summary, notifyChain, row.MessagePayloads).Bad() {
			continue
		}
		return row
	}
	return nil
}

// RequiresDecrypt reports whether row's clear-payload signature
// requires an SK/SKF payload, i.e. whether the dispatcher must
// decrypt before running encrypted-payload verification (§4.6 rule 6).
func (r *Row) RequiresDecrypt() bool {
	return r.MessagePayloads.Required&bit(protocol.PayloadTypeSK) != 0
}
