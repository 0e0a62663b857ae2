// Package demux is the IKEv2 message demultiplexer: it turns a raw
// datagram into a validated, classified MessageDigest, finds or
// creates the owning SA, selects a transition row, and drives the
// handler/completion cycle. It is the core described by the spec this
// module implements; everything else in the tree is support for it.
package demux

import (
	"net"

	"github.com/msgboxio/ikedemux/protocol"
)

// MaxPayloadsPerMessage bounds the payload chain walked by the
// decoder (§4.1 step 1, §5 resource bounds).
const MaxPayloadsPerMessage = 20

// PayloadDigest is one decoded payload: its header, the decoded body,
// and the link to the next occurrence of the same type in arrival
// order (§3 "payload-chain head... lists all occurrences").
type PayloadDigest struct {
	Header  protocol.PayloadHeader
	Payload protocol.Payload
	Next    *PayloadDigest
}

// PayloadSummary is the Payload Decoder's output (§4.1): which types
// were seen, which repeated, and whether decoding reached the end of
// the chain cleanly.
type PayloadSummary struct {
	Parsed       bool
	Seen         uint64 // bitset over PayloadType, bit i set iff type i seen
	Repeated     uint64
	Notification protocol.NotificationType // protocol.NothingWrong unless decode failed
	BadType      protocol.PayloadType      // set when Notification == UnsupportedCriticalPayload
}

func (s *PayloadSummary) markSeen(pt protocol.PayloadType) {
	bit := uint64(1) << uint(pt)
	if s.Seen&bit != 0 {
		s.Repeated |= bit
	}
	s.Seen |= bit
}

func (s *PayloadSummary) has(pt protocol.PayloadType) bool {
	return s.Seen&(uint64(1)<<uint(pt)) != 0
}

func (s *PayloadSummary) isRepeated(pt protocol.PayloadType) bool {
	return s.Repeated&(uint64(1)<<uint(pt)) != 0
}

// chains holds the per-type chain heads/tails alongside the summary,
// kept out of PayloadSummary itself so the summary stays a small
// value type cheap to copy into test assertions.
type chains struct {
	head map[protocol.PayloadType]*PayloadDigest
	tail map[protocol.PayloadType]*PayloadDigest
}

func newChains() *chains {
	return &chains{
		head: make(map[protocol.PayloadType]*PayloadDigest),
		tail: make(map[protocol.PayloadType]*PayloadDigest),
	}
}

func (c *chains) append(d *PayloadDigest) {
	pt := d.Payload.Type()
	if c.head[pt] == nil {
		c.head[pt] = d
	} else {
		c.tail[pt].Next = d
	}
	c.tail[pt] = d
}

// Get returns the first occurrence of pt, or nil.
func (c *chains) Get(pt protocol.PayloadType) *PayloadDigest { return c.head[pt] }

// MessageDigest is everything known about one incoming message (§3).
type MessageDigest struct {
	Header     *protocol.IkeHeader
	RemoteAddr net.Addr
	LocalAddr  net.Addr

	raw []byte // full datagram, retained for AEAD associated-data and MACs

	clearChains    *chains
	clearSummary   PayloadSummary
	clearDecodedAt bool // clear-payload decode is cached; only ever run once

	encChains  *chains
	encSummary PayloadSummary
	encDecoded bool

	FromState interface{} // sa.State, boxed to avoid an import cycle
	Row       interface{} // *demux.Row once selected; interface{} keeps this type self-contained

	SA interface{} // *sa.IkeSa once resolved

	// Continuation is nil on a handler's first invocation. On resume
	// (§4.8 "Suspend"), Dispatcher.Resume sets it to whatever value the
	// handler itself returned as TransitionResult.Continuation the
	// first time around; demux never interprets it.
	Continuation interface{}
}

// NewMessageDigest wraps a decoded header and the datagram it came
// from. The payload chain is decoded lazily by DecodeClear and
// DecodeEncrypted.
func NewMessageDigest(h *protocol.IkeHeader, raw []byte, remote, local net.Addr) *MessageDigest {
	return &MessageDigest{Header: h, raw: raw, RemoteAddr: remote, LocalAddr: local}
}

// ClearPayload returns the first clear-text payload of type pt, if the
// clear-payload chain has been decoded.
func (m *MessageDigest) ClearPayload(pt protocol.PayloadType) protocol.Payload {
	if m.clearChains == nil {
		return nil
	}
	if d := m.clearChains.Get(pt); d != nil {
		return d.Payload
	}
	return nil
}

// EncryptedPayload returns the first decrypted payload of type pt, if
// the encrypted chain has been decoded.
func (m *MessageDigest) EncryptedPayload(pt protocol.PayloadType) protocol.Payload {
	if m.encChains == nil {
		return nil
	}
	if d := m.encChains.Get(pt); d != nil {
		return d.Payload
	}
	return nil
}

// ClearSummary returns the clear-payload PayloadSummary (valid only
// after DecodeClear has been called).
func (m *MessageDigest) ClearSummary() PayloadSummary { return m.clearSummary }

// EncryptedSummary returns the encrypted-payload PayloadSummary (valid
// only after DecodeEncrypted has been called).
func (m *MessageDigest) EncryptedSummary() PayloadSummary { return m.encSummary }
