package demux

import (
	"net"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/msgboxio/ikedemux/protocol"
	"github.com/msgboxio/ikedemux/sa"
)

// HalfOpenSoftLimit and HalfOpenHardLimit gate responder SA creation
// under load (§4.7 step 2, §5 resource bounds): at or above the soft
// limit, SA_INIT requests must carry a valid COOKIE notify; at or
// above the hard limit, new exchanges are dropped outright regardless
// of cookie.
const (
	HalfOpenSoftLimit = 1000
	HalfOpenHardLimit = 10000
)

// Sender hands an encoded datagram to the network. The dispatcher
// never opens sockets itself; transport.Conn satisfies this via a
// thin adapter in cmd/.
type Sender interface {
	Send(b []byte, to net.Addr) error
}

// Dispatcher is the Exchange Dispatcher (§4.7): the orchestrator
// tying together SA lookup, Message-ID tracking, transition selection,
// fragment reassembly, decryption, and the handler/completion cycle.
type Dispatcher struct {
	Table   *sa.Table
	Rows    *Table
	Cookie  *CookieSecret
	Sender  Sender
	Logger  log.Logger
	NewChildSerial func() uint64
}

// Dispatch processes one raw datagram (§4.7 steps 1-12). It never
// panics on malformed input; every failure path ends in a drop, a
// Notify response, or SA teardown, never a handler invocation with a
// half-formed digest.
func (d *Dispatcher) Dispatch(raw []byte, remote, local net.Addr) {
	hdr, err := protocol.DecodeIkeHeader(raw)
	if err != nil {
		level.Debug(d.Logger).Log("msg", "drop: bad header", "err", err)
		return
	}
	md := NewMessageDigest(hdr, raw, remote, local)

	switch hdr.ExchangeType {
	case protocol.IKE_SA_INIT:
		d.dispatchInit(md)
	default:
		d.dispatchEstablished(md)
	}
}

// dispatchInit implements step 1/2 for IKE_SA_INIT: msgid/flags
// sanity, SA lookup-or-create, and the DoS/cookie gate.
func (d *Dispatcher) dispatchInit(md *MessageDigest) {
	h := md.Header
	if h.Flags.IsResponse() {
		d.dispatchInitResponse(md)
		return
	}
	if h.MsgId != 0 || !h.Flags.IsInitiator() || !h.SpiR.IsZero() {
		level.Debug(d.Logger).Log("msg", "drop: malformed SA_INIT request")
		return
	}

	if existing, ok := d.Table.ByInitiatorSpi(h.SpiI); ok {
		d.runForSa(existing, md)
		return
	}

	half := d.Table.HalfOpenCount()
	if half >= HalfOpenHardLimit {
		level.Info(d.Logger).Log("msg", "drop: half-open hard limit", "count", half)
		return
	}

	clearSummary := md.DecodeClear()
	if !clearSummary.Parsed {
		if clearSummary.Notification == protocol.UNSUPPORTED_CRITICAL_PAYLOAD {
			d.replyNotify(md, nil, clearSummary.Notification, md.RemoteAddr, []byte{byte(clearSummary.BadType)})
			return
		}
		d.replyNotify(md, nil, clearSummary.Notification, md.RemoteAddr)
		return
	}

	nonce, _ := md.ClearPayload(protocol.PayloadTypeNonce).(*protocol.NoncePayload)
	var ni []byte
	if nonce != nil && nonce.Nonce != nil {
		ni = nonce.Nonce.Bytes()
	}

	if half >= HalfOpenSoftLimit {
		if !d.cookieSatisfied(md, ni) {
			token := d.Cookie.Derive(md.RemoteAddr, h.SpiI, ni)
			d.replyNotify(md, nil, protocol.COOKIE, md.RemoteAddr, token)
			return
		}
	}

	serial := d.Table.NewSerial()
	newSa := sa.NewIkeSa(serial, sa.Responder, sa.DefaultPolicy())
	newSa.SpiI = h.SpiI
	newSa.RemoteAddr = md.RemoteAddr
	newSa.LocalAddr = md.LocalAddr
	d.Table.Insert(newSa)
	d.runForSa(newSa, md)
}

// cookieSatisfied reports whether md's clear-payload chain opens with
// a Notify(COOKIE) matching what we'd have issued.
func (d *Dispatcher) cookieSatisfied(md *MessageDigest, ni []byte) bool {
	if d.Cookie == nil {
		return true
	}
	if md.Header.NextPayload != protocol.PayloadTypeN {
		return false
	}
	first := md.ClearPayload(protocol.PayloadTypeN)
	notify, ok := first.(*protocol.NotifyPayload)
	if !ok || notify.NotificationType != protocol.COOKIE {
		return false
	}
	return d.Cookie.Verify(md.RemoteAddr, md.Header.SpiI, ni, notify.NotificationMessage)
}

func (d *Dispatcher) dispatchInitResponse(md *MessageDigest) {
	h := md.Header
	if h.Flags.IsInitiator() {
		level.Debug(d.Logger).Log("msg", "drop: SA_INIT response with IKE_I set")
		return
	}
	existing, ok := d.Table.ByInitiatorSpi(h.SpiI)
	if !ok {
		level.Debug(d.Logger).Log("msg", "drop: SA_INIT response, no matching SA")
		return
	}
	if existing.SpiR.IsZero() && !h.SpiR.IsZero() {
		oldI, oldR := existing.SpiI, existing.SpiR
		existing.SpiR = h.SpiR
		d.Table.Rekey(existing, oldI, oldR)
	}
	d.runForSa(existing, md)
}

// dispatchEstablished handles every exchange type other than
// IKE_SA_INIT: lookup by full SPI pair (step 1). A no-match here is
// always the encrypted-message path (every non-INIT exchange is
// SK-wrapped), so per the SPI-leak redesign decision (spec.md §9, see
// SPEC_FULL.md/DESIGN.md's Open Question ledger) it is a silent drop,
// never an `INVALID_IKE_SPI` reply: responding would hand an
// unauthenticated peer a live oracle for which SPI pairs exist.
func (d *Dispatcher) dispatchEstablished(md *MessageDigest) {
	h := md.Header
	existing, ok := d.Table.BySpi(h.SpiI, h.SpiR)
	if !ok {
		level.Debug(d.Logger).Log("msg", "drop: no SA for spi pair")
		return
	}
	d.runForSa(existing, md)
}

// runForSa implements §4.7 steps 3-12 once an SA has been resolved
// (or created) for md.
func (d *Dispatcher) runForSa(s *sa.IkeSa, md *MessageDigest) {
	h := md.Header

	// step 3: IKE-role consistency
	wantInitiatorBit := s.Role == sa.Responder
	if h.Flags.IsInitiator() != wantInitiatorBit {
		level.Info(d.Logger).Log("msg", "drop: role/flag mismatch", "sa", s)
		return
	}

	// step 4: busy check
	if s.Busy() {
		level.Debug(d.Logger).Log("msg", "drop: sa busy", "sa", s)
		return
	}

	// step 5: retransmit check (requests only)
	if !h.Flags.IsResponse() {
		switch s.Window.ClassifyRequest(h.MsgId) {
		case sa.RequestStale:
			level.Debug(d.Logger).Log("msg", "drop: stale request", "msgid", h.MsgId)
			return
		case sa.RequestDuplicate:
			level.Debug(d.Logger).Log("msg", "drop: duplicate request still in flight", "msgid", h.MsgId)
			return
		case sa.RequestRetransmit:
			d.retransmit(s)
			return
		}
	} else {
		switch s.Window.ClassifyResponse(h.MsgId) {
		case sa.ResponseStale, sa.ResponseUnsolicited:
			level.Debug(d.Logger).Log("msg", "drop: stale/unsolicited response", "msgid", h.MsgId)
			return
		}
	}

	clearSummary := md.DecodeClear()
	if clearSummary.Notification == protocol.UNSUPPORTED_CRITICAL_PAYLOAD {
		d.replyNotify(md, s, protocol.UNSUPPORTED_CRITICAL_PAYLOAD, md.RemoteAddr, []byte{byte(clearSummary.BadType)})
		return
	}
	if !clearSummary.Parsed {
		d.replyError(md, clearSummary.Notification, md.RemoteAddr)
		return
	}

	// step 6: transition selection
	notifyChain := (*PayloadDigest)(nil)
	if md.clearChains != nil {
		notifyChain = md.clearChains.Get(protocol.PayloadTypeN)
	}
	if h.ExchangeType == protocol.IKE_SA_INIT {
		d.scanSaInitNotifies(s, md, notifyChain)
	}
	row := d.Rows.Select(s.State, h.ExchangeType, h.Flags, clearSummary, notifyChain)
	if row == nil {
		// Only the clear IKE_SA_INIT request gets a reply; every other
		// exchange is SK-wrapped and nothing has authenticated it yet.
		if !h.Flags.IsResponse() && h.ExchangeType == protocol.IKE_SA_INIT {
			d.replyError(md, protocol.INVALID_SYNTAX, md.RemoteAddr)
		}
		level.Info(d.Logger).Log("msg", "drop: no matching transition", "sa", s, "exch", h.ExchangeType)
		return
	}
	md.Row = row

	// step 7: fragments
	plaintext, frameHeader, firstPayload, ready := d.collectFragments(s, md, row)
	if !ready {
		return
	}

	var encSummary PayloadSummary
	if row.RequiresDecrypt() {
		// step 8: decrypt
		dec, ok := d.decrypt(s, md, frameHeader, plaintext)
		if !ok {
			level.Info(d.Logger).Log("msg", "drop: decrypt/mac failure", "sa", s)
			return
		}
		encSummary = md.DecodeEncrypted(firstPayload, dec)
		if !encSummary.Parsed {
			d.teardownWithNotify(s, md, encSummary.Notification)
			return
		}
		// step 9: verify encrypted payloads
		var encNotify *PayloadDigest
		if md.encChains != nil {
			encNotify = md.encChains.Get(protocol.PayloadTypeN)
		}
		if errs := VerifyChain(encSummary, encNotify, row.EncryptedPayloads); errs.Bad() {
			d.teardownWithNotify(s, md, protocol.INVALID_SYNTAX)
			return
		}
	}

	// step 10: CREATE_CHILD_SA morphing is left to the handler: it
	// receives the fully decoded digest and decides rekey-IKE vs
	// rekey-child vs new-child from the encrypted payload signature,
	// since only it knows which notify/KE/TS combination its own
	// transition table branch expects.

	md.FromState = s.State
	d.invokeAndComplete(s, md, row)
}

// invokeAndComplete implements §4.7 steps 11-12 (invoke handler, run
// the Completion Path) plus the post-completion SPI reindex. It is
// shared by runForSa's first invocation and Resume's re-entry after a
// Suspend, so both paths complete identically.
func (d *Dispatcher) invokeAndComplete(s *sa.IkeSa, md *MessageDigest, row *Row) {
	oldSpiI, oldSpiR := s.SpiI, s.SpiR
	s.SetBusy(true)
	result := row.Handler(s, md)
	s.SetBusy(false)

	d.Complete(s, md, row, result)

	// A responder handler picks its own SpiR directly on s (it has no
	// Table access of its own); once the IKE_SA_INIT reply goes out the
	// SPI pair is no longer just-the-initiator's, so the table's index
	// (and half-open accounting) must move with it. Skip when
	// emancipated: Complete already re-indexed the replacement SA.
	if result.Outcome == Ok && result.Emancipated == nil && s.SpiR != oldSpiR {
		d.Table.Rekey(s, oldSpiI, oldSpiR)
	}
}

// Resume re-enters a handler that previously returned Suspend, once
// the async dependency it was waiting on has completed (§4.7 step 7,
// §4.8 "Suspend", §5 "Suspension points"). The caller is whatever
// external collaborator owns that dependency (e.g. an auth backend
// finishing a credential check); it calls Resume once, with the same
// *sa.IkeSa handed to the handler originally. Resume clears busy,
// restores the stored digest and row, and re-drives steps 11-12
// exactly as the first invocation did.
func (d *Dispatcher) Resume(s *sa.IkeSa) {
	susp, ok := s.SuspendedMsg.(*suspension)
	if !ok || susp == nil {
		level.Error(d.Logger).Log("msg", "resume: sa has no suspended continuation", "sa", s)
		return
	}
	s.SuspendedMsg = nil
	s.SetBusy(false)

	susp.md.Continuation = susp.continuation
	d.invokeAndComplete(s, susp.md, susp.row)
}
