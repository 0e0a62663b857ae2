package demux

import (
	"net"

	"github.com/go-kit/kit/log/level"
	"github.com/msgboxio/ikedemux/protocol"
	"github.com/msgboxio/ikedemux/sa"
)

// collectFragments implements §4.7 step 7. It returns the ciphertext
// to decrypt (either the bare SK payload's, or the concatenation of a
// completed SKF reassembly), the framing prefix to authenticate it
// against (nil for the bare case, meaning "use md.raw as-is"; see
// decrypt), and the next-payload type the inner chain starts with.
// ready is false if more fragments are needed, a fragment was
// rejected, or no SK/SKF payload is present (caller must return
// without further processing). ready is true, with the other return
// values unused, when the row doesn't require decryption at all.
func (d *Dispatcher) collectFragments(s *sa.IkeSa, md *MessageDigest, row *Row) (ciphertext, header []byte, firstPayload protocol.PayloadType, ready bool) {
	if !row.RequiresDecrypt() {
		return nil, nil, protocol.PayloadTypeNone, true
	}
	if md.clearChains == nil {
		return nil, nil, protocol.PayloadTypeNone, false
	}
	if skfHead := md.clearChains.Get(protocol.PayloadTypeSKF); skfHead != nil {
		if !s.Policy.FragmentationAllowed || !s.PeerFragmentationSupported {
			level.Debug(d.Logger).Log("msg", "drop: SKF without negotiated fragmentation support", "sa", s)
			return nil, nil, protocol.PayloadTypeNone, false
		}
		for fd := skfHead; fd != nil; fd = fd.Next {
			skf := fd.Payload.(*protocol.SkfPayload)
			var prefix []byte
			if skf.FragmentNumber == 1 {
				end := protocol.IKE_HEADER_LEN + protocol.PAYLOAD_HEADER_LENGTH
				if end <= len(md.raw) {
					prefix = md.raw[:end]
				}
			}
			disp := s.Frags.Accept(int(skf.FragmentNumber), int(skf.TotalFragments), fd.Header.NextPayload, skf.Ciphertext, prefix)
			switch disp {
			case sa.FragmentRejected:
				level.Debug(d.Logger).Log("msg", "drop: rejected fragment")
				return nil, nil, protocol.PayloadTypeNone, false
			case sa.FragmentComplete:
				next, hdr, full := s.Frags.Reassembled()
				s.Frags.Reset()
				return full, hdr, next, true
			}
		}
		return nil, nil, protocol.PayloadTypeNone, false
	}
	if skHead := md.clearChains.Get(protocol.PayloadTypeSK); skHead != nil {
		sk := skHead.Payload.(*protocol.SkPayload)
		return sk.Ciphertext, nil, sk.NextPayloadType(), true
	}
	return nil, nil, protocol.PayloadTypeNone, false
}

// decrypt implements §4.7 step 8: authenticated-decrypt using the
// peer's (skA, skE) half of the derived key material. header is nil
// for an unfragmented message: md.raw is then authenticated as-is and
// ciphertext is not used. For a reassembled SKF message, header is
// fragment 1's 32-byte framing prefix (the IKE header plus the SKF
// payload's generic payload header) and ciphertext is the
// concatenation of all SKF fragments' bodies; the two are joined and
// authenticated as one buffer. Any failure — missing keys, bad MAC, failed AEAD
// open — is a silent drop per the error-handling taxonomy (§7
// "Authentication").
func (d *Dispatcher) decrypt(s *sa.IkeSa, md *MessageDigest, header, ciphertext []byte) ([]byte, bool) {
	if s.Suite == nil || s.Keys == nil {
		return nil, false
	}
	weAreInitiator := s.Role == sa.Initiator
	skA, skE := s.Keys.DecryptKeys(weAreInitiator)
	// Cipher.VerifyDecrypt wants a whole header+SK-payload datagram. A
	// bare (unfragmented) SK message already is one: md.raw, untouched.
	// A reassembled SKF message is reconstructed from fragment 1's own
	// framing prefix followed by the concatenated fragment bodies; the
	// length fields in that prefix are fragment 1's, not recomputed.
	ike := md.raw
	if header != nil {
		ike = make([]byte, 0, len(header)+len(ciphertext))
		ike = append(ike, header...)
		ike = append(ike, ciphertext...)
	}
	dec, err := s.Suite.VerifyDecrypt(ike, skA, skE)
	if err != nil {
		return nil, false
	}
	return dec, true
}

// retransmit re-emits the SA's cached response bytes unchanged
// (§3 invariant, §4.4, scenario 3).
func (d *Dispatcher) retransmit(s *sa.IkeSa) {
	for _, pkt := range s.LastSent {
		_ = d.Sender.Send(pkt, s.RemoteAddr)
	}
}

// replyNotify builds and sends a bare Notify-only response with the
// given code, optionally carrying msg as the notification message
// field (used for COOKIE tokens and unsupported-critical-payload type
// echoes). s may be nil when no SA exists yet (pre-state SA_INIT
// gating); in that case the response is unencrypted. With an SA, the
// response goes through buildReply, which SK-wraps it once the SA has
// key material.
func (d *Dispatcher) replyNotify(md *MessageDigest, s *sa.IkeSa, code protocol.NotificationType, to net.Addr, msg ...[]byte) {
	var payload []byte
	if len(msg) > 0 {
		payload = msg[0]
	}
	notify := &protocol.NotifyPayload{
		PayloadHeader:       &protocol.PayloadHeader{},
		ProtocolId:          protocol.IKE,
		NotificationType:    code,
		NotificationMessage: payload,
	}
	if s != nil {
		if out := d.buildReply(s, md, []protocol.Payload{notify}); out != nil {
			_ = d.Sender.Send(out, to)
		}
		return
	}
	body := protocol.EncodePayloadChain([]protocol.Payload{notify}, func(protocol.Payload) bool { return false })
	h := &protocol.IkeHeader{
		SpiI:         md.Header.SpiI,
		SpiR:         md.Header.SpiR,
		NextPayload:  protocol.PayloadTypeN,
		MajorVersion: protocol.IKEV2_MAJOR_VERSION,
		MinorVersion: protocol.IKEV2_MINOR_VERSION,
		ExchangeType: md.Header.ExchangeType,
		Flags:        protocol.RESPONSE,
		MsgId:        md.Header.MsgId,
	}
	h.MsgLength = uint32(protocol.IKE_HEADER_LEN + len(body))
	out := append(h.Encode(), body...)
	_ = d.Sender.Send(out, to)
}

// replyError is replyNotify for the common case of a single error
// notification with no payload.
func (d *Dispatcher) replyError(md *MessageDigest, code protocol.NotificationType, to net.Addr) {
	d.replyNotify(md, nil, code, to)
}

// teardownWithNotify replies with code (if we are the responder for
// this exchange) and destroys the SA — the encrypted-payload failure
// path of §4.7 step 9 / §7 "Policy"/"Authentication".
func (d *Dispatcher) teardownWithNotify(s *sa.IkeSa, md *MessageDigest, code protocol.NotificationType) {
	if !md.Header.Flags.IsResponse() {
		d.replyNotify(md, s, code, s.RemoteAddr)
	}
	d.Table.Remove(s)
}

// suspension is the concrete type behind IkeSa.SuspendedMsg: demux is
// the only package that knows its shape (per that field's contract).
// It bundles everything a later Resume needs to re-enter the handler
// exactly where Dispatch would have: the row it was selected under,
// the digest it was decoding, and the handler's own opaque
// Continuation value.
type suspension struct {
	row          *Row
	md           *MessageDigest
	continuation interface{}
}

// Complete implements the Completion Path (§4.8).
func (d *Dispatcher) Complete(s *sa.IkeSa, md *MessageDigest, row *Row, result TransitionResult) {
	switch result.Outcome {
	case Ok:
		d.completeOk(s, md, row, result)
	case Suspend:
		s.SuspendedMsg = &suspension{row: row, md: md, continuation: result.Continuation}
		s.SetBusy(true)
	case Ignore:
		// no state change; digest is garbage collected normally.
	case Drop:
		d.Table.Remove(s)
	case Fatal:
		level.Error(d.Logger).Log("msg", "fatal transition", "sa", s)
		d.Table.Remove(s)
	case Fail:
		d.completeFail(s, md, row, result)
	}
}

func (d *Dispatcher) completeOk(s *sa.IkeSa, md *MessageDigest, row *Row, result TransitionResult) {
	// NextState == StateNone marks a row whose real destination depends
	// on the encrypted-payload signature (CREATE_CHILD_SA morphing,
	// §4.7 step 10) or on emancipation below; such handlers set
	// s.State themselves rather than have the row dictate it.
	if row.NextState != sa.StateNone {
		s.State = row.NextState
	}

	if result.Emancipated != nil {
		next := result.Emancipated
		d.Table.Emancipate(s, next)
		s = next
		md.SA = s
	}

	if !md.Header.Flags.IsResponse() {
		s.Window.CommitRequest(md.Header.MsgId, row.Send)
	} else {
		s.Window.CommitResponse(md.Header.MsgId)
		d.drainPendingOut(s)
	}

	if row.Send && len(result.Reply) > 0 {
		pkt := d.buildReply(s, md, result.Reply)
		s.LastSent = [][]byte{pkt}
		_ = d.Sender.Send(pkt, s.RemoteAddr)
	}

	_ = row.TimeoutEvent // scheduling is an external timer concern (§1 out of scope)
}

// drainPendingOut implements §4.4 "Window"'s queued-request rule: once
// a response frees the send window (nextuse - lastack - 1 < window
// size), the oldest queued outbound request is sent. Each
// PendingRequest is already fully encoded with the msgid it carries;
// that msgid is reserved (Window.MintRequest) only when the request is
// drained, so a queued request does not hold the window while it waits.
func (d *Dispatcher) drainPendingOut(s *sa.IkeSa) {
	if len(s.PendingOut) == 0 || !s.Window.HasWindowSpace() {
		return
	}
	next := s.PendingOut[0]
	s.PendingOut = s.PendingOut[1:]
	s.Window.MintRequest()
	s.LastSent = [][]byte{next.Data}
	_ = d.Sender.Send(next.Data, s.RemoteAddr)
}

func (d *Dispatcher) completeFail(s *sa.IkeSa, md *MessageDigest, row *Row, result TransitionResult) {
	isResponderForThisExchange := !md.Header.Flags.IsResponse()
	if isResponderForThisExchange {
		d.replyNotify(md, s, result.Notification, s.RemoteAddr)
	}
	if md.Header.ExchangeType == protocol.IKE_SA_INIT {
		d.Table.Remove(s)
		return
	}
	// later exchanges: schedule a discard timer instead of immediate
	// deletion, to absorb peer retransmits (§4.8). Timer scheduling
	// itself is an external concern; marking not-busy lets a
	// subsequent retransmit be classified and dropped normally.
	s.SetBusy(false)
}

// buildReply wraps handler-built payloads in SK, encrypts with the
// SA's current send-direction keys, and produces the full IKE
// datagram ready to send.
func (d *Dispatcher) buildReply(s *sa.IkeSa, md *MessageDigest, payloads []protocol.Payload) []byte {
	body := protocol.EncodePayloadChain(payloads, func(protocol.Payload) bool { return false })

	h := &protocol.IkeHeader{
		SpiI:         md.Header.SpiI,
		SpiR:         md.Header.SpiR,
		MajorVersion: protocol.IKEV2_MAJOR_VERSION,
		MinorVersion: protocol.IKEV2_MINOR_VERSION,
		ExchangeType: md.Header.ExchangeType,
		MsgId:        md.Header.MsgId,
	}
	if !md.Header.Flags.IsInitiator() {
		h.Flags |= protocol.INITIATOR
	}
	h.Flags |= protocol.RESPONSE

	if s.Suite == nil || s.Keys == nil {
		// pre-SKEYSEED path (SA_INIT): no SK wrapping.
		h.NextPayload = payloads[0].Type()
		h.MsgLength = uint32(protocol.IKE_HEADER_LEN + len(body))
		return append(h.Encode(), body...)
	}

	weAreInitiator := s.Role == sa.Initiator
	skA, skE := s.Keys.EncryptKeys(weAreInitiator)
	h.NextPayload = protocol.PayloadTypeSK
	plen := len(body) + s.Suite.Overhead(body)
	h.MsgLength = uint32(protocol.IKE_HEADER_LEN + protocol.PAYLOAD_HEADER_LENGTH + plen)
	headers := h.Encode()
	headers = append(headers, protocol.EncodePayloadHeader(payloads[0].Type(), false, uint16(plen))...)
	out, err := s.Suite.EncryptMac(headers, body, skA, skE)
	if err != nil {
		return nil
	}
	return out
}
