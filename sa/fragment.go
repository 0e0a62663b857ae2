package sa

import "github.com/msgboxio/ikedemux/protocol"

// MaxIkeFragments bounds the fragment count of a single reassembly
// (§5 resource bounds, RFC 7383 doesn't impose one itself).
const MaxIkeFragments = 32

// fragSlot is one collected SKF fragment's ciphertext, cloned out of
// the receive buffer so the caller's buffer can be reused/freed.
type fragSlot struct {
	ciphertext []byte
}

// Reassembler collects SKF fragments for one IKE SA (§4.3). Only one
// reassembly is ever in progress per SA; a larger total count from the
// peer discards whatever was collected so far and restarts, while a
// smaller one is rejected.
type Reassembler struct {
	total     int
	slots     []fragSlot
	received  int
	firstNext protocol.PayloadType // next_payload carried by fragment 1
	header    []byte               // fragment 1's raw framing prefix, for MAC reconstruction
}

// FragmentDisposition is the verdict for one incoming SKF.
type FragmentDisposition int

const (
	FragmentRejected  FragmentDisposition = iota // malformed / out of bounds
	FragmentDuplicate                            // slot already filled, dropped
	FragmentCollected                            // stored, reassembly incomplete
	FragmentComplete                             // stored, all fragments now present
)

// Accept validates and (on success) stores fragment `number` of
// `total`, whose reassembled message's first payload is `nextPayload`
// (only meaningful when number == 1; RFC 7296 §3.14 requires SK/SKF to
// force next_payload := None on the outer header, so the real chain
// head lives inside fragment 1's declared next-payload field).
// framingPrefix is fragment 1's raw IKE header plus its SKF payload's
// generic 4-byte payload header (next/critical/length), retained
// verbatim and treated as standing in for what an unfragmented
// message's SK payload header would have been: concatenated with the
// fragment bodies (which already exclude each SKF payload's own
// fragment-number/total-fragments fields), it reconstructs a buffer
// with the same header+SK-header+ciphertext shape Cipher.VerifyDecrypt
// expects (RFC 7383 §2.5.1 is approximated, not reproduced exactly).
func (r *Reassembler) Accept(number, total int, nextPayload protocol.PayloadType, ciphertext []byte, framingPrefix []byte) FragmentDisposition {
	if total < 1 || total > MaxIkeFragments || number < 1 || number > total {
		return FragmentRejected
	}
	if (number == 1) != (nextPayload != protocol.PayloadTypeNone) {
		return FragmentRejected
	}
	switch {
	case r.total == 0:
		r.start(total)
	case total > r.total:
		// peer's MTU shrank mid-handshake; restart with the new total.
		r.start(total)
	case total < r.total:
		return FragmentRejected
	}
	idx := number - 1
	if r.slots[idx].ciphertext != nil {
		return FragmentDuplicate
	}
	buf := make([]byte, len(ciphertext))
	copy(buf, ciphertext)
	r.slots[idx] = fragSlot{ciphertext: buf}
	r.received++
	if number == 1 {
		r.firstNext = nextPayload
		r.header = append([]byte{}, framingPrefix...)
	}
	if r.received == r.total {
		return FragmentComplete
	}
	return FragmentCollected
}

func (r *Reassembler) start(total int) {
	r.total = total
	r.slots = make([]fragSlot, total)
	r.received = 0
}

// Reassembled concatenates all fragment ciphertexts in order. Only
// valid to call once Accept has returned FragmentComplete.
func (r *Reassembler) Reassembled() (nextPayload protocol.PayloadType, header, ciphertext []byte) {
	var out []byte
	for _, s := range r.slots {
		out = append(out, s.ciphertext...)
	}
	return r.firstNext, r.header, out
}

// Reset discards any in-progress reassembly, e.g. after the message
// has been handed to the dispatcher or the SA is torn down.
func (r *Reassembler) Reset() {
	r.total = 0
	r.slots = nil
	r.received = 0
}

// InProgress reports whether a reassembly has been started.
func (r *Reassembler) InProgress() bool { return r.total > 0 }
