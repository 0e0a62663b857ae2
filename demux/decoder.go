package demux

import "github.com/msgboxio/ikedemux/protocol"

// decodeChain implements the Payload Decoder (§4.1). b is positioned
// at the first payload's header; next is the type of that first
// payload (from the IKE header's next-payload field, or the SK/SKF
// header's next-payload field for the encrypted chain).
func decodeChain(next protocol.PayloadType, b []byte) (*chains, PayloadSummary) {
	c := newChains()
	summary := PayloadSummary{Notification: protocol.NothingWrong}
	count := 0
	for next != protocol.PayloadTypeNone {
		if count >= MaxPayloadsPerMessage {
			summary.Notification = protocol.INVALID_SYNTAX
			return c, summary
		}
		count++

		if uint(next) >= MaxPayloadTypeBitLimit {
			summary.Notification = protocol.INVALID_SYNTAX
			return c, summary
		}

		var hdr protocol.PayloadHeader
		if err := hdr.Decode(b); err != nil {
			summary.Notification = protocol.INVALID_SYNTAX
			return c, summary
		}
		if int(hdr.PayloadLength) > len(b) {
			summary.Notification = protocol.INVALID_SYNTAX
			return c, summary
		}
		body := b[protocol.PAYLOAD_HEADER_LENGTH:hdr.PayloadLength]

		payload, err := protocol.DecodePayload(&hdr, next, next, body)
		if err != nil {
			summary.Notification = protocol.INVALID_SYNTAX
			return c, summary
		}

		if gp, ok := payload.(*protocol.GenericPayload); ok {
			if gp.Critical() {
				summary.Notification = protocol.UNSUPPORTED_CRITICAL_PAYLOAD
				summary.BadType = gp.UnknownType
				return c, summary
			}
			// non-critical unknown payload: skip, keep walking.
			next = gp.NextPayloadType()
			b = b[hdr.PayloadLength:]
			continue
		}

		summary.markSeen(next)
		c.append(&PayloadDigest{Header: hdr, Payload: payload})

		if next == protocol.PayloadTypeSK || next == protocol.PayloadTypeSKF {
			next = protocol.PayloadTypeNone
		} else {
			next = payload.NextPayloadType()
		}
		b = b[hdr.PayloadLength:]
	}
	summary.Parsed = true
	return c, summary
}

// MaxPayloadTypeBitLimit mirrors protocol.MaxPayloadTypeBit; kept as a
// local alias so decoder.go doesn't need to reach past the seen-set
// representation it actually uses (uint64, 64 bits).
const MaxPayloadTypeBitLimit = protocol.MaxPayloadTypeBit

// DecodeClear decodes the clear-text payload chain starting at
// m.Header.NextPayload, caching the result so a second call is a
// no-op (§4.1 contract note: "parsed at most once", §4.7 step 6).
func (m *MessageDigest) DecodeClear() PayloadSummary {
	if m.clearDecodedAt {
		return m.clearSummary
	}
	m.clearDecodedAt = true
	body := m.raw[protocol.IKE_HEADER_LEN:]
	m.clearChains, m.clearSummary = decodeChain(m.Header.NextPayload, body)
	return m.clearSummary
}

// DecodeEncrypted decodes the plaintext payload chain recovered from
// an SK/SKF payload (after decryption/reassembly). first is the
// next-payload type carried by the SK header (or, for a reassembled
// SKF, by fragment 1).
func (m *MessageDigest) DecodeEncrypted(first protocol.PayloadType, plaintext []byte) PayloadSummary {
	if m.encDecoded {
		return m.encSummary
	}
	m.encDecoded = true
	m.encChains, m.encSummary = decodeChain(first, plaintext)
	return m.encSummary
}
