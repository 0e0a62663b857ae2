package protocol

import "github.com/msgboxio/packets"

// DecodePayload constructs the typed Payload for a decoded header and
// its body slice (header and length already stripped/validated by the
// caller). idSlot distinguishes IDi from IDr and TSi from TSr, since
// both wire types share one PayloadType-independent body shape.
func DecodePayload(header *PayloadHeader, payloadType PayloadType, idSlot PayloadType, body []byte) (Payload, error) {
	var p Payload
	switch payloadType {
	case PayloadTypeSA:
		p = &SaPayload{PayloadHeader: header}
	case PayloadTypeKE:
		p = &KePayload{PayloadHeader: header}
	case PayloadTypeIDi, PayloadTypeIDr:
		p = &IdPayload{PayloadHeader: header, IdPayloadType: idSlot}
	case PayloadTypeCERT:
		p = &CertPayload{PayloadHeader: header}
	case PayloadTypeCERTREQ:
		p = &CertRequestPayload{PayloadHeader: header}
	case PayloadTypeAUTH:
		p = &AuthPayload{PayloadHeader: header}
	case PayloadTypeNonce:
		p = &NoncePayload{PayloadHeader: header}
	case PayloadTypeN:
		p = &NotifyPayload{PayloadHeader: header}
	case PayloadTypeD:
		p = &DeletePayload{PayloadHeader: header}
	case PayloadTypeV:
		p = &VendorIdPayload{PayloadHeader: header}
	case PayloadTypeTSi, PayloadTypeTSr:
		p = &TrafficSelectorPayload{PayloadHeader: header, TrafficSelectorPayloadType: idSlot}
	case PayloadTypeSK:
		p = &SkPayload{PayloadHeader: header}
	case PayloadTypeSKF:
		p = &SkfPayload{PayloadHeader: header}
	case PayloadTypeCP:
		p = &ConfigurationPayload{PayloadHeader: header}
	case PayloadTypeEAP:
		p = &EapPayload{PayloadHeader: header}
	default:
		p = &GenericPayload{PayloadHeader: header, UnknownType: payloadType}
	}
	if err := p.Decode(body); err != nil {
		return nil, err
	}
	return p, nil
}

// EncodePayloadChain writes out payloads back-to-back, each preceded
// by its payload header; nextPayload of the final entry is forced to
// PayloadTypeNone. isCritical reports the critical bit per payload.
func EncodePayloadChain(payloads []Payload, isCritical func(Payload) bool) []byte {
	var out []byte
	for i, p := range payloads {
		next := PayloadTypeNone
		if i+1 < len(payloads) {
			next = payloads[i+1].Type()
		}
		body := p.Encode()
		out = append(out, EncodePayloadHeader(next, isCritical(p), uint16(len(body)))...)
		out = append(out, body...)
	}
	return out
}

// PeekPayloadLength reads the payload-length field of a payload header
// without fully decoding it, so callers can slice the body out of a
// larger buffer before calling DecodePayload.
func PeekPayloadLength(b []byte) (uint16, error) {
	if len(b) < PAYLOAD_HEADER_LENGTH {
		return 0, ErrF(ERR_INVALID_SYNTAX, "payload header too short: %d", len(b))
	}
	l, _ := packets.ReadB16(b, 2)
	return l, nil
}
