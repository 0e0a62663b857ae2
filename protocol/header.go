// Package protocol implements the RFC 7296 (IKEv2) and RFC 7383
// (fragmentation) wire format: header, payload codecs, transform and
// notification enumerations.
package protocol

import (
	"encoding/hex"

	"github.com/msgboxio/log"
	"github.com/msgboxio/packets"
)

const (
	IKE_PORT      = 500
	IKE_NATT_PORT = 4500
)

const (
	IKEV2_MAJOR_VERSION = 2
	IKEV2_MINOR_VERSION = 0
)

const (
	LOG_CODEC = 3
)

// Spi is an 8 byte Security Parameter Index.
type Spi [8]byte

func (s Spi) IsZero() bool {
	return s == Spi{}
}

type IkeExchangeType uint16

const (
	// 0-33	Reserved	[RFC7296]
	IKE_SA_INIT        IkeExchangeType = 34
	IKE_AUTH           IkeExchangeType = 35
	CREATE_CHILD_SA    IkeExchangeType = 36
	INFORMATIONAL      IkeExchangeType = 37
	IKE_SESSION_RESUME IkeExchangeType = 38
	// 42-239	Unassigned
)

type PayloadType uint8

const (
	PayloadTypeNone PayloadType = 0
	// 1-32	Reserved
	PayloadTypeSA      PayloadType = 33
	PayloadTypeKE      PayloadType = 34
	PayloadTypeIDi     PayloadType = 35
	PayloadTypeIDr     PayloadType = 36
	PayloadTypeCERT    PayloadType = 37
	PayloadTypeCERTREQ PayloadType = 38
	PayloadTypeAUTH    PayloadType = 39
	PayloadTypeNonce   PayloadType = 40
	PayloadTypeN       PayloadType = 41
	PayloadTypeD       PayloadType = 42
	PayloadTypeV       PayloadType = 43
	PayloadTypeTSi     PayloadType = 44
	PayloadTypeTSr     PayloadType = 45
	PayloadTypeSK      PayloadType = 46
	PayloadTypeCP      PayloadType = 47
	PayloadTypeEAP     PayloadType = 48
	PayloadTypeSKF     PayloadType = 53 // RFC 7383
	// 54-127	Unassigned
	// 128-255	Private use
)

// MaxPayloadTypeBit is the highest payload type number the seen/repeated
// bitsets can represent; the decoder rejects anything at or above it
// (§4.1 step 3 of the design).
const MaxPayloadTypeBit = 64

// RepeatablePayloads lists payload types that are allowed to occur more
// than once in a single message (§3 invariant 5).
var RepeatablePayloads = map[PayloadType]bool{
	PayloadTypeN:       true,
	PayloadTypeD:       true,
	PayloadTypeCP:      true,
	PayloadTypeV:       true,
	PayloadTypeCERT:    true,
	PayloadTypeCERTREQ: true,
}

// EverywherePayloads may legally appear alongside any expected-payload
// signature without being flagged "unexpected" (§4.2).
var EverywherePayloads = map[PayloadType]bool{
	PayloadTypeN: true,
	PayloadTypeV: true,
}

type IkeFlags uint8

const (
	RESPONSE  IkeFlags = 1 << 5
	VERSION   IkeFlags = 1 << 4
	INITIATOR IkeFlags = 1 << 3
)

func (f IkeFlags) IsResponse() bool  { return f&RESPONSE != 0 }
func (f IkeFlags) IsInitiator() bool { return f&INITIATOR != 0 }

type ProtocolId uint8

const (
	IKE ProtocolId = 1
	AH  ProtocolId = 2
	ESP ProtocolId = 3
)

/*
	0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
   +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
   |                       IKE SA Initiator's SPI                  |
   |                                                               |
   +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
   |                       IKE SA Responder's SPI                  |
   |                                                               |
   +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
   |  Next Payload | MjVer | MnVer | Exchange Type |     Flags     |
   +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
   |                          Message ID                           |
   +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
   |                            Length                             |
   +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
*/
const IKE_HEADER_LEN = 28

type IkeHeader struct {
	SpiI, SpiR                 Spi
	NextPayload                PayloadType
	MajorVersion, MinorVersion uint8
	ExchangeType               IkeExchangeType
	Flags                      IkeFlags
	MsgId                      uint32
	MsgLength                  uint32
}

func DecodeIkeHeader(b []byte) (h *IkeHeader, err error) {
	h = &IkeHeader{}
	if len(b) < IKE_HEADER_LEN {
		log.V(LOG_CODEC).Infof("packet too short: %d", len(b))
		return nil, ErrF(ERR_INVALID_SYNTAX, "header too short: %d", len(b))
	}
	copy(h.SpiI[:], b)
	copy(h.SpiR[:], b[8:])
	pt, _ := packets.ReadB8(b, 16)
	h.NextPayload = PayloadType(pt)
	ver, _ := packets.ReadB8(b, 17)
	h.MajorVersion = ver >> 4
	h.MinorVersion = ver & 0x0f
	et, _ := packets.ReadB8(b, 18)
	h.ExchangeType = IkeExchangeType(et)
	flags, _ := packets.ReadB8(b, 19)
	h.Flags = IkeFlags(flags)
	h.MsgId, _ = packets.ReadB32(b, 20)
	h.MsgLength, _ = packets.ReadB32(b, 24)
	if h.MsgLength < IKE_HEADER_LEN {
		return nil, ErrF(ERR_INVALID_SYNTAX, "bad message length %d", h.MsgLength)
	}
	log.V(LOG_CODEC).Infof("ike header: %+v from\n%s", *h, hex.Dump(b))
	return
}

func (h *IkeHeader) Encode() (b []byte) {
	b = make([]byte, IKE_HEADER_LEN)
	copy(b, h.SpiI[:])
	copy(b[8:], h.SpiR[:])
	packets.WriteB8(b, 16, uint8(h.NextPayload))
	packets.WriteB8(b, 17, h.MajorVersion<<4|h.MinorVersion)
	packets.WriteB8(b, 18, uint8(h.ExchangeType))
	packets.WriteB8(b, 19, uint8(h.Flags))
	packets.WriteB32(b, 20, h.MsgId)
	packets.WriteB32(b, 24, h.MsgLength)
	return
}

/*
	0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
   +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
   | Next Payload  |C|  RESERVED   |         Payload Length        |
   +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
*/
const PAYLOAD_HEADER_LENGTH = 4

type PayloadHeader struct {
	NextPayload   PayloadType
	IsCritical    bool
	PayloadLength uint16
}

func (h *PayloadHeader) NextPayloadType() PayloadType { return h.NextPayload }

func EncodePayloadHeader(pt PayloadType, critical bool, plen uint16) (b []byte) {
	b = make([]byte, PAYLOAD_HEADER_LENGTH)
	packets.WriteB8(b, 0, uint8(pt))
	c := uint8(0)
	if critical {
		c = 0x80
	}
	packets.WriteB8(b, 1, c)
	packets.WriteB16(b, 2, plen+PAYLOAD_HEADER_LENGTH)
	return
}

func (h *PayloadHeader) Decode(b []byte) (err error) {
	if len(b) < PAYLOAD_HEADER_LENGTH {
		return ErrF(ERR_INVALID_SYNTAX, "payload header too short: %d", len(b))
	}
	pt, _ := packets.ReadB8(b, 0)
	h.NextPayload = PayloadType(pt)
	c, _ := packets.ReadB8(b, 1)
	h.IsCritical = c&0x80 != 0
	h.PayloadLength, _ = packets.ReadB16(b, 2)
	if h.PayloadLength < PAYLOAD_HEADER_LENGTH {
		return ErrF(ERR_INVALID_SYNTAX, "payload length too small: %d", h.PayloadLength)
	}
	return
}

// Payload is implemented by every typed payload body (sans header).
type Payload interface {
	Type() PayloadType
	Decode([]byte) error
	Encode() []byte
	NextPayloadType() PayloadType
	Critical() bool
}
