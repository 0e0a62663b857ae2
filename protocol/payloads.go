package protocol

import (
	"math/big"
	"net"

	"github.com/msgboxio/packets"
)

// every concrete payload embeds *PayloadHeader and reports its own
// critical bit back through Critical(), matching Payload.

func (h *PayloadHeader) Critical() bool { return h.IsCritical }

// start sa payload

type AttributeType uint16

const ATTRIBUTE_TYPE_KEY_LENGTH AttributeType = 14

type TransformAttribute struct {
	Type  AttributeType
	Value uint16
}

const MIN_LEN_ATTRIBUTE = 4

func decodeAttribute(b []byte) (attr *TransformAttribute, used int, err error) {
	if len(b) < MIN_LEN_ATTRIBUTE {
		return nil, 0, ErrF(ERR_INVALID_SYNTAX, "attribute too short")
	}
	at, _ := packets.ReadB16(b, 0)
	if AttributeType(at&0x7fff) != ATTRIBUTE_TYPE_KEY_LENGTH {
		return nil, 0, ErrF(ERR_INVALID_SYNTAX, "unknown attribute type 0x%x", at)
	}
	alen, _ := packets.ReadB16(b, 2)
	return &TransformAttribute{Type: ATTRIBUTE_TYPE_KEY_LENGTH, Value: alen}, 4, nil
}

const MIN_LEN_TRANSFORM = 8

type SaTransform struct {
	Transform
	KeyLength uint16
	IsLast    bool
}

func decodeTransform(b []byte) (trans *SaTransform, used int, err error) {
	if len(b) < MIN_LEN_TRANSFORM {
		return nil, 0, ErrF(ERR_INVALID_SYNTAX, "transform too short")
	}
	trans = &SaTransform{}
	if last, _ := packets.ReadB8(b, 0); last == 0 {
		trans.IsLast = true
	}
	trLength, _ := packets.ReadB16(b, 2)
	if len(b) < int(trLength) || trLength < MIN_LEN_TRANSFORM {
		return nil, 0, ErrF(ERR_INVALID_SYNTAX, "bad transform length %d", trLength)
	}
	trType, _ := packets.ReadB8(b, 4)
	trans.Type = TransformType(trType)
	trans.TransformId, _ = packets.ReadB16(b, 6)
	b = b[MIN_LEN_TRANSFORM:trLength]
	for len(b) > 0 {
		attr, attrUsed, attrErr := decodeAttribute(b)
		if attrErr != nil {
			return nil, 0, attrErr
		}
		b = b[attrUsed:]
		if attr.Type == ATTRIBUTE_TYPE_KEY_LENGTH {
			trans.KeyLength = attr.Value
		}
	}
	return trans, int(trLength), nil
}

func encodeTransform(trans *SaTransform, isLast bool) (b []byte) {
	b = make([]byte, MIN_LEN_TRANSFORM)
	if !isLast {
		packets.WriteB8(b, 0, 3)
	}
	packets.WriteB8(b, 4, uint8(trans.Type))
	packets.WriteB16(b, 6, trans.TransformId)
	if trans.KeyLength != 0 {
		attr := make([]byte, 4)
		packets.WriteB16(attr, 0, 0x8000|uint16(ATTRIBUTE_TYPE_KEY_LENGTH))
		packets.WriteB16(attr, 2, trans.KeyLength)
		b = append(b, attr...)
	}
	packets.WriteB16(b, 2, uint16(len(b)))
	return
}

const MIN_LEN_PROPOSAL = 8

type SaProposal struct {
	IsLast       bool
	Number       uint8
	ProtocolId   ProtocolId
	Spi          []byte
	SaTransforms []*SaTransform
}

func decodeProposal(b []byte) (prop *SaProposal, used int, err error) {
	if len(b) < MIN_LEN_PROPOSAL {
		return nil, 0, ErrF(ERR_INVALID_SYNTAX, "proposal too short")
	}
	prop = &SaProposal{}
	if last, _ := packets.ReadB8(b, 0); last == 0 {
		prop.IsLast = true
	}
	propLength, _ := packets.ReadB16(b, 2)
	if len(b) < int(propLength) || propLength < MIN_LEN_PROPOSAL {
		return nil, 0, ErrF(ERR_INVALID_SYNTAX, "bad proposal length %d", propLength)
	}
	prop.Number, _ = packets.ReadB8(b, 4)
	pId, _ := packets.ReadB8(b, 5)
	prop.ProtocolId = ProtocolId(pId)
	spiSize, _ := packets.ReadB8(b, 6)
	numTransforms, _ := packets.ReadB8(b, 7)
	if len(b) < MIN_LEN_PROPOSAL+int(spiSize) {
		return nil, 0, ErrF(ERR_INVALID_SYNTAX, "proposal spi truncated")
	}
	spiEnd := MIN_LEN_PROPOSAL + int(spiSize)
	prop.Spi = append([]byte{}, b[8:spiEnd]...)
	b = b[spiEnd:propLength]
	for len(b) > 0 {
		trans, usedT, errT := decodeTransform(b)
		if errT != nil {
			return nil, 0, errT
		}
		prop.SaTransforms = append(prop.SaTransforms, trans)
		b = b[usedT:]
		if trans.IsLast {
			break
		}
	}
	if len(prop.SaTransforms) != int(numTransforms) {
		return nil, 0, ErrF(ERR_INVALID_SYNTAX, "transform count mismatch")
	}
	return prop, int(propLength), nil
}

func encodeProposal(prop *SaProposal, isLast bool) (b []byte) {
	b = make([]byte, MIN_LEN_PROPOSAL)
	if !isLast {
		packets.WriteB8(b, 0, 2)
	}
	packets.WriteB8(b, 4, prop.Number)
	packets.WriteB8(b, 5, uint8(prop.ProtocolId))
	packets.WriteB8(b, 6, uint8(len(prop.Spi)))
	packets.WriteB8(b, 7, uint8(len(prop.SaTransforms)))
	b = append(b, prop.Spi...)
	for idx, tr := range prop.SaTransforms {
		b = append(b, encodeTransform(tr, idx == len(prop.SaTransforms)-1)...)
	}
	packets.WriteB16(b, 2, uint16(len(b)))
	return
}

type Proposals []*SaProposal

type SaPayload struct {
	*PayloadHeader
	Proposals Proposals
}

func (s *SaPayload) Type() PayloadType { return PayloadTypeSA }
func (s *SaPayload) Encode() (b []byte) {
	for idx, prop := range s.Proposals {
		b = append(b, encodeProposal(prop, idx == len(s.Proposals)-1)...)
	}
	return
}
func (s *SaPayload) Decode(b []byte) (err error) {
	for len(b) > 0 {
		prop, used, errP := decodeProposal(b)
		if errP != nil {
			return errP
		}
		s.Proposals = append(s.Proposals, prop)
		b = b[used:]
		if prop.IsLast {
			break
		}
	}
	return
}

// end sa payload

type KePayload struct {
	*PayloadHeader
	DhTransformId DhTransformId
	KeyData       *big.Int
}

func (s *KePayload) Type() PayloadType { return PayloadTypeKE }
func (s *KePayload) Encode() (b []byte) {
	b = make([]byte, 4)
	packets.WriteB16(b, 0, uint16(s.DhTransformId))
	return append(b, s.KeyData.Bytes()...)
}
func (s *KePayload) Decode(b []byte) (err error) {
	if len(b) < 4 {
		return ErrF(ERR_INVALID_KE_PAYLOAD, "ke payload too short")
	}
	gn, _ := packets.ReadB16(b, 0)
	s.DhTransformId = DhTransformId(gn)
	s.KeyData = new(big.Int).SetBytes(b[4:])
	return
}

type IdType uint8

const (
	ID_IPV4_ADDR   IdType = 1
	ID_FQDN        IdType = 2
	ID_RFC822_ADDR IdType = 3
	ID_IPV6_ADDR   IdType = 5
	ID_DER_ASN1_DN IdType = 9
	ID_DER_ASN1_GN IdType = 10
	ID_KEY_ID      IdType = 11
)

type IdPayload struct {
	*PayloadHeader
	IdPayloadType PayloadType // IDi or IDr
	IdType        IdType
	Data          []byte
}

func (s *IdPayload) Type() PayloadType { return s.IdPayloadType }
func (s *IdPayload) Encode() (b []byte) {
	b = []byte{uint8(s.IdType), 0, 0, 0}
	return append(b, s.Data...)
}
func (s *IdPayload) Decode(b []byte) (err error) {
	if len(b) < 4 {
		return ErrF(ERR_INVALID_SYNTAX, "id payload too short")
	}
	idt, _ := packets.ReadB8(b, 0)
	s.IdType = IdType(idt)
	s.Data = append([]byte{}, b[4:]...)
	return
}

type CertEncoding uint8

type CertPayload struct {
	*PayloadHeader
	Encoding CertEncoding
	Data     []byte
}

func (s *CertPayload) Type() PayloadType { return PayloadTypeCERT }
func (s *CertPayload) Encode() (b []byte) {
	return append([]byte{uint8(s.Encoding)}, s.Data...)
}
func (s *CertPayload) Decode(b []byte) (err error) {
	if len(b) < 1 {
		return ErrF(ERR_INVALID_SYNTAX, "cert payload too short")
	}
	enc, _ := packets.ReadB8(b, 0)
	s.Encoding = CertEncoding(enc)
	s.Data = append([]byte{}, b[1:]...)
	return
}

type CertRequestPayload struct {
	*PayloadHeader
	Encoding CertEncoding
	CaData   []byte
}

func (s *CertRequestPayload) Type() PayloadType { return PayloadTypeCERTREQ }
func (s *CertRequestPayload) Encode() (b []byte) {
	return append([]byte{uint8(s.Encoding)}, s.CaData...)
}
func (s *CertRequestPayload) Decode(b []byte) (err error) {
	if len(b) < 1 {
		return ErrF(ERR_INVALID_SYNTAX, "certreq payload too short")
	}
	enc, _ := packets.ReadB8(b, 0)
	s.Encoding = CertEncoding(enc)
	s.CaData = append([]byte{}, b[1:]...)
	return
}

type AuthMethod uint8

const (
	RSA_DIGITAL_SIGNATURE             AuthMethod = 1
	SHARED_KEY_MESSAGE_INTEGRITY_CODE AuthMethod = 2
	DSS_DIGITAL_SIGNATURE             AuthMethod = 3
	AUTH_DIGITAL_SIGNATURE            AuthMethod = 14 // RFC 7427
)

type AuthPayload struct {
	*PayloadHeader
	Method AuthMethod
	Data   []byte
}

func (s *AuthPayload) Type() PayloadType { return PayloadTypeAUTH }
func (s *AuthPayload) Encode() (b []byte) {
	b = []byte{uint8(s.Method), 0, 0, 0}
	return append(b, s.Data...)
}
func (s *AuthPayload) Decode(b []byte) (err error) {
	if len(b) < 4 {
		return ErrF(ERR_INVALID_SYNTAX, "auth payload too short")
	}
	m, _ := packets.ReadB8(b, 0)
	s.Method = AuthMethod(m)
	s.Data = append([]byte{}, b[4:]...)
	return
}

type NoncePayload struct {
	*PayloadHeader
	Nonce *big.Int
}

func (s *NoncePayload) Type() PayloadType { return PayloadTypeNonce }
func (s *NoncePayload) Encode() (b []byte) { return s.Nonce.Bytes() }
func (s *NoncePayload) Decode(b []byte) (err error) {
	// RFC 7296 §3.9: between 16 and 256 octets
	if len(b) < 16 || len(b) > 256 {
		return ErrF(ERR_INVALID_SYNTAX, "bad nonce length %d", len(b))
	}
	s.Nonce = new(big.Int).SetBytes(b)
	return
}

type NotificationType uint16

const (
	// error types
	UNSUPPORTED_CRITICAL_PAYLOAD NotificationType = 1
	INVALID_IKE_SPI              NotificationType = 4
	INVALID_MAJOR_VERSION        NotificationType = 5
	INVALID_SYNTAX               NotificationType = 7
	INVALID_MESSAGE_ID           NotificationType = 9
	INVALID_SPI                  NotificationType = 11
	NO_PROPOSAL_CHOSEN           NotificationType = 14
	INVALID_KE_PAYLOAD           NotificationType = 17
	AUTHENTICATION_FAILED        NotificationType = 24
	SINGLE_PAIR_REQUIRED         NotificationType = 34
	NO_ADDITIONAL_SAS            NotificationType = 35
	INTERNAL_ADDRESS_FAILURE     NotificationType = 36
	FAILED_CP_REQUIRED           NotificationType = 37
	TS_UNACCEPTABLE              NotificationType = 38
	INVALID_SELECTORS            NotificationType = 39
	TEMPORARY_FAILURE            NotificationType = 43
	CHILD_SA_NOT_FOUND           NotificationType = 44
	// status types
	INITIAL_CONTACT               NotificationType = 16384
	SET_WINDOW_SIZE               NotificationType = 16385
	ADDITIONAL_TS_POSSIBLE        NotificationType = 16386
	IPCOMP_SUPPORTED              NotificationType = 16387
	NAT_DETECTION_SOURCE_IP       NotificationType = 16388
	NAT_DETECTION_DESTINATION_IP  NotificationType = 16389
	COOKIE                        NotificationType = 16390
	USE_TRANSPORT_MODE            NotificationType = 16391
	HTTP_CERT_LOOKUP_SUPPORTED    NotificationType = 16392
	REKEY_SA                      NotificationType = 16393
	ESP_TFC_PADDING_NOT_SUPPORTED NotificationType = 16394
	NON_FIRST_FRAGMENTS_ALSO      NotificationType = 16395
	IKEV2_FRAGMENTATION_SUPPORTED NotificationType = 16430 // RFC 7383
	SIGNATURE_HASH_ALGORITHMS     NotificationType = 16431 // RFC 7427
	// NothingWrong is used as the zero-value sentinel for "no expected
	// notification" in ExpectedPayloads.
	NothingWrong NotificationType = 0
)

type NotifyPayload struct {
	*PayloadHeader
	ProtocolId       ProtocolId
	NotificationType NotificationType
	Spi              []byte
	NotificationMessage []byte
}

func (s *NotifyPayload) Type() PayloadType { return PayloadTypeN }
func (s *NotifyPayload) Encode() (b []byte) {
	b = []byte{uint8(s.ProtocolId), uint8(len(s.Spi)), 0, 0}
	packets.WriteB16(b, 2, uint16(s.NotificationType))
	b = append(b, s.Spi...)
	b = append(b, s.NotificationMessage...)
	return
}
func (s *NotifyPayload) Decode(b []byte) (err error) {
	if len(b) < 4 {
		return ErrF(ERR_INVALID_SYNTAX, "notify payload too short")
	}
	pId, _ := packets.ReadB8(b, 0)
	s.ProtocolId = ProtocolId(pId)
	spiLen, _ := packets.ReadB8(b, 1)
	if len(b) < 4+int(spiLen) {
		return ErrF(ERR_INVALID_SYNTAX, "notify spi truncated")
	}
	nType, _ := packets.ReadB16(b, 2)
	s.NotificationType = NotificationType(nType)
	s.Spi = append([]byte{}, b[4:4+spiLen]...)
	s.NotificationMessage = append([]byte{}, b[4+spiLen:]...)
	return
}

type DeletePayload struct {
	*PayloadHeader
	ProtocolId ProtocolId
	SpiSize    uint8
	Spis       [][]byte
}

func (s *DeletePayload) Type() PayloadType { return PayloadTypeD }
func (s *DeletePayload) Encode() (b []byte) {
	b = []byte{uint8(s.ProtocolId), s.SpiSize, 0, 0}
	packets.WriteB16(b, 2, uint16(len(s.Spis)))
	for _, spi := range s.Spis {
		b = append(b, spi...)
	}
	return
}
func (s *DeletePayload) Decode(b []byte) (err error) {
	if len(b) < 4 {
		return ErrF(ERR_INVALID_SYNTAX, "delete payload too short")
	}
	pId, _ := packets.ReadB8(b, 0)
	s.ProtocolId = ProtocolId(pId)
	s.SpiSize, _ = packets.ReadB8(b, 1)
	numSpi, _ := packets.ReadB16(b, 2)
	b = b[4:]
	for i := 0; i < int(numSpi); i++ {
		if len(b) < int(s.SpiSize) {
			return ErrF(ERR_INVALID_SYNTAX, "delete spi truncated")
		}
		s.Spis = append(s.Spis, append([]byte{}, b[:s.SpiSize]...))
		b = b[s.SpiSize:]
	}
	return
}

type VendorIdPayload struct {
	*PayloadHeader
	Vid []byte
}

func (s *VendorIdPayload) Type() PayloadType  { return PayloadTypeV }
func (s *VendorIdPayload) Encode() (b []byte) { return append([]byte{}, s.Vid...) }
func (s *VendorIdPayload) Decode(b []byte) (err error) {
	s.Vid = append([]byte{}, b...)
	return
}

type SelectorType uint8

const (
	TS_IPV4_ADDR_RANGE SelectorType = 7
	TS_IPV6_ADDR_RANGE SelectorType = 8
)

const MIN_LEN_SELECTOR = 8

type Selector struct {
	Type                     SelectorType
	IpProtocolId             uint8
	StartPort, Endport       uint16
	StartAddress, EndAddress net.IP
}

func decodeSelector(b []byte) (sel *Selector, used int, err error) {
	if len(b) < MIN_LEN_SELECTOR {
		return nil, 0, ErrF(ERR_INVALID_SYNTAX, "selector too short")
	}
	stype, _ := packets.ReadB8(b, 0)
	id, _ := packets.ReadB8(b, 1)
	slen, _ := packets.ReadB16(b, 2)
	if len(b) < int(slen) {
		return nil, 0, ErrF(ERR_INVALID_SYNTAX, "selector length mismatch")
	}
	sport, _ := packets.ReadB16(b, 4)
	eport, _ := packets.ReadB16(b, 6)
	iplen := net.IPv4len
	if SelectorType(stype) == TS_IPV6_ADDR_RANGE {
		iplen = net.IPv6len
	}
	if len(b) < 8+2*iplen {
		return nil, 0, ErrF(ERR_INVALID_SYNTAX, "selector address truncated")
	}
	sel = &Selector{
		Type:         SelectorType(stype),
		IpProtocolId: id,
		StartPort:    sport,
		Endport:      eport,
		StartAddress: append(net.IP{}, b[8:8+iplen]...),
		EndAddress:   append(net.IP{}, b[8+iplen:8+2*iplen]...),
	}
	return sel, 8 + 2*iplen, nil
}

func encodeSelector(sel *Selector) (b []byte) {
	b = make([]byte, MIN_LEN_SELECTOR)
	packets.WriteB8(b, 0, uint8(sel.Type))
	packets.WriteB8(b, 1, sel.IpProtocolId)
	packets.WriteB16(b, 4, sel.StartPort)
	packets.WriteB16(b, 6, sel.Endport)
	b = append(b, sel.StartAddress...)
	b = append(b, sel.EndAddress...)
	packets.WriteB16(b, 2, uint16(len(b)))
	return
}

const MIN_LEN_TRAFFIC_SELECTOR = 4

type TrafficSelectorPayload struct {
	*PayloadHeader
	TrafficSelectorPayloadType PayloadType // TSi or TSr
	Selectors                  []*Selector
}

func (s *TrafficSelectorPayload) Type() PayloadType { return s.TrafficSelectorPayloadType }
func (s *TrafficSelectorPayload) Encode() (b []byte) {
	b = []byte{uint8(len(s.Selectors)), 0, 0, 0}
	for _, sel := range s.Selectors {
		b = append(b, encodeSelector(sel)...)
	}
	return
}
func (s *TrafficSelectorPayload) Decode(b []byte) (err error) {
	if len(b) < MIN_LEN_TRAFFIC_SELECTOR {
		return ErrF(ERR_INVALID_SYNTAX, "ts payload too short")
	}
	numSel, _ := packets.ReadB8(b, 0)
	b = b[4:]
	for len(b) > 0 {
		sel, used, serr := decodeSelector(b)
		if serr != nil {
			return serr
		}
		s.Selectors = append(s.Selectors, sel)
		b = b[used:]
	}
	if len(s.Selectors) != int(numSel) {
		return ErrF(ERR_INVALID_SYNTAX, "selector count mismatch")
	}
	return
}

type ConfigurationPayload struct {
	*PayloadHeader
	CfgType uint8
	Raw     []byte
}

func (s *ConfigurationPayload) Type() PayloadType { return PayloadTypeCP }
func (s *ConfigurationPayload) Encode() (b []byte) {
	return append([]byte{s.CfgType, 0, 0, 0}, s.Raw...)
}
func (s *ConfigurationPayload) Decode(b []byte) (err error) {
	if len(b) < 4 {
		return ErrF(ERR_INVALID_SYNTAX, "cp payload too short")
	}
	s.CfgType, _ = packets.ReadB8(b, 0)
	s.Raw = append([]byte{}, b[4:]...)
	return
}

type EapPayload struct {
	*PayloadHeader
	Raw []byte
}

func (s *EapPayload) Type() PayloadType  { return PayloadTypeEAP }
func (s *EapPayload) Encode() (b []byte) { return append([]byte{}, s.Raw...) }
func (s *EapPayload) Decode(b []byte) (err error) {
	s.Raw = append([]byte{}, b...)
	return
}

// GenericPayload decodes the header of a payload type the decoder does
// not otherwise understand, to recover the critical bit and the next
// payload link (§4.1 step 2).
type GenericPayload struct {
	*PayloadHeader
	UnknownType PayloadType
	Raw         []byte
}

func (s *GenericPayload) Type() PayloadType  { return s.UnknownType }
func (s *GenericPayload) Encode() (b []byte) { return append([]byte{}, s.Raw...) }
func (s *GenericPayload) Decode(b []byte) (err error) {
	s.Raw = append([]byte{}, b...)
	return
}

/*
	0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
   +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
   | Next Payload  |C|  RESERVED   |         Payload Length        |
   +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
   |        Fragment Number       |        Total Fragments        |
   +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
   |                     Initialization Vector                     |
   ~                    Encrypted IKE Payloads                     ~
   |                               |         Pad Length            |
   ~                    Integrity Checksum Data                    ~
   +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
*/
type SkfPayload struct {
	*PayloadHeader
	FragmentNumber uint16
	TotalFragments uint16
	Ciphertext     []byte
}

func (s *SkfPayload) Type() PayloadType { return PayloadTypeSKF }
func (s *SkfPayload) Encode() (b []byte) {
	b = make([]byte, 4)
	packets.WriteB16(b, 0, s.FragmentNumber)
	packets.WriteB16(b, 2, s.TotalFragments)
	return append(b, s.Ciphertext...)
}
func (s *SkfPayload) Decode(b []byte) (err error) {
	if len(b) < 4 {
		return ErrF(ERR_INVALID_SYNTAX, "skf payload too short")
	}
	s.FragmentNumber, _ = packets.ReadB16(b, 0)
	s.TotalFragments, _ = packets.ReadB16(b, 2)
	s.Ciphertext = append([]byte{}, b[4:]...)
	return
}

// SkPayload is the whole (non-fragmented) encrypted payload.
type SkPayload struct {
	*PayloadHeader
	Ciphertext []byte
}

func (s *SkPayload) Type() PayloadType { return PayloadTypeSK }
func (s *SkPayload) Encode() (b []byte) { return append([]byte{}, s.Ciphertext...) }
func (s *SkPayload) Decode(b []byte) (err error) {
	s.Ciphertext = append([]byte{}, b...)
	return
}
