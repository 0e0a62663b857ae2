package sa

import "github.com/msgboxio/ikedemux/protocol"

// ChildSa is a data-plane ESP/AH association created by an IKE SA
// (§3). It holds a parent handle by serial, not a pointer, so a rekey
// emancipation can retarget every child in one table update without
// chasing references (§9 design note, "Cyclic IKE<->Child references").
type ChildSa struct {
	Serial       uint64
	ParentSerial uint64

	CreatedAtMsgId uint32
	Role           Role
	State          State

	SpiI, SpiR []byte // ESP/AH SPIs, 4 bytes each
	Protocol   protocol.ProtocolId

	TsI, TsR []*protocol.Selector

	// Cpi is the IPComp CPI, set only when IPComp was negotiated.
	Cpi uint16

	EncrKeyI, EncrKeyR []byte
	AuthKeyI, AuthKeyR []byte
}

// NewChildSa builds a child associated with parent by serial.
func NewChildSa(serial, parentSerial uint64, role Role, msgId uint32) *ChildSa {
	state := CreateR
	if role == Initiator {
		state = RekeyChildI0
	}
	return &ChildSa{
		Serial:         serial,
		ParentSerial:   parentSerial,
		CreatedAtMsgId: msgId,
		Role:           role,
		State:          state,
	}
}
