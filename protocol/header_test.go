package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIkeHeaderEncodeDecodeRoundTrip(t *testing.T) {
	h := &IkeHeader{
		SpiI:         Spi{1, 2, 3, 4, 5, 6, 7, 8},
		SpiR:         Spi{8, 7, 6, 5, 4, 3, 2, 1},
		NextPayload:  PayloadTypeSA,
		MajorVersion: IKEV2_MAJOR_VERSION,
		MinorVersion: IKEV2_MINOR_VERSION,
		ExchangeType: IKE_SA_INIT,
		Flags:        INITIATOR,
		MsgId:        42,
		MsgLength:    IKE_HEADER_LEN,
	}
	b := h.Encode()
	require.Len(t, b, IKE_HEADER_LEN)

	got, err := DecodeIkeHeader(b)
	require.NoError(t, err)
	assert.Equal(t, h.SpiI, got.SpiI)
	assert.Equal(t, h.SpiR, got.SpiR)
	assert.Equal(t, h.NextPayload, got.NextPayload)
	assert.Equal(t, h.ExchangeType, got.ExchangeType)
	assert.True(t, got.Flags.IsInitiator())
	assert.False(t, got.Flags.IsResponse())
	assert.EqualValues(t, 42, got.MsgId)
}

func TestDecodeIkeHeaderTooShort(t *testing.T) {
	_, err := DecodeIkeHeader(make([]byte, IKE_HEADER_LEN-1))
	assert.Error(t, err)
}

func TestDecodeIkeHeaderBadLength(t *testing.T) {
	h := &IkeHeader{MsgLength: IKE_HEADER_LEN - 1}
	b := h.Encode()
	_, err := DecodeIkeHeader(b)
	assert.Error(t, err)
}

func TestSpiIsZero(t *testing.T) {
	var z Spi
	assert.True(t, z.IsZero())
	z[0] = 1
	assert.False(t, z.IsZero())
}

func TestPayloadHeaderEncodeDecode(t *testing.T) {
	b := EncodePayloadHeader(PayloadTypeKE, true, 100)
	var h PayloadHeader
	require.NoError(t, h.Decode(b))
	assert.Equal(t, PayloadTypeKE, h.NextPayload)
	assert.True(t, h.IsCritical)
	assert.EqualValues(t, 104, h.PayloadLength)
}

func TestPayloadHeaderDecodeTooShort(t *testing.T) {
	var h PayloadHeader
	assert.Error(t, h.Decode([]byte{1, 2}))
}

func TestFlagsHelpers(t *testing.T) {
	f := RESPONSE | INITIATOR
	assert.True(t, f.IsResponse())
	assert.True(t, f.IsInitiator())
	assert.False(t, IkeFlags(0).IsResponse())
}
