package protocol

import (
	"math/big"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaPayloadRoundTrip(t *testing.T) {
	want := &SaPayload{
		PayloadHeader: &PayloadHeader{},
		Proposals: Proposals{
			{
				Number:     1,
				ProtocolId: IKE,
				Spi:        []byte{1, 2, 3, 4, 5, 6, 7, 8},
				SaTransforms: []*SaTransform{
					{Transform: Transform{Type: TRANSFORM_TYPE_ENCR, TransformId: uint16(ENCR_AES_CBC)}, KeyLength: 128},
					{Transform: Transform{Type: TRANSFORM_TYPE_DH, TransformId: uint16(MODP_2048)}},
				},
			},
		},
	}
	encoded := want.Encode()

	got := &SaPayload{PayloadHeader: &PayloadHeader{}}
	require.NoError(t, got.Decode(encoded))
	require.Len(t, got.Proposals, 1)
	assert.Equal(t, want.Proposals[0].Number, got.Proposals[0].Number)
	assert.Equal(t, want.Proposals[0].ProtocolId, got.Proposals[0].ProtocolId)
	assert.Equal(t, want.Proposals[0].Spi, got.Proposals[0].Spi)
	require.Len(t, got.Proposals[0].SaTransforms, 2)
	assert.EqualValues(t, 128, got.Proposals[0].SaTransforms[0].KeyLength)
	assert.Equal(t, uint16(ENCR_AES_CBC), got.Proposals[0].SaTransforms[0].TransformId)
}

func TestKePayloadRoundTrip(t *testing.T) {
	want := &KePayload{
		PayloadHeader: &PayloadHeader{},
		DhTransformId: MODP_2048,
		KeyData:       big.NewInt(0).SetBytes([]byte{1, 2, 3, 4, 5}),
	}
	got := &KePayload{PayloadHeader: &PayloadHeader{}}
	require.NoError(t, got.Decode(want.Encode()))
	assert.Equal(t, want.DhTransformId, got.DhTransformId)
	assert.Equal(t, 0, want.KeyData.Cmp(got.KeyData))
}

func TestIdPayloadRoundTrip(t *testing.T) {
	want := &IdPayload{
		PayloadHeader: &PayloadHeader{},
		IdPayloadType: PayloadTypeIDi,
		IdType:        ID_FQDN,
		Data:          []byte("host.example.com"),
	}
	got := &IdPayload{PayloadHeader: &PayloadHeader{}, IdPayloadType: PayloadTypeIDi}
	require.NoError(t, got.Decode(want.Encode()))
	assert.Equal(t, want.IdType, got.IdType)
	assert.Equal(t, want.Data, got.Data)
	assert.Equal(t, PayloadTypeIDi, got.Type())
}

func TestAuthPayloadRoundTrip(t *testing.T) {
	want := &AuthPayload{PayloadHeader: &PayloadHeader{}, Method: SHARED_KEY_MESSAGE_INTEGRITY_CODE, Data: []byte("sig-bytes")}
	got := &AuthPayload{PayloadHeader: &PayloadHeader{}}
	require.NoError(t, got.Decode(want.Encode()))
	assert.Equal(t, want.Method, got.Method)
	assert.Equal(t, want.Data, got.Data)
}

func TestNotifyPayloadRoundTrip(t *testing.T) {
	want := &NotifyPayload{
		PayloadHeader:       &PayloadHeader{},
		ProtocolId:          ESP,
		NotificationType:    REKEY_SA,
		Spi:                 []byte{1, 2, 3, 4},
		NotificationMessage: []byte("extra"),
	}
	got := &NotifyPayload{PayloadHeader: &PayloadHeader{}}
	require.NoError(t, got.Decode(want.Encode()))
	assert.Equal(t, want.ProtocolId, got.ProtocolId)
	assert.Equal(t, want.NotificationType, got.NotificationType)
	assert.Equal(t, want.Spi, got.Spi)
	assert.Equal(t, want.NotificationMessage, got.NotificationMessage)
}

func TestDeletePayloadRoundTrip(t *testing.T) {
	want := &DeletePayload{
		PayloadHeader: &PayloadHeader{},
		ProtocolId:    ESP,
		SpiSize:       4,
		Spis:          [][]byte{{1, 2, 3, 4}, {5, 6, 7, 8}},
	}
	got := &DeletePayload{PayloadHeader: &PayloadHeader{}}
	require.NoError(t, got.Decode(want.Encode()))
	assert.Equal(t, want.Spis, got.Spis)
}

func TestVendorIdPayloadRoundTrip(t *testing.T) {
	want := &VendorIdPayload{PayloadHeader: &PayloadHeader{}, Vid: []byte("strongswan")}
	got := &VendorIdPayload{PayloadHeader: &PayloadHeader{}}
	require.NoError(t, got.Decode(want.Encode()))
	assert.Equal(t, want.Vid, got.Vid)
}

func TestTrafficSelectorPayloadRoundTrip(t *testing.T) {
	want := &TrafficSelectorPayload{
		PayloadHeader:              &PayloadHeader{},
		TrafficSelectorPayloadType: PayloadTypeTSi,
		Selectors: []*Selector{{
			Type:         TS_IPV4_ADDR_RANGE,
			IpProtocolId: 0,
			StartPort:    0,
			Endport:      65535,
			StartAddress: net.IPv4(10, 0, 0, 0).To4(),
			EndAddress:   net.IPv4(10, 0, 0, 255).To4(),
		}},
	}
	got := &TrafficSelectorPayload{PayloadHeader: &PayloadHeader{}, TrafficSelectorPayloadType: PayloadTypeTSi}
	require.NoError(t, got.Decode(want.Encode()))
	require.Len(t, got.Selectors, 1)
	assert.Equal(t, want.Selectors[0].StartAddress, got.Selectors[0].StartAddress)
	assert.Equal(t, want.Selectors[0].EndAddress, got.Selectors[0].EndAddress)
	assert.Equal(t, PayloadTypeTSi, got.Type())
}

func TestConfigurationPayloadRoundTrip(t *testing.T) {
	want := &ConfigurationPayload{PayloadHeader: &PayloadHeader{}, CfgType: 1, Raw: []byte("attrs")}
	got := &ConfigurationPayload{PayloadHeader: &PayloadHeader{}}
	require.NoError(t, got.Decode(want.Encode()))
	assert.Equal(t, want.CfgType, got.CfgType)
	assert.Equal(t, want.Raw, got.Raw)
}

func TestSkfPayloadRoundTrip(t *testing.T) {
	want := &SkfPayload{PayloadHeader: &PayloadHeader{}, FragmentNumber: 2, TotalFragments: 4, Ciphertext: []byte("ct")}
	got := &SkfPayload{PayloadHeader: &PayloadHeader{}}
	require.NoError(t, got.Decode(want.Encode()))
	assert.Equal(t, want.FragmentNumber, got.FragmentNumber)
	assert.Equal(t, want.TotalFragments, got.TotalFragments)
	assert.Equal(t, want.Ciphertext, got.Ciphertext)
}

func TestDecodePayloadDisambiguatesIdSlot(t *testing.T) {
	hdr := &PayloadHeader{}
	p, err := DecodePayload(hdr, PayloadTypeIDr, PayloadTypeIDr, []byte{byte(ID_IPV4_ADDR), 0, 0, 0, 127, 0, 0, 1})
	require.NoError(t, err)
	assert.Equal(t, PayloadTypeIDr, p.Type())
}

func TestDecodePayloadUnknownTypeProducesGeneric(t *testing.T) {
	hdr := &PayloadHeader{}
	p, err := DecodePayload(hdr, PayloadType(49), PayloadType(49), []byte("raw"))
	require.NoError(t, err)
	gp, ok := p.(*GenericPayload)
	require.True(t, ok)
	assert.Equal(t, PayloadType(49), gp.UnknownType)
}
