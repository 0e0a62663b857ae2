package demux

import (
	"math/big"
	"testing"

	"github.com/msgboxio/ikedemux/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildClearDatagram(h *protocol.IkeHeader, payloads []protocol.Payload) []byte {
	body := protocol.EncodePayloadChain(payloads, func(protocol.Payload) bool { return false })
	hc := *h
	hc.NextPayload = payloads[0].Type()
	hc.MsgLength = uint32(protocol.IKE_HEADER_LEN + len(body))
	return append(hc.Encode(), body...)
}

func newTestNonce() *protocol.NoncePayload {
	b := make([]byte, 16)
	for i := range b {
		b[i] = byte(i + 1) // avoid an all-zero value, whose big.Int encoding would drop leading bytes
	}
	return &protocol.NoncePayload{PayloadHeader: &protocol.PayloadHeader{}, Nonce: new(big.Int).SetBytes(b)}
}

func TestDecodeClearSimpleChain(t *testing.T) {
	nonce := newTestNonce()
	notify := &protocol.NotifyPayload{PayloadHeader: &protocol.PayloadHeader{}, NotificationType: protocol.COOKIE}

	h := &protocol.IkeHeader{ExchangeType: protocol.IKE_SA_INIT}
	raw := buildClearDatagram(h, []protocol.Payload{nonce, notify})

	hdr, err := protocol.DecodeIkeHeader(raw)
	require.NoError(t, err)
	md := NewMessageDigest(hdr, raw, nil, nil)

	summary := md.DecodeClear()
	require.True(t, summary.Parsed)
	assert.True(t, summary.has(protocol.PayloadTypeNonce))
	assert.True(t, summary.has(protocol.PayloadTypeN))

	n, ok := md.ClearPayload(protocol.PayloadTypeN).(*protocol.NotifyPayload)
	require.True(t, ok)
	assert.Equal(t, protocol.COOKIE, n.NotificationType)
}

func TestDecodeClearIsCachedAfterFirstCall(t *testing.T) {
	nonce := newTestNonce()
	h := &protocol.IkeHeader{ExchangeType: protocol.IKE_SA_INIT}
	raw := buildClearDatagram(h, []protocol.Payload{nonce})

	hdr, err := protocol.DecodeIkeHeader(raw)
	require.NoError(t, err)
	md := NewMessageDigest(hdr, raw, nil, nil)

	first := md.DecodeClear()
	second := md.DecodeClear()
	assert.Equal(t, first.Seen, second.Seen)
}

func TestDecodeClearUnsupportedCriticalPayload(t *testing.T) {
	const unknownType = protocol.PayloadType(49) // unused slot between EAP(48) and SKF(53), still under MaxPayloadTypeBit
	h := &protocol.IkeHeader{ExchangeType: protocol.IKE_SA_INIT, NextPayload: unknownType}
	body := protocol.EncodePayloadHeader(protocol.PayloadTypeNone, true, 0)
	hc := *h
	hc.MsgLength = uint32(protocol.IKE_HEADER_LEN + len(body))
	raw := append(hc.Encode(), body...)

	hdr, err := protocol.DecodeIkeHeader(raw)
	require.NoError(t, err)
	md := NewMessageDigest(hdr, raw, nil, nil)

	summary := md.DecodeClear()
	assert.False(t, summary.Parsed)
	assert.Equal(t, protocol.UNSUPPORTED_CRITICAL_PAYLOAD, summary.Notification)
	assert.Equal(t, unknownType, summary.BadType)
}

func TestDecodeClearTracksRepeatedPayloadType(t *testing.T) {
	first := &protocol.NotifyPayload{PayloadHeader: &protocol.PayloadHeader{}, NotificationType: protocol.COOKIE}
	second := &protocol.NotifyPayload{PayloadHeader: &protocol.PayloadHeader{}, NotificationType: protocol.REKEY_SA}

	h := &protocol.IkeHeader{ExchangeType: protocol.IKE_SA_INIT}
	raw := buildClearDatagram(h, []protocol.Payload{first, second})

	hdr, err := protocol.DecodeIkeHeader(raw)
	require.NoError(t, err)
	md := NewMessageDigest(hdr, raw, nil, nil)

	summary := md.DecodeClear()
	require.True(t, summary.Parsed)
	assert.True(t, summary.isRepeated(protocol.PayloadTypeN))

	n, ok := md.ClearPayload(protocol.PayloadTypeN).(*protocol.NotifyPayload)
	require.True(t, ok)
	assert.Equal(t, protocol.COOKIE, n.NotificationType) // Get returns the first occurrence
}

func TestDecodeEncryptedParsesPlaintextChainAndCaches(t *testing.T) {
	notify := &protocol.NotifyPayload{PayloadHeader: &protocol.PayloadHeader{}, NotificationType: protocol.COOKIE}
	plaintext := protocol.EncodePayloadChain([]protocol.Payload{notify}, func(protocol.Payload) bool { return false })

	md := NewMessageDigest(&protocol.IkeHeader{}, nil, nil, nil)

	first := md.DecodeEncrypted(protocol.PayloadTypeN, plaintext)
	require.True(t, first.Parsed)
	assert.True(t, first.has(protocol.PayloadTypeN))

	second := md.DecodeEncrypted(protocol.PayloadTypeN, nil) // cached: args ignored after first call
	assert.Equal(t, first.Seen, second.Seen)

	n, ok := md.EncryptedPayload(protocol.PayloadTypeN).(*protocol.NotifyPayload)
	require.True(t, ok)
	assert.Equal(t, protocol.COOKIE, n.NotificationType)
}

func TestDecodeClearRejectsChainLongerThanMaxPayloadsPerMessage(t *testing.T) {
	payloads := make([]protocol.Payload, 0, MaxPayloadsPerMessage+1)
	for i := 0; i < MaxPayloadsPerMessage+1; i++ {
		payloads = append(payloads, &protocol.NotifyPayload{PayloadHeader: &protocol.PayloadHeader{}, NotificationType: protocol.COOKIE})
	}
	h := &protocol.IkeHeader{ExchangeType: protocol.IKE_SA_INIT}
	raw := buildClearDatagram(h, payloads)

	hdr, err := protocol.DecodeIkeHeader(raw)
	require.NoError(t, err)
	md := NewMessageDigest(hdr, raw, nil, nil)

	summary := md.DecodeClear()
	assert.False(t, summary.Parsed)
	assert.Equal(t, protocol.INVALID_SYNTAX, summary.Notification)
}
