package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeekPayloadLengthReadsHeaderField(t *testing.T) {
	body := []byte("payload-body")
	hdr := EncodePayloadHeader(PayloadTypeNone, false, uint16(len(body)))

	l, err := PeekPayloadLength(hdr)
	require.NoError(t, err)
	assert.EqualValues(t, PAYLOAD_HEADER_LENGTH+len(body), l)
}

func TestPeekPayloadLengthRejectsShortBuffer(t *testing.T) {
	_, err := PeekPayloadLength([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestEncodePayloadChainChainsNextPayloadAndTerminatesWithNone(t *testing.T) {
	a := &NotifyPayload{PayloadHeader: &PayloadHeader{}, NotificationType: COOKIE}
	b := &NotifyPayload{PayloadHeader: &PayloadHeader{}, NotificationType: REKEY_SA}

	out := EncodePayloadChain([]Payload{a, b}, func(Payload) bool { return false })

	firstLen, err := PeekPayloadLength(out)
	require.NoError(t, err)
	assert.Equal(t, PayloadTypeN, PayloadType(out[0]))

	second := out[firstLen:]
	assert.Equal(t, PayloadTypeNone, PayloadType(second[0]))
}
