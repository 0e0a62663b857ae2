package crypto

import (
	"testing"

	"github.com/msgboxio/ikedemux/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCipherSuiteEncryptMacVerifyDecryptRoundTrip(t *testing.T) {
	cs, err := NewCipherSuite(protocol.IKE_AES_CBC_SHA256_MODP2048)
	require.NoError(t, err)
	require.NoError(t, cs.CheckIkeTransforms())

	skA := make([]byte, cs.MacKeyLen)
	skE := make([]byte, cs.KeyLen)
	for i := range skA {
		skA[i] = byte(i + 1)
	}
	for i := range skE {
		skE[i] = byte(i + 2)
	}

	headers := make([]byte, protocol.IKE_HEADER_LEN+protocol.PAYLOAD_HEADER_LENGTH)
	clear := []byte("this is a secret ike payload body")

	ike, err := cs.EncryptMac(headers, clear, skA, skE)
	require.NoError(t, err)

	dec, err := cs.VerifyDecrypt(ike, skA, skE)
	require.NoError(t, err)
	assert.Equal(t, clear, dec)
}

func TestCipherSuiteVerifyDecryptRejectsTamperedMac(t *testing.T) {
	cs, err := NewCipherSuite(protocol.IKE_AES_CBC_SHA256_MODP2048)
	require.NoError(t, err)

	skA := make([]byte, cs.MacKeyLen)
	skE := make([]byte, cs.KeyLen)
	headers := make([]byte, protocol.IKE_HEADER_LEN+protocol.PAYLOAD_HEADER_LENGTH)

	ike, err := cs.EncryptMac(headers, []byte("payload"), skA, skE)
	require.NoError(t, err)

	ike[len(ike)-1] ^= 0xff // flip a bit in the trailing mac
	_, err = cs.VerifyDecrypt(ike, skA, skE)
	assert.Error(t, err)
}

func TestCipherSuiteOverheadAccountsForPadIvMac(t *testing.T) {
	cs, err := NewCipherSuite(protocol.IKE_AES_CBC_SHA256_MODP2048)
	require.NoError(t, err)

	clear := make([]byte, 31) // not a multiple of the 16-byte AES block
	skA := make([]byte, cs.MacKeyLen)
	skE := make([]byte, cs.KeyLen)
	headers := make([]byte, protocol.IKE_HEADER_LEN+protocol.PAYLOAD_HEADER_LENGTH)

	ike, err := cs.EncryptMac(headers, clear, skA, skE)
	require.NoError(t, err)

	assert.Equal(t, len(clear)+cs.Overhead(clear), len(ike)-len(headers))
}

func TestNewCipherSuiteRejectsUnknownTransform(t *testing.T) {
	bad := protocol.Transforms{
		protocol.TRANSFORM_TYPE_ENCR: &protocol.SaTransform{},
	}
	_, err := NewCipherSuite(bad)
	assert.Error(t, err)
}
