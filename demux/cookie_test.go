package demux

import (
	"net"
	"testing"

	"github.com/msgboxio/ikedemux/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCookieDeriveVerifyRoundTrip(t *testing.T) {
	secret, err := NewCookieSecret()
	require.NoError(t, err)

	peer := &net.UDPAddr{IP: net.ParseIP("203.0.113.9"), Port: 500}
	spi := protocol.Spi{1, 2, 3, 4, 5, 6, 7, 8}
	ni := []byte("nonce-data")

	token := secret.Derive(peer, spi, ni)
	assert.True(t, secret.Verify(peer, spi, ni, token))
}

func TestCookieVerifyRejectsWrongPeerOrNonce(t *testing.T) {
	secret, err := NewCookieSecret()
	require.NoError(t, err)

	peer := &net.UDPAddr{IP: net.ParseIP("203.0.113.9"), Port: 500}
	other := &net.UDPAddr{IP: net.ParseIP("203.0.113.10"), Port: 500}
	spi := protocol.Spi{1}
	ni := []byte("nonce-data")

	token := secret.Derive(peer, spi, ni)
	assert.False(t, secret.Verify(other, spi, ni, token))
	assert.False(t, secret.Verify(peer, spi, []byte("different"), token))
}

func TestCookieRotateInvalidatesOldTokens(t *testing.T) {
	secret, err := NewCookieSecret()
	require.NoError(t, err)

	peer := &net.UDPAddr{IP: net.ParseIP("198.51.100.1"), Port: 500}
	spi := protocol.Spi{9}
	ni := []byte("n")

	token := secret.Derive(peer, spi, ni)
	require.NoError(t, secret.Rotate())
	assert.False(t, secret.Verify(peer, spi, ni, token))
}
