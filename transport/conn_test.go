package transport

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListenUDP4RecvWritePacketRoundTrip(t *testing.T) {
	server, err := Listen("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer server.Close()

	client, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer client.Close()

	serverAddr := server.LocalAddr().(*net.UDPAddr)
	payload := []byte("ike-datagram")
	_, err = client.WriteTo(payload, serverAddr)
	require.NoError(t, err)

	dg, err := Recv(server)
	require.NoError(t, err)
	assert.Equal(t, payload, dg.Data)
	assert.Equal(t, client.LocalAddr().String(), dg.RemoteAddr.String())
	assert.Equal(t, serverAddr.Port, dg.LocalAddr.(*net.UDPAddr).Port)

	require.NoError(t, server.WritePacket([]byte("reply"), dg.RemoteAddr))
	reply := make([]byte, 16)
	n, _, err := client.ReadFrom(reply)
	require.NoError(t, err)
	assert.Equal(t, "reply", string(reply[:n]))
}

func TestListenRejectsNonUdp(t *testing.T) {
	_, err := Listen("tcp", "127.0.0.1:0")
	assert.Error(t, err)
}
