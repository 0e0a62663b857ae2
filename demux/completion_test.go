package demux

import (
	"net"
	"testing"

	"github.com/msgboxio/ikedemux/protocol"
	"github.com/msgboxio/ikedemux/sa"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	sent []byte
	to   net.Addr
}

func (f *fakeSender) Send(b []byte, to net.Addr) error {
	f.sent = b
	f.to = to
	return nil
}

func newTestDispatcher() (*Dispatcher, *fakeSender) {
	fs := &fakeSender{}
	d := &Dispatcher{
		Table:  sa.NewTable(),
		Sender: fs,
	}
	return d, fs
}

func TestCollectFragmentsSkipsWhenRowDoesNotRequireDecrypt(t *testing.T) {
	d, _ := newTestDispatcher()
	s := sa.NewIkeSa(1, sa.Initiator, sa.DefaultPolicy())
	md := NewMessageDigest(&protocol.IkeHeader{}, nil, nil, nil)
	row := &Row{MessagePayloads: ExpectedPayloads{Required: bit(protocol.PayloadTypeSA)}}

	_, _, _, ready := d.collectFragments(s, md, row)
	assert.True(t, ready)
}

func TestCollectFragmentsBareSk(t *testing.T) {
	d, _ := newTestDispatcher()
	s := sa.NewIkeSa(1, sa.Initiator, sa.DefaultPolicy())
	row := &Row{MessagePayloads: ExpectedPayloads{Required: bit(protocol.PayloadTypeSK)}}
	require.True(t, row.RequiresDecrypt())

	sk := &protocol.SkPayload{PayloadHeader: &protocol.PayloadHeader{}, Ciphertext: []byte("ciphertext")}
	h := &protocol.IkeHeader{ExchangeType: protocol.IKE_AUTH}
	raw := buildClearDatagram(h, []protocol.Payload{sk})
	hdr, err := protocol.DecodeIkeHeader(raw)
	require.NoError(t, err)
	md := NewMessageDigest(hdr, raw, nil, nil)
	md.DecodeClear()

	ciphertext, header, first, ready := d.collectFragments(s, md, row)
	require.True(t, ready)
	assert.Nil(t, header)
	assert.Equal(t, []byte("ciphertext"), ciphertext)
	assert.Equal(t, protocol.PayloadTypeNone, first) // SkPayload has no further chained payload in this test fixture
}

func TestCollectFragmentsRejectsSkfWithoutNegotiatedSupport(t *testing.T) {
	d, _ := newTestDispatcherWithLogger()
	s := sa.NewIkeSa(1, sa.Initiator, sa.DefaultPolicy())
	require.False(t, s.PeerFragmentationSupported)
	row := &Row{MessagePayloads: ExpectedPayloads{Required: bit(protocol.PayloadTypeSK)}}

	skf := &protocol.SkfPayload{PayloadHeader: &protocol.PayloadHeader{}, FragmentNumber: 1, TotalFragments: 1, Ciphertext: []byte("ct")}
	nonce := newTestNonce() // only here to give the SKF header a real next-payload type
	h := &protocol.IkeHeader{ExchangeType: protocol.IKE_AUTH}
	raw := buildClearDatagram(h, []protocol.Payload{skf, nonce})
	hdr, err := protocol.DecodeIkeHeader(raw)
	require.NoError(t, err)
	md := NewMessageDigest(hdr, raw, nil, nil)
	md.DecodeClear()

	_, _, _, ready := d.collectFragments(s, md, row)
	assert.False(t, ready)
}

func TestCollectFragmentsAcceptsSkfOnceNegotiated(t *testing.T) {
	d, _ := newTestDispatcher()
	s := sa.NewIkeSa(1, sa.Initiator, sa.DefaultPolicy())
	s.PeerFragmentationSupported = true
	row := &Row{MessagePayloads: ExpectedPayloads{Required: bit(protocol.PayloadTypeSK)}}

	skf := &protocol.SkfPayload{PayloadHeader: &protocol.PayloadHeader{}, FragmentNumber: 1, TotalFragments: 1, Ciphertext: []byte("ct")}
	nonce := newTestNonce() // only here to give the SKF header a real next-payload type
	h := &protocol.IkeHeader{ExchangeType: protocol.IKE_AUTH}
	raw := buildClearDatagram(h, []protocol.Payload{skf, nonce})
	hdr, err := protocol.DecodeIkeHeader(raw)
	require.NoError(t, err)
	md := NewMessageDigest(hdr, raw, nil, nil)
	md.DecodeClear()

	ciphertext, _, _, ready := d.collectFragments(s, md, row)
	require.True(t, ready)
	assert.Equal(t, []byte("ct"), ciphertext)
}

func TestDecryptFailsWithoutKeyMaterial(t *testing.T) {
	d, _ := newTestDispatcher()
	s := sa.NewIkeSa(1, sa.Initiator, sa.DefaultPolicy())
	md := NewMessageDigest(&protocol.IkeHeader{}, make([]byte, protocol.IKE_HEADER_LEN), nil, nil)

	_, ok := d.decrypt(s, md, nil, []byte("ct"))
	assert.False(t, ok)
}

func TestBuildReplyPreSkeyseedIsNotSkWrapped(t *testing.T) {
	d, _ := newTestDispatcher()
	s := sa.NewIkeSa(1, sa.Responder, sa.DefaultPolicy())
	require.Nil(t, s.Suite)

	notify := &protocol.NotifyPayload{PayloadHeader: &protocol.PayloadHeader{}, NotificationType: protocol.COOKIE}
	md := &MessageDigest{Header: &protocol.IkeHeader{ExchangeType: protocol.IKE_SA_INIT, MsgId: 0}}

	out := d.buildReply(s, md, []protocol.Payload{notify})
	require.NotEmpty(t, out)

	hdr, err := protocol.DecodeIkeHeader(out)
	require.NoError(t, err)
	assert.Equal(t, protocol.PayloadTypeN, hdr.NextPayload)
	assert.True(t, hdr.Flags.IsResponse())
}

func TestCompleteOkSendsReplyAndAdvancesWindow(t *testing.T) {
	d, fs := newTestDispatcher()
	s := sa.NewIkeSa(1, sa.Responder, sa.DefaultPolicy())
	s.RemoteAddr = &net.UDPAddr{IP: net.ParseIP("203.0.113.5"), Port: 500}

	notify := &protocol.NotifyPayload{PayloadHeader: &protocol.PayloadHeader{}, NotificationType: protocol.COOKIE}
	md := &MessageDigest{Header: &protocol.IkeHeader{ExchangeType: protocol.IKE_SA_INIT, MsgId: 0}}
	row := &Row{NextState: sa.R1, Send: true}

	d.Complete(s, md, row, TransitionResult{Outcome: Ok, Reply: []protocol.Payload{notify}})

	assert.Equal(t, sa.R1, s.State)
	assert.NotEmpty(t, fs.sent)
	assert.Len(t, s.LastSent, 1)
	lastRecv, ok := s.Window.LastRecv()
	assert.True(t, ok)
	assert.Equal(t, uint32(0), lastRecv)
	assert.Equal(t, uint32(0), s.Window.LastReplied())
}

func TestCompleteOkDrainsPendingOutOnceWindowFrees(t *testing.T) {
	d, fs := newTestDispatcher()
	s := sa.NewIkeSa(1, sa.Initiator, sa.DefaultPolicy())
	s.RemoteAddr = &net.UDPAddr{IP: net.ParseIP("203.0.113.5"), Port: 500}
	s.Window.MintRequest() // reserves msgid 0, as if already sent

	queued := []byte("queued-request-bytes")
	s.PendingOut = []sa.PendingRequest{{MsgId: 1, Data: queued}}

	md := &MessageDigest{Header: &protocol.IkeHeader{ExchangeType: protocol.INFORMATIONAL, MsgId: 0, Flags: protocol.RESPONSE}}
	row := &Row{}

	d.Complete(s, md, row, TransitionResult{Outcome: Ok})

	assert.Empty(t, s.PendingOut)
	assert.Equal(t, queued, fs.sent)
	assert.Equal(t, [][]byte{queued}, s.LastSent)
}

func TestCompleteOkLeavesPendingOutWhenWindowStillFull(t *testing.T) {
	d, fs := newTestDispatcher()
	s := sa.NewIkeSa(1, sa.Initiator, sa.DefaultPolicy())
	s.Window.MintRequest() // msgid 0, still outstanding
	s.Window.MintRequest() // msgid 1, also reserved ahead of the window
	s.PendingOut = []sa.PendingRequest{{MsgId: 2, Data: []byte("queued")}}

	md := &MessageDigest{Header: &protocol.IkeHeader{ExchangeType: protocol.INFORMATIONAL, MsgId: 0, Flags: protocol.RESPONSE}}
	row := &Row{}

	d.Complete(s, md, row, TransitionResult{Outcome: Ok})

	assert.Len(t, s.PendingOut, 1)
	assert.Empty(t, fs.sent)
}

func TestCompleteDropRemovesSa(t *testing.T) {
	d, _ := newTestDispatcher()
	s := sa.NewIkeSa(1, sa.Responder, sa.DefaultPolicy())
	s.SpiI = protocol.Spi{1}
	s.SpiR = protocol.Spi{2}
	d.Table.Insert(s)

	d.Complete(s, &MessageDigest{Header: &protocol.IkeHeader{}}, &Row{}, TransitionResult{Outcome: Drop})

	got, ok := d.Table.BySpi(s.SpiI, s.SpiR)
	assert.False(t, ok)
	assert.Nil(t, got)
}
