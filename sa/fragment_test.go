package sa

import (
	"testing"

	"github.com/msgboxio/ikedemux/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReassemblerCollectsInOrder(t *testing.T) {
	r := &Reassembler{}
	prefix := []byte{0xaa, 0xbb, 0xcc, 0xdd}

	disp := r.Accept(1, 2, protocol.PayloadTypeSA, []byte("hello-"), prefix)
	assert.Equal(t, FragmentCollected, disp)
	assert.True(t, r.InProgress())

	disp = r.Accept(2, 2, protocol.PayloadTypeNone, []byte("world"), nil)
	require.Equal(t, FragmentComplete, disp)

	next, hdr, ciphertext := r.Reassembled()
	assert.Equal(t, protocol.PayloadTypeSA, next)
	assert.Equal(t, prefix, hdr)
	assert.Equal(t, []byte("hello-world"), ciphertext)
}

func TestReassemblerOutOfOrder(t *testing.T) {
	r := &Reassembler{}
	disp := r.Accept(2, 2, protocol.PayloadTypeNone, []byte("world"), nil)
	assert.Equal(t, FragmentCollected, disp)
	disp = r.Accept(1, 2, protocol.PayloadTypeSA, []byte("hello-"), []byte{1})
	require.Equal(t, FragmentComplete, disp)

	_, _, ciphertext := r.Reassembled()
	assert.Equal(t, []byte("hello-world"), ciphertext)
}

func TestReassemblerRejectsBadBounds(t *testing.T) {
	r := &Reassembler{}
	assert.Equal(t, FragmentRejected, r.Accept(0, 2, protocol.PayloadTypeSA, nil, nil))
	assert.Equal(t, FragmentRejected, r.Accept(3, 2, protocol.PayloadTypeSA, nil, nil))
	assert.Equal(t, FragmentRejected, r.Accept(1, 0, protocol.PayloadTypeSA, nil, nil))
	assert.Equal(t, FragmentRejected, r.Accept(1, MaxIkeFragments+1, protocol.PayloadTypeSA, nil, nil))
}

func TestReassemblerRejectsMissingOrSpuriousNextPayload(t *testing.T) {
	r := &Reassembler{}
	// fragment 1 must carry a real next-payload type
	assert.Equal(t, FragmentRejected, r.Accept(1, 2, protocol.PayloadTypeNone, []byte("x"), nil))
	r2 := &Reassembler{}
	// non-first fragments must not carry one
	assert.Equal(t, FragmentRejected, r2.Accept(2, 2, protocol.PayloadTypeSA, []byte("x"), nil))
}

func TestReassemblerDuplicateFragment(t *testing.T) {
	r := &Reassembler{}
	require.Equal(t, FragmentCollected, r.Accept(1, 2, protocol.PayloadTypeSA, []byte("a"), nil))
	assert.Equal(t, FragmentDuplicate, r.Accept(1, 2, protocol.PayloadTypeSA, []byte("a-again"), nil))
}

func TestReassemblerTotalShrinkRejected(t *testing.T) {
	r := &Reassembler{}
	require.Equal(t, FragmentCollected, r.Accept(1, 3, protocol.PayloadTypeSA, []byte("a"), nil))
	assert.Equal(t, FragmentRejected, r.Accept(1, 2, protocol.PayloadTypeSA, []byte("a"), nil))
}

func TestReassemblerTotalGrowRestarts(t *testing.T) {
	r := &Reassembler{}
	require.Equal(t, FragmentCollected, r.Accept(1, 2, protocol.PayloadTypeSA, []byte("a"), nil))
	require.Equal(t, FragmentCollected, r.Accept(1, 3, protocol.PayloadTypeSA, []byte("a"), nil))
	require.Equal(t, FragmentCollected, r.Accept(2, 3, protocol.PayloadTypeNone, []byte("b"), nil))
	disp := r.Accept(3, 3, protocol.PayloadTypeNone, []byte("c"), nil)
	assert.Equal(t, FragmentComplete, disp)
}

func TestReassemblerReset(t *testing.T) {
	r := &Reassembler{}
	r.Accept(1, 2, protocol.PayloadTypeSA, []byte("a"), nil)
	r.Reset()
	assert.False(t, r.InProgress())
}
