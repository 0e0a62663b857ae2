package demux

import (
	"testing"

	"github.com/msgboxio/ikedemux/protocol"
	"github.com/msgboxio/ikedemux/sa"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopHandler(s *sa.IkeSa, md *MessageDigest) TransitionResult {
	return TransitionResult{Outcome: Ok}
}

func testHandlers() Handlers {
	return Handlers{
		SaInitRequest:         noopHandler,
		SaInitResponse:        noopHandler,
		AuthRequest:           noopHandler,
		AuthResponse:          noopHandler,
		CreateChildRequest:    noopHandler,
		CreateChildResponse:   noopHandler,
		InformationalRequest:  noopHandler,
		InformationalResponse: noopHandler,
	}
}

func TestSelectSaInitRequest(t *testing.T) {
	table := NewTransitionTable(testHandlers())
	summary := summaryOf(protocol.PayloadTypeSA, protocol.PayloadTypeKE, protocol.PayloadTypeNonce)
	row := table.Select(sa.R0, protocol.IKE_SA_INIT, protocol.INITIATOR, summary, nil)
	require.NotNil(t, row)
	assert.Equal(t, "SaInitRequest", row.Name)
	assert.Equal(t, sa.R1, row.NextState)
}

func TestSelectSaInitCookieRestartBeatsGenericResponse(t *testing.T) {
	table := NewTransitionTable(testHandlers())
	summary := summaryOf(protocol.PayloadTypeN)
	notify := &PayloadDigest{Payload: &protocol.NotifyPayload{
		PayloadHeader:    &protocol.PayloadHeader{},
		NotificationType: protocol.COOKIE,
	}}
	row := table.Select(sa.I1, protocol.IKE_SA_INIT, protocol.RESPONSE, summary, notify)
	require.NotNil(t, row)
	assert.Equal(t, "SaInitCookieRestart", row.Name)
	assert.Equal(t, sa.I0, row.NextState)
}

func TestSelectSaInitGenericResponse(t *testing.T) {
	table := NewTransitionTable(testHandlers())
	summary := summaryOf(protocol.PayloadTypeSA, protocol.PayloadTypeKE, protocol.PayloadTypeNonce)
	row := table.Select(sa.I1, protocol.IKE_SA_INIT, protocol.RESPONSE, summary, nil)
	require.NotNil(t, row)
	assert.Equal(t, "SaInitResponse", row.Name)
	assert.Equal(t, sa.I2, row.NextState)
}

func TestSelectCreateChildBypassesFromState(t *testing.T) {
	table := NewTransitionTable(testHandlers())
	summary := summaryOf(protocol.PayloadTypeSK)
	for _, from := range []sa.State{sa.I3, sa.R2, sa.RekeyIkeI} {
		row := table.Select(from, protocol.CREATE_CHILD_SA, 0, summary, nil)
		require.NotNil(t, row, "from state %v", from)
		assert.Equal(t, sa.StateNone, row.NextState)
	}
}

func TestSelectInformationalRequiresMatchingFromState(t *testing.T) {
	table := NewTransitionTable(testHandlers())
	summary := summaryOf(protocol.PayloadTypeSK)
	row := table.Select(sa.I3, protocol.INFORMATIONAL, 0, summary, nil)
	require.NotNil(t, row)
	assert.Equal(t, sa.I3, row.NextState)

	row = table.Select(sa.I0, protocol.INFORMATIONAL, 0, summary, nil)
	assert.Nil(t, row, "I0 never receives INFORMATIONAL")
}

func TestSelectNoMatchReturnsNil(t *testing.T) {
	table := NewTransitionTable(testHandlers())
	row := table.Select(sa.R0, protocol.IKE_AUTH, 0, PayloadSummary{Parsed: true}, nil)
	assert.Nil(t, row)
}

func TestRequiresDecrypt(t *testing.T) {
	table := NewTransitionTable(testHandlers())
	summary := summaryOf(protocol.PayloadTypeSK)
	row := table.Select(sa.R1, protocol.IKE_AUTH, protocol.INITIATOR, summary, nil)
	require.NotNil(t, row)
	assert.True(t, row.RequiresDecrypt())

	summary2 := summaryOf(protocol.PayloadTypeSA, protocol.PayloadTypeKE, protocol.PayloadTypeNonce)
	row2 := table.Select(sa.R0, protocol.IKE_SA_INIT, protocol.INITIATOR, summary2, nil)
	require.NotNil(t, row2)
	assert.False(t, row2.RequiresDecrypt())
}
