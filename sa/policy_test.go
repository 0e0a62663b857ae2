package sa

import (
	"net"
	"testing"

	"github.com/msgboxio/ikedemux/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicyAcceptsItsOwnProposal(t *testing.T) {
	p := DefaultPolicy()
	ikeProposal := ProposalFromTransform(protocol.IKE, p.ProposalIke, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	assert.NoError(t, p.CheckProposals(protocol.IKE, ikeProposal))

	espProposal := ProposalFromTransform(protocol.ESP, p.ProposalEsp, []byte{1, 2, 3, 4})
	assert.NoError(t, p.CheckProposals(protocol.ESP, espProposal))
}

func TestCheckProposalsRejectsWeakerProposal(t *testing.T) {
	p := DefaultPolicy()
	weak := ProposalFromTransform(protocol.IKE, protocol.IKE_AES_CBC_SHA1_96_DH_1024, []byte{1})
	assert.Error(t, p.CheckProposals(protocol.IKE, weak))
}

func TestCheckProposalsIgnoresWrongProtocol(t *testing.T) {
	p := DefaultPolicy()
	ikeProposal := ProposalFromTransform(protocol.IKE, p.ProposalIke, []byte{1})
	assert.Error(t, p.CheckProposals(protocol.ESP, ikeProposal), "an IKE proposal must not satisfy an ESP check")
}

func TestAddSelectorCoversFullSubnet(t *testing.T) {
	p := DefaultPolicy()
	_, initNet, err := net.ParseCIDR("10.0.0.0/24")
	require.NoError(t, err)
	_, respNet, err := net.ParseCIDR("10.0.1.0/24")
	require.NoError(t, err)

	require.NoError(t, p.AddSelector(initNet, respNet))
	require.Len(t, p.TsI, 1)
	require.Len(t, p.TsR, 1)

	assert.Equal(t, net.IPv4(10, 0, 0, 0).To4(), p.TsI[0].StartAddress.To4())
	assert.Equal(t, net.IPv4(10, 0, 0, 255).To4(), p.TsI[0].EndAddress.To4())
	assert.EqualValues(t, 0, p.TsI[0].StartPort)
	assert.EqualValues(t, 65535, p.TsI[0].Endport)
}

func TestAddSelectorRejectsIpv6(t *testing.T) {
	p := DefaultPolicy()
	_, v6, err := net.ParseCIDR("2001:db8::/32")
	require.NoError(t, err)
	assert.Error(t, p.AddSelector(v6, v6))
}
