package sa

import (
	"errors"
	"net"

	"github.com/msgboxio/ikedemux/protocol"
)

// Policy is the connection/policy handle an IKE SA carries (§3): the
// locally acceptable proposals and traffic selectors. Matching the
// offered proposal against it, and building the handler's reply, is
// handler-body work (out of scope, §1); Policy only owns the data the
// handler needs and the bits of it the dispatcher itself consults
// directly (FragmentationAllowed gates SKF admission in
// `demux.collectFragments`, §4.3's first admission rule).
type Policy struct {
	ProposalIke, ProposalEsp protocol.Transforms

	TsI, TsR []*protocol.Selector

	IsTransportMode bool

	// FragmentationAllowed is the local policy half of §4.3's first SKF
	// admission rule ("fragmentation is policy-allowed and the peer
	// previously advertised support"); the other half,
	// IkeSa.PeerFragmentationSupported, is observed from the peer's own
	// IKEV2_FRAGMENTATION_SUPPORTED notify.
	FragmentationAllowed bool
}

func DefaultPolicy() *Policy {
	return &Policy{
		ProposalIke:          protocol.IKE_AES_CBC_SHA256_MODP2048,
		ProposalEsp:          protocol.ESP_AES_CBC_SHA2_256,
		FragmentationAllowed: true,
	}
}

// CheckProposals reports whether proposals contains an entry of the
// given protocol that is within the locally configured transform set.
func (p *Policy) CheckProposals(prot protocol.ProtocolId, proposals protocol.Proposals) error {
	for _, prop := range proposals {
		if prop.ProtocolId != prot {
			continue
		}
		switch prot {
		case protocol.IKE:
			if p.ProposalIke.Within(prop.SaTransforms) {
				return nil
			}
		case protocol.ESP:
			if p.ProposalEsp.Within(prop.SaTransforms) {
				return nil
			}
		}
	}
	return errors.New("acceptable proposals are missing")
}

// AddSelector derives host-based traffic selectors from a pair of
// address/mask pairs, covering the full port range.
func (p *Policy) AddSelector(initiator, responder *net.IPNet) error {
	first, last, err := ipNetToFirstLastAddress(initiator)
	if err != nil {
		return err
	}
	p.TsI = []*protocol.Selector{{
		Type:         protocol.TS_IPV4_ADDR_RANGE,
		IpProtocolId: 0,
		StartPort:    0,
		Endport:      65535,
		StartAddress: first,
		EndAddress:   last,
	}}
	first, last, err = ipNetToFirstLastAddress(responder)
	if err != nil {
		return err
	}
	p.TsR = []*protocol.Selector{{
		Type:         protocol.TS_IPV4_ADDR_RANGE,
		IpProtocolId: 0,
		StartPort:    0,
		Endport:      65535,
		StartAddress: first,
		EndAddress:   last,
	}}
	return nil
}

func ipNetToFirstLastAddress(n *net.IPNet) (first, last net.IP, err error) {
	ip := n.IP.To4()
	if ip == nil {
		return nil, nil, errors.New("only ipv4 selectors are supported")
	}
	mask := n.Mask
	first = ip.Mask(mask)
	last = make(net.IP, len(first))
	for i := range first {
		last[i] = first[i] | ^mask[i]
	}
	return first, last, nil
}

// ProposalFromTransform builds a single-proposal SA payload body for
// the given protocol/transform set/SPI, for use by a handler building
// an outbound SA payload.
func ProposalFromTransform(prot protocol.ProtocolId, trs protocol.Transforms, spi []byte) []*protocol.SaProposal {
	return []*protocol.SaProposal{{
		IsLast:       true,
		Number:       1,
		ProtocolId:   prot,
		Spi:          append([]byte{}, spi...),
		SaTransforms: trs.AsList(),
	}}
}
