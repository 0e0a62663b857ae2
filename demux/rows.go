package demux

import (
	"github.com/msgboxio/ikedemux/protocol"
	"github.com/msgboxio/ikedemux/sa"
)

// Handlers collects the exchange-specific transition bodies the
// dispatcher invokes (§6 "Handler interface (consumed)"); naming
// mirrors the teacher's own Session.HandleIkeSaInit/HandleIkeAuth/
// HandleCreateChildSa methods. Every field is out of scope for this
// module: only the (sa.IkeSa, *MessageDigest) -> TransitionResult
// contract is specified, not the body.
type Handlers struct {
	SaInitRequest  Handler // R0 -> R1
	SaInitResponse Handler // I1 -> I2, or I1 -> I0 on cookie/KE restart
	AuthRequest    Handler // R1 -> R2
	AuthResponse   Handler // I2 -> I3

	// CreateChildRequest and CreateChildResponse serve every
	// CREATE_CHILD_SA exchange regardless of which state it actually
	// originated from (§4.6 rule 1): rekey-child, rekey-IKE, and
	// plain new-child all share these two rows, and the handler
	// resolves which one it is from the encrypted payload signature
	// (§4.7 step 10) and sets sa.State itself.
	CreateChildRequest  Handler
	CreateChildResponse Handler

	// InformationalRequest and InformationalResponse serve liveness
	// checks and Delete exchanges in every post-AUTH state.
	InformationalRequest  Handler
	InformationalResponse Handler
}

func clearPayloads(required ...protocol.PayloadType) ExpectedPayloads {
	var exp ExpectedPayloads
	for _, pt := range required {
		exp.Required |= bit(pt)
	}
	return exp
}

var saInitMessagePayloads = ExpectedPayloads{
	Required: bit(protocol.PayloadTypeSA) | bit(protocol.PayloadTypeKE) | bit(protocol.PayloadTypeNonce),
	Optional: bit(protocol.PayloadTypeN) | bit(protocol.PayloadTypeV) | bit(protocol.PayloadTypeCERTREQ),
}

var skOnlyMessagePayloads = clearPayloads(protocol.PayloadTypeSK)

var authRequestEncrypted = ExpectedPayloads{
	Required: bit(protocol.PayloadTypeIDi) | bit(protocol.PayloadTypeAUTH) |
		bit(protocol.PayloadTypeSA) | bit(protocol.PayloadTypeTSi) | bit(protocol.PayloadTypeTSr),
	Optional: bit(protocol.PayloadTypeCERT) | bit(protocol.PayloadTypeCERTREQ) |
		bit(protocol.PayloadTypeCP) | bit(protocol.PayloadTypeN) | bit(protocol.PayloadTypeV),
}

var authResponseEncrypted = ExpectedPayloads{
	Required: bit(protocol.PayloadTypeIDr) | bit(protocol.PayloadTypeAUTH) |
		bit(protocol.PayloadTypeSA) | bit(protocol.PayloadTypeTSi) | bit(protocol.PayloadTypeTSr),
	Optional: bit(protocol.PayloadTypeCERT) | bit(protocol.PayloadTypeCP) |
		bit(protocol.PayloadTypeN) | bit(protocol.PayloadTypeV),
}

// createChildEncrypted covers rekey-child, rekey-IKE and new-child
// alike: SA and Nonce are the only payloads every variant carries; KE,
// TSi/TSr and the REKEY_SA notify are each optional since which subset
// is present is exactly what tells the handler which variant this is.
var createChildEncrypted = ExpectedPayloads{
	Required: bit(protocol.PayloadTypeSA) | bit(protocol.PayloadTypeNonce),
	Optional: bit(protocol.PayloadTypeKE) | bit(protocol.PayloadTypeTSi) |
		bit(protocol.PayloadTypeTSr) | bit(protocol.PayloadTypeN) | bit(protocol.PayloadTypeD),
}

var informationalEncrypted = ExpectedPayloads{
	Optional: bit(protocol.PayloadTypeD) | bit(protocol.PayloadTypeN) | bit(protocol.PayloadTypeCP),
}

// establishedStates lists every state in which an IKE SA may receive
// an INFORMATIONAL exchange: established proper and every in-progress
// child/IKE rekey, since RFC 7296 places no restriction on liveness
// checks or deletes racing a pending CREATE_CHILD_SA (§4.6 rule 1
// applies only to CREATE_CHILD_SA itself, not to INFORMATIONAL).
var establishedStates = []sa.State{
	sa.I3, sa.R2,
	sa.RekeyChildI0, sa.RekeyChildI, sa.IpsecI,
	sa.CreateR, sa.IpsecR,
	sa.RekeyIkeI0, sa.RekeyIkeI, sa.RekeyIkeR,
}

// NewTransitionTable builds the full §4.9 state machine out of h. Row
// order matters: within a from_state/exchange-type group the more
// specific row (one requiring a particular notification) is listed
// ahead of the generic fallback, so Select's first-match-wins walk
// picks it correctly (§9 design note).
func NewTransitionTable(h Handlers) *Table {
	t := &Table{}

	add := func(r *Row) { t.Rows = append(t.Rows, r) }

	// R0 -> R1: responder receives the initiating SA_INIT request.
	// NoSkeyseedRequired: this is the one row usable before any key
	// material exists at all.
	add(&Row{
		Name:               "SaInitRequest",
		FromState:          sa.R0,
		NextState:          sa.R1,
		RecvExchangeType:   protocol.IKE_SA_INIT,
		IkeInitiator:       MustBeSet,
		MsgResponse:        MustBeClear,
		NoSkeyseedRequired: true,
		Send:               true,
		MessagePayloads:    saInitMessagePayloads,
		Handler:            h.SaInitRequest,
		TimeoutEvent:       TimeoutDiscard,
	})

	// I1 -> I0: SA_INIT response carries a COOKIE or INVALID_KE_PAYLOAD
	// notify, meaning the peer wants a restart with that notify echoed
	// back on the next attempt. Listed ahead of the generic I1 row so
	// its Notification-gated match wins first.
	add(&Row{
		Name:             "SaInitCookieRestart",
		FromState:        sa.I1,
		NextState:        sa.I0,
		RecvExchangeType: protocol.IKE_SA_INIT,
		IkeInitiator:     MustBeClear,
		MsgResponse:      MustBeSet,
		Send:             false,
		MessagePayloads: ExpectedPayloads{
			Optional:     saInitMessagePayloads.Required | saInitMessagePayloads.Optional,
			Notification: protocol.COOKIE,
		},
		Handler:      h.SaInitResponse,
		TimeoutEvent: TimeoutRetain,
	})
	add(&Row{
		Name:             "SaInitKeRestart",
		FromState:        sa.I1,
		NextState:        sa.I0,
		RecvExchangeType: protocol.IKE_SA_INIT,
		IkeInitiator:     MustBeClear,
		MsgResponse:      MustBeSet,
		Send:             false,
		MessagePayloads: ExpectedPayloads{
			Optional:     saInitMessagePayloads.Required | saInitMessagePayloads.Optional,
			Notification: protocol.INVALID_KE_PAYLOAD,
		},
		Handler:      h.SaInitResponse,
		TimeoutEvent: TimeoutRetain,
	})

	// I1 -> I2: ordinary accepted SA_INIT response.
	add(&Row{
		Name:             "SaInitResponse",
		FromState:        sa.I1,
		NextState:        sa.I2,
		RecvExchangeType: protocol.IKE_SA_INIT,
		IkeInitiator:     MustBeClear,
		MsgResponse:      MustBeSet,
		Send:             false,
		MessagePayloads:  saInitMessagePayloads,
		Handler:          h.SaInitResponse,
		TimeoutEvent:     TimeoutSaReplace,
	})

	// R1 -> R2: responder receives IKE_AUTH request.
	add(&Row{
		Name:              "AuthRequest",
		FromState:         sa.R1,
		NextState:         sa.R2,
		RecvExchangeType:  protocol.IKE_AUTH,
		IkeInitiator:      MustBeSet,
		MsgResponse:       MustBeClear,
		Send:              true,
		MessagePayloads:   skOnlyMessagePayloads,
		EncryptedPayloads: authRequestEncrypted,
		Handler:           h.AuthRequest,
		TimeoutEvent:      TimeoutDiscard,
	})

	// I2 -> I3: initiator receives IKE_AUTH response.
	add(&Row{
		Name:              "AuthResponse",
		FromState:         sa.I2,
		NextState:         sa.I3,
		RecvExchangeType:  protocol.IKE_AUTH,
		IkeInitiator:      MustBeClear,
		MsgResponse:       MustBeSet,
		Send:              false,
		MessagePayloads:   skOnlyMessagePayloads,
		EncryptedPayloads: authResponseEncrypted,
		Handler:           h.AuthResponse,
		TimeoutEvent:      TimeoutSaReplace,
	})

	// CREATE_CHILD_SA request/response: from_state is bypassed
	// (bypassFromState), NextState is StateNone because the handler
	// decides the real destination (CreateR/IpsecR, RekeyChildI/IpsecI,
	// or RekeyIkeI/RekeyIkeR->emancipate) from the encrypted signature.
	add(&Row{
		Name:              "CreateChildRequest",
		RecvExchangeType:  protocol.CREATE_CHILD_SA,
		IkeInitiator:      DontCare,
		MsgResponse:       MustBeClear,
		NextState:         sa.StateNone,
		Send:              true,
		MessagePayloads:   skOnlyMessagePayloads,
		EncryptedPayloads: createChildEncrypted,
		Handler:           h.CreateChildRequest,
		TimeoutEvent:      TimeoutDiscard,
	})
	add(&Row{
		Name:              "CreateChildResponse",
		RecvExchangeType:  protocol.CREATE_CHILD_SA,
		IkeInitiator:      DontCare,
		MsgResponse:       MustBeSet,
		NextState:         sa.StateNone,
		Send:              false,
		MessagePayloads:   skOnlyMessagePayloads,
		EncryptedPayloads: createChildEncrypted,
		Handler:           h.CreateChildResponse,
		TimeoutEvent:      TimeoutSaReplace,
	})

	// INFORMATIONAL request/response: one row pair per established
	// state (§4.6 rule 1 does not exempt INFORMATIONAL from the
	// from_state check, unlike CREATE_CHILD_SA).
	for _, from := range establishedStates {
		add(&Row{
			Name:              "InformationalRequest",
			FromState:         from,
			NextState:         from,
			RecvExchangeType:  protocol.INFORMATIONAL,
			IkeInitiator:      DontCare,
			MsgResponse:       MustBeClear,
			Send:              true,
			MessagePayloads:   skOnlyMessagePayloads,
			EncryptedPayloads: informationalEncrypted,
			Handler:           h.InformationalRequest,
			TimeoutEvent:      TimeoutDiscard,
		})
		add(&Row{
			Name:              "InformationalResponse",
			FromState:         from,
			NextState:         from,
			RecvExchangeType:  protocol.INFORMATIONAL,
			IkeInitiator:      DontCare,
			MsgResponse:       MustBeSet,
			Send:              false,
			MessagePayloads:   skOnlyMessagePayloads,
			EncryptedPayloads: informationalEncrypted,
			Handler:           h.InformationalResponse,
			TimeoutEvent:      TimeoutRetain,
		})
	}

	return t
}
