package demux

import (
	"github.com/msgboxio/ikedemux/protocol"
	"github.com/msgboxio/ikedemux/sa"
)

// Outcome is the handler's verdict (§5, §9 "Exception-like control
// flow" design note): a sum type in place of the source's STF_*
// sentinels threaded through many call layers.
type Outcome int

const (
	Ok Outcome = iota
	Suspend
	Ignore
	Drop
	Fatal
	Fail
)

// TransitionResult is what a Handler returns. Notification is only
// meaningful when Outcome == Fail; Continuation is only meaningful
// when Outcome == Suspend, and is opaque to demux itself (it is
// reattached to the SA and handed back verbatim on resume).
type TransitionResult struct {
	Outcome      Outcome
	Notification protocol.NotificationType
	Continuation interface{}

	// Reply, when non-nil, is the encoded response payload chain the
	// handler built; the Completion Path wraps it in SK/SKF and sends
	// it. Handlers that want the dispatcher to build a bare Notify
	// response instead leave this nil and rely on Fail/Notification.
	Reply []protocol.Payload

	// Emancipated is set by an IKE-rekey handler (RekeyIkeI/RekeyIkeR)
	// that has finished deriving the replacement SA's keys: the new
	// SA built via IkeSa.Emancipate, still unregistered. The Completion
	// Path installs it under its new SPI pair and retires the old one
	// (§4.8 "If transitioning out of an IKE-rekey ... state, emancipate").
	Emancipated *sa.IkeSa
}
