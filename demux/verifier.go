package demux

import "github.com/msgboxio/ikedemux/protocol"

// ExpectedPayloads is the signature a Row declares for either the
// clear or encrypted payload set (§3 "Transition Row", §4.2).
type ExpectedPayloads struct {
	Required, Optional uint64                    // bitsets over PayloadType
	Notification       protocol.NotificationType // NothingWrong if none required
}

func bit(pt protocol.PayloadType) uint64 { return uint64(1) << uint(pt) }

// everywhereBits is EverywherePayloads rendered as a bitset, computed
// once at init since protocol.EverywherePayloads never changes.
var everywhereBits = func() uint64 {
	var b uint64
	for pt := range protocol.EverywherePayloads {
		b |= bit(pt)
	}
	return b
}()

var repeatableBits = func() uint64 {
	var b uint64
	for pt := range protocol.RepeatablePayloads {
		b |= bit(pt)
	}
	return b
}()

// PayloadErrors is the Payload Verifier's output (§4.2).
type PayloadErrors struct {
	Missing             uint64
	Unexpected          uint64
	Excessive           uint64
	MissingNotification bool
}

// Bad reports whether any of the four error sets is non-empty.
func (e PayloadErrors) Bad() bool {
	return e.Missing != 0 || e.Unexpected != 0 || e.Excessive != 0 || e.MissingNotification
}

// Verify checks summary's bitsets against exp's required/optional/
// repeatable sets (§4.2). SKF aliases SK: if the summary saw SKF but
// not SK, it is treated as if SK were present, since SKF's reassembled
// content is what actually carries the payload chain the handler
// cares about. Notification-code matching needs the decoded Notify
// chain, not just the bitset; see VerifyChain for that.
func Verify(summary PayloadSummary, exp ExpectedPayloads) PayloadErrors {
	seen := summary.Seen
	if seen&bit(protocol.PayloadTypeSKF) != 0 && seen&bit(protocol.PayloadTypeSK) == 0 {
		seen |= bit(protocol.PayloadTypeSK)
	}

	var errs PayloadErrors
	errs.Missing = exp.Required &^ seen
	errs.Unexpected = seen &^ exp.Required &^ exp.Optional &^ everywhereBits
	errs.Excessive = summary.Repeated &^ repeatableBits
	return errs
}

// VerifyChain is the verifier entry point the dispatcher actually
// uses: it has access to the decoded Notify chain (needed to check
// exp.Notification) as well as the summary (needed for the bitset
// checks).
func VerifyChain(summary PayloadSummary, notifyChain *PayloadDigest, exp ExpectedPayloads) PayloadErrors {
	errs := Verify(summary, exp)
	if exp.Notification != protocol.NothingWrong {
		errs.MissingNotification = true
		for d := notifyChain; d != nil; d = d.Next {
			if n, ok := d.Payload.(*protocol.NotifyPayload); ok && n.NotificationType == exp.Notification {
				errs.MissingNotification = false
				break
			}
		}
	}
	return errs
}
