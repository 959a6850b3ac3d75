package delivery

import (
	"context"
	"errors"
	"net"
	"strings"

	"postbot/internal/transport"
)

// Verdict buckets a transport failure for the retry loop.
type Verdict int

const (
	// VerdictPermanent: caller error, no retry. This is the default for
	// anything unrecognized so an unanticipated failure can never spin
	// the retry loop forever.
	VerdictPermanent Verdict = iota
	// VerdictTransient: safe to retry the same attempt after a backoff.
	VerdictTransient
	// VerdictDegrade: the failure is specific to the account behind this
	// transport; retrying on it is pointless, another transport may work.
	VerdictDegrade
	// VerdictStale: the payload handle has expired; rebuild it from the
	// source before the next attempt.
	VerdictStale
)

func (v Verdict) String() string {
	switch v {
	case VerdictTransient:
		return "transient"
	case VerdictDegrade:
		return "degrade-transport"
	case VerdictStale:
		return "stale-reference"
	default:
		return "permanent"
	}
}

// Phrases the platform uses for failures tied to the sending account
// rather than the request itself.
var degradePhrases = []string{
	"not a member",
	"have no rights",
	"not enough rights",
	"bot was kicked",
	"bot is not a member",
	"chat_write_forbidden",
	"channel_private",
}

// Phrases indicating an expired file handle.
var stalePhrases = []string{
	"wrong file identifier",
	"wrong remote file identifier",
	"file reference expired",
	"file_reference_expired",
	"failed to get http url content",
}

// Classify maps one transport failure to a verdict.
//
// Total by construction: every error lands in exactly one bucket, and the
// fallthrough is permanent.
func Classify(err error) Verdict {
	if err == nil {
		return VerdictPermanent
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return VerdictTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return VerdictTransient
	}

	var te *transport.Error
	if !errors.As(err, &te) {
		return VerdictPermanent
	}

	if te.RetryAfter > 0 || te.Code == 429 {
		return VerdictTransient
	}

	desc := strings.ToLower(te.Description)
	for _, p := range stalePhrases {
		if strings.Contains(desc, p) {
			return VerdictStale
		}
	}
	for _, p := range degradePhrases {
		if strings.Contains(desc, p) {
			return VerdictDegrade
		}
	}
	if te.Code == 401 || te.Code == 403 {
		return VerdictDegrade
	}
	if te.Code >= 500 {
		return VerdictTransient
	}
	return VerdictPermanent
}
