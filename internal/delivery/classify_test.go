package delivery

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"postbot/internal/transport"
)

type fakeTimeout struct{}

func (fakeTimeout) Error() string   { return "i/o timeout" }
func (fakeTimeout) Timeout() bool   { return true }
func (fakeTimeout) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want Verdict
	}{
		{"plain error", errors.New("boom"), VerdictPermanent},
		{"deadline exceeded", context.DeadlineExceeded, VerdictTransient},
		{"net timeout", fakeTimeout{}, VerdictTransient},
		{"flood wait", &transport.Error{Code: 429, Description: "Too Many Requests"}, VerdictTransient},
		{"retry-after hint", &transport.Error{Code: 400, RetryAfter: 3 * time.Second}, VerdictTransient},
		{"server error", &transport.Error{Code: 502, Description: "Bad Gateway"}, VerdictTransient},
		{"unauthorized", &transport.Error{Code: 401, Description: "Unauthorized"}, VerdictDegrade},
		{"forbidden", &transport.Error{Code: 403, Description: "Forbidden"}, VerdictDegrade},
		{"kicked", &transport.Error{Code: 400, Description: "Bad Request: bot was kicked from the channel chat"}, VerdictDegrade},
		{"no rights", &transport.Error{Code: 400, Description: "Bad Request: have no rights to send a message"}, VerdictDegrade},
		{"wrong file id", &transport.Error{Code: 400, Description: "Bad Request: wrong file identifier/HTTP URL specified"}, VerdictStale},
		{"file reference expired", &transport.Error{Code: 400, Description: "Bad Request: file reference expired"}, VerdictStale},
		{"generic bad request", &transport.Error{Code: 400, Description: "Bad Request: message caption is too long"}, VerdictPermanent},
		{"chat not found", &transport.Error{Code: 400, Description: "Bad Request: chat not found"}, VerdictPermanent},
		{"wrapped transport error", fmt.Errorf("sending: %w", &transport.Error{Code: 429}), VerdictTransient},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Fatalf("Classify(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassifyUnknownDefaultsToPermanent(t *testing.T) {
	t.Parallel()
	// A verdict the switch has never seen must not retry forever.
	if got := Classify(errors.New("entirely novel failure mode")); got != VerdictPermanent {
		t.Fatalf("unknown error classified %s, want permanent", got)
	}
}
