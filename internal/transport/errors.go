package transport

import (
	"fmt"
	"time"
)

// Error is the structured failure every Client must surface.
//
// Code and Description come straight from the platform API; RetryAfter is
// non-zero when the platform told us to back off (flood control).
type Error struct {
	Transport   string // client name
	Op          string // "send", "delete", ...
	Code        int
	Description string
	RetryAfter  time.Duration

	Err error
}

func (e *Error) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("%s %s: [%d] %s", e.Transport, e.Op, e.Code, e.Description)
	}
	return fmt.Sprintf("%s %s: %v", e.Transport, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// RetryAfterHint returns the platform-provided backoff, if any.
func (e *Error) RetryAfterHint() time.Duration { return e.RetryAfter }
