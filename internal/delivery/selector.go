package delivery

import (
	"errors"
	"time"

	"postbot/internal/transport"
)

// ErrNoTransport means no healthy transport can carry the payload.
// Classified permanent: waiting out a cool-down inside a send attempt
// would stall the worker for unrelated posts.
var ErrNoTransport = errors.New("delivery: no transport available")

// Selector picks the transport for one send attempt.
//
// The primary is always registered; the secondary only when a user
// session is configured. Health state lives on the shared board.
type Selector struct {
	primary   transport.Client
	secondary transport.Client // nil when no user session is active
	health    *HealthBoard
}

func NewSelector(primary, secondary transport.Client, health *HealthBoard) *Selector {
	return &Selector{primary: primary, secondary: secondary, health: health}
}

// Pick resolves the transport for a payload of the given size.
//
// Rules, in order:
//  1. Payload above the primary ceiling: only a healthy secondary that
//     can carry it will do.
//  2. Otherwise prefer a healthy primary.
//  3. Fall back to a healthy secondary when the primary is degraded.
func (s *Selector) Pick(size int64, now time.Time) (transport.Client, error) {
	primaryOK := s.health.Healthy(s.primary.Name(), now)
	secondaryOK := s.secondary != nil && s.health.Healthy(s.secondary.Name(), now)

	if size > s.primary.SizeCeiling() {
		if secondaryOK && size <= s.secondary.SizeCeiling() {
			return s.secondary, nil
		}
		return nil, ErrNoTransport
	}
	if primaryOK {
		return s.primary, nil
	}
	if secondaryOK {
		return s.secondary, nil
	}
	return nil, ErrNoTransport
}

// Primary exposes the always-available transport; the scheduler uses it
// for best-effort message deletion.
func (s *Selector) Primary() transport.Client { return s.primary }
