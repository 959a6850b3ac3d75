package delivery

import (
	"testing"
	"time"

	"postbot/internal/transport"
)

func TestBackoffDelay(t *testing.T) {
	t.Parallel()
	// Jitter disabled so the schedule is exact.
	p := RetryPolicy{BaseDelay: time.Second, MaxDelay: 10 * time.Second}

	tests := []struct {
		name    string
		attempt int
		err     error
		want    time.Duration
	}{
		{"first attempt", 1, &transport.Error{Code: 500}, time.Second},
		{"second attempt doubles", 2, &transport.Error{Code: 500}, 2 * time.Second},
		{"third attempt doubles again", 3, &transport.Error{Code: 500}, 4 * time.Second},
		{"capped at max", 6, &transport.Error{Code: 500}, 10 * time.Second},
		{"platform hint wins", 1, &transport.Error{Code: 429, RetryAfter: 7 * time.Second}, 7 * time.Second},
		{"platform hint capped", 1, &transport.Error{Code: 429, RetryAfter: time.Minute}, 10 * time.Second},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := backoffDelay(p, tt.attempt, tt.err); got != tt.want {
				t.Fatalf("backoffDelay(attempt=%d) = %v, want %v", tt.attempt, got, tt.want)
			}
		})
	}
}

func TestBackoffDelayJitterBounds(t *testing.T) {
	t.Parallel()
	p := RetryPolicy{BaseDelay: time.Second, MaxDelay: 30 * time.Second, Jitter: 0.2}
	for i := 0; i < 100; i++ {
		d := backoffDelay(p, 1, &transport.Error{Code: 500})
		if d < 800*time.Millisecond || d > 1200*time.Millisecond {
			t.Fatalf("jittered delay %v outside [800ms, 1200ms]", d)
		}
	}
}
