package delivery

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"postbot/internal/transport"
	logx "postbot/pkg/logx"
)

// RetryPolicy bounds one logical send.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64 // 0.2 = 20%
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	if p.Jitter <= 0 {
		p.Jitter = 0.2
	}
	return p
}

// execution is one logical send broken into the hooks the retry loop
// needs: transport resolution happens per attempt so a degrade verdict
// can reroute the next attempt.
type execution struct {
	resolve  func(now time.Time) (transport.Client, error)
	send     func(ctx context.Context, c transport.Client) (transport.MessageRef, error)
	rebuild  func(ctx context.Context) error
	degraded func(name string, now time.Time)
}

// execute runs the bounded attempt loop. Re-entrant: all state is local,
// so posts retry independently and concurrently.
func (e *Engine) execute(ctx context.Context, log logx.Logger, ex execution) (transport.MessageRef, error) {
	policy := e.policy.withDefaults()
	var lastErr error

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		client, err := ex.resolve(e.now())
		if err != nil {
			if lastErr != nil {
				return transport.MessageRef{}, fmt.Errorf("%w (last failure: %v)", err, lastErr)
			}
			return transport.MessageRef{}, err
		}

		ref, err := ex.send(ctx, client)
		if err == nil {
			return ref, nil
		}
		lastErr = err

		verdict := Classify(err)
		log.Debug("send attempt failed",
			logx.Int("attempt", attempt),
			logx.String("transport", client.Name()),
			logx.String("verdict", verdict.String()),
			logx.Err(err))

		switch verdict {
		case VerdictPermanent:
			return transport.MessageRef{}, err

		case VerdictDegrade:
			if ex.degraded != nil {
				ex.degraded(client.Name(), e.now())
			}
			// Next attempt re-resolves; no backoff needed, the failure
			// was not load related.

		case VerdictStale:
			if ex.rebuild == nil {
				return transport.MessageRef{}, err
			}
			if rerr := ex.rebuild(ctx); rerr != nil {
				return transport.MessageRef{}, fmt.Errorf("rebuilding stale payload: %w", rerr)
			}

		case VerdictTransient:
			if attempt >= policy.MaxAttempts {
				break
			}
			delay := backoffDelay(policy, attempt, err)
			if delay > 0 {
				tmr := time.NewTimer(delay)
				select {
				case <-ctx.Done():
					if !tmr.Stop() {
						<-tmr.C
					}
					return transport.MessageRef{}, ctx.Err()
				case <-tmr.C:
				}
			}
		}
	}

	return transport.MessageRef{}, fmt.Errorf("delivery failed after %d attempts: %w", policy.MaxAttempts, lastErr)
}

// backoffDelay computes the sleep before the next attempt: exponential
// from base with a cap, honoring an explicit platform retry-after hint
// when present, jittered either way to avoid thundering herds.
func backoffDelay(p RetryPolicy, attempt int, err error) time.Duration {
	d := p.BaseDelay
	var te *transport.Error
	if errors.As(err, &te) && te.RetryAfter > 0 {
		d = te.RetryAfter
	} else {
		for i := 1; i < attempt; i++ {
			d *= 2
			if d >= p.MaxDelay {
				break
			}
		}
	}
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter > 0 && d > 0 {
		r := (rand.Float64()*2 - 1) * p.Jitter
		d = time.Duration(float64(d) * (1 + r))
		if d < 0 {
			d = 0
		}
	}
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}
