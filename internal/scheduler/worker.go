package scheduler

import (
	"context"
	"time"

	logx "postbot/pkg/logx"
)

func (s *Service) worker(ctx context.Context, idx int) {
	log := s.log.With(logx.Int("worker", idx))
	for {
		// Fast-exit check so cancellation wins over queued work.
		select {
		case <-ctx.Done():
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case p := <-s.queue:
			start := time.Now()
			// Errors are terminal per post and already recorded by the
			// engine; they must never stop the worker.
			if err := s.engine.Deliver(ctx, &p); err != nil {
				log.Debug("delivery pipeline finished with failure",
					logx.Int64("post_id", p.ID),
					logx.Duration("dur", time.Since(start)),
					logx.Err(err))
				continue
			}
			log.Debug("delivery pipeline finished",
				logx.Int64("post_id", p.ID),
				logx.Duration("dur", time.Since(start)))
		}
	}
}
