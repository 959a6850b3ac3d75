package scheduler

import (
	"context"
	"errors"
	"time"

	"postbot/internal/delivery"
	"postbot/internal/eventbus"
	"postbot/internal/store"
	"postbot/internal/transport"
	logx "postbot/pkg/logx"
)

// Arm schedules the one-shot self-deletion for a delivered post. The
// persisted destructions row is written by the engine before this call;
// the in-process timer is the best-effort half.
func (s *Service) Arm(postID int64, fireAt time.Time) {
	delay := time.Until(fireAt)
	if delay < 0 {
		delay = 0
	}

	s.timersMu.Lock()
	defer s.timersMu.Unlock()
	if old, ok := s.timers[postID]; ok {
		old.Stop()
	}
	s.timers[postID] = time.AfterFunc(delay, func() {
		s.timersMu.Lock()
		delete(s.timers, postID)
		s.timersMu.Unlock()
		s.destruct(postID)
	})
	s.log.Debug("self-destruct armed",
		logx.Int64("post_id", postID),
		logx.Time("fire_at", fireAt))
}

// rearmDestructions restores timers persisted before the last shutdown.
// Already-overdue entries fire immediately.
func (s *Service) rearmDestructions(ctx context.Context) error {
	armed, err := s.store.ListDestructions(ctx)
	if err != nil {
		return err
	}
	for _, d := range armed {
		s.Arm(d.PostID, d.FireAt)
	}
	if len(armed) > 0 {
		s.log.Info("re-armed persisted self-destruct timers", logx.Int("count", len(armed)))
	}
	return nil
}

func (s *Service) destruct(postID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	log := s.log.With(logx.Int64("post_id", postID))

	p, err := s.store.GetPost(ctx, postID)
	if errors.Is(err, store.ErrNotFound) {
		_ = s.store.DropDestruction(ctx, postID)
		return
	}
	if err != nil {
		log.Warn("loading post for self-destruct failed", logx.Err(err))
		return
	}
	if p.Status != store.StatusSent || p.MessageID == 0 {
		_ = s.store.DropDestruction(ctx, postID)
		return
	}

	ch, err := s.store.GetChannel(ctx, p.UserID, p.ChannelID)
	if err != nil {
		log.Warn("resolving channel for self-destruct failed", logx.Err(err))
		_ = s.store.DropDestruction(ctx, postID)
		return
	}

	ref := transport.MessageRef{ChatID: ch.ChannelID, MessageID: int(p.MessageID)}
	if err := s.deleter.Delete(ctx, ref); err != nil {
		// Best effort: the message may be gone already, or the platform
		// may refuse. Either way the post is marked so we don't retry
		// forever.
		log.Debug("platform delete failed", logx.Err(err))
	}
	if err := s.store.CompleteDestruction(ctx, postID); err != nil {
		log.Warn("completing self-destruct failed", logx.Err(err))
		return
	}
	log.Info("post self-deleted")
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{
			Type: delivery.EventPostSelfDeleted,
			Time: s.now(),
			Data: delivery.PostEvent{
				PostID:    p.ID,
				UserID:    p.UserID,
				ChannelID: p.ChannelID,
				Status:    string(store.StatusSelfDeleted),
			},
		})
	}
}
