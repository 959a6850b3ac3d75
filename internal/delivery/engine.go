package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"postbot/internal/eventbus"
	"postbot/internal/store"
	"postbot/internal/transport"
	logx "postbot/pkg/logx"
)

// Store is the slice of the post store the engine mutates.
type Store interface {
	GetChannel(ctx context.Context, userID, channelID int64) (*store.Channel, error)
	MarkSent(ctx context.Context, id int64, token string, messageID int64, now time.Time) error
	UpdateStatus(ctx context.Context, id int64, to store.Status, lastErr string) error
	ArmDestruction(ctx context.Context, postID int64, fireAt time.Time) error
	UpdatePayload(ctx context.Context, id int64, payload string, size int64) error
}

// PayloadSource re-supplies the original payload when the platform
// rejects a stale file handle.
type PayloadSource interface {
	Rebuild(ctx context.Context, p *store.Post) (payload string, size int64, err error)
}

// DestructArmer arms the in-process one-shot deletion timer after a
// successful send. Implemented by the scheduler.
type DestructArmer interface {
	Arm(postID int64, fireAt time.Time)
}

// Notifier receives the terminal outcome of a post for user display.
// It must not block and has no say in delivery decisions.
type Notifier interface {
	Notify(ctx context.Context, p *store.Post, status store.Status, err error)
}

// Event payloads published on the bus.
const (
	EventPostSent        = "post.sent"
	EventPostFailed      = "post.failed"
	EventPostSelfDeleted = "post.self_deleted"
)

type PostEvent struct {
	PostID    int64  `json:"post_id"`
	UserID    int64  `json:"user_id"`
	ChannelID int64  `json:"channel_id"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

// EngineOptions wires the engine's collaborators.
type EngineOptions struct {
	Store    Store
	Selector *Selector
	Health   *HealthBoard
	Payloads PayloadSource
	Notifier Notifier
	Armer    DestructArmer
	Bus      eventbus.Bus
	Log      logx.Logger
	Policy   RetryPolicy
	Now      func() time.Time
}

// Engine orchestrates one post's delivery: channel resolution, transport
// selection, the bounded retry loop, the store transition and follow-up
// destruct arming.
//
// It is the only component that mutates both post state and transport
// health from one code path.
type Engine struct {
	store    Store
	selector *Selector
	health   *HealthBoard
	payloads PayloadSource
	notifier Notifier
	armer    DestructArmer
	bus      eventbus.Bus
	log      logx.Logger
	policy   RetryPolicy
	now      func() time.Time
}

func NewEngine(o EngineOptions) *Engine {
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Log.IsZero() {
		o.Log = logx.Nop()
	}
	return &Engine{
		store:    o.Store,
		selector: o.Selector,
		health:   o.Health,
		payloads: o.Payloads,
		notifier: o.Notifier,
		armer:    o.Armer,
		bus:      o.Bus,
		log:      o.Log,
		policy:   o.Policy,
		now:      o.Now,
	}
}

// Deliver sends one claimed post to its channel and records the outcome.
// The post must be in_flight with its claim token set.
func (e *Engine) Deliver(ctx context.Context, p *store.Post) error {
	log := e.log.With(
		logx.Int64("post_id", p.ID),
		logx.Int64("user_id", p.UserID),
		logx.Int64("channel_id", p.ChannelID))

	ch, err := e.store.GetChannel(ctx, p.UserID, p.ChannelID)
	if err != nil {
		err = fmt.Errorf("resolving channel: %w", err)
		e.fail(ctx, log, p, err)
		return err
	}

	content := contentFor(p, ch, log)
	target := transport.Target{ChatID: ch.ChannelID}

	ref, err := e.execute(ctx, log, execution{
		resolve: func(now time.Time) (transport.Client, error) {
			return e.selector.Pick(content.Size, now)
		},
		send: func(ctx context.Context, c transport.Client) (transport.MessageRef, error) {
			return c.Send(ctx, target, content)
		},
		rebuild: func(ctx context.Context) error {
			payload, size, err := e.payloads.Rebuild(ctx, p)
			if err != nil {
				return err
			}
			content.Payload = payload
			content.Size = size
			// Persist the fresh handle so a later run starts from it too.
			return e.store.UpdatePayload(ctx, p.ID, payload, size)
		},
		degraded: func(name string, now time.Time) {
			log.Warn("transport degraded", logx.String("transport", name))
			e.health.Degrade(name, now)
		},
	})
	if err != nil {
		e.fail(ctx, log, p, err)
		return err
	}

	if err := e.store.MarkSent(ctx, p.ID, p.ClaimToken, int64(ref.MessageID), e.now()); err != nil {
		// The send went out but we lost the race to record it (or the
		// claim was released as stale). Do not notify: the winning path
		// owns the user-visible outcome.
		log.Error("recording sent status failed", logx.Err(err))
		return err
	}
	p.Status = store.StatusSent
	p.MessageID = int64(ref.MessageID)
	log.Info("post delivered", logx.Int("message_id", ref.MessageID))

	if p.DestructSeconds > 0 {
		fireAt := e.now().Add(time.Duration(p.DestructSeconds) * time.Second)
		if err := e.store.ArmDestruction(ctx, p.ID, fireAt); err != nil {
			// Best effort: the post stays sent forever, which is an
			// accepted degradation.
			log.Warn("arming self-destruct failed", logx.Err(err))
		} else if e.armer != nil {
			e.armer.Arm(p.ID, fireAt)
		}
	}

	e.publish(EventPostSent, p, nil)
	if e.notifier != nil {
		e.notifier.Notify(ctx, p, store.StatusSent, nil)
	}
	return nil
}

func (e *Engine) fail(ctx context.Context, log logx.Logger, p *store.Post, cause error) {
	log.Warn("post failed", logx.Err(cause))
	if err := e.store.UpdateStatus(ctx, p.ID, store.StatusFailed, cause.Error()); err != nil {
		log.Error("recording failed status failed", logx.Err(err))
	}
	p.Status = store.StatusFailed
	p.LastError = cause.Error()
	e.publish(EventPostFailed, p, cause)
	if e.notifier != nil {
		e.notifier.Notify(ctx, p, store.StatusFailed, cause)
	}
}

func (e *Engine) publish(typ string, p *store.Post, cause error) {
	if e.bus == nil {
		return
	}
	ev := PostEvent{
		PostID:    p.ID,
		UserID:    p.UserID,
		ChannelID: p.ChannelID,
		Status:    string(p.Status),
	}
	if cause != nil {
		ev.Error = cause.Error()
	}
	e.bus.Publish(eventbus.Event{Type: typ, Time: e.now(), Data: ev})
}

func contentFor(p *store.Post, ch *store.Channel, log logx.Logger) transport.Content {
	c := transport.Content{
		Type:    string(p.Type),
		Payload: p.Payload,
		Caption: p.Caption,
		Size:    p.PayloadSize,
	}
	// Videos and documents carry the channel's branded thumbnail if one
	// has been stored.
	if p.Type == store.ContentVideo || p.Type == store.ContentDocument {
		c.Thumb = ch.Thumbnail
	}
	if p.Buttons != "" {
		var btns []transport.Button
		if err := json.Unmarshal([]byte(p.Buttons), &btns); err != nil {
			log.Warn("dropping malformed button set", logx.Err(err))
		} else {
			c.Buttons = btns
		}
	}
	return c
}
