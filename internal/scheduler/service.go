package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/robfig/cron/v3"

	"postbot/internal/eventbus"
	rtsup "postbot/internal/runtime/supervisor"
	"postbot/internal/store"
	"postbot/internal/transport"
	logx "postbot/pkg/logx"
)

// Store is the slice of the post store the scheduler drives.
type Store interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]store.Post, error)
	Claim(ctx context.Context, id int64, token string, now time.Time) (bool, error)
	GetPost(ctx context.Context, id int64) (*store.Post, error)
	GetChannel(ctx context.Context, userID, channelID int64) (*store.Channel, error)
	ReleaseStale(ctx context.Context, now time.Time, maxAge time.Duration) (int64, error)
	ListDestructions(ctx context.Context) ([]store.Destruction, error)
	CompleteDestruction(ctx context.Context, postID int64) error
	DropDestruction(ctx context.Context, postID int64) error
	ResetQuotas(ctx context.Context, day string) (int64, error)
}

// Deliverer runs one claimed post through the delivery pipeline.
type Deliverer interface {
	Deliver(ctx context.Context, p *store.Post) error
}

// Deleter removes an already-delivered message. Self-destruct only needs
// this one call.
type Deleter interface {
	Delete(ctx context.Context, ref transport.MessageRef) error
}

type Config struct {
	TickInterval time.Duration // due-post scan period; default 3s
	Workers      int           // concurrent delivery pipelines; default 4
	QueueSize    int           // claimed posts waiting for a worker; default 64
	ClaimLimit   int           // max claims per tick; default 32
	StaleAfter   time.Duration // in_flight older than this is abandoned; default 5m
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = 3 * time.Second
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.ClaimLimit <= 0 {
		c.ClaimLimit = 32
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 5 * time.Minute
	}
	return c
}

// ErrAlreadyClaimed is returned by TriggerNow when a concurrent tick won
// the claim. Not a failure: the post is being delivered either way.
var ErrAlreadyClaimed = errors.New("scheduler: post already claimed")

// ErrNotPending is returned by TriggerNow for posts that cannot be
// claimed at all (draft, sent, failed, cancelled).
var ErrNotPending = errors.New("scheduler: post is not pending")

// Service scans for due posts, claims them and feeds the worker pool.
// It also owns the one-shot self-destruct timers.
type Service struct {
	cfg     Config
	store   Store
	engine  Deliverer
	deleter Deleter
	bus     eventbus.Bus
	log     logx.Logger
	now     func() time.Time

	mu      sync.Mutex
	running bool
	queue   chan store.Post
	cron    *cron.Cron
	sup     *rtsup.Supervisor

	timersMu sync.Mutex
	timers   map[int64]*time.Timer
}

func New(cfg Config, st Store, engine Deliverer, deleter Deleter, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:     cfg.withDefaults(),
		store:   st,
		engine:  engine,
		deleter: deleter,
		bus:     bus,
		log:     log,
		now:     time.Now,
		timers:  map[int64]*time.Timer{},
	}
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log))
	s.queue = make(chan store.Post, s.cfg.QueueSize)

	for i := 0; i < s.cfg.Workers; i++ {
		idx := i
		s.sup.Go(fmt.Sprintf("delivery-worker-%d", idx), func(ctx context.Context) error {
			s.worker(ctx, idx)
			return nil
		})
	}

	s.cron = cron.New()
	if _, err := s.cron.AddFunc("@every "+s.cfg.TickInterval.String(), func() {
		s.scanOnce(s.sup.Context())
	}); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc("@every 1m", func() {
		s.sweepStale(s.sup.Context())
	}); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc("@midnight", func() {
		s.resetQuotas(s.sup.Context())
	}); err != nil {
		return err
	}
	s.cron.Start()

	if err := s.rearmDestructions(ctx); err != nil {
		s.log.Warn("re-arming destruct timers failed", logx.Err(err))
	}

	s.running = true
	s.log.Info("scheduler started",
		logx.Duration("tick", s.cfg.TickInterval),
		logx.Int("workers", s.cfg.Workers))
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cronStop := s.cron.Stop()
	sup := s.sup
	s.mu.Unlock()

	// Let in-flight cron callbacks finish before tearing down workers.
	select {
	case <-cronStop.Done():
	case <-ctx.Done():
	}

	s.timersMu.Lock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	s.timersMu.Unlock()

	return sup.Stop(ctx)
}

// scanOnce claims due posts in trigger-time order and hands them to the
// worker pool. A lost claim (concurrent tick, manual send-now) is not an
// error; the post is simply skipped this tick.
func (s *Service) scanOnce(ctx context.Context) {
	now := s.now()
	due, err := s.store.ListDue(ctx, now, s.cfg.ClaimLimit)
	if err != nil {
		s.log.Warn("listing due posts failed", logx.Err(err))
		return
	}
	for i := range due {
		p := due[i]
		if len(s.queue) == cap(s.queue) {
			// Workers are saturated; leave the rest pending for the next
			// tick rather than claiming posts we cannot start.
			s.log.Debug("delivery queue full, deferring", logx.Int("deferred", len(due)-i))
			return
		}
		claimed, err := s.claim(ctx, &p, now)
		if err != nil {
			s.log.Warn("claim failed", logx.Int64("post_id", p.ID), logx.Err(err))
			continue
		}
		if !claimed {
			continue
		}
		select {
		case s.queue <- p:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Service) claim(ctx context.Context, p *store.Post, now time.Time) (bool, error) {
	token, err := gonanoid.New()
	if err != nil {
		return false, err
	}
	ok, err := s.store.Claim(ctx, p.ID, token, now)
	if err != nil || !ok {
		return false, err
	}
	p.Status = store.StatusInFlight
	p.ClaimToken = token
	p.ClaimedAt = now
	return true, nil
}

// TriggerNow claims a pending post out of band (manual "send now") and
// feeds it to the pool ahead of the next tick.
func (s *Service) TriggerNow(ctx context.Context, postID int64) error {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running {
		return errors.New("scheduler: not running")
	}

	p, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return err
	}
	switch p.Status {
	case store.StatusPending:
	case store.StatusInFlight:
		return ErrAlreadyClaimed
	default:
		return fmt.Errorf("%w: status is %s", ErrNotPending, p.Status)
	}
	claimed, err := s.claim(ctx, p, s.now())
	if err != nil {
		return err
	}
	if !claimed {
		return ErrAlreadyClaimed
	}
	select {
	case s.queue <- *p:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) sweepStale(ctx context.Context) {
	n, err := s.store.ReleaseStale(ctx, s.now(), s.cfg.StaleAfter)
	if err != nil {
		s.log.Warn("stale sweep failed", logx.Err(err))
		return
	}
	if n > 0 {
		s.log.Info("released abandoned in-flight posts", logx.Int64("count", n))
	}
}

func (s *Service) resetQuotas(ctx context.Context) {
	day := s.now().UTC().Format("2006-01-02")
	n, err := s.store.ResetQuotas(ctx, day)
	if err != nil {
		s.log.Warn("quota reset failed", logx.Err(err))
		return
	}
	s.log.Debug("daily quotas reset", logx.Int64("users", n))
}
