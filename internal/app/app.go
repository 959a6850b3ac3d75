package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"postbot/internal/config"
	"postbot/internal/delivery"
	"postbot/internal/eventbus"
	"postbot/internal/notify"
	"postbot/internal/observability/pprof"
	rtsup "postbot/internal/runtime/supervisor"
	"postbot/internal/scheduler"
	"postbot/internal/store"
	"postbot/internal/timeutil"
	"postbot/internal/transport"
	"postbot/internal/transport/telegram"
	logx "postbot/pkg/logx"
)

// App assembles the delivery pipeline: config, logging, store, the two
// transports, the delivery engine and the scheduler.
type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store *store.Store

	primary   *telegram.Adapter
	secondary *telegram.Adapter

	engine *delivery.Engine
	sched  *scheduler.Service
	pprof  *pprof.Service
}

// New loads configuration and secrets and constructs every component.
// Nothing is running yet when New returns; call Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, err := logx.NewService(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	if err != nil {
		return nil, err
	}
	log := logSvc.Logger().With(logx.String("comp", "app"))

	secrets, err := config.LoadSecrets(cfg.Transports.Secondary != nil)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(store.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: mustDuration(cfg.Storage.BusyTimeout),
	}, logSvc.Logger().With(logx.String("comp", "store")))
	if err != nil {
		return nil, err
	}

	primary, err := telegram.New(telegram.Config{
		Name:        "bot",
		Kind:        transport.KindBot,
		Token:       secrets.BotToken,
		APIURL:      cfg.Transports.Primary.APIURL,
		SizeCeiling: cfg.Transports.Primary.SizeCeiling,
		RatePerSec:  cfg.Transports.Primary.RatePerSec,
	}, logSvc.Logger().With(logx.String("comp", "telegram"), logx.String("transport", "bot")))
	if err != nil {
		return nil, err
	}

	var secondary *telegram.Adapter
	if sc := cfg.Transports.Secondary; sc != nil {
		secondary, err = telegram.New(telegram.Config{
			Name:        "user",
			Kind:        transport.KindUser,
			Token:       secrets.UserToken,
			APIURL:      sc.APIURL,
			SizeCeiling: sc.SizeCeiling,
			RatePerSec:  sc.RatePerSec,
		}, logSvc.Logger().With(logx.String("comp", "telegram"), logx.String("transport", "user")))
		if err != nil {
			return nil, err
		}
	}

	bus := eventbus.New()

	health := delivery.NewHealthBoard(mustDuration(cfg.Delivery.Cooldown))
	var secondaryClient transport.Client
	if secondary != nil {
		secondaryClient = secondary
	}
	selector := delivery.NewSelector(primary, secondaryClient, health)

	var notifier delivery.Notifier = notify.Nop()
	if cfg.Notify.Enabled {
		notifier = notify.NewTelegram(primary, cfg.Notify.RatePerSec,
			logSvc.Logger().With(logx.String("comp", "notify")))
	}

	armer := &lateArmer{}
	engine := delivery.NewEngine(delivery.EngineOptions{
		Store:    st,
		Selector: selector,
		Health:   health,
		Payloads: payloadSource{refresher: primary},
		Notifier: notifier,
		Armer:    armer,
		Bus:      bus,
		Log:      logSvc.Logger().With(logx.String("comp", "delivery")),
		Policy: delivery.RetryPolicy{
			MaxAttempts: cfg.Delivery.RetryMax,
			BaseDelay:   mustDuration(cfg.Delivery.RetryBase),
			MaxDelay:    mustDuration(cfg.Delivery.RetryMaxDelay),
		},
	})

	sched := scheduler.New(scheduler.Config{
		TickInterval: mustDuration(cfg.Scheduler.TickInterval),
		Workers:      cfg.Scheduler.Workers,
		QueueSize:    cfg.Scheduler.QueueSize,
		ClaimLimit:   cfg.Scheduler.ClaimLimit,
		StaleAfter:   mustDuration(cfg.Scheduler.StaleAfter),
	}, st, engine, primary, bus,
		logSvc.Logger().With(logx.String("comp", "scheduler")))
	armer.bind(sched)

	pprofSvc := pprof.New(pprof.Config{
		Enabled: cfg.Pprof.Enabled,
		Addr:    cfg.Pprof.Addr,
		Token:   cfg.Pprof.Token,
	}, logSvc.Logger().With(logx.String("comp", "pprof")))

	return &App{
		cfgPath:   cfgPath,
		cfgm:      cfgm,
		log:       log,
		logs:      logSvc,
		bus:       bus,
		store:     st,
		primary:   primary,
		secondary: secondary,
		engine:    engine,
		sched:     sched,
		pprof:     pprofSvc,
	}, nil
}

// Scheduler exposes the scheduler for front ends that accept user
// commands (manual trigger, cancellation).
func (a *App) Scheduler() *scheduler.Service { return a.sched }

// Store exposes the post store for front ends.
func (a *App) Store() *store.Store { return a.store }

// Bus exposes the in-process event stream.
func (a *App) Bus() eventbus.Bus { return a.bus }

// SchedulePost resolves the user's relative-day plus typed HH:MM choice
// into an absolute trigger in their zone and moves the draft to pending.
// Resolution happens exactly once, here; the scheduler only ever sees
// the absolute timestamp.
func (a *App) SchedulePost(ctx context.Context, postID, userID int64, day timeutil.RelativeDay, hhmm string) (time.Time, error) {
	tz, err := a.store.GetUserTimezone(ctx, userID)
	if err != nil {
		return time.Time{}, err
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		// A zone that no longer resolves should not strand the post.
		loc = time.UTC
	}
	now := time.Now()
	at, err := timeutil.ResolveTrigger(day, hhmm, loc, now)
	if err != nil {
		return time.Time{}, err
	}
	if err := a.store.SchedulePost(ctx, postID, at, now); err != nil {
		return time.Time{}, err
	}
	a.log.Info("post scheduled",
		logx.Int64("post_id", postID),
		logx.Time("trigger_at", at))
	return at, nil
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	if err := a.cfgm.Watch(a.sup.Context()); err != nil {
		// Hot reload is a convenience; the loaded config still stands.
		a.log.Warn("config watch unavailable", logx.Err(err))
	}

	// Hot-reload only touches logging. Pipeline knobs stay as loaded;
	// restart to change them.
	updates := a.cfgm.Subscribe(1)
	a.sup.Go("config-apply", func(ctx context.Context) error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case cfg, ok := <-updates:
				if !ok {
					return nil
				}
				if err := a.logs.Apply(logx.Config{
					Level:   cfg.Logging.Level,
					Console: cfg.Logging.Console,
					File: logx.FileConfig{
						Enabled: cfg.Logging.File.Enabled,
						Path:    cfg.Logging.File.Path,
					},
				}); err != nil {
					a.log.Warn("logging config not applied", logx.Err(err))
				}
			}
		}
	})

	if a.pprof.Enabled() {
		if err := a.pprof.Start(a.sup.Context()); err != nil {
			a.log.Warn("pprof not started", logx.Err(err))
		}
	}

	if err := a.sched.Start(a.sup.Context()); err != nil {
		return err
	}
	a.log.Info("started",
		logx.Bool("secondary_transport", a.secondary != nil),
		logx.String("config", a.cfgPath))
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	var firstErr error
	if a.pprof != nil {
		if err := a.pprof.Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.sched != nil {
		if err := a.sched.Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.sup != nil {
		if err := a.sup.Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return firstErr
}

// lateArmer breaks the construction cycle between the engine (which
// arms destruct timers) and the scheduler (which owns them).
type lateArmer struct {
	mu     sync.Mutex
	target delivery.DestructArmer
}

func (l *lateArmer) bind(t delivery.DestructArmer) {
	l.mu.Lock()
	l.target = t
	l.mu.Unlock()
}

func (l *lateArmer) Arm(postID int64, fireAt time.Time) {
	l.mu.Lock()
	t := l.target
	l.mu.Unlock()
	if t != nil {
		t.Arm(postID, fireAt)
	}
}

type fileRefresher interface {
	RefreshFile(ctx context.Context, fileID string) (string, int64, error)
}

// payloadSource refreshes a stale platform file handle through the
// primary transport. Text payloads never go stale.
type payloadSource struct {
	refresher fileRefresher
}

func (p payloadSource) Rebuild(ctx context.Context, post *store.Post) (string, int64, error) {
	if post.Type == store.ContentText {
		return "", 0, errors.New("app: text payload has no file handle to refresh")
	}
	return p.refresher.RefreshFile(ctx, post.Payload)
}

// mustDuration is only called on fields Config.Validate has already
// parsed; empty means zero and lets the component default apply.
func mustDuration(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	d, _ := time.ParseDuration(raw)
	return d
}
