// Package app wires configuration, storage, the Telegram transport, the
// broadcast engines and housekeeping into one supervised process.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"castbot/internal/bot"
	"castbot/internal/broadcast"
	"castbot/internal/config"
	"castbot/internal/eventbus"
	rtsup "castbot/internal/runtime/supervisor"
	"castbot/internal/runtime/systemd"
	"castbot/internal/storage"
	"castbot/internal/task/scheduler"
	kit "castbot/internal/transport"
	telegram "castbot/internal/transport/telegram/adapter"
	"castbot/internal/transport/telegram/router"
	logx "castbot/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter *telegram.Adapter
	guard   *broadcast.Guard
	engine  *broadcast.Engine
	recall  *broadcast.Recaller
	router  *router.Router
	bot     *bot.Bot
	sched   *scheduler.Service
	sd      *systemd.Notifier

	updates chan kit.Update
}

// New loads the config and builds every component. Nothing runs until Start.
func New(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	// telegram logging needs the target before it is enabled, or Apply warns
	logCfg := mapLogConfig(cfg)
	bootCfg := logCfg
	bootCfg.Telegram.Enabled = false
	logSvc, root := logx.New(bootCfg, nil)
	logSvc.SetTelegramTarget(groupLogChat(cfg), cfg.Logging.Telegram.ThreadID)
	log := root.With(logx.String("comp", "app"))

	sc, err := StorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(ctx, sc, root.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	pt, err := pollTimeout(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token, PollTimeout: pt}, root.With(logx.String("comp", "telegram")))
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	logSvc.SetSender(ad)
	logSvc.Apply(logCfg)

	bcfg, err := mapBroadcastConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	bus := eventbus.New()
	guard := broadcast.NewGuard()
	opts := []broadcast.Option{broadcast.WithBus(bus), broadcast.WithLogger(root)}

	a := &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		adapter: ad,
		guard:   guard,
		engine:  broadcast.NewEngine(guard, store, ad, bcfg, opts...),
		recall:  broadcast.NewRecaller(guard, store, ad, bcfg.RecallInterval, opts...),
		router:  router.New(root, ad, cfg.Telegram.OwnerUserIDs),
		sched:   scheduler.New(mapSchedulerConfig(cfg), root),
		sd:      systemd.New(root),
		updates: make(chan kit.Update, 256),
	}
	if err := a.registerHousekeeping(cfg); err != nil {
		_ = store.Close()
		return nil, err
	}
	log.Info("app built", logx.String("storage", store.Driver()), logx.Int("owners", len(cfg.Telegram.OwnerUserIDs)))
	return a, nil
}

// Done is closed when the app context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	run := a.sup.Context()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if err := config.Validate(cfg); err != nil {
			return err
		}
		if _, err := mapBroadcastConfig(cfg); err != nil {
			return err
		}
		for _, spec := range []string{cfg.Housekeeping.PruneSpec, cfg.Housekeeping.StatsReportSpec} {
			if strings.TrimSpace(spec) == "" {
				continue
			}
			if _, err := scheduler.ParseSchedule(spec); err != nil {
				return err
			}
		}
		return nil
	})

	if err := a.engine.Start(run); err != nil {
		return err
	}

	cfg := a.cfgm.Get()
	a.bot = bot.New(bot.Deps{
		Store:    a.store,
		Engine:   a.engine,
		Recaller: a.recall,
		Runner:   a.sup,
		Log:      a.log,
	}, cfg.Telegram.WebAppURL)
	a.router.SetObserver(a.bot.Observe)
	a.router.SetRegistry(run, a.bot.Commands(), a.bot.Callbacks())

	if err := a.adapter.Start(run, a.updates); err != nil {
		return err
	}
	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})

	a.sched.Start(run)
	a.startEventLog()
	a.startConfigReload()
	a.sup.Go("config.watch", a.cfgm.Watch)
	a.sup.Go0("systemd.watchdog", a.sd.Watchdog)

	a.sd.Ready()
	a.sd.Status("idle")
	a.log.Info("app started")
	return nil
}

// startEventLog mirrors broadcast events into the debug log and the
// systemd status line.
func (a *App) startEventLog() {
	events, unsub := a.bus.Subscribe(64)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Any("data", e.Data))
				switch e.Type {
				case broadcast.EventStarted:
					a.sd.Status("broadcasting")
				case broadcast.EventCheckpoint:
					if d, ok := e.Data.(broadcast.EventData); ok {
						a.sd.Status(fmt.Sprintf("broadcasting, checkpoint %d", d.Offset))
					}
				case broadcast.EventFinished, broadcast.EventRecallFinished:
					a.sd.Status("idle")
				}
			}
		}
	})
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sd.Stopping()
	a.sup.Cancel()

	// the engine stores its checkpoint on the way out, so it stops before storage
	a.step(ctx, "scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	a.step(ctx, "broadcast", 6*time.Second, a.engine.Stop)
	a.step(ctx, "adapter", 3*time.Second, a.adapter.Stop)
	a.step(ctx, "supervisor", 3*time.Second, a.sup.Wait)
	a.step(ctx, "storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	return a.logs.Close()
}

// step runs one shutdown step bounded by max and the caller's deadline. A
// step that overruns is logged and left behind.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	sctx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(sctx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-sctx.Done():
		a.log.Warn("stop step deadline reached, continuing", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
	}
}
