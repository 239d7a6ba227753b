package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"leaguebot/internal/config"
	"leaguebot/internal/eventbus"
	"leaguebot/internal/league"
	"leaguebot/internal/notifier"
	"leaguebot/internal/observability/pprof"
	"leaguebot/internal/reminder"
	"leaguebot/internal/router"
	"leaguebot/internal/storage"
	"leaguebot/internal/transport"
	telegram "leaguebot/internal/transport/telegram"
	logx "leaguebot/pkg/logx"
)

// App wires the bot together: config, logging, storage, the reminder
// registry, the league poller, the command router and the delivery pipeline.
type App struct {
	cfgm *config.Manager

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store   storage.Store
	adapter *telegram.Adapter

	registry *reminder.Registry
	notif    *notifier.Service
	poller   *league.Poller
	routes   *router.Router
	pprof    *pprof.Service

	updates chan transport.Update

	mu      sync.Mutex
	runCtx  context.Context
	cancel  context.CancelFunc
	bgWG    sync.WaitGroup
	started bool
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logs, log := logx.New(mapLogging(cfg.Logging))
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	cfgm.SetValidator(validateConfig)

	bus := eventbus.New()

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, logs.Logger().With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, fmt.Errorf("telegram adapter: %w", err)
	}

	storeCfg, err := mapStorage(cfg.Storage)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storeCfg, logs.Logger().With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	notif := notifier.New(mapNotifier(cfg.Notifier), adapter, logs.Logger().With(logx.String("comp", "notifier")), bus)

	remCfg, defaultLead, err := mapReminders(cfg.Reminders)
	if err != nil {
		return nil, err
	}
	registry := reminder.NewRegistry(remCfg, store, notif.Deliver, logs.Logger().With(logx.String("comp", "reminder")), bus)

	poller := league.NewPoller(league.NewClient(0), registry, defaultLead, logs.Logger().With(logx.String("comp", "league")))
	routes := router.New(adapter, registry, notif, defaultLead, logs.Logger().With(logx.String("comp", "router")))
	pp := pprof.New(mapPprof(cfg.Pprof), logs.Logger().With(logx.String("comp", "pprof")))

	return &App{
		cfgm:     cfgm,
		log:      log,
		logs:     logs,
		bus:      bus,
		store:    store,
		adapter:  adapter,
		registry: registry,
		notif:    notif,
		poller:   poller,
		routes:   routes,
		pprof:    pp,
		updates:  make(chan transport.Update, 128),
	}, nil
}

// Start brings the bot up. Recovery runs to completion before the adapter
// starts delivering commands, so stored reminders are always re-armed before
// any new registration arrives.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return errors.New("app already started")
	}
	a.started = true
	a.runCtx, a.cancel = context.WithCancel(context.WithoutCancel(ctx))
	runCtx := a.runCtx
	a.mu.Unlock()

	cfg := a.cfgm.Get()

	rep, err := a.registry.Startup(runCtx)
	if err != nil {
		return fmt.Errorf("recovery: %w", err)
	}
	a.log.Info("reminders recovered", logx.Int("restored", rep.Restored), logx.Int("expired", rep.Expired))
	a.routes.SetStartupReport(rep.Restored, rep.Expired)

	a.notif.Start(runCtx)

	leagues, err := mapLeagues(cfg.Leagues)
	if err != nil {
		return err
	}
	if len(leagues) > 0 {
		if err := a.poller.Start(runCtx, leagues); err != nil {
			return fmt.Errorf("league poller: %w", err)
		}
	}

	if err := a.adapter.Start(runCtx, a.updates); err != nil {
		return fmt.Errorf("telegram start: %w", err)
	}
	if err := a.adapter.UpdateMenuCommands(runCtx, a.routes.Commands()); err != nil {
		a.log.Warn("menu update failed", logx.Err(err))
	}

	a.bgWG.Add(1)
	go func() {
		defer a.bgWG.Done()
		a.dispatchLoop(runCtx)
	}()

	a.bgWG.Add(1)
	go func() {
		defer a.bgWG.Done()
		_ = a.cfgm.Watch(runCtx)
	}()
	a.bgWG.Add(1)
	go func() {
		defer a.bgWG.Done()
		a.reloadLoop(runCtx)
	}()

	a.pprof.Start()

	// No-op outside systemd.
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	a.log.Info("leaguebot started")
	return nil
}

// Stop tears the bot down in reverse order: intake first, then the scheduler,
// then delivery, so queued sends still drain while nothing new arrives.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.started {
		a.mu.Unlock()
		return nil
	}
	a.started = false
	cancel := a.cancel
	a.mu.Unlock()

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	a.poller.Stop(ctx)
	_ = a.adapter.Stop(ctx)

	a.registry.Stop(ctx)
	a.notif.Stop(ctx)
	a.pprof.Stop(ctx)

	if cancel != nil {
		cancel()
	}
	done := make(chan struct{})
	go func() {
		a.bgWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}

	if err := a.store.Close(); err != nil {
		a.log.Warn("store close failed", logx.Err(err))
	}
	a.log.Info("leaguebot stopped")
	_ = a.logs.Close()
	return nil
}

func (a *App) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case up := <-a.updates:
			a.routes.HandleUpdate(ctx, up)
		}
	}
}

// reloadLoop applies hot-reloadable config sections. Sections that need a
// process restart (telegram token, storage driver, league set) are logged and
// left alone.
func (a *App) reloadLoop(ctx context.Context) {
	sub := a.cfgm.Subscribe(1)
	defer a.cfgm.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok || cfg == nil {
				return
			}
			a.logs.Apply(mapLogging(cfg.Logging))
			a.notif.Apply(mapNotifier(cfg.Notifier))
			a.pprof.Reconfigure(ctx, mapPprof(cfg.Pprof))
			a.log.Info("config applied",
				logx.String("level", cfg.Logging.Level),
			)
		}
	}
}
