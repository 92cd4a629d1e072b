// Package app wires the services together: config, logging, transport,
// delivery, subscriptions, monitoring, scheduling and the HTTP surface.
// Construction is explicit; every collaborator is passed in, nothing is
// reached through globals.
package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"notibot/internal/config"
	"notibot/internal/httpapi"
	"notibot/internal/monitor"
	"notibot/internal/notify"
	"notibot/internal/retry"
	"notibot/internal/scheduler"
	"notibot/internal/storage"
	"notibot/internal/subscription"
	"notibot/internal/transport/telegram"
	logx "notibot/pkg/logx"
)

type App struct {
	cfgm     *config.Manager
	settings *config.Settings

	logSvc *logx.Service
	log    logx.Logger

	adapter  *telegram.Adapter
	store    storage.Store
	registry *subscription.Registry
	notifier *notify.Service
	monitor  *monitor.Service
	sched    *scheduler.Service
	api      *httpapi.Server
}

// New loads and resolves the config, then constructs every service.
// Config is read exactly once here; only the logging section is
// re-applied on file changes.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	settings, err := cfg.Resolve()
	if err != nil {
		return nil, fmt.Errorf("resolve config: %w", err)
	}

	// The logging service comes up first; the Telegram sink gets its
	// sender once the adapter exists.
	logSvc, log := logx.New(logConfig(settings.Logging), nil)
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	adapter, err := telegram.New(telegram.Config{
		Token:   settings.Telegram.Token,
		Timeout: settings.Telegram.Timeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, fmt.Errorf("telegram adapter: %w", err)
	}
	logSvc.SetSender(adapter)

	store, err := storage.Open(storage.Config{
		Driver:      settings.Storage.Driver,
		Path:        settings.Storage.Path,
		BusyTimeout: settings.Storage.BusyTimeout,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	exec := retry.New(retry.Config{
		MaxAttempts:    settings.Delivery.Retry.MaxAttempts,
		BaseDelay:      settings.Delivery.Retry.BaseDelay,
		ExpBase:        settings.Delivery.Retry.ExpBase,
		AttemptTimeout: settings.Delivery.Retry.AttemptTimeout,
	}, log.With(logx.String("comp", "retry")))

	notifier := notify.New(notify.Config{
		DefaultRecipients: settings.Delivery.DefaultRecipients,
		DefaultParseMode:  settings.Delivery.ParseMode,
		MaxMessageLen:     settings.Delivery.MaxMessageLen,
		RatePerSec:        settings.Delivery.RatePerSec,
	}, adapter, exec, store, log.With(logx.String("comp", "notify")))

	registry := subscription.NewRegistry(settings.SubscriptionsPath,
		log.With(logx.String("comp", "subscriptions")))

	mon := monitor.New(monitor.Config{
		Enabled:         settings.Monitor.Enabled,
		Interval:        settings.Monitor.Interval,
		CPUThreshold:    settings.Monitor.CPUThreshold,
		MemoryThreshold: settings.Monitor.MemoryThreshold,
		DiskThreshold:   settings.Monitor.DiskThreshold,
		AlertCooldown:   settings.Monitor.AlertCooldown,
		DiskPath:        settings.Monitor.DiskPath,
	}, notifier, registry, log.With(logx.String("comp", "monitor")))

	sched := scheduler.New(scheduler.Config{
		Enabled:     settings.Scheduler.Enabled,
		Workers:     settings.Scheduler.Workers,
		Timezone:    settings.Scheduler.Timezone,
		DefaultJobs: settings.Scheduler.DefaultJobs,
		JobTimeout:  settings.Scheduler.JobTimeout,
	}, notifier, registry, log.With(logx.String("comp", "scheduler")))
	sched.SetReportFunc(mon.SendSystemReport)

	var api *httpapi.Server
	if settings.HTTP.Enabled {
		api = httpapi.New(httpapi.Config{
			Addr:          settings.HTTP.Addr,
			Token:         settings.HTTP.Token,
			WebhookSecret: settings.HTTP.WebhookSecret,
			ReadTimeout:   settings.HTTP.ReadTimeout,
			WriteTimeout:  settings.HTTP.WriteTimeout,
			IdleTimeout:   settings.HTTP.IdleTimeout,
		}, notifier, registry, mon, sched, log.With(logx.String("comp", "httpapi")))
	}

	return &App{
		cfgm:     cfgm,
		settings: settings,
		logSvc:   logSvc,
		log:      log,
		adapter:  adapter,
		store:    store,
		registry: registry,
		notifier: notifier,
		monitor:  mon,
		sched:    sched,
		api:      api,
	}, nil
}

// Run starts everything and blocks until ctx is cancelled or a fatal
// service error occurs. Shutdown is graceful: monitor and scheduler
// drain before the transport goes away.
func (a *App) Run(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	connected := a.notifier.TestConnectivity(probeCtx)
	cancel()
	if !connected {
		a.log.Warn("startup connectivity probe failed, continuing anyway")
	}

	g, gctx := errgroup.WithContext(ctx)

	if a.settings.Monitor.Enabled {
		a.monitor.Start(gctx)
	}
	if a.sched.Enabled() {
		a.sched.Start(gctx)
	}

	if a.api != nil {
		g.Go(func() error { return a.api.Start(gctx) })
	}

	g.Go(func() error { return a.cfgm.Watch(gctx) })
	g.Go(func() error {
		a.reloadLoop(gctx)
		return nil
	})

	a.log.Info("started",
		logx.Bool("monitor", a.settings.Monitor.Enabled),
		logx.Bool("scheduler", a.sched.Enabled()),
		logx.Bool("http", a.api != nil),
		logx.Bool("storage", a.settings.Storage.Enabled))

	err := g.Wait()

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	a.sched.Stop(stopCtx)
	a.monitor.Stop(stopCtx)
	if a.store != nil {
		if cerr := a.store.Close(); cerr != nil {
			a.log.Warn("storage close failed", logx.Err(cerr))
		}
	}
	a.log.Info("stopped")
	_ = a.logSvc.Close()
	return err
}

// Notifier exposes the delivery service for embedding callers.
func (a *App) Notifier() *notify.Service { return a.notifier }

// reloadLoop re-applies the logging section on config file changes.
// Everything else stays as resolved at startup.
func (a *App) reloadLoop(ctx context.Context) {
	sub := a.cfgm.Subscribe(4)
	defer a.cfgm.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			a.logSvc.Apply(logConfig(cfg.Logging))
			a.log.Info("logging config re-applied",
				logx.String("level", cfg.Logging.Level))
		}
	}
}

func logConfig(lc config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File: logx.FileConfig{
			Enabled: lc.File.Enabled,
			Path:    lc.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    lc.Telegram.Enabled,
			ChatID:     lc.Telegram.ChatID,
			ThreadID:   lc.Telegram.ThreadID,
			MinLevel:   lc.Telegram.MinLevel,
			RatePerSec: lc.Telegram.RatePerSec,
		},
	}
}
