// Package app wires the daemon together: config, logging, storage,
// portal client, webhook sink, watch runner, and the scheduler.
package app

import (
	"context"
	"strings"
	"sync"
	"time"

	"manawatch/internal/config"
	"manawatch/internal/pacer"
	"manawatch/internal/portal"
	"manawatch/internal/services/scheduler"
	"manawatch/internal/sink"
	"manawatch/internal/storage"
	"manawatch/internal/watch"
	logx "manawatch/pkg/logx"
)

// watchTask is the scheduler identity of the pipeline tick. Re-using
// the same name on reconfiguration replaces the schedule instead of
// duplicating it.
const watchTask = "notice-watch"

type App struct {
	cfgm *config.Manager

	logs  *logx.Service
	log   logx.Logger
	store storage.Store

	portal *portal.Client
	sink   *sink.Webhook
	runner *watch.Runner
	sched  *scheduler.Service

	cfgCh  chan *config.Config
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	chunkDelay, err := config.ParseDurationOrDefault("watcher.chunk_delay", cfg.Watcher.ChunkDelay, time.Second)
	if err != nil {
		return nil, err
	}
	maxLen := cfg.Watcher.MaxMessageLen
	if maxLen == 0 {
		maxLen = sink.DefaultMaxLen
	}

	// The sink doubles as the logx webhook poster, so it is built with
	// a bootstrap console logger before the log service exists.
	wh := sink.NewWebhook(
		logx.NewConsole(cfg.Logging.Level).With(logx.String("comp", "sink")),
		sink.WithMaxLen(maxLen),
		sink.WithPacer(pacer.Fixed(chunkDelay)),
	)

	logSvc, log := logx.New(mapLoggingConfig(cfg), wh)
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(logSvc.Logger().With(logx.String("comp", "config")))

	st, err := openStorage(cfg, logSvc.Logger())
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	seedStore(st, cfg, log)

	// Point the warn-log forwarding at the operator's webhook.
	if url := webhookURL(st, cfg); url != "" {
		logSvc.SetWebhookURL(url)
	}

	portalTimeout, err := config.ParseDurationOrDefault("portal.timeout", cfg.Portal.Timeout, 30*time.Second)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	pc, err := portal.NewClient(portal.Config{
		LoginURL:  cfg.Portal.LoginURL,
		ListURL:   cfg.Portal.ListURL,
		UserAgent: cfg.Portal.UserAgent,
		Timeout:   portalTimeout,
	}, logSvc.Logger().With(logx.String("comp", "portal")))
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	pageDelay, err := config.ParseDurationOrDefault("watcher.page_delay", cfg.Watcher.PageDelay, time.Second)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	runner := watch.NewRunner(st, pc, wh, pacer.Fixed(pageDelay),
		logSvc.Logger().With(logx.String("comp", "watch")))

	sched := scheduler.New(scheduler.Config{},
		logSvc.Logger().With(logx.String("comp", "scheduler")))
	sched.SetReporter(runner.ReportError)

	return &App{
		cfgm:   cfgm,
		logs:   logSvc,
		log:    log,
		store:  st,
		portal: pc,
		sink:   wh,
		runner: runner,
		sched:  sched,
	}, nil
}

// Runner exposes the pipeline for one-shot invocations (cursor
// override, manual run).
func (a *App) Runner() *watch.Runner { return a.runner }

func (a *App) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	cfg := a.cfgm.Get()
	interval, err := config.ParseDurationOrDefault("watcher.interval", cfg.Watcher.Interval, 5*time.Minute)
	if err != nil {
		return err
	}
	if err := a.sched.Replace(watchTask, interval, a.runner.Run); err != nil {
		return err
	}
	a.sched.Start(ctx)

	// Config hot reload.
	a.cfgCh = a.cfgm.Subscribe(2)
	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		_ = a.cfgm.Watch(ctx)
	}()
	go func() {
		defer a.wg.Done()
		a.configLoop(ctx)
	}()

	if cfg.Watcher.StartupRun {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := a.runner.TestMessage(ctx); err != nil {
				a.log.Warn("startup probe failed", logx.Err(err))
			}
			if err := a.runner.Run(ctx); err != nil {
				a.log.Warn("startup tick failed", logx.Err(err))
				a.runner.ReportError(ctx, err)
			}
		}()
	}

	a.log.Info("started", logx.Duration("interval", interval))
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	a.sched.Stop(ctx)
	if a.cfgCh != nil {
		a.cfgm.Unsubscribe(a.cfgCh)
		a.cfgCh = nil
	}
	a.wg.Wait()
	if a.store != nil {
		_ = a.store.Close()
	}
	_ = a.logs.Close()
	return nil
}

// configLoop applies config file changes at runtime: logging levels and
// sinks, and the watch interval (re-registered under the same task
// identity, replacing the prior schedule).
func (a *App) configLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-a.cfgCh:
			if !ok || cfg == nil {
				return
			}
			a.logs.Apply(mapLoggingConfig(cfg))
			if url := webhookURL(a.store, cfg); url != "" {
				a.logs.SetWebhookURL(url)
			}

			interval, err := config.ParseDurationOrDefault("watcher.interval", cfg.Watcher.Interval, 5*time.Minute)
			if err != nil {
				a.log.Warn("config update ignored", logx.Err(err))
				continue
			}
			if err := a.sched.Replace(watchTask, interval, a.runner.Run); err != nil {
				a.log.Warn("reschedule failed", logx.Err(err))
				continue
			}
			a.log.Info("config applied", logx.Duration("interval", interval))
		}
	}
}

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Webhook: logx.WebhookConfig{
			Enabled:    cfg.Logging.Webhook.Enabled,
			MinLevel:   cfg.Logging.Webhook.MinLevel,
			RatePerSec: cfg.Logging.Webhook.RatePerSec,
		},
	}
}

func openStorage(cfg *config.Config, log logx.Logger) (storage.Store, error) {
	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return nil, err
	}
	return storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, log.With(logx.String("comp", "storage")))
}

// seedStore copies config-provided credentials and webhook URL into the
// store when the store has no value yet. The store remains the source
// of truth afterwards.
func seedStore(st storage.Store, cfg *config.Config, log logx.Logger) {
	if st == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	seed := func(key, value string) {
		if strings.TrimSpace(value) == "" {
			return
		}
		if _, ok, err := st.Get(ctx, key); err == nil && !ok {
			if err := st.Set(ctx, key, value); err != nil {
				log.Warn("seed failed", logx.String("key", key), logx.Err(err))
			}
		}
	}
	seed(storage.KeyUsername, cfg.Portal.Username)
	seed(storage.KeyPassword, cfg.Portal.Password)
	seed(storage.KeyWebhookURL, cfg.Sink.WebhookURL)
}

func webhookURL(st storage.Store, cfg *config.Config) string {
	if st != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if v, ok, err := st.Get(ctx, storage.KeyWebhookURL); err == nil && ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return strings.TrimSpace(cfg.Sink.WebhookURL)
}
