// Package app assembles the bot: config, logging, transport, market data,
// downloads, the subscription scheduler and housekeeping, plus the wiring
// between them. cmd/bot stays a thin shell around it.
package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"marketbot/internal/bot"
	"marketbot/internal/config"
	"marketbot/internal/downloader"
	"marketbot/internal/maintenance"
	"marketbot/internal/market"
	"marketbot/internal/notifier"
	"marketbot/internal/scheduler"
	"marketbot/internal/storage"
	kit "marketbot/internal/transport"
	"marketbot/internal/transport/telegram"
	logx "marketbot/pkg/logx"
)

const updateChanSize = 128

type App struct {
	cfgMgr *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	adapter  *telegram.Adapter
	store    storage.Store
	market   *market.Client
	dl       *downloader.Downloader
	notifier *notifier.Service
	sched    *scheduler.Scheduler
	maint    *maintenance.Service
	disp     *bot.Dispatcher

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds the full service graph from the config file at path. Nothing is
// running yet; Start launches it.
func New(path string) (*App, error) {
	mgr := config.NewManager(path)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return nil, errors.New("telegram token is not configured (set telegram.token or BOT_TOKEN)")
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
	})
	mgr.SetLogger(log.With(logx.String("comp", "config")))

	pollTimeout, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	if err != nil {
		return nil, err
	}
	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	busyTimeout, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	marketTimeout, err := config.ParseDurationOrDefault("market.timeout", cfg.Market.Timeout, market.DefaultTimeout)
	if err != nil {
		return nil, err
	}
	mc := market.NewClient(market.Config{
		BaseURL:       cfg.Market.BaseURL,
		QuoteCurrency: cfg.Market.QuoteCurrency,
		Timeout:       marketTimeout,
	}, log.With(logx.String("comp", "market")))

	dlTimeout, err := config.ParseDurationField("downloader.timeout", cfg.Downloader.Timeout)
	if err != nil {
		return nil, err
	}
	dl := downloader.New(downloader.Config{
		Binary:  cfg.Downloader.Binary,
		Dir:     cfg.Downloader.Dir,
		Timeout: dlTimeout,
	}, log.With(logx.String("comp", "downloader")))

	retryBase, err := config.ParseDurationField("notifier.retry_base", cfg.Notifier.RetryBase)
	if err != nil {
		return nil, err
	}
	notif := notifier.New(notifier.Config{
		RatePerSec: cfg.Notifier.RatePerSec,
		QueueSize:  cfg.Notifier.QueueSize,
		Workers:    cfg.Notifier.Workers,
		RetryMax:   cfg.Notifier.RetryMax,
		RetryBase:  retryBase,
	}, adapter, log.With(logx.String("comp", "notifier")))

	initialDelay, err := config.ParseDurationOrDefault("updates.initial_delay", cfg.Updates.InitialDelay, scheduler.DefaultInitialDelay)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfgMgr:   mgr,
		logSvc:   logSvc,
		log:      log,
		adapter:  adapter,
		store:    store,
		market:   mc,
		dl:       dl,
		notifier: notif,
	}

	a.sched = scheduler.New(a.scheduledTick, initialDelay, log.With(logx.String("comp", "scheduler")))

	tempMaxAge, err := config.ParseDurationField("maintenance.temp_max_age", cfg.Maintenance.TempMaxAge)
	if err != nil {
		return nil, err
	}
	auditRetention, err := config.ParseDurationField("maintenance.audit_retention", cfg.Maintenance.AuditRetention)
	if err != nil {
		return nil, err
	}
	a.maint = maintenance.New(maintenance.Config{
		Enabled:        cfg.Maintenance.Enabled,
		SweepSpec:      cfg.Maintenance.SweepSpec,
		TempDir:        dl.Dir(),
		TempMaxAge:     tempMaxAge,
		AuditRetention: auditRetention,
	}, store, log.With(logx.String("comp", "maintenance")))

	a.disp = bot.NewDispatcher(log.With(logx.String("comp", "dispatcher")), adapter, store)
	handlers := bot.NewHandlers(mc, dl, a.sched)
	a.disp.Register(handlers.Commands()...)

	return a, nil
}

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	updates := make(chan kit.Update, updateChanSize)
	if err := a.adapter.Start(runCtx, updates); err != nil {
		cancel()
		return err
	}

	a.notifier.Start(runCtx)
	a.sched.Start(runCtx)

	if a.maint.Enabled() {
		if err := a.maint.Start(runCtx); err != nil {
			a.log.Warn("maintenance start failed", logx.Err(err))
		}
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		_ = a.disp.DispatchLoop(runCtx, updates)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		_ = a.cfgMgr.Watch(runCtx)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.watchReloads(runCtx)
	}()

	a.log.Info("bot started")
	return nil
}

// watchReloads applies the hot-reloadable subset of the config: log level and
// sinks, notifier pacing, and the maintenance schedule. Everything else
// requires a restart.
func (a *App) watchReloads(ctx context.Context) {
	sub := a.cfgMgr.Subscribe(1)
	defer a.cfgMgr.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok || cfg == nil {
				return
			}
			a.logSvc.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
			})
			retryBase, err := config.ParseDurationField("notifier.retry_base", cfg.Notifier.RetryBase)
			if err != nil {
				a.log.Warn("reload: bad notifier.retry_base; keeping previous", logx.Err(err))
				continue
			}
			a.notifier.Apply(notifier.Config{
				RatePerSec: cfg.Notifier.RatePerSec,
				QueueSize:  cfg.Notifier.QueueSize,
				Workers:    cfg.Notifier.Workers,
				RetryMax:   cfg.Notifier.RetryMax,
				RetryBase:  retryBase,
			})
			tempMaxAge, err1 := config.ParseDurationField("maintenance.temp_max_age", cfg.Maintenance.TempMaxAge)
			auditRetention, err2 := config.ParseDurationField("maintenance.audit_retention", cfg.Maintenance.AuditRetention)
			if err1 != nil || err2 != nil {
				a.log.Warn("reload: bad maintenance durations; keeping previous", logx.Err(err1), logx.Err(err2))
				continue
			}
			a.maint.Apply(maintenance.Config{
				Enabled:        cfg.Maintenance.Enabled,
				SweepSpec:      cfg.Maintenance.SweepSpec,
				TempDir:        a.dl.Dir(),
				TempMaxAge:     tempMaxAge,
				AuditRetention: auditRetention,
			})
			a.log.Info("runtime config applied")
		}
	}
}

// Stop shuts the graph down in stages: stop taking input first, then let the
// outbound side drain, then close storage.
func (a *App) Stop() {
	stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	_ = a.adapter.Stop(stopCtx)

	schedCtx, schedCancel := context.WithTimeout(stopCtx, 5*time.Second)
	a.sched.Stop(schedCtx)
	schedCancel()

	a.maint.Stop(stopCtx)

	notifCtx, notifCancel := context.WithTimeout(stopCtx, 5*time.Second)
	a.notifier.Stop(notifCtx)
	notifCancel()

	if a.cancel != nil {
		a.cancel()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-stopCtx.Done():
		a.log.Warn("shutdown timed out; exiting anyway")
	}

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("storage close failed", logx.Err(err))
		}
	}
	a.log.Info("bot stopped")
	_ = a.logSvc.Close()
}

// scheduledTick is the body of every recurring market update. It always
// delivers something: the report on success, the retry notice otherwise.
// Failures never touch the subscription itself.
func (a *App) scheduledTick(ctx context.Context, chatID int64) {
	name := scheduler.SubscriptionName(chatID)
	start := time.Now()

	fctx, cancel := context.WithTimeout(ctx, time.Minute)
	snap, err := a.market.Fetch(fctx)
	cancel()

	var text string
	if err != nil {
		a.log.Warn("scheduled fetch failed", logx.String("name", name), logx.Err(err))
		text = "Scheduled update: market data is temporarily unavailable. I will try again on the next cycle."
	} else {
		text = market.Format(snap.Top10, snap.TopGainer, strings.ToUpper(a.market.QuoteCurrency()))
	}

	if nerr := a.notifier.Notify(notifier.Item{To: kit.ChatTarget{ChatID: chatID}, Text: text}); nerr != nil {
		a.log.Warn("scheduled delivery dropped", logx.String("name", name), logx.Err(nerr))
	}

	if a.store != nil {
		actx, acancel := context.WithTimeout(context.Background(), 2*time.Second)
		entry := storage.HistoryEntry{
			At:     start,
			ChatID: chatID,
			Kind:   "tick",
			Name:   name,
			OK:     err == nil,
			TookMS: time.Since(start).Milliseconds(),
		}
		if err != nil {
			entry.Error = err.Error()
		}
		if aerr := a.store.AppendHistory(actx, entry); aerr != nil {
			a.log.Debug("history append failed", logx.Err(aerr))
		}
		acancel()
	}
}
