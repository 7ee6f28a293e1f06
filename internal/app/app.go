// Package app wires the bot together: config, logging, storage, the
// Telegram adapter, the dispatch and notify services and the command
// router.
package app

import (
	"context"
	"time"

	"deedbot/internal/bot"
	"deedbot/internal/config"
	"deedbot/internal/recurrence"
	"deedbot/internal/runtime/supervisor"
	"deedbot/internal/services/dispatch"
	"deedbot/internal/services/notify"
	"deedbot/internal/storage"
	kit "deedbot/internal/transport"
	telegram "deedbot/internal/transport/telegram/adapter"
	logx "deedbot/pkg/logx"
)

type App struct {
	cfgPath string
	cfgm    *config.Manager
	sup     *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	store storage.Store

	adapter kit.Adapter
	notif   *notify.Service
	disp    *dispatch.Service
	router  *bot.Router

	lastCfg *config.Config
	updates chan kit.Update
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	var store storage.Store
	if sc, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if sc.Driver != "" {
		store, err = storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	ncfg, err := mapNotifyConfig(cfg)
	if err != nil {
		return nil, err
	}
	notif := notify.New(ncfg, ad, store, log.With(logx.String("comp", "notify")))

	dcfg, err := mapDispatchConfig(cfg)
	if err != nil {
		return nil, err
	}
	disp := dispatch.New(dcfg, store, notif, log.With(logx.String("comp", "dispatch")))

	bopt, err := mapBotOptions(cfg)
	if err != nil {
		return nil, err
	}
	router := bot.New(ad, store, disp, bopt, log.With(logx.String("comp", "bot")))

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		lastCfg: cfg,
		log:     log,
		logs:    logSvc,
		store:   store,
		adapter: ad,
		notif:   notif,
		disp:    disp,
		router:  router,
		updates: make(chan kit.Update, 256),
	}, nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, nil
}

func mapNotifyConfig(cfg *config.Config) (notify.Config, error) {
	window, err := config.ParseDurationOrDefault("notify.dedup_window", cfg.Notify.DedupWindow, 10*time.Minute)
	if err != nil {
		return notify.Config{}, err
	}
	return notify.Config{
		RatePerSec:  cfg.Notify.RatePerSec,
		DedupWindow: window,
	}, nil
}

func mapDispatchConfig(cfg *config.Config) (dispatch.Config, error) {
	sweep, err := config.ParseDurationOrDefault("dispatch.sweep_every", cfg.Dispatch.SweepEvery, 5*time.Minute)
	if err != nil {
		return dispatch.Config{}, err
	}
	lead, err := config.ParseDurationOrDefault("scheduling.minimum_lead", cfg.Scheduling.MinimumLead, recurrence.DefaultMinimumLead)
	if err != nil {
		return dispatch.Config{}, err
	}
	return dispatch.Config{
		Workers:     cfg.Dispatch.Workers,
		QueueSize:   cfg.Dispatch.QueueSize,
		HistorySize: cfg.Dispatch.HistorySize,
		MinimumLead: lead,
		SweepEvery:  sweep,
		DigestAt:    cfg.Dispatch.DigestAt,
	}, nil
}

func mapBotOptions(cfg *config.Config) (bot.Options, error) {
	lead, err := config.ParseDurationOrDefault("scheduling.minimum_lead", cfg.Scheduling.MinimumLead, recurrence.DefaultMinimumLead)
	if err != nil {
		return bot.Options{}, err
	}
	snooze, err := config.ParseDurationOrDefault("scheduling.snooze_default", cfg.Scheduling.SnoozeDefault, 15*time.Minute)
	if err != nil {
		return bot.Options{}, err
	}
	return bot.Options{
		Owners:        cfg.Telegram.OwnerIDs,
		MinimumLead:   lead,
		SnoozeDefault: snooze,
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log))

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	if err := a.disp.Start(a.sup.Context()); err != nil {
		return err
	}

	a.sup.Go("bot.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return nil
			case cfg, ok := <-sub:
				if !ok {
					return nil
				}
				a.applyConfig(cfg)
			}
		}
	})

	if menu, ok := a.adapter.(kit.CommandMenuUpdater); ok {
		cmds := a.router.MenuCommands()
		a.sup.Go("telegram.menu", func(c context.Context) error {
			return menu.UpdateMenuCommands(c, cmds)
		})
	}

	a.log.Info("deedbot started")
	return nil
}

// applyConfig hot-applies the reloadable sections. Storage and the
// Telegram token need a restart and are logged as such.
func (a *App) applyConfig(cfg *config.Config) {
	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	if ncfg, err := mapNotifyConfig(cfg); err == nil {
		a.notif.Apply(ncfg)
	}
	if dcfg, err := mapDispatchConfig(cfg); err == nil {
		a.disp.Apply(dcfg)
	}
	if bopt, err := mapBotOptions(cfg); err == nil {
		a.router.SetOptions(bopt)
	}

	if a.lastCfg != nil {
		if a.lastCfg.Storage != cfg.Storage {
			a.log.Warn("storage config changed; restart required")
		}
		if a.lastCfg.Telegram.Token != cfg.Telegram.Token {
			a.log.Warn("telegram token changed; restart required")
		}
	}
	a.lastCfg = cfg
	a.log.Info("config applied")
}

// Done is closed when the supervisor context ends.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Stop(ctx context.Context) error {
	a.log.Info("shutting down")
	if a.disp != nil {
		a.disp.Stop(ctx)
	}
	if a.adapter != nil {
		_ = a.adapter.Stop(ctx)
	}
	if a.sup != nil {
		a.sup.Stop(ctx)
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	a.log.Info("bye")
	return nil
}
