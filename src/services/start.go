// Package services wires the monitor's components from configuration and
// starts them as managed modules.
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stake-plus/dao-monitor/src/api"
	"github.com/stake-plus/dao-monitor/src/bot"
	"github.com/stake-plus/dao-monitor/src/config"
	"github.com/stake-plus/dao-monitor/src/data"
	"github.com/stake-plus/dao-monitor/src/metrics"
	"github.com/stake-plus/dao-monitor/src/notify"
	"github.com/stake-plus/dao-monitor/src/render"
	"github.com/stake-plus/dao-monitor/src/scanner"
	"github.com/stake-plus/dao-monitor/src/services/monitor"
	"github.com/stake-plus/dao-monitor/src/source"
	"github.com/stake-plus/dao-monitor/src/store"
	"github.com/stake-plus/dao-monitor/src/webclient"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const retryInitialDelay = 500 * time.Millisecond

// Deps are externally created resources handed to Build. Ownership of DB
// passes to the App.
type Deps struct {
	DB     *gorm.DB
	Stdout io.Writer
	// Channels replaces the chat channels Build would otherwise create.
	Channels []notify.Channel
}

// App is the assembled monitor.
type App struct {
	Config     *config.Config
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
	Store      store.Store
	Overlay    *store.Overlay
	Scanner    *scanner.Scanner
	Dispatcher *notify.Dispatcher

	db       *gorm.DB
	redis    *redis.Client
	telegram *bot.Telegram
	discord  *bot.Discord
}

// OpenStore opens the persistent notified-set backend selected by cfg.
func OpenStore(cfg *config.Config, db *gorm.DB, logger *zap.Logger) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.StoreMySQL:
		if db == nil {
			var err error
			if db, err = data.ConnectMySQL(cfg.MySQLDSN, logger); err != nil {
				return nil, err
			}
		}
		return store.OpenSQL(db)
	case config.StoreFile:
		return store.OpenFile(cfg.StorePath)
	default:
		return nil, fmt.Errorf("%w: store backend %q", config.ErrInvalid, cfg.StoreBackend)
	}
}

// Build validates cfg and assembles every component. On error, anything
// already opened is closed again.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger, deps Deps) (app *App, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	app = &App{Config: cfg, Logger: logger, Metrics: metrics.New(), db: deps.DB}
	defer func() {
		if err != nil {
			_ = app.Close()
			app = nil
		}
	}()

	dests, err := cfg.Destinations()
	if err != nil {
		return app, err
	}

	base, err := OpenStore(cfg, deps.DB, logger)
	if err != nil {
		return app, fmt.Errorf("open store: %w", err)
	}
	app.Store = base
	if cfg.StoreBackend == config.StoreMySQL {
		app.db = nil
	}
	stateStore := base
	if cfg.DryRun {
		app.Overlay = store.NewOverlay(base)
		stateStore = app.Overlay
	}

	if needsRedis(cfg, dests) {
		if app.redis, err = data.ConnectRedis(ctx, cfg.RedisURL); err != nil {
			return app, err
		}
	}

	channels := []notify.Channel{notify.NewWriterChannel(deps.Stdout)}
	if deps.Channels != nil {
		channels = append(channels, deps.Channels...)
	} else {
		chat, err := app.openChatChannels(dests)
		if err != nil {
			return app, err
		}
		channels = append(channels, chat...)
	}
	if app.redis != nil {
		channels = append(channels, notify.NewStreamChannel(app.redis, cfg.StreamMaxLen))
	}

	var cache notify.SendCache
	if cfg.SendCacheBackend == config.CacheRedis && app.redis != nil {
		cache = notify.NewRedisCache(app.redis, cfg.SendCacheTTL, "")
	} else {
		cache = notify.NewMemoryCache(cfg.SendCacheTTL)
	}

	app.Dispatcher, err = notify.NewDispatcher(dests, channels, cache,
		notify.WithLogger(logger),
		notify.WithMetrics(app.Metrics),
		notify.WithConcurrency(cfg.DispatchConcurrency),
	)
	if err != nil {
		return app, fmt.Errorf("%w: %w", config.ErrInvalid, err)
	}

	client := webclient.New(webclient.NewDefault(cfg.HTTPTimeout), cfg.HTTPRetryAttempts, retryInitialDelay)
	adapter := source.NewAdapter(
		source.NewSubgraph(cfg.SubgraphURL, client),
		source.NewDetailAPI(cfg.DetailURL, client),
	)

	app.Scanner = scanner.New(adapter, stateStore, render.New(render.DefaultOptions()), app.Dispatcher,
		scanner.WithPacer(scanner.SleepPacer(cfg.Pace)),
		scanner.WithWindow(cfg.Window),
		scanner.WithLogger(logger),
		scanner.WithMetrics(app.Metrics),
		scanner.WithDryRun(cfg.DryRun),
		scanner.WithAnnounceDenied(cfg.AnnounceDenied),
	)

	logger.Info("monitor assembled",
		zap.String("env", cfg.Env),
		zap.String("store", cfg.StoreBackend),
		zap.Int("destinations", len(dests)),
		zap.Bool("dry_run", cfg.DryRun),
		zap.Bool("announce_denied", cfg.AnnounceDenied),
	)
	return app, nil
}

func needsRedis(cfg *config.Config, dests []notify.Destination) bool {
	if cfg.SendCacheBackend == config.CacheRedis {
		return true
	}
	for _, d := range dests {
		if d.Kind == "redis" {
			return true
		}
	}
	return false
}

func (a *App) openChatChannels(dests []notify.Destination) ([]notify.Channel, error) {
	var wantTelegram, wantDiscord bool
	for _, d := range dests {
		switch d.Kind {
		case "telegram":
			wantTelegram = true
		case "discord":
			wantDiscord = true
		}
	}

	probe := bot.Probe{Phrase: a.Config.Probe.Phrase, Reply: a.Config.Probe.Reply, Delay: a.Config.Probe.Delay}
	var channels []notify.Channel
	if wantTelegram {
		tg, err := bot.NewTelegram(a.Config.Telegram.Token, probe, a.Logger)
		if err != nil {
			return nil, err
		}
		a.telegram = tg
		channels = append(channels, tg)
	}
	if wantDiscord {
		dc, err := bot.NewDiscord(a.Config.Discord.Token, probe, a.Logger)
		if err != nil {
			return nil, err
		}
		a.discord = dc
		channels = append(channels, dc)
	}
	return channels, nil
}

// Modules lists the long-running modules in start order: chat listeners,
// the API, then the scheduler.
func (a *App) Modules() []Module {
	var mods []Module
	if a.telegram != nil {
		mods = append(mods, a.telegram)
	}
	if a.discord != nil {
		mods = append(mods, a.discord)
	}
	if a.Config.API.Enabled {
		mods = append(mods, api.New(a.Config.API, a.Store, a.Scanner, a.Metrics, a.Logger))
	}
	mods = append(mods, monitor.NewModule(a.Scanner, a.Config.Interval, a.Logger))
	return mods
}

// StartAll starts every module of app under a new manager.
func StartAll(ctx context.Context, app *App) (*Manager, error) {
	mgr := NewManager(app.Logger, app.Modules()...)
	if err := mgr.Start(ctx); err != nil {
		return nil, err
	}
	return mgr, nil
}

// Close releases the dispatcher pool and every connection the app owns.
func (a *App) Close() error {
	var errs []error
	if a.Dispatcher != nil {
		a.Dispatcher.Close()
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	return errors.Join(errs...)
}
