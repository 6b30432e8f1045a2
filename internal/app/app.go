// Package app wires the bot together: config, storage, transport, the
// pin service, the admin API and the delivery sweep.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"pinbot/internal/admin"
	"pinbot/internal/config"
	"pinbot/internal/eventbus"
	"pinbot/internal/pin"
	"pinbot/internal/storage"
	"pinbot/internal/transport/telegram"
	"pinbot/pkg/logx"
)

type App struct {
	cfgMgr *config.Manager
	log    logx.Logger

	store storage.Store
	bot   *telegram.Adapter
	bus   eventbus.Bus
	svc   *pin.Service

	adminSrv *admin.Server
	sweep    *pin.Sweep

	mu          sync.RWMutex
	ownerChatID int64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	mgr := config.NewManager(cfgPath, logx.NewConsole("info"))
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}

	a := &App{cfgMgr: mgr, log: log, ownerChatID: cfg.Telegram.OwnerChatID}

	busyTimeout, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return nil, err
	}
	st, err := storage.Open(storage.Config{Path: cfg.Storage.Path, BusyTimeout: busyTimeout},
		log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a.store = st

	pollTimeout, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	bot, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
		RatePerSec:  cfg.Telegram.RatePerSec,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("init telegram: %w", err)
	}
	a.bot = bot

	a.bus = eventbus.New()

	opts, err := pinOptions(cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	a.svc = pin.NewService(st, bot, a.bus, log.With(logx.String("comp", "pin")), opts)

	bot.SetStartHandler(func(ctx context.Context, chatID int64, username string) {
		if err := a.svc.DeliverOnStart(ctx, chatID, username); err != nil {
			log.Warn("start delivery failed", logx.Int64("chat_id", chatID), logx.Err(err))
		}
	})

	if cfg.Admin.Enabled {
		adminCfg, err := adminConfig(cfg.Admin)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		a.adminSrv = admin.New(adminCfg, a.svc, log.With(logx.String("comp", "admin")))
	}

	if cfg.Sweep.Enabled {
		sw, err := pin.NewSweep(cfg.Sweep.Schedule, a.svc, log.With(logx.String("comp", "sweep")))
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("sweep schedule: %w", err)
		}
		a.sweep = sw
	}

	return a, nil
}

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if err := a.bot.Start(runCtx); err != nil {
		cancel()
		return err
	}
	if a.adminSrv != nil {
		a.adminSrv.Start()
	}
	if a.sweep != nil {
		a.sweep.Start()
	}

	a.watchConfig(runCtx)
	a.watchEvents(runCtx)

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	a.log.Info("started")
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	if a.cancel != nil {
		a.cancel()
	}
	if a.sweep != nil {
		a.sweep.Stop()
	}
	if a.adminSrv != nil {
		if err := a.adminSrv.Stop(ctx); err != nil {
			a.log.Warn("admin shutdown", logx.Err(err))
		}
	}
	_ = a.bot.Stop(ctx)
	a.wg.Wait()
	err := a.store.Close()
	a.log.Info("stopped")
	return err
}

// watchConfig runs the file watcher and applies committed reloads to the
// running service. Only the tunables move at runtime; token, storage
// path and server addresses need a restart.
func (a *App) watchConfig(ctx context.Context) {
	ch := a.cfgMgr.Subscribe(1)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		_ = a.cfgMgr.Watch(ctx)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.cfgMgr.Unsubscribe(ch)
		prev := a.cfgMgr.Get()
		for {
			select {
			case <-ctx.Done():
				return
			case cfg, ok := <-ch:
				if !ok {
					return
				}
				changed, attrs := config.SummarizeChange(prev, cfg)
				prev = cfg
				if len(changed) == 0 {
					continue
				}
				a.log.Info("applying config change", append(attrs, logx.Any("sections", changed))...)

				opts, err := pinOptions(cfg)
				if err != nil {
					a.log.Warn("reload skipped", logx.Err(err))
					continue
				}
				a.svc.Apply(opts)

				a.mu.Lock()
				a.ownerChatID = cfg.Telegram.OwnerChatID
				a.mu.Unlock()
			}
		}
	}()
}

// watchEvents forwards mass-operation summaries to the owner chat.
func (a *App) watchEvents(ctx context.Context) {
	ch, unsubscribe := a.bus.Subscribe(8)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				a.notifyOwner(ctx, ev)
			}
		}
	}()
}

func (a *App) notifyOwner(ctx context.Context, ev eventbus.Event) {
	a.mu.RLock()
	owner := a.ownerChatID
	a.mu.RUnlock()
	if owner == 0 {
		return
	}

	var text string
	switch data := ev.Data.(type) {
	case pin.BroadcastSummary:
		text = fmt.Sprintf("Broadcast #%d finished: %d sent, %d failed of %d (%s)",
			data.MessageID, data.Sent, data.Failed, data.Recipients, data.Took.Round(time.Second))
	case pin.UnpinSummary:
		text = fmt.Sprintf("Mass unpin of #%d finished: %d unpinned, %d failed of %d (%s)",
			data.MessageID, data.Unpinned, data.Failed, data.Recipients, data.Took.Round(time.Second))
	default:
		return
	}

	if _, err := a.bot.SendText(ctx, owner, text, nil); err != nil {
		a.log.Warn("owner notification failed", logx.Err(err))
	}
}

// pinOptions maps the config sections onto service options, parsing all
// duration strings up front.
func pinOptions(cfg *config.Config) (pin.Options, error) {
	bc, err := fanoutConfig("broadcast", cfg.Broadcast)
	if err != nil {
		return pin.Options{}, err
	}
	un, err := fanoutConfig("unpin", cfg.Unpin)
	if err != nil {
		return pin.Options{}, err
	}
	cooldown, err := config.ParseDurationField("cooldown", cfg.Cooldown)
	if err != nil {
		return pin.Options{}, err
	}
	return pin.Options{
		Broadcast:        bc,
		Unpin:            un,
		SnapshotPageSize: cfg.Broadcast.SnapshotPageSize,
		Cooldown:         cooldown,
		MenuText:         cfg.Telegram.MenuText,
	}, nil
}

func fanoutConfig(section string, s config.FanoutSection) (pin.FanoutConfig, error) {
	pause, err := config.ParseDurationField(section+".chunk_pause", s.ChunkPause)
	if err != nil {
		return pin.FanoutConfig{}, err
	}
	backoffCap, err := config.ParseDurationField(section+".backoff_cap", s.BackoffCap)
	if err != nil {
		return pin.FanoutConfig{}, err
	}
	return pin.FanoutConfig{
		Concurrency: s.Concurrency,
		ChunkSize:   s.ChunkSize,
		ChunkPause:  pause,
		RetryMax:    s.RetryMax,
		BackoffCap:  backoffCap,
	}, nil
}

func adminConfig(s config.AdminConfig) (admin.Config, error) {
	read, err := config.ParseDurationField("admin.read_timeout", s.ReadTimeout)
	if err != nil {
		return admin.Config{}, err
	}
	write, err := config.ParseDurationField("admin.write_timeout", s.WriteTimeout)
	if err != nil {
		return admin.Config{}, err
	}
	idle, err := config.ParseDurationField("admin.idle_timeout", s.IdleTimeout)
	if err != nil {
		return admin.Config{}, err
	}
	return admin.Config{
		Addr:         s.Addr,
		ReadTimeout:  read,
		WriteTimeout: write,
		IdleTimeout:  idle,
	}, nil
}
