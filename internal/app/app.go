// Package app wires the sales bot together: config, logging, storage,
// settings, row source, Telegram transport, alert sender, monitor and
// command router.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"salebot/internal/alert"
	"salebot/internal/commands"
	"salebot/internal/config"
	"salebot/internal/monitor"
	"salebot/internal/rowsource"
	rtsup "salebot/internal/runtime/supervisor"
	"salebot/internal/settings"
	"salebot/internal/storage"
	kit "salebot/internal/transport"
	"salebot/internal/transport/telegram"
	logx "salebot/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service

	store    storage.Store
	settings *settings.Store
	adapter  kit.Adapter
	source   rowsource.Source
	sender   *alert.Sender
	monitor  *monitor.Monitor
	router   *commands.Router
	sd       *notifier

	updates chan kit.Update
}

type Option func(*options)

type options struct {
	adapter kit.Adapter
	source  rowsource.Source
}

// WithAdapter replaces the Telegram adapter (tests, alternative transports).
func WithAdapter(a kit.Adapter) Option { return func(o *options) { o.adapter = a } }

// WithSource replaces the configured row source.
func WithSource(s rowsource.Source) Option { return func(o *options) { o.source = s } }

// New builds the app from the committed config of cfgm. Nothing runs until
// Start.
func New(ctx context.Context, cfgm *config.Manager, opts ...Option) (*App, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	cfg := cfgm.Get()
	if cfg == nil {
		return nil, errors.New("config not loaded")
	}

	sched, err := mapSchedule(cfg)
	if err != nil {
		return nil, err
	}
	storeCfg, err := mapStorage(cfg)
	if err != nil {
		return nil, err
	}
	alertCfg, err := mapAlerts(cfg)
	if err != nil {
		return nil, err
	}
	pollTimeout, err := config.DurationOr("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	fetchTimeout, err := config.DurationOr("sheet.fetch_timeout", cfg.Sheet.FetchTimeout, 30*time.Second)
	if err != nil {
		return nil, err
	}

	// Logging comes up first with the Telegram sink inert; the adapter is
	// attached once it exists.
	logs, log := logx.New(mapLogging(cfg), nil)
	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	cfgm.SetValidator(validateReload)

	ad := o.adapter
	if ad == nil {
		tg, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token, PollTimeout: pollTimeout},
			log.With(logx.String("comp", "telegram")))
		if err != nil {
			_ = logs.Close()
			return nil, fmt.Errorf("telegram: %w", err)
		}
		ad = tg
	}
	logs.SetSender(ad)

	src := o.source
	if src == nil {
		src, err = NewSource(ctx, cfg, log.With(logx.String("comp", "rowsource")))
		if err != nil {
			_ = logs.Close()
			return nil, fmt.Errorf("row source: %w", err)
		}
	}

	store, err := storage.Open(storeCfg, log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logs.Close()
		return nil, fmt.Errorf("storage: %w", err)
	}
	log.Info("storage opened", logx.String("driver", storeCfg.Driver), logx.String("path", storeCfg.Path))

	st := settings.New(store, log.With(logx.String("comp", "settings")))
	sender := alert.NewSender(alertCfg, ad, store, log.With(logx.String("comp", "alert")))
	sd := newNotifier(cfg.Systemd.Notify, log.With(logx.String("comp", "systemd")))

	mon, err := monitor.New(monitor.Options{
		Source:       src,
		Settings:     st,
		Notifier:     sender,
		Schedule:     sched,
		FetchTimeout: fetchTimeout,
		Heartbeat:    sd.Heartbeat,
		Log:          log.With(logx.String("comp", "monitor")),
	})
	if err != nil {
		_ = store.Close()
		_ = logs.Close()
		return nil, err
	}

	router := commands.NewRouter(ad, log.With(logx.String("comp", "commands")))
	if u, ok := ad.(interface{ Username() string }); ok {
		router.SetBotUsername(u.Username())
	}

	a := &App{
		cfgm:     cfgm,
		log:      log.With(logx.String("comp", "app")),
		logs:     logs,
		store:    store,
		settings: st,
		adapter:  ad,
		source:   src,
		sender:   sender,
		monitor:  mon,
		router:   router,
		sd:       sd,
		updates:  make(chan kit.Update, 64),
	}
	router.Register(commands.Builtins(st, a, router)...)
	return a, nil
}

func (a *App) Monitor() *monitor.Monitor { return a.monitor }

func (a *App) Settings() *settings.Store { return a.settings }

// Snapshot reports monitor progress for /status.
func (a *App) Snapshot() monitor.Snapshot { return a.monitor.Snapshot() }

// Tasks lists the app's supervised tasks plus the transport's own, when the
// transport runs under a supervisor.
func (a *App) Tasks() []rtsup.TaskStats {
	var out []rtsup.TaskStats
	if a.sup != nil {
		out = append(out, a.sup.Snapshot()...)
	}
	if s, ok := a.adapter.(interface{ Supervisor() *rtsup.Supervisor }); ok {
		if tsup := s.Supervisor(); tsup != nil {
			out = append(out, tsup.Snapshot()...)
		}
	}
	return out
}

// Done is closed when the app context is cancelled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start runs the transport, the command dispatch loop, the monitor and the
// config watcher under one supervisor, then reports READY to systemd.
func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	// Load once up front so a fresh install writes its defaults before the
	// first command or cycle.
	st := a.settings.Load(a.sup.Context())
	a.log.Info("settings loaded", logx.Int("threshold", st.Threshold), logx.Bool("registered", settings.Registered(st)))

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return fmt.Errorf("start transport: %w", err)
	}

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})
	a.sup.Go("commands.menu", func(c context.Context) error {
		mctx, cancel := context.WithTimeout(c, 10*time.Second)
		defer cancel()
		if err := a.router.PublishMenu(mctx); err != nil {
			a.log.Warn("command menu update failed", logx.Err(err))
		}
		return nil
	})

	a.sup.GoRestart("monitor", a.monitor.Run, rtsup.WithRestartBackoff(time.Second, time.Minute))

	sub := a.cfgm.Subscribe(4)
	a.sup.Go0("config.apply", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.applyLoop(c, sub)
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.sup.Go0("systemd.watchdog", func(c context.Context) {
		a.sd.watchdog(c, a.staleAfter())
	})
	a.sd.Ready()

	a.log.Info("bot is running, waiting for new sales")
	return nil
}

// staleAfter is how long the watchdog tolerates no completed cycle. It is
// generous so a flaky sheet API does not get the unit restarted.
func (a *App) staleAfter() time.Duration {
	p, err := mapSchedule(a.cfgm.Get())
	if err != nil || p.Every <= 0 {
		return 0
	}
	return 10*p.Every + 5*time.Minute
}

func (a *App) applyLoop(ctx context.Context, sub chan *config.Config) {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts.
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						next = newer
					}
				default:
					drained = true
				}
			}
			a.apply(last, next)
			last = next
		}
	}
}

func (a *App) apply(prev, next *config.Config) {
	if config.RequiresRestart(prev, next) {
		a.log.Warn("config change needs a restart to take effect (telegram, sheet source, store or alerts)")
	}
	a.logs.Apply(mapLogging(next))

	if prev == nil || prev.Sheet.PollSchedule != next.Sheet.PollSchedule {
		p, err := mapSchedule(next)
		if err != nil {
			a.log.Warn("invalid poll schedule; keeping previous", logx.Err(err))
			return
		}
		a.monitor.SetSchedule(p)
	}
}

// Stop cancels all tasks, waits for them within ctx, and closes the store.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sd.Stopping()
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		sctx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		start := time.Now()
		if err := fn(sctx); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	}

	step("adapter", 3*time.Second, a.adapter.Stop)
	step("supervisor", 5*time.Second, a.sup.Wait)
	if n := a.sup.Active(); n > 0 {
		a.log.Warn("tasks still running after stop grace", logx.Int64("active", n))
	}
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	return a.logs.Close()
}
