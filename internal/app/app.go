package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"refetch/internal/config"
	"refetch/internal/refetch"
	"refetch/internal/runtime/supervisor"
	logx "refetch/pkg/logx"
)

// Restart policy for the config watcher goroutine. Watch recreates broken
// fsnotify watchers itself, so these only apply after a panic.
const (
	watchRestartMin  = 500 * time.Millisecond
	watchRestartMax  = time.Minute
	watchMaxRestarts = 20
)

// App hosts one refetch scope for the whole process: the provider is mounted
// under the supervisor context and reconfigured on config hot reload.
type App struct {
	cfgPath string
	cfgm    *config.ConfigManager
	cfg     *config.Config

	log  logx.Logger
	logs *logx.Service
	sup  *supervisor.Supervisor

	provider *refetch.Provider
	scope    context.Context
	notify   Notifier
}

type Option func(*App)

// WithNotifier replaces the service manager notifier (systemd by default).
func WithNotifier(n Notifier) Option {
	return func(a *App) { a.notify = n }
}

// NewApp loads cfgPath (or defaults when empty) and builds logging and the
// provider. Nothing runs until Start.
func NewApp(cfgPath string, opts ...Option) (*App, error) {
	a := &App{cfgPath: strings.TrimSpace(cfgPath), notify: SystemdNotifier()}
	for _, o := range opts {
		o(a)
	}

	cfg := config.Default()
	if a.cfgPath != "" {
		a.cfgm = config.NewConfigManager(a.cfgPath)
		loaded, err := a.cfgm.Load()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	a.cfg = cfg

	popts, err := cfg.Refetch.Options()
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(mapLogConfig(cfg))
	a.logs = logs
	a.log = log.With(logx.String("comp", "app"))
	a.provider = refetch.NewProvider(popts, refetch.WithProviderLogger(log.With(logx.String("comp", "refetch"))))
	return a, nil
}

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

// Start mounts the provider and starts the config watcher.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))))

	scope, err := a.provider.Mount(a.sup.Context())
	if err != nil {
		a.sup.Cancel()
		return fmt.Errorf("mount refetch provider: %w", err)
	}
	a.scope = scope

	refetchLog := a.log.With(logx.String("comp", "refetch"))
	ch, _ := refetch.Use(scope).SubscribeChan(16)
	a.sup.Go("refetch.log", func(ctx context.Context) error {
		for e := range ch {
			refetchLog.Info("refetch", logx.String("source", string(e.Source)))
		}
		return nil
	})

	if a.cfgm != nil {
		a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
		updates := a.cfgm.Subscribe(4)
		a.sup.GoRestart("config.watch", a.cfgm.Watch,
			supervisor.WithRestartBackoff(watchRestartMin, watchRestartMax),
			supervisor.WithMaxRestarts(watchMaxRestarts),
		)
		a.sup.Go("config.apply", func(ctx context.Context) error {
			defer a.cfgm.Unsubscribe(updates)
			for {
				select {
				case <-ctx.Done():
					return nil
				case cfg := <-updates:
					a.applyConfig(cfg)
				}
			}
		})
	}

	opts := a.provider.Options()
	a.log.Info("started",
		logx.String("config", a.cfgPath),
		logx.Duration("interval", opts.Interval),
		logx.String("schedule", opts.Schedule),
	)
	a.sdNotify(SdReady)
	return nil
}

// applyConfig swaps logging and provider options. The provider keeps its
// Controller, so existing subscriptions survive a reload.
func (a *App) applyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	a.sdNotify(SdReloading)
	defer a.sdNotify(SdReady)

	changed, attrs := config.SummarizeConfigChange(a.cfg, cfg)
	a.cfg = cfg
	if len(changed) == 0 {
		return
	}
	a.log.Info("config changed", append([]logx.Field{logx.String("sections", strings.Join(changed, ","))}, attrs...)...)

	a.logs.Apply(mapLogConfig(cfg))
	popts, err := cfg.Refetch.Options()
	if err != nil {
		a.log.Warn("refetch config rejected", logx.Err(err))
		return
	}
	if err := a.provider.Reconfigure(popts); err != nil {
		a.log.Warn("refetch reconfigure failed", logx.Err(err))
	}
}

// Scope returns the context that carries the refetch controller, or nil
// before Start.
func (a *App) Scope() context.Context { return a.scope }

// Refetch triggers a manual refetch in the app scope. It fails with
// refetch.ErrNotMounted outside Start/Stop.
func (a *App) Refetch() error { return a.provider.Refetch() }

// Provider exposes the app-level provider.
func (a *App) Provider() *refetch.Provider { return a.provider }

// Stop unmounts the provider and waits for background goroutines.
func (a *App) Stop(ctx context.Context) error {
	a.sdNotify(SdStopping)
	start := time.Now()

	// Unmount closes the log subscriber channel, which ends refetch.log.
	a.provider.Unmount()
	var err error
	var ctrs supervisor.Counters
	if a.sup != nil {
		err = a.sup.Stop(ctx)
		ctrs = a.sup.Counters()
	}
	a.log.Info("stopped",
		logx.Duration("took", time.Since(start)),
		logx.Uint64("goroutines_started", ctrs.Started),
		logx.Int64("goroutines_active", ctrs.Active),
		logx.Err(err),
	)
	_ = a.logs.Close()
	return err
}

func (a *App) sdNotify(state string) {
	if a.notify == nil {
		return
	}
	if _, err := a.notify(state); err != nil {
		a.log.Debug("service manager notify failed", logx.String("state", state), logx.Err(err))
	}
}
