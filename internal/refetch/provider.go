package refetch

import (
	"context"
	"strings"
	"sync"
	"time"

	logx "refetch/pkg/logx"
)

// Options configures a Provider.
//
// Interval <= 0 disables the periodic refetch. Schedule is an optional
// ParseSchedule string; when both are set both triggers run.
// MaxListeners: 0 means DefaultMaxListeners, < 0 disables the warning.
type Options struct {
	Interval     time.Duration
	Schedule     string
	MaxListeners int
}

func (o Options) maxListeners() int {
	if o.MaxListeners == 0 {
		return DefaultMaxListeners
	}
	return o.MaxListeners
}

func (o Options) sameTriggers(n Options) bool {
	return o.Interval == n.Interval && strings.TrimSpace(o.Schedule) == strings.TrimSpace(n.Schedule)
}

func (o Options) validate() error {
	if strings.TrimSpace(o.Schedule) == "" {
		return nil
	}
	_, err := ParseSchedule(o.Schedule)
	return err
}

// Provider owns one Controller per mount and the timers feeding it.
type Provider struct {
	mu   sync.Mutex
	opts Options

	log   logx.Logger
	clock Clock

	// set while mounted
	ctrl      *Controller
	ctx       context.Context
	cancelCtx context.CancelFunc
	stopTimer func()
	mounts    uint64
}

type ProviderOption func(*Provider)

func WithProviderLogger(log logx.Logger) ProviderOption {
	return func(p *Provider) { p.log = log }
}

func WithProviderClock(clock Clock) ProviderOption {
	return func(p *Provider) { p.clock = clock }
}

func NewProvider(opts Options, popts ...ProviderOption) *Provider {
	p := &Provider{opts: opts}
	for _, o := range popts {
		o(p)
	}
	if p.log.IsZero() {
		p.log = logx.Nop()
	}
	if p.clock == nil {
		p.clock = RealClock()
	}
	return p
}

// Mount activates the provider under parent and returns the context that
// carries its Controller. Mounting an active provider returns the existing
// context, so the Controller identity is stable for the whole mount.
func (p *Provider) Mount(parent context.Context) (context.Context, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctrl != nil {
		return p.ctx, nil
	}
	if err := p.opts.validate(); err != nil {
		return nil, err
	}
	if parent == nil {
		parent = context.Background()
	}

	p.mounts++
	ctrl := NewController(
		WithLogger(p.log),
		WithMaxListeners(p.opts.maxListeners()),
		WithClock(p.clock),
	)
	stop, err := startTriggers(ctrl, p.opts)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(parent)
	p.ctrl = ctrl
	p.ctx = context.WithValue(ctx, ctxKey{}, ctrl)
	p.cancelCtx = cancel
	p.stopTimer = stop

	p.log.Debug("provider mounted",
		logx.Uint64("mount", p.mounts),
		logx.Duration("interval", p.opts.Interval),
		logx.String("schedule", p.opts.Schedule),
	)
	return p.ctx, nil
}

// Reconfigure applies new options. While mounted, the running triggers are
// cancelled before new ones start; the Controller is kept. Identical trigger
// options leave the running timer untouched.
func (p *Provider) Reconfigure(opts Options) error {
	if err := opts.validate(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	old := p.opts
	p.opts = opts
	if p.ctrl == nil {
		return nil
	}

	p.ctrl.SetMaxListeners(opts.maxListeners())
	if old.sameTriggers(opts) {
		return nil
	}

	if p.stopTimer != nil {
		p.stopTimer()
		p.stopTimer = nil
	}
	stop, err := startTriggers(p.ctrl, opts)
	if err != nil {
		return err
	}
	p.stopTimer = stop

	p.log.Debug("provider reconfigured",
		logx.Duration("interval_old", old.Interval),
		logx.Duration("interval", opts.Interval),
		logx.String("schedule", opts.Schedule),
	)
	return nil
}

// Unmount stops the timers, cancels the mount context and discards the
// Controller's listeners. Unmounting an inactive provider is a no-op.
func (p *Provider) Unmount() {
	p.mu.Lock()
	ctrl := p.ctrl
	stop := p.stopTimer
	cancel := p.cancelCtx
	p.ctrl, p.ctx, p.cancelCtx, p.stopTimer = nil, nil, nil, nil
	p.mu.Unlock()

	if ctrl == nil {
		return
	}
	if stop != nil {
		stop()
	}
	ctrl.close()
	cancel()
	p.log.Debug("provider unmounted", logx.Uint64("mount", p.mounts))
}

// Context returns the mounted context, or nil while inactive.
func (p *Provider) Context() context.Context {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ctx
}

// Controller returns the mounted Controller, or nil while inactive.
func (p *Provider) Controller() *Controller {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ctrl
}

func (p *Provider) Options() Options {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opts
}

func (p *Provider) Active() bool { return p.Controller() != nil }

// Refetch triggers a manual refetch on the mounted Controller. It returns
// ErrNotMounted while the provider is inactive.
func (p *Provider) Refetch() error {
	ctrl := p.Controller()
	if ctrl == nil {
		return ErrNotMounted
	}
	ctrl.Refetch()
	return nil
}

func startTriggers(ctrl *Controller, opts Options) (func(), error) {
	stops := make([]func(), 0, 2)
	if opts.Interval > 0 {
		stops = append(stops, ctrl.Every(opts.Interval))
	}
	if strings.TrimSpace(opts.Schedule) != "" {
		stop, err := ctrl.Schedule(opts.Schedule)
		if err != nil {
			for _, s := range stops {
				s()
			}
			return nil, err
		}
		stops = append(stops, stop)
	}
	if len(stops) == 0 {
		return nil, nil
	}
	return func() {
		for _, s := range stops {
			s()
		}
	}, nil
}
