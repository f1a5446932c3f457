package refetch

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestUseOutsideProviderIsAbsent(t *testing.T) {
	t.Parallel()
	if c := Use(context.Background()); c != nil {
		t.Fatalf("Use outside provider = %p, want nil", c)
	}
	//nolint:staticcheck // nil context is part of the contract
	if c := Use(nil); c != nil {
		t.Fatal("Use(nil) must be nil")
	}
	Trigger(context.Background())
	Subscribe(context.Background(), func() { t.Fatal("must not run") })()
}

func TestMountIdentityIsStable(t *testing.T) {
	t.Parallel()
	p := NewProvider(Options{})
	ctx, err := p.Mount(context.Background())
	if err != nil {
		t.Fatalf("Mount error: %v", err)
	}
	defer p.Unmount()

	first := Use(ctx)
	if first == nil {
		t.Fatal("Use inside provider returned nil")
	}
	again, err := p.Mount(context.Background())
	if err != nil {
		t.Fatalf("second Mount error: %v", err)
	}
	if again != ctx || Use(again) != first || p.Controller() != first {
		t.Fatal("controller identity changed while mounted")
	}
	if err := p.Reconfigure(Options{Interval: time.Hour}); err != nil {
		t.Fatalf("Reconfigure error: %v", err)
	}
	if Use(ctx) != first {
		t.Fatal("Reconfigure recreated the controller")
	}
}

func TestNestedProviderShadowsOuter(t *testing.T) {
	t.Parallel()
	outer := NewProvider(Options{})
	octx, _ := outer.Mount(context.Background())
	defer outer.Unmount()

	inner := NewProvider(Options{})
	ictx, _ := inner.Mount(octx)
	defer inner.Unmount()

	if Use(ictx) != inner.Controller() {
		t.Fatal("nearest provider must win")
	}
	if Use(octx) != outer.Controller() {
		t.Fatal("outer scope must still see the outer controller")
	}
}

func TestProviderIntervalFires(t *testing.T) {
	t.Parallel()
	clk := newFakeClock()
	p := NewProvider(Options{Interval: 100 * time.Millisecond}, WithProviderClock(clk))
	ctx, err := p.Mount(context.Background())
	if err != nil {
		t.Fatalf("Mount error: %v", err)
	}
	defer p.Unmount()

	calls := newCounter()
	Subscribe(ctx, calls.inc)

	clk.Advance(99 * time.Millisecond)
	if calls.get() != 0 {
		t.Fatal("fired before the first interval")
	}
	clk.Advance(101 * time.Millisecond)
	calls.waitFor(t, 2)
}

func TestProviderWithoutIntervalHasNoTimer(t *testing.T) {
	t.Parallel()
	clk := newFakeClock()
	p := NewProvider(Options{}, WithProviderClock(clk))
	ctx, _ := p.Mount(context.Background())
	defer p.Unmount()

	n := 0
	Subscribe(ctx, func() { n++ })
	clk.Advance(time.Hour)
	if clk.active() != 0 || n != 0 {
		t.Fatalf("timer activity without interval: tickers=%d calls=%d", clk.active(), n)
	}
	Trigger(ctx)
	if n != 1 {
		t.Fatalf("manual trigger calls = %d, want 1", n)
	}
}

func TestReconfigureReschedulesWithoutDoubleFiring(t *testing.T) {
	t.Parallel()
	clk := newFakeClock()
	p := NewProvider(Options{Interval: 100 * time.Millisecond}, WithProviderClock(clk))
	ctx, _ := p.Mount(context.Background())
	defer p.Unmount()

	calls := newCounter()
	Subscribe(ctx, calls.inc)

	clk.Advance(50 * time.Millisecond)
	if err := p.Reconfigure(Options{Interval: 200 * time.Millisecond}); err != nil {
		t.Fatalf("Reconfigure error: %v", err)
	}
	if clk.active() != 1 {
		t.Fatalf("active tickers = %d, want 1", clk.active())
	}

	// Old schedule would have fired at 100ms; the new one is due at 250ms.
	clk.Advance(150 * time.Millisecond)
	if n := calls.get(); n != 0 {
		t.Fatalf("calls at 200ms = %d, want 0", n)
	}
	clk.Advance(50 * time.Millisecond)
	calls.waitFor(t, 1)

	// Same options: no reschedule.
	if err := p.Reconfigure(Options{Interval: 200 * time.Millisecond}); err != nil {
		t.Fatalf("Reconfigure error: %v", err)
	}
	if len(clk.tickers) != 2 {
		t.Fatalf("tickers created = %d, want 2", len(clk.tickers))
	}

	// Interval removed: timer stops, controller stays.
	ctrl := p.Controller()
	if err := p.Reconfigure(Options{}); err != nil {
		t.Fatalf("Reconfigure error: %v", err)
	}
	if clk.active() != 0 || p.Controller() != ctrl {
		t.Fatalf("tickers=%d, controller replaced=%v", clk.active(), p.Controller() != ctrl)
	}
}

func TestReconfigureRejectsBadSchedule(t *testing.T) {
	t.Parallel()
	clk := newFakeClock()
	p := NewProvider(Options{Interval: time.Second}, WithProviderClock(clk))
	_, _ = p.Mount(context.Background())
	defer p.Unmount()

	err := p.Reconfigure(Options{Schedule: "bogus"})
	if !errors.Is(err, ErrInvalidSchedule) {
		t.Fatalf("err = %v, want ErrInvalidSchedule", err)
	}
	if p.Options().Interval != time.Second || clk.active() != 1 {
		t.Fatal("rejected options must leave the running timer alone")
	}
}

func TestMountRejectsBadSchedule(t *testing.T) {
	t.Parallel()
	p := NewProvider(Options{Schedule: "bogus"})
	if _, err := p.Mount(context.Background()); !errors.Is(err, ErrInvalidSchedule) {
		t.Fatalf("err = %v, want ErrInvalidSchedule", err)
	}
	if p.Active() {
		t.Fatal("provider active after failed mount")
	}
}

func TestUnmountCancelsTimerAndStaleHandlesAreSafe(t *testing.T) {
	t.Parallel()
	clk := newFakeClock()
	p := NewProvider(Options{Interval: 10 * time.Millisecond}, WithProviderClock(clk))
	ctx, _ := p.Mount(context.Background())

	stale := Use(ctx)
	calls := newCounter()
	unsub := stale.Subscribe(calls.inc)

	clk.Advance(10 * time.Millisecond)
	calls.waitFor(t, 1)

	p.Unmount()
	p.Unmount()

	if clk.active() != 0 {
		t.Fatal("timer survived unmount")
	}
	if ctx.Err() == nil {
		t.Fatal("mount context not cancelled")
	}
	clk.Advance(time.Second)
	if n := calls.get(); n != 1 {
		t.Fatalf("calls after unmount = %d, want 1", n)
	}

	unsub()
	stale.Subscribe(calls.inc)()
	stale.Refetch()
	if Use(ctx) != nil {
		t.Fatal("Use must report absent after unmount")
	}
	if p.Context() != nil || p.Controller() != nil {
		t.Fatal("inactive provider still exposes its mount")
	}
}

func TestProviderRefetchRequiresMount(t *testing.T) {
	t.Parallel()
	p := NewProvider(Options{})
	if err := p.Refetch(); !errors.Is(err, ErrNotMounted) {
		t.Fatalf("Refetch before mount err = %v, want ErrNotMounted", err)
	}

	ctx, _ := p.Mount(context.Background())
	calls := newCounter()
	Use(ctx).Subscribe(calls.inc)
	if err := p.Refetch(); err != nil {
		t.Fatalf("Refetch while mounted err = %v", err)
	}
	if n := calls.get(); n != 1 {
		t.Fatalf("calls = %d, want 1", n)
	}

	p.Unmount()
	if err := p.Refetch(); !errors.Is(err, ErrNotMounted) {
		t.Fatalf("Refetch after unmount err = %v, want ErrNotMounted", err)
	}
}

func TestRemountCreatesFreshController(t *testing.T) {
	t.Parallel()
	p := NewProvider(Options{})
	ctx1, _ := p.Mount(context.Background())
	c1 := Use(ctx1)
	p.Unmount()

	ctx2, _ := p.Mount(context.Background())
	defer p.Unmount()
	if c2 := Use(ctx2); c2 == nil || c2 == c1 {
		t.Fatal("remount must create a new controller")
	}
}

func TestReconfigureWhileInactiveAppliesOnMount(t *testing.T) {
	t.Parallel()
	clk := newFakeClock()
	p := NewProvider(Options{}, WithProviderClock(clk))
	if err := p.Reconfigure(Options{Interval: time.Second}); err != nil {
		t.Fatalf("Reconfigure error: %v", err)
	}
	if len(clk.tickers) != 0 {
		t.Fatal("inactive provider started a timer")
	}
	_, _ = p.Mount(context.Background())
	defer p.Unmount()
	if clk.active() != 1 {
		t.Fatalf("active tickers = %d, want 1", clk.active())
	}
}

func TestSubscribeHelperReleasesWithContext(t *testing.T) {
	t.Parallel()
	p := NewProvider(Options{})
	ctx, _ := p.Mount(context.Background())
	defer p.Unmount()

	cctx, cancel := context.WithCancel(ctx)
	Subscribe(cctx, func() {})
	if Use(ctx).Len() != 1 {
		t.Fatal("subscription not registered")
	}
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for Use(ctx).Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscription not released after context cancel")
		}
		time.Sleep(time.Millisecond)
	}

	unsub := Subscribe(ctx, func() {})
	unsub()
	if Use(ctx).Len() != 0 {
		t.Fatal("explicit disposer did not release")
	}
}

func TestMaxListenersOption(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in, want int
	}{
		{0, DefaultMaxListeners},
		{50, 50},
		{-1, -1},
	}
	for _, tt := range tests {
		if got := (Options{MaxListeners: tt.in}).maxListeners(); got != tt.want {
			t.Fatalf("maxListeners(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
