package refetch

import (
	"sync"
	"testing"
	"time"
)

// fakeClock hands out tickers that only fire on Advance. Each tick is
// delivered synchronously: Advance returns once the timer goroutine has
// picked it up (or the ticker was stopped).
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

type fakeTicker struct {
	c       chan time.Time
	d       time.Duration
	next    time.Time
	stopped chan struct{}
	once    sync.Once
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(0, 0)} }

func (f *fakeClock) NewTicker(d time.Duration) Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTicker{c: make(chan time.Time), d: d, next: f.now.Add(d), stopped: make(chan struct{})}
	f.tickers = append(f.tickers, t)
	return t
}

func (t *fakeTicker) C() <-chan time.Time { return t.c }
func (t *fakeTicker) Stop()               { t.once.Do(func() { close(t.stopped) }) }

func (t *fakeTicker) isStopped() bool {
	select {
	case <-t.stopped:
		return true
	default:
		return false
	}
}

// Advance moves time forward in steps so every due tick fires in order.
func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	end := f.now.Add(d)
	f.mu.Unlock()

	for {
		f.mu.Lock()
		var due *fakeTicker
		for _, t := range f.tickers {
			if t.isStopped() || t.next.After(end) {
				continue
			}
			if due == nil || t.next.Before(due.next) {
				due = t
			}
		}
		if due == nil {
			f.now = end
			f.mu.Unlock()
			return
		}
		f.now = due.next
		at := due.next
		due.next = due.next.Add(due.d)
		f.mu.Unlock()

		select {
		case due.c <- at:
		case <-due.stopped:
		}
	}
}

func (f *fakeClock) active() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.tickers {
		if !t.isStopped() {
			n++
		}
	}
	return n
}

// counter counts listener calls and lets tests wait for a given total.
type counter struct {
	mu   sync.Mutex
	n    int
	cond *sync.Cond
}

func newCounter() *counter {
	c := &counter{}
	c.cond = sync.NewCond(&c.mu)
	return c
}

func (c *counter) inc() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
	c.cond.Broadcast()
}

func (c *counter) get() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func (c *counter) waitFor(t *testing.T, want int) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		c.mu.Lock()
		for c.n < want {
			c.cond.Wait()
		}
		c.mu.Unlock()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %d calls, got %d", want, c.get())
	}
}
