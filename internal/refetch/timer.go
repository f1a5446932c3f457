package refetch

import (
	"sync"
	"time"
)

// Clock abstracts the ticker source so timer behavior can be driven in tests.
type Clock interface {
	NewTicker(d time.Duration) Ticker
}

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realClock struct{}

type realTicker struct{ t *time.Ticker }

// RealClock returns the wall-clock implementation backed by time.Ticker.
func RealClock() Clock { return realClock{} }

func (realClock) NewTicker(d time.Duration) Ticker { return realTicker{t: time.NewTicker(d)} }

func (t realTicker) C() <-chan time.Time { return t.t.C }
func (t realTicker) Stop()               { t.t.Stop() }

// Every emits a refetch every interval, the first one interval after the
// call. It returns the cancel func; cancel is idempotent. interval <= 0
// starts nothing.
//
// Once cancel returns the timer admits no further emission. One admitted
// before cancel took the gate (for example, the one whose listener called
// cancel) is allowed to finish.
func (c *Controller) Every(interval time.Duration) (cancel func()) {
	if c == nil || interval <= 0 || c.closed.Load() {
		return func() {}
	}

	clock := c.clock
	if clock == nil {
		clock = RealClock()
	}
	t := clock.NewTicker(interval)
	done := make(chan struct{})
	exited := make(chan struct{})

	// gate orders the loop's decision to fire against cancel.
	var (
		gate     sync.Mutex
		stopped  bool
		firing   bool
		stopOnce sync.Once
	)
	begin := func() bool {
		gate.Lock()
		defer gate.Unlock()
		if stopped {
			return false
		}
		firing = true
		return true
	}
	end := func() {
		gate.Lock()
		firing = false
		gate.Unlock()
	}

	go func() {
		defer close(exited)
		for {
			select {
			case <-done:
				return
			case <-t.C():
			}
			if !begin() {
				return
			}
			c.emit(SourceInterval)
			end()
		}
	}()

	return func() {
		stopOnce.Do(func() {
			gate.Lock()
			stopped = true
			busy := firing
			gate.Unlock()

			close(done)
			t.Stop()
			if !busy {
				<-exited
			}
		})
	}
}
