package refetch

import (
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	logx "refetch/pkg/logx"
)

// DefaultMaxListeners is the advisory listener count above which a controller
// warns. It is never enforced.
const DefaultMaxListeners = 1000

// Source tells which trigger produced a refetch.
type Source string

const (
	SourceManual   Source = "manual"
	SourceInterval Source = "interval"
	SourceSchedule Source = "schedule"
)

// Event is what channel subscribers receive.
type Event struct {
	Source Source
	At     time.Time
}

// Stats is a best-effort diagnostic snapshot.
type Stats struct {
	Listeners int
	Emitted   uint64
	Delivered uint64
	Panicked  uint64
	Dropped   uint64
}

type subscription struct {
	id   uint64
	fn   func(Event)
	sink *chanSink // set for SubscribeChan registrations; closed on removal
}

// chanSink serializes sends with the close so a dispose racing an emit never
// touches a closed channel.
type chanSink struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

// send reports false when the buffer was full.
func (s *chanSink) send(e Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- e:
		return true
	default:
		return false
	}
}

func (s *chanSink) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// Controller is the refetch broadcaster shared by everything under one
// provider mount.
type Controller struct {
	mu     sync.Mutex
	seq    uint64
	subs   []subscription
	max    int
	closed atomic.Bool

	log      logx.Logger
	clock    Clock
	overWarn *rate.Limiter

	emitted   atomic.Uint64
	delivered atomic.Uint64
	panicked  atomic.Uint64
	dropped   atomic.Uint64
}

type ControllerOption func(*Controller)

func WithLogger(log logx.Logger) ControllerOption {
	return func(c *Controller) { c.log = log }
}

// WithMaxListeners sets the advisory listener limit; n <= 0 disables the warning.
func WithMaxListeners(n int) ControllerOption {
	return func(c *Controller) { c.max = n }
}

// WithClock replaces the time source used by Every.
func WithClock(clock Clock) ControllerOption {
	return func(c *Controller) { c.clock = clock }
}

func NewController(opts ...ControllerOption) *Controller {
	c := &Controller{
		max:      DefaultMaxListeners,
		clock:    RealClock(),
		overWarn: rate.NewLimiter(rate.Every(time.Minute), 1),
	}
	for _, o := range opts {
		o(c)
	}
	if c.log.IsZero() {
		c.log = logx.Nop()
	}
	if c.clock == nil {
		c.clock = RealClock()
	}
	return c
}

// Refetch invokes every registered listener once, in registration order.
func (c *Controller) Refetch() {
	c.emit(SourceManual)
}

// Subscribe registers fn and returns its disposer. Every call is a separate
// registration, even for the same fn; the disposer removes only its own.
func (c *Controller) Subscribe(fn func()) (unsubscribe func()) {
	if c == nil || fn == nil {
		return func() {}
	}
	return c.add(subscription{fn: func(Event) { fn() }})
}

// SubscribeChan registers a channel subscriber. Delivery never blocks: when
// the buffer is full the signal is dropped for that subscriber. The channel
// is closed by the disposer or when the owning provider unmounts.
func (c *Controller) SubscribeChan(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan Event, buffer)
	if c == nil || c.closed.Load() {
		close(ch)
		return ch, func() {}
	}
	sink := &chanSink{ch: ch}
	sub := subscription{sink: sink}
	sub.fn = func(e Event) {
		if !sink.send(e) {
			c.dropped.Add(1)
		}
	}
	return ch, c.add(sub)
}

func (c *Controller) add(sub subscription) func() {
	c.mu.Lock()
	if c.closed.Load() {
		c.mu.Unlock()
		if sub.sink != nil {
			sub.sink.close()
		}
		return func() {}
	}
	c.seq++
	sub.id = c.seq
	c.subs = append(c.subs, sub)
	n := len(c.subs)
	limit := c.max
	c.mu.Unlock()

	if limit > 0 && n > limit && (c.overWarn == nil || c.overWarn.Allow()) {
		c.log.Warn("listener count above advisory limit; possible subscription leak",
			logx.Int("listeners", n),
			logx.Int("max_listeners", limit),
		)
	}

	id := sub.id
	var once sync.Once
	return func() {
		once.Do(func() { c.remove(id) })
	}
}

func (c *Controller) remove(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, s := range c.subs {
		if s.id != id {
			continue
		}
		// Keep order: emit relies on registration order.
		c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
		if s.sink != nil {
			s.sink.close()
		}
		return
	}
}

func (c *Controller) emit(src Source) {
	if c == nil || c.closed.Load() {
		return
	}
	c.emitted.Add(1)

	c.mu.Lock()
	fns := make([]func(Event), len(c.subs))
	for i, s := range c.subs {
		fns[i] = s.fn
	}
	c.mu.Unlock()

	e := Event{Source: src, At: time.Now()}
	for _, fn := range fns {
		c.call(fn, e)
	}
}

// call isolates one listener so a panic can't cut delivery short.
func (c *Controller) call(fn func(Event), e Event) {
	defer func() {
		if r := recover(); r != nil {
			c.panicked.Add(1)
			c.log.Warn("refetch listener panicked",
				logx.String("source", string(e.Source)),
				logx.String("panic", fmt.Sprint(r)),
				logx.Stack(string(debug.Stack())),
			)
		}
	}()
	fn(e)
	c.delivered.Add(1)
}

// SetMaxListeners changes the advisory limit; n <= 0 disables the warning.
func (c *Controller) SetMaxListeners(n int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.max = n
	c.mu.Unlock()
}

// Len returns the number of live registrations.
func (c *Controller) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

func (c *Controller) Stats() Stats {
	if c == nil {
		return Stats{}
	}
	return Stats{
		Listeners: c.Len(),
		Emitted:   c.emitted.Load(),
		Delivered: c.delivered.Load(),
		Panicked:  c.panicked.Load(),
		Dropped:   c.dropped.Load(),
	}
}

// Closed reports whether the owning provider has unmounted.
func (c *Controller) Closed() bool {
	return c == nil || c.closed.Load()
}

// close discards the listener set. Channel subscribers are closed so that
// goroutines ranging over them can exit; function listeners are just dropped.
func (c *Controller) close() {
	c.mu.Lock()
	if c.closed.Swap(true) {
		c.mu.Unlock()
		return
	}
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, s := range subs {
		if s.sink != nil {
			s.sink.close()
		}
	}
}
