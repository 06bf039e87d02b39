// Package countdown reports the seconds left until a session expiry. The clock
// is sampled once per interval and a tick is delivered whenever the whole
// seconds remaining drop, until zero or Stop.
package countdown

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// TickFunc receives the run id the tick belongs to and the seconds remaining.
// It is called on the countdown's own goroutine.
type TickFunc func(run uint64, remaining int)

type Option func(*Countdown)

// WithInterval overrides the one second tick period.
func WithInterval(d time.Duration) Option {
	return func(c *Countdown) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Countdown) {
		if now != nil {
			c.now = now
		}
	}
}

// Countdown runs at most one decrement stream at a time.
type Countdown struct {
	tick     TickFunc
	interval time.Duration
	now      func() time.Time

	mu   sync.Mutex
	run  uint64
	stop chan struct{}
	wg   sync.WaitGroup
}

func New(tick TickFunc, opts ...Option) *Countdown {
	c := &Countdown{
		tick:     tick,
		interval: time.Second,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start cancels any running stream and begins a new one toward expiry. It
// returns the new run id and the initial remaining seconds. An expiry in the
// past yields a stream that reports zero once and ends.
func (c *Countdown) Start(expiry time.Time) (uint64, int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLocked()
	c.run++
	run := c.run
	stop := make(chan struct{})
	c.stop = stop

	initial := remainingSeconds(expiry, c.now())
	c.wg.Add(1)
	go c.loop(run, expiry, initial, stop)
	return run, initial
}

// Stop cancels the running stream, if any.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

// Running reports whether a stream is active.
func (c *Countdown) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stop != nil
}

// Wait blocks until every stream goroutine has exited.
func (c *Countdown) Wait() {
	c.wg.Wait()
}

func (c *Countdown) stopLocked() {
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
}

func (c *Countdown) loop(run uint64, expiry time.Time, remaining int, stop chan struct{}) {
	defer c.wg.Done()
	defer c.finish(run)

	if remaining <= 0 {
		c.deliver(run, 0, stop)
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			next := remainingSeconds(expiry, c.now())
			// Follow the wall clock but never count back up.
			if next >= remaining {
				continue
			}
			remaining = next
			if !c.deliver(run, remaining, stop) {
				return
			}
			if remaining == 0 {
				return
			}
		}
	}
}

func (c *Countdown) deliver(run uint64, remaining int, stop chan struct{}) bool {
	select {
	case <-stop:
		return false
	default:
	}
	if c.tick != nil {
		c.tick(run, remaining)
	}
	return true
}

// finish clears the slot when the stream ended on its own.
func (c *Countdown) finish(run uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.run == run && c.stop != nil {
		c.stop = nil
	}
}

func remainingSeconds(expiry, now time.Time) int {
	d := expiry.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(math.Round(d.Seconds()))
}

// FormatRemaining renders seconds as mm:ss.
func FormatRemaining(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
