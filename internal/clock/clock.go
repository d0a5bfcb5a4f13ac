// Package clock provides the second-granularity countdowns that drive an
// interview session.
package clock

import (
	"fmt"
	"time"
)

// Clock counts down whole seconds and reports each tick.
//
// A Clock is not safe for concurrent use; it belongs to the loop its
// Scheduler posts onto. Each Start begins a new generation, and callbacks
// from an older generation are discarded, so a cancelled countdown never
// ticks or expires.
type Clock struct {
	sched     Scheduler
	gen       uint64
	running   bool
	remaining int
	deadline  time.Time
	timer     Timer
	onTick    func(remaining int)
	onExpire  func()
}

// New creates a stopped clock.
func New(sched Scheduler) *Clock {
	return &Clock{sched: sched}
}

// Start cancels any running countdown and starts a new one of the given
// number of seconds. onTick receives the remaining seconds after every
// elapsed second, including the final zero. onExpire runs once when the
// countdown reaches zero. Either callback may be nil.
func (c *Clock) Start(seconds int, onTick func(remaining int), onExpire func()) {
	c.Cancel()

	if seconds < 0 {
		seconds = 0
	}
	c.gen++
	c.running = true
	c.remaining = seconds
	c.deadline = c.sched.Now().Add(time.Duration(seconds) * time.Second)
	c.onTick = onTick
	c.onExpire = onExpire

	gen := c.gen
	if seconds == 0 {
		c.timer = c.sched.AfterFunc(0, func() { c.tick(gen) })
		return
	}
	c.scheduleNext(gen)
}

// Cancel stops the countdown. Remaining keeps the value it had.
func (c *Clock) Cancel() {
	c.gen++
	c.running = false
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// Remaining returns the seconds left on the countdown.
func (c *Clock) Remaining() int {
	return c.remaining
}

// Running reports whether a countdown is in progress.
func (c *Clock) Running() bool {
	return c.running
}

// Deadline returns when the current countdown expires.
func (c *Clock) Deadline() time.Time {
	return c.deadline
}

// scheduleNext aims each tick at its slot relative to the deadline so that
// late callbacks do not accumulate drift.
func (c *Clock) scheduleNext(gen uint64) {
	at := c.deadline.Add(-time.Duration(c.remaining-1) * time.Second)
	d := at.Sub(c.sched.Now())
	c.timer = c.sched.AfterFunc(d, func() { c.tick(gen) })
}

func (c *Clock) tick(gen uint64) {
	if gen != c.gen || !c.running {
		return
	}

	if c.remaining > 0 {
		c.remaining--
	}

	if c.remaining > 0 {
		c.scheduleNext(gen)
		if c.onTick != nil {
			c.onTick(c.remaining)
		}
		return
	}

	c.running = false
	c.timer = nil
	onTick, onExpire := c.onTick, c.onExpire
	if onTick != nil {
		onTick(0)
	}
	// onTick may have restarted or cancelled the clock.
	if gen != c.gen {
		return
	}
	if onExpire != nil {
		onExpire()
	}
}

// FormatRemaining renders seconds as m:ss.
func FormatRemaining(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
