// Package inactivity pauses a session when the candidate stops responding.
package inactivity

import (
	"time"

	"github.com/felixgeelhaar/intervue/internal/clock"
)

// DefaultTimeout is how long a candidate may stay silent.
const DefaultTimeout = 5 * time.Minute

// Monitor counts down from the last candidate activity. It must be used
// from the loop that owns its scheduler.
type Monitor struct {
	clock   *clock.Clock
	timeout time.Duration
	armed   bool
	onIdle  func()
}

// New creates a disarmed monitor. A non-positive timeout selects
// DefaultTimeout.
func New(sched clock.Scheduler, timeout time.Duration) *Monitor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Monitor{
		clock:   clock.New(sched),
		timeout: timeout,
	}
}

// OnIdle sets the callback invoked once per countdown when the timeout
// elapses without activity.
func (m *Monitor) OnIdle(fn func()) {
	m.onIdle = fn
}

// Start arms the monitor and begins a fresh countdown.
func (m *Monitor) Start() {
	m.armed = true
	m.restart()
}

// RecordActivity restarts the countdown. It does nothing while the monitor
// is disarmed.
func (m *Monitor) RecordActivity() {
	if !m.armed {
		return
	}
	m.restart()
}

// Stop disarms the monitor and cancels the countdown.
func (m *Monitor) Stop() {
	m.armed = false
	m.clock.Cancel()
}

// Armed reports whether activity is being tracked.
func (m *Monitor) Armed() bool {
	return m.armed
}

// Remaining returns the seconds left before the idle callback fires.
func (m *Monitor) Remaining() int {
	return m.clock.Remaining()
}

func (m *Monitor) restart() {
	m.clock.Start(int(m.timeout/time.Second), nil, func() {
		if m.onIdle != nil {
			m.onIdle()
		}
	})
}
