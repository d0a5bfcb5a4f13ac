package auth

import (
	"fmt"
	"time"

	"github.com/felixgeelhaar/intervue/internal/clock"
)

// Watch counts down to a credential's expiry. It must be used from the
// loop that owns its scheduler.
type Watch struct {
	sched   clock.Scheduler
	clock   *clock.Clock
	cred    Credential
	expired bool
}

// NewWatch creates a stopped watch.
func NewWatch(sched clock.Scheduler, cred Credential) *Watch {
	return &Watch{
		sched: sched,
		clock: clock.New(sched),
		cred:  cred,
	}
}

// Start reads the credential expiry and counts down to it. A credential
// that has already expired calls onExpire on the next loop turn.
func (w *Watch) Start(onTick func(remaining int), onExpire func()) error {
	token, err := w.cred.Token()
	if err != nil {
		return err
	}
	exp, err := ExpiresAt(token)
	if err != nil {
		return fmt.Errorf("read expiry: %w", err)
	}

	seconds := int(exp.Sub(w.sched.Now()) / time.Second)
	if seconds < 0 {
		seconds = 0
	}
	w.expired = false
	w.clock.Start(seconds, onTick, func() {
		w.expired = true
		if onExpire != nil {
			onExpire()
		}
	})
	return nil
}

// Stop cancels the countdown.
func (w *Watch) Stop() {
	w.clock.Cancel()
}

// Remaining returns the seconds until expiry.
func (w *Watch) Remaining() int {
	return w.clock.Remaining()
}

// Running reports whether a countdown is in progress.
func (w *Watch) Running() bool {
	return w.clock.Running()
}

// Expired reports whether the countdown reached zero.
func (w *Watch) Expired() bool {
	return w.expired
}
