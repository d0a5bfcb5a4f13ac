// Package loop serializes controller work onto a single logical thread.
//
// Every piece of session state is owned by exactly one Executor. Timer
// callbacks, device results and network completions are posted onto it so
// that state is only ever touched from one goroutine at a time.
package loop

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
)

// ErrStopped is returned by Do when the loop has shut down.
var ErrStopped = errors.New("loop stopped")

// Executor runs functions on the owning logical thread.
type Executor interface {
	// Post schedules fn to run on the loop. It never waits for fn.
	Post(fn func())
	// Do runs fn on the loop and waits for it to return.
	Do(ctx context.Context, fn func()) error
	// Go runs work off the loop. A non-nil continuation returned by work is
	// posted back onto the loop.
	Go(work func() func())
}

// Loop is a goroutine-backed Executor with an unbounded queue.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	stopped chan struct{}
	once    sync.Once
	logger  *slog.Logger
}

// New creates a loop. Call Run to start processing.
func New(logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
		logger:  logger,
	}
}

// Run processes posted functions until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	defer l.once.Do(func() { close(l.stopped) })

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}

		for {
			l.mu.Lock()
			if len(l.queue) == 0 {
				l.mu.Unlock()
				break
			}
			fn := l.queue[0]
			l.queue[0] = nil
			l.queue = l.queue[1:]
			l.mu.Unlock()

			l.run(fn)

			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}
}

func (l *Loop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("panic on loop",
				"error", r,
				"stack", string(debug.Stack()),
			)
		}
	}()
	fn()
}

// Post implements Executor.
func (l *Loop) Post(fn func()) {
	select {
	case <-l.stopped:
		return
	default:
	}

	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Do implements Executor.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		fn()
	})

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stopped:
		return ErrStopped
	}
}

// Go implements Executor.
func (l *Loop) Go(work func() func()) {
	go func() {
		if next := work(); next != nil {
			l.Post(next)
		}
	}()
}

// Inline is a synchronous Executor. Posted functions run on the calling
// goroutine, and functions posted while another is running are queued behind
// it, so callbacks never nest. Go runs its work synchronously.
//
// Inline suits tests and hosts that drive everything from one goroutine.
type Inline struct {
	mu       sync.Mutex
	queue    []func()
	draining bool
}

// Post implements Executor.
func (in *Inline) Post(fn func()) {
	in.mu.Lock()
	in.queue = append(in.queue, fn)
	if in.draining {
		in.mu.Unlock()
		return
	}
	in.draining = true

	for len(in.queue) > 0 {
		next := in.queue[0]
		in.queue[0] = nil
		in.queue = in.queue[1:]
		in.mu.Unlock()
		next()
		in.mu.Lock()
	}

	in.draining = false
	in.mu.Unlock()
}

// Do implements Executor. When called from inside a running function, fn is
// queued and Do returns before it runs.
func (in *Inline) Do(ctx context.Context, fn func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	in.Post(fn)
	return nil
}

// Go implements Executor.
func (in *Inline) Go(work func() func()) {
	if next := work(); next != nil {
		in.Post(next)
	}
}
