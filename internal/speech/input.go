package speech

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/felixgeelhaar/intervue/internal/capability"
	"github.com/felixgeelhaar/intervue/internal/loop"
)

// Input runs at most one recognition pass at a time and delivers its
// results on the loop. Its methods must be called from the loop.
type Input struct {
	exec    loop.Executor
	engine  capability.Of[Recognizer]
	locale  string
	logger  *slog.Logger
	current *Listening
}

// Listening is the handle of a running recognition pass.
type Listening struct {
	in        *Input
	rec       Recognition
	cancelled bool
}

// NewInput creates an input adapter. An empty locale selects en-US.
func NewInput(exec loop.Executor, engine capability.Of[Recognizer], locale string, logger *slog.Logger) *Input {
	if locale == "" {
		locale = "en-US"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Input{
		exec:   exec,
		engine: engine,
		locale: locale,
		logger: logger,
	}
}

// Available reports whether a recognition engine exists.
func (in *Input) Available() bool {
	return in.engine.OK()
}

// Active reports whether a pass is running.
func (in *Input) Active() bool {
	return in.current != nil
}

// Listen starts a recognition pass, cancelling any pass already running.
// Results and the terminal error are delivered on the loop; neither
// callback runs after the handle is cancelled.
func (in *Input) Listen(ctx context.Context, onResult func(Result), onError func(error)) (*Listening, error) {
	rec, ok := in.engine.Get()
	if !ok {
		return nil, fmt.Errorf("listen: %w", in.engine.Reason())
	}

	in.Cancel()

	h := &Listening{in: in}
	in.current = h
	locale := in.locale

	in.exec.Go(func() func() {
		r, err := rec.Start(ctx, locale)
		return func() { in.started(h, r, err, onResult, onError) }
	})
	return h, nil
}

// Cancel stops the running pass, if any.
func (in *Input) Cancel() {
	if in.current != nil {
		in.current.Cancel()
	}
}

func (in *Input) started(h *Listening, r Recognition, err error, onResult func(Result), onError func(error)) {
	if err != nil {
		if in.current == h {
			in.current = nil
		}
		in.logger.Warn("speech recognition failed to start", "error", err)
		if !h.cancelled && onError != nil {
			onError(err)
		}
		return
	}
	if h.cancelled {
		r.Cancel()
		return
	}
	h.rec = r

	go in.pump(h, r, onResult, onError)
}

func (in *Input) pump(h *Listening, r Recognition, onResult func(Result), onError func(error)) {
	for res := range r.Results() {
		res := res
		in.exec.Post(func() {
			if !h.cancelled && onResult != nil {
				onResult(res)
			}
		})
	}

	err := r.Err()
	in.exec.Post(func() {
		if in.current == h {
			in.current = nil
		}
		if h.cancelled || err == nil {
			return
		}
		in.logger.Debug("speech recognition ended", "error", err)
		if onError != nil {
			onError(err)
		}
	})
}

// Cancel ends the pass and releases the microphone. It is idempotent.
func (h *Listening) Cancel() {
	if h.cancelled {
		return
	}
	h.cancelled = true
	if h.rec != nil {
		h.rec.Cancel()
	}
	if h.in.current == h {
		h.in.current = nil
	}
}
