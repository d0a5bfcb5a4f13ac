package speech

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/felixgeelhaar/intervue/internal/capability"
	"github.com/felixgeelhaar/intervue/internal/loop"
)

// DefaultRate is slightly slower than normal speech.
const DefaultRate = 0.95

// OutputObserver receives playback changes on the loop.
type OutputObserver struct {
	SpeakingChanged func(speaking bool)
	Failed          func(err error)
}

// Output speaks one utterance at a time. Starting a new utterance interrupts
// the current one. Its methods must be called from the loop.
type Output struct {
	exec     loop.Executor
	engine   capability.Of[Synthesizer]
	locale   string
	rate     float64
	enabled  bool
	logger   *slog.Logger
	observer OutputObserver

	voices   []Voice
	gen      uint64
	current  Utterance
	speaking bool
}

// NewOutput creates an enabled output adapter.
func NewOutput(exec loop.Executor, engine capability.Of[Synthesizer], locale string, logger *slog.Logger) *Output {
	if locale == "" {
		locale = "en-US"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Output{
		exec:    exec,
		engine:  engine,
		locale:  locale,
		rate:    DefaultRate,
		enabled: true,
		logger:  logger,
	}
}

// SetObserver replaces the playback observer.
func (o *Output) SetObserver(obs OutputObserver) {
	o.observer = obs
}

// SetRate sets the speaking rate relative to the engine default. Values
// outside (0, 2] are ignored.
func (o *Output) SetRate(rate float64) {
	if rate > 0 && rate <= 2 {
		o.rate = rate
	}
}

// Available reports whether a synthesis engine exists.
func (o *Output) Available() bool {
	return o.engine.OK()
}

// SetEnabled toggles the speaker. Disabling stops current playback.
func (o *Output) SetEnabled(enabled bool) {
	o.enabled = enabled
	if !enabled {
		o.Cancel()
	}
}

// Enabled reports whether the speaker is on.
func (o *Output) Enabled() bool {
	return o.enabled
}

// Speaking reports whether an utterance is playing.
func (o *Output) Speaking() bool {
	return o.speaking
}

// Warm loads the installed voices off the loop so that the first utterance
// can use a preferred voice.
func (o *Output) Warm(ctx context.Context) {
	syn, ok := o.engine.Get()
	if !ok {
		return
	}
	o.exec.Go(func() func() {
		voices, err := syn.Voices(ctx)
		return func() {
			if err != nil {
				o.logger.Warn("list voices failed", "error", err)
				return
			}
			o.voices = voices
			o.logger.Debug("voices loaded", "count", len(voices))
		}
	})
}

// Voices returns the voices loaded by Warm.
func (o *Output) Voices() []Voice {
	out := make([]Voice, len(o.voices))
	copy(out, o.voices)
	return out
}

// Speak interrupts any current utterance and speaks text. It does nothing
// when the speaker is off, no engine exists or the text is blank.
func (o *Output) Speak(ctx context.Context, text string, gender Gender) {
	if !o.enabled || strings.TrimSpace(text) == "" {
		return
	}
	syn, ok := o.engine.Get()
	if !ok {
		return
	}

	o.Cancel()
	gen := o.gen

	var voice *Voice
	if v, ok := SelectVoice(o.voices, gender, o.locale); ok {
		voice = &v
	}

	u, err := syn.Speak(ctx, text, voice, SpeakOptions{Rate: o.rate, Locale: o.locale})
	if err != nil {
		o.fail(err)
		return
	}
	o.current = u
	o.setSpeaking(true)

	go func() {
		<-u.Done()
		err := u.Err()
		o.exec.Post(func() { o.finished(gen, err) })
	}()
}

// Cancel stops the current utterance.
func (o *Output) Cancel() {
	o.gen++
	if o.current != nil {
		o.current.Cancel()
		o.current = nil
	}
	o.setSpeaking(false)
}

func (o *Output) finished(gen uint64, err error) {
	if gen != o.gen {
		return
	}
	o.current = nil
	o.setSpeaking(false)
	if err != nil {
		o.fail(err)
	}
}

func (o *Output) fail(err error) {
	err = fmt.Errorf("%w: %v", ErrSynthesis, err)
	o.logger.Warn("speech output failed", "error", err)
	if o.observer.Failed != nil {
		o.observer.Failed(err)
	}
}

func (o *Output) setSpeaking(speaking bool) {
	if o.speaking == speaking {
		return
	}
	o.speaking = speaking
	if o.observer.SpeakingChanged != nil {
		o.observer.SpeakingChanged(speaking)
	}
}
