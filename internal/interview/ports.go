package interview

import (
	"context"

	"github.com/felixgeelhaar/intervue/internal/feedback"
	"github.com/felixgeelhaar/intervue/internal/presence"
	"github.com/felixgeelhaar/intervue/internal/speech"
	"github.com/felixgeelhaar/intervue/internal/transcript"
)

// Notifier receives session events on the loop. Implementations must not
// block.
type Notifier interface {
	StatusChanged(s Snapshot)
	Message(e transcript.Entry)
	Tick(kind ClockKind, remaining int)
	Paused(reason PauseReason)
	PresenceWarning()
	Transcribing(text string)
	Finished(result feedback.Result)
	Warn(err error)
}

// NopNotifier ignores every event. Embed it to implement a subset.
type NopNotifier struct{}

func (NopNotifier) StatusChanged(Snapshot)   {}
func (NopNotifier) Message(transcript.Entry) {}
func (NopNotifier) Tick(ClockKind, int)      {}
func (NopNotifier) Paused(PauseReason)       {}
func (NopNotifier) PresenceWarning()         {}
func (NopNotifier) Transcribing(string)      {}
func (NopNotifier) Finished(feedback.Result) {}
func (NopNotifier) Warn(error)               {}

// Confirmer asks the candidate to confirm ending the interview. It is
// called off the loop and may block.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, prompt string) bool

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) bool {
	return f(ctx, prompt)
}

// AlwaysConfirm confirms every prompt.
var AlwaysConfirm = ConfirmFunc(func(context.Context, string) bool { return true })

// PreferenceStore persists Preferences.
type PreferenceStore interface {
	Load() (Preferences, error)
	Save(p Preferences) error
}

// Speaker is implemented by *speech.Output.
type Speaker interface {
	Speak(ctx context.Context, text string, gender speech.Gender)
	Cancel()
	SetEnabled(enabled bool)
	Speaking() bool
}

// Listener is implemented by *speech.Input.
type Listener interface {
	Available() bool
	Active() bool
	Listen(ctx context.Context, onResult func(speech.Result), onError func(error)) (*speech.Listening, error)
	Cancel()
}

// PresenceMonitor is implemented by *presence.Monitor.
type PresenceMonitor interface {
	SetHandlers(h presence.Handlers)
	Start(ctx context.Context)
	Stop()
	State() presence.State
}
