// Package speech adapts speech recognition and synthesis engines to the
// interview loop.
package speech

import (
	"context"
	"errors"
	"net"

	"github.com/felixgeelhaar/intervue/internal/capability"
)

var (
	ErrNoSpeech    = errors.New("no speech detected")
	ErrNetwork     = errors.New("speech service unreachable")
	ErrRecognition = errors.New("speech recognition failed")
	ErrSynthesis   = errors.New("speech synthesis failed")
)

// Result is a recognised piece of speech.
type Result struct {
	Text  string
	Final bool
}

// Recognition is one running recognition pass.
type Recognition interface {
	// Results delivers transcripts and is closed when the pass ends.
	Results() <-chan Result
	// Err reports why the pass ended. It is valid once Results is closed.
	Err() error
	// Cancel ends the pass early and releases the microphone.
	Cancel()
}

// Recognizer starts recognition passes.
type Recognizer interface {
	Start(ctx context.Context, locale string) (Recognition, error)
}

// Gender selects a voice family.
type Gender string

const (
	GenderFemale Gender = "female"
	GenderMale   Gender = "male"
)

// ParseGender maps user input to a gender, defaulting to female.
func ParseGender(s string) Gender {
	if Gender(s) == GenderMale {
		return GenderMale
	}
	return GenderFemale
}

// Voice describes an installed synthesis voice.
type Voice struct {
	ID     string
	Name   string
	Locale string
	Gender Gender
}

// Utterance is one piece of speech being played.
type Utterance interface {
	// Done is closed when playback finishes or is cancelled.
	Done() <-chan struct{}
	// Err reports a playback failure. It is valid once Done is closed.
	Err() error
	Cancel()
}

// SpeakOptions tune an utterance.
type SpeakOptions struct {
	// Rate is relative to the engine default, where 1 is normal speed.
	Rate float64
	// Locale is used when no voice is chosen.
	Locale string
}

// Synthesizer plays text aloud.
type Synthesizer interface {
	Voices(ctx context.Context) ([]Voice, error)
	// Speak starts playback and returns without waiting for it to finish.
	// A nil voice selects the engine default.
	Speak(ctx context.Context, text string, voice *Voice, opts SpeakOptions) (Utterance, error)
}

// ErrorKind classifies recognition failures.
type ErrorKind int

const (
	KindOther ErrorKind = iota
	KindPermissionDenied
	KindNoSpeech
	KindNetwork
	KindUnavailable
)

// KindOf classifies err.
func KindOf(err error) ErrorKind {
	var netErr net.Error
	switch {
	case err == nil:
		return KindOther
	case errors.Is(err, capability.ErrPermissionDenied):
		return KindPermissionDenied
	case errors.Is(err, capability.ErrUnavailable):
		return KindUnavailable
	case errors.Is(err, ErrNoSpeech):
		return KindNoSpeech
	case errors.Is(err, ErrNetwork), errors.As(err, &netErr):
		return KindNetwork
	default:
		return KindOther
	}
}

// Guidance returns the message shown to the candidate for a failure kind.
func Guidance(kind ErrorKind) string {
	switch kind {
	case KindPermissionDenied:
		return "Microphone access was denied. Allow microphone access and try again, or type your answer."
	case KindNoSpeech:
		return "No speech was detected. Please try again."
	case KindNetwork:
		return "Speech recognition could not reach its service. Check your connection or type your answer."
	case KindUnavailable:
		return "Speech recognition is not available here. Please type your answer."
	default:
		return "Speech recognition stopped unexpectedly. Please try again or type your answer."
	}
}
