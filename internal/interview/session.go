// Package interview runs a live mock-interview session: the conversation
// with the remote interviewer and the clocks, speech and presence checks
// around it.
package interview

import (
	"errors"
	"time"

	"github.com/felixgeelhaar/intervue/internal/feedback"
	"github.com/felixgeelhaar/intervue/internal/presence"
	"github.com/felixgeelhaar/intervue/internal/sessionapi"
	"github.com/felixgeelhaar/intervue/internal/speech"
)

var (
	ErrNotActive       = errors.New("no active interview")
	ErrNotPaused       = errors.New("interview is not paused")
	ErrEmptyReply      = errors.New("reply is empty")
	ErrBusy            = errors.New("another request is in progress")
	ErrEndNotConfirmed = errors.New("end of interview not confirmed")
	ErrAlreadyRunning  = errors.New("an interview is already running")
	ErrJobTitleMissing = errors.New("job title required")
)

// Status is the session lifecycle state.
type Status string

const (
	StatusIdle   Status = "idle"
	StatusActive Status = "active"
	StatusPaused Status = "paused"
	StatusEnded  Status = "ended"
)

// PauseReason records why an active session was paused.
type PauseReason string

const (
	PauseNone       PauseReason = ""
	PauseInactivity PauseReason = "inactivity"
	PauseTimeUp     PauseReason = "time_up"
	PausePresence   PauseReason = "presence"
)

// Title is the heading shown when the session pauses for r.
func (r PauseReason) Title() string {
	switch r {
	case PauseInactivity:
		return "Inactivity Timeout"
	case PauseTimeUp:
		return "Time is Up"
	case PausePresence:
		return "Presence Timeout"
	default:
		return ""
	}
}

// Message explains the pause to the candidate.
func (r PauseReason) Message() string {
	switch r {
	case PauseInactivity:
		return "You have been inactive for a while, so the interview is paused. Resume when you are ready or continue later."
	case PauseTimeUp:
		return "The time for this interview has run out. Resume to keep going or continue later."
	case PausePresence:
		return "We could not see you on camera for some time, so the interview is paused. Resume when you are back."
	default:
		return ""
	}
}

// Question limits offered to the candidate.
var QuestionLimits = []int{10, 15, 20}

// DurationFor returns the interview time allowed for a question limit.
func DurationFor(questionLimit int) time.Duration {
	switch questionLimit {
	case 10:
		return 15 * time.Minute
	case 15:
		return 25 * time.Minute
	case 20:
		return 35 * time.Minute
	default:
		return 20 * time.Minute
	}
}

// Setup describes the interview to start.
type Setup struct {
	JobTitle       string
	ResumeFeedback []byte
	QuestionLimit  int
	Difficulty     string
}

// Preferences are the candidate's device choices. They survive restarts
// through a PreferenceStore.
type Preferences struct {
	Speaker     bool
	Microphone  bool
	Camera      bool
	VoiceGender speech.Gender
}

// DefaultPreferences enables the speaker and a female interviewer voice.
func DefaultPreferences() Preferences {
	return Preferences{
		Speaker:     true,
		VoiceGender: speech.GenderFemale,
	}
}

// ClockKind names the countdowns reported through Notifier.Tick.
type ClockKind string

const (
	ClockInterview  ClockKind = "interview"
	ClockInactivity ClockKind = "inactivity"
	ClockAuth       ClockKind = "auth"
)

// Snapshot is a copy of the controller's observable state.
type Snapshot struct {
	Status        Status
	SessionID     string // empty unless active
	JobTitle      string
	QuestionLimit int
	Difficulty    string
	PauseReason   PauseReason
	Deferred      bool

	InterviewRemaining  int
	InactivityRemaining int
	AuthRemaining       int
	AuthWatched         bool

	Presence  presence.State
	Listening bool
	Speaking  bool
	// PendingReply is speech heard while paused or awaiting the interviewer.
	PendingReply string

	Turns       int
	Limits      *sessionapi.Limits
	Preferences Preferences
	Feedback    *feedback.Result
}
