package main

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/felixgeelhaar/intervue/internal/auth"
	"github.com/felixgeelhaar/intervue/internal/clock"
	"github.com/felixgeelhaar/intervue/internal/feedback"
	"github.com/felixgeelhaar/intervue/internal/interview"
	"github.com/felixgeelhaar/intervue/internal/speech"
	"github.com/felixgeelhaar/intervue/internal/transcript"
)

// Countdown values, in seconds, worth announcing
var tickThresholds = map[interview.ClockKind][]int{
	interview.ClockInterview:  {300, 60, 30},
	interview.ClockInactivity: {60, 30, 10},
	interview.ClockAuth:       {300, 60},
}

// terminalNotifier prints session events. It runs on the loop.
type terminalNotifier struct {
	out  io.Writer
	once sync.Once
	done chan struct{}

	lastStatus  interview.Status
	interimSeen string
	sessionID   string
	result      *feedback.Result
}

var _ interview.Notifier = (*terminalNotifier)(nil)

func newTerminalNotifier(out io.Writer) *terminalNotifier {
	return &terminalNotifier{out: out, done: make(chan struct{})}
}

// Done is closed once the interview has ended
func (n *terminalNotifier) Done() <-chan struct{} {
	return n.done
}

func (n *terminalNotifier) StatusChanged(s interview.Snapshot) {
	if s.SessionID != "" {
		n.sessionID = s.SessionID
	}
	if s.Status == n.lastStatus {
		return
	}
	prev := n.lastStatus
	n.lastStatus = s.Status

	switch s.Status {
	case interview.StatusActive:
		if prev == interview.StatusPaused {
			fmt.Fprintf(n.out, "▶ Resumed (%s left)\n", clock.FormatRemaining(s.InterviewRemaining))
		}
	case interview.StatusEnded:
		if s.Feedback == nil {
			fmt.Fprintln(n.out, "■ Interview ended")
		}
		n.once.Do(func() { close(n.done) })
	}
}

func (n *terminalNotifier) Message(e transcript.Entry) {
	if e.Role != transcript.RoleInterviewer {
		return
	}
	n.interimSeen = ""
	fmt.Fprintf(n.out, "\nInterviewer: %s\n\n", e.Text)
}

func (n *terminalNotifier) Tick(kind interview.ClockKind, remaining int) {
	for _, t := range tickThresholds[kind] {
		if remaining != t {
			continue
		}
		switch kind {
		case interview.ClockInterview:
			fmt.Fprintf(n.out, "⏱ %s left in this interview\n", clock.FormatRemaining(remaining))
		case interview.ClockInactivity:
			fmt.Fprintf(n.out, "⏱ Still there? Pausing in %s\n", clock.FormatRemaining(remaining))
		case interview.ClockAuth:
			fmt.Fprintf(n.out, "⚠ Session expires in %s\n", clock.FormatRemaining(remaining))
		}
		return
	}
}

func (n *terminalNotifier) Paused(reason interview.PauseReason) {
	fmt.Fprintf(n.out, "\n⏸ %s\n  %s\n  Type /resume to continue or /defer to continue later.\n", reason.Title(), reason.Message())
}

func (n *terminalNotifier) PresenceWarning() {
	fmt.Fprintln(n.out, "⚠ We can't see you on camera. Please stay in view.")
}

func (n *terminalNotifier) Transcribing(text string) {
	if text == "" || text == n.interimSeen {
		return
	}
	n.interimSeen = text
	fmt.Fprintf(n.out, "  … %s\n", text)
}

func (n *terminalNotifier) Finished(result feedback.Result) {
	n.result = &result
	fmt.Fprintf(n.out, "\n✓ Interview complete\n  Readiness score: %s", result.Score)
	if band := result.Score.Band(); band != feedback.BandUnknown {
		fmt.Fprintf(n.out, " (%s)", band)
	}
	fmt.Fprintln(n.out)
	if result.Explanation != "" {
		fmt.Fprintf(n.out, "\n%s\n", result.Explanation)
	}
}

func (n *terminalNotifier) Warn(err error) {
	switch {
	case errors.Is(err, auth.ErrAuthExpired):
		fmt.Fprintln(n.out, "⚠ Your session has expired. Run: intervue login <token>")
	case errors.Is(err, speech.ErrNoSpeech), errors.Is(err, speech.ErrNetwork):
		fmt.Fprintf(n.out, "⚠ %s\n", speech.Guidance(speech.KindOf(err)))
	default:
		fmt.Fprintf(n.out, "⚠ %v\n", err)
	}
}
