// Package transcript records the ordered turns of an interview.
package transcript

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// Role identifies who produced a turn.
type Role string

const (
	RoleInterviewer Role = "interviewer"
	RoleCandidate   Role = "candidate"
)

// Label returns the display name for the role.
func (r Role) Label() string {
	switch r {
	case RoleInterviewer:
		return "Interviewer"
	case RoleCandidate:
		return "You"
	default:
		return string(r)
	}
}

// Entry is a single immutable turn.
type Entry struct {
	Seq  uint64    `json:"seq"`
	Role Role      `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Log is an append-only list of entries with strictly increasing sequence
// numbers. It is not safe for concurrent use.
type Log struct {
	entries []Entry
	seq     uint64
	now     func() time.Time
}

// New creates an empty log. A nil now uses time.Now.
func New(now func() time.Time) *Log {
	if now == nil {
		now = time.Now
	}
	return &Log{now: now}
}

// Append adds a turn and returns the stored entry.
func (l *Log) Append(role Role, text string) Entry {
	l.seq++
	e := Entry{
		Seq:  l.seq,
		Role: role,
		Text: text,
		At:   l.now(),
	}
	l.entries = append(l.entries, e)
	return e
}

// Entries returns a copy of all entries in order.
func (l *Log) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l *Log) Len() int {
	return len(l.entries)
}

// Last returns the most recent entry.
func (l *Log) Last() (Entry, bool) {
	if len(l.entries) == 0 {
		return Entry{}, false
	}
	return l.entries[len(l.entries)-1], true
}

// Count returns how many entries the role has produced.
func (l *Log) Count(role Role) int {
	n := 0
	for _, e := range l.entries {
		if e.Role == role {
			n++
		}
	}
	return n
}

// Render writes the entries as "Label: text" lines.
func Render(w io.Writer, entries []Entry) error {
	for _, e := range entries {
		text := strings.TrimSpace(e.Text)
		if _, err := fmt.Fprintf(w, "%s: %s\n", e.Role.Label(), text); err != nil {
			return err
		}
	}
	return nil
}
