package session

import (
	"encoding/json"
	"time"

	"github.com/felixgeelhaar/intervue/internal/transcript"
	"github.com/google/uuid"
)

// Interview is one mock interview conducted by the daemon
type Interview struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	JobTitle       string          `json:"job_title"`
	ResumeFeedback json.RawMessage `json:"resume_feedback"`
	QuestionLimit  int             `json:"question_limit"`
	Difficulty     string          `json:"difficulty"`
	Status         Status          `json:"status"`

	// Timestamps
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// Status represents the interview state
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed" // interviewer concluded
	StatusEnded     Status = "ended"     // candidate ended early
	StatusAbandoned Status = "abandoned" // daemon restarted mid-interview
)

// Message is one transcript line of an interview
type Message struct {
	ID          string          `json:"id"`
	InterviewID string          `json:"interview_id"`
	Seq         int             `json:"seq"`
	Role        transcript.Role `json:"role"`
	Content     string          `json:"content"`
	CreatedAt   time.Time       `json:"created_at"`
}

// NewInterview creates an active interview for userID
func NewInterview(userID string, req StartRequest, now time.Time) *Interview {
	return &Interview{
		ID:             uuid.New().String(),
		UserID:         userID,
		JobTitle:       req.JobTitle,
		ResumeFeedback: req.ResumeFeedback,
		QuestionLimit:  req.QuestionLimit,
		Difficulty:     req.Difficulty,
		Status:         StatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Active reports whether the interview still accepts replies
func (i *Interview) Active() bool {
	return i.Status == StatusActive
}

// Finish moves the interview to a terminal status
func (i *Interview) Finish(status Status, now time.Time) {
	i.Status = status
	i.UpdatedAt = now
	i.EndedAt = &now
}

// NewMessage creates the next transcript line
func NewMessage(interviewID string, seq int, role transcript.Role, content string, now time.Time) *Message {
	return &Message{
		ID:          uuid.New().String(),
		InterviewID: interviewID,
		Seq:         seq,
		Role:        role,
		Content:     content,
		CreatedAt:   now,
	}
}

// Entries converts stored messages into transcript entries
func Entries(msgs []*Message) []transcript.Entry {
	out := make([]transcript.Entry, len(msgs))
	for i, m := range msgs {
		out[i] = transcript.Entry{Seq: uint64(m.Seq), Role: m.Role, Text: m.Content, At: m.CreatedAt}
	}
	return out
}
