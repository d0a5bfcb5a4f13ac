// Package sessionapi is the client side of the interview session API and
// the wire types it shares with the daemon.
package sessionapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/intervue/internal/transcript"
)

var (
	ErrQuotaExceeded  = errors.New("daily interview limit reached")
	ErrResumeMissing  = errors.New("resume feedback required")
	ErrSessionInvalid = errors.New("interview session not found or expired")
	ErrUnavailable    = errors.New("interview service unavailable")
	ErrBadRequest     = errors.New("invalid request")
)

// Error codes carried in error responses.
const (
	CodeQuotaExceeded  = "quota_exceeded"
	CodeResumeMissing  = "resume_missing"
	CodeSessionInvalid = "session_invalid"
	CodeAuthExpired    = "auth_expired"
	CodeUnauthorized   = "unauthorized"
	CodeBadRequest     = "bad_request"
	CodeInternal       = "internal"
)

// Difficulty levels.
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

// ValidDifficulty reports whether d is a known difficulty.
func ValidDifficulty(d string) bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	default:
		return false
	}
}

// StartRequest opens an interview.
type StartRequest struct {
	JobTitle       string          `json:"job_title"`
	ResumeFeedback json.RawMessage `json:"resume_feedback"`
	QuestionLimit  int             `json:"question_limit"`
	Difficulty     string          `json:"difficulty"`
}

// StartResponse carries the new session handle and the opening question.
type StartResponse struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// ReplyRequest is a candidate answer.
type ReplyRequest struct {
	Text string `json:"text"`
}

// ReplyResponse is the interviewer's next message. Ended marks the final
// message of the interview.
type ReplyResponse struct {
	Message string `json:"message"`
	Ended   bool   `json:"ended"`
}

// EndResponse acknowledges an ended interview. Message is the
// interviewer's closing remark, if one was produced.
type EndResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Interview describes a stored interview.
type Interview struct {
	SessionID     string     `json:"session_id"`
	JobTitle      string     `json:"job_title"`
	Difficulty    string     `json:"difficulty"`
	QuestionLimit int        `json:"question_limit"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
}

// TranscriptResponse is the stored conversation of an interview.
type TranscriptResponse struct {
	SessionID string             `json:"session_id"`
	Status    string             `json:"status"`
	Entries   []transcript.Entry `json:"entries"`
}

// Limits describes the caller's daily quota.
type Limits struct {
	Remaining int       `json:"remaining"`
	Limit     int       `json:"limit"`
	ResetsAt  time.Time `json:"resets_at"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Status  int    `json:"status"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// Client is the session API.
type Client interface {
	Start(ctx context.Context, req StartRequest) (*StartResponse, error)
	Reply(ctx context.Context, sessionID, text string) (*ReplyResponse, error)
	End(ctx context.Context, sessionID string) error
	Limits(ctx context.Context) (*Limits, error)
	ResetQuota(ctx context.Context) (*Limits, error)
}

// APIError is a failure reported by the server. Message is the server's
// own wording and is meant to be shown as-is.
type APIError struct {
	Status  int
	Code    string
	Message string
	err     error
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("interview service error (status %d)", e.Status)
}

func (e *APIError) Unwrap() error {
	return e.err
}
