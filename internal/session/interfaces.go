package session

import (
	"context"
	"time"

	"github.com/felixgeelhaar/intervue/internal/interviewer"
	"github.com/felixgeelhaar/intervue/internal/quota"
	"github.com/felixgeelhaar/intervue/internal/transcript"
)

// InterviewService defines the interview operations used by the daemon handlers
type InterviewService interface {
	Start(ctx context.Context, userID string, req StartRequest) (*StartResult, error)
	Reply(ctx context.Context, userID, id, text string) (*ReplyResult, error)
	End(ctx context.Context, userID, id string) (*EndResult, error)
	Get(ctx context.Context, userID, id string) (*Interview, error)
	Transcript(ctx context.Context, userID, id string) ([]transcript.Entry, error)
	Limits(ctx context.Context, userID string) (quota.Status, error)
	ResetQuota(ctx context.Context, userID string) (quota.Status, error)
}

// Ensure Service implements InterviewService
var _ InterviewService = (*Service)(nil)

// Store defines the persistence interface for interviews.
// The memory, SQLite and Postgres stores implement this.
type Store interface {
	CreateInterview(ctx context.Context, iv *Interview) error
	GetInterview(ctx context.Context, id string) (*Interview, error)
	UpdateInterview(ctx context.Context, iv *Interview) error

	AppendMessage(ctx context.Context, msg *Message) error
	ListMessages(ctx context.Context, interviewID string) ([]*Message, error)

	// AbandonOpen marks every active interview abandoned and returns how many
	AbandonOpen(ctx context.Context, now time.Time) (int, error)
}

// Interviewer produces the interviewer's messages
type Interviewer interface {
	Open(ctx context.Context, c interviewer.Context) (interviewer.Reply, error)
	Next(ctx context.Context, c interviewer.Context, history []transcript.Entry) (interviewer.Reply, error)
	Close(ctx context.Context, c interviewer.Context, history []transcript.Entry) (interviewer.Reply, error)
}

// Quota is the daily allowance
type Quota interface {
	Status(ctx context.Context, userID string) (quota.Status, error)
	Consume(ctx context.Context, userID string) (quota.Status, error)
	Refund(ctx context.Context, userID string) error
	Reset(ctx context.Context, userID string) (quota.Status, error)
}

var (
	_ Interviewer = (*interviewer.Interviewer)(nil)
	_ Quota       = (*quota.Tracker)(nil)
)

// EventPublisher announces finished interviews
type EventPublisher interface {
	PublishCompleted(ctx context.Context, event CompletedEvent) error
}

// CompletedEvent is published when an interview reaches a terminal status
type CompletedEvent struct {
	InterviewID   string    `json:"interview_id"`
	UserID        string    `json:"user_id"`
	JobTitle      string    `json:"job_title"`
	Difficulty    string    `json:"difficulty"`
	QuestionLimit int       `json:"question_limit"`
	Status        Status    `json:"status"`
	Answers       int       `json:"answers"`
	Score         *int      `json:"score,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	EndedAt       time.Time `json:"ended_at"`
}
