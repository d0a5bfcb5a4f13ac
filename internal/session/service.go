package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/intervue/internal/feedback"
	"github.com/felixgeelhaar/intervue/internal/interviewer"
	"github.com/felixgeelhaar/intervue/internal/quota"
	"github.com/felixgeelhaar/intervue/internal/transcript"
)

var (
	ErrSessionNotFound  = errors.New("interview not found")
	ErrSessionNotActive = errors.New("interview is not active")
	ErrInvalidRequest   = errors.New("invalid interview request")
	ErrResumeMissing    = errors.New("resume feedback required")
	ErrQuotaExceeded    = errors.New("daily interview limit reached")
)

// DefaultQuestionLimit applies when a start request names none
const DefaultQuestionLimit = 10

var questionLimits = map[int]bool{10: true, 15: true, 20: true}

// Service runs interviews for the daemon
type Service struct {
	store       Store
	quota       Quota
	interviewer Interviewer
	events      EventPublisher // Optional: announces finished interviews
	logger      *slog.Logger
	now         func() time.Time

	// Replies to one interview are serialized
	locks sync.Map
}

// NewService creates a new interview service
func NewService(store Store, q Quota, iv Interviewer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:       store,
		quota:       q,
		interviewer: iv,
		logger:      logger.With("component", "interviews"),
		now:         time.Now,
	}
}

// SetEventPublisher sets the publisher for finished interviews
func (s *Service) SetEventPublisher(p EventPublisher) {
	s.events = p
}

// SetClock replaces the time source
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// StartRequest contains data for starting an interview
type StartRequest struct {
	JobTitle       string
	ResumeFeedback json.RawMessage
	QuestionLimit  int
	Difficulty     string
}

// StartResult is a new interview and its opening question
type StartResult struct {
	Interview *Interview
	Message   string
}

// ReplyResult is the interviewer's answer to a candidate message
type ReplyResult struct {
	Message string
	Ended   bool
}

// EndResult reports how an interview ended
type EndResult struct {
	Status  Status
	Message string
}

func normalize(req StartRequest) (StartRequest, error) {
	req.JobTitle = strings.TrimSpace(req.JobTitle)
	if req.JobTitle == "" {
		return req, fmt.Errorf("%w: job title required", ErrInvalidRequest)
	}
	trimmed := strings.TrimSpace(string(req.ResumeFeedback))
	if trimmed == "" || trimmed == "null" || trimmed == "{}" {
		return req, ErrResumeMissing
	}
	if !json.Valid(req.ResumeFeedback) {
		return req, fmt.Errorf("%w: resume feedback is not JSON", ErrInvalidRequest)
	}
	if req.QuestionLimit == 0 {
		req.QuestionLimit = DefaultQuestionLimit
	}
	if !questionLimits[req.QuestionLimit] {
		return req, fmt.Errorf("%w: question limit must be 10, 15 or 20", ErrInvalidRequest)
	}
	switch req.Difficulty {
	case "":
		req.Difficulty = "medium"
	case "easy", "medium", "hard":
	default:
		return req, fmt.Errorf("%w: unknown difficulty %q", ErrInvalidRequest, req.Difficulty)
	}
	return req, nil
}

func briefing(iv *Interview) interviewer.Context {
	return interviewer.Context{
		JobTitle:       iv.JobTitle,
		ResumeFeedback: iv.ResumeFeedback,
		QuestionLimit:  iv.QuestionLimit,
		Difficulty:     iv.Difficulty,
	}
}

// Start opens an interview, spending one attempt of the daily quota
func (s *Service) Start(ctx context.Context, userID string, req StartRequest) (*StartResult, error) {
	req, err := normalize(req)
	if err != nil {
		return nil, err
	}

	if _, err := s.quota.Consume(ctx, userID); err != nil {
		if errors.Is(err, quota.ErrExhausted) {
			return nil, ErrQuotaExceeded
		}
		return nil, fmt.Errorf("consume quota: %w", err)
	}

	now := s.now()
	iv := NewInterview(userID, req, now)

	reply, err := s.interviewer.Open(ctx, briefing(iv))
	if err != nil {
		s.refund(ctx, userID)
		return nil, fmt.Errorf("open interview: %w", err)
	}

	if err := s.store.CreateInterview(ctx, iv); err != nil {
		s.refund(ctx, userID)
		return nil, fmt.Errorf("save interview: %w", err)
	}
	if err := s.store.AppendMessage(ctx, NewMessage(iv.ID, 1, transcript.RoleInterviewer, reply.Text, now)); err != nil {
		return nil, fmt.Errorf("save message: %w", err)
	}

	s.logger.Info("interview started",
		"interview_id", iv.ID,
		"user_id", userID,
		"question_limit", iv.QuestionLimit,
		"difficulty", iv.Difficulty)

	return &StartResult{Interview: iv, Message: reply.Text}, nil
}

func (s *Service) refund(ctx context.Context, userID string) {
	if err := s.quota.Refund(ctx, userID); err != nil {
		s.logger.Warn("failed to refund quota", "user_id", userID, "error", err)
	}
}

// Reply records a candidate answer and returns the interviewer's next message
func (s *Service) Reply(ctx context.Context, userID, id, text string) (*ReplyResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty reply", ErrInvalidRequest)
	}

	unlock := s.lock(id)
	defer unlock()

	iv, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !iv.Active() {
		return nil, ErrSessionNotActive
	}

	msgs, err := s.store.ListMessages(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	// Nothing is stored until the interviewer has answered, so a failed
	// reply can be retried as-is.
	answer := NewMessage(id, len(msgs)+1, transcript.RoleCandidate, text, s.now())
	msgs = append(msgs, answer)

	reply, err := s.interviewer.Next(ctx, briefing(iv), Entries(msgs))
	if err != nil {
		return nil, fmt.Errorf("interviewer reply: %w", err)
	}

	question := NewMessage(id, len(msgs)+1, transcript.RoleInterviewer, reply.Text, s.now())
	for _, m := range []*Message{answer, question} {
		if err := s.store.AppendMessage(ctx, m); err != nil {
			return nil, fmt.Errorf("save message: %w", err)
		}
	}
	msgs = append(msgs, question)

	if reply.Finished {
		if err := s.finish(ctx, iv, StatusCompleted, msgs); err != nil {
			return nil, err
		}
	}

	return &ReplyResult{Message: reply.Text, Ended: reply.Finished}, nil
}

// End stops an interview at the candidate's request. Ending an interview
// that already finished reports its status.
func (s *Service) End(ctx context.Context, userID, id string) (*EndResult, error) {
	unlock := s.lock(id)
	defer unlock()

	iv, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !iv.Active() {
		return &EndResult{Status: iv.Status}, nil
	}

	msgs, err := s.store.ListMessages(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	result := &EndResult{Status: StatusEnded}
	reply, err := s.interviewer.Close(ctx, briefing(iv), Entries(msgs))
	if err != nil {
		// The interview ends regardless
		s.logger.Warn("failed to generate closing message", "interview_id", id, "error", err)
	} else {
		closing := NewMessage(id, len(msgs)+1, transcript.RoleInterviewer, reply.Text, s.now())
		if err := s.store.AppendMessage(ctx, closing); err != nil {
			return nil, fmt.Errorf("save message: %w", err)
		}
		msgs = append(msgs, closing)
		result.Message = reply.Text
	}

	if err := s.finish(ctx, iv, StatusEnded, msgs); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) finish(ctx context.Context, iv *Interview, status Status, msgs []*Message) error {
	now := s.now()
	iv.Finish(status, now)
	if err := s.store.UpdateInterview(ctx, iv); err != nil {
		return fmt.Errorf("save interview: %w", err)
	}
	s.locks.Delete(iv.ID)

	event := CompletedEvent{
		InterviewID:   iv.ID,
		UserID:        iv.UserID,
		JobTitle:      iv.JobTitle,
		Difficulty:    iv.Difficulty,
		QuestionLimit: iv.QuestionLimit,
		Status:        status,
		StartedAt:     iv.CreatedAt,
		EndedAt:       now,
	}
	for _, m := range msgs {
		if m.Role == transcript.RoleCandidate {
			event.Answers++
		}
	}
	if n := len(msgs); n > 0 && msgs[n-1].Role == transcript.RoleInterviewer {
		if result, ok := feedback.Extract(msgs[n-1].Content); ok {
			if points, ok := result.Score.Value(); ok {
				event.Score = &points
			}
		}
	}

	s.logger.Info("interview finished",
		"interview_id", iv.ID,
		"status", status,
		"answers", event.Answers)

	if s.events != nil {
		if err := s.events.PublishCompleted(ctx, event); err != nil {
			s.logger.Warn("failed to publish interview event", "interview_id", iv.ID, "error", err)
		}
	}
	return nil
}

// Get retrieves an interview owned by userID
func (s *Service) Get(ctx context.Context, userID, id string) (*Interview, error) {
	return s.owned(ctx, userID, id)
}

// Transcript returns the messages of an interview owned by userID
func (s *Service) Transcript(ctx context.Context, userID, id string) ([]transcript.Entry, error) {
	if _, err := s.owned(ctx, userID, id); err != nil {
		return nil, err
	}
	msgs, err := s.store.ListMessages(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return Entries(msgs), nil
}

// Limits returns the caller's daily allowance
func (s *Service) Limits(ctx context.Context, userID string) (quota.Status, error) {
	return s.quota.Status(ctx, userID)
}

// ResetQuota restores the caller's daily allowance
func (s *Service) ResetQuota(ctx context.Context, userID string) (quota.Status, error) {
	st, err := s.quota.Reset(ctx, userID)
	if err != nil {
		return quota.Status{}, err
	}
	s.logger.Info("quota reset", "user_id", userID)
	return st, nil
}

// AbandonOpen closes interviews left active by a previous daemon run
func (s *Service) AbandonOpen(ctx context.Context) (int, error) {
	n, err := s.store.AbandonOpen(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("abandon open interviews: %w", err)
	}
	if n > 0 {
		s.logger.Info("abandoned open interviews", "count", n)
	}
	return n, nil
}

// owned loads an interview, hiding other users' interviews
func (s *Service) owned(ctx context.Context, userID, id string) (*Interview, error) {
	iv, err := s.store.GetInterview(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get interview: %w", err)
	}
	if iv.UserID != userID {
		return nil, ErrSessionNotFound
	}
	return iv, nil
}

func (s *Service) lock(id string) func() {
	v, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
