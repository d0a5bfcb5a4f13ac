package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/intervue/internal/quota"
	"github.com/felixgeelhaar/intervue/internal/session"
	"github.com/felixgeelhaar/intervue/internal/transcript"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Ensure Postgres stores implement the storage interfaces.
var (
	_ session.Store = (*InterviewStore)(nil)
	_ quota.Store   = (*QuotaStore)(nil)
)

// InterviewStore implements interview persistence using PostgreSQL
type InterviewStore struct {
	pool *pgxpool.Pool
}

// NewInterviewStore creates a new PostgreSQL interview store
func NewInterviewStore(pool *pgxpool.Pool) *InterviewStore {
	return &InterviewStore{pool: pool}
}

// CreateInterview inserts a new interview
func (s *InterviewStore) CreateInterview(ctx context.Context, iv *session.Interview) error {
	query := `
		INSERT INTO interviews (id, user_id, job_title, resume_feedback, question_limit,
			difficulty, status, created_at, updated_at, ended_at)
		VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.pool.Exec(ctx, query,
		iv.ID, iv.UserID, iv.JobTitle, string(iv.ResumeFeedback), iv.QuestionLimit,
		iv.Difficulty, string(iv.Status), iv.CreatedAt, iv.UpdatedAt, iv.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("insert interview: %w", err)
	}
	return nil
}

// GetInterview retrieves an interview by ID
func (s *InterviewStore) GetInterview(ctx context.Context, id string) (*session.Interview, error) {
	query := `
		SELECT id, user_id, job_title, resume_feedback::text, question_limit,
			difficulty, status, created_at, updated_at, ended_at
		FROM interviews WHERE id = $1
	`
	var iv session.Interview
	var resume, status string
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&iv.ID, &iv.UserID, &iv.JobTitle, &resume, &iv.QuestionLimit,
		&iv.Difficulty, &status, &iv.CreatedAt, &iv.UpdatedAt, &iv.EndedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan interview: %w", err)
	}
	iv.ResumeFeedback = []byte(resume)
	iv.Status = session.Status(status)
	return &iv, nil
}

// UpdateInterview saves the mutable fields of an interview
func (s *InterviewStore) UpdateInterview(ctx context.Context, iv *session.Interview) error {
	query := `UPDATE interviews SET status = $1, updated_at = $2, ended_at = $3 WHERE id = $4`
	tag, err := s.pool.Exec(ctx, query, string(iv.Status), iv.UpdatedAt, iv.EndedAt, iv.ID)
	if err != nil {
		return fmt.Errorf("update interview: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return session.ErrNotFound
	}
	return nil
}

// AppendMessage adds a transcript line
func (s *InterviewStore) AppendMessage(ctx context.Context, msg *session.Message) error {
	query := `
		INSERT INTO interview_messages (id, interview_id, seq, role, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.pool.Exec(ctx, query,
		msg.ID, msg.InterviewID, msg.Seq, string(msg.Role), msg.Content, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// ListMessages returns an interview's transcript in order
func (s *InterviewStore) ListMessages(ctx context.Context, interviewID string) ([]*session.Message, error) {
	query := `
		SELECT id, interview_id, seq, role, content, created_at
		FROM interview_messages WHERE interview_id = $1 ORDER BY seq
	`
	rows, err := s.pool.Query(ctx, query, interviewID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var msgs []*session.Message
	for rows.Next() {
		var m session.Message
		var role string
		if err := rows.Scan(&m.ID, &m.InterviewID, &m.Seq, &role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = transcript.Role(role)
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}

// AbandonOpen marks every active interview abandoned
func (s *InterviewStore) AbandonOpen(ctx context.Context, now time.Time) (int, error) {
	query := `UPDATE interviews SET status = $1, updated_at = $2, ended_at = $2 WHERE status = $3`
	tag, err := s.pool.Exec(ctx, query, string(session.StatusAbandoned), now, string(session.StatusActive))
	if err != nil {
		return 0, fmt.Errorf("abandon interviews: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// QuotaStore implements daily attempt counters using PostgreSQL
type QuotaStore struct {
	pool *pgxpool.Pool
}

// NewQuotaStore creates a new PostgreSQL quota store
func NewQuotaStore(pool *pgxpool.Pool) *QuotaStore {
	return &QuotaStore{pool: pool}
}

// Count returns the attempts recorded for user on day
func (s *QuotaStore) Count(ctx context.Context, userID, day string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT count FROM quota_usage WHERE user_id = $1 AND day = $2`, userID, day).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query quota: %w", err)
	}
	return count, nil
}

// Increment records one attempt and returns the new count
func (s *QuotaStore) Increment(ctx context.Context, userID, day string) (int, error) {
	query := `
		INSERT INTO quota_usage (user_id, day, count) VALUES ($1, $2, 1)
		ON CONFLICT (user_id, day) DO UPDATE SET count = quota_usage.count + 1
		RETURNING count
	`
	var count int
	if err := s.pool.QueryRow(ctx, query, userID, day).Scan(&count); err != nil {
		return 0, fmt.Errorf("increment quota: %w", err)
	}
	return count, nil
}

// Decrement removes one attempt, never going below zero
func (s *QuotaStore) Decrement(ctx context.Context, userID, day string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE quota_usage SET count = count - 1 WHERE user_id = $1 AND day = $2 AND count > 0`, userID, day)
	if err != nil {
		return fmt.Errorf("decrement quota: %w", err)
	}
	return nil
}

// Reset clears the attempts for user on day
func (s *QuotaStore) Reset(ctx context.Context, userID, day string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM quota_usage WHERE user_id = $1 AND day = $2`, userID, day)
	if err != nil {
		return fmt.Errorf("reset quota: %w", err)
	}
	return nil
}
