package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/intervue/internal/session"
	"github.com/felixgeelhaar/intervue/internal/transcript"
)

// InterviewStore implements interview persistence backed by SQLite.
type InterviewStore struct {
	db *DB
}

// NewInterviewStore creates a new SQLite-backed interview store.
func NewInterviewStore(db *DB) *InterviewStore {
	return &InterviewStore{db: db}
}

// CreateInterview inserts a new interview.
func (s *InterviewStore) CreateInterview(ctx context.Context, iv *session.Interview) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO interviews (id, user_id, job_title, resume_feedback, question_limit,
			difficulty, status, created_at, updated_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		iv.ID, iv.UserID, iv.JobTitle, string(iv.ResumeFeedback), iv.QuestionLimit,
		iv.Difficulty, string(iv.Status), iv.CreatedAt, iv.UpdatedAt, nullTime(iv.EndedAt),
	)
	if err != nil {
		return fmt.Errorf("insert interview: %w", err)
	}
	return nil
}

// GetInterview retrieves an interview by ID.
func (s *InterviewStore) GetInterview(ctx context.Context, id string) (*session.Interview, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, job_title, resume_feedback, question_limit,
			difficulty, status, created_at, updated_at, ended_at
		FROM interviews WHERE id = ?`, id)

	var iv session.Interview
	var resume, status string
	var endedAt sql.NullTime
	err := row.Scan(&iv.ID, &iv.UserID, &iv.JobTitle, &resume, &iv.QuestionLimit,
		&iv.Difficulty, &status, &iv.CreatedAt, &iv.UpdatedAt, &endedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, session.ErrNotFound
		}
		return nil, fmt.Errorf("scan interview: %w", err)
	}

	iv.ResumeFeedback = []byte(resume)
	iv.Status = session.Status(status)
	if endedAt.Valid {
		t := endedAt.Time
		iv.EndedAt = &t
	}
	return &iv, nil
}

// UpdateInterview saves the mutable fields of an interview.
func (s *InterviewStore) UpdateInterview(ctx context.Context, iv *session.Interview) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE interviews SET status = ?, updated_at = ?, ended_at = ?
		WHERE id = ?`,
		string(iv.Status), iv.UpdatedAt, nullTime(iv.EndedAt), iv.ID,
	)
	if err != nil {
		return fmt.Errorf("update interview: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return session.ErrNotFound
	}
	return nil
}

// AppendMessage adds a transcript line.
func (s *InterviewStore) AppendMessage(ctx context.Context, msg *session.Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO interview_messages (id, interview_id, seq, role, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.InterviewID, msg.Seq, string(msg.Role), msg.Content, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// ListMessages returns an interview's transcript in order.
func (s *InterviewStore) ListMessages(ctx context.Context, interviewID string) ([]*session.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, interview_id, seq, role, content, created_at
		FROM interview_messages WHERE interview_id = ? ORDER BY seq`, interviewID)
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

// AbandonOpen marks every active interview abandoned.
func (s *InterviewStore) AbandonOpen(ctx context.Context, now time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE interviews SET status = ?, updated_at = ?, ended_at = ?
		WHERE status = ?`,
		string(session.StatusAbandoned), now, now, string(session.StatusActive),
	)
	if err != nil {
		return 0, fmt.Errorf("abandon interviews: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
