package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// QuotaStore implements daily attempt counters backed by SQLite.
type QuotaStore struct {
	db *DB
}

// NewQuotaStore creates a new SQLite-backed quota store.
func NewQuotaStore(db *DB) *QuotaStore {
	return &QuotaStore{db: db}
}

// Count returns the attempts recorded for user on day.
func (s *QuotaStore) Count(ctx context.Context, userID, day string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT count FROM quota_usage WHERE user_id = ? AND day = ?", userID, day).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query quota: %w", err)
	}
	return count, nil
}

// Increment records one attempt and returns the new count.
func (s *QuotaStore) Increment(ctx context.Context, userID, day string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO quota_usage (user_id, day, count) VALUES (?, ?, 1)
		ON CONFLICT(user_id, day) DO UPDATE SET count = count + 1
		RETURNING count`, userID, day).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("increment quota: %w", err)
	}
	return count, nil
}

// Decrement removes one attempt, never going below zero.
func (s *QuotaStore) Decrement(ctx context.Context, userID, day string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE quota_usage SET count = count - 1 WHERE user_id = ? AND day = ? AND count > 0", userID, day)
	if err != nil {
		return fmt.Errorf("decrement quota: %w", err)
	}
	return nil
}

// Reset clears the attempts for user on day.
func (s *QuotaStore) Reset(ctx context.Context, userID, day string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM quota_usage WHERE user_id = ? AND day = ?", userID, day)
	if err != nil {
		return fmt.Errorf("reset quota: %w", err)
	}
	return nil
}
