// Package quota enforces the daily interview allowance.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"
	_ "time/tzdata" // reset timezone must resolve on minimal images
)

var (
	ErrExhausted    = errors.New("daily interview quota exhausted")
	ErrInvalidLimit = errors.New("daily limit must be positive")
)

// Store persists per-user attempt counts keyed by calendar day
type Store interface {
	// Count returns the attempts recorded for user on day
	Count(ctx context.Context, userID, day string) (int, error)

	// Increment records one attempt and returns the new count
	Increment(ctx context.Context, userID, day string) (int, error)

	// Decrement removes one attempt, never going below zero
	Decrement(ctx context.Context, userID, day string) error

	// Reset clears the attempts for user on day
	Reset(ctx context.Context, userID, day string) error
}

// Config holds the allowance settings
type Config struct {
	DailyLimit int
	Timezone   string // IANA name; days roll over at local midnight
}

// Status is a user's allowance for the current day
type Status struct {
	Remaining int
	Limit     int
	ResetsAt  time.Time
}

// Tracker applies the daily limit on top of a Store
type Tracker struct {
	store Store
	limit int
	loc   *time.Location
	now   func() time.Time
}

// New creates a tracker
func New(store Store, cfg Config) (*Tracker, error) {
	if cfg.DailyLimit <= 0 {
		return nil, ErrInvalidLimit
	}
	loc := time.UTC
	if cfg.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
		}
	}
	return &Tracker{store: store, limit: cfg.DailyLimit, loc: loc, now: time.Now}, nil
}

// SetClock replaces the time source
func (t *Tracker) SetClock(now func() time.Time) {
	t.now = now
}

// Limit returns the daily allowance
func (t *Tracker) Limit() int {
	return t.limit
}

// day returns the calendar key and the next local midnight
func (t *Tracker) day() (string, time.Time) {
	now := t.now().In(t.loc)
	y, m, d := now.Date()
	return now.Format("2006-01-02"), time.Date(y, m, d+1, 0, 0, 0, 0, t.loc)
}

func (t *Tracker) status(used int, resets time.Time) Status {
	remaining := t.limit - used
	if remaining < 0 {
		remaining = 0
	}
	return Status{Remaining: remaining, Limit: t.limit, ResetsAt: resets}
}

// Status returns the user's allowance for today
func (t *Tracker) Status(ctx context.Context, userID string) (Status, error) {
	day, resets := t.day()
	used, err := t.store.Count(ctx, userID, day)
	if err != nil {
		return Status{}, fmt.Errorf("count attempts: %w", err)
	}
	return t.status(used, resets), nil
}

// Consume takes one attempt from today's allowance
func (t *Tracker) Consume(ctx context.Context, userID string) (Status, error) {
	day, resets := t.day()
	used, err := t.store.Increment(ctx, userID, day)
	if err != nil {
		return Status{}, fmt.Errorf("record attempt: %w", err)
	}
	if used > t.limit {
		if err := t.store.Decrement(ctx, userID, day); err != nil {
			return Status{}, fmt.Errorf("undo attempt: %w", err)
		}
		return t.status(t.limit, resets), ErrExhausted
	}
	return t.status(used, resets), nil
}

// Refund returns an attempt taken by Consume, for starts that failed
func (t *Tracker) Refund(ctx context.Context, userID string) error {
	day, _ := t.day()
	if err := t.store.Decrement(ctx, userID, day); err != nil {
		return fmt.Errorf("refund attempt: %w", err)
	}
	return nil
}

// Reset restores today's full allowance
func (t *Tracker) Reset(ctx context.Context, userID string) (Status, error) {
	day, resets := t.day()
	if err := t.store.Reset(ctx, userID, day); err != nil {
		return Status{}, fmt.Errorf("reset attempts: %w", err)
	}
	return t.status(0, resets), nil
}
