package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/felixgeelhaar/intervue/internal/session"
	"github.com/google/uuid"
)

// ErrNotConnected is returned when publishing without an open channel
var ErrNotConnected = errors.New("queue not connected")

// jsonPublisher is the part of Connection the Publisher needs
type jsonPublisher interface {
	PublishJSON(ctx context.Context, routingKey, messageID string, data any) error
}

// Publisher sends interview lifecycle events to the exchange
type Publisher struct {
	conn   jsonPublisher
	logger *slog.Logger
}

var _ session.EventPublisher = (*Publisher)(nil)

// NewPublisher creates a publisher on conn
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return newPublisher(conn, logger)
}

func newPublisher(conn jsonPublisher, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{conn: conn, logger: logger.With("component", "events")}
}

// PublishCompleted publishes an interview.completed event
func (p *Publisher) PublishCompleted(ctx context.Context, event session.CompletedEvent) error {
	id := uuid.NewString()
	if err := p.conn.PublishJSON(ctx, CompletedRoutingKey, id, event); err != nil {
		return fmt.Errorf("publish completed event: %w", err)
	}

	p.logger.Info("published completed event",
		"message_id", id,
		"interview_id", event.InterviewID,
		"status", event.Status,
		"answers", event.Answers,
	)

	return nil
}
