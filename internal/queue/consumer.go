package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/felixgeelhaar/intervue/internal/session"
	amqp "github.com/rabbitmq/amqp091-go"
)

// EventHandler processes one completion event
type EventHandler func(ctx context.Context, event session.CompletedEvent) error

// Consumer consumes completion events from the durable queue
type Consumer struct {
	conn       *Connection
	handler    EventHandler
	logger     *slog.Logger
	workers    int
	prefetch   int
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	Workers  int // Number of concurrent workers
	Prefetch int // Prefetch count per worker
}

// DefaultConsumerConfig returns sensible defaults
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Workers:  2,
		Prefetch: 1,
	}
}

// NewConsumer creates a new event consumer
func NewConsumer(conn *Connection, handler EventHandler, cfg ConsumerConfig, logger *slog.Logger) *Consumer {
	def := DefaultConsumerConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = def.Prefetch
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Consumer{
		conn:     conn,
		handler:  handler,
		logger:   logger.With("component", "events"),
		workers:  cfg.Workers,
		prefetch: cfg.Prefetch,
	}
}

// Start begins consuming messages
func (c *Consumer) Start(ctx context.Context) error {
	ctx, c.cancelFunc = context.WithCancel(ctx)

	ch := c.conn.Channel()

	if err := ch.Qos(c.prefetch*c.workers, 0, false); err != nil {
		return fmt.Errorf("set QoS: %w", err)
	}

	msgs, err := ch.Consume(
		CompletedQueueName,
		"",    // consumer tag (auto-generated)
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	c.logger.Info("starting event consumer", "workers", c.workers, "prefetch", c.prefetch)

	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go c.worker(ctx, i, msgs)
	}

	return nil
}

// worker processes messages from the queue
func (c *Consumer) worker(ctx context.Context, id int, msgs <-chan amqp.Delivery) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-msgs:
			if !ok {
				c.logger.Info("message channel closed", "worker_id", id)
				return
			}

			c.processMessage(ctx, id, msg)
		}
	}
}

// processMessage decodes and handles one delivery. Malformed messages are
// dropped. A failed handler gets one redelivery.
func (c *Consumer) processMessage(ctx context.Context, workerID int, msg amqp.Delivery) {
	var event session.CompletedEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		c.logger.Error("failed to unmarshal event",
			"worker_id", workerID,
			"message_id", msg.MessageId,
			"error", err,
		)
		_ = msg.Reject(false)
		return
	}

	if err := c.handler(ctx, event); err != nil {
		c.logger.Error("event handling failed",
			"worker_id", workerID,
			"interview_id", event.InterviewID,
			"redelivered", msg.Redelivered,
			"error", err,
		)
		_ = msg.Nack(false, !msg.Redelivered)
		return
	}

	if err := msg.Ack(false); err != nil {
		c.logger.Error("failed to ack message",
			"worker_id", workerID,
			"interview_id", event.InterviewID,
			"error", err,
		)
	}
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
	c.wg.Wait()
	c.logger.Info("consumer stopped")
}
