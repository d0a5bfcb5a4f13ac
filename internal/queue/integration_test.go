//go:build integration

package queue_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/intervue/internal/queue"
	"github.com/felixgeelhaar/intervue/internal/session"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
)

// setupRabbitMQ creates a RabbitMQ container for testing
func setupRabbitMQ(t *testing.T) string {
	ctx := context.Background()

	container, err := rabbitmq.Run(ctx, "rabbitmq:3.12-management")
	if err != nil {
		t.Fatalf("failed to start RabbitMQ container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	amqpURL, err := container.AmqpURL(ctx)
	if err != nil {
		t.Fatalf("failed to get AMQP URL: %v", err)
	}
	return amqpURL
}

func TestIntegration_Connection_ConnectAndClose(t *testing.T) {
	conn, err := queue.NewConnection(setupRabbitMQ(t), "", nil)
	if err != nil {
		t.Fatalf("NewConnection() error = %v", err)
	}
	if !conn.IsConnected() {
		t.Error("expected connection to be active")
	}
	if conn.Exchange() != queue.DefaultExchange {
		t.Errorf("Exchange() = %q; want %q", conn.Exchange(), queue.DefaultExchange)
	}
	if err := conn.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestIntegration_Connection_InvalidURL(t *testing.T) {
	if _, err := queue.NewConnection("amqp://invalid:5672", "", nil); err == nil {
		t.Error("expected error for invalid URL")
	}
}

func TestIntegration_PublishCompleted_RoutesToQueue(t *testing.T) {
	conn, err := queue.NewConnection(setupRabbitMQ(t), "", nil)
	if err != nil {
		t.Fatalf("NewConnection() error = %v", err)
	}
	defer conn.Close()

	publisher := queue.NewPublisher(conn, nil)
	event := session.CompletedEvent{
		InterviewID: "iv-1",
		UserID:      "u1",
		Status:      session.StatusCompleted,
		Answers:     10,
		EndedAt:     time.Now().UTC(),
	}
	if err := publisher.PublishCompleted(context.Background(), event); err != nil {
		t.Fatalf("PublishCompleted() error = %v", err)
	}

	msg, ok, err := conn.Channel().Get(queue.CompletedQueueName, true)
	if err != nil || !ok {
		t.Fatalf("Get() ok=%v error=%v", ok, err)
	}
	if msg.MessageId == "" || msg.ContentType != "application/json" {
		t.Errorf("message properties = %q %q", msg.MessageId, msg.ContentType)
	}
	var got session.CompletedEvent
	if err := json.Unmarshal(msg.Body, &got); err != nil {
		t.Fatal(err)
	}
	if got.InterviewID != "iv-1" || got.Answers != 10 {
		t.Errorf("event = %+v", got)
	}
}

func TestIntegration_Consumer_ReceivesEvents(t *testing.T) {
	conn, err := queue.NewConnection(setupRabbitMQ(t), "", nil)
	if err != nil {
		t.Fatalf("NewConnection() error = %v", err)
	}
	defer conn.Close()

	var mu sync.Mutex
	received := make(map[string]bool)
	done := make(chan struct{})

	consumer := queue.NewConsumer(conn, func(_ context.Context, event session.CompletedEvent) error {
		mu.Lock()
		defer mu.Unlock()
		received[event.InterviewID] = true
		if len(received) == 3 {
			close(done)
		}
		return nil
	}, queue.DefaultConsumerConfig(), nil)

	ctx := context.Background()
	if err := consumer.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer consumer.Stop()

	publisher := queue.NewPublisher(conn, nil)
	for _, id := range []string{"a", "b", "c"} {
		if err := publisher.PublishCompleted(ctx, session.CompletedEvent{InterviewID: id}); err != nil {
			t.Fatalf("PublishCompleted(%s) error = %v", id, err)
		}
	}

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		mu.Lock()
		defer mu.Unlock()
		t.Fatalf("received %d events; want 3", len(received))
	}
}
