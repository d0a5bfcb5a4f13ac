package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/intervue/internal/queue"
	"github.com/felixgeelhaar/intervue/internal/session"
)

// cmdEvents prints completion events as JSON lines until interrupted
func cmdEvents(args []string) error {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	fromEnv := fs.Bool("env", false, "read configuration from environment variables")
	workers := fs.Int("workers", 1, "concurrent consumers")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*fromEnv)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Daemon.Queue.URL == "" {
		return errors.New("no RabbitMQ URL configured (daemon.queue.url or RABBITMQ_URL)")
	}

	logger, _, err := setupLogging("", parseLogLevel(cfg.Daemon.LogLevel))
	if err != nil {
		return err
	}

	conn, err := queue.NewConnection(cfg.Daemon.Queue.URL, cfg.Daemon.Queue.Exchange, logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	enc := json.NewEncoder(os.Stdout)
	consumer := queue.NewConsumer(conn, func(_ context.Context, event session.CompletedEvent) error {
		return enc.Encode(event)
	}, queue.ConsumerConfig{Workers: *workers, Prefetch: 1}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := consumer.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	consumer.Stop()
	return nil
}
