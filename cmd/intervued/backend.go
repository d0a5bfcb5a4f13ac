package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/felixgeelhaar/intervue/internal/config"
	"github.com/felixgeelhaar/intervue/internal/queue"
	"github.com/felixgeelhaar/intervue/internal/quota"
	"github.com/felixgeelhaar/intervue/internal/session"
	"github.com/felixgeelhaar/intervue/internal/storage/postgres"
	"github.com/felixgeelhaar/intervue/internal/storage/sqlite"
)

// backend holds the stores and event publisher selected by configuration
type backend struct {
	interviews session.Store
	quota      quota.Store
	publisher  session.EventPublisher
	closers    []func()
}

// openBackend opens the configured database and, when a broker URL is set,
// the RabbitMQ connection for completion events
func openBackend(ctx context.Context, cfg *config.LocalConfig, dir string, logger *slog.Logger) (*backend, error) {
	b := &backend{}

	storage := cfg.Daemon.Storage
	switch storage.Driver {
	case "postgres":
		pool, err := postgres.Open(ctx, storage.DSN)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, pool.Close)
		if err := postgres.Migrate(ctx, pool); err != nil {
			b.Close()
			return nil, err
		}
		b.interviews = postgres.NewInterviewStore(pool)
		b.quota = postgres.NewQuotaStore(pool)

	case "sqlite", "":
		path := storage.Path
		if path == "" {
			if dir == "" {
				return nil, fmt.Errorf("sqlite path is required")
			}
			path = config.DatabasePath(dir)
		}
		db, err := sqlite.Open(path, sqlite.Options{
			BusyTimeout: storage.BusyTimeout(),
			Logger:      logger,
		})
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() { db.Close() })
		if err := db.Migrate(ctx); err != nil {
			b.Close()
			return nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		b.interviews = sqlite.NewInterviewStore(db)
		b.quota = sqlite.NewQuotaStore(db)

	default:
		return nil, fmt.Errorf("unknown storage driver %q", storage.Driver)
	}
	logger.Info("storage ready", "driver", storage.Driver)

	if url := cfg.Daemon.Queue.URL; url != "" {
		conn, err := queue.NewConnection(url, cfg.Daemon.Queue.Exchange, logger)
		if err != nil {
			// Events are optional; interviews still work without a broker
			logger.Warn("completion events disabled", "error", err)
		} else {
			b.closers = append(b.closers, func() { conn.Close() })
			b.publisher = queue.NewPublisher(conn, logger)
		}
	}

	return b, nil
}

// Close releases resources in reverse order of acquisition
func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}
