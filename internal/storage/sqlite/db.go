package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/felixgeelhaar/intervue/internal/storage/migrations"
	_ "github.com/mattn/go-sqlite3"
)

// Options tune the interview database connection.
type Options struct {
	// BusyTimeout is how long a statement waits on a locked database.
	// Zero uses five seconds.
	BusyTimeout time.Duration
	Logger      *slog.Logger
}

// DB is the sqlite handle shared by the interview and quota stores.
type DB struct {
	*sql.DB
	path   string
	logger *slog.Logger
}

type migration struct {
	version int
	name    string
}

// Open opens the interview database at path, creating its directory when
// needed. The daemon is the only writer, so the pool holds one connection.
func Open(path string, opts Options) (*DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("open sqlite: empty path")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "storage", "driver", "sqlite")

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dsn(path, opts.BusyTimeout))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	logger.Debug("database opened", "path", path)
	return &DB{DB: db, path: path, logger: logger}, nil
}

func dsn(path string, busy time.Duration) string {
	if busy <= 0 {
		busy = 5 * time.Second
	}
	q := url.Values{}
	q.Set("_journal_mode", "WAL")
	q.Set("_foreign_keys", "ON")
	q.Set("_busy_timeout", strconv.FormatInt(busy.Milliseconds(), 10))
	return "file:" + path + "?" + q.Encode()
}

// Migrate brings the schema up to the newest embedded migration. Each file
// is applied in its own transaction together with its version row.
func (db *DB) Migrate(ctx context.Context) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	current, err := db.Version(ctx)
	if err != nil {
		return err
	}
	todo, err := db.pending(current)
	if err != nil {
		return err
	}
	if len(todo) == 0 {
		db.logger.Debug("schema up to date", "version", current)
		return nil
	}

	for _, m := range todo {
		if err := db.apply(ctx, m); err != nil {
			return err
		}
		db.logger.Info("applied migration", "name", m.name, "version", m.version)
	}
	db.logger.Info("migrations complete", "from", current, "to", todo[len(todo)-1].version)
	return nil
}

// pending lists the embedded migrations newer than current, oldest first.
func (db *DB) pending(current int) ([]migration, error) {
	entries, err := fs.ReadDir(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	var out []migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		v, err := parseVersion(e.Name())
		if err != nil {
			db.logger.Warn("skipping unversioned migration file", "name", e.Name(), "error", err)
			continue
		}
		if v > current {
			out = append(out, migration{version: v, name: e.Name()})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

func (db *DB) apply(ctx context.Context, m migration) error {
	body, err := fs.ReadFile(migrations.FS, m.name)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", m.name, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", m.name, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, string(body)); err != nil {
		return fmt.Errorf("apply migration %s: %w", m.name, err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
		return fmt.Errorf("record migration %s: %w", m.name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", m.name, err)
	}
	return nil
}

// Version returns the newest applied migration, or 0 on a fresh database.
func (db *DB) Version(ctx context.Context) (int, error) {
	var v int
	err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

// Path is the database file the handle was opened on.
func (db *DB) Path() string {
	return db.path
}

// parseVersion reads the numeric prefix of names like "002_quota.sql".
func parseVersion(name string) (int, error) {
	prefix, _, ok := strings.Cut(name, "_")
	if !ok {
		return 0, fmt.Errorf("migration %q has no version prefix", name)
	}
	v, err := strconv.Atoi(prefix)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("migration %q has no version prefix", name)
	}
	return v, nil
}
