package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/felixgeelhaar/intervue/internal/config"
)

func testConfig() *config.LocalConfig {
	cfg := config.DefaultLocalConfig()
	cfg.Daemon.Auth.Secret = "test"
	return cfg
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"info":  slog.LevelInfo,
		"":      slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLogLevel(in); got != want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSetupLogging_WritesFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "logs"), 0750); err != nil {
		t.Fatal(err)
	}
	defaultLogger := slog.Default()
	t.Cleanup(func() { slog.SetDefault(defaultLogger) })

	logger, f, err := setupLogging(dir, slog.LevelInfo)
	if err != nil {
		t.Fatalf("setupLogging() error = %v", err)
	}
	logger.With("component", "test").Info("hello", "n", 1)
	logger.Debug("hidden")
	f.Close()

	data, err := os.ReadFile(filepath.Join(dir, "logs", "intervued.log"))
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	if !strings.Contains(out, `"msg":"hello"`) || !strings.Contains(out, `"component":"test"`) {
		t.Errorf("log file = %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Error("debug record written at info level")
	}
}

func TestOpenBackend_SQLite(t *testing.T) {
	cfg := testConfig()
	cfg.Daemon.Storage.Path = filepath.Join(t.TempDir(), "test.db")

	b, err := openBackend(t.Context(), cfg, "", slog.Default())
	if err != nil {
		t.Fatalf("openBackend() error = %v", err)
	}
	defer b.Close()
	if b.interviews == nil || b.quota == nil {
		t.Error("stores should be set")
	}
	if b.publisher != nil {
		t.Error("publisher should be nil without a queue URL")
	}
}

func TestOpenBackend_UnknownDriver(t *testing.T) {
	cfg := testConfig()
	cfg.Daemon.Storage.Driver = "mongo"
	if _, err := openBackend(t.Context(), cfg, "", slog.Default()); err == nil {
		t.Error("openBackend() should reject unknown drivers")
	}
}
