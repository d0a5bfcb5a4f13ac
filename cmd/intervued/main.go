package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/felixgeelhaar/intervue/internal/auth"
	"github.com/felixgeelhaar/intervue/internal/config"
	"github.com/felixgeelhaar/intervue/internal/daemon"
)

// Version is set at build time via ldflags
var Version = "dev"

const pidFileName = "intervued.pid"

func main() {
	args := os.Args[1:]
	cmd := "serve"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "serve":
		err = cmdServe(args)
	case "token":
		err = cmdToken(args)
	case "events":
		err = cmdEvents(args)
	case "help", "-h", "--help":
		printUsage()
	case "version", "-v", "--version":
		fmt.Printf("intervued %s\n", Version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		slog.Error("daemon error", "error", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`intervued - Interview session API daemon

Usage:
  intervued [command] [flags]

Commands:
  serve           Run the API server (default)
      -env        Read configuration from environment variables
  token <user>    Issue a bearer token for a candidate
      -ttl        Token lifetime (default from config)
  events          Print interview completion events from RabbitMQ
  version         Show version information`)
}

// loadConfig reads ~/.intervue/config.yaml, or the environment with -env
func loadConfig(fromEnv bool) (*config.LocalConfig, error) {
	if fromEnv {
		envCfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		return envCfg.Local(), nil
	}
	return config.LoadLocalConfig()
}

func cmdServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	fromEnv := fs.Bool("env", false, "read configuration from environment variables")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*fromEnv)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Containers log to stderr only; local runs also keep a log file
	dir := ""
	if !*fromEnv {
		dir, err = config.EnsureIntervueDir()
		if err != nil {
			return fmt.Errorf("ensure intervue dir: %w", err)
		}
	}
	logger, logFile, err := setupLogging(dir, parseLogLevel(cfg.Daemon.LogLevel))
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	if dir != "" {
		pidPath := filepath.Join(dir, pidFileName)
		if err := writePIDFile(pidPath); err != nil {
			return fmt.Errorf("write pid file: %w", err)
		}
		defer os.Remove(pidPath)
	}

	ctx := context.Background()
	backend, err := openBackend(ctx, cfg, dir, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	server, err := daemon.NewServer(ctx, daemon.ServerConfig{
		Config:     cfg,
		Store:      backend.interviews,
		QuotaStore: backend.quota,
		Publisher:  backend.publisher,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh

		logger.Info("received signal, shutting down", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
		close(done)
	}()

	if err := server.Start(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	<-done
	logger.Info("daemon stopped")
	return nil
}

func cmdToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	fromEnv := fs.Bool("env", false, "read configuration from environment variables")
	ttl := fs.Duration("ttl", 0, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: intervued token [-ttl 24h] <user-id>")
	}

	cfg, err := loadConfig(*fromEnv)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	signer, err := auth.NewSigner(cfg.Daemon.Auth.Secret, cfg.Daemon.Auth.Issuer)
	if err != nil {
		return fmt.Errorf("create signer: %w", err)
	}

	lifetime := *ttl
	if lifetime <= 0 {
		lifetime = time.Duration(cfg.Daemon.Auth.TokenTTLHours) * time.Hour
	}
	token, err := signer.Issue(fs.Arg(0), lifetime)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func writePIDFile(path string) error {
	pid := os.Getpid()
	return os.WriteFile(path, []byte(fmt.Sprintf("%d\n", pid)), 0644)
}
