package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const daemonPIDFile = "intervued.pid"

var statusClient = &http.Client{Timeout: 2 * time.Second}

// cmdDaemon manages a local intervued
func cmdDaemon(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: intervue daemon <start|stop|status|logs>")
	}
	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	addr := strings.TrimRight(env.cfg.Client.ServerURL, "/")

	switch args[0] {
	case "start":
		return daemonStart(env.dir, addr)
	case "stop":
		return daemonStop(env.dir, addr)
	case "status":
		return daemonStatus(addr)
	case "logs":
		return daemonLogs(os.Stdout, filepath.Join(env.dir, "logs", "intervued.log"))
	default:
		return fmt.Errorf("unknown daemon command: %s", args[0])
	}
}

func daemonStart(dir, addr string) error {
	if isRunning(addr) {
		fmt.Println("✓ Daemon is already running")
		return nil
	}

	bin, err := findDaemonBinary()
	if err != nil {
		return err
	}

	cmd := exec.Command(bin, "serve")
	cmd.Dir = dir
	detach(cmd)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	fmt.Print("Starting daemon...")
	for i := 0; i < 30; i++ {
		time.Sleep(100 * time.Millisecond)
		if isRunning(addr) {
			fmt.Println(" ✓")
			fmt.Printf("Daemon running at %s\n", addr)
			return nil
		}
		fmt.Print(".")
	}
	fmt.Println(" ✗")
	return errors.New("daemon failed to start (check logs with 'intervue daemon logs')")
}

func daemonStop(dir, addr string) error {
	if !isRunning(addr) {
		fmt.Println("Daemon is not running")
		return nil
	}

	pid, err := readPID(filepath.Join(dir, daemonPIDFile))
	if err != nil {
		return err
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process: %w", err)
	}

	fmt.Print("Stopping daemon...")
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("send signal: %w", err)
	}
	for i := 0; i < 50; i++ {
		time.Sleep(100 * time.Millisecond)
		if !isRunning(addr) {
			fmt.Println(" ✓")
			return nil
		}
		fmt.Print(".")
	}
	fmt.Println(" ✗")
	return errors.New("daemon did not stop gracefully")
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read PID file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("parse PID %q: invalid", strings.TrimSpace(string(data)))
	}
	return pid, nil
}

// daemonStatusResponse mirrors GET /v1/status
type daemonStatusResponse struct {
	Status       string   `json:"status"`
	Version      string   `json:"version"`
	LLMProviders []string `json:"llm_providers"`
	Storage      string   `json:"storage"`
	DailyLimit   int      `json:"daily_limit"`
}

func daemonStatus(addr string) error {
	resp, err := statusClient.Get(addr + "/v1/status")
	if err != nil {
		fmt.Println("Status: stopped")
		return nil
	}
	defer resp.Body.Close()

	var status daemonStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("parse status: %w", err)
	}
	printDaemonStatus(os.Stdout, addr, status)
	return nil
}

func printDaemonStatus(w io.Writer, addr string, s daemonStatusResponse) {
	providers := strings.Join(s.LLMProviders, ", ")
	if providers == "" {
		providers = "none (scripted interviewer)"
	}
	fmt.Fprintf(w, "Status:      %s\n", s.Status)
	fmt.Fprintf(w, "Version:     %s\n", s.Version)
	fmt.Fprintf(w, "Storage:     %s\n", s.Storage)
	fmt.Fprintf(w, "Daily limit: %d\n", s.DailyLimit)
	fmt.Fprintf(w, "Providers:   %s\n", providers)
	fmt.Fprintf(w, "Address:     %s\n", addr)
}

// daemonLogs prints roughly the last 4KB of the daemon log
func daemonLogs(w io.Writer, path string) error {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(w, "No log file found. Start the daemon first.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat log file: %w", err)
	}
	offset := info.Size() - 4096
	if offset < 0 {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("seek log file: %w", err)
	}

	reader := bufio.NewReader(file)
	if offset > 0 {
		_, _ = reader.ReadString('\n')
	}
	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		fmt.Fprintln(w, scanner.Text())
	}
	return scanner.Err()
}

func isRunning(addr string) bool {
	resp, err := statusClient.Get(addr + "/v1/health")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// findDaemonBinary looks in PATH, then next to this binary
func findDaemonBinary() (string, error) {
	if path, err := exec.LookPath("intervued"); err == nil {
		return path, nil
	}
	if self, err := os.Executable(); err == nil {
		path := filepath.Join(filepath.Dir(self), "intervued")
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	for _, path := range []string{"/usr/local/bin/intervued", "./intervued", "./cmd/intervued/intervued"} {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", errors.New("intervued binary not found (build with 'go build ./cmd/intervued')")
}
