// Package media runs ffmpeg to capture from the local camera and microphone.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/felixgeelhaar/intervue/internal/capability"
)

// Device is an ffmpeg input: a demuxer format and a device name.
type Device struct {
	Format string
	Name   string
}

// DefaultCamera returns the platform's default video device.
func DefaultCamera() Device {
	switch runtime.GOOS {
	case "darwin":
		return Device{Format: "avfoundation", Name: "0"}
	case "windows":
		return Device{Format: "dshow", Name: "video=Integrated Camera"}
	default:
		return Device{Format: "v4l2", Name: "/dev/video0"}
	}
}

// DefaultMicrophone returns the platform's default audio device.
func DefaultMicrophone() Device {
	switch runtime.GOOS {
	case "darwin":
		return Device{Format: "avfoundation", Name: ":0"}
	case "windows":
		return Device{Format: "dshow", Name: "audio=Microphone"}
	default:
		return Device{Format: "pulse", Name: "default"}
	}
}

// Lookup finds the ffmpeg binary.
func Lookup(path string) (string, error) {
	if path == "" {
		path = "ffmpeg"
	}
	bin, err := exec.LookPath(path)
	if err != nil {
		return "", fmt.Errorf("ffmpeg not found: %w", capability.ErrUnavailable)
	}
	return bin, nil
}

// CameraArgs captures JPEG frames at fps to stdout.
func CameraArgs(dev Device, fps, width, height int) []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-f", dev.Format,
		"-i", dev.Name,
		"-vf", fmt.Sprintf("fps=%d,scale=%d:%d", fps, width, height),
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "5",
		"pipe:1",
	}
}

// MicrophoneArgs captures mono signed 16-bit little-endian PCM to stdout.
func MicrophoneArgs(dev Device, sampleRate int) []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-f", dev.Format,
		"-i", dev.Name,
		"-ac", "1",
		"-ar", strconv.Itoa(sampleRate),
		"-f", "s16le",
		"pipe:1",
	}
}

// Process is a running ffmpeg capture.
type Process struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	stdout io.ReadCloser
	stderr *tail
	done   chan struct{}
	err    error
}

// Start launches bin with args. Cancelling ctx or calling Stop kills it.
func Start(ctx context.Context, bin string, args ...string) (*Process, error) {
	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, bin, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr := &tail{max: 4096}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start ffmpeg: %w", classify("", err))
	}

	p := &Process{
		cmd:    cmd,
		cancel: cancel,
		stdout: stdout,
		stderr: stderr,
		done:   make(chan struct{}),
	}
	go func() {
		err := cmd.Wait()
		if err != nil && ctx.Err() == nil {
			p.err = classify(stderr.String(), err)
		}
		close(p.done)
	}()
	return p, nil
}

// Stdout streams the captured data.
func (p *Process) Stdout() io.Reader {
	return p.stdout
}

// Done is closed when the process exits.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Err reports why the process exited on its own. It is valid once Done is
// closed and nil when the process was stopped.
func (p *Process) Err() error {
	return p.err
}

// Stop kills the process and waits for it to exit.
func (p *Process) Stop() {
	p.cancel()
	<-p.done
}

// classify maps ffmpeg failures onto capability errors.
func classify(stderr string, err error) error {
	lower := strings.ToLower(stderr + " " + err.Error())
	switch {
	case strings.Contains(lower, "permission denied"),
		strings.Contains(lower, "operation not permitted"),
		strings.Contains(lower, "not authorized"):
		return fmt.Errorf("%w: %s", capability.ErrPermissionDenied, firstLine(stderr, err))
	case strings.Contains(lower, "no such file"),
		strings.Contains(lower, "could not find"),
		strings.Contains(lower, "cannot open"),
		strings.Contains(lower, "device or resource busy"),
		errors.Is(err, exec.ErrNotFound):
		return fmt.Errorf("%w: %s", capability.ErrUnavailable, firstLine(stderr, err))
	default:
		return fmt.Errorf("ffmpeg exited: %s", firstLine(stderr, err))
	}
}

func firstLine(stderr string, err error) string {
	if s := strings.TrimSpace(stderr); s != "" {
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			return s[:i]
		}
		return s
	}
	return err.Error()
}

// tail keeps the last max bytes written to it.
type tail struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tail) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
	return len(p), nil
}

func (t *tail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
