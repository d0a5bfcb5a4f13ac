// Package ffcam captures camera frames through ffmpeg.
package ffcam

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/felixgeelhaar/intervue/internal/capability"
	"github.com/felixgeelhaar/intervue/internal/media"
	"github.com/felixgeelhaar/intervue/internal/presence"
)

var ErrStreamClosed = errors.New("camera stream closed")

// Config selects the capture device.
type Config struct {
	FFmpegPath  string
	Device      media.Device
	FPS         int
	Width       int
	Height      int
	OpenTimeout time.Duration
}

func (c *Config) defaults() {
	if c.Device.Format == "" {
		c.Device = media.DefaultCamera()
	}
	if c.FPS <= 0 {
		c.FPS = 1
	}
	if c.Width <= 0 || c.Height <= 0 {
		c.Width, c.Height = 320, 240
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = 10 * time.Second
	}
}

// Camera opens ffmpeg capture streams.
type Camera struct {
	bin string
	cfg Config
}

// Detect resolves the camera capability once. It is unavailable when
// ffmpeg is not installed.
func Detect(cfg Config) capability.Of[presence.Camera] {
	cfg.defaults()
	bin, err := media.Lookup(cfg.FFmpegPath)
	if err != nil {
		return capability.Unavailable[presence.Camera](err)
	}
	return capability.Available[presence.Camera](&Camera{bin: bin, cfg: cfg})
}

// Open starts capturing and waits for the first frame.
func (c *Camera) Open(ctx context.Context) (presence.Stream, error) {
	args := media.CameraArgs(c.cfg.Device, c.cfg.FPS, c.cfg.Width, c.cfg.Height)
	proc, err := media.Start(context.Background(), c.bin, args...)
	if err != nil {
		return nil, err
	}

	s := &stream{
		proc:  proc,
		ready: make(chan struct{}),
	}
	go s.read()

	timer := time.NewTimer(c.cfg.OpenTimeout)
	defer timer.Stop()

	select {
	case <-s.ready:
		return s, nil
	case <-proc.Done():
		if err := proc.Err(); err != nil {
			return nil, fmt.Errorf("open camera: %w", err)
		}
		return nil, fmt.Errorf("open camera: %w", capability.ErrUnavailable)
	case <-timer.C:
		s.Close()
		return nil, fmt.Errorf("open camera: no frame within %s: %w", c.cfg.OpenTimeout, capability.ErrUnavailable)
	case <-ctx.Done():
		s.Close()
		return nil, ctx.Err()
	}
}

type stream struct {
	proc *media.Process

	mu        sync.Mutex
	latest    presence.Frame
	ready     chan struct{}
	readyOnce sync.Once
	closed    bool
}

func (s *stream) read() {
	r := media.NewJPEGReader(s.proc.Stdout())
	for {
		data, err := r.Next()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.latest = presence.Frame{
			Data:       data,
			MediaType:  "image/jpeg",
			CapturedAt: time.Now(),
		}
		s.mu.Unlock()
		s.readyOnce.Do(func() { close(s.ready) })
	}
}

// Frame returns the most recent frame.
func (s *stream) Frame(ctx context.Context) (presence.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return presence.Frame{}, ErrStreamClosed
	}
	select {
	case <-s.proc.Done():
		if err := s.proc.Err(); err != nil {
			return presence.Frame{}, err
		}
		return presence.Frame{}, ErrStreamClosed
	default:
	}
	return s.latest, nil
}

// Close stops ffmpeg. It is idempotent.
func (s *stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.proc.Stop()
	return nil
}
