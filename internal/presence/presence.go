// Package presence watches the camera for the candidate's face and
// escalates when they stay away.
package presence

import (
	"context"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/intervue/internal/capability"
	"github.com/felixgeelhaar/intervue/internal/clock"
	"github.com/felixgeelhaar/intervue/internal/loop"
)

// Frame is a single captured image.
type Frame struct {
	Data       []byte
	MediaType  string
	CapturedAt time.Time
}

// Stream is an open camera. Frame and Close may be called concurrently.
type Stream interface {
	// Frame returns the most recent image.
	Frame(ctx context.Context) (Frame, error)
	Close() error
}

// Camera acquires a stream.
type Camera interface {
	Open(ctx context.Context) (Stream, error)
}

// Detector reports whether a face is visible in a frame.
type Detector interface {
	DetectFace(ctx context.Context, f Frame) (bool, error)
}

// State is the monitor's lifecycle state.
type State int

const (
	StateOff State = iota
	StateAcquiring
	StateActive
	StateWarning
	StateEscalated
)

func (s State) String() string {
	switch s {
	case StateOff:
		return "off"
	case StateAcquiring:
		return "acquiring"
	case StateActive:
		return "active"
	case StateWarning:
		return "warning"
	case StateEscalated:
		return "escalated"
	default:
		return "unknown"
	}
}

// Config holds sampling and escalation thresholds.
type Config struct {
	SampleInterval time.Duration
	// WarnAfter is the number of consecutive absent samples before a warning.
	WarnAfter int
	// EscalateAfter is the number of consecutive absent samples before
	// escalation.
	EscalateAfter int
}

// DefaultConfig samples once a second, warns after 15 seconds and escalates
// after 30.
func DefaultConfig() Config {
	return Config{
		SampleInterval: time.Second,
		WarnAfter:      15,
		EscalateAfter:  30,
	}
}

// Handlers receive monitor events on the loop. Any may be nil.
type Handlers struct {
	StateChanged func(State)
	Warning      func()
	Escalated    func()
	// Unavailable is called once when the camera cannot be used.
	Unavailable func(err error)
}

// Observation is the latest sampling result.
type Observation struct {
	Detected          bool
	ConsecutiveAbsent int
}

// Monitor samples the camera while running. Its methods must be called from
// the loop that owns its executor and scheduler.
type Monitor struct {
	exec     loop.Executor
	sched    clock.Scheduler
	camera   capability.Of[Camera]
	detector capability.Of[Detector]
	cfg      Config
	logger   *slog.Logger
	handlers Handlers

	state    State
	obs      Observation
	stream   Stream
	timer    clock.Timer
	gen      uint64
	sampling bool
	disabled bool
	notified bool
	ctx      context.Context
	cancel   context.CancelFunc
}

// New creates a stopped monitor. Presence detection needs both a camera and
// a detector.
func New(exec loop.Executor, sched clock.Scheduler, camera capability.Of[Camera], detector capability.Of[Detector], cfg Config, logger *slog.Logger) *Monitor {
	def := DefaultConfig()
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = def.SampleInterval
	}
	if cfg.WarnAfter <= 0 {
		cfg.WarnAfter = def.WarnAfter
	}
	if cfg.EscalateAfter <= cfg.WarnAfter {
		cfg.EscalateAfter = cfg.WarnAfter * 2
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		exec:     exec,
		sched:    sched,
		camera:   camera,
		detector: detector,
		cfg:      cfg,
		logger:   logger,
	}
}

// SetHandlers replaces the event handlers.
func (m *Monitor) SetHandlers(h Handlers) {
	m.handlers = h
}

// State returns the current state.
func (m *Monitor) State() State {
	return m.state
}

// Observation returns the latest sampling result.
func (m *Monitor) Observation() Observation {
	return m.obs
}

// Disabled reports whether the camera has been found unusable.
func (m *Monitor) Disabled() bool {
	return m.disabled
}

// Start acquires the camera and begins sampling. It does nothing if the
// monitor is already running. When the camera cannot be used the monitor
// disables itself and reports it once through Handlers.Unavailable.
func (m *Monitor) Start(ctx context.Context) {
	if m.state != StateOff {
		return
	}

	cam, camOK := m.camera.Get()
	_, detOK := m.detector.Get()
	if !camOK || !detOK {
		reason := m.camera.Reason()
		if camOK {
			reason = m.detector.Reason()
		}
		m.disable(reason)
		return
	}
	if m.disabled {
		return
	}

	m.gen++
	gen := m.gen
	ctx, cancel := context.WithCancel(ctx)
	m.ctx = ctx
	m.cancel = cancel
	m.setState(StateAcquiring)

	m.exec.Go(func() func() {
		stream, err := cam.Open(ctx)
		return func() { m.acquired(gen, stream, err) }
	})
}

// Stop releases the camera and cancels sampling. It is safe to call when
// the monitor is not running.
func (m *Monitor) Stop() {
	m.gen++
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if m.stream != nil {
		if err := m.stream.Close(); err != nil {
			m.logger.Warn("release camera failed", "error", err)
		}
		m.stream = nil
	}
	m.sampling = false
	m.obs = Observation{}
	m.setState(StateOff)
}

func (m *Monitor) acquired(gen uint64, stream Stream, err error) {
	if gen != m.gen {
		// Stopped while acquiring; release the late stream.
		if stream != nil {
			if cerr := stream.Close(); cerr != nil {
				m.logger.Warn("release camera failed", "error", cerr)
			}
		}
		return
	}
	if err != nil {
		m.logger.Warn("camera acquisition failed", "error", err)
		m.Stop()
		m.disable(err)
		return
	}

	m.stream = stream
	m.obs = Observation{Detected: true}
	m.setState(StateActive)
	m.schedule(gen)
}

func (m *Monitor) schedule(gen uint64) {
	m.timer = m.sched.AfterFunc(m.cfg.SampleInterval, func() { m.sample(gen) })
}

func (m *Monitor) sample(gen uint64) {
	if gen != m.gen || m.stream == nil {
		return
	}
	m.schedule(gen)

	// Skip this tick if the previous detection is still running.
	if m.sampling {
		return
	}
	m.sampling = true

	stream := m.stream
	det, _ := m.detector.Get()
	ctx := m.ctx

	m.exec.Go(func() func() {
		frame, err := stream.Frame(ctx)
		if err != nil {
			return func() { m.observe(gen, false, err) }
		}
		found, err := det.DetectFace(ctx, frame)
		return func() { m.observe(gen, found, err) }
	})
}

func (m *Monitor) observe(gen uint64, found bool, err error) {
	if gen != m.gen {
		return
	}
	m.sampling = false

	if err != nil {
		m.logger.Debug("presence sample failed", "error", err)
		return
	}

	if found {
		m.obs = Observation{Detected: true}
		if m.state == StateWarning || m.state == StateEscalated {
			m.setState(StateActive)
		}
		return
	}

	m.obs.Detected = false
	m.obs.ConsecutiveAbsent++

	switch {
	case m.obs.ConsecutiveAbsent >= m.cfg.EscalateAfter && m.state == StateWarning:
		m.setState(StateEscalated)
		if m.handlers.Escalated != nil {
			m.handlers.Escalated()
		}
	case m.obs.ConsecutiveAbsent >= m.cfg.WarnAfter && m.state == StateActive:
		m.setState(StateWarning)
		if m.handlers.Warning != nil {
			m.handlers.Warning()
		}
	}
}

func (m *Monitor) disable(err error) {
	m.disabled = true
	if m.notified {
		return
	}
	m.notified = true
	if m.handlers.Unavailable != nil {
		m.handlers.Unavailable(err)
	}
}

func (m *Monitor) setState(s State) {
	if m.state == s {
		return
	}
	m.state = s
	if m.handlers.StateChanged != nil {
		m.handlers.StateChanged(s)
	}
}
