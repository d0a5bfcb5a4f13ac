package presence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/intervue/internal/capability"
	"github.com/felixgeelhaar/intervue/internal/clock"
	"github.com/felixgeelhaar/intervue/internal/loop"
)

type fakeStream struct {
	mu     sync.Mutex
	closes int
}

func (s *fakeStream) Frame(ctx context.Context) (Frame, error) {
	return Frame{Data: []byte{0xFF, 0xD8, 0xFF, 0xD9}, MediaType: "image/jpeg"}, nil
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

type fakeCamera struct {
	stream  *fakeStream
	openErr error
	opens   int
}

func (c *fakeCamera) Open(ctx context.Context) (Stream, error) {
	c.opens++
	if c.openErr != nil {
		return nil, c.openErr
	}
	return c.stream, nil
}

type scriptedDetector struct {
	present bool
	calls   int
}

func (d *scriptedDetector) DetectFace(ctx context.Context, f Frame) (bool, error) {
	d.calls++
	return d.present, nil
}

// deferredExec runs posted work immediately but holds Go work until flush.
type deferredExec struct {
	held []func() func()
}

func (e *deferredExec) Post(fn func())                          { fn() }
func (e *deferredExec) Do(ctx context.Context, fn func()) error { fn(); return nil }
func (e *deferredExec) Go(work func() func())                   { e.held = append(e.held, work) }

func (e *deferredExec) flush() {
	held := e.held
	e.held = nil
	for _, w := range held {
		if next := w(); next != nil {
			next()
		}
	}
}

type recorder struct {
	states      []State
	warnings    int
	escalations int
	unavailable []error
}

func (r *recorder) handlers() Handlers {
	return Handlers{
		StateChanged: func(s State) { r.states = append(r.states, s) },
		Warning:      func() { r.warnings++ },
		Escalated:    func() { r.escalations++ },
		Unavailable:  func(err error) { r.unavailable = append(r.unavailable, err) },
	}
}

func newMonitor(t *testing.T, cam *fakeCamera, det *scriptedDetector) (*Monitor, *clock.Manual, *recorder) {
	t.Helper()
	sched := clock.NewManual(time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC))
	m := New(&loop.Inline{}, sched,
		capability.Available[Camera](cam),
		capability.Available[Detector](det),
		DefaultConfig(), nil)
	rec := &recorder{}
	m.SetHandlers(rec.handlers())
	return m, sched, rec
}

func TestMonitor_WarnsThenEscalates(t *testing.T) {
	cam := &fakeCamera{stream: &fakeStream{}}
	det := &scriptedDetector{present: false}
	m, sched, rec := newMonitor(t, cam, det)

	m.Start(context.Background())
	if m.State() != StateActive {
		t.Fatalf("State() = %v; want active", m.State())
	}

	sched.Advance(14 * time.Second)
	if rec.warnings != 0 {
		t.Fatalf("warnings = %d after 14 absent ticks; want 0", rec.warnings)
	}

	sched.Advance(time.Second)
	if rec.warnings != 1 || m.State() != StateWarning {
		t.Fatalf("after 15 ticks: warnings = %d, state = %v; want 1, warning", rec.warnings, m.State())
	}

	sched.Advance(14 * time.Second)
	if rec.escalations != 0 {
		t.Fatalf("escalations = %d after 29 ticks; want 0", rec.escalations)
	}

	sched.Advance(time.Second)
	if rec.escalations != 1 || m.State() != StateEscalated {
		t.Fatalf("after 30 ticks: escalations = %d, state = %v; want 1, escalated", rec.escalations, m.State())
	}

	sched.Advance(time.Minute)
	if rec.warnings != 1 || rec.escalations != 1 {
		t.Errorf("warnings = %d, escalations = %d; each should fire once", rec.warnings, rec.escalations)
	}
}

func TestMonitor_DetectionResets(t *testing.T) {
	cam := &fakeCamera{stream: &fakeStream{}}
	det := &scriptedDetector{present: false}
	m, sched, rec := newMonitor(t, cam, det)

	m.Start(context.Background())
	sched.Advance(20 * time.Second)
	if m.State() != StateWarning {
		t.Fatalf("State() = %v; want warning", m.State())
	}

	det.present = true
	sched.Advance(time.Second)
	if m.State() != StateActive {
		t.Errorf("State() = %v; want active after detection", m.State())
	}
	if obs := m.Observation(); !obs.Detected || obs.ConsecutiveAbsent != 0 {
		t.Errorf("Observation() = %+v; want detected with zero absences", obs)
	}

	det.present = false
	sched.Advance(14 * time.Second)
	if rec.warnings != 1 {
		t.Errorf("warnings = %d; counter should restart from zero", rec.warnings)
	}
}

func TestMonitor_StopReleasesOnce(t *testing.T) {
	stream := &fakeStream{}
	cam := &fakeCamera{stream: stream}
	m, sched, _ := newMonitor(t, cam, &scriptedDetector{present: true})

	m.Start(context.Background())
	sched.Advance(3 * time.Second)
	m.Stop()
	m.Stop()

	if stream.closes != 1 {
		t.Errorf("closes = %d; want 1", stream.closes)
	}
	if m.State() != StateOff {
		t.Errorf("State() = %v; want off", m.State())
	}
	if sched.Pending() != 0 {
		t.Errorf("Pending() = %d; sampling should stop", sched.Pending())
	}
}

func TestMonitor_StopWhileAcquiringReleasesLateStream(t *testing.T) {
	stream := &fakeStream{}
	cam := &fakeCamera{stream: stream}
	exec := &deferredExec{}
	sched := clock.NewManual(time.Now())
	m := New(exec, sched,
		capability.Available[Camera](cam),
		capability.Available[Detector](&scriptedDetector{}),
		DefaultConfig(), nil)

	m.Start(context.Background())
	if m.State() != StateAcquiring {
		t.Fatalf("State() = %v; want acquiring", m.State())
	}
	m.Stop()
	exec.flush()

	if stream.closes != 1 {
		t.Errorf("closes = %d; late stream should be released once", stream.closes)
	}
	if m.State() != StateOff {
		t.Errorf("State() = %v; want off", m.State())
	}
}

func TestMonitor_StartTwiceIsNoop(t *testing.T) {
	cam := &fakeCamera{stream: &fakeStream{}}
	m, _, _ := newMonitor(t, cam, &scriptedDetector{present: true})

	m.Start(context.Background())
	m.Start(context.Background())
	if cam.opens != 1 {
		t.Errorf("opens = %d; want 1", cam.opens)
	}
}

func TestMonitor_PermissionDeniedDisablesOnce(t *testing.T) {
	cam := &fakeCamera{openErr: capability.ErrPermissionDenied}
	m, _, rec := newMonitor(t, cam, &scriptedDetector{})

	m.Start(context.Background())
	m.Start(context.Background())

	if len(rec.unavailable) != 1 {
		t.Fatalf("unavailable notifications = %d; want 1", len(rec.unavailable))
	}
	if !errors.Is(rec.unavailable[0], capability.ErrPermissionDenied) {
		t.Errorf("reason = %v; want ErrPermissionDenied", rec.unavailable[0])
	}
	if !m.Disabled() {
		t.Error("Disabled() should be true")
	}
	if cam.opens != 1 {
		t.Errorf("opens = %d; disabled monitor should not retry", cam.opens)
	}
	if m.State() != StateOff {
		t.Errorf("State() = %v; want off", m.State())
	}
}

func TestMonitor_NoCameraNotifiesOnce(t *testing.T) {
	sched := clock.NewManual(time.Now())
	m := New(&loop.Inline{}, sched,
		capability.Unavailable[Camera](nil),
		capability.Available[Detector](&scriptedDetector{}),
		Config{}, nil)
	rec := &recorder{}
	m.SetHandlers(rec.handlers())

	m.Start(context.Background())
	m.Start(context.Background())

	if len(rec.unavailable) != 1 {
		t.Errorf("unavailable notifications = %d; want 1", len(rec.unavailable))
	}
	if !errors.Is(rec.unavailable[0], capability.ErrUnavailable) {
		t.Errorf("reason = %v; want ErrUnavailable", rec.unavailable[0])
	}
}

func TestState_String(t *testing.T) {
	if StateWarning.String() != "warning" {
		t.Errorf("StateWarning.String() = %q", StateWarning.String())
	}
	if State(99).String() != "unknown" {
		t.Errorf("State(99).String() = %q", State(99).String())
	}
}
