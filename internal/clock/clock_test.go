package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

func TestClock_TicksAndExpires(t *testing.T) {
	m := NewManual(epoch)
	c := New(m)

	var ticks []int
	expired := 0
	c.Start(3, func(r int) { ticks = append(ticks, r) }, func() { expired++ })

	m.Advance(2 * time.Second)
	if expired != 0 {
		t.Fatalf("expired after 2s; want still running")
	}
	if c.Remaining() != 1 {
		t.Errorf("Remaining() = %d; want 1", c.Remaining())
	}

	m.Advance(time.Second)
	if expired != 1 {
		t.Errorf("expired = %d; want 1", expired)
	}
	want := []int{2, 1, 0}
	if len(ticks) != len(want) {
		t.Fatalf("ticks = %v; want %v", ticks, want)
	}
	for i := range want {
		if ticks[i] != want[i] {
			t.Errorf("ticks[%d] = %d; want %d", i, ticks[i], want[i])
		}
	}
	if c.Running() {
		t.Error("Running() should be false after expiry")
	}

	m.Advance(10 * time.Second)
	if expired != 1 {
		t.Errorf("expired = %d after further time; want 1", expired)
	}
}

func TestClock_CancelPreventsExpiry(t *testing.T) {
	m := NewManual(epoch)
	c := New(m)

	expired := false
	ticked := 0
	c.Start(5, func(int) { ticked++ }, func() { expired = true })
	m.Advance(2 * time.Second)
	c.Cancel()
	m.Advance(time.Minute)

	if expired {
		t.Error("cancelled clock should never expire")
	}
	if ticked != 2 {
		t.Errorf("ticked = %d; want 2", ticked)
	}
	if c.Remaining() != 3 {
		t.Errorf("Remaining() = %d; want 3", c.Remaining())
	}
	if m.Pending() != 0 {
		t.Errorf("Pending() = %d; want 0", m.Pending())
	}
}

func TestClock_RestartDiscardsOldGeneration(t *testing.T) {
	m := NewManual(epoch)
	c := New(m)

	first := 0
	second := 0
	c.Start(2, nil, func() { first++ })
	m.Advance(time.Second)
	c.Start(5, nil, func() { second++ })
	m.Advance(2 * time.Second)

	if first != 0 {
		t.Errorf("first expiry fired %d times; want 0", first)
	}
	if c.Remaining() != 3 {
		t.Errorf("Remaining() = %d; want 3", c.Remaining())
	}

	m.Advance(3 * time.Second)
	if second != 1 {
		t.Errorf("second expiry fired %d times; want 1", second)
	}
}

func TestClock_ZeroDurationExpiresOnNextTurn(t *testing.T) {
	m := NewManual(epoch)
	c := New(m)

	expired := false
	c.Start(0, nil, func() { expired = true })
	if expired {
		t.Fatal("expiry should not run inside Start")
	}
	m.Advance(0)
	if !expired {
		t.Error("zero-length countdown should expire")
	}
}

func TestClock_CancelFromTick(t *testing.T) {
	m := NewManual(epoch)
	c := New(m)

	expired := false
	c.Start(3, func(r int) {
		if r == 1 {
			c.Cancel()
		}
	}, func() { expired = true })
	m.Advance(5 * time.Second)

	if expired {
		t.Error("expiry should not fire after cancel from a tick")
	}
}

func TestClock_Deadline(t *testing.T) {
	m := NewManual(epoch)
	c := New(m)
	c.Start(90, nil, nil)

	if want := epoch.Add(90 * time.Second); !c.Deadline().Equal(want) {
		t.Errorf("Deadline() = %v; want %v", c.Deadline(), want)
	}
}

func TestManual_FiresInDeadlineOrder(t *testing.T) {
	m := NewManual(epoch)
	var order []string
	m.AfterFunc(3*time.Second, func() { order = append(order, "c") })
	m.AfterFunc(time.Second, func() { order = append(order, "a") })
	m.AfterFunc(2*time.Second, func() { order = append(order, "b") })
	stopped := m.AfterFunc(2*time.Second, func() { order = append(order, "x") })
	stopped.Stop()

	m.Advance(3 * time.Second)

	if got := len(order); got != 3 {
		t.Fatalf("order = %v; want [a b c]", order)
	}
	for i, want := range []string{"a", "b", "c"} {
		if order[i] != want {
			t.Errorf("order[%d] = %q; want %q", i, order[i], want)
		}
	}
	if !m.Now().Equal(epoch.Add(3 * time.Second)) {
		t.Errorf("Now() = %v; want %v", m.Now(), epoch.Add(3*time.Second))
	}
}

func TestFormatRemaining(t *testing.T) {
	tests := []struct {
		seconds int
		want    string
	}{
		{0, "0:00"},
		{5, "0:05"},
		{65, "1:05"},
		{900, "15:00"},
		{-3, "0:00"},
	}

	for _, tt := range tests {
		if got := FormatRemaining(tt.seconds); got != tt.want {
			t.Errorf("FormatRemaining(%d) = %q; want %q", tt.seconds, got, tt.want)
		}
	}
}
