package auth

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/felixgeelhaar/intervue/internal/clock"
)

func newTestSigner(t *testing.T, now time.Time) *Signer {
	t.Helper()
	s, err := NewSigner("test-secret", "intervue")
	if err != nil {
		t.Fatalf("NewSigner() error = %v", err)
	}
	s.now = func() time.Time { return now }
	return s
}

func TestSigner_IssueAndVerify(t *testing.T) {
	now := time.Now()
	s := newTestSigner(t, now)

	token, err := s.Issue("user-42", time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	claims, err := s.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if claims.Subject != "user-42" {
		t.Errorf("Subject = %q; want %q", claims.Subject, "user-42")
	}
	if claims.ID == "" {
		t.Error("Issue() should set a token ID")
	}
}

func TestSigner_VerifyExpired(t *testing.T) {
	issued := time.Now().Add(-2 * time.Hour)
	s := newTestSigner(t, issued)
	token, err := s.Issue("user-1", time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	s.now = time.Now
	if _, err := s.Verify(token); !errors.Is(err, ErrAuthExpired) {
		t.Errorf("Verify() error = %v; want ErrAuthExpired", err)
	}
}

func TestSigner_VerifyWrongSecret(t *testing.T) {
	s := newTestSigner(t, time.Now())
	token, _ := s.Issue("user-1", time.Hour)

	other, _ := NewSigner("another-secret", "intervue")
	if _, err := other.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Verify() error = %v; want ErrInvalidToken", err)
	}
}

func TestNewSigner_RequiresSecret(t *testing.T) {
	if _, err := NewSigner("", ""); !errors.Is(err, ErrNoSecret) {
		t.Errorf("NewSigner(\"\") error = %v; want ErrNoSecret", err)
	}
}

func TestExpiresAt(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	s := newTestSigner(t, now)
	token, _ := s.Issue("user-1", 30*time.Minute)

	exp, err := ExpiresAt(token)
	if err != nil {
		t.Fatalf("ExpiresAt() error = %v", err)
	}
	if want := now.Add(30 * time.Minute); !exp.Equal(want) {
		t.Errorf("ExpiresAt() = %v; want %v", exp, want)
	}

	if _, err := ExpiresAt("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("ExpiresAt(garbage) error = %v; want ErrInvalidToken", err)
	}
}

func TestFileCredential(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token")
	f := NewFile(path)

	if _, err := f.Token(); !errors.Is(err, ErrNoCredential) {
		t.Errorf("Token() before save error = %v; want ErrNoCredential", err)
	}

	if err := f.Save("  abc.def.ghi  "); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := f.Token()
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if got != "abc.def.ghi" {
		t.Errorf("Token() = %q; want %q", got, "abc.def.ghi")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("permissions = %o; want 600", perm)
	}

	if err := f.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if _, err := f.Token(); !errors.Is(err, ErrNoCredential) {
		t.Errorf("Token() after clear error = %v; want ErrNoCredential", err)
	}
}

func TestWatch_ExpiresAtTokenExpiry(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	s := newTestSigner(t, now)
	token, _ := s.Issue("user-1", 90*time.Second)

	m := clock.NewManual(now)
	w := NewWatch(m, Static(token))

	expired := false
	if err := w.Start(nil, func() { expired = true }); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if w.Remaining() != 90 {
		t.Errorf("Remaining() = %d; want 90", w.Remaining())
	}

	m.Advance(89 * time.Second)
	if expired {
		t.Fatal("expired early")
	}
	m.Advance(time.Second)
	if !expired || !w.Expired() {
		t.Error("watch should expire at the token expiry")
	}
}

func TestWatch_AlreadyExpired(t *testing.T) {
	issued := time.Now().Add(-time.Hour).Truncate(time.Second)
	s := newTestSigner(t, issued)
	token, _ := s.Issue("user-1", time.Minute)

	m := clock.NewManual(time.Now())
	w := NewWatch(m, Static(token))

	expired := false
	if err := w.Start(nil, func() { expired = true }); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	m.Advance(0)
	if !expired {
		t.Error("expired credential should fire immediately")
	}
}

func TestWatch_NoCredential(t *testing.T) {
	w := NewWatch(clock.NewManual(time.Now()), Static(""))
	if err := w.Start(nil, nil); !errors.Is(err, ErrNoCredential) {
		t.Errorf("Start() error = %v; want ErrNoCredential", err)
	}
}
