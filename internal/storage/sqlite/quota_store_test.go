package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/felixgeelhaar/intervue/internal/quota"
)

func TestQuotaStore_Counters(t *testing.T) {
	store := NewQuotaStore(openTestDB(t))
	ctx := context.Background()

	if n, err := store.Count(ctx, "u1", "2026-03-02"); err != nil || n != 0 {
		t.Fatalf("Count() = %d, %v; want 0, nil", n, err)
	}

	for want := 1; want <= 3; want++ {
		n, err := store.Increment(ctx, "u1", "2026-03-02")
		if err != nil {
			t.Fatalf("Increment() error = %v", err)
		}
		if n != want {
			t.Errorf("Increment() = %d; want %d", n, want)
		}
	}

	if err := store.Decrement(ctx, "u1", "2026-03-02"); err != nil {
		t.Fatalf("Decrement() error = %v", err)
	}
	if n, _ := store.Count(ctx, "u1", "2026-03-02"); n != 2 {
		t.Errorf("Count() = %d; want 2", n)
	}

	// Days are independent
	if n, _ := store.Count(ctx, "u1", "2026-03-03"); n != 0 {
		t.Errorf("Count(next day) = %d; want 0", n)
	}

	if err := store.Reset(ctx, "u1", "2026-03-02"); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if err := store.Decrement(ctx, "u1", "2026-03-02"); err != nil {
		t.Fatalf("Decrement() after reset error = %v", err)
	}
	if n, _ := store.Count(ctx, "u1", "2026-03-02"); n != 0 {
		t.Errorf("Count() after reset = %d; want 0", n)
	}
}

func TestQuotaStore_WithTracker(t *testing.T) {
	tracker, err := quota.New(NewQuotaStore(openTestDB(t)), quota.Config{DailyLimit: 1, Timezone: "Asia/Kuala_Lumpur"})
	if err != nil {
		t.Fatal(err)
	}
	tracker.SetClock(func() time.Time { return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) })
	ctx := context.Background()

	if _, err := tracker.Consume(ctx, "u1"); err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if _, err := tracker.Consume(ctx, "u1"); !errors.Is(err, quota.ErrExhausted) {
		t.Errorf("Consume() error = %v; want ErrExhausted", err)
	}
	st, _ := tracker.Status(ctx, "u1")
	if st.Remaining != 0 {
		t.Errorf("Remaining = %d; want 0", st.Remaining)
	}
}
