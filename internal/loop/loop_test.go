package loop

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestLoop_DoRunsInOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := New(nil)
	go l.Run(ctx)

	var got []int
	for i := 0; i < 5; i++ {
		i := i
		l.Post(func() { got = append(got, i) })
	}
	if err := l.Do(ctx, func() { got = append(got, 5) }); err != nil {
		t.Fatalf("Do() error = %v", err)
	}

	for i, v := range got {
		if v != i {
			t.Fatalf("got[%d] = %d; want %d", i, v, i)
		}
	}
	if len(got) != 6 {
		t.Errorf("len(got) = %d; want 6", len(got))
	}
}

func TestLoop_GoPostsContinuation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := New(nil)
	go l.Run(ctx)

	done := make(chan string, 1)
	l.Go(func() func() {
		value := "computed"
		return func() { done <- value }
	})

	select {
	case v := <-done:
		if v != "computed" {
			t.Errorf("continuation value = %q; want %q", v, "computed")
		}
	case <-time.After(time.Second):
		t.Fatal("continuation never ran")
	}
}

func TestLoop_PanicDoesNotKillLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := New(nil)
	go l.Run(ctx)

	l.Post(func() { panic("boom") })

	ran := false
	if err := l.Do(ctx, func() { ran = true }); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if !ran {
		t.Error("loop should keep running after a panic")
	}
}

func TestLoop_DoAfterStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	l := New(nil)
	stopped := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	err := l.Do(context.Background(), func() {})
	if !errors.Is(err, ErrStopped) {
		t.Errorf("Do() after stop error = %v; want ErrStopped", err)
	}
}

func TestInline_PostDoesNotNest(t *testing.T) {
	var in Inline
	var order []string

	in.Post(func() {
		order = append(order, "outer-start")
		in.Post(func() { order = append(order, "inner") })
		order = append(order, "outer-end")
	})

	want := []string{"outer-start", "outer-end", "inner"}
	if len(order) != len(want) {
		t.Fatalf("order = %v; want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q; want %q", i, order[i], want[i])
		}
	}
}

func TestInline_GoIsSynchronous(t *testing.T) {
	var in Inline
	ran := false
	in.Go(func() func() {
		return func() { ran = true }
	})
	if !ran {
		t.Error("Inline.Go should run the continuation before returning")
	}
}

func TestInline_ConcurrentPost(t *testing.T) {
	var in Inline
	var mu sync.Mutex
	count := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			in.Post(func() {
				mu.Lock()
				count++
				mu.Unlock()
			})
		}()
	}
	wg.Wait()

	// A drain in progress finishes everything queued behind it.
	in.Post(func() {})

	mu.Lock()
	defer mu.Unlock()
	if count != 50 {
		t.Errorf("count = %d; want 50", count)
	}
}
