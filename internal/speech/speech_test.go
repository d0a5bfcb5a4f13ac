package speech

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/intervue/internal/capability"
	"github.com/felixgeelhaar/intervue/internal/loop"
)

type fakeRecognition struct {
	results chan Result
	mu      sync.Mutex
	err     error
	cancels int
	once    sync.Once
}

func newFakeRecognition() *fakeRecognition {
	return &fakeRecognition{results: make(chan Result, 8)}
}

func (r *fakeRecognition) Results() <-chan Result { return r.results }

func (r *fakeRecognition) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *fakeRecognition) Cancel() {
	r.mu.Lock()
	r.cancels++
	r.mu.Unlock()
	r.finish(nil)
}

func (r *fakeRecognition) finish(err error) {
	r.once.Do(func() {
		r.mu.Lock()
		r.err = err
		r.mu.Unlock()
		close(r.results)
	})
}

func (r *fakeRecognition) cancelCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancels
}

type fakeRecognizer struct {
	mu       sync.Mutex
	started  []*fakeRecognition
	startErr error
}

func (f *fakeRecognizer) Start(ctx context.Context, locale string) (Recognition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return nil, f.startErr
	}
	r := newFakeRecognition()
	f.started = append(f.started, r)
	return r, nil
}

func (f *fakeRecognizer) recognition(i int) *fakeRecognition {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.started) {
		return nil
	}
	return f.started[i]
}

func startLoop(t *testing.T) *loop.Loop {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	l := loop.New(nil)
	go l.Run(ctx)
	return l
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestInput_Unavailable(t *testing.T) {
	l := startLoop(t)
	in := NewInput(l, capability.Unavailable[Recognizer](nil), "", nil)

	var err error
	l.Do(context.Background(), func() {
		_, err = in.Listen(context.Background(), nil, nil)
	})
	if !errors.Is(err, capability.ErrUnavailable) {
		t.Errorf("Listen() error = %v; want ErrUnavailable", err)
	}
	if in.Available() {
		t.Error("Available() should be false")
	}
}

func TestInput_DeliversResultsThenError(t *testing.T) {
	l := startLoop(t)
	rec := &fakeRecognizer{}
	in := NewInput(l, capability.Available[Recognizer](rec), "en-US", nil)

	results := make(chan Result, 4)
	errs := make(chan error, 1)
	l.Do(context.Background(), func() {
		_, err := in.Listen(context.Background(),
			func(r Result) { results <- r },
			func(err error) { errs <- err })
		if err != nil {
			t.Errorf("Listen() error = %v", err)
		}
	})

	waitFor(t, "recognition start", func() bool { return rec.recognition(0) != nil })
	r := rec.recognition(0)
	r.results <- Result{Text: "I led the migration", Final: true}
	r.finish(ErrNoSpeech)

	select {
	case got := <-results:
		if got.Text != "I led the migration" || !got.Final {
			t.Errorf("result = %+v; want final transcript", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no result delivered")
	}

	select {
	case err := <-errs:
		if KindOf(err) != KindNoSpeech {
			t.Errorf("KindOf(%v) = %v; want KindNoSpeech", err, KindOf(err))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no error delivered")
	}

	waitFor(t, "pass to end", func() bool {
		active := true
		l.Do(context.Background(), func() { active = in.Active() })
		return !active
	})
}

func TestInput_SecondListenCancelsFirst(t *testing.T) {
	l := startLoop(t)
	rec := &fakeRecognizer{}
	in := NewInput(l, capability.Available[Recognizer](rec), "", nil)

	l.Do(context.Background(), func() { in.Listen(context.Background(), nil, nil) })
	waitFor(t, "first start", func() bool { return rec.recognition(0) != nil })
	// Let the start continuation attach the recognition to its handle.
	l.Do(context.Background(), func() {})

	l.Do(context.Background(), func() { in.Listen(context.Background(), nil, nil) })
	waitFor(t, "second start", func() bool { return rec.recognition(1) != nil })

	first := rec.recognition(0)
	waitFor(t, "first recognition to be cancelled", func() bool { return first.cancelCount() == 1 })
}

func TestInput_CancelSuppressesCallbacks(t *testing.T) {
	l := startLoop(t)
	rec := &fakeRecognizer{}
	in := NewInput(l, capability.Available[Recognizer](rec), "", nil)

	var mu sync.Mutex
	called := false
	var h *Listening
	l.Do(context.Background(), func() {
		h, _ = in.Listen(context.Background(),
			func(Result) { mu.Lock(); called = true; mu.Unlock() },
			func(error) { mu.Lock(); called = true; mu.Unlock() })
	})
	waitFor(t, "start", func() bool { return rec.recognition(0) != nil })
	l.Do(context.Background(), func() {})
	l.Do(context.Background(), func() { h.Cancel() })

	r := rec.recognition(0)
	waitFor(t, "recognition to be cancelled", func() bool { return r.cancelCount() == 1 })
	l.Do(context.Background(), func() {})

	mu.Lock()
	defer mu.Unlock()
	if called {
		t.Error("callbacks should not run after Cancel")
	}
}

func TestInput_StartFailureReported(t *testing.T) {
	l := startLoop(t)
	rec := &fakeRecognizer{startErr: fmt.Errorf("open mic: %w", capability.ErrPermissionDenied)}
	in := NewInput(l, capability.Available[Recognizer](rec), "", nil)

	errs := make(chan error, 1)
	l.Do(context.Background(), func() {
		in.Listen(context.Background(), nil, func(err error) { errs <- err })
	})

	select {
	case err := <-errs:
		if KindOf(err) != KindPermissionDenied {
			t.Errorf("KindOf(%v) = %v; want KindPermissionDenied", err, KindOf(err))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("start failure not reported")
	}
}

type fakeUtterance struct {
	done    chan struct{}
	once    sync.Once
	err     error
	mu      sync.Mutex
	cancels int
}

func newFakeUtterance() *fakeUtterance {
	return &fakeUtterance{done: make(chan struct{})}
}

func (u *fakeUtterance) Done() <-chan struct{} { return u.done }
func (u *fakeUtterance) Err() error            { return u.err }

func (u *fakeUtterance) Cancel() {
	u.mu.Lock()
	u.cancels++
	u.mu.Unlock()
	u.once.Do(func() { close(u.done) })
}

func (u *fakeUtterance) finish(err error) {
	u.once.Do(func() {
		u.err = err
		close(u.done)
	})
}

type fakeSynth struct {
	mu       sync.Mutex
	voices   []Voice
	spoken   []string
	chosen   []*Voice
	utters   []*fakeUtterance
	speakErr error
}

func (f *fakeSynth) Voices(ctx context.Context) ([]Voice, error) {
	return f.voices, nil
}

func (f *fakeSynth) Speak(ctx context.Context, text string, voice *Voice, opts SpeakOptions) (Utterance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.speakErr != nil {
		return nil, f.speakErr
	}
	u := newFakeUtterance()
	f.spoken = append(f.spoken, text)
	f.chosen = append(f.chosen, voice)
	f.utters = append(f.utters, u)
	return u, nil
}

func TestOutput_SpeakLifecycle(t *testing.T) {
	l := startLoop(t)
	syn := &fakeSynth{voices: []Voice{{ID: "v1", Name: "Samantha", Locale: "en-US"}}}
	out := NewOutput(l, capability.Available[Synthesizer](syn), "en-US", nil)

	changes := make(chan bool, 4)
	l.Do(context.Background(), func() {
		out.SetObserver(OutputObserver{SpeakingChanged: func(s bool) { changes <- s }})
	})

	l.Do(context.Background(), func() { out.Warm(context.Background()) })
	waitFor(t, "voices", func() bool {
		n := 0
		l.Do(context.Background(), func() { n = len(out.Voices()) })
		return n == 1
	})

	l.Do(context.Background(), func() { out.Speak(context.Background(), "Welcome", GenderFemale) })
	if got := <-changes; !got {
		t.Fatal("expected speaking=true")
	}

	syn.mu.Lock()
	u := syn.utters[0]
	chosen := syn.chosen[0]
	syn.mu.Unlock()
	if chosen == nil || chosen.ID != "v1" {
		t.Errorf("voice = %+v; want Samantha", chosen)
	}

	u.finish(nil)
	select {
	case got := <-changes:
		if got {
			t.Error("expected speaking=false after completion")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("completion not observed")
	}
}

func TestOutput_NewUtteranceInterrupts(t *testing.T) {
	l := startLoop(t)
	syn := &fakeSynth{}
	out := NewOutput(l, capability.Available[Synthesizer](syn), "", nil)

	l.Do(context.Background(), func() {
		out.Speak(context.Background(), "first", GenderMale)
		out.Speak(context.Background(), "second", GenderMale)
	})

	syn.mu.Lock()
	first := syn.utters[0]
	syn.mu.Unlock()
	first.mu.Lock()
	cancels := first.cancels
	first.mu.Unlock()
	if cancels != 1 {
		t.Errorf("first utterance cancels = %d; want 1", cancels)
	}

	// The interrupted utterance finishing must not clear the new one.
	l.Do(context.Background(), func() {})
	speaking := false
	l.Do(context.Background(), func() { speaking = out.Speaking() })
	if !speaking {
		t.Error("second utterance should still be speaking")
	}
}

func TestOutput_DisabledOrBlankIsNoop(t *testing.T) {
	l := startLoop(t)
	syn := &fakeSynth{}
	out := NewOutput(l, capability.Available[Synthesizer](syn), "", nil)

	l.Do(context.Background(), func() {
		out.Speak(context.Background(), "   ", GenderFemale)
		out.SetEnabled(false)
		out.Speak(context.Background(), "hello", GenderFemale)
	})

	syn.mu.Lock()
	defer syn.mu.Unlock()
	if len(syn.spoken) != 0 {
		t.Errorf("spoken = %v; want none", syn.spoken)
	}
}

func TestOutput_UnavailableIsSilent(t *testing.T) {
	l := startLoop(t)
	out := NewOutput(l, capability.Unavailable[Synthesizer](nil), "", nil)

	speaking := true
	l.Do(context.Background(), func() {
		out.Speak(context.Background(), "hello", GenderFemale)
		speaking = out.Speaking()
	})
	if speaking {
		t.Error("unavailable output should never report speaking")
	}
}

func TestOutput_FailureReported(t *testing.T) {
	l := startLoop(t)
	syn := &fakeSynth{speakErr: errors.New("audio device busy")}
	out := NewOutput(l, capability.Available[Synthesizer](syn), "", nil)

	var failed error
	l.Do(context.Background(), func() {
		out.SetObserver(OutputObserver{Failed: func(err error) { failed = err }})
		out.Speak(context.Background(), "hello", GenderFemale)
	})
	if !errors.Is(failed, ErrSynthesis) {
		t.Errorf("Failed error = %v; want ErrSynthesis", failed)
	}
}

func TestSelectVoice(t *testing.T) {
	voices := []Voice{
		{ID: "fr", Name: "Amelie", Locale: "fr-CA", Gender: GenderFemale},
		{ID: "aria", Name: "Microsoft Aria Online (Natural) - English (United States)", Locale: "en-US"},
		{ID: "guy", Name: "Microsoft Guy Online (Natural) - English (United States)", Locale: "en-US"},
		{ID: "daniel", Name: "Daniel", Locale: "en_GB", Gender: GenderMale},
		{ID: "nf", Name: "Natural Female", Locale: "en-AU"},
	}

	tests := []struct {
		name   string
		voices []Voice
		gender Gender
		locale string
		want   string
		wantOK bool
	}{
		{"preferred female", voices, GenderFemale, "en-US", "nf", true},
		{"preferred male skips natural female", voices, GenderMale, "en-US", "guy", true},
		{"gender fallback", []Voice{voices[0], voices[3]}, GenderMale, "en-GB", "daniel", true},
		{"language fallback", []Voice{voices[3]}, GenderFemale, "en-US", "daniel", true},
		{"no match", []Voice{voices[0]}, GenderFemale, "en-US", "", false},
		{"empty", nil, GenderMale, "en-US", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SelectVoice(tt.voices, tt.gender, tt.locale)
			if ok != tt.wantOK {
				t.Fatalf("SelectVoice() ok = %v; want %v", ok, tt.wantOK)
			}
			if got.ID != tt.want {
				t.Errorf("SelectVoice() = %q; want %q", got.ID, tt.want)
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{fmt.Errorf("wrap: %w", capability.ErrPermissionDenied), KindPermissionDenied},
		{ErrNoSpeech, KindNoSpeech},
		{fmt.Errorf("dial: %w", ErrNetwork), KindNetwork},
		{capability.ErrUnavailable, KindUnavailable},
		{errors.New("something else"), KindOther},
	}

	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.want {
			t.Errorf("KindOf(%v) = %v; want %v", tt.err, got, tt.want)
		}
		if Guidance(tt.want) == "" {
			t.Errorf("Guidance(%v) is empty", tt.want)
		}
	}
}

func TestParseGender(t *testing.T) {
	if ParseGender("male") != GenderMale {
		t.Error("ParseGender(male) should be male")
	}
	if ParseGender("") != GenderFemale {
		t.Error("ParseGender(\"\") should default to female")
	}
}
