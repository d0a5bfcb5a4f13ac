package wsstt

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/felixgeelhaar/intervue/internal/capability"
	"github.com/felixgeelhaar/intervue/internal/media"
	"github.com/felixgeelhaar/intervue/internal/speech"
)

type bufferSource struct {
	data []byte
}

func (b *bufferSource) Open(ctx context.Context) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b.data)), nil
}

type failingSource struct{}

func (failingSource) Open(ctx context.Context) (io.ReadCloser, error) {
	return nil, capability.ErrPermissionDenied
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

// newService runs a transcription service that waits for finalize and then
// sends the given messages.
func newService(t *testing.T, replies ...map[string]any) (*httptest.Server, chan string) {
	t.Helper()
	queries := make(chan string, 1)
	upgrader := websocket.Upgrader{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries <- r.URL.RawQuery
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			kind, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if kind == websocket.TextMessage && string(data) == "finalize" {
				break
			}
		}
		for _, reply := range replies {
			if err := conn.WriteJSON(reply); err != nil {
				return
			}
		}
		// Wait for the client to hang up.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)
	return server, queries
}

func collect(t *testing.T, rec speech.Recognition) []speech.Result {
	t.Helper()
	var out []speech.Result
	timeout := time.After(3 * time.Second)
	for {
		select {
		case r, ok := <-rec.Results():
			if !ok {
				return out
			}
			out = append(out, r)
		case <-timeout:
			t.Fatal("recognition did not end")
		}
	}
}

func TestRecognizer_FinalTranscript(t *testing.T) {
	server, queries := newService(t,
		map[string]any{"type": "transcript", "text": "I led the", "is_final": false},
		map[string]any{"type": "transcript", "text": "I led the platform team", "is_final": true},
	)

	r := New(Config{URL: wsURL(server), Model: "ink"}, &bufferSource{data: make([]byte, 6400)})
	rec, err := r.Start(context.Background(), "en-GB")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	results := collect(t, rec)
	if len(results) != 2 {
		t.Fatalf("results = %+v; want 2", results)
	}
	if !results[1].Final || results[1].Text != "I led the platform team" {
		t.Errorf("final result = %+v", results[1])
	}
	if err := rec.Err(); err != nil {
		t.Errorf("Err() = %v; want nil", err)
	}

	q := <-queries
	for _, want := range []string{"language=en", "model=ink", "sample_rate=16000", "encoding=pcm_s16le"} {
		if !strings.Contains(q, want) {
			t.Errorf("query %q missing %q", q, want)
		}
	}
}

func TestRecognizer_NoSpeech(t *testing.T) {
	server, _ := newService(t, map[string]any{"type": "done"})

	r := New(Config{URL: wsURL(server)}, &bufferSource{data: make([]byte, 3200)})
	rec, err := r.Start(context.Background(), "en-US")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if results := collect(t, rec); len(results) != 0 {
		t.Errorf("results = %+v; want none", results)
	}
	if speech.KindOf(rec.Err()) != speech.KindNoSpeech {
		t.Errorf("Err() = %v; want no speech", rec.Err())
	}
}

func TestRecognizer_ServiceError(t *testing.T) {
	server, _ := newService(t, map[string]any{"type": "error", "error": "quota exhausted"})

	r := New(Config{URL: wsURL(server)}, &bufferSource{})
	rec, err := r.Start(context.Background(), "")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	collect(t, rec)
	if !errors.Is(rec.Err(), speech.ErrRecognition) {
		t.Errorf("Err() = %v; want ErrRecognition", rec.Err())
	}
}

func TestRecognizer_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := wsURL(server)
	server.Close()

	r := New(Config{URL: url, HandshakeTimeout: time.Second}, &bufferSource{})
	_, err := r.Start(context.Background(), "en-US")
	if speech.KindOf(err) != speech.KindNetwork {
		t.Errorf("Start() error = %v; want network error", err)
	}
}

func TestRecognizer_MicrophoneDenied(t *testing.T) {
	r := New(Config{URL: "ws://127.0.0.1:1"}, failingSource{})
	_, err := r.Start(context.Background(), "en-US")
	if speech.KindOf(err) != speech.KindPermissionDenied {
		t.Errorf("Start() error = %v; want permission denied", err)
	}
}

func TestRecognizer_CancelEndsQuietly(t *testing.T) {
	server, _ := newService(t)

	// A source that never ends keeps the pass open until cancelled.
	pr, pw := io.Pipe()
	defer pw.Close()
	r := New(Config{URL: wsURL(server)}, sourceFunc(func() io.ReadCloser { return pr }))
	rec, err := r.Start(context.Background(), "en-US")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	rec.Cancel()
	collect(t, rec)
	if err := rec.Err(); err != nil {
		t.Errorf("Err() after Cancel = %v; want nil", err)
	}
}

type sourceFunc func() io.ReadCloser

func (f sourceFunc) Open(ctx context.Context) (io.ReadCloser, error) {
	return f(), nil
}

func TestDetect_RequiresURL(t *testing.T) {
	if Detect(Config{}, "", media.Device{}).OK() {
		t.Error("Detect() without a URL should be unavailable")
	}
}
