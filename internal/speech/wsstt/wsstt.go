// Package wsstt recognises speech by streaming microphone audio to a
// websocket transcription service.
package wsstt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/felixgeelhaar/intervue/internal/capability"
	"github.com/felixgeelhaar/intervue/internal/media"
	"github.com/felixgeelhaar/intervue/internal/speech"
)

// Config holds the transcription service settings.
type Config struct {
	URL              string
	APIKey           string
	Model            string
	SampleRate       int           // default: 16000
	MaxDuration      time.Duration // default: 30s
	HandshakeTimeout time.Duration // default: 10s
}

func (c *Config) defaults() {
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.MaxDuration <= 0 {
		c.MaxDuration = 30 * time.Second
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
}

// AudioSource opens a raw PCM capture (mono, signed 16-bit little-endian).
type AudioSource interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// Recognizer implements speech.Recognizer.
type Recognizer struct {
	cfg    Config
	audio  AudioSource
	dialer websocket.Dialer
}

// New creates a recognizer reading from audio.
func New(cfg Config, audio AudioSource) *Recognizer {
	cfg.defaults()
	return &Recognizer{
		cfg:    cfg,
		audio:  audio,
		dialer: websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
	}
}

// Detect resolves the recognizer once: it needs a service URL and ffmpeg
// for microphone capture.
func Detect(cfg Config, ffmpegPath string, mic media.Device) capability.Of[speech.Recognizer] {
	if cfg.URL == "" {
		return capability.Unavailable[speech.Recognizer](
			fmt.Errorf("no transcription service configured: %w", capability.ErrUnavailable))
	}
	cfg.defaults()
	bin, err := media.Lookup(ffmpegPath)
	if err != nil {
		return capability.Unavailable[speech.Recognizer](err)
	}
	source := &FFmpegMicrophone{bin: bin, device: mic, sampleRate: cfg.SampleRate}
	return capability.Available[speech.Recognizer](New(cfg, source))
}

type serverMessage struct {
	Type    string `json:"type"` // "transcript", "done", "error"
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
	Error   string `json:"error"`
}

// Start opens the microphone, connects to the service and begins streaming.
// The pass ends after the first final transcript.
func (r *Recognizer) Start(ctx context.Context, locale string) (speech.Recognition, error) {
	mic, err := r.audio.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open microphone: %w", err)
	}

	u, err := r.endpoint(locale)
	if err != nil {
		mic.Close()
		return nil, err
	}

	headers := http.Header{}
	if r.cfg.APIKey != "" {
		headers.Set("Authorization", "Bearer "+r.cfg.APIKey)
	}

	conn, resp, err := r.dialer.DialContext(ctx, u, headers)
	if err != nil {
		mic.Close()
		if resp != nil {
			defer resp.Body.Close()
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
				return nil, fmt.Errorf("websocket connect (status %d): %s: %w", resp.StatusCode, string(body), capability.ErrPermissionDenied)
			}
			return nil, fmt.Errorf("websocket connect (status %d): %s: %w", resp.StatusCode, string(body), speech.ErrNetwork)
		}
		return nil, fmt.Errorf("websocket connect: %v: %w", err, speech.ErrNetwork)
	}

	ctx, cancel := context.WithCancel(ctx)
	rec := &recognition{
		conn:    conn,
		mic:     mic,
		results: make(chan speech.Result, 16),
		ctx:     ctx,
		cancel:  cancel,
	}
	go rec.readLoop()
	go rec.writeLoop(r.cfg.MaxDuration, r.cfg.SampleRate)
	return rec, nil
}

func (r *Recognizer) endpoint(locale string) (string, error) {
	u, err := url.Parse(r.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parse websocket URL: %w", err)
	}

	language := strings.ToLower(locale)
	if i := strings.IndexAny(language, "-_"); i > 0 {
		language = language[:i]
	}
	if language == "" {
		language = "en"
	}

	q := u.Query()
	if r.cfg.Model != "" {
		q.Set("model", r.cfg.Model)
	}
	q.Set("language", language)
	q.Set("encoding", "pcm_s16le")
	q.Set("sample_rate", strconv.Itoa(r.cfg.SampleRate))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type recognition struct {
	conn    *websocket.Conn
	mic     io.ReadCloser
	results chan speech.Result
	ctx     context.Context
	cancel  context.CancelFunc
	writeMu sync.Mutex

	mu        sync.Mutex
	err       error
	heard     bool
	stopOnce  sync.Once
	cancelled bool
}

func (r *recognition) Results() <-chan speech.Result {
	return r.results
}

func (r *recognition) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *recognition) Cancel() {
	r.mu.Lock()
	r.cancelled = true
	r.mu.Unlock()
	r.stop(nil)
}

// stop records the outcome once and releases the microphone and connection.
func (r *recognition) stop(err error) {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		if !r.cancelled {
			r.err = err
		}
		r.mu.Unlock()

		r.cancel()
		r.mic.Close()
		r.writeMu.Lock()
		_ = r.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		r.writeMu.Unlock()
		r.conn.Close()
	})
}

func (r *recognition) readLoop() {
	defer close(r.results)

	for {
		_, data, err := r.conn.ReadMessage()
		if err != nil {
			if r.ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				r.stop(r.silence())
				return
			}
			r.stop(fmt.Errorf("read transcript: %v: %w", err, speech.ErrNetwork))
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "transcript":
			text := strings.TrimSpace(msg.Text)
			if text == "" {
				continue
			}
			r.mu.Lock()
			r.heard = true
			r.mu.Unlock()
			select {
			case r.results <- speech.Result{Text: text, Final: msg.IsFinal}:
			case <-r.ctx.Done():
				return
			}
			if msg.IsFinal {
				r.stop(nil)
				return
			}
		case "done":
			r.stop(r.silence())
			return
		case "error":
			r.stop(fmt.Errorf("%w: %s", speech.ErrRecognition, msg.Error))
			return
		}
	}
}

// silence is the outcome of a pass that ended without a final transcript.
func (r *recognition) silence() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.heard {
		return nil
	}
	return speech.ErrNoSpeech
}

// writeLoop streams 100ms audio chunks until the microphone closes or the
// pass reaches maxDuration, then asks the service to finalize.
func (r *recognition) writeLoop(maxDuration time.Duration, sampleRate int) {
	deadline := time.NewTimer(maxDuration)
	defer deadline.Stop()

	buf := make([]byte, sampleRate/10*2)
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-deadline.C:
			r.finalize()
			return
		default:
		}

		n, err := io.ReadFull(r.mic, buf)
		if n > 0 {
			r.writeMu.Lock()
			werr := r.conn.WriteMessage(websocket.BinaryMessage, buf[:n])
			r.writeMu.Unlock()
			if werr != nil {
				return
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				r.finalize()
				return
			}
			if r.ctx.Err() == nil {
				r.stop(fmt.Errorf("capture audio: %w", err))
			}
			return
		}
	}
}

func (r *recognition) finalize() {
	if r.ctx.Err() != nil {
		return
	}
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	_ = r.conn.WriteMessage(websocket.TextMessage, []byte("finalize"))
}

// FFmpegMicrophone captures audio with ffmpeg.
type FFmpegMicrophone struct {
	bin        string
	device     media.Device
	sampleRate int
}

// Open starts the capture.
func (m *FFmpegMicrophone) Open(ctx context.Context) (io.ReadCloser, error) {
	proc, err := media.Start(context.Background(), m.bin, media.MicrophoneArgs(m.device, m.sampleRate)...)
	if err != nil {
		return nil, err
	}
	return &processReader{proc: proc}, nil
}

type processReader struct {
	proc *media.Process
	once sync.Once
}

func (p *processReader) Read(b []byte) (int, error) {
	n, err := p.proc.Stdout().Read(b)
	if err == io.EOF {
		<-p.proc.Done()
		if perr := p.proc.Err(); perr != nil {
			return n, perr
		}
	}
	return n, err
}

func (p *processReader) Close() error {
	p.once.Do(p.proc.Stop)
	return nil
}
