package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/felixgeelhaar/intervue/internal/capability"
	"github.com/felixgeelhaar/intervue/internal/clock"
	"github.com/felixgeelhaar/intervue/internal/config"
	"github.com/felixgeelhaar/intervue/internal/feedback"
	"github.com/felixgeelhaar/intervue/internal/interview"
	"github.com/felixgeelhaar/intervue/internal/loop"
	"github.com/felixgeelhaar/intervue/internal/media"
	"github.com/felixgeelhaar/intervue/internal/presence"
	"github.com/felixgeelhaar/intervue/internal/presence/ffcam"
	"github.com/felixgeelhaar/intervue/internal/sessionapi"
	"github.com/felixgeelhaar/intervue/internal/speech"
	"github.com/felixgeelhaar/intervue/internal/speech/say"
	"github.com/felixgeelhaar/intervue/internal/speech/wsstt"
	"github.com/felixgeelhaar/intervue/internal/storage/local"
)

type startOptions struct {
	jobTitle   string
	questions  int
	difficulty string
	resumePath string
}

func parseStartFlags(args []string) (startOptions, error) {
	var opts startOptions
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&opts.jobTitle, "job", "", "target job title")
	fs.IntVar(&opts.questions, "questions", 10, "number of questions")
	fs.StringVar(&opts.difficulty, "difficulty", "medium", "easy, medium or hard")
	fs.StringVar(&opts.resumePath, "resume", "", "resume feedback JSON file")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	opts.jobTitle = strings.TrimSpace(opts.jobTitle)
	if opts.jobTitle == "" && fs.NArg() > 0 {
		opts.jobTitle = strings.Join(fs.Args(), " ")
	}
	if opts.jobTitle == "" {
		return opts, errors.New("a job title is required: intervue start -job \"Backend Engineer\"")
	}
	if !slices.Contains(interview.QuestionLimits, opts.questions) {
		return opts, fmt.Errorf("questions must be one of %v", interview.QuestionLimits)
	}
	opts.difficulty = strings.ToLower(opts.difficulty)
	if !sessionapi.ValidDifficulty(opts.difficulty) {
		return opts, fmt.Errorf("unknown difficulty %q (easy, medium or hard)", opts.difficulty)
	}
	return opts, nil
}

func loadResume(dir, path string) ([]byte, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read resume feedback: %w", err)
		}
		return data, nil
	}
	data, err := config.LoadResumeFeedback(dir)
	if errors.Is(err, config.ErrNoResume) {
		return nil, errors.New("no resume feedback saved. Run: intervue resume <feedback.json>")
	}
	return data, err
}

func cmdStart(args []string) error {
	opts, err := parseStartFlags(args)
	if err != nil {
		return err
	}
	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	resume, err := loadResume(env.dir, opts.resumePath)
	if err != nil {
		return err
	}

	logger, logFile, err := clientLogger(env.dir)
	if err != nil {
		return err
	}
	defer logFile.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The loop outlives ctx so that cleanup can still run on it.
	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	lp := loop.New(logger)
	go lp.Run(loopCtx)
	sched := clock.NewSystem(lp)

	resilientCfg := sessionapi.DefaultResilientConfig()
	resilientCfg.Logger = logger
	api := sessionapi.NewResilient(env.client(), resilientCfg)
	defer api.Close()

	cfg := env.cfg.Client
	locale := cfg.Locale

	synthesizer := capability.Unavailable[speech.Synthesizer](capability.ErrUnavailable)
	if cfg.Speech.Synthesizer == "say" {
		synthesizer = say.Detect()
	}
	speaker := speech.NewOutput(lp, synthesizer, locale, logger)
	if cfg.Speech.Rate > 0 {
		speaker.SetRate(cfg.Speech.Rate)
	}
	lp.Post(func() { speaker.Warm(loopCtx) })

	recognizer := capability.Unavailable[speech.Recognizer](capability.ErrUnavailable)
	if cfg.Speech.Recognizer == "ws" {
		mic := media.DefaultMicrophone()
		if cfg.Speech.Microphone != "" {
			mic.Name = cfg.Speech.Microphone
		}
		recognizer = wsstt.Detect(wsstt.Config{
			URL:    cfg.Speech.URL,
			APIKey: cfg.Speech.APIKey,
			Model:  cfg.Speech.Model,
		}, cfg.Camera.FFmpegPath, mic)
	}
	listener := speech.NewInput(lp, recognizer, locale, logger)

	cam := media.DefaultCamera()
	if cfg.Camera.Device != "" {
		cam.Name = cfg.Camera.Device
	}
	camera := ffcam.Detect(ffcam.Config{FFmpegPath: cfg.Camera.FFmpegPath, Device: cam})
	detector := capability.Unavailable[presence.Detector](
		fmt.Errorf("no face detector configured: %w", capability.ErrUnavailable))
	if cfg.Camera.DetectorURL != "" {
		detector = capability.Available[presence.Detector](presence.NewHTTPDetector(presence.HTTPDetectorConfig{
			URL:    cfg.Camera.DetectorURL,
			APIKey: cfg.Camera.DetectorAPIKey,
		}))
	}
	monitor := presence.New(lp, sched, camera, detector, presence.DefaultConfig(), logger)

	lines := readLines(os.Stdin)
	notifier := newTerminalNotifier(os.Stdout)
	ctrl := interview.New(interview.Deps{
		Exec:        lp,
		Scheduler:   sched,
		API:         api,
		Credential:  env.cred,
		Speaker:     speaker,
		Listener:    listener,
		Presence:    monitor,
		Preferences: &prefsStore{file: config.NewPreferencesFile(env.dir)},
		Confirmer:   lineConfirmer(os.Stdout, lines),
		Notifier:    notifier,
		Logger:      logger,
	})
	defer ctrl.Close(context.Background())

	if limits, err := ctrl.RefreshLimits(ctx); err == nil {
		fmt.Printf("Interviews left today: %d of %d\n", limits.Remaining, limits.Limit)
	}

	fmt.Printf("Starting a %s %s interview (%d questions, %s)...\n",
		opts.difficulty, opts.jobTitle, opts.questions,
		clock.FormatRemaining(int(interview.DurationFor(opts.questions).Seconds())))
	err = ctrl.Start(ctx, interview.Setup{
		JobTitle:       opts.jobTitle,
		ResumeFeedback: resume,
		QuestionLimit:  opts.questions,
		Difficulty:     opts.difficulty,
	})
	if err != nil {
		return explain(err)
	}
	fmt.Println("Type your answer and press Enter. /help lists commands.")

	save := func() {
		archiveInterview(lp, ctrl, notifier, opts, env.dir, logger)
	}
	for {
		select {
		case <-notifier.Done():
			save()
			return nil
		case <-ctx.Done():
			abandon(ctrl, api, logger)
			save()
			return nil
		case line, ok := <-lines:
			if !ok {
				abandon(ctrl, api, logger)
				save()
				return nil
			}
			if err := runCommand(ctx, ctrl, line, os.Stdout); err != nil {
				fmt.Fprintf(os.Stdout, "⚠ %v\n", explain(err))
			}
		}
	}
}

// abandon ends the running interview on the service without asking
func abandon(ctrl *interview.Controller, api sessionapi.Client, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	snap, err := ctrl.Snapshot(ctx)
	if err != nil || snap.SessionID == "" {
		return
	}
	fmt.Println("\n■ Interview stopped")
	if err := api.End(ctx, snap.SessionID); err != nil {
		logger.Warn("failed to end interview on exit", "session_id", snap.SessionID, "error", err)
	}
}

// archiveInterview stores the finished interview in the local history
func archiveInterview(exec loop.Executor, ctrl *interview.Controller, n *terminalNotifier, opts startOptions, dir string, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var id string
	var result *feedback.Result
	if err := exec.Do(ctx, func() { id, result = n.sessionID, n.result }); err != nil || id == "" {
		return
	}
	entries, err := ctrl.Transcript(ctx)
	if err != nil {
		logger.Warn("failed to read transcript", "session_id", id, "error", err)
		return
	}

	history, err := local.NewHistory(config.HistoryDir(dir))
	if err != nil {
		logger.Warn("failed to open history", "error", err)
		return
	}
	rec := &local.Record{
		SessionID:     id,
		JobTitle:      opts.jobTitle,
		Difficulty:    opts.difficulty,
		QuestionLimit: opts.questions,
		EndedAt:       time.Now().UTC(),
		Entries:       entries,
	}
	if result != nil {
		rec.SetResult(*result)
	}
	if err := history.Save(rec); err != nil {
		logger.Warn("failed to archive interview", "session_id", id, "error", err)
		return
	}
	fmt.Printf("Saved. Review it with: intervue history %s\n", id)
}

// session is the part of the controller the prompt drives
type session interface {
	Reply(ctx context.Context, text string) error
	Resume(ctx context.Context) error
	Defer(ctx context.Context) error
	End(ctx context.Context) error
	Listen(ctx context.Context) error
	StopListening(ctx context.Context) error
	Preferences(ctx context.Context) (interview.Preferences, error)
	SetPreferences(ctx context.Context, p interview.Preferences) error
	Snapshot(ctx context.Context) (interview.Snapshot, error)
}

var _ session = (*interview.Controller)(nil)

func runCommand(ctx context.Context, s session, line string, out io.Writer) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		return s.Reply(ctx, line)
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/end":
		return s.End(ctx)
	case "/resume":
		return s.Resume(ctx)
	case "/defer":
		if err := s.Defer(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "Paused. Type /resume when you are ready.")
		return nil
	case "/mic":
		snap, err := s.Snapshot(ctx)
		if err != nil {
			return err
		}
		if snap.Listening {
			return s.StopListening(ctx)
		}
		if err := s.Listen(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "🎙 Listening...")
		return nil
	case "/speaker", "/camera", "/voice":
		return togglePreference(ctx, s, fields, out)
	case "/time":
		snap, err := s.Snapshot(ctx)
		if err != nil {
			return err
		}
		printTimes(out, snap)
		return nil
	case "/help":
		printCommands(out)
		return nil
	default:
		return fmt.Errorf("unknown command %s (try /help)", fields[0])
	}
}

func togglePreference(ctx context.Context, s session, fields []string, out io.Writer) error {
	p, err := s.Preferences(ctx)
	if err != nil {
		return err
	}
	switch fields[0] {
	case "/speaker":
		p.Speaker = !p.Speaker
		fmt.Fprintf(out, "Speaker %s\n", onOff(p.Speaker))
	case "/camera":
		p.Camera = !p.Camera
		fmt.Fprintf(out, "Camera %s\n", onOff(p.Camera))
	case "/voice":
		if len(fields) < 2 {
			return errors.New("usage: /voice <male|female>")
		}
		p.VoiceGender = speech.ParseGender(strings.ToLower(fields[1]))
		fmt.Fprintf(out, "Interviewer voice: %s\n", p.VoiceGender)
	}
	return s.SetPreferences(ctx, p)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func printTimes(out io.Writer, snap interview.Snapshot) {
	fmt.Fprintf(out, "Status: %s\n", snap.Status)
	fmt.Fprintf(out, "Interview time left: %s\n", clock.FormatRemaining(snap.InterviewRemaining))
	if snap.Status == interview.StatusActive {
		fmt.Fprintf(out, "Inactivity pause in: %s\n", clock.FormatRemaining(snap.InactivityRemaining))
	}
	if snap.AuthWatched {
		fmt.Fprintf(out, "Session expires in: %s\n", clock.FormatRemaining(snap.AuthRemaining))
	}
}

func printCommands(out io.Writer) {
	fmt.Fprintln(out, `Commands:
  /end                  End the interview
  /resume               Continue a paused interview
  /defer                Keep the interview paused for later
  /mic                  Start or stop answering by voice
  /speaker              Turn the interviewer's voice on or off
  /camera               Turn presence checks on or off
  /voice <male|female>  Choose the interviewer's voice
  /time                 Show the remaining time`)
}

// readLines delivers stdin lines until EOF
func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}

// lineConfirmer asks on out and reads the answer from lines
func lineConfirmer(out io.Writer, lines <-chan string) interview.ConfirmFunc {
	return func(ctx context.Context, prompt string) bool {
		fmt.Fprintf(out, "%s [y/N] ", prompt)
		select {
		case line, ok := <-lines:
			return ok && isYes(line)
		case <-ctx.Done():
			return false
		}
	}
}

func isYes(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

// clientLogger writes JSON logs to dir/logs/intervue.log so the prompt
// stays readable
func clientLogger(dir string) (*slog.Logger, *os.File, error) {
	logDir := filepath.Join(dir, "logs")
	if err := os.MkdirAll(logDir, 0750); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(logDir, "intervue.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	logger := slog.New(slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelInfo}))
	return logger, f, nil
}
