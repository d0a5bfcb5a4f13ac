package interview

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/felixgeelhaar/intervue/internal/auth"
	"github.com/felixgeelhaar/intervue/internal/capability"
	"github.com/felixgeelhaar/intervue/internal/clock"
	"github.com/felixgeelhaar/intervue/internal/feedback"
	"github.com/felixgeelhaar/intervue/internal/inactivity"
	"github.com/felixgeelhaar/intervue/internal/loop"
	"github.com/felixgeelhaar/intervue/internal/presence"
	"github.com/felixgeelhaar/intervue/internal/sessionapi"
	"github.com/felixgeelhaar/intervue/internal/speech"
	"github.com/felixgeelhaar/intervue/internal/transcript"
)

const endPrompt = "End the interview now? An interview ended early cannot be scored."

// Deps are the controller's collaborators. Exec, Scheduler and API are
// required; the rest are optional.
type Deps struct {
	Exec      loop.Executor
	Scheduler clock.Scheduler
	API       sessionapi.Client

	// Credential enables the expiry countdown.
	Credential  auth.Credential
	Speaker     Speaker
	Listener    Listener
	Presence    PresenceMonitor
	Preferences PreferenceStore
	Confirmer   Confirmer
	Notifier    Notifier

	// InactivityTimeout defaults to inactivity.DefaultTimeout.
	InactivityTimeout time.Duration
	Logger            *slog.Logger
}

// Controller owns one interview at a time. Every state change runs on the
// executor's loop; the exported methods hop onto it and must not be called
// from loop callbacks.
type Controller struct {
	exec      loop.Executor
	sched     clock.Scheduler
	api       sessionapi.Client
	speaker   Speaker
	listener  Listener
	presence  PresenceMonitor
	store     PreferenceStore
	confirmer Confirmer
	notifier  Notifier
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	status      Status
	sessionID   string
	setup       Setup
	pauseReason PauseReason
	deferred    bool
	log         *transcript.Log
	interview   *clock.Clock
	idle        *inactivity.Monitor
	watch       *auth.Watch
	limits      *sessionapi.Limits
	prefs       Preferences
	result      *feedback.Result

	// pending holds a final transcript heard while a reply could not be sent.
	pending string

	starting bool
	replying bool
	ending   bool
}

// New creates an idle controller and loads the stored preferences.
func New(d Deps) *Controller {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "interview")

	notifier := d.Notifier
	if notifier == nil {
		notifier = NopNotifier{}
	}
	confirmer := d.Confirmer
	if confirmer == nil {
		confirmer = AlwaysConfirm
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		exec:      d.Exec,
		sched:     d.Scheduler,
		api:       d.API,
		speaker:   d.Speaker,
		listener:  d.Listener,
		presence:  d.Presence,
		store:     d.Preferences,
		confirmer: confirmer,
		notifier:  notifier,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		status:    StatusIdle,
		log:       transcript.New(d.Scheduler.Now),
		interview: clock.New(d.Scheduler),
		idle:      inactivity.New(d.Scheduler, d.InactivityTimeout),
		prefs:     DefaultPreferences(),
	}
	if d.Credential != nil {
		c.watch = auth.NewWatch(d.Scheduler, d.Credential)
	}

	if c.store != nil {
		prefs, err := c.store.Load()
		if err != nil {
			logger.Warn("failed to load preferences", "error", err)
		} else {
			c.prefs = prefs
		}
	}
	if c.speaker != nil {
		c.speaker.SetEnabled(c.prefs.Speaker)
	}

	c.idle.OnIdle(func() { c.pause(PauseInactivity) })

	if c.presence != nil {
		c.presence.SetHandlers(presence.Handlers{
			StateChanged: func(presence.State) { c.notifyStatus() },
			Warning:      c.notifier.PresenceWarning,
			Escalated:    func() { c.pause(PausePresence) },
			Unavailable:  c.cameraUnavailable,
		})
	}
	return c
}

// Start opens a new interview and waits for the opening question.
func (c *Controller) Start(ctx context.Context, s Setup) error {
	return c.await(ctx, func(done func(error)) { c.start(ctx, s, done) })
}

// Reply sends the candidate's answer and waits for the interviewer.
func (c *Controller) Reply(ctx context.Context, text string) error {
	return c.await(ctx, func(done func(error)) { c.reply(ctx, text, done) })
}

// Resume continues a paused interview.
func (c *Controller) Resume(ctx context.Context) error {
	return c.run(ctx, c.resume)
}

// Defer keeps a paused interview paused until the candidate resumes it.
func (c *Controller) Defer(ctx context.Context) error {
	return c.run(ctx, func() error {
		if c.status != StatusPaused {
			return ErrNotPaused
		}
		c.deferred = true
		c.notifyStatus()
		return nil
	})
}

// End asks for confirmation and then ends the interview. Local cleanup
// happens even when the service cannot be reached.
func (c *Controller) End(ctx context.Context) error {
	err := c.run(ctx, func() error {
		if c.status != StatusActive && c.status != StatusPaused {
			return ErrNotActive
		}
		if c.ending {
			return ErrBusy
		}
		return nil
	})
	if err != nil {
		return err
	}

	if !c.confirmer.Confirm(ctx, endPrompt) {
		return ErrEndNotConfirmed
	}
	return c.await(ctx, func(done func(error)) { c.end(ctx, done) })
}

// Listen starts a speech recognition pass. A final transcript is sent as
// the candidate's reply.
func (c *Controller) Listen(ctx context.Context) error {
	return c.run(ctx, c.listen)
}

// StopListening cancels the running recognition pass.
func (c *Controller) StopListening(ctx context.Context) error {
	return c.run(ctx, func() error {
		if c.listener != nil {
			c.listener.Cancel()
		}
		c.notifyStatus()
		return nil
	})
}

// SetPreferences applies and stores new device choices.
func (c *Controller) SetPreferences(ctx context.Context, p Preferences) error {
	return c.run(ctx, func() error { return c.applyPreferences(p) })
}

// Preferences returns the current device choices.
func (c *Controller) Preferences(ctx context.Context) (Preferences, error) {
	var p Preferences
	err := c.run(ctx, func() error {
		p = c.prefs
		return nil
	})
	return p, err
}

// RefreshLimits fetches the remaining attempts.
func (c *Controller) RefreshLimits(ctx context.Context) (*sessionapi.Limits, error) {
	return c.fetchLimits(ctx, c.api.Limits)
}

// ResetQuota restores the daily attempts. It is meant for testing.
func (c *Controller) ResetQuota(ctx context.Context) (*sessionapi.Limits, error) {
	return c.fetchLimits(ctx, c.api.ResetQuota)
}

// Snapshot returns the current state.
func (c *Controller) Snapshot(ctx context.Context) (Snapshot, error) {
	var s Snapshot
	err := c.run(ctx, func() error {
		s = c.snapshot()
		return nil
	})
	return s, err
}

// Transcript returns the conversation so far.
func (c *Controller) Transcript(ctx context.Context) ([]transcript.Entry, error) {
	var entries []transcript.Entry
	err := c.run(ctx, func() error {
		entries = c.log.Entries()
		return nil
	})
	return entries, err
}

// Close stops every clock and device. It does not end the interview on
// the service.
func (c *Controller) Close(ctx context.Context) error {
	err := c.run(ctx, func() error {
		c.stopSession()
		if c.watch != nil {
			c.watch.Stop()
		}
		if c.speaker != nil {
			c.speaker.Cancel()
		}
		return nil
	})
	c.cancel()
	return err
}

// run executes fn on the loop and returns its error.
func (c *Controller) run(ctx context.Context, fn func() error) error {
	var err error
	if derr := c.exec.Do(ctx, func() { err = fn() }); derr != nil {
		return derr
	}
	return err
}

// await starts fn on the loop and waits until it calls done.
func (c *Controller) await(ctx context.Context, fn func(done func(error))) error {
	result := make(chan error, 1)
	done := func(err error) { result <- err }
	if err := c.exec.Do(ctx, func() { fn(done) }); err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) busy() bool {
	return c.starting || c.replying || c.ending
}

func (c *Controller) start(ctx context.Context, s Setup, done func(error)) {
	switch {
	case c.status == StatusActive || c.status == StatusPaused:
		done(ErrAlreadyRunning)
		return
	case c.busy():
		done(ErrBusy)
		return
	}

	s.JobTitle = strings.TrimSpace(s.JobTitle)
	if s.JobTitle == "" {
		done(ErrJobTitleMissing)
		return
	}
	if len(bytes.TrimSpace(s.ResumeFeedback)) == 0 {
		done(sessionapi.ErrResumeMissing)
		return
	}
	if c.limits != nil && c.limits.Remaining <= 0 {
		done(sessionapi.ErrQuotaExceeded)
		return
	}
	if s.Difficulty == "" {
		s.Difficulty = sessionapi.DifficultyMedium
	}
	if !sessionapi.ValidDifficulty(s.Difficulty) {
		done(fmt.Errorf("%w: unknown difficulty %q", sessionapi.ErrBadRequest, s.Difficulty))
		return
	}

	c.starting = true
	known := c.limits != nil
	req := sessionapi.StartRequest{
		JobTitle:       s.JobTitle,
		ResumeFeedback: s.ResumeFeedback,
		QuestionLimit:  s.QuestionLimit,
		Difficulty:     s.Difficulty,
	}

	c.exec.Go(func() func() {
		var limits *sessionapi.Limits
		if !known {
			l, err := c.api.Limits(ctx)
			if err != nil {
				c.logger.Warn("failed to fetch limits", "error", err)
			} else {
				limits = l
				if l.Remaining <= 0 {
					return func() { c.started(s, limits, nil, sessionapi.ErrQuotaExceeded, done) }
				}
			}
		}
		resp, err := c.api.Start(ctx, req)
		return func() { c.started(s, limits, resp, err, done) }
	})
}

func (c *Controller) started(s Setup, limits *sessionapi.Limits, resp *sessionapi.StartResponse, err error, done func(error)) {
	c.starting = false
	if limits != nil {
		c.limits = limits
	}
	if err != nil {
		if errors.Is(err, sessionapi.ErrQuotaExceeded) && c.limits != nil {
			c.limits.Remaining = 0
		}
		c.logger.Warn("failed to start interview", "error", err)
		done(err)
		return
	}

	c.sessionID = resp.SessionID
	c.setup = s
	c.log = transcript.New(c.sched.Now)
	c.result = nil
	c.pending = ""
	c.pauseReason = PauseNone
	c.deferred = false
	c.status = StatusActive
	if c.limits != nil && c.limits.Remaining > 0 {
		c.limits.Remaining--
	}

	c.startSession(int(DurationFor(s.QuestionLimit) / time.Second))
	c.startWatch()
	c.logger.Info("interview started", "session_id", c.sessionID, "question_limit", s.QuestionLimit, "difficulty", s.Difficulty)

	c.say(resp.Message)
	c.notifyStatus()
	done(nil)
}

func (c *Controller) reply(ctx context.Context, text string, done func(error)) {
	text = strings.TrimSpace(text)
	switch {
	case text == "":
		done(ErrEmptyReply)
		return
	case c.status != StatusActive:
		done(ErrNotActive)
		return
	case c.busy():
		done(ErrBusy)
		return
	}

	if c.listener != nil {
		c.listener.Cancel()
	}
	c.append(transcript.RoleCandidate, text)
	c.idle.RecordActivity()
	c.replying = true

	id := c.sessionID
	c.exec.Go(func() func() {
		resp, err := c.api.Reply(ctx, id, text)
		return func() { c.replied(id, resp, err, done) }
	})
}

func (c *Controller) replied(id string, resp *sessionapi.ReplyResponse, err error, done func(error)) {
	c.replying = false
	if id != c.sessionID || (c.status != StatusActive && c.status != StatusPaused) {
		done(ErrNotActive)
		return
	}
	if err != nil {
		c.logger.Warn("reply failed", "session_id", id, "error", err)
		// The service may have closed the session while it was paused here.
		if errors.Is(err, auth.ErrAuthExpired) || errors.Is(err, sessionapi.ErrSessionInvalid) {
			c.forceEnd(err)
		}
		done(err)
		return
	}

	if resp.Ended {
		c.complete(resp.Message)
		done(nil)
		return
	}
	c.say(resp.Message)
	done(nil)
	c.flushPending()
}

// complete handles the interviewer's closing message.
func (c *Controller) complete(message string) {
	message = strings.TrimSpace(strings.ReplaceAll(message, "[FINISH]", ""))
	result, ok := feedback.Extract(message)
	if !ok {
		result = feedback.Result{Score: feedback.NA(), Explanation: message}
	}

	c.say(message)
	c.stopSession()
	c.stopListening()
	if c.watch != nil {
		c.watch.Stop()
	}
	c.status = StatusEnded
	c.pauseReason = PauseNone
	c.result = &result
	c.logger.Info("interview completed", "session_id", c.sessionID, "score", result.Score.String())

	c.notifier.Finished(result)
	c.notifyStatus()
}

func (c *Controller) end(ctx context.Context, done func(error)) {
	if c.status != StatusActive && c.status != StatusPaused {
		done(ErrNotActive)
		return
	}
	if c.ending {
		done(ErrBusy)
		return
	}

	id := c.sessionID
	c.endLocal()
	c.ending = true

	c.exec.Go(func() func() {
		err := c.api.End(ctx, id)
		return func() {
			c.ending = false
			if err != nil {
				c.logger.Warn("failed to end interview on server", "session_id", id, "error", err)
			}
			done(err)
		}
	})
}

// forceEnd ends the interview without confirmation, e.g. when the
// credential expires.
func (c *Controller) forceEnd(cause error) {
	if c.status != StatusActive && c.status != StatusPaused {
		return
	}
	id := c.sessionID
	c.endLocal()
	c.notifier.Warn(cause)

	if c.ending {
		return
	}
	c.ending = true
	ctx := c.ctx
	c.exec.Go(func() func() {
		err := c.api.End(ctx, id)
		return func() {
			c.ending = false
			if err != nil {
				c.logger.Debug("end after forced stop failed", "session_id", id, "error", err)
			}
		}
	})
}

func (c *Controller) endLocal() {
	c.stopSession()
	c.stopListening()
	if c.watch != nil {
		c.watch.Stop()
	}
	if c.speaker != nil {
		c.speaker.Cancel()
	}
	c.status = StatusEnded
	c.pauseReason = PauseNone
	c.deferred = false
	c.logger.Info("interview ended", "session_id", c.sessionID)
	c.notifyStatus()
}

// pause stops the session clocks and devices. Only the first of several
// simultaneous reasons takes effect.
func (c *Controller) pause(reason PauseReason) {
	if c.status != StatusActive {
		return
	}
	c.stopSession()
	c.status = StatusPaused
	c.pauseReason = reason
	c.deferred = false
	c.logger.Info("interview paused", "session_id", c.sessionID, "reason", string(reason))

	c.notifier.Paused(reason)
	c.notifyStatus()
}

func (c *Controller) resume() error {
	if c.status != StatusPaused {
		return ErrNotPaused
	}

	seconds := c.interview.Remaining()
	if seconds <= 0 {
		seconds = int(DurationFor(c.setup.QuestionLimit) / time.Second)
	}
	c.status = StatusActive
	c.pauseReason = PauseNone
	c.deferred = false
	c.startSession(seconds)
	c.logger.Info("interview resumed", "session_id", c.sessionID, "remaining", seconds)

	c.notifyStatus()
	c.flushPending()
	return nil
}

// startSession arms the interview clock, inactivity and presence.
func (c *Controller) startSession(seconds int) {
	c.interview.Start(seconds,
		func(remaining int) { c.notifier.Tick(ClockInterview, remaining) },
		func() { c.pause(PauseTimeUp) },
	)
	c.idle.Start()
	if c.presence != nil && c.prefs.Camera {
		c.presence.Start(c.ctx)
	}
}

// stopSession halts the session clocks and the camera. Recognition and the
// credential watch keep running across a pause.
func (c *Controller) stopSession() {
	c.interview.Cancel()
	c.idle.Stop()
	if c.presence != nil {
		c.presence.Stop()
	}
}

// stopListening cancels recognition and drops any held transcript.
func (c *Controller) stopListening() {
	if c.listener != nil {
		c.listener.Cancel()
	}
	c.pending = ""
}

func (c *Controller) startWatch() {
	if c.watch == nil {
		return
	}
	err := c.watch.Start(
		func(remaining int) { c.notifier.Tick(ClockAuth, remaining) },
		func() { c.forceEnd(auth.ErrAuthExpired) },
	)
	if err != nil {
		c.logger.Warn("failed to watch credential expiry", "error", err)
	}
}

func (c *Controller) listen() error {
	if c.listener == nil || !c.listener.Available() {
		return fmt.Errorf("speech input: %w", capability.ErrUnavailable)
	}
	if c.status != StatusActive {
		return ErrNotActive
	}
	if c.speaker != nil {
		c.speaker.Cancel()
	}

	_, err := c.listener.Listen(c.ctx, c.heard, func(err error) {
		c.notifier.Warn(err)
		c.notifyStatus()
	})
	if err != nil {
		return err
	}
	c.notifyStatus()
	return nil
}

func (c *Controller) heard(r speech.Result) {
	c.idle.RecordActivity()
	if !r.Final {
		c.notifier.Transcribing(r.Text)
		return
	}
	text := strings.TrimSpace(r.Text)
	if text == "" {
		return
	}
	if c.status == StatusPaused || (c.status == StatusActive && c.busy()) {
		c.pending = strings.TrimSpace(c.pending + " " + text)
		c.logger.Debug("holding transcript", "session_id", c.sessionID, "status", string(c.status))
		c.notifier.Transcribing(c.pending)
		return
	}
	c.submitHeard(text)
}

// flushPending sends a held transcript once the session can take a reply.
func (c *Controller) flushPending() {
	if c.pending == "" || c.status != StatusActive || c.busy() {
		return
	}
	text := c.pending
	c.pending = ""
	c.submitHeard(text)
}

func (c *Controller) submitHeard(text string) {
	c.reply(c.ctx, text, func(err error) {
		if err != nil {
			c.notifier.Warn(err)
		}
	})
}

func (c *Controller) applyPreferences(p Preferences) error {
	old := c.prefs
	c.prefs = p

	if c.speaker != nil {
		c.speaker.SetEnabled(p.Speaker)
	}
	if c.listener != nil && old.Microphone && !p.Microphone {
		c.listener.Cancel()
	}
	if c.presence != nil && c.status == StatusActive && old.Camera != p.Camera {
		if p.Camera {
			c.presence.Start(c.ctx)
		} else {
			c.presence.Stop()
		}
	}
	c.notifyStatus()
	return c.savePreferences()
}

func (c *Controller) savePreferences() error {
	if c.store == nil {
		return nil
	}
	if err := c.store.Save(c.prefs); err != nil {
		c.logger.Warn("failed to save preferences", "error", err)
		return fmt.Errorf("save preferences: %w", err)
	}
	return nil
}

// cameraUnavailable turns the camera preference off so the next session
// does not try again.
func (c *Controller) cameraUnavailable(err error) {
	c.prefs.Camera = false
	_ = c.savePreferences()
	c.notifier.Warn(fmt.Errorf("camera: %w", err))
	c.notifyStatus()
}

func (c *Controller) fetchLimits(ctx context.Context, fetch func(context.Context) (*sessionapi.Limits, error)) (*sessionapi.Limits, error) {
	var out *sessionapi.Limits
	err := c.await(ctx, func(done func(error)) {
		c.exec.Go(func() func() {
			limits, err := fetch(ctx)
			return func() {
				if err == nil {
					c.limits = limits
					l := *limits
					out = &l
				}
				done(err)
			}
		})
	})
	return out, err
}

// say records an interviewer message and speaks it while the interview is
// active.
func (c *Controller) say(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	c.append(transcript.RoleInterviewer, text)
	if c.speaker != nil && c.status == StatusActive {
		c.speaker.Speak(c.ctx, text, c.prefs.VoiceGender)
	}
}

func (c *Controller) append(role transcript.Role, text string) {
	e := c.log.Append(role, text)
	c.notifier.Message(e)
}

func (c *Controller) notifyStatus() {
	c.notifier.StatusChanged(c.snapshot())
}

func (c *Controller) snapshot() Snapshot {
	s := Snapshot{
		Status:              c.status,
		JobTitle:            c.setup.JobTitle,
		QuestionLimit:       c.setup.QuestionLimit,
		Difficulty:          c.setup.Difficulty,
		PauseReason:         c.pauseReason,
		Deferred:            c.deferred,
		PendingReply:        c.pending,
		InterviewRemaining:  c.interview.Remaining(),
		InactivityRemaining: c.idle.Remaining(),
		Turns:               c.log.Len(),
		Preferences:         c.prefs,
		Feedback:            c.result,
	}
	if c.status == StatusActive {
		s.SessionID = c.sessionID
	}
	if c.watch != nil {
		s.AuthRemaining = c.watch.Remaining()
		s.AuthWatched = c.watch.Running()
	}
	if c.presence != nil {
		s.Presence = c.presence.State()
	}
	if c.listener != nil {
		s.Listening = c.listener.Active()
	}
	if c.speaker != nil {
		s.Speaking = c.speaker.Speaking()
	}
	if c.limits != nil {
		l := *c.limits
		s.Limits = &l
	}
	return s
}
