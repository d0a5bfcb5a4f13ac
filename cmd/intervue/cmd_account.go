package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/felixgeelhaar/intervue/internal/auth"
	"github.com/felixgeelhaar/intervue/internal/clock"
	"github.com/felixgeelhaar/intervue/internal/config"
	"github.com/felixgeelhaar/intervue/internal/sessionapi"
	"github.com/felixgeelhaar/intervue/internal/speech/say"
	"github.com/felixgeelhaar/intervue/internal/storage/local"
	"github.com/felixgeelhaar/intervue/internal/transcript"
	"gopkg.in/yaml.v3"
)

const requestTimeout = 30 * time.Second

// environment is the loaded configuration and state directory
type environment struct {
	dir  string
	cfg  *config.LocalConfig
	cred *auth.File
}

func loadEnvironment() (*environment, error) {
	dir, err := config.EnsureIntervueDir()
	if err != nil {
		return nil, fmt.Errorf("setup intervue directory: %w", err)
	}
	cfg, err := config.LoadLocalConfigFrom(dir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &environment{dir: dir, cfg: cfg, cred: auth.NewFile(config.CredentialPath(dir))}, nil
}

func (e *environment) client() *sessionapi.HTTPClient {
	return sessionapi.NewHTTPClient(e.cfg.Client.ServerURL, e.cred)
}

func cmdLimits() error {
	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	limits, err := env.client().Limits(ctx)
	if err != nil {
		return explain(err)
	}
	printLimits(limits)
	return nil
}

func cmdResetQuota() error {
	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	limits, err := env.client().ResetQuota(ctx)
	if err != nil {
		return explain(err)
	}
	fmt.Println("✓ Daily interviews restored")
	printLimits(limits)
	return nil
}

func printLimits(l *sessionapi.Limits) {
	fmt.Printf("Interviews left today: %d of %d\n", l.Remaining, l.Limit)
	if !l.ResetsAt.IsZero() {
		fmt.Printf("Resets at: %s\n", l.ResetsAt.Local().Format("2006-01-02 15:04 MST"))
	}
}

func cmdTranscript(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: intervue transcript <session-id>")
	}
	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	tr, err := env.client().Transcript(ctx, args[0])
	if err != nil {
		return explain(err)
	}
	fmt.Printf("Interview %s (%s)\n\n", tr.SessionID, tr.Status)
	for _, e := range tr.Entries {
		fmt.Printf("%s %s\n\n", speakerLabel(e.Role), e.Text)
	}
	return nil
}

func cmdHistory(args []string) error {
	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	history, err := local.NewHistory(config.HistoryDir(env.dir))
	if err != nil {
		return err
	}

	if len(args) == 0 {
		records, err := history.List()
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No interviews yet. Run: intervue start -job <title>")
			return nil
		}
		printHistory(os.Stdout, records)
		return nil
	}

	rec, err := history.Load(args[0])
	if errors.Is(err, local.ErrNotFound) {
		return fmt.Errorf("no archived interview %s (try: intervue transcript %s)", args[0], args[0])
	}
	if err != nil {
		return err
	}
	fmt.Printf("%s · %s · %d questions · score %s\n\n", rec.JobTitle, rec.Difficulty, rec.QuestionLimit, rec.ScoreText())
	for _, e := range rec.Entries {
		fmt.Printf("%s %s\n\n", speakerLabel(e.Role), e.Text)
	}
	if rec.Explanation != "" {
		fmt.Printf("Feedback: %s\n", rec.Explanation)
	}
	return nil
}

func printHistory(w io.Writer, records []*local.Record) {
	fmt.Fprintf(w, "%-38s %-17s %-6s %-8s %s\n", "SESSION", "ENDED", "SCORE", "LEVEL", "JOB")
	for _, r := range records {
		score := r.ScoreText()
		if !r.Completed {
			score = "-"
		}
		fmt.Fprintf(w, "%-38s %-17s %-6s %-8s %s\n",
			r.SessionID, r.EndedAt.Local().Format("2006-01-02 15:04"), score, r.Difficulty, r.JobTitle)
	}
}

func speakerLabel(role transcript.Role) string {
	if role == transcript.RoleInterviewer {
		return "Interviewer:"
	}
	return "You:"
}

func cmdLogin(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: intervue login <token>")
	}
	token := strings.TrimSpace(args[0])

	exp, err := auth.ExpiresAt(token)
	if err != nil {
		return fmt.Errorf("token rejected: %w", err)
	}
	remaining := int(time.Until(exp).Seconds())
	if remaining <= 0 {
		return auth.ErrAuthExpired
	}

	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	if err := env.cred.Save(token); err != nil {
		return err
	}
	fmt.Printf("✓ Logged in (token valid for %s)\n", clock.FormatRemaining(remaining))
	return nil
}

func cmdLogout() error {
	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	if err := env.cred.Clear(); err != nil {
		return err
	}
	fmt.Println("✓ Logged out")
	return nil
}

func cmdResume(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: intervue resume <feedback.json>")
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read resume feedback: %w", err)
	}
	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	if err := config.SaveResumeFeedback(env.dir, data); err != nil {
		return err
	}
	fmt.Println("✓ Resume feedback saved")
	return nil
}

func cmdConfig() error {
	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(env.cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	fmt.Printf("# %s\n", env.dir)
	fmt.Print(string(data))

	prefs, err := config.NewPreferencesFile(env.dir).Load()
	if err != nil {
		return err
	}
	fmt.Printf("\n# preferences\nspeaker: %v\nmicrophone: %v\ncamera: %v\nvoice_gender: %s\n",
		prefs.Speaker, prefs.Microphone, prefs.Camera, prefs.VoiceGender)

	if _, err := env.cred.Token(); errors.Is(err, auth.ErrNoCredential) {
		fmt.Println("\nNot logged in. Run: intervue login <token>")
	}
	return nil
}

func cmdVoices() error {
	syn, ok := say.Detect().Get()
	if !ok {
		return errors.New("no speech synthesizer found (install say or espeak-ng)")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	voices, err := syn.Voices(ctx)
	if err != nil {
		return err
	}
	for _, v := range voices {
		fmt.Printf("%-24s %-8s %s\n", v.Name, v.Locale, v.Gender)
	}
	return nil
}

// explain turns service errors into actionable messages
func explain(err error) error {
	switch {
	case errors.Is(err, auth.ErrNoCredential):
		return errors.New("not logged in. Run: intervue login <token>")
	case errors.Is(err, auth.ErrAuthExpired):
		return errors.New("your session has expired. Run: intervue login <token>")
	case errors.Is(err, sessionapi.ErrUnavailable):
		return fmt.Errorf("interview service unreachable: %w", err)
	default:
		return err
	}
}
