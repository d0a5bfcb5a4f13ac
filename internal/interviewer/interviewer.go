// Package interviewer produces the AI interviewer's side of a mock interview.
package interviewer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/felixgeelhaar/intervue/internal/llm"
	"github.com/felixgeelhaar/intervue/internal/transcript"
)

// ErrEmptyReply is returned when the provider answers with no text
var ErrEmptyReply = errors.New("interviewer returned an empty reply")

const (
	openingCue = "I'm ready to begin the interview."
	closingCue = "I would like to end the interview now. Please give your closing message."

	fallbackOpening  = "Hi, thanks for joining today. To start, could you tell me about yourself?"
	fallbackFollowUp = "Thanks. What interests you about this role, and how does it fit your goals?"
	fallbackClosing  = "That is all from the interview today. Thank you for your time."
	fallbackNoScore  = "A score cannot be accurately determined without a completed, assessed session."
)

// Context describes the candidate and the interview they asked for
type Context struct {
	JobTitle       string
	ResumeFeedback json.RawMessage
	QuestionLimit  int
	Difficulty     string
}

// Reply is one interviewer message
type Reply struct {
	Text     string
	Finished bool
	Usage    llm.Usage
}

// Config holds interviewer settings
type Config struct {
	// Provider generates replies. Nil selects the canned fallback.
	Provider    llm.Provider
	Model       string
	Temperature float64
	MaxTokens   int
	Logger      *slog.Logger
}

// DefaultConfig matches the tuning the interviewer prompt was written for
func DefaultConfig() Config {
	return Config{
		Temperature: 0.3,
		MaxTokens:   1024,
	}
}

// Interviewer turns a transcript into the next interviewer message
type Interviewer struct {
	cfg    Config
	logger *slog.Logger
}

// New creates an interviewer
func New(cfg Config) *Interviewer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Interviewer{cfg: cfg, logger: logger.With("component", "interviewer")}
}

// Scripted reports whether replies come from the canned fallback
func (i *Interviewer) Scripted() bool {
	return i.cfg.Provider == nil
}

// Open returns the first question of an interview
func (i *Interviewer) Open(ctx context.Context, c Context) (Reply, error) {
	if i.Scripted() {
		text := fallbackOpening
		if c.JobTitle != "" {
			text = fmt.Sprintf("Starting %s interview for %s. %s", Level(c.Difficulty), c.JobTitle, fallbackOpening)
		}
		return Reply{Text: text}, nil
	}
	return i.generate(ctx, c, []llm.Message{{Role: llm.RoleUser, Content: openingCue}})
}

// Next answers the latest candidate message in history
func (i *Interviewer) Next(ctx context.Context, c Context, history []transcript.Entry) (Reply, error) {
	if i.Scripted() {
		answered := countRole(history, transcript.RoleCandidate)
		if c.QuestionLimit > 0 && answered >= c.QuestionLimit {
			return Reply{Text: fallbackClosing + " " + fallbackNoScore, Finished: true}, nil
		}
		return Reply{Text: fallbackFollowUp}, nil
	}
	return i.generate(ctx, c, toMessages(history))
}

// Close asks for a closing message when the candidate ends early.
// The reply is always final.
func (i *Interviewer) Close(ctx context.Context, c Context, history []transcript.Entry) (Reply, error) {
	if i.Scripted() {
		return Reply{Text: fallbackClosing + " " + fallbackNoScore, Finished: true}, nil
	}
	msgs := append(toMessages(history), llm.Message{Role: llm.RoleUser, Content: closingCue})
	reply, err := i.generate(ctx, c, mergeTurns(msgs))
	if err != nil {
		return Reply{}, err
	}
	reply.Finished = true
	return reply, nil
}

func (i *Interviewer) generate(ctx context.Context, c Context, msgs []llm.Message) (Reply, error) {
	if len(msgs) == 0 || msgs[0].Role != llm.RoleUser {
		msgs = append([]llm.Message{{Role: llm.RoleUser, Content: openingCue}}, msgs...)
	}

	resp, err := i.cfg.Provider.Generate(ctx, &llm.Request{
		Model:       i.cfg.Model,
		System:      SystemPrompt(c),
		Messages:    msgs,
		MaxTokens:   i.cfg.MaxTokens,
		Temperature: i.cfg.Temperature,
	})
	if err != nil {
		return Reply{}, fmt.Errorf("generate reply: %w", err)
	}

	text, finished := splitFinish(resp.Content)
	if text == "" {
		return Reply{}, ErrEmptyReply
	}
	i.logger.Debug("interviewer replied",
		"provider", i.cfg.Provider.Name(),
		"finished", finished,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens)
	return Reply{Text: text, Finished: finished, Usage: resp.Usage}, nil
}

func toMessages(history []transcript.Entry) []llm.Message {
	msgs := make([]llm.Message, 0, len(history))
	for _, e := range history {
		role := llm.RoleUser
		if e.Role == transcript.RoleInterviewer {
			role = llm.RoleAssistant
		}
		msgs = append(msgs, llm.Message{Role: role, Content: e.Text})
	}
	return mergeTurns(msgs)
}

// mergeTurns joins consecutive messages from the same role, since chat APIs
// require alternating turns.
func mergeTurns(msgs []llm.Message) []llm.Message {
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		if n := len(out); n > 0 && out[n-1].Role == m.Role {
			out[n-1].Content += "\n\n" + m.Content
			continue
		}
		out = append(out, m)
	}
	return out
}

func countRole(history []transcript.Entry, role transcript.Role) int {
	n := 0
	for _, e := range history {
		if e.Role == role {
			n++
		}
	}
	return n
}
