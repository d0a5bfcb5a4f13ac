// Package local keeps the client's archive of finished interviews as JSON
// files, one per session.
package local

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/intervue/internal/feedback"
	"github.com/felixgeelhaar/intervue/internal/transcript"
)

// Record is one archived interview
type Record struct {
	SessionID     string             `json:"session_id"`
	JobTitle      string             `json:"job_title"`
	Difficulty    string             `json:"difficulty"`
	QuestionLimit int                `json:"question_limit"`
	Completed     bool               `json:"completed"`
	Score         *int               `json:"score,omitempty"`
	Explanation   string             `json:"explanation,omitempty"`
	EndedAt       time.Time          `json:"ended_at"`
	Entries       []transcript.Entry `json:"entries"`
}

// SetResult copies a feedback result into the record
func (r *Record) SetResult(res feedback.Result) {
	r.Completed = true
	r.Explanation = res.Explanation
	if v, ok := res.Score.Value(); ok {
		r.Score = &v
	}
}

// ScoreText renders the score, or N/A when there is none
func (r *Record) ScoreText() string {
	if r.Score == nil {
		return feedback.NA().String()
	}
	return feedback.Points(*r.Score).String()
}

// History is a thread-safe directory of Records
type History struct {
	basePath string
	mu       sync.RWMutex
}

// NewHistory creates the archive directory if needed
func NewHistory(basePath string) (*History, error) {
	if err := os.MkdirAll(basePath, 0750); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}
	return &History{basePath: basePath}, nil
}

func (h *History) path(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return filepath.Join(h.basePath, id+".json"), nil
}

// Save writes r, replacing any earlier record for the same session
func (h *History) Save(r *Record) error {
	path, err := h.path(r.SessionID)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("store record: %w", err)
	}
	return nil
}

// Load reads the record for a session
func (h *History) Load(id string) (*Record, error) {
	path, err := h.path(id)
	if err != nil {
		return nil, err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	return readRecord(path)
}

func readRecord(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read record: %w", err)
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", filepath.Base(path), err)
	}
	return &r, nil
}

// Delete removes the record for a session
func (h *History) Delete(id string) error {
	path, err := h.path(id)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("remove record: %w", err)
	}
	return nil
}

// List returns every record, most recent first. Unreadable files are
// skipped.
func (h *History) List() ([]*Record, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	entries, err := os.ReadDir(h.basePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read history directory: %w", err)
	}

	var records []*Record
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		r, err := readRecord(filepath.Join(h.basePath, entry.Name()))
		if err != nil {
			continue
		}
		records = append(records, r)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].EndedAt.After(records[j].EndedAt)
	})
	return records, nil
}
