package local

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/intervue/internal/feedback"
	"github.com/felixgeelhaar/intervue/internal/transcript"
)

func TestNewHistory_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "history", "nested")

	if _, err := NewHistory(dir); err != nil {
		t.Fatalf("NewHistory() error = %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("directory not created: %v", err)
	}
	if !info.IsDir() {
		t.Error("expected directory, got file")
	}
}

func TestHistory_SaveLoad(t *testing.T) {
	h, _ := NewHistory(t.TempDir())
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	r := &Record{
		SessionID:     "s-1",
		JobTitle:      "Backend Engineer",
		Difficulty:    "hard",
		QuestionLimit: 10,
		EndedAt:       at,
		Entries: []transcript.Entry{
			{Seq: 1, Role: transcript.RoleInterviewer, Text: "Why Go?", At: at},
			{Seq: 2, Role: transcript.RoleCandidate, Text: "Simplicity.", At: at},
		},
	}
	r.SetResult(feedback.Result{Score: feedback.Points(72), Explanation: "Solid."})

	if err := h.Save(r); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := h.Load("s-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.JobTitle != r.JobTitle || !got.Completed || got.ScoreText() != "72" {
		t.Errorf("Load() = %+v", got)
	}
	if len(got.Entries) != 2 || got.Entries[1].Text != "Simplicity." {
		t.Errorf("Entries = %+v", got.Entries)
	}
	if _, err := os.Stat(filepath.Join(h.basePath, "s-1.json.tmp")); !os.IsNotExist(err) {
		t.Error("temporary file left behind")
	}
}

func TestHistory_UnscoredRecord(t *testing.T) {
	r := &Record{SessionID: "s-2"}
	if r.ScoreText() != "N/A" {
		t.Errorf("ScoreText() = %q, want N/A", r.ScoreText())
	}

	r.SetResult(feedback.Result{Score: feedback.NA(), Explanation: "Ended early."})
	if !r.Completed || r.Score != nil {
		t.Errorf("SetResult(NA) = %+v", r)
	}
}

func TestHistory_NotFound(t *testing.T) {
	h, _ := NewHistory(t.TempDir())

	if _, err := h.Load("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() error = %v, want ErrNotFound", err)
	}
	if err := h.Delete("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete() error = %v, want ErrNotFound", err)
	}
}

func TestHistory_InvalidID(t *testing.T) {
	h, _ := NewHistory(t.TempDir())

	for _, id := range []string{"", "..", "a/b", `a\b`} {
		if err := h.Save(&Record{SessionID: id}); !errors.Is(err, ErrInvalidID) {
			t.Errorf("Save(%q) error = %v, want ErrInvalidID", id, err)
		}
		if _, err := h.Load(id); !errors.Is(err, ErrInvalidID) {
			t.Errorf("Load(%q) error = %v, want ErrInvalidID", id, err)
		}
	}
}

func TestHistory_ListNewestFirst(t *testing.T) {
	dir := t.TempDir()
	h, _ := NewHistory(dir)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i, id := range []string{"old", "new", "mid"} {
		offset := map[string]time.Duration{"old": 0, "mid": time.Hour, "new": 2 * time.Hour}[id]
		if err := h.Save(&Record{SessionID: id, EndedAt: base.Add(offset), QuestionLimit: i}); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	records, err := h.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("List() returned %d records, want 3", len(records))
	}
	for i, want := range []string{"new", "mid", "old"} {
		if records[i].SessionID != want {
			t.Errorf("records[%d] = %s, want %s", i, records[i].SessionID, want)
		}
	}

	if err := h.Delete("mid"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	records, _ = h.List()
	if len(records) != 2 {
		t.Errorf("List() after Delete returned %d records, want 2", len(records))
	}
}

func TestHistory_ConcurrentSave(t *testing.T) {
	h, _ := NewHistory(t.TempDir())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := h.Save(&Record{SessionID: "shared", QuestionLimit: 10}); err != nil {
				t.Errorf("Save() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if _, err := h.Load("shared"); err != nil {
		t.Errorf("Load() error = %v", err)
	}
}
