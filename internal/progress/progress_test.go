package progress

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hyperlab-be/ralph/internal/clock"
	"github.com/hyperlab-be/ralph/internal/fsstore"
)

func TestInitializeWritesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prd-progress.txt")
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	tr := New(path, clk)

	if err := tr.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := tr.Initialize(); err != nil {
		t.Fatalf("second Initialize: %v", err)
	}

	data, err := fsstore.ReadFileRaw(path)
	if err != nil {
		t.Fatalf("ReadFileRaw: %v", err)
	}
	if strings.Count(string(data), "progress log started") != 1 {
		t.Errorf("expected header exactly once, got:\n%s", data)
	}
}

func TestStartEndIterationAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.txt")
	tr := New(path, clock.NewFake(time.Now()))

	if err := tr.StartIteration(1); err != nil {
		t.Fatalf("StartIteration: %v", err)
	}
	if err := tr.EndIteration(1, true); err != nil {
		t.Fatalf("EndIteration: %v", err)
	}

	data, _ := fsstore.ReadFileRaw(path)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %v", len(lines), lines)
	}
	if !strings.Contains(lines[0], "started") || !strings.Contains(lines[1], "outcome=success") {
		t.Errorf("unexpected lines: %v", lines)
	}
}

func TestAddNoteIncludesKind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.txt")
	tr := New(path, clock.NewFake(time.Now()))

	if err := tr.AddNote(3, NoteRateLimit, "HTTP 429 detected"); err != nil {
		t.Fatalf("AddNote: %v", err)
	}
	data, _ := fsstore.ReadFileRaw(path)
	if !strings.Contains(string(data), "(rate_limit)") || !strings.Contains(string(data), "HTTP 429 detected") {
		t.Errorf("got %q", data)
	}
}
