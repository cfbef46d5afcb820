// Package progress implements the append-only, human-readable iteration
// log. It is never authoritative for state — PrdStore and
// AssignmentsManager are — it exists purely for offline auditing of a
// run.
package progress

import (
	"fmt"
	"path/filepath"

	"github.com/hyperlab-be/ralph/internal/clock"
	"github.com/hyperlab-be/ralph/internal/fsstore"
)

// NoteKind distinguishes why a progress note was written, so a reader
// scanning the log can tell a retry note from a rate-limit note from a
// plain status note without re-parsing its text.
type NoteKind string

const (
	NoteGeneral   NoteKind = "note"
	NoteRetry     NoteKind = "retry"
	NoteRateLimit NoteKind = "rate_limit"
	NoteSkip      NoteKind = "skip"
)

// Tracker appends lines to {prd_name}-progress.txt.
type Tracker struct {
	path  string
	clock clock.Clock
}

// New returns a Tracker writing to path, using clk for timestamps.
func New(path string, clk clock.Clock) *Tracker {
	if clk == nil {
		clk = clock.System{}
	}
	return &Tracker{path: path, clock: clk}
}

// Initialize ensures the progress file exists, writing a header line if
// it's new.
func (t *Tracker) Initialize() error {
	if err := fsstore.EnsureDir(filepath.Dir(t.path)); err != nil {
		return err
	}
	if _, err := fsstore.ReadFileRaw(t.path); err == nil {
		return nil
	}
	return t.appendLine(fmt.Sprintf("=== progress log started %s ===", t.clock.Now().Format(timeLayout)))
}

// StartIteration records the start of an iteration.
func (t *Tracker) StartIteration(iteration int) error {
	return t.appendLine(fmt.Sprintf("[iter %d] started %s", iteration, t.clock.Now().Format(timeLayout)))
}

// EndIteration records the end of an iteration.
func (t *Tracker) EndIteration(iteration int, success bool) error {
	outcome := "failed"
	if success {
		outcome = "success"
	}
	return t.appendLine(fmt.Sprintf("[iter %d] ended %s outcome=%s", iteration, t.clock.Now().Format(timeLayout), outcome))
}

// AddNote appends an arbitrary annotated note for an iteration.
func (t *Tracker) AddNote(iteration int, kind NoteKind, note string) error {
	return t.appendLine(fmt.Sprintf("[iter %d] (%s) %s", iteration, kind, note))
}

func (t *Tracker) appendLine(line string) error {
	return fsstore.AppendText(t.path, []byte(line+"\n"))
}

const timeLayout = "2006-01-02T15:04:05Z07:00"
