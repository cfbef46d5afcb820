package prd

import (
	"path/filepath"
	"testing"
)

func TestNextStoryRespectsDependenciesAndPriority(t *testing.T) {
	p := &PRD{Stories: []Story{
		{ID: "A", Priority: 2, Passes: false},
		{ID: "B", Priority: 1, Dependencies: []string{"A"}, Passes: false},
		{ID: "C", Priority: 3, Passes: false},
	}}

	// A and C are ready (no deps); C has higher priority number (lower
	// urgency) than A, so A wins despite B having the lowest Priority
	// value, because B isn't ready yet.
	next := p.NextStory()
	if next == nil || next.ID != "A" {
		t.Fatalf("expected A, got %+v", next)
	}

	p.MarkPasses("A")
	next = p.NextStory()
	if next == nil || next.ID != "B" {
		t.Fatalf("expected B once A passes, got %+v", next)
	}
}

func TestNextStoryNilIffAllPassOrBlocked(t *testing.T) {
	// all pass
	p := &PRD{Stories: []Story{{ID: "A", Passes: true}}}
	if p.NextStory() != nil {
		t.Error("expected nil when all pass")
	}
	if !p.AllPass() || p.Blocked() {
		t.Error("expected AllPass true, Blocked false")
	}

	// blocked: A depends on an id that never passes, nothing ready
	p2 := &PRD{Stories: []Story{
		{ID: "A", Passes: false, Dependencies: []string{"missing"}},
	}}
	if p2.NextStory() != nil {
		t.Error("expected nil when blocked")
	}
	if p2.AllPass() {
		t.Error("expected AllPass false")
	}
	if !p2.Blocked() {
		t.Error("expected Blocked true")
	}
}

func TestNextStoryTieBreakByInputOrder(t *testing.T) {
	p := &PRD{Stories: []Story{
		{ID: "first", Priority: 1},
		{ID: "second", Priority: 1},
	}}
	next := p.NextStory()
	if next == nil || next.ID != "first" {
		t.Errorf("expected first story to win tie, got %+v", next)
	}
}

func TestBlockedReasonsListsUnmetDeps(t *testing.T) {
	p := &PRD{Stories: []Story{
		{ID: "A", Passes: false},
		{ID: "B", Dependencies: []string{"A", "C"}},
	}}
	reasons := p.BlockedReasons()
	got := reasons["B"]
	if len(got) != 2 {
		t.Fatalf("expected 2 unmet deps, got %v", got)
	}
}

func TestValidateDetectsDuplicateIDs(t *testing.T) {
	p := &PRD{Stories: []Story{{ID: "A"}, {ID: "A"}}}
	if err := p.Validate(); err == nil {
		t.Error("expected error for duplicate ids")
	}
}

func TestValidateDetectsUnknownDependency(t *testing.T) {
	p := &PRD{Stories: []Story{{ID: "A", Dependencies: []string{"ghost"}}}}
	if err := p.Validate(); err == nil {
		t.Error("expected error for unknown dependency")
	}
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	root := filepath.Join(t.TempDir(), ".ralph-ui")
	store := NewStore(root, "my prd")

	in := &PRD{
		Title:  "Test",
		Branch: "main",
		Stories: []Story{
			{ID: "US-1", Title: "First", Priority: 1},
		},
	}
	if err := store.Save(in); err != nil {
		t.Fatalf("Save: %v", err)
	}

	out, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if out.Title != in.Title || len(out.Stories) != 1 || out.Stories[0].ID != "US-1" {
		t.Errorf("round trip mismatch: %+v", out)
	}
}

func TestStoreNameIsSanitized(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root, "my prd/with slash")
	if filepath.Base(store.Path()) == "my prd/with slash.json" {
		t.Error("expected sanitized path component")
	}
}

func TestCompletedCountAndProgressPercent(t *testing.T) {
	p := &PRD{Stories: []Story{{ID: "A", Passes: true}, {ID: "B", Passes: false}}}
	done, total := p.CompletedCount()
	if done != 1 || total != 2 {
		t.Errorf("got done=%d total=%d", done, total)
	}
	if p.ProgressPercent() != 50 {
		t.Errorf("got %d, want 50", p.ProgressPercent())
	}
}
