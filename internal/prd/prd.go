// Package prd implements the PRD/story state model and PrdStore: the
// single authoritative JSON document a RalphLoop execution drives toward
// completion.
//
// Story selection is dependency- and priority-aware: NextStory returns
// the highest-priority story whose dependencies have all passed, not
// simply the first incomplete one in file order.
package prd

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/hyperlab-be/ralph/internal/fsstore"
)

// Story is one unit of work in a PRD.
type Story struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	Acceptance   string   `json:"acceptance,omitempty"`
	Priority     int      `json:"priority"`
	Effort       string   `json:"effort,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
	Passes       bool     `json:"passes"`
}

// Metadata carries execution-config overrides and the last known worktree
// path, so a restarted loop can find in-flight work.
type Metadata struct {
	LastWorktreePath string         `json:"last_worktree_path,omitempty"`
	ExecutionConfig  map[string]any `json:"execution_config,omitempty"`
}

// PRD is the product-requirements document: a title, a base branch, an
// ordered list of stories, and optional metadata.
type PRD struct {
	Title    string   `json:"title"`
	Branch   string   `json:"branch"`
	Stories  []Story  `json:"stories"`
	Metadata Metadata `json:"metadata,omitempty"`
}

// byID indexes stories for dependency lookups.
func (p *PRD) byID() map[string]*Story {
	idx := make(map[string]*Story, len(p.Stories))
	for i := range p.Stories {
		idx[p.Stories[i].ID] = &p.Stories[i]
	}
	return idx
}

// IsReady reports whether a story's dependencies are all satisfied, i.e.
// every dependency id exists in the PRD and has passes=true.
func (p *PRD) IsReady(s *Story) bool {
	if s.Passes {
		return false
	}
	idx := p.byID()
	for _, dep := range s.Dependencies {
		d, ok := idx[dep]
		if !ok || !d.Passes {
			return false
		}
	}
	return true
}

// NextStory returns the highest-priority ready story (smaller Priority
// wins; ties broken by input order), or nil if none is ready.
func (p *PRD) NextStory() *Story {
	var best *Story
	for i := range p.Stories {
		s := &p.Stories[i]
		if !p.IsReady(s) {
			continue
		}
		if best == nil || s.Priority < best.Priority {
			best = s
		}
	}
	return best
}

// AllPass reports whether every story has passes=true. An empty PRD is
// vacuously all-passing.
func (p *PRD) AllPass() bool {
	for _, s := range p.Stories {
		if !s.Passes {
			return false
		}
	}
	return true
}

// Blocked reports whether the PRD is stuck: not all-passing, but no story
// is currently ready. NextStory() returning nil happens iff AllPass() or
// Blocked().
func (p *PRD) Blocked() bool {
	if p.AllPass() {
		return false
	}
	return p.NextStory() == nil
}

// BlockedReasons describes, for each incomplete non-ready story, which of
// its dependencies are unmet.
func (p *PRD) BlockedReasons() map[string][]string {
	idx := p.byID()
	reasons := make(map[string][]string)
	for _, s := range p.Stories {
		if s.Passes || p.IsReady(&s) {
			continue
		}
		var unmet []string
		for _, dep := range s.Dependencies {
			d, ok := idx[dep]
			if !ok || !d.Passes {
				unmet = append(unmet, dep)
			}
		}
		reasons[s.ID] = unmet
	}
	return reasons
}

// CompletedCount returns (passing, total).
func (p *PRD) CompletedCount() (int, int) {
	done := 0
	for _, s := range p.Stories {
		if s.Passes {
			done++
		}
	}
	return done, len(p.Stories)
}

// ProgressPercent returns completion percentage, 0 for an empty PRD.
func (p *PRD) ProgressPercent() int {
	done, total := p.CompletedCount()
	if total == 0 {
		return 0
	}
	return (done * 100) / total
}

// FindStory returns the story with the given id, or nil.
func (p *PRD) FindStory(id string) *Story {
	for i := range p.Stories {
		if p.Stories[i].ID == id {
			return &p.Stories[i]
		}
	}
	return nil
}

// MarkPasses sets passes=true on the named story. Returns false if no such
// story exists.
func (p *PRD) MarkPasses(id string) bool {
	s := p.FindStory(id)
	if s == nil {
		return false
	}
	s.Passes = true
	return true
}

// Validate checks that story ids are unique and every dependency id
// resolves to a known story.
func (p *PRD) Validate() error {
	seen := make(map[string]bool, len(p.Stories))
	for _, s := range p.Stories {
		if seen[s.ID] {
			return fmt.Errorf("prd: duplicate story id %q", s.ID)
		}
		seen[s.ID] = true
	}
	for _, s := range p.Stories {
		for _, dep := range s.Dependencies {
			if !seen[dep] {
				return fmt.Errorf("prd: story %q depends on unknown story %q", s.ID, dep)
			}
		}
	}
	return nil
}

// SortedByPriority returns a copy of the story list ordered by priority,
// ties broken by original index. Useful for presentation (BriefBuilder).
func (p *PRD) SortedByPriority() []Story {
	out := make([]Story, len(p.Stories))
	copy(out, p.Stories)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

// Store owns the on-disk PRD JSON exclusively; every other component must
// treat what it returns as a read-only snapshot.
type Store struct {
	root string // .ralph-ui root
	name string // prd_name
}

// NewStore returns a PrdStore rooted at ralphUIRoot (".ralph-ui") for the
// PRD named name.
func NewStore(ralphUIRoot, name string) *Store {
	return &Store{root: ralphUIRoot, name: fsstore.SanitizeComponent(name)}
}

// Path returns the path to {prd_name}.json.
func (s *Store) Path() string {
	return filepath.Join(s.root, "prds", s.name+".json")
}

// ProgressPath returns the path to {prd_name}-progress.txt.
func (s *Store) ProgressPath() string {
	return filepath.Join(s.root, "prds", s.name+"-progress.txt")
}

// PromptPath returns the path to {prd_name}-prompt.md.
func (s *Store) PromptPath() string {
	return filepath.Join(s.root, "prds", s.name+"-prompt.md")
}

// Load reads and validates the PRD. A missing file is reported as a plain
// os.IsNotExist-compatible error; callers must not silently proceed on a
// corrupt file.
func (s *Store) Load() (*PRD, error) {
	var p PRD
	if err := fsstore.ReadJSON(s.Path(), &p); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("prd: integrity check failed: %w", err)
	}
	return &p, nil
}

// Save atomically rewrites the whole PRD file.
func (s *Store) Save(p *PRD) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return fsstore.WriteJSON(s.Path(), p)
}

// Exists reports whether the PRD file has been created yet.
func (s *Store) Exists() bool {
	_, err := s.Load()
	return err == nil
}
