// Package assignments implements AssignmentsManager: which agent owns
// which story and which files, with heartbeats and a resume checkpoint.
// Invariants (at most one active assignment per story; no file claimed
// by two active assignments) are re-checked on every write.
package assignments

import (
	"fmt"
	"strings"
	"time"

	"github.com/hyperlab-be/ralph/internal/clock"
	"github.com/hyperlab-be/ralph/internal/fsstore"
)

// Status is an assignment's lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusReleased  Status = "released"
	StatusFailed    Status = "failed"
)

// Assignment is the active (or historical) claim an agent has on a story.
type Assignment struct {
	AgentID         string    `json:"agent_id"`
	AgentType       string    `json:"agent_type"`
	StoryID         string    `json:"story_id"`
	Status          Status    `json:"status"`
	StartedAt       time.Time `json:"started_at"`
	LastHeartbeatAt time.Time `json:"last_heartbeat_at"`
	FilesInUse      []string  `json:"files_in_use,omitempty"`
	Iteration       int       `json:"iteration"`
}

// FileInUse names a file claimed by another agent's active assignment.
type FileInUse struct {
	Path    string
	StoryID string
	AgentID string
}

type file struct {
	ExecutionID      string       `json:"execution_id"`
	Assignments      []Assignment `json:"assignments"`
	CurrentIteration int          `json:"current_iteration"`
}

// ErrStoryAlreadyOwned is returned when a story already has an active
// assignment held by a different agent.
var ErrStoryAlreadyOwned = fmt.Errorf("assignments: story already actively owned")

// ErrFileClaimed is returned when a file is claimed by another agent's
// active assignment.
var ErrFileClaimed = fmt.Errorf("assignments: file claimed by another active assignment")

// Manager owns assignments.json for one PRD.
type Manager struct {
	path  string
	clock clock.Clock
}

// New returns a Manager rooted at path.
func New(path string, clk clock.Clock) *Manager {
	if clk == nil {
		clk = clock.System{}
	}
	return &Manager{path: path, clock: clk}
}

// Initialize creates the file (stamped with executionID) if absent.
func (m *Manager) Initialize(executionID string) error {
	var f file
	if err := fsstore.ReadJSON(m.path, &f); err == nil {
		return nil
	}
	f = file{ExecutionID: executionID}
	return fsstore.WriteJSON(m.path, &f)
}

func (m *Manager) load() (*file, error) {
	var f file
	if err := fsstore.ReadJSON(m.path, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (m *Manager) withLock(fn func(f *file) error) error {
	dir := dirOf(m.path)
	return fsstore.WithLock(dir, "assignments", func() error {
		f, err := m.load()
		if err != nil {
			return err
		}
		if err := fn(f); err != nil {
			return err
		}
		return fsstore.WriteJSON(m.path, f)
	})
}

func activeOwnerOfStory(f *file, storyID string) *Assignment {
	for i := range f.Assignments {
		a := &f.Assignments[i]
		if a.StoryID == storyID && a.Status == StatusActive {
			return a
		}
	}
	return nil
}

func activeOwnerOfFile(f *file, path string) *Assignment {
	for i := range f.Assignments {
		a := &f.Assignments[i]
		if a.Status != StatusActive {
			continue
		}
		for _, fp := range a.FilesInUse {
			if fp == path {
				return a
			}
		}
	}
	return nil
}

// AddAssignment records a new active assignment, rejecting it if the
// story already has a different active owner or any of its files is
// claimed by another agent's active assignment.
func (m *Manager) AddAssignment(a Assignment) error {
	return m.withLock(func(f *file) error {
		if owner := activeOwnerOfStory(f, a.StoryID); owner != nil && owner.AgentID != a.AgentID {
			return ErrStoryAlreadyOwned
		}
		for _, path := range a.FilesInUse {
			if owner := activeOwnerOfFile(f, path); owner != nil && owner.AgentID != a.AgentID {
				return fmt.Errorf("%w: %s (held by %s)", ErrFileClaimed, path, owner.AgentID)
			}
		}
		if a.Status == "" {
			a.Status = StatusActive
		}
		if a.StartedAt.IsZero() {
			a.StartedAt = m.clock.Now()
		}
		a.LastHeartbeatAt = m.clock.Now()
		f.Assignments = append(f.Assignments, a)
		return nil
	})
}

// AssignStoryWithFiles atomically creates an assignment and claims files,
// rejecting the whole operation if any file is currently claimed by a
// different agent's active assignment, or the story is owned by another
// agent.
func (m *Manager) AssignStoryWithFiles(agentID, agentType, storyID string, files []string, iteration int) error {
	return m.withLock(func(f *file) error {
		if owner := activeOwnerOfStory(f, storyID); owner != nil && owner.AgentID != agentID {
			return ErrStoryAlreadyOwned
		}
		for _, path := range files {
			if owner := activeOwnerOfFile(f, path); owner != nil && owner.AgentID != agentID {
				return fmt.Errorf("%w: %s (held by %s)", ErrFileClaimed, path, owner.AgentID)
			}
		}
		now := m.clock.Now()
		f.Assignments = append(f.Assignments, Assignment{
			AgentID: agentID, AgentType: agentType, StoryID: storyID,
			Status: StatusActive, StartedAt: now, LastHeartbeatAt: now,
			FilesInUse: files, Iteration: iteration,
		})
		return nil
	})
}

// GetActiveAssignments returns all currently-active assignments.
func (m *Manager) GetActiveAssignments() ([]Assignment, error) {
	f, err := m.load()
	if err != nil {
		return nil, err
	}
	var out []Assignment
	for _, a := range f.Assignments {
		if a.Status == StatusActive {
			out = append(out, a)
		}
	}
	return out, nil
}

// GetFilesInUseByOthers lists files claimed by active assignments not
// owned by currentAgentID.
func (m *Manager) GetFilesInUseByOthers(currentAgentID string) ([]FileInUse, error) {
	f, err := m.load()
	if err != nil {
		return nil, err
	}
	var out []FileInUse
	for _, a := range f.Assignments {
		if a.Status != StatusActive || a.AgentID == currentAgentID {
			continue
		}
		for _, path := range a.FilesInUse {
			out = append(out, FileInUse{Path: path, StoryID: a.StoryID, AgentID: a.AgentID})
		}
	}
	return out, nil
}

// Release marks agentID's active assignment as released (work abandoned,
// not completed).
func (m *Manager) Release(agentID string) error {
	return m.withLock(func(f *file) error {
		return setStatus(f, agentID, StatusReleased)
	})
}

// Complete marks agentID's active assignment as completed.
func (m *Manager) Complete(agentID string) error {
	return m.withLock(func(f *file) error {
		return setStatus(f, agentID, StatusCompleted)
	})
}

func setStatus(f *file, agentID string, status Status) error {
	for i := range f.Assignments {
		a := &f.Assignments[i]
		if a.AgentID == agentID && a.Status == StatusActive {
			a.Status = status
			return nil
		}
	}
	return nil
}

// GetCompletedStoryIDs returns the distinct story ids with at least one
// completed assignment.
func (m *Manager) GetCompletedStoryIDs() ([]string, error) {
	f, err := m.load()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []string
	for _, a := range f.Assignments {
		if a.Status == StatusCompleted && !seen[a.StoryID] {
			seen[a.StoryID] = true
			out = append(out, a.StoryID)
		}
	}
	return out, nil
}

// SetIteration persists the current iteration number as the resume
// checkpoint.
func (m *Manager) SetIteration(n int) error {
	return m.withLock(func(f *file) error {
		f.CurrentIteration = n
		return nil
	})
}

// GetCurrentIteration returns the last saved iteration checkpoint.
func (m *Manager) GetCurrentIteration() (int, error) {
	f, err := m.load()
	if err != nil {
		return 0, err
	}
	return f.CurrentIteration, nil
}

// CanResume reports whether assignments.json exists with a recorded
// iteration greater than zero.
func (m *Manager) CanResume() bool {
	f, err := m.load()
	if err != nil {
		return false
	}
	return f.CurrentIteration > 0
}

// Heartbeat updates agentID's active assignment's last-heartbeat time.
func (m *Manager) Heartbeat(agentID string, at time.Time) error {
	return m.withLock(func(f *file) error {
		for i := range f.Assignments {
			a := &f.Assignments[i]
			if a.AgentID == agentID && a.Status == StatusActive {
				a.LastHeartbeatAt = at
				return nil
			}
		}
		return nil
	})
}

// ReapStale releases every active assignment whose heartbeat age exceeds
// threshold, freeing its files. Returns the agent ids reaped.
func (m *Manager) ReapStale(threshold time.Duration) ([]string, error) {
	var reaped []string
	err := m.withLock(func(f *file) error {
		now := m.clock.Now()
		for i := range f.Assignments {
			a := &f.Assignments[i]
			if a.Status != StatusActive {
				continue
			}
			if now.Sub(a.LastHeartbeatAt) > threshold {
				a.Status = StatusReleased
				reaped = append(reaped, a.AgentID)
			}
		}
		return nil
	})
	return reaped, err
}

func dirOf(path string) string {
	idx := strings.LastIndexByte(path, '/')
	if idx < 0 {
		return "."
	}
	return path[:idx]
}
