// Package brief implements BriefBuilder: assembly of the per-iteration
// handoff document from a PRD snapshot plus assignments and learnings,
// persisted as the latest BRIEF.md and a historical BRIEF-{N}.md per
// iteration.
package brief

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/hyperlab-be/ralph/internal/assignments"
	"github.com/hyperlab-be/ralph/internal/clock"
	"github.com/hyperlab-be/ralph/internal/fsstore"
	"github.com/hyperlab-be/ralph/internal/learnings"
	"github.com/hyperlab-be/ralph/internal/prd"
)

// LearningsFormatter is the subset of *learnings.Manager BriefBuilder
// needs, so it can be stubbed in tests.
type LearningsFormatter interface {
	FormatForBrief() (string, error)
}

// Builder renders and persists brief documents for one PRD.
type Builder struct {
	dir         string // .ralph-ui/briefs/{prd_name}
	clock       clock.Clock
	assignments *assignments.Manager
	learnings   LearningsFormatter
}

// New returns a Builder writing under dir. assignmentsMgr and
// learningsMgr may be nil (their sections are then omitted/empty).
func New(dir string, clk clock.Clock, assignmentsMgr *assignments.Manager, learningsMgr LearningsFormatter) *Builder {
	if clk == nil {
		clk = clock.System{}
	}
	return &Builder{dir: dir, clock: clk, assignments: assignmentsMgr, learnings: learningsMgr}
}

// Generate renders the brief body for p, as of the given current agent id
// and iteration. It is a pure function of its inputs modulo the header
// timestamp.
func (b *Builder) Generate(p *prd.PRD, currentAgentID string, iteration int) (string, error) {
	var out strings.Builder

	fmt.Fprintf(&out, "# %s\n\n", valueOr(p.Title, "Untitled PRD"))
	fmt.Fprintf(&out, "Base branch: %s\n", p.Branch)
	fmt.Fprintf(&out, "Iteration: %d\n", iteration)
	fmt.Fprintf(&out, "Generated: %s\n\n", b.clock.Now().UTC().Format(time.RFC3339))

	done, total := p.CompletedCount()
	fmt.Fprintf(&out, "## Progress Summary\n\n%d/%d stories complete (%d%%)\n\n", done, total, p.ProgressPercent())

	out.WriteString("## Completed Stories (SKIP THESE)\n\n")
	for _, s := range p.Stories {
		if s.Passes {
			fmt.Fprintf(&out, "- [x] %s: %s\n", s.ID, s.Title)
		}
	}
	out.WriteString("\n")

	var active []assignments.Assignment
	if b.assignments != nil {
		var err error
		active, err = b.assignments.GetActiveAssignments()
		if err != nil {
			return "", fmt.Errorf("brief: load assignments: %w", err)
		}
	}

	byStory := SortAssignmentsByStory(active)

	out.WriteString("## In-Progress Work (Other Agents)\n\n")
	inProgressStoryIDs := make(map[string]bool)
	for _, a := range byStory {
		if a.AgentID == currentAgentID {
			continue
		}
		inProgressStoryIDs[a.StoryID] = true
		title := a.StoryID
		if s := p.FindStory(a.StoryID); s != nil {
			title = s.Title
		}
		fmt.Fprintf(&out, "- %s: %s (agent: %s)\n", a.StoryID, title, a.AgentType)
	}
	out.WriteString("\n")

	out.WriteString("## Files to Avoid\n\n")
	for _, a := range byStory {
		if a.AgentID == currentAgentID || len(a.FilesInUse) == 0 {
			continue
		}
		fmt.Fprintf(&out, "### %s (%s)\n", a.StoryID, a.AgentID)
		for _, f := range a.FilesInUse {
			fmt.Fprintf(&out, "- %s\n", f)
		}
	}
	out.WriteString("\n")

	out.WriteString("## Current Story\n\n")
	current := currentStory(p, active, currentAgentID)
	switch {
	case current != nil:
		writeStoryBlock(&out, p, current)
	case p.AllPass():
		out.WriteString("ALL COMPLETE\n")
	default:
		out.WriteString("BLOCKED\n\n")
		blocked := p.BlockedReasons()
		for _, s := range p.Stories {
			if reasons, ok := blocked[s.ID]; ok {
				fmt.Fprintf(&out, "- %s: waiting on %s\n", s.ID, strings.Join(reasons, ", "))
			}
		}
	}
	out.WriteString("\n")

	out.WriteString("## Pending Stories\n\n")
	for _, s := range p.SortedByPriority() {
		if s.Passes || inProgressStoryIDs[s.ID] || (current != nil && s.ID == current.ID) {
			continue
		}
		if p.IsReady(&s) {
			fmt.Fprintf(&out, "- %s: %s\n", s.ID, s.Title)
		} else {
			fmt.Fprintf(&out, "- %s: %s (blocked by dependencies)\n", s.ID, s.Title)
		}
	}
	out.WriteString("\n")

	out.WriteString("## Accumulated Learnings\n\n")
	if b.learnings != nil {
		text, err := b.learnings.FormatForBrief()
		if err != nil {
			return "", fmt.Errorf("brief: format learnings: %w", err)
		}
		out.WriteString(text)
	} else {
		out.WriteString("No learnings recorded yet.\n")
	}
	out.WriteString("\n")

	out.WriteString(reportingProtocolBlock)
	out.WriteString("\n")
	out.WriteString(instructionsBlock)

	return out.String(), nil
}

func currentStory(p *prd.PRD, active []assignments.Assignment, currentAgentID string) *prd.Story {
	for _, a := range active {
		if a.AgentID == currentAgentID {
			if s := p.FindStory(a.StoryID); s != nil {
				return s
			}
		}
	}
	return p.NextStory()
}

func writeStoryBlock(out *strings.Builder, p *prd.PRD, s *prd.Story) {
	fmt.Fprintf(out, "**%s: %s**\n\n", s.ID, s.Title)
	if s.Description != "" {
		fmt.Fprintf(out, "%s\n\n", s.Description)
	}
	out.WriteString("Acceptance Criteria:\n")
	for _, line := range strings.Split(s.Acceptance, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = strings.TrimPrefix(line, "- ")
		line = strings.TrimPrefix(line, "* ")
		fmt.Fprintf(out, "- %s\n", line)
	}
	if len(s.Dependencies) > 0 {
		out.WriteString("\nDependencies already completed:\n")
		for _, dep := range s.Dependencies {
			if d := p.FindStory(dep); d != nil && d.Passes {
				fmt.Fprintf(out, "- %s: %s\n", d.ID, d.Title)
			}
		}
	}
	fmt.Fprintf(out, "\nPriority: %d", s.Priority)
	if s.Effort != "" {
		fmt.Fprintf(out, " | Effort: %s", s.Effort)
	}
	out.WriteString("\n")
}

const reportingProtocolBlock = `## Reporting Learnings

Embed structured learnings anywhere in your output using:

` + "```" + `
<learning type="pattern">description text<code>optional code</code></learning>
` + "```" + `

Valid types: architecture, gotcha, pattern, testing, tooling, general.
`

const instructionsBlock = `## Instructions

1. Focus only on the Current Story above.
2. Skip any story already marked complete.
3. Do not touch files listed under In-Progress Work from other agents.
4. Do not modify files listed under Files to Avoid.
5. Meet every item in the Acceptance Criteria.
6. Report learnings using the tag protocol above as you discover them.
7. On completion, update the PRD JSON, setting passes: true on the story you finished.
8. Commit your work with a message referencing the story id.
`

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// Persist writes the generated body to BRIEF.md (always) and, when
// iteration > 0, also to BRIEF-{iteration}.md.
func (b *Builder) Persist(body string, iteration int) error {
	if err := fsstore.AtomicWrite(filepath.Join(b.dir, "BRIEF.md"), []byte(body)); err != nil {
		return err
	}
	if iteration > 0 {
		name := fmt.Sprintf("BRIEF-%d.md", iteration)
		if err := fsstore.AtomicWrite(filepath.Join(b.dir, name), []byte(body)); err != nil {
			return err
		}
	}
	return nil
}

var completedLinePattern = regexp.MustCompile(`^- \[x\] ([^:]+):`)

// ParseCompletedStories extracts the story ids listed under "Completed
// Stories" in a rendered brief.
func ParseCompletedStories(briefText string) []string {
	var out []string
	for _, line := range strings.Split(briefText, "\n") {
		if m := completedLinePattern.FindStringSubmatch(line); m != nil {
			out = append(out, strings.TrimSpace(m[1]))
		}
	}
	return out
}

var currentStoryIDPattern = regexp.MustCompile(`^\*\*([^:]+):`)

// ParseNextStory extracts the story id from the "Current Story" section
// of a rendered brief, if one is present.
func ParseNextStory(briefText string) (string, bool) {
	lines := strings.Split(briefText, "\n")
	inSection := false
	for _, line := range lines {
		if strings.HasPrefix(line, "## Current Story") {
			inSection = true
			continue
		}
		if inSection && strings.HasPrefix(line, "## ") {
			break
		}
		if inSection {
			if m := currentStoryIDPattern.FindStringSubmatch(line); m != nil {
				return strings.TrimSpace(m[1]), true
			}
		}
	}
	return "", false
}

// SortAssignmentsByStory is a small presentation helper used by callers
// that want a stable display order for "Files to Avoid".
func SortAssignmentsByStory(in []assignments.Assignment) []assignments.Assignment {
	out := make([]assignments.Assignment, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool { return out[i].StoryID < out[j].StoryID })
	return out
}
