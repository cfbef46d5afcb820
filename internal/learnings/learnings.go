// Package learnings implements LearningsManager: a structured,
// append-only learning store keyed by type/iteration/story, fed by a
// hand-written state-machine scanner over agent stdout. A regex would
// struggle with nested/malformed `<learning>` fragments at linear time,
// so this uses a small explicit parser instead.
package learnings

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hyperlab-be/ralph/internal/clock"
	"github.com/hyperlab-be/ralph/internal/fsstore"
)

// Type enumerates the learning categories.
type Type string

const (
	TypeArchitecture Type = "architecture"
	TypeGotcha       Type = "gotcha"
	TypePattern      Type = "pattern"
	TypeTesting      Type = "testing"
	TypeTooling      Type = "tooling"
	TypeGeneral      Type = "general"
)

// Source identifies who produced the learning.
type Source string

const (
	SourceAgent Source = "agent"
	SourceHuman Source = "human"
)

var validTypes = map[Type]bool{
	TypeArchitecture: true, TypeGotcha: true, TypePattern: true,
	TypeTesting: true, TypeTooling: true, TypeGeneral: true,
}

// Entry is one append-only learning record.
type Entry struct {
	ID          string    `json:"id"`
	Iteration   int       `json:"iteration"`
	Type        Type      `json:"type"`
	Content     string    `json:"content"`
	StoryID     string    `json:"story_id,omitempty"`
	CodeExample string    `json:"code_example,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Source      Source    `json:"source"`
}

// file is the on-disk learnings.json document.
type file struct {
	Entries         []Entry   `json:"entries"`
	CreatedAt       time.Time `json:"created_at"`
	LastUpdated     time.Time `json:"last_updated"`
	TotalIterations int       `json:"total_iterations"`
}

// Manager owns learnings.json for one PRD.
type Manager struct {
	path  string
	clock clock.Clock
}

// New returns a Manager rooted at path (".ralph-ui/briefs/{prd_name}/learnings.json").
func New(path string, clk clock.Clock) *Manager {
	if clk == nil {
		clk = clock.System{}
	}
	return &Manager{path: path, clock: clk}
}

// Initialize creates the file if absent.
func (m *Manager) Initialize() error {
	var f file
	if err := fsstore.ReadJSON(m.path, &f); err == nil {
		return nil
	}
	now := m.clock.Now()
	f = file{CreatedAt: now, LastUpdated: now}
	return fsstore.WriteJSON(m.path, &f)
}

func (m *Manager) load() (*file, error) {
	var f file
	if err := fsstore.ReadJSON(m.path, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// AddLearning appends entry under the file lock, stamping an id and
// timestamp if not already set.
func (m *Manager) AddLearning(entry Entry) error {
	dir := dirOf(m.path)
	return fsstore.WithLock(dir, "learnings", func() error {
		f, err := m.load()
		if err != nil {
			return err
		}
		if entry.ID == "" {
			entry.ID = uuid.NewString()
		}
		if entry.Timestamp.IsZero() {
			entry.Timestamp = m.clock.Now()
		}
		if !validTypes[entry.Type] {
			entry.Type = TypeGeneral
		}
		f.Entries = append(f.Entries, entry)
		f.LastUpdated = m.clock.Now()
		return fsstore.WriteJSON(m.path, f)
	})
}

// GetByType returns all entries of the given type.
func (m *Manager) GetByType(t Type) ([]Entry, error) {
	f, err := m.load()
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, e := range f.Entries {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out, nil
}

// GetForStory returns all entries attached to storyID.
func (m *Manager) GetForStory(storyID string) ([]Entry, error) {
	f, err := m.load()
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, e := range f.Entries {
		if e.StoryID == storyID {
			out = append(out, e)
		}
	}
	return out, nil
}

// GetForIteration returns all entries recorded during iteration n.
func (m *Manager) GetForIteration(n int) ([]Entry, error) {
	f, err := m.load()
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, e := range f.Entries {
		if e.Iteration == n {
			out = append(out, e)
		}
	}
	return out, nil
}

// CountByType tallies entries per type.
func (m *Manager) CountByType() (map[Type]int, error) {
	f, err := m.load()
	if err != nil {
		return nil, err
	}
	counts := make(map[Type]int)
	for _, e := range f.Entries {
		counts[e.Type]++
	}
	return counts, nil
}

// HasLearnings reports whether any entry has been recorded.
func (m *Manager) HasLearnings() (bool, error) {
	f, err := m.load()
	if err != nil {
		return false, err
	}
	return len(f.Entries) > 0, nil
}

// Count returns the total number of entries.
func (m *Manager) Count() (int, error) {
	f, err := m.load()
	if err != nil {
		return 0, err
	}
	return len(f.Entries), nil
}

// briefGroupOrder is the presentation order: gotcha first because it's
// most actionable.
var briefGroupOrder = []Type{TypeGotcha, TypePattern, TypeArchitecture, TypeTesting, TypeTooling, TypeGeneral}

var groupTitle = map[Type]string{
	TypeGotcha:       "Gotcha",
	TypePattern:      "Pattern",
	TypeArchitecture: "Architecture",
	TypeTesting:      "Testing",
	TypeTooling:      "Tooling",
	TypeGeneral:      "General",
}

// FormatForBrief renders the Accumulated Learnings section: grouped in a
// fixed order, newest iteration first within a group, with code examples
// rendered as indented fenced blocks whose language is sniffed
// heuristically from the content.
func (m *Manager) FormatForBrief() (string, error) {
	f, err := m.load()
	if err != nil {
		return "", err
	}

	byType := make(map[Type][]Entry)
	for _, e := range f.Entries {
		byType[e.Type] = append(byType[e.Type], e)
	}

	var b strings.Builder
	any := false
	for _, t := range briefGroupOrder {
		entries := byType[t]
		if len(entries) == 0 {
			continue
		}
		any = true
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].Iteration > entries[j].Iteration })

		fmt.Fprintf(&b, "### %s\n", groupTitle[t])
		for _, e := range entries {
			fmt.Fprintf(&b, "- [Iter %d] %s\n", e.Iteration, e.Content)
			if e.CodeExample != "" {
				lang := sniffLanguage(e.Content + "\n" + e.CodeExample)
				fmt.Fprintf(&b, "  ```%s\n", lang)
				for _, line := range strings.Split(e.CodeExample, "\n") {
					fmt.Fprintf(&b, "  %s\n", line)
				}
				b.WriteString("  ```\n")
			}
		}
		b.WriteString("\n")
	}
	if !any {
		return "No learnings recorded yet.\n", nil
	}
	return b.String(), nil
}

// sniffLanguage applies a heuristic signature table per language.
func sniffLanguage(text string) string {
	switch {
	case strings.Contains(text, "fn ") || strings.Contains(text, "let mut ") || strings.Contains(text, "impl ") || strings.Contains(text, ".unwrap()"):
		return "rust"
	case strings.Contains(text, ": string") || strings.Contains(text, "interface ") || strings.Contains(text, "<T>"):
		return "typescript"
	case strings.Contains(text, "const ") && strings.Contains(text, "=> "):
		return "javascript"
	case strings.Contains(text, "def ") || strings.Contains(text, "self."):
		return "python"
	case looksLikeJSON(text):
		return "json"
	case strings.HasPrefix(strings.TrimSpace(text), "#!") || strings.Contains(text, "&&") || strings.Contains(text, "cargo ") || strings.Contains(text, "npm "):
		return "bash"
	default:
		return ""
	}
}

func looksLikeJSON(text string) bool {
	trimmed := strings.TrimSpace(text)
	return strings.HasPrefix(trimmed, "{") && strings.Contains(trimmed, "\":")
}

func dirOf(path string) string {
	idx := strings.LastIndexByte(path, '/')
	if idx < 0 {
		return "."
	}
	return path[:idx]
}

// --- Tag protocol parser ---

// ParsedLearning is one raw `<learning>` tag extracted from output, before
// it's converted into a stored Entry.
type ParsedLearning struct {
	Type    Type
	Content string
	Code    string
}

// Parse scans output for well-formed `<learning type="…">…</learning>`
// tags: find `<learning`, find the closing `>` of the opening tag,
// extract `type="…"`, find `</learning>`, and within that body extract
// an optional `<code>…</code>` block. A malformed tag (missing `>` or
// missing `</learning>`) stops the scan; learnings found before that
// point are still returned.
func Parse(output string) []ParsedLearning {
	var out []ParsedLearning
	pos := 0
	for {
		start := strings.Index(output[pos:], "<learning")
		if start < 0 {
			break
		}
		start += pos

		openEnd := strings.IndexByte(output[start:], '>')
		if openEnd < 0 {
			break
		}
		openEnd += start

		openTag := output[start : openEnd+1]
		learnType := extractTypeAttr(openTag)

		closeIdx := strings.Index(output[openEnd+1:], "</learning>")
		if closeIdx < 0 {
			break
		}
		closeIdx += openEnd + 1

		body := output[openEnd+1 : closeIdx]
		content, code := splitCodeBlock(body)

		if strings.TrimSpace(content) != "" || strings.TrimSpace(code) != "" {
			if !validTypes[learnType] {
				learnType = TypeGeneral
			}
			out = append(out, ParsedLearning{Type: learnType, Content: strings.TrimSpace(content), Code: code})
		}

		pos = closeIdx + len("</learning>")
	}
	return out
}

func extractTypeAttr(openTag string) Type {
	for _, quote := range []byte{'"', '\''} {
		marker := "type=" + string(quote)
		idx := strings.Index(openTag, marker)
		if idx < 0 {
			continue
		}
		rest := openTag[idx+len(marker):]
		end := strings.IndexByte(rest, quote)
		if end < 0 {
			continue
		}
		return Type(rest[:end])
	}
	return TypeGeneral
}

func splitCodeBlock(body string) (content, code string) {
	start := strings.Index(body, "<code>")
	end := strings.Index(body, "</code>")
	if start < 0 || end < 0 || end < start {
		return body, ""
	}
	before := body[:start]
	code = body[start+len("<code>") : end]
	after := body[end+len("</code>"):]
	content = strings.TrimSpace(before) + " " + strings.TrimSpace(after)
	return strings.TrimSpace(content), strings.TrimSpace(code)
}

// ExtractAndSave parses output for the iteration/story in progress and
// persists each well-formed learning, returning the count added.
func (m *Manager) ExtractAndSave(output string, iteration int, storyID string) (int, error) {
	parsed := Parse(output)
	added := 0
	for _, p := range parsed {
		entry := Entry{
			Iteration: iteration,
			Type:      p.Type,
			Content:   p.Content,
			StoryID:   storyID,
			Source:    SourceAgent,
		}
		if p.Code != "" {
			entry.CodeExample = p.Code
		}
		if err := m.AddLearning(entry); err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}
