// Package prompt implements PromptBuilder: the text injected into every
// freshly spawned agent is the brief plus a template-rendered
// instruction block plus a reminder of the completion promise literal.
package prompt

import (
	"fmt"
	"strings"
)

// DefaultTemplate is used when a RalphLoopConfig doesn't override it.
const DefaultTemplate = `You are working autonomously on this codebase. Read the brief below
carefully, do the work it describes, and follow its reporting protocol.`

// Builder composes brief + template + completion-promise reminder.
type Builder struct {
	Template string
	Promise  string
}

// New returns a Builder. Empty template/promise fall back to defaults.
func New(template, promise string) *Builder {
	if template == "" {
		template = DefaultTemplate
	}
	if promise == "" {
		promise = "<promise>COMPLETE</promise>"
	}
	return &Builder{Template: template, Promise: promise}
}

// BuildIterationPrompt concatenates the brief text, the instruction
// template, and a completion-promise reminder into the final prompt sent
// to the spawned agent for this iteration.
func (b *Builder) BuildIterationPrompt(briefText string, iteration int) string {
	var out strings.Builder
	out.WriteString(briefText)
	out.WriteString("\n\n---\n\n")
	out.WriteString(b.Template)
	out.WriteString("\n\n")
	fmt.Fprintf(&out, "Iteration: %d\n\n", iteration)
	fmt.Fprintf(&out, "Emit %s only when every story in the PRD has passes:true.\n", b.Promise)
	return out.String()
}
