// Package completion implements the completion-promise substring check.
// The loop runs it on each agent transcript and, on a match, re-reads
// the PRD before declaring completion, so a false positive mid-transcript
// is harmless — the PRD all-pass cross-check is the real authority.
package completion

import "strings"

// DefaultPromise is used when a RalphLoopConfig doesn't override it.
const DefaultPromise = "<promise>COMPLETE</promise>"

// Detector checks agent output for a configured promise literal.
type Detector struct {
	promise string
}

// New returns a Detector for the given promise literal. An empty promise
// falls back to DefaultPromise.
func New(promise string) *Detector {
	if promise == "" {
		promise = DefaultPromise
	}
	return &Detector{promise: promise}
}

// Check reports whether output contains the promise literal anywhere,
// case-sensitive substring match.
func (d *Detector) Check(output string) bool {
	return strings.Contains(output, d.promise)
}
