// Package ansi strips terminal escape sequences from agent output before it
// is handed to line-oriented parsers.
package ansi

import "regexp"

// csiPattern matches ANSI CSI sequences (SGR color codes, cursor movement,
// erase-in-line/display, etc: ESC [ ... <final byte in @-~>).
var csiPattern = regexp.MustCompile("\x1b\\[[0-9;?]*[a-zA-Z@]")

// oscPattern matches OSC sequences (e.g. window/tab title, background
// color), terminated by BEL or ST.
var oscPattern = regexp.MustCompile("\x1b\\][^\x07\x1b]*(\x07|\x1b\\\\)")

// otherEscapes matches remaining two-character escape sequences such as
// ESC-M (reverse index) that aren't CSI or OSC.
var otherEscapes = regexp.MustCompile("\x1b[()#][0-9A-Za-z]|\x1b[=>MD78c]")

// Strip removes ANSI SGR, cursor-movement, and OSC escape sequences from
// text, leaving the printable content behind. It is a pure function.
func Strip(text string) string {
	text = oscPattern.ReplaceAllString(text, "")
	text = csiPattern.ReplaceAllString(text, "")
	text = otherEscapes.ReplaceAllString(text, "")
	return text
}
