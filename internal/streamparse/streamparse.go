// Package streamparse normalizes newline-delimited JSON emitted by the two
// agent CLI output flavors this system understands ("stream-json" and
// "stepwise-json") into display text, tool-call events and subagent
// events.
package streamparse

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Flavor selects which JSON shape StreamParser expects.
type Flavor string

const (
	FlavorStreamJSON   Flavor = "stream-json"
	FlavorStepwiseJSON Flavor = "stepwise-json"
)

// ToolCallStart is emitted when an agent begins invoking a tool.
type ToolCallStart struct {
	ToolID   string
	ToolName string
	Input    json.RawMessage
}

// ToolCallComplete is emitted when a tool call's result arrives.
type ToolCallComplete struct {
	ToolID  string
	Output  string
	IsError bool
}

// SubagentEvent is emitted for nested subagent activity.
type SubagentEvent struct {
	Kind    string
	Payload json.RawMessage
}

// TokenUsage captures whatever token accounting a line carried, if any.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
	HasUsage     bool
}

// ParsedLine is everything a single input line could produce.
type ParsedLine struct {
	DisplayText string
	ToolStarts  []ToolCallStart
	ToolResults []ToolCallComplete
	Subagents   []SubagentEvent
	Usage       TokenUsage
}

// Parser parses lines of one flavor.
type Parser struct {
	Flavor Flavor
}

// New returns a Parser for the given flavor.
func New(flavor Flavor) *Parser {
	return &Parser{Flavor: flavor}
}

// ParseLine parses one line of (already ANSI-stripped) agent stdout. A line
// that isn't valid JSON is returned verbatim as DisplayText (graceful
// degradation); an unrecognized JSON shape returns an empty ParsedLine.
func (p *Parser) ParseLine(line string) ParsedLine {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return ParsedLine{}
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
		return ParsedLine{DisplayText: line}
	}

	switch p.Flavor {
	case FlavorStepwiseJSON:
		return parseStepwise(raw)
	default:
		return parseStreamJSON(raw)
	}
}

func parseStreamJSON(raw map[string]any) ParsedLine {
	typ, _ := raw["type"].(string)
	switch typ {
	case "system":
		subtype, _ := raw["subtype"].(string)
		model := ""
		if subtype == "init" {
			if m, ok := raw["model"].(string); ok {
				model = m
			}
		}
		text := "[System] " + subtype
		if model != "" {
			text += " model=" + model
		}
		return ParsedLine{DisplayText: text}

	case "assistant":
		return parseAssistantMessage(raw)

	case "user":
		return parseUserToolResult(raw)

	case "result":
		subtype, _ := raw["subtype"].(string)
		result, _ := raw["result"].(string)
		text := "[Complete] " + subtype
		pl := ParsedLine{DisplayText: text}
		pl.Usage = extractTopLevelUsage(raw)
		if strings.TrimSpace(result) != "" {
			pl.DisplayText = text + ": " + result
		}
		return pl

	default:
		return ParsedLine{Usage: extractTopLevelUsage(raw)}
	}
}

func parseAssistantMessage(raw map[string]any) ParsedLine {
	msg, _ := raw["message"].(map[string]any)
	if msg == nil {
		return ParsedLine{}
	}
	content, _ := msg["content"].([]any)

	var texts []string
	var starts []ToolCallStart
	var logLines []string

	for _, item := range content {
		part, ok := item.(map[string]any)
		if !ok {
			continue
		}
		switch part["type"] {
		case "text":
			if text, ok := part["text"].(string); ok && text != "" {
				texts = append(texts, text)
			}
		case "tool_use":
			id, _ := part["id"].(string)
			name, _ := part["name"].(string)
			inputBytes, _ := json.Marshal(part["input"])
			starts = append(starts, ToolCallStart{ToolID: id, ToolName: name, Input: inputBytes})
			logLines = append(logLines, fmt.Sprintf("[Using tool: %s]", name))
		}
	}

	display := strings.Join(append(texts, logLines...), "\n")
	return ParsedLine{DisplayText: display, ToolStarts: starts, Usage: extractUsageField(msg)}
}

func parseUserToolResult(raw map[string]any) ParsedLine {
	msg, _ := raw["message"].(map[string]any)
	if msg == nil {
		return ParsedLine{}
	}
	content, _ := msg["content"].([]any)

	var results []ToolCallComplete
	for _, item := range content {
		part, ok := item.(map[string]any)
		if !ok || part["type"] != "tool_result" {
			continue
		}
		id, _ := part["tool_use_id"].(string)
		isErr, _ := part["is_error"].(bool)
		output := stringifyContent(part["content"])
		results = append(results, ToolCallComplete{ToolID: id, Output: output, IsError: isErr})
	}
	return ParsedLine{ToolResults: results}
}

func stringifyContent(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

func extractTopLevelUsage(raw map[string]any) TokenUsage {
	if in, ok := numberField(raw, "inputTokens"); ok {
		out, _ := numberField(raw, "outputTokens")
		return TokenUsage{InputTokens: in, OutputTokens: out, HasUsage: true}
	}
	if usage, ok := raw["usage"].(map[string]any); ok {
		return extractUsageField(map[string]any{"usage": usage})
	}
	return TokenUsage{}
}

func extractUsageField(m map[string]any) TokenUsage {
	usage, ok := m["usage"].(map[string]any)
	if !ok {
		return TokenUsage{}
	}
	in, _ := numberField(usage, "input_tokens")
	out, _ := numberField(usage, "output_tokens")
	return TokenUsage{InputTokens: in, OutputTokens: out, HasUsage: true}
}

func numberField(m map[string]any, key string) (int, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	if !ok {
		return 0, false
	}
	return int(f), true
}

func parseStepwise(raw map[string]any) ParsedLine {
	if _, ok := raw["step_finish"]; ok {
		return ParsedLine{Usage: usageFromStepFinish(raw)}
	}
	if summary, ok := raw["summary"].(map[string]any); ok {
		return ParsedLine{Usage: extractUsageField(summary)}
	}

	role, _ := raw["role"].(string)
	content := stringifyStepwiseContent(raw["content"])

	switch role {
	case "assistant":
		return ParsedLine{DisplayText: content}
	case "user":
		return ParsedLine{DisplayText: "[User]: " + content}
	case "system":
		return ParsedLine{DisplayText: "[System]: " + content}
	case "tool":
		return ParsedLine{DisplayText: "[Tool result]: " + truncate(content, 500)}
	default:
		return ParsedLine{}
	}
}

func usageFromStepFinish(raw map[string]any) TokenUsage {
	sf, ok := raw["step_finish"].(map[string]any)
	if !ok {
		return TokenUsage{}
	}
	tokens, ok := sf["tokens"].(map[string]any)
	if !ok {
		return TokenUsage{}
	}
	in, _ := numberField(tokens, "input_tokens")
	out, _ := numberField(tokens, "output_tokens")
	return TokenUsage{InputTokens: in, OutputTokens: out, HasUsage: true}
}

func stringifyStepwiseContent(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		var parts []string
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				if text, ok := m["text"].(string); ok {
					parts = append(parts, text)
				}
			}
		}
		return strings.Join(parts, "\n")
	default:
		return ""
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// ExtractCleanText implements the clean-text extraction used by
// research-style sub-flows: search a full transcript (newline-delimited
// stream-json lines) in reverse for a type=result line with a non-empty
// result field; failing that, concatenate all assistant.content[].text
// parts in order; failing that, if the raw output doesn't start with
// '{' or '[', return it verbatim (already clean).
func ExtractCleanText(rawOutput string) string {
	lines := strings.Split(rawOutput, "\n")

	for i := len(lines) - 1; i >= 0; i-- {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "" {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
			continue
		}
		if obj["type"] == "result" {
			if result, ok := obj["result"].(string); ok && strings.TrimSpace(result) != "" {
				return result
			}
		}
	}

	var texts []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
			continue
		}
		if obj["type"] != "assistant" {
			continue
		}
		msg, _ := obj["message"].(map[string]any)
		content, _ := msg["content"].([]any)
		for _, item := range content {
			part, ok := item.(map[string]any)
			if !ok || part["type"] != "text" {
				continue
			}
			if text, ok := part["text"].(string); ok {
				texts = append(texts, text)
			}
		}
	}
	if len(texts) > 0 {
		return strings.Join(texts, "\n")
	}

	trimmed := strings.TrimSpace(rawOutput)
	if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
		return rawOutput
	}
	return ""
}
