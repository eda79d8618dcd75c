// Package messages defines the provider-neutral message model shared by the
// agent loop, the LLM transports, and the context-management services.
//
// A conversation is a sequence of Message values tagged by Role. Providers
// serialize this model to their wire formats and parse responses back into
// it; anything a provider emits that has no neutral representation is kept
// as an opaque raw item or an "other" content part so it can be replayed to
// the same provider verbatim.
package messages

import (
	"encoding/json"
	"strings"
)

// Role indicates the message author type.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleReasoning Role = "reasoning"
	RoleTool      Role = "tool"
)

// Message is the unified message format across providers.
//
// Which fields are meaningful depends on Role:
//   - system: Content (text parts only)
//   - user: Content (any mix of parts)
//   - assistant: Content (may be nil when ToolCalls is non-empty),
//     ToolCalls, Refusal
//   - reasoning: Content (may be nil), RawItem + RawItemProvider
//   - tool: ToolCallID, ToolName, Content, IsError, OutputRef, Trimmed
type Message struct {
	Role    Role          `json:"role"`
	Content []ContentPart `json:"content,omitempty"`

	// ToolCalls are the assistant's requests to execute tools.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// Refusal carries an assistant refusal string when the provider
	// reports one instead of (or alongside) regular content.
	Refusal string `json:"refusal,omitempty"`

	// RawItem preserves a provider-native reasoning payload (encrypted
	// thinking, web_search_call, ...) for faithful replay to the same
	// provider. RawItemProvider names the provider that produced it.
	RawItem         json.RawMessage `json:"raw_item,omitempty"`
	RawItemProvider string          `json:"raw_item_provider,omitempty"`

	// Tool-result fields.
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
	IsError    bool   `json:"is_error,omitempty"`

	// OutputRef is the tool-output cache reference id when the full
	// output was persisted externally. Trimmed marks a message whose
	// content was replaced by a trim placeholder.
	OutputRef string `json:"output_ref,omitempty"`
	Trimmed   bool   `json:"trimmed,omitempty"`
}

// System builds a system message from plain text.
func System(text string) Message {
	return Message{Role: RoleSystem, Content: []ContentPart{Text(text)}}
}

// User builds a user message from plain text.
func User(text string) Message {
	return Message{Role: RoleUser, Content: []ContentPart{Text(text)}}
}

// UserParts builds a user message from content parts.
func UserParts(parts []ContentPart) Message {
	return Message{Role: RoleUser, Content: parts}
}

// Assistant builds an assistant message from plain text.
func Assistant(text string) Message {
	return Message{Role: RoleAssistant, Content: []ContentPart{Text(text)}}
}

// ToolResult builds a tool message for a completed tool call.
func ToolResult(callID, toolName, content string, isError bool) Message {
	return Message{
		Role:       RoleTool,
		ToolCallID: callID,
		ToolName:   toolName,
		Content:    []ContentPart{Text(content)},
		IsError:    isError,
	}
}

// TextContent joins the text of all textual parts. Non-text parts
// contribute their degraded marker form so the result is always readable.
func (m Message) TextContent() string {
	if len(m.Content) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range m.Content {
		s := p.AsText()
		if s == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(s)
	}
	return b.String()
}

// SetText replaces the message content with a single text part.
func (m *Message) SetText(text string) {
	m.Content = []ContentPart{Text(text)}
}

// HasToolCalls reports whether the message carries any function tool calls.
func (m Message) HasToolCalls() bool { return len(m.ToolCalls) > 0 }
