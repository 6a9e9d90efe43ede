// Package types provides core types used across the agentrelay module.
// This package has ZERO dependencies on other agentrelay packages to avoid circular imports.
package types

import (
	"encoding/json"
	"strings"
	"time"
)

// Role represents the role of a message participant.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// PartType identifies the kind of a content part.
type PartType string

const (
	PartText       PartType = "text"
	PartToolCall   PartType = "tool-call"
	PartToolResult PartType = "tool-result"
)

// ToolCall represents a tool invocation request from the LLM.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ContentPart is one typed element of a structured message.
type ContentPart struct {
	Type       PartType        `json:"type"`
	Text       string          `json:"text,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolName   string          `json:"tool_name,omitempty"`
	Input      json.RawMessage `json:"input,omitempty"`
	Output     string          `json:"output,omitempty"`
}

// Message represents a conversation message. Content holds plain text;
// Parts holds an ordered sequence of typed parts. Either may be empty.
type Message struct {
	Role      Role          `json:"role"`
	Content   string        `json:"content,omitempty"`
	Parts     []ContentPart `json:"parts,omitempty"`
	Timestamp time.Time     `json:"timestamp,omitempty"`
}

// NewMessage creates a new message with the given role and content.
func NewMessage(role Role, content string) Message {
	return Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) Message {
	return NewMessage(RoleSystem, content)
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) Message {
	return NewMessage(RoleUser, content)
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) Message {
	return NewMessage(RoleAssistant, content)
}

// NewToolCallMessage creates an assistant message carrying the text produced
// during a step followed by one tool-call part per call.
func NewToolCallMessage(text string, calls []ToolCall) Message {
	parts := make([]ContentPart, 0, len(calls)+1)
	if text != "" {
		parts = append(parts, TextPart(text))
	}
	for _, c := range calls {
		parts = append(parts, ContentPart{
			Type:       PartToolCall,
			ToolCallID: c.ID,
			ToolName:   c.Name,
			Input:      c.Arguments,
		})
	}
	return Message{Role: RoleAssistant, Parts: parts, Timestamp: time.Now()}
}

// NewToolResultMessage creates a tool message with a single tool-result part.
func NewToolResultMessage(toolCallID, toolName, output string) Message {
	return Message{
		Role: RoleTool,
		Parts: []ContentPart{{
			Type:       PartToolResult,
			ToolCallID: toolCallID,
			ToolName:   toolName,
			Output:     output,
		}},
		Timestamp: time.Now(),
	}
}

// TextPart returns a text content part.
func TextPart(text string) ContentPart {
	return ContentPart{Type: PartText, Text: text}
}

// Text returns the textual content of the message: Content followed by the
// text parts, in order.
func (m Message) Text() string {
	if len(m.Parts) == 0 {
		return m.Content
	}
	var b strings.Builder
	b.WriteString(m.Content)
	for _, p := range m.Parts {
		if p.Type == PartText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// ToolCalls returns the tool-call parts of the message as ToolCall values.
func (m Message) ToolCalls() []ToolCall {
	var calls []ToolCall
	for _, p := range m.Parts {
		if p.Type == PartToolCall {
			calls = append(calls, ToolCall{ID: p.ToolCallID, Name: p.ToolName, Arguments: p.Input})
		}
	}
	return calls
}

// ToolResults returns the tool-result parts of the message.
func (m Message) ToolResults() []ContentPart {
	var results []ContentPart
	for _, p := range m.Parts {
		if p.Type == PartToolResult {
			results = append(results, p)
		}
	}
	return results
}

// IsEmpty reports whether the message has neither non-blank text nor parts.
func (m Message) IsEmpty() bool {
	return strings.TrimSpace(m.Content) == "" && len(m.Parts) == 0
}
