package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Role constants for message roles.
const (
	RoleSystem = "system"
	RoleHuman  = "human"
	RoleAI     = "ai"
	RoleTool   = "tool"
)

// Content is the body of a message: either a literal text or a sequence of
// text fragments. The zero value is an empty Text.
type Content struct {
	text      string
	fragments []string
	multi     bool
}

// Text returns a literal text content.
func Text(s string) Content { return Content{text: s} }

// Fragments returns a structured content made of text fragments.
func Fragments(parts ...string) Content {
	return Content{fragments: append([]string(nil), parts...), multi: true}
}

// Literal returns the text and true when c is the Text variant.
func (c Content) Literal() (string, bool) {
	if c.multi {
		return "", false
	}
	return c.text, true
}

// Parts returns the fragments of a structured content, nil for Text.
func (c Content) Parts() []string {
	if !c.multi {
		return nil
	}
	return append([]string(nil), c.fragments...)
}

// Flatten renders the content as plain text. Fragments are joined with
// newlines, skipping empty ones.
func (c Content) Flatten() string {
	if !c.multi {
		return c.text
	}
	parts := make([]string, 0, len(c.fragments))
	for _, f := range c.fragments {
		if f != "" {
			parts = append(parts, f)
		}
	}
	return strings.Join(parts, "\n")
}

// IsEmpty reports whether the content carries no text at all.
func (c Content) IsEmpty() bool { return c.Flatten() == "" }

func (c Content) String() string { return c.Flatten() }

type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// MarshalJSON encodes Text as a JSON string and Fragments as an array of
// {"type":"text","text":...} parts.
func (c Content) MarshalJSON() ([]byte, error) {
	if !c.multi {
		return json.Marshal(c.text)
	}
	parts := make([]contentPart, len(c.fragments))
	for i, f := range c.fragments {
		parts[i] = contentPart{Type: "text", Text: f}
	}
	return json.Marshal(parts)
}

// UnmarshalJSON accepts a string, an array of parts, or null.
func (c *Content) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*c = Content{}
		return nil
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Text(s)
		return nil
	case data[0] == '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		frags := make([]string, 0, len(raw))
		for _, r := range raw {
			var s string
			if json.Unmarshal(r, &s) == nil {
				frags = append(frags, s)
				continue
			}
			var p contentPart
			if err := json.Unmarshal(r, &p); err != nil {
				return fmt.Errorf("content part: %w", err)
			}
			if p.Type == "" || p.Type == "text" {
				frags = append(frags, p.Text)
			}
		}
		*c = Fragments(frags...)
		return nil
	default:
		return fmt.Errorf("content: unsupported JSON value %s", data)
	}
}

// Message represents a single message in a conversation.
type Message struct {
	Role       string     `json:"role"`
	Content    Content    `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Timestamp  time.Time  `json:"timestamp,omitzero"`
}

// HumanMessage builds a human message with literal text.
func HumanMessage(text string) Message {
	return Message{Role: RoleHuman, Content: Text(text), Timestamp: time.Now()}
}

// SystemMessage builds a system message with literal text.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: Text(text)}
}

// ToolMessage builds the response message for a tool call.
func ToolMessage(call ToolCall, output string) Message {
	return Message{
		Role:       RoleTool,
		Content:    Text(output),
		Name:       call.Name,
		ToolCallID: call.ID,
		Timestamp:  time.Now(),
	}
}

// HasToolCalls reports whether m is an ai message requesting tools.
func (m Message) HasToolCalls() bool {
	return m.Role == RoleAI && len(m.ToolCalls) > 0
}

// ChatRequest is sent to an LLM provider.
type ChatRequest struct {
	Model       string       `json:"model"`
	Messages    []Message    `json:"messages"`
	Tools       []ToolSchema `json:"tools,omitempty"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Temperature float64      `json:"temperature,omitempty"`
	Stream      bool         `json:"stream,omitempty"`
}

// ChatResponse is returned from an LLM provider.
type ChatResponse struct {
	ID        string    `json:"id"`
	Model     string    `json:"model"`
	Message   Message   `json:"message"`
	Usage     Usage     `json:"usage"`
	CreatedAt time.Time `json:"created_at"`
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
