package domain

import "context"

// LLMProvider is a chat-completions backend.
type LLMProvider interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	Name() string
}

// StreamDelta is one decoded server-sent event of a streamed completion.
// Tool call fragments arrive in ToolCalls; Usage, when the backend reports
// it, comes with the last delta.
type StreamDelta struct {
	Content   string          `json:"content,omitempty"`
	ToolCalls []ToolCallChunk `json:"tool_calls,omitempty"`
	Done      bool            `json:"done,omitempty"`
	Usage     *Usage          `json:"usage,omitempty"`

	// Err is set on the final delta when the stream broke off early.
	Err error `json:"-"`
}

// StreamingLLMProvider is a backend that can stream token deltas.
type StreamingLLMProvider interface {
	LLMProvider
	// ChatStream closes the returned channel once the stream ends or ctx
	// is done.
	ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamDelta, error)
}
