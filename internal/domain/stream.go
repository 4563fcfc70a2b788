package domain

// StreamEventType identifies the kind of StreamEvent.
type StreamEventType string

const (
	StreamEventToken     StreamEventType = "token"
	StreamEventToolStart StreamEventType = "tool_start"
	StreamEventToolEnd   StreamEventType = "tool_end"
)

// StreamEvent is one observable event of a streamed turn.
type StreamEvent struct {
	Type    StreamEventType `json:"type"`
	Content string          `json:"content,omitempty"`
	Name    string          `json:"name,omitempty"`
	CallID  string          `json:"call_id,omitempty"`
	Output  string          `json:"output,omitempty"`
}

// TokenEvent builds a token event.
func TokenEvent(text string) StreamEvent {
	return StreamEvent{Type: StreamEventToken, Content: text}
}

// Sentinels are the user-visible texts substituted for degraded outcomes.
type Sentinels struct {
	ToolLimit string
	NoAnswer  string
}

// DefaultSentinels returns the built-in English sentinel texts.
func DefaultSentinels() Sentinels {
	return Sentinels{
		ToolLimit: "Tool-call limit reached before a final answer. Try rephrasing or asking a more specific question.",
		NoAnswer:  "Could not produce an answer.",
	}
}

// WithDefaults fills empty fields from DefaultSentinels.
func (s Sentinels) WithDefaults() Sentinels {
	d := DefaultSentinels()
	if s.ToolLimit == "" {
		s.ToolLimit = d.ToolLimit
	}
	if s.NoAnswer == "" {
		s.NoAnswer = d.NoAnswer
	}
	return s
}
