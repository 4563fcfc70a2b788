package usecase

import "sync/atomic"

// TurnMetrics tracks process-wide counters for the status API.
type TurnMetrics struct {
	Turns      atomic.Int64
	TurnErrors atomic.Int64
	ToolLimits atomic.Int64
	NoAnswers  atomic.Int64
	LLMCalls   atomic.Int64
	ToolCalls  atomic.Int64
	ToolErrors atomic.Int64
}

// MetricsSnapshot is a point-in-time copy of TurnMetrics.
type MetricsSnapshot struct {
	Turns      int64 `json:"turns_total"`
	TurnErrors int64 `json:"turn_errors_total"`
	ToolLimits int64 `json:"tool_limits_total"`
	NoAnswers  int64 `json:"no_answers_total"`
	LLMCalls   int64 `json:"llm_calls_total"`
	ToolCalls  int64 `json:"tool_calls_total"`
	ToolErrors int64 `json:"tool_errors_total"`
}

// Snapshot copies the current counter values.
func (m *TurnMetrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Turns:      m.Turns.Load(),
		TurnErrors: m.TurnErrors.Load(),
		ToolLimits: m.ToolLimits.Load(),
		NoAnswers:  m.NoAnswers.Load(),
		LLMCalls:   m.LLMCalls.Load(),
		ToolCalls:  m.ToolCalls.Load(),
		ToolErrors: m.ToolErrors.Load(),
	}
}

func (m *TurnMetrics) record(outcome Outcome, err error) {
	if m == nil {
		return
	}
	m.Turns.Add(1)
	switch {
	case err != nil:
		m.TurnErrors.Add(1)
	case outcome == OutcomeToolLimit:
		m.ToolLimits.Add(1)
	case outcome == OutcomeNoAnswer:
		m.NoAnswers.Add(1)
	}
}
