package usecase

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"jarvis/internal/domain"
	"jarvis/internal/infra/tracer"
)

// Outcome classifies how a turn ended.
type Outcome string

const (
	OutcomeAnswered  Outcome = "answered"
	OutcomeToolLimit Outcome = "tool_limit"
	OutcomeNoAnswer  Outcome = "no_answer"
)

// TurnRequest is the input of one conversational turn.
type TurnRequest struct {
	History      []domain.Message
	UserText     string
	SystemPrompt string
	Window       int
	MaxToolSteps int
	SessionKey   string
	Sentinels    domain.Sentinels
}

// TurnResult is the outcome of RunTurn.
type TurnResult struct {
	Answer  string
	Outcome Outcome
	// Transcript holds the new human message followed by every message the
	// engine produced. Callers append it to the stored history.
	Transcript []domain.Message
}

// RecursionLimit bounds the engine loop for a step budget: one assistant
// and one tools node per round plus slack for the final answer.
func RecursionLimit(maxToolSteps int) int {
	return max(6, 2*maxToolSteps+4)
}

// prepareTurn builds the engine input for req and returns it with the new
// human message.
func prepareTurn(req TurnRequest) (domain.EngineState, domain.Message) {
	human := domain.HumanMessage(req.UserText)
	history := make([]domain.Message, 0, len(req.History)+1)
	history = append(history, req.History...)
	history = append(history, human)

	prepared := PrepareMessages(TrimHistory(history, req.Window), req.SystemPrompt)
	return domain.EngineState{
		Messages:     prepared,
		ToolSteps:    0,
		MaxToolSteps: req.MaxToolSteps,
	}, human
}

// RunTurn drives one request/response cycle against engine and extracts the
// final answer. Hitting the recursion limit is a normal outcome reported
// through the tool-limit sentinel; any other engine error is returned.
func RunTurn(ctx context.Context, engine domain.Engine, req TurnRequest) (*TurnResult, error) {
	ctx, span := tracer.StartSpan(ctx, "usecase.turn.run",
		trace.WithAttributes(
			tracer.StringAttr("session.key", req.SessionKey),
			tracer.IntAttr("turn.max_tool_steps", req.MaxToolSteps),
		),
	)
	defer span.End()

	sentinels := req.Sentinels.WithDefaults()
	state, human := prepareTurn(req)
	inputLen := len(state.Messages)

	out, err := engine.Run(ctx, state, domain.RunOptions{
		RecursionLimit: RecursionLimit(req.MaxToolSteps),
		SessionKey:     req.SessionKey,
	})
	if err != nil && !errors.Is(err, domain.ErrRecursionLimit) {
		tracer.RecordError(span, err)
		return nil, domain.WrapOp("RunTurn", err)
	}

	result := &TurnResult{Transcript: []domain.Message{human}}
	if len(out.Messages) > inputLen {
		result.Transcript = append(result.Transcript, out.Messages[inputLen:]...)
	}

	if err != nil {
		result.Answer, result.Outcome = sentinels.ToolLimit, OutcomeToolLimit
	} else {
		result.Answer, result.Outcome = extractAnswer(out.Messages, sentinels)
	}
	span.SetAttributes(tracer.StringAttr("turn.outcome", string(result.Outcome)))
	tracer.SetOK(span)
	return result, nil
}

// extractAnswer renders the last ai message of msgs.
func extractAnswer(msgs []domain.Message, sentinels domain.Sentinels) (string, Outcome) {
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m.Role != domain.RoleAI {
			continue
		}
		if len(m.ToolCalls) > 0 {
			return sentinels.ToolLimit, OutcomeToolLimit
		}
		text := strings.TrimSpace(m.Content.Flatten())
		if text == "" {
			return sentinels.NoAnswer, OutcomeNoAnswer
		}
		return text, OutcomeAnswered
	}
	return sentinels.NoAnswer, OutcomeNoAnswer
}
