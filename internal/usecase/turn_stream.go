package usecase

import (
	"context"
	"errors"
	"iter"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"jarvis/internal/domain"
	"jarvis/internal/infra/tracer"
)

// TurnStream is one streamed turn. Its event sequence is single-use.
type TurnStream struct {
	ctx    context.Context
	engine domain.Engine
	req    TurnRequest

	used       bool
	completed  bool
	outcome    Outcome
	answer     strings.Builder
	transcript []domain.Message
}

// StreamTurn prepares a streamed turn. Nothing runs until Events is ranged over.
func StreamTurn(ctx context.Context, engine domain.Engine, req TurnRequest) *TurnStream {
	return &TurnStream{ctx: ctx, engine: engine, req: req}
}

// Completed reports whether the event sequence reached its natural end,
// including the tool-limit ending. Streams abandoned by the consumer or
// ended by an engine error are not completed.
func (s *TurnStream) Completed() bool { return s.completed }

// Outcome returns how a completed stream ended.
func (s *TurnStream) Outcome() Outcome { return s.outcome }

// Answer returns the concatenated token events emitted so far.
func (s *TurnStream) Answer() string { return s.answer.String() }

// Transcript returns the new human message followed by every message the
// engine committed during the stream.
func (s *TurnStream) Transcript() []domain.Message { return s.transcript }

// Events classifies the raw engine stream into token, tool_start and
// tool_end events. Breaking out of the loop cancels the engine.
func (s *TurnStream) Events() iter.Seq2[domain.StreamEvent, error] {
	return func(yield func(domain.StreamEvent, error) bool) {
		if s.used {
			yield(domain.StreamEvent{}, errors.New("turn stream already consumed"))
			return
		}
		s.used = true

		ctx, cancel := context.WithCancel(s.ctx)
		defer cancel()
		ctx, span := tracer.StartSpan(ctx, "usecase.turn.stream",
			trace.WithAttributes(
				tracer.StringAttr("session.key", s.req.SessionKey),
				tracer.IntAttr("turn.max_tool_steps", s.req.MaxToolSteps),
			),
		)
		defer span.End()

		sentinels := s.req.Sentinels.WithDefaults()
		state, human := prepareTurn(s.req)
		s.transcript = []domain.Message{human}

		emit := func(ev domain.StreamEvent) bool {
			if ev.Type == domain.StreamEventToken {
				s.answer.WriteString(ev.Content)
			}
			return yield(ev, nil)
		}

		announced := make(map[string]struct{})
		awaitingTools := false
		emitted := false

		opts := domain.RunOptions{
			RecursionLimit: RecursionLimit(s.req.MaxToolSteps),
			SessionKey:     s.req.SessionKey,
		}
		for frag, err := range s.engine.Stream(ctx, state, opts) {
			if err != nil {
				if errors.Is(err, domain.ErrRecursionLimit) {
					s.finish(span, OutcomeToolLimit)
					_ = emit(domain.TokenEvent(sentinels.ToolLimit))
					return
				}
				tracer.RecordError(span, err)
				yield(domain.StreamEvent{}, domain.WrapOp("StreamTurn", err))
				return
			}

			switch frag.Node {
			case domain.NodeAssistant:
				if frag.Complete {
					s.transcript = append(s.transcript, frag.Message)
					continue
				}
				if len(frag.ToolCallChunks) > 0 {
					awaitingTools = true
					for _, chunk := range frag.ToolCallChunks {
						if chunk.ID == "" || chunk.Name == "" {
							continue
						}
						if _, seen := announced[chunk.ID]; seen {
							continue
						}
						announced[chunk.ID] = struct{}{}
						if !emit(domain.StreamEvent{
							Type:   domain.StreamEventToolStart,
							Name:   chunk.Name,
							CallID: chunk.ID,
						}) {
							return
						}
					}
					continue
				}
				text, ok := frag.Message.Content.Literal()
				if !ok || text == "" {
					continue
				}
				awaitingTools = false
				emitted = true
				if !emit(domain.TokenEvent(text)) {
					return
				}

			case domain.NodeTools:
				s.transcript = append(s.transcript, frag.Message)
				if !emit(domain.StreamEvent{
					Type:   domain.StreamEventToolEnd,
					Name:   frag.Message.Name,
					CallID: frag.Message.ToolCallID,
					Output: frag.Message.Content.Flatten(),
				}) {
					return
				}
			}
		}

		switch {
		case awaitingTools:
			s.finish(span, OutcomeToolLimit)
			_ = emit(domain.TokenEvent(sentinels.ToolLimit))
		case !emitted:
			s.finish(span, OutcomeNoAnswer)
			_ = emit(domain.TokenEvent(sentinels.NoAnswer))
		default:
			s.finish(span, OutcomeAnswered)
		}
	}
}

// finish marks the stream completed before its final event is yielded, so
// a consumer that stops right after the sentinel still sees a completed turn.
func (s *TurnStream) finish(span trace.Span, outcome Outcome) {
	s.completed = true
	s.outcome = outcome
	span.SetAttributes(tracer.StringAttr("turn.outcome", string(outcome)))
	tracer.SetOK(span)
}
