package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"log/slog"
	"math/rand"
	"slices"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"jarvis/internal/domain"
	"jarvis/internal/infra/tracer"
)

// Retry constants for LLM calls.
const (
	maxLLMRetries  = 3
	baseRetryDelay = 500 * time.Millisecond
	maxRetryDelay  = 10 * time.Second
)

// errConsumerStopped ends the loop when a stream consumer breaks out.
var errConsumerStopped = errors.New("stream consumer stopped")

// EngineDeps holds injected dependencies for the tool loop engine.
type EngineDeps struct {
	LLM             domain.LLMProvider
	Tools           domain.ToolExecutor // optional, nil = no tools offered
	Model           string
	Temperature     float64
	MaxTokens       int
	Logger          *slog.Logger
	ErrorClassifier *ErrorClassifier // optional, nil = no retries
	Metrics         *TurnMetrics     // optional
}

// ToolLoopEngine alternates between an assistant node (model inference) and
// a tools node (tool execution). After the assistant node it routes to the
// tools node only while the last message requests tools and the step budget
// allows another round; the tools node always routes back to the assistant.
type ToolLoopEngine struct {
	deps EngineDeps
}

// NewToolLoopEngine creates an engine with the given dependencies.
func NewToolLoopEngine(deps EngineDeps) *ToolLoopEngine {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &ToolLoopEngine{deps: deps}
}

// Run executes the loop to completion.
func (e *ToolLoopEngine) Run(ctx context.Context, state domain.EngineState, opts domain.RunOptions) (domain.EngineState, error) {
	return e.loop(ctx, state, opts, nil)
}

// Stream executes the loop and yields fragments as they are produced.
func (e *ToolLoopEngine) Stream(ctx context.Context, state domain.EngineState, opts domain.RunOptions) iter.Seq2[domain.Fragment, error] {
	return func(yield func(domain.Fragment, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		emit := func(f domain.Fragment) bool { return yield(f, nil) }
		_, err := e.loop(ctx, state, opts, emit)
		if err != nil && !errors.Is(err, errConsumerStopped) {
			yield(domain.Fragment{}, err)
		}
	}
}

func (e *ToolLoopEngine) loop(ctx context.Context, state domain.EngineState, opts domain.RunOptions, emit func(domain.Fragment) bool) (domain.EngineState, error) {
	limit := opts.RecursionLimit
	if limit <= 0 {
		limit = RecursionLimit(state.MaxToolSteps)
	}
	state.Messages = slices.Clone(state.Messages)
	log := e.deps.Logger.With("session", opts.SessionKey)

	node := domain.NodeAssistant
	for executed := 0; ; executed++ {
		if err := ctx.Err(); err != nil {
			return state, err
		}
		if executed >= limit {
			log.Warn("engine recursion limit reached", "limit", limit, "tool_steps", state.ToolSteps)
			return state, domain.NewDomainError("ToolLoopEngine.Run", domain.ErrRecursionLimit, "")
		}

		switch node {
		case domain.NodeAssistant:
			msg, err := e.assistantNode(ctx, state.Messages, emit)
			if err != nil {
				return state, err
			}
			state.Messages = append(state.Messages, msg)
			log.Debug("assistant step", "node", executed, "tool_calls", len(msg.ToolCalls))

			if !msg.HasToolCalls() || state.ToolSteps >= state.MaxToolSteps {
				return state, nil
			}
			node = domain.NodeTools

		case domain.NodeTools:
			last := state.Messages[len(state.Messages)-1]
			results := e.toolsNode(ctx, last.ToolCalls)
			state.Messages = append(state.Messages, results...)
			state.ToolSteps++
			if emit != nil {
				for _, m := range results {
					if !emit(domain.Fragment{Node: domain.NodeTools, Message: m, Complete: true}) {
						return state, errConsumerStopped
					}
				}
			}
			node = domain.NodeAssistant
		}
	}
}

// assistantNode asks the model for the next message. With emit set, partial
// output is yielded as it arrives, followed by one Complete fragment.
func (e *ToolLoopEngine) assistantNode(ctx context.Context, msgs []domain.Message, emit func(domain.Fragment) bool) (domain.Message, error) {
	ctx, span := tracer.StartSpan(ctx, "engine.assistant",
		trace.WithAttributes(
			tracer.StringAttr("llm.provider", e.deps.LLM.Name()),
			tracer.StringAttr("llm.model", e.deps.Model),
			tracer.IntAttr("llm.messages", len(msgs)),
		),
	)
	defer span.End()

	req := domain.ChatRequest{
		Model:       e.deps.Model,
		Messages:    msgs,
		Temperature: e.deps.Temperature,
		MaxTokens:   e.deps.MaxTokens,
	}
	if e.deps.Tools != nil {
		req.Tools = e.deps.Tools.Schemas()
	}

	sp, streaming := e.deps.LLM.(domain.StreamingLLMProvider)
	var (
		msg domain.Message
		err error
	)
	if emit != nil && streaming {
		msg, err = e.streamLLM(ctx, sp, req, emit)
	} else {
		msg, err = e.callLLM(ctx, req)
		if err == nil && emit != nil {
			if !emit(fragmentOf(msg)) {
				err = errConsumerStopped
			}
		}
	}
	if err != nil {
		if !errors.Is(err, errConsumerStopped) {
			tracer.RecordError(span, err)
		}
		return domain.Message{}, err
	}
	if e.deps.Metrics != nil {
		e.deps.Metrics.LLMCalls.Add(1)
	}
	if emit != nil && !emit(domain.Fragment{Node: domain.NodeAssistant, Message: msg, Complete: true}) {
		return domain.Message{}, errConsumerStopped
	}
	tracer.SetOK(span)
	return msg, nil
}

// callLLM performs a non-streaming call with retries on transient errors.
func (e *ToolLoopEngine) callLLM(ctx context.Context, req domain.ChatRequest) (domain.Message, error) {
	var msg domain.Message
	err := e.withRetry(ctx, "LLM call", func() error {
		resp, err := e.deps.LLM.Chat(ctx, req)
		if err != nil {
			return err
		}
		msg = resp.Message
		return nil
	})
	if err != nil {
		return domain.Message{}, err
	}
	msg.Role = domain.RoleAI
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	return msg, nil
}

// streamLLM opens a stream (retrying only the open) and forwards deltas.
func (e *ToolLoopEngine) streamLLM(ctx context.Context, sp domain.StreamingLLMProvider, req domain.ChatRequest, emit func(domain.Fragment) bool) (domain.Message, error) {
	req.Stream = true
	var deltaCh <-chan domain.StreamDelta
	err := e.withRetry(ctx, "LLM stream", func() error {
		ch, err := sp.ChatStream(ctx, req)
		deltaCh = ch
		return err
	})
	if err != nil {
		return domain.Message{}, err
	}

	acc := newStreamAccumulator()
	for delta := range deltaCh {
		if delta.Err != nil {
			return domain.Message{}, domain.WrapOp("stream", delta.Err)
		}
		acc.addDelta(delta)
		if delta.Content == "" && len(delta.ToolCalls) == 0 {
			continue
		}
		frag := domain.Fragment{
			Node:           domain.NodeAssistant,
			Message:        domain.Message{Role: domain.RoleAI, Content: domain.Text(delta.Content)},
			ToolCallChunks: delta.ToolCalls,
		}
		if !emit(frag) {
			return domain.Message{}, errConsumerStopped
		}
	}
	if err := ctx.Err(); err != nil {
		return domain.Message{}, err
	}
	return acc.build(), nil
}

// withRetry runs call, retrying with backoff while the classifier deems the
// error transient.
func (e *ToolLoopEngine) withRetry(ctx context.Context, mode string, call func() error) error {
	maxAttempts := 1
	if e.deps.ErrorClassifier != nil {
		maxAttempts = maxLLMRetries
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		lastErr = call()
		if lastErr == nil {
			return nil
		}
		if e.deps.ErrorClassifier == nil || !e.deps.ErrorClassifier.Classify(lastErr).Retryable() {
			return lastErr
		}
		if attempt < maxAttempts-1 {
			delay := retryBackoff(attempt)
			e.deps.Logger.Info("retrying "+mode+" after error",
				"attempt", attempt+1, "delay", delay, "error", lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return lastErr
}

// retryBackoff computes exponential backoff with jitter.
func retryBackoff(attempt int) time.Duration {
	delay := baseRetryDelay * time.Duration(1<<uint(attempt))
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	// Add 0-25% jitter.
	jitter := time.Duration(rand.Int63n(int64(delay/4) + 1))
	return delay + jitter
}

// toolsNode runs every call concurrently and returns the tool messages in
// call order.
func (e *ToolLoopEngine) toolsNode(ctx context.Context, calls []domain.ToolCall) []domain.Message {
	ctx, span := tracer.StartSpan(ctx, "engine.tools",
		trace.WithAttributes(tracer.IntAttr("tool.calls", len(calls))),
	)
	defer span.End()

	results := make([]domain.Message, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Go(func() {
			results[i] = e.executeTool(ctx, call)
		})
	}
	wg.Wait()
	tracer.SetOK(span)
	return results
}

// executeTool runs a single tool call and returns the result as a Message.
// Failures are reported to the model as the message content.
func (e *ToolLoopEngine) executeTool(ctx context.Context, call domain.ToolCall) domain.Message {
	ctx, span := tracer.StartSpan(ctx, "engine.execute_tool",
		trace.WithAttributes(tracer.StringAttr("tool.name", call.Name)),
	)
	defer span.End()

	if e.deps.Metrics != nil {
		e.deps.Metrics.ToolCalls.Add(1)
	}
	fail := func(err error) domain.Message {
		tracer.RecordError(span, err)
		if e.deps.Metrics != nil {
			e.deps.Metrics.ToolErrors.Add(1)
		}
		e.deps.Logger.Warn("tool call failed", "tool", call.Name, "call_id", call.ID, "error", err)
		return domain.ToolMessage(call, "Error: "+err.Error())
	}

	if e.deps.Tools == nil {
		return fail(domain.NewDomainError("ToolLoopEngine.executeTool", domain.ErrToolNotFound, call.Name))
	}
	tool, err := e.deps.Tools.Get(call.Name)
	if err != nil {
		return fail(err)
	}

	args := call.Arguments
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	result, err := tool.Execute(ctx, args)
	if err != nil {
		return fail(err)
	}
	if result.IsError {
		if e.deps.Metrics != nil {
			e.deps.Metrics.ToolErrors.Add(1)
		}
		tracer.RecordError(span, errors.New(result.Content))
		return domain.ToolMessage(call, "Error: "+result.Content)
	}

	tracer.SetOK(span)
	return domain.ToolMessage(call, result.Content)
}

// fragmentOf renders a finished message as a single incremental fragment,
// for providers that cannot stream.
func fragmentOf(msg domain.Message) domain.Fragment {
	frag := domain.Fragment{Node: domain.NodeAssistant, Message: domain.Message{Role: domain.RoleAI, Content: msg.Content}}
	for i, tc := range msg.ToolCalls {
		frag.ToolCallChunks = append(frag.ToolCallChunks, domain.ToolCallChunk{
			Index:     i,
			ID:        tc.ID,
			Name:      tc.Name,
			Arguments: string(tc.Arguments),
		})
	}
	return frag
}

// maxToolCallsPerMessage bounds the calls the accumulator tracks. Chunks for
// further indices are dropped.
const maxToolCallsPerMessage = 50

// streamAccumulator collects incremental deltas into a complete message.
type streamAccumulator struct {
	content strings.Builder
	calls   []domain.ToolCall
	args    []string
	byIndex map[int]int // chunk index -> position in calls
}

func newStreamAccumulator() *streamAccumulator {
	return &streamAccumulator{byIndex: make(map[int]int)}
}

// addDelta merges a single streaming delta into the accumulator.
// Chunks are grouped by their Index; the first chunk of a call provides ID
// and Name, later chunks append to the arguments.
func (acc *streamAccumulator) addDelta(delta domain.StreamDelta) {
	acc.content.WriteString(delta.Content)

	for _, tc := range delta.ToolCalls {
		pos, ok := acc.byIndex[tc.Index]
		if !ok {
			if len(acc.calls) >= maxToolCallsPerMessage {
				continue
			}
			pos = len(acc.calls)
			acc.byIndex[tc.Index] = pos
			acc.calls = append(acc.calls, domain.ToolCall{})
			acc.args = append(acc.args, "")
		}
		if tc.ID != "" {
			acc.calls[pos].ID = tc.ID
		}
		if tc.Name != "" {
			acc.calls[pos].Name = tc.Name
		}
		acc.args[pos] += tc.Arguments
	}
}

// build returns the accumulated message.
func (acc *streamAccumulator) build() domain.Message {
	msg := domain.Message{
		Role:      domain.RoleAI,
		Content:   domain.Text(acc.content.String()),
		Timestamp: time.Now(),
	}
	for i, tc := range acc.calls {
		if acc.args[i] != "" {
			tc.Arguments = json.RawMessage(acc.args[i])
		} else {
			tc.Arguments = json.RawMessage(`{}`)
		}
		msg.ToolCalls = append(msg.ToolCalls, tc)
	}
	return msg
}
