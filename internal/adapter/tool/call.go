package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"jarvis/internal/domain"
	"jarvis/internal/infra/tracer"
)

const retryHint = " (transient error, may succeed on retry)"

// callFunc is the body of one tool call. A string return becomes the text
// shown to the model, a *domain.ToolResult is used as is and any other value
// is rendered as indented JSON.
type callFunc[A any] func(ctx context.Context, span trace.Span, args A) (any, error)

// runCall decodes raw into A and runs fn inside a "tool.<name>" span.
// Failures are reported to the model as error results, never as Go errors.
func runCall[A any](ctx context.Context, name string, logger *slog.Logger, raw json.RawMessage, fn callFunc[A]) (*domain.ToolResult, error) {
	ctx, span := tracer.StartSpan(ctx, "tool."+name, trace.WithAttributes(tracer.StringAttr("tool.name", name)))
	defer span.End()
	start := time.Now()

	args, err := decodeArgs[A](raw)
	if err != nil {
		tracer.RecordError(span, err)
		return errorResult("%v", err), nil
	}

	out, err := fn(ctx, span, args)
	span.SetAttributes(tracer.Int64Attr("tool.duration_ms", time.Since(start).Milliseconds()))
	if err != nil {
		tracer.RecordError(span, err)
		if logger != nil {
			logger.Warn("tool call failed", "tool", name, "error", err)
		}
		return failure(err), nil
	}

	res, err := toResult(out)
	if err != nil {
		tracer.RecordError(span, err)
		return errorResult("failed to format response: %v", err), nil
	}
	if res.IsError {
		tracer.RecordError(span, errors.New(res.Content))
	} else {
		tracer.SetOK(span)
	}
	return res, nil
}

// decodeArgs unmarshals raw into A. A missing payload decodes as {}.
func decodeArgs[A any](raw json.RawMessage) (A, error) {
	var args A
	if len(raw) == 0 {
		return args, nil
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return args, fmt.Errorf("invalid params: %w", err)
	}
	return args, nil
}

func toResult(out any) (*domain.ToolResult, error) {
	switch v := out.(type) {
	case *domain.ToolResult:
		return v, nil
	case string:
		return textResult(v), nil
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, err
	}
	return textResult(string(data)), nil
}

// failure converts a handler error, flagging transient ones.
func failure(err error) *domain.ToolResult {
	res := &domain.ToolResult{IsError: true, Content: err.Error()}
	if isTransient(err) {
		res.IsRetryable = true
		res.Content += retryHint
	}
	return res
}

// errorResult is a failed call whose text goes straight to the model.
func errorResult(format string, args ...any) *domain.ToolResult {
	return &domain.ToolResult{IsError: true, Content: fmt.Sprintf(format, args...)}
}

func textResult(s string) *domain.ToolResult {
	return &domain.ToolResult{Content: s}
}
