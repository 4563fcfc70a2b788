package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"jarvis/internal/domain"
	"jarvis/internal/infra/config"
)

// RegisterBuiltins registers the tools enabled in cfg.
func RegisterBuiltins(reg *Registry, cfg config.ToolsConfig, logger *slog.Logger) error {
	var tools []domain.Tool
	if cfg.Calculator {
		tools = append(tools, NewCalculatorTool(logger))
	}
	if cfg.Clock {
		tools = append(tools, NewClockTool(logger))
	}
	for _, t := range tools {
		if err := reg.Register(WithTimeout(t, cfg.Timeout)); err != nil {
			return fmt.Errorf("register %s: %w", t.Name(), err)
		}
	}
	return nil
}

// timeoutTool bounds each call of the inner tool.
type timeoutTool struct {
	domain.Tool
	timeout time.Duration
}

// WithTimeout returns t unchanged when d <= 0.
func WithTimeout(t domain.Tool, d time.Duration) domain.Tool {
	if d <= 0 {
		return t
	}
	return &timeoutTool{Tool: t, timeout: d}
}

func (t *timeoutTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	type outcome struct {
		res *domain.ToolResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := t.Tool.Execute(ctx, params)
		done <- outcome{res, err}
	}()

	select {
	case o := <-done:
		return o.res, o.err
	case <-ctx.Done():
		if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%s after %s: %w", t.Name(), t.timeout, domain.ErrTimeout)
	}
}
