package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	_ "time/tzdata" // zones available without a system zoneinfo

	"go.opentelemetry.io/otel/trace"

	"jarvis/internal/domain"
	"jarvis/internal/infra/tracer"
)

// isoMicro is ISO-8601 with microseconds and a numeric offset.
const isoMicro = "2006-01-02T15:04:05.000000-07:00"

// ClockTool reports the current time in an IANA zone.
type ClockTool struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewClockTool creates the current_time tool.
func NewClockTool(logger *slog.Logger) *ClockTool {
	return &ClockTool{logger: logger, now: time.Now}
}

func (t *ClockTool) Name() string { return "current_time" }
func (t *ClockTool) Description() string {
	return "Returns the current date and time in ISO format for the given timezone."
}

func (t *ClockTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"timezone_name": {"type": "string", "description": "IANA timezone, e.g. America/Sao_Paulo", "default": "UTC"}
			}
		}`),
	}
}

type clockParams struct {
	TimezoneName string `json:"timezone_name"`
}

func (t *ClockTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return runCall(ctx, t.Name(), t.logger, params,
		func(_ context.Context, span trace.Span, p clockParams) (any, error) {
			name := strings.TrimSpace(p.TimezoneName)
			if name == "" {
				name = "UTC"
			}
			span.SetAttributes(tracer.StringAttr("clock.timezone", name))

			loc, err := time.LoadLocation(name)
			if err != nil || strings.EqualFold(name, "local") {
				return fmt.Sprintf("Invalid timezone: '%s'. Use values like 'UTC' or 'America/Sao_Paulo'.", name), nil
			}
			return t.now().In(loc).Format(isoMicro), nil
		},
	)
}
