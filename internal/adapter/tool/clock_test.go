package tool

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func fixedClock() *ClockTool {
	c := NewClockTool(nopLogger())
	c.now = func() time.Time { return time.Date(2025, 1, 15, 12, 30, 45, 123456000, time.UTC) }
	return c
}

func TestClockTool_Execute(t *testing.T) {
	tests := []struct {
		name   string
		params string
		want   string
	}{
		{"default utc", `{}`, "2025-01-15T12:30:45.123456+00:00"},
		{"empty payload", ``, "2025-01-15T12:30:45.123456+00:00"},
		{"sao paulo", `{"timezone_name":"America/Sao_Paulo"}`, "2025-01-15T09:30:45.123456-03:00"},
		{"tokyo", `{"timezone_name":"Asia/Tokyo"}`, "2025-01-15T21:30:45.123456+09:00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := fixedClock().Execute(context.Background(), json.RawMessage(tt.params))
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if result.IsError || result.Content != tt.want {
				t.Errorf("result = %+v, want %s", result, tt.want)
			}
		})
	}
}

func TestClockTool_InvalidZoneIsText(t *testing.T) {
	for _, zone := range []string{"Mars/Olympus", "Local"} {
		result, err := fixedClock().Execute(context.Background(), json.RawMessage(`{"timezone_name":"`+zone+`"}`))
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if result.IsError {
			t.Errorf("%s: invalid zone should not be an error result", zone)
		}
		if !strings.Contains(result.Content, "'"+zone+"'") || !strings.Contains(result.Content, "America/Sao_Paulo") {
			t.Errorf("%s: content = %q", zone, result.Content)
		}
	}
}

func TestClockTool_SchemaAllowsNoArgs(t *testing.T) {
	wrapped, err := WithSchemaValidation(fixedClock())
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	result, _ := wrapped.Execute(context.Background(), nil)
	if result.IsError {
		t.Errorf("result = %+v", result)
	}
}
