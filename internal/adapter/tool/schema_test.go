package tool

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jarvis/internal/domain"
)

// stubTool is a minimal tool for registry and validation tests.
type stubTool struct {
	name   string
	schema json.RawMessage
	result *domain.ToolResult
	calls  int
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return "stub" }
func (s *stubTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{Name: s.name, Description: "stub", Parameters: s.schema}
}
func (s *stubTool) Execute(_ context.Context, _ json.RawMessage) (*domain.ToolResult, error) {
	s.calls++
	return s.result, nil
}

const expressionSchema = `{
	"type": "object",
	"properties": {"expression": {"type": "string"}},
	"required": ["expression"]
}`

func TestSchemaValidation(t *testing.T) {
	tests := []struct {
		name      string
		params    string
		wantError string
	}{
		{"valid", `{"expression":"2 + 3"}`, ""},
		{"missing required", `{}`, "schema validation failed"},
		{"empty payload is object", ``, "schema validation failed"},
		{"wrong type", `{"expression":5}`, "schema validation failed"},
		{"malformed", `{"expression":`, "invalid JSON"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inner := &stubTool{name: "calculator", schema: json.RawMessage(expressionSchema), result: textResult("ok")}
			wrapped, err := WithSchemaValidation(inner)
			require.NoError(t, err)

			res, err := wrapped.Execute(context.Background(), json.RawMessage(tt.params))
			require.NoError(t, err)
			if tt.wantError == "" {
				assert.Equal(t, textResult("ok"), res)
				assert.Equal(t, 1, inner.calls)
				return
			}
			assert.True(t, res.IsError)
			assert.Contains(t, res.Content, tt.wantError)
			assert.Zero(t, inner.calls, "inner tool must not run on invalid params")
		})
	}
}

func TestSchemaValidation_NoSchemaPassthrough(t *testing.T) {
	for _, schema := range []json.RawMessage{nil, json.RawMessage(` null `)} {
		inner := &stubTool{name: "plain", schema: schema}
		wrapped, err := WithSchemaValidation(inner)
		require.NoError(t, err)
		assert.Same(t, domain.Tool(inner), wrapped)
	}
}

func TestSchemaValidation_CompilationError(t *testing.T) {
	_, err := WithSchemaValidation(&stubTool{name: "bad", schema: json.RawMessage(`{"type": "invalid_type"}`)})
	assert.ErrorContains(t, err, "tool bad")
}

func TestSchemaValidation_DelegatesMetadata(t *testing.T) {
	wrapped, err := WithSchemaValidation(&stubTool{name: "current_time", schema: json.RawMessage(`{"type":"object"}`)})
	require.NoError(t, err)
	assert.Equal(t, "current_time", wrapped.Name())
	assert.Equal(t, "stub", wrapped.Description())
	assert.Equal(t, "current_time", wrapped.Schema().Name)
}
