package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"jarvis/internal/domain"
)

// checkedTool rejects calls whose arguments do not match the tool's
// parameter schema before they reach the tool.
type checkedTool struct {
	domain.Tool
	params *jsonschema.Schema
}

// WithSchemaValidation wraps t with argument validation. Tools without a
// parameter schema are returned unchanged.
func WithSchemaValidation(t domain.Tool) (domain.Tool, error) {
	raw := bytes.TrimSpace(t.Schema().Parameters)
	if len(raw) == 0 || string(raw) == "null" {
		return t, nil
	}
	compiled, err := jsonschema.CompileString("mem://tools/"+t.Name()+".json", string(raw))
	if err != nil {
		return nil, fmt.Errorf("tool %s: compile parameter schema: %w", t.Name(), err)
	}
	return &checkedTool{Tool: t, params: compiled}, nil
}

// Execute validates params first. An empty payload is checked as {} since
// models omit arguments for all-optional schemas.
func (c *checkedTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	if len(bytes.TrimSpace(params)) == 0 {
		params = json.RawMessage(`{}`)
	}
	var doc any
	if err := json.Unmarshal(params, &doc); err != nil {
		return errorResult("invalid JSON: %v", err), nil
	}
	if err := c.params.Validate(doc); err != nil {
		return errorResult("schema validation failed: %v", err), nil
	}
	return c.Tool.Execute(ctx, params)
}
