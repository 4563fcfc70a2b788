package tool

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		expr string
		want string
	}{
		{"2 + 3", "5"},
		{"7 / 2", "3.5"},
		{"(15 + 7) * 3", "66"},
		{"2 ** 10", "1024"},
		{"10 % 3", "1"},
		{"-7 % 3", "2"},
		{"7 % -3", "-2"},
		{"-(2 + 3)", "-5"},
		{"+4", "4"},
		{"0.1 + 0.2", "0.30000000000000004"},
		{"1.5 * 2", "3"},
		{"10 ** 20", "100000000000000000000"},
		{"6 - 6", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			v, err := Evaluate(tt.expr)
			if err != nil {
				t.Fatalf("Evaluate(%q): %v", tt.expr, err)
			}
			if got := FormatNumber(v); got != tt.want {
				t.Errorf("Evaluate(%q) = %s, want %s", tt.expr, got, tt.want)
			}
		})
	}
}

func TestEvaluate_Rejects(t *testing.T) {
	tests := []struct {
		expr string
		want string
	}{
		{"true", "only numbers"},
		{`"a" + "b"`, "only numbers"},
		{"x + 1", "unsupported expression"},
		{"len([1])", "unsupported expression"},
		{"1 < 2", "operator not allowed"},
		{"1 and 2", "operator not allowed"},
		{"!1", "operator not allowed"},
		{"2 +", "invalid expression"},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			_, err := Evaluate(tt.expr)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Evaluate(%q) error = %v, want %q", tt.expr, err, tt.want)
			}
		})
	}
}

func TestEvaluate_DivisionByZero(t *testing.T) {
	for _, expr := range []string{"1 / 0", "5 % 0", "1 / (2 - 2)"} {
		if _, err := Evaluate(expr); !errors.Is(err, ErrDivisionByZero) {
			t.Errorf("Evaluate(%q) = %v, want ErrDivisionByZero", expr, err)
		}
	}
}

func TestFormatNumber_NonFinite(t *testing.T) {
	if got := FormatNumber(math.Inf(1)); got != "inf" {
		t.Errorf("FormatNumber(+Inf) = %q", got)
	}
	if got := FormatNumber(math.Inf(-1)); got != "-inf" {
		t.Errorf("FormatNumber(-Inf) = %q", got)
	}
	if got := FormatNumber(math.NaN()); got != "nan" {
		t.Errorf("FormatNumber(NaN) = %q", got)
	}
	if got := FormatNumber(math.Copysign(0, -1)); got != "0" {
		t.Errorf("FormatNumber(-0) = %q", got)
	}
}

func TestCalculatorTool_Execute(t *testing.T) {
	calc := NewCalculatorTool(nopLogger())

	result, err := calc.Execute(context.Background(), json.RawMessage(`{"expression":"(15 + 7) * 3"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.IsError || result.Content != "66" {
		t.Errorf("result = %+v", result)
	}

	result, _ = calc.Execute(context.Background(), json.RawMessage(`{"expression":"1/0"}`))
	if !result.IsError || !strings.Contains(result.Content, "division by zero") || result.IsRetryable {
		t.Errorf("division result = %+v", result)
	}

	result, _ = calc.Execute(context.Background(), json.RawMessage(`{"expression":"  "}`))
	if !result.IsError || !strings.Contains(result.Content, "'expression' is required") {
		t.Errorf("blank result = %+v", result)
	}
}

func TestCalculatorTool_SchemaCompiles(t *testing.T) {
	if _, err := WithSchemaValidation(NewCalculatorTool(nil)); err != nil {
		t.Fatalf("calculator schema: %v", err)
	}
}
