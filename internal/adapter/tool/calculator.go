package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
	"go.opentelemetry.io/otel/trace"

	"jarvis/internal/domain"
	"jarvis/internal/infra/tracer"
)

const maxExpressionLength = 1024

// ErrDivisionByZero is returned when a division or modulo has a zero divisor.
var ErrDivisionByZero = errors.New("division by zero")

// CalculatorTool evaluates arithmetic over numeric literals.
type CalculatorTool struct {
	logger *slog.Logger
}

// NewCalculatorTool creates the calculator tool.
func NewCalculatorTool(logger *slog.Logger) *CalculatorTool {
	return &CalculatorTool{logger: logger}
}

func (t *CalculatorTool) Name() string { return "calculator" }
func (t *CalculatorTool) Description() string {
	return "Evaluates an arithmetic expression with +, -, *, /, %, ** and parentheses."
}

func (t *CalculatorTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"expression": {"type": "string", "description": "Arithmetic expression, e.g. (15 + 7) * 3"}
			},
			"required": ["expression"]
		}`),
	}
}

type calculatorParams struct {
	Expression string `json:"expression"`
}

func (t *CalculatorTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return runCall(ctx, t.Name(), t.logger, params,
		func(_ context.Context, span trace.Span, p calculatorParams) (any, error) {
			switch {
			case strings.TrimSpace(p.Expression) == "":
				return errorResult("'expression' is required"), nil
			case len(p.Expression) > maxExpressionLength:
				return errorResult("expression exceeds maximum length of %d", maxExpressionLength), nil
			}
			span.SetAttributes(tracer.StringAttr("calculator.expression", p.Expression))

			v, err := Evaluate(p.Expression)
			if err != nil {
				return nil, err
			}
			return FormatNumber(v), nil
		},
	)
}

// Evaluate parses and evaluates an arithmetic expression in float64.
func Evaluate(expression string) (float64, error) {
	tree, err := parser.Parse(expression)
	if err != nil {
		return 0, fmt.Errorf("invalid expression: %w", err)
	}
	return evalNode(tree.Node)
}

func evalNode(node ast.Node) (float64, error) {
	switch n := node.(type) {
	case *ast.IntegerNode:
		return float64(n.Value), nil
	case *ast.FloatNode:
		return n.Value, nil
	case *ast.UnaryNode:
		v, err := evalNode(n.Node)
		if err != nil {
			return 0, err
		}
		switch n.Operator {
		case "+":
			return v, nil
		case "-":
			return -v, nil
		}
		return 0, fmt.Errorf("operator not allowed: %s", n.Operator)
	case *ast.BinaryNode:
		if !binaryAllowed(n.Operator) {
			return 0, fmt.Errorf("operator not allowed: %s", n.Operator)
		}
		left, err := evalNode(n.Left)
		if err != nil {
			return 0, err
		}
		right, err := evalNode(n.Right)
		if err != nil {
			return 0, err
		}
		return applyBinary(n.Operator, left, right)
	case *ast.BoolNode, *ast.StringNode, *ast.NilNode:
		return 0, errors.New("only numbers are allowed")
	default:
		return 0, fmt.Errorf("unsupported expression: %T", node)
	}
}

func binaryAllowed(op string) bool {
	switch op {
	case "+", "-", "*", "/", "%", "**", "^":
		return true
	}
	return false
}

func applyBinary(op string, a, b float64) (float64, error) {
	switch op {
	case "+":
		return a + b, nil
	case "-":
		return a - b, nil
	case "*":
		return a * b, nil
	case "/":
		if b == 0 {
			return 0, ErrDivisionByZero
		}
		return a / b, nil
	case "%":
		if b == 0 {
			return 0, ErrDivisionByZero
		}
		// Floored: the result takes the sign of the divisor.
		r := math.Mod(a, b)
		if r != 0 && (r < 0) != (b < 0) {
			r += b
		}
		return r, nil
	default: // "**" or "^"
		return math.Pow(a, b), nil
	}
}

// FormatNumber renders integral values without a decimal point.
func FormatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case f == math.Trunc(f):
		if f == 0 {
			return "0"
		}
		return new(big.Float).SetFloat64(f).Text('f', 0)
	default:
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
}
