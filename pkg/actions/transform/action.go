// Package transform provides the TransformData action, a jq transformation of
// context values.
package transform

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dukex/packflow/pkg/models"
	"github.com/dukex/packflow/pkg/protocol"
	"github.com/itchyny/gojq"
)

// Action runs a compiled jq program against its input. A single output is the
// result as-is; several outputs are collected into an array.
type Action struct {
	Expression string
	Input      any
	code       *gojq.Code
}

// NewAction parses and compiles the expression. The program cannot read the
// process environment.
func NewAction(config map[string]any) (*Action, error) {
	expression, _ := config["expression"].(string)
	if expression == "" {
		return nil, models.NewValidationError("expression", "TransformData requires an expression")
	}

	query, err := gojq.Parse(expression)
	if err != nil {
		return nil, models.NewValidationError("expression", "jq parse error in %q: %v", expression, err)
	}

	code, err := gojq.Compile(query, gojq.WithEnvironLoader(func() []string { return nil }))
	if err != nil {
		return nil, models.NewValidationError("expression", "jq compile error in %q: %v", expression, err)
	}

	return &Action{Expression: expression, Input: config["input"], code: code}, nil
}

// Execute renders the input (the whole subject when absent) and runs the program.
func (a *Action) Execute(ctx context.Context, executionCtx *models.ExecutionContext, deps protocol.Dependencies) (map[string]any, error) {
	var input any = executionCtx.Subject()

	if a.Input != nil {
		rendered, err := deps.Render(map[string]any{"input": a.Input}, executionCtx, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to get input data: %w", err)
		}

		input = rendered["input"]
	}

	normalized, err := normalize(input)
	if err != nil {
		return nil, err
	}

	iter := a.code.RunWithContext(ctx, normalized)

	var results []any

	for {
		value, ok := iter.Next()
		if !ok {
			break
		}

		if err, isErr := value.(error); isErr {
			return nil, fmt.Errorf("jq evaluation failed for %q: %w", a.Expression, err)
		}

		results = append(results, value)
	}

	deps.ActionLogger("TransformData").DebugContext(ctx, "Transform completed", "outputs", len(results))

	var result any

	switch len(results) {
	case 0:
	case 1:
		result = results[0]
	default:
		result = results
	}

	return map[string]any{models.SubjectResult: result}, nil
}

// normalize converts values to the JSON types jq understands, e.g. timestamps
// become RFC 3339 strings.
func normalize(v any) (any, error) {
	encoded, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("transform input is not JSON-compatible: %w", err)
	}

	var out any
	if err := json.Unmarshal(encoded, &out); err != nil {
		return nil, fmt.Errorf("transform input is not JSON-compatible: %w", err)
	}

	return out, nil
}
