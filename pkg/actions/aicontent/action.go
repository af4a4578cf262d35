// Package aicontent provides the GenerateAIContent action.
package aicontent

import (
	"context"
	"fmt"

	"github.com/dukex/packflow/pkg/expression"
	"github.com/dukex/packflow/pkg/models"
	"github.com/dukex/packflow/pkg/protocol"
	"github.com/dukex/packflow/pkg/template"
)

// DefaultOutput is the context slot the generated text is written to.
const DefaultOutput = "aiContent"

// Action asks the generator for content and writes the text into a context slot.
type Action struct {
	Request map[string]any
	Output  string
}

// NewAction creates a GenerateAIContent action.
func NewAction(config map[string]any) (*Action, error) {
	if prompt, _ := config["prompt"].(string); prompt == "" {
		return nil, models.NewValidationError("prompt", "GenerateAIContent requires a prompt")
	}

	output, _ := config["output"].(string)
	if output == "" {
		output = DefaultOutput
	}

	request := map[string]any{}

	for _, key := range []string{"provider", "model", "prompt", "system", "maxTokens", "temperature"} {
		if v, ok := config[key]; ok {
			request[key] = v
		}
	}

	return &Action{Request: request, Output: output}, nil
}

// Execute renders the prompt and calls the generator.
func (a *Action) Execute(ctx context.Context, executionCtx *models.ExecutionContext, deps protocol.Dependencies) (map[string]any, error) {
	if deps.Generator == nil {
		return nil, fmt.Errorf("GenerateAIContent: generator %w", protocol.ErrCollaboratorUnavailable)
	}

	rendered, err := deps.Render(a.Request, executionCtx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to render prompt: %w", err)
	}

	req := protocol.GenerationRequest{
		Provider: text(rendered["provider"]),
		Model:    text(rendered["model"]),
		Prompt:   text(rendered["prompt"]),
		System:   text(rendered["system"]),
	}

	if n, ok := expression.ToFloat(rendered["maxTokens"]); ok {
		req.MaxTokens = int(n)
	}

	if f, ok := expression.ToFloat(rendered["temperature"]); ok {
		req.Temperature = f
	}

	deps.ActionLogger("GenerateAIContent").DebugContext(ctx, "Generating content",
		"provider", req.Provider, "model", req.Model)

	generated, err := deps.Generator.Generate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	return map[string]any{
		models.SubjectResult: map[string]any{
			"text":     generated.Text,
			"provider": generated.Provider,
			"model":    generated.Model,
			"usage":    generated.Usage,
		},
		a.Output: generated.Text,
	}, nil
}

func text(v any) string {
	if v == nil {
		return ""
	}

	return template.Stringify(v)
}
