package aicontent

import (
	"context"

	"github.com/dukex/packflow/pkg/protocol"
)

// ActionFactory creates GenerateAIContent actions.
type ActionFactory struct{}

// NewActionFactory creates a new ActionFactory.
func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

// Create creates a new Action from the given configuration.
func (f *ActionFactory) Create(_ context.Context, config map[string]any) (protocol.Action, error) {
	return NewAction(config)
}

// ID returns the type tag of the action.
func (f *ActionFactory) ID() string {
	return "GenerateAIContent"
}

// Name returns the name of the action.
func (f *ActionFactory) Name() string {
	return "Generate AI Content"
}

// Description returns a brief description of the action.
func (f *ActionFactory) Description() string {
	return "Generates content from a prompt and writes the text into context.aiContent (or the configured output slot)."
}

// Schema returns the JSON schema for configuring this action.
func (f *ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"provider": map[string]any{"type": "string", "examples": []string{"openai", "anthropic"}},
			"model":    map[string]any{"type": "string"},
			"prompt": map[string]any{
				"type":        "string",
				"format":      "code",
				"description": "Prompt template.",
				"examples":    []string{"Write a subject line for {triggerData.product.name}"},
			},
			"system":      map[string]any{"type": "string"},
			"maxTokens":   map[string]any{"type": []string{"integer", "string"}},
			"temperature": map[string]any{"type": []string{"number", "string"}},
			"output": map[string]any{
				"type":    "string",
				"default": DefaultOutput,
			},
		},
		"required":             []string{"prompt"},
		"additionalProperties": false,
	}
}
