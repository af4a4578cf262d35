package service

import (
	"context"

	"github.com/dukex/packflow/pkg/protocol"
)

// ActionFactory creates ExecuteServiceFunction actions.
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
	return "ExecuteServiceFunction"
}

// Name returns the name of the action.
func (f *ActionFactory) Name() string {
	return "Execute Service Function"
}

// Description returns a brief description of the action.
func (f *ActionFactory) Description() string {
	return "Invokes a named function on a registered external service."
}

// Schema returns the JSON schema for configuring this action.
func (f *ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"service":  map[string]any{"type": "string", "examples": []string{"webhook"}},
			"function": map[string]any{"type": "string", "examples": []string{"verifySignature"}},
			"args": map[string]any{
				"type":        "object",
				"description": "Arguments passed to the function. Values support templating.",
			},
		},
		"required":             []string{"service", "function"},
		"additionalProperties": false,
	}
}
