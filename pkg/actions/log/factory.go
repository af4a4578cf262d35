// Package log provides the Log action.
package log

import (
	"context"

	"github.com/dukex/packflow/pkg/protocol"
)

// ActionFactory creates Log actions.
type ActionFactory struct{}

// NewActionFactory creates a new ActionFactory.
func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

// Create creates a new Action from the given configuration.
func (f *ActionFactory) Create(_ context.Context, config map[string]any) (protocol.Action, error) {
	if config == nil {
		config = map[string]any{}
	}

	return NewAction(config)
}

// ID returns the type tag of the action.
func (f *ActionFactory) ID() string {
	return "Log"
}

// Name returns the name of the action.
func (f *ActionFactory) Name() string {
	return "Log"
}

// Description returns a brief description of the action.
func (f *ActionFactory) Description() string {
	return "Writes a message to the run log."
}

// Schema returns the JSON schema for configuring this action.
func (f *ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":     "string",
				"examples": []string{"Processed {context.chunk._id} for run {run.id}"},
			},
			"level": map[string]any{
				"type":    "string",
				"enum":    []string{"debug", "info", "warn", "error"},
				"default": "info",
			},
			"fields": map[string]any{"type": "object"},
		},
		"additionalProperties": false,
	}
}
