package transform

import (
	"context"

	"github.com/dukex/packflow/pkg/protocol"
)

// ActionFactory is the factory for creating TransformData actions.
type ActionFactory struct{}

// NewActionFactory creates a new instance of ActionFactory for the TransformData action.
func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

// Create creates a new Action instance based on the provided configuration.
func (h *ActionFactory) Create(_ context.Context, config map[string]any) (protocol.Action, error) {
	return NewAction(config)
}

// ID returns the unique identifier for the TransformData action factory.
func (h *ActionFactory) ID() string {
	return "TransformData"
}

// Name returns the name of the TransformData action factory.
func (h *ActionFactory) Name() string {
	return "Transform Data"
}

// Description returns a brief description of the TransformData action.
func (h *ActionFactory) Description() string {
	return "Transforms context data with a jq expression."
}

// Schema returns the JSON schema for the TransformData action configuration.
func (h *ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"input": map[string]any{
				"description": "Input value. Usually a template such as {context.chunk}. Defaults to the whole run subject.",
				"examples":    []string{"{context.chunk}", "{triggerData}"},
			},
			"expression": map[string]any{
				"type":        "string",
				"format":      "code",
				"description": "jq program applied to the input.",
				"examples": []string{
					".email",
					"map(select(.score > 50)) | length",
					"{fullName: (.firstName + \" \" + .lastName)}",
				},
			},
		},
		"required":             []string{"expression"},
		"additionalProperties": false,
	}
}
