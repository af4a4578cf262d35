package script

import (
	"context"

	"github.com/dukex/packflow/pkg/protocol"
)

// ActionFactory creates ExecuteScript actions.
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
	return "ExecuteScript"
}

// Name returns the name of the action.
func (f *ActionFactory) Name() string {
	return "Execute Script"
}

// Description returns a brief description of the action.
func (f *ActionFactory) Description() string {
	return "Runs a script in the isolated script runner. The script's value becomes context.result."
}

// Schema returns the JSON schema for configuring this action.
func (f *ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"script": map[string]any{
				"type":        "string",
				"format":      "code",
				"description": "Script source. The default runner evaluates expr-lang expressions.",
				"examples": []string{
					`len(context.chunk)`,
					`count(db.find("orders", {"status": "open"}), .total > 100)`,
				},
			},
		},
		"required":             []string{"script"},
		"additionalProperties": false,
	}
}
