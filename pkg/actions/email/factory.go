package email

import (
	"context"

	"github.com/dukex/packflow/pkg/protocol"
)

// ActionFactory creates SendEmail actions.
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
	return "SendEmail"
}

// Name returns the name of the action.
func (f *ActionFactory) Name() string {
	return "Send Email"
}

// Description returns a brief description of the action.
func (f *ActionFactory) Description() string {
	return "Sends an email to every resolved recipient. Recipients may be addresses or records with an email field."
}

// Schema returns the JSON schema for configuring this action.
func (f *ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"to": map[string]any{
				"description": "Recipient address, comma separated addresses, or a template resolving to a list of records.",
				"examples":    []any{"{triggerData.customer.email}", "{context.chunk}", []string{"ops@example.com"}},
			},
			"emailField": map[string]any{
				"type":        "string",
				"description": "Field holding the address when recipients are records.",
				"default":     "email",
			},
			"from":    map[string]any{"type": "string"},
			"replyTo": map[string]any{"type": "string"},
			"subject": map[string]any{
				"type":        "string",
				"description": "Subject template. {recipient.*} refers to the current recipient.",
				"examples":    []string{"Welcome, {recipient.name}!"},
			},
			"body": map[string]any{
				"type":   "string",
				"format": "code",
			},
			"html": map[string]any{"type": "boolean", "default": false},
		},
		"required":             []string{"to", "subject", "body"},
		"additionalProperties": false,
	}
}
