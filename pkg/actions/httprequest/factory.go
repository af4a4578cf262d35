package httprequest

import (
	"context"

	"github.com/dukex/packflow/pkg/protocol"
)

// ActionFactory creates HttpRequest actions.
type ActionFactory struct{}

// NewActionFactory creates a new ActionFactory.
func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

// Create creates a new Action from the given configuration.
func (h *ActionFactory) Create(_ context.Context, config map[string]any) (protocol.Action, error) {
	return NewAction(config)
}

// ID returns the unique identifier for the action.
func (h *ActionFactory) ID() string {
	return "HttpRequest"
}

// Name returns the name of the action.
func (h *ActionFactory) Name() string {
	return "HTTP Request"
}

// Description returns a brief description of the action.
func (h *ActionFactory) Description() string {
	return "Performs an HTTP request. The response is written to context.httpResponse."
}

// Schema returns the JSON schema for configuring this action.
func (h *ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"title":       "URL",
				"type":        "string",
				"description": "The URL to send the HTTP request to. Supports templating.",
				"examples": []string{
					"https://api.example.com/users",
					"https://api.example.com/users/{context.lookup._id}",
				},
			},
			"method": map[string]any{
				"type":        "string",
				"description": "HTTP method to use.",
				"default":     "GET",
				"enum":        []string{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS", "get", "post", "put", "delete", "patch", "head", "options"},
			},
			"headers": map[string]any{
				"type":        "object",
				"description": "HTTP headers to include in the request. Values support templating.",
				"examples": []map[string]string{
					{"Authorization": "Bearer {env.API_TOKEN}"},
				},
			},
			"body": map[string]any{
				"description": "Request body. Strings are sent as-is; objects and arrays are sent as JSON.",
				"examples": []any{
					`{"user_id": "{context.user._id}"}`,
					map[string]any{"email": "{triggerData.customer.email}"},
				},
			},
			"failOnStatus": map[string]any{
				"type":        "boolean",
				"description": "Fail the action on a 4xx or 5xx response.",
				"default":     true,
			},
			"retries": map[string]any{
				"type":        "object",
				"description": "Retry configuration for 5xx responses and transport errors",
				"properties": map[string]any{
					"attempts": map[string]any{
						"type":    "integer",
						"default": 1,
						"minimum": 1,
						"maximum": 5, //nolint:mnd // schema bound
					},
					"delay": map[string]any{
						"type":        "integer",
						"description": "Delay between attempts in milliseconds",
						"default":     1000,  //nolint:mnd // schema default
						"minimum":     0,
						"maximum":     30000, //nolint:mnd // schema bound
					},
				},
			},
		},
		"required":             []string{"url"},
		"additionalProperties": false,
	}
}
