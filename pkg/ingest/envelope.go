package ingest

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dukex/packflow/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

var envelopeSchema = gojsonschema.NewGoLoader(map[string]any{
	"type": "object",
	"properties": map[string]any{
		"id":      map[string]any{"type": "string", "minLength": 1},
		"type":    map[string]any{"type": "string", "minLength": 1},
		"data":    map[string]any{"type": "object"},
		"created": map[string]any{"type": "number"},
	},
	"required": []string{"id", "type"},
})

type envelope struct {
	ID   string         `json:"id"`
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// ParseEvent validates the raw event envelope and decodes it.
func ParseEvent(tenantID string, body []byte) (*models.Event, error) {
	result, err := gojsonschema.Validate(envelopeSchema, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return nil, &models.ValidationError{Path: "body", Message: "event body is not valid JSON", Err: err}
	}

	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, resultErr := range result.Errors() {
			messages = append(messages, resultErr.String())
		}

		return nil, models.NewValidationError("body", "invalid event envelope: %s", strings.Join(messages, "; "))
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &models.ValidationError{Path: "body", Message: "failed to decode event", Err: err}
	}

	if env.Data == nil {
		env.Data = map[string]any{}
	}

	return &models.Event{
		ID:       env.ID,
		Type:     env.Type,
		TenantID: tenantID,
		Payload:  env.Data,
	}, nil
}

// ledgerKey scopes provider event identifiers to their tenant.
func ledgerKey(tenantID, eventID string) string {
	return fmt.Sprintf("%s:%s", tenantID, eventID)
}
