package data

import (
	"context"

	"github.com/dukex/packflow/pkg/protocol"
)

// ActionFactory creates data actions of one operation.
type ActionFactory struct {
	op Operation
}

// NewActionFactory creates a factory for op.
func NewActionFactory(op Operation) *ActionFactory {
	return &ActionFactory{op: op}
}

// NewActionFactories returns a factory for every data operation.
func NewActionFactories() []*ActionFactory {
	return []*ActionFactory{
		NewActionFactory(OperationCreate),
		NewActionFactory(OperationUpdate),
		NewActionFactory(OperationDelete),
		NewActionFactory(OperationFind),
		NewActionFactory(OperationUpsert),
	}
}

// Create creates a new Action from the given configuration.
func (f *ActionFactory) Create(_ context.Context, config map[string]any) (protocol.Action, error) {
	return NewAction(f.op, config)
}

// ID returns the type tag of the operation.
func (f *ActionFactory) ID() string {
	return string(f.op)
}

// Name returns the name of the action.
func (f *ActionFactory) Name() string {
	switch f.op {
	case OperationCreate:
		return "Create Data"
	case OperationUpdate:
		return "Update Data"
	case OperationDelete:
		return "Delete Data"
	case OperationFind:
		return "Find Data"
	default:
		return "Upsert Data"
	}
}

// Description returns a brief description of the action.
func (f *ActionFactory) Description() string {
	switch f.op {
	case OperationCreate:
		return "Creates a record in a model. The record is returned as the result."
	case OperationUpdate:
		return "Applies a patch ($set, $inc, $unset or a plain merge) to every record matching the filter."
	case OperationDelete:
		return "Deletes every record matching the filter."
	case OperationFind:
		return "Finds records matching the filter, optionally sorted and limited."
	default:
		return "Replaces the first record matching the filter, or creates it."
	}
}

// Schema returns the JSON schema for configuring this action. Values may hold
// templates, so numeric options also accept strings.
func (f *ActionFactory) Schema() map[string]any {
	properties := map[string]any{
		"model": map[string]any{
			"type":        "string",
			"description": "Model (collection) the operation targets.",
			"examples":    []string{"contacts", "orders"},
		},
		"filter": map[string]any{
			"type":        "object",
			"description": "Selector in field-match form. Values support templating.",
			"examples": []map[string]any{
				{"_id": "{triggerData.record._id}"},
				{"status": "pending", "attempts": map[string]any{"$lt": 3}},
			},
		},
		"data": map[string]any{
			"type":        "object",
			"description": "Record or patch. Values support templating.",
		},
	}

	required := []string{"model"}

	switch f.op {
	case OperationFind:
		properties["limit"] = map[string]any{"type": []string{"integer", "string"}, "minimum": 0}
		properties["sort"] = map[string]any{"type": "string", "description": "Field to sort by; prefix with - for descending."}
		properties["one"] = map[string]any{"type": "boolean", "description": "Return the first match instead of a list."}
	case OperationCreate:
		required = append(required, "data")
	case OperationUpdate, OperationUpsert:
		required = append(required, "filter", "data")
	case OperationDelete:
		required = append(required, "filter")
	}

	return map[string]any{
		"type":                 "object",
		"properties":           properties,
		"required":             required,
		"additionalProperties": false,
	}
}
