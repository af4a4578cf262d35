// Package data provides the data-store actions: CreateData, UpdateData,
// DeleteData, FindData and UpsertData.
package data

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dukex/packflow/pkg/expression"
	"github.com/dukex/packflow/pkg/models"
	"github.com/dukex/packflow/pkg/protocol"
)

// Operation selects the data-store call an action makes.
type Operation string

const (
	OperationCreate Operation = "CreateData"
	OperationUpdate Operation = "UpdateData"
	OperationDelete Operation = "DeleteData"
	OperationFind   Operation = "FindData"
	OperationUpsert Operation = "UpsertData"
)

var (
	// ErrModelMissing is returned when the rendered configuration names no model.
	ErrModelMissing = errors.New("model is required")
	// ErrFilterMissing is returned when a mutating action has no selector.
	ErrFilterMissing = errors.New("filter is required")
)

// Action performs one data-store operation. Model, filter, data and options are
// interpolated against the run context on every execution.
type Action struct {
	Operation Operation
	Config    map[string]any
}

// NewAction creates a data action.
func NewAction(op Operation, config map[string]any) (*Action, error) {
	if model, ok := config["model"].(string); !ok || model == "" {
		return nil, models.NewValidationError("model", "%s requires a model", op)
	}

	if op == OperationUpdate || op == OperationDelete || op == OperationUpsert {
		if _, ok := config["filter"]; !ok {
			return nil, models.NewValidationError("filter", "%s requires a filter", op)
		}
	}

	return &Action{Operation: op, Config: config}, nil
}

// Execute runs the operation and returns {"result": ...}.
func (a *Action) Execute(ctx context.Context, executionCtx *models.ExecutionContext, deps protocol.Dependencies) (map[string]any, error) {
	logger := deps.ActionLogger(string(a.Operation))

	if deps.Store == nil {
		return nil, fmt.Errorf("%s: data store %w", a.Operation, protocol.ErrCollaboratorUnavailable)
	}

	config, err := deps.Render(a.Config, executionCtx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to render config: %w", err)
	}

	model, _ := config["model"].(string)
	if strings.TrimSpace(model) == "" {
		return nil, ErrModelMissing
	}

	filter, _ := config["filter"].(map[string]any)
	doc, _ := config["data"].(map[string]any)

	logger.DebugContext(ctx, "Executing data action", "model", model)

	var result any

	switch a.Operation {
	case OperationCreate:
		result, err = deps.Store.Create(ctx, model, doc)
	case OperationUpdate:
		if filter == nil {
			return nil, ErrFilterMissing
		}

		var updated int

		updated, err = deps.Store.Update(ctx, model, filter, doc)
		result = map[string]any{"updated": updated}
	case OperationDelete:
		if filter == nil {
			return nil, ErrFilterMissing
		}

		var deleted int

		deleted, err = deps.Store.Delete(ctx, model, filter)
		result = map[string]any{"deleted": deleted}
	case OperationUpsert:
		if filter == nil {
			return nil, ErrFilterMissing
		}

		result, err = deps.Store.Upsert(ctx, model, filter, doc)
	case OperationFind:
		result, err = a.find(ctx, deps.Store, model, filter, config)
	default:
		return nil, fmt.Errorf("unsupported data operation %q", a.Operation)
	}

	if err != nil {
		return nil, fmt.Errorf("%s on %s failed: %w", a.Operation, model, err)
	}

	return map[string]any{models.SubjectResult: result}, nil
}

func (a *Action) find(ctx context.Context, store protocol.DataStore, model string, filter, config map[string]any) (any, error) {
	if one, _ := config["one"].(bool); one {
		record, err := store.FindOne(ctx, model, filter)
		if err != nil || record == nil {
			return nil, err
		}

		return record, nil
	}

	opts := protocol.FindOptions{}
	opts.Sort, _ = config["sort"].(string)

	if raw, ok := config["limit"]; ok && raw != nil {
		limit, ok := expression.ToFloat(raw)
		if !ok || limit < 0 {
			return nil, models.NewValidationError("limit", "limit must be a non-negative number, got %v", raw)
		}

		opts.Limit = int(limit)
	}

	records, err := store.Find(ctx, model, filter, opts)
	if err != nil {
		return nil, err
	}

	out := make([]any, len(records))
	for i, record := range records {
		out[i] = record
	}

	return out, nil
}
