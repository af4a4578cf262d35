// Package service provides the ExecuteServiceFunction action.
package service

import (
	"context"
	"fmt"

	"github.com/dukex/packflow/pkg/models"
	"github.com/dukex/packflow/pkg/protocol"
)

// Action invokes a named function of a named external service with
// interpolated arguments.
type Action struct {
	Service  string
	Function string
	Args     map[string]any
}

// NewAction creates an ExecuteServiceFunction action.
func NewAction(config map[string]any) (*Action, error) {
	service, _ := config["service"].(string)
	function, _ := config["function"].(string)

	if service == "" || function == "" {
		return nil, models.NewValidationError("service", "ExecuteServiceFunction requires service and function")
	}

	args, _ := config["args"].(map[string]any)

	return &Action{Service: service, Function: function, Args: args}, nil
}

// Execute calls the service; its return value becomes the result.
func (a *Action) Execute(ctx context.Context, executionCtx *models.ExecutionContext, deps protocol.Dependencies) (map[string]any, error) {
	if deps.Services == nil {
		return nil, fmt.Errorf("ExecuteServiceFunction: services %w", protocol.ErrCollaboratorUnavailable)
	}

	args, err := deps.Render(a.Args, executionCtx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to render args: %w", err)
	}

	deps.ActionLogger("ExecuteServiceFunction").DebugContext(ctx, "Invoking service function",
		"service", a.Service, "function", a.Function)

	value, err := deps.Services.Invoke(ctx, a.Service, a.Function, args)
	if err != nil {
		return nil, fmt.Errorf("%s.%s failed: %w", a.Service, a.Function, err)
	}

	return map[string]any{models.SubjectResult: value}, nil
}
