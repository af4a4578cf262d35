// Package script provides the ExecuteScript action.
package script

import (
	"context"
	"fmt"

	"github.com/dukex/packflow/pkg/models"
	"github.com/dukex/packflow/pkg/protocol"
)

// Action hands its source to the configured script runner. The script sees the
// run subject as input and the run's data store as db.
type Action struct {
	Source string
}

// NewAction creates an ExecuteScript action.
func NewAction(config map[string]any) (*Action, error) {
	source, _ := config["script"].(string)
	if source == "" {
		return nil, models.NewValidationError("script", "ExecuteScript requires a script")
	}

	return &Action{Source: source}, nil
}

// Execute runs the script; its return value becomes the result.
func (a *Action) Execute(ctx context.Context, executionCtx *models.ExecutionContext, deps protocol.Dependencies) (map[string]any, error) {
	if deps.Scripts == nil {
		return nil, fmt.Errorf("ExecuteScript: script runner %w", protocol.ErrCollaboratorUnavailable)
	}

	deps.ActionLogger("ExecuteScript").DebugContext(ctx, "Running script", "bytes", len(a.Source))

	value, err := deps.Scripts.Run(ctx, a.Source, executionCtx.Subject(), deps.Store)
	if err != nil {
		return nil, fmt.Errorf("script failed: %w", err)
	}

	return map[string]any{models.SubjectResult: value}, nil
}
