// Package protocol defines the contracts between the engine and its pluggable
// parts: action handlers and the collaborators they call out to.
package protocol

import (
	"context"

	"github.com/dukex/packflow/pkg/models"
)

// Action is a configured handler ready to run inside a step. It returns the
// patch merged into the run's context; "result" is the conventional key.
type Action interface {
	Execute(ctx context.Context, executionCtx *models.ExecutionContext, deps Dependencies) (map[string]any, error)
}

// ActionFactory creates actions of one type tag. Create runs while a workflow
// is compiled, so configuration errors surface before any run starts.
type ActionFactory interface {
	// Create builds an action from its raw, not yet interpolated configuration.
	Create(ctx context.Context, config map[string]any) (Action, error)

	// ID returns the type tag this factory is registered under.
	ID() string

	// Name returns a human-readable name for the action type.
	Name() string

	// Description returns a short description of what the action does.
	Description() string

	// Schema returns the JSON schema the raw configuration must satisfy.
	Schema() map[string]any
}
