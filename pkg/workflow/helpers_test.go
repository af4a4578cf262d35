package workflow

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/dukex/packflow/pkg/actions/data"
	"github.com/dukex/packflow/pkg/expression"
	"github.com/dukex/packflow/pkg/models"
	"github.com/dukex/packflow/pkg/protocol"
	"github.com/dukex/packflow/pkg/registry"
	"github.com/dukex/packflow/pkg/tenant"
	"github.com/stretchr/testify/require"
)

type actionFunc func(ctx context.Context, ec *models.ExecutionContext, deps protocol.Dependencies) (map[string]any, error)

func (f actionFunc) Execute(ctx context.Context, ec *models.ExecutionContext, deps protocol.Dependencies) (map[string]any, error) {
	return f(ctx, ec, deps)
}

// funcFactory registers a Go function as an action type.
type funcFactory struct {
	id string
	fn actionFunc
}

func (f *funcFactory) Create(context.Context, map[string]any) (protocol.Action, error) {
	return f.fn, nil
}

func (f *funcFactory) ID() string             { return f.id }
func (f *funcFactory) Name() string           { return f.id }
func (f *funcFactory) Description() string    { return "test action" }
func (f *funcFactory) Schema() map[string]any { return map[string]any{"type": "object"} }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRegistry(factories ...protocol.ActionFactory) *registry.Registry {
	reg := registry.NewRegistry(discardLogger())

	for _, factory := range data.NewActionFactories() {
		reg.RegisterAction(factory)
	}

	for _, factory := range factories {
		reg.RegisterAction(factory)
	}

	return reg
}

func compile(t *testing.T, wf *models.Workflow, reg *registry.Registry) *Plan {
	t.Helper()

	plan, err := Compile(context.Background(), wf, reg)
	require.NoError(t, err)

	return plan
}

func newExecutor(deps protocol.Dependencies, opts ...ExecutorOption) *Executor {
	return NewExecutor(discardLogger(), expression.New(), deps, opts...)
}

func execute(t *testing.T, e *Executor, plan *Plan, triggerData map[string]any) (*models.WorkflowRun, error) {
	t.Helper()

	run := e.NewRun(plan, "t-1", "", triggerData)

	return run, e.Execute(context.Background(), plan, run)
}

func newTenants(t *testing.T) *tenant.Directory {
	t.Helper()

	dir, err := tenant.NewDirectory(&tenant.Tenant{
		ID:                "acme",
		WebhookSecretName: "WEBHOOK_SECRET",
		Values:            map[string]string{"COMPANY": "Acme", "WEBHOOK_SECRET": "s3cret"},
	})
	require.NoError(t, err)

	return dir
}
