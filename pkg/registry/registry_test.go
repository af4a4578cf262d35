package registry

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/dukex/packflow/pkg/models"
	"github.com/dukex/packflow/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoAction struct {
	message string
}

func (a *echoAction) Execute(context.Context, *models.ExecutionContext, protocol.Dependencies) (map[string]any, error) {
	return map[string]any{"result": a.message}, nil
}

type echoFactory struct {
	createErr error
}

func (f *echoFactory) ID() string          { return "Echo" }
func (f *echoFactory) Name() string        { return "Echo" }
func (f *echoFactory) Description() string { return "Returns its message." }

func (f *echoFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{"type": "string"},
		},
		"required": []string{"message"},
	}
}

func (f *echoFactory) Create(_ context.Context, config map[string]any) (protocol.Action, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}

	message, _ := config["message"].(string)

	return &echoAction{message: message}, nil
}

func TestRegistry_RegisterAndCreateAction(t *testing.T) {
	reg := NewRegistry(slog.Default())
	reg.RegisterAction(&echoFactory{})

	action, err := reg.CreateAction(context.Background(), "Echo", map[string]any{"message": "hi"})
	require.NoError(t, err)

	patch, err := action.Execute(context.Background(), nil, protocol.Dependencies{})
	require.NoError(t, err)
	assert.Equal(t, "hi", patch["result"])
	assert.Equal(t, []string{"Echo"}, reg.ActionTypes())
}

func TestRegistry_CreateAction_Errors(t *testing.T) {
	reg := NewRegistry(slog.Default())
	reg.RegisterAction(&echoFactory{})

	tests := []struct {
		name       string
		actionType string
		config     map[string]any
	}{
		{name: "unknown type", actionType: "Teleport", config: map[string]any{}},
		{name: "missing required field", actionType: "Echo", config: map[string]any{}},
		{name: "wrong field type", actionType: "Echo", config: map[string]any{"message": 42}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reg.CreateAction(context.Background(), tt.actionType, tt.config)
			require.Error(t, err)
			assert.True(t, models.IsValidationError(err))
		})
	}
}

func TestRegistry_CreateAction_FactoryError(t *testing.T) {
	reg := NewRegistry(slog.Default())
	reg.RegisterAction(&echoFactory{createErr: errors.New("boom")})

	_, err := reg.CreateAction(context.Background(), "Echo", map[string]any{"message": "x"})
	require.Error(t, err)
	assert.True(t, models.IsValidationError(err))
	assert.Contains(t, err.Error(), "boom")
}

func TestRegistry_LoadActionPlugins_MissingDirectory(t *testing.T) {
	reg := NewRegistry(slog.Default())

	plugins, err := reg.LoadActionPlugins(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, plugins)
}
