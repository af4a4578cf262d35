package log

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/dukex/packflow/pkg/models"
	"github.com/dukex/packflow/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAction(t *testing.T) {
	tests := []struct {
		name      string
		config    map[string]any
		wantLevel slog.Level
		wantErr   bool
	}{
		{name: "empty config", config: map[string]any{}, wantLevel: slog.LevelInfo},
		{name: "debug", config: map[string]any{"level": "debug"}, wantLevel: slog.LevelDebug},
		{name: "warn", config: map[string]any{"level": "warn"}, wantLevel: slog.LevelWarn},
		{name: "unknown", config: map[string]any{"level": "loud"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action, err := NewAction(tt.config)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, models.IsValidationError(err))

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantLevel, action.Level)
		})
	}
}

func TestLogAction_Execute(t *testing.T) {
	var buf bytes.Buffer

	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	action, err := NewActionFactory().Create(context.Background(), map[string]any{
		"message": "order {triggerData.order} ready",
		"level":   "warn",
		"fields":  map[string]any{"total": "{triggerData.total}"},
	})
	require.NoError(t, err)

	ec := models.NewExecutionContext("run-1", "wf-1", map[string]any{"order": "o-9", "total": 42.5}, nil)

	patch, err := action.Execute(context.Background(), ec, protocol.Dependencies{Logger: logger})
	require.NoError(t, err)
	assert.Equal(t, "order o-9 ready", patch["result"])

	out := buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, `msg="order o-9 ready"`)
	assert.Contains(t, out, "total=42.5")
	assert.Contains(t, out, "action_type=Log")
}
