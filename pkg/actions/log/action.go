package log

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dukex/packflow/pkg/models"
	"github.com/dukex/packflow/pkg/protocol"
	"github.com/dukex/packflow/pkg/template"
)

// Action writes an interpolated message, with optional fields, to the run logger.
type Action struct {
	Message string
	Level   slog.Level
	Fields  map[string]any
}

// NewAction creates a Log action. Level defaults to info.
func NewAction(config map[string]any) (*Action, error) {
	message, _ := config["message"].(string)
	fields, _ := config["fields"].(map[string]any)

	level := slog.LevelInfo

	if raw, _ := config["level"].(string); raw != "" {
		if err := level.UnmarshalText([]byte(strings.ToUpper(raw))); err != nil {
			return nil, models.NewValidationError("level", "unknown log level %q", raw)
		}
	}

	return &Action{Message: message, Level: level, Fields: fields}, nil
}

// Execute logs the message and returns it as the result.
func (a *Action) Execute(ctx context.Context, executionCtx *models.ExecutionContext, deps protocol.Dependencies) (map[string]any, error) {
	rendered, err := deps.Render(map[string]any{"message": a.Message, "fields": a.Fields}, executionCtx, nil)
	if err != nil {
		return nil, err
	}

	message := template.Stringify(rendered["message"])

	fields, _ := rendered["fields"].(map[string]any)
	attrs := make([]any, 0, len(fields)*2)

	for k, v := range fields {
		attrs = append(attrs, k, v)
	}

	deps.ActionLogger("Log").Log(ctx, a.Level, message, attrs...)

	return map[string]any{models.SubjectResult: message}, nil
}
