package protocol

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukex/packflow/pkg/models"
	"github.com/dukex/packflow/pkg/template"
	"github.com/dukex/packflow/pkg/tenant"
)

// ErrCollaboratorUnavailable is returned by handlers whose collaborator is not configured.
var ErrCollaboratorUnavailable = errors.New("collaborator not configured")

// FindOptions narrows a Find call.
type FindOptions struct {
	Limit int
	Sort  string
}

// DataStore is the persistent data-store collaborator. Records are flat JSON
// objects identified by their "_id" field. Filters use the field-match form
// {"field": value} or {"field": {"$op": value}}.
type DataStore interface {
	// FindOne returns the first matching record, or nil when none matches.
	FindOne(ctx context.Context, model string, filter map[string]any) (map[string]any, error)
	Find(ctx context.Context, model string, filter map[string]any, opts FindOptions) ([]map[string]any, error)
	// Create stores doc, assigning an "_id" when absent, and returns the stored record.
	Create(ctx context.Context, model string, doc map[string]any) (map[string]any, error)
	// Update applies patch to every matching record atomically and returns how
	// many were changed. Patch may use "$set", "$inc" and "$unset".
	Update(ctx context.Context, model string, filter map[string]any, patch map[string]any) (int, error)
	Delete(ctx context.Context, model string, filter map[string]any) (int, error)
	// Upsert replaces the first matching record with doc or creates it.
	Upsert(ctx context.Context, model string, filter map[string]any, doc map[string]any) (map[string]any, error)
}

// Email is a single outbound message.
type Email struct {
	From    string `json:"from,omitempty"`
	To      string `json:"to"`
	ReplyTo string `json:"reply_to,omitempty"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	HTML    bool   `json:"html,omitempty"`
}

// Mailer delivers email.
type Mailer interface {
	Send(ctx context.Context, email Email) error
}

// HTTPDoer performs outbound HTTP calls. *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ScriptRunner runs user scripts in an isolated environment. The script sees
// the run context as input and may query the store through db.
type ScriptRunner interface {
	Run(ctx context.Context, source string, input map[string]any, db DataStore) (any, error)
}

// ServiceInvoker calls a named function on a named external service.
type ServiceInvoker interface {
	Invoke(ctx context.Context, service, function string, args map[string]any) (any, error)
}

// GenerationRequest describes a content generation call.
type GenerationRequest struct {
	Provider    string  `json:"provider"`
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	System      string  `json:"system,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// GenerationResult is the generated content.
type GenerationResult struct {
	Text     string         `json:"text"`
	Provider string         `json:"provider"`
	Model    string         `json:"model"`
	Usage    map[string]any `json:"usage,omitempty"`
}

// Generator produces content from a prompt.
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error)
}

// Dependencies carries the collaborators of one run. Tenant-scoped values are
// threaded through here rather than held in process-wide state.
type Dependencies struct {
	Logger       *slog.Logger
	Store        DataStore
	Mailer       Mailer
	HTTP         HTTPDoer
	Scripts      ScriptRunner
	Services     ServiceInvoker
	Generator    Generator
	Interpolator *template.Interpolator
	Tenant       *tenant.Tenant
}

// Render interpolates an action configuration against the run context. Extra
// keys are added to the evaluation subject, e.g. the current recipient.
func (d Dependencies) Render(config map[string]any, executionCtx *models.ExecutionContext, extra map[string]any) (map[string]any, error) {
	interpolator := d.Interpolator
	if interpolator == nil {
		interpolator = template.New(nil)
	}

	subject := executionCtx.Subject()
	for k, v := range extra {
		subject[k] = v
	}

	return interpolator.Map(config, subject)
}

// ActionLogger returns the run logger tagged with the action type.
func (d Dependencies) ActionLogger(actionType string) *slog.Logger {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return logger.With("action_type", actionType)
}
