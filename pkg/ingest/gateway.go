package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/packflow/pkg/eventbus"
	"github.com/dukex/packflow/pkg/events"
	"github.com/dukex/packflow/pkg/models"
	"github.com/dukex/packflow/pkg/tenant"
)

var (
	// ErrTenantMisconfigured is returned when a tenant has no usable signing secret.
	ErrTenantMisconfigured = errors.New("tenant signing secret not configured")
	// ErrEventInFlight is returned for a redelivery that arrives while an
	// earlier delivery of the same event is still being routed. It is not a
	// client error, so the provider retries.
	ErrEventInFlight = errors.New("event is still being routed")
)

// Router hands an accepted event to the trigger matcher and starts the runs
// it matches.
type Router interface {
	Dispatch(ctx context.Context, occurrence models.Occurrence) ([]*models.WorkflowRun, error)
}

// HeaderFunc returns the value of a request header.
type HeaderFunc func(name string) string

// Result describes the outcome of an accepted delivery.
type Result struct {
	EventID   string
	EventType string
	Duplicate bool
	Runs      int
}

// Gateway authenticates, deduplicates and routes inbound events.
type Gateway struct {
	logger    *slog.Logger
	tenants   *tenant.Directory
	ledger    Ledger
	router    Router
	publisher eventbus.EventPublisher
	now       func() time.Time

	// inflight holds the ledger keys this gateway is routing right now.
	inflight sync.Map
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithPublisher announces accepted events on the bus.
func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(g *Gateway) {
		g.publisher = publisher
	}
}

func NewGateway(logger *slog.Logger, tenants *tenant.Directory, ledger Ledger, router Router, opts ...Option) *Gateway {
	g := &Gateway{
		logger:  logger.With("module", "ingest_gateway"),
		tenants: tenants,
		ledger:  ledger,
		router:  router,
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// Ingest processes one delivery. body must be the raw request body exactly
// as received. A rejected delivery has no side effects. Redelivery of an
// accepted event is acknowledged without starting runs, while a redelivery
// racing the first one's routing fails with ErrEventInFlight. When routing
// fails the event is released from the ledger so the provider's retry is
// processed.
func (g *Gateway) Ingest(ctx context.Context, tenantID string, body []byte, header HeaderFunc) (*Result, error) {
	logger := g.logger.With("tenant_id", tenantID)

	t, err := g.tenants.Get(tenantID)
	if err != nil {
		logger.WarnContext(ctx, "Event for unknown tenant rejected")

		return nil, &models.SignatureVerificationError{TenantID: tenantID, Reason: "unknown tenant"}
	}

	secret, err := t.SigningSecret()
	if err != nil {
		logger.ErrorContext(ctx, "Tenant has no usable signing secret", "error", err)

		return nil, fmt.Errorf("%w: tenant %s: %v", ErrTenantMisconfigured, tenantID, err)
	}

	if !Verify(secret, body, header(t.Header())) {
		logger.WarnContext(ctx, "Event signature rejected", "header", t.Header())

		return nil, &models.SignatureVerificationError{TenantID: tenantID, Reason: "signature mismatch"}
	}

	event, err := ParseEvent(tenantID, body)
	if err != nil {
		logger.WarnContext(ctx, "Malformed event rejected", "error", err)

		return nil, err
	}

	event.ReceivedAt = g.now().UTC()
	logger = logger.With("event_id", event.ID, "event_type", event.Type)
	result := &Result{EventID: event.ID, EventType: event.Type}

	key := ledgerKey(tenantID, event.ID)

	if _, busy := g.inflight.LoadOrStore(key, struct{}{}); busy {
		logger.WarnContext(ctx, "Redelivery while event is still being routed")

		return nil, ErrEventInFlight
	}
	defer g.inflight.Delete(key)

	claimed, err := g.ledger.Claim(ctx, key)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to record event", "error", err)

		return nil, err
	}

	if !claimed {
		logger.InfoContext(ctx, "Duplicate event acknowledged")

		result.Duplicate = true

		return result, nil
	}

	runs, err := g.router.Dispatch(ctx, models.EventOccurrence(event))
	if err != nil {
		if releaseErr := g.ledger.Release(context.WithoutCancel(ctx), key); releaseErr != nil {
			err = errors.Join(err, releaseErr)
		}

		logger.ErrorContext(ctx, "Failed to route event", "error", err)

		return nil, err
	}

	result.Runs = len(runs)

	logger.InfoContext(ctx, "Event accepted", "runs", result.Runs)

	g.announce(ctx, event, result)

	return result, nil
}

func (g *Gateway) announce(ctx context.Context, event *models.Event, result *Result) {
	if g.publisher == nil {
		return
	}

	accepted := events.EventAccepted{
		BaseEvent: events.NewBaseEvent(events.EventAcceptedEvent, "", ""),
		EventID:   event.ID,
		EventType: event.Type,
		Runs:      result.Runs,
	}
	accepted.TenantID = event.TenantID

	if err := g.publisher.Publish(ctx, event.Type, accepted); err != nil {
		g.logger.WarnContext(ctx, "Failed to publish accepted event", "event_id", event.ID, "error", err)
	}
}

// IsClientError reports whether err was caused by the delivery itself rather
// than by an internal fault.
func IsClientError(err error) bool {
	return errors.Is(err, models.ErrSignatureVerification) || models.IsValidationError(err)
}
