package eventbus

import (
	"context"
	"errors"

	"github.com/dukex/packflow/pkg/events"
	"github.com/dukex/packflow/pkg/models"
	"github.com/dukex/packflow/pkg/protocol"
)

// OccurrenceBridge publishes data-mutation occurrences on the bus and feeds
// the ones it receives back to a callback, decoupling writers from the
// trigger matcher.
type OccurrenceBridge struct {
	bus EventBus
}

var _ protocol.OccurrenceSource = (*OccurrenceBridge)(nil)

func NewOccurrenceBridge(bus EventBus) *OccurrenceBridge {
	return &OccurrenceBridge{bus: bus}
}

// PublishOccurrence sends an occurrence keyed by its model.
func (b *OccurrenceBridge) PublishOccurrence(ctx context.Context, occurrence models.Occurrence) error {
	event := events.DataMutated{
		BaseEvent:  events.NewBaseEvent(events.DataMutatedEvent, "", ""),
		Occurrence: occurrence,
	}
	event.TenantID = occurrence.TenantID

	return b.bus.Publish(ctx, occurrence.Model, event)
}

// Start registers callback for data-mutation events. The bus must be
// subscribed after every handler is registered.
func (b *OccurrenceBridge) Start(_ context.Context, callback protocol.OccurrenceCallback) error {
	return b.bus.Handle(events.DataMutatedEvent, func(ctx context.Context, event any) error {
		mutated, ok := event.(*events.DataMutated)
		if !ok {
			return errors.New("unexpected event payload")
		}

		return callback(ctx, mutated.Occurrence)
	})
}

func (b *OccurrenceBridge) Stop(context.Context) error {
	return nil
}
