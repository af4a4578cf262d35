package datastore

import (
	"context"
	"log/slog"

	"github.com/dukex/packflow/pkg/models"
	"github.com/dukex/packflow/pkg/protocol"
	"github.com/dukex/packflow/pkg/tenant"
)

// OccurrencePublisher delivers occurrences to the trigger matcher, usually
// through the event bus.
type OccurrencePublisher interface {
	PublishOccurrence(ctx context.Context, occurrence models.Occurrence) error
}

// NotifyingStore wraps a DataStore and reports every successful write as a
// data_added, data_edited or data_deleted occurrence for the tenant carried by
// the write's context. Publishing failures are logged; the write itself has
// already happened.
type NotifyingStore struct {
	protocol.DataStore

	publisher OccurrencePublisher
	logger    *slog.Logger
}

// NewNotifyingStore decorates store.
func NewNotifyingStore(store protocol.DataStore, publisher OccurrencePublisher, logger *slog.Logger) *NotifyingStore {
	return &NotifyingStore{
		DataStore: store,
		publisher: publisher,
		logger:    logger.With("module", "notifying_datastore"),
	}
}

func (s *NotifyingStore) notify(ctx context.Context, kind models.OnEvent, model string, records ...map[string]any) {
	tenantID := tenant.IDFromContext(ctx)

	for _, record := range records {
		err := s.publisher.PublishOccurrence(ctx, models.Occurrence{Kind: kind, Model: model, Record: record, TenantID: tenantID})
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to publish data occurrence",
				"kind", kind, "model", model, "record_id", recordID(record), "error", err)
		}
	}
}

func (s *NotifyingStore) Create(ctx context.Context, model string, doc map[string]any) (map[string]any, error) {
	record, err := s.DataStore.Create(ctx, model, doc)
	if err != nil {
		return nil, err
	}

	s.notify(ctx, models.OnDataAdded, model, record)

	return record, nil
}

func (s *NotifyingStore) Update(ctx context.Context, model string, filter map[string]any, patch map[string]any) (int, error) {
	before, err := s.DataStore.Find(ctx, model, filter, protocol.FindOptions{})
	if err != nil {
		return 0, err
	}

	updated, err := s.DataStore.Update(ctx, model, filter, patch)
	if err != nil {
		return updated, err
	}

	for _, record := range before {
		current, err := s.DataStore.FindOne(ctx, model, map[string]any{IDField: record[IDField]})
		if err != nil || current == nil {
			continue
		}

		s.notify(ctx, models.OnDataEdited, model, current)
	}

	return updated, nil
}

func (s *NotifyingStore) Delete(ctx context.Context, model string, filter map[string]any) (int, error) {
	before, err := s.DataStore.Find(ctx, model, filter, protocol.FindOptions{})
	if err != nil {
		return 0, err
	}

	deleted, err := s.DataStore.Delete(ctx, model, filter)
	if err != nil {
		return deleted, err
	}

	s.notify(ctx, models.OnDataDeleted, model, before...)

	return deleted, nil
}

func (s *NotifyingStore) Upsert(ctx context.Context, model string, filter map[string]any, doc map[string]any) (map[string]any, error) {
	existing, err := s.DataStore.FindOne(ctx, model, filter)
	if err != nil {
		return nil, err
	}

	record, err := s.DataStore.Upsert(ctx, model, filter, doc)
	if err != nil {
		return nil, err
	}

	kind := models.OnDataAdded
	if existing != nil {
		kind = models.OnDataEdited
	}

	s.notify(ctx, kind, model, record)

	return record, nil
}
