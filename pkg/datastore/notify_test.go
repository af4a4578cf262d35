package datastore

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/dukex/packflow/pkg/models"
	"github.com/dukex/packflow/pkg/tenant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	occurrences []models.Occurrence
	err         error
}

func (p *recordingPublisher) PublishOccurrence(_ context.Context, occurrence models.Occurrence) error {
	p.occurrences = append(p.occurrences, occurrence)

	return p.err
}

func kinds(occurrences []models.Occurrence) []models.OnEvent {
	out := make([]models.OnEvent, 0, len(occurrences))
	for _, o := range occurrences {
		out = append(out, o.Kind)
	}

	return out
}

func TestNotifyingStore_EmitsOccurrences(t *testing.T) {
	publisher := &recordingPublisher{}
	store := NewNotifyingStore(NewMemoryStore(), publisher, slog.Default())
	ctx := context.Background()

	_, err := store.Create(ctx, "orders", map[string]any{"_id": "o1", "status": "new"})
	require.NoError(t, err)

	_, err = store.Update(ctx, "orders", map[string]any{"_id": "o1"}, map[string]any{"status": "paid"})
	require.NoError(t, err)

	_, err = store.Upsert(ctx, "orders", map[string]any{"_id": "o2"}, map[string]any{"status": "new"})
	require.NoError(t, err)

	_, err = store.Delete(ctx, "orders", map[string]any{"_id": "o1"})
	require.NoError(t, err)

	assert.Equal(t, []models.OnEvent{
		models.OnDataAdded, models.OnDataEdited, models.OnDataAdded, models.OnDataDeleted,
	}, kinds(publisher.occurrences))

	edited := publisher.occurrences[1]
	assert.Equal(t, "orders", edited.Model)
	assert.Equal(t, "paid", edited.Record["status"])
}

func TestNotifyingStore_PublishFailureDoesNotFailWrite(t *testing.T) {
	publisher := &recordingPublisher{err: errors.New("bus down")}
	store := NewNotifyingStore(NewMemoryStore(), publisher, slog.Default())

	record, err := store.Create(context.Background(), "orders", map[string]any{"status": "new"})
	require.NoError(t, err)
	assert.NotEmpty(t, record["_id"])
}

func TestNotifyingStore_CarriesTenantOfWrite(t *testing.T) {
	publisher := &recordingPublisher{}
	store := NewNotifyingStore(NewMemoryStore(), publisher, slog.Default())

	_, err := store.Create(tenant.WithID(context.Background(), "acme"), "orders", map[string]any{"_id": "o1"})
	require.NoError(t, err)

	_, err = store.Create(context.Background(), "orders", map[string]any{"_id": "o2"})
	require.NoError(t, err)

	require.Len(t, publisher.occurrences, 2)
	assert.Equal(t, "acme", publisher.occurrences[0].TenantID)
	assert.Empty(t, publisher.occurrences[1].TenantID)
}
