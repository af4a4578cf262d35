package datastore

import (
	"context"
	"sync"
	"testing"

	"github.com/dukex/packflow/pkg/models"
	"github.com/dukex/packflow/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedContacts(t *testing.T, store *MemoryStore) {
	t.Helper()

	ctx := context.Background()
	contacts := []map[string]any{
		{"_id": "c1", "email": "a@example.com", "status": "pending", "score": 10, "tags": []any{"vip"}},
		{"_id": "c2", "email": "b@example.com", "status": "pending", "score": 30},
		{"_id": "c3", "email": "c@example.com", "status": "sent", "score": 20},
	}

	for _, c := range contacts {
		_, err := store.Create(ctx, "contacts", c)
		require.NoError(t, err)
	}
}

func TestMemoryStore_Find(t *testing.T) {
	store := NewMemoryStore()
	seedContacts(t, store)

	tests := []struct {
		name   string
		filter map[string]any
		opts   protocol.FindOptions
		want   []string
	}{
		{"all", nil, protocol.FindOptions{}, []string{"c1", "c2", "c3"}},
		{"equality", map[string]any{"status": "pending"}, protocol.FindOptions{}, []string{"c1", "c2"}},
		{"limit", map[string]any{"status": "pending"}, protocol.FindOptions{Limit: 1}, []string{"c1"}},
		{"gt", map[string]any{"score": map[string]any{"$gt": 15}}, protocol.FindOptions{}, []string{"c2", "c3"}},
		{"lte and ne", map[string]any{"score": map[string]any{"$lte": 20, "$ne": 10}}, protocol.FindOptions{}, []string{"c3"}},
		{"in", map[string]any{"_id": map[string]any{"$in": []any{"c1", "c3"}}}, protocol.FindOptions{}, []string{"c1", "c3"}},
		{"nin", map[string]any{"_id": map[string]any{"$nin": []any{"c1", "c3"}}}, protocol.FindOptions{}, []string{"c2"}},
		{"array contains", map[string]any{"tags": "vip"}, protocol.FindOptions{}, []string{"c1"}},
		{"exists", map[string]any{"tags": map[string]any{"$exists": false}}, protocol.FindOptions{}, []string{"c2", "c3"}},
		{"or", map[string]any{"$or": []any{map[string]any{"_id": "c1"}, map[string]any{"status": "sent"}}}, protocol.FindOptions{}, []string{"c1", "c3"}},
		{"sort desc", nil, protocol.FindOptions{Sort: "-score"}, []string{"c2", "c3", "c1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := store.Find(context.Background(), "contacts", tt.filter, tt.opts)
			require.NoError(t, err)

			ids := make([]string, 0, len(records))
			for _, r := range records {
				ids = append(ids, r["_id"].(string))
			}

			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestMemoryStore_FindUnsupportedOperator(t *testing.T) {
	store := NewMemoryStore()
	seedContacts(t, store)

	_, err := store.Find(context.Background(), "contacts", map[string]any{"email": map[string]any{"$regex": "a"}}, protocol.FindOptions{})
	assert.True(t, models.IsValidationError(err))
}

func TestMemoryStore_CreateAssignsIDAndRejectsDuplicates(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	record, err := store.Create(ctx, "orders", map[string]any{"total": 5})
	require.NoError(t, err)
	assert.NotEmpty(t, record["_id"])

	_, err = store.Create(ctx, "orders", map[string]any{"_id": record["_id"]})
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	seedContacts(t, store)
	ctx := context.Background()

	record, err := store.FindOne(ctx, "contacts", map[string]any{"_id": "c1"})
	require.NoError(t, err)

	record["status"] = "mutated"

	again, err := store.FindOne(ctx, "contacts", map[string]any{"_id": "c1"})
	require.NoError(t, err)
	assert.Equal(t, "pending", again["status"])

	missing, err := store.FindOne(ctx, "contacts", map[string]any{"_id": "nope"})
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryStore_UpdateDeleteUpsert(t *testing.T) {
	store := NewMemoryStore()
	seedContacts(t, store)
	ctx := context.Background()

	n, err := store.Update(ctx, "contacts", map[string]any{"status": "pending"}, map[string]any{"status": "sent"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = store.Update(ctx, "contacts", map[string]any{"_id": "c1"}, map[string]any{
		"$inc":   map[string]any{"score": 5},
		"$set":   map[string]any{"meta.lastSent": "today"},
		"$unset": map[string]any{"tags": true},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	c1, err := store.FindOne(ctx, "contacts", map[string]any{"_id": "c1"})
	require.NoError(t, err)
	assert.Equal(t, 15.0, c1["score"])
	assert.Equal(t, map[string]any{"lastSent": "today"}, c1["meta"])
	assert.NotContains(t, c1, "tags")

	n, err = store.Delete(ctx, "contacts", map[string]any{"score": map[string]any{"$gt": 25}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	created, err := store.Upsert(ctx, "contacts", map[string]any{"email": "d@example.com"}, map[string]any{"status": "new"})
	require.NoError(t, err)
	assert.Equal(t, "d@example.com", created["email"])

	replaced, err := store.Upsert(ctx, "contacts", map[string]any{"email": "d@example.com"}, map[string]any{"email": "d@example.com", "status": "old"})
	require.NoError(t, err)
	assert.Equal(t, created["_id"], replaced["_id"])

	all, err := store.Find(ctx, "contacts", nil, protocol.FindOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, []string{"contacts"}, store.Models())
}

func TestMemoryStore_ConcurrentIncrementsAreAtomic(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Create(ctx, "counters", map[string]any{"_id": "hits", "value": 0})
	require.NoError(t, err)

	var wg sync.WaitGroup

	for range 50 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, _ = store.Update(ctx, "counters", map[string]any{"_id": "hits"}, map[string]any{"$inc": map[string]any{"value": 1}})
		}()
	}

	wg.Wait()

	counter, err := store.FindOne(ctx, "counters", map[string]any{"_id": "hits"})
	require.NoError(t, err)
	assert.Equal(t, 50.0, counter["value"])
}
