package datastore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dukex/packflow/pkg/protocol"
	"github.com/google/uuid"
)

// ErrDuplicateID is returned when a record is created with an identifier already in use.
var ErrDuplicateID = errors.New("duplicate record identifier")

// MemoryStore keeps records in process memory, in insertion order. Every
// mutation runs under one lock, so Update with "$inc" is atomic.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string][]map[string]any
}

var _ protocol.DataStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: map[string][]map[string]any{}}
}

func (s *MemoryStore) FindOne(ctx context.Context, model string, filter map[string]any) (map[string]any, error) {
	records, err := s.Find(ctx, model, filter, protocol.FindOptions{Limit: 1})
	if err != nil || len(records) == 0 {
		return nil, err
	}

	return records[0], nil
}

func (s *MemoryStore) Find(_ context.Context, model string, filter map[string]any, opts protocol.FindOptions) ([]map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []map[string]any

	for _, record := range s.collections[model] {
		ok, err := Match(record, filter)
		if err != nil {
			return nil, err
		}

		if ok {
			matched = append(matched, cloneDoc(record))
		}
	}

	sortRecords(matched, opts.Sort)

	if opts.Limit > 0 && len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
	}

	return matched, nil
}

func (s *MemoryStore) Create(_ context.Context, model string, doc map[string]any) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.insert(model, doc)
}

func (s *MemoryStore) insert(model string, doc map[string]any) (map[string]any, error) {
	record := cloneDoc(doc)

	id := recordID(record)
	if id == "" {
		id = uuid.NewString()
	}

	record[IDField] = id

	for _, existing := range s.collections[model] {
		if recordID(existing) == id {
			return nil, fmt.Errorf("%w: %s/%s", ErrDuplicateID, model, id)
		}
	}

	s.collections[model] = append(s.collections[model], record)

	return cloneDoc(record), nil
}

func (s *MemoryStore) Update(_ context.Context, model string, filter map[string]any, patch map[string]any) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.collections[model]
	updated := 0

	for i, record := range records {
		ok, err := Match(record, filter)
		if err != nil {
			return updated, err
		}

		if !ok {
			continue
		}

		next, err := ApplyPatch(record, patch)
		if err != nil {
			return updated, err
		}

		records[i] = next
		updated++
	}

	return updated, nil
}

func (s *MemoryStore) Delete(_ context.Context, model string, filter map[string]any) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.collections[model]
	kept := make([]map[string]any, 0, len(records))
	deleted := 0

	for _, record := range records {
		ok, err := Match(record, filter)
		if err != nil {
			return 0, err
		}

		if ok {
			deleted++

			continue
		}

		kept = append(kept, record)
	}

	s.collections[model] = kept

	return deleted, nil
}

func (s *MemoryStore) Upsert(_ context.Context, model string, filter map[string]any, doc map[string]any) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.collections[model]

	for i, record := range records {
		ok, err := Match(record, filter)
		if err != nil {
			return nil, err
		}

		if !ok {
			continue
		}

		replacement := cloneDoc(doc)
		replacement[IDField] = record[IDField]
		records[i] = replacement

		return cloneDoc(replacement), nil
	}

	seeded := equalityPart(filter)
	for k, v := range doc {
		seeded[k] = v
	}

	return s.insert(model, seeded)
}

// Models lists the collections that hold at least one record.
func (s *MemoryStore) Models() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.collections))
	for name, records := range s.collections {
		if len(records) > 0 {
			names = append(names, name)
		}
	}

	sort.Strings(names)

	return names
}
