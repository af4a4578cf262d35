// Package ingest implements the event ingestion gateway: signature
// verification, envelope validation, deduplication and routing of inbound
// provider events to the trigger matcher.
package ingest

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Ledger records the identifiers of events already accepted.
type Ledger interface {
	// Claim records key and reports true when it was not present yet.
	Claim(ctx context.Context, key string) (bool, error)
	// Release forgets key so a redelivery is processed again.
	Release(ctx context.Context, key string) error
}

// DefaultLedgerTTL is how long an event identifier is remembered.
const DefaultLedgerTTL = 72 * time.Hour

// MemoryLedger is a bounded in-process ledger. Entries expire after the TTL
// and the least recently claimed entries are evicted beyond capacity.
type MemoryLedger struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	now      func() time.Time
	order    *list.List
	entries  map[string]*list.Element
}

type ledgerEntry struct {
	key     string
	expires time.Time
}

func NewMemoryLedger(capacity int, ttl time.Duration) *MemoryLedger {
	if capacity <= 0 {
		capacity = 100_000
	}

	if ttl <= 0 {
		ttl = DefaultLedgerTTL
	}

	return &MemoryLedger{
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
		order:    list.New(),
		entries:  map[string]*list.Element{},
	}
}

func (l *MemoryLedger) Claim(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	if el, ok := l.entries[key]; ok {
		if now.Before(el.Value.(*ledgerEntry).expires) {
			return false, nil
		}

		l.remove(el)
	}

	l.entries[key] = l.order.PushBack(&ledgerEntry{key: key, expires: now.Add(l.ttl)})

	for l.order.Len() > l.capacity {
		l.remove(l.order.Front())
	}

	return true, nil
}

func (l *MemoryLedger) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if el, ok := l.entries[key]; ok {
		l.remove(el)
	}

	return nil
}

// Len returns the number of remembered identifiers.
func (l *MemoryLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.order.Len()
}

func (l *MemoryLedger) remove(el *list.Element) {
	l.order.Remove(el)
	delete(l.entries, el.Value.(*ledgerEntry).key)
}
