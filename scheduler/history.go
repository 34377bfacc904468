package scheduler

import (
	"context"
	"sync"
)

const DefaultHistoryCapacity = 256

// HistoryStore keeps ExecutionRecords for observability.
type HistoryStore interface {
	Record(ctx context.Context, rec ExecutionRecord) error
	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]ExecutionRecord, error)
}

// MemoryHistory is a fixed-size ring of the latest records.
type MemoryHistory struct {
	mu    sync.Mutex
	ring  []ExecutionRecord
	next  int
	count int
}

func NewMemoryHistory(capacity int) *MemoryHistory {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &MemoryHistory{ring: make([]ExecutionRecord, capacity)}
}

func (h *MemoryHistory) Record(_ context.Context, rec ExecutionRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ring[h.next] = rec
	h.next = (h.next + 1) % len(h.ring)
	if h.count < len(h.ring) {
		h.count++
	}
	return nil
}

func (h *MemoryHistory) Recent(_ context.Context, limit int) ([]ExecutionRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if limit <= 0 || limit > h.count {
		limit = h.count
	}
	out := make([]ExecutionRecord, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (h.next - i + len(h.ring)) % len(h.ring)
		out = append(out, h.ring[idx])
	}
	return out, nil
}

// TeeHistory records into every store and reads from the first one.
type TeeHistory struct {
	stores []HistoryStore
}

func NewTeeHistory(primary HistoryStore, mirrors ...HistoryStore) *TeeHistory {
	return &TeeHistory{stores: append([]HistoryStore{primary}, mirrors...)}
}

func (t *TeeHistory) Record(ctx context.Context, rec ExecutionRecord) error {
	var first error
	for _, s := range t.stores {
		if err := s.Record(ctx, rec); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (t *TeeHistory) Recent(ctx context.Context, limit int) ([]ExecutionRecord, error) {
	return t.stores[0].Recent(ctx, limit)
}
