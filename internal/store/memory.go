package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps reports in process memory. Suitable for tests and
// single-node runs without a database.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

func (m *MemoryStore) Put(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	m.records[rec.ReportID] = rec
	return nil
}

func (m *MemoryStore) Get(_ context.Context, reportID string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[reportID]
	if !ok {
		return nil, ErrNotFound
	}
	return rec, nil
}

func (m *MemoryStore) List(_ context.Context, limit int) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Record, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) Delete(_ context.Context, reportID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[reportID]; !ok {
		return ErrNotFound
	}
	delete(m.records, reportID)
	return nil
}

func (m *MemoryStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, rec := range m.records {
		if rec.CreatedAt.Before(cutoff) {
			delete(m.records, id)
			n++
		}
	}
	return n, nil
}
