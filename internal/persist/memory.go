package persist

import (
	"context"
	"sort"
	"sync"

	"github.com/syntrixbase/kinsync/pkg/model"
)

// Memory keeps collections in process memory. Documents are copied on the way
// in and out, so callers never share maps with the store.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]model.Document
}

// NewMemory returns an empty in-memory persister.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]model.Document)}
}

// Read returns a copy of the documents under key, or nil when key is unknown.
func (m *Memory) Read(_ context.Context, key string) ([]model.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	docs, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	return model.CloneAll(docs), nil
}

// Write stores a copy of docs under key, replacing what was there.
func (m *Memory) Write(_ context.Context, key string, docs []model.Document) ([]model.Document, error) {
	stored := model.CloneAll(docs)
	if stored == nil {
		stored = []model.Document{}
	}
	m.mu.Lock()
	m.data[key] = stored
	m.mu.Unlock()
	return model.CloneAll(stored), nil
}

// Delete forgets key.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

// Keys returns the stored keys in sorted order.
func (m *Memory) Keys(context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Close is a no-op; the data goes with the process.
func (m *Memory) Close() error { return nil }
