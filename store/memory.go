package store

import (
	"context"
	"sync"
)

// MemoryStore keeps items in a process-local slice. Data is lost on restart.
// Safe for concurrent use.
type MemoryStore struct {
	mu    sync.RWMutex
	items []Item
	settings
}

func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{settings: newSettings(opts)}
}

func (m *MemoryStore) Create(_ context.Context, data map[string]any) (Item, error) {
	data, err := m.cast(data, true)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	it, err := newItem(nextID(m.items), data, m.clock.Now())
	if err != nil {
		return nil, err
	}
	m.items = append(m.items, it)
	return cloneItem(it)
}

func (m *MemoryStore) List(_ context.Context) ([]Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneItems(m.items)
}

func (m *MemoryStore) FindByID(_ context.Context, id string) (Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if i := indexOf(m.items, id); i >= 0 {
		return cloneItem(m.items[i])
	}
	return nil, nil
}

func (m *MemoryStore) Update(_ context.Context, id string, data map[string]any) (Item, error) {
	data, err := m.cast(data, false)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	i := indexOf(m.items, id)
	if i < 0 {
		return nil, ErrNotFound
	}
	it, err := mergeItem(m.items[i], data, m.clock.After(m.items[i].LastUpdate()))
	if err != nil {
		return nil, err
	}
	m.items[i] = it
	return cloneItem(it)
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = removeAt(m.items, indexOf(m.items, id))
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}

// indexOf returns the position of the first item matching id, or -1.
func indexOf(items []Item, id string) int {
	for i, it := range items {
		if sameID(it.ID(), id) {
			return i
		}
	}
	return -1
}

func removeAt(items []Item, i int) []Item {
	if i < 0 {
		return items
	}
	return append(items[:i:i], items[i+1:]...)
}
