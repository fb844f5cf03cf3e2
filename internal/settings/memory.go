package settings

import (
	"context"
	"strconv"
	"sync"
)

// MemoryStore keeps settings in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (m *MemoryStore) GetInt(_ context.Context, name string, def int) (int, error) {
	m.mu.RLock()
	raw, ok := m.values[name]
	m.mu.RUnlock()

	return parseStored(raw, ok, def), nil
}

func (m *MemoryStore) PutInt(_ context.Context, name string, value int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[name] = strconv.Itoa(value)
	return nil
}

// parseStored mirrors the platform settings contract: missing or malformed
// values read as the default.
func parseStored(raw string, ok bool, def int) int {
	if !ok {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
