package settings

import (
	"context"
	"sync"

	"overlaysync/internal/domain"
)

// MemoryStore keeps settings for the life of the process.
type MemoryStore struct {
	mu    sync.Mutex
	value domain.Settings
	saved bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load(context.Context) (domain.Settings, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return clone(m.value), m.saved, nil
}

func (m *MemoryStore) Save(_ context.Context, s domain.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.value = clone(s)
	m.saved = true
	return nil
}
