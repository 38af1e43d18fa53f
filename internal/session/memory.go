package session

import "sync"

// MemoryPersister keeps the token for the life of the process.
type MemoryPersister struct {
	mu    sync.Mutex
	token string
}

func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{}
}

func (m *MemoryPersister) Load() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, nil
}

func (m *MemoryPersister) Save(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	return nil
}

func (m *MemoryPersister) Clear() error {
	return m.Save("")
}
