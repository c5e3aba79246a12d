package progress

import (
	"context"
	"sync"
)

// MemoryStream is the in-process Stream used by tests and dev runs.
type MemoryStream struct {
	mu   sync.RWMutex
	rows map[string]Update
}

func NewMemoryStream() *MemoryStream {
	return &MemoryStream{rows: make(map[string]Update)}
}

func (m *MemoryStream) Set(ctx context.Context, u Update) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[u.ID] = u
	return nil
}

func (m *MemoryStream) Get(ctx context.Context, jobID string) (Update, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.rows[jobID]
	if !ok {
		return Update{}, ErrNotFound
	}
	return u, nil
}
