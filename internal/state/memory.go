package state

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryStore is an in-process Store used by tests and single-node dev
// runs. With WrapValues set it stores every value inside a {"data": ...}
// envelope, which exercises the Unwrap path the same way the envelope
// backends do.
type MemoryStore struct {
	mu         sync.RWMutex
	groups     map[string]map[string]json.RawMessage
	WrapValues bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{groups: make(map[string]map[string]json.RawMessage)}
}

func (s *MemoryStore) Get(ctx context.Context, group, key string) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[group]
	if !ok {
		return nil, ErrNotFound
	}
	v, ok := g[key]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

func (s *MemoryStore) Set(ctx context.Context, group, key string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("state set %s/%s: encode: %w", group, key, err)
	}
	if s.WrapValues {
		b, err = json.Marshal(map[string]json.RawMessage{"data": b})
		if err != nil {
			return fmt.Errorf("state set %s/%s: wrap: %w", group, key, err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[group]
	if !ok {
		g = make(map[string]json.RawMessage)
		s.groups[group] = g
	}
	g[key] = b
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, group, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.groups[group]; ok {
		delete(g, key)
	}
	return nil
}

func (s *MemoryStore) ListGroup(ctx context.Context, group string) (map[string]json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]json.RawMessage, len(s.groups[group]))
	for k, v := range s.groups[group] {
		out[k] = v
	}
	return out, nil
}
