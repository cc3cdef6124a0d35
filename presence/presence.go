// Package presence tracks which users currently hold an open real-time connection.
package presence

import (
	"context"
	"sort"
	"sync"
)

// Store is the set of online user ids. Callers add a user when its first local
// connection opens and remove it when the last one closes.
type Store interface {
	Add(ctx context.Context, userID string) error
	Remove(ctx context.Context, userID string) error
	Has(ctx context.Context, userID string) (bool, error)
	// Status reports membership for every requested id, unknown ids as false.
	Status(ctx context.Context, userIDs []string) (map[string]bool, error)
	Online(ctx context.Context) ([]string, error)
}

// Memory is a process-local Store. Entries live until removed; nothing
// survives a restart.
type Memory struct {
	mu    sync.RWMutex
	users map[string]struct{}
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{users: make(map[string]struct{})}
}

func (m *Memory) Add(_ context.Context, userID string) error {
	m.mu.Lock()
	m.users[userID] = struct{}{}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Remove(_ context.Context, userID string) error {
	m.mu.Lock()
	delete(m.users, userID)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Has(_ context.Context, userID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.users[userID]
	return ok, nil
}

func (m *Memory) Status(_ context.Context, userIDs []string) (map[string]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		_, out[id] = m.users[id]
	}
	return out, nil
}

func (m *Memory) Online(_ context.Context) ([]string, error) {
	m.mu.RLock()
	out := make([]string, 0, len(m.users))
	for id := range m.users {
		out = append(out, id)
	}
	m.mu.RUnlock()
	sort.Strings(out)
	return out, nil
}
