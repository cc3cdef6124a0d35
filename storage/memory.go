package storage

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Memory keeps objects in a map. It serves deployments without a bucket and tests.
type Memory struct {
	mu      sync.Mutex
	baseURL string
	objects map[string][]byte
	// FailDeletes makes every delete return an error while still counting the call.
	FailDeletes bool
	deleted     []string
}

var _ Store = (*Memory)(nil)

func NewMemory(baseURL string) *Memory {
	return &Memory{baseURL: baseURL, objects: make(map[string][]byte)}
}

func (m *Memory) Upload(_ context.Context, key, _ string, body io.Reader) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	m.objects[key] = data
	m.mu.Unlock()
	return m.baseURL + "/" + key, nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	return m.DeleteMany(ctx, []string{key})
}

func (m *Memory) DeleteMany(_ context.Context, keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, keys...)
	if m.FailDeletes {
		return fmt.Errorf("delete %d objects: storage unavailable", len(keys))
	}
	for _, key := range keys {
		delete(m.objects, key)
	}
	return nil
}

// Has reports whether key is currently stored.
func (m *Memory) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

// DeletedKeys returns a copy of every key passed to a delete call.
func (m *Memory) DeletedKeys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deleted...)
}
