// ABOUTME: In-memory SecretStore provider for tests and ephemeral mode
// ABOUTME: Thread-safe map with copy-on-read/write semantics

package secrets

import (
	"context"
	"sort"
	"sync"

	"github.com/2389/credvault/internal/keychain"
)

// Memory is a SecretStore backed by a map. Values are copied on the way in
// and out so callers can't mutate stored bytes.
type Memory struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewMemory creates an empty in-memory provider.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string][]byte)}
}

func (m *Memory) Write(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf := make([]byte, len(value))
	copy(buf, value)
	m.entries[key] = buf
	return nil
}

func (m *Memory) Read(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.entries[key]
	if !ok {
		return nil, keychain.ErrNoEntry
	}
	buf := make([]byte, len(value))
	copy(buf, value)
	return buf, nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *Memory) Keys(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

var _ keychain.SecretStore = (*Memory)(nil)
