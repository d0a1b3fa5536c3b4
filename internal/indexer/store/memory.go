package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Memory keeps blobs in process memory. It backs tests and throwaway
// indexes.
type Memory struct {
	mu    sync.RWMutex
	blobs map[string][]byte
	// Puts of names with this prefix fail; see FailPuts.
	failPrefix string
}

func NewMemory() *Memory {
	return &Memory{blobs: make(map[string][]byte)}
}

// FailPuts arranges for every Put of a name starting with prefix to fail.
// An empty prefix clears the fault.
func (m *Memory) FailPuts(prefix string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failPrefix = prefix
}

func (m *Memory) Put(_ context.Context, name string, data []byte) error {
	if !validName(name) {
		return fmt.Errorf("invalid blob name %q", name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPrefix != "" && strings.HasPrefix(name, m.failPrefix) {
		return fmt.Errorf("injected failure writing %q", name)
	}
	copied := make([]byte, len(data))
	copy(copied, data)
	m.blobs[name] = copied
	return nil
}

func (m *Memory) Get(_ context.Context, name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.blobs[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	copied := make([]byte, len(data))
	copy(copied, data)
	return copied, nil
}

func (m *Memory) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var names []string
	for name := range m.blobs {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *Memory) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, name)
	return nil
}

func (m *Memory) Close() error { return nil }
