package store

import (
	"context"
	"sync"
)

type memEntry struct {
	data    []byte
	version int64
}

// MemoryBackend holds documents in process memory. Used by tests and dry runs.
type MemoryBackend struct {
	mu   sync.RWMutex
	docs map[string]memEntry
}

// NewMemoryBackend returns an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{docs: make(map[string]memEntry)}
}

func (m *MemoryBackend) Load(_ context.Context, name string) ([]byte, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e := m.docs[name]
	if e.data == nil {
		return nil, e.version, nil
	}
	out := make([]byte, len(e.data))
	copy(out, e.data)
	return out, e.version, nil
}

func (m *MemoryBackend) Swap(_ context.Context, name string, data []byte, expect int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.docs[name]
	if e.version != expect {
		return 0, ErrConflict
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	m.docs[name] = memEntry{data: buf, version: expect + 1}
	return expect + 1, nil
}

func (m *MemoryBackend) Ping(context.Context) error { return nil }

func (m *MemoryBackend) Close() error { return nil }
