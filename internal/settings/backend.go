package settings

import (
	"context"
	"sync"
)

// Backend is a key-value store for settings documents.
//
// Implementations must be safe for concurrent use.
type Backend interface {
	// Load returns the document stored under key. A missing key returns
	// (nil, nil).
	Load(ctx context.Context, key string) ([]byte, error)

	// Save replaces the document stored under key.
	Save(ctx context.Context, key string, data []byte) error

	// Close releases resources held by the backend.
	Close() error
}

// MemoryBackend keeps documents in process memory. It is used in tests and
// when persistence is disabled.
type MemoryBackend struct {
	mu    sync.Mutex
	data  map[string][]byte
	saves int

	// SaveErr, when set, is returned by Save without storing anything.
	SaveErr error

	// LoadErr, when set, is returned by Load.
	LoadErr error
}

var _ Backend = (*MemoryBackend)(nil)

// NewMemoryBackend returns an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string][]byte)}
}

// Load implements [Backend].
func (m *MemoryBackend) Load(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

// Save implements [Backend].
func (m *MemoryBackend) Save(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.data[key] = append([]byte(nil), data...)
	m.saves++
	return nil
}

// Close implements [Backend].
func (m *MemoryBackend) Close() error { return nil }

// Saves returns how many times Save succeeded.
func (m *MemoryBackend) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
