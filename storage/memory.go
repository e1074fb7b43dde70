package storage

import (
	"bytes"
	"context"
	"io"
	"sync"
)

// Memory is an in-memory BlobStore for tests and development.
type Memory struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemory returns an empty in-memory blob store.
func NewMemory() *Memory {
	return &Memory{blobs: make(map[string][]byte)}
}

// Upload stores the object and returns a mem:// URL.
func (m *Memory) Upload(_ context.Context, key string, r io.Reader, _ int64, _ string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	m.blobs[key] = data
	m.mu.Unlock()
	return "mem://" + key, nil
}

// Download copies the stored bytes to w. Absent keys yield io.ErrUnexpectedEOF.
func (m *Memory) Download(_ context.Context, key string, w io.Writer) error {
	m.mu.RLock()
	data, ok := m.blobs[key]
	m.mu.RUnlock()
	if !ok {
		return io.ErrUnexpectedEOF
	}
	_, err := io.Copy(w, bytes.NewReader(data))
	return err
}

// Remove deletes the object.
func (m *Memory) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.blobs, key)
	m.mu.Unlock()
	return nil
}

// Has reports whether a key is stored. Test helper.
func (m *Memory) Has(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.blobs[key]
	return ok
}
