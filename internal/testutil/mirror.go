package testutil

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sync"
)

// Mirror is an in-memory dataset.MirrorStore.
//
// Thread-safety: all methods are safe for concurrent use.
type Mirror struct {
	mu      sync.Mutex
	objects map[string][]byte
}

// NewMirror creates an empty mirror.
func NewMirror() *Mirror {
	return &Mirror{objects: make(map[string][]byte)}
}

// Keys returns the stored keys, sorted.
func (m *Mirror) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Object returns the content stored under key.
func (m *Mirror) Object(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	return data, ok
}

// Exists implements dataset.MirrorStore.
func (m *Mirror) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := m.Object(key)
	return ok, nil
}

// Put implements dataset.MirrorStore.
func (m *Mirror) Put(ctx context.Context, localPath, key string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

// Get implements dataset.MirrorStore.
func (m *Mirror) Get(ctx context.Context, key, localPath string) error {
	data, ok := m.Object(key)
	if !ok {
		return fmt.Errorf("%s: not found", m.URL(key))
	}
	return os.WriteFile(localPath, data, 0o644)
}

// Delete implements dataset.MirrorStore. Missing keys are not an error.
func (m *Mirror) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

// URL implements dataset.MirrorStore.
func (m *Mirror) URL(key string) string {
	return "mem://" + key
}
