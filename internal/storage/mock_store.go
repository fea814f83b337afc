package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// MockStore is an in-memory implementation of BundleStore for testing.
type MockStore struct {
	mu      sync.RWMutex
	objects map[string]*Object
	bundles map[string][]string

	// Call counters for test assertions.
	PutCalls    int
	GetCalls    int
	DeleteCalls int
}

// NewMockStore creates a new in-memory mock store.
func NewMockStore() *MockStore {
	return &MockStore{
		objects: make(map[string]*Object),
		bundles: make(map[string][]string),
	}
}

// Put stores an object in memory.
func (m *MockStore) Put(ctx context.Context, obj *Object) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PutCalls++

	hash := obj.Hash
	if hash == "" {
		h := sha256.Sum256(obj.Data)
		hash = hex.EncodeToString(h[:])
	}

	if existing, ok := m.objects[hash]; ok {
		existing.Metadata.RefCount++
		existing.Metadata.LastAccessed = time.Now()
		return hash, nil
	}

	stored := &Object{
		Hash: hash,
		Type: obj.Type,
		Size: int64(len(obj.Data)),
		Data: append([]byte(nil), obj.Data...),
		Metadata: Metadata{
			CreatedAt:    time.Now(),
			LastAccessed: time.Now(),
			RefCount:     1,
			Custom:       make(map[string]string),
		},
	}
	for k, v := range obj.Metadata.Custom {
		stored.Metadata.Custom[k] = v
	}

	m.objects[hash] = stored
	return hash, nil
}

// Get retrieves an object from memory.
func (m *MockStore) Get(ctx context.Context, hash string) (*Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.GetCalls++

	obj, ok := m.objects[hash]
	if !ok {
		return nil, ErrNotFound{Hash: hash}
	}
	return obj, nil
}

// Exists checks if an object exists in memory.
func (m *MockStore) Exists(ctx context.Context, hash string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.objects[hash]
	return ok, nil
}

// Delete removes an object from memory.
func (m *MockStore) Delete(ctx context.Context, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeleteCalls++

	if _, ok := m.objects[hash]; !ok {
		return ErrNotFound{Hash: hash}
	}
	delete(m.objects, hash)
	return nil
}

// List returns all object hashes matching the given type filter.
func (m *MockStore) List(ctx context.Context, objectType ObjectType) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var hashes []string
	for hash, obj := range m.objects {
		if objectType == "" || obj.Type == objectType {
			hashes = append(hashes, hash)
		}
	}
	return hashes, nil
}

// Close is a no-op for the mock store.
func (m *MockStore) Close() error {
	return nil
}

// AddBundleRef associates a release's bundle with object hashes.
func (m *MockStore) AddBundleRef(releaseID, bundle string, hashes []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.bundles[releaseID+"/"+bundle] = append([]string(nil), hashes...)
	return nil
}

// GetBundleRef retrieves object hashes for a release's bundle.
func (m *MockStore) GetBundleRef(releaseID, bundle string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.bundles[releaseID+"/"+bundle], nil
}
