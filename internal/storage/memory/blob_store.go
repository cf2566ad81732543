// Package memory implements an in-memory blob store for tests.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// BlobStore stores objects in a map. Safe for concurrent use.
type BlobStore struct {
	mu      sync.Mutex
	objects map[string][]byte

	// SaveErr, when set, is returned by every Save call. Lets tests inject
	// upload failures.
	SaveErr error
}

// New returns an empty in-memory blob store.
func New() *BlobStore {
	return &BlobStore{objects: make(map[string][]byte)}
}

// Save records data under objectName.
func (s *BlobStore) Save(_ context.Context, objectName string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return s.SaveErr
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	s.objects[objectName] = buf
	return nil
}

// Download returns the bytes stored under objectName.
func (s *BlobStore) Download(_ context.Context, objectName string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[objectName]
	if !ok {
		return nil, fmt.Errorf("object %s not found", objectName)
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return buf, nil
}

// Len returns the number of stored objects.
func (s *BlobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// Keys returns the stored object names, unordered.
func (s *BlobStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	return keys
}
