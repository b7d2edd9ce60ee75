package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/openfiling/formfill/types"
)

// MemStore is an in-memory ObjectStore with the same conditional-write
// semantics as the real backends. Useful for tests and ephemeral runs.
type MemStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{objects: make(map[string][]byte)}
}

// Get implements ObjectStore.
func (s *MemStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrapTimeout("get", key, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// PutIfAbsent implements ObjectStore.
func (s *MemStore) PutIfAbsent(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return wrapTimeout("put", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.objects[key]; exists {
		return ErrKeyExists
	}
	stored := make([]byte, len(data))
	copy(stored, data)
	s.objects[key] = stored
	return nil
}

// List implements ObjectStore.
func (s *MemStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrapTimeout("list", prefix, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for key := range s.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Presign implements ObjectStore.
func (s *MemStore) Presign(key string, ttl time.Duration) (types.Descriptor, error) {
	return types.Descriptor{
		StorageKey: key,
		URL:        "mem://" + key,
		ExpiresAt:  time.Now().Add(ttl),
	}, nil
}

// Len reports the number of stored objects.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
