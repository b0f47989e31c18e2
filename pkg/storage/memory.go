package storage

import (
	"context"
	"sync"
)

// MemoryStore keeps the artifact in process memory. It is safe for
// concurrent use and is meant for tests and single-run tooling; the artifact
// is lost on exit.
//
// The artifact is round-tripped through its JSON encoding so callers get the
// same validation and isolation as with the durable stores.
type MemoryStore struct {
	mu   sync.RWMutex
	data []byte
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Put replaces the stored artifact.
func (s *MemoryStore) Put(ctx context.Context, a Artifact) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := encode(a)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = data
	return nil
}

// Get returns the stored artifact, if any.
func (s *MemoryStore) Get(ctx context.Context) (Artifact, bool, error) {
	if err := ctx.Err(); err != nil {
		return Artifact{}, false, err
	}

	s.mu.RLock()
	data := s.data
	s.mu.RUnlock()

	if data == nil {
		return Artifact{}, false, nil
	}
	a, err := decode("memory", data)
	if err != nil {
		return Artifact{}, false, err
	}
	return a, true, nil
}

// PutRaw stores bytes without validation.
func (s *MemoryStore) PutRaw(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = append([]byte(nil), data...)
}

// Delete removes the artifact. Returns true if one existed.
func (s *MemoryStore) Delete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	existed := s.data != nil
	s.data = nil
	return existed
}
