package ticket

import (
	"context"
	"sync"
)

// ObjectStore is the raw object-storage surface the issuer needs. The
// production S3 client lives outside this repo; the in-memory store backs
// tests and local development.
type ObjectStore interface {
	// Put stores the object and returns its public URL.
	Put(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// InMemoryObjectStore retains uploads for assertions in tests.
type InMemoryObjectStore struct {
	mu      sync.Mutex
	baseURL string
	objects map[string][]byte
}

func NewInMemoryObjectStore(baseURL string) *InMemoryObjectStore {
	return &InMemoryObjectStore{baseURL: baseURL, objects: make(map[string][]byte)}
}

func (s *InMemoryObjectStore) Put(_ context.Context, key string, body []byte, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]byte, len(body))
	copy(stored, body)
	s.objects[key] = stored
	return s.baseURL + "/" + key, nil
}

// Get returns a stored object, for tests.
func (s *InMemoryObjectStore) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	body, ok := s.objects[key]
	return body, ok
}
