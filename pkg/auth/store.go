package auth

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/cofferdb/coffer/pkg/errors"
	"github.com/cofferdb/coffer/pkg/types"
)

// UserStore is the persistent document collection that durably holds user
// records, keyed by the opaque "_key" field. The UserManager is its only
// caller; implementations do not cache.
type UserStore interface {
	// FetchAll returns every user document in the collection. An empty
	// collection is not an error.
	FetchAll(ctx context.Context) ([]types.Document, error)

	// Upsert inserts or replaces the document identified by its "_key"
	// field and returns the key (assigning a fresh one if empty).
	Upsert(ctx context.Context, doc types.Document) (string, error)

	// RemoveByKey deletes one document; a missing key is a NotFound error.
	RemoveByKey(ctx context.Context, key string) error

	// RemoveAll deletes every document in the collection.
	RemoveAll(ctx context.Context) error
}

// MemoryStore is an in-memory UserStore used by tests and ephemeral
// installations.
type MemoryStore struct {
	mu   sync.Mutex
	docs map[string]types.Document
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]types.Document)}
}

// FetchAll returns every stored document
func (s *MemoryStore) FetchAll(ctx context.Context) ([]types.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Document, 0, len(s.docs))
	for _, doc := range s.docs {
		out = append(out, doc)
	}
	return out, nil
}

// Upsert inserts or replaces a document by key
func (s *MemoryStore) Upsert(ctx context.Context, doc types.Document) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, _ := doc[fieldKey].(string)
	if key == "" {
		key = uuid.New().String()
		doc[fieldKey] = key
	}
	s.docs[key] = doc
	return key, nil
}

// RemoveByKey deletes one document
func (s *MemoryStore) RemoveByKey(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[key]; !ok {
		return errors.NewNotFoundError("user document")
	}
	delete(s.docs, key)
	return nil
}

// RemoveAll deletes every document
func (s *MemoryStore) RemoveAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = make(map[string]types.Document)
	return nil
}
