package table

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Store maps opaque ids to uploaded tables. Entries live for the lifetime
// of the process; there is no eviction, so memory grows with upload count.
type Store interface {
	// Put stores a table under a fresh random id and returns the id.
	Put(t *Table) string

	// Get returns the stored table or an error wrapping ErrNotFound.
	Get(id string) (*Table, error)

	// Len returns the number of stored tables.
	Len() int
}

type memoryStore struct {
	mu     sync.RWMutex
	tables map[string]*Table
}

// NewStore creates an in-memory table store.
func NewStore() Store {
	return &memoryStore{tables: make(map[string]*Table)}
}

func (s *memoryStore) Put(t *Table) string {
	id := uuid.NewString()
	s.mu.Lock()
	s.tables[id] = t
	s.mu.Unlock()
	return id
}

func (s *memoryStore) Get(id string) (*Table, error) {
	s.mu.RLock()
	t, ok := s.tables[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return t, nil
}

func (s *memoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tables)
}
