package offline

import "sync"

// Store persists the ordered queue contents. Implementations must
// round-trip operations field-for-field so the queue survives process
// restarts intact.
type Store interface {
	// Load returns the persisted operations in queue order.
	// A missing store is not an error; it loads as empty.
	Load() ([]Operation, error)
	// Save replaces the persisted contents with ops in order.
	Save(ops []Operation) error
}

// MemoryStore is an in-process Store for tests and ephemeral use.
type MemoryStore struct {
	mu  sync.Mutex
	ops []Operation
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns a copy of the stored operations.
func (s *MemoryStore) Load() ([]Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Operation, len(s.ops))
	copy(out, s.ops)
	return out, nil
}

// Save replaces the stored operations.
func (s *MemoryStore) Save(ops []Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = make([]Operation, len(ops))
	copy(s.ops, ops)
	return nil
}

var _ Store = (*MemoryStore)(nil)
