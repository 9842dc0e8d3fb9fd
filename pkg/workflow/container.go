package workflow

import (
	"maps"
	"sync"
)

// Container is the key-value store handed to every step of a run.
type Container interface {
	Get(key string) (any, bool)
	Set(key string, value any)
	Has(key string) bool
	Delete(key string)
	Snapshot() map[string]any
}

// Store is the default Container. It is safe for concurrent use so callers
// may keep reading it after a run has finished.
type Store struct {
	mu   sync.RWMutex
	data map[string]any
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{data: make(map[string]any)}
}

// NewStoreFrom creates a Store seeded with a copy of values.
func NewStoreFrom(values map[string]any) *Store {
	s := NewStore()
	s.Merge(values)
	return s
}

func (s *Store) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

func (s *Store) Has(key string) bool {
	_, ok := s.Get(key)
	return ok
}

func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
}

// GetString retrieves a string value, returning "" if not found or not a string.
func (s *Store) GetString(key string) string {
	return GetString(s, key)
}

// Snapshot returns a shallow copy of all key-value pairs.
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.data)
}

// Merge copies all key-value pairs from src into the store (last write wins).
func (s *Store) Merge(src map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	maps.Copy(s.data, src)
}

// Copy returns an independent Store initialised from a snapshot of this one.
func (s *Store) Copy() *Store {
	return &Store{data: s.Snapshot()}
}

// NestedContainer layers an optional private container over a parent.
// Reads prefer the private container; writes always reach the parent so
// side effects of a nested run stay visible to the caller.
type NestedContainer struct {
	parent  Container
	private Container
}

// NewNestedContainer wraps parent. private may be nil.
func NewNestedContainer(parent, private Container) *NestedContainer {
	return &NestedContainer{parent: parent, private: private}
}

func (n *NestedContainer) Get(key string) (any, bool) {
	if n.private != nil {
		if v, ok := n.private.Get(key); ok && v != nil {
			return v, true
		}
	}
	return n.parent.Get(key)
}

func (n *NestedContainer) Set(key string, value any) {
	if n.private != nil {
		n.private.Set(key, value)
	}
	n.parent.Set(key, value)
}

func (n *NestedContainer) Has(key string) bool {
	if n.private != nil && n.private.Has(key) {
		return true
	}
	return n.parent.Has(key)
}

func (n *NestedContainer) Delete(key string) {
	if n.private != nil {
		n.private.Delete(key)
	}
	n.parent.Delete(key)
}

// Snapshot merges the parent view with the private values on top.
func (n *NestedContainer) Snapshot() map[string]any {
	out := n.parent.Snapshot()
	if n.private != nil {
		for k, v := range n.private.Snapshot() {
			if v != nil {
				out[k] = v
			}
		}
	}
	return out
}

// Parent returns the wrapped parent container.
func (n *NestedContainer) Parent() Container { return n.parent }

// GetString reads key from c, returning "" when absent or not a string.
func GetString(c Container, key string) string {
	v, ok := c.Get(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
