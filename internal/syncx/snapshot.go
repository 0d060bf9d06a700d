// Package syncx provides extended synchronization primitives
package syncx

import "sync"

// Snapshot guards a copy-on-publish value. Readers always see a fully
// constructed value, never a torn intermediate state. T should be a value
// type or otherwise immutable.
type Snapshot[T any] struct {
	mu    sync.RWMutex
	value T
}

// NewSnapshot creates a guarded snapshot holding initial.
func NewSnapshot[T any](initial T) *Snapshot[T] {
	return &Snapshot[T]{value: initial}
}

// Get returns the current value.
func (s *Snapshot[T]) Get() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

// Set atomically replaces the value.
func (s *Snapshot[T]) Set(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = v
}

// Update mutates the value under the write lock and returns the result.
func (s *Snapshot[T]) Update(fn func(*T)) T {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.value)
	return s.value
}
