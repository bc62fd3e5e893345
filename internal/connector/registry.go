package connector

import (
	"cmp"
	"slices"
	"sync"
)

// Registry is a concurrency-safe map. Lookups take a read lock; the writer of
// a given key is whoever holds the repository write lock.
type Registry[K cmp.Ordered, V any] struct {
	mu    sync.RWMutex
	items map[K]V
}

// NewRegistry returns an empty registry.
func NewRegistry[K cmp.Ordered, V any]() *Registry[K, V] {
	return &Registry[K, V]{items: make(map[K]V)}
}

// Get returns the value stored under key.
func (r *Registry[K, V]) Get(key K) (V, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.items[key]
	return v, ok
}

// Put stores value under key, replacing any previous value.
func (r *Registry[K, V]) Put(key K, value V) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[key] = value
}

// PutIfAbsent stores value unless key is present and reports whether it did.
func (r *Registry[K, V]) PutIfAbsent(key K, value V) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[key]; ok {
		return false
	}
	r.items[key] = value
	return true
}

// Delete removes key and returns the previous value.
func (r *Registry[K, V]) Delete(key K) (V, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.items[key]
	delete(r.items, key)
	return v, ok
}

// Keys returns the keys in ascending order.
func (r *Registry[K, V]) Keys() []K {
	r.mu.RLock()
	keys := make([]K, 0, len(r.items))
	for k := range r.items {
		keys = append(keys, k)
	}
	r.mu.RUnlock()
	slices.Sort(keys)
	return keys
}

// Len returns the number of entries.
func (r *Registry[K, V]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}
