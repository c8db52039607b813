package stream

import (
	"cmp"
	"slices"
	"sync"
)

// Registry is a mutex-guarded multiton: at most one value per key.
type Registry[K cmp.Ordered, V any] struct {
	mu    sync.RWMutex
	items map[K]V
}

// NewRegistry returns an empty Registry.
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

// GetOrCreate returns the value stored under key, calling factory to build
// it when absent. The factory runs under the registry lock and must not
// call back into the registry. created reports whether factory was used.
func (r *Registry[K, V]) GetOrCreate(key K, factory func() (V, error)) (v V, created bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.items[key]; ok {
		return v, false, nil
	}
	v, err = factory()
	if err != nil {
		return v, false, err
	}
	r.items[key] = v
	return v, true, nil
}

// Put stores v under key. It returns false without storing when the key
// exists and overwrite is false.
func (r *Registry[K, V]) Put(key K, v V, overwrite bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[key]; exists && !overwrite {
		return false
	}
	r.items[key] = v
	return true
}

// Delete removes key and reports whether it was present.
func (r *Registry[K, V]) Delete(key K) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[key]; !ok {
		return false
	}
	delete(r.items, key)
	return true
}

// Has reports whether key is present.
func (r *Registry[K, V]) Has(key K) bool {
	_, ok := r.Get(key)
	return ok
}

// Keys returns the sorted list of keys.
func (r *Registry[K, V]) Keys() []K {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]K, 0, len(r.items))
	for k := range r.items {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Len returns the number of stored values.
func (r *Registry[K, V]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}
