package cache

import (
	"runtime"
	"sync"
	"weak"
)

// weakCache holds weak pointers, so an entry lives exactly as long as some
// caller still holds the value.
type weakCache[T any] struct {
	mu      sync.Mutex
	entries map[string]weak.Pointer[T]
}

func newWeakCache[T any]() *weakCache[T] {
	return &weakCache[T]{entries: make(map[string]weak.Pointer[T])}
}

func (w *weakCache[T]) Get(key string) (*T, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	wp, ok := w.entries[key]
	if !ok {
		return nil, false
	}
	v := wp.Value()
	if v == nil {
		delete(w.entries, key)
		return nil, false
	}
	return v, true
}

func (w *weakCache[T]) Add(key string, value *T) {
	if value == nil {
		w.Remove(key)
		return
	}
	wp := weak.Make(value)

	w.mu.Lock()
	w.entries[key] = wp
	w.mu.Unlock()

	runtime.AddCleanup(value, w.collect, cleanupArg[T]{key: key, wp: wp})
}

type cleanupArg[T any] struct {
	key string
	wp  weak.Pointer[T]
}

// collect drops key once its value has been garbage collected, unless the
// key was re-added with a new value in the meantime.
func (w *weakCache[T]) collect(arg cleanupArg[T]) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if wp, ok := w.entries[arg.key]; ok && wp == arg.wp {
		delete(w.entries, arg.key)
	}
}

func (w *weakCache[T]) Remove(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.entries, key)
}

func (w *weakCache[T]) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for key, wp := range w.entries {
		if wp.Value() == nil {
			delete(w.entries, key)
			continue
		}
		n++
	}
	return n
}

func (w *weakCache[T]) Purge() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries = make(map[string]weak.Pointer[T])
}
