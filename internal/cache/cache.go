// Package cache provides the identity caches a RowTable keeps its rows in.
// Every policy stores pointers so a cached value is shared, never copied.
package cache

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache maps canonical key strings to shared values. Implementations are
// safe for concurrent use.
type Cache[V any] interface {
	// Get returns the cached value for key.
	Get(key string) (V, bool)

	// Add stores value under key, replacing any previous value.
	Add(key string, value V)

	// Remove evicts key.
	Remove(key string)

	// Len returns the number of live entries.
	Len() int

	// Purge evicts everything.
	Purge()
}

// Type selects a cache policy.
type Type string

const (
	// TypeLRU bounds the cache by entry count, evicting the least recently
	// used entry.
	TypeLRU Type = "lru"

	// TypeTTL bounds the cache by entry count and expires entries a fixed
	// time after they were added.
	TypeTTL Type = "ttl"

	// TypeUnbounded keeps every entry until it is removed.
	TypeUnbounded Type = "unbounded"

	// TypeWeak keeps an entry only while something outside the cache still
	// references the value.
	TypeWeak Type = "weak"

	// TypeNone caches nothing.
	TypeNone Type = "none"
)

// DefaultSize is the entry limit of bounded policies when none is given.
const DefaultSize = 1000

// Policy describes a cache.
type Policy struct {
	Type Type          `yaml:"type" json:"type"`
	Size int           `yaml:"size" json:"size"`
	TTL  time.Duration `yaml:"ttl" json:"ttl"`
}

// DefaultPolicy is an LRU of DefaultSize entries.
func DefaultPolicy() Policy {
	return Policy{Type: TypeLRU, Size: DefaultSize}
}

// Validate checks the policy.
func (p Policy) Validate() error {
	switch p.Type {
	case "", TypeLRU, TypeUnbounded, TypeWeak, TypeNone:
	case TypeTTL:
		if p.TTL <= 0 {
			return fmt.Errorf("ttl cache requires a positive ttl")
		}
	default:
		return fmt.Errorf("unknown cache type: %s", p.Type)
	}
	if p.Size < 0 {
		return fmt.Errorf("cache size must not be negative")
	}
	return nil
}

func (p Policy) size() int {
	if p.Size > 0 {
		return p.Size
	}
	return DefaultSize
}

// New builds a cache of *T for the policy. An empty type means LRU.
func New[T any](p Policy) (Cache[*T], error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	switch p.Type {
	case "", TypeLRU:
		c, err := lru.New[string, *T](p.size())
		if err != nil {
			return nil, fmt.Errorf("failed to create lru cache: %w", err)
		}
		return &lruCache[*T]{c: c}, nil
	case TypeTTL:
		return &ttlCache[*T]{c: expirable.NewLRU[string, *T](p.size(), nil, p.TTL)}, nil
	case TypeUnbounded:
		return &mapCache[*T]{entries: make(map[string]*T)}, nil
	case TypeWeak:
		return newWeakCache[T](), nil
	default:
		return noCache[*T]{}, nil
	}
}

type lruCache[V any] struct {
	c *lru.Cache[string, V]
}

func (l *lruCache[V]) Get(key string) (V, bool) { return l.c.Get(key) }
func (l *lruCache[V]) Add(key string, value V)  { l.c.Add(key, value) }
func (l *lruCache[V]) Remove(key string)        { l.c.Remove(key) }
func (l *lruCache[V]) Len() int                 { return l.c.Len() }
func (l *lruCache[V]) Purge()                   { l.c.Purge() }

type ttlCache[V any] struct {
	c *expirable.LRU[string, V]
}

func (t *ttlCache[V]) Get(key string) (V, bool) { return t.c.Get(key) }
func (t *ttlCache[V]) Add(key string, value V)  { t.c.Add(key, value) }
func (t *ttlCache[V]) Remove(key string)        { t.c.Remove(key) }
func (t *ttlCache[V]) Len() int                 { return t.c.Len() }
func (t *ttlCache[V]) Purge()                   { t.c.Purge() }

type mapCache[V any] struct {
	mu      sync.RWMutex
	entries map[string]V
}

func (m *mapCache[V]) Get(key string) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.entries[key]
	return v, ok
}

func (m *mapCache[V]) Add(key string, value V) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = value
}

func (m *mapCache[V]) Remove(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

func (m *mapCache[V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *mapCache[V]) Purge() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]V)
}

type noCache[V any] struct{}

func (noCache[V]) Get(string) (V, bool) {
	var zero V
	return zero, false
}

func (noCache[V]) Add(string, V) {}
func (noCache[V]) Remove(string) {}
func (noCache[V]) Len() int      { return 0 }
func (noCache[V]) Purge()        {}
