package table

import (
	"log/slog"

	"github.com/rzpsarthak13/lionrow/internal/cache"
	"github.com/rzpsarthak13/lionrow/internal/core"
	"github.com/rzpsarthak13/lionrow/internal/query"
)

type options struct {
	schema    string
	logger    *slog.Logger
	casts     map[string]string
	useCache  bool
	cache     cache.Cache[*Row]
	cacheSize int
	policy    *cache.Policy
	locker    core.Locker
	changes   core.ChangeQueue
}

func defaultOptions() options {
	return options{
		schema:   query.DefaultSchema,
		useCache: true,
	}
}

// Option configures a Table or RowTable.
type Option func(*options)

// WithSchema sets the schema the table lives in. The default is "public".
func WithSchema(schema string) Option {
	return func(o *options) {
		o.schema = schema
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithCasts sets the SQL type each column is cast to in multi-row updates.
func WithCasts(casts map[string]string) Option {
	return func(o *options) {
		o.casts = casts
	}
}

// UseCache turns the row cache on or off. Caching is on by default.
func UseCache(enabled bool) Option {
	return func(o *options) {
		o.useCache = enabled
	}
}

// WithCache makes the row table keep its rows in c.
func WithCache(c cache.Cache[*Row]) Option {
	return func(o *options) {
		o.cache = c
	}
}

// CacheSize bounds the default LRU cache. It applies only when caching is on
// and no cache instance was given.
func CacheSize(n int) Option {
	return func(o *options) {
		o.cacheSize = n
	}
}

// WithCachePolicy selects the cache policy used when no cache instance was
// given.
func WithCachePolicy(p cache.Policy) Option {
	return func(o *options) {
		o.policy = &p
	}
}

// WithLocker serializes FetchOrCreate calls for the same identity.
func WithLocker(l core.Locker) Option {
	return func(o *options) {
		o.locker = l
	}
}

// WithChangeQueue publishes a change event for every row a write returns.
func WithChangeQueue(q core.ChangeQueue) Option {
	return func(o *options) {
		o.changes = q
	}
}

// cachePolicy resolves the policy the options describe.
func (o options) cachePolicy() cache.Policy {
	if !o.useCache {
		return cache.Policy{Type: cache.TypeNone}
	}
	if o.policy != nil {
		p := *o.policy
		if p.Size == 0 && o.cacheSize > 0 {
			p.Size = o.cacheSize
		}
		return p
	}
	p := cache.DefaultPolicy()
	if o.cacheSize > 0 {
		p.Size = o.cacheSize
	}
	return p
}
