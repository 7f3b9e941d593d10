package lock

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultTTL bounds how long a crashed holder keeps a key.
	DefaultTTL = 10 * time.Second

	// DefaultRetryInterval is the wait between acquire attempts.
	DefaultRetryInterval = 50 * time.Millisecond

	releaseTimeout = 2 * time.Second
)

// Store is the part of kvstore.Redis RedisLocker uses.
type Store interface {
	Key(parts ...string) string
	SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	DeleteIfEqual(ctx context.Context, key string, value []byte) (bool, error)
}

// RedisLocker holds keys across processes with SET NX PX and a random
// token. A holder that outlives the TTL loses the key; its unlock then
// leaves the new holder alone.
type RedisLocker struct {
	store  Store
	ttl    time.Duration
	retry  time.Duration
	logger *slog.Logger
}

// NewRedisLocker creates a locker on store. Non-positive durations take
// the defaults.
func NewRedisLocker(store Store, ttl, retry time.Duration, logger *slog.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if retry <= 0 {
		retry = DefaultRetryInterval
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &RedisLocker{
		store:  store,
		ttl:    ttl,
		retry:  retry,
		logger: logger.With("component", "lock"),
	}
}

// Lock polls until key is acquired or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := l.store.Key("lock", key)
	token := []byte(uuid.NewString())

	for {
		ok, err := l.store.SetIfAbsent(ctx, redisKey, token, l.ttl)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}

		t := time.NewTimer(l.retry)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, ctx.Err())
		}
	}

	acquired := time.Now()
	var once sync.Once
	return func() {
		once.Do(func() { l.release(key, redisKey, token, acquired) })
	}, nil
}

func (l *RedisLocker) release(key, redisKey string, token []byte, acquired time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	ok, err := l.store.DeleteIfEqual(ctx, redisKey, token)
	switch {
	case err != nil:
		l.logger.Warn("failed to release lock", "key", key, "error", err)
	case !ok:
		l.logger.Warn("lock expired before release", "key", key, "held", time.Since(acquired), "ttl", l.ttl)
	}
}
