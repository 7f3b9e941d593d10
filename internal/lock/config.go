package lock

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/rzpsarthak13/lionrow/internal/core"
	"github.com/rzpsarthak13/lionrow/internal/kvstore"
	"github.com/rzpsarthak13/lionrow/internal/registry"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// FromConfig builds the locker cfg selects. A "none" or empty type yields a
// nil locker. A Redis locker without its own endpoints connects with
// fallback. The closer releases any connection the locker opened.
func FromConfig(ctx context.Context, cfg registry.LockConfig, fallback registry.RedisConfig, logger *slog.Logger) (core.Locker, io.Closer, error) {
	switch cfg.Type {
	case "", registry.LockNone:
		return nil, nopCloser{}, nil
	case registry.LockMemory:
		return NewKeyedMutex(), nopCloser{}, nil
	case registry.LockRedis:
		rc := cfg.Redis
		if len(rc.Endpoints) == 0 {
			rc = fallback
		}
		store, err := kvstore.NewRedis(ctx, rc)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Redis locker: %w", err)
		}
		return NewRedisLocker(store, cfg.TTL, cfg.RetryInterval, logger), store, nil
	default:
		return nil, nil, fmt.Errorf("unsupported lock type: %s", cfg.Type)
	}
}
