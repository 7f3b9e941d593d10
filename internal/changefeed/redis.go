package changefeed

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/rzpsarthak13/lionrow/internal/core"
	"github.com/rzpsarthak13/lionrow/internal/kvstore"
)

// DefaultTableHistory is how many recent changes a RedisQueue keeps per
// table.
const DefaultTableHistory = 1000

// RedisQueue keeps changes in Redis lists as JSON. Every change is pushed
// to a global list, which Dequeue consumes, and to a per-table list trimmed
// to the newest changes, which Recent reads.
type RedisQueue struct {
	store   *kvstore.Redis
	history int64
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewRedisQueue creates a queue on store. history bounds each per-table
// list; zero selects DefaultTableHistory.
func NewRedisQueue(store *kvstore.Redis, history int, logger *slog.Logger) *RedisQueue {
	if history <= 0 {
		history = DefaultTableHistory
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &RedisQueue{
		store:   store,
		history: int64(history),
		logger:  logger.With("component", "changefeed", "queue", "redis"),
	}
}

func (q *RedisQueue) globalKey() string {
	return q.store.Key("changes", "global")
}

func (q *RedisQueue) tableKey(table string) string {
	return q.store.Key("changes", table)
}

func (q *RedisQueue) isClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

// Enqueue pushes a change to the global list, then to its table's history.
func (q *RedisQueue) Enqueue(ctx context.Context, change *core.Change) error {
	if q.isClosed() {
		return ErrQueueClosed
	}
	if err := validateChange(change); err != nil {
		return err
	}
	data, err := encodeChange(change)
	if err != nil {
		return err
	}

	if err := q.store.ListPush(ctx, data, 0, q.globalKey()); err != nil {
		return err
	}
	if err := q.store.ListPush(ctx, data, q.history, q.tableKey(change.Table)); err != nil {
		// The change is already queued for delivery; only the history is short.
		q.logger.WarnContext(ctx, "failed to record table history", "table", change.Table, "error", err)
	}
	return nil
}

// Dequeue pops up to batchSize changes from the global list. Payloads that
// fail to decode are logged and skipped.
func (q *RedisQueue) Dequeue(ctx context.Context, batchSize int) ([]*core.Change, error) {
	if q.isClosed() {
		return nil, ErrQueueClosed
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	raw, err := q.store.ListPop(ctx, q.globalKey(), batchSize)
	if err != nil {
		return nil, err
	}
	return q.decodeAll(ctx, raw), nil
}

// Recent returns up to n of the newest changes to table, oldest first,
// without consuming them.
func (q *RedisQueue) Recent(ctx context.Context, table string, n int) ([]*core.Change, error) {
	if q.isClosed() {
		return nil, ErrQueueClosed
	}
	if n <= 0 {
		return nil, nil
	}
	raw, err := q.store.ListRange(ctx, q.tableKey(table), -int64(n), -1)
	if err != nil {
		return nil, err
	}
	return q.decodeAll(ctx, raw), nil
}

func (q *RedisQueue) decodeAll(ctx context.Context, raw [][]byte) []*core.Change {
	changes := make([]*core.Change, 0, len(raw))
	for _, data := range raw {
		change, err := decodeChange(data)
		if err != nil {
			q.logger.ErrorContext(ctx, "skipping undecodable change", "error", err)
			continue
		}
		changes = append(changes, change)
	}
	return changes
}

// Size returns the length of the global list, or 0 when Redis cannot be
// reached.
func (q *RedisQueue) Size() int {
	if q.isClosed() {
		return 0
	}
	n, err := q.store.ListLength(context.Background(), q.globalKey())
	if err != nil {
		return 0
	}
	return int(n)
}

// Close stops the queue and closes the Redis client.
func (q *RedisQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	return q.store.Close()
}
