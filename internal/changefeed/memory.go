package changefeed

import (
	"context"
	"sync"

	"github.com/rzpsarthak13/lionrow/internal/core"
)

// DefaultBufferSize bounds a MemoryQueue when no size is given.
const DefaultBufferSize = 10000

// MemoryQueue is a bounded in-process change queue. Changes are lost when
// the process exits.
type MemoryQueue struct {
	mu     sync.RWMutex
	queue  chan *core.Change
	closed bool
}

// NewMemoryQueue creates a queue holding up to bufferSize changes.
func NewMemoryQueue(bufferSize int) *MemoryQueue {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &MemoryQueue{queue: make(chan *core.Change, bufferSize)}
}

// Enqueue adds a change. It fails with ErrQueueFull rather than block.
func (q *MemoryQueue) Enqueue(ctx context.Context, change *core.Change) error {
	if err := validateChange(change); err != nil {
		return err
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.queue <- change:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

// Dequeue removes up to batchSize changes without waiting.
func (q *MemoryQueue) Dequeue(ctx context.Context, batchSize int) ([]*core.Change, error) {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	changes := make([]*core.Change, 0, batchSize)
	for len(changes) < batchSize {
		select {
		case change, ok := <-q.queue:
			if !ok {
				return changes, nil
			}
			changes = append(changes, change)
		case <-ctx.Done():
			return changes, ctx.Err()
		default:
			return changes, nil
		}
	}
	return changes, nil
}

// Size returns the number of buffered changes.
func (q *MemoryQueue) Size() int {
	return len(q.queue)
}

// Close stops enqueueing. Buffered changes can still be dequeued.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	close(q.queue)
	return nil
}
