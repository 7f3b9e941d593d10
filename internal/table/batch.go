package table

import (
	"context"
	"maps"

	"github.com/rzpsarthak13/lionrow/internal/core"
)

// Batch stages writes to one row and flushes them as a single UPDATE on
// Close. A Batch has no rollback: whatever was staged is written.
type Batch struct {
	row     *Row
	pending map[string]any
	closed  bool
}

// Row returns the row the batch writes to.
func (b *Batch) Row() *Row {
	return b.row
}

// Set stages a column value.
func (b *Batch) Set(column string, value any) error {
	if err := b.row.checkColumn(column); err != nil {
		return err
	}
	b.row.mu.Lock()
	defer b.row.mu.Unlock()
	if b.closed {
		return errBatchClosed(b)
	}
	b.pending[column] = value
	return nil
}

// Get reads a column through the batch, seeing staged values.
func (b *Batch) Get(column string) (any, error) {
	return b.row.Get(column)
}

// Pending returns a copy of the staged values.
func (b *Batch) Pending() map[string]any {
	b.row.mu.Lock()
	defer b.row.mu.Unlock()
	return maps.Clone(b.pending)
}

// Close detaches the staged values and writes them in one UPDATE. Nothing is
// sent when nothing was staged. Closing twice is a no-op.
func (b *Batch) Close(ctx context.Context) error {
	b.row.mu.Lock()
	if b.closed {
		b.row.mu.Unlock()
		return nil
	}
	b.closed = true
	pending := b.pending
	b.pending = nil
	if b.row.batch == b {
		b.row.batch = nil
	}
	b.row.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}
	return b.row.flush(ctx, pending)
}

func errBatchClosed(b *Batch) error {
	return core.Usagef("batch on %s is already closed", b.row.table.target)
}
