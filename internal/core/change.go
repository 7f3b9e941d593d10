package core

import (
	"context"
	"time"
)

// ChangeOperation is the kind of write that produced a change.
type ChangeOperation string

const (
	// ChangeInsert is emitted for rows created by insert, insert-many and
	// upsert statements.
	ChangeInsert ChangeOperation = "INSERT"

	// ChangeUpdate is emitted for rows returned by update statements.
	ChangeUpdate ChangeOperation = "UPDATE"

	// ChangeDelete is emitted for rows returned by delete statements.
	ChangeDelete ChangeOperation = "DELETE"
)

// Change describes one row affected by a committed write through a RowTable.
type Change struct {
	// ID uniquely identifies the change event.
	ID string `json:"id"`

	// Table is the qualified table name.
	Table string `json:"table"`

	// Operation is the kind of write.
	Operation ChangeOperation `json:"operation"`

	// Key is the primary key of the affected row.
	Key Key `json:"key"`

	// Data is the row as returned by the store. For deletes it is the row
	// as it was before removal.
	Data Record `json:"data"`

	// Timestamp is when the write completed.
	Timestamp time.Time `json:"timestamp"`

	// Attempts counts failed deliveries to sinks.
	Attempts int `json:"attempts,omitempty"`
}

// ChangeQueue buffers change events between the tables that emit them and
// the drainer that delivers them.
type ChangeQueue interface {
	// Enqueue adds a change to the queue.
	Enqueue(ctx context.Context, change *Change) error

	// Dequeue removes up to batchSize changes in FIFO order. It returns an
	// empty slice when nothing is available.
	Dequeue(ctx context.Context, batchSize int) ([]*Change, error)

	// Size returns the number of buffered changes, approximate for
	// distributed backends.
	Size() int

	// Close releases the queue's resources.
	Close() error
}
