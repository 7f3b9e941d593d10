package table

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rzpsarthak13/lionrow/internal/core"
)

// Row is a mutable view over one stored row. Reads never touch the store;
// writes go straight through as one UPDATE each, or are buffered while a
// Batch is open and flushed as one UPDATE when it closes.
//
// The mutex only keeps the row's own state memory safe. Ordering concurrent
// writers to the same key is left to the caller and the store.
type Row struct {
	table *RowTable

	mu    sync.Mutex
	data  core.Record
	batch *Batch
}

func newRow(t *RowTable, rec core.Record) *Row {
	return &Row{table: t, data: rec}
}

// Table returns the row table the row belongs to.
func (r *Row) Table() *RowTable {
	return r.table
}

// Key returns the row's current primary key.
func (r *Row) Key() core.Key {
	r.mu.Lock()
	defer r.mu.Unlock()
	key, _ := core.KeyOf(r.data, r.table.key)
	return key
}

// Data returns a copy of the last known stored values.
func (r *Row) Data() core.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.data.Clone()
}

// InBatch reports whether a batch is open on the row.
func (r *Row) InBatch() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.batch != nil
}

func (r *Row) String() string {
	return fmt.Sprintf("%s%s", r.table.target, r.Key())
}

func (r *Row) setData(rec core.Record) {
	r.mu.Lock()
	r.data = rec
	r.mu.Unlock()
}

func (r *Row) checkColumn(column string) error {
	if !r.table.HasColumn(column) {
		return core.Usagef("%s has no column %q", r.table.target, column)
	}
	return nil
}

// Get returns the column's value: the pending value when a batch has staged
// one, else the last known stored value.
func (r *Row) Get(column string) (any, error) {
	if err := r.checkColumn(column); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.batch != nil {
		if v, ok := r.batch.pending[column]; ok {
			return v, nil
		}
	}
	return r.data[column], nil
}

// Set writes one column. Outside a batch it issues one UPDATE and replaces
// the row's data with the stored row.
func (r *Row) Set(ctx context.Context, column string, value any) error {
	return r.Update(ctx, map[string]any{column: value})
}

// Update writes several columns in one UPDATE, or stages them when a batch
// is open.
func (r *Row) Update(ctx context.Context, values map[string]any) error {
	for column := range values {
		if err := r.checkColumn(column); err != nil {
			return err
		}
	}
	if len(values) == 0 {
		return nil
	}

	r.mu.Lock()
	if r.batch != nil {
		for column, v := range values {
			r.batch.pending[column] = v
		}
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	return r.flush(ctx, values)
}

// flush issues one UPDATE keyed by the row's current key.
func (r *Row) flush(ctx context.Context, values map[string]any) error {
	key := r.Key()
	var before []core.Key
	if r.table.setsKey(mapKeys(values)) {
		before = []core.Key{key}
	}
	recs, err := r.table.update(ctx, values, before, r.table.KeyCondition(key))
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", r, err)
	}
	if len(recs) == 0 {
		r.table.evictRow(r, key)
		return core.NotFoundf("updating a %s which no longer exists (key %s)", r.table.target, key)
	}
	r.setData(recs[0])
	return nil
}

// Refresh re-reads the row from the store. A row that no longer exists is
// evicted and reported as core.ErrNotFound.
func (r *Row) Refresh(ctx context.Context) error {
	key := r.Key()
	rec, err := r.table.SelectOneWhere(ctx, r.table.KeyCondition(key))
	if err != nil {
		return err
	}
	if rec == nil {
		r.table.evictRow(r, key)
		return core.NotFoundf("refreshing a %s which no longer exists (key %s)", r.table.target, key)
	}
	r.setData(rec)
	return nil
}

// Delete removes the row from the store and the cache.
func (r *Row) Delete(ctx context.Context) error {
	key := r.Key()
	recs, err := r.table.DeleteWhere(ctx, r.table.KeyCondition(key))
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		r.table.evictRow(r, key)
		return core.NotFoundf("deleting a %s which no longer exists (key %s)", r.table.target, key)
	}
	return nil
}

// BeginBatch opens a batch on the row. Writes made through the row or the
// batch are staged until Close. Only one batch may be open per row.
func (r *Row) BeginBatch() (*Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.batch != nil {
		return nil, core.Usagef("a batch update is already open on %s%s", r.table.target, r.keyLocked())
	}
	r.batch = &Batch{row: r, pending: make(map[string]any)}
	return r.batch, nil
}

func (r *Row) keyLocked() core.Key {
	key, _ := core.KeyOf(r.data, r.table.key)
	return key
}

// Batch runs fn with an open batch and flushes it when fn returns, also when
// fn fails or panics. Staged values are written either way.
func (r *Row) Batch(ctx context.Context, fn func(b *Batch) error) (err error) {
	b, err := r.BeginBatch()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := b.Close(ctx); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()
	return fn(b)
}
