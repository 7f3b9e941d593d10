// Package table turns store tables into Go handles. Table is a stateless
// handle over the query runner; RowTable adds an identity cache of Row
// objects that every write through it keeps coherent.
package table

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/rzpsarthak13/lionrow/internal/core"
	"github.com/rzpsarthak13/lionrow/internal/expr"
	"github.com/rzpsarthak13/lionrow/internal/query"
)

// Table is a stateless handle on one store table. Every method is one
// round trip through the bound connection.
type Table struct {
	mu     sync.RWMutex
	target query.Target
	casts  map[string]string
	logger *slog.Logger
	runner *query.Runner
}

// New returns an unbound table handle.
func New(name string, opts ...Option) *Table {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return newTable(name, nil, o)
}

func newTable(name string, key []string, o options) *Table {
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Table{
		target: query.Target{Schema: o.schema, Name: name, Key: key},
		casts:  o.casts,
		logger: logger.With("component", "table", "table", name),
	}
}

// TableName returns the unqualified table name.
func (t *Table) TableName() string {
	return t.target.Name
}

// Schema returns the schema name.
func (t *Table) Schema() string {
	return t.target.Schema
}

// Target returns the table identifier used to build statements.
func (t *Table) Target() query.Target {
	return t.target
}

// String returns the qualified table name.
func (t *Table) String() string {
	return t.target.String()
}

// Bind points the table at a connection.
func (t *Table) Bind(conn core.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.runner = query.NewRunner(conn, t.logger)
}

// Bound reports whether the table has a connection.
func (t *Table) Bound() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.runner != nil
}

// With returns a plain table handle executing through conn, such as an open
// transaction. The returned handle never touches a row cache.
func (t *Table) With(conn core.Conn) *Table {
	c := &Table{target: t.target, casts: t.casts, logger: t.logger}
	c.runner = query.NewRunner(conn, t.logger)
	return c
}

func (t *Table) run() (*query.Runner, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.runner == nil {
		return nil, core.Usagef("table %s is not bound to a connection", t.target)
	}
	return t.runner, nil
}

// Select runs s against this table. The Table field of s is overwritten.
func (t *Table) Select(ctx context.Context, s query.Select) ([]core.Record, error) {
	r, err := t.run()
	if err != nil {
		return nil, err
	}
	s.Table = t.target
	return r.Select(ctx, s)
}

// SelectWhere returns every row matching all conditions. No conditions
// selects the whole table.
func (t *Table) SelectWhere(ctx context.Context, conds ...expr.Condition) ([]core.Record, error) {
	return t.Select(ctx, query.Select{Where: conds})
}

// SelectOneWhere returns the first row matching all conditions, or nil.
func (t *Table) SelectOneWhere(ctx context.Context, conds ...expr.Condition) (core.Record, error) {
	r, err := t.run()
	if err != nil {
		return nil, err
	}
	return r.SelectOne(ctx, query.Select{Table: t.target, Where: conds})
}

// Insert inserts one row and returns it with server defaults populated.
func (t *Table) Insert(ctx context.Context, values map[string]any) (core.Record, error) {
	r, err := t.run()
	if err != nil {
		return nil, err
	}
	return r.Insert(ctx, query.Insert{Table: t.target, Values: values})
}

// InsertMany inserts rows of values for columns in one statement and returns
// them in insertion order.
func (t *Table) InsertMany(ctx context.Context, columns []string, rows ...[]any) ([]core.Record, error) {
	r, err := t.run()
	if err != nil {
		return nil, err
	}
	return r.InsertMany(ctx, query.InsertMany{Table: t.target, Columns: columns, Rows: rows})
}

// InsertIgnore inserts rows like InsertMany but skips rows that collide with
// an existing row, returning only the rows it inserted. Stores without
// RETURNING report nothing when any row was skipped.
func (t *Table) InsertIgnore(ctx context.Context, columns []string, rows ...[]any) ([]core.Record, error) {
	r, err := t.run()
	if err != nil {
		return nil, err
	}
	return r.InsertMany(ctx, query.InsertMany{Table: t.target, Columns: columns, Rows: rows, OnConflictIgnore: true})
}

// UpdateWhere applies set to every row matching all conditions and returns
// the updated rows. Values may be literals, expressions or assignments such
// as query.Increment.
func (t *Table) UpdateWhere(ctx context.Context, set map[string]any, conds ...expr.Condition) ([]core.Record, error) {
	r, err := t.run()
	if err != nil {
		return nil, err
	}
	return r.Update(ctx, query.Update{Table: t.target, Set: set, Where: conds})
}

// DeleteWhere deletes every row matching all conditions and returns the
// deleted rows.
func (t *Table) DeleteWhere(ctx context.Context, conds ...expr.Condition) ([]core.Record, error) {
	r, err := t.run()
	if err != nil {
		return nil, err
	}
	return r.Delete(ctx, query.Delete{Table: t.target, Where: conds})
}

// Upsert inserts values or, on a conflict over the conflict columns,
// overwrites the existing row with them.
func (t *Table) Upsert(ctx context.Context, conflict []string, values map[string]any) (core.Record, error) {
	r, err := t.run()
	if err != nil {
		return nil, err
	}
	return r.Upsert(ctx, query.Upsert{Table: t.target, Conflict: conflict, Values: values})
}

// UpdateMany updates many rows in one statement. Each row holds the setKeys
// values followed by the whereKeys values. Casts given with WithCasts apply
// on PostgreSQL only, where the values list carries no parameter types: a
// column with no cast is compared and assigned as text.
func (t *Table) UpdateMany(ctx context.Context, setKeys, whereKeys []string, rows ...[]any) ([]core.Record, error) {
	r, err := t.run()
	if err != nil {
		return nil, err
	}
	// Only a VALUES list loses parameter types; the SELECT form used
	// elsewhere binds them as given.
	var casts map[string]string
	typed := r.Dialect().ValuesAlias()
	if typed {
		casts = t.casts
	}
	recs, err := r.UpdateMany(ctx, query.UpdateMany{
		Table:     t.target,
		SetKeys:   setKeys,
		WhereKeys: whereKeys,
		Rows:      rows,
		Casts:     casts,
	})
	if err != nil && typed && !errors.Is(err, core.ErrUsage) {
		if missing := t.uncast(setKeys, whereKeys); len(missing) > 0 {
			return nil, fmt.Errorf("%w (columns %s are sent untyped; give %s a cast for them with WithCasts)",
				err, strings.Join(missing, ", "), t.target)
		}
	}
	return recs, err
}

// uncast returns the columns of cols that have no cast.
func (t *Table) uncast(cols ...[]string) []string {
	var missing []string
	for _, group := range cols {
		for _, col := range group {
			if _, ok := t.casts[col]; !ok {
				missing = append(missing, col)
			}
		}
	}
	return missing
}
