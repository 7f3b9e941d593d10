package query

import (
	"context"
	"fmt"

	"github.com/rzpsarthak13/lionrow/internal/core"
	"github.com/rzpsarthak13/lionrow/internal/expr"
)

// emulate runs fn inside one transaction when the executor can open one, for
// dialects that cannot return affected rows from the statement itself. When
// the runner already executes inside a transaction fn runs directly.
func (r *Runner) emulate(ctx context.Context, fn func(tr *Runner) ([]core.Record, error)) (recs []core.Record, err error) {
	tb, ok := r.db.(core.TxBeginner)
	if !ok {
		return fn(r)
	}
	tx, err := tb.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", r.dialect.Classify(err))
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if cerr := tx.Commit(); cerr != nil {
			recs, err = nil, fmt.Errorf("failed to commit transaction: %w", r.dialect.Classify(cerr))
		}
	}()
	return fn(r.With(tx))
}

func (r *Runner) insertReadBack(ctx context.Context, s Insert) ([]core.Record, error) {
	res, err := r.exec(ctx, "insert into", s.Table, s)
	if err != nil {
		return nil, err
	}
	if s.OnConflictIgnore {
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return nil, nil
		}
	}
	key, ok := core.KeyOf(s.Values, s.Table.Key)
	if !ok {
		if len(s.Table.Key) != 1 {
			return nil, core.Usagef("cannot read back row inserted into %s without its key", s.Table)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("failed to read generated key of %s: %w", s.Table, err)
		}
		key = core.Key{id}
	}
	return r.selectKeys(ctx, s.Table, s.Table.Key, []core.Key{key})
}

func (r *Runner) insertManyReadBack(ctx context.Context, s InsertMany) ([]core.Record, error) {
	res, err := r.exec(ctx, "insert into", s.Table, s)
	if err != nil {
		return nil, err
	}
	if s.OnConflictIgnore {
		// Without RETURNING the skipped rows cannot be told apart from the
		// inserted ones unless nothing was skipped.
		if n, err := res.RowsAffected(); err != nil || n != int64(len(s.Rows)) {
			return nil, err
		}
	}

	keys := make([]core.Key, 0, len(s.Rows))
	for _, row := range s.Rows {
		rec := make(core.Record, len(s.Columns))
		for i, col := range s.Columns {
			rec[col] = row[i]
		}
		key, ok := core.KeyOf(rec, s.Table.Key)
		if !ok {
			keys = nil
			break
		}
		keys = append(keys, key)
	}
	if keys != nil {
		return r.selectKeys(ctx, s.Table, s.Table.Key, keys)
	}

	if len(s.Table.Key) != 1 {
		return nil, core.Usagef("cannot read back rows inserted into %s without their keys", s.Table)
	}
	// Generated keys of a multi-row insert are consecutive from the first.
	first, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read generated keys of %s: %w", s.Table, err)
	}
	keys = make([]core.Key, len(s.Rows))
	for i := range keys {
		keys[i] = core.Key{first + int64(i)}
	}
	return r.selectKeys(ctx, s.Table, s.Table.Key, keys)
}

func (r *Runner) updateReadBack(ctx context.Context, s Update) ([]core.Record, error) {
	for _, col := range s.Table.Key {
		if _, ok := s.Set[col]; ok {
			return nil, core.Usagef("cannot update key column %s of %s without RETURNING support", col, s.Table)
		}
	}
	keys, err := r.lockKeys(ctx, s.Table, s.Where)
	if err != nil || len(keys) == 0 {
		return nil, err
	}
	if _, err := r.exec(ctx, "update", s.Table, s); err != nil {
		return nil, err
	}
	return r.selectKeys(ctx, s.Table, s.Table.Key, keys)
}

func (r *Runner) deleteReadBack(ctx context.Context, s Delete) ([]core.Record, error) {
	recs, err := r.query(ctx, "select from", s.Table, Select{Table: s.Table, Where: s.Where, ForUpdate: true})
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	if _, err := r.exec(ctx, "delete from", s.Table, s); err != nil {
		return nil, err
	}
	return recs, nil
}

func (r *Runner) upsertReadBack(ctx context.Context, s Upsert) ([]core.Record, error) {
	key, ok := core.KeyOf(s.Values, s.Conflict)
	if !ok {
		return nil, core.Usagef("upsert into %s must supply every conflict column", s.Table)
	}
	if _, err := r.exec(ctx, "upsert into", s.Table, s); err != nil {
		return nil, err
	}
	return r.selectKeys(ctx, s.Table, s.Conflict, []core.Key{key})
}

func (r *Runner) updateManyReadBack(ctx context.Context, s UpdateMany) ([]core.Record, error) {
	if _, err := r.exec(ctx, "update", s.Table, s); err != nil {
		return nil, err
	}
	offset := len(s.SetKeys)
	keys := make([]core.Key, len(s.Rows))
	for i, row := range s.Rows {
		keys[i] = core.Key(row[offset:])
	}
	return r.selectKeys(ctx, s.Table, s.WhereKeys, keys)
}

// lockKeys selects the primary keys of matching rows FOR UPDATE.
func (r *Runner) lockKeys(ctx context.Context, t Target, where []expr.Condition) ([]core.Key, error) {
	if len(t.Key) == 0 {
		return nil, core.Usagef("cannot read back rows of %s without a primary key", t)
	}
	recs, err := r.query(ctx, "select from", t, Select{Table: t, Columns: t.Key, Where: where, ForUpdate: true})
	if err != nil {
		return nil, err
	}
	keys := make([]core.Key, 0, len(recs))
	for _, rec := range recs {
		key, _ := core.KeyOf(rec, t.Key)
		keys = append(keys, key)
	}
	return keys, nil
}

// selectKeys selects the rows identified by keys over cols and returns them
// in the order of keys. Keys with no row are skipped.
func (r *Runner) selectKeys(ctx context.Context, t Target, cols []string, keys []core.Key) ([]core.Record, error) {
	if len(cols) == 0 {
		return nil, core.Usagef("cannot read back rows of %s without a primary key", t)
	}
	recs, err := r.query(ctx, "select from", t, Select{Table: t, Where: []expr.Condition{KeyIn(cols, keys)}})
	if err != nil {
		return nil, err
	}
	byKey := make(map[string]core.Record, len(recs))
	for _, rec := range recs {
		if key, ok := core.KeyOf(rec, cols); ok {
			byKey[key.ID()] = rec
		}
	}
	ordered := make([]core.Record, 0, len(keys))
	for _, key := range keys {
		if rec, ok := byKey[key.ID()]; ok {
			ordered = append(ordered, rec)
		}
	}
	return ordered, nil
}

// KeyEq matches the single row identified by key over cols.
func KeyEq(cols []string, key core.Key) expr.Condition {
	if len(cols) != len(key) {
		return expr.Invalid(core.Usagef("key %v has %d values for %d key columns", key, len(key), len(cols)))
	}
	conds := make([]expr.Condition, len(cols))
	for i, col := range cols {
		conds[i] = expr.Eq(expr.C(col), key[i])
	}
	return expr.And(conds...)
}

// KeyIn matches the rows identified by keys over cols, using a row-value IN
// for composite keys.
func KeyIn(cols []string, keys []core.Key) expr.Condition {
	if len(cols) == 1 {
		vals := make([]any, len(keys))
		for i, key := range keys {
			if len(key) != 1 {
				return expr.Invalid(core.Usagef("key %v has %d values for 1 key column", key, len(key)))
			}
			vals[i] = key[0]
		}
		return expr.In(expr.C(cols[0]), vals...)
	}
	idents := make([]any, len(cols))
	for i, col := range cols {
		idents[i] = expr.C(col)
	}
	tuples := make([]any, len(keys))
	for i, key := range keys {
		if len(key) != len(cols) {
			return expr.Invalid(core.Usagef("key %v has %d values for %d key columns", key, len(key), len(cols)))
		}
		tuples[i] = expr.Tuple(key...)
	}
	return expr.In(expr.Tuple(idents...), tuples...)
}
