package query

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/rzpsarthak13/lionrow/internal/core"
)

// Runner executes statements against an executor and returns the affected
// rows. It never caches results.
type Runner struct {
	db      core.Executor
	dialect core.Dialect
	logger  *slog.Logger
}

// NewRunner returns a runner executing through conn.
func NewRunner(conn core.Conn, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		db:      conn,
		dialect: conn.Dialect(),
		logger:  logger.With("component", "query"),
	}
}

// With returns a runner using the same dialect that executes through db,
// typically a *sql.Tx or *sql.Conn.
func (r *Runner) With(db core.Executor) *Runner {
	return &Runner{db: db, dialect: r.dialect, logger: r.logger}
}

// Dialect returns the runner's dialect.
func (r *Runner) Dialect() core.Dialect {
	return r.dialect
}

// Select returns every matching row in server order. An empty result is not
// an error.
func (r *Runner) Select(ctx context.Context, s Select) ([]core.Record, error) {
	return r.query(ctx, "select from", s.Table, s)
}

// SelectOne returns the first matching row, or nil if there is none.
func (r *Runner) SelectOne(ctx context.Context, s Select) (core.Record, error) {
	s.Limit = 1
	recs, err := r.Select(ctx, s)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return recs[0], nil
}

// Insert inserts one row and returns it with server defaults populated. An
// ignoring insert that hit a conflict returns a nil record.
func (r *Runner) Insert(ctx context.Context, s Insert) (core.Record, error) {
	var recs []core.Record
	var err error
	if r.dialect.Returning() {
		recs, err = r.query(ctx, "insert into", s.Table, s)
	} else {
		recs, err = r.emulate(ctx, func(tr *Runner) ([]core.Record, error) { return tr.insertReadBack(ctx, s) })
	}
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		if s.OnConflictIgnore {
			return nil, nil
		}
		return nil, fmt.Errorf("insert into %s returned no row", s.Table)
	}
	return recs[0], nil
}

// InsertMany inserts all rows in one statement and returns them in insertion
// order. Zero rows issue no statement.
func (r *Runner) InsertMany(ctx context.Context, s InsertMany) ([]core.Record, error) {
	if len(s.Rows) == 0 {
		return nil, nil
	}
	if r.dialect.Returning() {
		return r.query(ctx, "insert into", s.Table, s)
	}
	return r.emulate(ctx, func(tr *Runner) ([]core.Record, error) { return tr.insertManyReadBack(ctx, s) })
}

// Update applies the assignments and returns every affected row.
func (r *Runner) Update(ctx context.Context, s Update) ([]core.Record, error) {
	if r.dialect.Returning() {
		return r.query(ctx, "update", s.Table, s)
	}
	return r.emulate(ctx, func(tr *Runner) ([]core.Record, error) { return tr.updateReadBack(ctx, s) })
}

// Delete removes matching rows and returns them as they were.
func (r *Runner) Delete(ctx context.Context, s Delete) ([]core.Record, error) {
	if r.dialect.Returning() {
		return r.query(ctx, "delete from", s.Table, s)
	}
	return r.emulate(ctx, func(tr *Runner) ([]core.Record, error) { return tr.deleteReadBack(ctx, s) })
}

// Upsert inserts or overwrites one row and returns it.
func (r *Runner) Upsert(ctx context.Context, s Upsert) (core.Record, error) {
	var recs []core.Record
	var err error
	if r.dialect.Returning() {
		recs, err = r.query(ctx, "upsert into", s.Table, s)
	} else {
		recs, err = r.emulate(ctx, func(tr *Runner) ([]core.Record, error) { return tr.upsertReadBack(ctx, s) })
	}
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("upsert into %s returned no row", s.Table)
	}
	return recs[0], nil
}

// UpdateMany applies per-row values in one statement and returns the
// affected rows. Zero rows issue no statement.
func (r *Runner) UpdateMany(ctx context.Context, s UpdateMany) ([]core.Record, error) {
	if len(s.Rows) == 0 {
		return nil, nil
	}
	if r.dialect.Returning() {
		return r.query(ctx, "update", s.Table, s)
	}
	return r.emulate(ctx, func(tr *Runner) ([]core.Record, error) { return tr.updateManyReadBack(ctx, s) })
}

// query builds s, runs it as a query and scans every returned row.
func (r *Runner) query(ctx context.Context, verb string, t Target, s Statement) ([]core.Record, error) {
	text, args, err := s.Build(r.dialect)
	if err != nil {
		return nil, err
	}
	r.logger.DebugContext(ctx, "executing statement", "table", t.String(), "sql", text, "args", len(args))

	rows, err := r.db.QueryContext(ctx, text, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to %s %s: %w", verb, t, r.dialect.Classify(err))
	}
	recs, err := scanRecords(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows from %s: %w", t, r.dialect.Classify(err))
	}
	return recs, nil
}

// exec builds s and runs it without reading rows.
func (r *Runner) exec(ctx context.Context, verb string, t Target, s Statement) (sql.Result, error) {
	text, args, err := s.Build(r.dialect)
	if err != nil {
		return nil, err
	}
	r.logger.DebugContext(ctx, "executing statement", "table", t.String(), "sql", text, "args", len(args))

	res, err := r.db.ExecContext(ctx, text, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to %s %s: %w", verb, t, r.dialect.Classify(err))
	}
	return res, nil
}

// scanRecords reads and closes rows, normalizing driver values.
func scanRecords(rows *sql.Rows) ([]core.Record, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var recs []core.Record
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		rec := make(core.Record, len(cols))
		for i, col := range cols {
			rec[col] = core.NormalizeValue(values[i])
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return recs, nil
}
