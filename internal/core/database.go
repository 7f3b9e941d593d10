package core

import (
	"context"
	"database/sql"
)

// Executor runs parameterized statements. *sql.DB, *sql.Conn, *sql.Tx and
// the database Connector all satisfy it.
type Executor interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// TxBeginner is implemented by executors that can open a transaction.
// Statements that need more than one round trip use it when available.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Conn is an executor that knows which SQL dialect it speaks.
type Conn interface {
	Executor
	Dialect() Dialect
}

// UpsertSyntax selects how a dialect renders insert-or-update.
type UpsertSyntax int

const (
	// UpsertOnConflict renders INSERT ... ON CONFLICT (...) DO UPDATE SET ...
	UpsertOnConflict UpsertSyntax = iota

	// UpsertOnDuplicateKey renders INSERT ... ON DUPLICATE KEY UPDATE ...
	UpsertOnDuplicateKey
)

// Dialect describes the SQL differences the query builder has to care about.
type Dialect interface {
	// Name returns the dialect identifier, e.g. "postgres".
	Name() string

	// DriverName returns the database/sql driver name to open.
	DriverName() string

	// Placeholder returns the bind marker for the n-th parameter (1-based).
	Placeholder(n int) string

	// QuoteIdent quotes a single identifier.
	QuoteIdent(name string) string

	// Returning reports whether INSERT/UPDATE/DELETE support RETURNING.
	Returning() bool

	// Upsert returns the insert-or-update syntax.
	Upsert() UpsertSyntax

	// UpdateFrom reports whether UPDATE supports a FROM clause. Dialects
	// without it join the values table instead.
	UpdateFrom() bool

	// ValuesAlias reports whether a VALUES list may be aliased with column
	// names, as in (VALUES ...) AS t (a, b).
	ValuesAlias() bool

	// DefaultValues returns the clause for an insert with no columns.
	DefaultValues() string

	// NullsOrder reports whether ORDER BY accepts NULLS FIRST and NULLS
	// LAST. Dialects without it sort on an IS NULL term instead.
	NullsOrder() bool

	// Classify maps a driver error onto the core error kinds. Errors that
	// belong to no kind are returned unchanged.
	Classify(err error) error
}
