// Package database owns the connection pool: opening it, scoped connection
// and transaction acquisition, and the schema version gate that runs before
// any query is served.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rzpsarthak13/lionrow/internal/core"
	"github.com/rzpsarthak13/lionrow/internal/dialect"
)

// Hook runs against a freshly opened connector.
type Hook func(ctx context.Context, c *Connector) error

// Stats reports connector activity.
type Stats struct {
	// Statements counts round trips issued through the connector, its
	// leased connections and its transactions.
	Statements int64

	Pool sql.DBStats
}

// Connector is a pooled connection to the store. It implements core.Conn.
type Connector struct {
	db           *sql.DB
	dialect      core.Dialect
	logger       *slog.Logger
	versionTable string
	statements   atomic.Int64

	mu sync.RWMutex
	// refused is set once the connector must not serve queries: after Close
	// or a failed version gate.
	refused error
}

// Open opens the pool, pings it within the connect timeout, runs the version
// gate and finally the connect hooks. An unreachable store fails with
// core.ErrConnectivity and a version mismatch with a *core.SchemaVersionError.
func Open(ctx context.Context, cfg Config) (*Connector, error) {
	d, err := dialect.Get(cfg.Driver)
	if err != nil {
		return nil, err
	}
	dsn, err := cfg.ConnectionString(d.Name())
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(d.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// Test connection
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		err = d.Classify(err)
		if !errors.Is(err, core.ErrConnectivity) {
			err = fmt.Errorf("%w: %w", core.ErrConnectivity, err)
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	c := New(db, d, cfg.Logger)
	if cfg.VersionTable != "" {
		c.versionTable = cfg.VersionTable
	}
	if !cfg.SkipVersionCheck {
		if err := c.Verify(ctx, cfg.ExpectedVersion); err != nil {
			c.Close()
			return nil, err
		}
	}
	for _, hook := range cfg.OnConnect {
		if err := hook(ctx, c); err != nil {
			c.Close()
			return nil, fmt.Errorf("connect hook failed: %w", err)
		}
	}

	c.logger.Info("database connected", "driver", d.Name(), "max_open_conns", cfg.MaxOpenConns)
	return c, nil
}

// New wraps an already open pool. No version gate runs; call Verify.
func New(db *sql.DB, d core.Dialect, logger *slog.Logger) *Connector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Connector{
		db:           db,
		dialect:      d,
		logger:       logger.With("component", "database"),
		versionTable: DefaultVersionTable,
	}
}

// Dialect returns the SQL dialect of the store.
func (c *Connector) Dialect() core.Dialect {
	return c.dialect
}

// DB returns the underlying pool.
func (c *Connector) DB() *sql.DB {
	return c.db
}

// Stats returns the round-trip counter and pool statistics.
func (c *Connector) Stats() Stats {
	return Stats{Statements: c.statements.Load(), Pool: c.db.Stats()}
}

func (c *Connector) check() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.refused
}

func (c *Connector) refuse(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.refused == nil {
		c.refused = err
	}
}

// QueryContext executes a query that returns rows.
func (c *Connector) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	c.statements.Add(1)
	c.logger.DebugContext(ctx, "executing query", "sql", query, "args", len(args))
	return c.db.QueryContext(ctx, query, args...)
}

// ExecContext executes a statement without returning rows.
func (c *Connector) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	c.statements.Add(1)
	c.logger.DebugContext(ctx, "executing statement", "sql", query, "args", len(args))
	return c.db.ExecContext(ctx, query, args...)
}

// BeginTx starts a transaction on the pool.
func (c *Connector) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	tx, err := c.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", c.dialect.Classify(err))
	}
	return tx, nil
}

// Conn leases one connection from the pool for the duration of fn and
// returns it on every exit path.
func (c *Connector) Conn(ctx context.Context, fn func(conn *Lease) error) error {
	if err := c.check(); err != nil {
		return err
	}
	sc, err := c.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", c.dialect.Classify(err))
	}
	defer sc.Close()
	return fn(&Lease{conn: sc, c: c})
}

// Transaction runs fn inside a transaction. It commits when fn returns nil
// and rolls back when fn returns an error or panics.
func (c *Connector) Transaction(ctx context.Context, fn func(tx *Tx) error) (err error) {
	sqlTx, err := c.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	tx := &Tx{tx: sqlTx, c: c}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				c.logger.Warn("rollback failed", "error", rbErr)
			}
			return
		}
		if cerr := sqlTx.Commit(); cerr != nil {
			err = fmt.Errorf("failed to commit transaction: %w", c.dialect.Classify(cerr))
		}
	}()

	return fn(tx)
}

// Close closes the pool. Later calls fail with core.ErrClosed.
func (c *Connector) Close() error {
	c.mu.Lock()
	if c.refused != nil {
		c.mu.Unlock()
		return nil
	}
	c.refused = core.ErrClosed
	c.mu.Unlock()
	return c.db.Close()
}

// Lease is one connection leased from the pool. It implements core.Conn.
type Lease struct {
	conn *sql.Conn
	c    *Connector
}

// Dialect returns the SQL dialect of the store.
func (l *Lease) Dialect() core.Dialect {
	return l.c.dialect
}

// QueryContext executes a query on the leased connection.
func (l *Lease) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	l.c.statements.Add(1)
	return l.conn.QueryContext(ctx, query, args...)
}

// ExecContext executes a statement on the leased connection.
func (l *Lease) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	l.c.statements.Add(1)
	return l.conn.ExecContext(ctx, query, args...)
}

// BeginTx starts a transaction on the leased connection.
func (l *Lease) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return l.conn.BeginTx(ctx, opts)
}

// Tx is an open transaction. It implements core.Conn.
type Tx struct {
	tx *sql.Tx
	c  *Connector
}

// Dialect returns the SQL dialect of the store.
func (t *Tx) Dialect() core.Dialect {
	return t.c.dialect
}

// QueryContext executes a query inside the transaction.
func (t *Tx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	t.c.statements.Add(1)
	return t.tx.QueryContext(ctx, query, args...)
}

// ExecContext executes a statement inside the transaction.
func (t *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	t.c.statements.Add(1)
	return t.tx.ExecContext(ctx, query, args...)
}
