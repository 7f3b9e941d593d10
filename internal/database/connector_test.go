package database

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzpsarthak13/lionrow/internal/core"
	"github.com/rzpsarthak13/lionrow/internal/dialect"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		Driver:           "sqlite3",
		Database:         filepath.Join(t.TempDir(), "lion.db"),
		MaxOpenConns:     1,
		SkipVersionCheck: true,
		Logger:           testLogger(),
	}
}

// stamp opens the database at cfg, records the given versions and closes it.
func stamp(t *testing.T, cfg Config, versions ...int) {
	t.Helper()
	cfg.SkipVersionCheck = true
	c, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.CreateVersionTable(context.Background()))
	for _, v := range versions {
		_, err := c.RecordVersion(context.Background(), v, "tester")
		require.NoError(t, err)
	}
}

func TestOpen_VersionGatePasses(t *testing.T) {
	cfg := testConfig(t)
	stamp(t, cfg, 7, 9)

	cfg.SkipVersionCheck = false
	cfg.ExpectedVersion = 9
	c, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer c.Close()

	v, err := c.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 9, v.Number)
	assert.Equal(t, "tester", v.Author)
	assert.False(t, v.AppliedAt.IsZero())
}

func TestOpen_SchemaMismatchRefusesToStart(t *testing.T) {
	cfg := testConfig(t)
	stamp(t, cfg, 7)

	cfg.SkipVersionCheck = false
	cfg.ExpectedVersion = 9
	hookRan := false
	cfg.OnConnect = []Hook{func(context.Context, *Connector) error {
		hookRan = true
		return nil
	}}

	c, err := Open(context.Background(), cfg)
	require.Error(t, err)
	assert.Nil(t, c)
	assert.False(t, hookRan)
	assert.ErrorIs(t, err, core.ErrSchemaVersionMismatch)

	var mismatch *core.SchemaVersionError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, 7, mismatch.Found)
	assert.Equal(t, 9, mismatch.Expected)
	assert.Contains(t, err.Error(), "please migrate database")
}

func TestVerify_RefusesEveryLaterCall(t *testing.T) {
	cfg := testConfig(t)
	stamp(t, cfg, 7)

	db, err := sql.Open("sqlite3", cfg.Database)
	require.NoError(t, err)
	c := New(db, dialect.SQLite{}, testLogger())

	err = c.Verify(context.Background(), 9)
	require.ErrorIs(t, err, core.ErrSchemaVersionMismatch)
	before := c.Stats().Statements

	_, err = c.QueryContext(context.Background(), "SELECT 1")
	assert.ErrorIs(t, err, core.ErrSchemaVersionMismatch)
	_, err = c.ExecContext(context.Background(), "SELECT 1")
	assert.ErrorIs(t, err, core.ErrSchemaVersionMismatch)
	err = c.Transaction(context.Background(), func(*Tx) error { return nil })
	assert.ErrorIs(t, err, core.ErrSchemaVersionMismatch)
	_, err = c.Version(context.Background())
	assert.ErrorIs(t, err, core.ErrSchemaVersionMismatch)

	assert.Equal(t, before, c.Stats().Statements)
}

func TestVersion_EmptyHistory(t *testing.T) {
	c, err := Open(context.Background(), testConfig(t))
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.CreateVersionTable(context.Background()))

	v, err := c.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, NoVersion, v.Number)
}

func TestOpen_Unreachable(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database = "file:" + filepath.Join(t.TempDir(), "missing", "lion.db") + "?mode=ro"

	_, err := Open(context.Background(), cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrConnectivity)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "oracle", DSN: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func newSchema(t *testing.T) *Connector {
	t.Helper()
	c, err := Open(context.Background(), testConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	_, err = c.ExecContext(context.Background(), `CREATE TABLE coins (id INTEGER PRIMARY KEY, amount INTEGER)`)
	require.NoError(t, err)
	return c
}

func countCoins(t *testing.T, c *Connector) int {
	t.Helper()
	var n int
	rows, err := c.QueryContext(context.Background(), `SELECT COUNT(*) FROM coins`)
	require.NoError(t, err)
	defer rows.Close()
	require.True(t, rows.Next())
	require.NoError(t, rows.Scan(&n))
	return n
}

func TestTransaction_CommitsAndRollsBack(t *testing.T) {
	c := newSchema(t)
	ctx := context.Background()

	err := c.Transaction(ctx, func(tx *Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO coins (id, amount) VALUES (1, 10)`)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, countCoins(t, c))

	boom := errors.New("boom")
	err = c.Transaction(ctx, func(tx *Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO coins (id, amount) VALUES (2, 20)`)
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, countCoins(t, c))

	assert.Panics(t, func() {
		_ = c.Transaction(ctx, func(tx *Tx) error {
			_, err := tx.ExecContext(ctx, `INSERT INTO coins (id, amount) VALUES (3, 30)`)
			require.NoError(t, err)
			panic("handler crashed")
		})
	})
	assert.Equal(t, 1, countCoins(t, c))
}

func TestConn_LeaseIsReleased(t *testing.T) {
	c := newSchema(t)
	ctx := context.Background()

	err := c.Conn(ctx, func(conn *Lease) error {
		assert.Equal(t, "sqlite3", conn.Dialect().Name())
		_, err := conn.ExecContext(ctx, `INSERT INTO coins (id, amount) VALUES (1, 10)`)
		return err
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = c.Conn(ctx, func(*Lease) error { return boom })
	assert.ErrorIs(t, err, boom)

	// With a single pooled connection this blocks forever if a lease leaked.
	assert.Equal(t, 1, countCoins(t, c))
}

func TestStats_CountsRoundTrips(t *testing.T) {
	c := newSchema(t)
	ctx := context.Background()
	before := c.Stats().Statements

	_, err := c.ExecContext(ctx, `INSERT INTO coins (id, amount) VALUES (1, 10)`)
	require.NoError(t, err)
	err = c.Transaction(ctx, func(tx *Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE coins SET amount = amount + 1`)
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, before+2, c.Stats().Statements)
}

func TestClose(t *testing.T) {
	c, err := Open(context.Background(), testConfig(t))
	require.NoError(t, err)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err = c.QueryContext(context.Background(), "SELECT 1")
	assert.ErrorIs(t, err, core.ErrClosed)
}

func TestConnectionString(t *testing.T) {
	dsn, err := Config{Host: "db", Database: "lion", Username: "u", Password: "p"}.ConnectionString("mysql")
	require.NoError(t, err)
	assert.Contains(t, dsn, "u:p@tcp(db:3306)/lion")
	assert.Contains(t, dsn, "parseTime=true")

	dsn, err = Config{Host: "db", Port: 6543, Database: "lion", Username: "u", Password: "p", SSLMode: "disable"}.ConnectionString("postgres")
	require.NoError(t, err)
	assert.Contains(t, dsn, "postgres://u:p@db:6543/lion?")
	assert.Contains(t, dsn, "sslmode=disable")

	dsn, err = Config{DSN: "explicit"}.ConnectionString("postgres")
	require.NoError(t, err)
	assert.Equal(t, "explicit", dsn)

	_, err = Config{}.ConnectionString("sqlite3")
	assert.Error(t, err)
}
