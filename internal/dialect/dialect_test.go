package dialect

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzpsarthak13/lionrow/internal/core"
)

func TestGet(t *testing.T) {
	for name, want := range map[string]string{
		"postgres":   "postgres",
		"PostgreSQL": "postgres",
		"pgx":        "postgres",
		"mysql":      "mysql",
		"mariadb":    "mysql",
		"sqlite3":    "sqlite3",
		"sqlite":     "sqlite3",
	} {
		t.Run(name, func(t *testing.T) {
			d, err := Get(name)
			require.NoError(t, err)
			assert.Equal(t, want, d.Name())
		})
	}

	_, err := Get("oracle")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func TestPlaceholdersAndQuoting(t *testing.T) {
	assert.Equal(t, "$3", Postgres{}.Placeholder(3))
	assert.Equal(t, "?", MySQL{}.Placeholder(3))
	assert.Equal(t, "?", SQLite{}.Placeholder(3))

	assert.Equal(t, `"we""ird"`, Postgres{}.QuoteIdent(`we"ird`))
	assert.Equal(t, "`we``ird`", MySQL{}.QuoteIdent("we`ird"))
	assert.Equal(t, `"members"`, SQLite{}.QuoteIdent("members"))
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name    string
		dialect core.Dialect
		err     error
		want    error
	}{
		{"pg unique", Postgres{}, &pgconn.PgError{Code: "23505"}, core.ErrConstraintViolation},
		{"pg fk", Postgres{}, &pgconn.PgError{Code: "23503"}, core.ErrConstraintViolation},
		{"pg connection", Postgres{}, &pgconn.PgError{Code: "08006"}, core.ErrConnectivity},
		{"pg shutdown", Postgres{}, &pgconn.PgError{Code: "57P01"}, core.ErrConnectivity},
		{"mysql duplicate", MySQL{}, &mysql.MySQLError{Number: 1062}, core.ErrConstraintViolation},
		{"mysql fk", MySQL{}, &mysql.MySQLError{Number: 1452}, core.ErrConstraintViolation},
		{"mysql gone away", MySQL{}, &mysql.MySQLError{Number: 2006}, core.ErrConnectivity},
		{"mysql invalid conn", MySQL{}, mysql.ErrInvalidConn, core.ErrConnectivity},
		{"sqlite constraint", SQLite{}, sqlite3.Error{Code: sqlite3.ErrConstraint}, core.ErrConstraintViolation},
		{"sqlite busy", SQLite{}, sqlite3.Error{Code: sqlite3.ErrBusy}, core.ErrConnectivity},
		{"bad conn", SQLite{}, driver.ErrBadConn, core.ErrConnectivity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wrapped := fmt.Errorf("statement failed: %w", tc.err)
			got := tc.dialect.Classify(wrapped)
			assert.ErrorIs(t, got, tc.want)
			assert.ErrorIs(t, got, tc.err)
		})
	}
}

func TestClassify_LeavesOtherErrorsAlone(t *testing.T) {
	plain := errors.New("syntax error")
	assert.Same(t, plain, Postgres{}.Classify(plain))
	assert.Nil(t, MySQL{}.Classify(nil))

	syntax := &pgconn.PgError{Code: "42601"}
	got := Postgres{}.Classify(syntax)
	assert.False(t, errors.Is(got, core.ErrConstraintViolation))
	assert.False(t, errors.Is(got, core.ErrConnectivity))
}

func TestClassify_DoesNotDoubleWrap(t *testing.T) {
	once := SQLite{}.Classify(sqlite3.Error{Code: sqlite3.ErrConstraint})
	twice := SQLite{}.Classify(once)
	assert.Equal(t, once.Error(), twice.Error())
}
