package dialect

import (
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/rzpsarthak13/lionrow/internal/core"
)

// Postgres speaks PostgreSQL through the pgx database/sql driver.
type Postgres struct{}

func init() {
	Register(Postgres{}, "postgresql", "pgx")
}

func (Postgres) Name() string                  { return "postgres" }
func (Postgres) DriverName() string            { return "pgx" }
func (Postgres) Placeholder(n int) string      { return "$" + strconv.Itoa(n) }
func (Postgres) QuoteIdent(name string) string { return quoteWith(`"`, name) }
func (Postgres) Returning() bool               { return true }
func (Postgres) Upsert() core.UpsertSyntax     { return core.UpsertOnConflict }
func (Postgres) UpdateFrom() bool              { return true }
func (Postgres) ValuesAlias() bool             { return true }
func (Postgres) DefaultValues() string         { return "DEFAULT VALUES" }
func (Postgres) NullsOrder() bool              { return true }

// Classify maps SQLSTATE classes: 23 is integrity constraint violation;
// 08 (connection exception), 53 (insufficient resources) and the 57P0x
// shutdown codes are operational failures.
func (Postgres) Classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "23"):
			return wrapKind(core.ErrConstraintViolation, err)
		case strings.HasPrefix(pgErr.Code, "08"),
			strings.HasPrefix(pgErr.Code, "53"),
			strings.HasPrefix(pgErr.Code, "57P0"):
			return wrapKind(core.ErrConnectivity, err)
		}
		return err
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return wrapKind(core.ErrConnectivity, err)
	}
	return classifyCommon(err)
}
