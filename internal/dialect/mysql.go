package dialect

import (
	"errors"

	"github.com/go-sql-driver/mysql"

	"github.com/rzpsarthak13/lionrow/internal/core"
)

// MySQL speaks MySQL/MariaDB through go-sql-driver. It has no RETURNING, so
// the query runner reads affected rows back inside a transaction.
type MySQL struct{}

func init() {
	Register(MySQL{}, "mariadb")
}

func (MySQL) Name() string                  { return "mysql" }
func (MySQL) DriverName() string            { return "mysql" }
func (MySQL) Placeholder(int) string        { return "?" }
func (MySQL) QuoteIdent(name string) string { return quoteWith("`", name) }
func (MySQL) Returning() bool               { return false }
func (MySQL) Upsert() core.UpsertSyntax     { return core.UpsertOnDuplicateKey }
func (MySQL) UpdateFrom() bool              { return false }
func (MySQL) ValuesAlias() bool             { return false }
func (MySQL) DefaultValues() string         { return "() VALUES ()" }
func (MySQL) NullsOrder() bool              { return false }

// mysqlConstraintErrors are server error numbers for rejected rows.
var mysqlConstraintErrors = map[uint16]bool{
	1048: true, // column cannot be null
	1062: true, // duplicate entry
	1216: true, // cannot add child row (legacy)
	1217: true, // cannot delete parent row (legacy)
	1451: true, // cannot delete or update parent row
	1452: true, // cannot add or update child row
	3819: true, // check constraint violated
}

// mysqlConnectivityErrors are server error numbers for operational failures.
var mysqlConnectivityErrors = map[uint16]bool{
	1040: true, // too many connections
	1053: true, // server shutdown in progress
	2006: true, // server has gone away
	2013: true, // lost connection during query
}

// Classify maps MySQL server error numbers onto the core error kinds.
func (MySQL) Classify(err error) error {
	if err == nil {
		return nil
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch {
		case mysqlConstraintErrors[myErr.Number]:
			return wrapKind(core.ErrConstraintViolation, err)
		case mysqlConnectivityErrors[myErr.Number]:
			return wrapKind(core.ErrConnectivity, err)
		}
		return err
	}
	if errors.Is(err, mysql.ErrInvalidConn) {
		return wrapKind(core.ErrConnectivity, err)
	}
	return classifyCommon(err)
}
