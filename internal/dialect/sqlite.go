package dialect

import (
	"errors"

	"github.com/mattn/go-sqlite3"

	"github.com/rzpsarthak13/lionrow/internal/core"
)

// SQLite speaks SQLite 3.35+ through go-sqlite3, which covers RETURNING,
// ON CONFLICT upserts and UPDATE ... FROM.
type SQLite struct{}

func init() {
	Register(SQLite{}, "sqlite")
}

func (SQLite) Name() string                  { return "sqlite3" }
func (SQLite) DriverName() string            { return "sqlite3" }
func (SQLite) Placeholder(int) string        { return "?" }
func (SQLite) QuoteIdent(name string) string { return quoteWith(`"`, name) }
func (SQLite) Returning() bool               { return true }
func (SQLite) Upsert() core.UpsertSyntax     { return core.UpsertOnConflict }
func (SQLite) UpdateFrom() bool              { return true }
func (SQLite) ValuesAlias() bool             { return false }
func (SQLite) DefaultValues() string         { return "DEFAULT VALUES" }
func (SQLite) NullsOrder() bool              { return true }

// Classify maps SQLite result codes onto the core error kinds. Busy and
// locked databases are treated as operational failures.
func (SQLite) Classify(err error) error {
	if err == nil {
		return nil
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code {
		case sqlite3.ErrConstraint:
			return wrapKind(core.ErrConstraintViolation, err)
		case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrCantOpen, sqlite3.ErrIoErr:
			return wrapKind(core.ErrConnectivity, err)
		}
		return err
	}
	return classifyCommon(err)
}
