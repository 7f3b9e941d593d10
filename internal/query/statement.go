// Package query renders and executes the statement kinds the data layer
// needs: select, insert, multi-row insert, update, delete, upsert and the
// correlated multi-row update. Statements are plain values that build to SQL
// text plus parameters for a dialect; the Runner executes them.
package query

import (
	"sort"

	"github.com/rzpsarthak13/lionrow/internal/core"
	"github.com/rzpsarthak13/lionrow/internal/expr"
)

// DefaultSchema is the schema name that is left out of rendered identifiers.
const DefaultSchema = "public"

// Target identifies a table and its primary key columns.
type Target struct {
	Schema string
	Name   string
	Key    []string
}

// Ident returns the table reference, schema-qualified unless the schema is
// empty or the default.
func (t Target) Ident() expr.Ident {
	if t.Schema == "" || t.Schema == DefaultSchema {
		return expr.Col(t.Name)
	}
	return expr.Col(t.Schema, t.Name)
}

// String returns the unquoted qualified name.
func (t Target) String() string {
	if t.Schema == "" || t.Schema == DefaultSchema {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

// Statement builds SQL text and parameters for a dialect.
type Statement interface {
	Build(d core.Dialect) (string, []any, error)
}

// Assignment computes the new value of a column in an UPDATE from the
// column itself.
type Assignment interface {
	Assign(column expr.Ident) expr.Expression
}

type increment struct {
	by any
}

func (i increment) Assign(column expr.Ident) expr.Expression {
	return expr.Add(column, i.by)
}

// Increment adds n to the column in place, rendering col = (col + ?), so
// concurrent increments never lose an update.
func Increment(n any) Assignment {
	return increment{by: n}
}

// Select renders SELECT <columns> FROM <table> [JOIN ...] [WHERE ...]
// [GROUP BY ...] [extra] [ORDER BY ...] [LIMIT ?].
type Select struct {
	Table   Target
	Columns []string

	// Fields are computed columns rendered after Columns.
	Fields []Field

	Joins   []Join
	Where   []expr.Condition
	GroupBy []expr.Expression

	// Extra is rendered after GROUP BY with its parameters bound, e.g.
	// expr.Raw("HAVING SUM(coins) > ?", 100).
	Extra expr.Expression

	OrderBy   []Order
	Limit     int
	ForUpdate bool
}

// Build implements Statement.
func (s Select) Build(d core.Dialect) (string, []any, error) {
	b := expr.NewBuilder(d)
	b.WriteString("SELECT ")
	s.writeSelectList(b)
	b.WriteString(" FROM ")
	b.Append(s.Table.Ident())
	for _, j := range s.Joins {
		j.appendSQL(b)
	}
	writeWhere(b, s.Where)
	if len(s.GroupBy) > 0 {
		b.WriteString(" GROUP BY ")
		b.AppendList(", ", s.GroupBy)
	}
	if s.Extra != nil {
		b.WriteString(" ")
		b.Append(s.Extra)
	}
	if len(s.OrderBy) > 0 {
		b.WriteString(" ORDER BY ")
		for i, o := range s.OrderBy {
			if i > 0 {
				b.WriteString(", ")
			}
			o.appendSQL(b)
		}
	}
	if s.Limit > 0 {
		b.WriteString(" LIMIT ")
		b.WriteArg(s.Limit)
	}
	if s.ForUpdate {
		b.WriteString(" FOR UPDATE")
	}
	return finish(b)
}

func (s Select) writeSelectList(b *expr.Builder) {
	if len(s.Fields) == 0 {
		writeColumns(b, s.Columns)
		return
	}
	if len(s.Columns) > 0 {
		writeColumns(b, s.Columns)
		b.WriteString(", ")
	}
	for i, f := range s.Fields {
		if i > 0 {
			b.WriteString(", ")
		}
		if f.Expr == nil || f.Alias == "" {
			b.Fail(core.Usagef("select field %d of %s needs an expression and an alias", i, s.Table))
			return
		}
		b.Append(f.Expr)
		b.WriteString(" AS ")
		b.WriteIdent(f.Alias)
	}
}

// Field is a computed select column, rendered as <expr> AS <alias>.
type Field struct {
	Expr  expr.Expression
	Alias string
}

// As names the result of e in a select list.
func As(e expr.Expression, alias string) Field {
	return Field{Expr: e, Alias: alias}
}

// JoinKind picks the join operator.
type JoinKind int

const (
	InnerJoin JoinKind = iota
	LeftJoin
)

// Join adds another table to a Select. Exactly one of On, Using and
// Natural must be given.
type Join struct {
	Kind    JoinKind
	Table   Target
	Alias   string
	On      []expr.Condition
	Using   []string
	Natural bool
}

func (j Join) appendSQL(b *expr.Builder) {
	forms := 0
	if !isEmpty(j.On) {
		forms++
	}
	if len(j.Using) > 0 {
		forms++
	}
	if j.Natural {
		forms++
	}
	if forms != 1 {
		b.Fail(core.Usagef("join of %s needs exactly one of ON, USING or NATURAL", j.Table))
		return
	}

	b.WriteString(" ")
	if j.Natural {
		b.WriteString("NATURAL ")
	}
	if j.Kind == LeftJoin {
		b.WriteString("LEFT JOIN ")
	} else {
		b.WriteString("INNER JOIN ")
	}
	b.Append(j.Table.Ident())
	if j.Alias != "" {
		b.WriteString(" AS ")
		b.WriteIdent(j.Alias)
	}
	switch {
	case len(j.Using) > 0:
		b.WriteString(" USING")
		writeColumnList(b, j.Using)
	case !j.Natural:
		cond := expr.And(j.On...)
		if err := cond.Err(); err != nil {
			b.Fail(err)
			return
		}
		b.WriteString(" ON ")
		b.Append(cond)
	}
}

// Direction is a sort direction. The zero value leaves it to the store,
// which sorts ascending.
type Direction int

const (
	DefaultDirection Direction = iota
	Ascending
	Descending
)

// Nulls places NULLs within a sort. The zero value leaves it to the store.
type Nulls int

const (
	DefaultNulls Nulls = iota
	NullsFirst
	NullsLast
)

// Order is one ORDER BY term.
type Order struct {
	Expr      expr.Expression
	Direction Direction
	Nulls     Nulls
}

// Asc sorts by e ascending.
func Asc(e expr.Expression) Order { return Order{Expr: e, Direction: Ascending} }

// Desc sorts by e descending.
func Desc(e expr.Expression) Order { return Order{Expr: e, Direction: Descending} }

// WithNulls returns o with NULLs placed first or last.
func (o Order) WithNulls(n Nulls) Order {
	o.Nulls = n
	return o
}

func (o Order) appendSQL(b *expr.Builder) {
	if o.Expr == nil {
		b.Fail(core.Usagef("order term has no expression"))
		return
	}
	if o.Nulls != DefaultNulls && !b.Dialect().NullsOrder() {
		b.Append(o.Expr)
		if o.Nulls == NullsFirst {
			b.WriteString(" IS NULL DESC, ")
		} else {
			b.WriteString(" IS NULL ASC, ")
		}
	}
	b.Append(o.Expr)
	switch o.Direction {
	case Ascending:
		b.WriteString(" ASC")
	case Descending:
		b.WriteString(" DESC")
	}
	if b.Dialect().NullsOrder() {
		switch o.Nulls {
		case NullsFirst:
			b.WriteString(" NULLS FIRST")
		case NullsLast:
			b.WriteString(" NULLS LAST")
		}
	}
}

// Insert renders INSERT INTO <table> (<cols>) VALUES (...) RETURNING *.
// Columns are rendered in sorted order.
type Insert struct {
	Table  Target
	Values map[string]any

	// OnConflictIgnore skips the row when it collides with an existing one.
	OnConflictIgnore bool
}

// Build implements Statement.
func (s Insert) Build(d core.Dialect) (string, []any, error) {
	b := expr.NewBuilder(d)
	writeInsertInto(b, s.OnConflictIgnore)
	b.Append(s.Table.Ident())
	cols := sortedKeys(s.Values)
	if len(cols) == 0 {
		b.WriteString(" " + d.DefaultValues())
	} else {
		writeColumnList(b, cols)
		b.WriteString(" VALUES (")
		for i, col := range cols {
			if i > 0 {
				b.WriteString(", ")
			}
			b.Append(expr.Lift(s.Values[col]))
		}
		b.WriteString(")")
	}
	writeConflictIgnore(b, s.OnConflictIgnore)
	writeReturning(b)
	return finish(b)
}

// InsertMany renders one multi-row INSERT. Each row holds one value per
// column, in column order.
type InsertMany struct {
	Table   Target
	Columns []string
	Rows    [][]any

	// OnConflictIgnore skips rows that collide with existing ones.
	OnConflictIgnore bool
}

// Build implements Statement.
func (s InsertMany) Build(d core.Dialect) (string, []any, error) {
	if len(s.Columns) == 0 {
		return "", nil, core.Usagef("insert into %s needs at least one column", s.Table)
	}
	if len(s.Rows) == 0 {
		return "", nil, core.Usagef("insert into %s needs at least one row", s.Table)
	}
	b := expr.NewBuilder(d)
	writeInsertInto(b, s.OnConflictIgnore)
	b.Append(s.Table.Ident())
	writeColumnList(b, s.Columns)
	b.WriteString(" VALUES ")
	for i, row := range s.Rows {
		if len(row) != len(s.Columns) {
			return "", nil, core.Usagef("row %d has %d values for %d columns", i, len(row), len(s.Columns))
		}
		if i > 0 {
			b.WriteString(", ")
		}
		writeValueRow(b, row, nil, nil)
	}
	writeConflictIgnore(b, s.OnConflictIgnore)
	writeReturning(b)
	return finish(b)
}

// Update renders UPDATE <table> SET ... [WHERE ...] RETURNING *. Set values
// may be literals, expressions or Assignments such as Increment.
type Update struct {
	Table Target
	Set   map[string]any
	Where []expr.Condition
}

// Build implements Statement.
func (s Update) Build(d core.Dialect) (string, []any, error) {
	if len(s.Set) == 0 {
		return "", nil, core.Usagef("update of %s has nothing to set", s.Table)
	}
	b := expr.NewBuilder(d)
	b.WriteString("UPDATE ")
	b.Append(s.Table.Ident())
	b.WriteString(" SET ")
	for i, col := range sortedKeys(s.Set) {
		if i > 0 {
			b.WriteString(", ")
		}
		writeAssignment(b, col, s.Set[col])
	}
	writeWhere(b, s.Where)
	writeReturning(b)
	return finish(b)
}

// Delete renders DELETE FROM <table> [WHERE ...] RETURNING *.
type Delete struct {
	Table Target
	Where []expr.Condition
}

// Build implements Statement.
func (s Delete) Build(d core.Dialect) (string, []any, error) {
	b := expr.NewBuilder(d)
	b.WriteString("DELETE FROM ")
	b.Append(s.Table.Ident())
	writeWhere(b, s.Where)
	writeReturning(b)
	return finish(b)
}

// Upsert inserts a row or, when Conflict columns collide with an existing
// row, overwrites every supplied column with the new values.
type Upsert struct {
	Table    Target
	Conflict []string
	Values   map[string]any
}

// Build implements Statement.
func (s Upsert) Build(d core.Dialect) (string, []any, error) {
	if len(s.Values) == 0 {
		return "", nil, core.Usagef("upsert into %s has no values", s.Table)
	}
	if len(s.Conflict) == 0 {
		return "", nil, core.Usagef("upsert into %s has no conflict columns", s.Table)
	}
	cols := sortedKeys(s.Values)
	b := expr.NewBuilder(d)
	b.WriteString("INSERT INTO ")
	b.Append(s.Table.Ident())
	writeColumnList(b, cols)
	b.WriteString(" VALUES (")
	for i, col := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.Append(expr.Lift(s.Values[col]))
	}
	b.WriteString(")")

	switch d.Upsert() {
	case core.UpsertOnDuplicateKey:
		b.WriteString(" ON DUPLICATE KEY UPDATE ")
		for i, col := range cols {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteIdent(col)
			b.WriteString(" = VALUES(")
			b.WriteIdent(col)
			b.WriteString(")")
		}
	default:
		b.WriteString(" ON CONFLICT")
		writeColumnList(b, s.Conflict)
		b.WriteString(" DO UPDATE SET ")
		for i, col := range cols {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteIdent(col)
			b.WriteString(" = EXCLUDED.")
			b.WriteIdent(col)
		}
	}
	writeReturning(b)
	return finish(b)
}

// UpdateMany updates many rows in one statement, each with its own values,
// by joining the table against an inline values table. Each row holds the
// SetKeys values followed by the WhereKeys values.
type UpdateMany struct {
	Table     Target
	SetKeys   []string
	WhereKeys []string
	Rows      [][]any

	// Casts optionally maps a column to the SQL type its values are cast to
	// inside the values table, for stores that would otherwise infer text.
	Casts map[string]string
}

const (
	updateAlias = "_u"
	valuesAlias = "_t"
)

// Build implements Statement.
func (s UpdateMany) Build(d core.Dialect) (string, []any, error) {
	if len(s.SetKeys) == 0 || len(s.WhereKeys) == 0 {
		return "", nil, core.Usagef("update of %s needs both set keys and where keys", s.Table)
	}
	if len(s.Rows) == 0 {
		return "", nil, core.Usagef("update of %s needs at least one row", s.Table)
	}
	cols := append(append([]string{}, s.SetKeys...), s.WhereKeys...)
	for i, row := range s.Rows {
		if len(row) != len(cols) {
			return "", nil, core.Usagef("row %d has %d values for %d columns", i, len(row), len(cols))
		}
	}

	b := expr.NewBuilder(d)
	b.WriteString("UPDATE ")
	b.Append(s.Table.Ident())
	b.WriteString(" AS " + updateAlias)

	if !d.UpdateFrom() {
		b.WriteString(" JOIN ")
		s.writeValuesTable(b, cols)
		b.WriteString(" ON ")
		s.writeJoin(b)
		b.WriteString(" SET ")
		for i, col := range s.SetKeys {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(updateAlias + ".")
			b.WriteIdent(col)
			b.WriteString(" = " + valuesAlias + ".")
			b.WriteIdent(col)
		}
		return finish(b)
	}

	b.WriteString(" SET ")
	for i, col := range s.SetKeys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteIdent(col)
		b.WriteString(" = " + valuesAlias + ".")
		b.WriteIdent(col)
	}
	b.WriteString(" FROM ")
	s.writeValuesTable(b, cols)
	b.WriteString(" WHERE ")
	s.writeJoin(b)
	if d.Returning() {
		if d.ValuesAlias() {
			b.WriteString(" RETURNING " + updateAlias + ".*")
		} else {
			b.WriteString(" RETURNING *")
		}
	}
	return finish(b)
}

// writeValuesTable renders the inline values table aliased as _t: a VALUES
// list with column aliases where the dialect allows it, otherwise a
// UNION ALL of SELECTs naming the columns in the first row.
func (s UpdateMany) writeValuesTable(b *expr.Builder, cols []string) {
	b.WriteString("(")
	if b.Dialect().ValuesAlias() {
		b.WriteString("VALUES ")
		for i, row := range s.Rows {
			if i > 0 {
				b.WriteString(", ")
			}
			writeValueRow(b, row, cols, s.Casts)
		}
		b.WriteString(") AS " + valuesAlias)
		writeColumnList(b, cols)
		return
	}
	for i, row := range s.Rows {
		if i > 0 {
			b.WriteString(" UNION ALL ")
		}
		b.WriteString("SELECT ")
		for j, v := range row {
			if j > 0 {
				b.WriteString(", ")
			}
			writeCast(b, v, s.Casts[cols[j]])
			if i == 0 {
				b.WriteString(" AS ")
				b.WriteIdent(cols[j])
			}
		}
	}
	b.WriteString(") AS " + valuesAlias)
}

func (s UpdateMany) writeJoin(b *expr.Builder) {
	for i, col := range s.WhereKeys {
		if i > 0 {
			b.WriteString(" AND ")
		}
		b.WriteString(updateAlias + ".")
		b.WriteIdent(col)
		b.WriteString(" = " + valuesAlias + ".")
		b.WriteIdent(col)
	}
}

func writeColumns(b *expr.Builder, cols []string) {
	if len(cols) == 0 {
		b.WriteString("*")
		return
	}
	for i, col := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteIdent(col)
	}
}

func writeColumnList(b *expr.Builder, cols []string) {
	b.WriteString(" (")
	writeColumns(b, cols)
	b.WriteString(")")
}

func writeValueRow(b *expr.Builder, row []any, cols []string, casts map[string]string) {
	b.WriteString("(")
	for i, v := range row {
		if i > 0 {
			b.WriteString(", ")
		}
		var cast string
		if cols != nil {
			cast = casts[cols[i]]
		}
		writeCast(b, v, cast)
	}
	b.WriteString(")")
}

func writeCast(b *expr.Builder, v any, sqlType string) {
	if sqlType == "" {
		b.Append(expr.Lift(v))
		return
	}
	b.WriteString("CAST(")
	b.Append(expr.Lift(v))
	b.WriteString(" AS " + sqlType + ")")
}

func writeAssignment(b *expr.Builder, col string, v any) {
	b.WriteIdent(col)
	b.WriteString(" = ")
	if a, ok := v.(Assignment); ok {
		b.Append(a.Assign(expr.C(col)))
		return
	}
	b.Append(expr.Lift(v))
}

func writeWhere(b *expr.Builder, conds []expr.Condition) {
	cond := expr.And(conds...)
	if err := cond.Err(); err != nil {
		b.Fail(err)
		return
	}
	if isEmpty(conds) {
		return
	}
	b.WriteString(" WHERE ")
	b.Append(cond)
}

func isEmpty(conds []expr.Condition) bool {
	for _, c := range conds {
		if c != nil {
			return false
		}
	}
	return true
}

// writeInsertInto opens an insert. Stores with ON DUPLICATE KEY upserts
// spell a conflict-ignoring insert INSERT IGNORE.
func writeInsertInto(b *expr.Builder, ignore bool) {
	if ignore && b.Dialect().Upsert() == core.UpsertOnDuplicateKey {
		b.WriteString("INSERT IGNORE INTO ")
		return
	}
	b.WriteString("INSERT INTO ")
}

func writeConflictIgnore(b *expr.Builder, ignore bool) {
	if ignore && b.Dialect().Upsert() == core.UpsertOnConflict {
		b.WriteString(" ON CONFLICT DO NOTHING")
	}
}

func writeReturning(b *expr.Builder) {
	if b.Dialect().Returning() {
		b.WriteString(" RETURNING *")
	}
}

func finish(b *expr.Builder) (string, []any, error) {
	if err := b.Err(); err != nil {
		return "", nil, err
	}
	return b.SQL(), b.Args(), nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
