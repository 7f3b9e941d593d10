package model

import (
	"context"
	"fmt"
	"time"

	"github.com/rzpsarthak13/lionrow/internal/core"
	"github.com/rzpsarthak13/lionrow/internal/expr"
	"github.com/rzpsarthak13/lionrow/internal/query"
	"github.com/rzpsarthak13/lionrow/internal/table"
)

type columnOptions struct {
	name       string
	primary    bool
	sqlType    string
	references string
	referent   Referent
}

// ColumnOption configures a column before its model is declared. Struct tags
// take precedence over options.
type ColumnOption func(*columnOptions)

// Named sets the column name instead of deriving it from the field name.
func Named(name string) ColumnOption {
	return func(o *columnOptions) { o.name = name }
}

// Primary marks the column as part of the primary key.
func Primary() ColumnOption {
	return func(o *columnOptions) { o.primary = true }
}

// SQLType overrides the type values are cast to in multi-row updates.
func SQLType(t string) ColumnOption {
	return func(o *columnOptions) { o.sqlType = t }
}

// Referent is a column other columns can reference. Every *Column[T] is one.
type Referent interface {
	Name() string
	Owner() *Model
}

// References records the column this one is a foreign key to. It is
// metadata only. Struct tags name the target as text instead, e.g.
// `db:"userid,references=users.userid"`.
func References(target Referent) ColumnOption {
	return func(o *columnOptions) {
		o.referent = target
		o.references = ""
	}
}

// Column describes one column of a declared model. It is an expression
// rendering the column name, builds conditions against it, and reads and
// writes its typed value on rows.
type Column[T any] struct {
	opts  columnOptions
	codec Codec[T]
	owner *Model
}

// NewColumn returns a column encoded by c. A nil codec selects the built-in
// codec for T at declaration.
func NewColumn[T any](c Codec[T], opts ...ColumnOption) *Column[T] {
	col := &Column[T]{codec: c}
	for _, opt := range opts {
		opt(&col.opts)
	}
	return col
}

// Integer returns an int64 column.
func Integer(opts ...ColumnOption) *Column[int64] { return NewColumn(IntegerCodec, opts...) }

// String returns a text column.
func String(opts ...ColumnOption) *Column[string] { return NewColumn(StringCodec, opts...) }

// Bool returns a boolean column.
func Bool(opts ...ColumnOption) *Column[bool] { return NewColumn(BoolCodec, opts...) }

// Float returns a float64 column.
func Float(opts ...ColumnOption) *Column[float64] { return NewColumn(FloatCodec, opts...) }

// Timestamp returns a time.Time column.
func Timestamp(opts ...ColumnOption) *Column[time.Time] { return NewColumn(TimestampCodec, opts...) }

// JSON returns a column holding T as a JSON document.
func JSON[T any](opts ...ColumnOption) *Column[T] { return NewColumn(JSONCodec[T](), opts...) }

// Name returns the column name, empty before declaration.
func (c *Column[T]) Name() string { return c.opts.name }

// Owner returns the declaring model, nil before declaration.
func (c *Column[T]) Owner() *Model { return c.owner }

// IsPrimary reports whether the column is part of the primary key.
func (c *Column[T]) IsPrimary() bool { return c.opts.primary }

// Reference returns the foreign key target as "table.column", or "" when
// there is none or the referenced column's model is not declared yet.
func (c *Column[T]) Reference() string {
	ref := c.opts.referent
	if ref == nil {
		return c.opts.references
	}
	owner := ref.Owner()
	if owner == nil {
		return ""
	}
	return owner.TableName() + "." + ref.Name()
}

// Referenced returns the column given to References, or nil.
func (c *Column[T]) Referenced() Referent { return c.opts.referent }

// Type returns the SQL type used for casts.
func (c *Column[T]) Type() string {
	if c.opts.sqlType != "" {
		return c.opts.sqlType
	}
	if c.codec != nil {
		return c.codec.SQLType()
	}
	return ""
}

func (c *Column[T]) String() string {
	if c.owner == nil {
		return "<undeclared column>"
	}
	return c.owner.name + "." + c.opts.name
}

// resolve computes the column's declaration from its field without changing
// the column.
func (c *Column[T]) resolve(field string, tag columnTag) (columnOptions, error) {
	if c.owner != nil {
		return columnOptions{}, core.Usagef("column %s is already declared", c)
	}
	if c.codec == nil {
		if _, ok := codecFor[T](); !ok {
			var zero T
			return columnOptions{}, core.Usagef("no codec for column %s of type %T", field, zero)
		}
	}
	o := c.opts
	switch {
	case tag.name != "":
		o.name = tag.name
	case o.name == "":
		o.name = snakeCase(field)
	}
	o.primary = o.primary || tag.primary
	if tag.references != "" {
		o.references = tag.references
		o.referent = nil
	}
	if tag.sqlType != "" {
		o.sqlType = tag.sqlType
	}
	return o, nil
}

func (c *Column[T]) attach(o columnOptions, owner *Model) {
	if c.codec == nil {
		c.codec, _ = codecFor[T]()
	}
	c.opts = o
	c.owner = owner
}

// AppendSQL writes the column name.
func (c *Column[T]) AppendSQL(b *expr.Builder) {
	if err := c.Err(); err != nil {
		b.Fail(err)
		return
	}
	b.WriteIdent(c.opts.name)
}

// Err reports use of a column whose model was never declared.
func (c *Column[T]) Err() error {
	if c.owner == nil {
		return core.Usagef("column used before its model was declared")
	}
	return nil
}

// arg encodes typed values; anything else, such as an expression, passes
// through.
func (c *Column[T]) arg(v any) any {
	if tv, ok := v.(T); ok && c.codec != nil {
		return c.codec.Encode(tv)
	}
	return v
}

func (c *Column[T]) args(vs []any) []any {
	if len(vs) == 1 {
		if items, ok := vs[0].([]T); ok {
			vs = make([]any, len(items))
			for i, item := range items {
				vs[i] = item
			}
		}
	}
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = c.arg(v)
	}
	return out
}

func (c *Column[T]) Eq(v any) expr.Condition { return expr.Eq(c, c.arg(v)) }
func (c *Column[T]) Ne(v any) expr.Condition { return expr.Ne(c, c.arg(v)) }
func (c *Column[T]) Lt(v any) expr.Condition { return expr.Lt(c, c.arg(v)) }
func (c *Column[T]) Le(v any) expr.Condition { return expr.Le(c, c.arg(v)) }
func (c *Column[T]) Gt(v any) expr.Condition { return expr.Gt(c, c.arg(v)) }
func (c *Column[T]) Ge(v any) expr.Condition { return expr.Ge(c, c.arg(v)) }

// In matches any of items. A single []T argument is expanded.
func (c *Column[T]) In(items ...any) expr.Condition { return expr.In(c, c.args(items)...) }

// NotIn matches none of items.
func (c *Column[T]) NotIn(items ...any) expr.Condition { return expr.NotIn(c, c.args(items)...) }

func (c *Column[T]) IsNull() expr.Condition  { return expr.IsNull(c) }
func (c *Column[T]) NotNull() expr.Condition { return expr.NotNull(c) }

func (c *Column[T]) Like(pattern string) expr.Condition { return expr.Like(c, pattern) }

func (c *Column[T]) Between(low, high any) expr.Condition {
	return expr.Between(c, c.arg(low), c.arg(high))
}

func (c *Column[T]) Add(v any) expr.Expression { return expr.Add(c, c.arg(v)) }
func (c *Column[T]) Sub(v any) expr.Expression { return expr.Sub(c, c.arg(v)) }
func (c *Column[T]) Mul(v any) expr.Expression { return expr.Mul(c, c.arg(v)) }

// Shard matches rows whose snowflake value in this column falls on shard
// index of count.
func (c *Column[T]) Shard(index, count int) expr.Condition { return expr.ShardID(c, index, count) }

// Increment adds n to the column in the store, without reading it first.
func (c *Column[T]) Increment(n any) query.Assignment { return query.Increment(n) }

// Value pairs the column name with an encoded value, for building the value
// maps Create, Insert and UpdateWhere take.
func (c *Column[T]) Value(v T) (string, any) {
	return c.opts.name, c.arg(v)
}

func (c *Column[T]) checkRow(row *table.Row) error {
	if err := c.Err(); err != nil {
		return err
	}
	if row == nil {
		return core.Usagef("nil row passed to column %s", c)
	}
	if c.owner.rows != row.Table() {
		return core.Usagef("column %s read on a row of %s", c, row.Table())
	}
	return nil
}

// Of returns the column's value on row. NULL decodes to the zero value.
func (c *Column[T]) Of(row *table.Row) (T, error) {
	var zero T
	if err := c.checkRow(row); err != nil {
		return zero, err
	}
	v, err := row.Get(c.opts.name)
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	out, err := c.codec.Decode(v)
	if err != nil {
		return zero, fmt.Errorf("failed to decode %s: %w", c, err)
	}
	return out, nil
}

// MustOf is Of for callers that know the row belongs to the column's model.
// It panics on error.
func (c *Column[T]) MustOf(row *table.Row) T {
	v, err := c.Of(row)
	if err != nil {
		panic(err)
	}
	return v
}

// Set writes v to the column on row: one UPDATE, or staged when the row has
// an open batch.
func (c *Column[T]) Set(ctx context.Context, row *table.Row, v T) error {
	if err := c.checkRow(row); err != nil {
		return err
	}
	return row.Set(ctx, c.opts.name, c.arg(v))
}

// Stage writes v into an open batch.
func (c *Column[T]) Stage(b *table.Batch, v T) error {
	if err := c.checkRow(b.Row()); err != nil {
		return err
	}
	return b.Set(c.opts.name, c.arg(v))
}
