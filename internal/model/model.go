// Package model declares typed row models: a struct embedding Model whose
// *Column[T] fields describe the table. Columns double as expressions for
// building conditions and as typed accessors on the rows the model's
// RowTable returns.
package model

import (
	"context"
	"reflect"
	"strings"
	"sync"
	"unicode"

	"github.com/rzpsarthak13/lionrow/internal/core"
	"github.com/rzpsarthak13/lionrow/internal/expr"
	"github.com/rzpsarthak13/lionrow/internal/query"
	"github.com/rzpsarthak13/lionrow/internal/table"
)

// Model is embedded in a model struct. Its struct tag names the table:
//
//	type Member struct {
//		model.Model `table:"members"`
//		GuildID *model.Column[int64] `db:"guildid,primary"`
//		UserID  *model.Column[int64] `db:"userid,primary"`
//		Coins   *model.Column[int64]
//	}
type Model struct {
	mu       sync.Mutex
	declared bool

	name    string
	schema  string
	columns []declaredColumn
	names   []string
	key     []string
	rows    *table.RowTable
}

// declaredColumn is implemented by *Column[T] for every T.
type declaredColumn interface {
	Name() string
	Type() string
	IsPrimary() bool
	resolve(field string, tag columnTag) (columnOptions, error)
	attach(o columnOptions, owner *Model)
}

var (
	modelType  = reflect.TypeFor[Model]()
	columnType = reflect.TypeFor[declaredColumn]()
)

type columnTag struct {
	name       string
	primary    bool
	references string
	sqlType    string
}

// parseTag reads `db:"name,primary,references=members.userid,type=bigint"`.
func parseTag(tag string) columnTag {
	parts := strings.Split(tag, ",")
	ct := columnTag{name: strings.TrimSpace(parts[0])}
	for _, part := range parts[1:] {
		k, v, _ := strings.Cut(strings.TrimSpace(part), "=")
		switch k {
		case "primary":
			ct.primary = true
		case "references":
			ct.references = v
		case "type":
			ct.sqlType = v
		}
	}
	return ct
}

// Declare names every column of the model struct v points to, attaches the
// columns to its embedded Model and builds the model's RowTable with opts.
// A model can be declared only once.
func Declare(v any, opts ...table.Option) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return core.Usagef("declare needs a pointer to a model struct, got %T", v)
	}
	sv := rv.Elem()
	st := sv.Type()

	var m *Model
	var tag reflect.StructTag
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		if f.Anonymous && f.Type == modelType {
			m = sv.Field(i).Addr().Interface().(*Model)
			tag = f.Tag
			break
		}
	}
	if m == nil {
		return core.Usagef("%s does not embed model.Model", st.Name())
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.declared {
		return core.Usagef("model %s is already declared", m.name)
	}

	name := tag.Get("table")
	if name == "" {
		name = snakeCase(st.Name())
	}
	schema := tag.Get("schema")
	if schema == "" {
		schema = query.DefaultSchema
	}

	type pending struct {
		col  declaredColumn
		opts columnOptions
	}
	var cols []pending
	seen := make(map[string]string)
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		if f.Anonymous || !f.IsExported() || !f.Type.Implements(columnType) {
			continue
		}
		dbTag := f.Tag.Get("db")
		if dbTag == "-" {
			continue
		}
		fv := sv.Field(i)
		if fv.Kind() == reflect.Pointer && fv.IsNil() {
			fv.Set(reflect.New(f.Type.Elem()))
		}
		col := fv.Interface().(declaredColumn)
		o, err := col.resolve(f.Name, parseTag(dbTag))
		if err != nil {
			return err
		}
		if other, ok := seen[o.name]; ok {
			return core.Usagef("fields %s and %s of %s both map to column %q", other, f.Name, st.Name(), o.name)
		}
		seen[o.name] = f.Name
		cols = append(cols, pending{col: col, opts: o})
	}
	if len(cols) == 0 {
		return core.Usagef("model %s declares no columns", name)
	}

	var names, key []string
	casts := make(map[string]string, len(cols))
	for _, p := range cols {
		names = append(names, p.opts.name)
		if p.opts.primary {
			key = append(key, p.opts.name)
		}
	}
	if len(key) == 0 {
		return core.Usagef("model %s declares no primary key", name)
	}

	m.name, m.schema, m.names, m.key = name, schema, names, key
	for _, p := range cols {
		p.col.attach(p.opts, m)
		m.columns = append(m.columns, p.col)
		if t := p.col.Type(); t != "" {
			casts[p.opts.name] = t
		}
	}

	opts = append([]table.Option{table.WithSchema(schema), table.WithCasts(casts)}, opts...)
	rows, err := table.NewRowTable(name, names, key, opts...)
	if err != nil {
		return err
	}
	m.rows = rows
	m.declared = true
	return nil
}

// TableName returns the table name.
func (m *Model) TableName() string {
	return m.name
}

// Schema returns the schema name.
func (m *Model) Schema() string {
	return m.schema
}

// ColumnNames returns the declared column names in field order.
func (m *Model) ColumnNames() []string {
	return m.names
}

// Key returns the primary key column names.
func (m *Model) Key() []string {
	return m.key
}

// Declared reports whether Declare has run.
func (m *Model) Declared() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.declared
}

// Rows returns the model's row table, nil before declaration.
func (m *Model) Rows() *table.RowTable {
	return m.rows
}

// Bind points the model's row table at a connection. Binding an undeclared
// model does nothing.
func (m *Model) Bind(conn core.Conn) {
	if m.rows != nil {
		m.rows.Bind(conn)
	}
}

func (m *Model) table() (*table.RowTable, error) {
	if m.rows == nil {
		return nil, core.Usagef("model used before it was declared")
	}
	return m.rows, nil
}

// Fetch returns the row for key.
func (m *Model) Fetch(ctx context.Context, key ...any) (*table.Row, error) {
	t, err := m.table()
	if err != nil {
		return nil, err
	}
	return t.Fetch(ctx, key...)
}

// FetchWhere returns the rows matching all conditions.
func (m *Model) FetchWhere(ctx context.Context, conds ...expr.Condition) ([]*table.Row, error) {
	t, err := m.table()
	if err != nil {
		return nil, err
	}
	return t.FetchWhere(ctx, conds...)
}

// FetchOrCreate fetches the row for key or creates it from defaults.
func (m *Model) FetchOrCreate(ctx context.Context, key core.Key, defaults map[string]any) (*table.Row, error) {
	t, err := m.table()
	if err != nil {
		return nil, err
	}
	return t.FetchOrCreate(ctx, key, defaults)
}

// Create inserts values and returns the new row.
func (m *Model) Create(ctx context.Context, values map[string]any) (*table.Row, error) {
	t, err := m.table()
	if err != nil {
		return nil, err
	}
	return t.Create(ctx, values)
}

// snakeCase converts a Go field name such as GuildID to guild_id.
func snakeCase(s string) string {
	runes := []rune(s)
	var sb strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					sb.WriteByte('_')
				}
			}
			sb.WriteRune(unicode.ToLower(r))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
