// Package expr builds parameterized SQL fragments: value expressions,
// arithmetic, and the closed set of WHERE-clause conditions.
//
// Fragments are rendered through a Builder bound to a dialect. Only
// Builder.WriteArg emits a placeholder, and it records the parameter in the
// same call, so a rendered fragment always carries exactly as many
// parameters as placeholders no matter how expressions were nested.
package expr

import (
	"strings"

	"github.com/rzpsarthak13/lionrow/internal/core"
)

// Builder accumulates SQL text and bound parameters for one statement.
// The first error recorded with Fail sticks; later writes are still accepted
// so rendering code does not need to check after every call.
type Builder struct {
	dialect core.Dialect
	sb      strings.Builder
	args    []any
	err     error
}

// NewBuilder returns an empty builder for the dialect.
func NewBuilder(d core.Dialect) *Builder {
	return &Builder{dialect: d}
}

// Dialect returns the dialect the builder renders for.
func (b *Builder) Dialect() core.Dialect {
	return b.dialect
}

// WriteString appends raw SQL text.
func (b *Builder) WriteString(s string) {
	b.sb.WriteString(s)
}

// WriteIdent appends a quoted, dot-separated identifier. Empty parts are
// skipped so an unqualified name can be passed with an empty schema.
func (b *Builder) WriteIdent(parts ...string) {
	first := true
	for _, part := range parts {
		if part == "" {
			continue
		}
		if !first {
			b.sb.WriteByte('.')
		}
		b.sb.WriteString(b.dialect.QuoteIdent(part))
		first = false
	}
}

// WriteArg appends a placeholder bound to v.
func (b *Builder) WriteArg(v any) {
	b.args = append(b.args, v)
	b.sb.WriteString(b.dialect.Placeholder(len(b.args)))
}

// Append renders e into the builder.
func (b *Builder) Append(e Expression) {
	if e == nil {
		b.Fail(core.Usagef("nil expression"))
		return
	}
	e.AppendSQL(b)
}

// AppendList renders exprs separated by sep.
func (b *Builder) AppendList(sep string, exprs []Expression) {
	for i, e := range exprs {
		if i > 0 {
			b.sb.WriteString(sep)
		}
		b.Append(e)
	}
}

// Fail records err if no error has been recorded yet.
func (b *Builder) Fail(err error) {
	if b.err == nil && err != nil {
		b.err = err
	}
}

// SQL returns the rendered text.
func (b *Builder) SQL() string {
	return b.sb.String()
}

// Args returns the bound parameters in placeholder order.
func (b *Builder) Args() []any {
	return b.args
}

// Err returns the first recorded error.
func (b *Builder) Err() error {
	return b.err
}

// Render renders a single expression.
func Render(d core.Dialect, e Expression) (string, []any, error) {
	b := NewBuilder(d)
	b.Append(e)
	if err := b.Err(); err != nil {
		return "", nil, err
	}
	return b.SQL(), b.Args(), nil
}
