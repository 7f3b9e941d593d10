package expr

import (
	"reflect"
	"strings"

	"github.com/rzpsarthak13/lionrow/internal/core"
)

// Expression is an immutable SQL fragment with its bound parameters.
type Expression interface {
	AppendSQL(b *Builder)
}

// errExpression is implemented by expressions that can be invalid from
// construction.
type errExpression interface {
	Err() error
}

// errOf returns the construction error of e, if it has one.
func errOf(e Expression) error {
	if e == nil {
		return core.Usagef("nil expression")
	}
	if ee, ok := e.(errExpression); ok {
		return ee.Err()
	}
	return nil
}

// Value is a literal bound as a single parameter.
type Value struct {
	V any
}

// AppendSQL writes a placeholder bound to the value.
func (v Value) AppendSQL(b *Builder) {
	b.WriteArg(v.V)
}

// Lift returns v unchanged if it is already an Expression, otherwise a
// Value carrying it as the sole parameter.
func Lift(v any) Expression {
	if e, ok := v.(Expression); ok {
		return e
	}
	return Value{V: v}
}

// Ident is a column or table reference, optionally qualified.
type Ident struct {
	Parts []string
}

// C references a column by name.
func C(name string) Ident {
	return Ident{Parts: []string{name}}
}

// Col references a qualified name, e.g. Col("members", "coins"). Empty parts
// are skipped.
func Col(parts ...string) Ident {
	return Ident{Parts: parts}
}

// AppendSQL writes the quoted identifier.
func (i Ident) AppendSQL(b *Builder) {
	b.WriteIdent(i.Parts...)
}

// raw is a literal SQL fragment with '?' parameter markers.
type raw struct {
	sql  string
	args []any
	err  error
}

// Raw builds an expression from SQL text with '?' markers, one per arg.
// A marker count that does not match len(args) makes the expression
// invalid.
func Raw(sql string, args ...any) Expression {
	r := raw{sql: sql, args: args}
	if n := strings.Count(sql, "?"); n != len(args) {
		r.err = core.Usagef("raw SQL %q has %d placeholders but %d arguments", sql, n, len(args))
	}
	return r
}

// AppendSQL rewrites each marker into the dialect's placeholder.
func (r raw) AppendSQL(b *Builder) {
	if r.err != nil {
		b.Fail(r.err)
		return
	}
	rest := r.sql
	for _, arg := range r.args {
		i := strings.IndexByte(rest, '?')
		b.WriteString(rest[:i])
		Lift(arg).AppendSQL(b)
		rest = rest[i+1:]
	}
	b.WriteString(rest)
}

// Err reports a marker/argument mismatch.
func (r raw) Err() error {
	return r.err
}

// binary is a parenthesized infix combination.
type binary struct {
	left  Expression
	op    string
	right Expression
}

// Combine returns (left op right). Non-expression operands are lifted into
// single-parameter values; the parameters are left's followed by right's.
func Combine(left any, op string, right any) Expression {
	return binary{left: Lift(left), op: op, right: Lift(right)}
}

// Add returns (left + right).
func Add(left Expression, right any) Expression {
	return Combine(left, "+", right)
}

// Sub returns (left - right).
func Sub(left Expression, right any) Expression {
	return Combine(left, "-", right)
}

// Mul returns (left * right).
func Mul(left Expression, right any) Expression {
	return Combine(left, "*", right)
}

func (e binary) AppendSQL(b *Builder) {
	b.WriteString("(")
	b.Append(e.left)
	b.WriteString(" " + e.op + " ")
	b.Append(e.right)
	b.WriteString(")")
}

func (e binary) Err() error {
	if err := errOf(e.left); err != nil {
		return err
	}
	return errOf(e.right)
}

// tuple is a parenthesized, comma-separated list: a row value.
type tuple struct {
	items []Expression
}

// Tuple builds a row value (a, b, ...) from expressions or literals.
func Tuple(items ...any) Expression {
	t := tuple{items: make([]Expression, len(items))}
	for i, item := range items {
		t.items[i] = Lift(item)
	}
	return t
}

func (t tuple) AppendSQL(b *Builder) {
	if len(t.items) == 0 {
		b.Fail(core.Usagef("empty tuple"))
		return
	}
	b.WriteString("(")
	b.AppendList(", ", t.items)
	b.WriteString(")")
}

func (t tuple) Err() error {
	if len(t.items) == 0 {
		return core.Usagef("empty tuple")
	}
	for _, item := range t.items {
		if err := errOf(item); err != nil {
			return err
		}
	}
	return nil
}

// keyword is fixed SQL text with no parameters, such as NULL.
type keyword string

func (k keyword) AppendSQL(b *Builder) {
	b.WriteString(string(k))
}

// isList reports whether v should be treated as a set of values: any slice
// or array except []byte.
func isList(v any) bool {
	if v == nil {
		return false
	}
	if _, ok := v.([]byte); ok {
		return false
	}
	if _, ok := v.(Expression); ok {
		return false
	}
	k := reflect.TypeOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}

// listItems flattens a slice or array into its elements.
func listItems(v any) []any {
	rv := reflect.ValueOf(v)
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items
}
