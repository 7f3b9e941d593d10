package expr

import (
	"fmt"

	"github.com/rzpsarthak13/lionrow/internal/core"
)

// Condition is a boolean expression usable in a WHERE clause. Conditions are
// immutable; Not returns a new condition.
type Condition interface {
	Expression

	// Not returns the logical negation. Negating twice yields a condition
	// equivalent to the original.
	Not() Condition

	// Err returns the construction error of an invalid condition, such as
	// membership in an empty set. Rendering an invalid condition fails with
	// the same error.
	Err() error
}

// joiner is the operator between the two sides of a comparison. Each joiner
// has a positive and a negated spelling.
type joiner int

const (
	joinEquals joiner = iota
	joinIs
	joinLike
	joinBetween
	joinIn
	joinLess
	joinLessEqual
)

var joinerOps = [...][2]string{
	joinEquals:    {"=", "!="},
	joinIs:        {"IS", "IS NOT"},
	joinLike:      {"LIKE", "NOT LIKE"},
	joinBetween:   {"BETWEEN", "NOT BETWEEN"},
	joinIn:        {"IN", "NOT IN"},
	joinLess:      {"<", ">="},
	joinLessEqual: {"<=", ">"},
}

func (j joiner) op(negated bool) string {
	if negated {
		return joinerOps[j][1]
	}
	return joinerOps[j][0]
}

// comparison renders "left op right".
type comparison struct {
	left    Expression
	right   Expression
	joiner  joiner
	negated bool
}

func (c comparison) AppendSQL(b *Builder) {
	b.Append(c.left)
	b.WriteString(" " + c.joiner.op(c.negated) + " ")
	b.Append(c.right)
}

func (c comparison) Not() Condition {
	c.negated = !c.negated
	return c
}

func (c comparison) Err() error {
	if err := errOf(c.left); err != nil {
		return err
	}
	return errOf(c.right)
}

// list renders the parenthesized right side of an IN.
type list []Expression

func (l list) AppendSQL(b *Builder) {
	b.WriteString("(")
	b.AppendList(", ", l)
	b.WriteString(")")
}

func (l list) Err() error {
	for _, item := range l {
		if err := errOf(item); err != nil {
			return err
		}
	}
	return nil
}

// bounds renders the "low AND high" side of a BETWEEN.
type bounds struct {
	low, high Expression
}

func (r bounds) AppendSQL(b *Builder) {
	b.Append(r.low)
	b.WriteString(" AND ")
	b.Append(r.high)
}

func (r bounds) Err() error {
	if err := errOf(r.low); err != nil {
		return err
	}
	return errOf(r.high)
}

// negation renders NOT (inner) for conditions without a negated operator.
type negation struct {
	inner Condition
}

func (n negation) AppendSQL(b *Builder) {
	b.WriteString("NOT (")
	b.Append(n.inner)
	b.WriteString(")")
}

func (n negation) Not() Condition { return n.inner }
func (n negation) Err() error     { return n.inner.Err() }

// junction joins member conditions with AND or OR.
type junction struct {
	op      string
	members []Condition
}

func (j junction) AppendSQL(b *Builder) {
	switch len(j.members) {
	case 0:
		if j.op == "AND" {
			b.WriteString("TRUE")
		} else {
			b.WriteString("FALSE")
		}
	case 1:
		b.Append(j.members[0])
	default:
		for i, m := range j.members {
			if i > 0 {
				b.WriteString(" " + j.op + " ")
			}
			b.WriteString("(")
			b.Append(m)
			b.WriteString(")")
		}
	}
}

func (j junction) Not() Condition {
	if len(j.members) == 1 {
		return j.members[0].Not()
	}
	return negation{inner: j}
}

func (j junction) Err() error {
	for _, m := range j.members {
		if err := m.Err(); err != nil {
			return err
		}
	}
	return nil
}

// rawCondition is a raw fragment used as a condition.
type rawCondition struct {
	raw
}

func (r rawCondition) Not() Condition { return negation{inner: r} }

// constant is TRUE or FALSE.
type constant bool

func (c constant) AppendSQL(b *Builder) {
	if c {
		b.WriteString("TRUE")
	} else {
		b.WriteString("FALSE")
	}
}

func (c constant) Not() Condition { return !c }
func (c constant) Err() error     { return nil }

// invalid is a condition that failed construction.
type invalid struct {
	err error
}

func (i invalid) AppendSQL(b *Builder) { b.Fail(i.err) }
func (i invalid) Not() Condition       { return i }
func (i invalid) Err() error           { return i.err }

// True is the condition that always holds.
func True() Condition { return constant(true) }

// False is the condition that never holds.
func False() Condition { return constant(false) }

// Eq compares left with right. A nil right renders IS NULL and a slice
// renders IN, so Eq(c, v) always means "c matches v".
func Eq(left Expression, right any) Condition {
	switch {
	case right == nil:
		return IsNull(left)
	case isList(right):
		return In(left, listItems(right)...)
	default:
		return comparison{left: left, right: Lift(right), joiner: joinEquals}
	}
}

// Ne is the negation of Eq.
func Ne(left Expression, right any) Condition {
	return Eq(left, right).Not()
}

// Lt renders left < right.
func Lt(left Expression, right any) Condition {
	return ordered(left, right, joinLess)
}

// Le renders left <= right.
func Le(left Expression, right any) Condition {
	return ordered(left, right, joinLessEqual)
}

// Gt renders left > right, the negation of Le.
func Gt(left Expression, right any) Condition {
	return Le(left, right).Not()
}

// Ge renders left >= right, the negation of Lt.
func Ge(left Expression, right any) Condition {
	return Lt(left, right).Not()
}

func ordered(left Expression, right any, j joiner) Condition {
	switch {
	case right == nil:
		return invalid{err: core.Usagef("cannot compare with NULL using %s", j.op(false))}
	case isList(right):
		return invalid{err: core.Usagef("cannot compare with a list using %s", j.op(false))}
	}
	return comparison{left: left, right: Lift(right), joiner: j}
}

// In renders left IN (items...). A single slice argument is expanded. An
// empty set makes the condition invalid.
func In(left Expression, items ...any) Condition {
	if len(items) == 1 && isList(items[0]) {
		items = listItems(items[0])
	}
	if len(items) == 0 {
		return invalid{err: core.Usagef("cannot match against an empty set of values")}
	}
	l := make(list, len(items))
	for i, item := range items {
		l[i] = Lift(item)
	}
	return comparison{left: left, right: l, joiner: joinIn}
}

// NotIn renders left NOT IN (items...).
func NotIn(left Expression, items ...any) Condition {
	return In(left, items...).Not()
}

// IsNull renders e IS NULL.
func IsNull(e Expression) Condition {
	return comparison{left: e, right: keyword("NULL"), joiner: joinIs}
}

// NotNull renders e IS NOT NULL.
func NotNull(e Expression) Condition {
	return IsNull(e).Not()
}

// Like renders e LIKE pattern.
func Like(e Expression, pattern any) Condition {
	if pattern == nil || isList(pattern) {
		return invalid{err: core.Usagef("LIKE pattern must be a single value")}
	}
	return comparison{left: e, right: Lift(pattern), joiner: joinLike}
}

// Between renders e BETWEEN low AND high.
func Between(e Expression, low, high any) Condition {
	return comparison{left: e, right: bounds{low: Lift(low), high: Lift(high)}, joiner: joinBetween}
}

// And joins conditions with AND. Nil members are skipped and an empty
// conjunction is TRUE.
func And(conds ...Condition) Condition {
	return join("AND", conds)
}

// Or joins conditions with OR. Nil members are skipped and an empty
// disjunction is FALSE.
func Or(conds ...Condition) Condition {
	return join("OR", conds)
}

func join(op string, conds []Condition) Condition {
	members := make([]Condition, 0, len(conds))
	for _, c := range conds {
		if c != nil {
			members = append(members, c)
		}
	}
	return junction{op: op, members: members}
}

// Not negates c.
func Not(c Condition) Condition {
	return c.Not()
}

// RawCondition builds a condition from SQL text with '?' markers.
func RawCondition(sql string, args ...any) Condition {
	r := Raw(sql, args...).(raw)
	return rawCondition{raw: r}
}

// Invalid returns a condition that fails to render with err. It lets callers
// defer construction errors to the statement that uses the condition.
func Invalid(err error) Condition {
	if err == nil {
		err = fmt.Errorf("invalid condition")
	}
	return invalid{err: err}
}
