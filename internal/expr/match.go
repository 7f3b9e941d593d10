package expr

import (
	"sort"
)

// Operand builds a condition against a column. It lets a map filter carry
// more than equality, e.g. {"coins": AtLeast(100)}.
type Operand interface {
	Apply(column Expression) Condition
}

// OperandFunc adapts a function to Operand.
type OperandFunc func(column Expression) Condition

// Apply calls f.
func (f OperandFunc) Apply(column Expression) Condition {
	return f(column)
}

// NotEqual matches values other than v; a slice means NOT IN.
func NotEqual(v any) Operand {
	return OperandFunc(func(c Expression) Condition { return Ne(c, v) })
}

// AtLeast matches values >= v.
func AtLeast(v any) Operand {
	return OperandFunc(func(c Expression) Condition { return Ge(c, v) })
}

// AtMost matches values <= v.
func AtMost(v any) Operand {
	return OperandFunc(func(c Expression) Condition { return Le(c, v) })
}

// Above matches values > v.
func Above(v any) Operand {
	return OperandFunc(func(c Expression) Condition { return Gt(c, v) })
}

// Below matches values < v.
func Below(v any) Operand {
	return OperandFunc(func(c Expression) Condition { return Lt(c, v) })
}

// Matching matches values LIKE pattern.
func Matching(pattern string) Operand {
	return OperandFunc(func(c Expression) Condition { return Like(c, pattern) })
}

// Null matches NULL values.
func Null() Operand {
	return OperandFunc(IsNull)
}

// NonNull matches non-NULL values.
func NonNull() Operand {
	return OperandFunc(NotNull)
}

// InShard matches snowflake keys in shard index of count.
func InShard(index, count int) Operand {
	return OperandFunc(func(c Expression) Condition { return ShardID(c, index, count) })
}

// Apply builds the condition a filter value describes for column: an
// Operand applies itself, nil means IS NULL, a slice means IN, and anything
// else is equality.
func Apply(column Expression, value any) Condition {
	if op, ok := value.(Operand); ok {
		return op.Apply(column)
	}
	return Eq(column, value)
}

// Match turns a column filter into a conjunction. Columns are visited in
// sorted order so the same filter always renders the same SQL. An empty
// filter yields nil, which statement builders treat as "no WHERE clause".
func Match(where map[string]any) Condition {
	if len(where) == 0 {
		return nil
	}
	names := make([]string, 0, len(where))
	for name := range where {
		names = append(names, name)
	}
	sort.Strings(names)

	conds := make([]Condition, len(names))
	for i, name := range names {
		conds[i] = Apply(C(name), where[name])
	}
	return And(conds...)
}
