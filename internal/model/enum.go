package model

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/rzpsarthak13/lionrow/internal/core"
	"github.com/rzpsarthak13/lionrow/internal/database"
	"github.com/rzpsarthak13/lionrow/internal/expr"
	"github.com/rzpsarthak13/lionrow/internal/query"
)

// Enum maps the values of a Go enum type onto the labels of a store enum
// type. Columns built with EnumColumn read and write labels, and Verify
// checks on connect that the store type carries every label.
type Enum[T comparable] struct {
	name   string
	labels map[T]string
	values map[string]T
}

// NewEnum maps each value of T to its label in the store type named name.
// Labels must be unique.
func NewEnum[T comparable](name string, labels map[T]string) (*Enum[T], error) {
	if name == "" {
		return nil, core.Usagef("enum type needs a name")
	}
	if len(labels) == 0 {
		return nil, core.Usagef("enum %s has no labels", name)
	}
	e := &Enum[T]{name: name, labels: labels, values: make(map[string]T, len(labels))}
	for v, label := range labels {
		if _, dup := e.values[label]; dup {
			return nil, core.Usagef("enum %s maps two values to label %q", name, label)
		}
		e.values[label] = v
	}
	return e, nil
}

// Name returns the store type name.
func (e *Enum[T]) Name() string { return e.name }

// Labels returns the labels in sorted order.
func (e *Enum[T]) Labels() []string {
	labels := make([]string, 0, len(e.values))
	for label := range e.values {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// Codec returns the codec columns of this enum use. Encoding a value with
// no label binds its printed form, which the store rejects.
func (e *Enum[T]) Codec() Codec[T] {
	return codec[T]{
		sqlType: e.name,
		decode: func(v any) (T, error) {
			label, err := toString(v)
			if err != nil {
				var zero T
				return zero, err
			}
			out, ok := e.values[label]
			if !ok {
				return out, fmt.Errorf("%q is not a label of enum %s", label, e.name)
			}
			return out, nil
		},
		encode: func(v T) any {
			if label, ok := e.labels[v]; ok {
				return label
			}
			return fmt.Sprint(v)
		},
	}
}

// EnumColumn declares a column holding values of e.
func EnumColumn[T comparable](e *Enum[T], opts ...ColumnOption) *Column[T] {
	return NewColumn(e.Codec(), opts...)
}

// Verify checks that the store enum type exists and carries every label.
// Only PostgreSQL has named enum types; other stores pass.
func (e *Enum[T]) Verify(ctx context.Context, conn core.Conn) error {
	if conn.Dialect().Name() != "postgres" {
		return nil
	}
	return e.check(ctx, query.NewRunner(conn, slog.Default()))
}

// Hook returns Verify as a connect hook.
func (e *Enum[T]) Hook() database.Hook {
	return func(ctx context.Context, c *database.Connector) error {
		return e.Verify(ctx, c)
	}
}

func (e *Enum[T]) check(ctx context.Context, r *query.Runner) error {
	recs, err := r.Select(ctx, e.labelsQuery())
	if err != nil {
		return fmt.Errorf("failed to read labels of enum %s: %w", e.name, err)
	}
	if len(recs) == 0 {
		return core.NotFoundf("enum type %s not found in the database", e.name)
	}
	stored := make(map[string]struct{}, len(recs))
	for _, rec := range recs {
		if label, err := toString(rec["label"]); err == nil {
			stored[label] = struct{}{}
		}
	}
	var missing []string
	for _, label := range e.Labels() {
		if _, ok := stored[label]; !ok {
			missing = append(missing, label)
		}
	}
	if len(missing) > 0 {
		return core.Usagef("enum type %s lacks labels %v", e.name, missing)
	}
	return nil
}

func (e *Enum[T]) labelsQuery() query.Select {
	return query.Select{
		Table:  query.Target{Schema: "pg_catalog", Name: "pg_type"},
		Fields: []query.Field{query.As(expr.Col("pg_enum", "enumlabel"), "label")},
		Joins: []query.Join{{
			Table: query.Target{Schema: "pg_catalog", Name: "pg_enum"},
			On:    []expr.Condition{expr.Eq(expr.Col("pg_enum", "enumtypid"), expr.Col("pg_type", "oid"))},
		}},
		Where:   []expr.Condition{expr.Eq(expr.Col("pg_type", "typname"), e.name)},
		OrderBy: []query.Order{query.Asc(expr.Col("pg_enum", "enumsortorder"))},
	}
}
