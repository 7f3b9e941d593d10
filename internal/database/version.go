package database

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rzpsarthak13/lionrow/internal/core"
	"github.com/rzpsarthak13/lionrow/internal/expr"
	"github.com/rzpsarthak13/lionrow/internal/query"
)

// NoVersion is reported when the version history is empty.
const NoVersion = -1

// Version is one entry of the append-only version history.
type Version struct {
	Number    int
	AppliedAt time.Time
	Author    string
}

// Version reads the latest entry of the version history, ordered by
// applied_at. An empty history yields NoVersion.
func (c *Connector) Version(ctx context.Context) (Version, error) {
	if err := c.check(); err != nil {
		return Version{}, err
	}
	return c.latestVersion(ctx)
}

func (c *Connector) latestVersion(ctx context.Context) (Version, error) {
	runner := query.NewRunner(c, c.logger)
	rec, err := runner.SelectOne(ctx, query.Select{
		Table:   query.Target{Name: c.versionTable},
		Columns: []string{"version", "applied_at", "author"},
		OrderBy: []query.Order{query.Desc(expr.C("applied_at"))},
	})
	if err != nil {
		return Version{}, fmt.Errorf("failed to read schema version: %w", err)
	}
	if rec == nil {
		return Version{Number: NoVersion}, nil
	}

	v := Version{}
	if v.Number, err = asInt(rec["version"]); err != nil {
		return Version{}, fmt.Errorf("failed to read schema version: %w", err)
	}
	if rec["applied_at"] != nil {
		if v.AppliedAt, err = asTime(rec["applied_at"]); err != nil {
			return Version{}, fmt.Errorf("failed to read schema version timestamp: %w", err)
		}
	}
	if author, ok := rec["author"].(string); ok {
		v.Author = author
	}
	return v, nil
}

// Verify runs the startup gate: the latest recorded version must equal
// expected. On a mismatch the pool is closed and every later call fails with
// the same *core.SchemaVersionError.
func (c *Connector) Verify(ctx context.Context, expected int) error {
	v, err := c.Version(ctx)
	if err != nil {
		return err
	}
	if v.Number != expected {
		gateErr := &core.SchemaVersionError{Found: v.Number, Expected: expected}
		c.logger.Error("schema version mismatch", "found", v.Number, "expected", expected)
		c.refuse(gateErr)
		c.db.Close()
		return gateErr
	}
	c.logger.Info("schema version verified", "version", v.Number, "author", v.Author)
	return nil
}

// CreateVersionTable creates the version history table if it does not exist.
func (c *Connector) CreateVersionTable(ctx context.Context) error {
	b := expr.NewBuilder(c.dialect)
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteIdent(c.versionTable)
	b.WriteString(" (")
	b.WriteIdent("version")
	b.WriteString(" INTEGER NOT NULL, ")
	b.WriteIdent("applied_at")
	b.WriteString(" TIMESTAMP NOT NULL, ")
	b.WriteIdent("author")
	b.WriteString(" TEXT)")
	if _, err := c.ExecContext(ctx, b.SQL()); err != nil {
		return fmt.Errorf("failed to create version table: %w", c.dialect.Classify(err))
	}
	return nil
}

// RecordVersion appends an entry to the version history.
func (c *Connector) RecordVersion(ctx context.Context, number int, author string) (Version, error) {
	v := Version{Number: number, AppliedAt: time.Now().UTC(), Author: author}

	b := expr.NewBuilder(c.dialect)
	b.WriteString("INSERT INTO ")
	b.WriteIdent(c.versionTable)
	b.WriteString(" (")
	b.WriteIdent("version")
	b.WriteString(", ")
	b.WriteIdent("applied_at")
	b.WriteString(", ")
	b.WriteIdent("author")
	b.WriteString(") VALUES (")
	b.WriteArg(v.Number)
	b.WriteString(", ")
	b.WriteArg(v.AppliedAt)
	b.WriteString(", ")
	b.WriteArg(v.Author)
	b.WriteString(")")

	if _, err := c.ExecContext(ctx, b.SQL(), b.Args()...); err != nil {
		return Version{}, fmt.Errorf("failed to record schema version: %w", c.dialect.Classify(err))
	}
	c.logger.Info("schema version recorded", "version", number, "author", author)
	return v, nil
}

func asInt(v any) (int, error) {
	switch tv := v.(type) {
	case int64:
		return int(tv), nil
	case float64:
		return int(tv), nil
	case string:
		return strconv.Atoi(tv)
	}
	return 0, fmt.Errorf("unexpected version value %v (%T)", v, v)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

func asTime(v any) (time.Time, error) {
	switch tv := v.(type) {
	case time.Time:
		return tv, nil
	case string:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, tv); err == nil {
				return t, nil
			}
		}
	}
	return time.Time{}, fmt.Errorf("unexpected timestamp value %v (%T)", v, v)
}
