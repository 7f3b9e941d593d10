package model

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzpsarthak13/lionrow/internal/core"
	"github.com/rzpsarthak13/lionrow/internal/dialect"
	"github.com/rzpsarthak13/lionrow/internal/query"
)

type rank int

const (
	rankCub rank = iota
	rankHunter
	rankElder
)

func newRanks(t *testing.T) *Enum[rank] {
	t.Helper()
	e, err := NewEnum("member_rank", map[rank]string{rankCub: "cub", rankHunter: "hunter", rankElder: "elder"})
	require.NoError(t, err)
	return e
}

func TestNewEnum_Validation(t *testing.T) {
	_, err := NewEnum("", map[rank]string{rankCub: "cub"})
	assert.ErrorIs(t, err, core.ErrUsage)
	_, err = NewEnum[rank]("member_rank", nil)
	assert.ErrorIs(t, err, core.ErrUsage)
	_, err = NewEnum("member_rank", map[rank]string{rankCub: "cub", rankElder: "cub"})
	assert.ErrorIs(t, err, core.ErrUsage)
}

func TestEnum_Codec(t *testing.T) {
	e := newRanks(t)
	c := e.Codec()
	assert.Equal(t, "member_rank", c.SQLType())
	assert.Equal(t, []string{"cub", "elder", "hunter"}, e.Labels())

	assert.Equal(t, "hunter", c.Encode(rankHunter))
	assert.Equal(t, "7", c.Encode(rank(7)))

	v, err := c.Decode([]byte("elder"))
	require.NoError(t, err)
	assert.Equal(t, rankElder, v)
	_, err = c.Decode("alpha")
	assert.Error(t, err)

	col := EnumColumn(e, Named("rank"))
	assert.Equal(t, "member_rank", col.Type())
}

func TestEnum_LabelsQuery(t *testing.T) {
	sql, args, err := newRanks(t).labelsQuery().Build(dialect.Postgres{})
	require.NoError(t, err)
	assert.Equal(t, `SELECT "pg_enum"."enumlabel" AS "label" FROM "pg_catalog"."pg_type" `+
		`INNER JOIN "pg_catalog"."pg_enum" ON "pg_enum"."enumtypid" = "pg_type"."oid" `+
		`WHERE "pg_type"."typname" = $1 ORDER BY "pg_enum"."enumsortorder" ASC`, sql)
	assert.Equal(t, []any{"member_rank"}, args)
}

func TestEnum_VerifySkipsStoresWithoutEnumTypes(t *testing.T) {
	_, c := declareMembers(t)
	require.NoError(t, newRanks(t).Verify(context.Background(), c))
	require.NoError(t, newRanks(t).Hook()(context.Background(), c))
}

func TestEnum_CheckLabels(t *testing.T) {
	_, c := declareMembers(t)
	ctx := context.Background()
	for _, stmt := range []string{
		`ATTACH DATABASE ':memory:' AS pg_catalog`,
		`CREATE TABLE pg_catalog.pg_type (oid INTEGER PRIMARY KEY, typname TEXT NOT NULL)`,
		`CREATE TABLE pg_catalog.pg_enum (enumtypid INTEGER, enumlabel TEXT, enumsortorder REAL)`,
		`INSERT INTO pg_catalog.pg_type VALUES (1, 'member_rank'), (2, 'guild_tier')`,
		`INSERT INTO pg_catalog.pg_enum VALUES (1, 'cub', 1), (1, 'hunter', 2), (2, 'gold', 1)`,
	} {
		_, err := c.ExecContext(ctx, stmt)
		require.NoError(t, err, stmt)
	}
	r := query.NewRunner(c, testLogger())

	err := newRanks(t).check(ctx, r)
	require.ErrorIs(t, err, core.ErrUsage)
	assert.Contains(t, err.Error(), "[elder]")

	_, err = c.ExecContext(ctx, `INSERT INTO pg_catalog.pg_enum VALUES (1, 'elder', 3)`)
	require.NoError(t, err)
	assert.NoError(t, newRanks(t).check(ctx, r))

	missing, err := NewEnum("season", map[rank]string{rankCub: "spring"})
	require.NoError(t, err)
	assert.ErrorIs(t, missing.check(ctx, r), core.ErrNotFound)
}
