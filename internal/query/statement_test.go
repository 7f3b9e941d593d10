package query

import (
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzpsarthak13/lionrow/internal/core"
	"github.com/rzpsarthak13/lionrow/internal/dialect"
	"github.com/rzpsarthak13/lionrow/internal/expr"
)

var members = Target{Name: "members", Key: []string{"guildid", "userid"}}

func TestStatements_Golden(t *testing.T) {
	statements := []struct {
		name string
		stmt Statement
	}{
		{"select", Select{
			Table:   members,
			Columns: []string{"userid", "coins"},
			Where:   []expr.Condition{expr.Eq(expr.C("guildid"), 1), expr.Ge(expr.C("coins"), 100)},
			OrderBy: []Order{Desc(expr.C("coins"))},
			Limit:   10,
		}},
		{"select_all", Select{Table: Target{Schema: "economy", Name: "transactions"}}},
		{"select_join", Select{
			Table:  members,
			Fields: []Field{As(expr.Col("members", "coins"), "coins"), As(expr.Col("b", "balance"), "bank")},
			Joins: []Join{
				{Table: Target{Name: "guilds"}, On: []expr.Condition{expr.Eq(expr.Col("guilds", "guildid"), expr.Col("members", "guildid"))}},
				{Kind: LeftJoin, Table: Target{Schema: "economy", Name: "bank"}, Alias: "b", Using: []string{"guildid", "userid"}},
				{Kind: LeftJoin, Table: Target{Name: "profiles"}, Natural: true},
			},
			Where: []expr.Condition{expr.Eq(expr.Col("guilds", "premium"), true)},
		}},
		{"select_grouped", Select{
			Table:   members,
			Columns: []string{"guildid"},
			Fields:  []Field{As(expr.Raw("SUM(coins)"), "total"), As(expr.Raw("COUNT(*)"), "members")},
			Where:   []expr.Condition{expr.Gt(expr.C("coins"), 0)},
			GroupBy: []expr.Expression{expr.C("guildid")},
			Extra:   expr.Raw("HAVING SUM(coins) > ?", 1000),
			OrderBy: []Order{Desc(expr.Raw("SUM(coins)")).WithNulls(NullsLast), Asc(expr.C("guildid"))},
			Limit:   5,
		}},
		{"insert", Insert{Table: members, Values: map[string]any{"guildid": 1, "userid": 2, "coins": 50}}},
		{"insert_default", Insert{Table: members}},
		{"insert_many", InsertMany{Table: members, Columns: []string{"guildid", "userid"}, Rows: [][]any{{1, 2}, {1, 3}}}},
		{"insert_ignore", InsertMany{Table: members, Columns: []string{"guildid", "userid"}, Rows: [][]any{{1, 2}, {1, 3}}, OnConflictIgnore: true}},
		{"update", Update{
			Table: members,
			Set:   map[string]any{"coins": Increment(50), "nick": "lion"},
			Where: []expr.Condition{KeyEq(members.Key, core.Key{1, 2})},
		}},
		{"delete", Delete{Table: members, Where: []expr.Condition{expr.In(expr.C("userid"), 2, 3)}}},
		{"upsert", Upsert{
			Table:    members,
			Conflict: []string{"guildid", "userid"},
			Values:   map[string]any{"guildid": 1, "userid": 2, "coins": 5},
		}},
		{"update_many", UpdateMany{
			Table:     members,
			SetKeys:   []string{"coins"},
			WhereKeys: []string{"guildid", "userid"},
			Rows:      [][]any{{10, 1, 2}, {20, 1, 3}},
			Casts:     map[string]string{"coins": "INTEGER"},
		}},
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	for _, d := range []core.Dialect{dialect.Postgres{}, dialect.MySQL{}, dialect.SQLite{}} {
		for _, tc := range statements {
			t.Run(d.Name()+"/"+tc.name, func(t *testing.T) {
				sql, args, err := tc.stmt.Build(d)
				require.NoError(t, err)
				g.Assert(t, d.Name()+"/"+tc.name, []byte(fmt.Sprintf("%s\n%v\n", sql, args)))
			})
		}
	}
}

func TestSelect_EmptyConditionsOmitWhere(t *testing.T) {
	for _, where := range [][]expr.Condition{nil, {}, {nil}, {expr.Match(nil)}} {
		sql, args, err := Select{Table: members, Where: where}.Build(dialect.Postgres{})
		require.NoError(t, err)
		assert.Equal(t, `SELECT * FROM "members"`, sql)
		assert.Empty(t, args)
	}
}

func TestBuild_RejectsMalformedStatements(t *testing.T) {
	pg := dialect.Postgres{}
	twoForms := Join{
		Table: Target{Name: "guilds"},
		On:    []expr.Condition{expr.Eq(expr.Col("guilds", "guildid"), expr.Col("members", "guildid"))},
		Using: []string{"guildid"},
	}
	cases := map[string]Statement{
		"empty in":          Select{Table: members, Where: []expr.Condition{expr.In(expr.C("userid"))}},
		"empty not in":      Delete{Table: members, Where: []expr.Condition{expr.NotIn(expr.C("userid"))}},
		"empty set":         Update{Table: members},
		"ragged rows":       InsertMany{Table: members, Columns: []string{"guildid", "userid"}, Rows: [][]any{{1}}},
		"no rows":           InsertMany{Table: members, Columns: []string{"guildid"}},
		"upsert no values":  Upsert{Table: members, Conflict: []string{"guildid"}},
		"upsert no target":  Upsert{Table: members, Values: map[string]any{"guildid": 1}},
		"update many keys":  UpdateMany{Table: members, SetKeys: []string{"coins"}, Rows: [][]any{{1}}},
		"update many rows":  UpdateMany{Table: members, SetKeys: []string{"coins"}, WhereKeys: []string{"userid"}, Rows: [][]any{{1, 2, 3}}},
		"key arity":         Delete{Table: members, Where: []expr.Condition{KeyEq(members.Key, core.Key{1})}},
		"join without form": Select{Table: members, Joins: []Join{{Table: Target{Name: "guilds"}}}},
		"join two forms":    Select{Table: members, Joins: []Join{twoForms}},
		"unnamed field":     Select{Table: members, Fields: []Field{{Expr: expr.Raw("COUNT(*)")}}},
		"empty order":       Select{Table: members, OrderBy: []Order{{Direction: Descending}}},
		"bad extra":         Select{Table: members, Extra: expr.Raw("HAVING SUM(coins) > ?")},
	}
	for name, stmt := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := stmt.Build(pg)
			assert.ErrorIs(t, err, core.ErrUsage)
		})
	}
}

func TestKeyIn(t *testing.T) {
	pg := dialect.Postgres{}

	sql, args, err := expr.Render(pg, KeyIn([]string{"id"}, []core.Key{{1}, {2}}))
	require.NoError(t, err)
	assert.Equal(t, `"id" IN ($1, $2)`, sql)
	assert.Equal(t, []any{1, 2}, args)

	sql, args, err = expr.Render(pg, KeyIn(members.Key, []core.Key{{1, 2}, {1, 3}}))
	require.NoError(t, err)
	assert.Equal(t, `("guildid", "userid") IN (($1, $2), ($3, $4))`, sql)
	assert.Equal(t, []any{1, 2, 1, 3}, args)

	assert.ErrorIs(t, KeyIn(members.Key, []core.Key{{1}}).Err(), core.ErrUsage)
	assert.ErrorIs(t, KeyIn(members.Key, nil).Err(), core.ErrUsage)
}

func TestTarget(t *testing.T) {
	assert.Equal(t, "members", Target{Schema: "public", Name: "members"}.String())
	assert.Equal(t, "economy.members", Target{Schema: "economy", Name: "members"}.String())

	sql, _, err := expr.Render(dialect.Postgres{}, Target{Schema: "public", Name: "members"}.Ident())
	require.NoError(t, err)
	assert.Equal(t, `"members"`, sql)
}

func TestOrder_NullsPlacement(t *testing.T) {
	nick := expr.C("nick")
	cases := []struct {
		order    Order
		postgres string
		mysql    string
	}{
		{Asc(nick), `"nick" ASC`, "`nick` ASC"},
		{Order{Expr: nick}, `"nick"`, "`nick`"},
		{Asc(nick).WithNulls(NullsFirst), `"nick" ASC NULLS FIRST`, "`nick` IS NULL DESC, `nick` ASC"},
		{Desc(nick).WithNulls(NullsLast), `"nick" DESC NULLS LAST`, "`nick` IS NULL ASC, `nick` DESC"},
		{Order{Expr: nick, Nulls: NullsFirst}, `"nick" NULLS FIRST`, "`nick` IS NULL DESC, `nick`"},
	}
	for _, tc := range cases {
		sql, _, err := Select{Table: members, OrderBy: []Order{tc.order}}.Build(dialect.Postgres{})
		require.NoError(t, err)
		assert.Equal(t, `SELECT * FROM "members" ORDER BY `+tc.postgres, sql)

		sql, _, err = Select{Table: members, OrderBy: []Order{tc.order}}.Build(dialect.MySQL{})
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM `members` ORDER BY "+tc.mysql, sql)
	}
}

func TestOrder_ExpressionArgsAreBound(t *testing.T) {
	sql, args, err := Select{
		Table:   members,
		OrderBy: []Order{Desc(expr.Raw("ABS(coins - ?)", 100)).WithNulls(NullsLast)},
	}.Build(dialect.MySQL{})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM `members` ORDER BY ABS(coins - ?) IS NULL ASC, ABS(coins - ?) DESC", sql)
	assert.Equal(t, []any{100, 100}, args)
}
