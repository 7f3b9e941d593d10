package model

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzpsarthak13/lionrow/internal/core"
	"github.com/rzpsarthak13/lionrow/internal/database"
	"github.com/rzpsarthak13/lionrow/internal/dialect"
	"github.com/rzpsarthak13/lionrow/internal/expr"
	"github.com/rzpsarthak13/lionrow/internal/table"
)

type Member struct {
	Model `table:"members"`

	GuildID  *Column[int64] `db:"guildid,primary"`
	UserID   *Column[int64] `db:"userid,primary,references=users.userid"`
	Coins    *Column[int64]
	Nick     *Column[string]
	LastSeen *Column[time.Time]
	Tags     *Column[[]string] `db:"tags"`
}

func newMember() *Member {
	return &Member{Tags: JSON[[]string]()}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func declareMembers(t *testing.T) (*Member, *database.Connector) {
	t.Helper()
	ctx := context.Background()
	c, err := database.Open(ctx, database.Config{
		Driver:           "sqlite3",
		Database:         filepath.Join(t.TempDir(), "lion.db"),
		MaxOpenConns:     1,
		SkipVersionCheck: true,
		Logger:           testLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	_, err = c.ExecContext(ctx, `CREATE TABLE members (
		guildid INTEGER NOT NULL,
		userid INTEGER NOT NULL,
		coins INTEGER NOT NULL DEFAULT 0,
		nick TEXT,
		last_seen TIMESTAMP,
		tags TEXT,
		PRIMARY KEY (guildid, userid)
	)`)
	require.NoError(t, err)

	m := newMember()
	require.NoError(t, Declare(m, table.WithLogger(testLogger())))
	m.Bind(c)
	return m, c
}

func TestDeclare_NamesColumns(t *testing.T) {
	m := newMember()
	require.NoError(t, Declare(m))

	assert.Equal(t, "members", m.TableName())
	assert.Equal(t, "public", m.Schema())
	assert.Equal(t, []string{"guildid", "userid", "coins", "nick", "last_seen", "tags"}, m.ColumnNames())
	assert.Equal(t, []string{"guildid", "userid"}, m.Key())

	assert.Equal(t, "last_seen", m.LastSeen.Name())
	assert.Same(t, &m.Model, m.Coins.Owner())
	assert.True(t, m.GuildID.IsPrimary())
	assert.False(t, m.Coins.IsPrimary())
	assert.Equal(t, "users.userid", m.UserID.Reference())
	assert.Equal(t, "bigint", m.Coins.Type())
	assert.Equal(t, "jsonb", m.Tags.Type())
	assert.Equal(t, "members.coins", m.Coins.String())
	assert.True(t, m.Declared())
	assert.Equal(t, []string{"guildid", "userid"}, m.Rows().Key())
}

type Guild struct {
	Model `table:"guilds"`

	GuildID *Column[int64] `db:"guildid,primary"`
}

type Wallet struct {
	Model `table:"wallets"`

	WalletID *Column[int64] `db:"walletid,primary"`
	GuildID  *Column[int64]
	Backup   *Column[int64] `db:"backup,references=vaults.vaultid"`
}

func TestReferences_DeclaredColumn(t *testing.T) {
	guilds := &Guild{GuildID: Integer()}
	wallets := &Wallet{
		GuildID: Integer(References(guilds.GuildID)),
		Backup:  Integer(References(guilds.GuildID)),
	}
	require.NoError(t, Declare(wallets))

	assert.Same(t, guilds.GuildID, wallets.GuildID.Referenced())
	assert.Equal(t, "", wallets.GuildID.Reference(), "target model not declared yet")

	require.NoError(t, Declare(guilds))
	assert.Equal(t, "guilds.guildid", wallets.GuildID.Reference())

	assert.Nil(t, wallets.Backup.Referenced(), "tags take precedence")
	assert.Equal(t, "vaults.vaultid", wallets.Backup.Reference())
	assert.Nil(t, wallets.WalletID.Referenced())
	assert.Equal(t, "", wallets.WalletID.Reference())
}

func TestDeclare_OnlyOnce(t *testing.T) {
	m := newMember()
	require.NoError(t, Declare(m))
	name := m.Coins.Name()

	err := Declare(m)
	assert.ErrorIs(t, err, core.ErrUsage)
	assert.Equal(t, name, m.Coins.Name())
}

func TestDeclare_SharedColumnIsRejected(t *testing.T) {
	type Other struct {
		Model `table:"others"`
		ID    *Column[int64] `db:"id,primary"`
	}
	m := newMember()
	require.NoError(t, Declare(m))

	o := &Other{ID: m.Coins}
	assert.ErrorIs(t, Declare(o), core.ErrUsage)
}

func TestDeclare_Invalid(t *testing.T) {
	type NoModel struct {
		ID *Column[int64] `db:"id,primary"`
	}
	type NoKey struct {
		Model
		ID *Column[int64]
	}
	type Duplicate struct {
		Model
		ID    *Column[int64] `db:"id,primary"`
		Other *Column[int64] `db:"id"`
	}
	type Unsupported struct {
		Model
		ID *Column[complex128] `db:"id,primary"`
	}

	for name, v := range map[string]any{
		"not a pointer": 42,
		"nil pointer":   (*Member)(nil),
		"no model":      &NoModel{},
		"no key":        &NoKey{},
		"duplicate":     &Duplicate{},
		"unsupported":   &Unsupported{},
	} {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, Declare(v), core.ErrUsage)
		})
	}
}

func TestDeclare_DefaultTableName(t *testing.T) {
	type GuildMember struct {
		Model
		ID *Column[int64] `db:",primary"`
	}
	m := &GuildMember{}
	require.NoError(t, Declare(m))
	assert.Equal(t, "guild_member", m.TableName())
	assert.Equal(t, "id", m.ID.Name())
}

func TestSnakeCase(t *testing.T) {
	for in, want := range map[string]string{
		"Coins":      "coins",
		"GuildID":    "guild_id",
		"LastSeen":   "last_seen",
		"HTTPServer": "http_server",
		"Slot2Name":  "slot2_name",
	} {
		assert.Equal(t, want, snakeCase(in), in)
	}
}

func TestColumn_Expressions(t *testing.T) {
	m := newMember()
	require.NoError(t, Declare(m))
	pg := dialect.Postgres{}

	cases := []struct {
		name string
		e    expr.Expression
		sql  string
		args []any
	}{
		{"eq", m.Coins.Eq(int64(5)), `"coins" = $1`, []any{int64(5)}},
		{"ne", m.Coins.Ne(5), `"coins" != $1`, []any{5}},
		{"lt", m.Coins.Lt(5), `"coins" < $1`, []any{5}},
		{"le", m.Coins.Le(5), `"coins" <= $1`, []any{5}},
		{"gt", m.Coins.Gt(5), `"coins" > $1`, []any{5}},
		{"ge", m.Coins.Ge(5), `"coins" >= $1`, []any{5}},
		{"in", m.UserID.In([]int64{1, 2}), `"userid" IN ($1, $2)`, []any{int64(1), int64(2)}},
		{"not in", m.UserID.NotIn(1, 2), `"userid" NOT IN ($1, $2)`, []any{1, 2}},
		{"is null", m.Nick.IsNull(), `"nick" IS NULL`, nil},
		{"not null", m.Nick.NotNull(), `"nick" IS NOT NULL`, nil},
		{"like", m.Nick.Like("li%"), `"nick" LIKE $1`, []any{"li%"}},
		{"add", m.Coins.Add(1), `("coins" + $1)`, []any{1}},
		{"sub", m.Coins.Sub(1), `("coins" - $1)`, []any{1}},
		{"mul", m.Coins.Mul(2), `("coins" * $1)`, []any{2}},
		{"column to column", m.Coins.Gt(m.UserID), `"coins" > "userid"`, nil},
		{"json value", m.Tags.Eq([]string{"a"}), `"tags" = $1`, []any{`["a"]`}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sql, args, err := expr.Render(pg, tc.e)
			require.NoError(t, err)
			assert.Equal(t, tc.sql, sql)
			assert.Equal(t, tc.args, args)
		})
	}

	_, _, err := expr.Render(pg, m.GuildID.Shard(0, 4))
	assert.NoError(t, err)
	_, _, err = expr.Render(pg, m.UserID.In())
	assert.ErrorIs(t, err, core.ErrUsage)
}

func TestColumn_UndeclaredIsUsageError(t *testing.T) {
	coins := Integer()
	_, _, err := expr.Render(dialect.Postgres{}, coins.Eq(1))
	assert.ErrorIs(t, err, core.ErrUsage)

	var m Member
	_, err = m.Fetch(context.Background(), 1, 2)
	assert.ErrorIs(t, err, core.ErrUsage)
}

func TestColumn_TypedAccess(t *testing.T) {
	m, c := declareMembers(t)
	ctx := context.Background()
	seen := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	row, err := m.Create(ctx, map[string]any{"guildid": 1, "userid": 2, "coins": 100, "nick": "lion"})
	require.NoError(t, err)

	coins, err := m.Coins.Of(row)
	require.NoError(t, err)
	assert.Equal(t, int64(100), coins)
	nick, err := m.Nick.Of(row)
	require.NoError(t, err)
	assert.Equal(t, "lion", nick)
	tags, err := m.Tags.Of(row)
	require.NoError(t, err)
	assert.Nil(t, tags, "NULL decodes to the zero value")

	require.NoError(t, m.Coins.Set(ctx, row, 150))
	assert.Equal(t, int64(150), m.Coins.MustOf(row))

	before := c.Stats().Statements
	err = row.Batch(ctx, func(b *table.Batch) error {
		if err := m.LastSeen.Stage(b, seen); err != nil {
			return err
		}
		return m.Tags.Stage(b, []string{"vip", "early"})
	})
	require.NoError(t, err)
	assert.Equal(t, before+1, c.Stats().Statements)

	require.NoError(t, row.Refresh(ctx))
	last, err := m.LastSeen.Of(row)
	require.NoError(t, err)
	assert.True(t, seen.Equal(last), "got %v", last)
	tags, err = m.Tags.Of(row)
	require.NoError(t, err)
	assert.Equal(t, []string{"vip", "early"}, tags)
}

func TestColumn_IncrementAndForwarding(t *testing.T) {
	m, _ := declareMembers(t)
	ctx := context.Background()

	row, err := m.FetchOrCreate(ctx, core.Key{1, 2}, map[string]any{"coins": 100})
	require.NoError(t, err)

	_, err = m.Rows().UpdateWhere(ctx, map[string]any{m.Coins.Name(): m.Coins.Increment(50)}, m.GuildID.Eq(1), m.UserID.Eq(2))
	require.NoError(t, err)
	_, err = m.Rows().UpdateWhere(ctx, map[string]any{m.Coins.Name(): m.Coins.Increment(20)}, m.GuildID.Eq(1), m.UserID.Eq(2))
	require.NoError(t, err)
	assert.Equal(t, int64(170), m.Coins.MustOf(row))

	fetched, err := m.Fetch(ctx, 1, 2)
	require.NoError(t, err)
	assert.Same(t, row, fetched)

	rows, err := m.FetchWhere(ctx, m.Coins.Ge(170))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Same(t, row, rows[0])
}

func TestColumn_RowOfAnotherModel(t *testing.T) {
	m, c := declareMembers(t)
	ctx := context.Background()

	other := newMember()
	require.NoError(t, Declare(other))
	other.Bind(c)

	row, err := other.Create(ctx, map[string]any{"guildid": 1, "userid": 2})
	require.NoError(t, err)
	_, err = m.Coins.Of(row)
	assert.ErrorIs(t, err, core.ErrUsage)
}
