package registry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzpsarthak13/lionrow/internal/cache"
)

type stubValidator struct{}

func (stubValidator) Type() string { return "stub" }

func (stubValidator) Validate(c *Config) error {
	if c.ChangeFeed.QueueBufferSize <= 0 {
		return assert.AnError
	}
	return nil
}

func init() {
	RegisterValidator(stubValidator{})
}

const sampleYAML = `
database:
  driver: sqlite3
  database: /tmp/lion.db
  expected_version: 9
cache:
  type: lru
  size: 500
tables:
  members:
    cache_size: 50
  guilds:
    cache:
      type: ttl
      size: 20
      ttl: 30s
  reminders:
    use_cache: false
  audit:
    publish_changes: false
changefeed:
  enabled: true
  queue_type: stub
  drain_rate: 10
lock:
  type: memory
`

func TestConfigManager_LoadFromYAML(t *testing.T) {
	cm := NewConfigManager()
	require.NoError(t, cm.LoadFromYAML([]byte(sampleYAML)))

	c := cm.GetConfig()
	assert.Equal(t, "sqlite3", c.Database.Driver)
	require.NotNil(t, c.Database.ExpectedVersion)
	assert.Equal(t, 9, *c.Database.ExpectedVersion)
	assert.Equal(t, "VersionHistory", c.Database.VersionTable, "defaults survive")
	assert.Equal(t, 10, c.ChangeFeed.DrainRate)
	assert.Equal(t, 100, c.ChangeFeed.BatchSize)
	assert.Equal(t, LockMemory, c.Lock.Type)

	dbc := c.Database.Connector(nil)
	assert.False(t, dbc.SkipVersionCheck)
	assert.Equal(t, 9, dbc.ExpectedVersion)
}

func TestConfigManager_TablePolicy(t *testing.T) {
	cm := NewConfigManager()
	require.NoError(t, cm.LoadFromYAML([]byte(sampleYAML)))

	assert.Equal(t, cache.Policy{Type: cache.TypeLRU, Size: 500}, cm.TablePolicy("unlisted"))
	assert.Equal(t, cache.Policy{Type: cache.TypeLRU, Size: 50}, cm.TablePolicy("members"))
	assert.Equal(t, cache.Policy{Type: cache.TypeTTL, Size: 20, TTL: 30 * time.Second}, cm.TablePolicy("guilds"))
	assert.Equal(t, cache.TypeNone, cm.TablePolicy("reminders").Type)

	assert.True(t, cm.HasTableConfig("members"))
	assert.False(t, cm.HasTableConfig("unlisted"))
	assert.True(t, cm.PublishesChanges("members"))
	assert.True(t, cm.PublishesChanges("unlisted"))
	assert.False(t, cm.PublishesChanges("audit"))
}

func TestConfigManager_LoadFromFile(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "lionrow.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(sampleYAML), 0o600))
	cm := NewConfigManager()
	require.NoError(t, cm.LoadFromFile(yamlPath))
	assert.Equal(t, "sqlite3", cm.GetConfig().Database.Driver)

	jsonPath := filepath.Join(dir, "lionrow.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"database":{"driver":"mysql","dsn":"lion:pw@tcp(localhost)/lion"}}`), 0o600))
	require.NoError(t, cm.LoadFromFile(jsonPath))
	c := cm.GetConfig()
	assert.Equal(t, "mysql", c.Database.Driver)
	assert.Nil(t, c.Database.ExpectedVersion)
	assert.True(t, c.Database.Connector(nil).SkipVersionCheck)

	tomlPath := filepath.Join(dir, "lionrow.toml")
	require.NoError(t, os.WriteFile(tomlPath, nil, 0o600))
	assert.Error(t, cm.LoadFromFile(tomlPath))
	assert.Error(t, cm.LoadFromFile(filepath.Join(dir, "missing.yaml")))
}

func TestConfigManager_LoadFromEnv(t *testing.T) {
	t.Setenv("LIONROW_DATABASE_DRIVER", "postgres")
	t.Setenv("LIONROW_DATABASE_DSN", "postgres://lion@localhost/lion")
	t.Setenv("LIONROW_DATABASE_EXPECTED_VERSION", "7")
	t.Setenv("LIONROW_CACHE_TYPE", "weak")
	t.Setenv("LIONROW_LOCK_TYPE", "redis")
	t.Setenv("LIONROW_LOCK_TTL", "2s")
	t.Setenv("LIONROW_LOCK_REDIS_ENDPOINTS", "redis-a:6379,redis-b:6379")

	cm := NewConfigManager()
	require.NoError(t, cm.LoadFromEnv())

	c := cm.GetConfig()
	assert.Equal(t, "postgres", c.Database.Driver)
	assert.Equal(t, "postgres://lion@localhost/lion", c.Database.DSN)
	require.NotNil(t, c.Database.ExpectedVersion)
	assert.Equal(t, 7, *c.Database.ExpectedVersion)
	assert.Equal(t, cache.TypeWeak, c.Cache.Type)
	assert.Equal(t, LockRedis, c.Lock.Type)
	assert.Equal(t, 2*time.Second, c.Lock.TTL)
	assert.Equal(t, []string{"redis-a:6379", "redis-b:6379"}, c.Lock.Redis.Endpoints)
}

func TestConfigManager_LoadFromEnvRejectsBadValues(t *testing.T) {
	t.Setenv("LIONROW_DATABASE_DSN", "postgres://lion@localhost/lion")
	t.Setenv("LIONROW_DATABASE_MAX_OPEN_CONNS", "many")

	err := NewConfigManager().LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LIONROW_DATABASE_MAX_OPEN_CONNS")
}

func TestConfigManager_ApplyEnv(t *testing.T) {
	cm := NewConfigManager()
	require.NoError(t, cm.LoadFromYAML([]byte(sampleYAML)))

	t.Setenv("LIONROW_CACHE_SIZE", "42")
	require.NoError(t, cm.ApplyEnv())
	c := cm.GetConfig()
	assert.Equal(t, 42, c.Cache.Size)
	assert.Equal(t, "sqlite3", c.Database.Driver)
}

func TestConfigManager_Validation(t *testing.T) {
	cases := map[string]string{
		"no database":         "database: {driver: sqlite3}",
		"unknown driver":      "database: {driver: oracle, dsn: x}",
		"bad port":            "database: {driver: postgres, dsn: x, port: 70000}",
		"bad cache":           "database: {driver: sqlite3, database: x}\ncache: {type: fifo}",
		"ttl without ttl":     "database: {driver: sqlite3, database: x}\ncache: {type: ttl}",
		"bad table cache":     "database: {driver: sqlite3, database: x}\ntables: {members: {cache_size: -1}}",
		"unknown queue":       "database: {driver: sqlite3, database: x}\nchangefeed: {enabled: true, queue_type: carrier-pigeon}",
		"validator rejects":   "database: {driver: sqlite3, database: x}\nchangefeed: {enabled: true, queue_type: stub, queue_buffer_size: -1}",
		"zero drain rate":     "database: {driver: sqlite3, database: x}\nchangefeed: {enabled: true, queue_type: stub, drain_rate: 0}",
		"sink without region": "database: {driver: sqlite3, database: x}\nchangefeed: {enabled: true, queue_type: stub, dynamodb: {table_name: changes}}",
		"unknown lock":        "database: {driver: sqlite3, database: x}\nlock: {type: zookeeper}",
		"redis lock no ttl":   "database: {driver: sqlite3, database: x}\nlock: {type: redis, ttl: 0s}",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			cm := NewConfigManager()
			assert.Error(t, cm.LoadFromYAML([]byte(doc)))
		})
	}

	cm := NewConfigManager()
	require.NoError(t, cm.LoadFromYAML([]byte("database: {driver: sqlite3, database: x}\nchangefeed: {enabled: false, queue_type: carrier-pigeon}")))
}

func TestNewConfigManagerFrom(t *testing.T) {
	c := DefaultConfig()
	_, err := NewConfigManagerFrom(c)
	assert.Error(t, err, "defaults name no database")

	c.Database.Driver = "sqlite3"
	c.Database.Database = filepath.Join(t.TempDir(), "lion.db")
	cm, err := NewConfigManagerFrom(c)
	require.NoError(t, err)
	assert.Equal(t, c.Database.Database, cm.GetConfig().Database.Database)
}

func TestRegisterValidator_Panics(t *testing.T) {
	assert.Panics(t, func() { RegisterValidator(nil) })
	assert.Panics(t, func() { RegisterValidator(stubValidator{}) })

	v, ok := GetValidator("stub")
	require.True(t, ok)
	assert.Equal(t, "stub", v.Type())
}
