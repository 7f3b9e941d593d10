package lionrow

import (
	"github.com/rzpsarthak13/lionrow/internal/cache"
	"github.com/rzpsarthak13/lionrow/internal/changefeed"
	"github.com/rzpsarthak13/lionrow/internal/core"
	"github.com/rzpsarthak13/lionrow/internal/database"
	"github.com/rzpsarthak13/lionrow/internal/expr"
	"github.com/rzpsarthak13/lionrow/internal/model"
	"github.com/rzpsarthak13/lionrow/internal/registry"
	"github.com/rzpsarthak13/lionrow/internal/table"
)

type (
	// Config is the full configuration; see DefaultConfig and LoadConfig.
	Config           = registry.Config
	DatabaseConfig   = registry.DatabaseConfig
	TableConfig      = registry.TableConfig
	ChangeFeedConfig = registry.ChangeFeedConfig
	LockConfig       = registry.LockConfig
	CachePolicy      = cache.Policy

	Table       = table.Table
	RowTable    = table.RowTable
	Row         = table.Row
	Batch       = table.Batch
	TableOption = table.Option
	Model       = model.Model

	Record    = core.Record
	Key       = core.Key
	Change    = core.Change
	Condition = expr.Condition
	Version   = database.Version

	Sink     = changefeed.Sink
	SinkFunc = changefeed.SinkFunc
)

// Enum maps a Go enum type onto a store enum type; see NewEnum.
type Enum[T comparable] = model.Enum[T]

// NewEnum maps each value of T to its label in the store type named name.
func NewEnum[T comparable](name string, labels map[T]string) (*Enum[T], error) {
	return model.NewEnum(name, labels)
}

// Sentinel errors, for errors.Is.
var (
	ErrUsage                 = core.ErrUsage
	ErrNotFound              = core.ErrNotFound
	ErrConnectivity          = core.ErrConnectivity
	ErrConstraintViolation   = core.ErrConstraintViolation
	ErrSchemaVersionMismatch = core.ErrSchemaVersionMismatch
	ErrClosed                = core.ErrClosed
)

// SchemaVersionError is returned by Open when the database schema version
// differs from database.expected_version.
type SchemaVersionError = core.SchemaVersionError

// DefaultConfig returns a configuration with defaults for every section.
func DefaultConfig() *Config {
	return registry.DefaultConfig()
}

// LoadConfig reads a YAML or JSON file, then applies LIONROW_* environment
// overrides.
func LoadConfig(path string) (*Config, error) {
	cm := registry.NewConfigManager()
	if err := cm.LoadFromFile(path); err != nil {
		return nil, err
	}
	if err := cm.ApplyEnv(); err != nil {
		return nil, err
	}
	return cm.GetConfig(), nil
}

// NewTable returns a plain table handle.
func NewTable(name string, opts ...TableOption) *Table {
	return table.New(name, opts...)
}

// NewRowTable returns a cached row table over columns keyed by key.
func NewRowTable(name string, columns, key []string, opts ...TableOption) (*RowTable, error) {
	return table.NewRowTable(name, columns, key, opts...)
}
