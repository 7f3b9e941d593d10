package registry

import (
	"log/slog"
	"time"

	"github.com/rzpsarthak13/lionrow/internal/cache"
	"github.com/rzpsarthak13/lionrow/internal/database"
)

// Config is the full lionrow configuration as loaded from files or the
// environment.
type Config struct {
	Database   DatabaseConfig         `yaml:"database" json:"database"`
	Cache      cache.Policy           `yaml:"cache" json:"cache"`
	Tables     map[string]TableConfig `yaml:"tables,omitempty" json:"tables,omitempty"`
	ChangeFeed ChangeFeedConfig       `yaml:"changefeed" json:"changefeed"`
	Lock       LockConfig             `yaml:"lock" json:"lock"`
}

// DatabaseConfig contains configuration for the relational store.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver" json:"driver"`
	DSN             string        `yaml:"dsn,omitempty" json:"dsn,omitempty"`
	Host            string        `yaml:"host,omitempty" json:"host,omitempty"`
	Port            int           `yaml:"port,omitempty" json:"port,omitempty"`
	Database        string        `yaml:"database,omitempty" json:"database,omitempty"`
	Username        string        `yaml:"username,omitempty" json:"username,omitempty"`
	Password        string        `yaml:"password,omitempty" json:"password,omitempty"`
	SSLMode         string        `yaml:"ssl_mode,omitempty" json:"ssl_mode,omitempty"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout" json:"connect_timeout"`

	// ExpectedVersion enables the startup schema gate when set.
	ExpectedVersion *int   `yaml:"expected_version,omitempty" json:"expected_version,omitempty"`
	VersionTable    string `yaml:"version_table,omitempty" json:"version_table,omitempty"`
}

// Connector returns the connector configuration.
func (d DatabaseConfig) Connector(logger *slog.Logger) database.Config {
	cfg := database.Config{
		Driver:           d.Driver,
		DSN:              d.DSN,
		Host:             d.Host,
		Port:             d.Port,
		Database:         d.Database,
		Username:         d.Username,
		Password:         d.Password,
		SSLMode:          d.SSLMode,
		MaxOpenConns:     d.MaxOpenConns,
		MaxIdleConns:     d.MaxIdleConns,
		ConnMaxLifetime:  d.ConnMaxLifetime,
		ConnMaxIdleTime:  d.ConnMaxIdleTime,
		ConnectTimeout:   d.ConnectTimeout,
		SkipVersionCheck: d.ExpectedVersion == nil,
		VersionTable:     d.VersionTable,
		Logger:           logger,
	}
	if d.ExpectedVersion != nil {
		cfg.ExpectedVersion = *d.ExpectedVersion
	}
	return cfg
}

// TableConfig overrides the cache settings of one table.
type TableConfig struct {
	UseCache  *bool         `yaml:"use_cache,omitempty" json:"use_cache,omitempty"`
	Cache     *cache.Policy `yaml:"cache,omitempty" json:"cache,omitempty"`
	CacheSize int           `yaml:"cache_size,omitempty" json:"cache_size,omitempty"`

	// PublishChanges turns change events off for the table when false.
	PublishChanges *bool `yaml:"publish_changes,omitempty" json:"publish_changes,omitempty"`
}

// ChangeFeedConfig contains change event queueing and draining settings.
type ChangeFeedConfig struct {
	Enabled          bool          `yaml:"enabled" json:"enabled"`
	QueueType        string        `yaml:"queue_type" json:"queue_type"`
	QueueBufferSize  int           `yaml:"queue_buffer_size" json:"queue_buffer_size"`
	BatchSize        int           `yaml:"batch_size" json:"batch_size"`
	DrainRate        int           `yaml:"drain_rate" json:"drain_rate"`
	PollInterval     time.Duration `yaml:"poll_interval" json:"poll_interval"`
	MaxRetries       int           `yaml:"max_retries" json:"max_retries"`
	RetryBackoffBase time.Duration `yaml:"retry_backoff_base" json:"retry_backoff_base"`
	RetryBackoffMax  time.Duration `yaml:"retry_backoff_max" json:"retry_backoff_max"`

	Redis    RedisConfig    `yaml:"redis,omitempty" json:"redis,omitempty"`
	Kafka    KafkaConfig    `yaml:"kafka,omitempty" json:"kafka,omitempty"`
	DynamoDB DynamoDBConfig `yaml:"dynamodb,omitempty" json:"dynamodb,omitempty"`
}

// RedisConfig contains Redis connection settings shared by the Redis change
// queue and the Redis locker.
type RedisConfig struct {
	Endpoints    []string      `yaml:"endpoints" json:"endpoints"`
	ClusterMode  bool          `yaml:"cluster_mode,omitempty" json:"cluster_mode,omitempty"`
	Password     string        `yaml:"password,omitempty" json:"password,omitempty"`
	DB           int           `yaml:"db,omitempty" json:"db,omitempty"`
	PoolSize     int           `yaml:"pool_size,omitempty" json:"pool_size,omitempty"`
	MinIdleConns int           `yaml:"min_idle_conns,omitempty" json:"min_idle_conns,omitempty"`
	MaxRetries   int           `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`
	DialTimeout  time.Duration `yaml:"dial_timeout,omitempty" json:"dial_timeout,omitempty"`
	ReadTimeout  time.Duration `yaml:"read_timeout,omitempty" json:"read_timeout,omitempty"`
	WriteTimeout time.Duration `yaml:"write_timeout,omitempty" json:"write_timeout,omitempty"`
	KeyPrefix    string        `yaml:"key_prefix,omitempty" json:"key_prefix,omitempty"`
}

// KafkaConfig contains Kafka-specific configuration.
type KafkaConfig struct {
	Brokers         []string      `yaml:"brokers" json:"brokers"`
	Topic           string        `yaml:"topic" json:"topic"`
	GroupID         string        `yaml:"group_id" json:"group_id"`
	BatchSize       int           `yaml:"batch_size" json:"batch_size"`
	BatchTimeout    time.Duration `yaml:"batch_timeout" json:"batch_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	RequiredAcks    int           `yaml:"required_acks" json:"required_acks"`
	MaxMessageBytes int           `yaml:"max_message_bytes" json:"max_message_bytes"`
	MinBytes        int           `yaml:"min_bytes" json:"min_bytes"`
	MaxBytes        int           `yaml:"max_bytes" json:"max_bytes"`
	MaxWait         time.Duration `yaml:"max_wait" json:"max_wait"`
}

// DynamoDBConfig configures the change archive sink. The sink is off while
// TableName is empty.
type DynamoDBConfig struct {
	Region          string `yaml:"region" json:"region"`
	TableName       string `yaml:"table_name" json:"table_name"`
	Endpoint        string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" json:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" json:"secret_access_key,omitempty"`

	// TTL sets each archived item's expiry attribute when positive.
	TTL time.Duration `yaml:"ttl,omitempty" json:"ttl,omitempty"`
}

// Lock types.
const (
	LockNone   = "none"
	LockMemory = "memory"
	LockRedis  = "redis"
)

// LockConfig selects the locker used by fetch-or-create.
type LockConfig struct {
	Type          string        `yaml:"type" json:"type"`
	TTL           time.Duration `yaml:"ttl" json:"ttl"`
	RetryInterval time.Duration `yaml:"retry_interval" json:"retry_interval"`

	// Redis defaults to the change feed's Redis settings when it has no
	// endpoints.
	Redis RedisConfig `yaml:"redis,omitempty" json:"redis,omitempty"`
}
