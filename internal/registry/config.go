package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rzpsarthak13/lionrow/internal/cache"
	"github.com/rzpsarthak13/lionrow/internal/database"
	"github.com/rzpsarthak13/lionrow/internal/dialect"
)

// EnvPrefix prefixes every environment variable LoadFromEnv reads.
const EnvPrefix = "LIONROW_"

// ConfigValidator validates the settings of one change queue backend.
// Backends register a validator from init().
type ConfigValidator interface {
	// Validate checks the backend-specific part of config.
	Validate(config *Config) error

	// Type returns the queue type the validator is for, such as "redis".
	Type() string
}

var (
	validatorRegistry      = make(map[string]ConfigValidator)
	validatorRegistryMutex sync.RWMutex
)

// RegisterValidator registers a queue validator. It panics if validator is
// nil, has no type, or its type is already registered.
func RegisterValidator(validator ConfigValidator) {
	if validator == nil {
		panic("validator cannot be nil")
	}
	if validator.Type() == "" {
		panic("validator type cannot be empty")
	}

	validatorRegistryMutex.Lock()
	defer validatorRegistryMutex.Unlock()

	if _, exists := validatorRegistry[validator.Type()]; exists {
		panic(fmt.Sprintf("validator for type %q is already registered", validator.Type()))
	}
	validatorRegistry[validator.Type()] = validator
}

// GetValidator returns the validator for a queue type.
func GetValidator(queueType string) (ConfigValidator, bool) {
	validatorRegistryMutex.RLock()
	defer validatorRegistryMutex.RUnlock()
	validator, exists := validatorRegistry[queueType]
	return validator, exists
}

// ConfigManager loads and serves the configuration.
type ConfigManager struct {
	mu     sync.RWMutex
	config *Config
}

// NewConfigManager returns a manager holding the defaults.
func NewConfigManager() *ConfigManager {
	return &ConfigManager{config: DefaultConfig()}
}

// NewConfigManagerFrom returns a manager holding config after validating it.
func NewConfigManagerFrom(config *Config) (*ConfigManager, error) {
	cm := &ConfigManager{}
	if err := cm.validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	cm.config = config
	return cm, nil
}

// DefaultConfig returns a configuration with defaults for every section. It
// names no database.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:          "postgres",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: 10 * time.Minute,
			ConnectTimeout:  10 * time.Second,
			VersionTable:    database.DefaultVersionTable,
		},
		Cache:  cache.DefaultPolicy(),
		Tables: make(map[string]TableConfig),
		ChangeFeed: ChangeFeedConfig{
			QueueType:        "memory",
			QueueBufferSize:  10000,
			BatchSize:        100,
			DrainRate:        50,
			PollInterval:     100 * time.Millisecond,
			MaxRetries:       5,
			RetryBackoffBase: time.Second,
			RetryBackoffMax:  30 * time.Second,
			Redis: RedisConfig{
				Endpoints:    []string{"localhost:6379"},
				PoolSize:     10,
				MinIdleConns: 5,
				MaxRetries:   3,
				DialTimeout:  5 * time.Second,
				ReadTimeout:  3 * time.Second,
				WriteTimeout: 3 * time.Second,
				KeyPrefix:    "lionrow",
			},
			Kafka: KafkaConfig{
				Brokers:         []string{"localhost:9092"},
				Topic:           "lionrow-changes",
				GroupID:         "lionrow-drainer",
				BatchSize:       100,
				BatchTimeout:    10 * time.Millisecond,
				WriteTimeout:    10 * time.Second,
				ReadTimeout:     10 * time.Second,
				RequiredAcks:    -1,
				MaxMessageBytes: 1000000,
				MinBytes:        1,
				MaxBytes:        10 * 1024 * 1024,
				MaxWait:         100 * time.Millisecond,
			},
		},
		Lock: LockConfig{
			Type:          LockNone,
			TTL:           10 * time.Second,
			RetryInterval: 50 * time.Millisecond,
		},
	}
}

// LoadFromFile loads a YAML or JSON file, chosen by extension.
func (cm *ConfigManager) LoadFromFile(filePath string) error {
	config, err := ReadConfigFile(filePath)
	if err != nil {
		return err
	}
	return cm.set(config)
}

// LoadFromYAML loads YAML over the defaults.
func (cm *ConfigManager) LoadFromYAML(data []byte) error {
	config, err := decodeYAML(data)
	if err != nil {
		return err
	}
	return cm.set(config)
}

// LoadFromJSON loads JSON over the defaults. Durations are nanoseconds.
func (cm *ConfigManager) LoadFromJSON(data []byte) error {
	config, err := decodeJSON(data)
	if err != nil {
		return err
	}
	return cm.set(config)
}

// ReadConfigFile decodes a YAML or JSON file over the defaults without
// validating it, so callers can layer further overrides first.
func ReadConfigFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".yaml", ".yml":
		return decodeYAML(data)
	case ".json":
		return decodeJSON(data)
	default:
		return nil, fmt.Errorf("unsupported config file format: %s (supported: .yaml, .yml, .json)", ext)
	}
}

func decodeYAML(data []byte) (*Config, error) {
	config := DefaultConfig()
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}
	return config, nil
}

func decodeJSON(data []byte) (*Config, error) {
	config := DefaultConfig()
	if len(data) > 0 {
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	}
	return config, nil
}

// LoadFromEnv loads the defaults overlaid with LIONROW_* variables.
func (cm *ConfigManager) LoadFromEnv() error {
	config := DefaultConfig()
	if err := applyEnv(config, os.LookupEnv); err != nil {
		return err
	}
	return cm.set(config)
}

// ApplyEnv overlays LIONROW_* variables on the current configuration.
// Variables follow LIONROW_<SECTION>_<KEY>, for example
// LIONROW_DATABASE_DSN, LIONROW_CACHE_TYPE or LIONROW_CHANGEFEED_QUEUE_TYPE.
func (cm *ConfigManager) ApplyEnv() error {
	config := cm.GetConfig()
	if err := applyEnv(config, os.LookupEnv); err != nil {
		return err
	}
	return cm.set(config)
}

// ApplyEnvTo overlays LIONROW_* variables on config without validating it.
func ApplyEnvTo(config *Config) error {
	return applyEnv(config, os.LookupEnv)
}

func (cm *ConfigManager) set(config *Config) error {
	if err := cm.validateConfig(config); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	cm.mu.Lock()
	cm.config = config
	cm.mu.Unlock()
	return nil
}

type lookupFunc func(key string) (string, bool)

// env reads typed LIONROW_* values and remembers the first parse failure.
type env struct {
	lookup lookupFunc
	err    error
}

func (e *env) string(key string, dst *string) {
	if v, ok := e.lookup(EnvPrefix + key); ok && v != "" {
		*dst = v
	}
}

func (e *env) list(key string, dst *[]string) {
	if v, ok := e.lookup(EnvPrefix + key); ok && v != "" {
		*dst = strings.Split(v, ",")
	}
}

func (e *env) int(key string, dst *int) {
	v, ok := e.lookup(EnvPrefix + key)
	if !ok || v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, err)
		return
	}
	*dst = n
}

func (e *env) bool(key string, dst *bool) {
	v, ok := e.lookup(EnvPrefix + key)
	if !ok || v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, err)
		return
	}
	*dst = b
}

func (e *env) duration(key string, dst *time.Duration) {
	v, ok := e.lookup(EnvPrefix + key)
	if !ok || v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, err)
		return
	}
	*dst = d
}

func (e *env) fail(key string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err)
	}
}

func applyEnv(config *Config, lookup lookupFunc) error {
	e := &env{lookup: lookup}

	db := &config.Database
	e.string("DATABASE_DRIVER", &db.Driver)
	e.string("DATABASE_DSN", &db.DSN)
	e.string("DATABASE_HOST", &db.Host)
	e.int("DATABASE_PORT", &db.Port)
	e.string("DATABASE_DATABASE", &db.Database)
	e.string("DATABASE_USERNAME", &db.Username)
	e.string("DATABASE_PASSWORD", &db.Password)
	e.string("DATABASE_SSL_MODE", &db.SSLMode)
	e.int("DATABASE_MAX_OPEN_CONNS", &db.MaxOpenConns)
	e.int("DATABASE_MAX_IDLE_CONNS", &db.MaxIdleConns)
	e.duration("DATABASE_CONNECT_TIMEOUT", &db.ConnectTimeout)
	e.string("DATABASE_VERSION_TABLE", &db.VersionTable)
	if v, ok := lookup(EnvPrefix + "DATABASE_EXPECTED_VERSION"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.fail("DATABASE_EXPECTED_VERSION", err)
		} else {
			db.ExpectedVersion = &n
		}
	}

	typ := string(config.Cache.Type)
	e.string("CACHE_TYPE", &typ)
	config.Cache.Type = cache.Type(typ)
	e.int("CACHE_SIZE", &config.Cache.Size)
	e.duration("CACHE_TTL", &config.Cache.TTL)

	cf := &config.ChangeFeed
	e.bool("CHANGEFEED_ENABLED", &cf.Enabled)
	e.string("CHANGEFEED_QUEUE_TYPE", &cf.QueueType)
	e.int("CHANGEFEED_QUEUE_BUFFER_SIZE", &cf.QueueBufferSize)
	e.int("CHANGEFEED_BATCH_SIZE", &cf.BatchSize)
	e.int("CHANGEFEED_DRAIN_RATE", &cf.DrainRate)
	e.int("CHANGEFEED_MAX_RETRIES", &cf.MaxRetries)
	e.list("CHANGEFEED_REDIS_ENDPOINTS", &cf.Redis.Endpoints)
	e.bool("CHANGEFEED_REDIS_CLUSTER_MODE", &cf.Redis.ClusterMode)
	e.string("CHANGEFEED_REDIS_PASSWORD", &cf.Redis.Password)
	e.int("CHANGEFEED_REDIS_DB", &cf.Redis.DB)
	e.list("CHANGEFEED_KAFKA_BROKERS", &cf.Kafka.Brokers)
	e.string("CHANGEFEED_KAFKA_TOPIC", &cf.Kafka.Topic)
	e.string("CHANGEFEED_KAFKA_GROUP_ID", &cf.Kafka.GroupID)
	e.string("CHANGEFEED_DYNAMODB_REGION", &cf.DynamoDB.Region)
	e.string("CHANGEFEED_DYNAMODB_TABLE_NAME", &cf.DynamoDB.TableName)
	e.string("CHANGEFEED_DYNAMODB_ENDPOINT", &cf.DynamoDB.Endpoint)

	e.string("LOCK_TYPE", &config.Lock.Type)
	e.duration("LOCK_TTL", &config.Lock.TTL)
	e.list("LOCK_REDIS_ENDPOINTS", &config.Lock.Redis.Endpoints)

	return e.err
}

// GetConfig returns a copy of the current configuration.
func (cm *ConfigManager) GetConfig() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	c := *cm.config
	c.Tables = make(map[string]TableConfig, len(cm.config.Tables))
	for name, tc := range cm.config.Tables {
		c.Tables[name] = tc
	}
	return &c
}

// HasTableConfig reports whether the table has its own section.
func (cm *ConfigManager) HasTableConfig(tableName string) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	_, ok := cm.config.Tables[tableName]
	return ok
}

// GetTableConfig returns the table's section, empty when it has none.
func (cm *ConfigManager) GetTableConfig(tableName string) TableConfig {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config.Tables[tableName]
}

// TablePolicy returns the cache policy for a table: the default policy
// overridden by the table's cache, cache_size and use_cache settings.
func (cm *ConfigManager) TablePolicy(tableName string) cache.Policy {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	p := cm.config.Cache
	tc, ok := cm.config.Tables[tableName]
	if !ok {
		return p
	}
	if tc.Cache != nil {
		p = *tc.Cache
	}
	if tc.CacheSize > 0 {
		p.Size = tc.CacheSize
	}
	if tc.UseCache != nil && !*tc.UseCache {
		p = cache.Policy{Type: cache.TypeNone}
	}
	return p
}

// PublishesChanges reports whether writes to the table emit change events.
func (cm *ConfigManager) PublishesChanges(tableName string) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	if !cm.config.ChangeFeed.Enabled {
		return false
	}
	tc, ok := cm.config.Tables[tableName]
	return !ok || tc.PublishChanges == nil || *tc.PublishChanges
}

func (cm *ConfigManager) validateConfig(config *Config) error {
	if config == nil {
		return fmt.Errorf("config is nil")
	}

	db := config.Database
	if db.Driver == "" {
		return fmt.Errorf("database.driver is required")
	}
	if _, err := dialect.Get(db.Driver); err != nil {
		return fmt.Errorf("database.driver: %w", err)
	}
	if db.DSN == "" && db.Database == "" {
		return fmt.Errorf("database.dsn or database.database is required")
	}
	if db.Port < 0 || db.Port > 65535 {
		return fmt.Errorf("database.port must be between 0 and 65535")
	}
	if db.MaxOpenConns < 0 || db.MaxIdleConns < 0 {
		return fmt.Errorf("database pool sizes must be non-negative")
	}

	if err := config.Cache.Validate(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	for name, tc := range config.Tables {
		if tc.Cache != nil {
			if err := tc.Cache.Validate(); err != nil {
				return fmt.Errorf("tables.%s.cache: %w", name, err)
			}
		}
		if tc.CacheSize < 0 {
			return fmt.Errorf("tables.%s.cache_size must be non-negative", name)
		}
	}

	cf := config.ChangeFeed
	if cf.Enabled {
		if cf.QueueType == "" {
			return fmt.Errorf("changefeed.queue_type is required")
		}
		validator, exists := GetValidator(cf.QueueType)
		if !exists {
			return fmt.Errorf("unsupported change queue type: %s", cf.QueueType)
		}
		if err := validator.Validate(config); err != nil {
			return fmt.Errorf("changefeed validation failed: %w", err)
		}
		if cf.BatchSize <= 0 {
			return fmt.Errorf("changefeed.batch_size must be greater than 0")
		}
		if cf.DrainRate <= 0 {
			return fmt.Errorf("changefeed.drain_rate must be greater than 0")
		}
		if cf.MaxRetries < 0 {
			return fmt.Errorf("changefeed.max_retries must be non-negative")
		}
		if cf.DynamoDB.TableName != "" && cf.DynamoDB.Region == "" {
			return fmt.Errorf("changefeed.dynamodb.region is required when table_name is set")
		}
	}

	switch config.Lock.Type {
	case "", LockNone, LockMemory:
	case LockRedis:
		if len(config.Lock.Redis.Endpoints) == 0 && len(cf.Redis.Endpoints) == 0 {
			return fmt.Errorf("lock.redis.endpoints is required when lock.type is 'redis'")
		}
		if config.Lock.TTL <= 0 {
			return fmt.Errorf("lock.ttl must be greater than 0")
		}
	default:
		return fmt.Errorf("lock.type must be 'none', 'memory' or 'redis'")
	}
	return nil
}
