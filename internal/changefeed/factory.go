package changefeed

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/rzpsarthak13/lionrow/internal/core"
	"github.com/rzpsarthak13/lionrow/internal/kvstore"
	"github.com/rzpsarthak13/lionrow/internal/registry"
)

// QueueFactory creates one kind of change queue from the change feed
// configuration. Each backend registers its factory from init().
type QueueFactory interface {
	// Type returns the queue type, matching changefeed.queue_type.
	Type() string

	// Validate checks the backend's part of the configuration.
	Validate(cfg registry.ChangeFeedConfig) error

	// Create builds the queue.
	Create(ctx context.Context, cfg registry.ChangeFeedConfig, logger *slog.Logger) (core.ChangeQueue, error)
}

var (
	factoryRegistry = make(map[string]QueueFactory)
	factoryMutex    sync.RWMutex
)

// RegisterFactory registers a queue factory and a configuration validator
// for its type. It panics on a nil factory or a duplicate type.
func RegisterFactory(factory QueueFactory) {
	if factory == nil {
		panic("factory cannot be nil")
	}
	if factory.Type() == "" {
		panic("factory type cannot be empty")
	}

	factoryMutex.Lock()
	defer factoryMutex.Unlock()
	if _, exists := factoryRegistry[factory.Type()]; exists {
		panic(fmt.Sprintf("change queue factory for type %q is already registered", factory.Type()))
	}
	factoryRegistry[factory.Type()] = factory
	registry.RegisterValidator(configValidator{factory})
}

// NewQueue creates the queue cfg.QueueType names.
func NewQueue(ctx context.Context, cfg registry.ChangeFeedConfig, logger *slog.Logger) (core.ChangeQueue, error) {
	if cfg.QueueType == "" {
		return nil, fmt.Errorf("change queue type is required")
	}

	factoryMutex.RLock()
	factory, exists := factoryRegistry[cfg.QueueType]
	factoryMutex.RUnlock()
	if !exists {
		return nil, fmt.Errorf("unsupported change queue type: %s", cfg.QueueType)
	}
	if err := factory.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", cfg.QueueType, err)
	}
	return factory.Create(ctx, cfg, logger)
}

// RegisteredTypes returns the registered queue types, sorted.
func RegisteredTypes() []string {
	factoryMutex.RLock()
	defer factoryMutex.RUnlock()
	types := make([]string, 0, len(factoryRegistry))
	for t := range factoryRegistry {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// configValidator adapts a factory to registry.ConfigValidator.
type configValidator struct {
	factory QueueFactory
}

func (v configValidator) Type() string { return v.factory.Type() }

func (v configValidator) Validate(cfg *registry.Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}
	return v.factory.Validate(cfg.ChangeFeed)
}

type memoryFactory struct{}

func (memoryFactory) Type() string { return "memory" }

func (memoryFactory) Validate(cfg registry.ChangeFeedConfig) error {
	if cfg.QueueBufferSize < 0 {
		return fmt.Errorf("queue_buffer_size must be non-negative, got: %d", cfg.QueueBufferSize)
	}
	return nil
}

func (memoryFactory) Create(_ context.Context, cfg registry.ChangeFeedConfig, _ *slog.Logger) (core.ChangeQueue, error) {
	return NewMemoryQueue(cfg.QueueBufferSize), nil
}

type redisFactory struct{}

func (redisFactory) Type() string { return "redis" }

func (redisFactory) Validate(cfg registry.ChangeFeedConfig) error {
	return ValidateRedis(cfg.Redis)
}

func (redisFactory) Create(ctx context.Context, cfg registry.ChangeFeedConfig, logger *slog.Logger) (core.ChangeQueue, error) {
	store, err := kvstore.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis change queue: %w", err)
	}
	return NewRedisQueue(store, cfg.QueueBufferSize, logger), nil
}

// ValidateRedis checks Redis connection settings.
func ValidateRedis(rc registry.RedisConfig) error {
	if len(rc.Endpoints) == 0 {
		return fmt.Errorf("at least one endpoint is required for Redis")
	}
	if !rc.ClusterMode && (rc.DB < 0 || rc.DB > 15) {
		return fmt.Errorf("Redis DB must be between 0 and 15, got: %d", rc.DB)
	}
	if rc.PoolSize < 0 {
		return fmt.Errorf("pool_size must be non-negative, got: %d", rc.PoolSize)
	}
	if rc.MinIdleConns < 0 {
		return fmt.Errorf("min_idle_conns must be non-negative, got: %d", rc.MinIdleConns)
	}
	if rc.DialTimeout < 0 || rc.ReadTimeout < 0 || rc.WriteTimeout < 0 {
		return fmt.Errorf("redis timeouts must be non-negative")
	}
	return nil
}

type kafkaFactory struct{}

func (kafkaFactory) Type() string { return "kafka" }

func (kafkaFactory) Validate(cfg registry.ChangeFeedConfig) error {
	kc := cfg.Kafka
	if len(kc.Brokers) == 0 {
		return fmt.Errorf("at least one broker is required for Kafka")
	}
	if kc.Topic == "" {
		return fmt.Errorf("topic is required for Kafka")
	}
	switch kc.RequiredAcks {
	case -1, 0, 1:
	default:
		return fmt.Errorf("required_acks must be -1, 0 or 1, got: %d", kc.RequiredAcks)
	}
	if kc.BatchSize < 0 || kc.MaxMessageBytes < 0 {
		return fmt.Errorf("kafka batch limits must be non-negative")
	}
	return nil
}

func (kafkaFactory) Create(_ context.Context, cfg registry.ChangeFeedConfig, logger *slog.Logger) (core.ChangeQueue, error) {
	return NewKafkaQueue(cfg.Kafka, logger)
}

func init() {
	RegisterFactory(memoryFactory{})
	RegisterFactory(redisFactory{})
	RegisterFactory(kafkaFactory{})
}
