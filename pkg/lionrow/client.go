// Package lionrow is the entry point of the row cache: it opens the
// database behind the schema gate, wires the table registry with its
// locker and change feed, and hands out row tables.
//
// Typical usage:
//
//	client, _ := lionrow.Open(ctx, cfg)
//	defer client.Close()
//
//	members, _ := lionrow.NewRowTable("members", columns, []string{"guildid", "userid"})
//	client.Attach(members)
//	client.Start(ctx) // runs init tasks and the change drainer
//
//	row, _ := members.Fetch(ctx, guildID, userID)
//	row.Set(ctx, "coins", 170)
package lionrow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/rzpsarthak13/lionrow/internal/changefeed"
	"github.com/rzpsarthak13/lionrow/internal/core"
	"github.com/rzpsarthak13/lionrow/internal/database"
	"github.com/rzpsarthak13/lionrow/internal/kvstore"
	"github.com/rzpsarthak13/lionrow/internal/lock"
	"github.com/rzpsarthak13/lionrow/internal/registry"
	"github.com/rzpsarthak13/lionrow/internal/table"
)

// RegistryName names the registry Open creates.
const RegistryName = "lionrow"

type openOptions struct {
	logger *slog.Logger
	sinks  []Sink
	hooks  []database.Hook
}

// Option configures Open.
type Option func(*openOptions)

// WithLogger sets the logger every component logs through.
func WithLogger(logger *slog.Logger) Option {
	return func(o *openOptions) {
		o.logger = logger
	}
}

// WithSink adds a sink the change drainer delivers to.
func WithSink(s Sink) Option {
	return func(o *openOptions) {
		o.sinks = append(o.sinks, s)
	}
}

// WithConnectHook adds a hook run once the database is open and the schema
// gate has passed.
func WithConnectHook(h database.Hook) Option {
	return func(o *openOptions) {
		o.hooks = append(o.hooks, h)
	}
}

// Client owns the connection, the registry and the change feed.
type Client struct {
	config   *registry.ConfigManager
	logger   *slog.Logger
	conn     *database.Connector
	registry *registry.Registry
	queue    core.ChangeQueue
	drainer  *changefeed.Drainer
	closers  []io.Closer

	mu      sync.Mutex
	started bool
	closed  bool
}

// Open validates cfg, connects to the database and builds the registry.
// A schema version mismatch fails here with a *core.SchemaVersionError.
// With the change feed enabled, changes are drained to the WithSink sinks
// and to DynamoDB when a DynamoDB table is configured; without any sink the
// queue is left for an external consumer.
func Open(ctx context.Context, cfg *Config, opts ...Option) (_ *Client, err error) {
	if cfg == nil {
		return nil, core.Usagef("config cannot be nil")
	}
	o := openOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	cm, err := registry.NewConfigManagerFrom(cfg)
	if err != nil {
		return nil, err
	}
	cfg = cm.GetConfig()

	c := &Client{config: cm, logger: o.logger}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	dbConfig := cfg.Database.Connector(o.logger)
	dbConfig.OnConnect = o.hooks
	if c.conn, err = database.Open(ctx, dbConfig); err != nil {
		return nil, err
	}

	locker, closer, err := lock.FromConfig(ctx, cfg.Lock, cfg.ChangeFeed.Redis, o.logger)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, closer)

	if cfg.ChangeFeed.Enabled {
		if err := c.openChangeFeed(ctx, cfg.ChangeFeed, o.sinks); err != nil {
			return nil, err
		}
	}

	c.registry = registry.New(RegistryName,
		registry.WithConfig(cm),
		registry.WithLogger(o.logger),
		registry.WithLocker(locker),
		registry.WithChangeQueue(c.queue),
	)
	c.registry.Bind(c.conn)
	return c, nil
}

func (c *Client) openChangeFeed(ctx context.Context, cf registry.ChangeFeedConfig, sinks []Sink) error {
	queue, err := changefeed.NewQueue(ctx, cf, c.logger)
	if err != nil {
		return err
	}
	c.queue = queue

	if cf.DynamoDB.TableName != "" {
		client, err := kvstore.NewDynamoDB(ctx, cf.DynamoDB)
		if err != nil {
			return err
		}
		sinks = append(sinks, changefeed.NewDynamoDBSink(client, cf.DynamoDB.TableName, cf.DynamoDB.TTL))
	}
	if len(sinks) > 0 {
		c.drainer = changefeed.NewDrainer(queue, changefeed.DrainerConfigFrom(cf), c.logger, sinks...)
	}
	c.logger.Info("change feed ready", "queue_type", cf.QueueType, "sinks", len(sinks))
	return nil
}

// Attach registers a table, row table or model. It is bound right away.
func (c *Client) Attach(tables ...core.Bindable) error {
	for _, t := range tables {
		if err := c.registry.Attach(t); err != nil {
			return err
		}
	}
	return nil
}

// RegisterEnum checks the store enum type behind e when Start runs.
func (c *Client) RegisterEnum(e registry.Verifier) {
	c.registry.RegisterEnum(e)
}

// RowTable returns an attached row table by name.
func (c *Client) RowTable(name string) (*table.RowTable, error) {
	return c.registry.RowTable(name)
}

// Registry returns the table registry.
func (c *Client) Registry() *registry.Registry {
	return c.registry
}

// Conn returns the database connector.
func (c *Client) Conn() *database.Connector {
	return c.conn
}

// Config returns a copy of the effective configuration.
func (c *Client) Config() *Config {
	return c.config.GetConfig()
}

// Changes returns the change queue, or nil when the change feed is off.
func (c *Client) Changes() core.ChangeQueue {
	return c.queue
}

// Drainer returns the change drainer, or nil when nothing is drained.
func (c *Client) Drainer() *changefeed.Drainer {
	return c.drainer
}

// Start runs the registry's init tasks and starts the change drainer. It
// returns immediately; starting twice is a no-op.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.Usagef("client is closed")
	}
	if c.started {
		return nil
	}
	if err := c.registry.Init(ctx); err != nil {
		return err
	}
	if c.drainer != nil {
		c.drainer.Start(ctx)
	}
	c.started = true
	return nil
}

// Close stops the drainer, then closes the change queue, the locker's
// connection and the database. It is safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	if c.drainer != nil {
		c.drainer.Stop()
	}
	var errs []error
	if c.queue != nil {
		if err := c.queue.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close change queue: %w", err))
		}
	}
	for _, closer := range c.closers {
		if closer == nil {
			continue
		}
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close locker: %w", err))
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.logger.Info("client closed")
	return errors.Join(errs...)
}
