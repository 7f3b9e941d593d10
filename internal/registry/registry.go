// Package registry groups the tables of one application: it attaches them,
// binds them to a connection, runs initialisation tasks, and switches their
// row caches on and off with lifecycle hooks. ConfigManager loads the
// configuration the registry applies per table.
package registry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/rzpsarthak13/lionrow/internal/cache"
	"github.com/rzpsarthak13/lionrow/internal/core"
	"github.com/rzpsarthak13/lionrow/internal/table"
)

// Entry describes an attached table.
type Entry struct {
	Name string

	// Table is the attached handle: a table, row table or model.
	Table core.Bindable

	// Rows is the row table behind Table, nil for plain tables.
	Rows *table.RowTable

	// Policy is the cache policy the configuration assigned, if any.
	Policy cache.Policy

	CacheEnabled bool
	EnabledAt    *time.Time
	DisabledAt   *time.Time
	AttachedAt   time.Time
	UpdatedAt    time.Time
}

// InitTask runs once the registry is bound, in registration order.
type InitTask func(ctx context.Context, r *Registry) error

// rowsHolder is implemented by declared models.
type rowsHolder interface {
	Rows() *table.RowTable
}

// Option configures a Registry.
type Option func(*Registry)

// WithConfig applies per-table cache and change-feed settings from cm.
func WithConfig(cm *ConfigManager) Option {
	return func(r *Registry) { r.configMgr = cm }
}

// WithLifecycle sets the lifecycle manager whose hooks run on cache
// enable and disable.
func WithLifecycle(lm *LifecycleManager) Option {
	return func(r *Registry) { r.lifecycle = lm }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// WithLocker hands l to every attached row table for FetchOrCreate.
func WithLocker(l core.Locker) Option {
	return func(r *Registry) { r.locker = l }
}

// WithChangeQueue makes attached row tables publish change events to q.
func WithChangeQueue(q core.ChangeQueue) Option {
	return func(r *Registry) { r.changes = q }
}

// Registry holds the tables of one application.
type Registry struct {
	name string

	mu          sync.RWMutex
	entries     map[string]*Entry
	conn        core.Conn
	tasks       []InitTask
	initialized bool

	configMgr *ConfigManager
	lifecycle *LifecycleManager
	logger    *slog.Logger
	locker    core.Locker
	changes   core.ChangeQueue
}

// New returns an empty registry.
func New(name string, opts ...Option) *Registry {
	r := &Registry{
		name:    name,
		entries: make(map[string]*Entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.lifecycle == nil {
		r.lifecycle = NewLifecycleManager()
	}
	if r.logger == nil {
		r.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	r.logger = r.logger.With("component", "registry", "registry", name)
	return r
}

// Name returns the registry name.
func (r *Registry) Name() string {
	return r.name
}

// Lifecycle returns the lifecycle manager.
func (r *Registry) Lifecycle() *LifecycleManager {
	return r.lifecycle
}

func rowsOf(t core.Bindable) *table.RowTable {
	switch v := t.(type) {
	case *table.RowTable:
		return v
	case rowsHolder:
		return v.Rows()
	}
	return nil
}

// Attach adds t under its table name. Row tables take the configured cache
// policy, the registry's locker and its change queue. If the registry is
// already bound, t is bound too.
func (r *Registry) Attach(t core.Bindable) error {
	if t == nil {
		return core.Usagef("cannot attach a nil table to registry %s", r.name)
	}
	name := t.TableName()
	if name == "" {
		return core.Usagef("cannot attach a table without a name to registry %s", r.name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[name]; exists {
		return core.Usagef("table %q is already attached to registry %s", name, r.name)
	}

	now := time.Now()
	e := &Entry{
		Name:       name,
		Table:      t,
		Rows:       rowsOf(t),
		AttachedAt: now,
		UpdatedAt:  now,
	}
	if e.Rows != nil {
		if err := r.configure(e); err != nil {
			return err
		}
		if r.locker != nil {
			e.Rows.UseLocker(r.locker)
		}
		if r.changes != nil && r.publishes(name) {
			e.Rows.UseChangeQueue(r.changes)
		}
		e.CacheEnabled = e.Rows.CacheEnabled()
		if e.CacheEnabled {
			e.EnabledAt = &now
		}
	}
	if r.conn != nil {
		t.Bind(r.conn)
	}
	r.entries[name] = e
	r.logger.Debug("attached table", "table", name, "cached", e.CacheEnabled)
	return nil
}

// configure applies the configured cache policy to a row table that has a
// tables entry. Tables without one keep the policy they were built with.
func (r *Registry) configure(e *Entry) error {
	e.Policy = e.Rows.Policy()
	if r.configMgr == nil || !r.configMgr.HasTableConfig(e.Name) {
		return nil
	}
	p := r.configMgr.TablePolicy(e.Name)
	if err := e.Rows.SetCachePolicy(p); err != nil {
		return fmt.Errorf("failed to apply cache policy to %q: %w", e.Name, err)
	}
	e.Policy = p
	return nil
}

func (r *Registry) publishes(name string) bool {
	if r.configMgr == nil {
		return true
	}
	tc := r.configMgr.GetTableConfig(name)
	return tc.PublishChanges == nil || *tc.PublishChanges
}

// Bind points every attached table, and every table attached later, at
// conn.
func (r *Registry) Bind(conn core.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conn = conn
	for _, e := range r.entries {
		e.Table.Bind(conn)
	}
}

// Conn returns the bound connection, nil before Bind.
func (r *Registry) Conn() core.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conn
}

// InitTask registers fn to run from Init.
func (r *Registry) InitTask(fn InitTask) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, fn)
}

// Verifier checks a store-side definition, such as an enum type, against a
// bound connection.
type Verifier interface {
	Verify(ctx context.Context, conn core.Conn) error
}

// RegisterEnum verifies e from Init, once the registry is bound.
func (r *Registry) RegisterEnum(e Verifier) {
	r.InitTask(func(ctx context.Context, r *Registry) error {
		return e.Verify(ctx, r.Conn())
	})
}

// Init runs the registered tasks in order, stopping at the first error.
// The registry must be bound. Init runs its tasks once; later calls are
// no-ops.
func (r *Registry) Init(ctx context.Context) error {
	r.mu.Lock()
	if r.conn == nil {
		r.mu.Unlock()
		return core.Usagef("registry %s initialised before it was bound", r.name)
	}
	if r.initialized {
		r.mu.Unlock()
		return nil
	}
	tasks := make([]InitTask, len(r.tasks))
	copy(tasks, r.tasks)
	r.mu.Unlock()

	for i, task := range tasks {
		if err := task(ctx, r); err != nil {
			return fmt.Errorf("init task %d of registry %s failed: %w", i, r.name, err)
		}
	}

	r.mu.Lock()
	r.initialized = true
	r.mu.Unlock()
	r.logger.InfoContext(ctx, "registry initialised", "tables", r.Count(), "tasks", len(tasks))
	return nil
}

func (r *Registry) entry(name string) (*Entry, error) {
	e, exists := r.entries[name]
	if !exists {
		return nil, core.Usagef("table %q is not attached to registry %s", name, r.name)
	}
	return e, nil
}

// Get returns the attached handle for name.
func (r *Registry) Get(name string) (core.Bindable, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, err := r.entry(name)
	if err != nil {
		return nil, err
	}
	return e.Table, nil
}

// RowTable returns the row table attached under name.
func (r *Registry) RowTable(name string) (*table.RowTable, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, err := r.entry(name)
	if err != nil {
		return nil, err
	}
	if e.Rows == nil {
		return nil, core.Usagef("table %q has no row cache", name)
	}
	return e.Rows, nil
}

// Entry returns a copy of the entry for name.
func (r *Registry) Entry(name string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, err := r.entry(name)
	if err != nil {
		return Entry{}, err
	}
	return *e, nil
}

// EnableCache runs the enable hooks and starts caching rows of name.
// Enabling an enabled cache is a no-op. Hooks must not call back into the
// registry.
func (r *Registry) EnableCache(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.entry(name)
	if err != nil {
		return err
	}
	if e.Rows == nil {
		return core.Usagef("table %q has no row cache", name)
	}
	if e.CacheEnabled {
		return nil
	}

	if err := r.lifecycle.ExecuteEnableHooks(ctx, name, e.Rows); err != nil {
		return fmt.Errorf("enable hook failed for table %q: %w", name, err)
	}
	if err := e.Rows.EnableCache(); err != nil {
		return fmt.Errorf("failed to enable cache for table %q: %w", name, err)
	}

	now := time.Now()
	e.CacheEnabled = true
	e.EnabledAt = &now
	e.DisabledAt = nil
	e.UpdatedAt = now
	r.logger.InfoContext(ctx, "cache enabled", "table", name)
	return nil
}

// DisableCache runs the disable hooks, purges the cache of name and stops
// caching. Disabling a disabled cache is a no-op.
func (r *Registry) DisableCache(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.entry(name)
	if err != nil {
		return err
	}
	if e.Rows == nil {
		return core.Usagef("table %q has no row cache", name)
	}
	if err := r.disable(ctx, e); err != nil {
		return err
	}
	r.logger.InfoContext(ctx, "cache disabled", "table", name)
	return nil
}

func (r *Registry) disable(ctx context.Context, e *Entry) error {
	if e.Rows == nil || !e.CacheEnabled {
		return nil
	}
	if err := r.lifecycle.ExecuteDisableHooks(ctx, e.Name, e.Rows); err != nil {
		return fmt.Errorf("disable hook failed for table %q: %w", e.Name, err)
	}
	e.Rows.DisableCache()

	now := time.Now()
	e.CacheEnabled = false
	e.DisabledAt = &now
	e.EnabledAt = nil
	e.UpdatedAt = now
	return nil
}

// Detach disables the cache of name and removes it.
func (r *Registry) Detach(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.entry(name)
	if err != nil {
		return err
	}
	if err := r.disable(ctx, e); err != nil {
		return err
	}
	delete(r.entries, name)
	return nil
}

// List returns the attached table names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListCached returns the names of tables whose cache is on, sorted.
func (r *Registry) ListCached() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for name, e := range r.entries {
		if e.CacheEnabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Count returns the number of attached tables.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// RefreshConfig re-applies the configured cache policy to every attached
// row table. Cached rows are dropped.
func (r *Registry) RefreshConfig() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for _, e := range r.entries {
		if e.Rows == nil {
			continue
		}
		if err := r.configure(e); err != nil {
			return err
		}
		e.CacheEnabled = e.Rows.CacheEnabled()
		e.UpdatedAt = now
	}
	return nil
}

// Clear disables every cache and detaches every table.
func (r *Registry) Clear(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		if err := r.disable(ctx, e); err != nil {
			return err
		}
	}
	r.entries = make(map[string]*Entry)
	return nil
}
