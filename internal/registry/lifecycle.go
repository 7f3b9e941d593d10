package registry

import (
	"context"
	"sync"

	"github.com/rzpsarthak13/lionrow/internal/table"
)

// LifecycleHook runs when a table's row cache is switched on or off.
// Hooks are called synchronously.
type LifecycleHook interface {
	// OnEnable runs before caching starts. An error aborts the enable.
	OnEnable(ctx context.Context, tableName string, rows *table.RowTable) error

	// OnDisable runs before the cache is purged. An error aborts the disable.
	OnDisable(ctx context.Context, tableName string, rows *table.RowTable) error
}

// LifecycleHookFunc adapts plain functions to LifecycleHook. Nil functions
// are skipped.
type LifecycleHookFunc struct {
	OnEnableFunc  func(ctx context.Context, tableName string, rows *table.RowTable) error
	OnDisableFunc func(ctx context.Context, tableName string, rows *table.RowTable) error
}

// OnEnable calls OnEnableFunc if set.
func (f LifecycleHookFunc) OnEnable(ctx context.Context, tableName string, rows *table.RowTable) error {
	if f.OnEnableFunc != nil {
		return f.OnEnableFunc(ctx, tableName, rows)
	}
	return nil
}

// OnDisable calls OnDisableFunc if set.
func (f LifecycleHookFunc) OnDisable(ctx context.Context, tableName string, rows *table.RowTable) error {
	if f.OnDisableFunc != nil {
		return f.OnDisableFunc(ctx, tableName, rows)
	}
	return nil
}

// LifecycleManager holds the hooks run by Registry.EnableCache and
// Registry.DisableCache.
type LifecycleManager struct {
	mu    sync.RWMutex
	hooks []LifecycleHook
}

// NewLifecycleManager creates an empty manager.
func NewLifecycleManager() *LifecycleManager {
	return &LifecycleManager{}
}

// RegisterHook adds a hook. Hooks run in registration order.
func (lm *LifecycleManager) RegisterHook(hook LifecycleHook) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.hooks = append(lm.hooks, hook)
}

func (lm *LifecycleManager) snapshot() []LifecycleHook {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	hooks := make([]LifecycleHook, len(lm.hooks))
	copy(hooks, lm.hooks)
	return hooks
}

// ExecuteEnableHooks runs every OnEnable, stopping at the first error.
func (lm *LifecycleManager) ExecuteEnableHooks(ctx context.Context, tableName string, rows *table.RowTable) error {
	for _, hook := range lm.snapshot() {
		if err := hook.OnEnable(ctx, tableName, rows); err != nil {
			return err
		}
	}
	return nil
}

// ExecuteDisableHooks runs every OnDisable, stopping at the first error.
func (lm *LifecycleManager) ExecuteDisableHooks(ctx context.Context, tableName string, rows *table.RowTable) error {
	for _, hook := range lm.snapshot() {
		if err := hook.OnDisable(ctx, tableName, rows); err != nil {
			return err
		}
	}
	return nil
}

// ClearHooks removes all hooks.
func (lm *LifecycleManager) ClearHooks() {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.hooks = nil
}

// HookCount returns the number of registered hooks.
func (lm *LifecycleManager) HookCount() int {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	return len(lm.hooks)
}
