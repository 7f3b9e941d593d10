package table

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rzpsarthak13/lionrow/internal/cache"
	"github.com/rzpsarthak13/lionrow/internal/core"
	"github.com/rzpsarthak13/lionrow/internal/expr"
	"github.com/rzpsarthak13/lionrow/internal/query"
)

// RowTable is a Table with an identity cache: within the cache's retention
// window each live key maps to exactly one *Row, and every write through the
// RowTable reconciles the cached rows with what the store returned.
type RowTable struct {
	*Table

	columns []string
	colSet  map[string]struct{}
	key     []string

	// mu guards the cache handle and makes get-or-adopt atomic.
	mu      sync.Mutex
	cache   cache.Cache[*Row]
	policy  cache.Policy
	enabled bool

	locker  core.Locker
	changes core.ChangeQueue
}

// NewRowTable returns an unbound row table. key names the primary key
// columns, in order; every key column must be one of columns. On PostgreSQL
// UpdateMany needs WithCasts for every non-text column it sets or matches;
// declared models derive the casts from their column codecs.
func NewRowTable(name string, columns []string, key []string, opts ...Option) (*RowTable, error) {
	if len(columns) == 0 {
		return nil, core.Usagef("row table %s declares no columns", name)
	}
	if len(key) == 0 {
		return nil, core.Usagef("row table %s declares no key", name)
	}
	colSet := make(map[string]struct{}, len(columns))
	for _, col := range columns {
		colSet[col] = struct{}{}
	}
	for _, col := range key {
		if _, ok := colSet[col]; !ok {
			return nil, core.Usagef("key column %s is not a column of %s", col, name)
		}
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	t := &RowTable{
		Table:   newTable(name, key, o),
		columns: columns,
		colSet:  colSet,
		key:     key,
		policy:  o.cachePolicy(),
		locker:  o.locker,
		changes: o.changes,
	}
	if o.useCache && o.cache != nil {
		t.cache = o.cache
	} else {
		c, err := cache.New[Row](t.policy)
		if err != nil {
			return nil, fmt.Errorf("failed to create row cache for %s: %w", name, err)
		}
		t.cache = c
	}
	t.enabled = o.useCache && t.policy.Type != cache.TypeNone
	return t, nil
}

// Columns returns the declared columns.
func (t *RowTable) Columns() []string {
	return t.columns
}

// Key returns the primary key columns.
func (t *RowTable) Key() []string {
	return t.key
}

// HasColumn reports whether name is a declared column.
func (t *RowTable) HasColumn(name string) bool {
	_, ok := t.colSet[name]
	return ok
}

// CacheEnabled reports whether rows are cached.
func (t *RowTable) CacheEnabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

// CacheLen returns the number of cached rows.
func (t *RowTable) CacheLen() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cache.Len()
}

// EnableCache starts caching with the table's policy. Enabling an enabled
// cache is a no-op.
func (t *RowTable) EnableCache() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.enabled {
		return nil
	}
	p := t.policy
	if p.Type == cache.TypeNone {
		p = cache.DefaultPolicy()
	}
	c, err := cache.New[Row](p)
	if err != nil {
		return fmt.Errorf("failed to create row cache for %s: %w", t.target, err)
	}
	t.cache, t.policy, t.enabled = c, p, true
	return nil
}

// DisableCache purges the cache and stops caching.
func (t *RowTable) DisableCache() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cache.Purge()
	t.enabled = false
}

// SetCachePolicy replaces the cache with an empty one built from p.
func (t *RowTable) SetCachePolicy(p cache.Policy) error {
	c, err := cache.New[Row](p)
	if err != nil {
		return fmt.Errorf("failed to create row cache for %s: %w", t.target, err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cache.Purge()
	t.cache, t.policy = c, p
	t.enabled = p.Type != cache.TypeNone
	return nil
}

// UseLocker replaces the locker FetchOrCreate serializes on. nil removes it.
func (t *RowTable) UseLocker(l core.Locker) {
	t.mu.Lock()
	t.locker = l
	t.mu.Unlock()
}

// UseChangeQueue replaces the queue change events are published to. nil
// stops publishing.
func (t *RowTable) UseChangeQueue(q core.ChangeQueue) {
	t.mu.Lock()
	t.changes = q
	t.mu.Unlock()
}

// Publishes reports whether writes emit change events.
func (t *RowTable) Publishes() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.changes != nil
}

func (t *RowTable) lockerOf() core.Locker {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.locker
}

// Policy returns the cache policy.
func (t *RowTable) Policy() cache.Policy {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.policy
}

// Cached returns the cached row for key without a round trip.
func (t *RowTable) Cached(key ...any) (*Row, bool) {
	if len(key) != len(t.key) {
		return nil, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return nil, false
	}
	return t.cache.Get(core.Key(key).ID())
}

// KeyCondition matches the row identified by key. A key of the wrong arity
// yields an invalid condition.
func (t *RowTable) KeyCondition(key core.Key) expr.Condition {
	return query.KeyEq(t.key, key)
}

func (t *RowTable) checkKey(key core.Key) error {
	if len(key) != len(t.key) {
		return core.Usagef("key %v of %s has %d values, expected %d (%s)",
			key, t.target, len(key), len(t.key), strings.Join(t.key, ", "))
	}
	return nil
}

// Fetch returns the row for key, from the cache when possible. A missing row
// is core.ErrNotFound.
func (t *RowTable) Fetch(ctx context.Context, key ...any) (*Row, error) {
	if err := t.checkKey(key); err != nil {
		return nil, err
	}
	if row, ok := t.Cached(key...); ok {
		return row, nil
	}
	return t.FetchFresh(ctx, key...)
}

// FetchFresh reads the row for key from the store even if it is cached, and
// refreshes the cached row in place.
func (t *RowTable) FetchFresh(ctx context.Context, key ...any) (*Row, error) {
	if err := t.checkKey(key); err != nil {
		return nil, err
	}
	rec, err := t.SelectOneWhere(ctx, t.KeyCondition(key))
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, core.NotFoundf("no %s row with key %v", t.target, core.Key(key))
	}
	return t.adopt(rec), nil
}

// FetchMany returns the rows for keys in key order, skipping keys with no
// row. Cached rows are reused and the rest are read in one round trip.
func (t *RowTable) FetchMany(ctx context.Context, keys ...core.Key) ([]*Row, error) {
	found := make(map[string]*Row, len(keys))
	var missing []core.Key
	for _, key := range keys {
		if err := t.checkKey(key); err != nil {
			return nil, err
		}
		if row, ok := t.Cached(key...); ok {
			found[key.ID()] = row
		} else {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		recs, err := t.SelectWhere(ctx, query.KeyIn(t.key, missing))
		if err != nil {
			return nil, err
		}
		for _, row := range t.adoptAll(recs) {
			found[row.Key().ID()] = row
		}
	}
	rows := make([]*Row, 0, len(keys))
	for _, key := range keys {
		if row, ok := found[key.ID()]; ok {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// FetchWhere returns a row for every match, in server order. Rows already
// cached are updated in place and reused.
func (t *RowTable) FetchWhere(ctx context.Context, conds ...expr.Condition) ([]*Row, error) {
	recs, err := t.SelectWhere(ctx, conds...)
	if err != nil {
		return nil, err
	}
	return t.adoptAll(recs), nil
}

// FetchOrCreate fetches the row for key, or when key is nil the first row
// matching defaults, and inserts defaults merged with key if there is none.
// Concurrent callers racing on the same identity can both insert unless the
// table was given a Locker.
func (t *RowTable) FetchOrCreate(ctx context.Context, key core.Key, defaults map[string]any) (*Row, error) {
	if key == nil && len(defaults) == 0 {
		return nil, core.Usagef("fetch or create on %s needs a key or defaults", t.target)
	}
	if key != nil {
		if err := t.checkKey(key); err != nil {
			return nil, err
		}
	}

	if locker := t.lockerOf(); locker != nil {
		unlock, err := locker.Lock(ctx, t.identity(key, defaults))
		if err != nil {
			return nil, fmt.Errorf("failed to lock %s: %w", t.target, err)
		}
		defer unlock()
	}

	if key != nil {
		row, err := t.Fetch(ctx, key...)
		if err == nil {
			return row, nil
		}
		if !errors.Is(err, core.ErrNotFound) {
			return nil, err
		}
	} else {
		rec, err := t.SelectOneWhere(ctx, expr.Match(defaults))
		if err != nil {
			return nil, err
		}
		if rec != nil {
			return t.adopt(rec), nil
		}
	}

	values := make(map[string]any, len(defaults)+len(key))
	for k, v := range defaults {
		values[k] = v
	}
	for i, col := range t.key[:len(key)] {
		values[col] = key[i]
	}
	return t.Create(ctx, values)
}

// identity names what FetchOrCreate is looking for, for locking.
func (t *RowTable) identity(key core.Key, defaults map[string]any) string {
	if key != nil {
		return t.target.String() + ":" + key.ID()
	}
	names := make([]string, 0, len(defaults))
	for name := range defaults {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + "=" + core.Key{defaults[name]}.ID()
	}
	return t.target.String() + ":" + strings.Join(parts, ",")
}

// Create inserts values and returns the new row, cached.
func (t *RowTable) Create(ctx context.Context, values map[string]any) (*Row, error) {
	rec, err := t.Table.Insert(ctx, values)
	if err != nil {
		return nil, err
	}
	row := t.adopt(rec)
	t.publish(ctx, core.ChangeInsert, rec)
	return row, nil
}

// Insert inserts one row, caches it and returns its record.
func (t *RowTable) Insert(ctx context.Context, values map[string]any) (core.Record, error) {
	rec, err := t.Table.Insert(ctx, values)
	if err != nil {
		return nil, err
	}
	t.adopt(rec)
	t.publish(ctx, core.ChangeInsert, rec)
	return rec, nil
}

// InsertMany inserts rows in one statement; cached rows with the same keys
// take the returned data.
func (t *RowTable) InsertMany(ctx context.Context, columns []string, rows ...[]any) ([]core.Record, error) {
	recs, err := t.Table.InsertMany(ctx, columns, rows...)
	if err != nil {
		return nil, err
	}
	t.refreshCached(recs)
	t.publish(ctx, core.ChangeInsert, recs...)
	return recs, nil
}

// InsertIgnore inserts the rows that do not collide with existing ones and
// publishes an insert for each row it reports.
func (t *RowTable) InsertIgnore(ctx context.Context, columns []string, rows ...[]any) ([]core.Record, error) {
	recs, err := t.Table.InsertIgnore(ctx, columns, rows...)
	if err != nil {
		return nil, err
	}
	t.refreshCached(recs)
	t.publish(ctx, core.ChangeInsert, recs...)
	return recs, nil
}

// UpdateWhere updates matching rows and writes the results through to any
// cached rows. When set assigns a key column the matching keys are read
// first so rows cached under their old keys are moved or evicted.
func (t *RowTable) UpdateWhere(ctx context.Context, set map[string]any, conds ...expr.Condition) ([]core.Record, error) {
	var before []core.Key
	if t.setsKey(mapKeys(set)) {
		var err error
		if before, err = t.matchingKeys(ctx, conds); err != nil {
			return nil, err
		}
	}
	return t.update(ctx, set, before, conds...)
}

// update runs an UPDATE whose matched rows had the keys in before, which is
// nil when set leaves the key alone.
func (t *RowTable) update(ctx context.Context, set map[string]any, before []core.Key, conds ...expr.Condition) ([]core.Record, error) {
	recs, err := t.Table.UpdateWhere(ctx, set, conds...)
	if err != nil {
		return nil, err
	}
	t.reconcile(before, recs)
	t.publish(ctx, core.ChangeUpdate, recs...)
	return recs, nil
}

// UpdateMany updates many rows in one statement and writes the results
// through to any cached rows. Rows whose key changes are evicted from
// their old keys.
func (t *RowTable) UpdateMany(ctx context.Context, setKeys, whereKeys []string, rows ...[]any) ([]core.Record, error) {
	var before []core.Key
	if t.setsKey(setKeys) && len(rows) > 0 {
		where := make([]expr.Condition, 0, len(rows))
		for _, row := range rows {
			if len(row) != len(setKeys)+len(whereKeys) {
				return nil, core.Usagef("update of %s has %d values for %d columns", t.target, len(row), len(setKeys)+len(whereKeys))
			}
			match := make([]expr.Condition, len(whereKeys))
			for i, col := range whereKeys {
				match[i] = expr.Eq(expr.C(col), row[len(setKeys)+i])
			}
			where = append(where, expr.And(match...))
		}
		var err error
		if before, err = t.matchingKeys(ctx, []expr.Condition{expr.Or(where...)}); err != nil {
			return nil, err
		}
	}
	recs, err := t.Table.UpdateMany(ctx, setKeys, whereKeys, rows...)
	if err != nil {
		return nil, err
	}
	t.reconcile(before, recs)
	t.publish(ctx, core.ChangeUpdate, recs...)
	return recs, nil
}

// setsKey reports whether any of columns is a key column of a cached table.
func (t *RowTable) setsKey(columns []string) bool {
	if !t.CacheEnabled() {
		return false
	}
	for _, col := range columns {
		for _, k := range t.key {
			if col == k {
				return true
			}
		}
	}
	return false
}

// matchingKeys returns the keys of the rows matching conds.
func (t *RowTable) matchingKeys(ctx context.Context, conds []expr.Condition) ([]core.Key, error) {
	recs, err := t.Select(ctx, query.Select{Columns: t.key, Where: conds})
	if err != nil {
		return nil, err
	}
	keys := make([]core.Key, 0, len(recs))
	for _, rec := range recs {
		if key, ok := core.KeyOf(rec, t.key); ok {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func mapKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

// DeleteWhere deletes matching rows and evicts them from the cache.
func (t *RowTable) DeleteWhere(ctx context.Context, conds ...expr.Condition) ([]core.Record, error) {
	recs, err := t.Table.DeleteWhere(ctx, conds...)
	if err != nil {
		return nil, err
	}
	t.evict(recs)
	t.publish(ctx, core.ChangeDelete, recs...)
	return recs, nil
}

// Upsert inserts or overwrites one row, caches it and returns its record.
func (t *RowTable) Upsert(ctx context.Context, conflict []string, values map[string]any) (core.Record, error) {
	rec, err := t.Table.Upsert(ctx, conflict, values)
	if err != nil {
		return nil, err
	}
	t.adopt(rec)
	t.publish(ctx, core.ChangeInsert, rec)
	return rec, nil
}

// adopt returns the cached row for rec's key after replacing its data, or a
// new row for rec, cached when caching is on.
func (t *RowTable) adopt(rec core.Record) *Row {
	key, ok := core.KeyOf(rec, t.key)
	if !ok {
		return newRow(t, rec)
	}
	id := key.ID()

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return newRow(t, rec)
	}
	if row, ok := t.cache.Get(id); ok {
		row.setData(rec)
		return row
	}
	row := newRow(t, rec)
	t.cache.Add(id, row)
	return row
}

func (t *RowTable) adoptAll(recs []core.Record) []*Row {
	rows := make([]*Row, len(recs))
	for i, rec := range recs {
		rows[i] = t.adopt(rec)
	}
	return rows
}

// refreshCached writes recs through to rows that are already cached.
func (t *RowTable) refreshCached(recs []core.Record) {
	t.reconcile(nil, recs)
}

// reconcile writes recs through to cached rows and drops cache entries for
// keys in before that no record carries any more. A single row whose key
// changed keeps its identity under the new key.
func (t *RowTable) reconcile(before []core.Key, recs []core.Record) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	after := make(map[string]core.Record, len(recs))
	for _, rec := range recs {
		key, ok := core.KeyOf(rec, t.key)
		if !ok {
			continue
		}
		after[key.ID()] = rec
		if row, ok := t.cache.Get(key.ID()); ok {
			row.setData(rec)
		}
	}
	for _, old := range before {
		id := old.ID()
		if _, kept := after[id]; kept {
			continue
		}
		row, ok := t.cache.Get(id)
		if !ok {
			continue
		}
		t.cache.Remove(id)
		if len(before) != 1 || len(recs) != 1 {
			continue
		}
		newKey, ok := core.KeyOf(recs[0], t.key)
		if !ok {
			continue
		}
		if _, taken := t.cache.Get(newKey.ID()); !taken {
			row.setData(recs[0])
			t.cache.Add(newKey.ID(), row)
		}
	}
}

// evict removes the rows of recs from the cache.
func (t *RowTable) evict(recs []core.Record) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, rec := range recs {
		if key, ok := core.KeyOf(rec, t.key); ok {
			t.cache.Remove(key.ID())
		}
	}
}

// evictRow removes row from the cache if it is the cached row for its key.
func (t *RowTable) evictRow(row *Row, key core.Key) {
	id := key.ID()
	t.mu.Lock()
	defer t.mu.Unlock()
	if cached, ok := t.cache.Get(id); ok && cached == row {
		t.cache.Remove(id)
	}
}

// publish enqueues a change event per record. Failures are logged; the
// write has already been committed.
func (t *RowTable) publish(ctx context.Context, op core.ChangeOperation, recs ...core.Record) {
	t.mu.Lock()
	changes := t.changes
	t.mu.Unlock()
	if changes == nil {
		return
	}
	now := time.Now().UTC()
	for _, rec := range recs {
		key, _ := core.KeyOf(rec, t.key)
		change := &core.Change{
			ID:        uuid.NewString(),
			Table:     t.target.String(),
			Operation: op,
			Key:       key,
			Data:      rec.Clone(),
			Timestamp: now,
		}
		if err := changes.Enqueue(ctx, change); err != nil {
			t.logger.WarnContext(ctx, "dropping change event", "operation", op, "key", key.String(), "error", err)
		}
	}
}
