package core

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Record is one row as returned by the store, keyed by column name.
type Record map[string]any

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Key is an ordered primary key value, one element per key column.
type Key []any

// ID returns the canonical identity of the key. Two keys holding the same
// values under different integer widths share an ID, so Key{5} and
// Key{int64(5)} address the same cache entry.
func (k Key) ID() string {
	var sb strings.Builder
	for i, part := range k {
		if i > 0 {
			sb.WriteByte(0x1f)
		}
		v := NormalizeValue(part)
		switch tv := v.(type) {
		case nil:
			sb.WriteString("nil")
		case time.Time:
			sb.WriteString("time:")
			sb.WriteString(tv.UTC().Format(time.RFC3339Nano))
		default:
			fmt.Fprintf(&sb, "%T:%v", v, v)
		}
	}
	return sb.String()
}

// String renders the key for messages.
func (k Key) String() string {
	if len(k) == 1 {
		return fmt.Sprintf("%v", k[0])
	}
	parts := make([]string, len(k))
	for i, part := range k {
		parts[i] = fmt.Sprintf("%v", part)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// KeyOf extracts the key columns from a record. It reports false if any key
// column is missing.
func KeyOf(rec Record, columns []string) (Key, bool) {
	key := make(Key, len(columns))
	for i, col := range columns {
		v, ok := rec[col]
		if !ok {
			return nil, false
		}
		key[i] = v
	}
	return key, true
}

// NormalizeValue folds driver value representations onto one form per kind:
// every integer width becomes int64 (uint64 values above MaxInt64 stay
// uint64), float32 becomes float64 and []byte becomes string.
func NormalizeValue(v any) any {
	switch tv := v.(type) {
	case int:
		return int64(tv)
	case int8:
		return int64(tv)
	case int16:
		return int64(tv)
	case int32:
		return int64(tv)
	case uint:
		return normalizeUint(uint64(tv))
	case uint8:
		return int64(tv)
	case uint16:
		return int64(tv)
	case uint32:
		return int64(tv)
	case uint64:
		return normalizeUint(tv)
	case float32:
		return float64(tv)
	case []byte:
		return string(tv)
	default:
		return v
	}
}

func normalizeUint(v uint64) any {
	if v > math.MaxInt64 {
		return v
	}
	return int64(v)
}
