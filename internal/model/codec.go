package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Codec converts between a column's Go type and the values drivers scan and
// bind.
type Codec[T any] interface {
	// SQLType is the PostgreSQL type values are cast to in multi-row
	// updates.
	SQLType() string

	// Decode converts a scanned value. It is never called with nil.
	Decode(v any) (T, error)

	// Encode converts a Go value to a bindable parameter.
	Encode(v T) any
}

type codec[T any] struct {
	sqlType string
	decode  func(any) (T, error)
	encode  func(T) any
}

func (c codec[T]) SQLType() string { return c.sqlType }

func (c codec[T]) Decode(v any) (T, error) { return c.decode(v) }

func (c codec[T]) Encode(v T) any {
	if c.encode == nil {
		return v
	}
	return c.encode(v)
}

var (
	// IntegerCodec maps integer columns onto int64.
	IntegerCodec Codec[int64] = codec[int64]{sqlType: "bigint", decode: toInt64}

	// StringCodec maps text columns onto string.
	StringCodec Codec[string] = codec[string]{sqlType: "text", decode: toString}

	// BoolCodec maps boolean columns onto bool. Numeric storage such as
	// MySQL TINYINT(1) decodes as non-zero.
	BoolCodec Codec[bool] = codec[bool]{sqlType: "boolean", decode: toBool}

	// FloatCodec maps floating point columns onto float64.
	FloatCodec Codec[float64] = codec[float64]{sqlType: "double precision", decode: toFloat64}

	// TimestampCodec maps timestamp columns onto time.Time in UTC.
	TimestampCodec Codec[time.Time] = codec[time.Time]{
		sqlType: "timestamptz",
		decode:  toTime,
		encode:  func(t time.Time) any { return t.UTC() },
	}
)

// JSONCodec stores T as a JSON document.
func JSONCodec[T any]() Codec[T] {
	return codec[T]{
		sqlType: "jsonb",
		decode: func(v any) (T, error) {
			var out T
			var raw []byte
			switch tv := v.(type) {
			case string:
				raw = []byte(tv)
			case []byte:
				raw = tv
			default:
				return out, fmt.Errorf("cannot decode %T as JSON", v)
			}
			if err := json.Unmarshal(raw, &out); err != nil {
				return out, fmt.Errorf("cannot parse JSON: %w", err)
			}
			return out, nil
		},
		encode: func(v T) any {
			b, err := json.Marshal(v)
			if err != nil {
				return nil
			}
			return string(b)
		},
	}
}

// codecFor returns the built-in codec for T.
func codecFor[T any]() (Codec[T], bool) {
	var zero T
	var c any
	switch any(zero).(type) {
	case int64:
		c = IntegerCodec
	case string:
		c = StringCodec
	case bool:
		c = BoolCodec
	case float64:
		c = FloatCodec
	case time.Time:
		c = TimestampCodec
	default:
		return nil, false
	}
	return c.(Codec[T]), true
}

func toInt64(value any) (int64, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, fmt.Errorf("cannot convert %d to int64: out of range", v)
		}
		return int64(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("cannot convert %g to int64: not an integer", v)
		}
		return int64(v), nil
	case []byte:
		return toInt64(string(v))
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert string to int64: %w", err)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to int64", value)
	}
}

func toFloat64(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case int:
		return float64(v), nil
	case []byte:
		return toFloat64(string(v))
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert string to float64: %w", err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to float64", value)
	}
}

func toString(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case int64, int, int32:
		return fmt.Sprintf("%d", v), nil
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	case bool:
		return strconv.FormatBool(v), nil
	case time.Time:
		return v.Format(time.RFC3339Nano), nil
	default:
		return "", fmt.Errorf("cannot convert %T to string", value)
	}
}

func toBool(value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case int64:
		return v != 0, nil
	case int:
		return v != 0, nil
	case []byte:
		return toBool(string(v))
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			if i, ierr := strconv.ParseInt(v, 10, 64); ierr == nil {
				return i != 0, nil
			}
			return false, fmt.Errorf("cannot convert string to bool: %w", err)
		}
		return b, nil
	default:
		return false, fmt.Errorf("cannot convert %T to bool", value)
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

func toTime(value any) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v.UTC(), nil
	case int64:
		return time.Unix(v, 0).UTC(), nil
	case []byte:
		return toTime(string(v))
	case string:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("cannot parse time string: %s", v)
	default:
		return time.Time{}, fmt.Errorf("cannot convert %T to time.Time", value)
	}
}
