// Package changefeed carries the change events row tables publish after
// committed writes: queues buffer them and a Drainer delivers them to
// sinks at a bounded rate.
package changefeed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rzpsarthak13/lionrow/internal/core"
)

var (
	// ErrQueueClosed is returned by a closed queue.
	ErrQueueClosed = errors.New("change queue is closed")

	// ErrQueueFull is returned when a bounded queue has no room.
	ErrQueueFull = errors.New("change queue is full")

	// ErrInvalidChange is returned for a nil change or one without a table.
	ErrInvalidChange = errors.New("invalid change")
)

const defaultBatchSize = 100

func validateChange(change *core.Change) error {
	if change == nil {
		return ErrInvalidChange
	}
	if change.Table == "" {
		return fmt.Errorf("%w: table name is required", ErrInvalidChange)
	}
	if change.Timestamp.IsZero() {
		change.Timestamp = time.Now().UTC()
	}
	return nil
}

func encodeChange(change *core.Change) ([]byte, error) {
	data, err := json.Marshal(change)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal change: %w", err)
	}
	return data, nil
}

// decodeChange parses a JSON change. Integral numbers come back as int64 so
// keys compare equal to the ones the store returns.
func decodeChange(data []byte) (*core.Change, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var change core.Change
	if err := dec.Decode(&change); err != nil {
		return nil, fmt.Errorf("failed to unmarshal change: %w", err)
	}
	for i, v := range change.Key {
		change.Key[i] = fromNumber(v)
	}
	for k, v := range change.Data {
		change.Data[k] = fromNumber(v)
	}
	return &change, nil
}

func fromNumber(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}
