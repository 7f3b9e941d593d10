package changefeed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/rzpsarthak13/lionrow/internal/core"
	"github.com/rzpsarthak13/lionrow/internal/registry"
)

const (
	defaultKafkaGroupID = "lionrow-drainer"

	// kafkaPollTimeout bounds the wait for each message in Dequeue.
	kafkaPollTimeout = time.Second
)

// KafkaQueue publishes changes to a Kafka topic keyed by table, so changes
// to one table stay ordered within a partition, and consumes them through a
// consumer group.
type KafkaQueue struct {
	writer *kafka.Writer
	reader *kafka.Reader
	topic  string
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	size   int // approximate: produced minus consumed by this process
}

// NewKafkaQueue creates the producer and consumer for cfg.
func NewKafkaQueue(cfg registry.KafkaConfig, logger *slog.Logger) (*KafkaQueue, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one Kafka broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}
	if cfg.GroupID == "" {
		cfg.GroupID = defaultKafkaGroupID
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger = logger.With("component", "changefeed", "queue", "kafka", "topic", cfg.Topic)

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		BatchBytes:   int64(cfg.MaxMessageBytes),
		WriteTimeout: cfg.WriteTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		MaxAttempts:  3,
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.GroupID,
		MinBytes:    cfg.MinBytes,
		MaxBytes:    cfg.MaxBytes,
		MaxWait:     cfg.MaxWait,
		StartOffset: kafka.FirstOffset,
	})

	logger.Info("kafka change queue ready", "brokers", cfg.Brokers, "group_id", cfg.GroupID)
	return &KafkaQueue{
		writer: writer,
		reader: reader,
		topic:  cfg.Topic,
		logger: logger,
	}, nil
}

func (q *KafkaQueue) isClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

// Enqueue produces one message per change. The table is the message key;
// operation and table are also sent as headers.
func (q *KafkaQueue) Enqueue(ctx context.Context, change *core.Change) error {
	if q.isClosed() {
		return ErrQueueClosed
	}
	if err := validateChange(change); err != nil {
		return err
	}
	data, err := encodeChange(change)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(change.Table),
		Value: data,
		Time:  change.Timestamp,
		Headers: []kafka.Header{
			{Key: "operation", Value: []byte(change.Operation)},
			{Key: "table", Value: []byte(change.Table)},
			{Key: "change_id", Value: []byte(change.ID)},
		},
	}
	start := time.Now()
	if err := q.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write change to Kafka: %w", err)
	}

	q.mu.Lock()
	q.size++
	q.mu.Unlock()
	q.logger.DebugContext(ctx, "produced change", "table", change.Table, "operation", change.Operation, "duration", time.Since(start))
	return nil
}

// Dequeue reads up to batchSize messages, waiting at most a second for
// each, and commits the offsets of the messages it read.
func (q *KafkaQueue) Dequeue(ctx context.Context, batchSize int) ([]*core.Change, error) {
	if q.isClosed() {
		return nil, ErrQueueClosed
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	changes := make([]*core.Change, 0, batchSize)
	msgs := make([]kafka.Message, 0, batchSize)
	for len(msgs) < batchSize {
		readCtx, cancel := context.WithTimeout(ctx, kafkaPollTimeout)
		msg, err := q.reader.FetchMessage(readCtx)
		cancel()
		if err != nil {
			if !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
				q.logger.ErrorContext(ctx, "failed to read change", "error", err)
			}
			break
		}
		msgs = append(msgs, msg)

		change, err := decodeChange(msg.Value)
		if err != nil {
			q.logger.ErrorContext(ctx, "skipping undecodable change", "partition", msg.Partition, "offset", msg.Offset, "error", err)
			continue
		}
		changes = append(changes, change)
	}

	if len(msgs) > 0 {
		if err := q.reader.CommitMessages(ctx, msgs...); err != nil {
			q.logger.WarnContext(ctx, "failed to commit offsets", "messages", len(msgs), "error", err)
		}
		q.mu.Lock()
		q.size = max(q.size-len(msgs), 0)
		q.mu.Unlock()
	}
	return changes, nil
}

// Size returns the number of changes this process produced and has not yet
// consumed. Kafka does not expose an exact backlog.
func (q *KafkaQueue) Size() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.size
}

// Close closes the producer and the consumer.
func (q *KafkaQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	return errors.Join(q.writer.Close(), q.reader.Close())
}
