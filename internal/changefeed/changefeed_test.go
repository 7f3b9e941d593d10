package changefeed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzpsarthak13/lionrow/internal/core"
	"github.com/rzpsarthak13/lionrow/internal/registry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func change(id string) *core.Change {
	return &core.Change{
		ID:        id,
		Table:     "public.members",
		Operation: core.ChangeUpdate,
		Key:       core.Key{int64(1), int64(2)},
		Data:      core.Record{"guildid": int64(1), "userid": int64(2), "coins": int64(170)},
		Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestMemoryQueue_FIFO(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(10)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(ctx, change(id)))
	}
	assert.Equal(t, 3, q.Size())

	got, err := q.Dequeue(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)

	got, err = q.Dequeue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c", got[0].ID)

	got, err = q.Dequeue(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryQueue_Bounds(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(1)

	require.NoError(t, q.Enqueue(ctx, change("a")))
	assert.ErrorIs(t, q.Enqueue(ctx, change("b")), ErrQueueFull)
	assert.ErrorIs(t, q.Enqueue(ctx, nil), ErrInvalidChange)
	assert.ErrorIs(t, q.Enqueue(ctx, &core.Change{ID: "x"}), ErrInvalidChange)

	require.NoError(t, q.Close())
	require.NoError(t, q.Close())
	assert.ErrorIs(t, q.Enqueue(ctx, change("c")), ErrQueueClosed)

	got, err := q.Dequeue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1, "buffered changes survive Close")
}

func TestMemoryQueue_StampsTimestamp(t *testing.T) {
	q := NewMemoryQueue(0)
	c := &core.Change{ID: "a", Table: "members"}
	require.NoError(t, q.Enqueue(context.Background(), c))
	assert.False(t, c.Timestamp.IsZero())
}

func TestChangeCodec(t *testing.T) {
	data, err := encodeChange(change("a"))
	require.NoError(t, err)

	got, err := decodeChange(data)
	require.NoError(t, err)
	assert.Equal(t, core.Key{int64(1), int64(2)}, got.Key)
	assert.Equal(t, int64(170), got.Data["coins"])
	assert.Equal(t, core.ChangeUpdate, got.Operation)
	assert.True(t, change("a").Timestamp.Equal(got.Timestamp))

	_, err = decodeChange([]byte("{"))
	assert.Error(t, err)
}

func TestFactory(t *testing.T) {
	assert.Equal(t, []string{"kafka", "memory", "redis"}, RegisteredTypes())

	for _, typ := range RegisteredTypes() {
		v, ok := registry.GetValidator(typ)
		require.True(t, ok, typ)
		assert.Equal(t, typ, v.Type())
	}

	q, err := NewQueue(context.Background(), registry.ChangeFeedConfig{QueueType: "memory", QueueBufferSize: 5}, testLogger())
	require.NoError(t, err)
	assert.IsType(t, &MemoryQueue{}, q)

	_, err = NewQueue(context.Background(), registry.ChangeFeedConfig{}, testLogger())
	assert.Error(t, err)
	_, err = NewQueue(context.Background(), registry.ChangeFeedConfig{QueueType: "carrier-pigeon"}, testLogger())
	assert.Error(t, err)
	_, err = NewQueue(context.Background(), registry.ChangeFeedConfig{QueueType: "kafka"}, testLogger())
	assert.Error(t, err, "no brokers")

	assert.Panics(t, func() { RegisterFactory(memoryFactory{}) })
}

func TestFactory_Validation(t *testing.T) {
	assert.NoError(t, ValidateRedis(registry.RedisConfig{Endpoints: []string{"localhost:6379"}}))
	assert.Error(t, ValidateRedis(registry.RedisConfig{}))
	assert.Error(t, ValidateRedis(registry.RedisConfig{Endpoints: []string{"localhost:6379"}, DB: 16}))
	assert.NoError(t, ValidateRedis(registry.RedisConfig{Endpoints: []string{"a:1", "b:1"}, ClusterMode: true, DB: 16}))

	kafka := kafkaFactory{}
	good := registry.KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "changes", RequiredAcks: -1}
	assert.NoError(t, kafka.Validate(registry.ChangeFeedConfig{Kafka: good}))
	bad := good
	bad.RequiredAcks = 2
	assert.Error(t, kafka.Validate(registry.ChangeFeedConfig{Kafka: bad}))
	bad = good
	bad.Topic = ""
	assert.Error(t, kafka.Validate(registry.ChangeFeedConfig{Kafka: bad}))

	assert.Error(t, memoryFactory{}.Validate(registry.ChangeFeedConfig{QueueBufferSize: -1}))
}

func TestDrainerConfig(t *testing.T) {
	c := DrainerConfig{RetryBackoffBase: 100 * time.Millisecond, RetryBackoffMax: time.Second}.withDefaults()
	assert.Equal(t, 50, c.DrainRate)
	assert.Equal(t, 100, c.BatchSize)

	assert.Equal(t, 100*time.Millisecond, c.backoff(1))
	assert.Equal(t, 200*time.Millisecond, c.backoff(2))
	assert.Equal(t, 800*time.Millisecond, c.backoff(4))
	assert.Equal(t, time.Second, c.backoff(5))
	assert.Equal(t, time.Second, c.backoff(50))

	cf := registry.DefaultConfig().ChangeFeed
	assert.Equal(t, cf.DrainRate, DrainerConfigFrom(cf).DrainRate)
}

type recordingSink struct {
	mu    sync.Mutex
	ids   []string
	fails map[string]int
}

func (s *recordingSink) Deliver(_ context.Context, c *core.Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fails[c.ID] > 0 {
		s.fails[c.ID]--
		return errors.New("sink unavailable")
	}
	s.ids = append(s.ids, c.ID)
	return nil
}

func (s *recordingSink) delivered() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ids...)
}

func fastDrainer(q core.ChangeQueue, retries int, sinks ...Sink) *Drainer {
	return NewDrainer(q, DrainerConfig{
		DrainRate:        1000,
		BatchSize:        10,
		PollInterval:     5 * time.Millisecond,
		MaxRetries:       retries,
		RetryBackoffBase: time.Millisecond,
		RetryBackoffMax:  4 * time.Millisecond,
	}, testLogger(), sinks...)
}

func TestDrainer_DeliversInOrder(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(100)
	sink := &recordingSink{}
	var seen []string
	var mu sync.Mutex
	fn := SinkFunc(func(_ context.Context, c *core.Change) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, c.ID)
		return nil
	})

	d := fastDrainer(q, 0, sink, fn)
	d.Start(ctx)
	d.Start(ctx)
	defer d.Stop()
	assert.True(t, d.Running())

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(ctx, change(id)))
	}

	require.Eventually(t, func() bool {
		return len(sink.delivered()) == 3
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"a", "b", "c"}, sink.delivered())

	mu.Lock()
	assert.Equal(t, []string{"a", "b", "c"}, seen)
	mu.Unlock()
	assert.Equal(t, int64(3), d.Stats().Delivered)
}

func TestDrainer_RetriesThenDrops(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(100)
	sink := &recordingSink{fails: map[string]int{"flaky": 2, "broken": 100}}

	d := fastDrainer(q, 3, sink)
	d.Start(ctx)
	defer d.Stop()

	for _, id := range []string{"flaky", "broken", "fine"} {
		require.NoError(t, q.Enqueue(ctx, change(id)))
	}

	require.Eventually(t, func() bool {
		s := d.Stats()
		return s.Delivered == 2 && s.Dropped == 1
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"flaky", "fine"}, sink.delivered())
	assert.Equal(t, int64(2+3), d.Stats().Retried)
}

func TestDrainer_Stop(t *testing.T) {
	q := NewMemoryQueue(10)
	d := fastDrainer(q, 0)
	d.Stop()

	d.Start(context.Background())
	d.Stop()
	assert.False(t, d.Running())
	d.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)
	cancel()
	d.Stop()
	assert.False(t, d.Running())
}

func TestDrainer_ContextCancelStops(t *testing.T) {
	q := NewMemoryQueue(10)
	sink := &recordingSink{}
	d := fastDrainer(q, 0, sink)

	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)
	require.True(t, d.Running())
	cancel()
	require.Eventually(t, func() bool { return !d.Running() }, 2*time.Second, 5*time.Millisecond)

	d.Start(context.Background())
	defer d.Stop()
	require.True(t, d.Running())
	require.NoError(t, q.Enqueue(context.Background(), change("a")))
	require.Eventually(t, func() bool {
		return len(sink.delivered()) == 1
	}, 2*time.Second, 5*time.Millisecond)
}

type fakePutter struct {
	mu    sync.Mutex
	items []*dynamodb.PutItemInput
	err   error
}

func (p *fakePutter) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	p.items = append(p.items, in)
	return &dynamodb.PutItemOutput{}, nil
}

func TestDynamoDBSink(t *testing.T) {
	ctx := context.Background()
	p := &fakePutter{}
	sink := NewDynamoDBSink(p, "lionrow-changes", time.Hour)

	c := change("a")
	require.NoError(t, sink.Deliver(ctx, c))
	require.Len(t, p.items, 1)

	in := p.items[0]
	assert.Equal(t, "lionrow-changes", *in.TableName)
	assert.Equal(t, &types.AttributeValueMemberS{Value: "a"}, in.Item["id"])
	assert.Equal(t, &types.AttributeValueMemberS{Value: "public.members"}, in.Item["table"])
	assert.Equal(t, &types.AttributeValueMemberS{Value: "UPDATE"}, in.Item["operation"])
	assert.Equal(t, &types.AttributeValueMemberS{Value: "(1, 2)"}, in.Item["row_key"])
	assert.Equal(t, &types.AttributeValueMemberS{Value: `{"coins":170,"guildid":1,"userid":2}`}, in.Item["data"])
	assert.Equal(t, &types.AttributeValueMemberN{Value: "1714568400"}, in.Item["ttl"])

	p.err = errors.New("throttled")
	assert.ErrorIs(t, sink.Deliver(ctx, c), p.err)
}

func TestDynamoDBSink_NoTTL(t *testing.T) {
	p := &fakePutter{}
	require.NoError(t, NewDynamoDBSink(p, "changes", 0).Deliver(context.Background(), change("a")))
	_, ok := p.items[0].Item["ttl"]
	assert.False(t, ok)
}
