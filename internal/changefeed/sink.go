package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/rzpsarthak13/lionrow/internal/core"
)

// Sink receives drained changes. Deliver must be safe to retry with the
// same change.
type Sink interface {
	Deliver(ctx context.Context, change *core.Change) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, change *core.Change) error

// Deliver calls f.
func (f SinkFunc) Deliver(ctx context.Context, change *core.Change) error {
	return f(ctx, change)
}

// DynamoDBPutter is the part of the DynamoDB client DynamoDBSink uses.
type DynamoDBPutter interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// changeItem is the DynamoDB item written per change. The change ID is the
// partition key, so redelivery overwrites rather than duplicates.
type changeItem struct {
	ID        string `dynamodbav:"id"`
	Table     string `dynamodbav:"table"`
	Operation string `dynamodbav:"operation"`
	Key       string `dynamodbav:"row_key"`
	Data      string `dynamodbav:"data"`
	Timestamp string `dynamodbav:"timestamp"`
	TTL       *int64 `dynamodbav:"ttl,omitempty"`
}

// DynamoDBSink archives every change as one DynamoDB item.
type DynamoDBSink struct {
	client    DynamoDBPutter
	tableName string
	ttl       time.Duration
}

// NewDynamoDBSink writes to tableName through client. A positive ttl sets
// the item's ttl attribute for DynamoDB expiry.
func NewDynamoDBSink(client DynamoDBPutter, tableName string, ttl time.Duration) *DynamoDBSink {
	return &DynamoDBSink{client: client, tableName: tableName, ttl: ttl}
}

// Deliver puts the change's item.
func (s *DynamoDBSink) Deliver(ctx context.Context, change *core.Change) error {
	data, err := json.Marshal(change.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal change data: %w", err)
	}
	item := changeItem{
		ID:        change.ID,
		Table:     change.Table,
		Operation: string(change.Operation),
		Key:       change.Key.String(),
		Data:      string(data),
		Timestamp: change.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	if s.ttl > 0 {
		expires := change.Timestamp.Add(s.ttl).Unix()
		item.TTL = &expires
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal change %s: %w", change.ID, err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	}); err != nil {
		return fmt.Errorf("failed to archive change %s: %w", change.ID, err)
	}
	return nil
}
