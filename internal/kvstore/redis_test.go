package kvstore

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzpsarthak13/lionrow/internal/registry"
)

func TestRedis_Key(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	defer client.Close()

	r := NewRedisFromClient(client, "lionrow")
	assert.Equal(t, "lionrow:changes:members", r.Key("changes", "members"))
	assert.Same(t, client, r.Client().(*redis.Client))

	bare := NewRedisFromClient(client, "")
	assert.Equal(t, "lock:members:1", bare.Key("lock", "members:1"))
}

func TestNewRedis_RequiresEndpoint(t *testing.T) {
	_, err := NewRedis(context.Background(), registry.RedisConfig{})
	require.Error(t, err)
}

func TestNewDynamoDB_RequiresRegionAndTable(t *testing.T) {
	_, err := NewDynamoDB(context.Background(), registry.DynamoDBConfig{TableName: "changes"})
	assert.Error(t, err)
	_, err = NewDynamoDB(context.Background(), registry.DynamoDBConfig{Region: "us-east-1"})
	assert.Error(t, err)
}
