package progress

import (
	"context"
	"fmt"
	"time"

	"product-importer/models"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each record in a hash at upload:{task_id}. Every write refreshes the TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Backend() string {
	return "redis"
}

func (s *RedisStore) Set(ctx context.Context, record models.UploadStatus) error {
	record.UpdatedAt = time.Now()
	key := Key(record.TaskID)

	fields := encode(record)
	values := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		values = append(values, k, v)
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, values...)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store progress for %s: %w", record.TaskID, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, taskID string) (*models.UploadStatus, error) {
	fields, err := s.client.HGetAll(ctx, Key(taskID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read progress for %s: %w", taskID, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return decode(taskID, fields)
}
