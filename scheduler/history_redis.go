package scheduler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const DefaultRedisHistoryKey = "crontub:executions"

// RedisHistory keeps the newest records in a capped Redis list.
type RedisHistory struct {
	client   redis.Cmdable
	key      string
	capacity int64
}

func NewRedisHistory(client redis.Cmdable, key string, capacity int) *RedisHistory {
	if key == "" {
		key = DefaultRedisHistoryKey
	}
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &RedisHistory{client: client, key: key, capacity: int64(capacity)}
}

func (r *RedisHistory) Record(ctx context.Context, rec ExecutionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, r.key, data)
	pipe.LTrim(ctx, r.key, 0, r.capacity-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis history: %w", err)
	}
	return nil
}

func (r *RedisHistory) Recent(ctx context.Context, limit int) ([]ExecutionRecord, error) {
	stop := int64(limit) - 1
	if limit <= 0 {
		stop = -1
	}
	items, err := r.client.LRange(ctx, r.key, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("redis history: %w", err)
	}
	recs := make([]ExecutionRecord, 0, len(items))
	for _, item := range items {
		var rec ExecutionRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return nil, fmt.Errorf("redis history: decode: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}
