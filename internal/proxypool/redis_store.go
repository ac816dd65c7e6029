package proxypool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the record table in a single redis hash, one field per
// host:port.
type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(client *redis.Client, key string) *RedisStore {
	return &RedisStore{client: client, key: key}
}

func (rs *RedisStore) Load(ctx context.Context) (map[string]HealthRecord, error) {
	fields, err := rs.client.HGetAll(ctx, rs.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall %s: %w", rs.key, err)
	}

	records := make(map[string]HealthRecord, len(fields))
	for key, raw := range fields {
		var rec HealthRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("decode proxy record %s: %w", key, err)
		}
		rec.Key = key
		records[key] = rec
	}
	return records, nil
}

// Save replaces the whole hash inside a MULTI/EXEC block.
func (rs *RedisStore) Save(ctx context.Context, records map[string]HealthRecord) error {
	values := make([]interface{}, 0, len(records)*2)
	for key, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode proxy record %s: %w", key, err)
		}
		values = append(values, key, string(data))
	}

	_, err := rs.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, rs.key)
		if len(values) > 0 {
			pipe.HSet(ctx, rs.key, values...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save %s: %w", rs.key, err)
	}
	return nil
}
