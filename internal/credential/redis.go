package credential

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const DefaultRedisKey = "speakup:credentials"

// RedisBackend stores credentials in a single hash so hosted deployments
// without a writable filesystem can still save a key.
type RedisBackend struct {
	rdb *redis.Client
	key string
}

func NewRedisBackend(rdb *redis.Client, key string) *RedisBackend {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisBackend{rdb: rdb, key: key}
}

func (b *RedisBackend) Load(ctx context.Context) (map[string]string, error) {
	rec, err := b.rdb.HGetAll(ctx, b.key).Result()
	if err != nil {
		return nil, fmt.Errorf("credential: redis hgetall: %w", err)
	}
	return rec, nil
}

func (b *RedisBackend) Save(ctx context.Context, name, value string, drop ...string) error {
	_, err := b.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(drop) > 0 {
			pipe.HDel(ctx, b.key, drop...)
		}
		pipe.HSet(ctx, b.key, name, value)
		return nil
	})
	if err != nil {
		return fmt.Errorf("credential: redis save: %w", err)
	}
	return nil
}
