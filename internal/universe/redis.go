package universe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"marketpulse/internal/domain"
)

var _ Backend = (*RedisBackend)(nil)

// RedisBackend shares a cached universe between processes under one key.
// Expiry is delegated to Redis via the key TTL.
type RedisBackend struct {
	client *redis.Client
	key    string
}

// NewRedisBackend creates a backend storing the universe under key.
func NewRedisBackend(client *redis.Client, key string) *RedisBackend {
	if key == "" {
		key = "marketpulse:universe"
	}
	return &RedisBackend{client: client, key: key}
}

// Ping checks the connection to the Redis server.
func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Load returns the stored universe, or ok=false when the key is absent.
func (b *RedisBackend) Load(ctx context.Context) (domain.Universe, bool, error) {
	data, err := b.client.Get(ctx, b.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Universe{}, false, nil
	}
	if err != nil {
		return domain.Universe{}, false, fmt.Errorf("redis get %s: %w", b.key, err)
	}

	var u domain.Universe
	if err := json.Unmarshal(data, &u); err != nil {
		return domain.Universe{}, false, fmt.Errorf("decoding cached universe: %w", err)
	}
	return u, true, nil
}

// Save stores u with the given TTL.
func (b *RedisBackend) Save(ctx context.Context, u domain.Universe, ttl time.Duration) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encoding universe: %w", err)
	}
	if err := b.client.Set(ctx, b.key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", b.key, err)
	}
	return nil
}
