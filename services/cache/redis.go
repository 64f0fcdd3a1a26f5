package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisService implements CacheService on plain Redis string keys
type RedisService struct {
	client *redis.Client
	ctx    context.Context
	prefix string
}

// NewRedisService creates a new Redis-backed cache. Keys are stored under prefix.
func NewRedisService(ctx context.Context, addr string, db int, prefix string) *RedisService {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	return &RedisService{
		client: client,
		ctx:    ctx,
		prefix: prefix,
	}
}

// Get retrieves a value from Redis
func (r *RedisService) Get(key string) ([]byte, error) {
	value, err := r.client.Get(r.ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Set stores a value in Redis with an expiration time
func (r *RedisService) Set(key string, value []byte, expiration time.Duration) error {
	return r.client.Set(r.ctx, r.prefix+key, value, expiration).Err()
}

// Delete removes a value from Redis
func (r *RedisService) Delete(key string) error {
	return r.client.Del(r.ctx, r.prefix+key).Err()
}

// Ping checks that the server answers
func (r *RedisService) Ping() error {
	return r.client.Ping(r.ctx).Err()
}

// Close closes the Redis connection
func (r *RedisService) Close() error {
	return r.client.Close()
}
