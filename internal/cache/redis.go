package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis implements Store on a go-redis client.
type Redis struct {
	client *redis.Client
}

// Config holds the Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// NewRedis connects to Redis and verifies the connection with a short ping.
func NewRedis(ctx context.Context, cfg Config) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, err
	}
	return &Redis{client: client}, nil
}

// Close releases the underlying connection pool.
func (r *Redis) Close() error { return r.client.Close() }

// Ping checks connectivity; used by the readiness probe.
func (r *Redis) Ping(ctx context.Context) error { return r.client.Ping(ctx).Err() }

// Get returns the value at key, or ErrMiss.
func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	v, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	return v, err
}

// Set writes key=value with the given ttl (0 = no expiration).
func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

// Delete removes key.
func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// Exists reports whether key is present and unexpired.
func (r *Redis) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	return n > 0, err
}

// TTL returns the remaining lifetime of key. Absent keys and keys without an
// expiration both report 0, matching the Store contract.
func (r *Redis) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := r.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if d < 0 { // -1 no expiry, -2 missing
		return 0, nil
	}
	return d, nil
}
