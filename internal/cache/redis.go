package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/rueidis"
)

// RedisConfig holds connection parameters for the Redis backend.
type RedisConfig struct {
	Addrs    []string
	Password string
	DB       int
	Prefix   string
}

// Redis is a cache shared between portal instances.
type Redis struct {
	client rueidis.Client
	prefix string
}

// NewRedis connects to Redis via rueidis.
func NewRedis(cfg RedisConfig) (*Redis, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return &Redis{client: client, prefix: cfg.Prefix}, nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(c rueidis.Client, prefix string) *Redis {
	return &Redis{client: c, prefix: prefix}
}

// Get decodes the value at key into dst.
func (r *Redis) Get(ctx context.Context, key string, dst any) (bool, error) {
	cmd := r.client.B().Get().Key(r.prefix + key).Build()
	data, err := r.client.Do(ctx, cmd).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return false, nil
		}
		return false, fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := decode(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

// Set stores v at key with an expiry.
func (r *Redis) Set(ctx context.Context, key string, v any, ttl time.Duration) error {
	b, err := encode(v)
	if err != nil {
		return err
	}
	var cmd rueidis.Completed
	if ttl > 0 {
		cmd = r.client.B().Set().Key(r.prefix + key).Value(rueidis.BinaryString(b)).Ex(ttl).Build()
	} else {
		cmd = r.client.B().Set().Key(r.prefix + key).Value(rueidis.BinaryString(b)).Build()
	}
	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Close shuts down the client.
func (r *Redis) Close() {
	r.client.Close()
}
