// Package cache stores encoded values with a TTL. Values are encoded with
// msgpack so the in-memory and Redis backends behave the same way.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Cache is a TTL key/value cache.
type Cache interface {
	// Get decodes the value stored at key into dst. It reports false on a miss.
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttl time.Duration) error
	Close()
}

func encode(v any) ([]byte, error) {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode cache value: %w", err)
	}
	return b, nil
}

func decode(b []byte, dst any) error {
	if err := msgpack.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("decode cache value: %w", err)
	}
	return nil
}
