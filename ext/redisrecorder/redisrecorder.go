// Package redisrecorder persists stream offsets in Redis, for consumers
// whose hosts have no durable local disk.
package redisrecorder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const opTimeout = 5 * time.Second

// Recorder stores the offset under a single Redis key.
type Recorder struct {
	client *redis.Client
	key    string
}

// New connects to Redis and verifies the connection. key names the offset
// slot; use one key per consumer.
func New(key string, opts *redis.Options) (*Recorder, error) {
	if key == "" {
		return nil, errors.New("redis offset key is required")
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Recorder{client: client, key: key}, nil
}

// NewWithClient wraps an existing client; the caller keeps ownership of it.
func NewWithClient(key string, client *redis.Client) (*Recorder, error) {
	if key == "" {
		return nil, errors.New("redis offset key is required")
	}
	return &Recorder{client: client, key: key}, nil
}

func (r *Recorder) ReadOffset() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	offset, err := r.client.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read offset %q: %w", r.key, err)
	}
	return offset, nil
}

func (r *Recorder) WriteOffset(offset string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := r.client.Set(ctx, r.key, offset, 0).Err(); err != nil {
		return fmt.Errorf("write offset %q: %w", r.key, err)
	}
	return nil
}

// Close releases the client when the recorder owns it.
func (r *Recorder) Close() error {
	return r.client.Close()
}
