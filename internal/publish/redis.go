// Package publish mirrors mug readings into Redis and accepts commands from
// a Redis channel.
package publish

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Store is the Redis surface the publisher uses.
type Store interface {
	// WriteAndPublish sets field in the hash at key and publishes
	// "field:value" on the channel named key.
	WriteAndPublish(ctx context.Context, key, field, value string) error
	// Publish sends message on channel.
	Publish(ctx context.Context, channel, message string) error
	// Subscribe returns the payloads received on channel and a func that
	// closes the subscription.
	Subscribe(ctx context.Context, channel string) (<-chan string, func() error)
}

// RedisStore implements Store on go-redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and pings it.
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("publish: connect to redis at %s: %w", addr, err)
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) WriteAndPublish(ctx context.Context, key, field, value string) error {
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, field, value)
	pipe.Publish(ctx, key, fmt.Sprintf("%s:%s", field, value))
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Publish(ctx context.Context, channel, message string) error {
	return s.client.Publish(ctx, channel, message).Err()
}

func (s *RedisStore) Subscribe(ctx context.Context, channel string) (<-chan string, func() error) {
	pubsub := s.client.Subscribe(ctx, channel)
	out := make(chan string)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			select {
			case out <- msg.Payload:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, pubsub.Close
}

// Close closes the Redis client connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
