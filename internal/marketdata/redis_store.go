package marketdata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "options_advisor:md:"

// RedisStore shares cached market data between advisor processes.
type RedisStore struct {
	Client *redis.Client
	prefix string
}

// NewRedisStore connects lazily; the first command dials.
func NewRedisStore(opt *redis.Options, prefix string) *RedisStore {
	return NewRedisStoreWithClient(redis.NewClient(opt), prefix)
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{Client: client, prefix: prefix}
}

// Get reads a key; a missing key is not an error.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := s.Client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// Set writes a key with expiry.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.Client.Set(ctx, s.prefix+key, value, ttl).Err()
}

// Reset deletes every key under the store prefix.
func (s *RedisStore) Reset(ctx context.Context) error {
	iter := s.Client.Scan(ctx, 0, s.prefix+"*", 200).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 200 {
			if err := s.Client.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("deleting cache keys: %w", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scanning cache keys: %w", err)
	}
	if len(batch) > 0 {
		if err := s.Client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("deleting cache keys: %w", err)
		}
	}
	return nil
}

// Close releases the connection pool.
func (s *RedisStore) Close() error {
	return s.Client.Close()
}
