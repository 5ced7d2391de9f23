package cooldown

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "ampa:cooldown:"

// RedisStore keeps each job's records in a hash at ampa:cooldown:<job id>,
// field = item id, value = RFC 3339 timestamp.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// DialRedis parses url, connects, and verifies the connection with PING.
func DialRedis(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Get returns the records for jobID.
func (s *RedisStore) Get(ctx context.Context, jobID string) (Records, error) {
	vals, err := s.client.HGetAll(ctx, redisKeyPrefix+jobID).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get cooldowns: %w", err)
	}
	out := make(Records, len(vals))
	for id, raw := range vals {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: job %s item %s: %v", ErrCorruptState, jobID, id, err)
		}
		out[id] = t.UTC()
	}
	return out, nil
}

// Put replaces jobID's hash atomically.
func (s *RedisStore) Put(ctx context.Context, jobID string, records Records) error {
	key := redisKeyPrefix + jobID
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(records) == 0 {
			return nil
		}
		fields := make(map[string]any, len(records))
		for id, t := range records {
			fields[id] = t.UTC().Format(time.RFC3339Nano)
		}
		pipe.HSet(ctx, key, fields)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis put cooldowns: %w", err)
	}
	return nil
}
