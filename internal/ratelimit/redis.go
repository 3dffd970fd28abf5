package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore enforces limits fleet-wide by keeping counters in a shared
// Redis. Keys carry the window as a TTL so stale counters clear themselves.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "portal:ratelimit:"}
}

func (s *RedisStore) Incr(ctx context.Context, key string, window time.Duration) (Result, error) {
	rkey := s.prefix + key

	count, err := s.client.Incr(ctx, rkey).Result()
	if err != nil {
		return Result{}, err
	}
	if count == 1 {
		// first hit in this window starts the clock
		if err := s.client.PExpire(ctx, rkey, window).Err(); err != nil {
			return Result{}, err
		}
		return Result{Count: 1, Reset: time.Now().Add(window)}, nil
	}

	ttl, err := s.client.PTTL(ctx, rkey).Result()
	if err != nil {
		return Result{}, err
	}
	if ttl < 0 {
		// expiry lost (eviction or a crash between INCR and PEXPIRE); re-arm
		// rather than leaving an immortal counter
		_ = s.client.PExpire(ctx, rkey, window).Err()
		ttl = window
	}
	return Result{Count: int(count), Reset: time.Now().Add(ttl)}, nil
}

func (s *RedisStore) Peek(ctx context.Context, key string) (Result, error) {
	rkey := s.prefix + key

	count, err := s.client.Get(ctx, rkey).Int()
	if err == redis.Nil {
		return Result{}, nil
	}
	if err != nil {
		return Result{}, err
	}
	ttl, err := s.client.PTTL(ctx, rkey).Result()
	if err != nil {
		return Result{}, err
	}
	if ttl < 0 {
		return Result{}, nil
	}
	return Result{Count: count, Reset: time.Now().Add(ttl)}, nil
}
