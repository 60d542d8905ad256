package lockout

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis key prefixes for failure counters and active locks
const (
	failureKeyPrefix = "lockout:fail:"
	lockKeyPrefix    = "lockout:lock:"
)

// RedisStore applies the lockout policy with Redis TTLs doing the decay:
// INCR with a window expiry for the counter, a marker key with the lock
// duration for the lock itself.
type RedisStore struct {
	client *redis.Client
	policy Policy
}

func NewRedis(client *redis.Client, policy Policy) *RedisStore {
	return &RedisStore{client: client, policy: policy}
}

func (s *RedisStore) RecordFailure(ctx context.Context, key string) (bool, error) {
	failKey := failureKeyPrefix + key

	count, err := s.client.Incr(ctx, failKey).Result()
	if err != nil {
		return false, fmt.Errorf("increment failure counter: %w", err)
	}
	if count == 1 {
		if err := s.client.Expire(ctx, failKey, s.policy.Window).Err(); err != nil {
			return false, fmt.Errorf("set failure window: %w", err)
		}
	}

	if count >= int64(s.policy.Threshold) {
		if err := s.client.Set(ctx, lockKeyPrefix+key, "1", s.policy.LockDuration).Err(); err != nil {
			return false, fmt.Errorf("set lock: %w", err)
		}
		return true, nil
	}
	return false, nil
}

func (s *RedisStore) IsLocked(ctx context.Context, key string) (bool, error) {
	exists, err := s.client.Exists(ctx, lockKeyPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("check lock: %w", err)
	}
	return exists > 0, nil
}

func (s *RedisStore) Clear(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, failureKeyPrefix+key, lockKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("clear lockout state: %w", err)
	}
	return nil
}
