package storage

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	runLockKeyPrefix   = "alloc:run:"
	remainingKeyPrefix = "supply:remaining:"

	defaultLockTTL = 5 * time.Minute
)

// RedisLocker serializes allocation runs per date and mirrors each date's
// remaining supply for cheap availability reads. The lock TTL bounds how
// long a crashed run can hold a date hostage.
type RedisLocker struct {
	client  *redis.Client
	lockTTL time.Duration
}

func NewRedisLocker(client *redis.Client, lockTTL time.Duration) *RedisLocker {
	if lockTTL <= 0 {
		lockTTL = defaultLockTTL
	}
	return &RedisLocker{client: client, lockTTL: lockTTL}
}

func (r *RedisLocker) AcquireRunLock(ctx context.Context, date time.Time) (bool, error) {
	return r.client.SetNX(ctx, runLockKey(date), 1, r.lockTTL).Result()
}

func (r *RedisLocker) ReleaseRunLock(ctx context.Context, date time.Time) error {
	return r.client.Del(ctx, runLockKey(date)).Err()
}

func (r *RedisLocker) SetRemaining(ctx context.Context, date time.Time, qty int) error {
	return r.client.Set(ctx, remainingKey(date), qty, 0).Err()
}

// GetRemaining reads the mirrored counter; -1 when no counter exists.
func (r *RedisLocker) GetRemaining(ctx context.Context, date time.Time) (int, error) {
	qty, err := r.client.Get(ctx, remainingKey(date)).Int()
	if err == redis.Nil {
		return -1, nil
	}
	if err != nil {
		return 0, err
	}
	return qty, nil
}

func runLockKey(date time.Time) string {
	return runLockKeyPrefix + date.Format(time.DateOnly)
}

func remainingKey(date time.Time) string {
	return remainingKeyPrefix + date.Format(time.DateOnly)
}
