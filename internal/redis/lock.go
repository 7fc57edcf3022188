package redisclient

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/opdesk/token-engine/internal/lock"
)

type redisSlotLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSlotLocker returns a lock.Locker backed by per-slot Redis keys. Fails
// fast with lock.ErrNotAcquired on contention; callers decide whether to
// retry.
func NewSlotLocker(client *redis.Client, ttl time.Duration) lock.Locker {
	return &redisSlotLocker{
		client: client,
		ttl:    ttl,
	}
}

func (l *redisSlotLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	return l.WithLocks(ctx, []string{key}, fn)
}

func (l *redisSlotLocker) WithLocks(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	ordered := append([]string(nil), keys...)
	sort.Strings(ordered)

	token := uuid.NewString()
	var held []string
	release := func() {
		for _, k := range held {
			_ = l.release(ctx, redisKey(k), token)
		}
	}

	prev := ""
	for _, k := range ordered {
		if k == prev {
			continue
		}
		prev = k

		ok, err := l.client.SetNX(ctx, redisKey(k), token, l.ttl).Result()
		if err != nil {
			release()
			return fmt.Errorf("acquire slot lock: %w", err)
		}
		if !ok {
			release()
			return lock.ErrNotAcquired
		}
		held = append(held, k)
	}
	defer release()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisSlotLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release slot lock: %w", err)
	}
	return nil
}

func redisKey(slotID string) string {
	return "lock:slot:" + slotID
}
