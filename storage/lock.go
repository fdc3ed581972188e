package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"board-service/domain"
)

// releaseScript deletes the lock only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

const defaultRetryInterval = 10 * time.Millisecond

// RedisLocker serializes reorders across instances with SET NX PX locks.
// A lock expires after ttl so a crashed holder cannot block a collection
// forever.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
}

// NewRedisLocker creates a locker using the provided Redis client and lock TTL.
func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, ttl: ttl, retry: defaultRetryInterval}
}

func lockKey(key string) string { return "lock:" + key }

// Lock polls until the key is acquired or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	k := lockKey(key)
	for {
		ok, err := l.client.SetNX(ctx, k, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		timer := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	released := false
	return func() {
		if released {
			return
		}
		released = true
		// The request context may already be done; release regardless.
		if err := releaseScript.Run(context.Background(), l.client, []string{k}, token).Err(); err != nil {
			log.WithError(err).WithField("key", key).Warn("failed to release lock")
		}
	}, nil
}

var _ domain.Locker = (*RedisLocker)(nil)
