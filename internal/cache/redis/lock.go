package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"ladderbot/internal/domain"
)

// unlockScript deletes a lock key only when it still holds the caller's
// token, so an expired-and-reacquired lock is never released by the previous
// holder.
var unlockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`)

// LockManager implements domain.LockManager on SETNX with a TTL. The trading
// mode takes one lock per pair at startup so two controller instances never
// run the same ladder.
type LockManager struct {
	rdb *redis.Client
}

// NewLockManager creates a LockManager backed by the given Client.
func NewLockManager(c *Client) *LockManager {
	return &LockManager{rdb: c.rdb}
}

// Acquire takes the lock for key with the given TTL, returning an idempotent
// unlock function. A lock held elsewhere fails with domain.ErrLockHeld.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	lockKey := "lock:" + key

	ok, err := lm.rdb.SetNX(ctx, lockKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true

		// The caller's context is usually cancelled by the time the closer
		// runs; release on a fresh one.
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = unlockScript.Run(unlockCtx, lm.rdb, []string{lockKey}, token).Err()
	}, nil
}

var _ domain.LockManager = (*LockManager)(nil)
