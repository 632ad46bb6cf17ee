package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when another repair of the same position is
// already in flight.
var ErrLockHeld = errors.New("repair lock already held")

// releaseScript deletes the lock key only when it still carries this
// holder's token, so an expired-and-reacquired lock is never released by
// the previous holder.
const releaseScript = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// RepairLock serializes repairs per position. The replay itself is
// idempotent; the lock only prevents a stale read from overwriting a
// fresher derivation when two repairs race.
type RepairLock struct {
	rdb     *redis.Client
	release *redis.Script
	ttl     time.Duration
}

// NewRepairLock creates a RepairLock with the given per-acquisition TTL
func NewRepairLock(c *Client, ttl time.Duration) *RepairLock {
	return &RepairLock{
		rdb:     c.rdb,
		release: redis.NewScript(releaseScript),
		ttl:     ttl,
	}
}

func repairKey(positionID string) string {
	return "repair-lock:" + positionID
}

// Acquire takes the repair lock for a position. On success it returns a
// release function, safe to call more than once. ErrLockHeld is returned
// when the lock is held by another repair.
func (l *RepairLock) Acquire(ctx context.Context, positionID string) (func(), error) {
	token := uuid.NewString()
	key := repairKey(positionID)

	ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire repair lock for %s: %w", positionID, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}

	released := false
	release := func() {
		if released {
			return
		}
		released = true

		// Release must work even after the caller's context is cancelled.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = l.release.Run(releaseCtx, l.rdb, []string{key}, token).Err()
	}

	return release, nil
}
