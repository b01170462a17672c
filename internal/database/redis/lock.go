package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// PolicyLocker serializes settlement attempts per policy across service
// instances. The coverage check and the payout write must execute as one
// unit, otherwise two concurrent settlements can both read the same
// remaining coverage and jointly overspend it.
type PolicyLocker struct {
	client *redis.Client
	ttl    time.Duration
}

const (
	lockKeyPrefix   = "settlement:lock:policy:"
	lockRetryDelay  = 50 * time.Millisecond
	lockWaitTimeout = 10 * time.Second
)

// releaseScript deletes the lock only when still held by this owner, so
// an expired lock reclaimed by another worker is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

func NewPolicyLocker(c *Client, ttl time.Duration) *PolicyLocker {
	return &PolicyLocker{client: c.GetClient(), ttl: ttl}
}

// AcquirePolicyLock blocks until the per-policy lock is held or the wait
// timeout elapses. The returned release function is safe to call once.
func (l *PolicyLocker) AcquirePolicyLock(ctx context.Context, policyID uuid.UUID) (func(), error) {
	key := lockKeyPrefix + policyID.String()
	owner := uuid.NewString()

	deadline := time.Now().Add(lockWaitTimeout)
	for {
		ok, err := l.client.SetNX(ctx, key, owner, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire policy lock %s: %w", key, err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("timed out waiting for policy lock %s", key)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryDelay):
		}
	}

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		releaseScript.Run(releaseCtx, l.client, []string{key}, owner)
	}
	return release, nil
}
