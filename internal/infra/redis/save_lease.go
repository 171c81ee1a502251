package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// acquireScript takes the lease when it is free or already ours, refreshing the ttl.
var acquireScript = redis.NewScript(`
local owner = redis.call("GET", KEYS[1])
if owner == false or owner == ARGV[1] then
	redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
	return 1
end
return 0
`)

// releaseScript deletes the lease only for its owner.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// SaveLease records which instance runs a session's profile save so a second
// instance opening the same session does not start a duplicate.
// Leases live at quiz:{sessionID}:save_lease and expire on their own if the
// owner dies mid-retry.
type SaveLease struct {
	client *redis.Client
}

func NewSaveLease(client *redis.Client) *SaveLease {
	return &SaveLease{client: client}
}

func (l *SaveLease) Acquire(ctx context.Context, sessionID, token string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = time.Minute
	}
	n, err := acquireScript.Run(ctx, l.client, []string{l.key(sessionID)}, token, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("acquire save lease: %w", err)
	}
	return n == 1, nil
}

func (l *SaveLease) Release(ctx context.Context, sessionID, token string) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key(sessionID)}, token).Err(); err != nil {
		return fmt.Errorf("release save lease: %w", err)
	}
	return nil
}

func (l *SaveLease) key(sessionID string) string {
	return "quiz:" + sessionID + ":save_lease"
}
