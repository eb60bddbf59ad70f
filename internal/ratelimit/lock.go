package ratelimit

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const jobLockPrefix = "ambassador:scheduler:lock:"

// Compare-and-delete so a holder whose lease ran out cannot drop the lock a
// newer holder acquired.
const unlockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var (
	ErrLockUnavailable = errors.New("lock_unavailable")
	ErrInvalidLockKey  = errors.New("invalid_lock_key")
	ErrInvalidLockTTL  = errors.New("invalid_lock_ttl")
)

// Locker hands out short-lived exclusive leases on scheduler jobs so only one
// replica dispatches the outbox per tick.
type Locker struct {
	client *redis.Client
	unlock *redis.Script
}

// NewLocker returns nil without a redis client; callers treat a nil Locker as
// "run unguarded".
func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{
		client: client,
		unlock: redis.NewScript(unlockScript),
	}
}

// JobKey namespaces a scheduler job name.
func JobKey(job string) string {
	return jobLockPrefix + strings.TrimSpace(job)
}

// TryLock attempts to take key for ttl. It returns the lease token and false
// when another holder owns the key.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if l == nil || l.client == nil {
		return "", false, ErrLockUnavailable
	}
	if strings.TrimSpace(key) == "" {
		return "", false, ErrInvalidLockKey
	}
	if ttl <= 0 {
		return "", false, ErrInvalidLockTTL
	}

	token := uuid.NewString()
	acquired, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !acquired {
		return "", false, nil
	}
	return token, true, nil
}

// Release drops key if token still owns it. Unknown or stale tokens are a no-op.
func (l *Locker) Release(ctx context.Context, key, token string) error {
	if l == nil || l.client == nil || key == "" || token == "" {
		return nil
	}
	return l.unlock.Run(ctx, l.client, []string{key}, token).Err()
}
