package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const lockPrefix = "netbill:scheduler:"

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// locker serializes job runs across processes. Without Redis every run owns
// its job.
type locker struct {
	client *redis.Client
	ttl    time.Duration
}

func newLocker(client *redis.Client, ttl time.Duration) *locker {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &locker{client: client, ttl: ttl}
}

func (l *locker) acquire(ctx context.Context, job, token string) (bool, error) {
	if l.client == nil {
		return true, nil
	}
	ok, err := l.client.SetNX(ctx, lockPrefix+job, token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", job, err)
	}
	return ok, nil
}

func (l *locker) release(ctx context.Context, job, token string) error {
	if l.client == nil {
		return nil
	}
	return releaseScript.Run(ctx, l.client, []string{lockPrefix + job}, token).Err()
}
