package reports

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const runLockKey = "reportes:run:lock"

// releaseScript deletes the lock only when still held by the same run.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RunLock serialises pipeline runs across the HTTP server and the worker
// process. The TTL guards against a crashed holder keeping the lock forever.
type RunLock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRunLock constructs a RunLock.
func NewRunLock(client *redis.Client, ttl time.Duration) *RunLock {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &RunLock{client: client, ttl: ttl}
}

// Acquire attempts to take the lock for the given run id. It does not block:
// a held lock reports false immediately.
func (l *RunLock) Acquire(ctx context.Context, runID string) (bool, error) {
	if l == nil || l.client == nil {
		return true, nil
	}
	return l.client.SetNX(ctx, runLockKey, runID, l.ttl).Result()
}

// Release frees the lock when still owned by the given run id.
func (l *RunLock) Release(ctx context.Context, runID string) error {
	if l == nil || l.client == nil {
		return nil
	}
	return releaseScript.Run(ctx, l.client, []string{runLockKey}, runID).Err()
}
