package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ProjectLock is the per-project mutual exclusion primitive: a Redis
// SET NX EX key held for at most the configured TTL, refreshed by the
// holder before expiry, with an owner token so only the holder can refresh
// or release.
type ProjectLock struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewProjectLock(client redis.UniversalClient, ttl time.Duration) *ProjectLock {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ProjectLock{client: client, ttl: ttl}
}

func lockKey(projectID string) string {
	return "lock:project:" + projectID
}

// Acquire attempts the SET NX EX; returns ("", false, nil) when the lock is
// already held (the caller surfaces errs.ErrLocked). The returned token
// must be passed to Refresh/Release.
func (l *ProjectLock) Acquire(ctx context.Context, projectID string) (token string, ok bool, err error) {
	token = uuid.NewString()
	ok, err = l.client.SetNX(ctx, lockKey(projectID), token, l.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquiring project lock %s: %w", projectID, err)
	}
	return token, ok, nil
}

// Held reports whether any run currently holds the project lock, without
// acquiring it. Advisory only: the authoritative check is still the Acquire
// inside Run, so a race here at worst turns a fast 409 into a failed task.
func (l *ProjectLock) Held(ctx context.Context, projectID string) (bool, error) {
	n, err := l.client.Exists(ctx, lockKey(projectID)).Result()
	if err != nil {
		return false, fmt.Errorf("checking project lock %s: %w", projectID, err)
	}
	return n > 0, nil
}

// refreshScript only extends the TTL if the caller still holds the lock
// (token matches), preventing a stale holder from refreshing a lock another
// run has since acquired.
const refreshScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
  return 0
end
`

// Refresh extends the lock's TTL; returns false if this token no longer
// owns the lock (it expired and someone else acquired it).
func (l *ProjectLock) Refresh(ctx context.Context, projectID, token string) (bool, error) {
	res, err := l.client.Eval(ctx, refreshScript, []string{lockKey(projectID)}, token, l.ttl.Milliseconds()).Result()
	if err != nil {
		return false, fmt.Errorf("refreshing project lock %s: %w", projectID, err)
	}
	n, _ := res.(int64)
	return n == 1, nil
}

// releaseScript only deletes the key if the caller still holds it, so a
// lock that already expired and was re-acquired by a newer run is never
// deleted out from under that run.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`

func (l *ProjectLock) Release(ctx context.Context, projectID, token string) error {
	if err := l.client.Eval(ctx, releaseScript, []string{lockKey(projectID)}, token).Err(); err != nil {
		return fmt.Errorf("releasing project lock %s: %w", projectID, err)
	}
	return nil
}
