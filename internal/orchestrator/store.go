package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is the task record repository. The in-process map is authoritative for the worker that owns a task;
// Redis is the cross-process mirror polling clients and other workers read
// from. Every write goes: in-memory first, then mirrored.
type Store struct {
	mu     sync.RWMutex
	tasks  map[string]Task
	redis  redis.UniversalClient // nil disables the mirror (tests, single-process dev)
	ttl    time.Duration
	prefix string
}

func NewStore(client redis.UniversalClient, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{
		tasks:  make(map[string]Task),
		redis:  client,
		ttl:    ttl,
		prefix: "task:",
	}
}

func (s *Store) redisKey(taskID string) string {
	return s.prefix + taskID
}

// Put inserts or overwrites a task record: in-memory write, then best-effort
// Redis mirror. Mirror failures are logged by the caller, not here — Store
// stays I/O-shaped but opinion-free about logging.
func (s *Store) Put(ctx context.Context, t Task) error {
	s.mu.Lock()
	s.tasks[t.TaskID] = t
	s.mu.Unlock()

	if s.redis == nil {
		return nil
	}
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal task %s: %w", t.TaskID, err)
	}
	if err := s.redis.Set(ctx, s.redisKey(t.TaskID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("mirror task %s: %w", t.TaskID, err)
	}
	return nil
}

// Get reads a task: in-process copy first (authoritative for the owning
// worker), falling back to the Redis mirror (any process can poll status).
func (s *Store) Get(ctx context.Context, taskID string) (Task, bool, error) {
	s.mu.RLock()
	t, ok := s.tasks[taskID]
	s.mu.RUnlock()
	if ok {
		return t, true, nil
	}

	if s.redis == nil {
		return Task{}, false, nil
	}

	data, err := s.redis.Get(ctx, s.redisKey(taskID)).Bytes()
	if err == redis.Nil {
		return Task{}, false, nil
	}
	if err != nil {
		return Task{}, false, fmt.Errorf("reading mirrored task %s: %w", taskID, err)
	}

	var mirrored Task
	if err := json.Unmarshal(data, &mirrored); err != nil {
		return Task{}, false, fmt.Errorf("unmarshal mirrored task %s: %w", taskID, err)
	}
	return mirrored, true, nil
}
