package analytics

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"ontology/internal/shared/constants"
)

// ErrRunInProgress is returned when the organization already has a run
// holding the lock.
var ErrRunInProgress = errors.New("an analytics run is already in progress for this organization")

// ReleaseFunc gives the lock back. It is safe to call once.
type ReleaseFunc func(ctx context.Context) error

// RunLocker serializes pipeline runs per organization. Segment reassignment
// and RFM upserts are last-writer-wins, so two runs must never overlap.
type RunLocker interface {
	Acquire(ctx context.Context, orgID uuid.UUID) (ReleaseFunc, error)
}

// releaseIfOwner deletes the lock only when it still carries our token, so a
// run that outlived the TTL cannot free a lock another run has since taken.
var releaseIfOwner = redis.NewScript(`
-- KEYS[1] = lock key
-- ARGV[1] = owner token
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisRunLock holds the lock in Redis so every API replica sees it.
type RedisRunLock struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisRunLock(client *redis.Client, ttl time.Duration) *RedisRunLock {
	if ttl <= 0 {
		ttl = constants.TTL_ANALYTICS_RUN_LOCK
	}
	return &RedisRunLock{client: client, ttl: ttl}
}

func (l *RedisRunLock) Acquire(ctx context.Context, orgID uuid.UUID) (ReleaseFunc, error) {
	if l.client == nil {
		return nil, fmt.Errorf("redis client not available")
	}
	key := constants.BuildAnalyticsRunLockKey(orgID.String())
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire run lock: %w", err)
	}
	if !ok {
		return nil, ErrRunInProgress
	}

	var once sync.Once
	return func(ctx context.Context) error {
		var relErr error
		once.Do(func() {
			if err := releaseIfOwner.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
				relErr = fmt.Errorf("failed to release run lock: %w", err)
			}
		})
		return relErr
	}, nil
}

// LocalRunLock serializes runs inside one process. Used when Redis is off.
type LocalRunLock struct {
	mu      sync.Mutex
	running map[uuid.UUID]struct{}
}

func NewLocalRunLock() *LocalRunLock {
	return &LocalRunLock{running: make(map[uuid.UUID]struct{})}
}

func (l *LocalRunLock) Acquire(_ context.Context, orgID uuid.UUID) (ReleaseFunc, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.running[orgID]; busy {
		return nil, ErrRunInProgress
	}
	l.running[orgID] = struct{}{}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			l.mu.Lock()
			delete(l.running, orgID)
			l.mu.Unlock()
		})
		return nil
	}, nil
}
