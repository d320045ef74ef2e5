// internal/pkg/lock/lock.go
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/your-org/ops-ledger/internal/pkg/apperror"
)

// Release frees a held lock
type Release func()

// Locker serialises work on one entity across requests
type Locker interface {
	Acquire(ctx context.Context, key string) (Release, error)
}

// Key builds a lock key for an entity
func Key(entity string, id uint) string {
	return fmt.Sprintf("%s:%d", entity, id)
}

// RedisLocker holds locks in Redis so they span every API instance
type RedisLocker struct {
	client  *redislock.Client
	ttl     time.Duration
	retries int
	logger  *logrus.Logger
}

// NewRedisLocker creates a Redis-backed locker
func NewRedisLocker(rdb *redis.Client, ttl time.Duration, retries int, logger *logrus.Logger) *RedisLocker {
	return &RedisLocker{
		client:  redislock.New(rdb),
		ttl:     ttl,
		retries: retries,
		logger:  logger,
	}
}

// Acquire obtains the lock, retrying with linear backoff
func (l *RedisLocker) Acquire(ctx context.Context, key string) (Release, error) {
	held, err := l.client.Obtain(ctx, "lock:"+key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), l.retries),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, apperror.Conflict("RESOURCE_LOCKED", fmt.Sprintf("%s is being modified by another request", key))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to obtain lock %s: %w", key, err)
	}

	return func() {
		if err := held.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.logger.WithFields(logrus.Fields{"lock": key, "error": err}).Warn("Failed to release lock")
		}
	}, nil
}

// Local is an in-process locker used when Redis is disabled. A key's slot
// lives only while someone holds or waits for it.
type Local struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewLocal creates an in-process locker
func NewLocal() *Local {
	return &Local{slots: make(map[string]*slot)}
}

// Acquire blocks until the key is free or ctx is done
func (l *Local) Acquire(ctx context.Context, key string) (Release, error) {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-s.ch
				l.drop(key, s)
			})
		}, nil
	case <-ctx.Done():
		l.drop(key, s)
		return nil, apperror.Conflict("RESOURCE_LOCKED", fmt.Sprintf("%s is being modified by another request", key))
	}
}

func (l *Local) drop(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}
