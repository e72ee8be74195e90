package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const defaultLockTTL = 2 * time.Minute

// ErrLockLost is returned by Release when the lock expired and may have been
// taken by another replica before the job finished.
var ErrLockLost = errors.New("cron lock expired before release")

// Lock coordinates exclusive runs of one job across worker replicas.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// LockFactory returns the lock guarding the named job.
type LockFactory func(job string) (Lock, error)

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	ReleaseIfOwner(ctx context.Context, key, owner string) (bool, error)
	CronLockKey(job string) string
}

// RedisLock holds a random owner token under key for ttl. Release is a
// compare-and-delete, so a replica never frees a lock it does not own.
type RedisLock struct {
	store lockStore
	key   string
	ttl   time.Duration
	owner string
}

func NewRedisLockFactory(store lockStore, ttl time.Duration) (LockFactory, error) {
	if store == nil {
		return nil, errors.New("redis client required for lock")
	}
	return func(job string) (Lock, error) {
		return NewRedisLock(store, store.CronLockKey(job), ttl)
	}, nil
}

func NewRedisLock(store lockStore, key string, ttl time.Duration) (*RedisLock, error) {
	switch {
	case store == nil:
		return nil, errors.New("redis client required for lock")
	case key == "":
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{store: store, key: key, ttl: ttl}, nil
}

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	owner := uuid.NewString()
	ok, err := l.store.SetNX(ctx, l.key, owner, l.ttl)
	if err != nil {
		return false, fmt.Errorf("setnx %s: %w", l.key, err)
	}
	if ok {
		l.owner = owner
	}
	return ok, nil
}

// Release is a no-op for a lock that was never acquired.
func (l *RedisLock) Release(ctx context.Context) error {
	if l.owner == "" {
		return nil
	}
	owner := l.owner
	l.owner = ""
	released, err := l.store.ReleaseIfOwner(ctx, l.key, owner)
	if err != nil {
		return err
	}
	if !released {
		return ErrLockLost
	}
	return nil
}
