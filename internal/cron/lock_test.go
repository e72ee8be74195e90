package cron

import (
	"context"
	"errors"
	"testing"
	"time"
)

type memoryStore struct {
	values map[string]string
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memoryStore) ReleaseIfOwner(_ context.Context, key, owner string) (bool, error) {
	if m.values[key] != owner {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

func (m *memoryStore) CronLockKey(job string) string { return "dante:cron_lock:" + job }

func TestRedisLockIsExclusivePerJob(t *testing.T) {
	store := &memoryStore{values: map[string]string{}}
	factory, err := NewRedisLockFactory(store, time.Minute)
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	ctx := context.Background()

	first, _ := factory(ReservationExpiryJobName)
	second, _ := factory(ReservationExpiryJobName)
	other, _ := factory(OutboxRetentionJobName)

	if ok, err := first.Acquire(ctx); err != nil || !ok {
		t.Fatalf("first acquire: %v %v", ok, err)
	}
	if ok, _ := second.Acquire(ctx); ok {
		t.Fatal("second instance must not acquire a held lock")
	}
	if ok, _ := other.Acquire(ctx); !ok {
		t.Fatal("locks for different jobs must not collide")
	}

	if err := second.Release(ctx); err != nil {
		t.Fatalf("release of an unacquired lock: %v", err)
	}
	if _, ok := store.values["dante:cron_lock:"+ReservationExpiryJobName]; !ok {
		t.Fatal("non-owner release dropped the lock")
	}

	if err := first.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := second.Acquire(ctx); !ok {
		t.Fatal("lock should be free after owner release")
	}
}

func TestRedisLockReportsLossAfterExpiry(t *testing.T) {
	store := &memoryStore{values: map[string]string{}}
	lock, err := NewRedisLock(store, "dante:cron_lock:x", 0)
	if err != nil {
		t.Fatalf("NewRedisLock: %v", err)
	}
	if lock.ttl != defaultLockTTL {
		t.Fatalf("expected default ttl, got %s", lock.ttl)
	}
	ctx := context.Background()
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatal("acquire failed")
	}

	// expiry followed by another replica taking the key
	store.values["dante:cron_lock:x"] = "someone-else"

	if err := lock.Release(ctx); !errors.Is(err, ErrLockLost) {
		t.Fatalf("expected ErrLockLost, got %v", err)
	}
	if store.values["dante:cron_lock:x"] != "someone-else" {
		t.Fatal("release must not free a lock held by another replica")
	}
	if err := lock.Release(ctx); err != nil {
		t.Fatalf("second release should be a no-op, got %v", err)
	}
}

func TestNewRedisLockValidates(t *testing.T) {
	if _, err := NewRedisLock(nil, "k", time.Second); err == nil {
		t.Fatal("expected nil store to fail")
	}
	if _, err := NewRedisLock(&memoryStore{}, "", time.Second); err == nil {
		t.Fatal("expected empty key to fail")
	}
}
