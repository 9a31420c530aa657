package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryLockStore struct {
	values map[string]string
	err    error
}

func newMemoryLockStore() *memoryLockStore {
	return &memoryLockStore{values: map[string]string{}}
}

func (m *memoryLockStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memoryLockStore) DelIfValue(_ context.Context, key, value string) (bool, error) {
	if m.values[key] != value {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

const sweepKey = "nest:lock:cron-worker:dev"

func TestRedisLockIsExclusive(t *testing.T) {
	ctx := context.Background()
	store := newMemoryLockStore()
	first, err := NewRedisLock(store, sweepKey, time.Minute)
	require.NoError(t, err)
	second, err := NewRedisLock(store, sweepKey, time.Minute)
	require.NoError(t, err)

	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, second.Release(ctx))
	assert.Contains(t, store.values, sweepKey, "a worker that never acquired must not free the lock")

	require.NoError(t, first.Release(ctx))
	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLockExpiredLeaseDoesNotFreeSuccessor(t *testing.T) {
	ctx := context.Background()
	store := newMemoryLockStore()
	stale, _ := NewRedisLock(store, sweepKey, time.Minute)
	fresh, _ := NewRedisLock(store, sweepKey, time.Minute)

	ok, err := stale.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// Lease expires and another worker takes over.
	delete(store.values, sweepKey)
	ok, err = fresh.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, stale.Release(ctx))
	assert.Contains(t, store.values, sweepKey)
}

func TestRedisLockAcquireError(t *testing.T) {
	store := newMemoryLockStore()
	store.err = errors.New("i/o timeout")
	lock, _ := NewRedisLock(store, sweepKey, 0)

	_, err := lock.Acquire(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), sweepKey)
	assert.Equal(t, defaultLockTTL, lock.ttl)
}

func TestNewRedisLockValidates(t *testing.T) {
	_, err := NewRedisLock(nil, "key", 0)
	assert.Error(t, err)
	_, err = NewRedisLock(newMemoryLockStore(), "", 0)
	assert.Error(t, err)
}
