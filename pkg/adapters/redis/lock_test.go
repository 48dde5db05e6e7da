package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/scenaria/pkg/adapters/memory"
	"github.com/aretw0/scenaria/pkg/adapters/redis"
	"github.com/aretw0/scenaria/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocker_LockUnlock(t *testing.T) {
	mr, client := newClient(t)
	locker := redis.NewLocker(client, "test:")
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "boiler", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:lock:boiler"), "lock key should be set")

	require.NoError(t, unlock(ctx))
	assert.False(t, mr.Exists("test:lock:boiler"), "lock key should be removed after unlock")
}

func TestLocker_Contention(t *testing.T) {
	_, client := newClient(t)
	first := redis.NewLocker(client, "test:")
	second := redis.NewLocker(client, "test:")
	ctx := context.Background()

	unlock, err := first.Lock(ctx, "boiler", 5*time.Second)
	require.NoError(t, err)

	short, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
	defer cancel()
	_, err = second.Lock(short, "boiler", 5*time.Second)
	require.ErrorIs(t, err, redis.ErrLockAcquire)

	require.NoError(t, unlock(ctx))
	unlock2, err := second.Lock(ctx, "boiler", 5*time.Second)
	require.NoError(t, err)
	require.NoError(t, unlock2(ctx))
}

func TestLocker_UnlockAfterExpiryKeepsNewOwner(t *testing.T) {
	mr, client := newClient(t)
	locker := redis.NewLocker(client, "test:")
	ctx := context.Background()

	stale, err := locker.Lock(ctx, "boiler", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	fresh, err := locker.Lock(ctx, "boiler", 5*time.Second)
	require.NoError(t, err)

	require.NoError(t, stale(ctx))
	assert.True(t, mr.Exists("test:lock:boiler"), "stale unlock must not release the new owner's lock")
	require.NoError(t, fresh(ctx))
}

func TestLocker_WithSessionManager(t *testing.T) {
	mr, client := newClient(t)
	m := session.NewManager(memory.NewRepository(),
		session.WithLocker(redis.NewLocker(client, "test:")),
		session.WithLockTTL(time.Second),
	)

	_, err := m.OpenOrCreate(context.Background(), "boiler", "Boiler")
	require.NoError(t, err)
	assert.False(t, mr.Exists("test:lock:boiler"))
}
