package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisLocker(t *testing.T, opts Options) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLocker(client, opts), mr
}

func TestRedisLockerExclusive(t *testing.T) {
	locker, mr := newRedisLocker(t, Options{Wait: 50 * time.Millisecond, Retry: 10 * time.Millisecond})
	ctx := context.Background()
	key := TicketKey("t1", "ticket-1")

	release, err := locker.Lock(ctx, key)
	require.NoError(t, err)
	assert.True(t, mr.Exists(key))

	_, err = locker.Lock(ctx, key)
	assert.True(t, errors.Is(err, ErrNotAcquired))

	release()
	assert.False(t, mr.Exists(key))

	release2, err := locker.Lock(ctx, key)
	require.NoError(t, err)
	release2()
}

func TestRedisLockerDoesNotReleaseForeignToken(t *testing.T) {
	locker, mr := newRedisLocker(t, Options{Wait: 50 * time.Millisecond, TTL: time.Second})
	ctx := context.Background()
	key := TicketKey("t1", "ticket-2")

	release, err := locker.Lock(ctx, key)
	require.NoError(t, err)

	// lease expired and another holder took over
	mr.FastForward(2 * time.Second)
	require.NoError(t, mr.Set(key, "someone-else"))

	release()
	value, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "someone-else", value)
}

func TestLocalLockerSerializes(t *testing.T) {
	locker := NewLocalLocker(Options{Wait: time.Second})
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locker.Lock(ctx, "k")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
	assert.Empty(t, locker.entries)
}

func TestLocalLockerTimesOut(t *testing.T) {
	locker := NewLocalLocker(Options{Wait: 20 * time.Millisecond})
	ctx := context.Background()

	release, err := locker.Lock(ctx, "k")
	require.NoError(t, err)
	defer release()

	_, err = locker.Lock(ctx, "k")
	assert.True(t, errors.Is(err, ErrNotAcquired))
}
