package redis

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/crawl-pipeline/internal/jobs"
)

func newTestCounter(t *testing.T) (*Counter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewClient(Config{Address: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	counter, err := NewCounter(client)
	require.NoError(t, err)
	return counter, mr
}

func TestNewClientRequiresAddress(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{})
	require.ErrorIs(t, err, ErrEmptyAddress)
}

func TestCounterSeedAndGet(t *testing.T) {
	t.Parallel()

	counter, mr := newTestCounter(t)
	ctx := context.Background()

	_, found, err := counter.Get(ctx, 12)
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, counter.Seed(ctx, 12, 1))
	v, found, err := counter.Get(ctx, 12)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(1), v)

	stored, err := mr.Get(jobs.PendingKey(12))
	require.NoError(t, err)
	require.Equal(t, "1", stored)
}

func TestCounterConcurrentDecrements(t *testing.T) {
	t.Parallel()

	counter, _ := newTestCounter(t)
	ctx := context.Background()
	require.NoError(t, counter.Seed(ctx, 3, 50))

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := counter.Decrement(ctx, 3)
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	v, _, err := counter.Get(ctx, 3)
	require.NoError(t, err)
	require.Zero(t, v)
}

func TestCounterErrorsArePrimary(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	counter, err := NewCounter(client)
	require.NoError(t, err)
	mr.Close()

	_, err = counter.Decrement(context.Background(), 1)
	require.ErrorIs(t, err, jobs.ErrPrimaryStore)
}
