package kafka

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartitionCacheFirstPickRefreshes(t *testing.T) {
	var calls atomic.Int32
	cache := newPartitionCache(time.Minute, func(context.Context) (int32, error) {
		calls.Add(1)
		return 3, nil
	})

	p := cache.Pick(context.Background())

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int32(3), cache.Count())
	assert.GreaterOrEqual(t, p, int32(0))
	assert.Less(t, p, int32(3))
}

func TestPartitionCacheFreshSkipsLookup(t *testing.T) {
	var calls atomic.Int32
	cache := newPartitionCache(5*time.Minute, func(context.Context) (int32, error) {
		calls.Add(1)
		return 8, nil
	})
	cache.count.Store(4)
	cache.lastRefresh.Store(time.Now().UnixNano())

	for i := 0; i < 100; i++ {
		p := cache.Pick(context.Background())
		require.GreaterOrEqual(t, p, int32(0))
		require.Less(t, p, int32(4))
	}

	assert.Zero(t, calls.Load())
	assert.Equal(t, int32(4), cache.Count())
}

func TestPartitionCacheStaleRefreshesOnce(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	cache := newPartitionCache(5*time.Minute, func(context.Context) (int32, error) {
		calls.Add(1)
		<-release
		return 6, nil
	})
	cache.count.Store(2)
	cache.lastRefresh.Store(time.Now().Add(-6 * time.Minute).UnixNano())

	const senders = 50
	var wg sync.WaitGroup
	var finished atomic.Int32
	wg.Add(senders)
	for i := 0; i < senders; i++ {
		go func() {
			defer wg.Done()
			p := cache.Pick(context.Background())
			assert.GreaterOrEqual(t, p, int32(0))
			finished.Add(1)
		}()
	}

	// Every sender but the refresher proceeds with the stale count
	require.Eventually(t, func() bool {
		return finished.Load() == senders-1
	}, time.Second, time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int32(2), cache.Count())

	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int32(6), cache.Count())
}

func TestPartitionCacheKeepsCountOnError(t *testing.T) {
	now := time.Now()
	var calls atomic.Int32
	var refreshErrs []error
	cache := newPartitionCache(time.Minute, func(context.Context) (int32, error) {
		calls.Add(1)
		return 0, errors.New("metadata unavailable")
	})
	cache.now = func() time.Time { return now }
	cache.onRefresh = func(err error) { refreshErrs = append(refreshErrs, err) }
	cache.count.Store(5)

	cache.Pick(context.Background())
	assert.Equal(t, int32(5), cache.Count())
	require.Len(t, refreshErrs, 1)
	assert.Error(t, refreshErrs[0])

	// The failed attempt still counts as a refresh for the interval
	cache.Pick(context.Background())
	assert.Equal(t, int32(1), calls.Load())

	now = now.Add(time.Minute)
	cache.Pick(context.Background())
	assert.Equal(t, int32(2), calls.Load())
}

func TestPartitionCacheSinglePartition(t *testing.T) {
	cache := newPartitionCache(time.Minute, func(context.Context) (int32, error) {
		return 1, nil
	})

	for i := 0; i < 10; i++ {
		assert.Equal(t, int32(0), cache.Pick(context.Background()))
	}
}
