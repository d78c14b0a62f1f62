package kafka

import (
	"context"
	"math/rand"
	"sync/atomic"
	"time"
)

// partitionCounter looks up the current partition count of a topic
type partitionCounter func(ctx context.Context) (int32, error)

// PartitionCache holds the last known partition count of a topic.
//
// Every send reads the count without blocking. Once the count is older than
// the refresh interval, the first sender to swap the refresh timestamp
// performs the lookup; concurrent senders keep using the stale count.
type PartitionCache struct {
	count       atomic.Int32
	lastRefresh atomic.Int64 // unix nanos, zero until the first refresh

	interval time.Duration
	lookup   partitionCounter
	now      func() time.Time

	// onRefresh observes the outcome of every lookup
	onRefresh func(err error)
}

func newPartitionCache(interval time.Duration, lookup partitionCounter) *PartitionCache {
	c := &PartitionCache{
		interval: interval,
		lookup:   lookup,
		now:      time.Now,
	}
	c.count.Store(1)
	return c
}

// Count returns the cached partition count
func (c *PartitionCache) Count() int32 {
	return c.count.Load()
}

// Pick returns a partition for the next record, refreshing the count first
// when it is stale and no other caller is already doing so
func (c *PartitionCache) Pick(ctx context.Context) int32 {
	c.maybeRefresh(ctx)

	n := c.count.Load()
	if n <= 1 {
		return 0
	}
	return rand.Int31n(n)
}

func (c *PartitionCache) maybeRefresh(ctx context.Context) {
	if !c.claimRefresh() {
		return
	}

	n, err := c.lookup(ctx)
	if err == nil && n > 0 {
		c.count.Store(n)
	}
	if c.onRefresh != nil {
		c.onRefresh(err)
	}
}

// claimRefresh reports whether the caller won the right to refresh
func (c *PartitionCache) claimRefresh() bool {
	now := c.now().UnixNano()
	last := c.lastRefresh.Load()
	if last != 0 && now-last < int64(c.interval) {
		return false
	}
	return c.lastRefresh.CompareAndSwap(last, now)
}
