package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stashd/stashd/internal/logger"
	"github.com/stashd/stashd/pkg/objectstore"
)

// cleanupTimeout bounds each background object removal.
const cleanupTimeout = 30 * time.Second

// cleaner runs best-effort object removals after the primary metadata
// mutation has committed.
//
// Removal failures never surface to the caller: the metadata row is already
// gone, so the worst case is an orphaned object that the backend's lifecycle
// rules or an offline sweep eventually reclaims. Failures are logged and
// counted.
type cleaner struct {
	gateway objectstore.Gateway

	wg     sync.WaitGroup
	failed atomic.Uint64

	mu     sync.Mutex
	closed bool
}

func newCleaner(gateway objectstore.Gateway) *cleaner {
	return &cleaner{gateway: gateway}
}

// enqueue schedules the removal of every key in the background. Keys arriving
// after close are dropped with a warning.
func (c *cleaner) enqueue(keys []string) {
	if len(keys) == 0 {
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		logger.Warn("cleanup: dropping %d object removals enqueued after shutdown", len(keys))
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		for _, key := range keys {
			c.remove(key)
		}
	}()
}

func (c *cleaner) remove(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	if err := c.gateway.Remove(ctx, key); err != nil {
		c.failed.Add(1)
		logger.Warn("cleanup: failed to remove object %s: %v", key, err)
		return
	}
	logger.Debug("cleanup: removed object %s", key)
}

// failures reports how many removals have failed since startup.
func (c *cleaner) failures() uint64 {
	return c.failed.Load()
}

// close waits for in-flight removals to finish.
func (c *cleaner) close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.wg.Wait()
}
