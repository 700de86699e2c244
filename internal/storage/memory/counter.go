package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/crawl-pipeline/internal/jobs"
)

// Counter is an in-process jobs.PendingCounter keyed like the cache.
type Counter struct {
	mu     sync.Mutex
	values map[string]int64
}

// NewCounter constructs an empty Counter.
func NewCounter() *Counter {
	return &Counter{values: make(map[string]int64)}
}

// Seed sets the counter to value.
func (c *Counter) Seed(_ context.Context, jobID int64, value int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[jobs.PendingKey(jobID)] = value
	return nil
}

// Decrement atomically lowers the counter and returns the new value.
func (c *Counter) Decrement(_ context.Context, jobID int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := jobs.PendingKey(jobID)
	c.values[key]--
	return c.values[key], nil
}

// Get returns the counter and whether it exists.
func (c *Counter) Get(_ context.Context, jobID int64) (int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[jobs.PendingKey(jobID)]
	return v, ok, nil
}
