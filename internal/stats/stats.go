// Package stats counts video plays per node.
package stats

import "sync"

// Counter is a concurrency-safe per-video view counter.
type Counter struct {
	mu    sync.RWMutex
	views map[string]uint64
	total uint64
}

// NewCounter returns an empty Counter.
func NewCounter() *Counter {
	return &Counter{views: make(map[string]uint64)}
}

// RecordView adds one view for videoID.
func (c *Counter) RecordView(videoID string) {
	c.mu.Lock()
	c.views[videoID]++
	c.total++
	c.mu.Unlock()
}

// Views returns the count for videoID.
func (c *Counter) Views(videoID string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.views[videoID]
}

// Snapshot returns a copy of all counts.
func (c *Counter) Snapshot() map[string]uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]uint64, len(c.views))
	for k, v := range c.views {
		out[k] = v
	}
	return out
}

// Total returns the number of views across all videos.
func (c *Counter) Total() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.total
}
