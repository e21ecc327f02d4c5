// Package playlist implements the featured-project rotation and the
// showreel playlist built from it.
package playlist

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/agleyzer/reelserver/internal/catalog"
)

// Rotation is a sliding window over the catalog that advances by one
// project per interval, wrapping at the end.
type Rotation struct {
	mu         sync.RWMutex
	projects   []catalog.Project
	windowSize int
	position   int
	sequence   uint64
	interval   time.Duration
	logger     *slog.Logger
}

// NewRotation creates a rotation. An empty project list is allowed; the
// window is simply empty until SetProjects supplies some.
func NewRotation(projects []catalog.Project, windowSize int, interval time.Duration, logger *slog.Logger) (*Rotation, error) {
	if windowSize <= 0 {
		return nil, fmt.Errorf("window size must be positive")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("rotation interval must be positive")
	}

	if windowSize > len(projects) && len(projects) > 0 {
		logger.Warn("window size larger than project count, showing all projects",
			"windowSize", windowSize,
			"projects", len(projects),
		)
	}

	return &Rotation{
		projects:   append([]catalog.Project(nil), projects...),
		windowSize: windowSize,
		interval:   interval,
		logger:     logger,
	}, nil
}

// Window returns the projects currently featured.
func (r *Rotation) Window() []catalog.Project {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.windowFrom(r.position, r.visibleSize())
}

// Advance moves the window forward by one project.
func (r *Rotation) Advance() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.projects) > 0 {
		r.position = (r.position + 1) % len(r.projects)
	}
	r.sequence++

	r.logger.Debug("advanced rotation",
		"position", r.position,
		"sequence", r.sequence,
	)
}

// SetPosition overwrites the window position, as replicated from a cluster
// leader. pos is reduced modulo the local project count.
func (r *Rotation) SetPosition(pos int, sequence uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n := len(r.projects); n > 0 {
		r.position = ((pos % n) + n) % n
	} else {
		r.position = 0
	}
	r.sequence = sequence
}

// SetProjects replaces the rotated projects, keeping the position when it
// is still in range.
func (r *Rotation) SetProjects(projects []catalog.Project) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.projects = append([]catalog.Project(nil), projects...)
	if r.position >= len(r.projects) {
		r.position = 0
	}

	r.logger.Info("rotation projects updated", "projects", len(r.projects))
}

// Len returns the number of projects in rotation.
func (r *Rotation) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.projects)
}

// Interval returns how often the rotation advances.
func (r *Rotation) Interval() time.Duration {
	return r.interval
}

// StartAutoAdvance advances the window every interval until ctx is done.
func (r *Rotation) StartAutoAdvance(ctx context.Context) {
	r.logger.Info("starting rotation auto-advance",
		"interval", r.interval,
		"windowSize", r.windowSize,
		"projects", r.Len(),
	)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("stopping rotation auto-advance")
			return
		case <-ticker.C:
			r.Advance()
		}
	}
}

// Stats returns current statistics about the rotation.
func (r *Rotation) Stats() map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]interface{}{
		"window_size":      r.visibleSize(),
		"current_position": r.position,
		"sequence_number":  r.sequence,
		"total_projects":   len(r.projects),
		"interval_seconds": r.interval.Seconds(),
	}
}

// visibleSize is the window size clamped to the project count.
// Caller must hold at least a read lock.
func (r *Rotation) visibleSize() int {
	if r.windowSize > len(r.projects) {
		return len(r.projects)
	}
	return r.windowSize
}

// windowFrom returns size projects starting at start, wrapping around.
// Caller must hold at least a read lock.
func (r *Rotation) windowFrom(start, size int) []catalog.Project {
	total := len(r.projects)
	window := make([]catalog.Project, 0, size)

	for i := 0; i < size; i++ {
		window = append(window, r.projects[(start+i)%total])
	}

	return window
}
