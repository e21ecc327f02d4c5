package cluster

import (
	"context"
	"log/slog"
	"time"
)

// Rotation is the local rotation a node keeps in step with the cluster.
type Rotation interface {
	Len() int
	SetPosition(pos int, sequence uint64)
}

// replicator is the part of Manager that Follow drives.
type replicator interface {
	IsLeader() bool
	GetState() ClusterState
	Initialize(state ClusterState) error
	AdvanceWindow(totalProjects int) error
}

// Follow replaces the rotation's own ticker in cluster mode. On every tick
// the leader advances the replicated window, and every node copies the
// replicated position into rot. It returns when ctx is done.
func Follow(ctx context.Context, m replicator, rot Rotation, interval time.Duration, logger *slog.Logger) {
	logger.Info("following cluster rotation", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("stopping cluster rotation")
			return
		case <-ticker.C:
			followTick(m, rot, logger)
		}
	}
}

func followTick(m replicator, rot Rotation, logger *slog.Logger) {
	if m.IsLeader() {
		state := m.GetState()
		if state.SequenceNumber == 0 && state.TotalProjects == 0 {
			if err := m.Initialize(ClusterState{TotalProjects: rot.Len()}); err != nil {
				logger.Warn("failed to initialize rotation state", "error", err)
				return
			}
		}
		if err := m.AdvanceWindow(rot.Len()); err != nil {
			// Leadership may have moved between the check and the apply.
			logger.Warn("failed to advance rotation", "error", err)
		}
	}

	state := m.GetState()
	rot.SetPosition(state.Position, state.SequenceNumber)
}
