// Package cluster replicates the featured rotation across reelserver nodes
// with Raft, so every node features the same projects at the same time.
package cluster

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/hashicorp/raft"
)

func init() {
	// Register types for gob encoding/decoding
	gob.Register(AdvanceWindowCommand{})
	gob.Register(InitializeCommand{})
}

// ClusterState is the rotation state shared by all nodes.
type ClusterState struct {
	// Position is the index of the first featured project.
	Position int
	// SequenceNumber counts advances since initialization.
	SequenceNumber uint64
	// TotalProjects is the catalog size the leader rotated over.
	TotalProjects int
}

// CommandType identifies the type of Raft command.
type CommandType uint8

const (
	// CommandAdvanceWindow advances the rotation by one project.
	CommandAdvanceWindow CommandType = 1
	// CommandInitialize initializes the FSM state.
	CommandInitialize CommandType = 2
)

// Command represents a Raft log command.
type Command struct {
	Type CommandType
	Data any
}

// AdvanceWindowCommand advances the rotation. TotalProjects carries the
// leader's current catalog size so a reloaded catalog takes effect.
type AdvanceWindowCommand struct {
	TotalProjects int
}

// InitializeCommand sets the initial state.
type InitializeCommand struct {
	State ClusterState
}

// RotationFSM implements raft.FSM for the rotation state.
type RotationFSM struct {
	mu     sync.RWMutex
	state  ClusterState
	logger *slog.Logger
}

// NewRotationFSM creates a new RotationFSM.
func NewRotationFSM(logger *slog.Logger) *RotationFSM {
	return &RotationFSM{logger: logger}
}

// Apply applies a Raft log entry to the FSM.
func (f *RotationFSM) Apply(log *raft.Log) any {
	var cmd Command
	if err := gob.NewDecoder(bytes.NewReader(log.Data)).Decode(&cmd); err != nil {
		f.logger.Error("failed to decode command", "error", err)
		return fmt.Errorf("decode command: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch cmd.Type {
	case CommandAdvanceWindow:
		return f.applyAdvanceWindow(cmd.Data)
	case CommandInitialize:
		return f.applyInitialize(cmd.Data)
	default:
		f.logger.Error("unknown command type", "type", cmd.Type)
		return fmt.Errorf("unknown command type: %d", cmd.Type)
	}
}

func (f *RotationFSM) applyAdvanceWindow(data any) any {
	advCmd, ok := data.(AdvanceWindowCommand)
	if !ok {
		return fmt.Errorf("invalid advance window command data")
	}

	if advCmd.TotalProjects > 0 {
		f.state.TotalProjects = advCmd.TotalProjects
	}
	if f.state.TotalProjects > 0 {
		f.state.Position = (f.state.Position + 1) % f.state.TotalProjects
	} else {
		f.state.Position = 0
	}
	f.state.SequenceNumber++

	f.logger.Debug("advanced rotation", "position", f.state.Position, "sequence", f.state.SequenceNumber)
	return nil
}

func (f *RotationFSM) applyInitialize(data any) any {
	initCmd, ok := data.(InitializeCommand)
	if !ok {
		return fmt.Errorf("invalid initialize command data")
	}

	f.state = initCmd.State
	f.logger.Info("initialized FSM state", "total_projects", f.state.TotalProjects)
	return nil
}

// Snapshot returns an FSMSnapshot for creating a point-in-time snapshot.
func (f *RotationFSM) Snapshot() (raft.FSMSnapshot, error) {
	return &fsmSnapshot{state: f.GetState()}, nil
}

// Restore restores the FSM state from a snapshot.
func (f *RotationFSM) Restore(snapshot io.ReadCloser) error {
	defer snapshot.Close()

	var state ClusterState
	if err := gob.NewDecoder(snapshot).Decode(&state); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	f.mu.Lock()
	f.state = state
	f.mu.Unlock()

	f.logger.Info("restored FSM state from snapshot", "position", state.Position, "total_projects", state.TotalProjects)
	return nil
}

// GetState returns a copy of the current FSM state.
func (f *RotationFSM) GetState() ClusterState {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state
}

// fsmSnapshot implements raft.FSMSnapshot.
type fsmSnapshot struct {
	state ClusterState
}

// Persist writes the snapshot to the given sink.
func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s.state); err != nil {
		sink.Cancel()
		return fmt.Errorf("encode snapshot: %w", err)
	}

	if _, err := sink.Write(buf.Bytes()); err != nil {
		sink.Cancel()
		return fmt.Errorf("write snapshot: %w", err)
	}

	return sink.Close()
}

// Release releases any resources held by the snapshot.
func (s *fsmSnapshot) Release() {}

// EncodeCommand encodes a command for Raft submission.
func EncodeCommand(cmd Command) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(cmd); err != nil {
		return nil, fmt.Errorf("encode command: %w", err)
	}
	return buf.Bytes(), nil
}
