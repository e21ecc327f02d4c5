package cluster

import (
	"errors"
	"fmt"
	"io"
	"net"
	"slices"
	"time"
)

// Raft timing used when Config leaves a field zero.
const (
	DefaultHeartbeatTimeout  = time.Second
	DefaultElectionTimeout   = time.Second
	DefaultSnapshotInterval  = 2 * time.Minute
	DefaultSnapshotThreshold = 8192
)

// Config describes one node of the rotation cluster. Raft server ids are
// the peer addresses, so BindAddr must appear in Peers for the node to vote.
type Config struct {
	// RaftID names the node in logs and stats.
	RaftID   string
	BindAddr string
	// Peers lists every voter's Raft address, this node included.
	Peers []string

	HeartbeatTimeout  time.Duration
	ElectionTimeout   time.Duration
	SnapshotInterval  time.Duration
	SnapshotThreshold uint64

	// LogOutput receives Raft's own logs when Verbose is set.
	LogOutput io.Writer
	Verbose   bool
}

// Validate reports every problem with c, naming the configuration keys
// involved, then fills in default timings.
func (c *Config) Validate() error {
	var errs []error

	if c.RaftID == "" {
		errs = append(errs, errors.New("cluster.raft_id is required"))
	}

	switch {
	case c.BindAddr == "":
		errs = append(errs, errors.New("cluster.bind is required"))
	case !validAddr(c.BindAddr):
		errs = append(errs, fmt.Errorf("cluster.bind %q is not host:port", c.BindAddr))
	}

	if len(c.Peers) == 0 {
		errs = append(errs, errors.New("cluster.peers must list at least one address"))
	}
	for _, peer := range c.Peers {
		if !validAddr(peer) {
			errs = append(errs, fmt.Errorf("cluster.peers entry %q is not host:port", peer))
		}
	}
	if c.BindAddr != "" && len(c.Peers) > 0 && !slices.Contains(c.Peers, c.BindAddr) {
		errs = append(errs, fmt.Errorf("cluster.peers must include cluster.bind %q", c.BindAddr))
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}

	if c.HeartbeatTimeout == 0 {
		c.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	if c.ElectionTimeout == 0 {
		c.ElectionTimeout = DefaultElectionTimeout
	}
	if c.SnapshotInterval == 0 {
		c.SnapshotInterval = DefaultSnapshotInterval
	}
	if c.SnapshotThreshold == 0 {
		c.SnapshotThreshold = DefaultSnapshotThreshold
	}
	return nil
}

func validAddr(addr string) bool {
	host, port, err := net.SplitHostPort(addr)
	return err == nil && host != "" && port != ""
}
