package cluster

import (
	"io"

	"github.com/hashicorp/go-hclog"
)

// newRaftLogger returns the hclog.Logger handed to Raft. Raft is chatty, so
// it stays silent unless the node runs verbose.
func newRaftLogger(w io.Writer, verbose bool) hclog.Logger {
	if !verbose || w == nil {
		return hclog.New(&hclog.LoggerOptions{
			Name:   "raft",
			Level:  hclog.Off,
			Output: io.Discard,
		})
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:   "raft",
		Level:  hclog.Debug,
		Output: w,
	})
}
