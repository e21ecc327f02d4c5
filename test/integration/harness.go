// Package integration provides integration testing utilities for reelserver.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/grafov/m3u8"
)

// clipSize matches the byte-range scenarios the tests replay.
const clipSize = 1_000_000

// TestHarness manages reelserver processes over a temporary media directory.
type TestHarness struct {
	t        *testing.T
	mediaDir string
	clip     []byte
	nodes    []*Node
}

// Node is a running reelserver process.
type Node struct {
	ID       string
	HTTPPort int
	RaftAddr string
	Cmd      *exec.Cmd
	Cancel   context.CancelFunc
}

// NewTestHarness writes videos 1..count into a fresh media directory.
func NewTestHarness(t *testing.T, count int) *TestHarness {
	t.Helper()

	dir := t.TempDir()
	clip := make([]byte, clipSize)
	for i := range clip {
		clip[i] = byte(i % 251)
	}

	for i := 1; i <= count; i++ {
		path := filepath.Join(dir, fmt.Sprintf("Edit %d.mp4", i))
		if err := os.WriteFile(path, clip, 0644); err != nil {
			t.Fatalf("failed to write test video: %v", err)
		}
	}

	return &TestHarness{t: t, mediaDir: dir, clip: clip}
}

// Clip returns the bytes every test video holds.
func (h *TestHarness) Clip() []byte {
	return h.clip
}

// StartNode launches reelserver on a free port with extra flags.
func (h *TestHarness) StartNode(id string, extraArgs ...string) *Node {
	h.t.Helper()

	port := findAvailablePort(h.t)
	args := append([]string{
		"--port", strconv.Itoa(port),
		"--media-root", h.mediaDir,
	}, extraArgs...)

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, h.findBinary(), args...)

	// Capture output for debugging
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		cancel()
		h.t.Fatalf("failed to start reelserver: %v", err)
	}

	node := &Node{ID: id, HTTPPort: port, Cmd: cmd, Cancel: cancel}
	h.nodes = append(h.nodes, node)

	waitForServer(h.t, node.URL("/health"), 15*time.Second)
	h.t.Logf("reelserver %s started on port %d", id, port)
	return node
}

// StartCluster launches count nodes forming one Raft cluster.
func (h *TestHarness) StartCluster(count int, extraArgs ...string) []*Node {
	h.t.Helper()

	peers := make([]string, count)
	for i := range peers {
		peers[i] = fmt.Sprintf("127.0.0.1:%d", findAvailablePort(h.t))
	}

	var peerArgs []string
	for _, p := range peers {
		peerArgs = append(peerArgs, "--peers", p)
	}

	nodes := make([]*Node, count)
	for i := range nodes {
		id := fmt.Sprintf("node%d", i+1)
		args := append([]string{"--raft-id", id, "--raft-bind", peers[i]}, peerArgs...)
		nodes[i] = h.StartNode(id, append(args, extraArgs...)...)
		nodes[i].RaftAddr = peers[i]
	}
	return nodes
}

// URL returns the absolute URL of path on n.
func (n *Node) URL(path string) string {
	return fmt.Sprintf("http://localhost:%d%s", n.HTTPPort, path)
}

// Get issues a GET with the given headers and returns the response and body.
func (h *TestHarness) Get(n *Node, path string, headers map[string]string) (*http.Response, []byte) {
	h.t.Helper()

	req, err := http.NewRequest(http.MethodGet, n.URL(path), nil)
	if err != nil {
		h.t.Fatalf("failed to build request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		h.t.Fatalf("GET %s failed: %v", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("failed to read %s body: %v", path, err)
	}
	return resp, body
}

// FetchReel fetches and decodes the showreel playlist.
func (h *TestHarness) FetchReel(n *Node) *m3u8.MediaPlaylist {
	h.t.Helper()

	resp, body := h.Get(n, "/reel.m3u8", nil)
	if resp.StatusCode != http.StatusOK {
		h.t.Fatalf("unexpected reel status code: %d", resp.StatusCode)
	}

	p, listType, err := m3u8.DecodeFrom(bytes.NewReader(body), true)
	if err != nil {
		h.t.Fatalf("failed to decode reel: %v", err)
	}
	if listType != m3u8.MEDIA {
		h.t.Fatalf("expected media playlist, got %v", listType)
	}
	return p.(*m3u8.MediaPlaylist)
}

// Health fetches the health stats of n. Errors are returned rather than
// fatal so callers can poll nodes that are going away.
func (h *TestHarness) Health(n *Node) (map[string]any, error) {
	resp, err := http.Get(n.URL("/health"))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var health struct {
		Stats map[string]any `json:"stats"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, err
	}
	return health.Stats, nil
}

// Leader returns the node whose health reports the Raft leader state.
func (h *TestHarness) Leader(nodes []*Node) (*Node, error) {
	for _, n := range nodes {
		stats, err := h.Health(n)
		if err != nil {
			continue
		}
		cluster, _ := stats["cluster"].(map[string]any)
		if cluster["state"] == "Leader" {
			return n, nil
		}
	}
	return nil, fmt.Errorf("no leader among %d nodes", len(nodes))
}

// StopNode stops n and waits for it to exit.
func (h *TestHarness) StopNode(n *Node) {
	h.t.Helper()

	n.Cancel()
	_ = n.Cmd.Wait()
	h.t.Logf("stopped %s", n.ID)
}

// Cleanup stops all running nodes.
func (h *TestHarness) Cleanup() {
	for _, n := range h.nodes {
		n.Cancel()
		_ = n.Cmd.Wait() // Ignore errors during cleanup
	}
}

// WaitForCondition polls until a condition is met or timeout occurs.
func (h *TestHarness) WaitForCondition(condition func() bool, timeout time.Duration, description string) {
	h.t.Helper()

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		if condition() {
			return
		}
		if time.Now().After(deadline) {
			h.t.Fatalf("timeout waiting for condition: %s", description)
		}
	}
}

// findBinary locates the reelserver binary.
func (h *TestHarness) findBinary() string {
	h.t.Helper()

	// Try several possible locations
	candidates := []string{
		"../../reelserver", // From test/integration
		"./reelserver",     // From project root
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, _ := filepath.Abs(path)
			return absPath
		}
	}

	h.t.Fatal("reelserver binary not found. Run 'go build -o reelserver ./cmd/reelserver' first")
	return ""
}

// waitForServer waits for a server to become available.
func waitForServer(t *testing.T, url string, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode < 500 {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}

	t.Fatalf("server at %s did not become ready within %v", url, timeout)
}

// findAvailablePort finds an available TCP port.
func findAvailablePort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("failed to find available port: %v", err)
	}
	defer listener.Close()

	return listener.Addr().(*net.TCPAddr).Port
}
