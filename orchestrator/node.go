// Copyright 2025 Sonic Labs
// This file is part of Weft Testing Infrastructure for WASM Ledgers
//
// Weft is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Weft is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Weft. If not, see <http://www.gnu.org/licenses/>.

// Package orchestrator manages external ledger node processes for end-to-end
// runs: starting a node binary, waiting for readiness, submitting operations
// over its HTTP interface, and tearing everything down again.
package orchestrator

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/0xsoniclabs/weft/ledger"
	"github.com/0xsoniclabs/weft/logger"
)

// ErrNodeStartTimeout indicates a node did not become ready within its
// startup deadline. The process is force-killed before this is returned.
var ErrNodeStartTimeout = errors.New("node did not become ready in time")

// ErrNodeUnresponsive indicates a started node stopped answering requests
// and all retries were used up.
var ErrNodeUnresponsive = errors.New("node is unresponsive")

// NodeState is the lifecycle state of a managed node process.
type NodeState int

const (
	Starting NodeState = iota
	Ready
	Stopping
	Stopped
	Failed
)

func (s NodeState) String() string {
	switch s {
	case Starting:
		return "starting"
	case Ready:
		return "ready"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// NodeConfig describes how to start and talk to a node process.
type NodeConfig struct {
	Binary         string        // node executable
	Args           []string      // extra arguments, placed before --port and --dir
	Port           int           // HTTP port the node must listen on
	ReadyTimeout   time.Duration // startup deadline, default 30s
	RequestTimeout time.Duration // per-request deadline, default 5s
	Retries        int           // request retries before giving up, default 3
	TmpDir         string        // parent of the node's data directory
	Log            logger.Logger
}

// Resources are the external resources held by a node: its data directory
// and its port. Release is idempotent.
type Resources struct {
	TmpDir string
	Port   int

	released bool
}

// Release removes the data directory and frees the port reservation.
func (r *Resources) Release() error {
	if r.released {
		return nil
	}
	r.released = true
	if r.TmpDir == "" {
		return nil
	}
	if err := os.RemoveAll(r.TmpDir); err != nil {
		return errors.Wrap(err, "cannot remove node directory")
	}
	return nil
}

// Node is a managed external node process. All methods are safe for
// concurrent use.
type Node struct {
	cfg       NodeConfig
	cmd       *exec.Cmd
	client    *http.Client
	base      string
	resources *Resources

	mu    sync.Mutex
	state NodeState
}

// StartNode launches the node binary and polls its status endpoint until it
// reports ready. On timeout the process is killed, its resources are
// released, and ErrNodeStartTimeout is returned.
func StartNode(ctx context.Context, cfg NodeConfig) (*Node, error) {
	if cfg.Binary == "" {
		return nil, errors.New("node binary must be configured")
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 30 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}

	dir, err := os.MkdirTemp(cfg.TmpDir, "weft-node-*")
	if err != nil {
		return nil, errors.Wrap(err, "cannot create node directory")
	}
	node := &Node{
		cfg:       cfg,
		client:    &http.Client{Timeout: cfg.RequestTimeout},
		base:      fmt.Sprintf("http://127.0.0.1:%d", cfg.Port),
		resources: &Resources{TmpDir: dir, Port: cfg.Port},
		state:     Starting,
	}

	args := append(append([]string{}, cfg.Args...),
		fmt.Sprintf("--port=%d", cfg.Port),
		fmt.Sprintf("--dir=%s", dir),
	)
	node.cmd = exec.Command(cfg.Binary, args...)
	node.cmd.Stdout = io.Discard
	node.cmd.Stderr = io.Discard
	if err := node.cmd.Start(); err != nil {
		_ = node.resources.Release()
		return nil, errors.Wrap(err, "cannot start node process")
	}
	node.logf("node started: pid %d, port %d", node.cmd.Process.Pid, cfg.Port)

	if err := node.awaitReady(ctx); err != nil {
		node.abortStart()
		return nil, err
	}
	node.setState(Ready)
	return node, nil
}

// awaitReady polls the status endpoint until the node answers or the
// deadline passes.
func (n *Node) awaitReady(ctx context.Context) error {
	deadline := time.Now().Add(n.cfg.ReadyTimeout)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		resp, err := n.client.Get(n.base + "/status")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return ErrNodeStartTimeout
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// State returns the current lifecycle state.
func (n *Node) State() NodeState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

func (n *Node) setState(state NodeState) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.state = state
}

// Resources returns the external resources held by this node.
func (n *Node) Resources() *Resources {
	return n.resources
}

// submission mirrors the node's transaction response body.
type submission struct {
	Accepted bool   `json:"accepted"`
	Reason   uint8  `json:"reason"`
	GasUsed  uint64 `json:"gasUsed"`
	Height   uint64 `json:"height"`
}

// Submit sends an encoded operation to the node and returns its verdict.
// Transient transport failures are retried; once the retry budget is used
// up, ErrNodeUnresponsive is returned.
func (n *Node) Submit(ctx context.Context, op ledger.Operation) (ledger.Outcome, error) {
	input, err := ledger.EncodeOperation(op)
	if err != nil {
		return ledger.Outcome{}, err
	}
	body, err := n.post(ctx, "/tx", hex.EncodeToString(input))
	if err != nil {
		return ledger.Outcome{}, err
	}
	var result submission
	if err := json.Unmarshal(body, &result); err != nil {
		return ledger.Outcome{}, errors.Wrap(err, "malformed node response")
	}
	outcome := ledger.Outcome{Accepted: result.Accepted, GasUsed: result.GasUsed}
	if !result.Accepted {
		outcome.Reason = ledger.Reason(result.Reason)
	}
	return outcome, nil
}

// Query reads a raw storage key from the node.
func (n *Node) Query(ctx context.Context, key string) ([]byte, bool, error) {
	body, err := n.get(ctx, "/storage?key="+url.QueryEscape(key))
	if err != nil {
		return nil, false, err
	}
	var result struct {
		Found bool   `json:"found"`
		Value string `json:"value"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, false, errors.Wrap(err, "malformed node response")
	}
	if !result.Found {
		return nil, false, nil
	}
	value, err := hex.DecodeString(result.Value)
	if err != nil {
		return nil, false, errors.Wrap(err, "malformed node response")
	}
	return value, true, nil
}

// Height reads the node's current chain height.
func (n *Node) Height(ctx context.Context) (uint64, error) {
	body, err := n.get(ctx, "/status")
	if err != nil {
		return 0, err
	}
	var result struct {
		Height uint64 `json:"height"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, errors.Wrap(err, "malformed node response")
	}
	return result.Height, nil
}

// WaitIncluded polls the node until its height passes the given height, so
// a submitted operation is known to be applied.
func (n *Node) WaitIncluded(ctx context.Context, height uint64) error {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	misses := 0
	for {
		current, err := n.Height(ctx)
		if err == nil && current >= height {
			return nil
		}
		if err != nil {
			misses++
			if misses > n.cfg.Retries {
				return ErrNodeUnresponsive
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Stop shuts the node down, first gracefully, then by force, and releases
// its resources.
func (n *Node) Stop() error {
	if state := n.State(); state == Stopped || state == Failed {
		return nil
	}
	n.setState(Stopping)
	n.logf("stopping node: pid %d", n.cmd.Process.Pid)

	_ = n.cmd.Process.Signal(os.Interrupt)
	done := make(chan error, 1)
	go func() {
		done <- n.cmd.Wait()
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		n.logf("node did not exit, killing: pid %d", n.cmd.Process.Pid)
		n.kill()
		<-done
	}
	n.setState(Stopped)
	return n.resources.Release()
}

func (n *Node) kill() {
	if n.cmd.Process != nil {
		_ = n.cmd.Process.Kill()
	}
}

// abortStart tears down a node whose startup failed. The process is killed
// and reaped, so no failed start leaves a defunct child behind.
func (n *Node) abortStart() {
	n.kill()
	_ = n.cmd.Wait()
	n.setState(Failed)
	_ = n.resources.Release()
}

func (n *Node) get(ctx context.Context, path string) ([]byte, error) {
	return n.request(ctx, http.MethodGet, path, "")
}

func (n *Node) post(ctx context.Context, path, payload string) ([]byte, error) {
	return n.request(ctx, http.MethodPost, path, payload)
}

// request performs one HTTP exchange with bounded retries on transport
// errors. HTTP level errors are not retried, the node answered.
func (n *Node) request(ctx context.Context, method, path, payload string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= n.cfg.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
			}
		}
		req, err := http.NewRequestWithContext(ctx, method, n.base+path, strings.NewReader(payload))
		if err != nil {
			return nil, err
		}
		resp, err := n.client.Do(req)
		if err != nil {
			lastErr = err
			n.logf("request %s failed (attempt %d): %v", path, attempt+1, err)
			continue
		}
		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, errors.Newf("node answered %s with status %d", path, resp.StatusCode)
		}
		return body, nil
	}
	return nil, errors.Wrapf(ErrNodeUnresponsive, "%v", lastErr)
}

func (n *Node) logf(format string, args ...any) {
	if n.cfg.Log != nil {
		n.cfg.Log.Debugf(format, args...)
	}
}
