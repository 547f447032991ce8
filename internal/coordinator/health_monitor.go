// Package coordinator provides the cluster coordination server functionality.
// This file implements reported-state probing of the configured nodes.
package coordinator

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dreamware/clusterstate/internal/cluster"
)

// NodeHealth tracks the probe status of a single node in the cluster.
// Thread-safe: Protected by HealthMonitor's mutex when accessed.
type NodeHealth struct {
	LastCheck        time.Time    // Timestamp of the last probe attempt
	LastHealthy      time.Time    // Timestamp of the last successful probe
	Node             cluster.Node // The probed node
	Reported         cluster.State
	ConsecutiveFails int // Number of consecutive failed probes
}

// ReportSink receives what the probes learn. *Registry implements it.
type ReportSink interface {
	Nodes() []cluster.NodeInfo
	SetReportedState(n cluster.Node, ns cluster.NodeState) error
	AckVersion(n cluster.Node, version uint64) error
}

// CheckFunc probes the node at addr and returns its status.
type CheckFunc func(ctx context.Context, addr string) (cluster.NodeStatus, error)

// HealthMonitor periodically probes every node with an address and feeds the
// reported states and acknowledged cluster state versions into a ReportSink.
// A node is reported down after maxFailures consecutive failed probes.
// Thread-safe: All methods are safe for concurrent access.
type HealthMonitor struct {
	sink        ReportSink
	nodes       map[cluster.Node]*NodeHealth
	httpClient  *http.Client
	checkFunc   CheckFunc
	log         logrus.FieldLogger
	ctx         context.Context
	cancel      context.CancelFunc
	interval    time.Duration
	timeout     time.Duration
	mu          sync.RWMutex
	wg          sync.WaitGroup
	maxFailures int
}

// NewHealthMonitor creates a monitor that probes the nodes of sink every
// interval. Nodes are reported down after 3 consecutive failures.
//
// Example:
//
//	monitor := NewHealthMonitor(registry, 5*time.Second, log)
//	go monitor.Start(ctx)
func NewHealthMonitor(sink ReportSink, interval time.Duration, log logrus.FieldLogger) *HealthMonitor {
	ctx, cancel := context.WithCancel(context.Background())
	if log == nil {
		log = logrus.StandardLogger()
	}

	h := &HealthMonitor{
		sink:        sink,
		interval:    interval,
		timeout:     2 * time.Second,
		maxFailures: 3,
		nodes:       make(map[cluster.Node]*NodeHealth),
		httpClient: &http.Client{
			Timeout: 2 * time.Second,
		},
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
	h.checkFunc = h.defaultCheck
	return h
}

// SetCheckFunction overrides the default HTTP probe. This is useful for
// testing or custom probe implementations.
func (h *HealthMonitor) SetCheckFunction(f CheckFunc) {
	h.mu.Lock()
	h.checkFunc = f
	h.mu.Unlock()
}

// SetMaxFailures sets how many consecutive failures mark a node down.
func (h *HealthMonitor) SetMaxFailures(n int) {
	h.mu.Lock()
	h.maxFailures = n
	h.mu.Unlock()
}

// Start probes all nodes immediately and then every interval. It blocks
// until ctx or the monitor is stopped.
func (h *HealthMonitor) Start(ctx context.Context) {
	h.wg.Add(1)
	defer h.wg.Done()

	if ctx == nil {
		ctx = h.ctx
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.log.WithField("interval", h.interval).Info("health monitor started")

	h.CheckAll(ctx)

	for {
		select {
		case <-ticker.C:
			h.CheckAll(ctx)
		case <-ctx.Done():
			h.log.Debug("health monitor stopping due to context cancellation")
			return
		case <-h.ctx.Done():
			h.log.Debug("health monitor stopping due to internal cancellation")
			return
		}
	}
}

// Stop shuts the monitor down and waits for Start to return.
func (h *HealthMonitor) Stop() {
	h.cancel()
	h.wg.Wait()
	h.log.Info("health monitor stopped")
}

// CheckAll probes every node of the sink that has an address once.
func (h *HealthMonitor) CheckAll(ctx context.Context) {
	current := make(map[cluster.Node]bool)
	for _, ni := range h.sink.Nodes() {
		if ni.Addr == "" {
			continue
		}
		current[ni.Node] = true
		h.checkNode(ctx, ni)
	}

	h.mu.Lock()
	for n := range h.nodes {
		if !current[n] {
			delete(h.nodes, n)
		}
	}
	h.mu.Unlock()
}

// checkNode probes a single node and reports the result to the sink.
//
// Implementation:
//  1. Get or create the health record for the node
//  2. Probe the node without holding the lock
//  3. On success, report the node's own state and acknowledged version
//  4. On failure, count it and report the node down once the threshold
//     is reached
func (h *HealthMonitor) checkNode(ctx context.Context, ni cluster.NodeInfo) {
	h.mu.Lock()
	health, exists := h.nodes[ni.Node]
	if !exists {
		health = &NodeHealth{
			Node:        ni.Node,
			Reported:    ni.Reported.State,
			LastCheck:   time.Now(),
			LastHealthy: time.Now(),
		}
		h.nodes[ni.Node] = health
	}
	check := h.checkFunc
	maxFailures := h.maxFailures
	h.mu.Unlock()

	cctx, cancel := context.WithTimeout(ctx, h.timeout)
	status, err := check(cctx, ni.Addr)
	cancel()

	var reported cluster.NodeState
	if err == nil {
		var s cluster.State
		s, err = cluster.ParseState(status.State)
		reported = cluster.NewNodeState(ni.Node.Type, s, status.Reason)
	}

	h.mu.Lock()
	health.LastCheck = time.Now()
	log := h.log.WithFields(logrus.Fields{"cluster": ni.Cluster, "node": ni.Node.String()})
	if err != nil {
		health.ConsecutiveFails++
		log.WithError(err).Debugf("probe failed (attempt %d/%d)", health.ConsecutiveFails, maxFailures)
		if health.ConsecutiveFails < maxFailures || health.Reported == cluster.Down {
			h.mu.Unlock()
			return
		}
		health.Reported = cluster.Down
		fails := health.ConsecutiveFails
		h.mu.Unlock()
		log.Warnf("node reported down after %d failed probes", fails)
		reported = ni.Reported.WithState(cluster.Down).WithReason(fmt.Sprintf("probe failed: %v", err))
		if err := h.sink.SetReportedState(ni.Node, reported); err != nil {
			log.WithError(err).Error("cannot record reported state")
		}
		return
	}

	if health.Reported == cluster.Down && reported.State != cluster.Down {
		log.Info("node recovered")
	}
	health.Reported = reported.State
	health.ConsecutiveFails = 0
	health.LastHealthy = time.Now()
	h.mu.Unlock()

	if err := h.sink.SetReportedState(ni.Node, reported); err != nil {
		log.WithError(err).Error("cannot record reported state")
	}
	if err := h.sink.AckVersion(ni.Node, status.Version); err != nil {
		log.WithError(err).Error("cannot record acknowledged version")
	}
}

// defaultCheck GETs the node's /state endpoint.
func (h *HealthMonitor) defaultCheck(ctx context.Context, addr string) (cluster.NodeStatus, error) {
	url := addr
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		url = "http://" + addr
	}
	if !strings.HasSuffix(url, "/state") {
		url = strings.TrimRight(url, "/") + "/state"
	}

	var status cluster.NodeStatus
	if err := cluster.GetJSONWith(ctx, h.httpClient, url, &status); err != nil {
		return cluster.NodeStatus{}, fmt.Errorf("state probe failed: %w", err)
	}
	return status, nil
}

// GetNodeHealth returns a copy of the probe status of n, or nil if n is not
// being probed.
func (h *HealthMonitor) GetNodeHealth(n cluster.Node) *NodeHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	health, exists := h.nodes[n]
	if !exists {
		return nil
	}
	cp := *health
	return &cp
}

// GetAllNodeHealth returns copies of the probe status of all probed nodes.
func (h *HealthMonitor) GetAllNodeHealth() map[cluster.Node]*NodeHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make(map[cluster.Node]*NodeHealth, len(h.nodes))
	for n, health := range h.nodes {
		cp := *health
		result[n] = &cp
	}
	return result
}

// IsHealthy reports whether the last probes of n succeeded.
func (h *HealthMonitor) IsHealthy(n cluster.Node) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	health, exists := h.nodes[n]
	return exists && health.ConsecutiveFails == 0 && health.Reported != cluster.Down
}
