// Package coordinator provides the cluster coordination server functionality.
// This file contains tests for reported-state probing.
package coordinator

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/clusterstate/internal/cluster"
)

func probedRegistry(t *testing.T) *Registry {
	t.Helper()
	topo := Topology{Nodes: []TopologyNode{
		{Index: 0, Group: "0", StorageAddr: "http://localhost:8081", DistributorAddr: "http://localhost:8091"},
		{Index: 1, Group: "0", StorageAddr: "http://localhost:8082"},
	}}
	reg, err := NewRegistry("music", topo, nil)
	require.NoError(t, err)
	return reg
}

func quietLogger() *logrus.Logger {
	log, _ := test.NewNullLogger()
	return log
}

// TestNewHealthMonitor verifies the default configuration.
func TestNewHealthMonitor(t *testing.T) {
	monitor := NewHealthMonitor(probedRegistry(t), 5*time.Second, quietLogger())
	defer monitor.Stop()

	assert.NotNil(t, monitor)
	assert.Equal(t, 5*time.Second, monitor.interval)
	assert.Equal(t, 2*time.Second, monitor.timeout)
	assert.Equal(t, 3, monitor.maxFailures)
	assert.NotNil(t, monitor.httpClient)
	assert.NotNil(t, monitor.checkFunc)
	assert.Len(t, monitor.nodes, 0)
}

// TestHealthMonitorProbesOnlyAddressedNodes checks that nodes without an
// address are skipped and that successful probes feed the registry.
func TestHealthMonitorProbesOnlyAddressedNodes(t *testing.T) {
	reg := probedRegistry(t)
	monitor := NewHealthMonitor(reg, time.Hour, quietLogger())

	var mu sync.Mutex
	probed := map[string]int{}
	monitor.SetCheckFunction(func(ctx context.Context, addr string) (cluster.NodeStatus, error) {
		mu.Lock()
		probed[addr]++
		mu.Unlock()
		if addr == "http://localhost:8082" {
			return cluster.NodeStatus{State: "initializing", Reason: "loading", Version: 1}, nil
		}
		return cluster.NodeStatus{State: "up", Version: 1}, nil
	})

	monitor.CheckAll(context.Background())

	assert.Equal(t, map[string]int{
		"http://localhost:8081": 1,
		"http://localhost:8091": 1,
		"http://localhost:8082": 1,
	}, probed)
	assert.Len(t, monitor.GetAllNodeHealth(), 3)
	assert.True(t, monitor.IsHealthy(cluster.StorageNode(0)))
	assert.Nil(t, monitor.GetNodeHealth(cluster.DistributorNode(1)))

	ni, err := reg.NodeInfo(cluster.StorageNode(1))
	require.NoError(t, err)
	assert.Equal(t, cluster.NewNodeState(cluster.Storage, cluster.Initializing, "loading"), ni.Reported)
	assert.Equal(t, uint64(1), ni.AckedVersion)
	assert.True(t, reg.Converged(1))
}

// TestHealthMonitorNodeFailure verifies that nodes are reported down after
// maxFailures consecutive failures and recover afterwards.
func TestHealthMonitorNodeFailure(t *testing.T) {
	reg := probedRegistry(t)
	monitor := NewHealthMonitor(reg, time.Hour, quietLogger())

	var mu sync.Mutex
	failing := true
	monitor.SetCheckFunction(func(ctx context.Context, addr string) (cluster.NodeStatus, error) {
		mu.Lock()
		defer mu.Unlock()
		if addr == "http://localhost:8081" && failing {
			return cluster.NodeStatus{}, fmt.Errorf("connection refused")
		}
		return cluster.NodeStatus{State: "up"}, nil
	})

	for i := 0; i < 2; i++ {
		monitor.CheckAll(context.Background())
	}
	ni, _ := reg.NodeInfo(cluster.StorageNode(0))
	assert.Equal(t, cluster.Up, ni.Reported.State, "below threshold keeps the node up")
	assert.False(t, monitor.IsHealthy(cluster.StorageNode(0)))

	monitor.CheckAll(context.Background())
	ni, _ = reg.NodeInfo(cluster.StorageNode(0))
	assert.Equal(t, cluster.Down, ni.Reported.State)
	assert.Contains(t, ni.Reported.Reason, "connection refused")
	assert.Equal(t, cluster.Storage, ni.Reported.Type)
	assert.Equal(t, 3, monitor.GetNodeHealth(cluster.StorageNode(0)).ConsecutiveFails)

	// further failures do not publish new states
	v := reg.ClusterState().Version()
	monitor.CheckAll(context.Background())
	assert.Equal(t, v, reg.ClusterState().Version())

	mu.Lock()
	failing = false
	mu.Unlock()
	monitor.CheckAll(context.Background())
	ni, _ = reg.NodeInfo(cluster.StorageNode(0))
	assert.Equal(t, cluster.Up, ni.Reported.State)
	assert.True(t, monitor.IsHealthy(cluster.StorageNode(0)))
}

func TestHealthMonitorInvalidStateCountsAsFailure(t *testing.T) {
	reg := probedRegistry(t)
	monitor := NewHealthMonitor(reg, time.Hour, quietLogger())
	monitor.SetMaxFailures(1)
	monitor.SetCheckFunction(func(ctx context.Context, addr string) (cluster.NodeStatus, error) {
		return cluster.NodeStatus{State: "confused"}, nil
	})

	monitor.CheckAll(context.Background())
	ni, _ := reg.NodeInfo(cluster.StorageNode(1))
	assert.Equal(t, cluster.Down, ni.Reported.State)
}

func TestHealthMonitorStartStop(t *testing.T) {
	reg := probedRegistry(t)
	monitor := NewHealthMonitor(reg, 20*time.Millisecond, quietLogger())

	var mu sync.Mutex
	calls := 0
	monitor.SetCheckFunction(func(ctx context.Context, addr string) (cluster.NodeStatus, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return cluster.NodeStatus{State: "up"}, nil
	})

	done := make(chan struct{})
	go func() {
		monitor.Start(context.Background())
		close(done)
	}()
	time.Sleep(70 * time.Millisecond)
	monitor.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, calls, 6, "initial check plus at least one tick for three nodes")
}

func TestDefaultCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/state" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"state":"maintenance","cluster-state-version":9}`))
	}))
	defer server.Close()

	monitor := NewHealthMonitor(probedRegistry(t), time.Hour, quietLogger())

	for _, addr := range []string{server.URL, server.URL + "/", strings.TrimPrefix(server.URL, "http://")} {
		status, err := monitor.defaultCheck(context.Background(), addr)
		require.NoError(t, err, addr)
		assert.Equal(t, "maintenance", status.State)
		assert.Equal(t, uint64(9), status.Version)
	}

	_, err := monitor.defaultCheck(context.Background(), "http://127.0.0.1:1")
	assert.Error(t, err)
}
