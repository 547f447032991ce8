// Package coordinator implements the cluster registry: the canonical node
// inventory of a cluster with the reported and wanted state of every node,
// and the versioned cluster state generated from them.
// See doc.go for complete package documentation.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/exp/slices"

	"github.com/dreamware/clusterstate/internal/cluster"
	"github.com/dreamware/clusterstate/internal/safety"
)

// ErrNodeNotFound is returned for nodes that are not configured.
var ErrNodeNotFound = errors.New("node not found")

// TopologyNode is one configured index of a cluster. A storage and a
// distributor node are registered for it.
type TopologyNode struct {
	Index int
	// Group is the redundancy group of the index.
	Group string
	// StorageAddr and DistributorAddr are the state probe addresses of the
	// two nodes. Nodes without an address are not probed.
	StorageAddr     string
	DistributorAddr string
}

// Topology is the configured node set of a cluster.
type Topology struct {
	Nodes []TopologyNode
}

// Result is the outcome of EvaluateAndApply.
type Result struct {
	safety.Decision
	// Version is the cluster state version after the request was
	// processed.
	Version uint64
}

// Registry owns the node states of one cluster. All reads and writes of
// node state go through one mutex, so that a safety decision is never
// computed against a state that changes before it is applied.
//
// Thread Safety:
// All methods are safe for concurrent use.
type Registry struct {
	name      string
	policy    safety.Policy
	listeners MultiListener

	mu        sync.Mutex
	nodes     map[cluster.Node]*cluster.NodeInfo
	indexes   []int
	groups    []string
	state     cluster.ClusterState
	changed   chan struct{} // closed and replaced on every change
	onPublish []func(cluster.ClusterState)
}

// NewRegistry creates the registry of cluster name. Every index of topo
// gets a storage and a distributor node, both reported and wanted up, and
// the first cluster state is published with version 1.
//
// listeners are notified of every applied wanted state after the listener
// given to EvaluateAndApply.
func NewRegistry(name string, topo Topology, policy safety.Policy, listeners ...Listener) (*Registry, error) {
	if name == "" {
		return nil, errors.New("cluster name cannot be empty")
	}
	if len(topo.Nodes) == 0 {
		return nil, fmt.Errorf("cluster %s: no nodes configured", name)
	}
	if policy == nil {
		policy = safety.DefaultGroupPolicy()
	}

	r := &Registry{
		name:      name,
		policy:    policy,
		listeners: listeners,
		nodes:     make(map[cluster.Node]*cluster.NodeInfo),
		changed:   make(chan struct{}),
	}
	for _, tn := range topo.Nodes {
		if tn.Index < 0 {
			return nil, fmt.Errorf("cluster %s: %w: negative node index %d", name, cluster.ErrInvalidArgument, tn.Index)
		}
		if slices.Contains(r.indexes, tn.Index) {
			return nil, fmt.Errorf("cluster %s: index %d configured twice", name, tn.Index)
		}
		r.indexes = append(r.indexes, tn.Index)
		if !slices.Contains(r.groups, tn.Group) {
			r.groups = append(r.groups, tn.Group)
		}
		for _, t := range cluster.NodeTypes {
			addr := tn.StorageAddr
			if t == cluster.Distributor {
				addr = tn.DistributorAddr
			}
			n := cluster.Node{Type: t, Index: tn.Index}
			r.nodes[n] = &cluster.NodeInfo{
				Cluster:  name,
				Node:     n,
				Group:    tn.Group,
				Addr:     addr,
				Reported: cluster.NewNodeState(t, cluster.Up, ""),
				Wanted:   cluster.NewNodeState(t, cluster.Up, ""),
			}
		}
	}
	slices.Sort(r.indexes)
	slices.Sort(r.groups)
	r.publishLocked()
	return r, nil
}

// Name returns the cluster name.
func (r *Registry) Name() string { return r.name }

// Indexes returns the configured indexes in ascending order.
func (r *Registry) Indexes() []int {
	return slices.Clone(r.indexes)
}

// Groups returns the redundancy groups in ascending order.
func (r *Registry) Groups() []string {
	return slices.Clone(r.groups)
}

// HasConfiguredNode reports whether index is part of the topology.
func (r *Registry) HasConfiguredNode(index int) bool {
	_, found := slices.BinarySearch(r.indexes, index)
	return found
}

// NodeInfo returns the current view of n.
func (r *Registry) NodeInfo(n cluster.Node) (cluster.NodeInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ni, ok := r.nodes[n]
	if !ok {
		return cluster.NodeInfo{}, fmt.Errorf("%w: %s in cluster %s", ErrNodeNotFound, n, r.name)
	}
	return *ni, nil
}

// Nodes returns all nodes in Node.Less order.
func (r *Registry) Nodes() []cluster.NodeInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nodesLocked()
}

func (r *Registry) nodesLocked() []cluster.NodeInfo {
	out := make([]cluster.NodeInfo, 0, len(r.nodes))
	for _, ni := range r.nodes {
		out = append(out, *ni)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Node.Less(out[j].Node) })
	return out
}

// ClusterState returns the current snapshot.
func (r *Registry) ClusterState() cluster.ClusterState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Snapshot returns the cluster state together with the node views it was
// generated from, taken under one lock acquisition.
func (r *Registry) Snapshot() safety.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return safety.Snapshot{State: r.state, Nodes: r.nodesLocked()}
}

// OnPublish registers f to be called with every cluster state published
// from now on. f is called once right away with the current state.
//
// f runs with the registry lock held and must not call back into the
// registry.
func (r *Registry) OnPublish(f func(cluster.ClusterState)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onPublish = append(r.onPublish, f)
	f(r.state)
}

// EvaluateAndApply decides the effect of setting the wanted state of
// storage node n and applies every pending side of the decision. A new
// cluster state is published if anything was applied.
//
// Parameters:
//   - cond: SAFE consults the safety rules and the policy, FORCE only
//     checks that state is a valid wanted state
//   - n: a storage node; its distributor pair is handled by the decision
//   - state, reason: the requested wanted state
//   - listener: notified before the registry listeners, may be nil
//
// Thread Safety:
// The decision and its application run under the registry lock, so no other
// change can interleave between them. Listeners are notified once per applied
// side, storage first, with the NodeInfo as it was before the change. They
// run under the same lock and must not call back into the registry.
//
// Example:
//
//	res, err := reg.EvaluateAndApply(cluster.Safe, cluster.StorageNode(2), cluster.Maintenance, "upgrade", store)
//	if err != nil {
//	    return err
//	}
//	if res.Pending() {
//	    err = reg.WaitConverged(ctx, res.Version)
//	}
func (r *Registry) EvaluateAndApply(cond cluster.Condition, n cluster.Node, state cluster.State, reason string, listener Listener) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.nodes[n]; !ok {
		return Result{}, fmt.Errorf("%w: %s in cluster %s", ErrNodeNotFound, n, r.name)
	}

	req := safety.Request{Condition: cond, Node: n, State: state, Reason: reason}
	d := safety.Evaluate(req, safety.Snapshot{State: r.state, Nodes: r.nodesLocked()}, r.policy)
	if !d.Pending() {
		return Result{Decision: d, Version: r.state.Version()}, nil
	}

	notify := MultiListener{listener, r.listeners}
	if d.Storage != nil {
		r.applyWantedLocked(n, *d.Storage, notify)
	}
	if d.Distributor != nil {
		r.applyWantedLocked(n.Pair(), *d.Distributor, notify)
	}
	r.publishLocked()
	return Result{Decision: d, Version: r.state.Version()}, nil
}

func (r *Registry) applyWantedLocked(n cluster.Node, ns cluster.NodeState, notify Listener) {
	ni := r.nodes[n]
	before := *ni
	ni.Wanted = ns
	notify.HandleNewWantedNodeState(before, ns)
}

// SetReportedState records the state node n reports about itself. A new
// cluster state is published if the state or reason changed.
func (r *Registry) SetReportedState(n cluster.Node, ns cluster.NodeState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ni, ok := r.nodes[n]
	if !ok {
		return fmt.Errorf("%w: %s in cluster %s", ErrNodeNotFound, n, r.name)
	}
	ns.Type = n.Type
	if ni.Reported == ns {
		return nil
	}
	ni.Reported = ns
	r.publishLocked()
	return nil
}

// Restore loads previously persisted wanted states, typically at start-up
// before any request is served. Nodes that are no longer configured and
// states that are not valid wanted states are skipped. It returns the number
// of nodes restored.
func (r *Registry) Restore(wanted map[cluster.Node]cluster.NodeState) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	restored := 0
	for n, ns := range wanted {
		ni, ok := r.nodes[n]
		if !ok || !ns.State.ValidWantedFor(n.Type) {
			continue
		}
		ns.Type = n.Type
		ni.Wanted = ns
		restored++
	}
	if restored > 0 {
		r.publishLocked()
	}
	return restored
}

// AckVersion records that node n has observed the given cluster state
// version. Older versions are ignored.
func (r *Registry) AckVersion(n cluster.Node, version uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ni, ok := r.nodes[n]
	if !ok {
		return fmt.Errorf("%w: %s in cluster %s", ErrNodeNotFound, n, r.name)
	}
	if version <= ni.AckedVersion {
		return nil
	}
	ni.AckedVersion = version
	r.signalLocked()
	return nil
}

// Converged reports whether every node that has to acknowledge has
// acknowledged version. Nodes reported down and nodes without a probe
// address do not have to.
func (r *Registry) Converged(version uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.convergedLocked(version)
}

func (r *Registry) convergedLocked(version uint64) bool {
	for _, ni := range r.nodes {
		if ni.Addr == "" || ni.Reported.State == cluster.Down {
			continue
		}
		if ni.AckedVersion < version {
			return false
		}
	}
	return true
}

// WaitConverged blocks until Converged(version) holds or ctx is done, in
// which case ctx.Err() is returned.
//
// Thread Safety:
// The registry lock is not held while waiting. Every acknowledgement and
// every published state wakes the waiters, which then re-check under the
// lock.
func (r *Registry) WaitConverged(ctx context.Context, version uint64) error {
	for {
		r.mu.Lock()
		if r.convergedLocked(version) {
			r.mu.Unlock()
			return nil
		}
		changed := r.changed
		r.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// publishLocked generates a new cluster state with the next version.
func (r *Registry) publishLocked() {
	generated := make(map[cluster.Node]cluster.NodeState, len(r.nodes))
	for n, ni := range r.nodes {
		generated[n] = ni.Generated()
	}
	r.state = cluster.NewClusterState(r.state.Version()+1, generated)
	for _, f := range r.onPublish {
		f(r.state)
	}
	r.signalLocked()
}

func (r *Registry) signalLocked() {
	close(r.changed)
	r.changed = make(chan struct{})
}
