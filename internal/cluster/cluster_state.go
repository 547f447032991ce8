package cluster

import (
	"sort"
	"strconv"
	"strings"
)

// NodeInfo is a point-in-time view of one configured node as held by the
// cluster registry.
type NodeInfo struct {
	// Cluster is the name of the cluster the node is configured in.
	Cluster string
	Node    Node
	// Group is the redundancy group the node belongs to.
	Group string
	// Addr is where the node answers state probes. It may be empty.
	Addr     string
	Reported NodeState
	Wanted   NodeState
	// AckedVersion is the highest cluster state version the node
	// acknowledged.
	AckedVersion uint64
}

// Generated returns the state the node has in the generated cluster state:
// the more restrictive of its reported and wanted states.
func (ni NodeInfo) Generated() NodeState {
	s := MoreRestrictive(ni.Reported.State, ni.Wanted.State)
	reason := ""
	switch s {
	case Up:
	case ni.Wanted.State:
		reason = ni.Wanted.Reason
	default:
		reason = ni.Reported.Reason
	}
	return NewNodeState(ni.Node.Type, s, reason)
}

// ClusterState is an immutable, versioned snapshot of the generated state of
// every configured node.
type ClusterState struct {
	version uint64
	nodes   map[Node]NodeState
}

// NewClusterState builds a snapshot from the generated node states. The map
// is copied.
func NewClusterState(version uint64, nodes map[Node]NodeState) ClusterState {
	cp := make(map[Node]NodeState, len(nodes))
	for n, s := range nodes {
		cp[n] = s
	}
	return ClusterState{version: version, nodes: cp}
}

// Version returns the snapshot version.
func (cs ClusterState) Version() uint64 { return cs.version }

// NodeState returns the generated state of n, and false if n is not part of
// the snapshot.
func (cs ClusterState) NodeState(n Node) (NodeState, bool) {
	s, ok := cs.nodes[n]
	return s, ok
}

// Nodes returns all nodes of the snapshot in Node.Less order.
func (cs ClusterState) Nodes() []Node {
	out := make([]Node, 0, len(cs.nodes))
	for n := range cs.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// String renders the compact form, e.g.
//
//	version:7 distributor:4 .1.s:d storage:4 .2.s:m
//
// The count after each node type is the highest index plus one; only nodes
// that are not up are listed individually.
func (cs ClusterState) String() string {
	var b strings.Builder
	b.WriteString("version:")
	b.WriteString(strconv.FormatUint(cs.version, 10))
	nodes := cs.Nodes()
	for _, t := range NodeTypes {
		count := 0
		for _, n := range nodes {
			if n.Type == t && n.Index+1 > count {
				count = n.Index + 1
			}
		}
		if count == 0 {
			continue
		}
		b.WriteString(" ")
		b.WriteString(t.String())
		b.WriteString(":")
		b.WriteString(strconv.Itoa(count))
		for _, n := range nodes {
			if n.Type != t {
				continue
			}
			if s := cs.nodes[n].State; s != Up {
				b.WriteString(" .")
				b.WriteString(strconv.Itoa(n.Index))
				b.WriteString(".s:")
				b.WriteString(s.Abbrev())
			}
		}
	}
	return b.String()
}
