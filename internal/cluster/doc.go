// Package cluster provides the value types of the cluster-state coordination
// engine: node identities, node states, conditions and versioned cluster
// state snapshots.
//
// # Overview
//
// A content cluster consists of storage nodes and distributor nodes. Each
// configured index has one node of each type, and the two form a pair:
//
//	index 2:  storage.2  <->  distributor.2
//
// Every node carries two states:
//
//   - the reported state, asserted by the node itself through health probes
//   - the wanted state, requested by an operator or automation
//
// The generated state of a node is the more restrictive of the two. A
// ClusterState snapshot aggregates the generated state of every node and
// carries a version that strictly increases with every change.
//
// # State Ordering
//
// States are ordered by restrictiveness:
//
//	up < initializing < retired < stopping < maintenance < down
//
// Only up, retired, maintenance and down may be wanted for storage nodes;
// distributors accept up and down.
//
// # Compact Form
//
// ClusterState.String renders the snapshot the way nodes consume it:
//
//	version:7 distributor:4 .1.s:d storage:4 .2.s:m
//
// # Concurrency Model
//
// All types in this package are immutable values and safe to share between
// goroutines. Mutation of node states happens only in the coordinator
// package, under its per-cluster lock.
//
// # See Also
//
// Related packages:
//   - internal/safety: decides the effect of a wanted-state request
//   - internal/coordinator: owns the live node states
package cluster
