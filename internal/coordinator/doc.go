// Package coordinator implements the cluster registry of the cluster-state
// coordination engine: the authoritative, versioned view of which storage and
// distributor nodes are up, down or in maintenance, and the only place wanted
// states are ever changed.
//
// # Overview
//
// A Registry is created per cluster from the configured topology. For every
// configured index it holds a storage node and its paired distributor node,
// each with a reported state (what the node says about itself) and a wanted
// state (what an operator requested). From these it generates ClusterState
// snapshots whose version strictly increases with every change.
//
// # Architecture
//
//	┌───────────────────────────────────────────┐
//	│                 Registry                  │
//	├───────────────────────────────────────────┤
//	│  nodes:  storage.N / distributor.N        │
//	│          reported, wanted, acked version  │
//	│  state:  ClusterState (version N)         │
//	│  mu:     one mutex per cluster            │
//	├───────────────────────────────────────────┤
//	│  EvaluateAndApply:                        │
//	│    read → safety.Evaluate → apply →       │
//	│    notify listeners → publish snapshot    │
//	└───────────────────────────────────────────┘
//	        ▲                         ▲
//	        │ SetReportedState        │ AckVersion
//	        │                         │
//	┌───────┴─────────────────────────┴─────────┐
//	│              HealthMonitor                │
//	│   GET <node>/state every interval         │
//	└───────────────────────────────────────────┘
//
// # Core Components
//
// Registry: per-cluster node inventory
//   - Applies accepted wanted-state changes, storage side first
//   - Calls Listener.HandleNewWantedNodeState once per applied side
//   - Publishes a new ClusterState whenever a state changes
//   - Tracks which cluster state version each node acknowledged
//
// HealthMonitor: reported-state source
//   - Probes each node that has an address
//   - Reports nodes down after repeated probe failures
//   - Records acknowledged cluster state versions
//
// Controller: the set of clusters served by the process, each with the
// master.Source that tells whether this process may mutate it.
//
// # Concurrency Model
//
// The read-decide-apply-publish sequence of a wanted-state request runs
// under the registry mutex, and reported-state updates take the same mutex,
// so a decision is never computed against a stale reported state. Requests
// for the same node are processed in arrival order. WaitConverged blocks
// without holding the mutex.
//
// Listeners run with the mutex held and must not call back into the
// registry.
//
// # Usage Example
//
//	reg, err := coordinator.NewRegistry("music", topo, safety.DefaultGroupPolicy(), auditLog)
//	if err != nil {
//	    return err
//	}
//	res, err := reg.EvaluateAndApply(cluster.Safe, cluster.StorageNode(2),
//	    cluster.Maintenance, "operator", nil)
//	if err != nil {
//	    return err
//	}
//	if res.Outcome == safety.Disallowed {
//	    log.Printf("rejected: %s", res.Reason)
//	}
//
// # See Also
//
// Related packages:
//   - internal/cluster: node and state value types
//   - internal/safety: the decision function and redundancy policies
//   - internal/restapi: the HTTP surface driving the registry
package coordinator
