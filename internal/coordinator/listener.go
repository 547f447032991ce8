package coordinator

import "github.com/dreamware/clusterstate/internal/cluster"

// Listener is notified once for every wanted state the registry applies.
// info is the node as it was before newState was applied.
//
// Listeners are called with the registry lock held, in storage-then-
// distributor order, and must not call back into the registry.
type Listener interface {
	HandleNewWantedNodeState(info cluster.NodeInfo, newState cluster.NodeState)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(info cluster.NodeInfo, newState cluster.NodeState)

// HandleNewWantedNodeState calls f.
func (f ListenerFunc) HandleNewWantedNodeState(info cluster.NodeInfo, newState cluster.NodeState) {
	f(info, newState)
}

// MultiListener fans a notification out to several listeners in order.
type MultiListener []Listener

// HandleNewWantedNodeState implements Listener.
func (m MultiListener) HandleNewWantedNodeState(info cluster.NodeInfo, newState cluster.NodeState) {
	for _, l := range m {
		if l != nil {
			l.HandleNewWantedNodeState(info, newState)
		}
	}
}
