// Package safety decides the effect of a wanted-state request on a storage
// node and its paired distributor. It is a pure function over a snapshot of
// the registry: it never mutates state and never notifies anyone.
package safety

import (
	"fmt"

	"github.com/dreamware/clusterstate/internal/cluster"
)

// Outcome classifies a Decision.
type Outcome int

const (
	// Allow means at least one side has a pending change to apply.
	Allow Outcome = iota
	// AlreadySet means neither side needs a change.
	AlreadySet
	// Disallowed means the request was rejected and nothing may be applied.
	Disallowed
)

func (o Outcome) String() string {
	switch o {
	case Allow:
		return "allow"
	case AlreadySet:
		return "already-set"
	default:
		return "disallowed"
	}
}

// Reasons used in decisions that are not produced by a policy.
const (
	ReasonAlreadySet = "No noticeable state change as state is already set"
	ReasonAllowed    = "ok"
)

// Request is a wanted-state change for one storage node.
type Request struct {
	Condition cluster.Condition
	Node      cluster.Node
	State     cluster.State
	Reason    string
}

// Snapshot is the registry content a decision is computed against.
type Snapshot struct {
	State cluster.ClusterState
	Nodes []cluster.NodeInfo
}

// Info returns the registry entry of n.
func (s Snapshot) Info(n cluster.Node) (cluster.NodeInfo, bool) {
	for _, ni := range s.Nodes {
		if ni.Node == n {
			return ni, true
		}
	}
	return cluster.NodeInfo{}, false
}

// Decision is the result of Evaluate. Storage and Distributor are set for
// every side that has a pending change; both are nil for a Disallowed
// decision.
//
// The outcome reported to the caller is about the targeted storage node:
// when only the distributor needs to be synchronized, Outcome is AlreadySet
// and Distributor is still set.
type Decision struct {
	Outcome     Outcome
	Reason      string
	Storage     *cluster.NodeState
	Distributor *cluster.NodeState
}

// Pending reports whether the decision carries any change to apply.
func (d Decision) Pending() bool {
	return d.Outcome != Disallowed && (d.Storage != nil || d.Distributor != nil)
}

// DistributorStateFor maps a requested storage wanted state to the wanted
// state of the paired distributor.
func DistributorStateFor(s cluster.State) cluster.State {
	switch s {
	case cluster.Maintenance, cluster.Down:
		return cluster.Down
	default:
		return cluster.Up
	}
}

func disallow(format string, args ...any) Decision {
	return Decision{Outcome: Disallowed, Reason: fmt.Sprintf(format, args...)}
}

// Evaluate computes the effect of req against snap without changing
// anything. The storage side and the distributor side are decided
// independently: a side whose wanted state already matches is left out of
// the decision.
//
// Parameters:
//   - req: a request for a storage node; other node types are disallowed
//   - snap: the node views to decide against
//   - policy: consulted only for SAFE requests with a pending storage change;
//     nil accepts every change
//
// The outcome is AlreadySet when the storage side matches, even if the
// distributor side is still pending, and Disallowed when policy rejects the
// change.
//
// Thread Safety:
// Evaluate is a pure function of its arguments. Callers that apply the
// decision must keep snap current until it is applied, as
// coordinator.Registry.EvaluateAndApply does.
//
// Example:
//
//	d := safety.Evaluate(req, reg.Snapshot(), safety.DefaultGroupPolicy())
//	if d.Outcome == safety.Disallowed {
//	    log.Info(d.Reason)
//	}
func Evaluate(req Request, snap Snapshot, policy Policy) Decision {
	if req.Node.Type != cluster.Storage {
		return disallow("wanted state can only be set on storage nodes, not %s", req.Node)
	}
	if !req.State.ValidWantedFor(cluster.Storage) {
		return disallow("%s is not a valid wanted state for %s", req.State, req.Node)
	}
	storage, ok := snap.Info(req.Node)
	if !ok {
		return disallow("%s is not configured", req.Node)
	}
	distributor, ok := snap.Info(req.Node.Pair())
	if !ok {
		return disallow("%s is not configured", req.Node.Pair())
	}

	newStorage := cluster.NewNodeState(cluster.Storage, req.State, req.Reason)
	newDistributor := cluster.NewNodeState(cluster.Distributor, DistributorStateFor(req.State), req.Reason)

	storageSet := newStorage.SameState(storage.Wanted)
	distributorSet := newDistributor.SameState(distributor.Wanted)
	if storageSet && distributorSet {
		return Decision{Outcome: AlreadySet, Reason: ReasonAlreadySet}
	}

	if !storageSet && req.Condition == cluster.Safe && policy != nil {
		if reason, ok := policy.Check(req, snap); !ok {
			return Decision{Outcome: Disallowed, Reason: reason}
		}
	}

	var d Decision
	if storageSet {
		d.Outcome, d.Reason = AlreadySet, ReasonAlreadySet
	} else {
		d.Outcome, d.Reason = Allow, ReasonAllowed
		d.Storage = &newStorage
	}
	if !distributorSet {
		d.Distributor = &newDistributor
	}
	return d
}
