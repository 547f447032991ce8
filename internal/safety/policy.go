package safety

import (
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/dreamware/clusterstate/internal/cluster"
)

// Policy is the redundancy-safety predicate consulted for SAFE requests
// that change the storage wanted state. Check returns false together with a
// reason suitable for an API message when the change must be rejected.
type Policy interface {
	Check(req Request, snap Snapshot) (reason string, ok bool)
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(req Request, snap Snapshot) (string, bool)

// Check calls f.
func (f PolicyFunc) Check(req Request, snap Snapshot) (string, bool) { return f(req, snap) }

// AllowAll accepts every change.
var AllowAll Policy = PolicyFunc(func(Request, Snapshot) (string, bool) { return "", true })

// GroupPolicy bounds how many storage nodes may be unavailable at once,
// using the redundancy groups of the topology.
//
// A change that takes a storage node out of service is rejected when it
// would leave more than MaxUnavailableGroups groups with unavailable storage
// nodes, or fewer than MinAvailablePerGroup available storage nodes in the
// target's group. Changes that keep the node available always pass.
type GroupPolicy struct {
	MaxUnavailableGroups int
	MinAvailablePerGroup int
}

// DefaultGroupPolicy allows one group at a time to be taken down, as long
// as one node in it stays available.
func DefaultGroupPolicy() GroupPolicy {
	return GroupPolicy{MaxUnavailableGroups: 1, MinAvailablePerGroup: 1}
}

func unavailable(ni cluster.NodeInfo) bool {
	return !ni.Wanted.State.Available() || !ni.Generated().State.Available()
}

// Check implements Policy.
//
// Parameters:
//   - req: the SAFE request; only req.Node and req.State are consulted
//   - snap: the node views the request is decided against
//
// A MaxUnavailableGroups of 0 puts no bound on the number of groups, and a
// MinAvailablePerGroup of 0 lets the last storage node of a group go.
// Storage nodes count as unavailable when either their wanted or their
// generated state is not available.
//
// Thread Safety:
// GroupPolicy is a value with no internal state; Check may be called
// concurrently on the same policy.
//
// Example:
//
//	p := safety.GroupPolicy{MaxUnavailableGroups: 1, MinAvailablePerGroup: 2}
//	if reason, ok := p.Check(req, reg.Snapshot()); !ok {
//	    return reason
//	}
func (p GroupPolicy) Check(req Request, snap Snapshot) (string, bool) {
	if req.State.Available() {
		return "", true
	}
	target, ok := snap.Info(req.Node)
	if !ok {
		return fmt.Sprintf("%s is not configured", req.Node), false
	}

	var downGroups []string
	firstDown := map[string]cluster.Node{}
	available := 0
	for _, ni := range snap.Nodes {
		if ni.Node.Type != cluster.Storage || ni.Node == req.Node {
			continue
		}
		if ni.Group == target.Group {
			if !unavailable(ni) {
				available++
			}
			continue
		}
		if unavailable(ni) && !slices.Contains(downGroups, ni.Group) {
			downGroups = append(downGroups, ni.Group)
			firstDown[ni.Group] = ni.Node
		}
	}

	if limit := p.MaxUnavailableGroups; limit > 0 && len(downGroups)+1 > limit {
		g := downGroups[0]
		return fmt.Sprintf("another storage node in group %s is unavailable: %s", g, firstDown[g]), false
	}
	if available < p.MinAvailablePerGroup {
		return fmt.Sprintf("would bring available storage nodes in group %s below %d",
			target.Group, p.MinAvailablePerGroup), false
	}
	return "", true
}
