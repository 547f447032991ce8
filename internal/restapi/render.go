package restapi

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/dreamware/clusterstate/internal/cluster"
	"github.com/dreamware/clusterstate/internal/safety"
)

// UnitResponse is one node of the unit tree. A unit beyond the requested
// recursion depth only carries its Link.
type UnitResponse struct {
	Link       string
	Attributes map[string]string
	State      map[string]cluster.NodeState
	// Version is the cluster state version, set on cluster units.
	Version uint64
	// Children maps a child type ("cluster", "service", "node") to the
	// children of that type by id.
	Children map[string]map[string]*UnitResponse
}

// MarshalJSON renders the unit with its children inlined by type.
func (u *UnitResponse) MarshalJSON() ([]byte, error) {
	if u.Link != "" {
		return json.Marshal(map[string]string{"link": u.Link})
	}
	out := make(map[string]any, len(u.Children)+3)
	if len(u.Attributes) > 0 {
		out["attributes"] = u.Attributes
	}
	if len(u.State) > 0 {
		out["state"] = u.State
	}
	if u.Version > 0 {
		out["version"] = u.Version
	}
	for typ, children := range u.Children {
		out[typ] = children
	}
	return json.Marshal(out)
}

func unitLink(path []string) string {
	if len(path) == 0 {
		return Prefix
	}
	return Prefix + "/" + strings.Join(path, "/")
}

func linkTo(path ...string) *UnitResponse {
	return &UnitResponse{Link: unitLink(path)}
}

// clusterView is the data a cluster unit is rendered from.
type clusterView struct {
	name string
	snap safety.Snapshot
}

func renderRoot(views []clusterView, depth int) *UnitResponse {
	clusters := make(map[string]*UnitResponse, len(views))
	for _, v := range views {
		if depth > 0 {
			clusters[v.name] = renderCluster(v, depth-1)
		} else {
			clusters[v.name] = linkTo(v.name)
		}
	}
	return &UnitResponse{Children: map[string]map[string]*UnitResponse{"cluster": clusters}}
}

func renderCluster(v clusterView, depth int) *UnitResponse {
	services := make(map[string]*UnitResponse, len(cluster.NodeTypes))
	for _, t := range cluster.NodeTypes {
		if depth > 0 {
			services[t.String()] = renderService(v, t, depth-1)
		} else {
			services[t.String()] = linkTo(v.name, t.String())
		}
	}
	return &UnitResponse{
		Attributes: map[string]string{"cluster-state": v.snap.State.String()},
		State:      map[string]cluster.NodeState{"generated": clusterGenerated(v.snap)},
		Version:    v.snap.State.Version(),
		Children:   map[string]map[string]*UnitResponse{"service": services},
	}
}

func renderService(v clusterView, t cluster.NodeType, depth int) *UnitResponse {
	nodes := make(map[string]*UnitResponse)
	for _, ni := range v.snap.Nodes {
		if ni.Node.Type != t {
			continue
		}
		id := strconv.Itoa(ni.Node.Index)
		if depth > 0 {
			nodes[id] = renderNode(v, ni)
		} else {
			nodes[id] = linkTo(v.name, t.String(), id)
		}
	}
	return &UnitResponse{Children: map[string]map[string]*UnitResponse{"node": nodes}}
}

func renderNode(v clusterView, ni cluster.NodeInfo) *UnitResponse {
	generated, ok := v.snap.State.NodeState(ni.Node)
	if !ok {
		generated = ni.Generated()
	}
	return &UnitResponse{
		Attributes: map[string]string{"hierarchical-group": ni.Group},
		State: map[string]cluster.NodeState{
			"generated": generated,
			"unit":      ni.Reported,
			UserState:   ni.Wanted,
		},
	}
}

// clusterGenerated is up while at least one node of each type is available
// in the generated state.
func clusterGenerated(snap safety.Snapshot) cluster.NodeState {
	available := map[cluster.NodeType]bool{}
	for _, n := range snap.State.Nodes() {
		if ns, _ := snap.State.NodeState(n); ns.State.Available() {
			available[n.Type] = true
		}
	}
	for _, t := range cluster.NodeTypes {
		if !available[t] {
			return cluster.NodeState{State: cluster.Down, Reason: "no available " + t.String() + " nodes"}
		}
	}
	return cluster.NodeState{State: cluster.Up}
}
