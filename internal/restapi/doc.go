// Package restapi implements the cluster state REST API under /cluster/v2.
//
// # Units
//
// Every resource is a unit addressed by the path after the prefix:
//
//	/cluster/v2                          all clusters
//	/cluster/v2/<cluster>                generated cluster state and version
//	/cluster/v2/<cluster>/<service>      storage or distributor nodes
//	/cluster/v2/<cluster>/<service>/<n>  one node
//
// GET renders the unit. The recursive option (false, true or a depth)
// selects how many levels of children are rendered in full; deeper children
// are rendered as links.
//
// PUT on a storage node sets its user (wanted) state:
//
//	{"state": {"user": {"state": "maintenance", "reason": "upgrade"}},
//	 "condition": "safe", "response-wait": "wait-until-cluster-acked"}
//
// The answer is {"wasModified": bool, "reason": "..."}. A request rejected
// by the safety policy is still answered with 200.
//
// # Master
//
// Mutations and recursive reads are processed by the cluster master only.
// Other processes answer 307 with a Location pointing at the master, or 503
// when no master is known.
//
// # Errors
//
// Every error is rendered as {"error-code": "...", "message": "..."}.
// Service returns either an *Error, a master error or an unexpected error;
// the Handler maps them to a status exactly once.
package restapi
