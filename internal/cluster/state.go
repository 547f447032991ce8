package cluster

import (
	"fmt"
	"strings"
)

// State is a node availability level. States are ordered by how restrictive
// they are: Up is the least restrictive, Down the most.
type State int

const (
	Up State = iota
	Initializing
	Retired
	Stopping
	Maintenance
	Down
)

var stateNames = [...]string{
	Up:           "up",
	Initializing: "initializing",
	Retired:      "retired",
	Stopping:     "stopping",
	Maintenance:  "maintenance",
	Down:         "down",
}

// abbreviations used by the compact cluster state form
var stateAbbrev = [...]string{
	Up:           "u",
	Initializing: "i",
	Retired:      "r",
	Stopping:     "s",
	Maintenance:  "m",
	Down:         "d",
}

func (s State) String() string {
	if s < Up || s > Down {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Abbrev returns the one-letter form of s.
func (s State) Abbrev() string {
	if s < Up || s > Down {
		return "?"
	}
	return stateAbbrev[s]
}

// ParseState parses a state name (case-insensitive).
func ParseState(s string) (State, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for st, n := range stateNames {
		if n == name {
			return State(st), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown state %q", ErrInvalidArgument, s)
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	st, err := ParseState(string(b))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// MoreRestrictive returns whichever of a and b is more restrictive.
func MoreRestrictive(a, b State) State {
	if a > b {
		return a
	}
	return b
}

// Available reports whether a node in state s still serves its data.
func (s State) Available() bool {
	return s == Up || s == Retired || s == Initializing
}

// ValidWantedFor reports whether s may be used as a wanted state for nodes of
// type t. Distributors cannot be put in maintenance or retired.
func (s State) ValidWantedFor(t NodeType) bool {
	switch s {
	case Up, Down:
		return true
	case Maintenance, Retired:
		return t == Storage
	}
	return false
}

// NodeState is the state of a single node together with the reason it was
// set. The zero reason is the empty string.
type NodeState struct {
	Type   NodeType `json:"-"`
	State  State    `json:"state"`
	Reason string   `json:"reason"`
}

// NewNodeState returns a NodeState for a node of type t.
func NewNodeState(t NodeType, s State, reason string) NodeState {
	return NodeState{Type: t, State: s, Reason: reason}
}

// WithState returns a copy of ns with the state replaced.
func (ns NodeState) WithState(s State) NodeState {
	ns.State = s
	return ns
}

// WithReason returns a copy of ns with the reason replaced.
func (ns NodeState) WithReason(reason string) NodeState {
	ns.Reason = reason
	return ns
}

// SameState reports whether ns and o carry the same state, ignoring reasons.
func (ns NodeState) SameState(o NodeState) bool {
	return ns.State == o.State
}

func (ns NodeState) String() string {
	if ns.Reason == "" {
		return ns.State.String()
	}
	return fmt.Sprintf("%s (%s)", ns.State, ns.Reason)
}

// Condition tells whether a wanted-state request has to pass the redundancy
// safety checks.
type Condition int

const (
	// Force applies the request without safety checks.
	Force Condition = iota
	// Safe rejects the request when it would reduce redundancy too much.
	Safe
)

func (c Condition) String() string {
	if c == Safe {
		return "SAFE"
	}
	return "FORCE"
}

// ParseCondition parses "safe" or "force" (case-insensitive).
func ParseCondition(s string) (Condition, error) {
	switch strings.ToUpper(s) {
	case "SAFE":
		return Safe, nil
	case "FORCE":
		return Force, nil
	}
	return 0, fmt.Errorf("%w: unknown condition %q", ErrInvalidArgument, s)
}

// ResponseWait tells how long a set request waits before responding.
type ResponseWait int

const (
	// WaitUntilClusterAcked waits until the nodes acknowledged the new
	// cluster state.
	WaitUntilClusterAcked ResponseWait = iota
	// NoWait responds as soon as the new state is applied locally.
	NoWait
)

func (w ResponseWait) String() string {
	if w == NoWait {
		return "no-wait"
	}
	return "wait-until-cluster-acked"
}

// ParseResponseWait parses "wait-until-cluster-acked" or "no-wait".
func ParseResponseWait(s string) (ResponseWait, error) {
	switch strings.ToLower(s) {
	case "wait-until-cluster-acked":
		return WaitUntilClusterAcked, nil
	case "no-wait":
		return NoWait, nil
	}
	return 0, fmt.Errorf("%w: unknown response wait %q", ErrInvalidArgument, s)
}
