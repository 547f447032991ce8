package restapi

import (
	"encoding/json"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dreamware/clusterstate/internal/cluster"
)

// Prefix is the path every unit is addressed under.
const Prefix = "/cluster/v2"

// prefixSegments is the number of segments of the split Prefix, counting
// the empty segment before the leading slash.
const prefixSegments = 3

// Unbounded is the recursion depth of recursive=true.
const Unbounded = math.MaxInt

// UserState is the only state type a client can set.
const UserState = "user"

// UnitPath returns the unit path of an absolute request path: the segments
// after the prefix, without empty segments.
func UnitPath(path string) []string {
	segs := strings.Split(path, "/")
	if len(segs) <= prefixSegments {
		return nil
	}
	var unit []string
	for _, s := range segs[prefixSegments:] {
		if s != "" {
			unit = append(unit, s)
		}
	}
	return unit
}

// ParseRecursive parses the recursive option. An absent option is 0.
func ParseRecursive(value string, present bool) (int, error) {
	if !present {
		return 0, nil
	}
	switch value {
	case "false":
		return 0, nil
	case "true":
		return Unbounded, nil
	}
	depth, err := strconv.Atoi(value)
	if err != nil || depth < 0 {
		return 0, invalidOption("recursive option must be true, false, 0 or a positive integer, not %q", value)
	}
	return depth, nil
}

// maxTimeoutSeconds bounds the timeout option so that it fits a time.Duration.
const maxTimeoutSeconds = float64(math.MaxInt64) / float64(time.Second)

// ParseTimeout parses the timeout option, in seconds. An absent option is
// zero, meaning the configured default.
func ParseTimeout(value string, present bool) (time.Duration, error) {
	if !present {
		return 0, nil
	}
	secs, err := strconv.ParseFloat(value, 64)
	if err != nil || !(secs > 0) || secs >= maxTimeoutSeconds {
		return 0, invalidOption("timeout option must be a positive number of seconds up to %.0f, not %q", maxTimeoutSeconds, value)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// UnitState is a requested state with an optional reason.
type UnitState struct {
	State  cluster.State
	Reason string
}

type unitStateBody struct {
	State  string `json:"state"`
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

type setBody struct {
	State         map[string]unitStateBody `json:"state"`
	Condition     string                   `json:"condition"`
	ResponseWait  string                   `json:"response-wait"`
	ResponseWait2 string                   `json:"responseWait"`
}

// SetBody is a decoded PUT body.
type SetBody struct {
	States       map[string]UnitState
	Condition    cluster.Condition
	ResponseWait cluster.ResponseWait
}

// ParseSetBody decodes a PUT body. The condition defaults to FORCE and the
// response wait to wait-until-cluster-acked.
func ParseSetBody(r io.Reader) (SetBody, error) {
	var raw setBody
	dec := json.NewDecoder(r)
	if err := dec.Decode(&raw); err != nil {
		return SetBody{}, invalidContent("failed to parse JSON body: %s", err)
	}
	if len(raw.State) == 0 {
		return SetBody{}, invalidContent("set state request must contain a state")
	}

	body := SetBody{States: make(map[string]UnitState, len(raw.State))}
	for typ, us := range raw.State {
		id := us.State
		if id == "" {
			id = us.ID
		}
		if id == "" {
			return SetBody{}, invalidContent("state %q has no state value", typ)
		}
		s, err := cluster.ParseState(id)
		if err != nil {
			return SetBody{}, invalidContent("invalid state %q for state type %q", id, typ)
		}
		body.States[typ] = UnitState{State: s, Reason: us.Reason}
	}

	if raw.Condition != "" {
		c, err := cluster.ParseCondition(raw.Condition)
		if err != nil {
			return SetBody{}, invalidContent("condition must be safe or force, not %q", raw.Condition)
		}
		body.Condition = c
	}

	wait := raw.ResponseWait
	if wait == "" {
		wait = raw.ResponseWait2
	}
	if wait != "" {
		w, err := cluster.ParseResponseWait(wait)
		if err != nil {
			return SetBody{}, invalidContent("response-wait must be wait-until-cluster-acked or no-wait, not %q", wait)
		}
		body.ResponseWait = w
	}
	return body, nil
}

// GetRequest is a state query.
type GetRequest struct {
	Unit      []string
	Recursive int
}

// SetRequest is a state mutation. Timeout bounds the wait of a SAFE request;
// zero means the service default.
type SetRequest struct {
	Unit         []string
	States       map[string]UnitState
	Condition    cluster.Condition
	ResponseWait cluster.ResponseWait
	Timeout      time.Duration
}

// SetResponse is the result of a mutation.
type SetResponse struct {
	WasModified bool   `json:"wasModified"`
	Reason      string `json:"reason"`
}
