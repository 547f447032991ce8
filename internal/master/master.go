// Package master tracks which process is the master of a cluster and turns
// that knowledge into redirect or unavailable answers for requests that only
// the master may serve.
//
// The elected identity comes from an external election mechanism; this
// package only consumes it.
package master

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
)

// Status is this process' view of the cluster master.
type Status int

const (
	// Unknown means no master is currently known.
	Unknown Status = iota
	// Master means this process is the master.
	Master
	// NotMaster means another process, at Host:Port, is the master.
	NotMaster
)

func (s Status) String() string {
	switch s {
	case Master:
		return "master"
	case NotMaster:
		return "not-master"
	default:
		return "master-unknown"
	}
}

// Info is a snapshot of the elected identity.
type Info struct {
	Status Status
	Host   string
	Port   int
}

// Source provides the current master identity of a cluster.
type Source interface {
	Current() Info
}

// ErrUnknownMaster is returned when a request needs the master and none is
// known.
var ErrUnknownMaster = errors.New("no known master cluster controller currently exists")

// OtherMasterError is returned when another process is the master.
type OtherMasterError struct {
	Host string
	Port int
}

func (e *OtherMasterError) Error() string {
	return fmt.Sprintf("this cluster controller is not master; the master is at %s", net.JoinHostPort(e.Host, strconv.Itoa(e.Port)))
}

// Check returns nil if a request can be served here. Requests that do not
// need the master are always served locally.
func Check(src Source, needsMaster bool) error {
	if !needsMaster {
		return nil
	}
	info := src.Current()
	switch info.Status {
	case Master:
		return nil
	case NotMaster:
		return &OtherMasterError{Host: info.Host, Port: info.Port}
	default:
		return ErrUnknownMaster
	}
}

// Tracker holds the elected identity of one cluster. The zero value is a
// tracker with an unknown master.
//
// Thread Safety:
// All methods are safe for concurrent use. Readers see either the old or
// the new Info, never a mix of both.
//
// Example:
//
//	t := master.NewTracker(master.Info{Status: master.Master})
//	// a lost election hands the cluster to cc2
//	t.Follow("cc2", 19050)
//	if err := master.Check(t, true); err != nil {
//	    return err // *OtherMasterError naming cc2:19050
//	}
type Tracker struct {
	mu   sync.RWMutex
	info Info
}

// NewTracker returns a tracker starting out with info.
func NewTracker(info Info) *Tracker {
	return &Tracker{info: info}
}

// Static returns a tracker for a fixed setup. If self is true this process
// is the master; otherwise addr ("host:port") names the master, and an empty
// addr leaves the master unknown.
func Static(self bool, addr string) (*Tracker, error) {
	if self {
		return NewTracker(Info{Status: Master}), nil
	}
	if addr == "" {
		return NewTracker(Info{Status: Unknown}), nil
	}
	host, port, err := SplitAddr(addr)
	if err != nil {
		return nil, err
	}
	return NewTracker(Info{Status: NotMaster, Host: host, Port: port}), nil
}

// SplitAddr splits "host:port" and validates the port.
func SplitAddr(addr string) (string, int, error) {
	host, p, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("master address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(p)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, fmt.Errorf("master address %q: invalid port", addr)
	}
	return host, port, nil
}

// Current implements Source.
func (t *Tracker) Current() Info {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.info
}

// Set records a new election outcome.
func (t *Tracker) Set(info Info) {
	t.mu.Lock()
	t.info = info
	t.mu.Unlock()
}

// BecomeMaster marks this process as the master.
func (t *Tracker) BecomeMaster() { t.Set(Info{Status: Master}) }

// Follow marks the process at host:port as the master.
func (t *Tracker) Follow(host string, port int) {
	t.Set(Info{Status: NotMaster, Host: host, Port: port})
}

// Lose forgets the master.
func (t *Tracker) Lose() { t.Set(Info{Status: Unknown}) }

// escapes is applied in order, so % has to come first.
var escapes = []struct{ pattern, replacement string }{
	{"%", "%25"},
	{" ", "%20"},
	{"?", "%3F"},
	{"=", "%3D"},
	{"&", "%26"},
}

// Escape percent-escapes the characters that would break a query value.
// It is not a full URL encoding.
func Escape(v string) string {
	for _, e := range escapes {
		v = strings.ReplaceAll(v, e.pattern, e.replacement)
	}
	return v
}

// Option is one query option of a request, in arrival order.
type Option struct {
	Key, Value string
}

// Location rebuilds a request URL so that it points at the master at
// host:port. Option values are escaped with Escape.
func Location(host string, port int, path string, options []Option) string {
	var b strings.Builder
	b.WriteString("http://")
	b.WriteString(net.JoinHostPort(host, strconv.Itoa(port)))
	b.WriteString(path)
	for i, o := range options {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString(o.Key)
		b.WriteByte('=')
		b.WriteString(Escape(o.Value))
	}
	return b.String()
}
