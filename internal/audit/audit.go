// Package audit records every applied wanted-state change as a structured
// log event.
package audit

import (
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dreamware/clusterstate/internal/cluster"
)

// Event is one applied wanted-state change.
type Event struct {
	ID       uuid.UUID
	Time     time.Time
	Cluster  string
	Node     cluster.Node
	Previous cluster.NodeState
	Wanted   cluster.NodeState
}

// Log writes audit events to a logrus logger. It implements
// coordinator.Listener.
type Log struct {
	log  logrus.FieldLogger
	now  func() time.Time
	sink func(Event)
}

// New returns an audit log writing to log.
func New(log logrus.FieldLogger) *Log {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Log{log: log, now: time.Now}
}

// OnEvent registers f to receive every event after it is logged.
func (l *Log) OnEvent(f func(Event)) {
	l.sink = f
}

// HandleNewWantedNodeState logs the change.
func (l *Log) HandleNewWantedNodeState(info cluster.NodeInfo, newState cluster.NodeState) {
	ev := Event{
		ID:       uuid.New(),
		Time:     l.now(),
		Cluster:  info.Cluster,
		Node:     info.Node,
		Previous: info.Wanted,
		Wanted:   newState,
	}
	l.log.WithFields(logrus.Fields{
		"event":    ev.ID.String(),
		"cluster":  ev.Cluster,
		"node":     ev.Node.String(),
		"previous": ev.Previous.State.String(),
		"state":    newState.State.String(),
		"reason":   newState.Reason,
	}).Info("wanted state changed")
	if l.sink != nil {
		l.sink(ev)
	}
}
