package audit

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/clusterstate/internal/cluster"
)

func TestHandleNewWantedNodeState(t *testing.T) {
	logger, hook := test.NewNullLogger()
	l := New(logger)
	fixed := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return fixed }

	var events []Event
	l.OnEvent(func(ev Event) { events = append(events, ev) })

	info := cluster.NodeInfo{
		Cluster: "music",
		Node:    cluster.StorageNode(2),
		Wanted:  cluster.NewNodeState(cluster.Storage, cluster.Up, ""),
	}
	l.HandleNewWantedNodeState(info, cluster.NewNodeState(cluster.Storage, cluster.Maintenance, "operator"))

	require.Len(t, events, 1)
	ev := events[0]
	assert.NotEqual(t, uuid.Nil, ev.ID)
	assert.Equal(t, fixed, ev.Time)
	assert.Equal(t, "music", ev.Cluster)
	assert.Equal(t, cluster.Up, ev.Previous.State)
	assert.Equal(t, cluster.Maintenance, ev.Wanted.State)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, "wanted state changed", entry.Message)
	assert.Equal(t, "storage.2", entry.Data["node"])
	assert.Equal(t, "maintenance", entry.Data["state"])
	assert.Equal(t, "up", entry.Data["previous"])
	assert.Equal(t, "operator", entry.Data["reason"])
	assert.Equal(t, ev.ID.String(), entry.Data["event"])
}

func TestEventIDsAreUnique(t *testing.T) {
	logger, _ := test.NewNullLogger()
	l := New(logger)
	seen := map[uuid.UUID]bool{}
	l.OnEvent(func(ev Event) { seen[ev.ID] = true })

	for i := 0; i < 5; i++ {
		l.HandleNewWantedNodeState(cluster.NodeInfo{Node: cluster.StorageNode(i)}, cluster.NewNodeState(cluster.Storage, cluster.Down, ""))
	}
	assert.Len(t, seen, 5)
}
