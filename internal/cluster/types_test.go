package cluster

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewNode tests node construction and validation
func TestNewNode(t *testing.T) {
	tests := []struct {
		name    string
		typ     NodeType
		index   int
		wantErr bool
	}{
		{name: "storage node", typ: Storage, index: 2},
		{name: "distributor node", typ: Distributor, index: 0},
		{name: "negative index", typ: Storage, index: -1, wantErr: true},
		{name: "unknown type", typ: NodeType(7), index: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := NewNode(tt.typ, tt.index)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidArgument))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.typ, n.Type)
			assert.Equal(t, tt.index, n.Index)
		})
	}
}

func TestNodePairAndString(t *testing.T) {
	n := StorageNode(2)
	assert.Equal(t, "storage.2", n.String())
	assert.Equal(t, DistributorNode(2), n.Pair())
	assert.Equal(t, n, n.Pair().Pair())

	parsed, err := ParseNode("distributor.5")
	require.NoError(t, err)
	assert.Equal(t, DistributorNode(5), parsed)

	for _, bad := range []string{"storage", "storage.x", "foo.1", "storage.-1"} {
		_, err := ParseNode(bad)
		assert.Error(t, err, bad)
	}
}

func TestStateOrdering(t *testing.T) {
	assert.Equal(t, Down, MoreRestrictive(Up, Down))
	assert.Equal(t, Maintenance, MoreRestrictive(Maintenance, Retired))
	assert.Equal(t, Up, MoreRestrictive(Up, Up))
	assert.True(t, Up < Retired && Retired < Maintenance && Maintenance < Down)
}

func TestParseState(t *testing.T) {
	s, err := ParseState("MAINTENANCE")
	require.NoError(t, err)
	assert.Equal(t, Maintenance, s)

	_, err = ParseState("sleeping")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestValidWantedFor(t *testing.T) {
	assert.True(t, Maintenance.ValidWantedFor(Storage))
	assert.False(t, Maintenance.ValidWantedFor(Distributor))
	assert.True(t, Down.ValidWantedFor(Distributor))
	assert.False(t, Initializing.ValidWantedFor(Storage))
}

func TestParseConditionAndResponseWait(t *testing.T) {
	c, err := ParseCondition("safe")
	require.NoError(t, err)
	assert.Equal(t, Safe, c)
	_, err = ParseCondition("maybe")
	assert.Error(t, err)

	w, err := ParseResponseWait("no-wait")
	require.NoError(t, err)
	assert.Equal(t, NoWait, w)
	_, err = ParseResponseWait("forever")
	assert.Error(t, err)
}

func TestNodeStateJSON(t *testing.T) {
	ns := NewNodeState(Storage, Maintenance, "operator")
	data, err := json.Marshal(ns)
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":"maintenance","reason":"operator"}`, string(data))
}

func TestNodeStateWithCopies(t *testing.T) {
	ns := NewNodeState(Distributor, Up, "started")

	down := ns.WithState(Down)
	assert.Equal(t, NewNodeState(Distributor, Down, "started"), down)
	assert.Equal(t, Up, ns.State, "receiver is not modified")

	reasoned := down.WithReason("disk full")
	assert.Equal(t, NewNodeState(Distributor, Down, "disk full"), reasoned)
	assert.Equal(t, "started", down.Reason)
	assert.True(t, reasoned.SameState(down))
}

func TestGenerated(t *testing.T) {
	ni := NodeInfo{
		Node:     StorageNode(1),
		Reported: NewNodeState(Storage, Up, ""),
		Wanted:   NewNodeState(Storage, Maintenance, "operator"),
	}
	assert.Equal(t, NewNodeState(Storage, Maintenance, "operator"), ni.Generated())

	ni.Reported = NewNodeState(Storage, Down, "connection refused")
	assert.Equal(t, NewNodeState(Storage, Down, "connection refused"), ni.Generated())
}

func TestClusterStateString(t *testing.T) {
	cs := NewClusterState(7, map[Node]NodeState{
		StorageNode(0):     NewNodeState(Storage, Up, ""),
		StorageNode(2):     NewNodeState(Storage, Maintenance, ""),
		StorageNode(3):     NewNodeState(Storage, Up, ""),
		DistributorNode(0): NewNodeState(Distributor, Up, ""),
		DistributorNode(1): NewNodeState(Distributor, Down, ""),
		DistributorNode(3): NewNodeState(Distributor, Up, ""),
	})
	assert.Equal(t, "version:7 distributor:4 .1.s:d storage:4 .2.s:m", cs.String())
	assert.Equal(t, uint64(7), cs.Version())
	assert.Len(t, cs.Nodes(), 6)

	s, ok := cs.NodeState(StorageNode(2))
	assert.True(t, ok)
	assert.Equal(t, Maintenance, s.State)
	_, ok = cs.NodeState(StorageNode(9))
	assert.False(t, ok)
}

// TestGetJSON tests the GetJSON function with various scenarios
func TestGetJSON(t *testing.T) {
	tests := []struct {
		name           string
		serverResponse int
		serverBody     string
		expectError    bool
	}{
		{
			name:           "successful GET",
			serverResponse: http.StatusOK,
			serverBody:     `{"state":"up","cluster-state-version":4}`,
		},
		{
			name:           "server error",
			serverResponse: http.StatusInternalServerError,
			serverBody:     `oops`,
			expectError:    true,
		},
		{
			name:           "invalid json",
			serverResponse: http.StatusOK,
			serverBody:     `{not json`,
			expectError:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodGet {
					t.Errorf("Expected GET, got %s", r.Method)
				}
				w.WriteHeader(tt.serverResponse)
				w.Write([]byte(tt.serverBody))
			}))
			defer server.Close()

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()

			var status NodeStatus
			err := GetJSON(ctx, server.URL, &status)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "up", status.State)
			assert.Equal(t, uint64(4), status.Version)
		})
	}
}
