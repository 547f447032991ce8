package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/clusterstate/internal/cluster"
)

func TestListenerCountsWantedChanges(t *testing.T) {
	m := New()
	info := cluster.NodeInfo{Cluster: "music", Node: cluster.StorageNode(2)}
	m.HandleNewWantedNodeState(info, cluster.NewNodeState(cluster.Storage, cluster.Maintenance, ""))
	m.HandleNewWantedNodeState(info, cluster.NewNodeState(cluster.Storage, cluster.Maintenance, ""))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.wantedChanges.WithLabelValues("music", "storage", "maintenance")))
}

func TestDecisionsAndVersion(t *testing.T) {
	m := New()
	m.ObserveDecision("music", cluster.Safe, "allow")
	record := m.VersionRecorder("music")
	record(cluster.NewClusterState(12, nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.decisions.WithLabelValues("music", "SAFE", "allow")))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.version.WithLabelValues("music")))

	record(cluster.NewClusterState(13, nil))
	assert.Equal(t, 13.0, testutil.ToFloat64(m.version.WithLabelValues("music")))
}

func TestInstrumentAndHandler(t *testing.T) {
	m := New()
	h := m.Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/cluster/v2", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("418", "get")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.True(t, strings.Contains(string(body), "clusterstate_http_requests_total"))
}
