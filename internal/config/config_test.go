package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/clusterstate/internal/coordinator"
	"github.com/dreamware/clusterstate/internal/safety"
)

const sample = `
listen: ":8080"
log:
  level: debug
  format: json
dataDir: /var/lib/clusterstate
safeWaitTimeout: 30s
healthInterval: 2s
clusters:
  - name: music
    policy:
      maxUnavailableGroups: 2
    groups:
      - name: a
        nodes:
          - index: 0
            storage: http://s0:19100
            distributor: http://d0:19101
          - index: 1
      - nodes:
          - index: 2
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, LogConfig{Level: "debug", Format: "json"}, cfg.Log)
	assert.Equal(t, "/var/lib/clusterstate", cfg.DataDir)
	assert.Equal(t, 30*time.Second, cfg.SafeWaitTimeout)
	assert.Equal(t, 2*time.Second, cfg.HealthInterval)
	assert.True(t, cfg.Master.IsSelf())
	require.Len(t, cfg.Clusters, 1)

	cl := cfg.Clusters[0]
	assert.Equal(t, coordinator.Topology{Nodes: []coordinator.TopologyNode{
		{Index: 0, Group: "a", StorageAddr: "http://s0:19100", DistributorAddr: "http://d0:19101"},
		{Index: 1, Group: "a"},
		{Index: 2, Group: "1"},
	}}, cl.Topology())
	assert.Equal(t, safety.GroupPolicy{MaxUnavailableGroups: 2, MinAvailablePerGroup: 1}, cl.GroupPolicy())
}

func TestParseKeepsDefaults(t *testing.T) {
	cfg, err := Parse([]byte("clusters: [{name: c, groups: [{nodes: [{index: 0}]}]}]"))
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, def.Listen, cfg.Listen)
	assert.Equal(t, def.Log, cfg.Log)
	assert.Equal(t, def.SafeWaitTimeout, cfg.SafeWaitTimeout)
	assert.Equal(t, safety.DefaultGroupPolicy(), cfg.Clusters[0].GroupPolicy())
}

func TestGroupPolicyZeroDisablesLimits(t *testing.T) {
	tests := []struct {
		name   string
		policy string
		want   safety.GroupPolicy
	}{
		{"unset", "{}", safety.DefaultGroupPolicy()},
		{"no group minimum", "{minAvailablePerGroup: 0}", safety.GroupPolicy{MaxUnavailableGroups: 1, MinAvailablePerGroup: 0}},
		{"no group limit", "{maxUnavailableGroups: 0}", safety.GroupPolicy{MaxUnavailableGroups: 0, MinAvailablePerGroup: 1}},
		{"both set", "{maxUnavailableGroups: 3, minAvailablePerGroup: 2}", safety.GroupPolicy{MaxUnavailableGroups: 3, MinAvailablePerGroup: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte("clusters: [{name: c, policy: " + tt.policy + ", groups: [{nodes: [{index: 0}]}]}]"))
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Clusters[0].GroupPolicy())
		})
	}
}

func TestMasterConfig(t *testing.T) {
	no := false
	yes := true
	assert.True(t, MasterConfig{}.IsSelf())
	assert.False(t, MasterConfig{Self: &no}.IsSelf())
	assert.False(t, MasterConfig{Address: "cc1:19050"}.IsSelf())
	assert.True(t, MasterConfig{Self: &yes, Address: "cc1:19050"}.IsSelf())
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"CLUSTERSTATE_LISTEN":     ":9999",
		"CLUSTERSTATE_LOG_LEVEL":  "warn",
		"CLUSTERSTATE_LOG_FORMAT": "json",
		"CLUSTERSTATE_DATA_DIR":   "/tmp/cs",
		"CLUSTERSTATE_MASTER":     "cc1:19050",
	}
	cfg := Default()
	cfg.applyEnv(func(k string) string { return env[k] })

	assert.Equal(t, ":9999", cfg.Listen)
	assert.Equal(t, LogConfig{Level: "warn", Format: "json"}, cfg.Log)
	assert.Equal(t, "/tmp/cs", cfg.DataDir)
	assert.Equal(t, "cc1:19050", cfg.Master.Address)
	assert.False(t, cfg.Master.IsSelf())

	env["CLUSTERSTATE_MASTER"] = "SELF"
	cfg.applyEnv(func(k string) string { return env[k] })
	assert.True(t, cfg.Master.IsSelf())
	assert.Empty(t, cfg.Master.Address)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"no clusters", "listen: ':1'", "at least one cluster"},
		{"empty listen", "listen: ''\nclusters: [{name: c, groups: [{nodes: [{index: 0}]}]}]", "listen address"},
		{"bad timeout", "safeWaitTimeout: -1s\nclusters: [{name: c, groups: [{nodes: [{index: 0}]}]}]", "safeWaitTimeout"},
		{"self and address", "master: {self: true, address: 'h:1'}\nclusters: [{name: c, groups: [{nodes: [{index: 0}]}]}]", "mutually exclusive"},
		{"bad master port", "master: {address: 'h:x'}\nclusters: [{name: c, groups: [{nodes: [{index: 0}]}]}]", "invalid port"},
		{"unnamed cluster", "clusters: [{groups: [{nodes: [{index: 0}]}]}]", "cluster name is required"},
		{"slash in name", "clusters: [{name: a/b, groups: [{nodes: [{index: 0}]}]}]", "must not contain"},
		{"duplicate cluster", "clusters: [{name: c, groups: [{nodes: [{index: 0}]}]}, {name: c, groups: [{nodes: [{index: 0}]}]}]", "configured twice"},
		{"no groups", "clusters: [{name: c}]", "no groups"},
		{"empty group", "clusters: [{name: c, groups: [{name: g}]}]", "has no nodes"},
		{"negative index", "clusters: [{name: c, groups: [{nodes: [{index: -1}]}]}]", "negative node index"},
		{"duplicate index", "clusters: [{name: c, groups: [{nodes: [{index: 0}]}, {nodes: [{index: 0}]}]}]", "index 0 configured twice"},
		{"negative policy", "clusters: [{name: c, policy: {maxUnavailableGroups: -1}, groups: [{nodes: [{index: 0}]}]}]", "must not be negative"},
		{"negative group minimum", "clusters: [{name: c, policy: {minAvailablePerGroup: -2}, groups: [{nodes: [{index: 0}]}]}]", "must not be negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	_, err := Parse([]byte("clusters: ["))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clusterstate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "music", cfg.Clusters[0].Name)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}
