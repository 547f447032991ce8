// Package config loads the coordinator configuration from a YAML file with
// environment overrides.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/dreamware/clusterstate/internal/coordinator"
	"github.com/dreamware/clusterstate/internal/master"
	"github.com/dreamware/clusterstate/internal/safety"
)

// Config is the complete coordinator configuration.
type Config struct {
	Listen          string          `yaml:"listen"`
	Log             LogConfig       `yaml:"log"`
	DataDir         string          `yaml:"dataDir"`
	SafeWaitTimeout time.Duration   `yaml:"safeWaitTimeout"`
	HealthInterval  time.Duration   `yaml:"healthInterval"`
	Master          MasterConfig    `yaml:"master"`
	Clusters        []ClusterConfig `yaml:"clusters"`
}

// LogConfig selects the log level and format ("text" or "json").
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MasterConfig names the master of the served clusters. Address
// ("host:port") makes another process the master. Without an address this
// process is the master unless Self is explicitly false, which leaves the
// master unknown.
type MasterConfig struct {
	Self    *bool  `yaml:"self"`
	Address string `yaml:"address"`
}

// IsSelf reports whether this process is configured as the master.
func (m MasterConfig) IsSelf() bool {
	if m.Self != nil {
		return *m.Self
	}
	return m.Address == ""
}

// ClusterConfig is the topology of one cluster.
type ClusterConfig struct {
	Name   string        `yaml:"name"`
	Policy PolicyConfig  `yaml:"policy"`
	Groups []GroupConfig `yaml:"groups"`
}

// PolicyConfig parameterizes safety.GroupPolicy. Unset limits take the
// value of safety.DefaultGroupPolicy; an explicit 0 disables the limit.
type PolicyConfig struct {
	MaxUnavailableGroups *int `yaml:"maxUnavailableGroups"`
	MinAvailablePerGroup *int `yaml:"minAvailablePerGroup"`
}

// GroupConfig is one redundancy group.
type GroupConfig struct {
	Name  string       `yaml:"name"`
	Nodes []NodeConfig `yaml:"nodes"`
}

// NodeConfig is one configured index. Storage and Distributor are the
// state probe addresses, both optional.
type NodeConfig struct {
	Index       int    `yaml:"index"`
	Storage     string `yaml:"storage"`
	Distributor string `yaml:"distributor"`
}

// Default returns the configuration used for unset fields.
func Default() Config {
	return Config{
		Listen:          ":19050",
		Log:             LogConfig{Level: "info", Format: "text"},
		DataDir:         "data",
		SafeWaitTimeout: 5 * time.Second,
		HealthInterval:  5 * time.Second,
	}
}

// Load reads the file at path, applies environment overrides and validates
// the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	return Parse(data)
}

// Parse decodes YAML data on top of Default, applies environment overrides
// and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	cfg.applyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overrides fields from CLUSTERSTATE_* variables. CLUSTERSTATE_MASTER
// is either "self" or the master's host:port.
func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("CLUSTERSTATE_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := getenv("CLUSTERSTATE_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getenv("CLUSTERSTATE_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := getenv("CLUSTERSTATE_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := getenv("CLUSTERSTATE_MASTER"); v != "" {
		if strings.EqualFold(v, "self") {
			c.Master = MasterConfig{}
		} else {
			c.Master = MasterConfig{Address: v}
		}
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return errors.New("listen address is required")
	}
	if c.SafeWaitTimeout <= 0 {
		return errors.Errorf("safeWaitTimeout must be positive, got %s", c.SafeWaitTimeout)
	}
	if c.HealthInterval <= 0 {
		return errors.Errorf("healthInterval must be positive, got %s", c.HealthInterval)
	}
	if c.Master.Address != "" {
		if c.Master.IsSelf() {
			return errors.New("master: self and address are mutually exclusive")
		}
		if _, _, err := master.SplitAddr(c.Master.Address); err != nil {
			return err
		}
	}
	if len(c.Clusters) == 0 {
		return errors.New("at least one cluster must be configured")
	}
	names := map[string]bool{}
	for _, cl := range c.Clusters {
		if cl.Name == "" {
			return errors.New("cluster name is required")
		}
		if strings.Contains(cl.Name, "/") {
			return errors.Errorf("cluster name %q must not contain '/'", cl.Name)
		}
		if names[cl.Name] {
			return errors.Errorf("cluster %s configured twice", cl.Name)
		}
		names[cl.Name] = true
		if err := cl.validate(); err != nil {
			return errors.Wrapf(err, "cluster %s", cl.Name)
		}
	}
	return nil
}

func (cl ClusterConfig) validate() error {
	for _, limit := range []*int{cl.Policy.MaxUnavailableGroups, cl.Policy.MinAvailablePerGroup} {
		if limit != nil && *limit < 0 {
			return errors.New("policy limits must not be negative")
		}
	}
	if len(cl.Groups) == 0 {
		return errors.New("no groups configured")
	}
	seen := map[int]bool{}
	for _, g := range cl.Groups {
		if len(g.Nodes) == 0 {
			return errors.Errorf("group %q has no nodes", g.Name)
		}
		for _, n := range g.Nodes {
			if n.Index < 0 {
				return errors.Errorf("negative node index %d", n.Index)
			}
			if seen[n.Index] {
				return errors.Errorf("node index %d configured twice", n.Index)
			}
			seen[n.Index] = true
		}
	}
	return nil
}

// Topology converts the cluster configuration to a registry topology.
// Groups without a name are named after their position.
func (cl ClusterConfig) Topology() coordinator.Topology {
	var topo coordinator.Topology
	for i, g := range cl.Groups {
		name := g.Name
		if name == "" {
			name = strconv.Itoa(i)
		}
		for _, n := range g.Nodes {
			topo.Nodes = append(topo.Nodes, coordinator.TopologyNode{
				Index:           n.Index,
				Group:           name,
				StorageAddr:     n.Storage,
				DistributorAddr: n.Distributor,
			})
		}
	}
	return topo
}

// GroupPolicy returns the safety policy of the cluster. Unset limits fall
// back to safety.DefaultGroupPolicy.
func (cl ClusterConfig) GroupPolicy() safety.GroupPolicy {
	p := safety.DefaultGroupPolicy()
	if v := cl.Policy.MaxUnavailableGroups; v != nil {
		p.MaxUnavailableGroups = *v
	}
	if v := cl.Policy.MinAvailablePerGroup; v != nil {
		p.MinAvailablePerGroup = *v
	}
	return p
}
