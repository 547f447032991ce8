package coordinator

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/exp/slices"

	"github.com/dreamware/clusterstate/internal/master"
)

// Cluster bundles the registry of a cluster with its master identity.
type Cluster struct {
	Registry *Registry
	Master   master.Source
}

// Controller is the set of clusters served by this process.
//
// Thread Safety:
// Clusters may be added while requests are served; lookups take a read
// lock only.
type Controller struct {
	mu       sync.RWMutex
	clusters map[string]Cluster
}

// NewController returns an empty controller.
func NewController() *Controller {
	return &Controller{clusters: make(map[string]Cluster)}
}

// Add registers a cluster. Cluster names must be unique.
func (c *Controller) Add(reg *Registry, m master.Source) error {
	if reg == nil || m == nil {
		return errors.New("cluster needs both a registry and a master source")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.clusters[reg.Name()]; dup {
		return fmt.Errorf("cluster %s registered twice", reg.Name())
	}
	c.clusters[reg.Name()] = Cluster{Registry: reg, Master: m}
	return nil
}

// Cluster returns the cluster called name.
func (c *Controller) Cluster(name string) (Cluster, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cl, ok := c.clusters[name]
	return cl, ok
}

// Names returns the cluster names in ascending order.
func (c *Controller) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.clusters))
	for n := range c.clusters {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
