// Command coordinator serves the cluster state API for the configured
// clusters.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dreamware/clusterstate/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:          "coordinator",
		Short:        "Cluster state coordinator",
		Long:         "Owns the wanted and generated node states of content clusters and serves them under /cluster/v2.",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", getenv("CLUSTERSTATE_CONFIG", "clusterstate.yaml"), "configuration file")

	root.AddCommand(serveCmd(&configPath))
	root.AddCommand(validateCmd(&configPath))
	return root
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the coordinator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func validateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and print the cluster topology",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, cl := range cfg.Clusters {
				policy := cl.GroupPolicy()
				topo := cl.Topology()
				fmt.Fprintf(out, "cluster %s: %d nodes, max %d unavailable groups, min %d available per group\n",
					cl.Name, len(topo.Nodes), policy.MaxUnavailableGroups, policy.MinAvailablePerGroup)
				for _, n := range topo.Nodes {
					fmt.Fprintf(out, "  index %d group %s\n", n.Index, n.Group)
				}
			}
			return nil
		},
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
