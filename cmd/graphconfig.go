package cmd

import (
	"github.com/KaramelBytes/mvlens-cli/internal/session"
	"github.com/spf13/cobra"
)

var graphConfigCmd = &cobra.Command{
	Use:   "graph-config",
	Short: "View or change the per-graph settings of a session",
}

var graphConfigShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the graph settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, err := sessionName()
		if err != nil {
			return err
		}
		store, err := sessionStore()
		if err != nil {
			return err
		}
		info, err := store.Info(name)
		if err != nil {
			return err
		}
		printGraphConfigs(cmd, info.GraphConfigs)
		return nil
	},
}

var graphConfigSetCmd = &cobra.Command{
	Use:   "set <graph> <property> <value>",
	Short: "Set one property of a graph (normalize, clusteringMethod, xClusteringMethod, yClusteringMethod, orientation, size)",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		graph, err := session.ParseGraphType(args[0])
		if err != nil {
			return err
		}
		name, err := sessionName()
		if err != nil {
			return err
		}
		store, err := sessionStore()
		if err != nil {
			return err
		}
		info, err := store.Info(name)
		if err != nil {
			return err
		}
		updated, err := info.GraphConfigs[graph].Set(args[1], args[2])
		if err != nil {
			return err
		}
		if err := store.SetGraphConfig(name, graph, updated); err != nil {
			return err
		}
		printSuccess(cmd.OutOrStdout(), "%s.%s = %s", graph, args[1], args[2])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphConfigCmd)
	graphConfigCmd.AddCommand(graphConfigShowCmd, graphConfigSetCmd)
}
