package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/KaramelBytes/mvlens-cli/internal/engine"
	"github.com/KaramelBytes/mvlens-cli/internal/hca"
	"github.com/KaramelBytes/mvlens-cli/internal/normalize"
	"github.com/KaramelBytes/mvlens-cli/internal/worker"
	"github.com/spf13/cobra"
)

var (
	hcaNormalize string
	hcaMethod    string
	hcaKind      string
	hcaX         string
	hcaY         string
	hcaJSON      bool
)

var hcaCmd = &cobra.Command{
	Use:   "hca",
	Short: "Hierarchical clustering of the session's samples",
}

var hcaDistanceCmd = &cobra.Command{
	Use:   "distance",
	Short: "Print the Euclidean distance matrix of the samples",
	RunE: func(cmd *cobra.Command, args []string) error {
		scheme, err := hcaScheme(cmd)
		if err != nil {
			return err
		}
		sess, err := loadSession()
		if err != nil {
			return err
		}
		res, err := analyze(cmd.Context(), sess, worker.ReadDistanceMatrix, scheme)
		if err != nil {
			return err
		}
		d := res.(*engine.DistanceResult)
		if hcaJSON {
			return writeJSON(cmd, d)
		}
		state := "computed"
		if d.Cached {
			state = "cached"
		}
		printTitle(cmd.OutOrStdout(), fmt.Sprintf("Distances in %s (%s, %s)", sess.Name, d.Normalize, state))
		printMatrix(cmd, d.Matrix.Labels, d.Matrix.Labels, d.Matrix.Values)
		return nil
	},
}

var hcaDendrogramCmd = &cobra.Command{
	Use:   "dendrogram",
	Short: "Cluster the samples and print the merge sequence",
	RunE: func(cmd *cobra.Command, args []string) error {
		scheme, err := hcaScheme(cmd)
		if err != nil {
			return err
		}
		linkage, err := hca.ParseLinkage(flagOr(cmd, "method", hcaMethod, cfg.ClusteringMethod))
		if err != nil {
			return err
		}
		sess, err := loadSession()
		if err != nil {
			return err
		}
		res, err := analyze(cmd.Context(), sess, worker.ReadClusterTree, worker.ClusterRequest{Normalize: scheme, Linkage: linkage})
		if err != nil {
			return err
		}
		tree := res.(*hca.Tree)
		if hcaJSON {
			return writeJSON(cmd, tree)
		}
		out := cmd.OutOrStdout()
		printTitle(out, fmt.Sprintf("Dendrogram of %s (%s linkage, %s)", sess.Name, tree.Linkage, scheme))
		rows := make([][]string, len(tree.Merges))
		for i, m := range tree.Merges {
			rows[i] = []string{strconv.Itoa(len(tree.Labels) + i), nodeName(tree, m.A), nodeName(tree, m.B), fmtFloat(m.Height), strconv.Itoa(m.Size)}
		}
		printTable(out, []string{"Cluster", "Left", "Right", "Height", "Size"}, rows)
		fmt.Fprintln(out, tree.Newick())
		return nil
	},
}

var hcaHeatmapCmd = &cobra.Command{
	Use:   "heatmap",
	Short: "Print a heatmap with rows and columns in dendrogram order",
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := hca.ParseHeatmapKind(hcaKind)
		if err != nil {
			return err
		}
		scheme, err := hcaScheme(cmd)
		if err != nil {
			return err
		}
		x, err := hca.ParseLinkage(flagOr(cmd, "x", hcaX, cfg.ClusteringMethod))
		if err != nil {
			return err
		}
		y, err := hca.ParseLinkage(flagOr(cmd, "y", hcaY, cfg.ClusteringMethod))
		if err != nil {
			return err
		}
		sess, err := loadSession()
		if err != nil {
			return err
		}
		res, err := analyze(cmd.Context(), sess, worker.ReadHeatmap, engine.HeatmapRequest{Kind: kind, Normalize: scheme, XLinkage: x, YLinkage: y})
		if err != nil {
			return err
		}
		hm := res.(*hca.Heatmap)
		if hcaJSON {
			return writeJSON(cmd, hm)
		}
		printTitle(cmd.OutOrStdout(), fmt.Sprintf("Heatmap of %s (%s, %s, x=%s, y=%s)", sess.Name, hm.Kind, scheme, x, y))
		printMatrix(cmd, hm.RowLabels, hm.ColumnLabels, hm.Values)
		return nil
	},
}

// hcaScheme resolves --normalize against the configured distance normalization.
func hcaScheme(cmd *cobra.Command) (normalize.Scheme, error) {
	c, err := appConfig()
	if err != nil {
		return "", err
	}
	return normalize.ParseScheme(flagOr(cmd, "normalize", hcaNormalize, c.DistanceNormalize))
}

func nodeName(t *hca.Tree, id int) string {
	if id < len(t.Labels) {
		return t.Labels[id]
	}
	return "#" + strconv.Itoa(id)
}

func printMatrix(cmd *cobra.Command, rowLabels, colLabels []string, values [][]float64) {
	headers := append([]string{""}, colLabels...)
	rows := make([][]string, len(values))
	for i, v := range values {
		rows[i] = append([]string{rowLabels[i]}, fmtFloats(v)...)
	}
	printTable(cmd.OutOrStdout(), headers, rows)
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	rootCmd.AddCommand(hcaCmd)
	hcaCmd.AddCommand(hcaDistanceCmd, hcaDendrogramCmd, hcaHeatmapCmd)
	hcaCmd.PersistentFlags().StringVarP(&hcaNormalize, "normalize", "n", "", "normalization: none, center, minMax or zScore (default from config)")
	hcaCmd.PersistentFlags().BoolVar(&hcaJSON, "json", false, "print the result as JSON")
	hcaDendrogramCmd.Flags().StringVarP(&hcaMethod, "method", "m", "", "linkage: single, complete, average, wpgma, centroid, median or ward (default from config)")
	hcaHeatmapCmd.Flags().StringVar(&hcaKind, "kind", "default", "heatmap kind: default (samples x dimensions) or distance")
	hcaHeatmapCmd.Flags().StringVar(&hcaX, "x", "", "linkage ordering the columns (default from config)")
	hcaHeatmapCmd.Flags().StringVar(&hcaY, "y", "", "linkage ordering the rows (default from config)")
}
