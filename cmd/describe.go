package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/KaramelBytes/mvlens-cli/internal/stats"
	"github.com/KaramelBytes/mvlens-cli/internal/worker"
	"github.com/spf13/cobra"
)

var (
	describeJSON      bool
	describeOutlierZ  float64
	describeMaxPairs  int
	describeNoCorrels bool
)

var describeCmd = &cobra.Command{
	Use:   "describe",
	Short: "Summarise the session's canonical table",
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := loadSession()
		if err != nil {
			return err
		}
		opt := stats.DefaultOptions()
		opt.OutlierThreshold = describeOutlierZ
		opt.MaxPairs = describeMaxPairs
		opt.Correlations = !describeNoCorrels
		res, err := analyze(cmd.Context(), sess, worker.Describe, opt)
		if err != nil {
			return err
		}
		report := res.(*stats.Report)
		if describeJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}
		fmt.Fprint(cmd.OutOrStdout(), report.Markdown())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(describeCmd)
	describeCmd.Flags().BoolVar(&describeJSON, "json", false, "print the report as JSON")
	describeCmd.Flags().Float64Var(&describeOutlierZ, "outlier-z", 3.5, "robust z-score above which values count as outliers (0 disables)")
	describeCmd.Flags().IntVar(&describeMaxPairs, "max-pairs", 10, "maximum correlation pairs to list")
	describeCmd.Flags().BoolVar(&describeNoCorrels, "no-correlations", false, "skip pairwise correlations")
}
