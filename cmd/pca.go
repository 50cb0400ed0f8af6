package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/KaramelBytes/mvlens-cli/internal/engine"
	"github.com/KaramelBytes/mvlens-cli/internal/normalize"
	"github.com/KaramelBytes/mvlens-cli/internal/pca"
	"github.com/KaramelBytes/mvlens-cli/internal/worker"
	"github.com/spf13/cobra"
)

var (
	pcaDimensions int
	pcaNormalize  string
	pcaMethod     string
	pcaJSON       bool
	pcaTraces     bool
)

var pcaCmd = &cobra.Command{
	Use:   "pca",
	Short: "Project the session's samples onto their principal components",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := appConfig()
		if err != nil {
			return err
		}
		req := engine.PredictRequest{Dimensions: c.DefaultDimensions}
		if cmd.Flags().Changed("dimensions") {
			req.Dimensions = pcaDimensions
		}
		if req.Normalize, err = normalize.ParseScheme(flagOr(cmd, "normalize", pcaNormalize, c.PredictNormalize)); err != nil {
			return err
		}
		if req.Method, err = pca.ParseMethod(flagOr(cmd, "method", pcaMethod, c.PCAMethod)); err != nil {
			return err
		}
		sess, err := loadSession()
		if err != nil {
			return err
		}
		res, err := analyze(cmd.Context(), sess, worker.ReadPredictMatrix, req)
		if err != nil {
			return err
		}
		p := res.(*engine.Prediction)
		out := cmd.OutOrStdout()
		if pcaJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if pcaTraces {
				return enc.Encode(p.Traces())
			}
			return enc.Encode(p)
		}

		state := "computed"
		if p.Cached {
			state = "cached"
		}
		printTitle(out, fmt.Sprintf("PCA of %s (%s, %s, %s)", sess.Name, p.Method, p.Normalize, state))
		headers := []string{"File", "Sample"}
		for i := range p.Components[0] {
			headers = append(headers, "PC"+strconv.Itoa(i+1))
		}
		rows := make([][]string, len(p.Components))
		for i, comp := range p.Components {
			rows[i] = append([]string{p.Keys[i].File, p.Keys[i].Sample}, fmtFloats(comp)...)
		}
		printTable(out, headers, rows)

		var cum float64
		ev := make([][]string, len(p.ExplainedVariance))
		for i, v := range p.ExplainedVariance {
			cum += v
			ev[i] = []string{"PC" + strconv.Itoa(i+1), fmtFloat(p.Eigenvalues[i]), fmtFloat(100 * v), fmtFloat(100 * cum)}
		}
		printTable(out, []string{"Component", "Eigenvalue", "Explained %", "Cumulative %"}, ev)
		return nil
	},
}

// flagOr returns the flag value when it was set, otherwise fallback.
func flagOr(cmd *cobra.Command, name, value, fallback string) string {
	if cmd.Flags().Changed(name) {
		return value
	}
	return fallback
}

func init() {
	rootCmd.AddCommand(pcaCmd)
	pcaCmd.Flags().IntVarP(&pcaDimensions, "dimensions", "k", 2, "number of components to report (default from config)")
	pcaCmd.Flags().StringVarP(&pcaNormalize, "normalize", "n", "", "normalization: none, center, minMax or zScore (default from config)")
	pcaCmd.Flags().StringVarP(&pcaMethod, "method", "m", "", "PCA method: SVD, NIPALS or covarianceMatrix (default from config)")
	pcaCmd.Flags().BoolVar(&pcaJSON, "json", false, "print the result as JSON")
	pcaCmd.Flags().BoolVar(&pcaTraces, "traces", false, "with --json, print per-sample scatter traces")
}
