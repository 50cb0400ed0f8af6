package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/KaramelBytes/mvlens-cli/internal/importer"
	"github.com/KaramelBytes/mvlens-cli/internal/worker"
	"github.com/spf13/cobra"
)

var (
	importLabels      string
	importOrientation string
)

var importCmd = &cobra.Command{
	Use:   "import --labels <file> <run-file>...",
	Short: "Import run files into the session's canonical table",
	Long: `Import parses every run file (CSV, TXT or XLSX), checks that all runs have the same
number of dimensions and that the label file matches them, and replaces the session's
canonical table. Cached PCA and distance results are discarded.

With --orientation row every record is one sample and the label file names the samples.
With --orientation column every column is one sample, every record one dimension, and the
label file names the dimensions.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if importLabels == "" {
			return fmt.Errorf("--labels is required")
		}
		orientation, err := importer.ParseOrientation(importOrientation)
		if err != nil {
			return err
		}
		sess, err := loadSession()
		if err != nil {
			return err
		}
		res, err := analyze(cmd.Context(), sess, worker.CreateDataframe, importer.Request{
			LabelFile:   importLabels,
			RunFiles:    args,
			Orientation: orientation,
		})
		out := cmd.OutOrStdout()
		var ie *importer.ImportError
		if errors.As(err, &ie) {
			rows := make([][]string, 0, len(ie.Failures))
			for _, f := range ie.Failures {
				rows = append(rows, []string{f.File, f.Err.Error()})
			}
			printTable(out, []string{"Rejected file", "Reason"}, rows)
			if ie.DimensionCount > 0 {
				fmt.Fprintf(out, "dimension count: %d\n", ie.DimensionCount)
			}
			return err
		}
		if err != nil {
			return err
		}
		result := res.(*importer.Result)
		printSuccess(out, "Imported %d rows from %d files into %s", len(result.Rows), len(result.FileNames), sess.Name)
		fmt.Fprintf(out, "dimensions: %d\n", result.DimensionCount)
		fmt.Fprintf(out, "samples: %s\n", strings.Join(result.LabelNames, ", "))
		fmt.Fprintf(out, "type: %s\n", sess.Type)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().StringVarP(&importLabels, "labels", "l", "", "label file (sample names for row orientation, dimension names for column orientation)")
	importCmd.Flags().StringVarP(&importOrientation, "orientation", "o", "row", "data orientation: row or column")
}
