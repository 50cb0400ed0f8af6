package cmd

import (
	"fmt"

	"github.com/KaramelBytes/mvlens-cli/internal/worker"
	"github.com/spf13/cobra"
)

var exportDest string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Copy the session's table and cached results to a directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportDest == "" {
			return fmt.Errorf("--dest is required")
		}
		sess, err := loadSession()
		if err != nil {
			return err
		}
		res, err := analyze(cmd.Context(), sess, worker.Export, worker.ExportRequest{Dest: exportDest})
		if err != nil {
			return err
		}
		files := res.([]string)
		out := cmd.OutOrStdout()
		for _, f := range files {
			fmt.Fprintf(out, "- %s\n", f)
		}
		printSuccess(out, "Exported %d files", len(files))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&exportDest, "dest", "d", "", "destination directory")
}
