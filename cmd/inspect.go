package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/KaramelBytes/mvlens-cli/internal/dataframe"
	"github.com/KaramelBytes/mvlens-cli/internal/importer"
	"github.com/KaramelBytes/mvlens-cli/internal/parser"
	"github.com/KaramelBytes/mvlens-cli/internal/stats"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var (
	inspOrientation string
	inspDescribe    bool
	inspOutputPath  string
	inspQuiet       bool
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <files...>",
	Short: "Check run files before importing them",
	Long: `Inspect parses run files (CSV, TXT or XLSX; glob patterns are expanded) without touching
any session and reports their shape: records, widest record, whether a header was found and
how many cells are not numbers. With --describe it also summarises each file's values.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := expandFiles(args)
		if err != nil {
			return err
		}
		orientation, err := importer.ParseOrientation(inspOrientation)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fsys := afero.NewOsFs()

		var md strings.Builder
		rows := make([][]string, 0, len(files))
		for i, path := range files {
			if !inspQuiet {
				fmt.Fprintf(cmd.ErrOrStderr(), "[%d/%d] %s\n", i+1, len(files), path)
			}
			records, err := parser.ParseFile(fsys, path)
			if err != nil {
				rows = append(rows, []string{filepath.Base(path), "-", "-", "-", "-", err.Error()})
				continue
			}
			s := shapeOf(records)
			note := ""
			if s.nonNumeric > 0 {
				note = "not importable: non-numeric cells"
			} else if s.ragged {
				note = "ragged records"
			}
			rows = append(rows, []string{filepath.Base(path), strconv.Itoa(s.records), strconv.Itoa(s.width),
				strconv.FormatBool(s.header), strconv.Itoa(s.nonNumeric), note})
			if inspDescribe && note == "" {
				f := frameOf(filepath.Base(path), records, s.header, orientation)
				md.WriteString(stats.Describe(filepath.Base(path), f, stats.DefaultOptions()).Markdown())
				md.WriteString("\n")
			}
		}
		printTable(out, []string{"File", "Records", "Width", "Header", "Non-numeric", "Note"}, rows)

		if md.Len() == 0 {
			return nil
		}
		if inspOutputPath != "" {
			if err := os.WriteFile(inspOutputPath, []byte(md.String()), 0o644); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			printSuccess(out, "Wrote summary to %s", inspOutputPath)
			return nil
		}
		fmt.Fprint(out, md.String())
		return nil
	},
}

// expandFiles resolves glob patterns, keeping literal paths that exist.
func expandFiles(args []string) ([]string, error) {
	var files []string
	seen := map[string]struct{}{}
	for _, arg := range args {
		matches, _ := filepath.Glob(arg)
		if len(matches) == 0 {
			if _, err := os.Stat(arg); err == nil {
				matches = []string{arg}
			}
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			files = append(files, m)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no input files matched")
	}
	sort.Strings(files)
	return files, nil
}

type shape struct {
	records    int
	width      int
	header     bool
	ragged     bool
	nonNumeric int
}

// shapeOf measures records. A first record with any non-numeric cell is a
// header; it is not counted among the records.
func shapeOf(records [][]string) shape {
	var s shape
	if len(records) == 0 {
		return s
	}
	body := records
	if !parser.IsNumeric(records[0]) {
		s.header = true
		body = records[1:]
	}
	s.records = len(body)
	for i, rec := range body {
		if len(rec) > s.width {
			s.width = len(rec)
		}
		if i > 0 && len(rec) != len(body[0]) {
			s.ragged = true
		}
		for _, cell := range rec {
			if _, err := parser.ParseNumber(cell); err != nil {
				s.nonNumeric++
			}
		}
	}
	return s
}

// frameOf builds an in-memory table from a validated file. Column
// orientation transposes so that every column becomes a row.
func frameOf(file string, records [][]string, header bool, o importer.Orientation) *dataframe.Frame {
	var names []string
	if header {
		names, records = records[0], records[1:]
	}
	values := make([][]float64, len(records))
	for i, rec := range records {
		values[i] = make([]float64, len(rec))
		for j, cell := range rec {
			values[i][j], _ = parser.ParseNumber(cell)
		}
	}
	f := &dataframe.Frame{FileNames: []string{file}}
	if o == importer.Column && len(values) > 0 {
		t := make([][]float64, len(values[0]))
		for j := range t {
			t[j] = make([]float64, len(values))
			for i := range values {
				t[j][i] = values[i][j]
			}
		}
		values = t
		for i := range values {
			sample := "S" + strconv.Itoa(i+1)
			if i < len(names) {
				sample = names[i]
			}
			f.Keys = append(f.Keys, dataframe.Key{File: file, Sample: sample})
		}
	} else {
		f.DimensionLabels = names
		for i := range values {
			f.Keys = append(f.Keys, dataframe.Key{File: file, Sample: strconv.Itoa(i + 1)})
		}
	}
	f.Matrix = values
	return f
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().StringVarP(&inspOrientation, "orientation", "o", "row", "data orientation: row or column")
	inspectCmd.Flags().BoolVar(&inspDescribe, "describe", false, "summarise the values of each importable file")
	inspectCmd.Flags().StringVar(&inspOutputPath, "output", "", "write the summaries to this Markdown file")
	inspectCmd.Flags().BoolVarP(&inspQuiet, "quiet", "q", false, "suppress progress output")
}
