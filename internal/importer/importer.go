// Package importer turns a label file plus run files into canonical rows,
// enforcing one dimension count across every run of an import.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/KaramelBytes/mvlens-cli/internal/apperr"
	"github.com/KaramelBytes/mvlens-cli/internal/dataframe"
	"github.com/KaramelBytes/mvlens-cli/internal/logging"
	"github.com/KaramelBytes/mvlens-cli/internal/parser"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

// Orientation tells which axis of a run file holds the samples.
type Orientation string

const (
	// Row: one record per sample, one column per dimension. Labels name the samples.
	Row Orientation = "row"
	// Column: one column per sample, one record per dimension. Labels name the
	// dimensions, not the sample columns; sample names come from an optional
	// header record. A header that repeats label names is logged as a likely
	// mix-up of the two axes.
	Column Orientation = "column"
)

// ParseOrientation validates an orientation name.
func ParseOrientation(s string) (Orientation, error) {
	switch Orientation(strings.ToLower(strings.TrimSpace(s))) {
	case Row:
		return Row, nil
	case Column, "col":
		return Column, nil
	}
	return "", apperr.Newf(apperr.KindInvalidInput, "unknown orientation %q (use row or column)", s)
}

// Request describes one import.
type Request struct {
	LabelFile   string
	RunFiles    []string
	Orientation Orientation
}

// Result is a validated import.
type Result struct {
	Rows            []dataframe.Row
	FileNames       []string
	LabelNames      []string
	DimensionLabels []string
	DimensionCount  int
}

// FileError is a failure tied to one run file.
type FileError struct {
	File string
	Err  error
}

func (e *FileError) Error() string { return e.File + ": " + e.Err.Error() }
func (e *FileError) Unwrap() error { return e.Err }

// ImportError aggregates every run-file failure of an import. DimensionCount
// is the count fixed by the first valid run, or 0 when none validated.
type ImportError struct {
	DimensionCount int
	Failures       []*FileError
}

func (e *ImportError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = f.Error()
	}
	return fmt.Sprintf("import failed for %d run file(s): %s", len(e.Failures), strings.Join(parts, "; "))
}

// Unwrap exposes every failure to errors.Is and errors.As.
func (e *ImportError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}

// Importer parses and validates imports. The zero value is not usable; use New.
type Importer struct {
	fs          afero.Fs
	log         *slog.Logger
	parallelism int
}

// New returns an Importer reading from fsys. parallelism <= 0 means GOMAXPROCS.
func New(fsys afero.Fs, logger *slog.Logger, parallelism int) *Importer {
	if parallelism <= 0 {
		parallelism = runtime.GOMAXPROCS(0)
	}
	return &Importer{fs: fsys, log: logging.OrDiscard(logger).With(slog.String("component", "importer")), parallelism: parallelism}
}

type parsed struct {
	records [][]string
	err     error
}

// Import parses every run file concurrently, then validates them in input
// order. Failed runs never stop their siblings from being parsed or checked;
// all failures are reported together in an *ImportError.
func (im *Importer) Import(ctx context.Context, req Request) (*Result, error) {
	if len(req.RunFiles) == 0 {
		return nil, apperr.Newf(apperr.KindInvalidInput, "at least one run file is required")
	}
	if req.Orientation != Row && req.Orientation != Column {
		return nil, apperr.Newf(apperr.KindInvalidInput, "unknown orientation %q", req.Orientation)
	}
	labels, err := parser.ParseLabels(im.fs, req.LabelFile)
	if err != nil {
		return nil, fmt.Errorf("label file: %w", err)
	}

	runs := make([]parsed, len(req.RunFiles))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(im.parallelism)
	for i, path := range req.RunFiles {
		i, path := i, path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				runs[i].err = err
				return nil
			}
			runs[i].records, runs[i].err = parser.ParseFile(im.fs, path)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{}
	var failures []*FileError
	samplesSeen := map[string]struct{}{}
	filesSeen := map[string]struct{}{}
	for i, path := range req.RunFiles {
		name := filepath.Base(path)
		if _, dup := filesSeen[name]; dup {
			failures = append(failures, &FileError{File: name, Err: apperr.Newf(apperr.KindInvalidInput,
				"file name %q is already used by another run file of this import", name)})
			continue
		}
		filesSeen[name] = struct{}{}
		if runs[i].err != nil {
			failures = append(failures, &FileError{File: name, Err: runs[i].err})
			continue
		}
		t, err := im.table(runs[i].records, labels, req.Orientation, res.DimensionCount)
		if err != nil {
			failures = append(failures, &FileError{File: name, Err: err})
			im.log.Warn("run file rejected", slog.String("file", name), slog.String("error", err.Error()))
			continue
		}
		if res.DimensionCount == 0 {
			res.DimensionCount = len(t.dimensions)
			res.DimensionLabels = t.dimensions
		}
		res.FileNames = append(res.FileNames, name)
		for j, sample := range t.samples {
			res.Rows = append(res.Rows, dataframe.Row{Key: dataframe.Key{File: name, Sample: sample}, Values: t.values[j]})
			if _, ok := samplesSeen[sample]; !ok {
				samplesSeen[sample] = struct{}{}
				res.LabelNames = append(res.LabelNames, sample)
			}
		}
	}
	if len(failures) > 0 {
		return nil, &ImportError{DimensionCount: res.DimensionCount, Failures: failures}
	}
	im.log.Info("import validated",
		slog.Int("files", len(res.FileNames)),
		slog.Int("rows", len(res.Rows)),
		slog.Int("dimensions", res.DimensionCount))
	return res, nil
}

// table is one validated run: values[i] holds samples[i]'s measurements.
type table struct {
	samples    []string
	dimensions []string
	values     [][]float64
}

func (im *Importer) table(records [][]string, labels []string, o Orientation, dimensionCount int) (*table, error) {
	if len(records) == 0 {
		return nil, apperr.Newf(apperr.KindInvalidInput, "run file has no records")
	}
	var header []string
	if !parser.IsNumeric(records[0]) {
		header, records = records[0], records[1:]
	}
	if len(records) == 0 {
		return nil, apperr.Newf(apperr.KindInvalidInput, "run file has a header but no data")
	}
	if o == Row {
		return rowTable(header, records, labels, dimensionCount)
	}
	if shared := overlap(header, labels); len(shared) > 0 {
		im.log.Warn("column header repeats label names; in column orientation labels name the dimensions",
			slog.Any("names", shared))
	}
	return columnTable(header, records, labels, dimensionCount)
}

func rowTable(header []string, records [][]string, labels []string, dimensionCount int) (*table, error) {
	k := len(records[0])
	if err := checkDimensions(k, dimensionCount); err != nil {
		return nil, err
	}
	for i, rec := range records {
		if len(rec) != k {
			return nil, apperr.Newf(apperr.KindInconsistentDimensions, "record %d has %d values, expected %d", i+1, len(rec), k)
		}
	}
	if len(records) != len(labels) {
		return nil, apperr.Newf(apperr.KindInvalidInput, "run has %d samples but the label file lists %d", len(records), len(labels))
	}
	values, err := numeric(records)
	if err != nil {
		return nil, err
	}
	dims := header
	if len(dims) != k {
		dims = numbered("", k)
	}
	return &table{samples: labels, dimensions: dims, values: values}, nil
}

func columnTable(header []string, records [][]string, labels []string, dimensionCount int) (*table, error) {
	k := len(records)
	if err := checkDimensions(k, dimensionCount); err != nil {
		return nil, err
	}
	n := len(records[0])
	if header != nil {
		n = len(header)
	}
	for i, rec := range records {
		if len(rec) != n {
			return nil, apperr.Newf(apperr.KindInvalidInput, "dimension record %d has %d samples, expected %d", i+1, len(rec), n)
		}
	}
	if k != len(labels) {
		return nil, apperr.Newf(apperr.KindInvalidInput, "run has %d dimensions but the label file lists %d", k, len(labels))
	}
	byDim, err := numeric(records)
	if err != nil {
		return nil, err
	}
	values := make([][]float64, n)
	for j := range values {
		values[j] = make([]float64, k)
		for d := 0; d < k; d++ {
			values[j][d] = byDim[d][j]
		}
	}
	samples := header
	if samples == nil {
		samples = numbered("S", n)
	}
	return &table{samples: samples, dimensions: labels, values: values}, nil
}

func checkDimensions(k, dimensionCount int) error {
	if k == 0 {
		return apperr.Newf(apperr.KindInvalidInput, "run file has no dimensions")
	}
	if dimensionCount != 0 && k != dimensionCount {
		return apperr.Newf(apperr.KindInconsistentDimensions, "run has %d dimensions, expected %d", k, dimensionCount).
			WithContext("dimensions", k).
			WithContext("expected", dimensionCount)
	}
	return nil
}

func numeric(records [][]string) ([][]float64, error) {
	out := make([][]float64, len(records))
	for i, rec := range records {
		out[i] = make([]float64, len(rec))
		for j, cell := range rec {
			v, err := parser.ParseNumber(cell)
			if err != nil {
				return nil, apperr.New(apperr.KindInvalidInput, fmt.Sprintf("record %d column %d: %q is not a finite number", i+1, j+1, cell), errors.Unwrap(err))
			}
			out[i][j] = v
		}
	}
	return out, nil
}

func overlap(header, labels []string) []string {
	if len(header) == 0 {
		return nil
	}
	known := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		known[l] = struct{}{}
	}
	var shared []string
	for _, h := range header {
		if _, ok := known[h]; ok {
			shared = append(shared, h)
		}
	}
	return shared
}

func numbered(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = prefix + strconv.Itoa(i+1)
	}
	return out
}
