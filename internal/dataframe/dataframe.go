// Package dataframe persists the canonical (file, sample, dimensions...) table
// of a session and reads it back as a keyed numeric matrix.
package dataframe

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/KaramelBytes/mvlens-cli/internal/apperr"
	"github.com/KaramelBytes/mvlens-cli/internal/fsutil"
	"github.com/spf13/afero"
)

// FileName is the canonical table inside a session directory.
const FileName = "dataframe.csv"

// Identifier columns that precede the dimensions on disk.
const (
	ColumnFile   = "File name"
	ColumnSample = "Sample"
)

// Key identifies one canonical row.
type Key struct {
	File   string `json:"file"`
	Sample string `json:"sample"`
}

// Class is the composite label "<sample> <file>" used to tag points.
func (k Key) Class() string { return k.Sample + " " + k.File }

// Row is one sample's measurements from one run file.
type Row struct {
	Key
	Values []float64
}

// ReadOptions selects the optional parts returned by Store.Read.
type ReadOptions struct {
	WithClasses         bool
	WithDimensionLabels bool
	WithFilenames       bool
	WithSampleLabels    bool
}

// AllParts requests every optional part.
var AllParts = ReadOptions{WithClasses: true, WithDimensionLabels: true, WithFilenames: true, WithSampleLabels: true}

// Frame is the in-memory form of the canonical table. Matrix rows are aligned
// with Keys. Classes, DimensionLabels, FileNames and Labels are only filled
// when requested.
type Frame struct {
	Keys            []Key
	Matrix          [][]float64
	Classes         []string
	DimensionLabels []string
	FileNames       []string
	Labels          []string
}

// Rows returns the frame as keyed rows.
func (f *Frame) Rows() []Row {
	rows := make([]Row, len(f.Keys))
	for i, k := range f.Keys {
		rows[i] = Row{Key: k, Values: f.Matrix[i]}
	}
	return rows
}

// Dimensions returns the number of numeric columns.
func (f *Frame) Dimensions() int {
	if len(f.Matrix) == 0 {
		return 0
	}
	return len(f.Matrix[0])
}

// Records renders the matrix as string records, with the class label appended
// as the last column when classes were read.
func (f *Frame) Records() [][]string {
	out := make([][]string, len(f.Matrix))
	for i, row := range f.Matrix {
		rec := make([]string, 0, len(row)+1)
		for _, v := range row {
			rec = append(rec, FormatFloat(v))
		}
		if f.Classes != nil {
			rec = append(rec, f.Classes[i])
		}
		out[i] = rec
	}
	return out
}

// FormatFloat renders v in the shortest form that round-trips.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Store reads and writes canonical tables inside session directories.
type Store struct {
	fs afero.Fs
}

// NewStore returns a Store on fsys.
func NewStore(fsys afero.Fs) *Store {
	return &Store{fs: fsys}
}

// Path returns the canonical table location for a session directory.
func Path(dir string) string { return filepath.Join(dir, FileName) }

// Write replaces the canonical table in dir. Every row must carry exactly
// len(dimensionLabels) values.
func (s *Store) Write(dir string, dimensionLabels []string, rows []Row) error {
	k := len(dimensionLabels)
	if k == 0 {
		return apperr.Newf(apperr.KindInvalidInput, "dataframe needs at least one dimension")
	}
	header := append([]string{ColumnFile, ColumnSample}, dimensionLabels...)
	records := make([][]string, len(rows))
	for i, r := range rows {
		if len(r.Values) != k {
			return apperr.Newf(apperr.KindInconsistentDimensions,
				"row %d (%s) has %d dimensions, expected %d", i+1, r.Class(), len(r.Values), k)
		}
		rec := make([]string, 0, k+2)
		rec = append(rec, r.File, r.Sample)
		for _, v := range r.Values {
			rec = append(rec, FormatFloat(v))
		}
		records[i] = rec
	}
	if err := fsutil.WriteCSV(s.fs, Path(dir), header, records); err != nil {
		return apperr.New(apperr.KindStorage, "write dataframe", err)
	}
	return nil
}

// Read loads the canonical table from dir. A missing or row-less table fails
// with EmptyDataframe.
func (s *Store) Read(dir string, opts ReadOptions) (*Frame, error) {
	recs, err := fsutil.ReadCSV(s.fs, Path(dir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.New(apperr.KindEmptyDataframe, "no dataframe has been imported", err)
		}
		return nil, apperr.New(apperr.KindStorage, "read dataframe", err)
	}
	if len(recs) < 2 {
		return nil, apperr.Newf(apperr.KindEmptyDataframe, "dataframe in %s has no rows", filepath.Base(dir))
	}
	header := recs[0]
	if len(header) < 3 || header[0] != ColumnFile || header[1] != ColumnSample {
		return nil, apperr.Newf(apperr.KindStorage, "dataframe header %v is malformed", header)
	}
	k := len(header) - 2
	f := &Frame{
		Keys:   make([]Key, 0, len(recs)-1),
		Matrix: make([][]float64, 0, len(recs)-1),
	}
	for i, rec := range recs[1:] {
		if len(rec) != k+2 {
			return nil, apperr.Newf(apperr.KindInconsistentDimensions,
				"dataframe row %d has %d dimensions, expected %d", i+1, len(rec)-2, k)
		}
		vals := make([]float64, k)
		for j, cell := range rec[2:] {
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, apperr.New(apperr.KindStorage, fmt.Sprintf("dataframe row %d column %q", i+1, header[j+2]), err)
			}
			vals[j] = v
		}
		f.Keys = append(f.Keys, Key{File: rec[0], Sample: rec[1]})
		f.Matrix = append(f.Matrix, vals)
	}
	if opts.WithClasses {
		f.Classes = make([]string, len(f.Keys))
		for i, key := range f.Keys {
			f.Classes[i] = key.Class()
		}
	}
	if opts.WithDimensionLabels {
		f.DimensionLabels = append([]string(nil), header[2:]...)
	}
	if opts.WithFilenames {
		f.FileNames = distinct(f.Keys, func(k Key) string { return k.File })
	}
	if opts.WithSampleLabels {
		f.Labels = distinct(f.Keys, func(k Key) string { return k.Sample })
	}
	return f, nil
}

// Exists reports whether dir holds a canonical table.
func (s *Store) Exists(dir string) (bool, error) {
	return fsutil.Exists(s.fs, Path(dir))
}

func distinct(keys []Key, field func(Key) string) []string {
	seen := make(map[string]struct{}, len(keys))
	var out []string
	for _, k := range keys {
		v := field(k)
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
