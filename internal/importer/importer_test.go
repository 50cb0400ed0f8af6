package importer

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/KaramelBytes/mvlens-cli/internal/apperr"
	"github.com/KaramelBytes/mvlens-cli/internal/logging"
	"github.com/KaramelBytes/mvlens-cli/internal/parser"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fsys := afero.NewMemMapFs()
	for name, body := range files {
		require.NoError(t, afero.WriteFile(fsys, name, []byte(body), 0o644))
	}
	return fsys
}

func TestImportColumnOrientation(t *testing.T) {
	fsys := writeFiles(t, map[string]string{
		"/in/labels.txt": "d1 d2 d3 d4\n",
		"/in/run1.csv":   "A,B,C\n1,2,3\n4,5,6\n7,8,9\n10,11,12\n",
		"/in/run2.csv":   "A,B,C\n2,3,4\n5,6,7\n8,9,10\n11,12,14\n",
	})
	im := New(fsys, nil, 2)

	res, err := im.Import(context.Background(), Request{
		LabelFile:   "/in/labels.txt",
		RunFiles:    []string{"/in/run1.csv", "/in/run2.csv"},
		Orientation: Column,
	})
	require.NoError(t, err)
	assert.Equal(t, 4, res.DimensionCount)
	assert.Equal(t, []string{"d1", "d2", "d3", "d4"}, res.DimensionLabels)
	assert.Equal(t, []string{"run1.csv", "run2.csv"}, res.FileNames)
	assert.Equal(t, []string{"A", "B", "C"}, res.LabelNames)
	require.Len(t, res.Rows, 6)
	assert.Equal(t, "run1.csv", res.Rows[0].File)
	assert.Equal(t, "A", res.Rows[0].Sample)
	assert.Equal(t, []float64{1, 4, 7, 10}, res.Rows[0].Values)
	assert.Equal(t, "C run2.csv", res.Rows[5].Class())
	assert.Equal(t, []float64{4, 7, 10, 14}, res.Rows[5].Values)
}

func TestImportColumnWithoutHeaderNamesSamples(t *testing.T) {
	fsys := writeFiles(t, map[string]string{
		"/labels.csv": "d1,d2\n",
		"/run.txt":    "1 2\n3 4\n",
	})
	res, err := New(fsys, nil, 1).Import(context.Background(), Request{
		LabelFile: "/labels.csv", RunFiles: []string{"/run.txt"}, Orientation: Column,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"S1", "S2"}, res.LabelNames)
	assert.Equal(t, []float64{2, 4}, res.Rows[1].Values)
}

func TestImportRowOrientation(t *testing.T) {
	fsys := writeFiles(t, map[string]string{
		"/labels.csv": "wine1\nwine2\n",
		"/a.csv":      "1;2,5;3\n4;5;6\n",
	})
	res, err := New(fsys, nil, 0).Import(context.Background(), Request{
		LabelFile: "/labels.csv", RunFiles: []string{"/a.csv"}, Orientation: Row,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.DimensionCount)
	assert.Equal(t, []string{"1", "2", "3"}, res.DimensionLabels)
	assert.Equal(t, []float64{1, 2.5, 3}, res.Rows[0].Values)
	assert.Equal(t, "wine2", res.Rows[1].Sample)
}

func TestImportInconsistentDimensions(t *testing.T) {
	fsys := writeFiles(t, map[string]string{
		"/labels.csv": "s1\ns2\n",
		"/five.csv":   "1,2,3,4,5\n6,7,8,9,10\n",
		"/six.csv":    "1,2,3,4,5,6\n7,8,9,10,11,12\n",
	})
	_, err := New(fsys, nil, 2).Import(context.Background(), Request{
		LabelFile: "/labels.csv", RunFiles: []string{"/five.csv", "/six.csv"}, Orientation: Row,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrInconsistentDimensions))

	var ie *ImportError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, 5, ie.DimensionCount)
	require.Len(t, ie.Failures, 1)
	assert.Equal(t, "six.csv", ie.Failures[0].File)
}

func TestImportAggregatesFailures(t *testing.T) {
	fsys := writeFiles(t, map[string]string{
		"/labels.csv": "s1\n",
		"/bad.json":   "{}",
		"/ok.csv":     "1,2\n",
		"/nan.csv":    "1,x\n",
	})
	_, err := New(fsys, nil, 3).Import(context.Background(), Request{
		LabelFile: "/labels.csv", RunFiles: []string{"/bad.json", "/ok.csv", "/nan.csv"}, Orientation: Row,
	})
	var ie *ImportError
	require.True(t, errors.As(err, &ie))
	assert.Len(t, ie.Failures, 2)
	assert.Equal(t, 2, ie.DimensionCount)
	assert.True(t, errors.Is(err, apperr.ErrUnsupportedFormat))
	assert.True(t, errors.Is(err, apperr.ErrInvalidInput))
}

func TestImportRejectsNonFiniteCells(t *testing.T) {
	fsys := writeFiles(t, map[string]string{
		"/labels.csv": "d1,d2\n",
		"/ok.csv":     "A,B,C\n1,2,3\n3,2,1\n",
		"/nan.csv":    "1,2,NaN\n3,Inf,1\n",
		"/inf.csv":    "A,B,C\n1,2,3\n3,-Inf,1\n",
	})
	_, err := New(fsys, nil, 2).Import(context.Background(), Request{
		LabelFile: "/labels.csv", RunFiles: []string{"/ok.csv", "/nan.csv", "/inf.csv"}, Orientation: Column,
	})
	var ie *ImportError
	require.True(t, errors.As(err, &ie))
	require.Len(t, ie.Failures, 2)
	assert.Equal(t, "nan.csv", ie.Failures[0].File)
	assert.Equal(t, "inf.csv", ie.Failures[1].File)
	assert.Equal(t, 2, ie.DimensionCount)
	assert.True(t, errors.Is(err, apperr.ErrInvalidInput))
	assert.ErrorIs(t, err, parser.ErrNotFinite)
}

func TestImportRejectsDuplicateFileNames(t *testing.T) {
	fsys := writeFiles(t, map[string]string{
		"/labels.csv":   "s1\n",
		"/day1/run.csv": "1,2\n",
		"/day2/run.csv": "3,4\n",
	})
	_, err := New(fsys, nil, 2).Import(context.Background(), Request{
		LabelFile: "/labels.csv", RunFiles: []string{"/day1/run.csv", "/day2/run.csv"}, Orientation: Row,
	})
	var ie *ImportError
	require.True(t, errors.As(err, &ie))
	require.Len(t, ie.Failures, 1)
	assert.Equal(t, "run.csv", ie.Failures[0].File)
	assert.True(t, errors.Is(err, apperr.ErrInvalidInput))
}

func TestImportWarnsWhenColumnHeaderRepeatsLabels(t *testing.T) {
	fsys := writeFiles(t, map[string]string{
		"/labels.csv": "A,B\n",
		"/run.csv":    "A,B\n1,2\n3,4\n",
	})
	var buf bytes.Buffer
	log := logging.NewWithWriter(&buf, logging.Config{Level: "warn"})
	res, err := New(fsys, log, 1).Import(context.Background(), Request{
		LabelFile: "/labels.csv", RunFiles: []string{"/run.csv"}, Orientation: Column,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, res.DimensionLabels)
	assert.Contains(t, buf.String(), "column header repeats label names")
}

func TestImportUnsupportedLabelFileIsFatal(t *testing.T) {
	fsys := writeFiles(t, map[string]string{"/labels.doc": "x", "/a.csv": "1\n"})
	_, err := New(fsys, nil, 1).Import(context.Background(), Request{
		LabelFile: "/labels.doc", RunFiles: []string{"/a.csv"}, Orientation: Row,
	})
	assert.True(t, errors.Is(err, apperr.ErrUnsupportedFormat))
	var ie *ImportError
	assert.False(t, errors.As(err, &ie))
}

func TestParseOrientation(t *testing.T) {
	o, err := ParseOrientation(" Column ")
	require.NoError(t, err)
	assert.Equal(t, Column, o)
	_, err = ParseOrientation("diagonal")
	assert.True(t, errors.Is(err, apperr.ErrInvalidInput))
}
