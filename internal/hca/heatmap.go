package hca

import (
	"strings"

	"github.com/KaramelBytes/mvlens-cli/internal/apperr"
)

// HeatmapKind selects what the heatmap shows.
type HeatmapKind string

const (
	// HeatmapDefault shows samples × dimensions, clustered on both axes.
	HeatmapDefault HeatmapKind = "default"
	// HeatmapDistance shows the sample distance matrix, clustered on both axes.
	HeatmapDistance HeatmapKind = "distance"
)

// ParseHeatmapKind resolves a heatmap kind. The empty string is default.
func ParseHeatmapKind(s string) (HeatmapKind, error) {
	switch HeatmapKind(strings.ToLower(strings.TrimSpace(s))) {
	case "", HeatmapDefault:
		return HeatmapDefault, nil
	case HeatmapDistance:
		return HeatmapDistance, nil
	}
	return "", apperr.Newf(apperr.KindInvalidInput, "unknown heatmap %q (use default or distance)", s)
}

// Heatmap is a matrix with rows and columns reordered by their cluster trees.
type Heatmap struct {
	Kind         HeatmapKind `json:"kind"`
	RowLabels    []string    `json:"rowLabels"`
	ColumnLabels []string    `json:"columnLabels"`
	Values       [][]float64 `json:"values"`
	RowTree      *Tree       `json:"rowTree"`
	ColumnTree   *Tree       `json:"columnTree"`
}

// SampleHeatmap clusters samples (rows of points) and dimensions (columns).
func SampleHeatmap(points [][]float64, rowLabels, columnLabels []string, rowLinkage, columnLinkage Linkage) (*Heatmap, error) {
	rows, err := FromPoints(points, rowLabels, rowLinkage)
	if err != nil {
		return nil, err
	}
	cols, err := FromPoints(transpose(points), columnLabels, columnLinkage)
	if err != nil {
		return nil, err
	}
	return arrange(HeatmapDefault, points, rows, cols), nil
}

// DistanceHeatmap clusters both axes of a distance matrix.
func DistanceHeatmap(dm *DistanceMatrix, rowLinkage, columnLinkage Linkage) (*Heatmap, error) {
	rows, err := FromDistances(dm, rowLinkage)
	if err != nil {
		return nil, err
	}
	cols := rows
	if columnLinkage != rowLinkage {
		if cols, err = FromDistances(dm, columnLinkage); err != nil {
			return nil, err
		}
	}
	return arrange(HeatmapDistance, dm.Values, rows, cols), nil
}

func arrange(kind HeatmapKind, values [][]float64, rows, cols *Tree) *Heatmap {
	ro, co := rows.LeafOrder(), cols.LeafOrder()
	h := &Heatmap{
		Kind:         kind,
		RowLabels:    make([]string, len(ro)),
		ColumnLabels: make([]string, len(co)),
		Values:       make([][]float64, len(ro)),
		RowTree:      rows,
		ColumnTree:   cols,
	}
	for i, r := range ro {
		h.RowLabels[i] = rows.Labels[r]
		h.Values[i] = make([]float64, len(co))
		for j, c := range co {
			h.Values[i][j] = values[r][c]
		}
	}
	for j, c := range co {
		h.ColumnLabels[j] = cols.Labels[c]
	}
	return h
}

func transpose(m [][]float64) [][]float64 {
	if len(m) == 0 {
		return nil
	}
	out := make([][]float64, len(m[0]))
	for j := range out {
		out[j] = make([]float64, len(m))
		for i := range m {
			out[j][i] = m[i][j]
		}
	}
	return out
}
