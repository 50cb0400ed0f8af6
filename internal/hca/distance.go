// Package hca computes Euclidean distance matrices and agglomerative
// hierarchical clustering trees for dendrograms and heatmaps.
package hca

import (
	"math"

	"github.com/KaramelBytes/mvlens-cli/internal/apperr"
	"gonum.org/v1/gonum/floats"
)

// DistanceMatrix is a labelled symmetric matrix with a zero diagonal.
type DistanceMatrix struct {
	Labels []string    `json:"labels"`
	Values [][]float64 `json:"values"`
}

// Len is the number of items.
func (m *DistanceMatrix) Len() int { return len(m.Values) }

// Distances computes pairwise Euclidean distances between points. Each
// unordered pair is computed once and mirrored.
func Distances(points [][]float64, labels []string) (*DistanceMatrix, error) {
	n := len(points)
	if n == 0 {
		return nil, apperr.Newf(apperr.KindEmptyDataframe, "no samples to compare")
	}
	if labels != nil && len(labels) != n {
		return nil, apperr.Newf(apperr.KindInvalidInput, "%d labels for %d samples", len(labels), n)
	}
	d := len(points[0])
	for i, p := range points {
		if len(p) != d {
			return nil, apperr.Newf(apperr.KindInconsistentDimensions, "sample %d has %d values, expected %d", i, len(p), d)
		}
	}
	vals := make([][]float64, n)
	for i := range vals {
		vals[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			dist := floats.Distance(points[i], points[j], 2)
			vals[i][j] = dist
			vals[j][i] = dist
		}
	}
	return &DistanceMatrix{Labels: labelsOrIndex(labels, n), Values: vals}, nil
}

// Validate checks the matrix is square, symmetric, finite and non-negative
// with a zero diagonal.
func (m *DistanceMatrix) Validate() error {
	n := len(m.Values)
	if n == 0 {
		return apperr.Newf(apperr.KindEmptyDataframe, "distance matrix is empty")
	}
	if len(m.Labels) != n {
		return apperr.Newf(apperr.KindInvalidInput, "%d labels for a %d×%d distance matrix", len(m.Labels), n, n)
	}
	for i, row := range m.Values {
		if len(row) != n {
			return apperr.Newf(apperr.KindInvalidInput, "distance matrix row %d has %d entries, expected %d", i, len(row), n)
		}
		if row[i] != 0 {
			return apperr.Newf(apperr.KindInvalidInput, "distance matrix diagonal %d is %g", i, row[i])
		}
		for j := 0; j < i; j++ {
			v := row[j]
			if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
				return apperr.Newf(apperr.KindInvalidInput, "distance (%d,%d) = %g is invalid", i, j, v)
			}
			if v != m.Values[j][i] {
				return apperr.Newf(apperr.KindInvalidInput, "distance matrix is not symmetric at (%d,%d)", i, j)
			}
		}
	}
	return nil
}

func labelsOrIndex(labels []string, n int) []string {
	if labels != nil {
		return append([]string(nil), labels...)
	}
	out := make([]string, n)
	for i := range out {
		out[i] = itoa(i)
	}
	return out
}
