// Package normalize applies column-wise normalization schemes to a numeric
// matrix. Apply never mutates its input.
package normalize

import (
	"math"
	"strings"

	"github.com/KaramelBytes/mvlens-cli/internal/apperr"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Scheme names a normalization.
type Scheme string

const (
	None   Scheme = "none"
	Center Scheme = "center"
	MinMax Scheme = "minMax"
	ZScore Scheme = "zScore"
)

// Schemes lists every supported scheme.
var Schemes = []Scheme{None, Center, MinMax, ZScore}

// ParseScheme resolves a scheme name case-insensitively. The empty string is none.
func ParseScheme(s string) (Scheme, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return None, nil
	case "center", "centre":
		return Center, nil
	case "minmax", "min-max":
		return MinMax, nil
	case "zscore", "z-score":
		return ZScore, nil
	}
	return "", apperr.Newf(apperr.KindInvalidInput, "unknown normalization %q (use none, center, minMax or zScore)", s)
}

// ZeroSpreadPolicy decides what zScore and minMax do with a constant column.
type ZeroSpreadPolicy string

const (
	// ZeroSpreadError fails with ZeroVariance.
	ZeroSpreadError ZeroSpreadPolicy = "error"
	// ZeroSpreadPropagate divides anyway, yielding NaN or Inf.
	ZeroSpreadPropagate ZeroSpreadPolicy = "propagate"
	// ZeroSpreadZero maps the column to 0.
	ZeroSpreadZero ZeroSpreadPolicy = "zero"
)

// ParseZeroSpreadPolicy resolves a policy name. The empty string is error.
func ParseZeroSpreadPolicy(s string) (ZeroSpreadPolicy, error) {
	switch p := ZeroSpreadPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return ZeroSpreadError, nil
	case ZeroSpreadError, ZeroSpreadPropagate, ZeroSpreadZero:
		return p, nil
	}
	return "", apperr.Newf(apperr.KindInvalidInput, "unknown zero-spread policy %q (use error, propagate or zero)", s)
}

// Options tunes Apply.
type Options struct {
	ZeroSpread ZeroSpreadPolicy
}

// Apply returns a new matrix normalized column-wise under scheme.
func Apply(m [][]float64, scheme Scheme, opts Options) ([][]float64, error) {
	out := make([][]float64, len(m))
	for i, row := range m {
		out[i] = append([]float64(nil), row...)
	}
	if scheme == None || len(m) == 0 {
		return out, nil
	}
	cols := len(m[0])
	for i, row := range m {
		if len(row) != cols {
			return nil, apperr.Newf(apperr.KindInconsistentDimensions, "matrix row %d has %d columns, expected %d", i, len(row), cols)
		}
	}
	policy := opts.ZeroSpread
	if policy == "" {
		policy = ZeroSpreadError
	}
	col := make([]float64, len(m))
	for j := 0; j < cols; j++ {
		for i := range m {
			col[i] = m[i][j]
		}
		var shift, scale float64
		switch scheme {
		case Center:
			shift, scale = stat.Mean(col, nil), 1
		case ZScore:
			shift, scale = stat.MeanStdDev(col, nil)
		case MinMax:
			lo, hi := floats.Min(col), floats.Max(col)
			shift, scale = lo, hi-lo
		default:
			return nil, apperr.Newf(apperr.KindInvalidInput, "unknown normalization %q", scheme)
		}
		zero := scale == 0 || math.IsNaN(scale)
		if zero && scheme != Center {
			switch policy {
			case ZeroSpreadError:
				return nil, apperr.Newf(apperr.KindZeroVariance, "column %d has zero spread; %s is undefined", j+1, scheme).
					WithContext("column", j+1)
			case ZeroSpreadZero:
				for i := range out {
					out[i][j] = 0
				}
				continue
			}
		}
		for i := range out {
			out[i][j] = (out[i][j] - shift) / scale
		}
	}
	return out, nil
}

// ZeroSpreadColumns returns the 0-based indexes of columns whose values are all equal.
func ZeroSpreadColumns(m [][]float64) []int {
	if len(m) == 0 {
		return nil
	}
	var out []int
	for j := range m[0] {
		first, constant := m[0][j], true
		for i := 1; i < len(m); i++ {
			if m[i][j] != first {
				constant = false
				break
			}
		}
		if constant {
			out = append(out, j)
		}
	}
	return out
}
