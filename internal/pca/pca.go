// Package pca computes principal component projections of a sample matrix.
//
// Every method centers the data itself, so centered input is a fixed point.
// Eigenvalues are score variances (s²/(n-1)) and explained variance is the
// ratio of each eigenvalue to the total variance. Component signs are fixed so
// the largest-magnitude loading of each component is positive, which makes
// the three methods directly comparable.
package pca

import (
	"math"
	"strings"

	"github.com/KaramelBytes/mvlens-cli/internal/apperr"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Method selects the decomposition.
type Method string

const (
	SVD        Method = "SVD"
	NIPALS     Method = "NIPALS"
	Covariance Method = "covarianceMatrix"
)

// Methods lists every supported method.
var Methods = []Method{SVD, NIPALS, Covariance}

// ParseMethod resolves a method name case-insensitively. The empty string is SVD.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "svd":
		return SVD, nil
	case "nipals":
		return NIPALS, nil
	case "covariancematrix", "covariance", "cov":
		return Covariance, nil
	}
	return "", apperr.Newf(apperr.KindInvalidInput, "unknown PCA method %q (use SVD, NIPALS or covarianceMatrix)", s)
}

const (
	nipalsMaxIter = 1000
	nipalsTol     = 1e-12
)

// Model is a fitted decomposition holding every available component.
type Model struct {
	Method      Method
	Means       []float64
	Eigenvalues []float64
	Explained   []float64
	// Loadings is d×k; column j is the direction of component j.
	Loadings *mat.Dense
	// Scores is n×k, rows aligned with the input rows.
	Scores *mat.Dense
}

// Result is the PCA output for a requested component count.
type Result struct {
	Method            Method
	Components        [][]float64
	Eigenvalues       []float64
	Eigenvectors      [][]float64
	ExplainedVariance []float64
}

// MaxComponents is the largest valid component count for an n×d matrix.
func MaxComponents(n, d int) int {
	return min(n, d)
}

// ValidateComponents checks 1 <= k <= min(n, d).
func ValidateComponents(k, n, d int) error {
	if k < 1 || k > MaxComponents(n, d) {
		return apperr.Newf(apperr.KindInvalidComponentCount,
			"%d components requested; a %d×%d matrix supports 1 to %d", k, n, d, MaxComponents(n, d)).
			WithContext("requested", k).
			WithContext("max", MaxComponents(n, d))
	}
	return nil
}

// Predict fits data with method and returns the first numComponents scores.
func Predict(data [][]float64, numComponents int, method Method) (*Result, error) {
	if len(data) > 0 {
		if err := ValidateComponents(numComponents, len(data), len(data[0])); err != nil {
			return nil, err
		}
	}
	m, err := Fit(data, method)
	if err != nil {
		return nil, err
	}
	return m.Result(numComponents)
}

// Fit decomposes data (rows are samples) into min(n, d) components.
func Fit(data [][]float64, method Method) (*Model, error) {
	n := len(data)
	if n == 0 {
		return nil, apperr.Newf(apperr.KindEmptyDataframe, "no samples to decompose")
	}
	d := len(data[0])
	if n < 2 || d == 0 {
		return nil, apperr.Newf(apperr.KindInvalidInput, "PCA needs at least 2 samples and 1 dimension, got %d×%d", n, d)
	}
	x := mat.NewDense(n, d, nil)
	for i, row := range data {
		if len(row) != d {
			return nil, apperr.Newf(apperr.KindInconsistentDimensions, "row %d has %d values, expected %d", i, len(row), d)
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, apperr.Newf(apperr.KindInvalidInput, "row %d column %d is not finite", i, j+1)
			}
		}
		x.SetRow(i, row)
	}

	means := make([]float64, d)
	xc := mat.NewDense(n, d, nil)
	col := make([]float64, n)
	var total float64
	for j := 0; j < d; j++ {
		mat.Col(col, j, x)
		means[j] = stat.Mean(col, nil)
		total += stat.Variance(col, nil)
		for i, v := range col {
			xc.Set(i, j, v-means[j])
		}
	}

	k := MaxComponents(n, d)
	var (
		vecs *mat.Dense
		vars []float64
		err  error
	)
	switch method {
	case SVD, "":
		method = SVD
		vecs, vars, err = bySVD(x, k)
	case Covariance:
		vecs, vars, err = byCovariance(x, k)
	case NIPALS:
		vecs, vars = byNIPALS(xc, k)
	default:
		return nil, apperr.Newf(apperr.KindInvalidInput, "unknown PCA method %q", method)
	}
	if err != nil {
		return nil, err
	}
	normaliseSigns(vecs)

	scores := mat.NewDense(n, k, nil)
	scores.Mul(xc, vecs)

	explained := make([]float64, k)
	for i, v := range vars {
		if total > 0 {
			explained[i] = v / total
		}
	}
	return &Model{
		Method:      method,
		Means:       means,
		Eigenvalues: vars,
		Explained:   explained,
		Loadings:    vecs,
		Scores:      scores,
	}, nil
}

// Components is the number of fitted components.
func (m *Model) Components() int {
	_, k := m.Scores.Dims()
	return k
}

// Result truncates the scores to numComponents. Eigenvalues, eigenvectors and
// explained variance are returned for every fitted component.
func (m *Model) Result(numComponents int) (*Result, error) {
	n, _ := m.Scores.Dims()
	d, _ := m.Loadings.Dims()
	if err := ValidateComponents(numComponents, n, d); err != nil {
		return nil, err
	}
	return &Result{
		Method:            m.Method,
		Components:        Rows(m.Scores.Slice(0, n, 0, numComponents)),
		Eigenvalues:       append([]float64(nil), m.Eigenvalues...),
		Eigenvectors:      Rows(m.Loadings),
		ExplainedVariance: append([]float64(nil), m.Explained...),
	}, nil
}

// Rows copies a matrix into row slices.
func Rows(a mat.Matrix) [][]float64 {
	r, c := a.Dims()
	out := make([][]float64, r)
	for i := range out {
		out[i] = make([]float64, c)
		for j := range out[i] {
			out[i][j] = a.At(i, j)
		}
	}
	return out
}

func bySVD(x *mat.Dense, k int) (*mat.Dense, []float64, error) {
	var pc stat.PC
	if !pc.PrincipalComponents(x, nil) {
		return nil, nil, apperr.Newf(apperr.KindInvalidInput, "SVD did not converge")
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)
	vars := pc.VarsTo(nil)
	d, _ := vecs.Dims()
	return mat.DenseCopyOf(vecs.Slice(0, d, 0, k)), vars[:k], nil
}

func byCovariance(x *mat.Dense, k int) (*mat.Dense, []float64, error) {
	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, x, nil)
	var es mat.EigenSym
	if !es.Factorize(&cov, true) {
		return nil, nil, apperr.Newf(apperr.KindInvalidInput, "eigendecomposition did not converge")
	}
	vals := es.Values(nil)
	var ev mat.Dense
	es.VectorsTo(&ev)
	d := len(vals)
	vecs := mat.NewDense(d, k, nil)
	vars := make([]float64, k)
	// EigenSym orders values ascending.
	for c := 0; c < k; c++ {
		src := d - 1 - c
		vars[c] = math.Max(vals[src], 0)
		for r := 0; r < d; r++ {
			vecs.Set(r, c, ev.At(r, src))
		}
	}
	return vecs, vars, nil
}

// byNIPALS extracts components one at a time from the centered matrix,
// deflating the residual after each. Components beyond the rank of xc keep a
// zero direction and zero variance.
func byNIPALS(xc *mat.Dense, k int) (*mat.Dense, []float64) {
	r := mat.DenseCopyOf(xc)
	n, d := r.Dims()
	vecs := mat.NewDense(d, k, nil)
	vars := make([]float64, k)
	scale := mat.Norm(xc, 2)
	for c := 0; c < k; c++ {
		best, bestNorm := 0, -1.0
		for j := 0; j < d; j++ {
			if nrm := mat.Norm(r.ColView(j), 2); nrm > bestNorm {
				best, bestNorm = j, nrm
			}
		}
		if bestNorm <= 1e-12*math.Max(scale, 1) {
			break
		}
		t := mat.NewVecDense(n, nil)
		t.CopyVec(r.ColView(best))
		p := mat.NewVecDense(d, nil)
		next := mat.NewVecDense(n, nil)
		diff := mat.NewVecDense(n, nil)
		for iter := 0; iter < nipalsMaxIter; iter++ {
			p.MulVec(r.T(), t)
			p.ScaleVec(1/mat.Norm(p, 2), p)
			next.MulVec(r, p)
			diff.SubVec(next, t)
			t.CopyVec(next)
			if mat.Norm(diff, 2) <= nipalsTol*mat.Norm(t, 2) {
				break
			}
		}
		vars[c] = mat.Dot(t, t) / float64(n-1)
		vecs.SetCol(c, p.RawVector().Data)
		var outer mat.Dense
		outer.Outer(1, t, p)
		r.Sub(r, &outer)
	}
	return vecs, vars
}

func normaliseSigns(vecs *mat.Dense) {
	d, k := vecs.Dims()
	for c := 0; c < k; c++ {
		best, bestAbs := 0, -1.0
		for r := 0; r < d; r++ {
			if a := math.Abs(vecs.At(r, c)); a > bestAbs {
				best, bestAbs = r, a
			}
		}
		if vecs.At(best, c) < 0 {
			for r := 0; r < d; r++ {
				vecs.Set(r, c, -vecs.At(r, c))
			}
		}
	}
}
