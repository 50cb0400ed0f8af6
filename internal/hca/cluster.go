package hca

import (
	"math"
	"strconv"
	"strings"

	"github.com/KaramelBytes/mvlens-cli/internal/apperr"
)

// Linkage selects the inter-cluster distance update.
type Linkage string

const (
	Single   Linkage = "single"
	Complete Linkage = "complete"
	Average  Linkage = "average"
	WPGMA    Linkage = "wpgma"
	Centroid Linkage = "centroid"
	Median   Linkage = "median"
	Ward     Linkage = "ward"
)

// Linkages lists every supported method.
var Linkages = []Linkage{Single, Complete, Average, WPGMA, Centroid, Median, Ward}

// ParseLinkage resolves a method name. upgma, upgmc and wpgmc are aliases.
func ParseLinkage(s string) (Linkage, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "single":
		return Single, nil
	case "", "complete":
		return Complete, nil
	case "average", "upgma":
		return Average, nil
	case "wpgma", "weighted":
		return WPGMA, nil
	case "centroid", "upgmc":
		return Centroid, nil
	case "median", "wpgmc":
		return Median, nil
	case "ward":
		return Ward, nil
	}
	return "", apperr.Newf(apperr.KindInvalidInput, "unknown linkage %q", s)
}

// Squared reports whether the method works on squared Euclidean distances.
// Those methods need distances that came from real coordinates.
func (l Linkage) Squared() bool {
	return l == Ward || l == Centroid || l == Median
}

// Monotonic reports whether merge heights never decrease for the method.
func (l Linkage) Monotonic() bool {
	return l != Centroid && l != Median
}

// Merge joins clusters A and B (A < B). Ids below n are leaves; the cluster
// created by merge i has id n+i.
type Merge struct {
	A      int     `json:"a"`
	B      int     `json:"b"`
	Height float64 `json:"height"`
	Size   int     `json:"size"`
}

// FromPoints clusters rows of points by Euclidean distance.
func FromPoints(points [][]float64, labels []string, l Linkage) (*Tree, error) {
	dm, err := Distances(points, labels)
	if err != nil {
		return nil, err
	}
	return cluster(dm, l)
}

// FromDistances clusters a precomputed Euclidean distance matrix.
func FromDistances(dm *DistanceMatrix, l Linkage) (*Tree, error) {
	if err := dm.Validate(); err != nil {
		return nil, err
	}
	return cluster(dm, l)
}

// cluster runs the Lance-Williams agglomeration. Ties resolve to the pair
// with the lowest indices.
func cluster(dm *DistanceMatrix, l Linkage) (*Tree, error) {
	switch l {
	case Single, Complete, Average, WPGMA, Centroid, Median, Ward:
	default:
		return nil, apperr.Newf(apperr.KindInvalidInput, "unknown linkage %q", l)
	}
	n := dm.Len()
	d := make([][]float64, n)
	for i := range d {
		d[i] = append([]float64(nil), dm.Values[i]...)
		if l.Squared() {
			for j := range d[i] {
				d[i][j] *= d[i][j]
			}
		}
	}
	id := make([]int, n)
	size := make([]int, n)
	active := make([]bool, n)
	for i := range id {
		id[i], size[i], active[i] = i, 1, true
	}

	merges := make([]Merge, 0, n-1)
	for step := 0; step < n-1; step++ {
		bi, bj, best := -1, -1, math.Inf(1)
		for i := 0; i < n; i++ {
			if !active[i] {
				continue
			}
			for j := i + 1; j < n; j++ {
				if active[j] && d[i][j] < best {
					bi, bj, best = i, j, d[i][j]
				}
			}
		}
		if bi < 0 {
			return nil, apperr.Newf(apperr.KindInvalidInput, "distance matrix contains no finite pair")
		}
		h := best
		if l.Squared() {
			h = math.Sqrt(math.Max(best, 0))
		}
		a, b := id[bi], id[bj]
		if a > b {
			a, b = b, a
		}
		ni, nj := float64(size[bi]), float64(size[bj])
		merges = append(merges, Merge{A: a, B: b, Height: h, Size: size[bi] + size[bj]})

		for k := 0; k < n; k++ {
			if !active[k] || k == bi || k == bj {
				continue
			}
			dik, djk := d[bi][k], d[bj][k]
			var v float64
			switch l {
			case Single:
				v = math.Min(dik, djk)
			case Complete:
				v = math.Max(dik, djk)
			case Average:
				v = (ni*dik + nj*djk) / (ni + nj)
			case WPGMA:
				v = (dik + djk) / 2
			case Centroid:
				v = (ni*dik+nj*djk)/(ni+nj) - ni*nj*best/((ni+nj)*(ni+nj))
			case Median:
				v = dik/2 + djk/2 - best/4
			case Ward:
				nk := float64(size[k])
				v = ((ni+nk)*dik + (nj+nk)*djk - nk*best) / (ni + nj + nk)
			}
			d[bi][k], d[k][bi] = v, v
		}
		active[bj] = false
		size[bi] += size[bj]
		id[bi] = n + step
	}
	return newTree(dm.Labels, merges, l), nil
}

func itoa(i int) string { return strconv.Itoa(i) }
