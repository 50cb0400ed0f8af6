package hca

import (
	"errors"
	"math"
	"sort"
	"testing"

	"github.com/KaramelBytes/mvlens-cli/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var points = [][]float64{
	{0, 0},
	{0, 1},
	{5, 5},
	{5, 6},
	{10, 0},
	{0.5, 0.2},
	{6, 5.5},
}

var labels = []string{"a", "b", "c", "d", "e", "f", "g"}

func TestDistancesSymmetricZeroDiagonal(t *testing.T) {
	dm, err := Distances(points, labels)
	require.NoError(t, err)
	require.NoError(t, dm.Validate())
	for i := range points {
		assert.Equal(t, 0.0, dm.Values[i][i])
		for j := range points {
			assert.Equal(t, dm.Values[i][j], dm.Values[j][i])
		}
	}
	assert.InDelta(t, math.Sqrt(50), dm.Values[0][2], 1e-12)
}

func TestDistancesRejectsRaggedInput(t *testing.T) {
	_, err := Distances([][]float64{{1, 2}, {1}}, nil)
	assert.True(t, errors.Is(err, apperr.ErrInconsistentDimensions))
	_, err = Distances(nil, nil)
	assert.True(t, errors.Is(err, apperr.ErrEmptyDataframe))
}

func TestWardHeightsMonotonic(t *testing.T) {
	tree, err := FromPoints(points, labels, Ward)
	require.NoError(t, err)
	hs := tree.Heights()
	require.Len(t, hs, len(points)-1)
	assert.True(t, sort.Float64sAreSorted(hs), "heights %v", hs)

	var walk func(n *Node)
	walk = func(n *Node) {
		if n.IsLeaf() {
			return
		}
		assert.GreaterOrEqual(t, n.Height, n.Left.Height)
		assert.GreaterOrEqual(t, n.Height, n.Right.Height)
		walk(n.Left)
		walk(n.Right)
	}
	walk(tree.Root)
}

func TestMonotonicLinkagesAreSorted(t *testing.T) {
	for _, l := range Linkages {
		if !l.Monotonic() {
			continue
		}
		tree, err := FromPoints(points, labels, l)
		require.NoError(t, err, l)
		assert.True(t, sort.Float64sAreSorted(tree.Heights()), "%s: %v", l, tree.Heights())
		assert.Equal(t, len(points), tree.Root.Size)
	}
}

func TestSingleAndCompleteHeights(t *testing.T) {
	pts := [][]float64{{0}, {1}, {4}}
	single, err := FromPoints(pts, nil, Single)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 3}, single.Heights())

	complete, err := FromPoints(pts, nil, Complete)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 4}, complete.Heights())

	avg, err := FromPoints(pts, nil, Average)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 3.5}, avg.Heights())
	assert.Equal(t, Merge{A: 2, B: 3, Height: 3.5, Size: 3}, avg.Merges[1])
}

func TestWardMatchesCentroidSpread(t *testing.T) {
	// Two points at distance 2: ward height is the distance itself.
	tree, err := FromPoints([][]float64{{0, 0}, {2, 0}}, nil, Ward)
	require.NoError(t, err)
	assert.InDelta(t, 2, tree.Root.Height, 1e-12)
}

func TestFromDistancesMatchesFromPoints(t *testing.T) {
	dm, err := Distances(points, labels)
	require.NoError(t, err)
	for _, l := range Linkages {
		a, err := FromPoints(points, labels, l)
		require.NoError(t, err)
		b, err := FromDistances(dm, l)
		require.NoError(t, err)
		assert.Equal(t, a.Merges, b.Merges, l)
	}
}

func TestTiesResolveToLowestIndices(t *testing.T) {
	dm := &DistanceMatrix{
		Labels: []string{"p", "q", "r", "s"},
		Values: [][]float64{
			{0, 1, 1, 1},
			{1, 0, 1, 1},
			{1, 1, 0, 1},
			{1, 1, 1, 0},
		},
	}
	tree, err := FromDistances(dm, Single)
	require.NoError(t, err)
	assert.Equal(t, Merge{A: 0, B: 1, Height: 1, Size: 2}, tree.Merges[0])
	assert.Equal(t, Merge{A: 2, B: 4, Height: 1, Size: 3}, tree.Merges[1])
	assert.Equal(t, []int{3, 2, 0, 1}, tree.LeafOrder())
}

func TestLeafOrderCoversAllLeaves(t *testing.T) {
	tree, err := FromPoints(points, labels, Complete)
	require.NoError(t, err)
	order := tree.LeafOrder()
	sorted := append([]int(nil), order...)
	sort.Ints(sorted)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6}, sorted)
	assert.Contains(t, tree.Newick(), "a:")
}

func TestValidateRejectsAsymmetric(t *testing.T) {
	dm := &DistanceMatrix{Labels: []string{"x", "y"}, Values: [][]float64{{0, 1}, {2, 0}}}
	_, err := FromDistances(dm, Complete)
	assert.True(t, errors.Is(err, apperr.ErrInvalidInput))
}

func TestSingleLeafTree(t *testing.T) {
	tree, err := FromPoints([][]float64{{1, 2}}, []string{"only"}, Ward)
	require.NoError(t, err)
	assert.True(t, tree.Root.IsLeaf())
	assert.Empty(t, tree.Merges)
	assert.Equal(t, "only;", tree.Newick())
}

func TestSampleHeatmapReordersBothAxes(t *testing.T) {
	h, err := SampleHeatmap(points, labels, []string{"x", "y"}, Complete, Complete)
	require.NoError(t, err)
	assert.Len(t, h.RowLabels, len(points))
	assert.ElementsMatch(t, []string{"x", "y"}, h.ColumnLabels)
	for i, lbl := range h.RowLabels {
		src := indexOf(labels, lbl)
		for j, col := range h.ColumnLabels {
			assert.Equal(t, points[src][indexOf([]string{"x", "y"}, col)], h.Values[i][j])
		}
	}
}

func TestDistanceHeatmapIsSymmetricUnderSameLinkage(t *testing.T) {
	dm, err := Distances(points, labels)
	require.NoError(t, err)
	h, err := DistanceHeatmap(dm, Average, Average)
	require.NoError(t, err)
	assert.Equal(t, h.RowLabels, h.ColumnLabels)
	for i := range h.Values {
		assert.Equal(t, 0.0, h.Values[i][i])
	}
}

func indexOf(xs []string, s string) int {
	for i, x := range xs {
		if x == s {
			return i
		}
	}
	return -1
}
