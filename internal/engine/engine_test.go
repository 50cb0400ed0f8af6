package engine

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/KaramelBytes/mvlens-cli/internal/apperr"
	"github.com/KaramelBytes/mvlens-cli/internal/dataframe"
	"github.com/KaramelBytes/mvlens-cli/internal/hca"
	"github.com/KaramelBytes/mvlens-cli/internal/importer"
	"github.com/KaramelBytes/mvlens-cli/internal/normalize"
	"github.com/KaramelBytes/mvlens-cli/internal/pca"
	"github.com/KaramelBytes/mvlens-cli/internal/session"
	"github.com/KaramelBytes/mvlens-cli/internal/stats"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setup creates a session holding the two-file, three-sample,
// four-dimension column-oriented dataset.
func setup(t *testing.T) (*Engine, *session.Session) {
	t.Helper()
	fsys := afero.NewMemMapFs()
	files := map[string]string{
		"/in/labels.csv": "d1,d2,d3,d4\n",
		"/in/run1.csv":   "A,B,C\n1,2,4\n2,1,5\n3,7,1\n0.5,4,2\n",
		"/in/run2.csv":   "A,B,C\n1.5,2.5,3.5\n2.2,1.1,4.4\n2.9,6.3,1.7\n0.4,4.8,2.6\n",
	}
	for name, body := range files {
		require.NoError(t, afero.WriteFile(fsys, name, []byte(body), 0o644))
	}
	store := session.NewStore(fsys, "/sessions")
	e := New(store, nil, Options{})
	sess, err := store.Create("wine")
	require.NoError(t, err)

	_, err = e.CreateDataframe(context.Background(), sess, importer.Request{
		LabelFile:   "/in/labels.csv",
		RunFiles:    []string{"/in/run1.csv", "/in/run2.csv"},
		Orientation: importer.Column,
	})
	require.NoError(t, err)
	return e, sess
}

func TestEndToEndColumnImportAndPCA(t *testing.T) {
	e, sess := setup(t)
	ctx := context.Background()

	assert.Equal(t, 4, sess.DimensionCount)
	assert.Equal(t, []string{"run1.csv", "run2.csv"}, sess.FileNames)
	assert.Equal(t, session.Separated, sess.Type)

	f, err := e.ReadImportDataframe(ctx, sess, dataframe.ReadOptions{WithClasses: true})
	require.NoError(t, err)
	require.Len(t, f.Matrix, 6)
	assert.Equal(t, 4, f.Dimensions())
	assert.Equal(t, "A run1.csv", f.Classes[0])

	p, err := e.ReadPredictMatrix(ctx, sess, PredictRequest{Dimensions: 2, Normalize: normalize.Center, Method: pca.SVD})
	require.NoError(t, err)
	require.Len(t, p.Components, 6)
	for _, row := range p.Components {
		assert.Len(t, row, 2)
	}
	var sum float64
	for _, v := range p.ExplainedVariance {
		sum += v
	}
	assert.LessOrEqual(t, sum, 1.0+1e-9)
	assert.Equal(t, dataframe.Key{File: "run2.csv", Sample: "C"}, p.Keys[5])

	traces := p.Traces()
	require.Len(t, traces, 3)
	assert.Equal(t, "A", traces[0].Name)
	assert.Equal(t, []string{"run1.csv", "run2.csv"}, traces[0].Text)
	assert.Nil(t, traces[0].Z)
}

func TestPredictCacheReuse(t *testing.T) {
	e, sess := setup(t)
	ctx := context.Background()
	req := PredictRequest{Dimensions: 2, Normalize: normalize.Center}

	first, err := e.ReadPredictMatrix(ctx, sess, req)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := e.ReadPredictMatrix(ctx, sess, req)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, int64(1), e.Stats().PCAComputations)
	for i := range first.Components {
		assert.InDeltaSlice(t, first.Components[i], second.Components[i], 1e-12)
	}

	// Fewer components come from the same persisted fit.
	third, err := e.ReadPredictMatrix(ctx, sess, PredictRequest{Dimensions: 3, Normalize: normalize.Center})
	require.NoError(t, err)
	assert.True(t, third.Cached)

	_, err = e.ReadPredictMatrix(ctx, sess, PredictRequest{Dimensions: 2, Normalize: normalize.ZScore})
	require.NoError(t, err)
	assert.Equal(t, int64(2), e.Stats().PCAComputations)
	assert.Equal(t, normalize.ZScore, sess.PredictNormalize)

	stored, err := e.Sessions().Load("wine")
	require.NoError(t, err)
	assert.Equal(t, normalize.ZScore, stored.PredictNormalize)
	assert.Equal(t, pca.SVD, stored.PredictMethod)

	_, err = e.ReadPredictMatrix(ctx, sess, PredictRequest{Dimensions: 2, Normalize: normalize.ZScore, Method: pca.NIPALS})
	require.NoError(t, err)
	assert.Equal(t, int64(3), e.Stats().PCAComputations)
}

func TestPredictInvalidComponentCount(t *testing.T) {
	e, sess := setup(t)
	for _, k := range []int{0, 5} {
		_, err := e.ReadPredictMatrix(context.Background(), sess, PredictRequest{Dimensions: k, Normalize: normalize.Center})
		assert.True(t, errors.Is(err, apperr.ErrInvalidComponentCount), "k=%d", k)
	}
}

func TestPredictRequiresMetadata(t *testing.T) {
	store := session.NewStore(afero.NewMemMapFs(), "/sessions")
	e := New(store, nil, Options{})
	sess, err := store.Create("empty")
	require.NoError(t, err)

	_, err = e.ReadPredictMatrix(context.Background(), sess, PredictRequest{Dimensions: 2})
	assert.True(t, errors.Is(err, apperr.ErrMissingSessionMetadata))
	_, err = e.ReadDistanceMatrix(context.Background(), sess, normalize.None)
	assert.True(t, errors.Is(err, apperr.ErrMissingSessionMetadata))
	_, err = e.ReadImportDataframe(context.Background(), sess, dataframe.ReadOptions{})
	assert.True(t, errors.Is(err, apperr.ErrEmptyDataframe))
}

func TestDistanceCacheAndPersistedFormat(t *testing.T) {
	e, sess := setup(t)
	ctx := context.Background()

	d1, err := e.ReadDistanceMatrix(ctx, sess, normalize.None)
	require.NoError(t, err)
	assert.False(t, d1.Cached)
	d2, err := e.ReadDistanceMatrix(ctx, sess, normalize.None)
	require.NoError(t, err)
	assert.True(t, d2.Cached)
	assert.Equal(t, int64(1), e.Stats().DistanceComputations)
	assert.Equal(t, d1.Matrix.Labels, d2.Matrix.Labels)

	recs, err := afero.ReadFile(e.fs, filepath.Join(e.sessions.Dir("wine"), session.DistanceFile))
	require.NoError(t, err)
	assert.Contains(t, string(recs), "\" \",A run1.csv,B run1.csv")

	_, err = e.ReadDistanceMatrix(ctx, sess, normalize.MinMax)
	require.NoError(t, err)
	assert.Equal(t, int64(2), e.Stats().DistanceComputations)
	assert.Equal(t, normalize.MinMax, sess.DistanceNormalize)
}

func TestClusterTreeAndHeatmaps(t *testing.T) {
	e, sess := setup(t)
	ctx := context.Background()

	tree, err := e.ReadClusterTree(ctx, sess, normalize.None, hca.Ward)
	require.NoError(t, err)
	assert.Equal(t, 6, tree.Root.Size)
	assert.Len(t, tree.Merges, 5)

	h, err := e.ReadHeatmap(ctx, sess, HeatmapRequest{Kind: hca.HeatmapDefault, Normalize: normalize.ZScore, XLinkage: hca.Complete, YLinkage: hca.Average})
	require.NoError(t, err)
	assert.Len(t, h.RowLabels, 6)
	assert.ElementsMatch(t, []string{"d1", "d2", "d3", "d4"}, h.ColumnLabels)

	dh, err := e.ReadHeatmap(ctx, sess, HeatmapRequest{Kind: hca.HeatmapDistance, Normalize: normalize.None, XLinkage: hca.Complete, YLinkage: hca.Complete})
	require.NoError(t, err)
	assert.Equal(t, dh.RowLabels, dh.ColumnLabels)
	assert.Equal(t, int64(1), e.Stats().DistanceComputations)
}

func TestReimportInvalidatesArtifacts(t *testing.T) {
	e, sess := setup(t)
	ctx := context.Background()
	_, err := e.ReadPredictMatrix(ctx, sess, PredictRequest{Dimensions: 2, Normalize: normalize.Center})
	require.NoError(t, err)

	_, err = e.CreateDataframe(ctx, sess, importer.Request{
		LabelFile:   "/in/labels.csv",
		RunFiles:    []string{"/in/run1.csv"},
		Orientation: importer.Column,
	})
	require.NoError(t, err)
	assert.Equal(t, session.Single, sess.Type)

	p, err := e.ReadPredictMatrix(ctx, sess, PredictRequest{Dimensions: 2, Normalize: normalize.Center})
	require.NoError(t, err)
	assert.False(t, p.Cached)
	assert.Len(t, p.Components, 3)
	assert.Equal(t, int64(2), e.Stats().PCAComputations)
}

func TestFailedImportKeepsPreviousData(t *testing.T) {
	e, sess := setup(t)
	require.NoError(t, afero.WriteFile(e.fs, "/in/short.csv", []byte("A,B\n1,2\n3,4\n5,6\n"), 0o644))

	_, err := e.CreateDataframe(context.Background(), sess, importer.Request{
		LabelFile:   "/in/labels.csv",
		RunFiles:    []string{"/in/run1.csv", "/in/short.csv"},
		Orientation: importer.Column,
	})
	assert.True(t, errors.Is(err, apperr.ErrInconsistentDimensions))
	var ie *importer.ImportError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, 4, ie.DimensionCount)

	f, err := e.ReadImportDataframe(context.Background(), sess, dataframe.ReadOptions{})
	require.NoError(t, err)
	assert.Len(t, f.Matrix, 6)
}

func TestFailedImportRecordsDimensionCount(t *testing.T) {
	e, sess := setup(t)
	ctx := context.Background()
	files := map[string]string{
		"/in/labels3.csv": "d1,d2,d3\n",
		"/in/three.csv":   "A,B\n1,2\n3,4\n5,6\n",
		"/in/two.csv":     "A,B\n1,2\n3,4\n",
	}
	for name, body := range files {
		require.NoError(t, afero.WriteFile(e.fs, name, []byte(body), 0o644))
	}
	_, err := e.CreateDataframe(ctx, sess, importer.Request{
		LabelFile:   "/in/labels3.csv",
		RunFiles:    []string{"/in/three.csv", "/in/two.csv"},
		Orientation: importer.Column,
	})
	assert.True(t, errors.Is(err, apperr.ErrInconsistentDimensions))
	assert.Equal(t, 3, sess.ImportDimensionCount)
	assert.Equal(t, 4, sess.DimensionCount)

	stored, err := e.Sessions().Load(sess.Name)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.ImportDimensionCount)
	assert.Equal(t, 4, stored.DimensionCount)
	assert.Equal(t, []string{"run1.csv", "run2.csv"}, stored.FileNames)

	f, err := e.ReadImportDataframe(ctx, sess, dataframe.ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, 4, f.Dimensions())
}

func TestNilSessionIsInvalidInput(t *testing.T) {
	e, _ := setup(t)
	ctx := context.Background()

	_, err := e.CreateDataframe(ctx, nil, importer.Request{})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	_, err = e.ReadImportDataframe(ctx, nil, dataframe.ReadOptions{})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	_, err = e.ReadPredictMatrix(ctx, nil, PredictRequest{Dimensions: 2})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	_, err = e.ReadDistanceMatrix(ctx, nil, normalize.None)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	_, err = e.ReadClusterTree(ctx, nil, normalize.None, hca.Ward)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	_, err = e.ReadHeatmap(ctx, nil, HeatmapRequest{Kind: hca.HeatmapDistance})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	_, err = e.Describe(ctx, nil, stats.DefaultOptions())
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	_, err = e.Export(ctx, nil, "/export")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestDescribeAndExport(t *testing.T) {
	e, sess := setup(t)
	ctx := context.Background()
	r, err := e.Describe(ctx, sess, stats.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 6, r.Rows)
	assert.Equal(t, "d1", r.Dimensions[0].Name)

	_, err = e.ReadPredictMatrix(ctx, sess, PredictRequest{Dimensions: 2, Normalize: normalize.Center})
	require.NoError(t, err)
	written, err := e.Export(ctx, sess, "/export")
	require.NoError(t, err)
	assert.Len(t, written, 5)
}
