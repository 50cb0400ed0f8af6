package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "SVD", c.PCAMethod)
	assert.Equal(t, 2, c.DefaultDimensions)
	assert.Equal(t, "center", c.PredictNormalize)
	assert.Equal(t, "none", c.DistanceNormalize)
	assert.Equal(t, "complete", c.ClusteringMethod)
	assert.Equal(t, "error", c.ZeroSpread)
	assert.Equal(t, 2, c.Workers)
	assert.Equal(t, "127.0.0.1:8765", c.ServeAddr)
	assert.Equal(t, filepath.Join(home, ".mvlens", "sessions"), c.SessionsDir)
}

func TestSaveAndReload(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.yaml")

	c, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, c.Set("pca_method", "nipals"))
	require.NoError(t, c.Set("clustering_method", "upgma"))
	require.NoError(t, c.Set("allowed_origins", "http://localhost:3000, app://mvlens"))
	require.NoError(t, Save(c, path))

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "NIPALS", again.PCAMethod)
	assert.Equal(t, "average", again.ClusteringMethod)
	assert.Equal(t, []string{"http://localhost:3000", "app://mvlens"}, again.AllowedOrigins)
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: 3\nsessions_dir: /data/s\n"), 0o644))
	t.Setenv("MVLENS_WORKERS", "6")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 6, c.Workers)
	assert.Equal(t, "/data/s", c.SessionsDir)
}

func TestLoadRejectsUnknownValues(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("predict_normalize: log\n"), 0o644))

	_, err := Load(path)
	assert.ErrorContains(t, err, "predict_normalize")
}

func TestSetAndGet(t *testing.T) {
	c := &Global{}
	require.NoError(t, c.Set("predict_normalize", "z-score"))
	got, err := c.Get("predict_normalize")
	require.NoError(t, err)
	assert.Equal(t, "zScore", got)

	assert.Error(t, c.Set("workers", "0"))
	assert.Error(t, c.Set("default_dimensions", "two"))
	assert.Error(t, c.Set("clustering_method", "kmeans"))
	assert.Error(t, c.Set("nope", "x"))
	_, err = c.Get("nope")
	assert.Error(t, err)
}
