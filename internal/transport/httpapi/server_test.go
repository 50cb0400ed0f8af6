package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/KaramelBytes/mvlens-cli/internal/engine"
	"github.com/KaramelBytes/mvlens-cli/internal/session"
	"github.com/KaramelBytes/mvlens-cli/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	fsys := afero.NewMemMapFs()
	files := map[string]string{
		"/in/labels.csv": "d1,d2,d3,d4\n",
		"/in/run1.csv":   "A,B,C\n1,2,4\n2,1,5\n3,7,1\n0.5,4,2\n",
		"/in/run2.csv":   "A,B,C\n1.5,2.5,3.5\n2.2,1.1,4.4\n2.9,6.3,1.7\n0.4,4.8,2.6\n",
		"/in/short.csv":  "A,B,C\n1,2,4\n2,1,5\n3,7,1\n0.5,4,2\n9,9,9\n",
	}
	for name, body := range files {
		require.NoError(t, afero.WriteFile(fsys, name, []byte(body), 0o644))
	}
	store := session.NewStore(fsys, "/sessions")
	reg := prometheus.NewRegistry()
	pool := worker.New(engine.New(store, nil, engine.Options{}), 2, nil, worker.NewMetrics(reg))
	pool.Start(context.Background())
	t.Cleanup(func() { _ = pool.Stop(time.Second) })

	srv := New(Options{Pool: pool, Sessions: store, Gatherer: reg, AllowedOrigins: []string{"http://localhost:3000"}})
	return srv.Routes()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), rec.Body.String())
	return m
}

const importBody = `{"labelFile":"/in/labels.csv","runFiles":["/in/run1.csv","/in/run2.csv"],"orientation":"column"}`

func TestHealthz(t *testing.T) {
	rec := do(t, newTestServer(t), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
}

func TestSessionLifecycle(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/sessions/wine", "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "wine", decode(t, rec)["name"])

	rec = do(t, h, http.MethodPost, "/sessions/wine", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodGet, "/sessions/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)

	rec = do(t, h, http.MethodGet, "/sessions/wine", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decode(t, rec)["graphConfigs"], "pca-2d-scatter")

	rec = do(t, h, http.MethodDelete, "/sessions/wine", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodGet, "/sessions/wine", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decode(t, rec)["kind"])
}

func TestInvalidSessionName(t *testing.T) {
	rec := do(t, newTestServer(t), http.MethodPost, "/sessions/-bad", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_INPUT", decode(t, rec)["kind"])
}

func TestImportAndAnalyse(t *testing.T) {
	h := newTestServer(t)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/sessions/wine", "").Code)

	rec := do(t, h, http.MethodPost, "/sessions/wine/dataframe", importBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.EqualValues(t, 6, body["rows"])
	assert.EqualValues(t, 4, body["dimensionCount"])

	rec = do(t, h, http.MethodGet, "/sessions/wine/dataframe", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["matrix"], 6)

	rec = do(t, h, http.MethodGet, "/sessions/wine/predict?dimensions=3&method=nipals", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body = decode(t, rec)
	assert.Equal(t, "center", body["normalize"])
	assert.Equal(t, "NIPALS", body["method"])
	assert.Len(t, body["components"], 6)
	traces := body["traces"].([]any)
	require.Len(t, traces, 3)
	assert.Len(t, traces[0].(map[string]any)["z"], 2)

	rec = do(t, h, http.MethodGet, "/sessions/wine/distance?normalize=zScore", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	m := decode(t, rec)["matrix"].(map[string]any)
	assert.Len(t, m["labels"], 6)

	rec = do(t, h, http.MethodGet, "/sessions/wine/dendrogram?method=ward", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body = decode(t, rec)
	assert.Equal(t, "horizontal", body["orientation"])
	assert.True(t, strings.HasSuffix(body["newick"].(string), ";"))

	rec = do(t, h, http.MethodGet, "/sessions/wine/heatmap?kind=distance", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "distance", decode(t, rec)["kind"])

	rec = do(t, h, http.MethodGet, "/sessions/wine/describe?format=markdown", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "[DATASET SUMMARY]")
}

func TestGraphConfigDrivesDefaults(t *testing.T) {
	h := newTestServer(t)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/sessions/wine", "").Code)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/sessions/wine/dataframe", importBody).Code)

	rec := do(t, h, http.MethodPut, "/sessions/wine/graphs/pca-2d-scatter", `{"normalize":"minMax","size":8}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/sessions/wine/predict", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "minMax", decode(t, rec)["normalize"])

	rec = do(t, h, http.MethodPut, "/sessions/wine/graphs/pca-2d-scatter", `{"size":80}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPut, "/sessions/wine/graphs/pie-chart", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImportFailureReportsFiles(t *testing.T) {
	h := newTestServer(t)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/sessions/wine", "").Code)

	rec := do(t, h, http.MethodPost, "/sessions/wine/dataframe",
		`{"labelFile":"/in/labels.csv","runFiles":["/in/run1.csv","/in/short.csv"],"orientation":"column"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "INCONSISTENT_DIMENSIONS", body["kind"])
	assert.EqualValues(t, 4, body["dimensionCount"])
	failures := body["failures"].([]any)
	require.Len(t, failures, 1)
	assert.Equal(t, "short.csv", failures[0].(map[string]any)["file"])

	rec = do(t, h, http.MethodPost, "/sessions/wine/dataframe", `{"runFiles":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/sessions/wine/dataframe", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalysisErrorsMapToStatus(t *testing.T) {
	h := newTestServer(t)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/sessions/wine", "").Code)

	rec := do(t, h, http.MethodGet, "/sessions/wine/predict", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "MISSING_SESSION_METADATA", decode(t, rec)["kind"])

	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/sessions/wine/dataframe", importBody).Code)

	rec = do(t, h, http.MethodGet, "/sessions/wine/predict?dimensions=0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_COMPONENT_COUNT", decode(t, rec)["kind"])

	rec = do(t, h, http.MethodGet, "/sessions/wine/predict?dimensions=two", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/sessions/wine/distance?normalize=log", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/sessions/wine/dendrogram?method=kmeans", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsAndCORS(t *testing.T) {
	h := newTestServer(t)
	do(t, h, http.MethodGet, "/sessions/nobody/predict", "")

	rec := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mvlens_worker_queue_depth")

	req := httptest.NewRequest(http.MethodOptions, "/sessions/", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "GET")
	preflight := httptest.NewRecorder()
	h.ServeHTTP(preflight, req)
	assert.Equal(t, "http://localhost:3000", preflight.Header().Get("Access-Control-Allow-Origin"))
}
