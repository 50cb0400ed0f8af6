package httpapi

import (
	"net/http"
	"strconv"

	"github.com/KaramelBytes/mvlens-cli/internal/apperr"
	"github.com/KaramelBytes/mvlens-cli/internal/dataframe"
	"github.com/KaramelBytes/mvlens-cli/internal/engine"
	"github.com/KaramelBytes/mvlens-cli/internal/hca"
	"github.com/KaramelBytes/mvlens-cli/internal/importer"
	"github.com/KaramelBytes/mvlens-cli/internal/normalize"
	"github.com/KaramelBytes/mvlens-cli/internal/pca"
	"github.com/KaramelBytes/mvlens-cli/internal/session"
	"github.com/KaramelBytes/mvlens-cli/internal/stats"
	"github.com/KaramelBytes/mvlens-cli/internal/worker"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

func errInvalidName(name string) error {
	return apperr.Newf(apperr.KindInvalidInput, "invalid session name %q", name)
}

// ImportRequest is the body of POST /sessions/{name}/dataframe. Paths are
// local to the machine running the server.
type ImportRequest struct {
	LabelFile   string   `json:"labelFile" validate:"required"`
	RunFiles    []string `json:"runFiles" validate:"required,min=1,dive,required"`
	Orientation string   `json:"orientation" validate:"omitempty,oneof=row column col"`
}

// Bind implements render.Binder.
func (req *ImportRequest) Bind(r *http.Request) error {
	return session.Validate(req)
}

// ImportResponse reports a successful import.
type ImportResponse struct {
	Session        *session.Session `json:"session"`
	Rows           int              `json:"rows"`
	DimensionCount int              `json:"dimensionCount"`
}

// DataframeResponse is the canonical table of a session.
type DataframeResponse struct {
	FileNames       []string        `json:"fileNames"`
	Labels          []string        `json:"labels"`
	DimensionLabels []string        `json:"dimensionLabels"`
	Keys            []dataframe.Key `json:"keys"`
	Classes         []string        `json:"classes"`
	Matrix          [][]float64     `json:"matrix"`
}

// PredictResponse is a PCA projection plus per-sample scatter traces.
type PredictResponse struct {
	*engine.Prediction
	Traces []engine.Trace `json:"traces"`
}

// DendrogramResponse is a clustering tree with its Newick rendering.
type DendrogramResponse struct {
	Tree        *hca.Tree `json:"tree"`
	Newick      string    `json:"newick"`
	Orientation string    `json:"orientation,omitempty"`
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	list, err := s.sessions.List()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if list == nil {
		list = []*session.Session{}
	}
	render.JSON(w, r, list)
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Create(chi.URLParam(r, "name"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, sess)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	info, err := s.sessions.Info(chi.URLParam(r, "name"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, info)
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(chi.URLParam(r, "name")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setGraphConfig(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	graph, err := session.ParseGraphType(chi.URLParam(r, "graph"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var cfg session.GraphConfig
	if err := render.DecodeJSON(r.Body, &cfg); err != nil {
		s.fail(w, r, apperr.New(apperr.KindInvalidInput, "decode graph config", err))
		return
	}
	if err := s.sessions.SetGraphConfig(name, graph, cfg); err != nil {
		s.fail(w, r, err)
		return
	}
	s.getSession(w, r)
}

func (s *Server) createDataframe(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if err := render.Bind(r, &req); err != nil {
		if apperr.KindOf(err) == "" {
			err = apperr.New(apperr.KindInvalidInput, "decode import request", err)
		}
		s.fail(w, r, err)
		return
	}
	orientation, err := importer.ParseOrientation(req.Orientation)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	sess, err := s.sessions.Load(chi.URLParam(r, "name"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.pool.Do(r.Context(), worker.Request{
		Command: worker.CreateDataframe,
		Session: sess,
		Payload: importer.Request{LabelFile: req.LabelFile, RunFiles: req.RunFiles, Orientation: orientation},
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	result := res.(*importer.Result)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, ImportResponse{Session: sess, Rows: len(result.Rows), DimensionCount: result.DimensionCount})
}

func (s *Server) readDataframe(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Load(chi.URLParam(r, "name"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.pool.Do(r.Context(), worker.Request{Command: worker.ReadImportDataframe, Session: sess, Payload: dataframe.AllParts})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	f := res.(*dataframe.Frame)
	render.JSON(w, r, DataframeResponse{
		FileNames:       f.FileNames,
		Labels:          f.Labels,
		DimensionLabels: f.DimensionLabels,
		Keys:            f.Keys,
		Classes:         f.Classes,
		Matrix:          f.Matrix,
	})
}

func (s *Server) describe(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Load(chi.URLParam(r, "name"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.pool.Do(r.Context(), worker.Request{Command: worker.Describe, Session: sess, Payload: stats.DefaultOptions()})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	report := res.(*stats.Report)
	if r.URL.Query().Get("format") == "markdown" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = w.Write([]byte(report.Markdown()))
		return
	}
	render.JSON(w, r, report)
}

func (s *Server) predict(w http.ResponseWriter, r *http.Request) {
	info, err := s.sessions.Info(chi.URLParam(r, "name"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	q := r.URL.Query()
	dims := 2
	if v := q.Get("dimensions"); v != "" {
		if dims, err = strconv.Atoi(v); err != nil {
			s.fail(w, r, apperr.Newf(apperr.KindInvalidComponentCount, "dimensions must be an integer, got %q", v))
			return
		}
	}
	graph := session.PCA2DScatter
	if dims == 3 {
		graph = session.PCA3DScatter
	}
	scheme, err := schemeParam(r, info.GraphConfigs[graph].Normalize)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	method, err := pca.ParseMethod(string(info.Session.PredictMethod))
	if err == nil && q.Has("method") {
		method, err = pca.ParseMethod(q.Get("method"))
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.pool.Do(r.Context(), worker.Request{
		Command: worker.ReadPredictMatrix,
		Session: info.Session,
		Payload: engine.PredictRequest{Dimensions: dims, Normalize: scheme, Method: method},
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	p := res.(*engine.Prediction)
	render.JSON(w, r, PredictResponse{Prediction: p, Traces: p.Traces()})
}

func (s *Server) distance(w http.ResponseWriter, r *http.Request) {
	info, err := s.sessions.Info(chi.URLParam(r, "name"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	scheme, err := schemeParam(r, info.GraphConfigs[session.HeatmapDistance].Normalize)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.pool.Do(r.Context(), worker.Request{Command: worker.ReadDistanceMatrix, Session: info.Session, Payload: scheme})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, res)
}

func (s *Server) dendrogram(w http.ResponseWriter, r *http.Request) {
	info, err := s.sessions.Info(chi.URLParam(r, "name"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	cfg := info.GraphConfigs[session.HCADendrogram]
	scheme, err := schemeParam(r, cfg.Normalize)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	linkage, err := linkageParam(r, "method", cfg.ClusteringMethod)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.pool.Do(r.Context(), worker.Request{
		Command: worker.ReadClusterTree,
		Session: info.Session,
		Payload: worker.ClusterRequest{Normalize: scheme, Linkage: linkage},
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	tree := res.(*hca.Tree)
	render.JSON(w, r, DendrogramResponse{Tree: tree, Newick: tree.Newick(), Orientation: cfg.Orientation})
}

func (s *Server) heatmap(w http.ResponseWriter, r *http.Request) {
	info, err := s.sessions.Info(chi.URLParam(r, "name"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	kind, err := hca.ParseHeatmapKind(r.URL.Query().Get("kind"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	graph := session.HeatmapDefault
	if kind == hca.HeatmapDistance {
		graph = session.HeatmapDistance
	}
	cfg := info.GraphConfigs[graph]
	scheme, err := schemeParam(r, cfg.Normalize)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	x, err := linkageParam(r, "x", cfg.XClusteringMethod)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	y, err := linkageParam(r, "y", cfg.YClusteringMethod)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.pool.Do(r.Context(), worker.Request{
		Command: worker.ReadHeatmap,
		Session: info.Session,
		Payload: engine.HeatmapRequest{Kind: kind, Normalize: scheme, XLinkage: x, YLinkage: y},
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, res)
}

// schemeParam reads ?normalize=, falling back to the graph setting.
func schemeParam(r *http.Request, fallback normalize.Scheme) (normalize.Scheme, error) {
	if q := r.URL.Query(); q.Has("normalize") {
		return normalize.ParseScheme(q.Get("normalize"))
	}
	return normalize.ParseScheme(string(fallback))
}

func linkageParam(r *http.Request, key string, fallback hca.Linkage) (hca.Linkage, error) {
	if q := r.URL.Query(); q.Has(key) {
		return hca.ParseLinkage(q.Get(key))
	}
	return hca.ParseLinkage(string(fallback))
}
