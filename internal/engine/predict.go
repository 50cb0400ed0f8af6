package engine

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"time"

	"github.com/KaramelBytes/mvlens-cli/internal/apperr"
	"github.com/KaramelBytes/mvlens-cli/internal/cache"
	"github.com/KaramelBytes/mvlens-cli/internal/dataframe"
	"github.com/KaramelBytes/mvlens-cli/internal/fsutil"
	"github.com/KaramelBytes/mvlens-cli/internal/normalize"
	"github.com/KaramelBytes/mvlens-cli/internal/pca"
	"github.com/KaramelBytes/mvlens-cli/internal/session"
)

// PredictRequest asks for a PCA projection.
type PredictRequest struct {
	Dimensions int
	Normalize  normalize.Scheme
	Method     pca.Method
}

// Prediction is a PCA projection with rows keyed by (file, sample).
type Prediction struct {
	Keys              []dataframe.Key  `json:"keys"`
	Components        [][]float64      `json:"components"`
	Eigenvalues       []float64        `json:"eigenvalues"`
	Eigenvectors      [][]float64      `json:"eigenvectors"`
	ExplainedVariance []float64        `json:"explainedVariance"`
	Normalize         normalize.Scheme `json:"normalize"`
	Method            pca.Method       `json:"method"`
	Cached            bool             `json:"cached"`
}

// Trace groups the projected points of one sample across run files, the
// shape scatter plots consume.
type Trace struct {
	Name string    `json:"name"`
	X    []float64 `json:"x"`
	Y    []float64 `json:"y,omitempty"`
	Z    []float64 `json:"z,omitempty"`
	Text []string  `json:"text"`
}

// Traces returns one trace per sample in first-seen order. Z is filled only
// for three-component projections.
func (p *Prediction) Traces() []Trace {
	var out []Trace
	index := map[string]int{}
	for i, k := range p.Keys {
		j, ok := index[k.Sample]
		if !ok {
			j = len(out)
			index[k.Sample] = j
			out = append(out, Trace{Name: k.Sample})
		}
		t := &out[j]
		row := p.Components[i]
		t.X = append(t.X, row[0])
		if len(row) > 1 {
			t.Y = append(t.Y, row[1])
		}
		if len(row) == 3 {
			t.Z = append(t.Z, row[2])
		}
		t.Text = append(t.Text, k.File)
	}
	return out
}

type predictKey struct {
	Normalize normalize.Scheme
	Method    pca.Method
}

// pcaArtifacts is everything persisted for one PCA fit.
type pcaArtifacts struct {
	keys         []dataframe.Key
	scores       [][]float64
	eigenvalues  []float64
	eigenvectors [][]float64
	explained    []float64
}

// ReadPredictMatrix returns the first req.Dimensions principal components of
// the session's canonical table. The persisted fit is reused while the
// session's recorded normalization and method equal the request.
func (e *Engine) ReadPredictMatrix(ctx context.Context, sess *session.Session, req PredictRequest) (*Prediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Method == "" {
		req.Method = pca.SVD
	}
	if req.Dimensions < 1 {
		return nil, apperr.Newf(apperr.KindInvalidComponentCount, "%d components requested; at least 1 is required", req.Dimensions)
	}
	l, err := e.sessionLock(sess)
	if err != nil {
		return nil, err
	}
	l.Lock()
	defer l.Unlock()

	current, err := e.load(sess)
	if err != nil {
		return nil, err
	}
	if err := session.RequireMetadata(current); err != nil {
		return nil, err
	}
	dir := e.sessions.Dir(current.Name)
	art := &cache.Artifact[predictKey, *pcaArtifacts]{
		Name: session.PredictFile,
		Exists: func() (bool, error) {
			return allExist(e, dir, session.PredictFile, session.EigenValuesFile, session.EigenVectorsFile, session.ExplainedVarianceFile)
		},
		Recorded: func() (predictKey, bool, error) {
			method := current.PredictMethod
			if method == "" {
				method = pca.SVD
			}
			return predictKey{Normalize: current.PredictNormalize, Method: method}, current.PredictNormalize != "", nil
		},
		Load:    func() (*pcaArtifacts, error) { return e.loadPCA(dir) },
		Compute: func(key predictKey) (*pcaArtifacts, error) { return e.computePCA(current, key) },
		Store:   func(a *pcaArtifacts) error { return e.storePCA(dir, a) },
		Forget: func() error {
			current.PredictNormalize = ""
			return e.sessions.Save(current)
		},
		Record: func(key predictKey) error {
			current.PredictNormalize = key.Normalize
			current.PredictMethod = key.Method
			return e.sessions.Save(current)
		},
	}
	a, hit, err := art.Get(predictKey{Normalize: req.Normalize, Method: req.Method})
	if err != nil {
		return nil, err
	}
	copyBack(sess, current)

	available := 0
	if len(a.scores) > 0 {
		available = len(a.scores[0])
	}
	if req.Dimensions > available {
		return nil, apperr.Newf(apperr.KindInvalidComponentCount,
			"%d components requested; this session supports 1 to %d", req.Dimensions, available).
			WithContext("requested", req.Dimensions).
			WithContext("max", available)
	}
	comps := make([][]float64, len(a.scores))
	for i, row := range a.scores {
		comps[i] = append([]float64(nil), row[:req.Dimensions]...)
	}
	return &Prediction{
		Keys:              a.keys,
		Components:        comps,
		Eigenvalues:       a.eigenvalues,
		Eigenvectors:      a.eigenvectors,
		ExplainedVariance: a.explained,
		Normalize:         req.Normalize,
		Method:            req.Method,
		Cached:            hit,
	}, nil
}

func (e *Engine) computePCA(current *session.Session, key predictKey) (*pcaArtifacts, error) {
	start := time.Now()
	f, m, err := e.matrix(current, key.Normalize)
	if err != nil {
		return nil, err
	}
	model, err := pca.Fit(m, key.Method)
	if err != nil {
		return nil, err
	}
	e.pcaRuns.Add(1)
	e.log.Info("pca computed",
		slog.String("session", current.Name),
		slog.String("normalize", string(key.Normalize)),
		slog.String("method", string(key.Method)),
		slog.Int("components", model.Components()),
		slog.Duration("took", time.Since(start)))
	return &pcaArtifacts{
		keys:         f.Keys,
		scores:       pca.Rows(model.Scores),
		eigenvalues:  model.Eigenvalues,
		eigenvectors: pca.Rows(model.Loadings),
		explained:    model.Explained,
	}, nil
}

func (e *Engine) storePCA(dir string, a *pcaArtifacts) error {
	k := len(a.eigenvalues)
	pcs := componentHeader("PC", k)

	header := append([]string{dataframe.ColumnFile, dataframe.ColumnSample}, pcs...)
	rows := make([][]string, len(a.scores))
	for i, s := range a.scores {
		rows[i] = append([]string{a.keys[i].File, a.keys[i].Sample}, formatRow(s)...)
	}
	writes := []struct {
		file    string
		header  []string
		records [][]string
	}{
		{session.PredictFile, header, rows},
		{session.EigenValuesFile, pcs, [][]string{formatRow(a.eigenvalues)}},
		{session.EigenVectorsFile, componentHeader("ForPC", k), formatRows(a.eigenvectors)},
		{session.ExplainedVarianceFile, pcs, [][]string{formatRow(a.explained)}},
	}
	for _, w := range writes {
		if err := fsutil.WriteCSV(e.fs, filepath.Join(dir, w.file), w.header, w.records); err != nil {
			return apperr.New(apperr.KindStorage, "write "+w.file, err)
		}
	}
	return nil
}

func (e *Engine) loadPCA(dir string) (*pcaArtifacts, error) {
	recs, err := fsutil.ReadCSV(e.fs, filepath.Join(dir, session.PredictFile))
	if err != nil {
		return nil, err
	}
	if len(recs) < 2 || len(recs[0]) < 3 {
		return nil, fmt.Errorf("%s is malformed", session.PredictFile)
	}
	a := &pcaArtifacts{}
	for _, rec := range recs[1:] {
		vals, err := parseRow(rec[2:])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", session.PredictFile, err)
		}
		a.keys = append(a.keys, dataframe.Key{File: rec[0], Sample: rec[1]})
		a.scores = append(a.scores, vals)
	}
	if a.eigenvalues, err = e.loadVector(filepath.Join(dir, session.EigenValuesFile)); err != nil {
		return nil, err
	}
	if a.explained, err = e.loadVector(filepath.Join(dir, session.ExplainedVarianceFile)); err != nil {
		return nil, err
	}
	vecs, err := fsutil.ReadCSV(e.fs, filepath.Join(dir, session.EigenVectorsFile))
	if err != nil {
		return nil, err
	}
	for _, rec := range vecs[min(1, len(vecs)):] {
		vals, err := parseRow(rec)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", session.EigenVectorsFile, err)
		}
		a.eigenvectors = append(a.eigenvectors, vals)
	}
	return a, nil
}

func (e *Engine) loadVector(path string) ([]float64, error) {
	recs, err := fsutil.ReadCSV(e.fs, path)
	if err != nil {
		return nil, err
	}
	if len(recs) != 2 {
		return nil, fmt.Errorf("%s is malformed", filepath.Base(path))
	}
	return parseRow(recs[1])
}

func allExist(e *Engine, dir string, files ...string) (bool, error) {
	for _, f := range files {
		ok, err := fsutil.Exists(e.fs, filepath.Join(dir, f))
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func componentHeader(prefix string, k int) []string {
	out := make([]string, k)
	for i := range out {
		out[i] = prefix + strconv.Itoa(i+1)
	}
	return out
}

func formatRow(vals []float64) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = dataframe.FormatFloat(v)
	}
	return out
}

func formatRows(rows [][]float64) [][]string {
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = formatRow(r)
	}
	return out
}

func parseRow(cells []string) ([]float64, error) {
	out := make([]float64, len(cells))
	for i, c := range cells {
		v, err := strconv.ParseFloat(c, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
