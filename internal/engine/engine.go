// Package engine is the entry point of the analysis pipeline: it imports run
// files into a session's canonical table and serves PCA, distance and
// clustering results, reusing persisted artifacts while their normalization
// still matches the request.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/KaramelBytes/mvlens-cli/internal/apperr"
	"github.com/KaramelBytes/mvlens-cli/internal/dataframe"
	"github.com/KaramelBytes/mvlens-cli/internal/importer"
	"github.com/KaramelBytes/mvlens-cli/internal/logging"
	"github.com/KaramelBytes/mvlens-cli/internal/normalize"
	"github.com/KaramelBytes/mvlens-cli/internal/session"
	"github.com/KaramelBytes/mvlens-cli/internal/stats"
	"github.com/spf13/afero"
)

// Options tunes an Engine.
type Options struct {
	ZeroSpread normalize.ZeroSpreadPolicy
	// ImportParallelism bounds concurrent run-file parsing; 0 means GOMAXPROCS.
	ImportParallelism int
}

// Stats counts the expensive computations an Engine has performed.
type Stats struct {
	Imports              int64 `json:"imports"`
	PCAComputations      int64 `json:"pcaComputations"`
	DistanceComputations int64 `json:"distanceComputations"`
}

// Engine runs analysis operations against a session store. Writes to one
// session's artifacts are serialised; different sessions proceed in parallel.
type Engine struct {
	sessions *session.Store
	frames   *dataframe.Store
	importer *importer.Importer
	fs       afero.Fs
	log      *slog.Logger
	opts     Options

	mu    sync.Mutex
	locks map[string]*sync.RWMutex

	imports   atomic.Int64
	pcaRuns   atomic.Int64
	distances atomic.Int64
}

// New returns an Engine over sessions.
func New(sessions *session.Store, logger *slog.Logger, opts Options) *Engine {
	if opts.ZeroSpread == "" {
		opts.ZeroSpread = normalize.ZeroSpreadError
	}
	log := logging.OrDiscard(logger)
	return &Engine{
		sessions: sessions,
		frames:   dataframe.NewStore(sessions.Fs()),
		importer: importer.New(sessions.Fs(), log, opts.ImportParallelism),
		fs:       sessions.Fs(),
		log:      log.With(slog.String("component", "engine")),
		opts:     opts,
		locks:    make(map[string]*sync.RWMutex),
	}
}

// Sessions exposes the underlying session store.
func (e *Engine) Sessions() *session.Store { return e.sessions }

// Stats returns computation counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Imports:              e.imports.Load(),
		PCAComputations:      e.pcaRuns.Load(),
		DistanceComputations: e.distances.Load(),
	}
}

func (e *Engine) lock(name string) *sync.RWMutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[name]
	if !ok {
		l = &sync.RWMutex{}
		e.locks[name] = l
	}
	return l
}

// sessionLock returns the lock guarding sess's artifacts.
func (e *Engine) sessionLock(sess *session.Session) (*sync.RWMutex, error) {
	if sess == nil {
		return nil, apperr.Newf(apperr.KindInvalidInput, "no session given")
	}
	return e.lock(sess.Name), nil
}

// load reads the authoritative copy of sess from the store.
func (e *Engine) load(sess *session.Session) (*session.Session, error) {
	if sess == nil {
		return nil, apperr.Newf(apperr.KindInvalidInput, "no session given")
	}
	return e.sessions.Load(sess.Name)
}

// copyBack copies the stored state back into the caller's session.
func copyBack(dst, src *session.Session) {
	if dst != nil && src != nil && dst != src {
		*dst = *src.Clone()
	}
}

// CreateDataframe imports the run files into sess, replacing any previous
// canonical table and discarding artifacts derived from it. On success the
// session records file names, labels and the dimension count. A rejected
// import keeps the previous table and only records ImportDimensionCount.
func (e *Engine) CreateDataframe(ctx context.Context, sess *session.Session, req importer.Request) (*importer.Result, error) {
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
	res, err := e.importer.Import(ctx, req)
	if err != nil {
		var ie *importer.ImportError
		if errors.As(err, &ie) {
			e.log.Warn("import rejected",
				slog.String("session", current.Name),
				slog.Int("failures", len(ie.Failures)),
				slog.Int("dimension_count", ie.DimensionCount))
			current.ImportDimensionCount = ie.DimensionCount
			if serr := e.sessions.Save(current); serr != nil {
				return nil, errors.Join(err, serr)
			}
			copyBack(sess, current)
		}
		return nil, err
	}
	dir := e.sessions.Dir(current.Name)
	if err := e.frames.Write(dir, res.DimensionLabels, res.Rows); err != nil {
		return nil, err
	}
	if err := e.invalidate(dir); err != nil {
		return nil, err
	}
	current.FileNames = res.FileNames
	current.LabelNames = res.LabelNames
	current.DimensionLabels = res.DimensionLabels
	current.DimensionCount = res.DimensionCount
	current.ImportDimensionCount = res.DimensionCount
	current.Orientation = string(req.Orientation)
	current.Type = session.Single
	if len(res.FileNames) > 1 {
		current.Type = session.Separated
	}
	if err := e.sessions.Save(current); err != nil {
		return nil, err
	}
	e.imports.Add(1)
	e.log.Info("dataframe created",
		slog.String("session", current.Name),
		slog.Int("rows", len(res.Rows)),
		slog.Int("dimensions", res.DimensionCount))
	copyBack(sess, current)
	return res, nil
}

// invalidate removes every artifact derived from the canonical table.
func (e *Engine) invalidate(dir string) error {
	for _, f := range []string{
		session.PredictFile, session.EigenValuesFile, session.EigenVectorsFile,
		session.ExplainedVarianceFile, session.DistanceFile,
	} {
		if err := e.fs.Remove(filepath.Join(dir, f)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return apperr.New(apperr.KindStorage, "invalidate "+f, err)
		}
	}
	return nil
}

// ReadImportDataframe reads the canonical table of sess.
func (e *Engine) ReadImportDataframe(ctx context.Context, sess *session.Session, opts dataframe.ReadOptions) (*dataframe.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l, err := e.sessionLock(sess)
	if err != nil {
		return nil, err
	}
	l.RLock()
	defer l.RUnlock()
	return e.frames.Read(e.sessions.Dir(sess.Name), opts)
}

// Describe summarises the canonical table of sess.
func (e *Engine) Describe(ctx context.Context, sess *session.Session, opt stats.Options) (*stats.Report, error) {
	f, err := e.ReadImportDataframe(ctx, sess, dataframe.ReadOptions{WithDimensionLabels: true})
	if err != nil {
		return nil, err
	}
	return stats.Describe(sess.Name, f, opt), nil
}

// Export copies the session's table and cached artifacts under dest.
func (e *Engine) Export(ctx context.Context, sess *session.Session, dest string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l, err := e.sessionLock(sess)
	if err != nil {
		return nil, err
	}
	l.RLock()
	defer l.RUnlock()
	return e.sessions.Export(sess.Name, dest)
}

// matrix reads the canonical table of a session that holds metadata and
// normalizes it.
func (e *Engine) matrix(current *session.Session, scheme normalize.Scheme) (*dataframe.Frame, [][]float64, error) {
	if err := session.RequireMetadata(current); err != nil {
		return nil, nil, err
	}
	f, err := e.frames.Read(e.sessions.Dir(current.Name), dataframe.AllParts)
	if err != nil {
		return nil, nil, err
	}
	m, err := normalize.Apply(f.Matrix, scheme, normalize.Options{ZeroSpread: e.opts.ZeroSpread})
	if err != nil {
		return nil, nil, err
	}
	return f, m, nil
}
