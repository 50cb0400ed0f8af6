package engine

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/KaramelBytes/mvlens-cli/internal/apperr"
	"github.com/KaramelBytes/mvlens-cli/internal/cache"
	"github.com/KaramelBytes/mvlens-cli/internal/fsutil"
	"github.com/KaramelBytes/mvlens-cli/internal/hca"
	"github.com/KaramelBytes/mvlens-cli/internal/normalize"
	"github.com/KaramelBytes/mvlens-cli/internal/session"
)

// DistanceResult is a sample distance matrix labelled by class
// ("<sample> <file>").
type DistanceResult struct {
	Matrix    *hca.DistanceMatrix `json:"matrix"`
	Normalize normalize.Scheme    `json:"normalize"`
	Cached    bool                `json:"cached"`
}

// HeatmapRequest asks for a clustered heatmap. XLinkage orders columns and
// YLinkage orders rows.
type HeatmapRequest struct {
	Kind      hca.HeatmapKind
	Normalize normalize.Scheme
	XLinkage  hca.Linkage
	YLinkage  hca.Linkage
}

// ReadDistanceMatrix returns the Euclidean distance matrix of the session's
// samples. The persisted matrix is reused while the session's recorded
// distance normalization equals scheme.
func (e *Engine) ReadDistanceMatrix(ctx context.Context, sess *session.Session, scheme normalize.Scheme) (*DistanceResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
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
	dm, hit, err := e.distanceArtifact(current).Get(scheme)
	if err != nil {
		return nil, err
	}
	copyBack(sess, current)
	return &DistanceResult{Matrix: dm, Normalize: scheme, Cached: hit}, nil
}

func (e *Engine) distanceArtifact(current *session.Session) *cache.Artifact[normalize.Scheme, *hca.DistanceMatrix] {
	path := filepath.Join(e.sessions.Dir(current.Name), session.DistanceFile)
	return &cache.Artifact[normalize.Scheme, *hca.DistanceMatrix]{
		Name:   session.DistanceFile,
		Exists: func() (bool, error) { return fsutil.Exists(e.fs, path) },
		Recorded: func() (normalize.Scheme, bool, error) {
			return current.DistanceNormalize, current.DistanceNormalize != "", nil
		},
		Load: func() (*hca.DistanceMatrix, error) { return e.loadDistances(path) },
		Compute: func(scheme normalize.Scheme) (*hca.DistanceMatrix, error) {
			start := time.Now()
			f, m, err := e.matrix(current, scheme)
			if err != nil {
				return nil, err
			}
			dm, err := hca.Distances(m, f.Classes)
			if err != nil {
				return nil, err
			}
			e.distances.Add(1)
			e.log.Info("distance matrix computed",
				slog.String("session", current.Name),
				slog.String("normalize", string(scheme)),
				slog.Int("samples", dm.Len()),
				slog.Duration("took", time.Since(start)))
			return dm, nil
		},
		Store: func(dm *hca.DistanceMatrix) error {
			header := append([]string{" "}, dm.Labels...)
			rows := make([][]string, dm.Len())
			for i, r := range dm.Values {
				rows[i] = append([]string{dm.Labels[i]}, formatRow(r)...)
			}
			if err := fsutil.WriteCSV(e.fs, path, header, rows); err != nil {
				return apperr.New(apperr.KindStorage, "write "+session.DistanceFile, err)
			}
			return nil
		},
		Forget: func() error {
			current.DistanceNormalize = ""
			return e.sessions.Save(current)
		},
		Record: func(scheme normalize.Scheme) error {
			current.DistanceNormalize = scheme
			return e.sessions.Save(current)
		},
	}
}

func (e *Engine) loadDistances(path string) (*hca.DistanceMatrix, error) {
	recs, err := fsutil.ReadCSV(e.fs, path)
	if err != nil {
		return nil, err
	}
	if len(recs) < 2 {
		return nil, fmt.Errorf("%s is malformed", session.DistanceFile)
	}
	dm := &hca.DistanceMatrix{Labels: recs[0][1:]}
	for _, rec := range recs[1:] {
		vals, err := parseRow(rec[1:])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", session.DistanceFile, err)
		}
		dm.Values = append(dm.Values, vals)
	}
	if err := dm.Validate(); err != nil {
		return nil, err
	}
	return dm, nil
}

// ReadClusterTree clusters the session's samples from the cached distance
// matrix.
func (e *Engine) ReadClusterTree(ctx context.Context, sess *session.Session, scheme normalize.Scheme, linkage hca.Linkage) (*hca.Tree, error) {
	res, err := e.ReadDistanceMatrix(ctx, sess, scheme)
	if err != nil {
		return nil, err
	}
	return hca.FromDistances(res.Matrix, linkage)
}

// ReadHeatmap builds a clustered heatmap. The default kind shows samples by
// dimensions; the distance kind shows the sample distance matrix.
func (e *Engine) ReadHeatmap(ctx context.Context, sess *session.Session, req HeatmapRequest) (*hca.Heatmap, error) {
	switch req.Kind {
	case hca.HeatmapDistance:
		res, err := e.ReadDistanceMatrix(ctx, sess, req.Normalize)
		if err != nil {
			return nil, err
		}
		return hca.DistanceHeatmap(res.Matrix, req.YLinkage, req.XLinkage)
	case hca.HeatmapDefault, "":
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		l, err := e.sessionLock(sess)
		if err != nil {
			return nil, err
		}
		l.RLock()
		defer l.RUnlock()
		current, err := e.load(sess)
		if err != nil {
			return nil, err
		}
		f, m, err := e.matrix(current, req.Normalize)
		if err != nil {
			return nil, err
		}
		return hca.SampleHeatmap(m, f.Classes, f.DimensionLabels, req.YLinkage, req.XLinkage)
	}
	return nil, apperr.Newf(apperr.KindInvalidInput, "unknown heatmap %q", req.Kind)
}
