// Package worker runs analysis requests on dedicated goroutines so callers
// (the CLI, the HTTP API) submit work and receive results asynchronously.
// Identical requests that overlap in time share one computation.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/KaramelBytes/mvlens-cli/internal/apperr"
	"github.com/KaramelBytes/mvlens-cli/internal/dataframe"
	"github.com/KaramelBytes/mvlens-cli/internal/engine"
	"github.com/KaramelBytes/mvlens-cli/internal/hca"
	"github.com/KaramelBytes/mvlens-cli/internal/importer"
	"github.com/KaramelBytes/mvlens-cli/internal/logging"
	"github.com/KaramelBytes/mvlens-cli/internal/normalize"
	"github.com/KaramelBytes/mvlens-cli/internal/session"
	"github.com/KaramelBytes/mvlens-cli/internal/stats"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Analyzer is the analysis surface the pool dispatches to. *engine.Engine
// implements it.
type Analyzer interface {
	CreateDataframe(ctx context.Context, sess *session.Session, req importer.Request) (*importer.Result, error)
	ReadImportDataframe(ctx context.Context, sess *session.Session, opts dataframe.ReadOptions) (*dataframe.Frame, error)
	ReadPredictMatrix(ctx context.Context, sess *session.Session, req engine.PredictRequest) (*engine.Prediction, error)
	ReadDistanceMatrix(ctx context.Context, sess *session.Session, scheme normalize.Scheme) (*engine.DistanceResult, error)
	ReadClusterTree(ctx context.Context, sess *session.Session, scheme normalize.Scheme, linkage hca.Linkage) (*hca.Tree, error)
	ReadHeatmap(ctx context.Context, sess *session.Session, req engine.HeatmapRequest) (*hca.Heatmap, error)
	Describe(ctx context.Context, sess *session.Session, opt stats.Options) (*stats.Report, error)
	Export(ctx context.Context, sess *session.Session, dest string) ([]string, error)
}

// Command names an analysis operation.
type Command string

const (
	CreateDataframe     Command = "createDataframe"
	ReadImportDataframe Command = "readImportDataframe"
	ReadPredictMatrix   Command = "readPredictMatrix"
	ReadDistanceMatrix  Command = "readDistanceMatrix"
	ReadClusterTree     Command = "readClusterTree"
	ReadHeatmap         Command = "readHeatmap"
	Describe            Command = "describe"
	Export              Command = "export"
)

// ClusterRequest is the payload of ReadClusterTree.
type ClusterRequest struct {
	Normalize normalize.Scheme
	Linkage   hca.Linkage
}

// ExportRequest is the payload of Export.
type ExportRequest struct {
	Dest string
}

// Request is one unit of work. Payload type depends on Command:
// importer.Request, dataframe.ReadOptions, engine.PredictRequest,
// normalize.Scheme, ClusterRequest, engine.HeatmapRequest, stats.Options or
// ExportRequest.
type Request struct {
	ID      string
	Command Command
	Session *session.Session
	Payload any
}

// Response carries the outcome of a Request. Shared is true when the result
// came from an identical request that was already running.
type Response struct {
	ID       string
	Command  Command
	Result   any
	Err      error
	Shared   bool
	Duration time.Duration
}

var _ Analyzer = (*engine.Engine)(nil)

// ErrStopped is returned when submitting to a stopped pool.
var ErrStopped = errors.New("worker pool stopped")

type job struct {
	ctx  context.Context
	req  Request
	resp chan Response
}

// Pool runs requests on a fixed set of worker goroutines.
type Pool struct {
	analyzer Analyzer
	jobs     chan *job
	workers  int
	wg       sync.WaitGroup
	group    singleflight.Group
	metrics  *Metrics
	log      *slog.Logger

	mu        sync.RWMutex
	started   bool
	stopped   bool
	shutdown  chan struct{}
	closeOnce sync.Once
}

// New returns a pool of workers goroutines. metrics may be nil.
func New(a Analyzer, workers int, logger *slog.Logger, metrics *Metrics) *Pool {
	if workers <= 0 {
		workers = 2
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Pool{
		analyzer: a,
		jobs:     make(chan *job, workers*2),
		workers:  workers,
		metrics:  metrics,
		log:      logging.OrDiscard(logger).With(slog.String("component", "worker")),
		shutdown: make(chan struct{}),
	}
}

// Start launches the workers. When ctx is done the pool stops as if Stop
// had been called: new submissions fail and queued requests receive
// ErrStopped.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true
	p.log.Info("starting worker pool", slog.Int("workers", p.workers))
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	go func() {
		select {
		case <-ctx.Done():
			if p.halt() {
				p.log.Info("worker pool context done", slog.String("reason", ctx.Err().Error()))
			}
			p.wg.Wait()
			p.drain()
		case <-p.shutdown:
		}
	}()
}

// Stop signals the workers to exit and waits up to timeout for running
// requests to finish. Queued requests that never started receive ErrStopped.
func (p *Pool) Stop(timeout time.Duration) error {
	p.halt()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		p.log.Warn("worker pool stop timeout exceeded")
		return fmt.Errorf("timeout waiting for workers to finish")
	}
	p.drain()
	return nil
}

// halt closes the shutdown channel and marks the pool stopped. The channel
// is closed before taking the lock so that a Submit blocked on a full queue
// returns. It reports whether this call did the stopping.
func (p *Pool) halt() bool {
	first := false
	p.closeOnce.Do(func() {
		close(p.shutdown)
		first = true
	})
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	return first
}

// drain answers every queued request with ErrStopped. Only call it once the
// pool is stopped and the workers have exited.
func (p *Pool) drain() {
	for {
		select {
		case j := <-p.jobs:
			p.metrics.QueueDepth.Dec()
			j.resp <- Response{ID: j.req.ID, Command: j.req.Command, Err: ErrStopped}
		default:
			p.log.Info("worker pool stopped")
			return
		}
	}
}

// Submit queues req and returns the channel its Response will be sent on.
// It blocks only while the queue is full.
func (p *Pool) Submit(ctx context.Context, req Request) (<-chan Response, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Session == nil {
		return nil, apperr.Newf(apperr.KindInvalidInput, "%s: no session given", req.Command)
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return nil, ErrStopped
	}
	j := &job{ctx: ctx, req: req, resp: make(chan Response, 1)}
	select {
	case p.jobs <- j:
		p.metrics.QueueDepth.Inc()
		return j.resp, nil
	case <-p.shutdown:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Do submits req and waits for its result.
func (p *Pool) Do(ctx context.Context, req Request) (any, error) {
	ch, err := p.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	select {
	case r := <-ch:
		return r.Result, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	log := p.log.With(slog.Int("worker", id))
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		case j := <-p.jobs:
			p.metrics.QueueDepth.Dec()
			j.resp <- p.process(log, j)
		}
	}
}

func (p *Pool) process(log *slog.Logger, j *job) Response {
	start := time.Now()
	req := j.req
	resp := Response{ID: req.ID, Command: req.Command}
	if err := j.ctx.Err(); err != nil {
		resp.Err = err
		return resp
	}
	if key, ok := dedupKey(req); ok {
		leader := false
		var shared bool
		resp.Result, resp.Err, shared = p.group.Do(key, func() (any, error) {
			leader = true
			return p.dispatch(j.ctx, req)
		})
		// singleflight reports shared to the leader too.
		resp.Shared = shared && !leader
		if resp.Shared {
			p.metrics.Dedup.Inc()
		}
	} else {
		resp.Result, resp.Err = p.dispatch(j.ctx, req)
	}
	resp.Duration = time.Since(start)

	status := "ok"
	if resp.Err != nil {
		status = "error"
		log.Warn("request failed",
			slog.String("id", req.ID),
			slog.String("command", string(req.Command)),
			slog.String("session", req.Session.Name),
			slog.String("error", resp.Err.Error()))
	} else {
		log.Debug("request done",
			slog.String("id", req.ID),
			slog.String("command", string(req.Command)),
			slog.Bool("shared", resp.Shared),
			slog.Duration("took", resp.Duration))
	}
	p.metrics.Jobs.WithLabelValues(string(req.Command), status).Inc()
	p.metrics.Duration.WithLabelValues(string(req.Command)).Observe(resp.Duration.Seconds())
	return resp
}

// dedupKey identifies requests that read the same session artifact with the
// same parameters. Commands with side effects are never shared.
func dedupKey(req Request) (string, bool) {
	switch req.Command {
	case ReadPredictMatrix, ReadDistanceMatrix, ReadClusterTree, ReadHeatmap, ReadImportDataframe, Describe:
		return fmt.Sprintf("%s|%s|%+v", req.Session.Name, req.Command, req.Payload), true
	}
	return "", false
}

func (p *Pool) dispatch(ctx context.Context, req Request) (any, error) {
	a, s := p.analyzer, req.Session
	switch req.Command {
	case CreateDataframe:
		if pl, ok := req.Payload.(importer.Request); ok {
			return a.CreateDataframe(ctx, s, pl)
		}
	case ReadImportDataframe:
		if pl, ok := req.Payload.(dataframe.ReadOptions); ok {
			return a.ReadImportDataframe(ctx, s, pl)
		}
	case ReadPredictMatrix:
		if pl, ok := req.Payload.(engine.PredictRequest); ok {
			return a.ReadPredictMatrix(ctx, s, pl)
		}
	case ReadDistanceMatrix:
		if pl, ok := req.Payload.(normalize.Scheme); ok {
			return a.ReadDistanceMatrix(ctx, s, pl)
		}
	case ReadClusterTree:
		if pl, ok := req.Payload.(ClusterRequest); ok {
			return a.ReadClusterTree(ctx, s, pl.Normalize, pl.Linkage)
		}
	case ReadHeatmap:
		if pl, ok := req.Payload.(engine.HeatmapRequest); ok {
			return a.ReadHeatmap(ctx, s, pl)
		}
	case Describe:
		if pl, ok := req.Payload.(stats.Options); ok {
			return a.Describe(ctx, s, pl)
		}
	case Export:
		if pl, ok := req.Payload.(ExportRequest); ok {
			return a.Export(ctx, s, pl.Dest)
		}
	default:
		return nil, apperr.Newf(apperr.KindInvalidInput, "unknown command %q", req.Command)
	}
	return nil, apperr.Newf(apperr.KindInvalidInput, "%s: unexpected payload %T", req.Command, req.Payload)
}
