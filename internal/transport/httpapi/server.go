// Package httpapi exposes sessions and analysis results over a local HTTP
// API for the desktop renderer.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/KaramelBytes/mvlens-cli/internal/logging"
	"github.com/KaramelBytes/mvlens-cli/internal/session"
	"github.com/KaramelBytes/mvlens-cli/internal/worker"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options configures a Server.
type Options struct {
	Pool           *worker.Pool
	Sessions       *session.Store
	Logger         *slog.Logger
	Gatherer       prometheus.Gatherer
	AllowedOrigins []string
	Timeout        time.Duration
}

// Server serves the API.
type Server struct {
	pool     *worker.Pool
	sessions *session.Store
	log      *slog.Logger
	gatherer prometheus.Gatherer
	origins  []string
	timeout  time.Duration
}

// New returns a Server.
func New(opts Options) *Server {
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		pool:     opts.Pool,
		sessions: opts.Sessions,
		log:      logging.OrDiscard(opts.Logger).With(slog.String("component", "httpapi")),
		gatherer: opts.Gatherer,
		origins:  opts.AllowedOrigins,
		timeout:  opts.Timeout,
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	if len(s.origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.origins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/sessions", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Use(middleware.Timeout(s.timeout))
		r.Get("/", s.listSessions)
		r.Route("/{name}", func(r chi.Router) {
			r.Use(s.sessionName)
			r.Post("/", s.createSession)
			r.Get("/", s.getSession)
			r.Delete("/", s.deleteSession)
			r.Put("/graphs/{graph}", s.setGraphConfig)
			r.Post("/dataframe", s.createDataframe)
			r.Get("/dataframe", s.readDataframe)
			r.Get("/describe", s.describe)
			r.Get("/predict", s.predict)
			r.Get("/distance", s.distance)
			r.Get("/dendrogram", s.dendrogram)
			r.Get("/heatmap", s.heatmap)
		})
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.InfoContext(r.Context(), "request completed",
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Duration("duration", time.Since(start)))
	})
}

func (s *Server) sessionName(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !session.ValidName(chi.URLParam(r, "name")) {
			s.fail(w, r, errInvalidName(chi.URLParam(r, "name")))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	p := problemFor(err, r)
	if p.Status >= http.StatusInternalServerError {
		s.log.ErrorContext(r.Context(), "request failed",
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
	}
	_ = render.Render(w, r, p)
}
