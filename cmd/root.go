package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	cfgpkg "github.com/KaramelBytes/mvlens-cli/internal/config"
	"github.com/KaramelBytes/mvlens-cli/internal/engine"
	"github.com/KaramelBytes/mvlens-cli/internal/kvstore"
	"github.com/KaramelBytes/mvlens-cli/internal/logging"
	"github.com/KaramelBytes/mvlens-cli/internal/normalize"
	"github.com/KaramelBytes/mvlens-cli/internal/session"
	"github.com/KaramelBytes/mvlens-cli/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile     string
	debug       bool
	sessionFlag string

	// Loaded configuration
	cfg *cfgpkg.Global

	logger    *slog.Logger
	closeLogs = func() error { return nil }
)

const currentSessionKey = "currentSession"

var rootCmd = &cobra.Command{
	Use:   "mvlens",
	Short: "mvlens: PCA and hierarchical clustering for multi-run measurement data",
	Long: `mvlens imports measurement runs (CSV, TXT, XLSX) into named sessions and explores them
with principal component analysis and hierarchical clustering. Results are cached per session
and can be served to a renderer over a local HTTP API.`,
	SilenceUsage: true,
}

// Execute is the entry point called by main.main()
func Execute() {
	cobra.OnInitialize(loadConfig)
	err := rootCmd.Execute()
	_ = closeLogs()
	if err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.mvlens/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug output")
	rootCmd.PersistentFlags().StringVarP(&sessionFlag, "session", "s", "", "session name (default is the session selected with 'session use')")
}

func loadConfig() {
	if _, err := appConfig(); err != nil {
		// Non-fatal: allow running commands that don't need config
		fmt.Fprintf(os.Stderr, "⚠ Warning: failed to load config: %v\n", err)
	}
}

// appConfig returns the loaded configuration, loading it on first use.
func appConfig() (*cfgpkg.Global, error) {
	if cfg != nil {
		return cfg, nil
	}
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	cfg = c
	return cfg, nil
}

// appLogger builds the logger from MVLENS_LOG_* settings; --debug forces the
// debug level.
func appLogger() *slog.Logger {
	if logger != nil {
		return logger
	}
	lc, err := logging.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠ Warning: %v\n", err)
		lc = logging.Config{Level: "warn"}
	}
	if debug {
		lc.Level = "debug"
	}
	l, closer, err := logging.New(lc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠ Warning: %v\n", err)
		l, closer = logging.NewWithWriter(os.Stderr, lc), func() error { return nil }
	}
	logger, closeLogs = l, closer
	return logger
}

func sessionStore() (*session.Store, error) {
	c, err := appConfig()
	if err != nil {
		return nil, err
	}
	return session.NewStore(afero.NewOsFs(), c.SessionsDir), nil
}

func newEngine() (*engine.Engine, error) {
	c, err := appConfig()
	if err != nil {
		return nil, err
	}
	store, err := sessionStore()
	if err != nil {
		return nil, err
	}
	policy, err := normalize.ParseZeroSpreadPolicy(c.ZeroSpread)
	if err != nil {
		return nil, err
	}
	return engine.New(store, appLogger(), engine.Options{ZeroSpread: policy, ImportParallelism: c.Workers}), nil
}

// newPool starts a worker pool over a fresh engine. reg may be nil.
func newPool(ctx context.Context, reg prometheus.Registerer) (*worker.Pool, *engine.Engine, error) {
	e, err := newEngine()
	if err != nil {
		return nil, nil, err
	}
	pool := worker.New(e, cfg.Workers, appLogger(), worker.NewMetrics(reg))
	pool.Start(ctx)
	return pool, e, nil
}

// analyze runs one request on a short-lived worker pool.
func analyze(ctx context.Context, sess *session.Session, command worker.Command, payload any) (any, error) {
	pool, _, err := newPool(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = pool.Stop(defaultStopTimeout) }()
	return pool.Do(ctx, worker.Request{Command: command, Session: sess, Payload: payload})
}

func stateStore() (*kvstore.Store, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home dir: %w", err)
	}
	return kvstore.Open(afero.NewOsFs(), filepath.Join(home, cfgpkg.Dir, "state.json"))
}

// sessionName resolves --session, falling back to the current session.
func sessionName() (string, error) {
	if sessionFlag != "" {
		return sessionFlag, nil
	}
	st, err := stateStore()
	if err != nil {
		return "", err
	}
	var name string
	ok, err := st.Get(currentSessionKey, &name)
	if err != nil {
		return "", err
	}
	if !ok || name == "" {
		return "", fmt.Errorf("no session selected: pass --session or run 'mvlens session use <name>'")
	}
	return name, nil
}

// loadSession loads the session named by --session or the current one.
func loadSession() (*session.Session, error) {
	name, err := sessionName()
	if err != nil {
		return nil, err
	}
	store, err := sessionStore()
	if err != nil {
		return nil, err
	}
	return store.Load(name)
}
