package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KaramelBytes/mvlens-cli/internal/transport/httpapi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

const defaultStopTimeout = 5 * time.Second

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve sessions and analysis results over a local HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := appConfig()
		if err != nil {
			return err
		}
		addr := flagOr(cmd, "addr", serveAddr, c.ServeAddr)
		log := appLogger()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		pool, e, err := newPool(ctx, reg)
		if err != nil {
			return err
		}
		defer func() { _ = pool.Stop(defaultStopTimeout) }()

		api := httpapi.New(httpapi.Options{
			Pool:           pool,
			Sessions:       e.Sessions(),
			Logger:         log,
			Gatherer:       reg,
			AllowedOrigins: c.AllowedOrigins,
		})
		srv := &http.Server{
			Addr:              addr,
			Handler:           api.Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			log.Info("serving", slog.String("addr", addr), slog.String("sessions_dir", c.SessionsDir))
			errCh <- srv.ListenAndServe()
		}()
		fmt.Fprintf(cmd.OutOrStdout(), "Listening on http://%s\n", addr)

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultStopTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
}
