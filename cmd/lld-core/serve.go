package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"lldsync/core-go/internal/db"
	"lldsync/core-go/internal/discoveryworker"
	"lldsync/core-go/internal/httpapi"
	"lldsync/core-go/internal/lld"
	"lldsync/core-go/internal/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the discovery worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := httpapi.NewLogger(cfg.LogLevel)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		m := metrics.New()

		var pool *db.Pool
		var engine *lld.Engine
		if cfg.DatabaseURL != "" {
			p, err := db.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				logger.Error().Err(err).Msg("failed to connect to database")
				return err
			}
			defer p.Close()
			pool = p
			engine = lld.New(logger, pool, lld.Options{}, m)
		} else {
			logger.Warn().Msg("DATABASE_URL not set; discovery endpoints are unavailable")
		}

		h := httpapi.NewHandler(logger, pool, engine, m)
		srv := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           h.Router(),
			ReadHeaderTimeout: 5 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			logger.Info().Str("addr", cfg.HTTPAddr).Msg("lld-core listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		if pool != nil && cfg.Worker.Enabled {
			worker := discoveryworker.New(logger, pool.Queries(), engine, discoveryworker.Options{
				PollInterval: cfg.Worker.PollInterval,
				MaxRuntime:   cfg.Worker.MaxRuntime,
			})
			g.Go(func() error {
				worker.Run(gctx)
				return nil
			})
		}
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})

		err = g.Wait()
		if err != nil {
			logger.Error().Err(err).Msg("http server error")
			return err
		}
		logger.Info().Msg("shutdown complete")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
