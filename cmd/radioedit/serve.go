package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/yirzhou/radioedit/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the worker pool",
	Long: `Serve the JSON API for uploading shows, submitting mastering jobs,
polling their status, canceling them and downloading the results.

Example:
  radioedit serve
  radioedit serve --addr :8080 --config radioedit.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := appCfg
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := buildComponents(cfg, logger)
	if err != nil {
		return err
	}
	c.service.Start(context.WithoutCancel(ctx))

	var limiter *rate.Limiter
	if cfg.Server.SubmitRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Server.SubmitRate), cfg.Server.SubmitBurst)
	}
	api := server.New(c.service, c.inbox, c.jingles, server.Config{
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		SubmitLimiter:  limiter,
	}, logger.Named("http"))

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server started",
			zap.String("addr", cfg.Server.Addr),
			zap.Int("workers", cfg.Workers),
			zap.String("inputs", cfg.Dirs.Inputs),
			zap.String("outputs", cfg.Dirs.Outputs),
			zap.String("jingles", cfg.Dirs.Jingles))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", zap.Error(err))
			_ = c.service.Abort()
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
		_ = srv.Close()
	}
	// In-flight jobs are interrupted; the job table does not outlive the process.
	if err := c.service.Abort(); err != nil {
		logger.Warn("closing job store", zap.Error(err))
	}
	logger.Info("server stopped")
	return nil
}
