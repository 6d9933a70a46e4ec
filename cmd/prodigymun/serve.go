package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"prodigymun/internal/adapters/httpapi"
	"prodigymun/internal/auth"
	"prodigymun/internal/blob"
	"prodigymun/internal/config"
	"prodigymun/internal/core"
	"prodigymun/internal/tracing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

const readHeaderTimeout = 10 * time.Second

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serveRun(cmd)
		},
	}
}

// app holds the wired service graph behind the HTTP server.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   core.RegistrationStore
	tracing *tracing.Provider
	service *core.Service
	handler http.Handler
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, traceOut io.Writer) (*app, error) {
	a := &app{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.close(context.Background())
		}
	}()

	store, err := core.OpenPersistentStore(ctx, cfg.StorageOptions())
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StorageDriver, err)
	}
	a.store = store

	blobs, err := blob.Open(ctx, cfg.BlobConfig())
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}

	verifier, err := auth.NewStaticVerifier(cfg.AuthConfig())
	if err != nil {
		return nil, err
	}
	if !verifier.Configured() {
		if cfg.AdminRequireAuth {
			return nil, errors.New("adminRequireAuth is set but no admin password is configured")
		}
		logger.Warn("no admin password configured, admin login is disabled")
	}
	if !cfg.AdminRequireAuth {
		logger.Warn("admin endpoints are not protected by authentication")
	}

	a.tracing, err = tracing.NewProvider(ctx, tracing.Config{
		Enabled: cfg.Tracing,
		Stdout:  cfg.TracingStdout,
		Writer:  traceOut,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a.service = core.NewService(store,
		core.WithLogger(logger.With("component", "core")),
		core.WithAuditRecorder(core.NewSlogAuditRecorder(logger)),
		core.WithMetricsRecorder(core.NewPrometheusMetricsRecorder(registry)),
		core.WithTracer(core.NewOTelTracer(a.tracing.TracerProvider())),
		core.WithBlobStore(blobs),
		core.WithStatsCacheTTL(cfg.StatsCacheTTL),
		core.WithPresignExpiry(cfg.PresignExpiry),
	)
	a.handler = httpapi.NewHandler(a.service, httpapi.Options{
		Logger:           logger,
		Verifier:         verifier,
		RequireAdminAuth: cfg.AdminRequireAuth,
		Registry:         registry,
		Gatherer:         registry,
	})
	ok = true
	return a, nil
}

func (a *app) close(ctx context.Context) {
	if a.tracing != nil {
		if err := a.tracing.Shutdown(ctx); err != nil {
			a.logger.Error("tracing shutdown failed", "error", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error("store close failed", "error", err)
		}
	}
}

func serveRun(cmd *cobra.Command) error {
	cfg, err := configFrom(cmd)
	if err != nil {
		return err
	}
	logger, err := commonRun(cmd, cfg)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	srv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           a.handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr, "storage", cfg.StorageDriver, "blob", cfg.BlobDriver)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down", "timeout", cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}
