package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/central-sheets-import/internal/domain"
	"github.com/boddenberg/central-sheets-import/internal/handler"
	"github.com/boddenberg/central-sheets-import/internal/infra/cache"
	"github.com/boddenberg/central-sheets-import/internal/infra/resilience"
	"github.com/boddenberg/central-sheets-import/internal/infra/sheets"
	"github.com/boddenberg/central-sheets-import/internal/service"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type serveOptions struct {
	Port            int
	ShutdownTimeout time.Duration
}

func newServeCmd(root *rootOptions) *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(root)
			if err != nil {
				return err
			}
			defer a.close()
			return serve(cmd.Context(), a, opts)
		},
	}

	cmd.Flags().IntVar(&opts.Port, "port", 0, "listen port (defaults to PORT)")
	cmd.Flags().DurationVar(&opts.ShutdownTimeout, "shutdown-timeout", 15*time.Second, "graceful shutdown deadline")

	return cmd
}

func serve(ctx context.Context, a *app, opts serveOptions) error {
	cfg, logger := a.cfg, a.logger

	// --- Cache ---
	worksheetCache := cache.New[[]domain.Worksheet](cfg.CacheTTL)
	defer worksheetCache.Close()

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	bulkhead := resilience.NewBulkhead(cfg.MaxConcurrency)

	// --- Google ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	var sessions *service.SessionService
	var sheetsSvc *service.SheetsService
	if cfg.Google.Enabled() {
		oauth := sheets.NewOAuth(cfg.Google, httpClient, logger)
		sessions = service.NewSessionService(oauth, cfg.Google.SessionSecret, cfg.Google.SessionTTL, logger)

		client := sheets.NewClient(httpClient, "", cfg.Google.SheetsRange, sheets.NewBreaker(), bulkhead, resilienceCfg, a.metrics, logger)
		sheetsSvc = service.NewSheetsService(client, worksheetCache, a.metrics, logger)
		logger.Info("google sheets routes enabled", zap.String("redirect_url", cfg.Google.RedirectURL))
	} else {
		logger.Warn("google oauth not configured, sheets routes unavailable")
	}

	// --- Router ---
	router := handler.NewRouter(a.importSvc, sheetsSvc, sessions, a.conn, a.metrics, logger)

	port := cfg.Port
	if opts.Port > 0 {
		port = opts.Port
	}

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
