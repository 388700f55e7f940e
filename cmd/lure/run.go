package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/klyr/lure/internal/config"
	"github.com/klyr/lure/internal/honeypot"
	"github.com/klyr/lure/internal/logging"
	"github.com/klyr/lure/internal/observability"
	"github.com/klyr/lure/internal/scanner"
	"github.com/klyr/lure/internal/signature"
	"github.com/klyr/lure/internal/store"
)

func newRunCmd() *cobra.Command {
	var configPath string
	var listen string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Serve the decoys and the read API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, catalog, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Server.Listen = listen
			}
			return runHoneypot(cmd.Context(), cfg, catalog)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	cmd.Flags().StringVar(&listen, "listen", "", "Override server.listen")

	return cmd
}

func runHoneypot(ctx context.Context, cfg *config.Config, catalog *signature.Catalog) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger, err := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	if err != nil {
		return err
	}

	var reg *prometheus.Registry
	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		reg = prometheus.NewRegistry()
		metrics = observability.NewMetrics(reg)
	}

	sc := scanner.New(catalog, scanner.Options{
		Mode:           scanner.ModeAll,
		PatternTimeout: cfg.Scanner.PatternTimeout,
		MaxValueBytes:  cfg.Scanner.MaxValueBytes,
		DecodeDepth:    cfg.Scanner.DecodeDepth,
		Logger:         logger,
		OnTimeout:      metrics.PatternTimeout,
	})

	st, err := store.Open(ctx, cfg.Storage.Driver, cfg.StorageDSN(), cfg.Storage.MaxOpenConns)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	hp, err := honeypot.New(cfg, st, sc)
	if err != nil {
		return err
	}
	hp.SetLogger(logger)
	hp.SetMetrics(metrics)

	if cfg.Logging.EventLog != "" {
		eventLog, closer, err := logging.OpenEventLog(cfg.ResolvePath(cfg.Logging.EventLog))
		if err != nil {
			return err
		}
		defer func() { _ = closer() }()
		hp.SetEventLogger(eventLog)
	}

	metricsSrv := startMetricsServer(cfg, metrics, reg, logger)
	defer func() {
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(context.Background())
		}
	}()

	srv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           hp,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.ListenAndServe()
	}()
	logger.Info("honeypot listening",
		"addr", cfg.Server.Listen,
		"decoys", len(cfg.Decoys.Paths),
		"signatures", catalog.Len(),
		"api", cfg.API.Enabled,
	)

	signalCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-signalCtx.Done():
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func startMetricsServer(cfg *config.Config, metrics *observability.Metrics, reg *prometheus.Registry, logger *slog.Logger) *http.Server {
	if metrics == nil {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))

	srv := &http.Server{Addr: cfg.Metrics.Listen, Handler: mux, ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "addr", cfg.Metrics.Listen, "error", err)
		}
	}()
	return srv
}
