package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/prometheus/tsdb"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pollwatch/internal/apiclient"
	"pollwatch/internal/auth"
	"pollwatch/internal/config"
	"pollwatch/internal/config_monitor"
	"pollwatch/internal/exposer"
	"pollwatch/internal/recorder"
	"pollwatch/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the monitoring scheduler and REST API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		return serve(cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func setupLogger(level string) (*zap.SugaredLogger, error) {
	logConfig := zap.NewProductionConfig()
	logConfig.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	if level == "debug" {
		logConfig.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	logger, err := logConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("error creating logger: %v", err)
	}
	return logger.Sugar(), nil
}

func serve(cfg *config.Config) error {
	logger, err := setupLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := context.Background()

	sqlitePath := fmt.Sprintf("%s/sqlite", cfg.StoragePath)
	if err := os.MkdirAll(sqlitePath, 0755); err != nil {
		return fmt.Errorf("error creating sqlite directory: %v", err)
	}

	store, err := storage.NewSQLite(ctx, fmt.Sprintf("%s/pollwatch.db", sqlitePath))
	if err != nil {
		return err
	}
	defer store.Close()

	metrics := recorder.NewNoopMetrics()
	if cfg.MetricsEnabled {
		tsdbPath := fmt.Sprintf("%s/tsdb", cfg.StoragePath)
		if err := os.MkdirAll(tsdbPath, 0755); err != nil {
			return fmt.Errorf("error creating tsdb directory: %v", err)
		}

		opts := tsdb.DefaultOptions()
		opts.RetentionDuration = cfg.RetentionPeriod.Milliseconds()
		opts.MaxBlockDuration = cfg.BlockDuration.Milliseconds()

		tsdbHandle, err := tsdb.Open(tsdbPath, nil, nil, opts, nil)
		if err != nil {
			return fmt.Errorf("error opening TSDB: %v", err)
		}
		defer tsdbHandle.Close()
		metrics = recorder.NewMetricsRecorder(tsdbHandle)
	}

	var verifier auth.KeyVerifier
	if cfg.VerifyURL != "" {
		verifier = auth.NewHTTPVerifier(cfg.VerifyURL, cfg.VerifyTimeout, logger)
	} else {
		logger.Warn("no verify_url configured, falling back to static key verification")
		verifier = auth.NewStaticVerifier(cfg.StaticKeys)
	}

	prober := apiclient.New(cfg.ProbeTimeout)

	configMonitorSvc := config_monitor.NewConfigMonitorService(verifier, prober, store, logger)
	schedulerSvc := recorder.NewSchedulerService(verifier, prober, store, metrics, cfg.Workers, logger)
	exposerSvc := exposer.NewExposerService(verifier, store, metrics, logger)

	restored, err := schedulerSvc.Reconcile(ctx)
	if err != nil {
		return err
	}
	logger.Infof("registered %d monitoring job(s) from storage", restored)

	router := setupRouter(configMonitorSvc, schedulerSvc, exposerSvc)
	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Starting server on port %s...", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		schedulerSvc.Stop()
		return err
	case sig := <-sigCh:
		logger.Infof("received %s, shutting down", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("server shutdown: %v", err)
	}
	schedulerSvc.Stop()
	return nil
}

func setupRouter(
	configMonitorSvc config_monitor.ConfigMonitorService,
	schedulerSvc recorder.SchedulerService,
	exposerSvc exposer.ExposerService,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Owner-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Post("/configurations", config_monitor.ValidateHandler(configMonitorSvc))
		r.Post("/configurations/activate", recorder.ActivateHandler(schedulerSvc))
		r.Get("/configurations/{configID}", exposer.RetrieveHandler(exposerSvc))
	})

	return r
}
