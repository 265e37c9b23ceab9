package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/temperature-anomaly-service/internal/adapter/csvfile"
	httpadapter "github.com/couchcryptid/temperature-anomaly-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/temperature-anomaly-service/internal/adapter/kafka"
	"github.com/couchcryptid/temperature-anomaly-service/internal/adapter/openweather"
	"github.com/couchcryptid/temperature-anomaly-service/internal/anomaly"
	"github.com/couchcryptid/temperature-anomaly-service/internal/config"
	"github.com/couchcryptid/temperature-anomaly-service/internal/domain"
	"github.com/couchcryptid/temperature-anomaly-service/internal/observability"
	"github.com/couchcryptid/temperature-anomaly-service/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	// Live lookups are feature-flagged via OPENWEATHER_ENABLED / OPENWEATHER_API_KEY.
	var weather domain.WeatherLookup
	if cfg.OpenWeatherEnabled {
		weather = openweather.NewClient(cfg.OpenWeatherAPIKey, cfg.OpenWeatherBaseURL, cfg.OpenWeatherTimeout, logger, metrics)
		metrics.WeatherEnabled.Set(1)
		logger.Info("openweathermap lookups enabled", "timeout", cfg.OpenWeatherTimeout)
	} else {
		logger.Info("openweathermap lookups disabled")
	}

	cache := anomaly.NewBaselineCache(cfg.BaselineCacheSize, metrics)
	scanner := anomaly.NewScanner(cfg.ScanTimeout, logger, metrics)
	analyzer := anomaly.NewAnalyzer(cache, scanner, weather, logger, metrics)

	ds, err := csvfile.LoadFile(cfg.DatasetPath)
	if err != nil {
		logger.Error("failed to load dataset", "path", cfg.DatasetPath, "error", err)
		os.Exit(1)
	}
	if _, err := analyzer.Load(ds); err != nil {
		logger.Error("failed to build baselines", "path", cfg.DatasetPath, "error", err)
		os.Exit(1)
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, analyzer, httpadapter.Options{
		ScanWorkers:   cfg.ScanWorkers,
		RollingWindow: cfg.RollingWindow,
		WriteTimeout:  cfg.ScanTimeout + cfg.ShutdownTimeout,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	// Start the live-reading stream (feature-flagged via STREAM_ENABLED).
	var reader *kafkaadapter.Reader
	var writer *kafkaadapter.Writer
	if cfg.StreamEnabled {
		reader = kafkaadapter.NewReader(cfg, logger)
		writer = kafkaadapter.NewWriter(cfg, logger)
		transformer := pipeline.NewTransformer(analyzer, logger)
		p := pipeline.New(reader, transformer, writer, logger, metrics, cfg.BatchSize)

		go func() {
			if err := p.Run(ctx); err != nil {
				logger.Error("pipeline error", "error", err)
			}
		}()
	} else {
		logger.Info("live reading stream disabled")
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if reader != nil {
		if err := reader.Close(); err != nil {
			logger.Error("kafka reader close error", "error", err)
		}
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
