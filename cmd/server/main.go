// Package main provides the entry point for the paper enrichment service server.
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

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/scholaris/paper-enrichment-service/internal/config"
	"github.com/scholaris/paper-enrichment-service/internal/events"
	"github.com/scholaris/paper-enrichment-service/internal/extract"
	"github.com/scholaris/paper-enrichment-service/internal/fetch"
	"github.com/scholaris/paper-enrichment-service/internal/imagegen"
	"github.com/scholaris/paper-enrichment-service/internal/observability"
	"github.com/scholaris/paper-enrichment-service/internal/pipeline"
	"github.com/scholaris/paper-enrichment-service/internal/providers/scenario"
	"github.com/scholaris/paper-enrichment-service/internal/providers/serper"
	httpserver "github.com/scholaris/paper-enrichment-service/internal/server/http"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up structured logging.
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Output:    cfg.Logging.Output,
		AddSource: cfg.Logging.AddSource,
	})
	logger = logger.With().Str("component", "server").Logger()
	logger.Info().Msg("paper-enrichment-service starting")

	// Set up context with graceful shutdown via OS signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics(cfg.Metrics.Namespace)
	}

	// Providers. A missing key leaves the provider disabled rather than
	// failing startup; /readyz reports the gap.
	searchClient := serper.New(serper.Config{
		BaseURL:    cfg.Providers.Serper.BaseURL,
		APIKey:     cfg.Providers.Serper.APIKey,
		Timeout:    cfg.Providers.Serper.Timeout,
		RateLimit:  cfg.Providers.Serper.RateLimit,
		BurstSize:  cfg.Providers.Serper.BurstSize,
		MaxResults: cfg.Providers.Serper.MaxResults,
	}, logger)
	if !cfg.Providers.Serper.Configured() {
		logger.Warn().Msg("serper API key missing, search requests will fail")
	}

	imageProvider := scenario.New(scenario.Config{
		BaseURL:   cfg.Providers.Scenario.BaseURL,
		APIKey:    cfg.Providers.Scenario.APIKey,
		APISecret: cfg.Providers.Scenario.APISecret,
		ModelID:   cfg.Providers.Scenario.ModelID,
		Timeout:   cfg.Providers.Scenario.Timeout,
		RateLimit: cfg.Providers.Scenario.RateLimit,
		BurstSize: cfg.Providers.Scenario.BurstSize,
	})
	if !cfg.Providers.Scenario.Configured() {
		logger.Warn().Msg("scenario API key missing, image generation disabled")
	}

	// Abstract extraction.
	fetcher := fetch.New(fetch.Config{
		Timeout:   cfg.Extract.FetchTimeout,
		MaxSize:   cfg.Extract.MaxPageSize,
		UserAgent: cfg.Extract.UserAgent,
	})
	extractor := extract.New(fetcher, extract.Config{
		MinLength:        cfg.Extract.MinAbstractLength,
		DisabledProfiles: cfg.Extract.DisabledProfiles,
		ExtraProfiles:    profilesFromConfig(cfg.Extract.Profiles),
	}, logger)

	// Image job client.
	imager := imagegen.New(imageProvider, imagegen.Config{
		PollInitialInterval: cfg.Pipeline.PollInitialInterval,
		PollGrowthFactor:    cfg.Pipeline.PollGrowthFactor,
		PollMaxInterval:     cfg.Pipeline.PollMaxInterval,
		JobTimeout:          cfg.Pipeline.JobTimeout,
		Width:               cfg.Providers.Scenario.Width,
		Height:              cfg.Providers.Scenario.Height,
		NegativePrompt:      cfg.Providers.Scenario.NegativePrompt,
	}, logger)

	// Event publisher, if enabled.
	var kafkaPublisher *events.Publisher
	if cfg.Events.Enabled {
		kafkaPublisher = events.NewPublisher(events.Config{
			Brokers:      cfg.Events.Brokers,
			Topic:        cfg.Events.Topic,
			WriteTimeout: cfg.Events.WriteTimeout,
		}, logger)
		logger.Info().
			Strs("brokers", cfg.Events.Brokers).
			Str("topic", cfg.Events.Topic).
			Msg("event publishing enabled")
	}
	var publisher pipeline.EventPublisher
	if kafkaPublisher != nil {
		publisher = kafkaPublisher
	}

	// Pipeline orchestrator.
	store := pipeline.NewStore()
	orch := pipeline.New(searchClient, extractor, imager, publisher, store, metrics, pipeline.Config{
		MaxParallel: cfg.Pipeline.MaxParallel,
	}, logger)

	// Create the HTTP REST API server.
	httpSrv := httpserver.NewServer(
		httpserver.Config{
			Address:         cfg.Server.HTTPAddress(),
			ReadTimeout:     cfg.Server.ReadTimeout,
			WriteTimeout:    cfg.Server.WriteTimeout,
			IdleTimeout:     2 * time.Minute,
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
		},
		orch,
		httpserver.ProviderStatus{
			Search: cfg.Providers.Serper.Configured(),
			Images: cfg.Providers.Scenario.Configured(),
		},
		logger,
	)

	// Set up Prometheus metrics handler on a separate port if configured.
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.Metrics.Path, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress(),
			Handler:      metricsMux,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: 30 * time.Second,
		}
	}

	// Channel to collect server errors.
	errCh := make(chan error, 2)

	// Start HTTP REST API server in background.
	go func() {
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Start metrics server if configured.
	if metricsServer != nil {
		go func() {
			logger.Info().
				Str("address", metricsServer.Addr).
				Msg("metrics server starting")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
	}

	readyLog := logger.Info().Str("http_address", cfg.Server.HTTPAddress())
	if metricsServer != nil {
		readyLog = readyLog.Str("metrics_address", metricsServer.Addr)
	}
	readyLog.Msg("paper-enrichment-service is ready")

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	// Graceful shutdown.
	logger.Info().Msg("shutting down paper-enrichment-service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Shut down HTTP REST API server with timeout.
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// Shut down metrics server if running.
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("metrics server shutdown error")
		}
	}

	// Wait for in-flight image jobs to wind down.
	if err := orch.Close(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("pipeline close timed out, abandoning in-flight jobs")
	}

	if kafkaPublisher != nil {
		if err := kafkaPublisher.Close(); err != nil {
			logger.Error().Err(err).Msg("event publisher close error")
		}
	}

	logger.Info().Msg("paper-enrichment-service shutdown complete")
	return nil
}

// profilesFromConfig maps custom profile definitions onto extractor profiles.
func profilesFromConfig(profiles []config.ProfileConfig) []extract.Profile {
	if len(profiles) == 0 {
		return nil
	}
	out := make([]extract.Profile, len(profiles))
	for i, p := range profiles {
		selectors := make([]extract.Selector, len(p.Selectors))
		for j, sel := range p.Selectors {
			selectors[j] = extract.Selector{Query: sel.Query, Attr: sel.Attr}
		}
		out[i] = extract.Profile{
			Name:        p.Name,
			Hosts:       p.Hosts,
			Selectors:   selectors,
			StripPrefix: p.StripPrefix,
		}
	}
	return out
}
