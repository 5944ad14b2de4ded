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

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/suPer8Hu/ai-chat/internal/ai"
	"github.com/suPer8Hu/ai-chat/internal/catalog"
	"github.com/suPer8Hu/ai-chat/internal/config"
	"github.com/suPer8Hu/ai-chat/internal/httpapi"
	"github.com/suPer8Hu/ai-chat/internal/logging"
	"github.com/suPer8Hu/ai-chat/internal/store/redisstore"
	"github.com/suPer8Hu/ai-chat/internal/telemetry"
)

func main() {
	cfg := config.Load()

	logger, closeLog, err := logging.Init(cfg.LogDir, "server", cfg.LogLevel, true)
	if err != nil {
		slog.Error("init logging", "error", err)
		os.Exit(1)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracer, meter := telemetry.Noop()
	if cfg.TelemetryEnabled {
		t, m, shutdown, err := telemetry.Init(ctx, "ai-chat-server", cfg.LogDir)
		if err != nil {
			logger.Error("init telemetry", "error", err)
			os.Exit(1)
		}
		defer shutdown()
		tracer, meter = t, m
	}

	reg, err := newRegistry(cfg, tracer, meter)
	if err != nil {
		logger.Error("init providers", "error", err)
		os.Exit(1)
	}
	if cfg.AIProvider == config.ProviderMistral && cfg.MistralAPIKey == "" {
		logger.Warn("MISTRAL_API_KEY is not set; chat requests will fail")
	}

	var cache catalog.Cache
	if cfg.RedisAddr != "" {
		rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.CatalogCacheTTL)
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := rds.Ping(pingCtx); err != nil {
			logger.Warn("redis unavailable, model catalog will not be cached", "addr", cfg.RedisAddr, "error", err)
			_ = rds.Close()
		} else {
			defer rds.Close()
			cache = rds
		}
		cancel()
	}

	r := httpapi.NewRouter(cfg, reg, catalog.NewService(cache, logger), logger)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", cfg.HTTPAddr, "provider", cfg.AIProvider, "registered", reg.Names())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
}

// newRegistry registers the known upstream providers, each wrapped with
// tracing and metrics.
func newRegistry(cfg config.Config, tracer trace.Tracer, meter metric.Meter) (*ai.Registry, error) {
	reg := ai.NewRegistry()

	mistral, err := ai.Instrument(ai.NewMistralProvider(cfg.MistralBaseURL, cfg.MistralAPIKey), config.ProviderMistral, tracer, meter)
	if err != nil {
		return nil, err
	}
	reg.Register(config.ProviderMistral, func(context.Context) (ai.Provider, error) {
		if cfg.MistralAPIKey == "" {
			return nil, ai.ErrMissingCredential
		}
		return mistral, nil
	})

	ollama, err := ai.Instrument(ai.NewOllamaProvider(cfg.OllamaBaseURL), config.ProviderOllama, tracer, meter)
	if err != nil {
		return nil, err
	}
	reg.Register(config.ProviderOllama, func(context.Context) (ai.Provider, error) {
		return ollama, nil
	})
	return reg, nil
}
