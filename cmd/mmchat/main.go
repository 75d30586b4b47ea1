// Command mmchat is an interactive multimodal chat client backed by DashScope
// with persistent conversation memory.
//
// Configuration is read from the environment (and an optional .env file):
// see internal/config for the full list. Pass -c <id> to resume an existing
// conversation.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/leofalp/mmchat/core/chat"
	"github.com/leofalp/mmchat/core/chat/middleware"
	"github.com/leofalp/mmchat/core/multimodal"
	"github.com/leofalp/mmchat/internal/config"
	"github.com/leofalp/mmchat/providers/ai/dashscope"
	"github.com/leofalp/mmchat/providers/memory/backend"
	"github.com/leofalp/mmchat/providers/observability/slogobs"
)

func main() {
	conversationID := flag.String("c", "", "conversation ID to resume (default: new UUID)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *conversationID); err != nil {
		fmt.Fprintf(os.Stderr, "mmchat: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, conversationID string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := slogobs.NewLogger(slogobs.ParseFormat(cfg.LogFormat), slogobs.ParseLevel(cfg.LogLevel), os.Stderr)
	slog.SetDefault(logger)

	memCfg := cfg.MemoryConfig()
	memCfg.Logger = logger
	store, closer, err := backend.Open(ctx, memCfg)
	if err != nil {
		return fmt.Errorf("open memory: %w", err)
	}
	defer closer.Close()

	provider := dashscope.New()
	if cfg.BaseURL != "" {
		provider.WithBaseURL(cfg.BaseURL)
	}

	registry := prometheus.NewRegistry()
	if cfg.MetricsAddr != "" {
		stopMetrics := serveMetrics(cfg.MetricsAddr, registry, logger)
		defer stopMetrics()
	}

	middlewares := []chat.MiddlewareConfig{
		middleware.NewMetricsMiddleware(middleware.NewMetrics(registry)),
	}
	if cfg.Timeout > 0 {
		middlewares = append(middlewares, middleware.NewTimeoutMiddleware(cfg.Timeout))
	}
	middlewares = append(middlewares, middleware.NewLoggingMiddleware(logger, middleware.ParseLogLevel(cfg.LLMLogLevel)))

	builder := multimodal.NewRequestBuilder(
		multimodal.WithResolver(multimodal.NewImageResolver(multimodal.WithResolverLogger(logger))),
		multimodal.WithBuilderLogger(logger),
	)

	svc, err := chat.New(provider, store,
		chat.WithModel(cfg.Model),
		chat.WithKeyResolver(chat.NewKeyResolver(cfg.APIKey)),
		chat.WithRequestBuilder(builder),
		chat.WithStreamBuffer(cfg.StreamBuffer),
		chat.WithMiddleware(middlewares...),
		chat.WithTracer(slogobs.New(slogobs.WithLogger(logger))),
		chat.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	logger.Debug("mmchat ready",
		slog.String("memory_backend", string(cfg.MemoryBackend)),
		slog.String("model", cfg.Model),
	)
	return newREPL(svc, os.Stdout, conversationID).run(ctx, os.Stdin)
}

// serveMetrics exposes registry on addr/metrics and returns a shutdown func.
func serveMetrics(addr string, registry *prometheus.Registry, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", slog.String("addr", addr), slog.String("error", err.Error()))
		}
	}()
	logger.Info("metrics listening", slog.String("addr", addr))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}
}
