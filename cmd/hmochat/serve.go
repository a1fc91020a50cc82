package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/hmochat/internal/agent"
	"github.com/fyrsmithlabs/hmochat/internal/capability"
	"github.com/fyrsmithlabs/hmochat/internal/chat"
	"github.com/fyrsmithlabs/hmochat/internal/config"
	"github.com/fyrsmithlabs/hmochat/internal/embeddings"
	httpserver "github.com/fyrsmithlabs/hmochat/internal/http"
	"github.com/fyrsmithlabs/hmochat/internal/llm"
	"github.com/fyrsmithlabs/hmochat/internal/logging"
	"github.com/fyrsmithlabs/hmochat/internal/metrics"
	"github.com/fyrsmithlabs/hmochat/internal/orchestrator"
	"github.com/fyrsmithlabs/hmochat/internal/telemetry"
	"github.com/fyrsmithlabs/hmochat/internal/vectorstore"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			go func() {
				select {
				case sig := <-sigCh:
					log.Printf("Received signal %v, shutting down gracefully...", sig)
					cancel()
				case <-ctx.Done():
				}
			}()

			cfg, err := config.LoadWithFile(configPath)
			if err != nil {
				return err
			}
			return run(ctx, cfg)
		},
	}
}

// app holds the wired components of a running server.
type app struct {
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
	store     vectorstore.Store
	server    *httpserver.Server
}

func (a *app) Close(ctx context.Context) {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn(ctx, "closing vector store", zap.Error(err))
		}
	}
	if err := a.telemetry.Shutdown(context.Background()); err != nil {
		a.logger.Warn(ctx, "telemetry shutdown", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// run serves until ctx is cancelled, then shuts down within the configured
// timeout.
func run(ctx context.Context, cfg *config.Config) error {
	a, err := build(ctx, cfg, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	a.logger.Info(ctx, "server shutdown complete")
	return nil
}

// build wires the service graph. A vector store that cannot be opened is
// logged and left out: search then returns no results.
func build(ctx context.Context, cfg *config.Config, reg *prometheus.Registry) (*app, error) {
	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Telemetry, version))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	logCfg, err := logging.FromSettings(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("invalid logging config: %w", err)
	}
	logger, err := logging.NewLogger(logCfg, tel.LoggerProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info(ctx, "starting hmochat",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("vectorstore", cfg.VectorStore.Provider),
		zap.Int("max_steps", cfg.Dialogue.MaxSteps),
		zap.Bool("telemetry", tel.IsEnabled()))

	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector("hmochat", reg, logger.Underlying())

	client, err := llm.NewFromConfig(cfg.LLM, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize llm client: %w", err)
	}

	store := openStore(ctx, cfg, logger)

	provider := capability.NewProvider(client, store,
		capability.WithMetrics(collector),
		capability.WithLogger(logger))

	executor := orchestrator.NewExecutor(
		agent.NewCollector(client),
		agent.NewQA(client),
		provider,
		orchestrator.WithLogger(logger),
		orchestrator.WithMetrics(collector),
		orchestrator.WithConfig(orchestrator.Config{
			MaxSteps:    cfg.Dialogue.MaxSteps,
			SearchK:     cfg.Dialogue.SearchK,
			FilterByHMO: cfg.Dialogue.FilterByHMO,
		}))

	svc := chat.NewService(executor, chat.WithLogger(logger), chat.WithMetrics(collector))

	var stats httpserver.StatsProvider
	if store != nil {
		stats = store
	}
	server, err := httpserver.NewServer(svc, stats, logger, &httpserver.Config{
		Host:     cfg.Server.Host,
		Port:     cfg.Server.Port,
		Gatherer: reg,
		Metrics:  httpserver.NewHTTPMetrics(logger.Underlying()),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create http server: %w", err)
	}

	return &app{logger: logger, telemetry: tel, store: store, server: server}, nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *logging.Logger) vectorstore.Store {
	embedder, err := embeddings.NewService(embeddings.ConfigFrom(cfg.Embeddings, cfg.LLM), logger.Underlying())
	if err != nil {
		logger.Warn(ctx, "embeddings unavailable, knowledge search disabled", zap.Error(err))
		return nil
	}

	store, err := vectorstore.NewStore(cfg.VectorStore, embedder, logger.Underlying())
	if err != nil {
		logger.Warn(ctx, "vector store unavailable, knowledge search disabled",
			zap.String("provider", cfg.VectorStore.Provider),
			zap.Error(err))
		return nil
	}

	if st, err := store.Stats(ctx); err == nil {
		logger.Info(ctx, "knowledge index opened",
			zap.String("index_type", st.IndexType),
			zap.Bool("loaded", st.Loaded),
			zap.Int("documents", st.TotalDocuments))
	}
	return store
}
