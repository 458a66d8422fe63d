package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/vantigo/vantigo/db"
	"github.com/vantigo/vantigo/internal/assembler"
	"github.com/vantigo/vantigo/internal/chatbot"
	"github.com/vantigo/vantigo/internal/config"
	"github.com/vantigo/vantigo/internal/database"
	"github.com/vantigo/vantigo/internal/embedding"
	"github.com/vantigo/vantigo/internal/impersonate"
	"github.com/vantigo/vantigo/internal/instruction"
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup — call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, logger: logger}

	// On error, clean up everything already initialized.
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	a.otelCleanup = provideTracing(ctx, cfg, logger)

	pool, dbCleanup, err := database.NewPool(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return nil, err
	}
	a.dbCleanup = dbCleanup
	a.Pool = pool

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	if err := database.CheckVectorExtension(ctx, pool); err != nil {
		return nil, err
	}

	if err := provideEmbedding(ctx, a, cfg, logger); err != nil {
		return nil, err
	}

	if err := provideStores(a, logger); err != nil {
		return nil, err
	}

	if err := provideAssembler(a, cfg, logger); err != nil {
		return nil, err
	}

	a.Codec, err = impersonate.NewCodec([]byte(cfg.HMACSecret), nil)
	if err != nil {
		return nil, fmt.Errorf("creating impersonation codec: %w", err)
	}

	return a, nil
}

// provideTracing sets up OTLP HTTP trace export to a local collector agent.
// The agent handles authentication, buffering, and forwarding. Tracing
// failures never block startup; the returned cleanup flushes pending spans.
func provideTracing(ctx context.Context, cfg *config.Config, logger *slog.Logger) func() {
	tc := cfg.Tracing
	if !tc.Enabled {
		return func() {}
	}

	agentHost := tc.AgentHost
	if agentHost == "" {
		agentHost = "localhost:4318"
	}
	serviceName := tc.ServiceName
	if serviceName == "" {
		serviceName = "vantigo"
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(agentHost),
		otlptracehttp.WithInsecure(), // local agent, no TLS
	)
	if err != nil {
		logger.Warn("creating trace exporter, tracing disabled", "error", err)
		return func() {}
	}

	attrs := []resource.Option{
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	}
	if tc.Environment != "" {
		attrs = append(attrs, resource.WithAttributes(
			attribute.String("deployment.environment", tc.Environment)))
	}
	res, err := resource.New(ctx, attrs...)
	if err != nil {
		logger.Warn("building trace resource, tracing disabled", "error", err)
		return func() {}
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	logger.Debug("tracing enabled",
		"agent", agentHost, "service", serviceName, "environment", tc.Environment)

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("flushing traces on shutdown", "error", err)
		}
	}
}

// provideEmbedding wires the Gemini embedders and the TTL cache. Queries and
// documents use distinct task types; only query embeddings are cached since
// document embedding happens once per instruction write.
func provideEmbedding(ctx context.Context, a *App, cfg *config.Config, logger *slog.Logger) error {
	queryEmbedder, err := embedding.NewGeminiEmbedder(
		ctx, cfg.GeminiAPIKey, cfg.EmbedderModel, config.EmbeddingDimension, embedding.TaskQuery)
	if err != nil {
		return fmt.Errorf("creating query embedder: %w", err)
	}

	docEmbedder, err := embedding.NewGeminiEmbedder(
		ctx, cfg.GeminiAPIKey, cfg.EmbedderModel, config.EmbeddingDimension, embedding.TaskDocument)
	if err != nil {
		return fmt.Errorf("creating document embedder: %w", err)
	}
	a.DocEmbedder = docEmbedder

	a.Cache = embedding.NewCache(
		time.Duration(cfg.CacheTTLSeconds)*time.Second, cfg.CacheMaxEntries, nil)
	a.QueryEmbedder = embedding.NewCachedEmbedder(queryEmbedder, a.Cache, logger)
	return nil
}

func provideStores(a *App, logger *slog.Logger) error {
	instructionStore, err := instruction.NewStore(a.Pool, logger)
	if err != nil {
		return fmt.Errorf("creating instruction store: %w", err)
	}
	a.InstructionStore = instructionStore

	chatbotStore, err := chatbot.NewStore(a.Pool, logger)
	if err != nil {
		return fmt.Errorf("creating chatbot store: %w", err)
	}
	a.ChatbotStore = chatbotStore

	a.Matcher = instruction.NewMatcher(a.QueryEmbedder, instructionStore, logger)
	a.Worker = instruction.NewEmbedWorker(instructionStore, a.DocEmbedder, logger)
	return nil
}

func provideAssembler(a *App, cfg *config.Config, logger *slog.Logger) error {
	fetchers := []assembler.ModuleFetcher{
		assembler.NewBusinessInfoFetcher(a.Pool),
		assembler.NewMachinesFetcher(a.Pool),
		assembler.NewPlaybooksFetcher(a.Pool),
	}

	asm, err := assembler.New(
		a.ChatbotStore, a.Matcher, fetchers, cfg.MatcherTopK, cfg.MatcherThreshold, logger)
	if err != nil {
		return fmt.Errorf("creating assembler: %w", err)
	}
	a.Assembler = asm
	return nil
}
