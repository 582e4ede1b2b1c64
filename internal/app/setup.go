package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/heirloomhq/heirloom/db"
	"github.com/heirloomhq/heirloom/internal/api"
	"github.com/heirloomhq/heirloom/internal/audit"
	"github.com/heirloomhq/heirloom/internal/auth"
	"github.com/heirloomhq/heirloom/internal/chat"
	"github.com/heirloomhq/heirloom/internal/chunker"
	"github.com/heirloomhq/heirloom/internal/config"
	"github.com/heirloomhq/heirloom/internal/conversation"
	"github.com/heirloomhq/heirloom/internal/ingest"
	"github.com/heirloomhq/heirloom/internal/knowledge"
	"github.com/heirloomhq/heirloom/internal/log"
	"github.com/heirloomhq/heirloom/internal/observability"
	"github.com/heirloomhq/heirloom/internal/portrait"
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup; call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	a := &App{Config: cfg, Logger: logger}

	// On error, clean up everything already initialized
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	a.otelCleanup = provideOtelShutdown(ctx, cfg, logger)

	pool, dbCleanup, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.dbCleanup = dbCleanup
	a.Pool = pool

	g, err := provideGenkit(ctx)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	embedder := provideEmbedder(g, cfg)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found", cfg.EmbedderModel)
	}
	a.Embedder = embedder

	genkitEmbedder := knowledge.NewGenkitEmbedder(embedder)
	a.Knowledge = knowledge.NewStore(pool, genkitEmbedder, logger)

	portraits := portrait.NewStore(pool, logger)
	conversations := conversation.NewStore(pool, logger)
	auditor := audit.NewStore(pool, logger)

	a.Ingestor = ingest.New(chunker.Paragraph{}, genkitEmbedder, a.Knowledge, auditor, logger)

	generator := chat.NewGenkitGenerator(g, cfg.ModelName)
	a.Responder = chat.NewResponder(portraits, a.Knowledge, conversations, generator, auditor, logger)

	a.Auth = auth.New(pool, logger)

	a.Server = api.NewServer(api.ServerConfig{
		Logger:        logger,
		Responder:     a.Responder,
		Ingestor:      a.Ingestor,
		Portraits:     portraits,
		Chunks:        a.Knowledge,
		Conversations: conversations,
		Auth:          a.Auth,
		Auditor:       auditor,
		Pool:          pool,
		IngestToken:   cfg.IngestToken,
		CORSOrigins:   cfg.CORSOrigins,
		TrustProxy:    cfg.TrustProxy,
		RateBurst:     cfg.RateBurst,
	})

	return a, nil
}

// provideOtelShutdown sets up OTLP tracing before Genkit initialization so
// the TracerProvider is ready when flows start.
func provideOtelShutdown(ctx context.Context, cfg *config.Config, logger log.Logger) func() {
	shutdown, err := observability.SetupTracing(ctx, observability.Config{
		Endpoint:    cfg.OTLPEndpoint,
		Environment: cfg.Environment,
		ServiceName: "heirloom",
	})
	if err != nil {
		logger.Warn("setting up tracing", "error", err)
		return func() {}
	}

	//nolint:contextcheck // Independent context: shutdown runs during teardown when parent is canceled
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}
}

// provideGenkit initializes Genkit with the Google AI plugin. The plugin
// reads GEMINI_API_KEY from the environment.
func provideGenkit(ctx context.Context) (*genkit.Genkit, error) {
	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, errors.New("initializing genkit")
	}
	return g, nil
}

// provideEmbedder looks up the embedder registered by the Google AI plugin.
func provideEmbedder(g *genkit.Genkit, cfg *config.Config) ai.Embedder {
	return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
}

// provideDBPool runs migrations and creates a PostgreSQL connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, func(), error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, pool.Close, nil
}
